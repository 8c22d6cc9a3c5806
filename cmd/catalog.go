package cmd

import (
	"context"
	"database/sql"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/catalog"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/db"
)

func dbOptions(dsn string) db.Options {
	d := cfg.Database
	return db.Options{
		Driver:          d.Driver,
		DSN:             dsn,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
		ConnMaxIdleTime: d.ConnMaxIdleTime,
		BusyTimeout:     d.BusyTimeout,
	}
}

// loadCatalog opens the main database and ingests the configured data folder.
// The caller closes the returned database.
func loadCatalog(ctx context.Context) (*sql.DB, *catalog.Registry, error) {
	conn, err := db.Open(ctx, dbOptions(cfg.Database.DSN), logger)
	if err != nil {
		return nil, nil, err
	}
	reg := catalog.NewRegistry(conn, catalog.Options{
		Concurrency: cfg.Data.IngestConcurrency,
		Ignore:      cfg.Data.Ignore,
	}, logger)
	if _, err := reg.Load(ctx, cfg.Data.Folder); err != nil {
		conn.Close()
		return nil, nil, err
	}
	return conn, reg, nil
}
