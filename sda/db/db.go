// Package db opens the SQL database that backs the table catalog and the checkpoint store.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
	_ "modernc.org/sqlite"
)

// Driver names registered with database/sql.
const (
	DriverLibSQL = "libsql"
	DriverSQLite = "sqlite"
)

// Options holds connection and pool settings.
type Options struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	BusyTimeout     time.Duration
}

// Open connects, verifies and tunes the database.
func Open(ctx context.Context, opts Options, logger zerolog.Logger) (*sql.DB, error) {
	switch opts.Driver {
	case DriverLibSQL, DriverSQLite:
	case "":
		opts.Driver = DriverLibSQL
	default:
		return nil, fmt.Errorf("unsupported database driver %q", opts.Driver)
	}
	if opts.DSN == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}

	if path := filePath(opts.DSN); path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("could not create database directory %s: %w", dir, err)
		}
	}

	logger.Debug().Str("driver", opts.Driver).Str("dsn", opts.DSN).Msg("opening database")
	conn, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", opts.Driver, err)
	}

	configurePool(conn, opts, logger)

	if err := verify(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	if err := configurePragmas(ctx, conn, opts); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// filePath extracts the on-disk path of a local DSN, or "" for memory and remote databases.
func filePath(dsn string) string {
	if strings.Contains(dsn, "://") || strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return path
}

func verify(ctx context.Context, conn *sql.DB) error {
	var result int
	if err := conn.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("basic connectivity test failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("basic connectivity test failed: unexpected result %d", result)
	}
	return nil
}

// configurePragmas applies database-wide settings. Per-connection settings
// (query_only) are applied by the tools on the connection they borrow.
func configurePragmas(ctx context.Context, conn *sql.DB, opts Options) error {
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []struct {
		name  string
		value string
	}{
		{"journal_mode", "WAL"},
		{"busy_timeout", fmt.Sprint(busy.Milliseconds())},
		{"foreign_keys", "ON"},
	}
	for _, p := range pragmas {
		if err := Pragma(ctx, conn, p.name, p.value); err != nil {
			return err
		}
	}
	return nil
}

// Execer is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Pragma sets a PRAGMA. Some drivers refuse Exec for statements that return a row,
// in which case the statement is run as a query and its rows discarded.
func Pragma(ctx context.Context, conn Execer, name, value string) error {
	query := fmt.Sprintf("PRAGMA %s = %s", name, value)
	if _, err := conn.ExecContext(ctx, query); err != nil {
		if !strings.Contains(err.Error(), "returned rows") {
			return fmt.Errorf("failed to set %s: %w", name, err)
		}
		rows, qerr := conn.QueryContext(ctx, query)
		if qerr != nil {
			return fmt.Errorf("failed to set %s: %w", name, qerr)
		}
		rows.Close()
	}
	return nil
}

func configurePool(conn *sql.DB, opts Options, logger zerolog.Logger) {
	maxOpen := opts.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 8
	}
	conn.SetMaxOpenConns(maxOpen)

	maxIdle := opts.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 4
	}
	conn.SetMaxIdleConns(maxIdle)

	idleTime := opts.ConnMaxIdleTime
	if idleTime <= 0 {
		idleTime = 5 * time.Minute
	}
	conn.SetConnMaxIdleTime(idleTime)

	lifeTime := opts.ConnMaxLifetime
	if lifeTime <= 0 {
		lifeTime = time.Hour
	}
	conn.SetConnMaxLifetime(lifeTime)

	logger.Debug().
		Int("max_open", maxOpen).
		Int("max_idle", maxIdle).
		Dur("max_idle_time", idleTime).
		Dur("max_lifetime", lifeTime).
		Msg("connection pool configured")
}
