package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenSQLite tests opening a file database with the pure-Go driver
func TestOpenSQLite(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "nested", "sports.db")
	conn, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn, MaxOpenConns: 2}, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	var mode string
	require.NoError(t, conn.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
	assert.Equal(t, 2, conn.Stats().MaxOpenConnections)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "postgres", DSN: "x"}, zerolog.Nop())
	assert.ErrorContains(t, err, "unsupported")

	_, err = Open(context.Background(), Options{Driver: DriverSQLite}, zerolog.Nop())
	assert.Error(t, err)
}

func TestFilePath(t *testing.T) {
	assert.Equal(t, "data/x.db", filePath("file:data/x.db?_pragma=foo"))
	assert.Equal(t, "x.db", filePath("x.db"))
	assert.Equal(t, "", filePath("file::memory:?cache=shared"))
	assert.Equal(t, "", filePath("libsql://db.turso.io"))
}

// TestPragmaOnConn tests per-connection pragmas such as query_only
func TestPragmaOnConn(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "p.db")
	conn, err := Open(context.Background(), Options{Driver: DriverSQLite, DSN: dsn}, zerolog.Nop())
	require.NoError(t, err)
	defer conn.Close()

	ctx := context.Background()
	c, err := conn.Conn(ctx)
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, Pragma(ctx, c, "query_only", "ON"))
	_, err = c.ExecContext(ctx, "CREATE TABLE t (x INTEGER)")
	assert.Error(t, err)

	require.NoError(t, Pragma(ctx, c, "query_only", "OFF"))
	_, err = c.ExecContext(ctx, "CREATE TABLE t (x INTEGER)")
	assert.NoError(t, err)
}
