package catalog

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeCSV(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

// TestLoadInfersTypes tests table creation and column type inference
func TestLoadInfersTypes(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "Team Stats.csv", "team,wins,win_pct,city\nCeltics,64,0.78,Boston\nLakers,47,,Los Angeles\n")
	writeCSV(t, dir, "players.csv", "name,team,age\nTatum,Celtics,26\n")
	writeCSV(t, dir, "notes.txt", "not a table")

	db := openTestDB(t)
	reg := NewRegistry(db, Options{Concurrency: 2}, zerolog.Nop())

	cat, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)

	assert.Equal(t, []string{"players", "team_stats"}, cat.Names())
	assert.Equal(t, []string{"players", "team_stats"}, reg.ListTables())
	assert.Equal(t, uint64(1), cat.Generation())

	info, ok := cat.Lookup("team_stats")
	require.True(t, ok)
	assert.Equal(t, 2, info.RowCount)
	assert.Equal(t, []Column{
		{Name: "team", Type: TypeText},
		{Name: "wins", Type: TypeInteger},
		{Name: "win_pct", Type: TypeReal},
		{Name: "city", Type: TypeText},
	}, info.Columns)

	var pct sql.NullFloat64
	require.NoError(t, db.QueryRow(`SELECT win_pct FROM team_stats WHERE team = 'Lakers'`).Scan(&pct))
	assert.False(t, pct.Valid, "empty cell loads as NULL")

	var wins int
	require.NoError(t, db.QueryRow(`SELECT sum(wins) FROM team_stats`).Scan(&wins))
	assert.Equal(t, 111, wins)
}

// TestLoadNameCollision tests that two files normalizing to one name fail the whole load
func TestLoadNameCollision(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "teams.csv", "a\n1\n")
	writeCSV(t, dir, "Teams.csv", "a\n2\n")

	db := openTestDB(t)
	reg := NewRegistry(db, Options{}, zerolog.Nop())

	_, err := reg.Load(context.Background(), dir)
	var ie *IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.Error(), "teams")
	assert.Nil(t, reg.Catalog())

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table'`).Scan(&n))
	assert.Zero(t, n)
}

// TestLoadIsAtomic tests that a malformed file leaves earlier tables untouched
func TestLoadIsAtomic(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "games.csv", "home,away\nBOS,LAL\n")

	db := openTestDB(t)
	reg := NewRegistry(db, Options{}, zerolog.Nop())
	_, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)

	writeCSV(t, dir, "games.csv", "home,away\nBOS,LAL\nNYK,MIA\n")
	writeCSV(t, dir, "broken.csv", "a,b\n1,2,3\n")

	_, err = reg.Reload(context.Background())
	var ie *IngestionError
	require.True(t, errors.As(err, &ie))
	assert.Contains(t, ie.File, "broken.csv")

	var rows int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM games`).Scan(&rows))
	assert.Equal(t, 1, rows)
	assert.Equal(t, uint64(1), reg.Catalog().Generation())
}

func TestLoadRejectsBadHeaders(t *testing.T) {
	for name, content := range map[string]string{
		"empty.csv":     "",
		"blank.csv":     "a,,c\n1,2,3\n",
		"duplicate.csv": "a,A\n1,2\n",
	} {
		dir := t.TempDir()
		writeCSV(t, dir, name, content)
		reg := NewRegistry(openTestDB(t), Options{}, zerolog.Nop())
		_, err := reg.Load(context.Background(), dir)
		var ie *IngestionError
		assert.True(t, errors.As(err, &ie), name)
	}
}

func TestLoadMissingFolder(t *testing.T) {
	reg := NewRegistry(openTestDB(t), Options{}, zerolog.Nop())
	_, err := reg.Load(context.Background(), filepath.Join(t.TempDir(), "nope"))
	var ie *IngestionError
	assert.True(t, errors.As(err, &ie))
}

// TestReloadReplacesAndDropsStale tests last-load-wins semantics
func TestReloadReplacesAndDropsStale(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "x\n1\n")
	writeCSV(t, dir, "b.csv", "y\n1\n")

	db := openTestDB(t)
	reg := NewRegistry(db, Options{}, zerolog.Nop())
	_, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "b.csv")))
	writeCSV(t, dir, "a.csv", "x,z\n1,2\n3,4\n")

	cat, err := reg.Reload(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, cat.Names())
	assert.Equal(t, uint64(2), cat.Generation())

	var n int
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE name = 'b'`).Scan(&n))
	assert.Zero(t, n)
	require.NoError(t, db.QueryRow(`SELECT count(*) FROM a`).Scan(&n))
	assert.Equal(t, 2, n)
}

// TestIgnorePatterns tests configured patterns and the folder ignore file
func TestIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "teams.csv", "a\n1\n")
	writeCSV(t, dir, "teams_backup.csv", "a\n1\n")
	writeCSV(t, dir, "scratch.csv", "a\n1\n")
	writeCSV(t, dir, IgnoreFile, "scratch.csv\n")

	reg := NewRegistry(openTestDB(t), Options{Ignore: []string{"*_backup.csv"}}, zerolog.Nop())
	cat, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"teams"}, cat.Names())
}

func TestSuggest(t *testing.T) {
	cat := newCatalog([]TableInfo{{Name: "players_2023"}, {Name: "players_2024"}, {Name: "teams"}}, 1)
	assert.Equal(t, []string{"players_2023", "players_2024"}, cat.Suggest("player"))
	assert.Equal(t, []string{"teams"}, cat.Suggest("Team"))
	assert.Empty(t, cat.Suggest("zzz"))

	var empty *Catalog
	assert.Nil(t, empty.Suggest("x"))
	assert.Zero(t, empty.Len())
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "team_stats", TableName("/data/Team Stats.csv"))
	assert.Equal(t, "nba", TableName("NBA.CSV"))
	assert.Equal(t, `"a""b"`, QuoteIdent(`a"b`))
}

// TestWatchReloads tests that a new CSV file is picked up by the watcher
func TestWatchReloads(t *testing.T) {
	if testing.Short() {
		t.Skip("filesystem watcher test")
	}
	dir := t.TempDir()
	writeCSV(t, dir, "a.csv", "x\n1\n")

	reg := NewRegistry(openTestDB(t), Options{}, zerolog.Nop())
	_, err := reg.Load(context.Background(), dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx, 50*time.Millisecond) }()

	// give the watcher time to register before the write
	time.Sleep(100 * time.Millisecond)
	writeCSV(t, dir, "b.csv", "y\n2\n")

	assert.Eventually(t, func() bool {
		return len(reg.ListTables()) == 2
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
