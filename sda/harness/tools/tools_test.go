package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/catalog"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/harness/adapters"
	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	_ "modernc.org/sqlite"
)

// ToolsTestSuite runs the SQL toolkit against a registry loaded from CSV fixtures
type ToolsTestSuite struct {
	suite.Suite
	db  *sql.DB
	reg *catalog.Registry
	ctx context.Context
}

func TestToolsSuite(t *testing.T) {
	suite.Run(t, new(ToolsTestSuite))
}

func (s *ToolsTestSuite) SetupTest() {
	dir := s.T().TempDir()
	files := map[string]string{
		"teams.csv": "id,name,city\n1,Celtics,Boston\n2,Lakers,Los Angeles\n3,Knicks,New York\n4,Bulls,Chicago\n",
		"games.csv": "id,home_id,away_id,home_pts,away_pts\n1,1,2,110,102\n2,3,4,99,101\n",
	}
	for name, content := range files {
		require.NoError(s.T(), os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	var err error
	s.db, err = sql.Open("sqlite", "file:"+filepath.Join(s.T().TempDir(), "sports.db"))
	require.NoError(s.T(), err)
	s.db.SetMaxOpenConns(1)
	s.T().Cleanup(func() { s.db.Close() })

	s.ctx = context.Background()
	s.reg = catalog.NewRegistry(s.db, catalog.Options{}, zerolog.Nop())
	_, err = s.reg.Load(s.ctx, dir)
	require.NoError(s.T(), err)
}

func (s *ToolsTestSuite) toolError(err error) *ports.ToolError {
	var te *ports.ToolError
	require.True(s.T(), errors.As(err, &te), "expected a ToolError, got %v", err)
	return te
}

func (s *ToolsTestSuite) TestToolkitOrderAndSchemas() {
	kit := NewToolkit(s.reg, nil, Options{})
	var names []string
	for _, tool := range kit {
		names = append(names, tool.Name())
		assert.True(s.T(), json.Valid(tool.Schema()), tool.Name())
		assert.NotEmpty(s.T(), tool.Description())
	}
	assert.Equal(s.T(), []string{QueryName, SchemaName, ListTablesName, QueryCheckerName}, names)
}

func (s *ToolsTestSuite) TestListTables() {
	out, err := NewListTablesTool(s.reg).Invoke(s.ctx, json.RawMessage(`{}`))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "games, teams", out)
}

func (s *ToolsTestSuite) TestQueryReturnsJSON() {
	tool := NewQueryTool(s.reg, Options{})
	out, err := tool.Invoke(s.ctx, json.RawMessage(`{"query":"SELECT name, city FROM teams WHERE id = 1"}`))
	require.NoError(s.T(), err)
	assert.JSONEq(s.T(), `{"columns":["name","city"],"rows":[["Celtics","Boston"]],"truncated":false}`, out)
}

func (s *ToolsTestSuite) TestQueryStripsFence() {
	tool := NewQueryTool(s.reg, Options{})
	out, err := tool.Invoke(s.ctx, json.RawMessage(`{"query":"`+"```sql\\nSELECT count(*) AS n FROM teams\\n```"+`"}`))
	require.NoError(s.T(), err)
	assert.JSONEq(s.T(), `{"columns":["n"],"rows":[[4]],"truncated":false}`, out)
}

func (s *ToolsTestSuite) TestQueryTruncatesRows() {
	tool := NewQueryTool(s.reg, Options{MaxRows: 2, MaxCellSize: 3})
	out, err := tool.Invoke(s.ctx, json.RawMessage(`{"query":"SELECT name FROM teams ORDER BY id"}`))
	require.NoError(s.T(), err)

	var res QueryResult
	require.NoError(s.T(), json.Unmarshal([]byte(out), &res))
	assert.True(s.T(), res.Truncated)
	assert.Equal(s.T(), [][]any{{"Cel..."}, {"Lak..."}}, res.Rows)
}

// TestQueryRejectsMutations tests that mutating statements never reach the database
func (s *ToolsTestSuite) TestQueryRejectsMutations() {
	tool := NewQueryTool(s.reg, Options{})
	for _, q := range []string{
		"DROP TABLE teams",
		"DELETE FROM teams",
		"INSERT INTO teams (id, name, city) VALUES (5, 'Heat', 'Miami')",
		"SELECT 1; DROP TABLE teams",
	} {
		args, _ := json.Marshal(map[string]string{"query": q})
		_, err := tool.Invoke(s.ctx, args)
		assert.Equal(s.T(), ports.ToolForbidden, s.toolError(err).Kind, q)
	}

	var n int
	require.NoError(s.T(), s.db.QueryRow(`SELECT count(*) FROM teams`).Scan(&n))
	assert.Equal(s.T(), 4, n)

	out, err := tool.Invoke(s.ctx, json.RawMessage(`{"query":"SELECT * FROM teams LIMIT 5"}`))
	require.NoError(s.T(), err)
	assert.Contains(s.T(), out, "Celtics")
}

func (s *ToolsTestSuite) TestQueryUnknownTable() {
	_, err := NewQueryTool(s.reg, Options{}).Invoke(s.ctx, json.RawMessage(`{"query":"SELECT * FROM nonexistent"}`))
	te := s.toolError(err)
	assert.Equal(s.T(), ports.ToolExecutionFailed, te.Kind)
	assert.Contains(s.T(), te.Content(), "no such table")
}

func (s *ToolsTestSuite) TestQueryBadArguments() {
	_, err := NewQueryTool(s.reg, Options{}).Invoke(s.ctx, json.RawMessage(`"SELECT 1"`))
	assert.Equal(s.T(), ports.ToolInvalidArguments, s.toolError(err).Kind)

	_, err = NewQueryTool(s.reg, Options{}).Invoke(s.ctx, json.RawMessage(`{"query":"  "}`))
	assert.Equal(s.T(), ports.ToolInvalidArguments, s.toolError(err).Kind)
}

// TestConnectionRestored tests that the pooled connection leaves query_only mode
func (s *ToolsTestSuite) TestConnectionRestored() {
	_, err := NewQueryTool(s.reg, Options{}).Invoke(s.ctx, json.RawMessage(`{"query":"SELECT 1"}`))
	require.NoError(s.T(), err)

	var on int
	require.NoError(s.T(), s.db.QueryRow(`PRAGMA query_only`).Scan(&on))
	assert.Equal(s.T(), 0, on)
	_, err = s.db.Exec(`CREATE TABLE scratch (a INTEGER)`)
	assert.NoError(s.T(), err)
}

func (s *ToolsTestSuite) TestQueryChecker() {
	tool := NewQueryCheckerTool(s.reg)

	out, err := tool.Invoke(s.ctx, json.RawMessage(`{"query":"select name from teams where city = 'Boston'"}`))
	require.NoError(s.T(), err)
	assert.True(s.T(), strings.HasPrefix(out, "OK:"))
	assert.Contains(s.T(), out, "SELECT name\nFROM teams\nWHERE city = 'Boston'")
	assert.Contains(s.T(), out, "Plan:")

	_, err = tool.Invoke(s.ctx, json.RawMessage(`{"query":"SELECT nope FROM teams"}`))
	assert.Equal(s.T(), ports.ToolInvalidArguments, s.toolError(err).Kind)

	_, err = tool.Invoke(s.ctx, json.RawMessage(`{"query":"DROP TABLE teams"}`))
	assert.Equal(s.T(), ports.ToolForbidden, s.toolError(err).Kind)
}

func (s *ToolsTestSuite) TestSchemaDescribesTables() {
	tool := NewSchemaTool(s.reg, nil, Options{})
	out, err := tool.Invoke(s.ctx, json.RawMessage(`{"table_names":"teams, games"}`))
	require.NoError(s.T(), err)

	teams := strings.Index(out, "CREATE TABLE \"teams\"")
	games := strings.Index(out, "CREATE TABLE \"games\"")
	require.NotEqual(s.T(), -1, teams)
	require.NotEqual(s.T(), -1, games)
	assert.Less(s.T(), teams, games, "request order is kept")
	assert.Contains(s.T(), out, "/*\n3 rows from teams table:\nid\tname\tcity\n1\tCeltics\tBoston\n")
	assert.NotContains(s.T(), out, "Bulls", "only sample rows are shown")
}

func (s *ToolsTestSuite) TestSchemaUnknownTableSuggests() {
	_, err := NewSchemaTool(s.reg, nil, Options{}).Invoke(s.ctx, json.RawMessage(`{"table_names":"team"}`))
	te := s.toolError(err)
	assert.Equal(s.T(), ports.ToolInvalidArguments, te.Kind)
	assert.Contains(s.T(), te.Message, "table_names {team} not found")
	assert.Contains(s.T(), te.Message, "did you mean: teams?")
}

// TestSchemaCached tests that a second call is served from the cache
func (s *ToolsTestSuite) TestSchemaCached() {
	cache := adapters.NewLRUCache(8)
	tool := NewSchemaTool(s.reg, cache, Options{})
	args := json.RawMessage(`{"table_names":"teams"}`)

	first, err := tool.Invoke(s.ctx, args)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, cache.Len())

	_, err = s.db.Exec(`DELETE FROM teams`)
	require.NoError(s.T(), err)

	second, err := tool.Invoke(s.ctx, args)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), first, second)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab...", truncate("abcd", 2))
	assert.Equal(t, "él...", truncate("élan", 2))
}
