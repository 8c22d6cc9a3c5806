package tools

import (
	"context"
	"database/sql"
	"encoding/json"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
)

// QuerySchema defines the JSON schema for sql_db_query arguments.
const QuerySchema = `{
  "type": "object",
  "properties": {
    "query": {
      "type": "string",
      "description": "A single, detailed and correct read-only SQL query",
      "minLength": 1
    }
  },
  "required": ["query"],
  "additionalProperties": false
}`

// QueryResult is the JSON document returned to the model.
type QueryResult struct {
	Columns   []string `json:"columns"`
	Rows      [][]any  `json:"rows"`
	Truncated bool     `json:"truncated"`
}

// QueryTool runs one read-only statement and returns its rows.
type QueryTool struct {
	src  Source
	opts Options
}

// NewQueryTool creates the sql_db_query tool.
func NewQueryTool(src Source, opts Options) *QueryTool {
	return &QueryTool{src: src, opts: opts.withDefaults()}
}

func (t *QueryTool) Name() string { return QueryName }

func (t *QueryTool) Description() string {
	return "Execute a SQL query against the database and get back the result as JSON. " +
		"If the query is not correct, an error message is returned; rewrite the query, check it, and try again. " +
		"If you get an error about an unknown column, use " + SchemaName + " to see the correct table fields."
}

func (t *QueryTool) Schema() []byte { return []byte(QuerySchema) }

// Invoke executes the query on a dedicated query_only connection.
func (t *QueryTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	query, err := decodeQuery(args)
	if err != nil {
		return "", err
	}

	var res QueryResult
	err = withReadOnlyConn(ctx, t.src.DB(), func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, query)
		if err != nil {
			return ports.ExecutionFailed(err)
		}
		defer rows.Close()

		res, err = collect(rows, t.opts.MaxRows, t.opts.MaxCellSize)
		if err != nil {
			return ports.ExecutionFailed(err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(res)
	if err != nil {
		return "", ports.ExecutionFailed(err)
	}
	return string(out), nil
}

func collect(rows *sql.Rows, maxRows, maxCell int) (QueryResult, error) {
	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, err
	}
	res := QueryResult{Columns: cols, Rows: [][]any{}}
	for rows.Next() {
		if len(res.Rows) == maxRows {
			res.Truncated = true
			break
		}
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return QueryResult{}, err
		}
		row := make([]any, len(cols))
		for i, v := range vals {
			row[i] = cellValue(v, maxCell)
		}
		res.Rows = append(res.Rows, row)
	}
	return res, rows.Err()
}
