// Package tools implements the SQL toolkit the agent calls: listing tables,
// describing them, checking a query and running it.
package tools

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/catalog"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/db"
	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/sqltext"
)

// Tool names as the model sees them.
const (
	ListTablesName   = "sql_db_list_tables"
	SchemaName       = "sql_db_schema"
	QueryName        = "sql_db_query"
	QueryCheckerName = "sql_db_query_checker"
)

// Source is the part of the table registry the tools read from.
type Source interface {
	Catalog() *catalog.Catalog
	DB() *sql.DB
}

// Options bounds tool output.
type Options struct {
	MaxRows         int // rows returned by sql_db_query
	SampleRows      int // sample rows shown by sql_db_schema
	MaxCellSize     int // characters per cell before truncation
	CacheTTLSeconds int
}

func (o Options) withDefaults() Options {
	if o.MaxRows <= 0 {
		o.MaxRows = 100
	}
	if o.SampleRows <= 0 {
		o.SampleRows = 3
	}
	if o.MaxCellSize <= 0 {
		o.MaxCellSize = 200
	}
	if o.CacheTTLSeconds <= 0 {
		o.CacheTTLSeconds = 3600
	}
	return o
}

// NewToolkit returns the four SQL tools in the order they are offered to the model.
// cache may be nil.
func NewToolkit(src Source, cache ports.Cache, opts Options) []ports.Tool {
	opts = opts.withDefaults()
	return []ports.Tool{
		NewQueryTool(src, opts),
		NewSchemaTool(src, cache, opts),
		NewListTablesTool(src),
		NewQueryCheckerTool(src),
	}
}

// queryArgs is shared by the query and checker tools.
type queryArgs struct {
	Query string `json:"query"`
}

func decodeQuery(args json.RawMessage) (string, error) {
	var p queryArgs
	if err := json.Unmarshal(args, &p); err != nil {
		return "", ports.InvalidArguments("arguments must be a JSON object with a query field: %v", err)
	}
	q := sqltext.StripFence(p.Query)
	if err := sqltext.CheckReadOnly(q); err != nil {
		return "", guardError(err)
	}
	return q, nil
}

// guardError maps a read-only check failure to a tool error kind.
func guardError(err error) *ports.ToolError {
	var me *sqltext.MutationError
	switch {
	case errors.As(err, &me):
		return &ports.ToolError{Kind: ports.ToolForbidden, Message: me.Error(), Err: err}
	case errors.Is(err, sqltext.ErrMultipleStatements):
		return &ports.ToolError{Kind: ports.ToolForbidden, Message: err.Error(), Err: err}
	default:
		return &ports.ToolError{Kind: ports.ToolInvalidArguments, Message: err.Error(), Err: err}
	}
}

// withReadOnlyConn borrows one pooled connection, switches it to query_only for the
// duration of fn and restores it before handing it back. A connection that cannot
// be restored is discarded instead of returned to the pool.
func withReadOnlyConn(ctx context.Context, pool *sql.DB, fn func(*sql.Conn) error) error {
	conn, err := pool.Conn(ctx)
	if err != nil {
		return ports.ExecutionFailed(err)
	}
	defer conn.Close()

	if err := db.Pragma(ctx, conn, "query_only", "ON"); err != nil {
		return ports.ExecutionFailed(err)
	}
	defer func() {
		if err := db.Pragma(context.WithoutCancel(ctx), conn, "query_only", "OFF"); err != nil {
			_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		}
	}()
	return fn(conn)
}

// cellValue converts a scanned value to something JSON-friendly and bounded.
func cellValue(v any, maxCell int) any {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		return truncate(string(x), maxCell)
	case string:
		return truncate(x, maxCell)
	case fmt.Stringer:
		return truncate(x.String(), maxCell)
	default:
		return x
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
