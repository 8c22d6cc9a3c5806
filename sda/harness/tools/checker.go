package tools

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/sqltext"
)

// QueryCheckerTool validates a query without running it: the read-only gate
// first, then EXPLAIN QUERY PLAN, which parses and plans but executes nothing.
type QueryCheckerTool struct {
	src Source
}

// NewQueryCheckerTool creates the sql_db_query_checker tool.
func NewQueryCheckerTool(src Source) *QueryCheckerTool {
	return &QueryCheckerTool{src: src}
}

func (t *QueryCheckerTool) Name() string { return QueryCheckerName }

func (t *QueryCheckerTool) Description() string {
	return "Use this tool to double check if your query is correct before executing it. " +
		"Always use this tool before executing a query with " + QueryName + "!"
}

func (t *QueryCheckerTool) Schema() []byte { return []byte(QuerySchema) }

func (t *QueryCheckerTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	query, err := decodeQuery(args)
	if err != nil {
		return "", err
	}

	explain := query
	if sqltext.FirstKeyword(query) != "EXPLAIN" {
		explain = "EXPLAIN QUERY PLAN " + query
	}

	var plan []string
	err = withReadOnlyConn(ctx, t.src.DB(), func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, explain)
		if err != nil {
			return ports.InvalidArguments("%v", err)
		}
		defer rows.Close()

		cols, err := rows.Columns()
		if err != nil {
			return ports.ExecutionFailed(err)
		}
		for rows.Next() {
			vals := make([]any, len(cols))
			ptrs := make([]any, len(cols))
			for i := range vals {
				ptrs[i] = &vals[i]
			}
			if err := rows.Scan(ptrs...); err != nil {
				return ports.ExecutionFailed(err)
			}
			// detail is the last column of EXPLAIN QUERY PLAN
			plan = append(plan, fmt.Sprint(cellValue(vals[len(vals)-1], 200)))
		}
		if err := rows.Err(); err != nil {
			return ports.InvalidArguments("%v", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("OK: the query is read-only and valid.\n\n")
	b.WriteString(sqltext.MustFormat(query))
	if len(plan) > 0 {
		b.WriteString("\n\nPlan:\n")
		for _, step := range plan {
			b.WriteString("- ")
			b.WriteString(step)
			b.WriteString("\n")
		}
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
