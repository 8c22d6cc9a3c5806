package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/catalog"
	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
)

// SchemaSchema defines the JSON schema for sql_db_schema arguments.
const SchemaSchema = `{
  "type": "object",
  "properties": {
    "table_names": {
      "type": "string",
      "description": "A comma-separated list of the table names for which to return the schema. Example: table1, table2",
      "minLength": 1
    }
  },
  "required": ["table_names"]
}`

// SchemaTool returns CREATE TABLE statements plus sample rows. Results are cached
// per catalog generation, so a reload invalidates them.
type SchemaTool struct {
	src   Source
	cache ports.Cache
	opts  Options
}

func NewSchemaTool(src Source, cache ports.Cache, opts Options) *SchemaTool {
	return &SchemaTool{src: src, cache: cache, opts: opts.withDefaults()}
}

func (t *SchemaTool) Name() string { return SchemaName }

func (t *SchemaTool) Description() string {
	return "Input is a comma-separated list of tables, output is the schema and sample rows for those tables. " +
		"Be sure that the tables actually exist by calling " + ListTablesName + " first! Example input: table1, table2, table3"
}

func (t *SchemaTool) Schema() []byte { return []byte(SchemaSchema) }

func (t *SchemaTool) Invoke(ctx context.Context, args json.RawMessage) (string, error) {
	var p struct {
		TableNames string `json:"table_names"`
	}
	if err := json.Unmarshal(args, &p); err != nil {
		return "", ports.InvalidArguments("arguments must be a JSON object with a table_names field: %v", err)
	}

	cat := t.src.Catalog()
	tables, err := resolveTables(cat, p.TableNames)
	if err != nil {
		return "", err
	}

	key := cacheKey(cat.Generation(), tables)
	if t.cache != nil {
		if v, ok := t.cache.Get(ctx, key); ok {
			return string(v), nil
		}
	}

	parts := make([]string, 0, len(tables))
	for _, info := range tables {
		part, err := t.describe(ctx, info)
		if err != nil {
			return "", ports.ExecutionFailed(err)
		}
		parts = append(parts, part)
	}
	out := strings.Join(parts, "\n\n")

	if t.cache != nil {
		_ = t.cache.Set(ctx, key, []byte(out), t.opts.CacheTTLSeconds)
	}
	return out, nil
}

// resolveTables maps the requested names onto catalog entries, keeping request order.
func resolveTables(cat *catalog.Catalog, list string) ([]catalog.TableInfo, error) {
	var (
		out     []catalog.TableInfo
		missing []string
		seen    = make(map[string]bool)
	)
	for _, raw := range strings.Split(list, ",") {
		name := strings.Trim(strings.TrimSpace(raw), "\"`[]")
		if name == "" {
			continue
		}
		info, ok := cat.Lookup(name)
		if !ok {
			info, ok = cat.Lookup(catalog.TableName(name))
		}
		if !ok {
			missing = append(missing, name)
			continue
		}
		if !seen[info.Name] {
			seen[info.Name] = true
			out = append(out, info)
		}
	}
	if len(missing) > 0 {
		msg := fmt.Sprintf("table_names {%s} not found in database", strings.Join(missing, ", "))
		if hints := cat.Suggest(missing[0]); len(hints) > 0 {
			msg += fmt.Sprintf("; did you mean: %s?", strings.Join(hints, ", "))
		}
		return nil, ports.InvalidArguments("%s", msg)
	}
	if len(out) == 0 {
		return nil, ports.InvalidArguments("table_names is empty")
	}
	return out, nil
}

func cacheKey(generation uint64, tables []catalog.TableInfo) string {
	names := make([]string, len(tables))
	for i, t := range tables {
		names[i] = t.Name
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	// request order matters for the output, so both orders are part of the key
	return fmt.Sprintf("schema:%d:%s:%s", generation, strings.Join(sorted, ","), strings.Join(names, ","))
}

func (t *SchemaTool) describe(ctx context.Context, info catalog.TableInfo) (string, error) {
	db := t.src.DB()

	var ddl string
	err := db.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, info.Name).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("read schema of %s: %w", info.Name, err)
	}

	rows, err := db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s LIMIT %d", catalog.QuoteIdent(info.Name), t.opts.SampleRows))
	if err != nil {
		return "", fmt.Errorf("sample %s: %w", info.Name, err)
	}
	defer rows.Close()
	sample, err := collect(rows, t.opts.SampleRows, t.opts.MaxCellSize)
	if err != nil {
		return "", fmt.Errorf("sample %s: %w", info.Name, err)
	}

	var b strings.Builder
	b.WriteString(strings.TrimSpace(ddl))
	fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n", t.opts.SampleRows, info.Name)
	b.WriteString(strings.Join(sample.Columns, "\t"))
	for _, row := range sample.Rows {
		b.WriteString("\n")
		b.WriteString(joinRow(row))
	}
	b.WriteString("\n*/")
	return b.String(), nil
}

func joinRow(row []any) string {
	cells := make([]string, len(row))
	for i, v := range row {
		if v == nil {
			cells[i] = "NULL"
			continue
		}
		cells[i] = fmt.Sprint(v)
	}
	return strings.Join(cells, "\t")
}
