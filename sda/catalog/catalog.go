// Package catalog loads a folder of CSV files into SQL tables and keeps an
// ordered, read-only description of what was loaded.
package catalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/armon/go-radix"
)

// SQL storage classes assigned by type inference.
const (
	TypeInteger = "INTEGER"
	TypeReal    = "REAL"
	TypeText    = "TEXT"
)

// Column is one inferred column of a loaded table.
type Column struct {
	Name string
	Type string
}

// TableInfo describes a table created from a CSV file.
type TableInfo struct {
	Name       string
	SourceFile string
	Columns    []Column
	RowCount   int
}

// ColumnNames returns the column names in file order.
func (t TableInfo) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Catalog maps table names to their descriptions, ordered lexicographically.
// A Catalog is immutable; reloading produces a new one with a higher generation.
type Catalog struct {
	tree       *radix.Tree
	generation uint64
}

func newCatalog(tables []TableInfo, generation uint64) *Catalog {
	tree := radix.New()
	for _, t := range tables {
		tree.Insert(t.Name, t)
	}
	return &Catalog{tree: tree, generation: generation}
}

// Generation increases with every successful load.
func (c *Catalog) Generation() uint64 {
	if c == nil {
		return 0
	}
	return c.generation
}

// Len returns the number of tables.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return c.tree.Len()
}

// Names returns all table names in lexicographic order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, c.tree.Len())
	c.tree.Walk(func(name string, _ interface{}) bool {
		names = append(names, name)
		return false
	})
	return names
}

// Tables returns all table descriptions in name order.
func (c *Catalog) Tables() []TableInfo {
	if c == nil {
		return nil
	}
	tables := make([]TableInfo, 0, c.tree.Len())
	c.tree.Walk(func(_ string, v interface{}) bool {
		tables = append(tables, v.(TableInfo))
		return false
	})
	return tables
}

// Lookup finds a table by exact name.
func (c *Catalog) Lookup(name string) (TableInfo, bool) {
	if c == nil {
		return TableInfo{}, false
	}
	v, ok := c.tree.Get(name)
	if !ok {
		return TableInfo{}, false
	}
	return v.(TableInfo), true
}

// Suggest returns table names sharing the longest available prefix with name.
// It shortens the prefix until something matches, so "player" suggests "players_2023".
func (c *Catalog) Suggest(name string) []string {
	if c == nil || c.tree.Len() == 0 {
		return nil
	}
	prefix := TableName(name)
	for len(prefix) > 0 {
		var out []string
		c.tree.WalkPrefix(prefix, func(s string, _ interface{}) bool {
			out = append(out, s)
			return len(out) >= 5
		})
		if len(out) > 0 {
			return out
		}
		prefix = prefix[:len(prefix)-1]
	}
	return nil
}

// TableName derives a table name from a CSV file name: the base name without
// extension, lower-cased, with spaces replaced by underscores.
func TableName(file string) string {
	base := filepath.Base(file)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(base)), " ", "_")
}

// QuoteIdent quotes an identifier for SQLite.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// IngestionError reports a CSV file that could not be loaded.
type IngestionError struct {
	File string
	Err  error
}

func (e *IngestionError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("ingestion failed: %v", e.Err)
	}
	return fmt.Sprintf("ingestion failed for %s: %v", e.File, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
