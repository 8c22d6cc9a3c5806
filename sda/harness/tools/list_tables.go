package tools

import (
	"context"
	"encoding/json"
	"strings"
)

// ListTablesSchema accepts an empty object; any arguments are ignored.
const ListTablesSchema = `{
  "type": "object",
  "properties": {}
}`

// ListTablesTool returns the loaded table names.
type ListTablesTool struct {
	src Source
}

func NewListTablesTool(src Source) *ListTablesTool {
	return &ListTablesTool{src: src}
}

func (t *ListTablesTool) Name() string { return ListTablesName }

func (t *ListTablesTool) Description() string {
	return "Input is an empty object, output is a comma-separated list of tables in the database."
}

func (t *ListTablesTool) Schema() []byte { return []byte(ListTablesSchema) }

func (t *ListTablesTool) Invoke(_ context.Context, _ json.RawMessage) (string, error) {
	return strings.Join(t.src.Catalog().Names(), ", "), nil
}
