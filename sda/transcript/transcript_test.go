package transcript

import (
	"encoding/json"
	"errors"
	"testing"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func call(name, args string) ports.ToolCall {
	return ports.ToolCall{ID: "call_" + name, Name: name, Args: json.RawMessage(args)}
}

// TestListTablesTranscript tests the entries of the list-tables exchange
func TestListTablesTranscript(t *testing.T) {
	list := call("sql_db_list_tables", `{ }`)
	history := []ports.Message{
		ports.NewSystem("You are an agent"),
		ports.NewHuman("list all tables"),
		ports.NewAI("", list),
		ports.NewTool(list, "games, teams"),
		ports.NewAI("There are 2 tables: games and teams."),
	}

	entries := RenderAll(history)
	require.Len(t, entries, 4)

	assert.Equal(t, Entry{Role: RoleUser, Type: Final, Content: "list all tables"}, entries[0])
	assert.Equal(t, Entry{
		Role:    RoleAssistant,
		Type:    ToolCall,
		Content: "**Tool Called**: `sql_db_list_tables`\n\n**Arguments:** `{}`",
	}, entries[1])
	assert.Equal(t, Entry{
		Role:    RoleAssistant,
		Type:    ToolOutput,
		Content: "**Tool Output:**\n\n```\ngames, teams\n```",
	}, entries[2])
	assert.Equal(t, Final, entries[3].Type)
	assert.Equal(t, "There are 2 tables: games and teams.", entries[3].Content)
}

func TestQueryArgumentsAreFormatted(t *testing.T) {
	m := ports.NewAI("", call("sql_db_query", `{"query":"select name from teams where city = 'Boston'"}`))
	e := Render(m)
	assert.Equal(t, ToolCall, e.Type)
	assert.Equal(t, "**Tool Called**: `sql_db_query`\n\n**Arguments:**\n```sql\nSELECT name\nFROM teams\nWHERE city = 'Boston'\n```", e.Content)
}

func TestMultipleCallsShareOneEntry(t *testing.T) {
	m := ports.NewAI("", call("sql_db_list_tables", `{}`), call("sql_db_schema", `{"table_names":"teams"}`))
	e := Render(m)
	assert.Contains(t, e.Content, "`sql_db_list_tables`")
	assert.Contains(t, e.Content, "**Arguments:** `{\"table_names\":\"teams\"}`")
	assert.Contains(t, e.Content, "\n\n---\n\n")
}

func TestToolOutputFormats(t *testing.T) {
	c := call("sql_db_query_checker", `{}`)
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{"sql", "```sql\nselect 1\n```", "**Tool Output:**\n\n```sql\nSELECT 1\n```"},
		{"json", `{"columns":["n"],"rows":[[1]],"truncated":false}`, "**Tool Output:**\n\n```json\n{\n  \"columns\": [\n    \"n\"\n  ],\n  \"rows\": [\n    [\n      1\n    ]\n  ],\n  \"truncated\": false\n}\n```"},
		{"text", "Select the team you like?", "**Tool Output:**\n\n```\nSelect the team you like?\n```"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Render(ports.NewTool(c, tc.content)).Content)
		})
	}
}

func TestToolErrorsRenderAsOutput(t *testing.T) {
	c := call("sql_db_query", `{"query":"SELECT * FROM nonexistent"}`)
	e := Render(ports.NewToolError(c, ports.ExecutionFailed(errors.New("no such table: nonexistent"))))
	assert.Equal(t, ToolOutput, e.Type)
	assert.Contains(t, e.Content, "Error: ExecutionFailed: no such table: nonexistent")
}

func TestMalformedArguments(t *testing.T) {
	e := Render(ports.NewAI("", call("sql_db_query", `{"query": 12`)))
	assert.Equal(t, "**Tool Called**: `sql_db_query`\n\n**Arguments:** `{\"query\": 12`", e.Content)

	e = Render(ports.NewAI("", ports.ToolCall{ID: "c", Name: "sql_db_list_tables"}))
	assert.Contains(t, e.Content, "`{}`")
}

func TestTypeThought(t *testing.T) {
	assert.True(t, ToolCall.Thought())
	assert.True(t, ToolOutput.Thought())
	assert.False(t, Final.Thought())
}
