// Package transcript turns thread messages into the entries a chat UI shows,
// including the intermediate tool activity of the agent.
package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/sqltext"
)

// Type classifies an entry for display.
type Type string

const (
	ToolCall   Type = "tool_call"
	ToolOutput Type = "tool_output"
	Final      Type = "final"
)

// Thought reports whether entries of this type belong to the thought process.
func (t Type) Thought() bool {
	return t == ToolCall || t == ToolOutput
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Entry is one rendered chat item.
type Entry struct {
	Role    string `json:"role"`
	Type    Type   `json:"type"`
	Content string `json:"content"`
}

// Classify maps a message to its display type.
func Classify(m ports.Message) Type {
	switch {
	case m.HasToolCalls():
		return ToolCall
	case m.Role == ports.RoleTool:
		return ToolOutput
	default:
		return Final
	}
}

// Render converts one message into a display entry.
func Render(m ports.Message) Entry {
	e := Entry{Role: RoleAssistant, Type: Classify(m)}
	if m.Role == ports.RoleHuman {
		e.Role = RoleUser
	}

	switch e.Type {
	case ToolCall:
		parts := make([]string, 0, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			parts = append(parts, renderCall(c))
		}
		e.Content = strings.Join(parts, "\n\n---\n\n")
	case ToolOutput:
		e.Content = "**Tool Output:**\n\n" + renderOutput(m.Content)
	default:
		e.Content = m.Content
	}
	return e
}

// RenderAll renders a stored history in order, skipping system messages.
func RenderAll(history []ports.Message) []Entry {
	out := make([]Entry, 0, len(history))
	for _, m := range history {
		if m.Role == ports.RoleSystem {
			continue
		}
		out = append(out, Render(m))
	}
	return out
}

func renderCall(c ports.ToolCall) string {
	var args struct {
		Query string `json:"query"`
	}
	if json.Unmarshal(c.Args, &args) == nil && strings.TrimSpace(args.Query) != "" {
		return fmt.Sprintf("**Tool Called**: `%s`\n\n**Arguments:**\n%s", c.Name, sqlBlock(args.Query))
	}
	return fmt.Sprintf("**Tool Called**: `%s`\n\n**Arguments:** `%s`", c.Name, compact(c.Args))
}

func renderOutput(content string) string {
	switch {
	case sqltext.LooksLikeSQL(content):
		return sqlBlock(content)
	case json.Valid([]byte(strings.TrimSpace(content))):
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(strings.TrimSpace(content)), "", "  "); err == nil {
			return "```json\n" + buf.String() + "\n```"
		}
	}
	return "```\n" + strings.TrimSpace(content) + "\n```"
}

func sqlBlock(query string) string {
	return "```sql\n" + sqltext.MustFormat(sqltext.StripFence(query)) + "\n```"
}

func compact(args json.RawMessage) string {
	if len(args) == 0 {
		return "{}"
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, args); err != nil {
		return string(args)
	}
	return buf.String()
}
