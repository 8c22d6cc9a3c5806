package harness

import (
	"encoding/json"
	"regexp"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
)

// OutputParser extracts tool calls written into the text of a response, for
// models served without native tool calling.
type OutputParser struct {
	// Regex patterns for different tool call formats
	toolCallPatterns []*regexp.Regexp
	known            map[string]bool
}

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	unquotedKey   = regexp.MustCompile(`([{,]\s*)([a-zA-Z_][a-zA-Z0-9_]*)\s*:`)
)

// NewOutputParser creates a parser that only accepts calls to the named tools.
// With no names every call is accepted.
func NewOutputParser(toolNames ...string) *OutputParser {
	known := make(map[string]bool, len(toolNames))
	for _, n := range toolNames {
		known[n] = true
	}
	return &OutputParser{
		toolCallPatterns: []*regexp.Regexp{
			// JSON array format: [{"name": "tool", "arguments": {...}}]
			regexp.MustCompile(`(?s)\[\s*\{\s*"name"\s*:\s*"([^"]+)"\s*,\s*"arguments"\s*:\s*(\{.*?\})\s*\}\s*\]`),
			// Function call format: tool_name({"arg": "value"})
			regexp.MustCompile(`(?s)(\w+)\s*\(\s*(\{.*?\})\s*\)`),
		},
		known: known,
	}
}

// ParseToolCalls extracts tool calls from a model response text. IDs are left
// empty for the loop to assign.
func (p *OutputParser) ParseToolCalls(text string) []ports.ToolCall {
	var (
		calls []ports.ToolCall
		seen  = make(map[string]bool)
	)
	for _, pattern := range p.toolCallPatterns {
		for _, match := range pattern.FindAllStringSubmatch(text, -1) {
			if len(match) < 3 {
				continue
			}
			name := strings.TrimSpace(match[1])
			if len(p.known) > 0 && !p.known[name] {
				continue
			}
			args := strings.TrimSpace(match[2])
			if !json.Valid([]byte(args)) {
				args = fixJSON(args)
				if !json.Valid([]byte(args)) {
					continue
				}
			}
			key := name + "\x00" + args
			if seen[key] {
				continue
			}
			seen[key] = true
			calls = append(calls, ports.ToolCall{Name: name, Args: json.RawMessage(args)})
		}
	}
	return calls
}

// fixJSON repairs trailing commas and unquoted keys.
func fixJSON(s string) string {
	s = trailingComma.ReplaceAllString(s, "$1")
	return unquotedKey.ReplaceAllString(s, `$1"$2":`)
}
