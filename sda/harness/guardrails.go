package harness

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/xeipuuv/gojsonschema"
)

// Guardrails decides whether a requested tool call may run.
type Guardrails struct {
	allowlist     map[string]bool // empty allows every registered tool
	jsonValidator *JSONValidator
}

// NewGuardrails creates guardrails restricted to allowed; no names means no restriction.
func NewGuardrails(allowed ...string) *Guardrails {
	g := &Guardrails{allowlist: make(map[string]bool), jsonValidator: NewJSONValidator()}
	for _, name := range allowed {
		g.AddAllowedTool(name)
	}
	return g
}

func (g *Guardrails) AddAllowedTool(name string) {
	g.allowlist[name] = true
}

// Allowed reports whether name passes the allowlist.
func (g *Guardrails) Allowed(name string) bool {
	return len(g.allowlist) == 0 || g.allowlist[name]
}

// ValidateToolCall resolves call against the registered tools and checks its
// arguments against the tool schema.
func (g *Guardrails) ValidateToolCall(call ports.ToolCall, tools map[string]ports.Tool) (ports.Tool, *ports.ToolError) {
	tool, ok := tools[call.Name]
	if !ok {
		names := make([]string, 0, len(tools))
		for n := range tools {
			if g.Allowed(n) {
				names = append(names, n)
			}
		}
		sort.Strings(names)
		return nil, ports.InvalidArguments("%s is not a valid tool, try one of [%s]", call.Name, strings.Join(names, ", "))
	}
	if !g.Allowed(call.Name) {
		return nil, ports.Forbidden("tool %s is not in allowlist", call.Name)
	}
	if err := g.jsonValidator.Validate(call.Args, tool.Schema()); err != nil {
		return nil, ports.InvalidArguments("%v", err)
	}
	return tool, nil
}

// JSONValidator handles JSON schema validation.
type JSONValidator struct{}

func NewJSONValidator() *JSONValidator {
	return &JSONValidator{}
}

// Validate checks if JSON data conforms to a schema.
func (v *JSONValidator) Validate(data json.RawMessage, schema []byte) error {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if !json.Valid(data) {
		return fmt.Errorf("arguments are not valid JSON")
	}
	if len(schema) == 0 {
		return nil
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var errs []string
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
