package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	anthropic "github.com/anthropics/anthropic-sdk-go"
	aoption "github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicProvider talks to the Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider builds a client; an empty API key falls back to ANTHROPIC_API_KEY.
func NewAnthropicProvider(opts ProviderOptions) *AnthropicProvider {
	var reqOpts []aoption.RequestOption
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		reqOpts = append(reqOpts, aoption.WithAPIKey(key))
	}
	if u := strings.TrimSpace(opts.BaseURL); u != "" {
		reqOpts = append(reqOpts, aoption.WithBaseURL(u))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, aoption.WithRequestTimeout(opts.Timeout))
	}
	if opts.MaxRetries > 0 {
		reqOpts = append(reqOpts, aoption.WithMaxRetries(opts.MaxRetries))
	}
	return &AnthropicProvider{client: anthropic.NewClient(reqOpts...)}
}

func (p *AnthropicProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if strings.TrimSpace(in.Model) == "" {
		return ports.Completion{}, errors.New("missing model")
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(in.Model),
		MaxTokens:   anthropicDefaultMaxTokens,
		Messages:    buildAnthropicMessages(in.Messages),
		Temperature: anthropic.Float(float64(opts.Temperature)),
	}
	if opts.MaxNewTokens > 0 {
		params.MaxTokens = int64(opts.MaxNewTokens)
	}
	if s := strings.TrimSpace(in.System); s != "" {
		params.System = []anthropic.TextBlockParam{{Text: s}}
	}
	if len(in.Tools) > 0 {
		tools, err := buildAnthropicTools(in.Tools)
		if err != nil {
			return ports.Completion{}, err
		}
		params.Tools = tools
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfAuto: &anthropic.ToolChoiceAutoParam{
				DisableParallelToolUse: anthropic.Bool(!opts.ParallelToolCalls),
			},
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return ports.Completion{}, err
	}

	out := ports.Completion{
		Usage: &ports.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
	var text []string
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			if t := strings.TrimSpace(v.Text); t != "" {
				text = append(text, t)
			}
		case anthropic.ToolUseBlock:
			args := json.RawMessage(v.Input)
			if len(args) == 0 {
				args = json.RawMessage("{}")
			}
			out.ToolCalls = append(out.ToolCalls, ports.ToolCall{ID: v.ID, Name: v.Name, Args: args})
		}
	}
	out.Text = strings.Join(text, "\n\n")
	return out, nil
}

// buildAnthropicMessages maps the history onto alternating user/assistant turns.
// Tool results travel as user content, so consecutive results (and a human
// message right after them) are merged into one user message.
func buildAnthropicMessages(history []ports.Message) []anthropic.MessageParam {
	var (
		out     []anthropic.MessageParam
		blocks  []anthropic.ContentBlockParamUnion
		curUser bool
	)
	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if curUser {
			out = append(out, anthropic.NewUserMessage(blocks...))
		} else {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		}
		blocks = nil
	}
	add := func(user bool, b ...anthropic.ContentBlockParamUnion) {
		if user != curUser {
			flush()
			curUser = user
		}
		blocks = append(blocks, b...)
	}

	for _, m := range history {
		switch m.Role {
		case ports.RoleHuman:
			add(true, anthropic.NewTextBlock(m.Content))
		case ports.RoleTool:
			add(true, anthropic.NewToolResultBlock(m.ToolCallID, m.Content, m.IsError))
		case ports.RoleAI:
			var bs []anthropic.ContentBlockParamUnion
			if strings.TrimSpace(m.Content) != "" {
				bs = append(bs, anthropic.NewTextBlock(m.Content))
			}
			for _, tc := range m.ToolCalls {
				var input any = map[string]any{}
				if len(tc.Args) > 0 {
					input = tc.Args
				}
				bs = append(bs, anthropic.NewToolUseBlock(tc.ID, input, tc.Name))
			}
			if len(bs) > 0 {
				add(false, bs...)
			}
		}
	}
	flush()
	if len(out) == 0 {
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock("Continue.")))
	}
	return out
}

func buildAnthropicTools(specs []ports.ToolSpec) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(specs))
	for _, s := range specs {
		schema := map[string]any{}
		if len(s.JSONSchema) > 0 {
			if err := json.Unmarshal(s.JSONSchema, &schema); err != nil {
				return nil, fmt.Errorf("tool %s: invalid schema: %w", s.Name, err)
			}
		}
		var required []string
		if rs, ok := schema["required"].([]any); ok {
			for _, r := range rs {
				if name, ok := r.(string); ok {
					required = append(required, name)
				}
			}
		}
		tool := anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{Properties: schema["properties"], Required: required},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tool})
	}
	return out, nil
}

var _ ports.Provider = (*AnthropicProvider)(nil)
