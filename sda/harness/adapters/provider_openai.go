package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	openai "github.com/openai/openai-go"
	ooption "github.com/openai/openai-go/option"
	oshared "github.com/openai/openai-go/shared"
)

// ProviderOptions configures a hosted model client.
type ProviderOptions struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIProvider talks to the Chat Completions API.
type OpenAIProvider struct {
	client openai.Client
}

// NewOpenAIProvider builds a client; an empty API key falls back to OPENAI_API_KEY.
func NewOpenAIProvider(opts ProviderOptions) *OpenAIProvider {
	var reqOpts []ooption.RequestOption
	if key := strings.TrimSpace(opts.APIKey); key != "" {
		reqOpts = append(reqOpts, ooption.WithAPIKey(key))
	}
	if u := strings.TrimSpace(opts.BaseURL); u != "" {
		reqOpts = append(reqOpts, ooption.WithBaseURL(u))
	}
	if opts.Timeout > 0 {
		reqOpts = append(reqOpts, ooption.WithRequestTimeout(opts.Timeout))
	}
	if opts.MaxRetries > 0 {
		reqOpts = append(reqOpts, ooption.WithMaxRetries(opts.MaxRetries))
	}
	return &OpenAIProvider{client: openai.NewClient(reqOpts...)}
}

// Complete sends the trimmed history with tools attached and parallel tool calls disabled.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	if strings.TrimSpace(in.Model) == "" {
		return ports.Completion{}, errors.New("missing model")
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(in.Model),
		Messages:    buildOpenAIMessages(in.System, in.Messages),
		Temperature: openai.Float(float64(opts.Temperature)),
	}
	if opts.MaxNewTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(opts.MaxNewTokens))
	}
	if len(in.Tools) > 0 {
		tools, err := buildOpenAITools(in.Tools)
		if err != nil {
			return ports.Completion{}, err
		}
		params.Tools = tools
		params.ParallelToolCalls = openai.Bool(opts.ParallelToolCalls)
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return ports.Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return ports.Completion{}, errors.New("model returned no choices")
	}

	msg := resp.Choices[0].Message
	out := ports.Completion{
		Text: msg.Content,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		args := json.RawMessage(strings.TrimSpace(tc.Function.Arguments))
		if len(args) == 0 {
			args = json.RawMessage("{}")
		}
		out.ToolCalls = append(out.ToolCalls, ports.ToolCall{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	return out, nil
}

func buildOpenAIMessages(system string, history []ports.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	if s := strings.TrimSpace(system); s != "" {
		out = append(out, openai.SystemMessage(s))
	}
	for _, m := range history {
		switch m.Role {
		case ports.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case ports.RoleHuman:
			out = append(out, openai.UserMessage(m.Content))
		case ports.RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		case ports.RoleAI:
			if !m.HasToolCalls() {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				asst.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		}
	}
	return out
}

func buildOpenAITools(specs []ports.ToolSpec) ([]openai.ChatCompletionToolParam, error) {
	out := make([]openai.ChatCompletionToolParam, 0, len(specs))
	for _, s := range specs {
		params := oshared.FunctionParameters{}
		if len(s.JSONSchema) > 0 {
			if err := json.Unmarshal(s.JSONSchema, &params); err != nil {
				return nil, fmt.Errorf("tool %s: invalid schema: %w", s.Name, err)
			}
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: oshared.FunctionDefinitionParam{
				Name:        s.Name,
				Description: openai.String(s.Description),
				Parameters:  params,
			},
		})
	}
	return out, nil
}

var _ ports.Provider = (*OpenAIProvider)(nil)
