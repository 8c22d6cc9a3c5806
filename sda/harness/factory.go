package harness

import (
	"context"
	"fmt"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/config"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/harness/adapters"
	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/harness/tools"
	"github.com/rs/zerolog"
)

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func NewFactory(cfg *config.Config, logger zerolog.Logger) *Factory {
	return &Factory{cfg: cfg, logger: logger}
}

// CreateOrchestrator wires the loop around provider, history and the SQL toolkit over src.
func (f *Factory) CreateOrchestrator(provider ports.Provider, history History, src tools.Source) (*Orchestrator, error) {
	h := f.cfg.Harness
	return NewOrchestrator(Dependencies{
		Provider:   provider,
		History:    history,
		Tools:      f.CreateToolkit(src),
		Builder:    NewPromptBuilder(h.Dialect, h.TopK),
		Window:     NewWindow(NewTokenCounter(h.Tokenizer, f.cfg.Model.Name, f.logger)),
		Guardrails: NewGuardrails(h.AllowedTools...),
		Limiter:    f.createRateLimiter(),
		Tracer:     f.createTracer(),
		Logger:     f.logger,
	}, f.CreatePolicy())
}

// CreateProvider builds the model client named by model.provider.
func (f *Factory) CreateProvider() (ports.Provider, error) {
	m := f.cfg.Model
	opts := adapters.ProviderOptions{APIKey: m.APIKey, BaseURL: m.BaseURL, Timeout: m.Timeout}
	switch m.Provider {
	case "openai":
		return adapters.NewOpenAIProvider(opts), nil
	case "anthropic":
		return adapters.NewAnthropicProvider(opts), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", m.Provider)
	}
}

// CreateToolkit returns the SQL tools over src, sharing the schema cache.
func (f *Factory) CreateToolkit(src tools.Source) []ports.Tool {
	t := f.cfg.Tools
	return tools.NewToolkit(src, f.createCache(), tools.Options{
		MaxRows:         t.MaxRows,
		SampleRows:      t.SampleRows,
		MaxCellSize:     t.MaxCellSize,
		CacheTTLSeconds: f.cfg.Harness.CacheTTLSeconds,
	})
}

func (f *Factory) createCache() ports.Cache {
	if !f.cfg.Harness.CacheEnabled {
		return &noOpCache{}
	}
	return adapters.NewLRUCache(f.cfg.Harness.CacheCapacity)
}

func (f *Factory) createRateLimiter() ports.RateLimiter {
	h := f.cfg.Harness
	if !h.RateLimitEnabled {
		return &noOpRateLimiter{}
	}
	return adapters.NewTokenBucket(h.RateLimitCapacity, h.RateLimitRefillRate)
}

func (f *Factory) createTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}
	return adapters.NewZerologTracer(f.logger)
}

// CreatePolicy creates a policy from config with validation.
func (f *Factory) CreatePolicy() *Policy {
	h := f.cfg.Harness
	policy := &Policy{
		Model:              f.cfg.Model.Name,
		TokenBudget:        h.TokenBudget,
		MaxToolRounds:      h.MaxToolRounds,
		ToolTimeout:        h.ToolTimeout,
		Temperature:        f.cfg.Model.Temperature,
		MaxNewTokens:       f.cfg.Model.MaxTokens,
		ParseTextToolCalls: h.ParseTextToolCalls,
	}

	if policy.MaxToolRounds > 50 {
		policy.MaxToolRounds = 50
		f.logger.Warn().Int("max_tool_rounds", h.MaxToolRounds).Msg("MaxToolRounds clamped to maximum of 50")
	}
	if policy.TokenBudget < 256 {
		policy.TokenBudget = 256
		f.logger.Warn().Int("token_budget", h.TokenBudget).Msg("TokenBudget clamped to minimum of 256")
	}
	return policy
}

// noOpCache implements Cache with no-op behavior for a disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

var (
	_ ports.Cache       = (*noOpCache)(nil)
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
)
