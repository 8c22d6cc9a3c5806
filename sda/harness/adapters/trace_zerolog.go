package adapters

import (
	"context"
	"time"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/rs/zerolog"
)

type spanKey struct{}

// ZerologTracer writes span start/end and events as structured log lines.
type ZerologTracer struct {
	logger zerolog.Logger
}

func NewZerologTracer(logger zerolog.Logger) *ZerologTracer {
	return &ZerologTracer{logger: logger}
}

// StartSpan logs the span start at debug level and returns a finisher that logs
// its duration, at error level when err is non-nil.
func (t *ZerologTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	lc := t.spanLogger(ctx).With().Str("span", name)
	for k, v := range attrs {
		lc = lc.Interface(k, v)
	}
	span := lc.Logger()
	ctx = context.WithValue(ctx, spanKey{}, span)

	start := time.Now()
	span.Debug().Msg("span start")

	return ctx, func(err error) {
		ev := span.Debug()
		if err != nil {
			ev = span.Warn().Err(err)
		}
		ev.Dur("duration", time.Since(start)).Msg("span end")
	}
}

// Event logs name with attrs under the innermost span of ctx.
func (t *ZerologTracer) Event(ctx context.Context, name string, attrs map[string]any) {
	l := t.spanLogger(ctx)
	ev := l.Debug()
	for k, v := range attrs {
		ev = ev.Interface(k, v)
	}
	ev.Str("event", name).Send()
}

func (t *ZerologTracer) spanLogger(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(spanKey{}).(zerolog.Logger); ok {
		return l
	}
	return t.logger
}

var _ ports.Tracer = (*ZerologTracer)(nil)
