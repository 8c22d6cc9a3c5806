package harness

import (
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/pkoukk/tiktoken-go"
	"github.com/rs/zerolog"
)

// messageOverhead approximates the per-message framing tokens of chat APIs.
const messageOverhead = 4

// TokenCounter estimates how many tokens a piece of text costs.
type TokenCounter interface {
	Count(text string) int
}

// HeuristicCounter assumes roughly four characters per token.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(s string) int {
	l := len(s)
	if l == 0 {
		return 0
	}
	return (l + 3) / 4
}

// TiktokenCounter counts with the BPE encoding of an OpenAI model.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the encoding for model, falling back to cl100k_base
// for model names tiktoken does not know.
func NewTiktokenCounter(model string) (*TiktokenCounter, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("load tiktoken encoding: %w", err)
		}
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(s string) int {
	if s == "" {
		return 0
	}
	return len(c.enc.Encode(s, nil, nil))
}

// NewTokenCounter returns the counter named by kind. An encoding that cannot be
// loaded degrades to the heuristic with a warning.
func NewTokenCounter(kind, model string, logger zerolog.Logger) TokenCounter {
	if strings.EqualFold(kind, "tiktoken") {
		c, err := NewTiktokenCounter(model)
		if err == nil {
			return c
		}
		logger.Warn().Err(err).Str("model", model).Msg("falling back to heuristic token counting")
	}
	return HeuristicCounter{}
}

// ContextError means the history cannot be fitted into the token budget
// without dropping the message the model has to answer.
type ContextError struct {
	Budget int
	Need   int
	Reason string
}

func (e *ContextError) Error() string {
	return fmt.Sprintf("context window: %s (needs %d tokens, budget %d)", e.Reason, e.Need, e.Budget)
}

// Window trims histories to a token budget.
type Window struct {
	counter TokenCounter
}

func NewWindow(counter TokenCounter) *Window {
	if counter == nil {
		counter = HeuristicCounter{}
	}
	return &Window{counter: counter}
}

// Cost is the estimated token cost of one message including its tool calls.
func (w *Window) Cost(m ports.Message) int {
	n := w.counter.Count(m.Content) + messageOverhead
	for _, c := range m.ToolCalls {
		n += w.counter.Count(c.Name) + w.counter.Count(string(c.Args))
	}
	return n
}

// Trim keeps the newest messages that fit in budget. A leading system message
// is always kept and counted. The result starts on the system message or a
// human message and ends on a human or tool message, so a tool result never
// appears without the AI message that requested it. It fails only when the
// system message or the latest message alone exceeds budget.
func (w *Window) Trim(history []ports.Message, budget int) ([]ports.Message, error) {
	if budget <= 0 {
		return nil, &ContextError{Budget: budget, Reason: "budget must be positive"}
	}

	var system []ports.Message
	rest := history
	if len(rest) > 0 && rest[0].Role == ports.RoleSystem {
		system, rest = rest[:1], rest[1:]
	}

	remaining := budget
	if len(system) > 0 {
		cost := w.Cost(system[0])
		if cost > budget {
			return nil, &ContextError{Budget: budget, Need: cost, Reason: "system message exceeds the budget"}
		}
		remaining -= cost
	}

	end := len(rest)
	for end > 0 && !endsExchange(rest[end-1].Role) {
		end--
	}
	rest = rest[:end]
	if len(rest) == 0 {
		return ports.CloneMessages(system), nil
	}

	if cost := w.Cost(rest[len(rest)-1]); cost > remaining {
		return nil, &ContextError{Budget: budget, Need: budget - remaining + cost, Reason: "latest message exceeds the budget"}
	}

	start, used := len(rest), 0
	for i := len(rest) - 1; i >= 0; i-- {
		cost := w.Cost(rest[i])
		if used+cost > remaining {
			break
		}
		used += cost
		start = i
	}
	// when even the current exchange does not fit whole, only the system
	// message survives and the model continues from it
	for start < len(rest) && rest[start].Role != ports.RoleHuman {
		start++
	}

	out := make([]ports.Message, 0, len(system)+len(rest)-start)
	out = append(out, ports.CloneMessages(system)...)
	out = append(out, ports.CloneMessages(rest[start:])...)
	return out, nil
}

func endsExchange(r ports.Role) bool {
	return r == ports.RoleHuman || r == ports.RoleTool
}
