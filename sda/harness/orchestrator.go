package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
	"time"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// State is a state of the agent loop.
type State string

const (
	AwaitingModel  State = "awaiting_model"
	ExecutingTools State = "executing_tools"
	Done           State = "done"
)

var (
	// ErrLoopExceeded ends a turn whose model keeps requesting tools past the round limit.
	ErrLoopExceeded = errors.New("tool round limit exceeded")
	// ErrStreamConsumed is yielded when a turn's event sequence is iterated twice.
	ErrStreamConsumed = errors.New("turn stream already consumed")
)

// ModelError wraps a failed model call. Nothing is appended for the failed step.
type ModelError struct {
	Err error
}

func (e *ModelError) Error() string { return "model call failed: " + e.Err.Error() }

func (e *ModelError) Unwrap() error { return e.Err }

// History is the thread state the loop reads and appends to.
type History interface {
	BeginTurn(ctx context.Context, threadID string) (release func(), err error)
	Append(threadID string, msg ports.Message) error
	Messages(threadID string) []ports.Message
}

// Policy holds the loop defaults; a Turn may override the budget, round limit and model.
type Policy struct {
	Model              string
	TokenBudget        int
	MaxToolRounds      int
	ToolTimeout        time.Duration
	Temperature        float32
	MaxNewTokens       int
	ParseTextToolCalls bool
}

func DefaultPolicy() *Policy {
	return &Policy{
		TokenBudget:   4000,
		MaxToolRounds: 10,
		ToolTimeout:   30 * time.Second,
		MaxNewTokens:  1024,
	}
}

// Turn carries the per-turn parameters. Zero values fall back to the Policy.
type Turn struct {
	ThreadID      string
	Input         string
	TokenBudget   int
	MaxToolRounds int
	Model         string
}

// Event reports one appended message. State is the loop state after the append.
type Event struct {
	Seq      int
	ThreadID string
	State    State
	Message  ports.Message
	Usage    *ports.Usage // model usage, set on AI messages
}

// TurnResult summarizes a turn from its events.
type TurnResult struct {
	ThreadID string
	Messages []ports.Message // appended during the turn, in order
	Final    *ports.Message
	Rounds   int
	Usage    ports.Usage
}

// Record folds one event into the result.
func (r *TurnResult) Record(ev Event) {
	r.ThreadID = ev.ThreadID
	r.Messages = append(r.Messages, ev.Message)
	if ev.Message.HasToolCalls() {
		r.Rounds++
	}
	if ev.State == Done {
		final := ev.Message
		r.Final = &final
	}
	if ev.Usage != nil {
		r.Usage.PromptTokens += ev.Usage.PromptTokens
		r.Usage.CompletionTokens += ev.Usage.CompletionTokens
		r.Usage.TotalTokens += ev.Usage.TotalTokens
	}
}

// Dependencies are the collaborators of an Orchestrator. Nil adapters default to no-ops.
type Dependencies struct {
	Provider   ports.Provider
	History    History
	Tools      []ports.Tool
	Builder    *PromptBuilder
	Window     *Window
	Guardrails *Guardrails
	Limiter    ports.RateLimiter
	Tracer     ports.Tracer
	Logger     zerolog.Logger
}

// Orchestrator runs the agent loop: ask the model, run the tools it requests
// one at a time, repeat until it answers without tool calls.
type Orchestrator struct {
	provider ports.Provider
	history  History
	tools    map[string]ports.Tool
	specs    []ports.ToolSpec
	builder  *PromptBuilder
	window   *Window
	guard    *Guardrails
	parser   *OutputParser
	limiter  ports.RateLimiter
	tracer   ports.Tracer
	logger   zerolog.Logger
	policy   Policy
	system   string
}

// NewOrchestrator wires the loop. Tool specs are fixed here and sent with every model call.
func NewOrchestrator(deps Dependencies, policy *Policy) (*Orchestrator, error) {
	if deps.Provider == nil {
		return nil, errors.New("orchestrator: provider is required")
	}
	if deps.History == nil {
		return nil, errors.New("orchestrator: history is required")
	}
	defaults := DefaultPolicy()
	if policy == nil {
		policy = defaults
	}
	p := *policy
	if p.TokenBudget <= 0 {
		p.TokenBudget = defaults.TokenBudget
	}
	if p.MaxToolRounds <= 0 {
		p.MaxToolRounds = defaults.MaxToolRounds
	}
	if p.ToolTimeout <= 0 {
		p.ToolTimeout = defaults.ToolTimeout
	}

	o := &Orchestrator{
		provider: deps.Provider,
		history:  deps.History,
		tools:    make(map[string]ports.Tool, len(deps.Tools)),
		builder:  deps.Builder,
		window:   deps.Window,
		guard:    deps.Guardrails,
		limiter:  deps.Limiter,
		tracer:   deps.Tracer,
		logger:   deps.Logger.With().Str("component", "harness").Logger(),
		policy:   p,
	}
	if o.builder == nil {
		o.builder = NewPromptBuilder("", 0)
	}
	if o.window == nil {
		o.window = NewWindow(nil)
	}
	if o.guard == nil {
		o.guard = NewGuardrails()
	}
	if o.limiter == nil {
		o.limiter = &noOpRateLimiter{}
	}
	if o.tracer == nil {
		o.tracer = &noOpTracer{}
	}

	names := make([]string, 0, len(deps.Tools))
	for _, t := range deps.Tools {
		if _, dup := o.tools[t.Name()]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate tool %q", t.Name())
		}
		o.tools[t.Name()] = t
		names = append(names, t.Name())
		if o.guard.Allowed(t.Name()) {
			o.specs = append(o.specs, ports.SpecOf(t))
		}
	}
	if p.ParseTextToolCalls {
		o.parser = NewOutputParser(names...)
	}
	o.system = o.builder.System()
	return o, nil
}

// System returns the system prompt sent with every model call.
func (o *Orchestrator) System() string { return o.system }

// Specs returns the tool specs offered to the model.
func (o *Orchestrator) Specs() []ports.ToolSpec { return o.specs }

// Stream runs one turn lazily. Each appended message is yielded as an event,
// starting with the human message. A failure is yielded once as the final
// element. The sequence can be iterated only once.
//
// If ctx is cancelled the tool call in flight still completes, the remaining
// calls of the same AI message are answered with an ExecutionFailed result,
// and no further model call is made. The same happens when the consumer stops
// iterating early, so the thread is always left with every call answered.
func (o *Orchestrator) Stream(ctx context.Context, turn Turn) iter.Seq2[Event, error] {
	var used atomic.Bool
	return func(yield func(Event, error) bool) {
		if used.Swap(true) {
			yield(Event{}, ErrStreamConsumed)
			return
		}
		turn = o.resolve(turn)
		if turn.ThreadID == "" {
			yield(Event{}, errors.New("turn has no thread id"))
			return
		}

		release, err := o.history.BeginTurn(ctx, turn.ThreadID)
		if err != nil {
			yield(Event{}, err)
			return
		}
		defer release()

		r := &turnRun{o: o, turn: turn, yield: yield}
		spanCtx, finish := o.tracer.StartSpan(ctx, "turn", map[string]any{
			"thread_id": turn.ThreadID,
			"model":     turn.Model,
		})
		err = r.run(spanCtx)
		finish(err)
		if err != nil {
			o.logger.Warn().Err(err).Str("thread_id", turn.ThreadID).Msg("turn failed")
			if !r.stopped {
				yield(Event{}, err)
			}
		}
	}
}

// Run drains Stream. The result holds every message appended before a failure.
func (o *Orchestrator) Run(ctx context.Context, turn Turn) (*TurnResult, error) {
	res := &TurnResult{ThreadID: turn.ThreadID}
	for ev, err := range o.Stream(ctx, turn) {
		if err != nil {
			return res, err
		}
		res.Record(ev)
	}
	return res, nil
}

func (o *Orchestrator) resolve(t Turn) Turn {
	if t.TokenBudget <= 0 {
		t.TokenBudget = o.policy.TokenBudget
	}
	if t.MaxToolRounds <= 0 {
		t.MaxToolRounds = o.policy.MaxToolRounds
	}
	if t.Model == "" {
		t.Model = o.policy.Model
	}
	return t
}

// turnRun is the state of one Stream iteration.
type turnRun struct {
	o       *Orchestrator
	turn    Turn
	yield   func(Event, error) bool
	seq     int
	stopped bool // consumer stopped iterating
}

// emit appends msg to the thread and, unless the consumer has gone, yields it.
func (r *turnRun) emit(state State, msg ports.Message, usage *ports.Usage) error {
	if err := r.o.history.Append(r.turn.ThreadID, msg); err != nil {
		return fmt.Errorf("append %s message: %w", msg.Role, err)
	}
	if r.stopped {
		return nil
	}
	r.seq++
	if !r.yield(Event{Seq: r.seq, ThreadID: r.turn.ThreadID, State: state, Message: msg, Usage: usage}, nil) {
		r.stopped = true
	}
	return nil
}

func (r *turnRun) run(ctx context.Context) error {
	if err := r.emit(AwaitingModel, ports.NewHuman(r.turn.Input), nil); err != nil {
		return err
	}

	rounds := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.stopped {
			return nil
		}

		completion, err := r.o.complete(ctx, r.turn)
		if err != nil {
			return err
		}

		calls := r.o.toolCalls(completion)
		if len(calls) == 0 {
			return r.emit(Done, ports.NewAI(completion.Text), completion.Usage)
		}
		if rounds >= r.turn.MaxToolRounds {
			return fmt.Errorf("%w: model still requested %d tool call(s) after %d rounds", ErrLoopExceeded, len(calls), rounds)
		}
		rounds++

		if err := r.emit(ExecutingTools, ports.NewAI(completion.Text, calls...), completion.Usage); err != nil {
			return err
		}
		if err := r.execute(ctx, calls); err != nil {
			return err
		}
	}
}

// execute runs calls sequentially in the order the model emitted them.
func (r *turnRun) execute(ctx context.Context, calls []ports.ToolCall) error {
	for i, call := range calls {
		state := ExecutingTools
		if i == len(calls)-1 {
			state = AwaitingModel
		}

		var msg ports.Message
		if ctx.Err() != nil || r.stopped {
			msg = ports.NewToolError(call, &ports.ToolError{Kind: ports.ToolExecutionFailed, Message: "cancelled before execution"})
		} else {
			msg = r.o.invoke(ctx, call)
		}
		if err := r.emit(state, msg, nil); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// complete trims the thread and asks the model for the next step.
func (o *Orchestrator) complete(ctx context.Context, turn Turn) (ports.Completion, error) {
	history := o.history.Messages(turn.ThreadID)
	msgs := make([]ports.Message, 0, len(history)+1)
	msgs = append(msgs, ports.NewSystem(o.system))
	msgs = append(msgs, history...)

	trimmed, err := o.window.Trim(msgs, turn.TokenBudget)
	if err != nil {
		return ports.Completion{}, err
	}
	if dropped := len(msgs) - len(trimmed); dropped > 0 {
		o.tracer.Event(ctx, "context_trimmed", map[string]any{
			"thread_id": turn.ThreadID,
			"dropped":   dropped,
			"budget":    turn.TokenBudget,
		})
	}

	release, err := o.limiter.Acquire(ctx, turn.Model)
	if err != nil {
		if ctx.Err() != nil {
			return ports.Completion{}, ctx.Err()
		}
		return ports.Completion{}, &ModelError{Err: err}
	}
	defer release()

	prompt := o.builder.Build(turn.Model, o.system, trimmed[1:], o.specs, map[string]string{
		"thread_id": turn.ThreadID,
	})
	ctx, finish := o.tracer.StartSpan(ctx, "model_call", map[string]any{
		"thread_id": turn.ThreadID,
		"messages":  len(prompt.Messages),
	})
	completion, err := o.provider.Complete(ctx, prompt, ports.Options{
		MaxNewTokens:      o.policy.MaxNewTokens,
		Temperature:       o.policy.Temperature,
		ParallelToolCalls: false,
	})
	finish(err)
	if err != nil {
		if ctx.Err() != nil {
			return ports.Completion{}, ctx.Err()
		}
		return ports.Completion{}, &ModelError{Err: err}
	}
	return completion, nil
}

// toolCalls returns the calls of a completion with IDs and arguments filled in.
func (o *Orchestrator) toolCalls(c ports.Completion) []ports.ToolCall {
	calls := c.ToolCalls
	if len(calls) == 0 && o.parser != nil {
		calls = o.parser.ParseToolCalls(c.Text)
	}
	if len(calls) == 0 {
		return nil
	}

	out := make([]ports.ToolCall, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, call := range calls {
		if call.ID == "" || seen[call.ID] {
			call.ID = "call_" + uuid.NewString()
		}
		seen[call.ID] = true
		if len(call.Args) == 0 {
			call.Args = json.RawMessage("{}")
		}
		out[i] = call
	}
	return out
}

// invoke executes one call and always returns a tool message, never an error.
// The query runs detached from ctx so cancellation does not interrupt it.
func (o *Orchestrator) invoke(ctx context.Context, call ports.ToolCall) (msg ports.Message) {
	ctx, finish := o.tracer.StartSpan(ctx, "tool_call", map[string]any{
		"tool":    call.Name,
		"call_id": call.ID,
	})
	var failure error
	defer func() {
		if p := recover(); p != nil {
			failure = fmt.Errorf("tool %s panicked: %v", call.Name, p)
			msg = ports.NewToolError(call, ports.ExecutionFailed(failure))
		}
		finish(failure)
	}()

	tool, terr := o.guard.ValidateToolCall(call, o.tools)
	if terr != nil {
		failure = terr
		return ports.NewToolError(call, terr)
	}

	toolCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.policy.ToolTimeout)
	defer cancel()

	out, err := tool.Invoke(toolCtx, call.Args)
	if err != nil {
		failure = err
		te := ports.AsToolError(err)
		o.logger.Debug().Str("tool", call.Name).Str("kind", string(te.Kind)).Msg(te.Message)
		return ports.NewToolError(call, te)
	}
	return ports.NewTool(call, out)
}
