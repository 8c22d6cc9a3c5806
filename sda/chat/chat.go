// Package chat runs authenticated conversation turns and forwards every step
// of the agent to a display.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/auth"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/harness"
	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/thread"
	"github.com/ZanzyTHEbar/sports-data-agent/sda/transcript"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrEmptyMessage     = errors.New("empty message")
)

// Display receives rendered transcript entries.
type Display interface {
	Render(role, content string, t transcript.Type)
	Error(err error)
}

// Agent runs one turn as a stream of events.
type Agent interface {
	Stream(ctx context.Context, turn harness.Turn) iter.Seq2[harness.Event, error]
}

// Service connects the agent to a display for one authenticated session.
type Service struct {
	agent       Agent
	store       *thread.Store
	gate        auth.Gate
	display     Display
	checkpoints ports.CheckpointStore // optional
	logger      zerolog.Logger

	mu       sync.Mutex
	restored map[string]bool
}

// Config holds the collaborators of a Service. Checkpoints may be nil.
type Config struct {
	Agent       Agent
	Store       *thread.Store
	Gate        auth.Gate
	Display     Display
	Checkpoints ports.CheckpointStore
	Logger      zerolog.Logger
}

func NewService(cfg Config) *Service {
	return &Service{
		agent:       cfg.Agent,
		store:       cfg.Store,
		gate:        cfg.Gate,
		display:     cfg.Display,
		checkpoints: cfg.Checkpoints,
		logger:      cfg.Logger.With().Str("component", "chat").Logger(),
		restored:    make(map[string]bool),
	}
}

// Send runs one turn for text on threadID. Every appended message is rendered
// as it happens; a failure is shown on the display and returned.
func (s *Service) Send(ctx context.Context, threadID, text string) (*harness.TurnResult, error) {
	if s.gate.Status() != auth.StatusSuccess {
		return nil, ErrNotAuthenticated
	}
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}
	if err := s.restore(ctx, threadID); err != nil {
		s.display.Error(err)
		return nil, err
	}

	res := &harness.TurnResult{ThreadID: threadID}
	var turnErr error
	for ev, err := range s.agent.Stream(ctx, harness.Turn{ThreadID: threadID, Input: text}) {
		if err != nil {
			turnErr = err
			break
		}
		res.Record(ev)
		e := transcript.Render(ev.Message)
		s.display.Render(e.Role, e.Content, e.Type)
	}

	// partial turns are checkpointed too; the thread is consistent either way
	if len(res.Messages) > 0 {
		s.save(ctx, threadID)
	}
	if turnErr != nil {
		s.display.Error(turnErr)
		return res, turnErr
	}
	return res, nil
}

// Replay renders the stored history of threadID, restoring it from the
// checkpoint store on first access.
func (s *Service) Replay(ctx context.Context, threadID string) ([]transcript.Entry, error) {
	if s.gate.Status() != auth.StatusSuccess {
		return nil, ErrNotAuthenticated
	}
	if err := s.restore(ctx, threadID); err != nil {
		return nil, err
	}
	entries := transcript.RenderAll(s.store.Messages(threadID))
	for _, e := range entries {
		s.display.Render(e.Role, e.Content, e.Type)
	}
	return entries, nil
}

// Reset forgets the durable checkpoint of threadID. The in-memory thread is
// kept until the process exits.
func (s *Service) Reset(ctx context.Context, threadID string) error {
	if s.checkpoints == nil {
		return nil
	}
	if err := s.checkpoints.Delete(ctx, threadID); err != nil {
		return fmt.Errorf("delete checkpoint of %s: %w", threadID, err)
	}
	return nil
}

func (s *Service) restore(ctx context.Context, threadID string) error {
	if s.checkpoints == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restored[threadID] {
		return nil
	}

	blob, ok, err := s.checkpoints.Load(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load checkpoint of %s: %w", threadID, err)
	}
	if ok {
		t, err := s.store.Restore(blob)
		if err != nil {
			return fmt.Errorf("restore thread %s: %w", threadID, err)
		}
		s.logger.Info().Str("thread_id", threadID).Int("messages", t.Len()).Msg("thread restored")
	}
	s.restored[threadID] = true
	return nil
}

func (s *Service) save(ctx context.Context, threadID string) {
	if s.checkpoints == nil {
		return
	}
	blob, err := s.store.Checkpoint(threadID)
	if err == nil {
		err = s.checkpoints.Save(context.WithoutCancel(ctx), threadID, blob)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("thread_id", threadID).Msg("checkpoint not saved")
	}
}
