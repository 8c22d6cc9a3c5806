// Package thread keeps per-conversation message histories in memory.
package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/google/uuid"
)

const checkpointVersion = 1

var (
	// ErrProtocol rejects an append that would break the message protocol.
	ErrProtocol = errors.New("message protocol violation")
	// ErrUnknownThread is returned for thread IDs the store has never seen.
	ErrUnknownThread = errors.New("unknown thread")
)

// Thread is an append-only message history. Appends are serialized by mu; a
// turn holds the turn slot for its whole duration.
type Thread struct {
	id        string
	createdAt time.Time
	turn      chan struct{}

	mu       sync.Mutex
	messages []ports.Message
	pending  map[string]bool // tool call IDs still waiting for their result
	answered map[string]bool
}

func newThread(id string, createdAt time.Time) *Thread {
	return &Thread{
		id:        id,
		createdAt: createdAt,
		turn:      make(chan struct{}, 1),
		pending:   make(map[string]bool),
		answered:  make(map[string]bool),
	}
}

func (t *Thread) ID() string { return t.id }

func (t *Thread) CreatedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.createdAt
}

// Messages returns a copy of the history.
func (t *Thread) Messages() []ports.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ports.CloneMessages(t.messages)
}

func (t *Thread) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.messages)
}

func (t *Thread) append(msg ports.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.appendLocked(msg)
}

// appendLocked checks the message against the history and stores a copy.
func (t *Thread) appendLocked(msg ports.Message) error {
	switch msg.Role {
	case ports.RoleHuman:
	case ports.RoleAI:
		for _, c := range msg.ToolCalls {
			if c.ID == "" {
				return fmt.Errorf("%w: tool call %s has no id", ErrProtocol, c.Name)
			}
			if t.pending[c.ID] || t.answered[c.ID] {
				return fmt.Errorf("%w: tool call id %s reused", ErrProtocol, c.ID)
			}
		}
	case ports.RoleTool:
		if !t.pending[msg.ToolCallID] {
			if t.answered[msg.ToolCallID] {
				return fmt.Errorf("%w: tool call %s already answered", ErrProtocol, msg.ToolCallID)
			}
			return fmt.Errorf("%w: tool message references unknown call %q", ErrProtocol, msg.ToolCallID)
		}
	case ports.RoleSystem:
		return fmt.Errorf("%w: system messages are not stored in threads", ErrProtocol)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrProtocol, msg.Role)
	}

	msg = msg.Clone()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	for _, c := range msg.ToolCalls {
		t.pending[c.ID] = true
	}
	if msg.Role == ports.RoleTool {
		delete(t.pending, msg.ToolCallID)
		t.answered[msg.ToolCallID] = true
	}
	t.messages = append(t.messages, msg)
	return nil
}

// Store maps thread IDs to threads. Threads share nothing but the map lookup.
type Store struct {
	mu      sync.RWMutex
	threads map[string]*Thread
	now     func() time.Time
}

func NewStore() *Store {
	return &Store{threads: make(map[string]*Thread), now: time.Now}
}

// GetOrCreate returns the thread for id, creating an empty one on first use.
func (s *Store) GetOrCreate(id string) *Thread {
	s.mu.RLock()
	t, ok := s.threads[id]
	s.mu.RUnlock()
	if ok {
		return t
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.threads[id]; ok {
		return t
	}
	t = newThread(id, s.now().UTC())
	s.threads[id] = t
	return t
}

// Get returns the thread for id without creating it.
func (s *Store) Get(id string) (*Thread, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.threads[id]
	return t, ok
}

// IDs returns the known thread IDs in lexical order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.threads))
	for id := range s.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Append adds msg to the thread. It is the only way history changes.
func (s *Store) Append(id string, msg ports.Message) error {
	return s.GetOrCreate(id).append(msg)
}

// Messages returns a copy of the history of id; nil for an unknown thread.
func (s *Store) Messages(id string) []ports.Message {
	t, ok := s.Get(id)
	if !ok {
		return nil
	}
	return t.Messages()
}

// BeginTurn takes the turn slot of the thread, waiting for a running turn to
// finish. The returned release must be called exactly once.
func (s *Store) BeginTurn(ctx context.Context, id string) (func(), error) {
	t := s.GetOrCreate(id)
	select {
	case t.turn <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for turn on thread %s: %w", id, ctx.Err())
	}
	var once sync.Once
	return func() { once.Do(func() { <-t.turn }) }, nil
}

type checkpoint struct {
	Version   int             `json:"version"`
	ThreadID  string          `json:"thread_id"`
	CreatedAt time.Time       `json:"created_at"`
	Messages  []ports.Message `json:"messages"`
}

// Checkpoint serializes the thread into an opaque blob.
func (s *Store) Checkpoint(id string) ([]byte, error) {
	t, ok := s.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownThread, id)
	}
	t.mu.Lock()
	cp := checkpoint{
		Version:   checkpointVersion,
		ThreadID:  t.id,
		CreatedAt: t.createdAt,
		Messages:  ports.CloneMessages(t.messages),
	}
	t.mu.Unlock()

	blob, err := json.Marshal(cp)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint of %s: %w", id, err)
	}
	return blob, nil
}

// Restore rebuilds a thread from a checkpoint blob and installs it in the store,
// replacing the history of an existing thread with the same ID. The history is
// replayed through the append checks, so a corrupt blob is rejected whole.
func (s *Store) Restore(blob []byte) (*Thread, error) {
	var cp checkpoint
	if err := json.Unmarshal(blob, &cp); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if cp.Version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version %d", cp.Version)
	}
	if cp.ThreadID == "" {
		return nil, errors.New("checkpoint has no thread id")
	}

	replay := newThread(cp.ThreadID, cp.CreatedAt)
	for i, m := range cp.Messages {
		if err := replay.appendLocked(m); err != nil {
			return nil, fmt.Errorf("checkpoint message %d: %w", i, err)
		}
	}

	t := s.GetOrCreate(cp.ThreadID)
	t.mu.Lock()
	t.createdAt = replay.createdAt
	t.messages = replay.messages
	t.pending = replay.pending
	t.answered = replay.answered
	t.mu.Unlock()
	return t, nil
}
