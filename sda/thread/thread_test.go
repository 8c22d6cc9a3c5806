package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	ports "github.com/ZanzyTHEbar/sports-data-agent/sda/harness/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(id string) (ports.Message, ports.Message) {
	call := ports.ToolCall{ID: id, Name: "sql_db_list_tables", Args: json.RawMessage(`{}`)}
	return ports.NewAI("", call), ports.NewTool(call, "teams, games")
}

func TestAppendAssignsIDs(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Append("t1", ports.NewHuman("hi")))

	msgs := s.Messages("t1")
	require.Len(t, msgs, 1)
	assert.NotEmpty(t, msgs[0].ID)
	assert.False(t, msgs[0].CreatedAt.IsZero())
	assert.Nil(t, s.Messages("missing"))
}

// TestReferentialIntegrity tests that tool results must answer an earlier call exactly once
func TestReferentialIntegrity(t *testing.T) {
	s := NewStore()
	ai, tool := exchange("call_1")

	err := s.Append("t1", tool)
	assert.ErrorIs(t, err, ErrProtocol, "result before its call")

	require.NoError(t, s.Append("t1", ports.NewHuman("list all tables")))
	require.NoError(t, s.Append("t1", ai))
	require.NoError(t, s.Append("t1", tool))
	assert.ErrorIs(t, s.Append("t1", tool), ErrProtocol, "answered twice")
	assert.ErrorIs(t, s.Append("t1", ai), ErrProtocol, "call id reused")

	// calls of another thread do not count
	assert.ErrorIs(t, s.Append("t2", tool), ErrProtocol)

	assert.ErrorIs(t, s.Append("t1", ports.NewSystem("sys")), ErrProtocol)
	noID := ports.NewAI("", ports.ToolCall{Name: "sql_db_query"})
	assert.ErrorIs(t, s.Append("t1", noID), ErrProtocol)

	assert.Len(t, s.Messages("t1"), 3)
}

func TestMessagesReturnsCopy(t *testing.T) {
	s := NewStore()
	ai, _ := exchange("call_1")
	require.NoError(t, s.Append("t1", ai))

	msgs := s.Messages("t1")
	msgs[0].Content = "changed"
	msgs[0].ToolCalls[0].Name = "changed"

	again := s.Messages("t1")
	assert.Equal(t, "", again[0].Content)
	assert.Equal(t, "sql_db_list_tables", again[0].ToolCalls[0].Name)
}

// TestThreadsAreIndependent tests interleaved appends on different threads
func TestThreadsAreIndependent(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for _, id := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 50 {
				ai, tool := exchange(fmt.Sprintf("%s_%d", id, i))
				assert.NoError(t, s.Append(id, ports.NewHuman(fmt.Sprintf("%s %d", id, i))))
				assert.NoError(t, s.Append(id, ai))
				assert.NoError(t, s.Append(id, tool))
			}
		}()
	}
	wg.Wait()

	for _, id := range []string{"alice", "bob"} {
		msgs := s.Messages(id)
		require.Len(t, msgs, 150)
		for i := 0; i < len(msgs); i += 3 {
			assert.Equal(t, fmt.Sprintf("%s %d", id, i/3), msgs[i].Content)
			assert.Equal(t, msgs[i+1].ToolCalls[0].ID, msgs[i+2].ToolCallID)
		}
	}
	assert.Equal(t, []string{"alice", "bob"}, s.IDs())
}

func TestBeginTurnSerializes(t *testing.T) {
	s := NewStore()
	release, err := s.BeginTurn(context.Background(), "t1")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.BeginTurn(ctx, "t1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	other, err := s.BeginTurn(context.Background(), "t2")
	require.NoError(t, err, "other threads are not blocked")
	other()

	release()
	release() // idempotent
	again, err := s.BeginTurn(context.Background(), "t1")
	require.NoError(t, err)
	again()
}

// TestCheckpointRoundTrip tests that restore reproduces the history exactly
func TestCheckpointRoundTrip(t *testing.T) {
	s := NewStore()
	call := ports.ToolCall{ID: "call_1", Name: "sql_db_query", Args: json.RawMessage(`{"query":"SELECT * FROM nonexistent"}`)}
	require.NoError(t, s.Append("t1", ports.NewHuman("how many teams?")))
	require.NoError(t, s.Append("t1", ports.NewAI("checking", call)))
	require.NoError(t, s.Append("t1", ports.NewToolError(call, ports.ExecutionFailed(errors.New("no such table: nonexistent")))))
	require.NoError(t, s.Append("t1", ports.NewAI("There is no such table.")))

	blob, err := s.Checkpoint("t1")
	require.NoError(t, err)

	fresh := NewStore()
	th, err := fresh.Restore(blob)
	require.NoError(t, err)
	assert.Equal(t, "t1", th.ID())

	orig, _ := s.Get("t1")
	assert.Equal(t, orig.CreatedAt(), th.CreatedAt())
	assert.Equal(t, s.Messages("t1"), fresh.Messages("t1"))

	again, err := fresh.Checkpoint("t1")
	require.NoError(t, err)
	assert.JSONEq(t, string(blob), string(again))

	// the restored thread keeps enforcing the protocol
	_, tool := exchange("call_1")
	assert.ErrorIs(t, fresh.Append("t1", tool), ErrProtocol)
}

func TestRestoreRejectsBadBlobs(t *testing.T) {
	s := NewStore()

	_, err := s.Restore([]byte("not json"))
	assert.Error(t, err)

	_, err = s.Restore([]byte(`{"version":2,"thread_id":"t1"}`))
	assert.ErrorContains(t, err, "version")

	orphan := `{"version":1,"thread_id":"t1","messages":[{"role":"tool","content":"x","tool_call_id":"nope"}]}`
	_, err = s.Restore([]byte(orphan))
	assert.ErrorIs(t, err, ErrProtocol)
	_, ok := s.Get("t1")
	assert.False(t, ok, "a rejected blob leaves the store untouched")

	_, err = s.Checkpoint("missing")
	assert.ErrorIs(t, err, ErrUnknownThread)
}
