package ui

import (
	"bytes"
	"errors"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/transcript"
)

func newTerminal(t *testing.T, show bool) (*Terminal, *bytes.Buffer) {
	t.Helper()
	pterm.DisableStyling()
	t.Cleanup(pterm.EnableStyling)

	var buf bytes.Buffer
	term, err := NewTerminal(&buf, Options{ShowThoughtProcess: show, WordWrap: 80})
	require.NoError(t, err)
	return term, &buf
}

func TestRenderEntries(t *testing.T) {
	term, buf := newTerminal(t, true)

	term.Render(transcript.RoleUser, "list all tables", transcript.Final)
	term.Render(transcript.RoleAssistant, "**Tool Called**: `sql_db_list_tables`", transcript.ToolCall)
	term.Render(transcript.RoleAssistant, "**Tool Output:**\n\n```\ngames, teams\n```", transcript.ToolOutput)
	term.Render(transcript.RoleAssistant, "There are **2** tables.", transcript.Final)

	out := buf.String()
	assert.Contains(t, out, "You: list all tables")
	assert.Contains(t, out, "Thought Process: Tool Call")
	assert.Contains(t, out, "sql_db_list_tables")
	assert.Contains(t, out, "Thought Process: Tool Output")
	assert.Contains(t, out, "games, teams")
	assert.Contains(t, out, "Agent:")
	assert.Contains(t, out, "tables.")
}

// TestThoughtToggleHidesOnlyToolActivity tests the show-thought-process switch
func TestThoughtToggleHidesOnlyToolActivity(t *testing.T) {
	term, buf := newTerminal(t, false)
	assert.False(t, term.ShowThoughtProcess())

	term.Render(transcript.RoleAssistant, "hidden call", transcript.ToolCall)
	term.Render(transcript.RoleAssistant, "hidden output", transcript.ToolOutput)
	assert.Empty(t, buf.String())

	term.Render(transcript.RoleAssistant, "visible answer", transcript.Final)
	assert.Contains(t, buf.String(), "visible answer")

	term.SetShowThoughtProcess(true)
	term.Render(transcript.RoleAssistant, "shown call", transcript.ToolCall)
	assert.Contains(t, buf.String(), "shown call")
}

func TestErrorAndTables(t *testing.T) {
	term, buf := newTerminal(t, true)

	term.Error(nil)
	assert.Empty(t, buf.String())

	term.Error(errors.New("model call failed: timeout"))
	assert.Contains(t, buf.String(), "model call failed: timeout")

	buf.Reset()
	term.Tables([]string{"games", "teams"})
	assert.Contains(t, buf.String(), "Available Tables")
	assert.Contains(t, buf.String(), "games")
	assert.Contains(t, buf.String(), "teams")

	buf.Reset()
	term.Tables(nil)
	assert.Contains(t, buf.String(), "No tables available.")

	buf.Reset()
	term.Welcome("John Smith")
	assert.Contains(t, buf.String(), "Welcome John Smith")
}

func TestTablesFallsBackWhenListFails(t *testing.T) {
	term, buf := newTerminal(t, true)
	term.list = func([]pterm.BulletListItem) (string, error) {
		return "", errors.New("bad theme")
	}

	term.Tables([]string{"games", "teams"})
	out := buf.String()
	assert.Contains(t, out, "could not render the table list: bad theme")
	assert.Contains(t, out, "- games")
	assert.Contains(t, out, "- teams")
}
