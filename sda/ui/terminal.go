// Package ui renders the chat transcript to a terminal.
package ui

import (
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/pterm/pterm"

	"github.com/ZanzyTHEbar/sports-data-agent/sda/transcript"
)

// Options configures a Terminal.
type Options struct {
	ShowThoughtProcess bool
	WordWrap           int
	// Styled enables colors and the auto-detected markdown theme; turn it off
	// when the output is not a terminal.
	Styled bool
}

// Terminal prints transcript entries with pterm boxes for tool activity and
// glamour-rendered markdown for answers.
type Terminal struct {
	out io.Writer
	md  *glamour.TermRenderer

	mu   sync.Mutex
	show bool

	list func(items []pterm.BulletListItem) (string, error)
}

func NewTerminal(out io.Writer, opts Options) (*Terminal, error) {
	wrap := opts.WordWrap
	if wrap <= 0 {
		wrap = 100
	}
	style := glamour.WithStylePath("notty")
	if opts.Styled {
		style = glamour.WithAutoStyle()
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))
	if err != nil {
		return nil, err
	}
	return &Terminal{out: out, md: md, show: opts.ShowThoughtProcess, list: bulletList}, nil
}

// SetShowThoughtProcess toggles the tool call and tool output boxes. It only
// changes what is printed, never what the agent records.
func (t *Terminal) SetShowThoughtProcess(show bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.show = show
}

func (t *Terminal) ShowThoughtProcess() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.show
}

// Render prints one transcript entry.
func (t *Terminal) Render(role, content string, typ transcript.Type) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case typ.Thought() && !t.show:
		return
	case typ == transcript.ToolCall:
		t.box("Thought Process: Tool Call", pterm.FgYellow, content)
	case typ == transcript.ToolOutput:
		t.box("Thought Process: Tool Output", pterm.FgLightMagenta, content)
	case role == transcript.RoleUser:
		pterm.Fprintln(t.out, pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("You: ")+content)
	default:
		pterm.Fprintln(t.out, pterm.NewStyle(pterm.FgGreen, pterm.Bold).Sprint("Agent:"))
		pterm.Fprint(t.out, t.markdown(content))
	}
}

func (t *Terminal) box(title string, color pterm.Color, content string) {
	pterm.DefaultBox.
		WithWriter(t.out).
		WithTitle(pterm.NewStyle(color, pterm.Bold).Sprint(title)).
		WithPadding(1).
		Println(strings.TrimRight(t.markdown(content), "\n"))
}

func (t *Terminal) markdown(content string) string {
	out, err := t.md.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

// Error prints a failure of the agent so it is visible in the transcript.
func (t *Terminal) Error(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.error("An error occurred while processing the agent's response: " + err.Error())
}

func (t *Terminal) error(msg string) {
	pterm.Error.WithWriter(t.out).Println(msg)
}

// Welcome greets the logged-in user.
func (t *Terminal) Welcome(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pterm.Fprintln(t.out, pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Sports Data Agent"))
	if name != "" {
		pterm.Fprintln(t.out, "Welcome "+name)
	}
}

// Tables lists the queryable tables.
func (t *Terminal) Tables(names []string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	pterm.Fprintln(t.out, pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprint("Available Tables"))
	if len(names) == 0 {
		pterm.Fprintln(t.out, "No tables available.")
		return
	}
	items := make([]pterm.BulletListItem, 0, len(names))
	for _, n := range names {
		items = append(items, pterm.BulletListItem{Level: 0, Text: n})
	}
	list, err := t.list(items)
	if err != nil {
		t.error("could not render the table list: " + err.Error())
		for _, n := range names {
			pterm.Fprintln(t.out, "- "+n)
		}
		return
	}
	pterm.Fprintln(t.out, strings.TrimRight(list, "\n"))
}

func bulletList(items []pterm.BulletListItem) (string, error) {
	return pterm.DefaultBulletList.WithItems(items).Srender()
}
