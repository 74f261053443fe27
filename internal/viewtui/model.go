// Package viewtui renders a live session transcript in the terminal. It is
// the attach command's UI: snapshots arrive through the reconnecting
// transport and fully replace the displayed state.
package viewtui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"

	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/stream"
	"github.com/overseer-cli/overseer/internal/transcript"
)

// Sender is the outbound half of the transport the viewer talks through.
type Sender interface {
	Send(msgType string, payload any) error
	Status() string
}

// Messages injected into the program from the transport callbacks.
type (
	// SnapshotMsg carries a complete replacement of the session state.
	SnapshotMsg struct{ Snapshot *hub.SessionSnapshot }
	// ConnStatusMsg reports a transport state transition.
	ConnStatusMsg struct{ Status string }
	// ServerErrorMsg surfaces an error message from the daemon.
	ServerErrorMsg struct{ Error string }
)

// Model is the bubbletea model for the session viewer.
type Model struct {
	sessionID string
	sender    Sender

	width  int
	height int
	ready  bool

	view     viewport.Model
	input    textinput.Model
	snapshot *hub.SessionSnapshot
	connStat string
	lastErr  string
}

// NewModel creates a viewer for one session.
func NewModel(sessionID string, sender Sender) Model {
	input := textinput.New()
	input.Placeholder = "message the agent (enter to send)"
	input.Prompt = "> "
	input.Focus()

	return Model{
		sessionID: sessionID,
		sender:    sender,
		input:     input,
		connStat:  "connecting",
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		bodyHeight := msg.Height - 3 // header, status bar, input line
		if bodyHeight < 1 {
			bodyHeight = 1
		}
		if !m.ready {
			m.view = viewport.New(msg.Width, bodyHeight)
			m.ready = true
		} else {
			m.view.Width = msg.Width
			m.view.Height = bodyHeight
		}
		m.refreshContent()
		return m, nil

	case SnapshotMsg:
		m.snapshot = msg.Snapshot
		m.lastErr = ""
		m.refreshContent()
		m.view.GotoBottom()
		return m, nil

	case ConnStatusMsg:
		m.connStat = msg.Status
		return m, nil

	case ServerErrorMsg:
		m.lastErr = msg.Error
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			if err := m.sender.Send(hub.MsgUserMessage, hub.WireUserMessage{
				SessionID: m.sessionID,
				Text:      text,
			}); err != nil {
				m.lastErr = err.Error()
			}
			return m, nil
		case "pgup":
			m.view.HalfViewUp()
			return m, nil
		case "pgdown":
			m.view.HalfViewDown()
			return m, nil
		}
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.view, cmd = m.view.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	var b strings.Builder
	b.WriteString(m.headerLine())
	b.WriteString("\n")
	b.WriteString(m.view.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	return b.String()
}

func (m *Model) headerLine() string {
	title := fmt.Sprintf("overseer session %s", m.sessionID)
	return headerStyle.Width(m.width).Render(ansi.Truncate(title, m.width, "…"))
}

func (m *Model) statusLine() string {
	parts := []string{"conn: " + m.connStat}
	if m.snapshot != nil {
		rt := m.snapshot.Runtime
		parts = append(parts, "phase: "+rt.Phase, "activity: "+rt.Activity)
		if n := len(m.snapshot.QueuedMessages); n > 0 {
			parts = append(parts, fmt.Sprintf("queued: %d", n))
		}
	}
	if m.lastErr != "" {
		parts = append(parts, errorStyle.Render("error: "+m.lastErr))
	}
	line := strings.Join(parts, "  |  ")
	return statusBarStyle.Width(m.width).Render(ansi.Truncate(line, m.width, "…"))
}

// refreshContent rebuilds the viewport from the current snapshot.
func (m *Model) refreshContent() {
	if !m.ready {
		return
	}
	if m.snapshot == nil {
		m.view.SetContent(dimStyle.Render("waiting for snapshot..."))
		return
	}

	width := m.view.Width
	var lines []string
	for i := range m.snapshot.Messages {
		lines = append(lines, renderEntry(&m.snapshot.Messages[i], width)...)
	}
	for _, q := range m.snapshot.QueuedMessages {
		lines = append(lines, queuedStyle.Render("[queued] ")+textStyle.Render(q.Text))
	}
	if p := m.snapshot.PendingRequest; p != nil {
		lines = append(lines, pendingStyle.Render(
			fmt.Sprintf("[awaiting approval] %s (request %s)", p.ToolName, p.RequestID)))
	}
	if len(lines) == 0 {
		lines = append(lines, dimStyle.Render("(empty transcript)"))
	}
	m.view.SetContent(strings.Join(lines, "\n"))
}

// renderEntry formats one transcript entry as wrapped terminal lines.
func renderEntry(e *transcript.Entry, width int) []string {
	label, body := entryLabelAndBody(e)
	if body == "" && label == "" {
		return nil
	}
	wrapped := ansi.Hardwrap(body, max(width-2, 20), true)
	out := []string{label}
	for _, line := range strings.Split(wrapped, "\n") {
		out = append(out, "  "+line)
	}
	return out
}

// entryLabelAndBody picks the label style and visible text for an entry.
func entryLabelAndBody(e *transcript.Entry) (string, string) {
	ev := &e.Event
	switch ev.Type {
	case stream.EventUser:
		return userLabelStyle.Render("user"), textStyle.Render(messageText(ev.Message))
	case stream.EventAssistant:
		return agentLabelStyle.Render("claude"), textStyle.Render(messageText(ev.Message))
	case stream.EventContentBlockStart:
		if ev.ContentBlock == nil {
			return "", ""
		}
		switch ev.ContentBlock.Type {
		case stream.BlockToolUse:
			return toolLabelStyle.Render("tool: " + ev.ContentBlock.Name),
				dimStyle.Render(compactJSON(ev.ContentBlock.Input))
		case stream.BlockToolResult:
			return toolLabelStyle.Render("tool result"),
				dimStyle.Render(compactJSON(ev.ContentBlock.Content))
		case stream.BlockThinking:
			return thinkingStyle.Render("thinking"),
				thinkingStyle.Render(ev.ContentBlock.Thinking)
		}
		return "", ""
	case stream.EventResult:
		return agentLabelStyle.Render("result"), textStyle.Render(ev.ResultText)
	default:
		return "", ""
	}
}

func messageText(msg *stream.Message) string {
	if msg == nil {
		return ""
	}
	var parts []string
	for _, block := range msg.Content {
		switch block.Type {
		case stream.BlockText:
			if block.Text != "" {
				parts = append(parts, block.Text)
			}
		case stream.BlockToolResult:
			parts = append(parts, "(tool result)")
		case stream.BlockImage:
			parts = append(parts, "(image)")
		}
	}
	return strings.Join(parts, "\n")
}

func compactJSON(raw []byte) string {
	const maxLen = 200
	s := strings.TrimSpace(string(raw))
	if len(s) > maxLen {
		s = s[:maxLen] + "…"
	}
	return s
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
