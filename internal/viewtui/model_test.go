package viewtui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/stream"
	"github.com/overseer-cli/overseer/internal/transcript"
)

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(msgType string, payload any) error {
	f.sent = append(f.sent, msgType)
	return nil
}

func (f *fakeSender) Status() string { return "open" }

func sized(t *testing.T, m Model) Model {
	t.Helper()
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func textEntry(source, text string) transcript.Entry {
	evType := stream.EventAssistant
	if source == transcript.SourceUser {
		evType = stream.EventUser
	}
	return transcript.Entry{
		Source: source,
		Event: stream.ClaudeEvent{
			Type: evType,
			Message: &stream.Message{
				Content: stream.MessageContent{{Type: stream.BlockText, Text: text}},
			},
		},
	}
}

func TestSnapshotReplacesContent(t *testing.T) {
	m := sized(t, NewModel("s1", &fakeSender{}))

	first := &hub.SessionSnapshot{
		SessionID: "s1",
		Messages:  []transcript.Entry{textEntry(transcript.SourceUser, "old question")},
	}
	updated, _ := m.Update(SnapshotMsg{Snapshot: first})
	m = updated.(Model)
	if !strings.Contains(m.View(), "old question") {
		t.Fatalf("view missing first snapshot content")
	}

	second := &hub.SessionSnapshot{
		SessionID: "s1",
		Messages:  []transcript.Entry{textEntry(transcript.SourceAgent, "fresh answer")},
	}
	updated, _ = m.Update(SnapshotMsg{Snapshot: second})
	m = updated.(Model)

	view := m.View()
	if strings.Contains(view, "old question") {
		t.Fatalf("stale content survived snapshot replacement")
	}
	if !strings.Contains(view, "fresh answer") {
		t.Fatalf("view missing replacement snapshot content")
	}
}

func TestEnterSendsUserMessage(t *testing.T) {
	sender := &fakeSender{}
	m := sized(t, NewModel("s1", sender))

	for _, r := range "hello" {
		updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
		m = updated.(Model)
	}
	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m = updated.(Model)

	if len(sender.sent) != 1 || sender.sent[0] != hub.MsgUserMessage {
		t.Fatalf("sent = %v, want one user_message", sender.sent)
	}
	if m.input.Value() != "" {
		t.Fatalf("input not cleared after send")
	}
}

func TestEnterWithEmptyInputSendsNothing(t *testing.T) {
	sender := &fakeSender{}
	m := sized(t, NewModel("s1", sender))

	updated, _ := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	_ = updated

	if len(sender.sent) != 0 {
		t.Fatalf("sent = %v, want nothing for empty input", sender.sent)
	}
}

func TestStatusLineShowsRuntimeAndQueue(t *testing.T) {
	m := sized(t, NewModel("s1", &fakeSender{}))
	updated, _ := m.Update(ConnStatusMsg{Status: "open"})
	m = updated.(Model)

	snap := &hub.SessionSnapshot{
		SessionID: "s1",
		Runtime: hub.SessionRuntime{
			Phase:    hub.PhaseRunning,
			Activity: hub.ActivityWorking,
		},
		QueuedMessages: []transcript.QueuedMessage{{Text: "next"}},
	}
	updated, _ = m.Update(SnapshotMsg{Snapshot: snap})
	m = updated.(Model)

	view := m.View()
	for _, want := range []string{"conn: open", "phase: running", "activity: working", "queued: 1"} {
		if !strings.Contains(view, want) {
			t.Fatalf("view missing %q", want)
		}
	}
}

func TestRenderEntryToolUse(t *testing.T) {
	entry := transcript.Entry{
		Source: transcript.SourceAgent,
		Event: stream.ClaudeEvent{
			Type: stream.EventContentBlockStart,
			ContentBlock: &stream.ContentBlock{
				Type:  stream.BlockToolUse,
				Name:  "Bash",
				Input: []byte(`{"command":"ls"}`),
			},
		},
	}
	lines := renderEntry(&entry, 80)
	if len(lines) < 2 {
		t.Fatalf("renderEntry lines = %v, want label + body", lines)
	}
	if !strings.Contains(lines[0], "Bash") {
		t.Fatalf("label = %q, want tool name", lines[0])
	}
}
