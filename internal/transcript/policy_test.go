package transcript

import (
	"testing"
	"time"

	"github.com/overseer-cli/overseer/internal/stream"
)

func userEvent(text string) stream.ClaudeEvent {
	return stream.ClaudeEvent{
		Type: stream.EventUser,
		Message: &stream.Message{
			Role:    "user",
			Content: stream.MessageContent{{Type: stream.BlockText, Text: text}},
		},
	}
}

func assistantEvent(blocks ...stream.ContentBlock) stream.ClaudeEvent {
	return stream.ClaudeEvent{
		Type:    stream.EventAssistant,
		Message: &stream.Message{Role: "assistant", Content: stream.MessageContent(blocks)},
	}
}

func entryFor(source string, ev stream.ClaudeEvent) Entry {
	return Entry{ID: "e", Source: source, Event: ev, Timestamp: time.Now()}
}

func TestIsInternalText(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"<system-reminder>do not show this", true},
		{"  <command-name>ls</command-name>", true},
		{"<local-command-stdout>out</local-command-stdout>", true},
		{"Caveat: the messages below were generated by the user while running a local command", true},
		{"regular question about <system- markers", false},
		{"hello", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsInternalText(tc.text); got != tc.want {
			t.Fatalf("IsInternalText(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestIncludeUserMessage(t *testing.T) {
	if !Include(nil, userEvent("hello")) {
		t.Fatalf("plain user text excluded, want included")
	}
	if Include(nil, userEvent("<system-reminder>injected")) {
		t.Fatalf("system-injected user text included, want excluded")
	}
	if Include(nil, stream.ClaudeEvent{Type: stream.EventUser}) {
		t.Fatalf("user event without message included, want excluded")
	}

	toolResult := stream.ClaudeEvent{
		Type: stream.EventUser,
		Message: &stream.Message{
			Role: "user",
			Content: stream.MessageContent{
				{Type: stream.BlockText, Text: "<system-reminder>x"},
				{Type: stream.BlockToolResult, ToolUseID: "tu-1"},
			},
		},
	}
	if !Include(nil, toolResult) {
		t.Fatalf("user message with tool result excluded, want included")
	}

	image := stream.ClaudeEvent{
		Type: stream.EventUser,
		Message: &stream.Message{
			Role:    "user",
			Content: stream.MessageContent{{Type: stream.BlockImage}},
		},
	}
	if !Include(nil, image) {
		t.Fatalf("user message with image excluded, want included")
	}
}

func TestIncludeAssistantMessage(t *testing.T) {
	narrative := assistantEvent(stream.ContentBlock{Type: stream.BlockText, Text: "answer"})
	if !Include(nil, narrative) {
		t.Fatalf("assistant narrative excluded, want included")
	}

	toolOnly := assistantEvent(stream.ContentBlock{Type: stream.BlockToolUse, Name: "Bash", ID: "tu-1"})
	if Include(nil, toolOnly) {
		t.Fatalf("tool-only assistant message included, want excluded")
	}

	mixed := assistantEvent(
		stream.ContentBlock{Type: stream.BlockToolUse, Name: "Bash", ID: "tu-1"},
		stream.ContentBlock{Type: stream.BlockText, Text: "running the command"},
	)
	if !Include(nil, mixed) {
		t.Fatalf("mixed assistant message excluded, want included")
	}
}

func TestIncludeBlockStartOnly(t *testing.T) {
	for _, blockType := range []string{stream.BlockToolUse, stream.BlockToolResult, stream.BlockThinking} {
		start := stream.ClaudeEvent{Type: stream.EventContentBlockStart, ContentBlock: &stream.ContentBlock{Type: blockType}}
		if !Include(nil, start) {
			t.Fatalf("content_block_start(%s) excluded, want included", blockType)
		}
	}

	textStart := stream.ClaudeEvent{Type: stream.EventContentBlockStart, ContentBlock: &stream.ContentBlock{Type: stream.BlockText}}
	if Include(nil, textStart) {
		t.Fatalf("content_block_start(text) included, want excluded")
	}

	delta := stream.ClaudeEvent{Type: stream.EventContentBlockDelta, Delta: &stream.Delta{Text: "x"}}
	if Include(nil, delta) {
		t.Fatalf("content_block_delta included, want excluded")
	}
	stop := stream.ClaudeEvent{Type: stream.EventContentBlockStop}
	if Include(nil, stop) {
		t.Fatalf("content_block_stop included, want excluded")
	}
}

func TestControlChannelAlwaysExcluded(t *testing.T) {
	events := []stream.ClaudeEvent{
		{Type: stream.EventControlRequest, RequestID: "r1"},
		{Type: stream.EventControlResponse, RequestID: "r1"},
		{Type: stream.EventControlCancel, RequestID: "r1"},
		{Type: stream.EventSystem, Subtype: "init"},
	}
	for _, ev := range events {
		if Include(nil, ev) {
			t.Fatalf("event %q included, want excluded", ev.Type)
		}
	}
}

func TestResultDedupWithinTurn(t *testing.T) {
	entries := []Entry{
		entryFor(SourceUser, userEvent("question")),
		entryFor(SourceAgent, assistantEvent(stream.ContentBlock{Type: stream.BlockText, Text: "X"})),
	}
	result := stream.ClaudeEvent{Type: stream.EventResult, ResultText: "X"}
	if Include(entries, result) {
		t.Fatalf("duplicate result in same turn included, want excluded")
	}

	// Different text is kept.
	other := stream.ClaudeEvent{Type: stream.EventResult, ResultText: "Y"}
	if !Include(entries, other) {
		t.Fatalf("distinct result excluded, want included")
	}

	// Trailing-whitespace variants are NOT treated as duplicates.
	padded := stream.ClaudeEvent{Type: stream.EventResult, ResultText: "X "}
	if !Include(entries, padded) {
		t.Fatalf("whitespace-different result excluded, want included (exact equality only)")
	}
}

func TestResultDedupDoesNotCrossTurnBoundary(t *testing.T) {
	entries := []Entry{
		entryFor(SourceUser, userEvent("turn one")),
		entryFor(SourceAgent, assistantEvent(stream.ContentBlock{Type: stream.BlockText, Text: "X"})),
		entryFor(SourceUser, userEvent("turn two")),
	}
	result := stream.ClaudeEvent{Type: stream.EventResult, ResultText: "X"}
	if !Include(entries, result) {
		t.Fatalf("result matching an earlier turn excluded, want included")
	}
}

func TestEmptyResultExcluded(t *testing.T) {
	if Include(nil, stream.ClaudeEvent{Type: stream.EventResult}) {
		t.Fatalf("empty result included, want excluded")
	}
}
