package stream

import (
	"context"
	"strings"
	"testing"
)

func collect(t *testing.T, input string) []RawEvent {
	t.Helper()
	var got []RawEvent
	for ev := range Parse(context.Background(), strings.NewReader(input)) {
		got = append(got, ev)
	}
	return got
}

func TestParseAssistantEvent(t *testing.T) {
	input := `{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"hi"}]}}` + "\n"
	got := collect(t, input)
	if len(got) != 1 {
		t.Fatalf("events = %d, want 1", len(got))
	}
	ev := got[0]
	if ev.Err != nil {
		t.Fatalf("parse error: %v", ev.Err)
	}
	if ev.Parsed.Type != EventAssistant {
		t.Fatalf("type = %q, want %q", ev.Parsed.Type, EventAssistant)
	}
	if ev.Parsed.Message == nil || len(ev.Parsed.Message.Content) != 1 {
		t.Fatalf("unexpected message payload: %+v", ev.Parsed.Message)
	}
	if ev.Parsed.Message.Content[0].Text != "hi" {
		t.Fatalf("text = %q, want %q", ev.Parsed.Message.Content[0].Text, "hi")
	}
}

func TestParseUserStringContentShorthand(t *testing.T) {
	input := `{"type":"user","message":{"role":"user","content":"do the thing"}}` + "\n"
	got := collect(t, input)
	if len(got) != 1 || got[0].Err != nil {
		t.Fatalf("unexpected parse result: %+v", got)
	}
	content := got[0].Parsed.Message.Content
	if len(content) != 1 || content[0].Type != BlockText || content[0].Text != "do the thing" {
		t.Fatalf("unexpected content: %+v", content)
	}
}

func TestParseControlRequest(t *testing.T) {
	input := `{"type":"control_request","request_id":"req-1","request":{"subtype":"can_use_tool","tool_name":"Bash","tool_use_id":"tu-9","input":{"command":"ls"}}}` + "\n"
	got := collect(t, input)
	if len(got) != 1 || got[0].Err != nil {
		t.Fatalf("unexpected parse result: %+v", got)
	}
	ev := got[0].Parsed
	if !ev.IsControl() {
		t.Fatalf("IsControl() = false, want true")
	}
	if ev.RequestID != "req-1" || ev.Request == nil || ev.Request.ToolName != "Bash" {
		t.Fatalf("unexpected control request: %+v", ev)
	}
}

func TestParseSkipsEmptyLinesAndReportsBadJSON(t *testing.T) {
	input := "\n" + `{"type":"result","result":"done","num_turns":2}` + "\n" + "{not json}\n"
	got := collect(t, input)
	if len(got) != 2 {
		t.Fatalf("events = %d, want 2", len(got))
	}
	if got[0].Parsed.Type != EventResult || got[0].Parsed.ResultText != "done" {
		t.Fatalf("unexpected result event: %+v", got[0].Parsed)
	}
	if got[1].Err == nil {
		t.Fatalf("expected error for malformed line, got %+v", got[1])
	}
	if string(got[1].Raw) != "{not json}" {
		t.Fatalf("raw = %q, want original line preserved", got[1].Raw)
	}
}

func TestParseClosesChannelOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	input := `{"type":"system"}` + "\n" + `{"type":"system"}` + "\n"
	// Channel must close without hanging; events may or may not arrive.
	for range Parse(ctx, strings.NewReader(input)) {
	}
}
