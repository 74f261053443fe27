package proc

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/stream"
	"github.com/overseer-cli/overseer/internal/transcript"
)

type nilLoader struct{}

func (nilLoader) LoadHistory(string) ([]transcript.Entry, error) { return nil, nil }

// recordingLoader captures the external session ids the hub hydrates by.
type recordingLoader struct {
	mu  sync.Mutex
	ids []string
}

func (l *recordingLoader) LoadHistory(id string) ([]transcript.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ids = append(l.ids, id)
	return nil, nil
}

type nopSink struct{}

func (nopSink) ForwardToSession(string, []byte) {}

type closableBuffer struct{ bytes.Buffer }

func (*closableBuffer) Close() error { return nil }

func newTestManager() (*Manager, *hub.Hub) {
	h := hub.New(nilLoader{}, nopSink{})
	return New(h, Options{}), h
}

// fakeProcess wires a process struct to an in-memory stdin so event handling
// can run without a real agent binary.
func fakeProcess(m *Manager, sessionID string) (*process, *closableBuffer) {
	buf := &closableBuffer{}
	pr := &process{sessionID: sessionID, stdin: buf, done: make(chan struct{})}
	m.mu.Lock()
	m.procs[sessionID] = pr
	m.mu.Unlock()
	return pr, buf
}

func TestBuildArgs(t *testing.T) {
	m := New(nil, Options{ExtraArgs: []string{"--model", "opus"}})

	args := m.buildArgs("")
	want := "--model opus --print --output-format stream-json --input-format stream-json --verbose"
	if got := strings.Join(args, " "); got != want {
		t.Fatalf("buildArgs = %q, want %q", got, want)
	}

	args = m.buildArgs("ext-123")
	if !strings.HasSuffix(strings.Join(args, " "), "--resume ext-123") {
		t.Fatalf("buildArgs with resume = %v, want trailing --resume ext-123", args)
	}
}

func TestEncodeUserMessage(t *testing.T) {
	var msg inputUserMessage
	if err := json.Unmarshal(encodeUserMessage("hi there"), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "user" || msg.Message == nil || msg.Message.Role != "user" {
		t.Fatalf("encoded message = %+v, want user envelope", msg)
	}
	if len(msg.Message.Content) != 1 || msg.Message.Content[0].Text != "hi there" {
		t.Fatalf("content = %+v, want single text block", msg.Message.Content)
	}
}

func TestEncodeControlResponseDefaultsBehavior(t *testing.T) {
	line, err := encodeControlResponse("req-1", "allow", nil)
	if err != nil {
		t.Fatalf("encodeControlResponse: %v", err)
	}
	var msg controlResponseMsg
	if err := json.Unmarshal(line, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "control_response" || msg.Response.RequestID != "req-1" || msg.Response.Subtype != "success" {
		t.Fatalf("envelope = %+v", msg)
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Response.Response, &body); err != nil {
		t.Fatalf("unmarshal inner response: %v", err)
	}
	if body["behavior"] != "allow" {
		t.Fatalf("behavior = %q, want %q", body["behavior"], "allow")
	}
}

func TestAnswerRejectsStaleRequestID(t *testing.T) {
	m, h := newTestManager()

	if err := m.Answer("s1", "req-1", "allow", nil); err == nil {
		t.Fatalf("Answer with no pending request = nil error")
	}

	h.SetPendingRequest("s1", &transcript.PendingRequest{RequestID: "req-2"})
	if err := m.Answer("s1", "req-1", "allow", nil); err == nil {
		t.Fatalf("Answer with mismatched request id = nil error")
	}
	if h.PendingRequest("s1") == nil {
		t.Fatalf("pending request cleared by rejected answer")
	}
}

func TestAnswerWritesResponseAndClearsPending(t *testing.T) {
	m, h := newTestManager()
	_, stdin := fakeProcess(m, "s1")
	h.SetPendingRequest("s1", &transcript.PendingRequest{RequestID: "req-7", ToolName: "Bash"})

	if err := m.Answer("s1", "req-7", "deny", nil); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if h.PendingRequest("s1") != nil {
		t.Fatalf("pending request not cleared after answer")
	}
	if !strings.Contains(stdin.String(), `"request_id":"req-7"`) {
		t.Fatalf("stdin = %q, want control response for req-7", stdin.String())
	}
	if !strings.HasSuffix(stdin.String(), "\n") {
		t.Fatalf("stdin line not newline terminated")
	}
}

func TestControlRequestEventSetsPending(t *testing.T) {
	m, h := newTestManager()
	pr, _ := fakeProcess(m, "s1")

	m.handleEvent(pr, stream.ClaudeEvent{
		Type:      stream.EventControlRequest,
		RequestID: "req-9",
		Request:   &stream.ControlRequest{Subtype: "can_use_tool", ToolName: "Write"},
	})

	pending := h.PendingRequest("s1")
	if pending == nil || pending.RequestID != "req-9" || pending.ToolName != "Write" {
		t.Fatalf("pending = %+v, want req-9/Write", pending)
	}

	m.handleEvent(pr, stream.ClaudeEvent{Type: stream.EventControlCancel})
	if h.PendingRequest("s1") != nil {
		t.Fatalf("pending request survived control cancel")
	}
}

func TestInitEventRecordsExternalSessionID(t *testing.T) {
	loader := &recordingLoader{}
	h := hub.New(loader, nopSink{})
	m := New(h, Options{})
	pr, _ := fakeProcess(m, "s1")

	m.handleEvent(pr, stream.ClaudeEvent{
		Type:      stream.EventSystem,
		Subtype:   "init",
		SessionID: "ext-abc",
	})

	if _, ext := h.SessionMeta("s1"); ext != "ext-abc" {
		t.Fatalf("external session id = %q, want %q", ext, "ext-abc")
	}

	// After a crash, the next subscribe must hydrate by the id the init
	// event reported, even though no viewer ever supplied one.
	h.MarkProcessExit("s1", nil)
	if _, err := h.Subscribe(hub.SubscribeParams{SessionID: "s1"}); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	loader.mu.Lock()
	defer loader.mu.Unlock()
	if len(loader.ids) != 1 || loader.ids[0] != "ext-abc" {
		t.Fatalf("loader hydrated by %v, want [ext-abc]", loader.ids)
	}
}

func TestResultDispatchesNextQueuedMessage(t *testing.T) {
	m, h := newTestManager()
	pr, stdin := fakeProcess(m, "s1")

	h.SetActivity("s1", true)
	h.Enqueue("s1", "follow-up question", nil)

	m.handleEvent(pr, stream.ClaudeEvent{Type: stream.EventResult, ResultText: "done"})

	if h.QueueLen("s1") != 0 {
		t.Fatalf("queue length after result = %d, want 0", h.QueueLen("s1"))
	}
	if !h.IsWorking("s1") {
		t.Fatalf("session not working after queued dispatch")
	}
	if !strings.Contains(stdin.String(), "follow-up question") {
		t.Fatalf("stdin = %q, want dispatched queued message", stdin.String())
	}
}

func TestResultWithEmptyQueueGoesIdle(t *testing.T) {
	m, h := newTestManager()
	pr, stdin := fakeProcess(m, "s1")

	h.SetActivity("s1", true)
	m.handleEvent(pr, stream.ClaudeEvent{Type: stream.EventResult, ResultText: "done"})

	if h.IsWorking("s1") {
		t.Fatalf("session still working after result with empty queue")
	}
	if stdin.Len() != 0 {
		t.Fatalf("stdin = %q, want nothing written", stdin.String())
	}
}

func TestExitCodeOf(t *testing.T) {
	if code := exitCodeOf(nil); code == nil || *code != 0 {
		t.Fatalf("exitCodeOf(nil) = %v, want 0", code)
	}
	if code := exitCodeOf(bytes.ErrTooLarge); code != nil {
		t.Fatalf("exitCodeOf(non-exit error) = %v, want nil", code)
	}
}
