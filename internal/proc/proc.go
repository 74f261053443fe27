// Package proc supervises the external agent CLI processes, one per session.
// It launches the claude binary in bidirectional stream-json mode, pumps
// parsed events into the hub, answers interactive control requests over
// stdin, and dispatches queued user messages whenever a turn finishes.
package proc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/hexid"
	"github.com/overseer-cli/overseer/internal/hub"
	"github.com/overseer-cli/overseer/internal/stream"
	"github.com/overseer-cli/overseer/internal/transcript"
)

// Options configures the manager.
type Options struct {
	// Command is the agent binary. Empty means "claude".
	Command string
	// ExtraArgs are appended before the streaming flags (e.g. --model,
	// --dangerously-skip-permissions).
	ExtraArgs []string
}

// Manager owns the live agent processes. All methods are safe for concurrent
// use.
type Manager struct {
	mu    sync.Mutex
	procs map[string]*process

	hub     *hub.Hub
	command string
	args    []string
}

// process is one running agent CLI.
type process struct {
	sessionID string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	cancel    context.CancelFunc

	writeMu sync.Mutex
	done    chan struct{}
}

// New creates a manager that feeds events into h.
func New(h *hub.Hub, opts Options) *Manager {
	cmd := opts.Command
	if cmd == "" {
		cmd = "claude"
	}
	return &Manager{
		procs:   make(map[string]*process),
		hub:     h,
		command: cmd,
		args:    opts.ExtraArgs,
	}
}

// IsRunning reports whether the session has a live agent process.
func (m *Manager) IsRunning(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.procs[sessionID]
	return ok
}

// StartParams describes how to launch a session's agent process.
type StartParams struct {
	SessionID         string
	WorkingDir        string
	ExternalSessionID string // resume a previous CLI session when set
}

// buildArgs assembles the CLI invocation. The streaming flags always come
// last so configured extras cannot override them.
func (m *Manager) buildArgs(externalSessionID string) []string {
	args := make([]string, 0, len(m.args)+7)
	args = append(args, m.args...)
	args = append(args, "--print",
		"--output-format", "stream-json",
		"--input-format", "stream-json",
		"--verbose")
	if externalSessionID != "" {
		args = append(args, "--resume", externalSessionID)
	}
	return args
}

// Start launches the agent process for a session. It is a no-op if one is
// already running. The process outlives ctx only until cancellation.
func (m *Manager) Start(ctx context.Context, p StartParams) error {
	if p.SessionID == "" {
		return fmt.Errorf("proc: start without session id")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.procs[p.SessionID]; ok {
		return nil
	}

	procCtx, cancel := context.WithCancel(ctx)
	args := m.buildArgs(p.ExternalSessionID)
	cmd := exec.CommandContext(procCtx, m.command, args...)
	cmd.Dir = p.WorkingDir
	cmd.Env = os.Environ()
	cmd.WaitDelay = 5 * time.Second

	// Own process group: the claude CLI spawns node children that would
	// otherwise hold the stdout pipe open after a kill.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("proc: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("proc: stdout pipe: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("proc: starting %s: %w", m.command, err)
	}

	pr := &process{
		sessionID: p.SessionID,
		cmd:       cmd,
		stdin:     stdin,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.procs[p.SessionID] = pr

	debug.LogKV("proc", "agent started", "session", p.SessionID,
		"pid", cmd.Process.Pid, "resume", p.ExternalSessionID)

	go m.readLoop(procCtx, pr, stdout)
	go m.wait(pr)
	return nil
}

// readLoop consumes the agent's NDJSON stream until EOF, feeding the hub.
func (m *Manager) readLoop(ctx context.Context, pr *process, stdout io.Reader) {
	for ev := range stream.Parse(ctx, stdout) {
		if ev.Err != nil || ev.Parsed.Type == "" {
			continue
		}
		m.handleEvent(pr, ev.Parsed)
	}
}

// handleEvent routes one parsed event. Appends and state changes go through
// the hub; a snapshot is emitted only when the visible state changed.
func (m *Manager) handleEvent(pr *process, ev stream.ClaudeEvent) {
	switch ev.Type {
	case stream.EventControlRequest:
		if ev.Request == nil {
			return
		}
		m.hub.SetPendingRequest(pr.sessionID, &transcript.PendingRequest{
			RequestID: ev.RequestID,
			ToolName:  ev.Request.ToolName,
			ToolUseID: ev.Request.ToolUseID,
			Input:     ev.Request.Input,
			Timestamp: time.Now().UTC(),
		})
		m.hub.EmitSessionSnapshot(pr.sessionID)

	case stream.EventControlCancel:
		m.hub.SetPendingRequest(pr.sessionID, nil)
		m.hub.EmitSessionSnapshot(pr.sessionID)

	case stream.EventControlResponse:
		// Handshake acknowledgements; nothing to surface.

	case stream.EventSystem:
		if ev.Subtype == "init" && ev.SessionID != "" {
			// The CLI's own session id keys the persisted log and --resume;
			// without it a crashed session could neither rehydrate nor resume.
			m.hub.SetExternalSessionID(pr.sessionID, ev.SessionID)
			debug.LogKV("proc", "agent session init",
				"session", pr.sessionID, "external", ev.SessionID, "model", ev.Model)
		}

	case stream.EventResult:
		if m.hub.AppendClaudeEvent(pr.sessionID, ev) {
			m.hub.EmitSessionSnapshot(pr.sessionID)
		}
		m.hub.SetActivity(pr.sessionID, false)
		m.dispatchQueued(pr)

	default:
		if m.hub.AppendClaudeEvent(pr.sessionID, ev) {
			m.hub.EmitSessionSnapshot(pr.sessionID)
		}
	}
}

// dispatchQueued pops the next queued message, if any, and sends it as the
// new turn. The dequeue itself stays silent: the send emits the snapshot that
// reflects both the shorter queue and the working state.
func (m *Manager) dispatchQueued(pr *process) {
	msg, ok := m.hub.DequeueNext(pr.sessionID, false)
	if !ok {
		m.hub.EmitSessionSnapshot(pr.sessionID)
		return
	}
	if err := m.writeLine(pr, encodeUserMessage(msg.Text)); err != nil {
		debug.LogKV("proc", "queued dispatch failed", "session", pr.sessionID, "err", err)
		m.hub.EmitSessionSnapshot(pr.sessionID)
		return
	}
	m.hub.SetActivity(pr.sessionID, true)
	m.hub.EmitSessionSnapshot(pr.sessionID)
}

// wait reaps the process and records its exit with the hub. The hub clears
// the queue and pending request and invalidates hydration.
func (m *Manager) wait(pr *process) {
	err := pr.cmd.Wait()
	close(pr.done)

	m.mu.Lock()
	if m.procs[pr.sessionID] == pr {
		delete(m.procs, pr.sessionID)
	}
	m.mu.Unlock()
	pr.cancel()

	m.hub.MarkProcessExit(pr.sessionID, exitCodeOf(err))
}

// exitCodeOf extracts the exit code, or nil when the process died without
// reporting one (signal kill, wait failure).
func exitCodeOf(err error) *int {
	if err == nil {
		zero := 0
		return &zero
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if code := exitErr.ExitCode(); code >= 0 {
			return &code
		}
	}
	return nil
}

// Submit enqueues a user message and, when the agent is idle (or not yet
// running), starts the next turn immediately. Returns the 1-based queue
// position the message held on arrival.
func (m *Manager) Submit(ctx context.Context, p StartParams, text string, settings json.RawMessage) (int, error) {
	position := m.hub.Enqueue(p.SessionID, text, settings)

	if !m.IsRunning(p.SessionID) {
		if err := m.Start(ctx, p); err != nil {
			return position, err
		}
	}
	if !m.hub.IsWorking(p.SessionID) {
		m.mu.Lock()
		pr := m.procs[p.SessionID]
		m.mu.Unlock()
		if pr != nil {
			m.dispatchQueued(pr)
		}
	}
	return position, nil
}

// Answer resolves the session's pending interactive request. The request id
// must match the one the hub holds; a stale or unknown id is rejected without
// touching the process.
func (m *Manager) Answer(sessionID, requestID, behavior string, response json.RawMessage) error {
	pending := m.hub.PendingRequest(sessionID)
	if pending == nil {
		return fmt.Errorf("proc: session %s has no pending request", sessionID)
	}
	if pending.RequestID != requestID {
		return fmt.Errorf("proc: request id %s does not match pending %s", requestID, pending.RequestID)
	}

	m.mu.Lock()
	pr := m.procs[sessionID]
	m.mu.Unlock()
	if pr == nil {
		return fmt.Errorf("proc: session %s has no running agent", sessionID)
	}

	line, err := encodeControlResponse(requestID, behavior, response)
	if err != nil {
		return err
	}
	if err := m.writeLine(pr, line); err != nil {
		return fmt.Errorf("proc: answering request %s: %w", requestID, err)
	}

	m.hub.SetPendingRequest(sessionID, nil)
	m.hub.EmitSessionSnapshot(sessionID)
	return nil
}

// Interrupt asks the agent to abort the current turn without killing the
// process.
func (m *Manager) Interrupt(sessionID string) error {
	m.mu.Lock()
	pr := m.procs[sessionID]
	m.mu.Unlock()
	if pr == nil {
		return fmt.Errorf("proc: session %s has no running agent", sessionID)
	}
	line, err := encodeInterrupt()
	if err != nil {
		return err
	}
	return m.writeLine(pr, line)
}

// Stop kills the session's agent process. Exit bookkeeping happens in the
// wait goroutine; Stop returns once the process has been reaped.
func (m *Manager) Stop(sessionID string) error {
	m.mu.Lock()
	pr := m.procs[sessionID]
	m.mu.Unlock()
	if pr == nil {
		return fmt.Errorf("proc: session %s has no running agent", sessionID)
	}
	pr.cancel()
	<-pr.done
	return nil
}

// StopAll kills every running agent process.
func (m *Manager) StopAll() {
	m.mu.Lock()
	procs := make([]*process, 0, len(m.procs))
	for _, pr := range m.procs {
		procs = append(procs, pr)
	}
	m.mu.Unlock()

	for _, pr := range procs {
		pr.cancel()
		<-pr.done
	}
}

// writeLine sends one NDJSON line to the agent's stdin.
func (m *Manager) writeLine(pr *process, line []byte) error {
	pr.writeMu.Lock()
	defer pr.writeMu.Unlock()
	_, err := pr.stdin.Write(append(line, '\n'))
	return err
}

// --- stdin wire encoding ---

type inputUserMessage struct {
	Type    string          `json:"type"`
	Message *stream.Message `json:"message"`
}

// encodeUserMessage builds the stream-json stdin line for a user turn.
func encodeUserMessage(text string) []byte {
	line, _ := json.Marshal(inputUserMessage{
		Type: "user",
		Message: &stream.Message{
			Role:    "user",
			Content: stream.MessageContent{{Type: stream.BlockText, Text: text}},
		},
	})
	return line
}

type controlResponseBody struct {
	Subtype   string          `json:"subtype"`
	RequestID string          `json:"request_id"`
	Response  json.RawMessage `json:"response,omitempty"`
}

type controlResponseMsg struct {
	Type     string              `json:"type"`
	Response controlResponseBody `json:"response"`
}

// encodeControlResponse builds the stdin line answering a control request.
// When the caller supplies no structured response, a bare behavior object is
// sent.
func encodeControlResponse(requestID, behavior string, response json.RawMessage) ([]byte, error) {
	if len(response) == 0 {
		var err error
		response, err = json.Marshal(map[string]string{"behavior": behavior})
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(controlResponseMsg{
		Type: "control_response",
		Response: controlResponseBody{
			Subtype:   "success",
			RequestID: requestID,
			Response:  response,
		},
	})
}

type controlRequestMsg struct {
	Type      string                 `json:"type"`
	RequestID string                 `json:"request_id"`
	Request   *stream.ControlRequest `json:"request"`
}

// encodeInterrupt builds the stdin line requesting a turn abort.
func encodeInterrupt() ([]byte, error) {
	return json.Marshal(controlRequestMsg{
		Type:      "control_request",
		RequestID: hexid.NewN(12),
		Request:   &stream.ControlRequest{Subtype: "interrupt"},
	})
}
