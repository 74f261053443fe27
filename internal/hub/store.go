// Package hub owns the in-memory state of every supervised session: the
// ordered transcript, queued outgoing messages, the pending interactive
// request, and derived runtime state. It is the sole mutation surface;
// collaborators never hold references into its internals.
package hub

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/guard"
	"github.com/overseer-cli/overseer/internal/hexid"
	"github.com/overseer-cli/overseer/internal/stream"
	"github.com/overseer-cli/overseer/internal/transcript"
)

// Loader reads a session's persisted log. May be slow; the hub calls it at
// most once concurrently per session.
type Loader interface {
	LoadHistory(externalSessionID string) ([]transcript.Entry, error)
}

// Sink delivers an encoded wire message to every live viewer connection
// subscribed to a session. Delivery is fire-and-forget: the sink must not
// block and must not call back into the hub.
type Sink interface {
	ForwardToSession(sessionID string, data []byte)
}

// SubscribeParams describes one viewer attach.
type SubscribeParams struct {
	SessionID         string
	WorkingDir        string
	ExternalSessionID string
	IsRunning         bool
	IsWorking         bool
	LoadRequestID     string
}

// sessionState is everything the hub tracks for one session. Access only
// with Hub.mu held.
type sessionState struct {
	externalID string
	workingDir string

	entries []transcript.Entry
	queued  []transcript.QueuedMessage
	pending *transcript.PendingRequest

	// hydrated is cleared on process exit: the on-disk log is authoritative
	// after a crash, so the next subscribe must re-read it. hydrationGen is
	// bumped on every invalidation so a load that was already in flight when
	// the exit happened cannot settle the session with pre-crash contents.
	hydrated     bool
	hydrationGen uint64

	alive    bool
	working  bool
	lastExit *ExitStatus
}

// Hub is the transcript store shared by the webserver and the process
// manager. Construct with New; the zero value is not usable.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*sessionState

	loader    Loader
	sink      Sink
	hydration guard.Guard[[]transcript.Entry]
}

// New creates a hub with the given history loader and delivery sink.
func New(loader Loader, sink Sink) *Hub {
	return &Hub{
		sessions: make(map[string]*sessionState),
		loader:   loader,
		sink:     sink,
	}
}

// session returns the state for id, creating it on first reference.
// Caller must hold h.mu.
func (h *Hub) session(id string) *sessionState {
	st, ok := h.sessions[id]
	if !ok {
		st = &sessionState{}
		h.sessions[id] = st
	}
	return st
}

// Subscribe attaches a viewer: it ensures the transcript is hydrated from
// the persisted log (sharing any in-flight load), refreshes runtime state
// from the supplied liveness flags, and emits exactly one snapshot tagged
// with LoadRequestID. The emitted snapshot is ordered before any event the
// hub processes after Subscribe returns.
func (h *Hub) Subscribe(p SubscribeParams) (*SessionSnapshot, error) {
	if p.SessionID == "" {
		return nil, fmt.Errorf("hub: subscribe without session id")
	}

	h.mu.Lock()
	st := h.session(p.SessionID)
	if p.WorkingDir != "" {
		st.workingDir = p.WorkingDir
	}
	if p.ExternalSessionID != "" {
		st.externalID = p.ExternalSessionID
	}
	h.mu.Unlock()

	if err := h.ensureHydrated(p.SessionID); err != nil {
		return nil, fmt.Errorf("hub: hydrating session %s: %w", p.SessionID, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	st = h.session(p.SessionID)
	st.alive = p.IsRunning
	st.working = p.IsWorking
	snap := h.emitLocked(p.SessionID, st, p.LoadRequestID)
	return snap, nil
}

// ensureHydrated loads the session's history through the guard so that N
// concurrent subscribers trigger exactly one read. Settled hydration is a
// no-op until invalidated by a process exit.
func (h *Hub) ensureHydrated(sessionID string) error {
	h.mu.Lock()
	st := h.session(sessionID)
	hydrated := st.hydrated
	h.mu.Unlock()

	if hydrated {
		return nil
	}

	_, err := h.hydration.Do(sessionID, func() ([]transcript.Entry, error) {
		// A caller queued behind a completed load must not trigger another.
		h.mu.Lock()
		if st.hydrated {
			entries := st.entries
			h.mu.Unlock()
			return entries, nil
		}
		gen := st.hydrationGen
		externalID := st.externalID
		h.mu.Unlock()

		var entries []transcript.Entry
		if externalID != "" {
			loaded, err := h.loader.LoadHistory(externalID)
			if err != nil {
				// No partial transcript is published; the guard entry clears
				// so the next subscribe can retry.
				return nil, err
			}
			entries = loaded
		}

		h.mu.Lock()
		if st.hydrationGen != gen {
			// A process exit landed while we were reading: what we loaded
			// predates the crash, so the session stays unhydrated and the
			// next subscribe re-reads the authoritative log.
			h.mu.Unlock()
			debug.LogKV("hub", "hydration superseded by exit", "session", sessionID)
			return entries, nil
		}
		// The log is authoritative: replace, never merge with stale memory.
		st.entries = entries
		st.hydrated = true
		h.mu.Unlock()

		debug.LogKV("hub", "session hydrated", "session", sessionID, "entries", len(entries))
		return entries, nil
	})
	return err
}

// Enqueue appends a user message to the session's outgoing queue and emits
// an updated snapshot. It returns the 1-based queue position.
func (h *Hub) Enqueue(sessionID, text string, settings json.RawMessage) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.session(sessionID)
	st.queued = append(st.queued, transcript.QueuedMessage{
		ID:        hexid.New(),
		Text:      text,
		Timestamp: time.Now().UTC(),
		Settings:  settings,
	})
	position := len(st.queued)
	h.emitLocked(sessionID, st, "")
	return position
}

// DequeueNext pops the head of the queue. Snapshot emission is optional so
// a caller that immediately dispatches the message (and emits its own
// follow-up snapshot) does not produce a redundant intermediate one.
func (h *Hub) DequeueNext(sessionID string, emitSnapshot bool) (*transcript.QueuedMessage, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.session(sessionID)
	if len(st.queued) == 0 {
		return nil, false
	}
	msg := st.queued[0]
	st.queued = st.queued[1:]
	if emitSnapshot {
		h.emitLocked(sessionID, st, "")
	}
	return &msg, true
}

// QueueLen returns the number of queued outgoing messages for a session.
func (h *Hub) QueueLen(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.session(sessionID).queued)
}

// SetPendingRequest records the single outstanding interactive request.
// It is reflected in the next snapshot; no emission happens here.
func (h *Hub) SetPendingRequest(sessionID string, req *transcript.PendingRequest) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session(sessionID).pending = req
}

// PendingRequest returns the outstanding interactive request, or nil.
func (h *Hub) PendingRequest(sessionID string) *transcript.PendingRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.session(sessionID)
	if st.pending == nil {
		return nil
	}
	cp := *st.pending
	return &cp
}

// AppendClaudeEvent runs a live agent event through the inclusion policy and
// appends it to the transcript when it belongs there. No snapshot is emitted:
// callers batch appends and call EmitSessionSnapshot once.
func (h *Hub) AppendClaudeEvent(sessionID string, ev stream.ClaudeEvent) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.session(sessionID)
	if !transcript.Include(st.entries, ev) {
		return false
	}
	source := transcript.SourceAgent
	if ev.Type == stream.EventUser {
		source = transcript.SourceUser
	}
	st.entries = append(st.entries, transcript.Entry{
		ID:        hexid.New(),
		Source:    source,
		Event:     ev,
		Timestamp: time.Now().UTC(),
	})
	return true
}

// SetActivity updates the working signal for a live session (turn started /
// turn finished). Reflected in the next snapshot.
func (h *Hub) SetActivity(sessionID string, working bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.session(sessionID)
	st.working = working
	if working {
		st.alive = true
	}
}

// IsWorking reports whether the session's agent is mid-turn.
func (h *Hub) IsWorking(sessionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.session(sessionID).working
}

// MarkProcessExit records the agent process's termination: the exit status
// is classified (only exactly 0 is expected), queued messages and the
// pending interactive request are dropped unconditionally, hydration is
// invalidated so the next subscribe re-reads the authoritative log, and a
// snapshot is emitted.
func (h *Hub) MarkProcessExit(sessionID string, exitCode *int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	st := h.session(sessionID)
	st.lastExit = exitStatus(exitCode)
	st.alive = false
	st.working = false
	st.queued = nil
	st.pending = nil
	st.hydrated = false
	st.hydrationGen++

	debug.LogKV("hub", "process exit", "session", sessionID,
		"unexpected", st.lastExit.Unexpected)
	h.emitLocked(sessionID, st, "")
}

// SessionInfo is the list-view summary of one session.
type SessionInfo struct {
	SessionID         string         `json:"session_id"`
	ExternalSessionID string         `json:"external_session_id,omitempty"`
	WorkingDir        string         `json:"working_dir,omitempty"`
	Runtime           SessionRuntime `json:"session_runtime"`
	MessageCount      int            `json:"message_count"`
	QueueLen          int            `json:"queue_len"`
	HasPending        bool           `json:"has_pending_request"`
}

// Sessions returns a summary of every known session, sorted by id.
func (h *Hub) Sessions() []SessionInfo {
	h.mu.Lock()
	defer h.mu.Unlock()

	infos := make([]SessionInfo, 0, len(h.sessions))
	for id, st := range h.sessions {
		infos = append(infos, SessionInfo{
			SessionID:         id,
			ExternalSessionID: st.externalID,
			WorkingDir:        st.workingDir,
			Runtime:           deriveRuntime(st.alive, st.working, st.lastExit),
			MessageCount:      len(st.entries),
			QueueLen:          len(st.queued),
			HasPending:        st.pending != nil,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].SessionID < infos[j].SessionID })
	return infos
}

// SetExternalSessionID records the agent CLI's own session id, reported by
// its init event. It is what the hydration loader reads the persisted log by
// and what a restart passes to --resume.
func (h *Hub) SetExternalSessionID(sessionID, externalSessionID string) {
	if externalSessionID == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.session(sessionID).externalID = externalSessionID
}

// SessionMeta returns the stored working directory and external session id.
func (h *Hub) SessionMeta(sessionID string) (workingDir, externalSessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := h.session(sessionID)
	return st.workingDir, st.externalID
}

// ClearSession drops all in-memory state for a session.
func (h *Hub) ClearSession(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}

// ClearAllSessions drops all in-memory state for every session.
func (h *Hub) ClearAllSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions = make(map[string]*sessionState)
}
