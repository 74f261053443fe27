package hub

import (
	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/transcript"
)

// EmitSessionSnapshot builds the session's current snapshot and forwards it
// to every live viewer connection. Callers batch transcript appends and
// invoke this once per batch.
func (h *Hub) EmitSessionSnapshot(sessionID string) *SessionSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.emitLocked(sessionID, h.session(sessionID), "")
}

// Snapshot returns the session's current snapshot without forwarding it.
func (h *Hub) Snapshot(sessionID string) *SessionSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.buildLocked(sessionID, h.session(sessionID), "")
}

// emitLocked builds and forwards a snapshot while holding h.mu, which is
// what makes the snapshot-before-delta contract hold: nothing can interleave
// another emission for this session until we return.
func (h *Hub) emitLocked(sessionID string, st *sessionState, loadRequestID string) *SessionSnapshot {
	snap := h.buildLocked(sessionID, st, loadRequestID)
	line, err := EncodeMsg(MsgSessionSnapshot, snap)
	if err != nil {
		debug.LogKV("hub", "snapshot encode failed", "session", sessionID, "err", err)
		return snap
	}
	if h.sink != nil {
		h.sink.ForwardToSession(sessionID, line)
	}
	return snap
}

// buildLocked serializes the session state into a snapshot. Slices are
// copied: a snapshot never aliases hub internals.
func (h *Hub) buildLocked(sessionID string, st *sessionState, loadRequestID string) *SessionSnapshot {
	snap := &SessionSnapshot{
		SessionID:      sessionID,
		LoadRequestID:  loadRequestID,
		Runtime:        deriveRuntime(st.alive, st.working, st.lastExit),
		Messages:       make([]transcript.Entry, len(st.entries)),
		QueuedMessages: make([]transcript.QueuedMessage, len(st.queued)),
	}
	copy(snap.Messages, st.entries)
	copy(snap.QueuedMessages, st.queued)
	if st.pending != nil {
		cp := *st.pending
		snap.PendingRequest = &cp
	}
	return snap
}
