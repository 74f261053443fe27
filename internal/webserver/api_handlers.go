package webserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/overseer-cli/overseer/internal/debug"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		debug.LogKV("webserver", "failed to encode json response", "status", status, "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func sessionIDFromPath(r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	return id, id != ""
}

// handleListSessions returns summaries of every known session.
func (srv *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, srv.hub.Sessions())
}

// handleSessionByID returns the full snapshot of one session.
func (srv *Server) handleSessionByID(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, srv.hub.Snapshot(id))
}

type sessionMessageRequest struct {
	Text     string          `json:"text"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

type sessionMessageResponse struct {
	QueuedPosition int `json:"queued_position"`
}

// handleSessionMessage enqueues a user message for a session, starting the
// agent process if none is running.
func (srv *Server) handleSessionMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	var req sessionMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "message text is required")
		return
	}

	position, err := srv.submitMessage(id, req.Text, req.Settings)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, sessionMessageResponse{QueuedPosition: position})
}

// handleSessionStop kills the session's agent process.
func (srv *Server) handleSessionStop(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := srv.procs.Stop(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleSessionInterrupt aborts the session's current turn without killing
// the process.
func (srv *Server) handleSessionInterrupt(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDFromPath(r)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err := srv.procs.Interrupt(id); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "interrupted"})
}
