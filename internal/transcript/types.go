// Package transcript defines the visible-transcript entry model and the pure
// inclusion policy deciding which raw agent events belong in it.
package transcript

import (
	"encoding/json"
	"time"

	"github.com/overseer-cli/overseer/internal/stream"
)

// Entry sources. The agent side serializes as "claude" because that is what
// every existing viewer expects on the wire.
const (
	SourceUser  = "user"
	SourceAgent = "claude"
)

// Entry is one immutable transcript record. Entries are appended in arrival
// order and never reordered; policy may keep an event out of the transcript
// but an appended entry is never deleted.
type Entry struct {
	ID        string            `json:"id"`
	Source    string            `json:"source"`
	Event     stream.ClaudeEvent `json:"event"`
	Timestamp time.Time         `json:"timestamp"`
}

// QueuedMessage is a user message accepted while the agent process is busy
// or not yet started. FIFO per session.
type QueuedMessage struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Timestamp time.Time       `json:"timestamp"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// PendingRequest is the single outstanding interactive prompt (tool
// permission, plan approval, question) for a session, if any.
type PendingRequest struct {
	RequestID string          `json:"request_id"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}
