package hub

import (
	"encoding/json"

	"github.com/overseer-cli/overseer/internal/transcript"
)

// Wire message types carried over the viewer websocket. Each message is a
// single JSON envelope {type, data}.
const (
	// Server -> client.
	MsgSessionSnapshot = "session_snapshot" // complete baseline: transcript + runtime + queue
	MsgError           = "error"

	// Client -> server.
	MsgSubscribe     = "subscribe"      // attach to a session; server answers with a snapshot
	MsgUserMessage   = "user_message"   // enqueue (or dispatch) a user message
	MsgAnswerRequest = "answer_request" // answer the pending interactive request
	MsgStop          = "stop"           // stop the agent process
	MsgInterrupt     = "interrupt"      // interrupt the current agent turn
)

// WireMsg is the envelope for all messages on the viewer channel.
type WireMsg struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SessionSnapshot is the complete, self-sufficient state of one session,
// sent to (re-)establish a subscriber's baseline. A subscriber never sees a
// delta for a session before its first snapshot.
type SessionSnapshot struct {
	SessionID     string `json:"session_id"`
	LoadRequestID string `json:"load_request_id,omitempty"`

	Runtime        SessionRuntime             `json:"session_runtime"`
	Messages       []transcript.Entry         `json:"messages"`
	QueuedMessages []transcript.QueuedMessage `json:"queued_messages"`
	PendingRequest *transcript.PendingRequest `json:"pending_request,omitempty"`
}

// WireSubscribe attaches a viewer to a session.
type WireSubscribe struct {
	SessionID         string `json:"session_id"`
	WorkingDir        string `json:"working_dir,omitempty"`
	ExternalSessionID string `json:"external_session_id,omitempty"`
	LoadRequestID     string `json:"load_request_id,omitempty"`
}

// WireUserMessage carries a user message to enqueue for a session.
type WireUserMessage struct {
	SessionID string          `json:"session_id"`
	Text      string          `json:"text"`
	Settings  json.RawMessage `json:"settings,omitempty"`
}

// WireAnswerRequest answers the session's pending interactive request.
type WireAnswerRequest struct {
	SessionID string          `json:"session_id"`
	RequestID string          `json:"request_id"`
	Behavior  string          `json:"behavior"` // "allow" | "deny"
	Response  json.RawMessage `json:"response,omitempty"`
}

// WireStop asks the server to stop a session's agent process.
type WireStop struct {
	SessionID string `json:"session_id"`
}

// WireError reports a failure on the viewer channel.
type WireError struct {
	Error string `json:"error"`
}

// EncodeMsg creates a JSON envelope from a message type and payload.
func EncodeMsg(msgType string, payload any) ([]byte, error) {
	var dataBytes json.RawMessage
	if payload != nil {
		var err error
		dataBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	return json.Marshal(WireMsg{Type: msgType, Data: dataBytes})
}

// DecodeMsg parses a JSON envelope into a WireMsg.
func DecodeMsg(line []byte) (*WireMsg, error) {
	var msg WireMsg
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeData unmarshals the Data field of a WireMsg into the target struct.
func DecodeData[T any](msg *WireMsg) (*T, error) {
	var v T
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
