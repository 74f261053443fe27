package stream

import "encoding/json"

// Event type tags emitted by the claude CLI in stream-json mode. The set is
// closed: policy code switches exhaustively over these and treats anything
// else as unknown.
const (
	EventSystem            = "system"
	EventUser              = "user"
	EventAssistant         = "assistant"
	EventContentBlockStart = "content_block_start"
	EventContentBlockDelta = "content_block_delta"
	EventContentBlockStop  = "content_block_stop"
	EventResult            = "result"
	EventControlRequest    = "control_request"
	EventControlResponse   = "control_response"
	EventControlCancel     = "control_cancel_request"
)

// Content block type tags.
const (
	BlockText       = "text"
	BlockToolUse    = "tool_use"
	BlockToolResult = "tool_result"
	BlockThinking   = "thinking"
	BlockImage      = "image"
)

// RawEvent holds both the raw NDJSON line and the parsed event.
type RawEvent struct {
	Raw    []byte
	Parsed ClaudeEvent
	Err    error
}

// ClaudeEvent is the top-level structure for a claude stream-json event.
type ClaudeEvent struct {
	Type    string `json:"type"`
	Subtype string `json:"subtype,omitempty"`

	// For system/init events
	SessionID string   `json:"session_id,omitempty"`
	Model     string   `json:"model,omitempty"`
	Tools     []string `json:"tools,omitempty"`

	// For user/assistant events: the full message payload
	Message *Message `json:"message,omitempty"`

	// For content_block_start / content_block_delta / content_block_stop
	Index        int           `json:"index,omitempty"`
	ContentBlock *ContentBlock `json:"content_block,omitempty"`
	Delta        *Delta        `json:"delta,omitempty"`

	// For result events (top-level fields)
	TotalCostUSD float64 `json:"total_cost_usd,omitempty"`
	DurationMS   float64 `json:"duration_ms,omitempty"`
	IsError      bool    `json:"is_error,omitempty"`
	NumTurns     int     `json:"num_turns,omitempty"`
	ResultText   string  `json:"result,omitempty"`
	Usage        *Usage  `json:"usage,omitempty"`

	// For control channel events (handshake, permission prompts, cancel)
	RequestID string          `json:"request_id,omitempty"`
	Request   *ControlRequest `json:"request,omitempty"`
}

// IsControl reports whether the event belongs to the internal control channel.
func (e *ClaudeEvent) IsControl() bool {
	switch e.Type {
	case EventControlRequest, EventControlResponse, EventControlCancel:
		return true
	default:
		return false
	}
}

// Message is the message payload inside a "user" or "assistant" event.
type Message struct {
	ID      string         `json:"id,omitempty"`
	Model   string         `json:"model,omitempty"`
	Role    string         `json:"role,omitempty"`
	Content MessageContent `json:"content,omitempty"`
	Usage   *Usage         `json:"usage,omitempty"`
}

// MessageContent is a list of content blocks. The CLI emits either a bare
// string (shorthand for one text block) or an array of blocks; both decode
// into the same slice form.
type MessageContent []ContentBlock

// UnmarshalJSON accepts both the string shorthand and the block-array form.
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = MessageContent{{Type: BlockText, Text: s}}
		return nil
	}
	var blocks []ContentBlock
	if err := json.Unmarshal(data, &blocks); err != nil {
		return err
	}
	*c = MessageContent(blocks)
	return nil
}

// ContentBlock represents a content block within a message.
type ContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	Thinking  string          `json:"thinking,omitempty"`
	Name      string          `json:"name,omitempty"`
	ID        string          `json:"id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
	Source    json.RawMessage `json:"source,omitempty"`
}

// Delta represents incremental updates within a content block.
type Delta struct {
	Type        string `json:"type,omitempty"`
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
}

// ControlRequest is the payload of a control_request event, carrying an
// interactive prompt (tool permission, plan approval, question).
type ControlRequest struct {
	Subtype   string          `json:"subtype,omitempty"`
	ToolName  string          `json:"tool_name,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
}

// Usage holds token usage information.
type Usage struct {
	InputTokens              int `json:"input_tokens,omitempty"`
	OutputTokens             int `json:"output_tokens,omitempty"`
	CacheReadInputTokens     int `json:"cache_read_input_tokens,omitempty"`
	CacheCreationInputTokens int `json:"cache_creation_input_tokens,omitempty"`
}
