package transcript

import (
	"strings"

	"github.com/overseer-cli/overseer/internal/stream"
)

// Text prefixes that mark content injected by the tooling rather than typed
// by a person: system-instruction injections and local-command echoes.
var internalTextMarkers = []string{
	"<system-",
	"<command-name>",
	"<command-message>",
	"<local-command-stdout>",
	"Caveat: the messages below were generated by the user while running a local command",
}

// IsInternalText reports whether a text payload begins with a recognized
// internal marker and therefore must not appear in the visible transcript.
func IsInternalText(text string) bool {
	trimmed := strings.TrimLeft(text, " \t\r\n")
	for _, marker := range internalTextMarkers {
		if strings.HasPrefix(trimmed, marker) {
			return true
		}
	}
	return false
}

// Include decides whether a raw agent event belongs in the visible
// transcript. entries is the transcript accumulated so far; it is consulted
// only by the result-dedup rule and is never mutated.
func Include(entries []Entry, ev stream.ClaudeEvent) bool {
	switch ev.Type {
	case stream.EventUser:
		return includeUserMessage(ev.Message)
	case stream.EventAssistant:
		return includeAssistantMessage(ev.Message)
	case stream.EventContentBlockStart:
		return includeBlockStart(ev.ContentBlock)
	case stream.EventContentBlockDelta, stream.EventContentBlockStop:
		// Transient rendering hints, not content.
		return false
	case stream.EventResult:
		return includeResult(entries, ev.ResultText)
	case stream.EventControlRequest, stream.EventControlResponse, stream.EventControlCancel:
		// Internal control channel (handshake/keep-alive/cancel).
		return false
	case stream.EventSystem:
		return false
	default:
		return false
	}
}

// includeUserMessage keeps a user message when it has at least one
// non-system content item. Tool results and images always count as content.
func includeUserMessage(msg *stream.Message) bool {
	if msg == nil {
		return false
	}
	for _, block := range msg.Content {
		switch block.Type {
		case stream.BlockText:
			if block.Text != "" && !IsInternalText(block.Text) {
				return true
			}
		case stream.BlockToolResult, stream.BlockImage:
			return true
		}
	}
	return false
}

// includeAssistantMessage keeps an assistant message only when it carries at
// least one narrative text block. A message consisting solely of tool
// invocations is excluded; the invocation itself arrives as its own
// content_block_start event.
func includeAssistantMessage(msg *stream.Message) bool {
	if msg == nil {
		return false
	}
	for _, block := range msg.Content {
		if block.Type == stream.BlockText && block.Text != "" && !IsInternalText(block.Text) {
			return true
		}
	}
	return false
}

// includeBlockStart keeps only the start of tool-use, tool-result, and
// thinking blocks. Narrative text reaches the transcript through the
// assistant message instead.
func includeBlockStart(block *stream.ContentBlock) bool {
	if block == nil {
		return false
	}
	switch block.Type {
	case stream.BlockToolUse, stream.BlockToolResult, stream.BlockThinking:
		return true
	default:
		return false
	}
}

// includeResult applies the turn-scoped duplicate rule: a final result text
// is dropped when it is byte-identical to the most recent assistant narrative
// text within the current turn (the span since the last user entry). The same
// text from an earlier turn does not count as a duplicate.
func includeResult(entries []Entry, resultText string) bool {
	if resultText == "" {
		return false
	}
	last, ok := lastAssistantTextInTurn(entries)
	if ok && last == resultText {
		return false
	}
	return true
}

// lastAssistantTextInTurn walks backward to the most recent user entry (the
// turn boundary) and returns the latest assistant narrative text seen before
// it, if any.
func lastAssistantTextInTurn(entries []Entry) (string, bool) {
	for i := len(entries) - 1; i >= 0; i-- {
		e := &entries[i]
		if e.Source == SourceUser || e.Event.Type == stream.EventUser {
			return "", false
		}
		if e.Event.Type != stream.EventAssistant || e.Event.Message == nil {
			continue
		}
		for j := len(e.Event.Message.Content) - 1; j >= 0; j-- {
			block := e.Event.Message.Content[j]
			if block.Type == stream.BlockText && block.Text != "" {
				return block.Text, true
			}
		}
	}
	return "", false
}
