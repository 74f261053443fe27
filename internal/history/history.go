// Package history reconstructs a session transcript from the persisted JSONL
// log the agent CLI writes. The log is the source of truth after a crash or
// restart; the hub re-reads it through this package on hydration.
package history

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/stream"
	"github.com/overseer-cli/overseer/internal/transcript"
)

const maxLogLineSize = 2 * 1024 * 1024 // persisted lines can exceed the live-stream bound

// logRecord is one line of the persisted session log. Only the fields the
// cold-start policy needs are decoded; everything else stays in the message
// payload.
type logRecord struct {
	Type      string          `json:"type"`
	UUID      string          `json:"uuid,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
	IsMeta    bool            `json:"isMeta,omitempty"`
	Message   *stream.Message `json:"message,omitempty"`
}

// Reader loads session histories from a directory of JSONL logs.
type Reader struct {
	dir string
}

// NewReader creates a Reader rooted at dir. Session logs live at
// <dir>/<externalSessionID>.jsonl.
func NewReader(dir string) *Reader {
	return &Reader{dir: dir}
}

// LoadHistory reads the persisted log for externalSessionID and returns the
// ordered visible transcript. The id is normally a bare session id resolved
// under the reader's directory; an absolute path to a log file is accepted
// as-is. A missing log is not an error: a session that has not produced
// output yet simply has an empty history.
func (r *Reader) LoadHistory(externalSessionID string) ([]transcript.Entry, error) {
	var path string
	switch {
	case filepath.IsAbs(externalSessionID):
		path = externalSessionID
	case strings.ContainsAny(externalSessionID, `/\`):
		return nil, fmt.Errorf("history: invalid session id %q", externalSessionID)
	default:
		path = filepath.Join(r.dir, externalSessionID+".jsonl")
	}
	entries, err := Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return entries, nil
}

// Load reads one persisted JSONL log and returns the ordered visible
// transcript, applying the cold-start inclusion rules: records marked as
// internal metadata or lacking a message payload are dropped, and message
// payloads run through the transcript policy. Surviving entries keep their
// original order.
func Load(path string) ([]transcript.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLogLineSize)

	var entries []transcript.Entry
	index := -1
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		index++

		var rec logRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			// A corrupt line is a corrupt log; surface it rather than
			// publishing a partial transcript.
			return nil, fmt.Errorf("history: %s line %d: %w", filepath.Base(path), index+1, err)
		}

		ev, ok := recordEvent(&rec)
		if !ok {
			continue
		}
		if !transcript.Include(entries, ev) {
			continue
		}

		entries = append(entries, transcript.Entry{
			ID:        recordID(&rec, index),
			Source:    recordSource(&rec),
			Event:     ev,
			Timestamp: rec.Timestamp,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("history: reading %s: %w", filepath.Base(path), err)
	}

	debug.LogKV("history", "log loaded", "path", path, "entries", len(entries))
	return entries, nil
}

// recordEvent converts a log record into a stream event, or reports that the
// record carries nothing the transcript can show.
func recordEvent(rec *logRecord) (stream.ClaudeEvent, bool) {
	if rec.IsMeta || rec.Message == nil {
		return stream.ClaudeEvent{}, false
	}
	switch rec.Type {
	case stream.EventUser, stream.EventAssistant:
		return stream.ClaudeEvent{Type: rec.Type, Message: rec.Message}, true
	default:
		// summary/system/queue records are log bookkeeping, not content.
		return stream.ClaudeEvent{}, false
	}
}

func recordSource(rec *logRecord) string {
	if rec.Type == stream.EventUser {
		return transcript.SourceUser
	}
	return transcript.SourceAgent
}

// recordID prefers the log's own stable UUID. Records without one get an ID
// derived from position and timestamp, so re-hydrating identical content
// yields identical IDs.
func recordID(rec *logRecord, index int) string {
	if rec.UUID != "" {
		return rec.UUID
	}
	return fmt.Sprintf("log-%04d-%d", index, rec.Timestamp.UnixMilli())
}
