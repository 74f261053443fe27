// Package client implements the viewer-side transport: a websocket
// connection to an overseer daemon that survives network flaps. Messages
// sent while disconnected are queued and flushed on reconnect; hydration
// requests carry correlation ids so a late snapshot from a superseded
// attempt cannot corrupt current state.
package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/overseer-cli/overseer/internal/debug"
	"github.com/overseer-cli/overseer/internal/hexid"
	"github.com/overseer-cli/overseer/internal/hub"
)

// Connection status, reported through the OnStatus callback.
const (
	StatusDisconnected = "disconnected" // terminal until Redial or Close
	StatusConnecting   = "connecting"
	StatusOpen         = "open"
	StatusReconnecting = "reconnecting"
)

// Reconnect policy.
const (
	backoffBase    = 1 * time.Second
	backoffCap     = 30 * time.Second
	jitterFraction = 0.25
	maxAttempts    = 10
)

// Outbound queue policy. Messages beyond the cap drop oldest-first; flushes
// happen in batches so a freshly opened socket is not flooded.
const (
	outboundQueueCap = 64
	flushBatchSize   = 16
)

// timeSensitiveTypes are commands that are meaningless once the moment they
// were issued for has passed. They are dropped, not replayed, on reconnect.
var timeSensitiveTypes = map[string]bool{
	hub.MsgStop:      true,
	hub.MsgInterrupt: true,
}

// ErrClosed is returned by Send after an intentional Close.
var ErrClosed = errors.New("client: transport closed")

// Options configures a Transport.
type Options struct {
	// URL is the daemon websocket endpoint, e.g. ws://host:port/ws.
	URL string
	// Token is appended as ?token= when set.
	Token string

	// OnMessage receives every decoded server message. Called from the
	// transport's read goroutine.
	OnMessage func(*hub.WireMsg)
	// OnStatus observes state transitions.
	OnStatus func(status string)
}

// Transport is a reconnecting websocket client. Construct with New, start
// with Dial.
type Transport struct {
	opts Options

	mu       sync.Mutex
	status   string
	ws       *websocket.Conn
	queue    [][]byte
	attempt  int
	closed   bool
	loadReq  string // outstanding hydration correlation id, "" when none
	runCtx   context.Context
	runStop  context.CancelFunc
	lastSub  *hub.WireSubscribe
	randsrc  *rand.Rand
	delayFor func(time.Duration) <-chan time.Time
}

// New creates a transport. Dial starts it.
func New(opts Options) *Transport {
	return &Transport{
		opts:     opts,
		status:   StatusDisconnected,
		randsrc:  rand.New(rand.NewSource(time.Now().UnixNano())),
		delayFor: func(d time.Duration) <-chan time.Time { return time.After(d) },
	}
}

// Status returns the current connection status.
func (t *Transport) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

func (t *Transport) setStatus(status string) {
	t.mu.Lock()
	changed := t.status != status
	t.status = status
	cb := t.opts.OnStatus
	t.mu.Unlock()
	if changed && cb != nil {
		cb(status)
	}
}

// Dial starts the connect/reconnect loop. It returns once the loop is
// running; connection progress is reported through OnStatus.
func (t *Transport) Dial(ctx context.Context) {
	t.mu.Lock()
	if t.runStop != nil {
		t.mu.Unlock()
		return
	}
	runCtx, stop := context.WithCancel(ctx)
	t.runCtx = runCtx
	t.runStop = stop
	t.closed = false
	t.attempt = 0
	t.mu.Unlock()

	go t.run(runCtx)
}

// Redial restarts a transport that reached the terminal disconnected state.
func (t *Transport) Redial(ctx context.Context) {
	t.mu.Lock()
	if t.runStop != nil {
		t.runStop()
		t.runStop = nil
	}
	t.mu.Unlock()
	t.Dial(ctx)
}

// Close tears the transport down intentionally: no reconnect is attempted
// and the outbound queue is discarded.
func (t *Transport) Close() {
	t.mu.Lock()
	t.closed = true
	t.queue = nil
	t.loadReq = ""
	stop := t.runStop
	t.runStop = nil
	ws := t.ws
	t.ws = nil
	t.mu.Unlock()

	if ws != nil {
		_ = ws.Close(websocket.StatusNormalClosure, "client closing")
	}
	if stop != nil {
		stop()
	}
	t.setStatus(StatusDisconnected)
}

// run drives the state machine until intentional close, context
// cancellation, or reconnect exhaustion.
func (t *Transport) run(ctx context.Context) {
	for {
		t.setStatus(StatusConnecting)
		ws, err := t.connect(ctx)
		if err != nil {
			if !t.scheduleRetry(ctx, err) {
				return
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = ws.Close(websocket.StatusNormalClosure, "client closing")
			return
		}
		t.ws = ws
		t.attempt = 0
		t.mu.Unlock()
		t.setStatus(StatusOpen)

		t.resubscribe()
		t.flushQueue()

		readErr := t.readLoop(ctx, ws)

		t.mu.Lock()
		t.ws = nil
		intentional := t.closed
		t.mu.Unlock()
		if intentional || ctx.Err() != nil {
			t.setStatus(StatusDisconnected)
			return
		}
		if !t.scheduleRetry(ctx, readErr) {
			return
		}
	}
}

func (t *Transport) connect(ctx context.Context) (*websocket.Conn, error) {
	url := t.opts.URL
	if t.opts.Token != "" {
		url += "?token=" + t.opts.Token
	}
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(dialCtx, url, nil)
	return ws, err
}

// scheduleRetry sleeps out the backoff for the current attempt. It returns
// false when the attempt budget is exhausted or the context ended, leaving
// the transport terminally disconnected.
func (t *Transport) scheduleRetry(ctx context.Context, cause error) bool {
	t.mu.Lock()
	attempt := t.attempt
	t.attempt++
	t.mu.Unlock()

	if attempt >= maxAttempts {
		debug.LogKV("client", "reconnect attempts exhausted", "attempts", attempt, "cause", cause)
		t.setStatus(StatusDisconnected)
		return false
	}

	t.setStatus(StatusReconnecting)
	delay := t.backoffDelay(attempt)
	debug.LogKV("client", "scheduling reconnect", "attempt", attempt, "delay_ms", delay.Milliseconds())

	select {
	case <-ctx.Done():
		t.setStatus(StatusDisconnected)
		return false
	case <-t.delayFor(delay):
		return true
	}
}

// backoffDelay computes min(cap, base * 2^attempt) * (1 + jitter) with
// jitter drawn from [0, 0.25).
func (t *Transport) backoffDelay(attempt int) time.Duration {
	base := float64(backoffBase) * math.Pow(2, float64(attempt))
	if base > float64(backoffCap) {
		base = float64(backoffCap)
	}
	t.mu.Lock()
	jitter := t.randsrc.Float64() * jitterFraction
	t.mu.Unlock()
	return time.Duration(base * (1 + jitter))
}

// readLoop decodes server messages until the socket fails.
func (t *Transport) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		msg, err := hub.DecodeMsg(data)
		if err != nil {
			continue
		}
		t.acceptMessage(msg)
	}
}

// acceptMessage applies the correlation guard and hands the message to the
// caller. A snapshot matching the outstanding hydration id clears the guard;
// a snapshot with a different or absent id is ordinary traffic and leaves
// the guard pending.
func (t *Transport) acceptMessage(msg *hub.WireMsg) {
	if msg.Type == hub.MsgSessionSnapshot {
		if snap, err := hub.DecodeData[hub.SessionSnapshot](msg); err == nil {
			t.mu.Lock()
			if t.loadReq != "" && snap.LoadRequestID == t.loadReq {
				t.loadReq = ""
			}
			t.mu.Unlock()
		}
	}
	if t.opts.OnMessage != nil {
		t.opts.OnMessage(msg)
	}
}

// AwaitingHydration reports whether a subscribe is outstanding.
func (t *Transport) AwaitingHydration() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loadReq != ""
}

// Subscribe sends a subscribe request tagged with a fresh correlation id,
// superseding any outstanding one. The subscription is replayed on
// reconnect with a new id.
func (t *Transport) Subscribe(sub hub.WireSubscribe) error {
	sub.LoadRequestID = hexid.NewN(12)

	t.mu.Lock()
	t.loadReq = sub.LoadRequestID
	t.lastSub = &sub
	t.mu.Unlock()

	return t.Send(hub.MsgSubscribe, sub)
}

// resubscribe replays the current subscription after a reconnect, with a
// fresh correlation id so a late snapshot from the previous attempt is
// ignored.
func (t *Transport) resubscribe() {
	t.mu.Lock()
	sub := t.lastSub
	t.mu.Unlock()
	if sub == nil {
		return
	}
	if err := t.Subscribe(*sub); err != nil {
		debug.LogKV("client", "resubscribe failed", "session", sub.SessionID, "err", err)
	}
}

// Send encodes and transmits a message, queueing it when the socket is down.
func (t *Transport) Send(msgType string, payload any) error {
	data, err := hub.EncodeMsg(msgType, payload)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrClosed
	}
	ws := t.ws
	if ws == nil {
		t.enqueueLocked(data)
		t.mu.Unlock()
		return nil
	}
	ctx := t.runCtx
	t.mu.Unlock()

	if err := t.write(ctx, ws, data); err != nil {
		t.mu.Lock()
		t.enqueueLocked(data)
		t.mu.Unlock()
		return nil
	}
	return nil
}

// enqueueLocked appends to the outbound queue, dropping the oldest entry
// beyond the cap. Caller holds t.mu.
func (t *Transport) enqueueLocked(data []byte) {
	if len(t.queue) >= outboundQueueCap {
		drop := len(t.queue) - outboundQueueCap + 1
		t.queue = append(t.queue[:0], t.queue[drop:]...)
	}
	t.queue = append(t.queue, data)
}

// flushQueue drains the outbound queue onto a freshly opened socket in
// bounded batches, filtering out time-sensitive messages and re-queuing the
// remainder on failure.
func (t *Transport) flushQueue() {
	for {
		t.mu.Lock()
		if len(t.queue) == 0 || t.ws == nil {
			t.mu.Unlock()
			return
		}
		n := len(t.queue)
		if n > flushBatchSize {
			n = flushBatchSize
		}
		batch := t.queue[:n]
		t.queue = append([][]byte(nil), t.queue[n:]...)
		ws := t.ws
		ctx := t.runCtx
		t.mu.Unlock()

		for i, data := range batch {
			// Time-sensitive commands are meaningless after the fact, and a
			// queued subscribe carries a superseded correlation id —
			// resubscribe already sent a fresh one for this connection.
			if msg, err := hub.DecodeMsg(data); err == nil &&
				(timeSensitiveTypes[msg.Type] || msg.Type == hub.MsgSubscribe) {
				continue
			}
			if err := t.write(ctx, ws, data); err != nil {
				// Put the unsent tail back at the front, preserving order.
				t.mu.Lock()
				t.queue = append(append([][]byte(nil), batch[i:]...), t.queue...)
				t.mu.Unlock()
				return
			}
		}
	}
}

func (t *Transport) write(ctx context.Context, ws *websocket.Conn, data []byte) error {
	if ctx == nil {
		ctx = context.Background()
	}
	writeCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("client: write: %w", err)
	}
	return nil
}
