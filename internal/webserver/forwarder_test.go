package webserver

import (
	"testing"
)

func TestRegistryForwardsOnlyToSubscribed(t *testing.T) {
	r := NewConnRegistry()
	subscribed := r.Register()
	other := r.Register()
	r.Attach(subscribed, "s1")

	r.ForwardToSession("s1", []byte(`{"type":"session_snapshot"}`))

	select {
	case data := <-subscribed.Outbound():
		if string(data) != `{"type":"session_snapshot"}` {
			t.Fatalf("forwarded data = %q", data)
		}
	default:
		t.Fatalf("subscribed connection received nothing")
	}

	select {
	case data := <-other.Outbound():
		t.Fatalf("unsubscribed connection received %q", data)
	default:
	}
}

func TestRegistryDetach(t *testing.T) {
	r := NewConnRegistry()
	conn := r.Register()
	r.Attach(conn, "s1")
	r.Detach(conn, "s1")

	r.ForwardToSession("s1", []byte("x"))

	select {
	case data := <-conn.Outbound():
		t.Fatalf("detached connection received %q", data)
	default:
	}
}

func TestRegistryUnregisterClosesOutbound(t *testing.T) {
	r := NewConnRegistry()
	conn := r.Register()
	r.Unregister(conn)

	if _, ok := <-conn.Outbound(); ok {
		t.Fatalf("outbound channel still open after unregister")
	}

	// Forwarding after unregister must not panic on the closed channel.
	r.ForwardToSession("s1", []byte("x"))
}

func TestRegistryDropsOnBackpressure(t *testing.T) {
	r := NewConnRegistry()
	conn := r.Register()
	r.Attach(conn, "s1")

	for i := 0; i < outboundBufferLen+10; i++ {
		r.ForwardToSession("s1", []byte("x"))
	}

	drained := 0
	for {
		select {
		case <-conn.Outbound():
			drained++
			continue
		default:
		}
		break
	}
	if drained != outboundBufferLen {
		t.Fatalf("drained %d messages, want %d (overflow dropped)", drained, outboundBufferLen)
	}
}
