package eventq

import (
	"context"
	"testing"
)

func TestOfferSendsWhenRoom(t *testing.T) {
	ch := make(chan int, 1)
	if !Offer(ch, 7) {
		t.Fatalf("Offer() = false, want true")
	}
	if got := <-ch; got != 7 {
		t.Fatalf("received %d, want 7", got)
	}
}

func TestOfferDropsWhenFull(t *testing.T) {
	ch := make(chan int, 1)
	ch <- 1
	if Offer(ch, 2) {
		t.Fatalf("Offer() on full channel = true, want false")
	}
}

func TestOfferSurvivesClosedChannel(t *testing.T) {
	ch := make(chan int)
	close(ch)
	if Offer(ch, 1) {
		t.Fatalf("Offer() on closed channel = true, want false")
	}
}

func TestOfferContextRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ch := make(chan int, 1)
	if OfferContext(ctx, ch, 1) {
		t.Fatalf("OfferContext() with cancelled ctx = true, want false")
	}
}
