package guard

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDoSharesInFlightOperation(t *testing.T) {
	var g Guard[int]
	var calls atomic.Int32
	release := make(chan struct{})

	const n = 8
	var started, wg sync.WaitGroup
	results := make([]int, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		started.Add(1)
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			started.Done()
			results[i], errs[i] = g.Do("session-1", func() (int, error) {
				calls.Add(1)
				<-release
				return 42, nil
			})
		}(i)
	}

	// Let the callers pile up on the same key, then release the operation.
	started.Wait()
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("operation invoked %d times, want 1", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error = %v", i, errs[i])
		}
		if results[i] != 42 {
			t.Fatalf("caller %d result = %d, want 42", i, results[i])
		}
	}
}

func TestDoDistinctKeysDoNotContend(t *testing.T) {
	var g Guard[string]
	a, err := g.Do("a", func() (string, error) { return "ra", nil })
	if err != nil || a != "ra" {
		t.Fatalf("Do(a) = %q, %v", a, err)
	}
	b, err := g.Do("b", func() (string, error) { return "rb", nil })
	if err != nil || b != "rb" {
		t.Fatalf("Do(b) = %q, %v", b, err)
	}
}

func TestDoReleasesKeyAfterFailure(t *testing.T) {
	var g Guard[int]
	boom := errors.New("boom")

	if _, err := g.Do("k", func() (int, error) { return 0, boom }); !errors.Is(err, boom) {
		t.Fatalf("first Do error = %v, want %v", err, boom)
	}

	// The key must be retryable after a failure.
	got, err := g.Do("k", func() (int, error) { return 7, nil })
	if err != nil {
		t.Fatalf("second Do error = %v", err)
	}
	if got != 7 {
		t.Fatalf("second Do = %d, want 7", got)
	}
}

func TestDoConvertsPanicToError(t *testing.T) {
	var g Guard[int]

	_, err := g.Do("k", func() (int, error) { panic("synchronous failure") })
	if err == nil {
		t.Fatalf("Do with panicking fn returned nil error")
	}
	if !strings.Contains(err.Error(), "synchronous failure") {
		t.Fatalf("error = %v, want panic payload included", err)
	}

	// And the key must still be released.
	got, err := g.Do("k", func() (int, error) { return 3, nil })
	if err != nil || got != 3 {
		t.Fatalf("Do after panic = %d, %v, want 3, nil", got, err)
	}
}
