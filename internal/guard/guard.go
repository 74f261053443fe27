// Package guard deduplicates concurrent operations per key: while an
// operation for a key is in flight, further callers share its outcome
// instead of starting a second one.
package guard

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Guard runs at most one operation per key at a time. The zero value is
// ready to use. Keys from different Guards never contend.
type Guard[T any] struct {
	group singleflight.Group
}

// Do executes fn under key. If an operation for key is already in flight the
// caller blocks and receives that operation's result instead of invoking fn.
// The key is released when the operation settles, success or failure: a
// panicking fn is converted into an error so that a leaked key can never
// permanently block future calls.
func (g *Guard[T]) Do(key string, fn func() (T, error)) (T, error) {
	v, err, _ := g.group.Do(key, func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("guard: operation for key %q panicked: %v", key, r)
			}
		}()
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	value, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("guard: operation for key %q returned %T", key, v)
	}
	return value, nil
}

// Forget drops any completed-operation memory for key. Present for symmetry
// with singleflight; Do already releases keys on settle, so this is only
// useful in tests.
func (g *Guard[T]) Forget(key string) {
	g.group.Forget(key)
}
