// Package lookup runs dependent network lookups with abort-and-replace
// semantics: starting a lookup cancels the previous one for the same
// operation, and only the newest call for an operation reports a result.
package lookup

import (
	"context"
	"errors"
	"sync"
)

// ErrSuperseded is returned by a call that a newer call for the same
// operation replaced. Callers drop it silently.
var ErrSuperseded = errors.New("lookup superseded")

type Tracker struct {
	mu       sync.Mutex
	inflight map[string]*call
	next     uint64
}

type call struct {
	generation uint64
	cancel     context.CancelFunc
}

func NewTracker() *Tracker {
	return &Tracker{inflight: map[string]*call{}}
}

// Do runs fn under a context that is cancelled when another Do starts for
// the same operation or when parent is done. A superseded call returns
// ErrSuperseded even if fn finished successfully.
func Do[T any](t *Tracker, parent context.Context, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, generation := t.begin(parent, operation)
	value, err := fn(ctx)
	if !t.finish(operation, generation) {
		var zero T
		return zero, ErrSuperseded
	}
	return value, err
}

// Cancel aborts the in-flight call for operation, if any.
func (t *Tracker) Cancel(operation string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if current, ok := t.inflight[operation]; ok {
		current.cancel()
		delete(t.inflight, operation)
	}
}

// CancelAll aborts every in-flight call.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for operation, current := range t.inflight {
		current.cancel()
		delete(t.inflight, operation)
	}
}

// Pending reports whether a call for operation is in flight.
func (t *Tracker) Pending(operation string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.inflight[operation]
	return ok
}

func (t *Tracker) begin(parent context.Context, operation string) (context.Context, uint64) {
	ctx, cancel := context.WithCancel(parent)
	t.mu.Lock()
	defer t.mu.Unlock()
	if previous, ok := t.inflight[operation]; ok {
		previous.cancel()
	}
	t.next++
	t.inflight[operation] = &call{generation: t.next, cancel: cancel}
	return ctx, t.next
}

// finish reports whether generation is still the newest call for operation.
func (t *Tracker) finish(operation string, generation uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	current, ok := t.inflight[operation]
	if !ok || current.generation != generation {
		return false
	}
	current.cancel()
	delete(t.inflight, operation)
	return true
}
