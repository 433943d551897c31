package streamio

import (
	"context"
	"sync"
)

// TaskHandle is a single-value future resolving to either stats or an
// error, mirroring how the original job runner awaited a spawned stream
// task's JoinHandle. Source and Output implementations construct one with
// NewTaskHandle and resolve it exactly once from their driving goroutine.
type TaskHandle[S Stats] struct {
	closed chan struct{}

	mu     sync.Mutex
	result Result[S]
}

func newTaskHandle[S Stats]() (*TaskHandle[S], func(S, error)) {
	h := &TaskHandle[S]{closed: make(chan struct{})}
	var once sync.Once
	resolve := func(s S, err error) {
		once.Do(func() {
			h.mu.Lock()
			h.result = Result[S]{Value: s, Err: err}
			h.mu.Unlock()
			close(h.closed)
		})
	}
	return h, resolve
}

// Wait blocks until the task resolves or ctx is canceled, whichever comes
// first. Calling Wait more than once is safe; every call after the first
// observes the same resolved value.
func (h *TaskHandle[S]) Wait(ctx context.Context) (S, error) {
	select {
	case <-h.closed:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result.Value, h.result.Err
	case <-ctx.Done():
		var zero S
		return zero, ctx.Err()
	}
}

// NewTaskHandle exposes handle construction to other packages (codec,
// combinator, transform) implementing their own Source/Output.
func NewTaskHandle[S Stats]() (*TaskHandle[S], func(S, error)) {
	return newTaskHandle[S]()
}
