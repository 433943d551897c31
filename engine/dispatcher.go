package engine

import (
	"context"
	"sync"
)

// dispatcher reads tasks from the input channel and executes each one via
// exec in its own goroutine, tracked by inflight. It stops receiving once
// ctx is canceled; it never closes tasks and never drains it after
// cancellation.
type dispatcher[R any] struct {
	tasks    <-chan indexedTask[R]
	exec     func(context.Context, indexedTask[R])
	inflight *sync.WaitGroup
}

func newDispatcher[R any](
	tasks <-chan indexedTask[R], exec func(context.Context, indexedTask[R]), inflight *sync.WaitGroup,
) *dispatcher[R] {
	return &dispatcher[R]{tasks: tasks, exec: exec, inflight: inflight}
}

// run starts the dispatch loop and returns when ctx is canceled.
func (d *dispatcher[R]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			d.inflight.Add(1)
			go func(tt indexedTask[R]) {
				defer d.inflight.Done()
				d.exec(ctx, tt)
			}(t)
		}
	}
}
