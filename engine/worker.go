package engine

import (
	"context"
	"fmt"
)

// indexedTask pairs a Task with the submission index AddTask assigned it,
// used to tag errors with their position when ErrorTagging is enabled.
type indexedTask[R any] struct {
	Task[R]
	index int
}

// worker executes one task at a time, routing its result/error into the
// engine's channels.
type worker[R any] struct {
	results      chan<- R
	errors       chan<- error
	errorTagging bool
}

func newWorker[R any](results chan<- R, errors chan<- error, errorTagging bool) *worker[R] {
	return &worker[R]{results: results, errors: errors, errorTagging: errorTagging}
}

func (w *worker[R]) execute(ctx context.Context, t indexedTask[R]) {
	defer func() {
		if p := recover(); p != nil {
			w.errors <- fmt.Errorf("task execution panicked: %v", p)
		}
	}()

	result, err := t.Run(ctx)

	if err != nil {
		if w.errorTagging {
			err = newTaskTaggedError(err, t.ID(), t.index)
		}
		w.errors <- err
		return
	}

	if t.SendResult() {
		w.results <- result
	}
}
