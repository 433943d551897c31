package engine

import (
	"context"
	"fmt"
)

// Task is a unit of work the engine can execute. Run must honor ctx
// cancellation; SendResult reports whether a successful Run should be
// delivered on the engine's results channel (error-only tasks answer
// false). WithID attaches a caller-supplied correlation id retrievable via
// ID, used by error tagging and by callers that need to recognize which
// submitted task a given completion belongs to.
type Task[R any] interface {
	Run(ctx context.Context) (R, error)
	SendResult() bool
	ID() any
	WithID(id any) Task[R]
}

// TaskFunc adapts a func(context.Context) (R, error) into a Task that
// sends its result.
type TaskFunc[R any] func(context.Context) (R, error)

func (f TaskFunc[R]) Run(ctx context.Context) (R, error) {
	return runGuarded(ctx, func(ctx context.Context) (R, error) { return f(ctx) })
}
func (f TaskFunc[R]) SendResult() bool        { return true }
func (f TaskFunc[R]) ID() any                 { return nil }
func (f TaskFunc[R]) WithID(id any) Task[R] { return &idTask[R]{Task: f, id: id} }

// TaskValue adapts a func(context.Context) R (no error) into a Task that
// sends its result.
type TaskValue[R any] func(context.Context) R

func (f TaskValue[R]) Run(ctx context.Context) (R, error) {
	return runGuarded(ctx, func(ctx context.Context) (R, error) { return f(ctx), nil })
}
func (f TaskValue[R]) SendResult() bool        { return true }
func (f TaskValue[R]) ID() any                 { return nil }
func (f TaskValue[R]) WithID(id any) Task[R] { return &idTask[R]{Task: f, id: id} }

// TaskError adapts a func(context.Context) error into a Task that never
// sends a result (only its error, if any, reaches the errors channel).
type TaskError[R any] func(context.Context) error

func (f TaskError[R]) Run(ctx context.Context) (R, error) {
	return runGuarded(ctx, func(ctx context.Context) (R, error) {
		var zero R
		return zero, f(ctx)
	})
}
func (f TaskError[R]) SendResult() bool        { return false }
func (f TaskError[R]) ID() any                 { return nil }
func (f TaskError[R]) WithID(id any) Task[R] { return &idTask[R]{Task: f, id: id} }

// idTask wraps another Task to carry a caller-assigned id, overriding only
// ID. Embedding delegates Run/SendResult/WithID to the inner task.
type idTask[R any] struct {
	Task[R]
	id any
}

func (t *idTask[R]) ID() any { return t.id }

func (t *idTask[R]) WithID(id any) Task[R] {
	return &idTask[R]{Task: t.Task, id: id}
}

// runGuarded executes fn in its own goroutine, recovering a panic into an
// error and returning early with ctx.Err() if ctx is canceled first.
func runGuarded[R any](ctx context.Context, fn func(context.Context) (R, error)) (R, error) {
	var (
		result R
		err    error
	)

	done := make(chan struct{}, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("task execution panicked: %v", p)
			}
			done <- struct{}{}
		}()
		result, err = fn(ctx)
	}()

	select {
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	case <-done:
		return result, err
	}
}
