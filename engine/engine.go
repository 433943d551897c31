package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/flowforge/pipeline/pool"
)

// Engine executes submitted tasks concurrently over a worker pool and
// delivers their results and errors on two channels.
type Engine[R any] interface {
	// Start begins executing tasks. Start may be called only once;
	// subsequent calls are no-ops. If StopOnError is set, execution stops
	// on the first task error.
	Start(context.Context)

	// AddTask submits t for execution. If the engine hasn't been started
	// and its tasks buffer is unbuffered, AddTask returns ErrInvalidState.
	AddTask(Task[R]) error

	// GetResults returns the channel successful, result-sending tasks
	// deliver their values on.
	GetResults() chan R

	// GetErrors returns the channel task execution errors are delivered on.
	GetErrors() chan error

	// Close cancels the engine's context, waits for the executions already
	// running to return, then closes the results and errors channels.
	// Queued tasks not yet dispatched are not run. Safe to call more than
	// once and concurrently.
	Close()
}

type engine[R any] struct {
	cfg config

	once sync.Once

	pool pool.Pool

	tasks   chan indexedTask[R]
	results chan R
	errors  chan error

	// errorsBuf is the buffer workers write into when StopOnError is
	// enabled; an errorForwarder drains it into errors and cancels on the
	// first entry. When StopOnError is disabled, workers write directly
	// into errors and errorsBuf/forwarder are unused.
	errorsBuf chan error

	nextIndex atomic.Int64

	inflight     sync.WaitGroup
	forwarderWG  sync.WaitGroup
	errorsSendWG sync.WaitGroup
	closeCh      chan struct{}

	lifecycle *lifecycleCoordinator
}

func newEngine[R any](_ context.Context, cfg config) *engine[R] {
	results := make(chan R, cfg.ResultsBufferSize)

	var errorsBuf chan error
	var errors chan error
	if cfg.StopOnError {
		errorsBuf = make(chan error, cfg.StopOnErrorErrorsBufferSize)
		errors = make(chan error, cfg.ErrorsBufferSize)
	} else {
		errors = make(chan error, cfg.ErrorsBufferSize)
	}

	newWorkerFn := func() interface{} {
		dest := errors
		if cfg.StopOnError {
			dest = errorsBuf
		}
		return newWorker[R](results, dest, cfg.ErrorTagging)
	}

	var p pool.Pool
	if cfg.MaxWorkers > 0 {
		p = pool.NewFixed(cfg.MaxWorkers, newWorkerFn)
	} else {
		p = pool.NewDynamic(newWorkerFn)
	}

	tasks := make(chan indexedTask[R], cfg.TasksBufferSize)
	if cfg.TasksBufferSize == 0 {
		tasks = nil // forces ErrInvalidState from AddTask until Start.
	}

	e := &engine[R]{
		cfg:       cfg,
		pool:      p,
		tasks:     tasks,
		results:   results,
		errors:    errors,
		errorsBuf: errorsBuf,
		closeCh:   make(chan struct{}),
	}

	if cfg.StartImmediately {
		e.Start(context.Background())
	}

	return e
}

func (e *engine[R]) Start(ctx context.Context) {
	e.once.Do(func() {
		if e.tasks == nil {
			e.tasks = make(chan indexedTask[R])
		}

		ctx, cancel := context.WithCancel(ctx)

		if e.cfg.StopOnError {
			fwd := newErrorForwarder(e.errorsBuf, e.errors, e.closeCh, cancel, &e.errorsSendWG)
			e.forwarderWG.Add(1)
			go func() {
				defer e.forwarderWG.Done()
				fwd.run()
			}()
		}

		d := newDispatcher[R](e.tasks, e.execute, &e.inflight)
		go d.run(ctx)

		e.lifecycle = newLifecycleCoordinator(
			cancel,
			&e.inflight,
			e.closeCh,
			&e.forwarderWG,
			&e.errorsSendWG,
			e.drainErrorsBuf,
			e.closeResults,
			e.closeErrorsChan,
		)
	})
}

func (e *engine[R]) execute(ctx context.Context, t indexedTask[R]) {
	w := e.pool.Get().(*worker[R])
	w.execute(ctx, t)
	e.pool.Put(w)
}

func (e *engine[R]) drainErrorsBuf() {
	if e.errorsBuf == nil {
		return
	}
	for {
		select {
		case <-e.errorsBuf:
		default:
			return
		}
	}
}

func (e *engine[R]) closeResults() { close(e.results) }

func (e *engine[R]) closeErrorsChan() { close(e.errors) }

// AddTask submits t for execution, assigning it the next submission index.
func (e *engine[R]) AddTask(t Task[R]) error {
	switch {
	case e.tasks == nil:
		return ErrInvalidState
	case cap(e.tasks) > 0 && len(e.tasks) == cap(e.tasks):
		panic("tasks channel is full")
	}

	idx := int(e.nextIndex.Add(1) - 1)
	e.tasks <- indexedTask[R]{Task: t, index: idx}
	return nil
}

func (e *engine[R]) GetResults() chan R    { return e.results }
func (e *engine[R]) GetErrors() chan error { return e.errors }

func (e *engine[R]) Close() {
	if e.lifecycle == nil {
		// Close called before Start: nothing was ever dispatched, so just
		// close the outward channels directly.
		e.closeResults()
		e.closeErrorsChan()
		return
	}
	e.lifecycle.Close()
}
