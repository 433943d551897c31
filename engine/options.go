package engine

import (
	"context"
	"fmt"
)

// Option configures an Engine built via NewOptions.
type Option func(*configOptions)

type configOptions struct {
	cfg          config
	poolSelected poolType
}

type poolType int

const (
	poolUnspecified poolType = iota
	poolDynamic
	poolFixed
)

// WithFixedPool selects a fixed-size worker pool with the given capacity
// (must be > 0).
func WithFixedPool(n uint) Option {
	return func(co *configOptions) {
		if co.poolSelected != poolUnspecified && co.poolSelected != poolFixed {
			panic("conflicting pool options: WithFixedPool and WithDynamicPool both specified")
		}
		if n == 0 {
			panic("WithFixedPool requires n > 0")
		}
		co.poolSelected = poolFixed
		co.cfg.MaxWorkers = n
	}
}

// WithDynamicPool selects a dynamic-size worker pool (the default if no
// pool option is provided).
func WithDynamicPool() Option {
	return func(co *configOptions) {
		if co.poolSelected != poolUnspecified && co.poolSelected != poolDynamic {
			panic("conflicting pool options: WithFixedPool and WithDynamicPool both specified")
		}
		co.poolSelected = poolDynamic
		co.cfg.MaxWorkers = 0
	}
}

// WithTasksBuffer sets the size of the tasks channel buffer.
func WithTasksBuffer(size uint) Option {
	return func(co *configOptions) { co.cfg.TasksBufferSize = size }
}

// WithResultsBuffer sets the size of the results channel buffer (default 1024).
func WithResultsBuffer(size uint) Option {
	return func(co *configOptions) { co.cfg.ResultsBufferSize = size }
}

// WithErrorsBuffer sets the size of the outgoing errors channel buffer (default 1024).
func WithErrorsBuffer(size uint) Option {
	return func(co *configOptions) { co.cfg.ErrorsBufferSize = size }
}

// WithStopOnErrorBuffer sets the size of the internal errors buffer used
// when StopOnError is enabled (default 100).
func WithStopOnErrorBuffer(size uint) Option {
	return func(co *configOptions) { co.cfg.StopOnErrorErrorsBufferSize = size }
}

// WithStartImmediately starts the engine executing tasks immediately.
func WithStartImmediately() Option { return func(co *configOptions) { co.cfg.StartImmediately = true } }

// WithStopOnError cancels remaining execution on the first task error.
func WithStopOnError() Option { return func(co *configOptions) { co.cfg.StopOnError = true } }

// WithErrorTagging wraps task errors with correlation metadata (see
// TaskMetaError, ExtractTaskID, ExtractTaskIndex).
func WithErrorTagging() Option { return func(co *configOptions) { co.cfg.ErrorTagging = true } }

// NewOptions builds an Engine from functional options. It returns an error
// for conflicting or invalid option combinations instead of panicking,
// since callers typically build option lists from caller-controlled
// configuration rather than fixed literals.
func NewOptions[R any](ctx context.Context, opts ...Option) (eng Engine[R], err error) {
	defer func() {
		if p := recover(); p != nil {
			eng, err = nil, fmt.Errorf("invalid engine options: %v", p)
		}
	}()

	co := configOptions{cfg: defaultConfig(), poolSelected: poolUnspecified}
	for _, opt := range opts {
		if opt == nil {
			panic("nil engine option")
		}
		opt(&co)
	}

	if co.poolSelected == poolUnspecified {
		co.poolSelected = poolDynamic
		co.cfg.MaxWorkers = 0
	}

	return newEngine[R](ctx, co.cfg), nil
}
