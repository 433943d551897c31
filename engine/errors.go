package engine

import "errors"

const Namespace = "engine"

var (
	ErrInvalidState = errors.New(
		Namespace + ": cannot add a task for a non-started engine with an unbuffered tasks channel",
	)
	ErrTaskCancelled = errors.New(Namespace + ": task execution cancelled")
	ErrTaskPanicked  = errors.New(Namespace + ": task execution panicked")
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
)
