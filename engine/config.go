package engine

// config holds Engine configuration, assembled by NewOptions from Option
// values. There is exactly one config type: earlier drafts of this engine
// carried a second, narrower copy that NewOptions never consulted; it's
// gone; this is the version every call site, default, and test agrees on.
type config struct {
	// MaxWorkers defines the worker pool's maximum size. Zero (default)
	// means the size is dynamic, grown and shrunk via sync.Pool.
	MaxWorkers uint

	// StartImmediately starts the engine executing tasks as soon as it's
	// constructed, instead of requiring an explicit Start call.
	StartImmediately bool

	// StopOnError cancels remaining and future task execution on the
	// first task error.
	StopOnError bool

	// TasksBufferSize is the size of the tasks channel buffer. Zero means
	// unbuffered, which requires Start to have been called before AddTask
	// will accept work.
	TasksBufferSize uint

	// ResultsBufferSize is the size of the results channel buffer.
	ResultsBufferSize uint

	// ErrorsBufferSize is the size of the outward errors channel buffer.
	ErrorsBufferSize uint

	// StopOnErrorErrorsBufferSize is the size of the internal errors
	// buffer workers write into when StopOnError is enabled. A smaller
	// buffer makes cancellation trigger sooner.
	StopOnErrorErrorsBufferSize uint

	// ErrorTagging wraps every non-nil task error with the task's id (if
	// any) and submission index before it reaches the errors channel.
	ErrorTagging bool
}

// defaultConfig centralizes default values, applied as the base
// configuration NewOptions folds Option values onto.
func defaultConfig() config {
	return config{
		MaxWorkers:                  0,
		StartImmediately:            false,
		StopOnError:                 false,
		TasksBufferSize:             0,
		ResultsBufferSize:           1024,
		ErrorsBufferSize:            1024,
		StopOnErrorErrorsBufferSize: 100,
		ErrorTagging:                false,
	}
}
