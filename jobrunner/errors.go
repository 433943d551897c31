package jobrunner

import (
	"errors"
	"fmt"
)

// ErrTooManyErrors is returned by run_stream/run_stream_handler when either
// the local per-stream budget or the manager's global budget is exceeded.
// Both unwind the current stream the same way: drop the sender, await the
// sink, mark the step Error, persist.
var ErrTooManyErrors = errors.New("jobrunner: too many errors")

// CompleteError wraps a failure encountered while finishing a job in
// complete(): joining a deferred output task, or notifying the manager
// that the job ended.
type CompleteError struct {
	Message string
}

func (e *CompleteError) Error() string { return fmt.Sprintf("jobrunner: complete failed: %s", e.Message) }

// GenericError is the escape hatch for failures that don't fit any other
// category here (a manager send failure outside complete, for instance).
type GenericError struct {
	Message string
}

func (e *GenericError) Error() string { return fmt.Sprintf("jobrunner: %s", e.Message) }

// StreamError wraps a failure reported by a Source or Output's TaskHandle.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return fmt.Sprintf("jobrunner: stream failed: %s", e.Message) }
