package jobstate

import (
	"fmt"
	"time"
)

// StepKind discriminates StepRecord's two step flavors.
type StepKind string

const (
	StepTypeStream  StepKind = "Stream"
	StepTypeCommand StepKind = "Command"
)

// StepRecord is one entry in JobState.StepHistory. Exactly one of Stream
// or Command is set, matching Kind.
type StepRecord struct {
	Name      string   `json:"name"`
	StepIndex int      `json:"stepIndex"`
	Kind      StepKind `json:"stepType"`

	Stream  *StreamStatus  `json:"stream,omitempty"`
	Command *CommandStatus `json:"command,omitempty"`
}

// StreamStatusKind discriminates StreamStatus's lifecycle states.
type StreamStatusKind string

const (
	StreamNew        StreamStatusKind = "new"
	StreamInProgress StreamStatusKind = "in_progress"
	StreamComplete   StreamStatusKind = "complete"
	StreamError      StreamStatusKind = "error"
)

// OutputStat records one sink's final statistics for a finished stream
// step, mirroring streamio.OutputStats.
type OutputStat struct {
	Name         string `json:"name"`
	LinesWritten uint64 `json:"lines_written"`
}

// StreamStatus is a Stream step's terminal status record.
type StreamStatus struct {
	Kind StreamStatusKind `json:"status"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	TotalLinesScanned uint64 `json:"total_lines_scanned"`
	NumErrors         uint64 `json:"num_errors"`

	// Origins counts lines scanned per streamio.Envelope.Origin, keyed by
	// the origin tag (e.g. one entry per file or split branch name).
	Origins map[string]uint64 `json:"origins,omitempty"`

	Message   string `json:"message,omitempty"`
	LastIndex uint64 `json:"last_index,omitempty"`

	Outputs []OutputStat `json:"outputs,omitempty"`
}

func newStreamInProgress() *StreamStatus {
	return &StreamStatus{
		Kind:      StreamInProgress,
		StartedAt: nowPtr(),
		Origins:   make(map[string]uint64),
	}
}

func (s *StreamStatus) complete(outputs []OutputStat) {
	s.Kind = StreamComplete
	s.FinishedAt = nowPtr()
	s.Outputs = outputs
}

func (s *StreamStatus) setError(message string, lastIndex uint64) {
	s.Kind = StreamError
	s.Message = message
	s.LastIndex = lastIndex
	s.FinishedAt = nowPtr()
}

func (s *StreamStatus) incrOK(origin string) {
	s.TotalLinesScanned++
	if origin != "" {
		if s.Origins == nil {
			s.Origins = make(map[string]uint64)
		}
		s.Origins[origin]++
	}
}

func (s *StreamStatus) incrErr() {
	s.NumErrors++
}

// CommandStatusKind discriminates CommandStatus's lifecycle states.
type CommandStatusKind string

const (
	CommandInProgress CommandStatusKind = "in_progress"
	CommandComplete   CommandStatusKind = "complete"
	CommandError      CommandStatusKind = "error"
)

// CommandStatus is a Command step's terminal status record.
type CommandStatus struct {
	Kind CommandStatusKind `json:"status"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	Message string     `json:"message,omitempty"`
	At      *time.Time `json:"at,omitempty"`
}

func newCommandInProgress() *CommandStatus {
	return &CommandStatus{Kind: CommandInProgress, StartedAt: time.Now().UTC()}
}

// RunnerConfig carries the subset of job-runner configuration the state
// machine needs to decide how to react to an already-fatal run: whether a
// new step is allowed to start at all.
type RunnerConfig struct {
	StopOnError bool
	MaxErrors   uint64
}

// ErrJobStepError is returned by StartNewStream/StartNewCmd when the job's
// run status is FatalError and cfg.StopOnError forbids starting any
// further step until the state is manually reset.
type ErrJobStepError struct {
	StepName string
	Message  string
}

func (e *ErrJobStepError) Error() string {
	return fmt.Sprintf("cannot start step %q: job state is FatalError and stop_on_error is set: %s", e.StepName, e.Message)
}

// alreadyComplete reports whether name is an existing step already marked
// Complete, the signal callers use to skip re-running it.
func (s *JobState) alreadyComplete(name string) bool {
	rec, ok := s.StepHistory[name]
	if !ok {
		return false
	}
	switch rec.Kind {
	case StepTypeStream:
		return rec.Stream != nil && rec.Stream.Kind == StreamComplete
	case StepTypeCommand:
		return rec.Command != nil && rec.Command.Kind == CommandComplete
	default:
		return false
	}
}

// StartNewStream begins (or resumes) a Stream step. Returns
// (alreadyComplete=true, nil) if name is already Complete, in which case
// the caller should skip running it. CurStepIndex advances on every call,
// skipped or not, and a newly started step records the value it had
// before the advance as its StepIndex. The already-Complete check matches
// by name only; it does not compare step indices.
func (s *JobState) StartNewStream(name string, cfg RunnerConfig) (alreadyComplete bool, err error) {
	defer func() { s.curStepIndex++ }()

	if s.alreadyComplete(name) {
		return true, nil
	}

	if s.RunStatus.Kind == RunFatalError && cfg.StopOnError {
		return false, &ErrJobStepError{StepName: name, Message: s.RunStatus.Message}
	}

	s.RunStatus = RunStatus{Kind: RunInProgress}
	s.StepHistory[name] = &StepRecord{
		Name:      name,
		StepIndex: s.curStepIndex,
		Kind:      StepTypeStream,
		Stream:    newStreamInProgress(),
	}
	return false, nil
}

// StartNewCmd begins (or resumes) a Command step. See StartNewStream for
// the already-complete and fatal-error rules, which are identical.
func (s *JobState) StartNewCmd(name string, cfg RunnerConfig) (alreadyComplete bool, err error) {
	defer func() { s.curStepIndex++ }()

	if s.alreadyComplete(name) {
		return true, nil
	}

	if s.RunStatus.Kind == RunFatalError && cfg.StopOnError {
		return false, &ErrJobStepError{StepName: name, Message: s.RunStatus.Message}
	}

	s.RunStatus = RunStatus{Kind: RunInProgress}
	s.StepHistory[name] = &StepRecord{
		Name:      name,
		StepIndex: s.curStepIndex,
		Kind:      StepTypeCommand,
		Command:   newCommandInProgress(),
	}
	return false, nil
}

// StreamOK marks name's Stream step Complete, recording the sink
// statistics gathered while it ran.
func (s *JobState) StreamOK(name string, outputs []OutputStat) error {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Stream == nil {
		return fmt.Errorf("jobstate: StreamOK on unknown stream step %q", name)
	}
	rec.Stream.complete(outputs)
	return nil
}

// StreamNotOK marks name's Stream step Error and sets the job's overall
// run status to FatalError.
func (s *JobState) StreamNotOK(name, message string, lastIndex uint64) error {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Stream == nil {
		return fmt.Errorf("jobstate: StreamNotOK on unknown stream step %q", name)
	}
	rec.Stream.setError(message, lastIndex)
	s.RunStatus = RunStatus{Kind: RunFatalError, StepIndex: rec.StepIndex, StepName: name, Message: message}
	return nil
}

// IncrCountOK increments name's Stream step's OK counters, attributing the
// item to origin (which may be "" if the source doesn't tag origins).
func (s *JobState) IncrCountOK(name, origin string) error {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Stream == nil {
		return fmt.Errorf("jobstate: IncrCountOK on unknown stream step %q", name)
	}
	rec.Stream.incrOK(origin)
	return nil
}

// IncrCountErr increments name's Stream step's error counter.
func (s *JobState) IncrCountErr(name string) error {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Stream == nil {
		return fmt.Errorf("jobstate: IncrCountErr on unknown stream step %q", name)
	}
	rec.Stream.incrErr()
	return nil
}

// CmdOK marks name's Command step Complete.
func (s *JobState) CmdOK(name string) error {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Command == nil {
		return fmt.Errorf("jobstate: CmdOK on unknown command step %q", name)
	}
	rec.Command.Kind = CommandComplete
	rec.Command.FinishedAt = nowPtr()
	return nil
}

// CmdNotOK marks name's Command step Error and sets the job's overall run
// status to FatalError.
func (s *JobState) CmdNotOK(name, message string) error {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Command == nil {
		return fmt.Errorf("jobstate: CmdNotOK on unknown command step %q", name)
	}
	at := nowPtr()
	rec.Command.Kind = CommandError
	rec.Command.Message = message
	rec.Command.At = at
	s.RunStatus = RunStatus{Kind: RunFatalError, StepIndex: rec.StepIndex, StepName: name, Message: message}
	return nil
}

// SetRunStatusComplete marks the whole job Completed. jobrunner calls this
// from complete() once every deferred task has joined with no fatal
// errors recorded.
func (s *JobState) SetRunStatusComplete() {
	s.RunStatus = RunStatus{Kind: RunCompleted}
}
