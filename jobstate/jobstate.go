// Package jobstate implements the persistent job-state machine: a named
// job's ordered step history, its settings bag, and its overall run
// status. jobrunner loads, mutates, and saves a JobState at every step
// boundary via kvstore; jobmanager serializes that access through its
// state-store actor.
package jobstate

import (
	"fmt"
	"time"

	json "github.com/goccy/go-json"
)

// StateExt is the filename extension every persisted job state document
// carries, matching Key's "{instance_id}.{name}.job.json" layout.
const StateExt = "job.json"

// RunStatusKind is the discriminant of RunStatus.
type RunStatusKind string

const (
	RunInProgress RunStatusKind = "in_progress"
	RunCompleted  RunStatusKind = "completed"
	RunFatalError RunStatusKind = "fatal_error"
)

// RunStatus is a job's overall run status. Only FatalError populates
// StepIndex/StepName/Message; the other kinds leave them zero.
type RunStatus struct {
	Kind      RunStatusKind `json:"state"`
	StepIndex int           `json:"step_index,omitempty"`
	StepName  string        `json:"step_name,omitempty"`
	Message   string        `json:"message,omitempty"`
}

// JobState is a named job's persistent record: its step history, its
// settings, and its overall run status. CurStepIndex is intentionally
// unexported and not JSON-tagged: it is transient, advances monotonically
// only within a single execution, and is reset to zero on every load
// because a rerun may add steps that didn't exist in a prior run.
type JobState struct {
	Name        string                     `json:"name"`
	ID          string                     `json:"id"`
	RunStatus   RunStatus                  `json:"runStatus"`
	StepHistory map[string]*StepRecord     `json:"stepHistory"`
	Settings    map[string]json.RawMessage `json:"settings"`

	curStepIndex int
}

// New constructs a fresh in-progress JobState for (name, id).
func New(name, id string) *JobState {
	return &JobState{
		Name:        name,
		ID:          id,
		RunStatus:   RunStatus{Kind: RunInProgress},
		StepHistory: make(map[string]*StepRecord),
		Settings:    make(map[string]json.RawMessage),
	}
}

// Key returns the state store key for (instanceID, name), matching the
// original implementation's JobState::gen_name.
func Key(instanceID, name string) string {
	return fmt.Sprintf("%s.%s.%s", instanceID, name, StateExt)
}

// Load decodes a persisted JobState. CurStepIndex always comes back zero,
// per the reset-on-load invariant: a rerun may add steps that never
// existed in whatever run last saved this record.
func Load(data []byte) (*JobState, error) {
	var s JobState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.StepHistory == nil {
		s.StepHistory = make(map[string]*StepRecord)
	}
	if s.Settings == nil {
		s.Settings = make(map[string]json.RawMessage)
	}
	return &s, nil
}

// Save encodes s for persistence.
func (s *JobState) Save() ([]byte, error) {
	return json.Marshal(s)
}

// Set stores an arbitrary JSON-serializable value under key in the
// job's settings bag.
func (s *JobState) Set(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.Settings[key] = raw
	return nil
}

// Get unmarshals the value stored under key into dst. Returns (false,
// nil) if key isn't set.
func (s *JobState) Get(key string, dst interface{}) (bool, error) {
	raw, ok := s.Settings[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// CommandStep returns the step's Command record, or nil if name was never
// started, or never started as a command.
func (s *JobState) CommandStep(name string) *CommandStatus {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Command == nil {
		return nil
	}
	return rec.Command
}

// StreamStep returns the step's Stream record, or nil if name was never
// started, or never started as a stream.
func (s *JobState) StreamStep(name string) *StreamStatus {
	rec, ok := s.StepHistory[name]
	if !ok || rec.Stream == nil {
		return nil
	}
	return rec.Stream
}

// CurStepIndex returns the in-memory step counter. jobrunner preserves this
// value across a mid-run reload (Load always resets it to zero, since a
// reload is also how a fresh run picks up a changed pipeline shape).
func (s *JobState) CurStepIndex() int { return s.curStepIndex }

// SetCurStepIndex restores a previously observed step counter, used by
// jobrunner immediately after a mid-run Load.
func (s *JobState) SetCurStepIndex(i int) { s.curStepIndex = i }

func nowPtr() *time.Time {
	t := time.Now().UTC()
	return &t
}
