package jobrunner

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/flowforge/pipeline/errs"
	"github.com/flowforge/pipeline/jobstate"
	"github.com/flowforge/pipeline/streamio"
)

// Config is a Runner's per-job settings. It is distinct from the
// manager's global error budget (spec §4.9): MaxErrors bounds only errors
// this Runner's own streams accumulate, one step at a time.
type Config struct {
	// MaxErrors is the maximum number of in-band item errors this runner
	// tolerates within one stream step before returning ErrTooManyErrors;
	// the count restarts at every step boundary. Zero means unlimited (local budget disabled; the
	// manager's global budget, delivered via the TooManyErrors channel,
	// still applies).
	MaxErrors uint64

	// StopOnError, once the job state is FatalError, refuses to start any
	// further step until the state is reset (see jobstate.ErrJobStepError).
	StopOnError bool
}

func (c Config) toJobstate() jobstate.RunnerConfig {
	return jobstate.RunnerConfig{StopOnError: c.StopOnError, MaxErrors: c.MaxErrors}
}

// Runner executes an ordered list of steps against one named job instance.
// A single Runner is not safe for concurrent use: run a separate Runner
// per pipeline if pipelines must execute in parallel.
type Runner struct {
	mgr Manager
	cfg Config

	instanceID string
	name       string

	state        *jobstate.JobState
	stateUpdated bool

	numProcessedItems    uint64
	numProcessItemErrors uint64
	caughtErrors         []error

	tooMany <-chan struct{}

	outputs        *outputTasks
	handlerOutputs []namedOutputHandle
}

type namedOutputHandle struct {
	name   string
	handle *streamio.TaskHandle[streamio.OutputStats]
}

// AwaitOutput registers a sink a StreamHandler started on its own (handed
// back via its own Start call) so Runner can join it. Handler-owned
// outputs are joined synchronously at the end of RunStreamHandler, unlike
// run_output_task's outputs, which are deferred until Complete.
func (r *Runner) AwaitOutput(name string, handle *streamio.TaskHandle[streamio.OutputStats]) {
	r.handlerOutputs = append(r.handlerOutputs, namedOutputHandle{name: name, handle: handle})
}

// drainHandlerOutputs joins every handler-registered output and returns
// their stats, clearing the pending list.
func (r *Runner) drainHandlerOutputs(ctx context.Context) ([]jobstate.OutputStat, error) {
	pending := r.handlerOutputs
	r.handlerOutputs = nil

	stats := make([]jobstate.OutputStat, 0, len(pending))
	for _, p := range pending {
		s, err := p.handle.Wait(ctx)
		if err != nil {
			return stats, err
		}
		stats = append(stats, jobstate.OutputStat{Name: p.name, LinesWritten: s.LinesWritten})
	}
	return stats, nil
}

// New creates a Runner for (instanceID, name), loading any previously
// persisted state and registering with mgr. An empty instanceID gets a
// generated one (SPEC_FULL.md §3's "job instance ids use uuid ... when
// the caller does not supply one explicitly").
func New(mgr Manager, instanceID, name string, cfg Config) (*Runner, error) {
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	r := &Runner{mgr: mgr, cfg: cfg, instanceID: instanceID, name: name}

	state, err := r.loadOrCreate()
	if err != nil {
		return nil, err
	}
	r.state = state

	ch, err := mgr.JobStarted(name, instanceID)
	if err != nil {
		return nil, fmt.Errorf("jobrunner: registering with manager: %w", err)
	}
	r.tooMany = ch

	return r, nil
}

// Name is the job's instance name (the pipeline's logical identity, e.g.
// "extract-patient-data").
func (r *Runner) Name() string { return r.name }

// ID is the job's instance id (e.g. a run's enumerated id).
func (r *Runner) ID() string { return r.instanceID }

// State exposes the current in-memory job state for inspection. Callers
// must not mutate it directly; use SetState.
func (r *Runner) State() *jobstate.JobState { return r.state }

func (r *Runner) key() string { return jobstate.Key(r.instanceID, r.name) }

func (r *Runner) loadOrCreate() (*jobstate.JobState, error) {
	data, err := r.mgr.StateLoad(r.key())
	switch {
	case err == nil:
		return jobstate.Load(data)
	case errs.Is(err, errs.NotExist):
		return jobstate.New(r.name, r.instanceID), nil
	default:
		return nil, err
	}
}

// reload reloads job state from the store at a step boundary. Any pending
// in-memory change is saved first. cur_step_index, which Load always
// resets to zero, is restored to its pre-reload value: a reload mid-run
// must not forget how many steps this run has already touched. The local
// in-band error counter is reset, so MaxErrors applies to each step alone.
func (r *Runner) reload() error {
	if r.stateUpdated {
		if err := r.save(); err != nil {
			return err
		}
		r.stateUpdated = false
	}

	oldIndex := r.state.CurStepIndex()
	fresh, err := r.loadOrCreate()
	if err != nil {
		return err
	}
	fresh.SetCurStepIndex(oldIndex)
	r.state = fresh
	r.numProcessItemErrors = 0
	return nil
}

func (r *Runner) save() error {
	data, err := r.state.Save()
	if err != nil {
		return err
	}
	return r.mgr.StateSave(r.key(), data)
}

// SetState stores an arbitrary JSON-serializable value under key in the
// job's settings bag. The change is flushed on the next step boundary.
func (r *Runner) SetState(key string, v interface{}) error {
	if err := r.state.Set(key, v); err != nil {
		return err
	}
	r.stateUpdated = true
	return nil
}

// GetState unmarshals the value stored under key into dst. Returns
// (false, nil) if key isn't set.
func (r *Runner) GetState(key string, dst interface{}) (bool, error) {
	return r.state.Get(key, dst)
}

// LogInfo forwards an informational line to the manager, tagged with this
// job's name.
func (r *Runner) LogInfo(msg string) { r.mgr.LogInfo(r.name, msg) }

// LogError forwards an error line to the manager, tagged with this job's
// name and, if known, the item being processed.
func (r *Runner) LogError(item *ItemInfo, msg string) { r.mgr.LogError(r.name, item, msg) }

// checkBudget polls the manager's broadcast channel non-blockingly and
// checks this runner's own error counter for the current step, matching spec §4.8
// step 5's "poll the manager→runner channel" and the local max_errors
// threshold from §4.8's error budget paragraph.
func (r *Runner) checkBudget() error {
	select {
	case <-r.tooMany:
		return ErrTooManyErrors
	default:
	}
	if r.cfg.MaxErrors > 0 && r.numProcessItemErrors >= r.cfg.MaxErrors {
		return ErrTooManyErrors
	}
	return nil
}

// Complete awaits every deferred output task, records their stats, sets
// the run status Completed if nothing fatal was caught, persists the
// final state, and notifies the manager the job ended. Must be called
// exactly once, after every run_stream/run_cmd/run_output_task call this
// job needs has returned.
func (r *Runner) Complete(ctx context.Context) (*jobstate.JobState, error) {
	if r.outputs != nil {
		r.outputs.join(ctx, r)
	}

	if len(r.caughtErrors) == 0 {
		r.state.SetRunStatusComplete()
	}

	if err := r.save(); err != nil {
		return nil, &CompleteError{Message: err.Error()}
	}

	r.mgr.JobFinished(r.name, r.instanceID)
	return r.state, nil
}
