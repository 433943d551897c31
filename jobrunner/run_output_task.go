package jobrunner

import (
	"context"

	"github.com/flowforge/pipeline/engine"
	"github.com/flowforge/pipeline/jobstate"
	"github.com/flowforge/pipeline/streamio"
)

// OutputTask is a self-contained unit of work that combines its own
// source and sink (e.g. a Pipeline or Apply task) and runs to completion
// on its own, in parallel with the runner's sequential steps.
type OutputTask func(ctx context.Context) (streamio.OutputStats, error)

// outputTaskResult carries the step name alongside its stats, since a
// successful engine result arrives with no id attached (only tagged
// errors do) and join needs to know which step a result belongs to.
type outputTaskResult struct {
	Name  string
	Stats streamio.OutputStats
}

// outputTasks defers every run_output_task call's execution onto a shared
// engine.Engine, the way the original deferred each task's JoinHandle
// until complete(). Tagging every submitted task with its step name lets
// Complete attribute a reported error back to the right step.
type outputTasks struct {
	eng     engine.Engine[outputTaskResult]
	pending int
}

func newOutputTasks(ctx context.Context) (*outputTasks, error) {
	eng, err := engine.NewOptions[outputTaskResult](ctx,
		engine.WithStartImmediately(),
		engine.WithTasksBuffer(16),
		engine.WithErrorTagging(),
	)
	if err != nil {
		return nil, err
	}
	return &outputTasks{eng: eng}, nil
}

// RunOutputTask starts t running in parallel with name's step bookkeeping
// already recorded, and defers joining it until r.Complete.
func RunOutputTask(ctx context.Context, r *Runner, name string, t OutputTask) error {
	if err := r.reload(); err != nil {
		return err
	}

	already, err := r.state.StartNewStream(name, r.cfg.toJobstate())
	if err != nil {
		return err
	}
	if already {
		r.LogInfo(name + " output task previously ran, skipping")
		return nil
	}

	if r.outputs == nil {
		ot, err := newOutputTasks(ctx)
		if err != nil {
			return &GenericError{Message: "failed starting output task engine: " + err.Error()}
		}
		r.outputs = ot
	}

	wrapped := engine.TaskFunc[outputTaskResult](func(ctx context.Context) (outputTaskResult, error) {
		stats, err := t(ctx)
		return outputTaskResult{Name: name, Stats: stats}, err
	}).WithID(name)
	if err := r.outputs.eng.AddTask(wrapped); err != nil {
		return &GenericError{Message: "failed running an output task: " + err.Error()}
	}
	r.outputs.pending++

	return r.save()
}

// join drains exactly outputs.pending completions from the engine and
// records each against the job state by its tagged step name, then closes
// the engine. Called only from Runner.Complete.
func (o *outputTasks) join(ctx context.Context, r *Runner) {
	results := o.eng.GetResults()
	errorsCh := o.eng.GetErrors()

	for i := 0; i < o.pending; i++ {
		select {
		case res := <-results:
			_ = r.state.StreamOK(res.Name, []jobstate.OutputStat{{Name: res.Stats.Name, LinesWritten: res.Stats.LinesWritten}})
		case err := <-errorsCh:
			name, _ := engine.ExtractTaskID(err)
			stepName, _ := name.(string)
			_ = r.state.StreamNotOK(stepName, err.Error(), 0)
			r.caughtErrors = append(r.caughtErrors, err)
		case <-ctx.Done():
			return
		}
	}

	o.eng.Close()
}
