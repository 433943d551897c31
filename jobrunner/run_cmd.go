package jobrunner

import (
	"context"
	"fmt"
)

// Command is a single self-contained action run with step-lifecycle
// semantics but no streaming I/O (spec §4.8).
type Command interface {
	// Name identifies the step for jobstate and log lines.
	Name() string
	Run(ctx context.Context, r *Runner) error
}

// RunCmd runs cmd under its own step bookkeeping: reload, skip if already
// Complete, run, then record CmdOK/CmdNotOK and persist.
func RunCmd(ctx context.Context, r *Runner, cmd Command) error {
	if err := r.reload(); err != nil {
		return err
	}

	name := cmd.Name()
	already, err := r.state.StartNewCmd(name, r.cfg.toJobstate())
	if err != nil {
		return err
	}
	if already {
		r.LogInfo(fmt.Sprintf("%s command previously ran, skipping", name))
		return nil
	}

	if runErr := cmd.Run(ctx, r); runErr != nil {
		_ = r.state.CmdNotOK(name, runErr.Error())
		r.caughtErrors = append(r.caughtErrors, runErr)
		r.LogError(nil, fmt.Sprintf("%s command ran into an error: %s", name, runErr))
	} else {
		_ = r.state.CmdOK(name)
	}

	return r.save()
}
