package jobrunner

import (
	"context"
	"fmt"

	"github.com/flowforge/pipeline/jobstate"
	"github.com/flowforge/pipeline/streamio"
)

// RunStream moves every item from src to out under step name, following
// spec §4.8's six-step sequence: reload state, skip if already complete,
// start both ends and persist, loop receive-then-send while counting
// per-origin OK/error and polling the error budget after every item, then
// on clean exhaustion record the sink's stats and mark the step Complete.
func RunStream[T any](ctx context.Context, r *Runner, name string, src streamio.Source[T], out streamio.Output[T]) error {
	if err := r.reload(); err != nil {
		return err
	}

	already, err := r.state.StartNewStream(name, r.cfg.toJobstate())
	if err != nil {
		return err
	}
	if already {
		r.LogInfo(fmt.Sprintf("%s stream previously ran, skipping", name))
		return nil
	}

	in, srcHandle := src.Start(ctx, 0)
	sinkIn, sinkHandle := out.Start(ctx, 0)
	if err := r.save(); err != nil {
		return err
	}

	var linesScanned uint64
	for {
		item, ok := <-in
		if !ok {
			break
		}
		linesScanned++

		if item.Ok() {
			select {
			case sinkIn <- item.Value.Content:
				_ = r.state.IncrCountOK(name, item.Value.Origin)
			case <-ctx.Done():
				return unwindStream(ctx, r, name, "context canceled", linesScanned, sinkIn, sinkHandle, ctx.Err())
			}
		} else {
			_ = r.state.IncrCountErr(name)
			r.numProcessItemErrors++
			r.LogError(&ItemInfo{Index: int(linesScanned - 1), Path: src.Name()}, item.Err.Error())
		}

		if budgetErr := r.checkBudget(); budgetErr != nil {
			return unwindStream(ctx, r, name, "reached too many errors", linesScanned, sinkIn, sinkHandle, budgetErr)
		}
	}

	close(sinkIn)
	stats, err := sinkHandle.Wait(ctx)
	if err != nil {
		return failStream(r, name, linesScanned, err)
	}
	if _, err := srcHandle.Wait(ctx); err != nil {
		return failStream(r, name, linesScanned, err)
	}

	_ = r.state.StreamOK(name, []jobstate.OutputStat{{Name: out.Name(), LinesWritten: stats.LinesWritten}})
	return r.save()
}

// unwindStream marks the stream Error at lastIndex, drops the sender,
// awaits the sink so it can flush whatever it already has, and persists,
// matching spec §4.8 step 5's unwind sequence.
func unwindStream[T any](ctx context.Context, r *Runner, name, msg string, lastIndex uint64, sinkIn chan<- T, sinkHandle *streamio.TaskHandle[streamio.OutputStats], retErr error) error {
	_ = r.state.StreamNotOK(name, msg, lastIndex)
	close(sinkIn)
	_, _ = sinkHandle.Wait(ctx)
	_ = r.save()
	return retErr
}

func failStream(r *Runner, name string, lastIndex uint64, cause error) error {
	_ = r.state.StreamNotOK(name, cause.Error(), lastIndex)
	r.caughtErrors = append(r.caughtErrors, cause)
	_ = r.save()
	return &StreamError{Message: cause.Error()}
}
