package jobrunner

import (
	"context"
	"fmt"

	"github.com/flowforge/pipeline/streamio"
)

// ActionKind discriminates HandlerAction, restored from the original
// implementation's JobRunnerAction: a StreamHandler's Init hook can start
// from scratch, resume from a prior item index, or skip the step
// entirely, independent of step-level resumability.
type ActionKind int

const (
	ActionKindStart ActionKind = iota
	ActionKindResume
	ActionKindSkip
)

// HandlerAction is what StreamHandler.Init returns to tell RunStreamHandler
// how to begin.
type HandlerAction struct {
	Kind  ActionKind
	Index int
}

// ActionStart begins processing from the first item.
func ActionStart() HandlerAction { return HandlerAction{Kind: ActionKindStart} }

// ActionResume begins processing at the item with the given index,
// skipping (but still counting) everything before it. It is the
// data-store's responsibility to present items in a consistent order,
// since the index is cumulative across runs.
func ActionResume(index int) HandlerAction { return HandlerAction{Kind: ActionKindResume, Index: index} }

// ActionSkip marks the step Complete without reading a single item.
func ActionSkip() HandlerAction { return HandlerAction{Kind: ActionKindSkip} }

// StreamHandler processes a stream item by item, deciding per-item
// success or failure itself and optionally owning its own sinks
// (registered back to the runner via Runner.AwaitOutput so they're
// joined when the step finishes).
type StreamHandler[T any] interface {
	// Init is called once the step is confirmed not already Complete. Its
	// returned HandlerAction decides where (or whether) to start reading.
	Init(ctx context.Context, r *Runner) (HandlerAction, error)

	// ProcessItem handles one item. An error here is recorded as an
	// in-band stream error (IncrCountErr) and logged; it does not abort
	// the stream by itself.
	ProcessItem(ctx context.Context, info ItemInfo, item T, r *Runner) error

	// Shutdown is called once the source is exhausted, before any
	// handler-registered outputs are joined.
	Shutdown(ctx context.Context, r *Runner) error
}

// RunStreamHandler is run_stream's counterpart for handler-driven steps:
// the same reload/skip/budget/persist lifecycle, but each item is handed
// to h instead of pushed straight to a sink.
func RunStreamHandler[T any](ctx context.Context, r *Runner, name string, src streamio.Source[T], h StreamHandler[T]) error {
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

	action, err := h.Init(ctx, r)
	if err != nil {
		return &GenericError{Message: "stream handler init failed: " + err.Error()}
	}

	var indexStart int
	switch action.Kind {
	case ActionKindResume:
		indexStart = action.Index
	case ActionKindSkip:
		_ = r.state.StreamOK(name, nil)
		if err := r.save(); err != nil {
			return err
		}
		r.LogInfo("stream handler requested the step to be skipped")
		return nil
	}

	in, srcHandle := src.Start(ctx, 0)
	if err := r.save(); err != nil {
		return err
	}

	var receivedLines, linesScanned uint64
	for {
		item, ok := <-in
		if !ok {
			break
		}

		if item.Ok() {
			if int(receivedLines) >= indexStart {
				linesScanned++
				info := ItemInfo{Index: int(r.numProcessedItems), Path: src.Name()}
				if perr := h.ProcessItem(ctx, info, item.Value.Content, r); perr != nil {
					r.LogError(&info, perr.Error())
					_ = r.state.IncrCountErr(name)
					r.numProcessItemErrors++
				} else {
					r.numProcessedItems++
					_ = r.state.IncrCountOK(name, item.Value.Origin)
				}
			}
			receivedLines++
		} else {
			info := ItemInfo{Index: int(r.numProcessedItems), Path: src.Name()}
			r.LogError(&info, item.Err.Error())
			_ = r.state.IncrCountErr(name)
			r.numProcessItemErrors++
		}

		if budgetErr := r.checkBudget(); budgetErr != nil {
			_ = r.state.StreamNotOK(name, "reached too many errors", linesScanned)
			_ = r.save()
			return budgetErr
		}
	}

	if err := h.Shutdown(ctx, r); err != nil {
		return &GenericError{Message: "stream handler shutdown failed: " + err.Error()}
	}

	if _, err := srcHandle.Wait(ctx); err != nil {
		return failStream(r, name, linesScanned, err)
	}

	outputs, err := r.drainHandlerOutputs(ctx)
	if err != nil {
		return failStream(r, name, linesScanned, err)
	}

	_ = r.state.StreamOK(name, outputs)
	return r.save()
}
