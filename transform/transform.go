// Package transform lifts a plain I -> (O, error) function onto a
// streamio.Source or streamio.Output, the way codec lifts a byte decoder
// or encoder. The two lifts differ in how they treat a failing
// transform: on the Source side the error is delivered in-band (tagged
// errs.Transformer) so the stream keeps flowing past one bad item; on the
// Output side it is fatal, because by the time an item reaches an Output
// it's about to leave the pipeline and there's nowhere further downstream
// to report a per-item failure.
package transform

import (
	"context"

	"github.com/flowforge/pipeline/errs"
	"github.com/flowforge/pipeline/streamio"
)

// Func is a one-to-one transform stage. The jobName passed to OnSource or
// OnOutput identifies the stage for errs.Transformer so a failure can be
// traced back to the step that produced it.
type Func[I, O any] func(ctx context.Context, item I) (O, error)

// OnSource lifts fn onto upline, a Source[I], returning a Source[O]. A
// transform error becomes an in-band streamio.Result error; the stream
// continues to the next item.
func OnSource[I, O any](jobName string, upline streamio.Source[I], fn Func[I, O]) streamio.Source[O] {
	return &sourceStage[I, O]{jobName: jobName, upline: upline, fn: fn}
}

type sourceStage[I, O any] struct {
	jobName string
	upline  streamio.Source[I]
	fn      Func[I, O]
}

func (s *sourceStage[I, O]) Name() string { return s.upline.Name() }

func (s *sourceStage[I, O]) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[O]], *streamio.TaskHandle[streamio.SourceStats]) {
	in, upHandle := s.upline.Start(ctx, capacity)
	out := make(chan streamio.Result[streamio.Envelope[O]], capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()

	go func() {
		defer close(out)
		var processed uint64
		for r := range in {
			processed++
			if !r.Ok() {
				if !sendResult(ctx, out, streamio.Result[streamio.Envelope[O]]{Err: r.Err}) {
					resolve(streamio.SourceStats{LinesScanned: processed}, ctx.Err())
					return
				}
				continue
			}

			value, err := s.fn(ctx, r.Value.Content)
			if err != nil {
				wrapped := errs.NewTransformer(s.jobName, err)
				if !sendResult(ctx, out, streamio.Result[streamio.Envelope[O]]{Err: wrapped}) {
					resolve(streamio.SourceStats{LinesScanned: processed}, ctx.Err())
					return
				}
				continue
			}

			ok := streamio.Result[streamio.Envelope[O]]{Value: streamio.NewEnvelope(r.Value.Origin, value)}
			if !sendResult(ctx, out, ok) {
				resolve(streamio.SourceStats{LinesScanned: processed}, ctx.Err())
				return
			}
		}

		stats, err := upHandle.Wait(ctx)
		if err != nil {
			resolve(streamio.SourceStats{LinesScanned: processed}, err)
			return
		}
		if stats.LinesScanned > processed {
			processed = stats.LinesScanned
		}
		resolve(streamio.SourceStats{LinesScanned: processed}, nil)
	}()

	return out, handle
}

func sendResult[O any](ctx context.Context, out chan<- streamio.Result[streamio.Envelope[O]], r streamio.Result[streamio.Envelope[O]]) bool {
	select {
	case out <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// OnOutput lifts fn onto downline, an Output[O], returning an Output[I]. A
// transform error here is fatal: the stage resolves its TaskHandle with
// the wrapped error and stops forwarding further items.
func OnOutput[I, O any](jobName string, downline streamio.Output[O], fn Func[I, O]) streamio.Output[I] {
	return &outputStage[I, O]{jobName: jobName, downline: downline, fn: fn}
}

type outputStage[I, O any] struct {
	jobName  string
	downline streamio.Output[O]
	fn       Func[I, O]
}

func (s *outputStage[I, O]) Name() string { return s.downline.Name() }

func (s *outputStage[I, O]) Start(ctx context.Context, capacity int) (chan<- I, *streamio.TaskHandle[streamio.OutputStats]) {
	downIn, downHandle := s.downline.Start(ctx, capacity)
	in := make(chan I, capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.OutputStats]()

	go func() {
		defer close(downIn)
		var written uint64
		for {
			select {
			case <-ctx.Done():
				resolve(streamio.OutputStats{LinesWritten: written}, ctx.Err())
				return
			case item, ok := <-in:
				if !ok {
					stats, err := downHandle.Wait(ctx)
					if err != nil {
						resolve(streamio.OutputStats{LinesWritten: written}, err)
						return
					}
					if stats.LinesWritten > written {
						written = stats.LinesWritten
					}
					resolve(stats, nil)
					return
				}

				value, err := s.fn(ctx, item)
				if err != nil {
					resolve(
						streamio.OutputStats{LinesWritten: written},
						errs.NewTransformer(s.jobName, err),
					)
					return
				}

				select {
				case downIn <- value:
					written++
				case <-ctx.Done():
					resolve(streamio.OutputStats{LinesWritten: written}, ctx.Err())
					return
				}
			}
		}
	}()

	return in, handle
}

func capacityOrDefault(requested int) int {
	if requested > 0 {
		return requested
	}
	return streamio.DefaultChannelCapacity
}
