// Package codec adapts byte-oriented Sources and Outputs into typed ones.
// Every decoder here wraps an upstream streamio.Source[[]byte] and produces
// a streamio.Source[T]; every encoder wraps a downstream streamio.Output[[]byte]
// and exposes a streamio.Output[T]. Parse failures are delivered in-band as
// streamio.Result errors carrying errs.Deserialize so one malformed record
// never aborts the stream.
package codec

import (
	"context"
	"errors"

	"github.com/flowforge/pipeline/errs"
	"github.com/flowforge/pipeline/streamio"
)

// errSkipItem is a sentinel a decodedSource's convert function can return to
// mean "this input was consumed but produces no output item" (e.g. a
// captured header line). The item still counts toward LinesScanned but
// isn't forwarded as either a value or a Deserialize error.
var errSkipItem = errors.New("codec: item intentionally produced no output")

// decodedSource lifts a byte Source into a T Source by running convert over
// every item. convert returning errSkipItem silently consumes the item;
// any other non-nil error produces an in-band Deserialize result, with the
// raw line preserved as the error's attempted string for diagnostics.
type decodedSource[T any] struct {
	name    string
	upline  streamio.Source[[]byte]
	convert func(origin string, index uint64, line []byte) (T, error)
}

func (d *decodedSource[T]) Name() string { return d.name }

func (d *decodedSource[T]) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[T]], *streamio.TaskHandle[streamio.SourceStats]) {
	in, upHandle := d.upline.Start(ctx, capacity)
	out := make(chan streamio.Result[streamio.Envelope[T]], capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()

	go func() {
		defer close(out)
		var index uint64
		for r := range in {
			if !r.Ok() {
				forward := streamio.Result[streamio.Envelope[T]]{Err: r.Err}
				select {
				case out <- forward:
				case <-ctx.Done():
					resolve(streamio.SourceStats{LinesScanned: index}, ctx.Err())
					return
				}
				index++
				continue
			}

			value, err := d.convert(r.Value.Origin, index, r.Value.Content)
			index++
			if errors.Is(err, errSkipItem) {
				continue
			}
			if err != nil {
				err = errs.NewDeserialize(err.Error(), string(r.Value.Content))
				select {
				case out <- streamio.Result[streamio.Envelope[T]]{Err: err}:
				case <-ctx.Done():
					resolve(streamio.SourceStats{LinesScanned: index}, ctx.Err())
					return
				}
				continue
			}

			select {
			case out <- streamio.Result[streamio.Envelope[T]]{Value: streamio.NewEnvelope(r.Value.Origin, value)}:
			case <-ctx.Done():
				resolve(streamio.SourceStats{LinesScanned: index}, ctx.Err())
				return
			}
		}

		stats, err := upHandle.Wait(ctx)
		if err != nil {
			resolve(streamio.SourceStats{LinesScanned: index}, err)
			return
		}
		if stats.LinesScanned > index {
			index = stats.LinesScanned
		}
		resolve(streamio.SourceStats{LinesScanned: index}, nil)
	}()

	return out, handle
}

func capacityOrDefault(requested int) int {
	if requested > 0 {
		return requested
	}
	return streamio.DefaultChannelCapacity
}

// encodedOutput lifts a byte Output into a T Output by running convert over
// every item before forwarding the encoded bytes downstream. Unlike decode
// errors, an encode failure here is treated as fatal: a value the caller
// handed us couldn't be turned into bytes at all, so there is nothing
// sensible to forward downstream.
type encodedOutput[T any] struct {
	name    string
	downline streamio.Output[[]byte]
	convert func(v T) ([]byte, error)
}

func (e *encodedOutput[T]) Name() string { return e.name }

func (e *encodedOutput[T]) Start(ctx context.Context, capacity int) (chan<- T, *streamio.TaskHandle[streamio.OutputStats]) {
	downIn, downHandle := e.downline.Start(ctx, capacity)
	in := make(chan T, capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.OutputStats]()

	go func() {
		defer close(downIn)
		var written uint64
		for {
			select {
			case <-ctx.Done():
				resolve(streamio.OutputStats{Name: e.name, LinesWritten: written}, ctx.Err())
				return
			case v, ok := <-in:
				if !ok {
					stats, err := downHandle.Wait(ctx)
					if err != nil {
						resolve(streamio.OutputStats{Name: e.name, LinesWritten: written}, err)
						return
					}
					if stats.LinesWritten > written {
						written = stats.LinesWritten
					}
					resolve(streamio.OutputStats{Name: e.name, LinesWritten: written}, nil)
					return
				}
				encoded, err := e.convert(v)
				if err != nil {
					resolve(
						streamio.OutputStats{Name: e.name, LinesWritten: written},
						errs.NewFatalIO("encode failed", err),
					)
					return
				}
				select {
				case downIn <- encoded:
					written++
				case <-ctx.Done():
					resolve(streamio.OutputStats{Name: e.name, LinesWritten: written}, ctx.Err())
					return
				}
			}
		}
	}()

	return in, handle
}
