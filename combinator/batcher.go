package combinator

import (
	"context"

	"github.com/flowforge/pipeline/streamio"
)

// StartsNewBatch decides, given the next item and the batch accumulated so
// far, whether item begins a new batch (true) or extends the current one
// (false). It's called before item is appended, so currentBatch never
// includes item itself.
type StartsNewBatch[T any] func(item T, currentBatch []T) bool

// Batch groups upline's items into batches using startsNewBatch. It emits
// a batch, as a single item, every time startsNewBatch returns true for
// the upcoming item (the batch accumulated so far, provided it's
// non-empty) and once more at the end for whatever remains once upline is
// exhausted.
func Batch[T any](upline streamio.Source[T], startsNewBatch StartsNewBatch[T]) streamio.Source[[]T] {
	return &batcher[T]{upline: upline, startsNewBatch: startsNewBatch}
}

type batcher[T any] struct {
	upline         streamio.Source[T]
	startsNewBatch StartsNewBatch[T]
}

func (b *batcher[T]) Name() string { return b.upline.Name() }

func (b *batcher[T]) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[[]T]], *streamio.TaskHandle[streamio.SourceStats]) {
	in, upHandle := b.upline.Start(ctx, 0)
	out := make(chan streamio.Result[streamio.Envelope[[]T]], capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()

	go func() {
		defer close(out)
		var (
			scanned uint64
			current []T
			origin  string
		)

		emit := func(batch []T) bool {
			cp := make([]T, len(batch))
			copy(cp, batch)
			select {
			case out <- streamio.Result[streamio.Envelope[[]T]]{Value: streamio.NewEnvelope(origin, cp)}:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for r := range in {
			scanned++
			if !r.Ok() {
				if !sendBatchErr(ctx, out, r.Err) {
					resolve(streamio.SourceStats{LinesScanned: scanned}, ctx.Err())
					return
				}
				continue
			}

			origin = r.Value.Origin
			if len(current) > 0 && b.startsNewBatch(r.Value.Content, current) {
				if !emit(current) {
					resolve(streamio.SourceStats{LinesScanned: scanned}, ctx.Err())
					return
				}
				current = current[:0]
			}
			current = append(current, r.Value.Content)
		}

		if len(current) > 0 {
			if !emit(current) {
				resolve(streamio.SourceStats{LinesScanned: scanned}, ctx.Err())
				return
			}
		}

		stats, err := upHandle.Wait(ctx)
		if stats.LinesScanned > scanned {
			scanned = stats.LinesScanned
		}
		resolve(streamio.SourceStats{LinesScanned: scanned}, err)
	}()

	return out, handle
}

func sendBatchErr[T any](ctx context.Context, out chan<- streamio.Result[streamio.Envelope[[]T]], err error) bool {
	select {
	case out <- streamio.Result[streamio.Envelope[[]T]]{Err: err}:
		return true
	case <-ctx.Done():
		return false
	}
}
