package combinator

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/flowforge/pipeline/streamio"
)

// LeftJoinResult pairs a left item with a matching right item, carries a
// zero Right and Matched=false if no right item matched it during the
// block that covered it, or carries a non-nil Err if it represents an
// in-band error forwarded from either side instead of a join outcome.
type LeftJoinResult[L, R any] struct {
	Left    L
	Right   R
	Matched bool

	// Err is set when this result is a forwarded in-band error from the
	// left or right source rather than a join outcome; Left/Right/Matched
	// are zero-valued in that case.
	Err error
}

// LeftJoinOptions configures LeftJoin.
type LeftJoinOptions[L, R any] struct {
	// LeftBufLen bounds how many left items are buffered into memory before
	// a right-side scan runs against them. A larger buffer means fewer
	// right-side scans (each of which re-reads the right source from
	// scratch) at the cost of more left items held in memory at once.
	LeftBufLen int

	// CreateRightSource builds a fresh right Source for each block. It's a
	// factory rather than a single Source because the right side must be
	// rescanned once per block of buffered left items: a Source can only
	// be consumed once.
	CreateRightSource func() streamio.Source[R]

	// IsMatch reports whether left and right are joined.
	IsMatch func(left L, right R) bool

	// RightWorkers bounds how many goroutines drain the right source
	// concurrently during a block's scan. IsMatch is called from every
	// worker, so it must be safe for concurrent use. Defaults to 1
	// (no fan-out) when zero or negative.
	RightWorkers int
}

// LeftJoin performs a blocked nested-loop join: it buffers up to
// LeftBufLen items from left, then scans one full pass of a freshly
// constructed right Source for each block, matching every left item in
// the block against every right item in the pass. Left items with at
// least one match during the block are emitted as they match; left items
// with zero matches after the block's scan completes are emitted
// afterward with Matched=false. This repeats, block by block, until left
// is exhausted.
//
// Memory is bounded by LeftBufLen. The right source is rescanned once per
// block, so ceil(len(left)/LeftBufLen) passes read len(right) items each;
// every left item is compared with every right item, len(left)*len(right)
// comparisons in all.
func LeftJoin[L, R any](ctx context.Context, left streamio.Source[L], opts LeftJoinOptions[L, R]) (<-chan LeftJoinResult[L, R], *streamio.TaskHandle[streamio.SourceStats]) {
	if opts.LeftBufLen <= 0 {
		opts.LeftBufLen = 1
	}

	out := make(chan LeftJoinResult[L, R], streamio.DefaultChannelCapacity)
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()

	leftIn, leftHandle := left.Start(ctx, 0)

	go func() {
		defer close(out)
		var totalScanned uint64
		for {
			block, exhausted, err := fillLeftBlock(ctx, out, leftIn, opts.LeftBufLen)
			totalScanned += uint64(len(block))
			if err != nil {
				resolve(streamio.SourceStats{LinesScanned: totalScanned}, err)
				return
			}
			if len(block) == 0 {
				break
			}

			if err := forwardMatches(ctx, out, block, opts); err != nil {
				resolve(streamio.SourceStats{LinesScanned: totalScanned}, err)
				return
			}

			if exhausted {
				break
			}
		}

		stats, err := leftHandle.Wait(ctx)
		if stats.LinesScanned > totalScanned {
			totalScanned = stats.LinesScanned
		}
		resolve(streamio.SourceStats{LinesScanned: totalScanned}, err)
	}()

	return out, handle
}

// fillLeftBlock reads up to capacity items from in, returning early (with
// exhausted=true) if the channel closes first. Left-side in-band errors
// are excluded from the block (they can't be matched against the right
// side) but are forwarded downstream as error LeftJoinResults, per the
// "errors from either side are forwarded in-band" rule.
func fillLeftBlock[L, R any](ctx context.Context, out chan<- LeftJoinResult[L, R], in <-chan streamio.Result[streamio.Envelope[L]], capacity int) ([]L, bool, error) {
	block := make([]L, 0, capacity)
	for len(block) < capacity {
		select {
		case r, ok := <-in:
			if !ok {
				return block, true, nil
			}
			if r.Ok() {
				block = append(block, r.Value.Content)
				continue
			}
			select {
			case out <- LeftJoinResult[L, R]{Err: r.Err}:
			case <-ctx.Done():
				return block, true, ctx.Err()
			}
		case <-ctx.Done():
			return block, true, ctx.Err()
		}
	}
	return block, false, nil
}

// forwardMatches scans one fresh right Source against block, fanning the
// scan out across opts.RightWorkers goroutines via errgroup, emitting a
// LeftJoinResult as soon as a match is found, and emitting an unmatched
// result for every left item that had zero matches once the scan
// completes.
func forwardMatches[L, R any](ctx context.Context, out chan<- LeftJoinResult[L, R], block []L, opts LeftJoinOptions[L, R]) error {
	matchCount := make([]int32, len(block))

	right := opts.CreateRightSource()
	rightIn, rightHandle := right.Start(ctx, 0)

	workers := opts.RightWorkers
	if workers <= 0 {
		workers = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for r := range rightIn {
				if !r.Ok() {
					select {
					case out <- LeftJoinResult[L, R]{Err: r.Err}:
					case <-gctx.Done():
						return gctx.Err()
					}
					continue
				}
				for i, left := range block {
					if opts.IsMatch(left, r.Value.Content) {
						atomic.AddInt32(&matchCount[i], 1)
						select {
						case out <- LeftJoinResult[L, R]{Left: left, Right: r.Value.Content, Matched: true}:
						case <-gctx.Done():
							return gctx.Err()
						}
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if _, err := rightHandle.Wait(ctx); err != nil {
		return err
	}

	for i, left := range block {
		if matchCount[i] == 0 {
			var zero R
			select {
			case out <- LeftJoinResult[L, R]{Left: left, Right: zero, Matched: false}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	return nil
}
