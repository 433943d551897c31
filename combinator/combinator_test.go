package combinator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowforge/pipeline/streamio"
)

type intSource struct {
	name string
	vals []int
}

func (s *intSource) Name() string { return s.name }

func (s *intSource) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[int]], *streamio.TaskHandle[streamio.SourceStats]) {
	out := make(chan streamio.Result[streamio.Envelope[int]], capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()
	go func() {
		defer close(out)
		var n uint64
		for _, v := range s.vals {
			select {
			case out <- streamio.Result[streamio.Envelope[int]]{Value: streamio.NewEnvelope(s.name, v)}:
				n++
			case <-ctx.Done():
				resolve(streamio.SourceStats{LinesScanned: n}, ctx.Err())
				return
			}
		}
		resolve(streamio.SourceStats{LinesScanned: n}, nil)
	}()
	return out, handle
}

// resultSource replays a fixed list of Results verbatim, including in-band
// errors, unlike intSource which only ever emits Ok values.
type resultSource[T any] struct {
	name  string
	items []streamio.Result[streamio.Envelope[T]]
}

func (s *resultSource[T]) Name() string { return s.name }

func (s *resultSource[T]) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[T]], *streamio.TaskHandle[streamio.SourceStats]) {
	out := make(chan streamio.Result[streamio.Envelope[T]], capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()
	go func() {
		defer close(out)
		var n uint64
		for _, item := range s.items {
			select {
			case out <- item:
				n++
			case <-ctx.Done():
				resolve(streamio.SourceStats{LinesScanned: n}, ctx.Err())
				return
			}
		}
		resolve(streamio.SourceStats{LinesScanned: n}, nil)
	}()
	return out, handle
}

func drain[T any](ctx context.Context, s streamio.Source[T]) ([]T, streamio.SourceStats, error) {
	out, handle := s.Start(ctx, 0)
	var got []T
	for r := range out {
		if r.Ok() {
			got = append(got, r.Value.Content)
		}
	}
	stats, err := handle.Wait(ctx)
	return got, stats, err
}

func TestSplit_EachBranchSeesEveryItem(t *testing.T) {
	src := &intSource{name: "nums", vals: []int{1, 2, 3}}
	branches := Split[int](src, 3)
	assert.Len(t, branches, 3)
	assert.Equal(t, "nums_0", branches[0].Name())
	assert.Equal(t, "nums_2", branches[2].Name())

	ctx := context.Background()
	type result struct {
		vals  []int
		stats streamio.SourceStats
		err   error
	}
	results := make(chan result, 3)
	for _, b := range branches {
		b := b
		go func() {
			vals, stats, err := drain(ctx, b)
			results <- result{vals, stats, err}
		}()
	}

	for i := 0; i < 3; i++ {
		r := <-results
		assert.NoError(t, r.err)
		assert.Equal(t, []int{1, 2, 3}, r.vals)
		assert.Equal(t, uint64(3), r.stats.LinesScanned)
	}
}

func TestBatch_GroupsByPredicateAndFlushesRemainder(t *testing.T) {
	src := &intSource{name: "nums", vals: []int{1, 1, 2, 2, 2, 3}}
	startsNew := func(item int, current []int) bool {
		return len(current) > 0 && current[len(current)-1] != item
	}
	batched := Batch[int](src, startsNew)

	ctx := context.Background()
	batches, stats, err := drain(ctx, batched)
	assert.NoError(t, err)
	assert.Equal(t, uint64(6), stats.LinesScanned)
	assert.Equal(t, [][]int{{1, 1}, {2, 2, 2}, {3}}, batches)
}

func TestLeftJoin_EmitsMatchesThenUnmatched(t *testing.T) {
	left := &intSource{name: "left", vals: []int{1, 2, 3, 4}}
	makeRight := func() streamio.Source[int] {
		return &intSource{name: "right", vals: []int{2, 2, 4}}
	}

	ctx := context.Background()
	out, handle := LeftJoin[int, int](ctx, left, LeftJoinOptions[int, int]{
		LeftBufLen:        2,
		CreateRightSource: makeRight,
		IsMatch:           func(l, r int) bool { return l == r },
	})

	var matched, unmatched []int
	for r := range out {
		if r.Matched {
			matched = append(matched, r.Left)
		} else {
			unmatched = append(unmatched, r.Left)
		}
	}
	stats, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(4), stats.LinesScanned)
	assert.Equal(t, []int{2}, matched[:1]) // left 2 is in the first block and matches both right 2s
	assert.Contains(t, unmatched, 1)
	assert.Contains(t, unmatched, 3)
	assert.NotContains(t, unmatched, 4)
}

func TestLeftJoin_ForwardsInBandErrorsFromBothSides(t *testing.T) {
	leftErr := errors.New("left decode failed")
	rightErr := errors.New("right decode failed")

	left := &resultSource[int]{name: "left", items: []streamio.Result[streamio.Envelope[int]]{
		{Value: streamio.NewEnvelope("left", 1)},
		{Err: leftErr},
		{Value: streamio.NewEnvelope("left", 2)},
	}}
	makeRight := func() streamio.Source[int] {
		return &resultSource[int]{name: "right", items: []streamio.Result[streamio.Envelope[int]]{
			{Value: streamio.NewEnvelope("right", 2)},
			{Err: rightErr},
		}}
	}

	ctx := context.Background()
	out, handle := LeftJoin[int, int](ctx, left, LeftJoinOptions[int, int]{
		LeftBufLen:        3,
		CreateRightSource: makeRight,
		IsMatch:           func(l, r int) bool { return l == r },
	})

	var errs []error
	var matched, unmatched []int
	for r := range out {
		switch {
		case r.Err != nil:
			errs = append(errs, r.Err)
		case r.Matched:
			matched = append(matched, r.Left)
		default:
			unmatched = append(unmatched, r.Left)
		}
	}
	_, err := handle.Wait(ctx)
	assert.NoError(t, err)

	assert.ElementsMatch(t, []error{leftErr, rightErr}, errs)
	assert.Equal(t, []int{2}, matched)
	assert.Equal(t, []int{1}, unmatched)
}

func TestLeftJoin_RightWorkersFanOutStillMatchesEverything(t *testing.T) {
	left := &intSource{name: "left", vals: []int{1, 2, 3, 4, 5, 6}}
	makeRight := func() streamio.Source[int] {
		return &intSource{name: "right", vals: []int{2, 4, 6}}
	}

	ctx := context.Background()
	out, handle := LeftJoin[int, int](ctx, left, LeftJoinOptions[int, int]{
		LeftBufLen:        6,
		CreateRightSource: makeRight,
		IsMatch:           func(l, r int) bool { return l == r },
		RightWorkers:      4,
	})

	var matched, unmatched []int
	for r := range out {
		if r.Matched {
			matched = append(matched, r.Left)
		} else {
			unmatched = append(unmatched, r.Left)
		}
	}
	_, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.ElementsMatch(t, []int{2, 4, 6}, matched)
	assert.ElementsMatch(t, []int{1, 3, 5}, unmatched)
}
