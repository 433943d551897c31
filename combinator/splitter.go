// Package combinator implements the topology-level building blocks that
// compose Sources and Outputs into shapes wider than a single pipe:
// fanning a Source out to several identical branches (Splitter), joining
// two Sources on a predicate (LeftJoin), and grouping a Source's items
// into batches (Batcher).
package combinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowforge/pipeline/streamio"
)

// Split fans upline out into n branch Sources, each receiving a clone of
// every item (and every in-band error) the upstream Source produces. Every
// branch must be read at roughly the same pace: the upstream goroutine
// only pulls its next item once ALL branches have accepted the current
// one, so a slow or abandoned branch throttles the other branches, exactly
// the way a single bounded channel throttles a single consumer.
//
// Branch i is named "{upline.Name()}_{i}".
func Split[T any](upline streamio.Source[T], n int) []streamio.Source[T] {
	if n <= 0 {
		panic("combinator: Split requires n > 0")
	}

	branches := make([]*splitBranch[T], n)
	sources := make([]streamio.Source[T], n)
	for i := 0; i < n; i++ {
		b := &splitBranch[T]{name: fmt.Sprintf("%s_%d", upline.Name(), i)}
		branches[i] = b
		sources[i] = b
	}

	coordinator := &splitCoordinator[T]{upline: upline, branches: branches}
	for _, b := range branches {
		b.coordinator = coordinator
	}

	return sources
}

type splitCoordinator[T any] struct {
	upline   streamio.Source[T]
	branches []*splitBranch[T]

	once sync.Once
	out  []chan streamio.Result[streamio.Envelope[T]]
	// handles, one per branch, all resolved with the same upstream outcome
	// once the fan-out goroutine exits.
	handles  []*streamio.TaskHandle[streamio.SourceStats]
	resolves []func(streamio.SourceStats, error)
}

func (c *splitCoordinator[T]) start(ctx context.Context, capacity int) {
	c.once.Do(func() {
		n := len(c.branches)
		c.out = make([]chan streamio.Result[streamio.Envelope[T]], n)
		c.handles = make([]*streamio.TaskHandle[streamio.SourceStats], n)
		c.resolves = make([]func(streamio.SourceStats, error), n)
		for i := 0; i < n; i++ {
			c.out[i] = make(chan streamio.Result[streamio.Envelope[T]], capacityOrDefault(capacity))
			h, r := streamio.NewTaskHandle[streamio.SourceStats]()
			c.handles[i] = h
			c.resolves[i] = r
		}

		in, upHandle := c.upline.Start(ctx, capacity)

		go func() {
			for _, ch := range c.out {
				defer close(ch)
			}

			var scanned uint64
			for item := range in {
				scanned++
				for _, ch := range c.out {
					select {
					case ch <- item:
					case <-ctx.Done():
						c.resolveAll(streamio.SourceStats{LinesScanned: scanned}, ctx.Err())
						return
					}
				}
			}

			stats, err := upHandle.Wait(ctx)
			if stats.LinesScanned < scanned {
				stats.LinesScanned = scanned
			}
			c.resolveAll(stats, err)
		}()
	})
}

func (c *splitCoordinator[T]) resolveAll(stats streamio.SourceStats, err error) {
	for _, resolve := range c.resolves {
		resolve(stats, err)
	}
}

type splitBranch[T any] struct {
	name        string
	coordinator *splitCoordinator[T]
	index       int
}

func (b *splitBranch[T]) Name() string { return b.name }

func (b *splitBranch[T]) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[T]], *streamio.TaskHandle[streamio.SourceStats]) {
	b.coordinator.start(ctx, capacity)
	idx := indexOf(b.coordinator.branches, b)
	return b.coordinator.out[idx], b.coordinator.handles[idx]
}

func indexOf[T any](branches []*splitBranch[T], target *splitBranch[T]) int {
	for i, b := range branches {
		if b == target {
			return i
		}
	}
	return -1
}

func capacityOrDefault(requested int) int {
	if requested > 0 {
		return requested
	}
	return streamio.DefaultChannelCapacity
}
