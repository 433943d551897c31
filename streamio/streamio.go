// Package streamio defines the streaming contracts every Source and Output
// implementation in this module is built against: a bounded, backpressured
// channel of envelopes in one direction, and a TaskHandle resolving to
// either final stats or an error once the stream's background goroutine
// exits. codec, transform, combinator, and jobrunner all depend only on
// these interfaces, never on a concrete Source/Output implementation.
package streamio

import "context"

// DefaultChannelCapacity is the buffer size used by Source.Start and
// Output.Start when a caller doesn't request a different one. A capacity of
// one item lets a producer stay one step ahead of its consumer without
// letting either side run away.
const DefaultChannelCapacity = 1

// Envelope wraps a decoded item with the name of the Source it came from.
// Origin lets downstream stages (notably combinator.Splitter branches and
// jobstate per-origin counters) attribute an item to the stream that
// produced it without threading an extra parameter through every stage.
type Envelope[T any] struct {
	Origin  string
	Content T
}

// NewEnvelope constructs an Envelope with the given origin and content.
func NewEnvelope[T any](origin string, content T) Envelope[T] {
	return Envelope[T]{Origin: origin, Content: content}
}

// Result carries either a value or an error, never both. Sources deliver
// Result[Envelope[T]] in-band so that a single malformed line doesn't tear
// down the whole stream: the consumer decides whether to count the error
// and continue or to stop.
type Result[T any] struct {
	Value T
	Err   error
}

// Ok reports whether r carries a value rather than an error.
func (r Result[T]) Ok() bool { return r.Err == nil }

// Stats is implemented by SourceStats and OutputStats so callers that only
// care about "how much got processed" can handle either uniformly.
type Stats interface {
	itemsProcessed() uint64
}

// SourceStats summarizes a finished Source run.
type SourceStats struct {
	// LinesScanned counts every item read from the underlying transport,
	// including ones that produced an in-band decode error.
	LinesScanned uint64
}

func (s SourceStats) itemsProcessed() uint64 { return s.LinesScanned }

// OutputStats summarizes a finished Output run.
type OutputStats struct {
	Name         string
	LinesWritten uint64
}

func (s OutputStats) itemsProcessed() uint64 { return s.LinesWritten }

// Source produces a stream of items. Start spawns whatever goroutine reads
// the underlying transport and returns immediately; the returned channel
// delivers items (and in-band errors) until the Source is exhausted or ctx
// is canceled, at which point the channel is closed and the TaskHandle
// resolves.
type Source[T any] interface {
	// Name identifies the source for logging, envelope origin tagging, and
	// per-origin counters in jobstate.
	Name() string

	// Start begins producing. Capacity, if > 0, overrides
	// DefaultChannelCapacity for the returned channel's buffer.
	Start(ctx context.Context, capacity int) (<-chan Result[Envelope[T]], *TaskHandle[SourceStats])
}

// Output consumes a stream of items. Start spawns whatever goroutine writes
// to the underlying transport and returns immediately; the caller sends
// items on the returned channel and closes it to signal end of input. The
// TaskHandle resolves once every sent item has been written (or an error
// aborted the write loop).
type Output[T any] interface {
	Name() string

	// Start begins consuming. Capacity, if > 0, overrides
	// DefaultChannelCapacity for the returned channel's buffer.
	Start(ctx context.Context, capacity int) (chan<- T, *TaskHandle[OutputStats])
}

func chanCapacity(requested int) int {
	if requested > 0 {
		return requested
	}
	return DefaultChannelCapacity
}
