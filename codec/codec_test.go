package codec

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/flowforge/pipeline/errs"
	"github.com/flowforge/pipeline/streamio"
)

type byteSliceSource struct {
	name  string
	lines [][]byte
}

func (s *byteSliceSource) Name() string { return s.name }

func (s *byteSliceSource) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[[]byte]], *streamio.TaskHandle[streamio.SourceStats]) {
	out := make(chan streamio.Result[streamio.Envelope[[]byte]], capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()

	go func() {
		defer close(out)
		var n uint64
		for _, l := range s.lines {
			select {
			case out <- streamio.Result[streamio.Envelope[[]byte]]{Value: streamio.NewEnvelope(s.name, l)}:
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

func TestLineDecoder_LossyReplacesInvalidUTF8(t *testing.T) {
	src := &byteSliceSource{name: "fixture", lines: [][]byte{[]byte("hello"), {0xff, 0xfe}}}
	dec := NewLineDecoder().Decode("fixture", src)

	ctx := context.Background()
	out, handle := dec.Start(ctx, 0)

	var got []string
	for r := range out {
		assert.True(t, r.Ok())
		got = append(got, r.Value.Content)
	}
	_, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, "hello", got[0])
	assert.NotEqual(t, "", got[1]) // replacement char substituted, not dropped
}

func TestJSONLDecoder_BadLineIsInBandDeserializeError(t *testing.T) {
	type rec struct {
		Name string `json:"name"`
	}
	src := &byteSliceSource{name: "fixture", lines: [][]byte{
		[]byte(`{"name":"alice"}`),
		[]byte(`not json`),
		[]byte(`{"name":"bob"}`),
	}}
	dec := NewJSONLDecoder[rec]().Decode("fixture", src)

	ctx := context.Background()
	out, handle := dec.Start(ctx, 0)

	var names []string
	var deserializeErrs int
	for r := range out {
		if r.Ok() {
			names = append(names, r.Value.Content.Name)
		} else {
			assert.True(t, errs.Is(r.Err, errs.Deserialize))
			deserializeErrs++
		}
	}
	stats, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), stats.LinesScanned)
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.Equal(t, 1, deserializeErrs)
}

func TestDelimitedDecoder_CapturesHeaderThenKeysFields(t *testing.T) {
	src := &byteSliceSource{name: "fixture", lines: [][]byte{
		[]byte("id,name"),
		[]byte("1,alice"),
		[]byte("2,bob"),
	}}
	dec := NewDelimitedDecoder(DefaultDelimitedOptions()).Decode("fixture", src)

	ctx := context.Background()
	out, handle := dec.Start(ctx, 0)

	var records []map[string]string
	for r := range out {
		assert.True(t, r.Ok())
		records = append(records, r.Value.Content)
	}
	stats, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(3), stats.LinesScanned) // header line counts too
	assert.Len(t, records, 2)
	assert.Equal(t, "alice", records[0]["name"])
	assert.Equal(t, "2", records[1]["id"])
}

type byteSliceOutput struct {
	name     string
	received [][]byte
}

func (o *byteSliceOutput) Name() string { return o.name }

func (o *byteSliceOutput) Start(ctx context.Context, capacity int) (chan<- []byte, *streamio.TaskHandle[streamio.OutputStats]) {
	in := make(chan []byte, capacityOrDefault(capacity))
	handle, resolve := streamio.NewTaskHandle[streamio.OutputStats]()

	go func() {
		var n uint64
		for b := range in {
			o.received = append(o.received, b)
			n++
		}
		resolve(streamio.OutputStats{Name: o.name, LinesWritten: n}, nil)
	}()

	return in, handle
}

func TestLineEncoder_AppendsNewline(t *testing.T) {
	sink := &byteSliceOutput{name: "fixture"}
	enc := LineEncoder{}.Encode("fixture", sink)

	ctx := context.Background()
	in, handle := enc.Start(ctx, 0)
	in <- "hello"
	in <- "world"
	close(in)

	stats, err := handle.Wait(ctx)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), stats.LinesWritten)
	assert.Equal(t, "hello\n", string(sink.received[0]))
	assert.Equal(t, "world\n", string(sink.received[1]))
}
