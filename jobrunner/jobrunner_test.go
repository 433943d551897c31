package jobrunner

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/errs"
	"github.com/flowforge/pipeline/streamio"
)

// fakeManager is a minimal in-process Manager: logs are captured, state is
// kept in a map, and TooManyErrors is delivered by closing tooMany.
type fakeManager struct {
	mu       sync.Mutex
	store    map[string][]byte
	infos    []string
	errs     []string
	tooMany  chan struct{}
	started  int
	finished int
}

func newFakeManager() *fakeManager {
	return &fakeManager{store: make(map[string][]byte), tooMany: make(chan struct{})}
}

func (m *fakeManager) LogInfo(sender, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, sender+": "+msg)
}

func (m *fakeManager) LogError(sender string, item *ItemInfo, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, sender+": "+msg)
}

func (m *fakeManager) JobStarted(name, id string) (<-chan struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return m.tooMany, nil
}

func (m *fakeManager) JobFinished(name, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished++
}

func (m *fakeManager) TaskStarted(name string)  {}
func (m *fakeManager) TaskFinished(name string) {}

func (m *fakeManager) StateLoad(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.store[key]
	if !ok {
		return nil, errs.NewNotExist(key, nil)
	}
	return data, nil
}

func (m *fakeManager) StateSave(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.store[key] = cp
	return nil
}

// sliceSource replays a fixed list of results, recording whether it was
// ever started (so scenario D can assert a never-started source).
type sliceSource struct {
	name    string
	items   []streamio.Result[streamio.Envelope[string]]
	started bool
	panics  bool
}

func (s *sliceSource) Name() string { return s.name }

func (s *sliceSource) Start(ctx context.Context, capacity int) (<-chan streamio.Result[streamio.Envelope[string]], *streamio.TaskHandle[streamio.SourceStats]) {
	if s.panics {
		panic("sliceSource: start should never be called for an already-complete step")
	}
	s.started = true
	out := make(chan streamio.Result[streamio.Envelope[string]], 1)
	handle, resolve := streamio.NewTaskHandle[streamio.SourceStats]()
	go func() {
		defer close(out)
		var scanned uint64
		for _, item := range s.items {
			out <- item
			scanned++
		}
		resolve(streamio.SourceStats{LinesScanned: scanned}, nil)
	}()
	return out, handle
}

// sliceOutput collects every item sent to it.
type sliceOutput struct {
	name     string
	mu       sync.Mutex
	received []string
}

func (o *sliceOutput) Name() string { return o.name }

func (o *sliceOutput) Start(ctx context.Context, capacity int) (chan<- string, *streamio.TaskHandle[streamio.OutputStats]) {
	in := make(chan string, 1)
	handle, resolve := streamio.NewTaskHandle[streamio.OutputStats]()
	go func() {
		var written uint64
		for item := range in {
			o.mu.Lock()
			o.received = append(o.received, item)
			o.mu.Unlock()
			written++
		}
		resolve(streamio.OutputStats{Name: o.name, LinesWritten: written}, nil)
	}()
	return in, handle
}

func TestNew_GeneratesInstanceIDWhenEmpty(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "", "job-z", Config{MaxErrors: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, r.ID())
}

func TestRunStream_HappyPath(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-a", Config{MaxErrors: 10, StopOnError: true})
	require.NoError(t, err)

	src := &sliceSource{name: "in", items: []streamio.Result[streamio.Envelope[string]]{
		{Value: streamio.NewEnvelope("in", "a")},
		{Value: streamio.NewEnvelope("in", "b")},
		{Value: streamio.NewEnvelope("in", "c")},
	}}
	out := &sliceOutput{name: "out"}

	require.NoError(t, RunStream[string](context.Background(), r, "copy", src, out))

	step := r.state.StreamStep("copy")
	require.NotNil(t, step)
	assert.EqualValues(t, 3, step.TotalLinesScanned)
	assert.EqualValues(t, 0, step.NumErrors)
	assert.Equal(t, []string{"a", "b", "c"}, out.received)
}

func TestRunStream_InBandErrorTolerated(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-b", Config{MaxErrors: 10})
	require.NoError(t, err)

	src := &sliceSource{name: "in", items: []streamio.Result[streamio.Envelope[string]]{
		{Value: streamio.NewEnvelope("in", "a")},
		{Err: errs.NewDeserialize("bad json", "not json")},
		{Value: streamio.NewEnvelope("in", "b")},
	}}
	out := &sliceOutput{name: "out"}

	require.NoError(t, RunStream[string](context.Background(), r, "copy", src, out))

	step := r.state.StreamStep("copy")
	require.NotNil(t, step)
	assert.EqualValues(t, 2, step.TotalLinesScanned)
	assert.EqualValues(t, 1, step.NumErrors)
}

func TestRunStream_BudgetExceeded(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-c", Config{MaxErrors: 2})
	require.NoError(t, err)

	badItem := streamio.Result[streamio.Envelope[string]]{Err: errs.NewDeserialize("bad", "x")}
	src := &sliceSource{name: "in", items: []streamio.Result[streamio.Envelope[string]]{
		{Value: streamio.NewEnvelope("in", "a")},
		badItem, badItem, badItem, badItem, badItem,
	}}
	out := &sliceOutput{name: "out"}

	err = RunStream[string](context.Background(), r, "copy", src, out)
	assert.ErrorIs(t, err, ErrTooManyErrors)

	step := r.state.StreamStep("copy")
	require.NotNil(t, step)
	assert.Equal(t, "fatal_error", string(r.state.RunStatus.Kind))
	assert.LessOrEqual(t, step.LastIndex, uint64(6))
}

func TestRunStream_RerunSkipsCompletedStep(t *testing.T) {
	mgr := newFakeManager()
	r1, err := New(mgr, "run-1", "job-d", Config{MaxErrors: 10})
	require.NoError(t, err)

	src1 := &sliceSource{name: "in", items: []streamio.Result[streamio.Envelope[string]]{
		{Value: streamio.NewEnvelope("in", "a")},
	}}
	out1 := &sliceOutput{name: "out"}
	require.NoError(t, RunStream[string](context.Background(), r1, "copy", src1, out1))
	_, err = r1.Complete(context.Background())
	require.NoError(t, err)

	r2, err := New(mgr, "run-1", "job-d", Config{MaxErrors: 10})
	require.NoError(t, err)

	src2 := &sliceSource{name: "in", panics: true}
	out2 := &sliceOutput{name: "out"}
	require.NoError(t, RunStream[string](context.Background(), r2, "copy", src2, out2))

	assert.False(t, src2.started)
	step := r2.state.StreamStep("copy")
	require.NotNil(t, step)
	assert.Equal(t, "complete", string(step.Kind))
}

type fakeCmd struct {
	name string
	err  error
}

func (c *fakeCmd) Name() string { return c.name }
func (c *fakeCmd) Run(ctx context.Context, r *Runner) error { return c.err }

func TestRunCmd_OKAndRerunSkips(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-e", Config{MaxErrors: 10})
	require.NoError(t, err)

	require.NoError(t, RunCmd(context.Background(), r, &fakeCmd{name: "setup"}))
	step := r.state.CommandStep("setup")
	require.NotNil(t, step)
	assert.Equal(t, "complete", string(step.Kind))

	require.NoError(t, RunCmd(context.Background(), r, &fakeCmd{name: "setup"}))
	step = r.state.CommandStep("setup")
	require.NotNil(t, step)
	assert.Equal(t, "complete", string(step.Kind))
}

func TestRunOutputTask_DeferredUntilComplete(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-f", Config{MaxErrors: 10})
	require.NoError(t, err)

	ran := make(chan struct{})
	task := OutputTask(func(ctx context.Context) (streamio.OutputStats, error) {
		close(ran)
		return streamio.OutputStats{Name: "parallel-out", LinesWritten: 7}, nil
	})

	require.NoError(t, RunOutputTask(context.Background(), r, "parallel", task))

	select {
	case <-ran:
	case <-context.Background().Done():
	}

	state, err := r.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", string(state.RunStatus.Kind))

	step := state.StreamStep("parallel")
	require.NotNil(t, step)
	assert.Equal(t, "complete", string(step.Kind))
	require.Len(t, step.Outputs, 1)
	assert.EqualValues(t, 7, step.Outputs[0].LinesWritten)
}

func TestRunOutputTask_ErrorRecordedAgainstStepName(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-g", Config{MaxErrors: 10})
	require.NoError(t, err)

	task := OutputTask(func(ctx context.Context) (streamio.OutputStats, error) {
		return streamio.OutputStats{}, assertError{}
	})
	require.NoError(t, RunOutputTask(context.Background(), r, "broken", task))

	_, err = r.Complete(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "fatal_error", string(r.state.RunStatus.Kind))
	step := r.state.StreamStep("broken")
	require.NotNil(t, step)
	assert.Equal(t, "error", string(step.Kind))
}

type assertError struct{}

func (assertError) Error() string { return "boom" }
