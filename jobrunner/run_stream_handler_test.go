package jobrunner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/streamio"
)

type collectingHandler struct {
	action    HandlerAction
	processed []string
	shutdown  bool
}

func (h *collectingHandler) Init(ctx context.Context, r *Runner) (HandlerAction, error) {
	return h.action, nil
}

func (h *collectingHandler) ProcessItem(ctx context.Context, info ItemInfo, item string, r *Runner) error {
	h.processed = append(h.processed, item)
	return nil
}

func (h *collectingHandler) Shutdown(ctx context.Context, r *Runner) error {
	h.shutdown = true
	return nil
}

func TestRunStreamHandler_ProcessesEveryItem(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-h", Config{MaxErrors: 10})
	require.NoError(t, err)

	src := &sliceSource{name: "in", items: []streamio.Result[streamio.Envelope[string]]{
		{Value: streamio.NewEnvelope("in", "x")},
		{Value: streamio.NewEnvelope("in", "y")},
	}}
	h := &collectingHandler{action: ActionStart()}

	require.NoError(t, RunStreamHandler[string](context.Background(), r, "handled", src, h))
	assert.Equal(t, []string{"x", "y"}, h.processed)
	assert.True(t, h.shutdown)

	step := r.state.StreamStep("handled")
	require.NotNil(t, step)
	assert.Equal(t, "complete", string(step.Kind))
}

func TestRunStreamHandler_ResumeSkipsItemsBeforeIndex(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-i", Config{MaxErrors: 10})
	require.NoError(t, err)

	src := &sliceSource{name: "in", items: []streamio.Result[streamio.Envelope[string]]{
		{Value: streamio.NewEnvelope("in", "skip-me")},
		{Value: streamio.NewEnvelope("in", "keep-me")},
	}}
	h := &collectingHandler{action: ActionResume(1)}

	require.NoError(t, RunStreamHandler[string](context.Background(), r, "handled", src, h))
	assert.Equal(t, []string{"keep-me"}, h.processed)
}

func TestRunStreamHandler_SkipMarksStepCompleteWithoutReading(t *testing.T) {
	mgr := newFakeManager()
	r, err := New(mgr, "run-1", "job-j", Config{MaxErrors: 10})
	require.NoError(t, err)

	src := &sliceSource{name: "in", panics: true}
	h := &collectingHandler{action: ActionSkip()}

	require.NoError(t, RunStreamHandler[string](context.Background(), r, "handled", src, h))
	assert.False(t, src.started)

	step := r.state.StreamStep("handled")
	require.NotNil(t, step)
	assert.Equal(t, "complete", string(step.Kind))
}
