package jobmanager

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowforge/pipeline/errs"
	"github.com/flowforge/pipeline/jobrunner"
	"github.com/flowforge/pipeline/kvstore"
)

func TestManager_JobStartedAndFinishedTrackRunningCount(t *testing.T) {
	m := New()
	defer m.Shutdown(context.Background())

	ch, err := m.JobStarted("extract", "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, m.NumJobsRunning())

	select {
	case <-ch:
		t.Fatal("channel should not be closed before the error budget is exceeded")
	default:
	}

	m.JobFinished("extract", "run-1")
	assert.Equal(t, 0, m.NumJobsRunning())
}

func TestManager_JobStartedRejectsDuplicateRegistration(t *testing.T) {
	m := New()
	defer m.Shutdown(context.Background())

	_, err := m.JobStarted("extract", "run-1")
	require.NoError(t, err)

	_, err = m.JobStarted("extract", "run-1")
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
}

func TestManager_LogErrorBroadcastsTooManyErrorsAtBudget(t *testing.T) {
	m := New(WithMaxErrors(2))
	defer m.Shutdown(context.Background())

	chA, err := m.JobStarted("a", "run-1")
	require.NoError(t, err)
	chB, err := m.JobStarted("b", "run-1")
	require.NoError(t, err)

	m.LogError("a", nil, "first error")
	select {
	case <-chA:
		t.Fatal("should not broadcast before the budget is reached")
	default:
	}

	m.LogError("a", &jobrunner.ItemInfo{Index: 3, Path: "in.jsonl"}, "second error")

	select {
	case <-chA:
	case <-time.After(time.Second):
		t.Fatal("runner a's channel should be closed once num_log_errors reaches MaxErrors")
	}
	select {
	case <-chB:
	case <-time.After(time.Second):
		t.Fatal("runner b's channel should also be closed: the budget is global")
	}
}

func TestManager_StateLoadAndSaveRoundTripThroughStore(t *testing.T) {
	store := kvstore.NewMemStore()
	m := New(WithStore(store))
	defer m.Shutdown(context.Background())

	require.NoError(t, m.StateSave("job-1.extract.job.json", []byte(`{"ok":true}`)))

	data, err := m.StateLoad("job-1.extract.job.json")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":true}`, string(data))

	_, err = m.StateLoad("missing")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.NotExist))
}

func TestManager_TaskStartedFinishedDoNotError(t *testing.T) {
	m := New()
	defer m.Shutdown(context.Background())

	m.TaskStarted("parallel-out")
	m.TaskFinished("parallel-out")
}

func TestManager_ShutdownIsIdempotentAndRejectsFurtherCalls(t *testing.T) {
	m := New()

	require.NoError(t, m.Shutdown(context.Background()))
	require.NoError(t, m.Shutdown(context.Background()))

	_, err := m.JobStarted("extract", "run-1")
	assert.ErrorIs(t, err, ErrShutdown)
}

// An end-to-end smoke test wiring a real jobrunner.Runner against a Manager,
// the way a caller actually uses both packages together.
func TestManager_SatisfiesJobrunnerManagerInterface(t *testing.T) {
	m := New()
	defer m.Shutdown(context.Background())

	r, err := jobrunner.New(m, "run-1", "smoke", jobrunner.Config{MaxErrors: 10})
	require.NoError(t, err)
	assert.Equal(t, "smoke", r.Name())
	assert.Equal(t, "run-1", r.ID())

	state, err := r.Complete(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "completed", string(state.RunStatus.Kind))
}
