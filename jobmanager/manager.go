package jobmanager

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/flowforge/pipeline/jobrunner"
	"github.com/flowforge/pipeline/kvstore"
	"github.com/flowforge/pipeline/metrics"
)

// Manager implements jobrunner.Manager.
var _ jobrunner.Manager = (*Manager)(nil)

// Manager is a long-lived actor: every exported method enqueues a closure
// onto a single command channel drained by one goroutine (loop), so the
// state store, the log sink, and every counter are touched by exactly one
// goroutine at a time. This is the same "single-owner task serializing all
// reads/writes" shape spec §4.9 describes, expressed as a Go actor instead
// of a message enum, matching the select-loop dispatcher shape of
// jobrunner's teacher package rather than introducing a lock.
type Manager struct {
	cfg    Config
	logger *zap.Logger

	cmdCh    chan func()
	loopDone chan struct{}
	stopped  atomic.Bool
	shutdown sync.Once

	runners map[string]*runnerEntry

	numLogErrors     uint64
	numTasksStarted  uint64
	numTasksFinished uint64
	numJobsRunning   int

	metricLogErrors     metrics.Counter
	metricTasksStarted  metrics.Counter
	metricTasksFinished metrics.Counter
	metricJobsRunning   metrics.UpDownCounter
}

// New constructs a Manager and starts its actor loop. The returned Manager
// must eventually be given to Shutdown to release its log sink.
func New(opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Store == nil {
		cfg.Store = kvstore.NewMemStore()
	}
	provider := cfg.Metrics
	if provider == nil {
		provider = metrics.NewBasicProvider()
	}

	m := &Manager{
		cfg:                 cfg,
		logger:              newLogger(cfg),
		cmdCh:               make(chan func()),
		loopDone:            make(chan struct{}),
		runners:             make(map[string]*runnerEntry),
		metricLogErrors:     provider.Counter("jobmanager_log_errors_total"),
		metricTasksStarted:  provider.Counter("jobmanager_tasks_started_total"),
		metricTasksFinished: provider.Counter("jobmanager_tasks_finished_total"),
		metricJobsRunning:   provider.UpDownCounter("jobmanager_jobs_running"),
	}
	go m.loop()
	return m
}

func (m *Manager) loop() {
	for fn := range m.cmdCh {
		fn()
	}
	close(m.loopDone)
}

// enqueue runs fn on the actor goroutine and blocks until it has run.
func (m *Manager) enqueue(fn func()) error {
	if m.stopped.Load() {
		return ErrShutdown
	}
	done := make(chan struct{})
	m.cmdCh <- func() {
		fn()
		close(done)
	}
	<-done
	return nil
}

func runnerKey(name, id string) string { return id + "\x00" + name }

// runnerEntry is a connected runner's broadcast channel plus a short
// correlation id (spec SPEC_FULL.md §4's "per-runner correlation ids in
// log lines") so operators can tell two runners with the same job name
// apart in the log stream.
type runnerEntry struct {
	ch     chan struct{}
	corrID string
}

// LogInfo implements jobrunner.Manager.
func (m *Manager) LogInfo(sender, msg string) {
	_ = m.enqueue(func() {
		m.logger.Info(msg, zap.String("sender", sender))
	})
}

// LogError implements jobrunner.Manager. Once num_log_errors reaches
// cfg.MaxErrors, every connected runner's channel is closed, broadcasting
// TooManyErrors (spec §4.9's LogError row).
func (m *Manager) LogError(sender string, item *jobrunner.ItemInfo, msg string) {
	_ = m.enqueue(func() {
		fields := []zap.Field{zap.String("sender", sender)}
		if item != nil {
			fields = append(fields, zap.Int("index", item.Index), zap.String("path", item.Path))
		}
		m.logger.Error(msg, fields...)

		m.numLogErrors++
		m.metricLogErrors.Add(1)

		if m.cfg.MaxErrors > 0 && m.numLogErrors >= m.cfg.MaxErrors {
			m.broadcastTooManyErrors()
		}
	})
}

// broadcastTooManyErrors closes every connected runner's channel. Must
// only be called from the actor goroutine. Closing (rather than sending)
// lets every runner observe it on its next non-blocking poll regardless
// of how many times it's already polled.
func (m *Manager) broadcastTooManyErrors() {
	for _, entry := range m.runners {
		select {
		case <-entry.ch:
			// already closed
		default:
			close(entry.ch)
		}
	}
}

// JobStarted implements jobrunner.Manager.
func (m *Manager) JobStarted(name, id string) (<-chan struct{}, error) {
	var ch chan struct{}
	var regErr error
	err := m.enqueue(func() {
		key := runnerKey(name, id)
		if _, exists := m.runners[key]; exists {
			regErr = fmt.Errorf("%w: %s/%s", ErrAlreadyRegistered, name, id)
			return
		}
		ch = make(chan struct{})
		corrID := uuid.NewString()
		m.runners[key] = &runnerEntry{ch: ch, corrID: corrID}
		m.numJobsRunning++
		m.metricJobsRunning.Add(1)
		m.logger.Info("job started", zap.String("name", name), zap.String("id", id), zap.String("correlation_id", corrID))
	})
	if err != nil {
		return nil, err
	}
	if regErr != nil {
		return nil, regErr
	}
	return ch, nil
}

// JobFinished implements jobrunner.Manager.
func (m *Manager) JobFinished(name, id string) {
	_ = m.enqueue(func() {
		key := runnerKey(name, id)
		entry, exists := m.runners[key]
		if !exists {
			return
		}
		delete(m.runners, key)
		m.numJobsRunning--
		m.metricJobsRunning.Add(-1)
		m.logger.Info("job finished", zap.String("name", name), zap.String("id", id), zap.String("correlation_id", entry.corrID))
		if m.numJobsRunning == 0 {
			m.logger.Info("no jobs running, manager idle")
		}
	})
}

// TaskStarted implements jobrunner.Manager.
func (m *Manager) TaskStarted(name string) {
	_ = m.enqueue(func() {
		m.numTasksStarted++
		m.metricTasksStarted.Add(1)
		m.logger.Info("task started", zap.String("name", name))
	})
}

// TaskFinished implements jobrunner.Manager.
func (m *Manager) TaskFinished(name string) {
	_ = m.enqueue(func() {
		m.numTasksFinished++
		m.metricTasksFinished.Add(1)
		m.logger.Info("task finished", zap.String("name", name))
	})
}

// StateLoad implements jobrunner.Manager, forwarding to the single-owner
// state store. Returns an *errs.Error with Kind errs.NotExist if key has
// never been written.
func (m *Manager) StateLoad(key string) ([]byte, error) {
	var data []byte
	var loadErr error
	if err := m.enqueue(func() {
		data, loadErr = m.cfg.Store.Load(context.Background(), key)
	}); err != nil {
		return nil, err
	}
	return data, loadErr
}

// StateSave implements jobrunner.Manager, forwarding to the single-owner
// state store.
func (m *Manager) StateSave(key string, value []byte) error {
	var saveErr error
	if err := m.enqueue(func() {
		saveErr = m.cfg.Store.Write(context.Background(), key, value)
	}); err != nil {
		return err
	}
	return saveErr
}

// NumJobsRunning reports the number of currently connected runners.
func (m *Manager) NumJobsRunning() int {
	var n int
	_ = m.enqueue(func() { n = m.numJobsRunning })
	return n
}

// Shutdown implements spec §4.9's ShutdownJobManager: it stops accepting
// new commands, stops the actor loop, and flushes the log sink. Safe to
// call more than once; only the first call has effect. ctx bounds how
// long Shutdown waits for the actor loop to drain its last command.
func (m *Manager) Shutdown(ctx context.Context) error {
	var shutdownErr error
	m.shutdown.Do(func() {
		m.stopped.Store(true)

		done := make(chan struct{})
		m.cmdCh <- func() {
			m.logger.Info("shutting down job manager", zap.Int("jobs_running", m.numJobsRunning))
			close(done)
		}
		select {
		case <-done:
		case <-ctx.Done():
			shutdownErr = ctx.Err()
			return
		}

		close(m.cmdCh)
		<-m.loopDone
		_ = m.logger.Sync()
	})
	return shutdownErr
}
