package jobmanager

import (
	"github.com/flowforge/pipeline/kvstore"
	"github.com/flowforge/pipeline/metrics"
)

// Config holds Manager configuration. Zero-value fields fall back to the
// defaults documented on each field; build one with New's functional
// options rather than constructing it directly.
type Config struct {
	// MaxErrors is the global log-error budget (spec §4.9): once
	// num_log_errors reaches it, every connected runner's channel is
	// closed to broadcast TooManyErrors. Zero means unlimited.
	MaxErrors uint64

	// Store backs StateLoad/StateSave. Defaults to an in-memory
	// kvstore.MemStore if unset, matching spec §4.10's "an in-memory
	// implementation ... required for tests."
	Store kvstore.Store

	// Metrics publishes the running counters (jobs running, tasks
	// started/finished, log errors seen). Defaults to
	// metrics.NewBasicProvider() if unset.
	Metrics metrics.Provider

	// LogFilePrefix, when non-empty, routes the log sink to a
	// lumberjack-rotated file named "{LogFilePrefix}.log" instead of
	// stdout.
	LogFilePrefix string

	// LogMaxSizeMB, LogMaxBackups, LogMaxAgeDays, LogCompress configure
	// the rotating file sink. Ignored when LogFilePrefix is empty.
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

func defaultConfig() Config {
	return Config{
		LogMaxSizeMB:  100,
		LogMaxBackups: 3,
		LogMaxAgeDays: 28,
	}
}
