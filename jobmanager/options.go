package jobmanager

import (
	"github.com/flowforge/pipeline/kvstore"
	"github.com/flowforge/pipeline/metrics"
)

// Option configures a Manager built via New.
type Option func(*Config)

// WithMaxErrors sets the global log-error budget.
func WithMaxErrors(n uint64) Option {
	return func(c *Config) { c.MaxErrors = n }
}

// WithStore sets the state store backing StateLoad/StateSave.
func WithStore(s kvstore.Store) Option {
	return func(c *Config) { c.Store = s }
}

// WithMetrics sets the instrument provider backing the manager's counters.
func WithMetrics(p metrics.Provider) Option {
	return func(c *Config) { c.Metrics = p }
}

// WithLogFile routes the log sink to a lumberjack-rotated file named
// "{prefix}.log" instead of stdout.
func WithLogFile(prefix string) Option {
	return func(c *Config) { c.LogFilePrefix = prefix }
}

// WithLogRotation overrides the rotating file sink's size/backup/age/
// compress settings. Only meaningful alongside WithLogFile.
func WithLogRotation(maxSizeMB, maxBackups, maxAgeDays int, compress bool) Option {
	return func(c *Config) {
		c.LogMaxSizeMB = maxSizeMB
		c.LogMaxBackups = maxBackups
		c.LogMaxAgeDays = maxAgeDays
		c.LogCompress = compress
	}
}
