package jobrunner

// ItemInfo identifies the item an in-band log line is about: its position
// in the stream and the origin (filename, object key, split-branch name)
// it came from. Restored from the original implementation's JobItemInfo,
// dropped by the distilled spec but kept here because it gives operators
// more than a bare message string to act on.
type ItemInfo struct {
	Index int
	Path  string
}

// Manager is everything a Runner needs from its job manager: a place to
// log, a per-runner channel registration, and a single serialization point
// for job-state reads and writes. jobmanager.Manager implements this;
// Runner never talks to a state store or log sink directly.
type Manager interface {
	// LogInfo appends an informational line tagged with sender.
	LogInfo(sender, msg string)

	// LogError appends an error line tagged with sender and, if known,
	// the item it was processing.
	LogError(sender string, item *ItemInfo, msg string)

	// JobStarted registers this runner and returns the channel the
	// manager closes (or sends on) when its global error budget is
	// exceeded, forcing every connected runner to unwind.
	JobStarted(name, id string) (<-chan struct{}, error)

	// JobFinished unregisters this runner.
	JobFinished(name, id string)

	// TaskStarted/TaskFinished update the manager's task counters.
	TaskStarted(name string)
	TaskFinished(name string)

	// StateLoad/StateSave forward to the manager's single-owner state
	// store. StateLoad returns an *errs.Error with Kind errs.NotExist if
	// key has never been written.
	StateLoad(key string) ([]byte, error)
	StateSave(key string, data []byte) error
}
