// Package jobrunner executes an ordered list of steps against one named
// job: streams, commands, and deferred parallel output tasks, all driven
// through a jobstate.JobState that is reloaded and persisted at every step
// boundary. A Runner talks to its job manager only through the Manager
// interface, so the manager's actor, log sink, and state-store
// serialization live entirely outside this package.
package jobrunner
