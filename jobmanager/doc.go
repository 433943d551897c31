// Package jobmanager implements the long-lived actor every jobrunner.Runner
// registers with: a single serialization point for the state store, a
// structured log sink, running counters, and the global error budget that
// broadcasts TooManyErrors to every connected runner.
//
// Manager implements jobrunner.Manager. A process typically constructs one
// Manager and hands it to every Runner it creates; Runner never talks to a
// state store or log sink directly.
package jobmanager
