// Package engine provides the internal concurrent task-execution engine
// that jobrunner uses to run a step's output tasks (run_output_task) and
// that streamio-level stream processing is layered on top of.
//
// Constructors
//   - NewOptions(ctx, opts ...Option): builds an Engine from functional
//     options. Returns an error for conflicting or invalid options.
//
// Defaults
// Unless overridden, the following defaults apply to a newly created engine:
//   - MaxWorkers: 0 (dynamic pool)
//   - StartImmediately: false (explicit Start is required if TasksBufferSize == 0)
//   - StopOnError: false
//   - TasksBufferSize: 0
//   - ResultsBufferSize: 1024
//   - ErrorsBufferSize: 1024
//   - StopOnErrorErrorsBufferSize: 100
//   - ErrorTagging: false
//
// Channel lifecycle
// The engine exposes two channels:
//   - Results: deliver task results (for non-error-only tasks)
//   - Errors: deliver task execution errors
//
// The engine closes these channels only in Close; callers drain them while
// tasks are running and call Close once no more tasks will be added.
// Close cancels the engine's context, waits for running executions to
// return, then closes both channels.
//
// Pools
//   - Dynamic pool (default): grows and shrinks as needed via sync.Pool.
//   - Fixed pool: keeps up to MaxWorkers worker objects for reuse. Get
//     never blocks, so it does not limit how many tasks run at once.
package engine
