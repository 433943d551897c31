// Package pool provides reusable worker-object pools for the engine
// package, which the job runner uses to execute deferred parallel tasks
// (run_output_task) without allocating a fresh worker per task.
package pool

// Pool is an interface that defines methods on a pool of workers.
type Pool interface {
	// Get returns a worker from the pool.
	Get() interface{}

	// Put returns a worker back to the pool.
	Put(interface{})
}
