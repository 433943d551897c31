package jobmanager

import "errors"

// ErrShutdown is returned by every error-returning Manager method once
// Shutdown has been called: the actor loop has stopped serving commands.
// Methods without an error result do nothing after Shutdown.
var ErrShutdown = errors.New("jobmanager: manager is shut down")

// ErrAlreadyRegistered is returned by JobStarted when (name, id) is
// already a connected runner.
var ErrAlreadyRegistered = errors.New("jobmanager: runner already registered")
