package mpigo

import "errors"

// ErrJobState is returned by Run when a job is already active, and by
// CancelJob when there is no active job to cancel.
var ErrJobState = errors.New("mpigo: job state error")

// ErrCancelled is returned by RaiseIfCancelled once the cancel signal
// has been set. Unlike the original implementation's JobCancelled
// exception, this is a plain error return — idiomatic Go favors an
// error value a caller must check over an exception it must catch.
var ErrCancelled = errors.New("mpigo: job was cancelled")
