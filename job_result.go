package mpigo

import "time"

// JobResult is Run's return value: the job function's result, plus the
// wall-clock elapsed time when the active configuration has TimeJob
// set (zero otherwise). The original implementation only wraps its
// result in a timing dict conditionally; Go's static return type
// always carries the field, so callers just check Elapsed == 0.
type JobResult struct {
	Result  any
	Elapsed time.Duration
}
