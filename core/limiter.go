package core

import "errors"

// ErrCallLimitExceeded is returned by CallLimiter.Take once the run has used
// all of its provider calls.
var ErrCallLimitExceeded = errors.New("exceeded max model calls")

// CallLimiter caps the number of provider calls a single agent run may make,
// counting every attempt including same-model retries and failovers. A limiter
// is owned by exactly one run and is not safe for concurrent use.
type CallLimiter struct {
	max  int
	used int
}

// NewCallLimiter creates a limiter allowing max calls. max <= 0 means unlimited.
func NewCallLimiter(max int) *CallLimiter {
	return &CallLimiter{max: max}
}

// Take reserves one call. It fails without consuming anything when the
// limit has already been reached.
func (cl *CallLimiter) Take() error {
	if cl.max > 0 && cl.used >= cl.max {
		return ErrCallLimitExceeded
	}
	cl.used++
	return nil
}

// Used returns the number of calls taken so far.
func (cl *CallLimiter) Used() int { return cl.used }

// Remaining returns how many calls are left, or -1 when unlimited.
func (cl *CallLimiter) Remaining() int {
	if cl.max <= 0 {
		return -1
	}
	return cl.max - cl.used
}
