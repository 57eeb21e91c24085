// Package failover implements the per-run state machine that walks a model
// chain and the classifier that turns provider errors into recovery actions.
//
// A State is owned by exactly one agent run and is not safe for concurrent
// use. It never blocks: WaitAndRetry durations are hints for the caller.
//
// States are Active(i) for each position of the chain and Exhausted:
//
//	RecordAttempt  appends an attempt for the current model
//	Advance        moves to the next model or marks the chain exhausted
//	CanRetryCurrentModel  fewer than MaxAttemptsPerModel attempts since the last Advance
package failover
