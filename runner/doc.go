// Package runner implements the agent run loop of agentrelay.
//
// A Runner drives one agent run to completion: it resolves the agent's model
// chain, keeps the transcript inside the context window, repairs it for the
// provider of the current model, calls the provider and recovers from
// provider errors through the failover state machine. Completed model calls
// are recorded in the usage tracker and the final transcript is persisted in
// the session store.
//
// # Failover
//
// Every provider exchange owns a fresh failover.State starting at the chain's
// primary model. Each error is classified into an action:
//   - RetryWithNextAuth rotates credentials (when the provider supports it)
//     and retries the same model
//   - WaitAndRetry sleeps for the suggested duration, honoring cancellation
//   - CompactAndRetry compacts the transcript and retries
//   - FailoverToNext moves to the next model of the chain
//   - Abort surfaces the error
//
// A model is retried at most failover.MaxAttemptsPerModel times before the
// runner moves on. Once the chain is exhausted the run fails with a
// *failover.ExhaustedError carrying every attempt.
//
// # Subagents
//
// While the run depth allows it the spawn_subagent tool is offered to the
// model. Requested spawns go through subagent.Spawn, which re-enters this
// runner with depth + 1. Their answers are appended as tool results and the
// loop continues. Other tool calls end the run and are returned to the
// caller in RunResult.ToolCalls.
package runner
