// Package core provides the foundational domain types shared by the
// execution engine:
//
//   - Content and Part, the provider-neutral message model (text, function
//     calls and function responses)
//   - Session and SessionStore, the persisted transcript of a conversation
//   - RunParams and RunResult, the input and outcome of one agent run
//   - CallLimiter, the per-run cap on provider calls
//
// The package has no dependencies on providers, routing or storage backends
// so every other package can build on it.
package core
