// Package logging provides a minimal logging interface and adapters for agentrelay.
//
// The Logger interface defines the leveled methods (Debug, Info, Warn, Error)
// that the runner, the spawner and the provider adapters use for observability.
// This package includes:
//
//   - Logger interface for dependency injection (provider adapters)
//   - RelayLogger, an slog-backed logger with session/agent scoping and
//     failover specific helpers
//   - NoOpLogger and Discard for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	r := runner.New(cfg, providers, func(o *runner.Options) { o.Logger = logger })
//
// Messages follow a dotted "component.event" convention (e.g.
// "runner.attempt.failed") with key/value pairs for the details.
package logging
