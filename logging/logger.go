package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel. Unknown names
// yield LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger defines the minimal logging interface used throughout agentrelay.
// Arguments after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RelayLogger wraps slog.Logger with scoping helpers (component, session,
// agent) and helpers for the events the execution engine emits. With*
// methods return modified copies; the receiver is never changed.
type RelayLogger struct {
	logger    *slog.Logger
	level     LogLevel
	component string
	session   string
	agent     string
	runID     string
	attrs     []slog.Attr
}

// LoggerConfig configures construction of a RelayLogger.
type LoggerConfig struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultLoggerConfig returns a baseline JSON info level configuration on stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// NewLogger builds a RelayLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *RelayLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(out, opts)
	} else {
		handler = slog.NewJSONHandler(out, opts)
	}
	return &RelayLogger{logger: slog.New(handler), level: cfg.Level, component: cfg.Component}
}

// Discard returns a RelayLogger that drops every entry.
func Discard() *RelayLogger {
	return NewLogger(&LoggerConfig{Level: LogLevelError + 1, Output: io.Discard})
}

// OrDiscard returns l, or Discard() when l is nil.
func OrDiscard(l *RelayLogger) *RelayLogger {
	if l == nil {
		return Discard()
	}
	return l
}

// NewSlogLogger creates a RelayLogger with the given level, format and source flag.
func NewSlogLogger(level LogLevel, format string, addSource bool) *RelayLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *RelayLogger) clone() *RelayLogger {
	nl := *l
	nl.attrs = append([]slog.Attr(nil), l.attrs...)
	return &nl
}

// With attaches a key/value attribute to every entry of the returned logger.
func (l *RelayLogger) With(key string, value any) *RelayLogger {
	nl := l.clone()
	nl.attrs = append(nl.attrs, slog.Any(key, value))
	return nl
}

// WithComponent sets the logical component (runner, spawner, routing, ...).
func (l *RelayLogger) WithComponent(c string) *RelayLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithSession scopes the logger to a session key and agent.
func (l *RelayLogger) WithSession(sessionKey, agentID string) *RelayLogger {
	nl := l.clone()
	nl.session = sessionKey
	nl.agent = agentID
	return nl
}

// WithRun scopes the logger to a single agent run.
func (l *RelayLogger) WithRun(runID string) *RelayLogger {
	nl := l.clone()
	nl.runID = runID
	return nl
}

func (l *RelayLogger) baseAttrs(extra int) []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.attrs)+extra+4)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.session != "" {
		attrs = append(attrs, slog.String("session_key", l.session))
	}
	if l.agent != "" {
		attrs = append(attrs, slog.String("agent_id", l.agent))
	}
	if l.runID != "" {
		attrs = append(attrs, slog.String("run_id", l.runID))
	}
	return append(attrs, l.attrs...)
}

func (l *RelayLogger) emit(level LogLevel, msg string, args ...any) {
	if level < l.level {
		return
	}
	attrs := l.baseAttrs(len(args) / 2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "!BADKEY"
		}
		attrs = append(attrs, slog.Any(key, args[i+1]))
	}
	if len(args)%2 == 1 {
		attrs = append(attrs, slog.Any("!BADKEY", args[len(args)-1]))
	}
	l.logger.LogAttrs(context.Background(), slogLevel(level), msg, attrs...)
}

// Debug logs at debug level.
func (l *RelayLogger) Debug(msg string, args ...any) { l.emit(LogLevelDebug, msg, args...) }

// Info logs at info level.
func (l *RelayLogger) Info(msg string, args ...any) { l.emit(LogLevelInfo, msg, args...) }

// Warn logs at warn level.
func (l *RelayLogger) Warn(msg string, args ...any) { l.emit(LogLevelWarn, msg, args...) }

// Error logs at error level.
func (l *RelayLogger) Error(msg string, args ...any) { l.emit(LogLevelError, msg, args...) }

// LogModelAttempt records a single provider call: model, attempt number,
// latency, token usage and the error (if any).
func (l *RelayLogger) LogModelAttempt(model string, attempt int, tokens int, dur time.Duration, err error) {
	if err != nil {
		l.Warn("model.attempt.failed", "model", model, "attempt", attempt, "duration", dur, "error", err.Error())
		return
	}
	l.Info("model.attempt.succeeded", "model", model, "attempt", attempt, "token_count", tokens, "duration", dur)
}

// LogFailover records a switch from one model of the chain to the next.
func (l *RelayLogger) LogFailover(from, to, reason string) {
	if to == "" {
		l.Error("failover.exhausted", "from", from, "reason", reason)
		return
	}
	l.Warn("failover.switch", "from", from, "to", to, "reason", reason)
}

// LogSpawn records the outcome of a subagent spawn.
func (l *RelayLogger) LogSpawn(childAgent string, depth int, tokens int, err error) {
	if err != nil {
		l.Warn("subagent.spawn.failed", "child_agent", childAgent, "depth", depth, "error", err.Error())
		return
	}
	l.Info("subagent.spawn.completed", "child_agent", childAgent, "depth", depth, "token_count", tokens)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or a NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}
