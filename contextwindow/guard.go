// Package contextwindow tracks how much of a model's context window a
// transcript occupies and shrinks transcripts that no longer fit.
package contextwindow

import "math"

// Severity grades context-window usage.
type Severity int

const (
	// SeverityNone means the transcript fits comfortably.
	SeverityNone Severity = iota
	// SeverityWarn means usage crossed the warn threshold.
	SeverityWarn
	// SeverityCritical means usage reached the hard limit.
	SeverityCritical
)

// String returns the lower-case severity name.
func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityCritical:
		return "critical"
	default:
		return "none"
	}
}

// Defaults applied by NewGuard for unset settings.
const (
	DefaultWarnThreshold = 0.8
	DefaultHardLimit     = 128000
	DefaultMinAvailable  = 4096
)

// Guard holds the thresholds of one agent. All methods are pure.
type Guard struct {
	WarnThreshold float64 // fraction of HardLimit in [0,1]
	HardLimit     int     // tokens
	MinAvailable  int     // tokens reserved for the response
}

// Settings are the raw, possibly partial thresholds from configuration.
type Settings struct {
	WarnThreshold float64 `yaml:"warn_threshold"`
	HardLimit     int     `yaml:"hard_limit"`
	MinAvailable  int     `yaml:"min_available"`
}

// NewGuard derives a guard from settings, filling unset values with the
// package defaults and clamping the threshold into [0,1].
func NewGuard(s Settings) Guard {
	g := Guard{WarnThreshold: s.WarnThreshold, HardLimit: s.HardLimit, MinAvailable: s.MinAvailable}
	if g.WarnThreshold <= 0 {
		g.WarnThreshold = DefaultWarnThreshold
	}
	if g.WarnThreshold > 1 {
		g.WarnThreshold = 1
	}
	if g.HardLimit <= 0 {
		g.HardLimit = DefaultHardLimit
	}
	switch {
	case s.MinAvailable < 0:
		g.MinAvailable = 0
	case s.MinAvailable == 0:
		g.MinAvailable = DefaultMinAvailable
	}
	return g
}

// WarnLevel is floor(WarnThreshold * HardLimit).
func (g Guard) WarnLevel() int {
	return int(math.Floor(g.WarnThreshold * float64(g.HardLimit)))
}

// Severity grades tokens against the thresholds.
func (g Guard) Severity(tokens int) Severity {
	switch {
	case tokens >= g.HardLimit:
		return SeverityCritical
	case tokens >= g.WarnLevel():
		return SeverityWarn
	default:
		return SeverityNone
	}
}

// NeedsCompaction reports whether tokens crossed the warn threshold.
func (g Guard) NeedsCompaction(tokens int) bool { return g.Severity(tokens) != SeverityNone }

// IsSafe reports whether tokens are below the warn threshold.
func (g Guard) IsSafe(tokens int) bool { return g.Severity(tokens) == SeverityNone }

// AvailableTokens returns HardLimit - tokens - MinAvailable, never below zero.
func (g Guard) AvailableTokens(tokens int) int {
	avail := g.HardLimit - tokens - g.MinAvailable
	if avail < 0 {
		return 0
	}
	return avail
}

// CompactionTarget is the largest token count the guard considers safe.
func (g Guard) CompactionTarget() int {
	if t := g.WarnLevel() - 1; t > 0 {
		return t
	}
	return 0
}
