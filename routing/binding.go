package routing

import (
	"regexp"
	"sync"
)

// SessionMetadata describes the origin of an inbound message. Empty fields
// are treated as absent.
type SessionMetadata struct {
	Channel   string `json:"channel,omitempty" yaml:"channel,omitempty"`
	AccountID string `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	Peer      string `json:"peer,omitempty" yaml:"peer,omitempty"`
	GuildID   string `json:"guild_id,omitempty" yaml:"guild_id,omitempty"`
}

// PeerMatch is a rule evaluated against a session's peer identifier.
// Concrete variants are AnyPeer, ExactPeer and PeerPattern.
type PeerMatch interface {
	Matches(peer string) bool
	isPeerMatch()
}

// AnyPeer matches every session, including sessions without a peer.
type AnyPeer struct{}

// Matches implements PeerMatch.
func (AnyPeer) Matches(string) bool { return true }

func (AnyPeer) isPeerMatch() {}

// ExactPeer matches a peer identifier exactly.
type ExactPeer struct {
	ID string
}

// Matches implements PeerMatch.
func (m ExactPeer) Matches(peer string) bool { return peer != "" && peer == m.ID }

func (ExactPeer) isPeerMatch() {}

// patternCache maps a pattern string to its *regexp.Regexp, or to nil when
// the pattern does not compile.
var patternCache sync.Map

// compilePattern returns the cached regexp for pattern, compiling it on
// first use. Invalid patterns are cached as nil.
func compilePattern(pattern string) *regexp.Regexp {
	if v, ok := patternCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		re = nil
	}
	v, _ := patternCache.LoadOrStore(pattern, re)
	return v.(*regexp.Regexp)
}

// PeerPattern matches peers against an unanchored regular expression.
type PeerPattern struct {
	Pattern string
	re      *regexp.Regexp
}

// NewPeerPattern precompiles pattern. An invalid pattern is kept and simply
// never matches.
func NewPeerPattern(pattern string) PeerPattern {
	return PeerPattern{Pattern: pattern, re: compilePattern(pattern)}
}

// Matches implements PeerMatch.
func (m PeerPattern) Matches(peer string) bool {
	if peer == "" {
		return false
	}
	re := m.re
	if re == nil {
		if re = compilePattern(m.Pattern); re == nil {
			return false
		}
	}
	return re.MatchString(peer)
}

// Valid reports whether the pattern compiles.
func (m PeerPattern) Valid() bool {
	return m.re != nil || compilePattern(m.Pattern) != nil
}

func (PeerPattern) isPeerMatch() {}

// BindingMatch is a conjunction of optional predicates. A zero BindingMatch
// matches every session.
type BindingMatch struct {
	Channel   string
	AccountID string
	Peer      PeerMatch
	GuildID   string
}

// Matches reports whether every present predicate holds for meta. All
// comparisons are exact.
func (m BindingMatch) Matches(meta SessionMetadata) bool {
	if m.Channel != "" && m.Channel != meta.Channel {
		return false
	}
	if m.AccountID != "" && m.AccountID != meta.AccountID {
		return false
	}
	if m.Peer != nil && !m.Peer.Matches(meta.Peer) {
		return false
	}
	if m.GuildID != "" && m.GuildID != meta.GuildID {
		return false
	}
	return true
}

// AgentBinding maps sessions satisfying Match to AgentID.
type AgentBinding struct {
	AgentID  string
	Match    BindingMatch
	Priority uint32
}

// ResolutionConfig is the immutable binding table consulted by Resolver.
type ResolutionConfig struct {
	Bindings     []AgentBinding
	DefaultAgent string
	UsePriority  bool
}
