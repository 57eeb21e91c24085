// Package routing binds inbound sessions to agents and agents to model chains.
//
// A ResolutionConfig holds an ordered list of AgentBindings. Each binding
// carries a BindingMatch, a conjunction of optional predicates over the
// session's channel, account, peer and guild. Empty predicates are ignored,
// so widening a match by clearing fields can never turn a match into a
// non-match.
//
// Tie-break: when UsePriority is set the highest Priority wins and, among
// equal priorities, the first-declared binding wins. Without UsePriority
// the first satisfied binding in declaration order wins.
//
// Peer patterns that fail to compile never match; they are not reported as
// errors during resolution.
package routing
