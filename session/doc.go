// Package session houses concrete implementations of core.SessionStore.
// The interface itself (and the Session struct) live in the core package so
// the runner depends only on the contract, not on a storage backend.
//
// Sessions are keyed by the session key produced during resolution
// (for example "agent:main:discord:guild:g1:alice").
package session
