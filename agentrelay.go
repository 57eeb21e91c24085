// Package agentrelay provides a high-level façade over the agent execution
// engine: binding resolution, the failover run loop, subagent spawning and
// usage accounting. Most applications interact with this package by:
//  1. Loading a configuration snapshot (config.Load)
//  2. Creating a Relay via New() with one model.Provider per provider prefix
//  3. Passing inbound messages to Handle
//
// All defaults are in-memory and safe for local development and testing;
// production deployments typically supply a durable session store and a
// structured logger.
package agentrelay

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/config"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/routing"
	"github.com/hupe1980/agentrelay/runner"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/usage"
)

// Options configures the Relay instance.
type Options struct {
	// SessionStore persists transcripts (defaults to an in-memory store).
	SessionStore core.SessionStore
	// Tracker accumulates token usage (defaults to a fresh tracker).
	Tracker *usage.Tracker
	// Logger (defaults to a discarding logger if nil)
	Logger *logging.RelayLogger
	// RunnerOptions are applied after the façade's own runner wiring.
	RunnerOptions []func(o *runner.Options)
}

// Relay is the high-level façade aggregating resolution, the runner and
// the shared stores.
type Relay struct {
	cfg      *config.Config
	resolver *routing.Resolver
	runner   *runner.Runner
	store    core.SessionStore
	tracker  *usage.Tracker
	logger   *logging.RelayLogger
}

// Reply is the outcome of handling one inbound message.
type Reply struct {
	Route  routing.Route
	Result core.RunResult
}

// Text returns the text of the final assistant message.
func (r Reply) Text() string { return r.Result.Response.Text() }

// New creates a Relay over an immutable configuration snapshot.
func New(cfg *config.Config, providers map[string]model.Provider, optFns ...func(o *Options)) *Relay {
	opts := Options{
		SessionStore: session.NewInMemoryStore(),
		Tracker:      usage.NewTracker(),
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg == nil {
		cfg = &config.Config{}
	}

	logger := logging.OrDiscard(opts.Logger)

	runnerOpts := append([]func(o *runner.Options){func(o *runner.Options) {
		o.SessionStore = opts.SessionStore
		o.Tracker = opts.Tracker
		o.Logger = logger
	}}, opts.RunnerOptions...)

	r := runner.New(cfg, providers, runnerOpts...)

	relay := &Relay{
		cfg:      cfg,
		resolver: r.Resolver(),
		runner:   r,
		store:    opts.SessionStore,
		tracker:  opts.Tracker,
		logger:   logger.WithComponent("relay"),
	}
	for _, w := range cfg.Warnings() {
		relay.logger.Warn("relay.config.warning", "warning", w)
	}

	return relay
}

// Handle resolves the agent for an inbound message, appends the message to
// the session transcript and runs the agent. An empty sessionKey is derived
// from the resolved agent and the metadata.
func (r *Relay) Handle(ctx context.Context, meta routing.SessionMetadata, sessionKey, text string) (Reply, error) {
	route, err := r.resolver.ResolveSession(meta, sessionKey)
	if err != nil {
		return Reply{}, err
	}

	r.logger.Debug("relay.message.received", "session_key", route.SessionKey, "agent_id", route.AgentID, "matched_by", route.MatchedBy)

	if err := r.store.Append(route.SessionKey, route.AgentID, core.UserText(text)); err != nil {
		return Reply{Route: route}, fmt.Errorf("append message: %w", err)
	}

	sess, err := r.store.Get(route.SessionKey, route.AgentID)
	if err != nil {
		return Reply{Route: route}, fmt.Errorf("load session: %w", err)
	}

	res, err := r.runner.RunAndGetResult(ctx, core.RunParams{
		AgentID:    route.AgentID,
		SessionKey: route.SessionKey,
		Messages:   sess.History(),
	})

	return Reply{Route: route, Result: res}, err
}

// Reset drops a session's transcript and its usage entry.
func (r *Relay) Reset(sessionKey string) error {
	r.tracker.ResetSession(sessionKey)
	return r.store.Reset(sessionKey)
}

// History returns the stored transcript of a session.
func (r *Relay) History(sessionKey string) ([]core.Content, error) {
	sess, err := r.store.Get(sessionKey, "")
	if err != nil {
		return nil, err
	}
	return sess.History(), nil
}

// Usage exposes the usage tracker.
func (r *Relay) Usage() *usage.Tracker { return r.tracker }

// Runner exposes the underlying runner.
func (r *Relay) Runner() *runner.Runner { return r.runner }

// Resolver exposes the binding resolver.
func (r *Relay) Resolver() *routing.Resolver { return r.resolver }

// Config returns the configuration snapshot.
func (r *Relay) Config() *config.Config { return r.cfg }
