package routing

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoAgentConfigured is returned when no binding matches and no default agent is set.
	ErrNoAgentConfigured = errors.New("no agent configured")
	// ErrNoModelConfigured is returned when neither the agent nor the system defines a model.
	ErrNoModelConfigured = errors.New("no model configured")
	// ErrAgentNotFound is returned for agent ids missing from a non-empty agent list.
	ErrAgentNotFound = errors.New("agent not found")
)

// ModelChain is the ordered list of models to attempt for one agent run.
type ModelChain struct {
	Primary   string
	Fallbacks []string
}

// AllModels yields the primary followed by the fallbacks, defining the
// total retry order.
func (c ModelChain) AllModels() []string {
	out := make([]string, 0, len(c.Fallbacks)+1)
	out = append(out, c.Primary)
	return append(out, c.Fallbacks...)
}

// AgentModel is the model setting of one configured agent. Model may be
// empty, in which case the system default applies.
type AgentModel struct {
	ID    string
	Model string
}

// ModelFallback lists the fallbacks used whenever Primary is the resolved model.
type ModelFallback struct {
	Primary   string
	Fallbacks []string
}

// ModelConfig is the immutable model table consulted by Resolver.
type ModelConfig struct {
	DefaultModel string
	Agents       []AgentModel
	Fallbacks    []ModelFallback
}

// Route is the outcome of resolving an inbound session.
type Route struct {
	AgentID    string
	SessionKey string
	MatchedBy  string // "binding" or "default"
	Binding    *AgentBinding
}

// Resolver answers binding and model-chain questions against an immutable
// configuration snapshot. It is safe for concurrent use.
type Resolver struct {
	bindings ResolutionConfig
	models   ModelConfig
	agents   map[string]AgentModel
}

// NewResolver creates a Resolver. The slices inside both configs must not be
// modified afterwards.
func NewResolver(rc ResolutionConfig, mc ModelConfig) *Resolver {
	agents := make(map[string]AgentModel, len(mc.Agents))
	for _, a := range mc.Agents {
		if _, dup := agents[a.ID]; !dup {
			agents[a.ID] = a
		}
	}
	return &Resolver{bindings: rc, models: mc, agents: agents}
}

// ResolveAgent returns the agent bound to meta.
func (r *Resolver) ResolveAgent(meta SessionMetadata) (string, error) {
	if b := r.match(meta); b != nil {
		return b.AgentID, nil
	}
	if r.bindings.DefaultAgent != "" {
		return r.bindings.DefaultAgent, nil
	}
	return "", ErrNoAgentConfigured
}

// match returns the winning binding or nil.
func (r *Resolver) match(meta SessionMetadata) *AgentBinding {
	var best *AgentBinding
	for i := range r.bindings.Bindings {
		b := &r.bindings.Bindings[i]
		if !b.Match.Matches(meta) {
			continue
		}
		if !r.bindings.UsePriority {
			return b
		}
		// Strictly greater keeps the first-declared binding on ties.
		if best == nil || b.Priority > best.Priority {
			best = b
		}
	}
	return best
}

// ResolveSession evaluates the bindings against meta and returns the route
// including a session key. An empty sessionKey is derived from the agent and
// the session origin.
func (r *Resolver) ResolveSession(meta SessionMetadata, sessionKey string) (Route, error) {
	route := Route{MatchedBy: "default"}
	if b := r.match(meta); b != nil {
		copied := *b
		route.AgentID = b.AgentID
		route.MatchedBy = "binding"
		route.Binding = &copied
	} else if r.bindings.DefaultAgent != "" {
		route.AgentID = r.bindings.DefaultAgent
	} else {
		return Route{}, ErrNoAgentConfigured
	}
	route.SessionKey = sessionKey
	if route.SessionKey == "" {
		route.SessionKey = BuildSessionKey(route.AgentID, meta)
	}
	return route, nil
}

// ResolveAgentModel returns the model chain of agentID.
func (r *Resolver) ResolveAgentModel(agentID string) (ModelChain, error) {
	primary := r.models.DefaultModel
	if len(r.agents) > 0 {
		a, ok := r.agents[agentID]
		if !ok {
			return ModelChain{}, fmt.Errorf("%w: %s", ErrAgentNotFound, agentID)
		}
		if a.Model != "" {
			primary = a.Model
		}
	}
	if primary == "" {
		return ModelChain{}, fmt.Errorf("%w: agent %s", ErrNoModelConfigured, agentID)
	}

	chain := ModelChain{Primary: primary}
	for _, fb := range r.models.Fallbacks {
		if fb.Primary == primary {
			chain.Fallbacks = append([]string(nil), fb.Fallbacks...)
			break
		}
	}
	return chain, nil
}

// ListAgentIDs enumerates configured agents in declaration order.
func (r *Resolver) ListAgentIDs() []string {
	ids := make([]string, 0, len(r.models.Agents))
	seen := make(map[string]struct{}, len(r.models.Agents))
	for _, a := range r.models.Agents {
		if _, ok := seen[a.ID]; ok {
			continue
		}
		seen[a.ID] = struct{}{}
		ids = append(ids, a.ID)
	}
	return ids
}

// BuildSessionKey derives a stable, lower-case session key for agentID and
// the message origin: "agent:<agent>:<channel>:<peer>", falling back to
// "agent:<agent>:main" when the origin carries no channel.
func BuildSessionKey(agentID string, meta SessionMetadata) string {
	agent := strings.ToLower(strings.TrimSpace(agentID))
	channel := strings.ToLower(strings.TrimSpace(meta.Channel))
	if channel == "" {
		return "agent:" + agent + ":main"
	}
	parts := []string{"agent", agent, channel}
	if meta.GuildID != "" {
		parts = append(parts, "guild", strings.ToLower(meta.GuildID))
	}
	peer := strings.ToLower(strings.TrimSpace(meta.Peer))
	if peer == "" {
		peer = "direct"
	}
	parts = append(parts, peer)
	return strings.Join(parts, ":")
}
