// Package config loads the relay configuration from YAML.
//
// A Config is loaded once and treated as an immutable snapshot: the routing,
// failover and context-window components derive their own value types from it
// and never write back.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/contextwindow"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/routing"
)

// DefaultMaxSubagentDepth applies to agents that do not configure a depth.
const DefaultMaxSubagentDepth = 3

// Config is the root of the YAML document.
type Config struct {
	DefaultModel string            `yaml:"default_model"`
	DefaultAgent string            `yaml:"default_agent"`
	UsePriority  bool              `yaml:"use_priority"`
	Agents       []AgentConfig     `yaml:"agents"`
	Bindings     []BindingConfig   `yaml:"bindings"`
	Fallbacks    []FallbackConfig  `yaml:"fallbacks"`
	Providers    map[string]string `yaml:"providers"` // model id prefix -> provider kind
}

// AgentConfig is the per-agent section.
type AgentConfig struct {
	ID                  string                 `yaml:"id"`
	Model               string                 `yaml:"model"`
	MaxSubagentDepth    int                    `yaml:"max_subagent_depth"`
	SubagentModels      []string               `yaml:"subagent_models"`       // empty: no allowlist
	SubagentTokenBudget int                    `yaml:"subagent_token_budget"` // 0: unbounded
	ContextWindow       contextwindow.Settings `yaml:"context_window"`
	MaxModelCalls       int                    `yaml:"max_model_calls"`
}

// Guard returns the context window guard for the agent.
func (a AgentConfig) Guard() contextwindow.Guard {
	return contextwindow.NewGuard(a.ContextWindow)
}

// BindingConfig is one session-to-agent binding. Peer and PeerPattern are
// mutually exclusive; leaving both empty matches any peer.
type BindingConfig struct {
	Agent       string `yaml:"agent"`
	Priority    uint32 `yaml:"priority"`
	Channel     string `yaml:"channel"`
	AccountID   string `yaml:"account_id"`
	Peer        string `yaml:"peer"`
	PeerPattern string `yaml:"peer_pattern"`
	GuildID     string `yaml:"guild_id"`
}

// FallbackConfig lists the fallbacks used when Primary is the resolved model.
type FallbackConfig struct {
	Primary string   `yaml:"primary"`
	Models  []string `yaml:"models"`
}

// Load reads and parses the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document and validates it. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks referential integrity: unique agent ids, bindings and the
// default agent pointing at declared agents (when agents are declared) and
// known provider kinds. Invalid peer patterns are not errors: such a binding
// never matches. See Warnings.
func (c *Config) Validate() error {
	var errs []error

	seen := make(map[string]struct{}, len(c.Agents))
	for i, a := range c.Agents {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("agents[%d]: id is required", i))
			continue
		}
		if _, dup := seen[a.ID]; dup {
			errs = append(errs, fmt.Errorf("agents[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = struct{}{}
		if a.MaxSubagentDepth < 0 {
			errs = append(errs, fmt.Errorf("agent %q: max_subagent_depth must not be negative", a.ID))
		}
		if a.MaxModelCalls < 0 {
			errs = append(errs, fmt.Errorf("agent %q: max_model_calls must not be negative", a.ID))
		}
		if a.SubagentTokenBudget < 0 {
			errs = append(errs, fmt.Errorf("agent %q: subagent_token_budget must not be negative", a.ID))
		}
		if t := a.ContextWindow.WarnThreshold; t < 0 || t > 1 {
			errs = append(errs, fmt.Errorf("agent %q: warn_threshold %v outside [0,1]", a.ID, t))
		}
	}

	known := func(id string) bool {
		if len(c.Agents) == 0 {
			return true
		}
		_, ok := seen[id]
		return ok
	}

	if c.DefaultAgent != "" && !known(c.DefaultAgent) {
		errs = append(errs, fmt.Errorf("default_agent %q is not declared", c.DefaultAgent))
	}

	for i, b := range c.Bindings {
		if b.Agent == "" {
			errs = append(errs, fmt.Errorf("bindings[%d]: agent is required", i))
		} else if !known(b.Agent) {
			errs = append(errs, fmt.Errorf("bindings[%d]: agent %q is not declared", i, b.Agent))
		}
		if b.Peer != "" && b.PeerPattern != "" {
			errs = append(errs, fmt.Errorf("bindings[%d]: peer and peer_pattern are mutually exclusive", i))
		}
	}

	for i, f := range c.Fallbacks {
		if f.Primary == "" {
			errs = append(errs, fmt.Errorf("fallbacks[%d]: primary is required", i))
		}
	}

	for prefix, kind := range c.Providers {
		if model.ParseProviderKind(kind) == model.KindOther && !strings.EqualFold(kind, "other") {
			errs = append(errs, fmt.Errorf("providers[%s]: unknown provider kind %q", prefix, kind))
		}
	}

	return errors.Join(errs...)
}

// Warnings lists settings that load fine but are unlikely to be intended,
// such as peer patterns that never match because they do not compile.
func (c *Config) Warnings() []string {
	var warnings []string
	for i, b := range c.Bindings {
		if b.PeerPattern != "" && !routing.NewPeerPattern(b.PeerPattern).Valid() {
			warnings = append(warnings, fmt.Sprintf("bindings[%d]: peer_pattern %q does not compile and never matches", i, b.PeerPattern))
		}
	}
	return warnings
}

// Agent returns the configuration of the agent with the given id.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}

// MaxSubagentDepth returns the agent's depth bound, falling back to
// DefaultMaxSubagentDepth.
func (c *Config) MaxSubagentDepth(agentID string) int {
	if a, ok := c.Agent(agentID); ok && a.MaxSubagentDepth > 0 {
		return a.MaxSubagentDepth
	}
	return DefaultMaxSubagentDepth
}

// ModelAllowed reports whether the agent may spawn a subagent running model.
// Agents without an allowlist may spawn any model.
func (c *Config) ModelAllowed(agentID, modelID string) bool {
	a, ok := c.Agent(agentID)
	if !ok || len(a.SubagentModels) == 0 {
		return true
	}
	return slices.Contains(a.SubagentModels, modelID)
}

// ResolutionConfig converts the binding section.
func (c *Config) ResolutionConfig() routing.ResolutionConfig {
	bindings := make([]routing.AgentBinding, 0, len(c.Bindings))
	for _, b := range c.Bindings {
		var peer routing.PeerMatch = routing.AnyPeer{}
		switch {
		case b.Peer != "":
			peer = routing.ExactPeer{ID: b.Peer}
		case b.PeerPattern != "":
			peer = routing.NewPeerPattern(b.PeerPattern)
		}
		bindings = append(bindings, routing.AgentBinding{
			AgentID:  b.Agent,
			Priority: b.Priority,
			Match: routing.BindingMatch{
				Channel:   b.Channel,
				AccountID: b.AccountID,
				Peer:      peer,
				GuildID:   b.GuildID,
			},
		})
	}
	return routing.ResolutionConfig{
		Bindings:     bindings,
		DefaultAgent: c.DefaultAgent,
		UsePriority:  c.UsePriority,
	}
}

// ModelConfig converts the agent model and fallback sections.
func (c *Config) ModelConfig() routing.ModelConfig {
	mc := routing.ModelConfig{DefaultModel: c.DefaultModel}
	for _, a := range c.Agents {
		mc.Agents = append(mc.Agents, routing.AgentModel{ID: a.ID, Model: a.Model})
	}
	for _, f := range c.Fallbacks {
		mc.Fallbacks = append(mc.Fallbacks, routing.ModelFallback{Primary: f.Primary, Fallbacks: slices.Clone(f.Models)})
	}
	return mc
}

// Resolver builds a resolver over this snapshot.
func (c *Config) Resolver() *routing.Resolver {
	return routing.NewResolver(c.ResolutionConfig(), c.ModelConfig())
}

// ProviderKind returns the configured provider kind for a model id. Model ids
// are matched by their "provider/" prefix first, then by the longest
// configured prefix of the full id.
func (c *Config) ProviderKind(modelID string) (model.ProviderKind, bool) {
	prefix, _ := model.SplitModelID(modelID)
	if kind, ok := c.Providers[prefix]; ok && prefix != "" {
		return model.ParseProviderKind(kind), true
	}

	best := ""
	for p := range c.Providers {
		if strings.HasPrefix(modelID, p) && len(p) > len(best) {
			best = p
		}
	}
	if best == "" {
		return model.KindOther, false
	}
	return model.ParseProviderKind(c.Providers[best]), true
}
