package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/contextwindow"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/routing"
)

const sampleYAML = `
default_model: anthropic/claude-sonnet
default_agent: main
use_priority: true
agents:
  - id: main
    model: anthropic/claude-opus
    max_subagent_depth: 2
    subagent_models: [openai/gpt-4o-mini]
    context_window:
      warn_threshold: 0.5
      hard_limit: 1000
    max_model_calls: 6
  - id: helper
bindings:
  - agent: helper
    channel: discord
    peer_pattern: "^bot-"
    priority: 5
  - agent: main
    channel: slack
    peer: alice
fallbacks:
  - primary: anthropic/claude-opus
    models: [openai/gpt-4o, google/gemini-pro]
providers:
  anthropic: anthropic
  openai: openai
  google: google
  local-: openai
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "anthropic/claude-sonnet", cfg.DefaultModel)
	assert.True(t, cfg.UsePriority)
	require.Len(t, cfg.Agents, 2)

	main, ok := cfg.Agent("main")
	require.True(t, ok)
	assert.Equal(t, 6, main.MaxModelCalls)

	g := main.Guard()
	assert.Equal(t, 500, g.WarnLevel())
	assert.Equal(t, 1000, g.HardLimit)

	_, ok = cfg.Agent("ghost")
	assert.False(t, ok)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Empty(t, cfg.Agents)
}

func TestParse_UnknownField(t *testing.T) {
	_, err := Parse([]byte("default_modle: x\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "main", cfg.DefaultAgent)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{"duplicate agent", Config{Agents: []AgentConfig{{ID: "a"}, {ID: "a"}}}, "duplicate id"},
		{"missing id", Config{Agents: []AgentConfig{{Model: "m"}}}, "id is required"},
		{"unknown default agent", Config{Agents: []AgentConfig{{ID: "a"}}, DefaultAgent: "b"}, "default_agent"},
		{"unknown binding agent", Config{Agents: []AgentConfig{{ID: "a"}}, Bindings: []BindingConfig{{Agent: "b"}}}, "not declared"},
		{"peer and pattern", Config{Bindings: []BindingConfig{{Agent: "a", Peer: "x", PeerPattern: "y"}}}, "mutually exclusive"},
		{"bad pattern is not fatal", Config{Bindings: []BindingConfig{{Agent: "a", PeerPattern: "(["}}}, ""},
		{"bad threshold", Config{Agents: []AgentConfig{{ID: "a", ContextWindow: contextwindow.Settings{WarnThreshold: 1.5}}}}, "warn_threshold"},
		{"unknown provider", Config{Providers: map[string]string{"x": "mystery"}}, "unknown provider kind"},
		{"fallback without primary", Config{Fallbacks: []FallbackConfig{{Models: []string{"m"}}}}, "primary is required"},
		{"no agents declared accepts any reference", Config{DefaultAgent: "anything", Bindings: []BindingConfig{{Agent: "x"}}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParse_InvalidPeerPatternNeverMatches(t *testing.T) {
	cfg, err := Parse([]byte(`
default_agent: main
agents:
  - id: main
    model: anthropic/claude-sonnet
  - id: bots
    model: openai/gpt-4o
bindings:
  - agent: bots
    peer_pattern: "([bad"
`))
	require.NoError(t, err)

	warnings := cfg.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], `"([bad"`)

	agent, err := cfg.Resolver().ResolveAgent(routing.SessionMetadata{Peer: "([bad"})
	require.NoError(t, err)
	assert.Equal(t, "main", agent)
}

func TestWarnings_ValidConfig(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)
	assert.Empty(t, cfg.Warnings())
}

func TestSubagentPolicy(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.MaxSubagentDepth("main"))
	assert.Equal(t, DefaultMaxSubagentDepth, cfg.MaxSubagentDepth("helper"))
	assert.Equal(t, DefaultMaxSubagentDepth, cfg.MaxSubagentDepth("ghost"))

	assert.True(t, cfg.ModelAllowed("main", "openai/gpt-4o-mini"))
	assert.False(t, cfg.ModelAllowed("main", "anthropic/claude-opus"))
	assert.True(t, cfg.ModelAllowed("helper", "anything"))
}

func TestResolver(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	r := cfg.Resolver()

	agent, err := r.ResolveAgent(routing.SessionMetadata{Channel: "discord", Peer: "bot-7"})
	require.NoError(t, err)
	assert.Equal(t, "helper", agent)

	agent, err = r.ResolveAgent(routing.SessionMetadata{Channel: "slack", Peer: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "main", agent)

	agent, err = r.ResolveAgent(routing.SessionMetadata{Channel: "slack", Peer: "bob"})
	require.NoError(t, err)
	assert.Equal(t, "main", agent)

	chain, err := r.ResolveAgentModel("main")
	require.NoError(t, err)
	assert.Equal(t, []string{"anthropic/claude-opus", "openai/gpt-4o", "google/gemini-pro"}, chain.AllModels())

	chain, err = r.ResolveAgentModel("helper")
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-sonnet", chain.Primary)
	assert.Empty(t, chain.Fallbacks)
}

func TestProviderKind(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	tests := []struct {
		id     string
		want   model.ProviderKind
		wantOK bool
	}{
		{"anthropic/claude-opus", model.KindAnthropic, true},
		{"google/gemini-pro", model.KindGoogle, true},
		{"local-llama", model.KindOpenAI, true},
		{"mystery/model", model.KindOther, false},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			kind, ok := cfg.ProviderKind(tt.id)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, kind)
		})
	}
}
