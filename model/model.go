package model

import (
	"context"
	"strings"

	"github.com/hupe1980/agentrelay/core"
)

// ProviderKind selects the transcript-repair ruleset for a backend.
type ProviderKind int

const (
	// KindOther passes transcripts through unmodified.
	KindOther ProviderKind = iota
	// KindAnthropic requires strict user/assistant alternation.
	KindAnthropic
	// KindOpenAI allows a single leading system message.
	KindOpenAI
	// KindGoogle shares the alternation rules of KindAnthropic.
	KindGoogle
)

// String returns the lower-case provider name.
func (k ProviderKind) String() string {
	switch k {
	case KindAnthropic:
		return "anthropic"
	case KindOpenAI:
		return "openai"
	case KindGoogle:
		return "google"
	default:
		return "other"
	}
}

// ParseProviderKind maps a provider name to its kind. Unknown names map to KindOther.
func ParseProviderKind(s string) ProviderKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "anthropic", "claude":
		return KindAnthropic
	case "openai", "azure-openai":
		return KindOpenAI
	case "google", "gemini", "vertex":
		return KindGoogle
	default:
		return KindOther
	}
}

// SplitModelID splits "provider/model" into its parts. Ids without a slash
// return an empty provider.
func SplitModelID(id string) (provider, name string) {
	if i := strings.IndexByte(id, '/'); i > 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema object
}

// Request is the input of a single provider call. Messages have already been
// repaired for the provider's kind.
type Request struct {
	Model     string           `json:"model"`
	Messages  []core.Content   `json:"messages"`
	Tools     []ToolDefinition `json:"tools,omitempty"`
	MaxTokens int64            `json:"max_tokens,omitempty"`
}

// Usage captures token accounting for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{InputTokens: u.InputTokens + o.InputTokens, OutputTokens: u.OutputTokens + o.OutputTokens}
}

// Completion is the successful outcome of a provider call.
type Completion struct {
	Content      core.Content `json:"content"`
	Usage        Usage        `json:"usage"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", ...
}

// Provider is the Model Provider capability. Complete returns either a
// completion or an error that AsProviderError can classify.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	Kind() ProviderKind
}

// AuthRotator is implemented by providers holding more than one credential.
// RotateAuth switches to the next credential and reports whether one was
// available.
type AuthRotator interface {
	RotateAuth() bool
}

// EstimateTokens approximates the token count of a transcript using the
// four-characters-per-token heuristic plus a small per-message overhead.
func EstimateTokens(messages []core.Content) int {
	n := 0
	for _, m := range messages {
		n += m.CharCount()/4 + 4
	}
	return n
}
