package model

import (
	"context"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// MockStep is one scripted outcome of a MockProvider call.
type MockStep struct {
	Completion *Completion
	Err        error
	// Block makes the call wait for context cancellation before returning ctx.Err().
	Block bool
}

// Reply scripts a successful text completion with the given usage.
func Reply(text string, inputTokens, outputTokens int) MockStep {
	return MockStep{Completion: &Completion{
		Content:      core.AssistantText(text),
		Usage:        Usage{InputTokens: inputTokens, OutputTokens: outputTokens},
		FinishReason: "stop",
	}}
}

// ReplyWithCalls scripts a completion requesting tool calls.
func ReplyWithCalls(text string, usage Usage, calls ...core.FunctionCall) MockStep {
	content := core.AssistantText(text)
	for _, fc := range calls {
		content.Parts = append(content.Parts, core.FunctionCallPart{FunctionCall: fc})
	}
	return MockStep{Completion: &Completion{Content: content, Usage: usage, FinishReason: "tool_calls"}}
}

// Fail scripts an error outcome.
func Fail(err error) MockStep { return MockStep{Err: err} }

// MockProvider is a lightweight in-memory Provider useful for tests & examples.
// Steps are consumed per model id in FIFO order; once a model's script is
// empty the provider answers "Mock response to: <last user text>".
type MockProvider struct {
	mu        sync.Mutex
	kind      ProviderKind
	script    map[string][]MockStep
	calls     []Request
	rotations int
}

// NewMockProvider constructs a MockProvider reporting the given kind.
func NewMockProvider(kind ProviderKind) *MockProvider {
	return &MockProvider{kind: kind, script: make(map[string][]MockStep)}
}

// Push appends scripted steps for modelID.
func (m *MockProvider) Push(modelID string, steps ...MockStep) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script[modelID] = append(m.script[modelID], steps...)
	return m
}

// Kind implements Provider.
func (m *MockProvider) Kind() ProviderKind { return m.kind }

// Complete implements Provider.
func (m *MockProvider) Complete(ctx context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	m.calls = append(m.calls, Request{
		Model:     req.Model,
		Messages:  core.CloneAll(req.Messages),
		Tools:     req.Tools,
		MaxTokens: req.MaxTokens,
	})
	var step *MockStep
	if queue := m.script[req.Model]; len(queue) > 0 {
		step = &queue[0]
		m.script[req.Model] = queue[1:]
	}
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if step == nil {
		return m.echo(req), nil
	}
	if step.Block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if step.Err != nil {
		return nil, step.Err
	}
	c := *step.Completion
	c.Content = c.Content.Clone()
	return &c, nil
}

func (m *MockProvider) echo(req Request) *Completion {
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			last = req.Messages[i].Text()
			break
		}
	}
	return &Completion{
		Content:      core.AssistantText("Mock response to: " + last),
		Usage:        Usage{InputTokens: EstimateTokens(req.Messages), OutputTokens: 8},
		FinishReason: "stop",
	}
}

// RotateAuth implements AuthRotator and always succeeds.
func (m *MockProvider) RotateAuth() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rotations++
	return true
}

// Calls returns a copy of the requests received so far.
func (m *MockProvider) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}

// Rotations returns how many times RotateAuth was called.
func (m *MockProvider) Rotations() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rotations
}
