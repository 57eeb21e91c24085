package testutil

import "github.com/hupe1980/agentrelay/core"

// TranscriptBuilder provides a fluent helper for constructing transcripts.
// Example:
//
//	msgs := NewTranscript().System("rules").User("hi").Assistant("hello").Build()
type TranscriptBuilder struct {
	msgs []core.Content
}

// NewTranscript creates an empty builder.
func NewTranscript() *TranscriptBuilder { return &TranscriptBuilder{} }

// System appends a system message (chainable).
func (b *TranscriptBuilder) System(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.SystemText(text))
	return b
}

// User appends a user message (chainable).
func (b *TranscriptBuilder) User(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.UserText(text))
	return b
}

// Assistant appends an assistant text message (chainable).
func (b *TranscriptBuilder) Assistant(text string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.AssistantText(text))
	return b
}

// AssistantCall appends an assistant message carrying one function call (chainable).
func (b *TranscriptBuilder) AssistantCall(id, name, args string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.Content{Role: core.RoleAssistant, Parts: []core.Part{
		core.FunctionCallPart{FunctionCall: core.FunctionCall{ID: id, Name: name, Arguments: args}},
	}})
	return b
}

// Tool appends a tool result message (chainable).
func (b *TranscriptBuilder) Tool(callID, name, response string) *TranscriptBuilder {
	b.msgs = append(b.msgs, core.ToolResult(callID, name, response))
	return b
}

// Build returns a copy of the accumulated transcript.
func (b *TranscriptBuilder) Build() []core.Content { return core.CloneAll(b.msgs) }

// Roles lists the role of every message.
func Roles(msgs []core.Content) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Role
	}
	return out
}

// Texts lists the concatenated text of every message.
func Texts(msgs []core.Content) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text()
	}
	return out
}
