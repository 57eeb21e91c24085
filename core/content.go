package core

import "strings"

// Conversation roles understood by transcript repair and the provider adapters.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Content holds role + ordered parts. A transcript is a []Content in
// conversation order.
type Content struct {
	Role  string `json:"role,omitempty"` // Conversation role (user, assistant, tool, system)
	Parts []Part `json:"parts"`          // Ordered heterogeneous parts
}

// NewTextContent builds a single text part message for role.
func NewTextContent(role, text string) Content {
	return Content{Role: role, Parts: []Part{TextPart{Text: text}}}
}

// UserText is shorthand for NewTextContent(RoleUser, text).
func UserText(text string) Content { return NewTextContent(RoleUser, text) }

// AssistantText is shorthand for NewTextContent(RoleAssistant, text).
func AssistantText(text string) Content { return NewTextContent(RoleAssistant, text) }

// SystemText is shorthand for NewTextContent(RoleSystem, text).
func SystemText(text string) Content { return NewTextContent(RoleSystem, text) }

// ToolResult builds a tool role message carrying a single function response.
func ToolResult(callID, name, response string) Content {
	return Content{Role: RoleTool, Parts: []Part{FunctionResponsePart{
		FunctionResponse: FunctionResponse{ID: callID, Name: name, Response: response},
	}}}
}

// Text concatenates all text parts in order.
func (c Content) Text() string {
	var b strings.Builder
	for _, p := range c.Parts {
		if tp, ok := p.(TextPart); ok {
			b.WriteString(tp.Text)
		}
	}
	return b.String()
}

// FunctionCalls returns the function call requests carried by c.
func (c Content) FunctionCalls() []FunctionCall {
	var calls []FunctionCall
	for _, p := range c.Parts {
		if fc, ok := p.(FunctionCallPart); ok {
			calls = append(calls, fc.FunctionCall)
		}
	}
	return calls
}

// Clone returns a copy of c whose Parts slice can be modified independently.
// Parts are values so a shallow slice copy is sufficient.
func (c Content) Clone() Content {
	parts := make([]Part, len(c.Parts))
	copy(parts, c.Parts)
	return Content{Role: c.Role, Parts: parts}
}

// CloneAll copies a transcript.
func CloneAll(contents []Content) []Content {
	out := make([]Content, len(contents))
	for i, c := range contents {
		out[i] = c.Clone()
	}
	return out
}

// CharCount returns the number of characters carried by text, call arguments
// and function responses. Used for token estimation.
func (c Content) CharCount() int {
	n := 0
	for _, p := range c.Parts {
		switch part := p.(type) {
		case TextPart:
			n += len(part.Text)
		case FunctionCallPart:
			n += len(part.FunctionCall.Name) + len(part.FunctionCall.Arguments)
		case FunctionResponsePart:
			n += len(part.FunctionResponse.Response) + len(part.FunctionResponse.Error)
		}
	}
	return n
}
