package core

// RunParams is the input of one agent run.
//
// Depth is 0 for runs started by a channel and grows by one for every
// subagent level. ThreadID is propagated unchanged from parent to child so
// both share thread context.
//
// TokenBudget carries the tokens a parent still has for its subagent tree.
// When set, the run's own subagents draw from it instead of from a fresh
// budget, so a subtree can never spend more than its root granted.
type RunParams struct {
	AgentID     string    `json:"agent_id"`
	SessionKey  string    `json:"session_key"`
	Messages    []Content `json:"messages"`
	Depth       int       `json:"depth"`
	ThreadID    string    `json:"thread_id,omitempty"`
	TokenBudget *int      `json:"token_budget,omitempty"`
}

// RunResult is the terminal outcome of a completed agent run.
type RunResult struct {
	RunID        string         `json:"run_id"`
	Response     Content        `json:"response"`
	ToolCalls    []FunctionCall `json:"tool_calls,omitempty"`
	Model        string         `json:"model"`
	InputTokens  int            `json:"input_tokens"`
	OutputTokens int            `json:"output_tokens"`
	// Calls counts provider calls including retries and failovers.
	Calls int `json:"calls"`
}

// TotalTokens returns the run's input plus output tokens, including those of
// nested subagent runs.
func (r RunResult) TotalTokens() int { return r.InputTokens + r.OutputTokens }
