package subagent

import (
	"errors"
	"fmt"
)

// ErrInsufficientBudget is returned when a child consumed more tokens than
// the budget has left.
var ErrInsufficientBudget = errors.New("insufficient resource budget")

// ResourceBudget bounds the tokens a tree of subagent runs may consume.
// It has value semantics: Deduct returns an updated copy and never mutates
// the receiver.
type ResourceBudget struct {
	MaxTokens       int `json:"max_tokens"`
	RemainingTokens int `json:"remaining_tokens"`
}

// NewResourceBudget returns a full budget of maxTokens.
func NewResourceBudget(maxTokens int) ResourceBudget {
	return ResourceBudget{MaxTokens: maxTokens, RemainingTokens: maxTokens}
}

// Deduct subtracts tokens. When fewer than tokens remain the receiver is
// returned unchanged together with ErrInsufficientBudget.
func (b ResourceBudget) Deduct(tokens int) (ResourceBudget, error) {
	if tokens < 0 {
		return b, fmt.Errorf("negative token deduction: %d", tokens)
	}
	if b.RemainingTokens < tokens {
		return b, fmt.Errorf("%w: need %d tokens, %d remaining", ErrInsufficientBudget, tokens, b.RemainingTokens)
	}
	b.RemainingTokens -= tokens
	return b, nil
}

// UsedTokens returns MaxTokens - RemainingTokens.
func (b ResourceBudget) UsedTokens() int { return b.MaxTokens - b.RemainingTokens }

// Exhausted reports whether no tokens remain.
func (b ResourceBudget) Exhausted() bool { return b.RemainingTokens <= 0 }
