package failover

import (
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/agentrelay/routing"
)

// MaxAttemptsPerModel bounds same-model retries before failing over.
const MaxAttemptsPerModel = 3

// ModelAttempt records one provider call. Err is nil for a successful call.
type ModelAttempt struct {
	ModelID  string
	Err      error
	Duration time.Duration
}

// State walks a model chain for one agent run.
type State struct {
	chain           routing.ModelChain
	models          []string
	index           int
	attempts        []ModelAttempt
	attemptsAtIndex int
}

// NewState creates a state positioned at the chain's primary model.
func NewState(chain routing.ModelChain) *State {
	return &State{chain: chain, models: chain.AllModels()}
}

// Chain returns the chain the state was created from.
func (s *State) Chain() routing.ModelChain { return s.chain }

// TotalModels returns the number of models in the chain.
func (s *State) TotalModels() int { return len(s.models) }

// Index returns the current position; it equals TotalModels once exhausted.
func (s *State) Index() int { return s.index }

// Exhausted reports whether every model of the chain has been given up on.
func (s *State) Exhausted() bool { return s.index >= len(s.models) }

// CurrentModel returns the model to call next, or "" once exhausted.
func (s *State) CurrentModel() string {
	if s.Exhausted() {
		return ""
	}
	return s.models[s.index]
}

// RecordAttempt appends an attempt for the current model without moving.
func (s *State) RecordAttempt(err error, d time.Duration) {
	s.attempts = append(s.attempts, ModelAttempt{ModelID: s.CurrentModel(), Err: err, Duration: d})
	s.attemptsAtIndex++
}

// CanRetryCurrentModel reports whether fewer than MaxAttemptsPerModel
// attempts were recorded since the last Advance.
func (s *State) CanRetryCurrentModel() bool {
	return !s.Exhausted() && s.attemptsAtIndex < MaxAttemptsPerModel
}

// Advance moves to the next model and returns it. On the last model it marks
// the state exhausted and returns false.
func (s *State) Advance() (string, bool) {
	if s.index+1 < len(s.models) {
		s.index++
		s.attemptsAtIndex = 0
		return s.models[s.index], true
	}
	s.index = len(s.models)
	s.attemptsAtIndex = 0
	return "", false
}

// Attempts returns a copy of the attempt history in recording order.
func (s *State) Attempts() []ModelAttempt {
	out := make([]ModelAttempt, len(s.attempts))
	copy(out, s.attempts)
	return out
}

// ExhaustedError is returned when every model of the chain failed.
type ExhaustedError struct {
	Attempts []ModelAttempt
}

func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString("all models exhausted")
	for i, a := range e.Attempts {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		if a.Err != nil {
			fmt.Fprintf(&b, "%s: %v", a.ModelID, a.Err)
		} else {
			b.WriteString(a.ModelID)
		}
	}
	return b.String()
}

// Unwrap exposes the last recorded error so errors.As can reach it.
func (e *ExhaustedError) Unwrap() error {
	for i := len(e.Attempts) - 1; i >= 0; i-- {
		if e.Attempts[i].Err != nil {
			return e.Attempts[i].Err
		}
	}
	return nil
}
