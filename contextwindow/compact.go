package contextwindow

import (
	"context"
	"errors"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// ErrCannotCompact is returned when a transcript cannot be shrunk further.
var ErrCannotCompact = errors.New("transcript cannot be compacted further")

// Compactor shrinks a transcript to at most targetTokens. Implementations
// must return a new slice and leave the input untouched.
type Compactor interface {
	Compact(ctx context.Context, messages []core.Content, targetTokens int) ([]core.Content, error)
}

// TrimCompactor drops the oldest non-system messages until the estimate is
// within the target. System messages and the latest message are always
// kept, and tool results orphaned by the trim are dropped with their call.
type TrimCompactor struct {
	// Estimate counts tokens; defaults to model.EstimateTokens.
	Estimate func([]core.Content) int
}

// Compact implements Compactor. It removes at least one message, so a
// caller reacting to a provider rejection always gets a smaller transcript.
func (c TrimCompactor) Compact(ctx context.Context, messages []core.Content, targetTokens int) ([]core.Content, error) {
	estimate := c.Estimate
	if estimate == nil {
		estimate = model.EstimateTokens
	}

	var system, rest []core.Content
	for _, m := range messages {
		if m.Role == core.RoleSystem {
			system = append(system, m)
			continue
		}
		rest = append(rest, m)
	}
	if len(rest) <= 1 {
		return nil, ErrCannotCompact
	}

	build := func(tail []core.Content) []core.Content {
		out := make([]core.Content, 0, len(system)+len(tail))
		out = append(out, core.CloneAll(system)...)
		return append(out, core.CloneAll(tail)...)
	}

	drop := 1
	for ; drop < len(rest)-1; drop++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if estimate(build(trimOrphans(rest[drop:]))) <= targetTokens {
			break
		}
	}
	return build(trimOrphans(rest[drop:])), nil
}

// trimOrphans skips leading tool results whose calls were dropped. The last
// message is always retained.
func trimOrphans(tail []core.Content) []core.Content {
	for len(tail) > 1 && tail[0].Role == core.RoleTool {
		tail = tail[1:]
	}
	return tail
}
