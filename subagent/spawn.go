package subagent

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/routing"
)

var (
	// ErrMaxDepthExceeded is returned when the child would run deeper than the
	// parent agent allows.
	ErrMaxDepthExceeded = errors.New("max subagent depth exceeded")

	// ErrModelNotAllowed is returned when the child's model is not on the
	// parent agent's subagent allowlist.
	ErrModelNotAllowed = errors.New("model not allowed for subagent")
)

// Runner is the agent runner capability the spawner composes.
type Runner interface {
	// RunAndGetResult executes an agent run to completion.
	RunAndGetResult(ctx context.Context, params core.RunParams) (core.RunResult, error)
	// MaxSubagentDepth returns the depth bound configured for agentID.
	MaxSubagentDepth(agentID string) int
	// ValidateModelAllowlist reports whether agentID may spawn a child on model.
	ValidateModelAllowlist(agentID, model string) bool
	// Resolver returns the resolver built from the runner's configuration.
	Resolver() *routing.Resolver
}

// SpawnParams is a one-shot request consumed by Spawn.
type SpawnParams struct {
	AgentID          string         // child agent
	ParentAgentID    string         // owner of the allowlist and depth bound
	Messages         []core.Content // initial child transcript
	ParentSessionKey string
	ParentDepth      int
	ThreadID         string
	Budget           *ResourceBudget // nil: unbounded
}

// Options configure Spawn.
type Options struct {
	Logger *logging.RelayLogger
}

// ChildSessionKey derives the session key of a subagent run from its parent.
func ChildSessionKey(parentKey, agentID string, depth int) string {
	return fmt.Sprintf("%s:subagent:%s:%d", parentKey, agentID, depth)
}

// Spawn runs a child agent. It returns the child's result and the budget to
// hand back to the parent: updated after a successful settlement, otherwise
// the original pointer unmodified.
func Spawn(ctx context.Context, r Runner, p SpawnParams, optFns ...func(o *Options)) (core.RunResult, *ResourceBudget, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	log := logging.OrDiscard(opts.Logger).WithComponent("subagent")

	depth := p.ParentDepth + 1

	fail := func(err error) (core.RunResult, *ResourceBudget, error) {
		log.Warn("subagent.spawn.rejected", "child_agent", p.AgentID, "depth", depth, "error", err.Error())
		return core.RunResult{}, p.Budget, err
	}

	if maxDepth := r.MaxSubagentDepth(p.ParentAgentID); depth > maxDepth {
		return fail(fmt.Errorf("%w: depth %d > max %d for agent %s", ErrMaxDepthExceeded, depth, maxDepth, p.ParentAgentID))
	}

	resolver := r.Resolver()
	if resolver == nil {
		return fail(errors.New("runner has no resolver"))
	}

	chain, err := resolver.ResolveAgentModel(p.AgentID)
	if err != nil {
		return fail(fmt.Errorf("resolve subagent %s: %w", p.AgentID, err))
	}

	if !r.ValidateModelAllowlist(p.ParentAgentID, chain.Primary) {
		return fail(fmt.Errorf("%w: %s for agent %s", ErrModelNotAllowed, chain.Primary, p.ParentAgentID))
	}

	if err := ctx.Err(); err != nil {
		return fail(err)
	}

	child := core.RunParams{
		AgentID:    p.AgentID,
		SessionKey: ChildSessionKey(p.ParentSessionKey, p.AgentID, depth),
		Messages:   core.CloneAll(p.Messages),
		Depth:      depth,
		ThreadID:   p.ThreadID,
	}
	if p.Budget != nil {
		remaining := p.Budget.RemainingTokens
		child.TokenBudget = &remaining
	}

	res, err := r.RunAndGetResult(ctx, child)
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		err = fmt.Errorf("subagent %s: %w", p.AgentID, err)
		log.LogSpawn(p.AgentID, depth, 0, err)
		return core.RunResult{}, p.Budget, err
	}

	if p.Budget == nil {
		log.LogSpawn(p.AgentID, depth, res.TotalTokens(), nil)
		return res, nil, nil
	}

	updated, err := p.Budget.Deduct(res.TotalTokens())
	if err != nil {
		log.Warn("subagent.spawn.over_budget", "child_agent", p.AgentID, "depth", depth,
			"token_count", res.TotalTokens(), "remaining_tokens", p.Budget.RemainingTokens)
		return core.RunResult{}, p.Budget, err
	}

	log.With("remaining_tokens", updated.RemainingTokens).LogSpawn(p.AgentID, depth, res.TotalTokens(), nil)

	return res, &updated, nil
}
