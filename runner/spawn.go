package runner

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/subagent"
)

func splitSpawnCalls(calls []core.FunctionCall) (spawns, others []core.FunctionCall) {
	for _, c := range calls {
		if c.Name == subagent.ToolName {
			spawns = append(spawns, c)
		} else {
			others = append(others, c)
		}
	}
	return spawns, others
}

// spawnAll runs the requested subagents one after another and appends their
// answers as a single tool message, one response part per call, so providers
// see every result directly after the assistant turn that requested it.
// Spawn failures become error results the model can react to; only
// cancellation aborts the parent run. The budget is threaded through the
// spawns and returned.
func (r *Runner) spawnAll(
	ctx context.Context,
	t *turn,
	calls []core.FunctionCall,
	budget *subagent.ResourceBudget,
	res *core.RunResult,
) (*subagent.ResourceBudget, error) {
	results := core.Content{Role: core.RoleTool, Parts: make([]core.Part, 0, len(calls))}
	defer func() {
		if len(results.Parts) > 0 {
			t.messages = append(t.messages, results)
		}
	}()

	for _, call := range calls {
		args, err := subagent.ParseToolArgs(call.Arguments)
		if err != nil {
			results.Parts = append(results.Parts, toolError(call, err))
			continue
		}

		child, updated, err := subagent.Spawn(ctx, r, subagent.SpawnParams{
			AgentID:          args.AgentID,
			ParentAgentID:    t.params.AgentID,
			Messages:         args.Messages(),
			ParentSessionKey: t.params.SessionKey,
			ParentDepth:      t.params.Depth,
			ThreadID:         t.params.ThreadID,
			Budget:           budget,
		}, func(o *subagent.Options) {
			o.Logger = t.log
		})
		budget = updated

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return budget, ctxErr
			}
			results.Parts = append(results.Parts, toolError(call, err))
			continue
		}

		res.InputTokens += child.InputTokens
		res.OutputTokens += child.OutputTokens
		results.Parts = append(results.Parts, core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
			ID:       call.ID,
			Name:     call.Name,
			Response: child.Response.Text(),
		}})
	}

	return budget, nil
}

func toolError(call core.FunctionCall, err error) core.FunctionResponsePart {
	return core.FunctionResponsePart{FunctionResponse: core.FunctionResponse{
		ID:    call.ID,
		Name:  call.Name,
		Error: err.Error(),
	}}
}
