package subagent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// ToolName is the function name models use to request a subagent.
const ToolName = "spawn_subagent"

// ToolArgs are the decoded arguments of a spawn_subagent call.
type ToolArgs struct {
	AgentID string `json:"agent_id"`
	Task    string `json:"task"`
}

// ToolDefinition describes spawn_subagent to the model.
func ToolDefinition() model.ToolDefinition {
	return model.ToolDefinition{
		Name:        ToolName,
		Description: "Delegate a self-contained task to another agent and wait for its answer.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"agent_id": map[string]any{
					"type":        "string",
					"description": "ID of the agent that should handle the task",
				},
				"task": map[string]any{
					"type":        "string",
					"description": "The task for the subagent to complete",
				},
			},
			"required": []string{"agent_id", "task"},
		},
	}
}

// ParseToolArgs decodes and validates the JSON arguments of a call.
func ParseToolArgs(arguments string) (ToolArgs, error) {
	var args ToolArgs
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return ToolArgs{}, fmt.Errorf("decode %s arguments: %w", ToolName, err)
	}
	args.AgentID = strings.TrimSpace(args.AgentID)
	if args.AgentID == "" {
		return ToolArgs{}, errors.New("agent_id is required")
	}
	if strings.TrimSpace(args.Task) == "" {
		return ToolArgs{}, errors.New("task is required")
	}
	return args, nil
}

// Messages returns the initial transcript handed to the child.
func (a ToolArgs) Messages() []core.Content {
	return []core.Content{core.UserText(a.Task)}
}
