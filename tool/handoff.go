package tool

import (
	"context"
	"fmt"

	"github.com/hupe1980/agentrelay/core"
)

// NewHandoffTool builds the per-target tool a model calls to transfer the
// conversation to another agent. The tool is named handoff_to_<targetID> and
// returns a core.HandoffSignal which the engine intercepts; the signal never
// reaches the model as a plain tool result.
//
// Usage by LLM:
//
//	{
//	  "name": "handoff_to_billing",
//	  "input": {
//	    "reason": "This task requires billing expertise",
//	    "context": "User disputes an invoice from March"
//	  }
//	}
func NewHandoffTool(target core.AgentDefinition) *FunctionTool {
	description := fmt.Sprintf(
		"Transfer the conversation to the %s agent when the request needs its expertise.", target.Name)
	if target.Description != "" {
		description = fmt.Sprintf(
			"Transfer the conversation to the %s agent. %s", target.Name, target.Description)
	}

	parameters := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"reason": map[string]any{
				"type":        "string",
				"description": "Why this handoff is needed - helps the receiving agent understand the context",
			},
			"context": map[string]any{
				"type":        "string",
				"description": "Additional context or summary for the receiving agent",
			},
		},
		"required": []string{"reason"},
	}

	return NewFunctionTool(
		fmt.Sprintf("handoff_to_%s", target.ID),
		description,
		parameters,
		func(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error) {
			reason, _ := args["reason"].(string)
			handoffContext, _ := args["context"].(string)
			return core.HandoffSignal{
				Handoff:       true,
				TargetAgentID: target.ID,
				Reason:        reason,
				Context:       handoffContext,
			}, nil
		},
	)
}
