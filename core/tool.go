package core

import (
	"context"
	"time"
)

// Tool is a named, schema-described operation the model may invoke.
//
// Implementations must be safe for concurrent use; the runtime may execute
// the same tool for several conversations at once. Optional behavior
// (approval requirement, execution timeout override) is expressed through
// the capability interfaces below.
type Tool interface {
	// Name returns the unique identifier within the tools visible to one
	// agent turn.
	Name() string

	// Description is shown to the model to guide tool selection.
	Description() string

	// InputSchema returns a minimal JSON-Schema-shaped description of the
	// accepted arguments. The runtime treats it as opaque beyond the
	// object/properties/required reflection contract.
	InputSchema() map[string]any

	// Execute runs the tool with validated arguments and the per-invocation
	// context. Errors surface to the model as tool-call-error events and
	// are fed back into conversation history; they do not end the turn.
	Execute(ctx context.Context, tc *ToolContext, args map[string]any) (any, error)
}

// ApprovalRequirer is an optional Tool capability: tools implementing it can
// demand a human decision before execution, statically or per invocation.
type ApprovalRequirer interface {
	RequiresApproval(tc *ToolContext) bool
}

// TimeoutOverrider is an optional Tool capability overriding the runtime's
// default per-call execution timeout.
type TimeoutOverrider interface {
	ExecutionTimeout() time.Duration
}

// RequiresApproval reports whether t demands approval for this invocation.
func RequiresApproval(t Tool, tc *ToolContext) bool {
	if ar, ok := t.(ApprovalRequirer); ok {
		return ar.RequiresApproval(tc)
	}
	return false
}

// ToolTimeout returns the tool's execution timeout override, or fallback.
func ToolTimeout(t Tool, fallback time.Duration) time.Duration {
	if to, ok := t.(TimeoutOverrider); ok {
		if d := to.ExecutionTimeout(); d > 0 {
			return d
		}
	}
	return fallback
}

// HandoffSignal is the structural marker a tool result carries to request a
// transfer of control. Detection is duck-typed on the Handoff flag after
// tool execution, before the tool's own result event is emitted.
type HandoffSignal struct {
	Handoff       bool   `json:"handoff"`
	TargetAgentID string `json:"target_agent_id"`
	Reason        string `json:"reason,omitempty"`
	Context       string `json:"context,omitempty"`
}

// AsHandoff inspects a tool result for the handoff marker shape. It accepts
// the typed signal (value or pointer) and the map shape produced by JSON
// round-trips through external tool servers.
func AsHandoff(result any) (*HandoffSignal, bool) {
	switch v := result.(type) {
	case HandoffSignal:
		if v.Handoff {
			return &v, true
		}
	case *HandoffSignal:
		if v != nil && v.Handoff {
			return v, true
		}
	case map[string]any:
		flag, _ := v["handoff"].(bool)
		if !flag {
			return nil, false
		}
		target, _ := v["target_agent_id"].(string)
		reason, _ := v["reason"].(string)
		hctx, _ := v["context"].(string)
		if target == "" {
			return nil, false
		}
		return &HandoffSignal{Handoff: true, TargetAgentID: target, Reason: reason, Context: hctx}, true
	}
	return nil, false
}
