package engine

import (
	"context"
	"encoding/json"

	"github.com/hupe1980/agentrelay/core"
)

// Hooks are optional lifecycle extension points invoked by the engine at
// well-defined moments of a conversation turn. Each hook runs synchronously
// before the corresponding event is relayed onward, so its ordering relative
// to the event sequence is deterministic.
//
// A hook returning an error terminates the turn; the error is classified
// like any other failure. Nil fields are skipped.
//
// Hooks may be called concurrently for different conversations and must be
// safe for concurrent use.
//
// Example:
//
//	hooks := &engine.Hooks{
//	    OnToolCall: func(ctx context.Context, hc *engine.HookContext) error {
//	        log.Printf("agent %s calls %s", hc.AgentID, hc.ToolName)
//	        return nil
//	    },
//	}
//	eng, err := engine.New(engine.WithHooks(hooks))
type Hooks struct {
	// OnAgentStart runs after message-start, before the agent's first model
	// call.
	OnAgentStart func(ctx context.Context, hc *HookContext) error

	// OnAgentEnd runs when an agent turn finishes, whether it ended
	// naturally or in a handoff.
	OnAgentEnd func(ctx context.Context, hc *HookContext) error

	// OnToolCall runs after tool arguments are complete, before approval
	// checks and execution.
	OnToolCall func(ctx context.Context, hc *HookContext) error

	// OnToolResult runs after a tool execution produced a result or an
	// error, before the result event is emitted.
	OnToolResult func(ctx context.Context, hc *HookContext) error

	// OnHandoff runs when a handoff marker was captured, before the
	// agent-handoff event is emitted.
	OnHandoff func(ctx context.Context, hc *HookContext) error

	// OnError runs when a turn is about to terminate with an error event.
	// Its own return value is ignored; the turn is already failing.
	OnError func(ctx context.Context, hc *HookContext)
}

// HookContext carries the information available at a hook's call site.
// Fields are populated as far as the lifecycle point allows; unrelated
// fields are zero.
type HookContext struct {
	ConversationID string
	AgentID        string
	UserID         string

	// Tool call fields (OnToolCall, OnToolResult).
	ToolCallID string
	ToolName   string
	Args       json.RawMessage
	Result     any
	ToolErr    error

	// Handoff fields (OnHandoff).
	FromAgentID string
	ToAgentID   string
	Reason      string

	// Err is the classified failure (OnError).
	Err *core.Error
}

// onAgentStart invokes the hook when present.
func (h *Hooks) onAgentStart(ctx context.Context, hc *HookContext) error {
	if h == nil || h.OnAgentStart == nil {
		return nil
	}
	return h.OnAgentStart(ctx, hc)
}

func (h *Hooks) onAgentEnd(ctx context.Context, hc *HookContext) error {
	if h == nil || h.OnAgentEnd == nil {
		return nil
	}
	return h.OnAgentEnd(ctx, hc)
}

func (h *Hooks) onToolCall(ctx context.Context, hc *HookContext) error {
	if h == nil || h.OnToolCall == nil {
		return nil
	}
	return h.OnToolCall(ctx, hc)
}

func (h *Hooks) onToolResult(ctx context.Context, hc *HookContext) error {
	if h == nil || h.OnToolResult == nil {
		return nil
	}
	return h.OnToolResult(ctx, hc)
}

func (h *Hooks) onHandoff(ctx context.Context, hc *HookContext) error {
	if h == nil || h.OnHandoff == nil {
		return nil
	}
	return h.OnHandoff(ctx, hc)
}

func (h *Hooks) onError(ctx context.Context, hc *HookContext) {
	if h == nil || h.OnError == nil {
		return
	}
	h.OnError(ctx, hc)
}
