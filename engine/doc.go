// Package engine implements the agent orchestration runtime for AgentRelay.
//
// The Engine drives multi-agent, tool-using conversations against pluggable
// LLM backends. It owns every piece of cross-conversation state: the agent
// registry, the stream-slot counters, the pending-approval table and the
// shared tool-execution gate. One conversation turn flows through a fixed
// state machine: acquire a stream slot, check the rate limiter, run the
// active agent's turn, follow handoffs to other agents, and terminate with
// exactly one stream-complete or error event.
//
// # Core Responsibilities
//
// Agent orchestration:
//   - Thread-safe agent registry keyed by agent id
//   - Handoff loop chaining agent turns, bounded by a handoff cap
//   - Per-turn tool-call loop, bounded by an iteration cap
//   - Backend selection by tag, one provider adapter per backend
//
// Resource control:
//   - Global and per-conversation stream slots with fail-fast rejection
//   - Sliding-window rate limiting keyed by user or conversation
//   - A FIFO concurrency gate shared by all tool executions
//   - Per-call tool timeouts and a queue-wait timeout
//
// Human-in-the-loop approvals:
//   - Tools may require an external decision before executing
//   - Suspended calls are tracked in a pending table with expiry timers
//   - Decisions are applied first-writer-wins against the expiry
//
// Failure policy:
//   - Transient backend failures retry with exponential backoff
//   - Tool failures feed back into the conversation and never end the turn
//   - Everything else is classified into a closed taxonomy and surfaced as
//     a single terminal error event with a sanitized message
//
// # Event Sequence
//
// Stream returns a channel of core.Event values. Within one call the order
// is the order of emission: message-start precedes every delta for its
// message id, tool-call-start precedes the args, result and error events
// for its call id, and the final event is always terminal. The channel is
// closed after the terminal event.
//
// # Usage
//
// Basic setup:
//
//	cfg := engine.DefaultConfig()
//	cfg.DefaultAgentID = "assistant"
//
//	eng, err := engine.New(
//	    engine.WithConfig(cfg),
//	    engine.WithModel(core.BackendAnthropic, claude),
//	)
//	if err != nil {
//	    return err
//	}
//	defer eng.Shutdown()
//
//	eng.RegisterAgent(core.AgentDefinition{
//	    ID:      "assistant",
//	    Backend: core.BackendAnthropic,
//	    Model:   "claude-sonnet-4-20250514",
//	    Tools:   []core.Tool{weatherTool},
//	})
//
// Streaming a turn:
//
//	events, err := eng.Stream(ctx, engine.Input{
//	    ConversationID: "conv-1",
//	    Message:        "What's the weather in Hamburg?",
//	})
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    switch ev.Type {
//	    case core.EventTextDelta:
//	        fmt.Print(ev.Delta)
//	    case core.EventApprovalRequired:
//	        promptUser(ev)
//	    case core.EventError:
//	        return errors.New(ev.ErrorMessage)
//	    }
//	}
//
// Resolving an approval from another goroutine:
//
//	eng.SubmitApproval(engine.ApprovalDecision{
//	    ToolCallID: callID,
//	    Approved:   true,
//	})
//
// # Concurrency Model
//
// Each Stream call runs its turn on a dedicated goroutine feeding a bounded
// event channel; the caller drains it at its own pace. Shared state is only
// touched through the owning table's methods, each guarded by its own
// mutex. There is no cancel operation: timeouts are the only cancellation
// mechanism, and every timeout produces a coded, observable outcome.
package engine
