package core

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType enumerates the closed set of runtime event kinds. The event
// sequence emitted for one conversation turn is the only channel through
// which the runtime reports progress; consumers must treat it as ordered
// and append-only.
type EventType string

const (
	// EventMessageStart opens an agent turn for a message id.
	EventMessageStart EventType = "message-start"
	// EventTextDelta carries an incremental text fragment.
	EventTextDelta EventType = "text-delta"
	// EventTextComplete carries the accumulated final text of a turn.
	EventTextComplete EventType = "text-complete"
	// EventReasoningDelta carries an incremental reasoning fragment for
	// backends that expose reasoning streams.
	EventReasoningDelta EventType = "reasoning-delta"
	// EventToolCallStart is emitted on first sight of a tool call id.
	EventToolCallStart EventType = "tool-call-start"
	// EventToolCallArgs carries the complete parsed arguments of a call.
	EventToolCallArgs EventType = "tool-call-args"
	// EventToolCallResult carries a successful tool result.
	EventToolCallResult EventType = "tool-call-result"
	// EventToolCallError carries a tool failure or approval rejection.
	// It does not terminate the turn.
	EventToolCallError EventType = "tool-call-error"
	// EventApprovalRequired signals that a tool call is suspended awaiting
	// an external approve/reject decision.
	EventApprovalRequired EventType = "approval-required"
	// EventAgentHandoff signals a transfer of control between agents.
	EventAgentHandoff EventType = "agent-handoff"
	// EventStreamComplete terminates a successful stream.
	EventStreamComplete EventType = "stream-complete"
	// EventError terminates a failed stream with a classified error.
	EventError EventType = "error"
)

// TokenUsage captures token accounting reported by a model backend.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Event is a single element of the runtime's per-conversation event
// sequence. Exactly one payload group is populated according to Type.
// Events are immutable after emission.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`

	// Text payloads (text-delta, reasoning-delta, text-complete).
	Delta string      `json:"delta,omitempty"`
	Text  string      `json:"text,omitempty"`
	Usage *TokenUsage `json:"usage,omitempty"`

	// Tool payloads (tool-call-*, approval-required).
	ToolCallID string          `json:"tool_call_id,omitempty"`
	ToolName   string          `json:"tool_name,omitempty"`
	Args       json.RawMessage `json:"args,omitempty"`
	Result     any             `json:"result,omitempty"`

	// Handoff payload (agent-handoff).
	FromAgentID string `json:"from_agent_id,omitempty"`
	ToAgentID   string `json:"to_agent_id,omitempty"`
	Reason      string `json:"reason,omitempty"`

	// Error payload (error, tool-call-error).
	ErrorCode     string        `json:"error_code,omitempty"`
	ErrorCategory ErrorCategory `json:"error_category,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
}

// NewEvent constructs a bare event of the given type bound to a conversation.
func NewEvent(t EventType, conversationID, agentID string) Event {
	return Event{
		ID:             uuid.NewString(),
		Type:           t,
		ConversationID: conversationID,
		AgentID:        agentID,
		Timestamp:      time.Now().UTC(),
	}
}

// NewMessageStartEvent opens a turn for agentID under messageID.
func NewMessageStartEvent(conversationID, agentID, messageID string) Event {
	e := NewEvent(EventMessageStart, conversationID, agentID)
	e.MessageID = messageID
	return e
}

// NewTextDeltaEvent carries one streamed text fragment.
func NewTextDeltaEvent(conversationID, agentID, messageID, delta string) Event {
	e := NewEvent(EventTextDelta, conversationID, agentID)
	e.MessageID = messageID
	e.Delta = delta
	return e
}

// NewReasoningDeltaEvent carries one streamed reasoning fragment.
func NewReasoningDeltaEvent(conversationID, agentID, messageID, delta string) Event {
	e := NewEvent(EventReasoningDelta, conversationID, agentID)
	e.MessageID = messageID
	e.Delta = delta
	return e
}

// NewTextCompleteEvent closes a turn with the accumulated text and usage.
func NewTextCompleteEvent(conversationID, agentID, messageID, text string, usage *TokenUsage) Event {
	e := NewEvent(EventTextComplete, conversationID, agentID)
	e.MessageID = messageID
	e.Text = text
	e.Usage = usage
	return e
}

// NewToolCallStartEvent marks first sight of a tool call id.
func NewToolCallStartEvent(conversationID, agentID, callID, toolName string) Event {
	e := NewEvent(EventToolCallStart, conversationID, agentID)
	e.ToolCallID = callID
	e.ToolName = toolName
	return e
}

// NewToolCallArgsEvent carries the completed raw arguments of a call.
func NewToolCallArgsEvent(conversationID, agentID, callID, toolName string, args json.RawMessage) Event {
	e := NewEvent(EventToolCallArgs, conversationID, agentID)
	e.ToolCallID = callID
	e.ToolName = toolName
	e.Args = args
	return e
}

// NewToolCallResultEvent carries a successful tool result.
func NewToolCallResultEvent(conversationID, agentID, callID, toolName string, result any) Event {
	e := NewEvent(EventToolCallResult, conversationID, agentID)
	e.ToolCallID = callID
	e.ToolName = toolName
	e.Result = result
	return e
}

// NewToolCallErrorEvent carries a tool failure or an approval rejection.
func NewToolCallErrorEvent(conversationID, agentID, callID, toolName string, cerr *Error) Event {
	e := NewEvent(EventToolCallError, conversationID, agentID)
	e.ToolCallID = callID
	e.ToolName = toolName
	e.ErrorCode = cerr.Code
	e.ErrorCategory = cerr.Category
	e.ErrorMessage = cerr.Message
	return e
}

// NewApprovalRequiredEvent signals a suspended tool call awaiting a decision.
func NewApprovalRequiredEvent(conversationID, agentID, callID, toolName string, args json.RawMessage) Event {
	e := NewEvent(EventApprovalRequired, conversationID, agentID)
	e.ToolCallID = callID
	e.ToolName = toolName
	e.Args = args
	return e
}

// NewAgentHandoffEvent records a transfer of control between agents.
func NewAgentHandoffEvent(conversationID, fromAgentID, toAgentID, reason string) Event {
	e := NewEvent(EventAgentHandoff, conversationID, fromAgentID)
	e.FromAgentID = fromAgentID
	e.ToAgentID = toAgentID
	e.Reason = reason
	return e
}

// NewStreamCompleteEvent terminates a successful stream.
func NewStreamCompleteEvent(conversationID, agentID string) Event {
	return NewEvent(EventStreamComplete, conversationID, agentID)
}

// NewErrorEvent terminates a failed stream with an already classified error.
func NewErrorEvent(conversationID, agentID string, cerr *Error) Event {
	e := NewEvent(EventError, conversationID, agentID)
	e.ErrorCode = cerr.Code
	e.ErrorCategory = cerr.Category
	e.ErrorMessage = cerr.Message
	return e
}

// IsTerminal reports whether the event ends the stream it belongs to.
func (e Event) IsTerminal() bool {
	return e.Type == EventStreamComplete || e.Type == EventError
}
