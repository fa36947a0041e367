package core

// ToolContext carries the per-invocation identity a tool executes under.
// It is constructed fresh for every tool call and never persisted.
type ToolContext struct {
	// AgentID is the agent whose turn produced the call.
	AgentID string
	// ConversationID identifies the conversation the call belongs to.
	ConversationID string
	// UserID is the optional end-user identity, when the caller supplied one.
	UserID string
	// CallID is the provider-supplied tool-call id, unique per call.
	CallID string
	// Context is the arbitrary key-value map the caller of the turn
	// supplied (front-end state). May be nil.
	Context map[string]any
}

// NewToolContext builds the context for one tool invocation.
func NewToolContext(agentID, conversationID, userID, callID string, turnContext map[string]any) *ToolContext {
	return &ToolContext{
		AgentID:        agentID,
		ConversationID: conversationID,
		UserID:         userID,
		CallID:         callID,
		Context:        turnContext,
	}
}

// ContextValue returns a value from the caller-supplied context map.
func (tc *ToolContext) ContextValue(key string) (any, bool) {
	if tc.Context == nil {
		return nil, false
	}
	v, ok := tc.Context[key]
	return v, ok
}
