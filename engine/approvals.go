package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/hupe1980/agentrelay/core"
)

// ApprovalDecision is the external verdict for one suspended tool call.
type ApprovalDecision struct {
	// ToolCallID identifies the suspended call.
	ToolCallID string `json:"tool_call_id"`

	// ConversationID optionally constrains the match; when set, a pending
	// approval from another conversation is not touched.
	ConversationID string `json:"conversation_id,omitempty"`

	// Approved releases the tool for execution; false rejects it.
	Approved bool `json:"approved"`

	// Reason is fed back to the model on rejection.
	Reason string `json:"reason,omitempty"`
}

// PendingApprovalInfo describes one suspended tool call, for callers that
// render approval prompts.
type PendingApprovalInfo struct {
	ConversationID string          `json:"conversation_id"`
	ToolCallID     string          `json:"tool_call_id"`
	ToolName       string          `json:"tool_name"`
	AgentID        string          `json:"agent_id"`
	Args           json.RawMessage `json:"args,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// approvalResolution is what a waiting tool call receives: either a
// decision or a coded failure (timeout, cap breach).
type approvalResolution struct {
	decision ApprovalDecision
	err      *core.Error
}

type pendingApproval struct {
	info  PendingApprovalInfo
	ch    chan approvalResolution
	timer *time.Timer
}

// approvalTable is the global registry of suspended tool calls, keyed by
// tool-call id. An entry is removed exactly once, by whichever of decision
// submission and expiry fires first; the loser finds no entry and is a
// no-op.
type approvalTable struct {
	mu      sync.Mutex
	pending map[string]*pendingApproval
	perConv map[string]int
	convCap int
	timeout time.Duration
}

func newApprovalTable(convCap int, timeout time.Duration) *approvalTable {
	return &approvalTable{
		pending: make(map[string]*pendingApproval),
		perConv: make(map[string]int),
		convCap: convCap,
		timeout: timeout,
	}
}

// register inserts a pending approval and arms its expiry timer. A
// conversation already at its pending cap is rejected immediately; this is
// a hard cap, not a queue. Registration happens before the
// approval-required event is emitted so a decision can never arrive ahead
// of the entry it resolves.
func (t *approvalTable) register(info PendingApprovalInfo) (*pendingApproval, *core.Error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.perConv[info.ConversationID] >= t.convCap {
		return nil, core.Errorf(core.CodeMaxPendingApprovalsExceeded,
			"conversation %s already has %d pending approvals", info.ConversationID, t.convCap)
	}

	info.ExpiresAt = time.Now().Add(t.timeout)
	entry := &pendingApproval{
		info: info,
		ch:   make(chan approvalResolution, 1),
	}
	entry.timer = time.AfterFunc(t.timeout, func() {
		if e := t.take(info.ToolCallID, ""); e != nil {
			e.ch <- approvalResolution{err: core.Errorf(core.CodeApprovalTimeout,
				"no decision for tool call %s within %s", info.ToolCallID, t.timeout)}
		}
	})
	t.pending[info.ToolCallID] = entry
	t.perConv[info.ConversationID]++
	return entry, nil
}

// await suspends until a decision arrives for the registered entry or it
// expires.
func (t *approvalTable) await(ctx context.Context, entry *pendingApproval) (ApprovalDecision, *core.Error) {
	select {
	case res := <-entry.ch:
		return res.decision, res.err
	case <-ctx.Done():
		t.drop(entry.info.ToolCallID)
		return ApprovalDecision{}, core.Errorf(core.CodeApprovalTimeout,
			"stream ended while awaiting approval for tool call %s", entry.info.ToolCallID)
	}
}

// wait is register followed by await.
func (t *approvalTable) wait(ctx context.Context, info PendingApprovalInfo) (ApprovalDecision, *core.Error) {
	entry, cerr := t.register(info)
	if cerr != nil {
		return ApprovalDecision{}, cerr
	}
	return t.await(ctx, entry)
}

// drop discards a registered entry without resolving it.
func (t *approvalTable) drop(callID string) {
	if e := t.take(callID, ""); e != nil {
		e.timer.Stop()
	}
}

// take removes and returns the entry for callID, or nil if it was already
// resolved. When conversationID is non-empty the entry must belong to it.
func (t *approvalTable) take(callID, conversationID string) *pendingApproval {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.pending[callID]
	if !ok {
		return nil
	}
	if conversationID != "" && entry.info.ConversationID != conversationID {
		return nil
	}

	delete(t.pending, callID)
	conv := entry.info.ConversationID
	if t.perConv[conv] <= 1 {
		delete(t.perConv, conv)
	} else {
		t.perConv[conv]--
	}
	return entry
}

// submit applies a decision to its pending approval. It reports whether a
// matching entry existed; a decision arriving after expiry is a no-op.
func (t *approvalTable) submit(decision ApprovalDecision) bool {
	entry := t.take(decision.ToolCallID, decision.ConversationID)
	if entry == nil {
		return false
	}
	entry.timer.Stop()
	entry.ch <- approvalResolution{decision: decision}
	return true
}

// list returns the pending approvals, optionally filtered by conversation.
func (t *approvalTable) list(conversationID string) []PendingApprovalInfo {
	t.mu.Lock()
	defer t.mu.Unlock()

	infos := make([]PendingApprovalInfo, 0, len(t.pending))
	for _, entry := range t.pending {
		if conversationID != "" && entry.info.ConversationID != conversationID {
			continue
		}
		infos = append(infos, entry.info)
	}
	return infos
}
