package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
)

func TestApprovalSubmitResolvesWait(t *testing.T) {
	table := newApprovalTable(5, time.Minute)

	type waitOutcome struct {
		decision ApprovalDecision
		cerr     *core.Error
	}
	done := make(chan waitOutcome, 1)

	go func() {
		decision, cerr := table.wait(context.Background(), PendingApprovalInfo{
			ConversationID: "conv-1",
			ToolCallID:     "call-1",
			ToolName:       "delete_file",
			AgentID:        "assistant",
		})
		done <- waitOutcome{decision, cerr}
	}()

	// Wait until the entry is registered.
	require.Eventually(t, func() bool {
		return len(table.list("conv-1")) == 1
	}, time.Second, 5*time.Millisecond)

	applied := table.submit(ApprovalDecision{ToolCallID: "call-1", Approved: true})
	assert.True(t, applied)

	out := <-done
	require.Nil(t, out.cerr)
	assert.True(t, out.decision.Approved)
	assert.Empty(t, table.list(""), "entry is removed after resolution")
}

func TestApprovalExpiryAutoRejects(t *testing.T) {
	table := newApprovalTable(5, 30*time.Millisecond)

	_, cerr := table.wait(context.Background(), PendingApprovalInfo{
		ConversationID: "conv-1",
		ToolCallID:     "call-1",
		ToolName:       "delete_file",
	})
	require.NotNil(t, cerr)
	assert.Equal(t, core.CodeApprovalTimeout, cerr.Code)

	// A decision arriving after expiry matches nothing.
	assert.False(t, table.submit(ApprovalDecision{ToolCallID: "call-1", Approved: true}))
}

func TestApprovalPendingCapIsHard(t *testing.T) {
	table := newApprovalTable(1, time.Minute)

	go func() {
		_, _ = table.wait(context.Background(), PendingApprovalInfo{
			ConversationID: "conv-1",
			ToolCallID:     "call-1",
		})
	}()
	require.Eventually(t, func() bool {
		return len(table.list("conv-1")) == 1
	}, time.Second, 5*time.Millisecond)

	// The second approval for the same conversation is rejected
	// immediately, not queued.
	start := time.Now()
	_, cerr := table.wait(context.Background(), PendingApprovalInfo{
		ConversationID: "conv-1",
		ToolCallID:     "call-2",
	})
	require.NotNil(t, cerr)
	assert.Equal(t, core.CodeMaxPendingApprovalsExceeded, cerr.Code)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	// Another conversation still has room.
	go func() {
		_, _ = table.wait(context.Background(), PendingApprovalInfo{
			ConversationID: "conv-2",
			ToolCallID:     "call-3",
		})
	}()
	require.Eventually(t, func() bool {
		return len(table.list("conv-2")) == 1
	}, time.Second, 5*time.Millisecond)

	table.submit(ApprovalDecision{ToolCallID: "call-1", Approved: true})
	table.submit(ApprovalDecision{ToolCallID: "call-3", Approved: true})
}

func TestApprovalConversationConstraint(t *testing.T) {
	table := newApprovalTable(5, time.Minute)

	go func() {
		_, _ = table.wait(context.Background(), PendingApprovalInfo{
			ConversationID: "conv-1",
			ToolCallID:     "call-1",
		})
	}()
	require.Eventually(t, func() bool {
		return len(table.list("")) == 1
	}, time.Second, 5*time.Millisecond)

	// A decision scoped to the wrong conversation is a no-op.
	assert.False(t, table.submit(ApprovalDecision{
		ToolCallID:     "call-1",
		ConversationID: "conv-other",
		Approved:       true,
	}))
	assert.Len(t, table.list(""), 1)

	assert.True(t, table.submit(ApprovalDecision{
		ToolCallID:     "call-1",
		ConversationID: "conv-1",
		Approved:       true,
	}))
}

// Racing a decision against the expiry timer must produce exactly one
// outcome, with the entry removed exactly once.
func TestApprovalDecisionExpiryRace(t *testing.T) {
	for i := 0; i < 50; i++ {
		table := newApprovalTable(5, time.Millisecond)

		outcome := make(chan *core.Error, 1)
		go func() {
			_, cerr := table.wait(context.Background(), PendingApprovalInfo{
				ConversationID: "conv-1",
				ToolCallID:     "call-1",
			})
			outcome <- cerr
		}()

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			table.submit(ApprovalDecision{ToolCallID: "call-1", Approved: true})
		}()

		select {
		case cerr := <-outcome:
			if cerr != nil {
				assert.Equal(t, core.CodeApprovalTimeout, cerr.Code)
			}
		case <-time.After(time.Second):
			t.Fatal("wait never resolved")
		}

		wg.Wait()
		assert.Empty(t, table.list(""), "entry must be gone whichever side won")
	}
}

func TestApprovalWaitStopsOnContextCancellation(t *testing.T) {
	table := newApprovalTable(5, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	outcome := make(chan *core.Error, 1)
	go func() {
		_, cerr := table.wait(ctx, PendingApprovalInfo{
			ConversationID: "conv-1",
			ToolCallID:     "call-1",
		})
		outcome <- cerr
	}()
	require.Eventually(t, func() bool {
		return len(table.list("")) == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case cerr := <-outcome:
		require.NotNil(t, cerr)
		assert.Equal(t, core.CodeApprovalTimeout, cerr.Code)
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
	assert.Empty(t, table.list(""))
}
