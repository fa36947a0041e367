package engine

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/tool"
)

func testLogger() *logging.RuntimeLogger {
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  logging.LogLevelError,
		Format: "text",
		Output: io.Discard,
	})
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.DefaultAgentID = "assistant"
	cfg.Limits.ToolQueueTimeout = time.Second
	cfg.Limits.ToolTimeout = 2 * time.Second
	cfg.Limits.ApprovalTimeout = 2 * time.Second
	cfg.Retry.InitialDelay = time.Millisecond
	cfg.Retry.MaxDelay = 5 * time.Millisecond
	cfg.Retry.Jitter = false
	return cfg
}

func newTestEngine(t *testing.T, mock model.Model, mutate func(cfg *Config), optFns ...func(o *Options)) *Engine {
	t.Helper()

	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}

	opts := []func(o *Options){
		WithConfig(cfg),
		WithLogger(testLogger()),
		WithModel(core.BackendAnthropic, mock),
	}
	opts = append(opts, optFns...)

	eng, err := New(opts...)
	require.NoError(t, err)

	require.NoError(t, eng.RegisterAgent(core.AgentDefinition{
		ID:           "assistant",
		Name:         "Assistant",
		Backend:      core.BackendAnthropic,
		Model:        "mock-model",
		SystemPrompt: "You are helpful.",
	}))
	return eng
}

func eventTypes(events []core.Event) []core.EventType {
	types := make([]core.EventType, 0, len(events))
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	return types
}

func collect(t *testing.T, events <-chan core.Event) []core.Event {
	t.Helper()

	var out []core.Event
	deadline := time.After(10 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-deadline:
			t.Fatal("event channel did not close")
		}
	}
}

func TestStreamSimpleTextTurn(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddTextTurn("Hello there!")
	eng := newTestEngine(t, mock, nil)

	events, err := eng.Stream(context.Background(), Input{
		ConversationID: "conv-1",
		Message:        "Hi",
	})
	require.NoError(t, err)

	got := collect(t, events)
	assert.Equal(t, []core.EventType{
		core.EventMessageStart,
		core.EventTextDelta,
		core.EventTextComplete,
		core.EventStreamComplete,
	}, eventTypes(got))

	complete := got[2]
	assert.Equal(t, "Hello there!", complete.Text)
	assert.Equal(t, "assistant", complete.AgentID)

	// message-start precedes every delta for the same message id.
	assert.Equal(t, got[0].MessageID, got[1].MessageID)
}

func TestStreamPersistsHistoryAcrossTurns(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddTextTurn("First answer")
	mock.AddTextTurn("Second answer")
	eng := newTestEngine(t, mock, nil)

	_, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "One"})
	require.NoError(t, err)
	_, err = eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Two"})
	require.NoError(t, err)

	reqs := mock.Requests()
	require.Len(t, reqs, 2)

	// The second call carries the full first exchange.
	require.Len(t, reqs[1].Messages, 3)
	assert.Equal(t, "One", reqs[1].Messages[0].Text)
	assert.Equal(t, "First answer", reqs[1].Messages[1].Text)
	assert.Equal(t, "Two", reqs[1].Messages[2].Text)
}

func TestStreamExecutesToolCalls(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "lookup_order", `{"order_id":"A-17"}`)
	mock.AddTextTurn("Your order ships tomorrow.")
	eng := newTestEngine(t, mock, nil)

	var gotArgs atomic.Value
	lookup := tool.NewFunctionTool("lookup_order", "Looks up an order.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"order_id": map[string]any{"type": "string"}},
			"required":   []string{"order_id"},
		},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			gotArgs.Store(args["order_id"])
			return map[string]any{"status": "shipping"}, nil
		},
	)

	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{lookup}
	require.NoError(t, eng.RegisterAgent(ag))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Where is my order?"})
	require.NoError(t, err)

	assert.Equal(t, []core.EventType{
		core.EventMessageStart,
		core.EventToolCallStart,
		core.EventToolCallArgs,
		core.EventToolCallResult,
		core.EventTextDelta,
		core.EventTextComplete,
		core.EventStreamComplete,
	}, eventTypes(got))

	assert.Equal(t, "A-17", gotArgs.Load())

	// The tool result was fed back into the model's second request.
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, model.RoleTool, last.Role)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestStreamToolErrorDoesNotEndTurn(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "flaky", `{}`)
	mock.AddTextTurn("The tool failed, sorry.")
	eng := newTestEngine(t, mock, nil)

	flaky := tool.NewFunctionTool("flaky", "Fails.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			return nil, errors.New("backend exploded")
		},
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{flaky}
	require.NoError(t, eng.RegisterAgent(ag))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Go"})
	require.NoError(t, err, "a tool failure must not terminate the turn")

	types := eventTypes(got)
	assert.Contains(t, types, core.EventToolCallError)
	assert.Equal(t, core.EventStreamComplete, types[len(types)-1])

	// The failure was fed back to the model as an error tool message.
	reqs := mock.Requests()
	require.Len(t, reqs, 2)
	last := reqs[1].Messages[len(reqs[1].Messages)-1]
	assert.Equal(t, model.RoleTool, last.Role)
	assert.True(t, last.IsError)
}

func TestStreamHandoff(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "handoff_to_billing", `{"reason":"invoice question"}`)
	mock.AddTextTurn("I can help with that invoice.")
	eng := newTestEngine(t, mock, nil)

	require.NoError(t, eng.RegisterAgent(core.AgentDefinition{
		ID:      "billing",
		Name:    "Billing",
		Backend: core.BackendAnthropic,
		Model:   "mock-model",
	}))
	ag, _ := eng.Agent("assistant")
	ag.HandoffTargets = []string{"billing"}
	require.NoError(t, eng.RegisterAgent(ag))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "About my invoice"})
	require.NoError(t, err)

	types := eventTypes(got)
	assert.Equal(t, []core.EventType{
		core.EventMessageStart,
		core.EventToolCallStart,
		core.EventToolCallArgs,
		core.EventToolCallResult,
		core.EventAgentHandoff,
		core.EventMessageStart,
		core.EventTextDelta,
		core.EventTextComplete,
		core.EventStreamComplete,
	}, types)

	var handoff core.Event
	for _, ev := range got {
		if ev.Type == core.EventAgentHandoff {
			handoff = ev
		}
	}
	assert.Equal(t, "assistant", handoff.FromAgentID)
	assert.Equal(t, "billing", handoff.ToAgentID)
	assert.Equal(t, "invoice question", handoff.Reason)
}

func TestStreamHandoffLoopTerminates(t *testing.T) {
	const maxHandoffs = 3

	mock := model.NewMockModel("mock-model", "anthropic")
	// One more handoff than the cap allows; the extra one must never run.
	for i := 0; i <= maxHandoffs; i++ {
		mock.AddToolCallTurn("call-"+string(rune('a'+i)), "handoff_to_assistant", `{"reason":"again"}`)
	}

	eng := newTestEngine(t, mock, func(cfg *Config) {
		cfg.Limits.MaxHandoffs = maxHandoffs
	})
	ag, _ := eng.Agent("assistant")
	ag.HandoffTargets = []string{"assistant"}
	require.NoError(t, eng.RegisterAgent(ag))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Loop"})
	require.Error(t, err)

	last := got[len(got)-1]
	require.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CodeMaxHandoffsExceeded, last.ErrorCode)
	assert.Equal(t, core.CategoryAgentConfig, last.ErrorCategory)

	handoffs := 0
	for _, ev := range got {
		if ev.Type == core.EventAgentHandoff {
			handoffs++
		}
	}
	assert.Equal(t, maxHandoffs, handoffs, "exactly maxHandoffs transitions happen before the guard trips")
}

func TestStreamIterationCap(t *testing.T) {
	const maxIterations = 3

	mock := model.NewMockModel("mock-model", "anthropic")
	for i := 0; i < maxIterations+2; i++ {
		mock.AddToolCallTurn("call-"+string(rune('a'+i)), "noop", `{}`)
	}

	eng := newTestEngine(t, mock, func(cfg *Config) {
		cfg.Limits.MaxIterations = maxIterations
	})
	noop := tool.NewFunctionTool("noop", "Does nothing.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			return "ok", nil
		},
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{noop}
	require.NoError(t, eng.RegisterAgent(ag))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Go"})
	require.Error(t, err)

	last := got[len(got)-1]
	require.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CodeMaxIterationsExceeded, last.ErrorCode)

	assert.Len(t, mock.Requests(), maxIterations, "exactly maxIterations backend calls happen")
}

func TestStreamConversationBusyFailsFast(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "block", `{}`)
	mock.AddTextTurn("Done waiting.")
	eng := newTestEngine(t, mock, nil)

	entered := make(chan struct{})
	blockCh := make(chan struct{})
	block := tool.NewFunctionTool("block", "Blocks until released.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			close(entered)
			<-blockCh
			return "released", nil
		},
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{block}
	require.NoError(t, eng.RegisterAgent(ag))

	events, err := eng.Stream(context.Background(), Input{ConversationID: "conv-1", Message: "Start"})
	require.NoError(t, err)

	// Wait until the first turn is inside its tool call so the second
	// scripted model turn cannot be stolen by another conversation.
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first turn never reached its tool call")
	}
	assert.Equal(t, 1, eng.ActiveStreams())

	start := time.Now()
	_, err = eng.Stream(context.Background(), Input{ConversationID: "conv-1", Message: "Again"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "rejection must not block")

	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, core.CodeConversationBusy, cerr.Code)

	// A different conversation is admitted.
	other, err := eng.Stream(context.Background(), Input{ConversationID: "conv-2", Message: "Hello"})
	require.NoError(t, err)
	collect(t, other)

	close(blockCh)
	collect(t, events)
}

func TestStreamRateLimitRejection(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddTextTurn("First")
	eng := newTestEngine(t, mock, func(cfg *Config) {
		cfg.RateLimit.MaxRequests = 1
		cfg.RateLimit.Window = time.Minute
	})

	_, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", UserID: "alice", Message: "One"})
	require.NoError(t, err)

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", UserID: "alice", Message: "Two"})
	require.Error(t, err)

	last := got[len(got)-1]
	require.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CodeRateLimitExceeded, last.ErrorCode)
	assert.Equal(t, core.CategoryRateLimit, last.ErrorCategory)
}

func TestStreamApprovalFlow(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "delete_file", `{"path":"/tmp/x"}`)
	mock.AddTextTurn("File deleted.")
	eng := newTestEngine(t, mock, nil)

	executed := atomic.Bool{}
	dangerous := tool.NewFunctionTool("delete_file", "Deletes a file.",
		map[string]any{
			"type":       "object",
			"properties": map[string]any{"path": map[string]any{"type": "string"}},
			"required":   []string{"path"},
		},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			executed.Store(true)
			return "deleted", nil
		},
		func(o *tool.FunctionToolOptions) { o.RequiresApproval = true },
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{dangerous}
	require.NoError(t, eng.RegisterAgent(ag))

	events, err := eng.Stream(context.Background(), Input{ConversationID: "conv-1", Message: "Delete it"})
	require.NoError(t, err)

	var got []core.Event
	approved := false
	for ev := range events {
		got = append(got, ev)
		if ev.Type == core.EventApprovalRequired && !approved {
			approved = true
			require.Len(t, eng.PendingApprovals("conv-1"), 1)
			assert.True(t, eng.SubmitApproval(ApprovalDecision{
				ToolCallID: ev.ToolCallID,
				Approved:   true,
			}))
		}
	}

	types := eventTypes(got)
	assert.Contains(t, types, core.EventApprovalRequired)
	assert.Contains(t, types, core.EventToolCallResult)
	assert.Equal(t, core.EventStreamComplete, types[len(types)-1])
	assert.True(t, executed.Load())
}

func TestStreamApprovalRejectionFeedsBack(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "delete_file", `{"path":"/tmp/x"}`)
	mock.AddTextTurn("Understood, I won't delete it.")
	eng := newTestEngine(t, mock, nil)

	executed := atomic.Bool{}
	dangerous := tool.NewFunctionTool("delete_file", "Deletes a file.",
		map[string]any{"type": "object", "properties": map[string]any{"path": map[string]any{"type": "string"}}},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			executed.Store(true)
			return "deleted", nil
		},
		func(o *tool.FunctionToolOptions) { o.RequiresApproval = true },
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{dangerous}
	require.NoError(t, eng.RegisterAgent(ag))

	events, err := eng.Stream(context.Background(), Input{ConversationID: "conv-1", Message: "Delete it"})
	require.NoError(t, err)

	var got []core.Event
	for ev := range events {
		got = append(got, ev)
		if ev.Type == core.EventApprovalRequired {
			eng.SubmitApproval(ApprovalDecision{
				ToolCallID: ev.ToolCallID,
				Approved:   false,
				Reason:     "not allowed in production",
			})
		}
	}

	types := eventTypes(got)
	assert.Contains(t, types, core.EventToolCallError)
	assert.Equal(t, core.EventStreamComplete, types[len(types)-1], "rejection does not end the turn")
	assert.False(t, executed.Load(), "a rejected tool never executes")

	var toolErr core.Event
	for _, ev := range got {
		if ev.Type == core.EventToolCallError {
			toolErr = ev
		}
	}
	assert.Equal(t, core.CodeApprovalRejected, toolErr.ErrorCode)
	assert.Contains(t, toolErr.ErrorMessage, "not allowed in production")
}

func TestStreamApprovalTimeout(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "delete_file", `{}`)
	mock.AddTextTurn("Nobody approved, moving on.")
	eng := newTestEngine(t, mock, func(cfg *Config) {
		cfg.Limits.ApprovalTimeout = 30 * time.Millisecond
	})

	dangerous := tool.NewFunctionTool("delete_file", "Deletes a file.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			return "deleted", nil
		},
		func(o *tool.FunctionToolOptions) { o.RequiresApproval = true },
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{dangerous}
	require.NoError(t, eng.RegisterAgent(ag))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Delete it"})
	require.NoError(t, err)

	var toolErr core.Event
	for _, ev := range got {
		if ev.Type == core.EventToolCallError {
			toolErr = ev
		}
	}
	assert.Equal(t, core.CodeApprovalTimeout, toolErr.ErrorCode)
}

func TestResumeWithApprovalsNoMatch(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	eng := newTestEngine(t, mock, nil)

	applied, err := eng.ResumeWithApprovals("conv-1", []ApprovalDecision{
		{ToolCallID: "call-unknown", Approved: true},
	})
	require.Error(t, err)
	assert.Zero(t, applied)

	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, core.CodeNoApprovalsApplied, cerr.Code)
}

// failingModel always reports the given error from Generate.
type failingModel struct {
	err   error
	calls atomic.Int32
}

func (m *failingModel) Generate(ctx context.Context, req model.Request) (<-chan model.Chunk, <-chan error) {
	m.calls.Add(1)
	chunks := make(chan model.Chunk)
	errCh := make(chan error, 1)
	close(chunks)
	errCh <- m.err
	close(errCh)
	return chunks, errCh
}

func (m *failingModel) Info() model.Info {
	return model.Info{Name: "failing", Provider: "test"}
}

func TestStreamRetriesTransientModelErrors(t *testing.T) {
	failing := &failingModel{err: &core.StatusError{Status: 503, Err: errors.New("overloaded")}}
	eng := newTestEngine(t, failing, func(cfg *Config) {
		cfg.Retry.MaxAttempts = 3
	})

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Hi"})
	require.Error(t, err)
	assert.Equal(t, int32(3), failing.calls.Load(), "a 503 retries up to MaxAttempts")

	last := got[len(got)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CategoryServer, last.ErrorCategory)
}

func TestStreamDoesNotRetryClientErrors(t *testing.T) {
	failing := &failingModel{err: &core.StatusError{Status: 400, Err: errors.New("bad request")}}
	eng := newTestEngine(t, failing, func(cfg *Config) {
		cfg.Retry.MaxAttempts = 3
	})

	_, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), failing.calls.Load(), "a 400 is never retried")
}

func TestStreamSanitizesModelErrors(t *testing.T) {
	secret := "sk-ant-secret-key-12345"
	failing := &failingModel{err: errors.New("authentication failed for api key " + secret)}
	eng := newTestEngine(t, failing, nil)

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Hi"})
	require.Error(t, err)

	last := got[len(got)-1]
	require.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CategoryAuth, last.ErrorCategory)
	assert.NotContains(t, last.ErrorMessage, secret, "raw vendor messages never reach the event stream")
	assert.NotContains(t, err.Error(), secret)
}

func TestStreamUnknownAgentFailsFast(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	eng := newTestEngine(t, mock, nil)

	_, err := eng.Stream(context.Background(), Input{
		ConversationID: "conv-1",
		AgentID:        "ghost",
		Message:        "Hi",
	})
	require.Error(t, err)

	var cerr *core.Error
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, core.CodeAgentNotFound, cerr.Code)
}

func TestStreamHooksRunInOrder(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddToolCallTurn("call-1", "noop", `{}`)
	mock.AddTextTurn("Done.")

	var calls []string
	hooks := &Hooks{
		OnAgentStart: func(ctx context.Context, hc *HookContext) error {
			calls = append(calls, "agent-start:"+hc.AgentID)
			return nil
		},
		OnToolCall: func(ctx context.Context, hc *HookContext) error {
			calls = append(calls, "tool-call:"+hc.ToolName)
			return nil
		},
		OnToolResult: func(ctx context.Context, hc *HookContext) error {
			calls = append(calls, "tool-result:"+hc.ToolName)
			return nil
		},
		OnAgentEnd: func(ctx context.Context, hc *HookContext) error {
			calls = append(calls, "agent-end:"+hc.AgentID)
			return nil
		},
	}

	eng := newTestEngine(t, mock, nil, WithHooks(hooks))
	noop := tool.NewFunctionTool("noop", "Does nothing.",
		map[string]any{"type": "object", "properties": map[string]any{}},
		func(ctx context.Context, tc *core.ToolContext, args map[string]any) (any, error) {
			return "ok", nil
		},
	)
	ag, _ := eng.Agent("assistant")
	ag.Tools = []core.Tool{noop}
	require.NoError(t, eng.RegisterAgent(ag))

	_, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Go"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"agent-start:assistant",
		"tool-call:noop",
		"tool-result:noop",
		"agent-end:assistant",
	}, calls)
}

func TestStreamHookErrorTerminatesTurn(t *testing.T) {
	mock := model.NewMockModel("mock-model", "anthropic")
	mock.AddTextTurn("Never seen.")

	var onErrorCode string
	hooks := &Hooks{
		OnAgentStart: func(ctx context.Context, hc *HookContext) error {
			return errors.New("audit refused the turn")
		},
		OnError: func(ctx context.Context, hc *HookContext) {
			onErrorCode = hc.Err.Code
		},
	}

	eng := newTestEngine(t, mock, nil, WithHooks(hooks))

	got, err := eng.Run(context.Background(), Input{ConversationID: "conv-1", Message: "Go"})
	require.Error(t, err)

	last := got[len(got)-1]
	assert.Equal(t, core.EventError, last.Type)
	assert.Equal(t, core.CodeUnknown, onErrorCode)
}
