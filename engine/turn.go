package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/gate"
	"github.com/hupe1980/agentrelay/internal/util"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/retry"
)

// turnResult is what one agent turn hands back to the handoff loop.
type turnResult struct {
	// handoff is the captured transfer marker, nil for a natural stop.
	handoff *core.HandoffSignal

	// history is the conversation history including the turn's messages.
	history []model.Message
}

// roundResult accumulates one streamed model response.
type roundResult struct {
	text  string
	calls []model.ToolCall
	usage *core.TokenUsage
}

// errEmitBlocked signals that the event consumer went away mid-turn.
var errEmitBlocked = errors.New("event consumer gone")

// runTurn drives a single agent turn: stream a model response, execute any
// tool calls under the approval and concurrency policies, feed results back
// and repeat until the model stops calling tools or the iteration cap is
// hit. The loop shape is identical for every backend; mdl hides the wire
// differences.
func (e *Engine) runTurn(
	ctx context.Context,
	ag core.AgentDefinition,
	mdl model.Model,
	history []model.Message,
	in Input,
	messageID string,
	tools map[string]core.Tool,
	emit func(core.Event) bool,
) (turnResult, error) {
	system, err := e.resolveSystemPrompt(ag, in.Context)
	if err != nil {
		return turnResult{}, core.Errorf(core.CodeAgentNotFound,
			"agent %s: system prompt resolution failed: %v", ag.ID, err)
	}

	toolDefs := make([]model.ToolDefinition, 0, len(tools))
	for _, t := range sortedTools(tools) {
		toolDefs = append(toolDefs, model.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		})
	}

	maxIterations := ag.MaxIterations
	if maxIterations <= 0 {
		maxIterations = e.config.Limits.MaxIterations
	}

	totalUsage := &core.TokenUsage{}
	var handoff *core.HandoffSignal

	for iteration := 0; iteration < maxIterations; iteration++ {
		req := model.Request{
			Model:    ag.Model,
			System:   system,
			Messages: history,
			Tools:    toolDefs,
			Params:   ag.Params,
		}

		round, err := e.streamRound(ctx, mdl, req, ag.ID, in.ConversationID, messageID, emit)
		if err != nil {
			return turnResult{}, err
		}
		if round.usage != nil {
			totalUsage.PromptTokens += round.usage.PromptTokens
			totalUsage.CompletionTokens += round.usage.CompletionTokens
			totalUsage.TotalTokens += round.usage.TotalTokens
		}

		if len(round.calls) == 0 {
			history = append(history, model.Message{Role: model.RoleAssistant, Text: round.text})
			if !emit(core.NewTextCompleteEvent(in.ConversationID, ag.ID, messageID, round.text, totalUsage)) {
				return turnResult{}, errEmitBlocked
			}
			return turnResult{history: history}, nil
		}

		history = append(history, model.Message{
			Role:      model.RoleAssistant,
			Text:      round.text,
			ToolCalls: round.calls,
		})

		for _, call := range round.calls {
			msg, sig, err := e.runToolCall(ctx, ag, call, in, tools, emit)
			if err != nil {
				return turnResult{}, err
			}
			history = append(history, msg)
			if sig != nil && handoff == nil {
				handoff = sig
			}
		}

		if handoff != nil {
			return turnResult{handoff: handoff, history: history}, nil
		}
	}

	return turnResult{}, core.Errorf(core.CodeMaxIterationsExceeded,
		"agent %s exceeded %d tool-call iterations in one turn", ag.ID, maxIterations)
}

// resolveSystemPrompt evaluates the agent's prompt function when present,
// otherwise renders the static prompt against the turn context.
func (e *Engine) resolveSystemPrompt(ag core.AgentDefinition, turnContext map[string]any) (string, error) {
	if ag.SystemPromptFunc != nil {
		return ag.SystemPromptFunc(turnContext)
	}
	return util.RenderTemplate(ag.SystemPrompt, turnContext)
}

// streamRound performs one streaming model call, relaying deltas as events
// and accumulating text and completed tool calls. The call is wrapped in
// the retry policy, but only while nothing has been relayed yet: once a
// delta reached the consumer a replay would duplicate output, so later
// failures propagate instead.
func (e *Engine) streamRound(
	ctx context.Context,
	mdl model.Model,
	req model.Request,
	agentID, conversationID, messageID string,
	emit func(core.Event) bool,
) (roundResult, error) {
	shouldRetry := e.config.Retry.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = retry.ShouldRetry
	}

	for attempt := 0; ; attempt++ {
		start := time.Now()
		round, emitted, err := e.consumeStream(ctx, mdl, req, agentID, conversationID, messageID, emit)

		tokens := 0
		if round.usage != nil {
			tokens = round.usage.TotalTokens
		}
		e.logger.LogModelCall(req.Model, tokens, time.Since(start), err == nil, err)

		if err == nil {
			return round, nil
		}
		if emitted || attempt >= e.config.Retry.MaxAttempts-1 || !shouldRetry(err) {
			return roundResult{}, err
		}

		delay := e.config.Retry.Delay(attempt)
		e.logger.Warn("retrying model call",
			"model", req.Model, "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return roundResult{}, ctx.Err()
		}
	}
}

// consumeStream drains one Generate call. emitted reports whether any event
// reached the consumer, which disqualifies the call from being retried.
func (e *Engine) consumeStream(
	ctx context.Context,
	mdl model.Model,
	req model.Request,
	agentID, conversationID, messageID string,
	emit func(core.Event) bool,
) (roundResult, bool, error) {
	chunks, errCh := mdl.Generate(ctx, req)

	var round roundResult
	emitted := false

	for chunk := range chunks {
		switch {
		case chunk.TextDelta != "":
			round.text += chunk.TextDelta
			if !emit(core.NewTextDeltaEvent(conversationID, agentID, messageID, chunk.TextDelta)) {
				return round, emitted, errEmitBlocked
			}
			emitted = true

		case chunk.ReasoningDelta != "":
			if !emit(core.NewReasoningDeltaEvent(conversationID, agentID, messageID, chunk.ReasoningDelta)) {
				return round, emitted, errEmitBlocked
			}
			emitted = true

		case chunk.ToolCallStart != nil:
			if !emit(core.NewToolCallStartEvent(conversationID, agentID, chunk.ToolCallStart.ID, chunk.ToolCallStart.Name)) {
				return round, emitted, errEmitBlocked
			}
			emitted = true

		case chunk.ToolCallDone != nil:
			round.calls = append(round.calls, *chunk.ToolCallDone)

		case chunk.Usage != nil:
			round.usage = chunk.Usage
		}
	}

	if err := <-errCh; err != nil {
		return roundResult{}, emitted, err
	}
	return round, emitted, nil
}

// runToolCall executes one completed tool call under the approval and
// concurrency policies. Its failures are fed back to the model as tool
// messages and never terminate the turn; only hook errors and a vanished
// consumer do. A non-nil signal means the result carried a handoff marker.
func (e *Engine) runToolCall(
	ctx context.Context,
	ag core.AgentDefinition,
	call model.ToolCall,
	in Input,
	tools map[string]core.Tool,
	emit func(core.Event) bool,
) (model.Message, *core.HandoffSignal, error) {
	fail := func(cerr *core.Error) (model.Message, *core.HandoffSignal, error) {
		if !emit(core.NewToolCallErrorEvent(in.ConversationID, ag.ID, call.ID, call.Name, cerr)) {
			return model.Message{}, nil, errEmitBlocked
		}
		return model.Message{
			Role:       model.RoleTool,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Content:    cerr.Message,
			IsError:    true,
		}, nil, nil
	}

	var args map[string]any
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return fail(core.Errorf(core.CodeToolExecutionFailed,
				"tool %s received malformed arguments", call.Name))
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	if !emit(core.NewToolCallArgsEvent(in.ConversationID, ag.ID, call.ID, call.Name, call.Arguments)) {
		return model.Message{}, nil, errEmitBlocked
	}

	if err := e.hooks.onToolCall(ctx, &HookContext{
		ConversationID: in.ConversationID,
		AgentID:        ag.ID,
		UserID:         in.UserID,
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Args:           call.Arguments,
	}); err != nil {
		return model.Message{}, nil, err
	}

	t, ok := tools[call.Name]
	if !ok {
		return fail(core.Errorf(core.CodeToolExecutionFailed,
			"tool %s is not available to agent %s", call.Name, ag.ID))
	}

	toolCtx := core.NewToolContext(ag.ID, in.ConversationID, in.UserID, call.ID, in.Context)

	if core.RequiresApproval(t, toolCtx) {
		entry, cerr := e.approvals.register(PendingApprovalInfo{
			ConversationID: in.ConversationID,
			ToolCallID:     call.ID,
			ToolName:       call.Name,
			AgentID:        ag.ID,
			Args:           call.Arguments,
		})
		if cerr != nil {
			return fail(cerr)
		}

		if !emit(core.NewApprovalRequiredEvent(in.ConversationID, ag.ID, call.ID, call.Name, call.Arguments)) {
			e.approvals.drop(call.ID)
			return model.Message{}, nil, errEmitBlocked
		}

		decision, cerr := e.approvals.await(ctx, entry)
		if cerr != nil {
			if ctx.Err() != nil {
				return model.Message{}, nil, ctx.Err()
			}
			return fail(cerr)
		}
		if !decision.Approved {
			reason := decision.Reason
			if reason == "" {
				reason = "the request was declined"
			}
			return fail(core.Errorf(core.CodeApprovalRejected,
				"tool call %s was rejected: %s", call.Name, reason))
		}
	}

	result, execErr := e.executeToolWithGuards(ctx, t, toolCtx, args)

	if err := e.hooks.onToolResult(ctx, &HookContext{
		ConversationID: in.ConversationID,
		AgentID:        ag.ID,
		UserID:         in.UserID,
		ToolCallID:     call.ID,
		ToolName:       call.Name,
		Args:           call.Arguments,
		Result:         result,
		ToolErr:        execErr,
	}); err != nil {
		return model.Message{}, nil, err
	}

	if execErr != nil {
		var cerr *core.Error
		if !errors.As(execErr, &cerr) {
			cerr = &core.Error{
				Code:     core.CodeToolExecutionFailed,
				Category: core.CategoryToolExecution,
				Message:  execErr.Error(),
			}
		}
		return fail(cerr)
	}

	sig, _ := core.AsHandoff(result)

	if !emit(core.NewToolCallResultEvent(in.ConversationID, ag.ID, call.ID, call.Name, result)) {
		return model.Message{}, nil, errEmitBlocked
	}

	return model.Message{
		Role:       model.RoleTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    result,
	}, sig, nil
}

// executeToolWithGuards runs a tool under the shared concurrency gate and
// its per-call timeout. The gate slot is released regardless of outcome.
func (e *Engine) executeToolWithGuards(ctx context.Context, t core.Tool, tc *core.ToolContext, args map[string]any) (any, error) {
	release, err := e.gate.Acquire(ctx, e.config.Limits.ToolQueueTimeout,
		core.CodeToolQueueTimeout,
		fmt.Sprintf("tool %s waited over %s for an execution slot", t.Name(), e.config.Limits.ToolQueueTimeout))
	if err != nil {
		return nil, err
	}
	defer release()

	timeout := core.ToolTimeout(t, e.config.Limits.ToolTimeout)
	start := time.Now()

	result, err := gate.WithTimeout(ctx, timeout,
		core.CodeToolTimeout,
		fmt.Sprintf("tool %s exceeded its %s execution timeout", t.Name(), timeout),
		func(ctx context.Context) (any, error) {
			return t.Execute(ctx, tc, args)
		})

	e.logger.LogToolCall(t.Name(), time.Since(start), err == nil, err)
	return result, err
}
