package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/gate"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/mcp"
	"github.com/hupe1980/agentrelay/model"
	"github.com/hupe1980/agentrelay/ratelimit"
	"github.com/hupe1980/agentrelay/session"
	"github.com/hupe1980/agentrelay/tool"
)

// Input is one conversation turn request handed to Stream.
type Input struct {
	// ConversationID groups turns into one conversation. Generated when
	// empty.
	ConversationID string

	// UserID optionally identifies the end user for rate limiting and tool
	// context.
	UserID string

	// AgentID overrides the configured default agent for this turn.
	AgentID string

	// Message is the user's message text.
	Message string

	// Context is an arbitrary key-value map forwarded to system prompt
	// templates and tool contexts. Never persisted.
	Context map[string]any
}

// Options configures an Engine instance.
//
// All fields have working defaults: an in-memory session store, a no-op
// MCP layer and structured logging to stderr. Models must be registered
// for every backend the configured agents reference, either here or via
// RegisterModel before the first Stream call.
type Options struct {
	// Config carries limits, rate limiting, retry and MCP server settings.
	Config Config

	// Logger receives structured runtime logs.
	Logger *logging.RuntimeLogger

	// Hooks are optional lifecycle extension points.
	Hooks *Hooks

	// Models maps backend tags to provider adapters.
	Models map[core.Backend]model.Model

	// Sessions stores conversation history between turns.
	Sessions session.Store

	// MCP overrides the manager built from Config.MCPServers. Useful in
	// tests.
	MCP *mcp.Manager
}

// WithConfig sets the engine configuration.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *logging.RuntimeLogger) func(o *Options) {
	return func(o *Options) { o.Logger = logger }
}

// WithHooks sets the lifecycle hooks.
func WithHooks(hooks *Hooks) func(o *Options) {
	return func(o *Options) { o.Hooks = hooks }
}

// WithModel registers a provider adapter for a backend tag.
func WithModel(backend core.Backend, m model.Model) func(o *Options) {
	return func(o *Options) {
		if o.Models == nil {
			o.Models = make(map[core.Backend]model.Model)
		}
		o.Models[backend] = m
	}
}

// WithSessionStore sets the conversation history store.
func WithSessionStore(store session.Store) func(o *Options) {
	return func(o *Options) { o.Sessions = store }
}

// WithMCPManager sets a pre-built MCP manager.
func WithMCPManager(manager *mcp.Manager) func(o *Options) {
	return func(o *Options) { o.MCP = manager }
}

// Engine is the orchestration runtime: it owns the agent registry, the
// stream-slot accounting, the pending-approval table and the handoff loop
// that chains agent turns together. Each instance carries its own state;
// multiple engines in one process do not interfere.
//
// Example:
//
//	eng, err := engine.New(
//	    engine.WithConfig(cfg),
//	    engine.WithModel(core.BackendAnthropic, claude),
//	)
//	if err != nil {
//	    return err
//	}
//	events, err := eng.Stream(ctx, engine.Input{
//	    ConversationID: "conv-1",
//	    Message:        "What's on my calendar?",
//	})
//	if err != nil {
//	    return err
//	}
//	for ev := range events {
//	    handleEvent(ev)
//	}
type Engine struct {
	config Config
	logger *logging.RuntimeLogger
	hooks  *Hooks

	mu     sync.RWMutex
	agents map[string]core.AgentDefinition
	models map[core.Backend]model.Model

	sessions  session.Store
	mcp       *mcp.Manager
	slots     *slotTable
	approvals *approvalTable
	gate      *gate.Gate
	limiter   *ratelimit.Limiter
}

// New constructs an engine. The configuration is defaulted and validated
// here, once; an invalid limit fails construction rather than the first
// stream.
func New(optFns ...func(o *Options)) (*Engine, error) {
	opts := Options{
		Config: DefaultConfig(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	cfg := opts.Config.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewLogger(logging.DefaultLoggerConfig())
	}
	logger = logger.WithComponent("engine")

	sessions := opts.Sessions
	if sessions == nil {
		sessions = session.NewInMemoryStore()
	}

	manager := opts.MCP
	if manager == nil && len(cfg.MCPServers) > 0 {
		var err error
		manager, err = mcp.NewManager(cfg.MCPServers,
			func(o *mcp.ManagerOptions) {
				o.Logger = logger.WithComponent("mcp")
				o.Retry = cfg.Retry
			},
		)
		if err != nil {
			return nil, fmt.Errorf("engine config: %w", err)
		}
	}

	e := &Engine{
		config:    cfg,
		logger:    logger,
		hooks:     opts.Hooks,
		agents:    make(map[string]core.AgentDefinition),
		models:    make(map[core.Backend]model.Model),
		sessions:  sessions,
		mcp:       manager,
		slots:     newSlotTable(cfg.Limits.MaxActiveStreams, cfg.Limits.MaxActiveStreamsPerConversation),
		approvals: newApprovalTable(cfg.Limits.MaxPendingApprovalsPerConversation, cfg.Limits.ApprovalTimeout),
		gate:      gate.New(cfg.Limits.ToolConcurrency),
		limiter:   ratelimit.New(cfg.RateLimit),
	}

	for backend, m := range opts.Models {
		e.models[backend] = m
	}
	for _, ag := range cfg.Agents {
		if err := e.RegisterAgent(ag); err != nil {
			return nil, fmt.Errorf("engine config: %w", err)
		}
	}

	return e, nil
}

// RegisterAgent adds an agent definition to the registry. Registering an
// id twice replaces the previous definition.
func (e *Engine) RegisterAgent(ag core.AgentDefinition) error {
	if ag.ID == "" {
		return fmt.Errorf("agent definition without an id")
	}
	if ag.Backend == "" {
		return fmt.Errorf("agent %s: no backend set", ag.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.agents[ag.ID]; exists {
		e.logger.Warn("replacing registered agent", "agent_id", ag.ID)
	}
	e.agents[ag.ID] = ag
	return nil
}

// RegisterModel attaches a provider adapter to a backend tag.
func (e *Engine) RegisterModel(backend core.Backend, m model.Model) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.models[backend] = m
}

// Agent looks up a registered agent definition by id.
func (e *Engine) Agent(id string) (core.AgentDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ag, ok := e.agents[id]
	return ag, ok
}

// Initialize connects the configured non-lazy MCP servers and caches their
// tool catalogs. Optional; lazy servers connect on first tool use either
// way.
func (e *Engine) Initialize(ctx context.Context) error {
	if e.mcp == nil {
		return nil
	}
	return e.mcp.Initialize(ctx)
}

// ActiveStreams reports the number of in-flight conversation turns.
func (e *Engine) ActiveStreams() int {
	return e.slots.activeStreams()
}

// Stream runs one conversation turn and returns its event sequence.
//
// Slot acquisition happens synchronously: a caller over the global stream
// cap or addressing a busy conversation gets a coded error here, before
// any goroutine is started. Everything after that, including rate-limit
// rejections, is reported through the event channel, which always ends
// with exactly one terminal event (stream-complete or error) and is then
// closed.
func (e *Engine) Stream(ctx context.Context, in Input) (<-chan core.Event, error) {
	if in.Message == "" {
		return nil, fmt.Errorf("input message must not be empty")
	}
	if in.ConversationID == "" {
		in.ConversationID = uuid.NewString()
	}

	agentID := in.AgentID
	if agentID == "" {
		agentID = e.config.DefaultAgentID
	}
	if _, ok := e.Agent(agentID); !ok {
		return nil, core.Errorf(core.CodeAgentNotFound, "agent %q is not registered", agentID)
	}

	release, slotErr := e.slots.acquire(in.ConversationID)
	if slotErr != nil {
		return nil, slotErr
	}

	events := make(chan core.Event, e.config.EventBufferSize)
	go e.run(ctx, in, agentID, events, release)
	return events, nil
}

// Run executes one turn synchronously and collects its events. The last
// event is terminal; a terminal error event is also returned as an error.
func (e *Engine) Run(ctx context.Context, in Input) ([]core.Event, error) {
	events, err := e.Stream(ctx, in)
	if err != nil {
		return nil, err
	}

	var collected []core.Event
	for ev := range events {
		collected = append(collected, ev)
		if ev.Type == core.EventError {
			return collected, core.NewError(ev.ErrorCode, ev.ErrorMessage)
		}
	}
	return collected, nil
}

// SubmitApproval applies an external decision to a suspended tool call.
// It reports whether a matching pending approval existed; false means the
// call already expired or was never suspended.
func (e *Engine) SubmitApproval(decision ApprovalDecision) bool {
	applied := e.approvals.submit(decision)
	e.logger.Info("approval decision",
		"tool_call_id", decision.ToolCallID, "approved", decision.Approved, "applied", applied)
	return applied
}

// ResumeWithApprovals applies a batch of decisions scoped to one
// conversation. Matching zero pending approvals is an explicit error
// condition, not a silent no-op.
func (e *Engine) ResumeWithApprovals(conversationID string, decisions []ApprovalDecision) (int, error) {
	applied := 0
	for _, d := range decisions {
		d.ConversationID = conversationID
		if e.approvals.submit(d) {
			applied++
		}
	}
	if applied == 0 {
		return 0, core.Errorf(core.CodeNoApprovalsApplied,
			"no pending approvals matched for conversation %s", conversationID)
	}
	return applied, nil
}

// PendingApprovals lists suspended tool calls, optionally filtered by
// conversation id. Pass "" for all conversations.
func (e *Engine) PendingApprovals(conversationID string) []PendingApprovalInfo {
	return e.approvals.list(conversationID)
}

// Shutdown disconnects external tool servers. In-flight turns are not
// interrupted; callers should stop issuing Stream calls first.
func (e *Engine) Shutdown() {
	if e.mcp != nil {
		e.mcp.Shutdown()
	}
}

// run is the per-turn worker: rate check, handoff loop, persistence,
// terminal event. It owns the event channel and closes it on the way out.
func (e *Engine) run(ctx context.Context, in Input, agentID string, events chan<- core.Event, release func()) {
	defer close(events)
	defer release()

	emit := func(ev core.Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	start := time.Now()
	currentAgentID := agentID
	handoffs := 0

	fail := func(err error) {
		cerr := core.Classify(err, core.CodeUnknown)
		e.hooks.onError(ctx, &HookContext{
			ConversationID: in.ConversationID,
			AgentID:        currentAgentID,
			UserID:         in.UserID,
			Err:            cerr,
		})
		e.logger.WithConversation(in.ConversationID, currentAgentID).
			LogStreamRun(currentAgentID, handoffs, time.Since(start), false, err)
		emit(core.NewErrorEvent(in.ConversationID, currentAgentID, cerr))
	}

	key := e.limiter.KeyFor(in.UserID, in.ConversationID)
	if ok, retryAfter := e.limiter.Allow(key); !ok {
		fail(core.Errorf(core.CodeRateLimitExceeded,
			"rate limit exceeded, retry in %s", retryAfter.Round(time.Millisecond)))
		return
	}

	history, err := e.sessions.History(in.ConversationID)
	if err != nil {
		fail(err)
		return
	}
	history = append(history, model.Message{Role: model.RoleUser, Text: in.Message})
	persistFrom := len(history) - 1

	for handoffs < e.config.Limits.MaxHandoffs {
		ag, ok := e.Agent(currentAgentID)
		if !ok {
			fail(core.Errorf(core.CodeAgentNotFound,
				"handoff target %q is not registered", currentAgentID))
			return
		}

		mdl, ok := e.modelFor(ag.Backend)
		if !ok {
			fail(core.Errorf(core.CodeAgentNotFound,
				"agent %s: no model registered for backend %q", ag.ID, ag.Backend))
			return
		}

		messageID := uuid.NewString()
		if !emit(core.NewMessageStartEvent(in.ConversationID, ag.ID, messageID)) {
			return
		}
		if err := e.hooks.onAgentStart(ctx, &HookContext{
			ConversationID: in.ConversationID,
			AgentID:        ag.ID,
			UserID:         in.UserID,
		}); err != nil {
			fail(err)
			return
		}

		tools, err := e.buildToolset(ctx, ag)
		if err != nil {
			fail(err)
			return
		}

		res, err := e.runTurn(ctx, ag, mdl, history, in, messageID, tools, emit)
		if err != nil {
			if err == errEmitBlocked || ctx.Err() != nil {
				return
			}
			fail(err)
			return
		}
		history = res.history

		if err := e.hooks.onAgentEnd(ctx, &HookContext{
			ConversationID: in.ConversationID,
			AgentID:        ag.ID,
			UserID:         in.UserID,
		}); err != nil {
			fail(err)
			return
		}

		if res.handoff == nil {
			if err := e.persist(in.ConversationID, history[persistFrom:]); err != nil {
				fail(err)
				return
			}
			e.logger.WithConversation(in.ConversationID, currentAgentID).
				LogStreamRun(currentAgentID, handoffs, time.Since(start), true, nil)
			emit(core.NewStreamCompleteEvent(in.ConversationID, currentAgentID))
			return
		}

		if err := e.hooks.onHandoff(ctx, &HookContext{
			ConversationID: in.ConversationID,
			AgentID:        ag.ID,
			UserID:         in.UserID,
			FromAgentID:    ag.ID,
			ToAgentID:      res.handoff.TargetAgentID,
			Reason:         res.handoff.Reason,
		}); err != nil {
			fail(err)
			return
		}
		if !emit(core.NewAgentHandoffEvent(in.ConversationID, ag.ID, res.handoff.TargetAgentID, res.handoff.Reason)) {
			return
		}

		if res.handoff.Context != "" {
			history = append(history, model.Message{
				Role: model.RoleUser,
				Text: fmt.Sprintf("Context from %s: %s", ag.ID, res.handoff.Context),
			})
		}

		currentAgentID = res.handoff.TargetAgentID
		handoffs++
	}

	fail(core.Errorf(core.CodeMaxHandoffsExceeded,
		"conversation exceeded %d agent handoffs in one turn", e.config.Limits.MaxHandoffs))
}

func (e *Engine) modelFor(backend core.Backend) (model.Model, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	m, ok := e.models[backend]
	return m, ok
}

// buildToolset assembles the full tool list for one agent turn: its own
// tools, one generated handoff tool per declared target, and the sanitized
// tools of its allowed MCP servers.
func (e *Engine) buildToolset(ctx context.Context, ag core.AgentDefinition) (map[string]core.Tool, error) {
	tools := make(map[string]core.Tool, len(ag.Tools)+len(ag.HandoffTargets))

	for _, t := range ag.Tools {
		tools[t.Name()] = t
	}

	for _, targetID := range ag.HandoffTargets {
		target, ok := e.Agent(targetID)
		if !ok {
			return nil, core.Errorf(core.CodeAgentNotFound,
				"agent %s declares unknown handoff target %q", ag.ID, targetID)
		}
		ht := tool.NewHandoffTool(target)
		tools[ht.Name()] = ht
	}

	if len(ag.MCPServers) > 0 {
		if e.mcp == nil {
			return nil, core.Errorf(core.CodeAgentNotFound,
				"agent %s references MCP servers but none are configured", ag.ID)
		}
		serverTools, err := tool.ServerTools(ctx, e.mcp, ag.MCPServers)
		if err != nil {
			return nil, err
		}
		for _, t := range serverTools {
			tools[t.Name()] = t
		}
	}

	return tools, nil
}

// persist appends the turn's new messages to the session store.
func (e *Engine) persist(conversationID string, messages []model.Message) error {
	if len(messages) == 0 {
		return nil
	}
	return e.sessions.Append(conversationID, messages...)
}

// sortedTools returns the toolset in deterministic name order, so the tool
// catalog presented to a model is stable across turns.
func sortedTools(tools map[string]core.Tool) []core.Tool {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]core.Tool, 0, len(names))
	for _, name := range names {
		out = append(out, tools[name])
	}
	return out
}
