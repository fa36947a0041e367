// Package agentrelay provides a high-level façade over the orchestration
// engine for building multi-agent, tool-using conversation systems. Most
// applications interact with this package by:
//  1. Creating a Relay via New() (optionally from a YAML configuration)
//  2. Registering agents, models and tools
//  3. Streaming conversation turns (Stream) or running them to completion (Run)
//
// The façade delegates orchestration to engine.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply tuned limits, a durable
// session store and a structured logger.
package agentrelay

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/engine"
	"github.com/hupe1980/agentrelay/model"
)

// Options configures a Relay. It mirrors engine.Options; see that type for
// field documentation.
type Options = engine.Options

// Input is one conversation turn request.
type Input = engine.Input

// ApprovalDecision is the external verdict for one suspended tool call.
type ApprovalDecision = engine.ApprovalDecision

// Relay is the high-level façade over the orchestration engine.
type Relay struct {
	engine *engine.Engine
}

// New creates a Relay with the given options.
func New(optFns ...func(o *Options)) (*Relay, error) {
	eng, err := engine.New(optFns...)
	if err != nil {
		return nil, err
	}
	return &Relay{engine: eng}, nil
}

// NewFromConfigFile creates a Relay from a YAML configuration file. Models
// and programmatic tools are attached afterwards via RegisterModel and
// RegisterAgent.
func NewFromConfigFile(path string, optFns ...func(o *Options)) (*Relay, error) {
	cfg, err := engine.LoadConfigFile(path)
	if err != nil {
		return nil, err
	}
	opts := append([]func(o *Options){engine.WithConfig(cfg)}, optFns...)
	return New(opts...)
}

// Engine exposes the underlying engine for advanced use.
func (r *Relay) Engine() *engine.Engine { return r.engine }

// RegisterAgent adds an agent definition to the registry.
func (r *Relay) RegisterAgent(ag core.AgentDefinition) error {
	return r.engine.RegisterAgent(ag)
}

// RegisterModel attaches a provider adapter to a backend tag.
func (r *Relay) RegisterModel(backend core.Backend, m model.Model) {
	r.engine.RegisterModel(backend, m)
}

// Initialize eagerly connects the configured non-lazy MCP servers.
func (r *Relay) Initialize(ctx context.Context) error {
	return r.engine.Initialize(ctx)
}

// Stream runs one conversation turn and returns its event sequence. The
// channel ends with exactly one terminal event and is then closed.
func (r *Relay) Stream(ctx context.Context, in Input) (<-chan core.Event, error) {
	return r.engine.Stream(ctx, in)
}

// Run executes one turn synchronously and collects its events.
func (r *Relay) Run(ctx context.Context, in Input) ([]core.Event, error) {
	return r.engine.Run(ctx, in)
}

// SubmitApproval applies an external decision to a suspended tool call.
func (r *Relay) SubmitApproval(decision ApprovalDecision) bool {
	return r.engine.SubmitApproval(decision)
}

// ResumeWithApprovals applies a batch of decisions scoped to one
// conversation. Matching zero pending approvals returns an error.
func (r *Relay) ResumeWithApprovals(conversationID string, decisions []ApprovalDecision) (int, error) {
	return r.engine.ResumeWithApprovals(conversationID, decisions)
}

// PendingApprovals lists suspended tool calls, optionally filtered by
// conversation id. Pass "" for all conversations.
func (r *Relay) PendingApprovals(conversationID string) []engine.PendingApprovalInfo {
	return r.engine.PendingApprovals(conversationID)
}

// Shutdown disconnects external tool servers.
func (r *Relay) Shutdown() { r.engine.Shutdown() }
