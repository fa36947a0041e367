package engine

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/mcp"
	"github.com/hupe1980/agentrelay/ratelimit"
	"github.com/hupe1980/agentrelay/retry"
)

// Limits bounds the resource usage of one engine instance. Zero values are
// replaced by defaults during construction; negative values fail validation.
type Limits struct {
	// MaxActiveStreams caps concurrent conversation turns across the whole
	// engine instance.
	MaxActiveStreams int `yaml:"max_active_streams"`

	// MaxActiveStreamsPerConversation caps concurrent turns within a single
	// conversation. The default of 1 means a second Stream call for a busy
	// conversation fails fast instead of queuing.
	MaxActiveStreamsPerConversation int `yaml:"max_active_streams_per_conversation"`

	// MaxHandoffs caps agent-to-agent transfers within one turn. Acts as a
	// guard against handoff cycles between agents.
	MaxHandoffs int `yaml:"max_handoffs"`

	// MaxIterations caps the tool-call loop of a single agent turn. Agents
	// may override it per definition.
	MaxIterations int `yaml:"max_iterations"`

	// MaxPendingApprovalsPerConversation is a hard cap: a tool call that
	// would exceed it is rejected immediately, never queued.
	MaxPendingApprovalsPerConversation int `yaml:"max_pending_approvals_per_conversation"`

	// ApprovalTimeout is how long a suspended tool call waits for an
	// external decision before auto-rejecting.
	ApprovalTimeout time.Duration `yaml:"approval_timeout"`

	// ToolTimeout bounds a single tool execution unless the tool overrides
	// it.
	ToolTimeout time.Duration `yaml:"tool_timeout"`

	// ToolQueueTimeout bounds the wait for a concurrency gate slot.
	ToolQueueTimeout time.Duration `yaml:"tool_queue_timeout"`

	// ToolConcurrency is the capacity of the gate shared by all tool
	// executions across all conversations.
	ToolConcurrency int `yaml:"tool_concurrency"`
}

// DefaultLimits returns the engine's default resource limits.
func DefaultLimits() Limits {
	return Limits{
		MaxActiveStreams:                   10,
		MaxActiveStreamsPerConversation:    1,
		MaxHandoffs:                        10,
		MaxIterations:                      10,
		MaxPendingApprovalsPerConversation: 10,
		ApprovalTimeout:                    300 * time.Second,
		ToolTimeout:                        60 * time.Second,
		ToolQueueTimeout:                   10 * time.Second,
		ToolConcurrency:                    8,
	}
}

// Config holds engine construction parameters. All sections are optional;
// missing values fall back to defaults. Validation happens once, inside
// New, so an engine that constructed successfully never fails on a limit
// misconfiguration at stream time.
type Config struct {
	// DefaultAgentID is the agent a turn starts with when the caller names
	// none.
	DefaultAgentID string `yaml:"default_agent"`

	// Agents declares the agent registry. Tools and system prompt functions
	// cannot be expressed in YAML and are attached programmatically after
	// loading.
	Agents []core.AgentDefinition `yaml:"agents"`

	// Limits bounds streams, handoffs, iterations, approvals and tool
	// execution.
	Limits Limits `yaml:"limits"`

	// RateLimit tunes the per-caller sliding-window limiter.
	RateLimit ratelimit.Config `yaml:"rate_limit"`

	// Retry tunes the backoff applied to model calls and MCP connect/list
	// operations.
	Retry retry.Config `yaml:"retry"`

	// MCPServers declares the external tool servers available to agents.
	MCPServers []mcp.ServerConfig `yaml:"mcp_servers"`

	// EventBufferSize is the capacity of each Stream call's event channel.
	EventBufferSize int `yaml:"event_buffer_size"`
}

// DefaultConfig returns a production-ready configuration.
func DefaultConfig() Config {
	return Config{
		Limits:          DefaultLimits(),
		RateLimit:       ratelimit.DefaultConfig(),
		Retry:           retry.DefaultConfig(),
		EventBufferSize: 64,
	}
}

// LoadConfigFile reads a YAML configuration file and merges it over the
// defaults.
func LoadConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}

	return cfg, nil
}

// withDefaults fills zero-valued fields from DefaultConfig. Negative values
// are left in place for Validate to reject.
func (c Config) withDefaults() Config {
	def := DefaultConfig()

	if c.Limits.MaxActiveStreams == 0 {
		c.Limits.MaxActiveStreams = def.Limits.MaxActiveStreams
	}
	if c.Limits.MaxActiveStreamsPerConversation == 0 {
		c.Limits.MaxActiveStreamsPerConversation = def.Limits.MaxActiveStreamsPerConversation
	}
	if c.Limits.MaxHandoffs == 0 {
		c.Limits.MaxHandoffs = def.Limits.MaxHandoffs
	}
	if c.Limits.MaxIterations == 0 {
		c.Limits.MaxIterations = def.Limits.MaxIterations
	}
	if c.Limits.MaxPendingApprovalsPerConversation == 0 {
		c.Limits.MaxPendingApprovalsPerConversation = def.Limits.MaxPendingApprovalsPerConversation
	}
	if c.Limits.ApprovalTimeout == 0 {
		c.Limits.ApprovalTimeout = def.Limits.ApprovalTimeout
	}
	if c.Limits.ToolTimeout == 0 {
		c.Limits.ToolTimeout = def.Limits.ToolTimeout
	}
	if c.Limits.ToolQueueTimeout == 0 {
		c.Limits.ToolQueueTimeout = def.Limits.ToolQueueTimeout
	}
	if c.Limits.ToolConcurrency == 0 {
		c.Limits.ToolConcurrency = def.Limits.ToolConcurrency
	}

	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = def.RateLimit.Window
	}
	if c.RateLimit.MaxRequests == 0 {
		c.RateLimit.MaxRequests = def.RateLimit.MaxRequests
	}
	if c.RateLimit.Scope == "" {
		c.RateLimit.Scope = def.RateLimit.Scope
	}

	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = def.Retry.MaxAttempts
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = def.Retry.InitialDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = def.Retry.MaxDelay
	}
	if c.Retry.Multiplier == 0 {
		c.Retry.Multiplier = def.Retry.Multiplier
	}

	if c.EventBufferSize == 0 {
		c.EventBufferSize = def.EventBufferSize
	}

	return c
}

// Validate checks numeric invariants. It runs once at construction; an
// invalid configuration fails New immediately rather than surfacing at the
// first Stream call.
func (c Config) Validate() error {
	l := c.Limits
	if l.MaxActiveStreams < 1 {
		return fmt.Errorf("limits: max_active_streams must be positive, got %d", l.MaxActiveStreams)
	}
	if l.MaxActiveStreamsPerConversation < 1 {
		return fmt.Errorf("limits: max_active_streams_per_conversation must be positive, got %d", l.MaxActiveStreamsPerConversation)
	}
	if l.MaxActiveStreamsPerConversation > l.MaxActiveStreams {
		return fmt.Errorf("limits: per-conversation stream cap %d exceeds global cap %d",
			l.MaxActiveStreamsPerConversation, l.MaxActiveStreams)
	}
	if l.MaxHandoffs < 1 {
		return fmt.Errorf("limits: max_handoffs must be positive, got %d", l.MaxHandoffs)
	}
	if l.MaxIterations < 1 {
		return fmt.Errorf("limits: max_iterations must be positive, got %d", l.MaxIterations)
	}
	if l.MaxPendingApprovalsPerConversation < 1 {
		return fmt.Errorf("limits: max_pending_approvals_per_conversation must be positive, got %d",
			l.MaxPendingApprovalsPerConversation)
	}
	for name, d := range map[string]time.Duration{
		"approval_timeout":   l.ApprovalTimeout,
		"tool_timeout":       l.ToolTimeout,
		"tool_queue_timeout": l.ToolQueueTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("limits: %s must be positive, got %s", name, d)
		}
	}
	if l.ToolConcurrency < 1 {
		return fmt.Errorf("limits: tool_concurrency must be positive, got %d", l.ToolConcurrency)
	}

	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit: window must be positive, got %s", c.RateLimit.Window)
	}
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rate_limit: max_requests must be positive, got %d", c.RateLimit.MaxRequests)
	}

	r := c.Retry
	if r.MaxAttempts < 1 {
		return fmt.Errorf("retry: max_attempts must be positive, got %d", r.MaxAttempts)
	}
	if r.InitialDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("retry: delays must not be negative")
	}
	if r.MaxDelay < r.InitialDelay {
		return fmt.Errorf("retry: max_delay %s is below initial_delay %s", r.MaxDelay, r.InitialDelay)
	}
	if r.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be at least 1, got %g", r.Multiplier)
	}

	if c.EventBufferSize < 1 {
		return fmt.Errorf("event_buffer_size must be positive, got %d", c.EventBufferSize)
	}

	return nil
}
