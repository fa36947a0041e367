package core

// Backend tags the model backend an agent runs against. The runtime selects
// a provider adapter by this tag; agents never reference adapters directly.
type Backend string

const (
	BackendAnthropic Backend = "anthropic"
	BackendOpenAI    Backend = "openai"
	BackendGemini    Backend = "gemini"
)

// GenerationParams are the per-agent model generation knobs forwarded to the
// provider adapter. Zero values defer to adapter defaults.
type GenerationParams struct {
	Temperature *float64 `yaml:"temperature" json:"temperature,omitempty"`
	MaxTokens   int64    `yaml:"max_tokens" json:"max_tokens,omitempty"`
	TopP        *float64 `yaml:"top_p" json:"top_p,omitempty"`
}

// SystemPromptFunc resolves a system prompt against the per-turn context map
// supplied by the caller of the turn.
type SystemPromptFunc func(turnContext map[string]any) (string, error)

// AgentDefinition describes a named persona: its model selection, system
// prompt, owned tool set, allowed MCP servers and handoff targets. Created
// once at runtime construction and immutable thereafter.
type AgentDefinition struct {
	// ID uniquely identifies the agent within one runtime instance.
	ID string `yaml:"id"`
	// Name is the human-readable display name.
	Name string `yaml:"name"`
	// Description is surfaced to peer agents in handoff tool descriptions.
	Description string `yaml:"description"`

	// Backend selects the provider adapter; Model is the backend model name.
	Backend Backend          `yaml:"backend"`
	Model   string           `yaml:"model"`
	Params  GenerationParams `yaml:"params"`

	// SystemPrompt is a fixed prompt, optionally containing template
	// variables resolved against the turn context. SystemPromptFunc takes
	// precedence when set.
	SystemPrompt     string           `yaml:"system_prompt"`
	SystemPromptFunc SystemPromptFunc `yaml:"-"`

	// Tools is the agent's own tool set, keyed by tool name.
	Tools []Tool `yaml:"-"`

	// MCPServers names the external tool servers this agent may use.
	MCPServers []string `yaml:"mcp_servers"`

	// HandoffTargets lists agent ids this agent may transfer control to.
	// One handoff tool per target is generated automatically.
	HandoffTargets []string `yaml:"handoff_targets"`

	// MaxIterations caps the tool-call loop of a single turn.
	// Zero means the runtime default.
	MaxIterations int `yaml:"max_iterations"`
}
