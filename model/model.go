package model

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/hupe1980/agentrelay/core"
)

// Role identifies who produced a message in the normalized history.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolCall represents a function call request surfaced by a model provider.
// Unified across vendors so downstream logic does not need per-provider branching.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"` // JSON object of arguments
}

// ToolDefinition declaratively exposes a callable function to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Message is one entry in the normalized conversation history. Assistant
// messages may carry tool calls; tool messages carry the result for one
// call identified by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Text       string     `json:"text,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Content    any        `json:"content,omitempty"` // tool result payload
	IsError    bool       `json:"is_error,omitempty"`
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	Model    string                `json:"model"`
	System   string                `json:"system,omitempty"`
	Messages []Message             `json:"messages"`
	Tools    []ToolDefinition      `json:"tools,omitempty"`
	Params   core.GenerationParams `json:"params"`
}

// Chunk is one streamed increment emitted by a provider adapter. Exactly one
// of the payload fields is set per chunk; the zero chunk carries nothing.
type Chunk struct {
	TextDelta      string           `json:"text_delta,omitempty"`
	ReasoningDelta string           `json:"reasoning_delta,omitempty"`
	ToolCallStart  *ToolCall        `json:"tool_call_start,omitempty"` // id and name known, arguments still streaming
	ToolCallDelta  *ToolCallDelta   `json:"tool_call_delta,omitempty"`
	ToolCallDone   *ToolCall        `json:"tool_call_done,omitempty"` // arguments complete
	Usage          *core.TokenUsage `json:"usage,omitempty"`
	FinishReason   string           `json:"finish_reason,omitempty"` // "stop", "length", "tool_calls"
}

// ToolCallDelta is a fragment of streamed tool call arguments.
type ToolCallDelta struct {
	ID        string `json:"id"`
	ArgsDelta string `json:"args_delta"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "anthropic", "openai", "gemini", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the engine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Chunk, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Scripted turns are consumed one Generate call at a time; once the script
// is exhausted (or absent) the mock echoes the last user message.
type MockModel struct {
	mu    sync.Mutex
	info  Info
	turns [][]Chunk
	reqs  []Request
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// AddTurn queues the chunks one Generate call will emit.
func (m *MockModel) AddTurn(chunks ...Chunk) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, chunks)
}

// AddTextTurn queues a turn that streams the given text and stops.
func (m *MockModel) AddTextTurn(text string) {
	m.AddTurn(Chunk{TextDelta: text}, Chunk{FinishReason: "stop"})
}

// AddToolCallTurn queues a turn that requests one tool call.
func (m *MockModel) AddToolCallTurn(id, name string, args string) {
	call := &ToolCall{ID: id, Name: name, Arguments: json.RawMessage(args)}
	m.AddTurn(
		Chunk{ToolCallStart: &ToolCall{ID: id, Name: name}},
		Chunk{ToolCallDelta: &ToolCallDelta{ID: id, ArgsDelta: args}},
		Chunk{ToolCallDone: call},
		Chunk{FinishReason: "tool_calls"},
	)
}

// Requests returns every Request the mock has seen, in order.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.reqs))
	copy(out, m.reqs)
	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Chunk, <-chan error) {
	chunkCh := make(chan Chunk, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.reqs = append(m.reqs, req)
	var turn []Chunk
	if len(m.turns) > 0 {
		turn = m.turns[0]
		m.turns = m.turns[1:]
	}
	m.mu.Unlock()

	go func() {
		defer close(chunkCh)
		defer close(errCh)

		if turn == nil {
			var lastUser string
			for _, msg := range req.Messages {
				if msg.Role == RoleUser {
					lastUser = msg.Text
				}
			}
			turn = []Chunk{
				{TextDelta: fmt.Sprintf("Mock response to: %s", lastUser)},
				{FinishReason: "stop"},
			}
		}

		for _, chunk := range turn {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case chunkCh <- chunk:
			}
		}
	}()
	return chunkCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
