// Package gemini provides a model wrapper for the Google Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// Options configures the Gemini model adapter.
type Options struct {
	Model     string
	MaxTokens int32
	APIKey    string
}

// Model wraps the Gemini GenerateContent API behind the generic model.Model interface.
type Model struct {
	client *genai.Client
	opts   Options
}

// NewModel creates a new Gemini model using the official client
func NewModel(ctx context.Context, optFns ...func(o *Options)) (*Model, error) {
	opts := Options{
		Model:     "gemini-2.0-flash",
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}

	return &Model{client: client, opts: opts}, nil
}

// NewModelFromClient creates a new Gemini model from an existing client
func NewModelFromClient(client *genai.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:     "gemini-2.0-flash",
		MaxTokens: 4096,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Model{client: client, opts: opts}
}

// Generate implements streaming generation. Gemini emits complete function
// call parts rather than streamed argument fragments, so each tool call
// produces a start chunk immediately followed by a done chunk.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		contents := m.buildContents(req.Messages)
		config := m.buildConfig(req)
		modelID := m.opts.Model
		if req.Model != "" {
			modelID = req.Model
		}

		var usage core.TokenUsage
		finishReason := "stop"
		sawToolCall := false

		emit := func(chunk model.Chunk) bool {
			return emitChunk(ctx, out, chunk)
		}

		for resp, err := range m.client.Models.GenerateContentStream(ctx, modelID, contents, config) {
			if err != nil {
				errCh <- fmt.Errorf("gemini api error: %w", err)
				return
			}
			if resp == nil {
				continue
			}

			if resp.UsageMetadata != nil {
				usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
				usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
				usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
			}

			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				if candidate.FinishReason == genai.FinishReasonMaxTokens {
					finishReason = "length"
				}
				for _, part := range candidate.Content.Parts {
					if part == nil {
						continue
					}
					if part.Text != "" {
						if part.Thought {
							if !emit(model.Chunk{ReasoningDelta: part.Text}) {
								return
							}
						} else if !emit(model.Chunk{TextDelta: part.Text}) {
							return
						}
					}
					if part.FunctionCall != nil {
						args, jsonErr := json.Marshal(part.FunctionCall.Args)
						if jsonErr != nil {
							args = []byte("{}")
						}
						call := &model.ToolCall{
							ID:        toolCallID(part.FunctionCall),
							Name:      part.FunctionCall.Name,
							Arguments: args,
						}
						sawToolCall = true
						if !emit(model.Chunk{ToolCallStart: &model.ToolCall{ID: call.ID, Name: call.Name}}) {
							return
						}
						if !emit(model.Chunk{ToolCallDone: call}) {
							return
						}
					}
				}
			}
		}

		if sawToolCall {
			finishReason = "tool_calls"
		}
		if usage.TotalTokens > 0 {
			if !emit(model.Chunk{Usage: &usage}) {
				return
			}
		}
		emit(model.Chunk{FinishReason: finishReason})
	}()

	return out, errCh
}

// emitChunk sends chunk unless ctx is done, so the producer never
// blocks on an abandoned stream.
func emitChunk(ctx context.Context, out chan<- model.Chunk, chunk model.Chunk) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- chunk:
		return true
	}
}

func toolCallID(call *genai.FunctionCall) string {
	if call.ID != "" {
		return call.ID
	}
	return fmt.Sprintf("%s_%s", call.Name, uuid.NewString()[:8])
}

// buildContents converts normalized history to Gemini content format.
// Tool results travel as function response parts from the user side.
func (m *Model) buildContents(messages []model.Message) []*genai.Content {
	var result []*genai.Content

	for _, msg := range messages {
		content := &genai.Content{}

		switch msg.Role {
		case model.RoleAssistant:
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Text != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Text})
		}

		for _, call := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(call.Arguments, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{
					ID:   call.ID,
					Name: call.Name,
					Args: args,
				},
			})
		}

		if msg.Role == model.RoleTool {
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     msg.ToolName,
					Response: toolResponseMap(msg),
				},
			})
		}

		if len(content.Parts) > 0 {
			result = append(result, content)
		}
	}

	return result
}

// toolResponseMap shapes a tool result into the map Gemini expects.
func toolResponseMap(msg model.Message) map[string]any {
	if m, ok := msg.Content.(map[string]any); ok {
		return m
	}
	if s, ok := msg.Content.(string); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			return parsed
		}
	}
	return map[string]any{
		"result": msg.Content,
		"error":  msg.IsError,
	}
}

// buildConfig builds the GenerateContentConfig from a request.
func (m *Model) buildConfig(req model.Request) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}

	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	config.MaxOutputTokens = m.opts.MaxTokens
	if req.Params.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.Params.MaxTokens)
	}
	if req.Params.Temperature != nil {
		t := float32(*req.Params.Temperature)
		config.Temperature = &t
	}
	if req.Params.TopP != nil {
		p := float32(*req.Params.TopP)
		config.TopP = &p
	}

	if len(req.Tools) > 0 {
		config.Tools = buildTools(req.Tools)
	}

	return config
}

// buildTools converts normalized tool definitions to Gemini declarations.
func buildTools(tools []model.ToolDefinition) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  toSchema(tool.Parameters),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toSchema converts a JSON Schema map to Gemini's Schema type.
func toSchema(schemaMap map[string]any) *genai.Schema {
	if schemaMap == nil {
		return nil
	}

	schema := &genai.Schema{}

	if t, ok := schemaMap["type"].(string); ok {
		schema.Type = genai.Type(strings.ToUpper(t))
	}

	if desc, ok := schemaMap["description"].(string); ok {
		schema.Description = desc
	}

	if enum, ok := schemaMap["enum"].([]any); ok {
		for _, e := range enum {
			if s, ok := e.(string); ok {
				schema.Enum = append(schema.Enum, s)
			}
		}
	}

	if props, ok := schemaMap["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema)
		for name, prop := range props {
			if propMap, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toSchema(propMap)
			}
		}
	}

	switch required := schemaMap["required"].(type) {
	case []string:
		schema.Required = append(schema.Required, required...)
	case []any:
		for _, r := range required {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	if items, ok := schemaMap["items"].(map[string]any); ok {
		schema.Items = toSchema(items)
	}

	return schema
}

// Info returns metadata describing this Gemini model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "gemini",
		SupportsTools: true,
	}
}
