// Package anthropic provides a model wrapper for the Anthropic Claude API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"
	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/model"
)

// Options configures the Anthropic model adapter (model id, max tokens,
// API key). Extend via functional options to preserve stability.
type Options struct {
	Model     anthropic.Model
	MaxTokens int64
	APIKey    string
}

// Model wraps the Anthropic Messages API behind the generic model.Model interface.
type Model struct {
	client *anthropic.Client
	opts   Options
}

// NewModel creates a new Anthropic model using the official client
func NewModel(optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:     anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	client := anthropic.NewClient(clientOpts...)

	return &Model{
		client: &client,
		opts:   opts,
	}
}

// NewModelFromClient creates a new Anthropic model from an existing client
func NewModelFromClient(client *anthropic.Client, optFns ...func(o *Options)) *Model {
	opts := Options{
		Model:     anthropic.ModelClaudeSonnet4_20250514,
		MaxTokens: 4096,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Model{
		client: client,
		opts:   opts,
	}
}

// Generate implements streaming generation. It adapts the Anthropic Messages
// SSE stream (with tool calling) into model.Chunk events.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params := anthropic.MessageNewParams{
			Model:     m.resolveModel(req.Model),
			Messages:  m.buildMessages(req.Messages),
			MaxTokens: m.resolveMaxTokens(req.Params),
		}

		if req.Params.Temperature != nil {
			params.Temperature = anthropic.Float(*req.Params.Temperature)
		}
		if req.Params.TopP != nil {
			params.TopP = anthropic.Float(*req.Params.TopP)
		}

		if req.System != "" {
			params.System = []anthropic.TextBlockParam{{Text: req.System}}
		}

		if len(req.Tools) > 0 {
			params.Tools = m.buildTools(req.Tools)
		}

		stream := m.client.Messages.NewStreaming(ctx, params)
		if err := m.processStream(ctx, stream, out); err != nil {
			errCh <- err
		}
	}()

	return out, errCh
}

// processStream converts Anthropic stream events to normalized chunks.
// Tool call arguments arrive as partial JSON fragments which are both
// forwarded as deltas and accumulated for the final complete call.
func (m *Model) processStream(ctx context.Context, stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- model.Chunk) error {
	var currentCall *model.ToolCall
	var currentInput strings.Builder
	var usage core.TokenUsage
	finishReason := "stop"

	emit := func(chunk model.Chunk) bool {
		select {
		case <-ctx.Done():
			return false
		case out <- chunk:
			return true
		}
	}

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			messageStart := event.AsMessageStart()
			usage.PromptTokens = int(messageStart.Message.Usage.InputTokens)

		case "content_block_start":
			contentBlock := event.AsContentBlockStart().ContentBlock
			if contentBlock.Type == "tool_use" {
				toolUse := contentBlock.AsToolUse()
				currentCall = &model.ToolCall{ID: toolUse.ID, Name: toolUse.Name}
				currentInput.Reset()
				if !emit(model.Chunk{ToolCallStart: &model.ToolCall{ID: toolUse.ID, Name: toolUse.Name}}) {
					return ctx.Err()
				}
			}

		case "content_block_delta":
			delta := event.AsContentBlockDelta().Delta
			switch delta.Type {
			case "text_delta":
				if delta.Text != "" {
					if !emit(model.Chunk{TextDelta: delta.Text}) {
						return ctx.Err()
					}
				}
			case "thinking_delta":
				if delta.Thinking != "" {
					if !emit(model.Chunk{ReasoningDelta: delta.Thinking}) {
						return ctx.Err()
					}
				}
			case "input_json_delta":
				if delta.PartialJSON != "" && currentCall != nil {
					currentInput.WriteString(delta.PartialJSON)
					if !emit(model.Chunk{ToolCallDelta: &model.ToolCallDelta{ID: currentCall.ID, ArgsDelta: delta.PartialJSON}}) {
						return ctx.Err()
					}
				}
			}

		case "content_block_stop":
			if currentCall != nil {
				args := currentInput.String()
				if args == "" {
					args = "{}"
				}
				currentCall.Arguments = json.RawMessage(args)
				if !emit(model.Chunk{ToolCallDone: currentCall}) {
					return ctx.Err()
				}
				currentCall = nil
			}

		case "message_delta":
			messageDelta := event.AsMessageDelta()
			if messageDelta.Usage.OutputTokens > 0 {
				usage.CompletionTokens = int(messageDelta.Usage.OutputTokens)
			}
			switch messageDelta.Delta.StopReason {
			case "tool_use":
				finishReason = "tool_calls"
			case "max_tokens":
				finishReason = "length"
			case "end_turn", "stop_sequence":
				finishReason = "stop"
			}

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			emit(model.Chunk{Usage: &usage})
			emit(model.Chunk{FinishReason: finishReason})
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		return fmt.Errorf("anthropic api error: %w", err)
	}
	return nil
}

// buildMessages converts normalized history to Anthropic message format.
// Tool results belong in user messages; consecutive results for the same
// assistant turn are grouped into a single user message.
func (m *Model) buildMessages(messages []model.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	var pendingResults []anthropic.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			out = append(out, anthropic.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, msg := range messages {
		switch msg.Role {
		case model.RoleTool:
			pendingResults = append(pendingResults, anthropic.NewToolResultBlock(
				msg.ToolCallID, toolResultText(msg.Content), msg.IsError))

		case model.RoleAssistant:
			flushResults()
			var content []anthropic.ContentBlockParamUnion
			if msg.Text != "" {
				content = append(content, anthropic.NewTextBlock(msg.Text))
			}
			for _, call := range msg.ToolCalls {
				var input any
				if len(call.Arguments) > 0 {
					if err := json.Unmarshal(call.Arguments, &input); err != nil {
						input = string(call.Arguments)
					}
				}
				content = append(content, anthropic.NewToolUseBlock(call.ID, input, call.Name))
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}

		default:
			flushResults()
			if msg.Text != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Text)))
			}
		}
	}
	flushResults()
	return out
}

// buildTools converts normalized tool definitions to Anthropic tool format
func (m *Model) buildTools(tools []model.ToolDefinition) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, len(tools))

	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Type: constant.Object("object"),
		}

		if tool.Parameters != nil {
			if properties, exists := tool.Parameters["properties"]; exists {
				inputSchema.Properties = properties
			}
			if required, exists := tool.Parameters["required"]; exists {
				if reqSlice, ok := required.([]string); ok {
					inputSchema.Required = reqSlice
				} else if reqInterface, ok := required.([]any); ok {
					var reqStrings []string
					for _, r := range reqInterface {
						if s, ok := r.(string); ok {
							reqStrings = append(reqStrings, s)
						}
					}
					inputSchema.Required = reqStrings
				}
			}
		}

		t := anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			t.OfTool.Description = anthropic.String(tool.Description)
		}
		anthropicTools[i] = t
	}

	return anthropicTools
}

func (m *Model) resolveModel(override string) anthropic.Model {
	if override != "" {
		return anthropic.Model(override)
	}
	return m.opts.Model
}

func (m *Model) resolveMaxTokens(params core.GenerationParams) int64 {
	if params.MaxTokens > 0 {
		return params.MaxTokens
	}
	return m.opts.MaxTokens
}

func toolResultText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", v)
	}
}

// Info returns metadata describing this Anthropic model implementation.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          string(m.opts.Model),
		Provider:      "anthropic",
		SupportsTools: true,
	}
}
