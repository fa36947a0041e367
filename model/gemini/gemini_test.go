package gemini

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/hupe1980/agentrelay/model"
)

func TestEmitChunkDeliversToReader(t *testing.T) {
	out := make(chan model.Chunk, 1)
	ok := emitChunk(context.Background(), out, model.Chunk{TextDelta: "hi"})
	require.True(t, ok)
	assert.Equal(t, "hi", (<-out).TextDelta)
}

func TestEmitChunkAbortsWhenConsumerGone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := make(chan model.Chunk) // nobody reading
	done := make(chan bool, 1)
	go func() {
		done <- emitChunk(ctx, out, model.Chunk{TextDelta: "stranded"})
	}()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("emitChunk blocked on an abandoned stream")
	}
}

func TestToSchemaConversion(t *testing.T) {
	schema := toSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"city": map[string]any{
				"type":        "string",
				"description": "City name",
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []any{"celsius", "fahrenheit"},
			},
		},
		"required": []string{"city"},
	})

	require.NotNil(t, schema)
	assert.Equal(t, genai.TypeObject, schema.Type)
	assert.Equal(t, []string{"city"}, schema.Required)
	assert.Equal(t, "City name", schema.Properties["city"].Description)
	assert.Equal(t, []string{"celsius", "fahrenheit"}, schema.Properties["unit"].Enum)
}

func TestBuildContentsRoundTrip(t *testing.T) {
	m := &Model{opts: Options{Model: "gemini-2.0-flash"}}

	contents := m.buildContents([]model.Message{
		{Role: model.RoleUser, Text: "what is the weather?"},
		{Role: model.RoleAssistant, ToolCalls: []model.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: []byte(`{"city":"Berlin"}`)},
		}},
		{Role: model.RoleTool, ToolCallID: "call_1", ToolName: "get_weather", Content: map[string]any{"temp": 21}},
	})

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "get_weather", contents[1].Parts[0].FunctionCall.Name)
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "call_1", contents[2].Parts[0].FunctionResponse.ID)
}
