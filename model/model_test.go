package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, chunkCh <-chan Chunk, errCh <-chan error) []Chunk {
	t.Helper()
	var chunks []Chunk
	for chunk := range chunkCh {
		chunks = append(chunks, chunk)
	}
	require.NoError(t, <-errCh)
	return chunks
}

func TestMockModelEchoesWithoutScript(t *testing.T) {
	m := NewMockModel("test-model", "mock")

	chunkCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "hello"}},
	})
	chunks := collect(t, chunkCh, errCh)

	require.Len(t, chunks, 2)
	assert.Equal(t, "Mock response to: hello", chunks[0].TextDelta)
	assert.Equal(t, "stop", chunks[1].FinishReason)
}

func TestMockModelScriptedTurns(t *testing.T) {
	m := NewMockModel("test-model", "mock")
	m.AddToolCallTurn("call_1", "get_weather", `{"location":"Berlin"}`)
	m.AddTextTurn("It is sunny.")

	chunkCh, errCh := m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "weather?"}},
	})
	chunks := collect(t, chunkCh, errCh)

	require.Len(t, chunks, 4)
	assert.Equal(t, "get_weather", chunks[0].ToolCallStart.Name)
	assert.Equal(t, "call_1", chunks[1].ToolCallDelta.ID)
	assert.JSONEq(t, `{"location":"Berlin"}`, string(chunks[2].ToolCallDone.Arguments))
	assert.Equal(t, "tool_calls", chunks[3].FinishReason)

	chunkCh, errCh = m.Generate(context.Background(), Request{
		Messages: []Message{{Role: RoleUser, Text: "weather?"}},
	})
	chunks = collect(t, chunkCh, errCh)
	require.Len(t, chunks, 2)
	assert.Equal(t, "It is sunny.", chunks[0].TextDelta)

	assert.Len(t, m.Requests(), 2)
}
