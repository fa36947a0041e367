package mcp

import (
	"bufio"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/agentrelay/logging"
)

func TestSanitizeToolName(t *testing.T) {
	assert.Equal(t, "fs_read", SanitizeToolName("fs.read"))
	assert.Equal(t, "get-weather", SanitizeToolName("get-weather"))
	assert.Equal(t, "a_b_c", SanitizeToolName("a/b:c"))
	assert.Equal(t, "plain_tool_1", SanitizeToolName("plain_tool_1"))
}

func TestUnwrapToolResult(t *testing.T) {
	t.Run("single text block", func(t *testing.T) {
		result, err := unwrapToolResult(&ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: "hello"}},
		})
		require.NoError(t, err)
		assert.Equal(t, "hello", result)
	})

	t.Run("json text is parsed", func(t *testing.T) {
		result, err := unwrapToolResult(&ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: `{"temp":21}`}},
		})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"temp": float64(21)}, result)
	})

	t.Run("multiple blocks joined", func(t *testing.T) {
		result, err := unwrapToolResult(&ToolCallResult{
			Content: []ContentBlock{
				{Type: "text", Text: "part one"},
				{Type: "image", MimeType: "image/png"},
			},
		})
		require.NoError(t, err)
		assert.Contains(t, result.(string), "part one")
		assert.Contains(t, result.(string), "[image]")
	})

	t.Run("isError becomes an error", func(t *testing.T) {
		_, err := unwrapToolResult(&ToolCallResult{
			Content: []ContentBlock{{Type: "text", Text: "file not found"}},
			IsError: true,
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "file not found")
	})
}

// Two responses arriving inside a single read must both resolve their
// pending requests.
func TestStdioClientSplitsFrames(t *testing.T) {
	c := newStdioClient(ServerConfig{Name: "test"}, logging.NewNoOpLogger())

	ch1 := make(chan *response, 1)
	ch2 := make(chan *response, 1)
	c.pending[1] = ch1
	c.pending[2] = ch2

	input := `{"jsonrpc":"2.0","id":1,"result":{"a":1}}` + "\n" +
		`{"jsonrpc":"2.0","id":2,"result":{"b":2}}` + "\n"

	scanner := bufio.NewScanner(strings.NewReader(input))
	for scanner.Scan() {
		c.dispatchLine(scanner.Bytes())
	}

	resp1 := <-ch1
	resp2 := <-ch2
	require.NotNil(t, resp1)
	require.NotNil(t, resp2)
	assert.JSONEq(t, `{"a":1}`, string(resp1.Result))
	assert.JSONEq(t, `{"b":2}`, string(resp2.Result))
}

func TestStdioClientDropsUnparsableLines(t *testing.T) {
	c := newStdioClient(ServerConfig{Name: "test"}, logging.NewNoOpLogger())
	c.dispatchLine([]byte("not json at all"))
	assert.Empty(t, c.pending)
}

type fakeClient struct {
	mu          sync.Mutex
	connected   bool
	connectErrs []error
	tools       []ToolInfo
	calls       []string
	callResult  any
}

func (f *fakeClient) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.connectErrs) > 0 {
		err := f.connectErrs[0]
		f.connectErrs = f.connectErrs[1:]
		if err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	return f.tools, nil
}

func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.callResult, nil
}

func (f *fakeClient) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeClient) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func newTestManager(t *testing.T, fake *fakeClient, servers ...ServerConfig) *Manager {
	t.Helper()
	m, err := NewManager(servers, func(o *ManagerOptions) {
		o.newClient = func(config ServerConfig, logger logging.Logger) (Client, error) {
			return fake, nil
		}
	})
	require.NoError(t, err)
	return m
}

func TestManagerToolNameRoundTrip(t *testing.T) {
	fake := &fakeClient{
		tools:      []ToolInfo{{Name: "fs.read", Description: "read a file"}},
		callResult: "contents",
	}
	m := newTestManager(t, fake, ServerConfig{Name: "files", Lazy: true})

	entries, err := m.Tools(context.Background(), []string{"files"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "files__fs_read", entries[0].ExposedName)
	assert.Equal(t, "fs.read", entries[0].OriginalName)

	result, err := m.CallTool(context.Background(), entries[0], map[string]any{"path": "/tmp/x"})
	require.NoError(t, err)
	assert.Equal(t, "contents", result)
	assert.Equal(t, []string{"fs.read"}, fake.calls)
}

func TestManagerLazyConnect(t *testing.T) {
	fake := &fakeClient{tools: []ToolInfo{{Name: "ping"}}}
	m := newTestManager(t, fake, ServerConfig{Name: "lazy", Lazy: true})

	require.NoError(t, m.Initialize(context.Background()))
	assert.False(t, fake.Connected())

	_, err := m.Tools(context.Background(), []string{"lazy"})
	require.NoError(t, err)
	assert.True(t, fake.Connected())
}

func TestManagerUnknownServer(t *testing.T) {
	m := newTestManager(t, &fakeClient{}, ServerConfig{Name: "known"})
	_, err := m.Tools(context.Background(), []string{"missing"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown server")
}

func TestManagerEviction(t *testing.T) {
	fake := &fakeClient{tools: []ToolInfo{{Name: "ping"}}}
	m := newTestManager(t, fake, ServerConfig{Name: "flaky", Lazy: true})

	_, err := m.Tools(context.Background(), []string{"flaky"})
	require.NoError(t, err)

	m.evict("flaky")
	fake.mu.Lock()
	fake.connected = false
	fake.mu.Unlock()

	entries, err := m.Tools(context.Background(), []string{"flaky"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, fake.Connected())
}

func TestManagerShutdownIdempotent(t *testing.T) {
	fake := &fakeClient{tools: []ToolInfo{{Name: "ping"}}}
	m := newTestManager(t, fake, ServerConfig{Name: "srv", Lazy: true})

	_, err := m.Tools(context.Background(), []string{"srv"})
	require.NoError(t, err)

	m.Shutdown()
	assert.False(t, fake.Connected())
	m.Shutdown()

	_, err = m.Tools(context.Background(), []string{"srv"})
	require.Error(t, err)
}

func TestManagerSurfacesUnsupportedTransport(t *testing.T) {
	m, err := NewManager([]ServerConfig{{Name: "bad", Transport: "smoke-signal", Lazy: true}})
	require.NoError(t, err)

	_, err = m.Tools(context.Background(), []string{"bad"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported transport")
}

func TestManagerRejectsDuplicateNames(t *testing.T) {
	_, err := NewManager([]ServerConfig{{Name: "dup"}, {Name: "dup"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}
