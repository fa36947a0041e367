package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// httpClient talks JSON-RPC 2.0 to a remote MCP server over HTTP POST.
// Each request is a single round trip; configured headers are attached
// to every call so bearer tokens and API keys pass through unchanged.
type httpClient struct {
	config ServerConfig
	logger logging.Logger

	client    *http.Client
	nextID    atomic.Int64
	connected atomic.Bool
}

func newHTTPClient(config ServerConfig, logger logging.Logger) *httpClient {
	return &httpClient{
		config: config,
		logger: logger,
		client: &http.Client{},
	}
}

// Connect performs the initialize handshake against the remote endpoint.
func (c *httpClient) Connect(ctx context.Context) error {
	if c.config.URL == "" {
		return fmt.Errorf("mcp: server %q: url is required for http transport", c.config.Name)
	}
	c.connected.Store(true)

	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	}
	if _, err := c.call(ctx, methodInitialize, params); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("mcp: initialize %q: %w", c.config.Name, err)
	}
	if err := c.notify(ctx, notifyInitialized, nil); err != nil {
		c.connected.Store(false)
		return fmt.Errorf("mcp: initialized notification %q: %w", c.config.Name, err)
	}
	c.logger.Debug("mcp server connected", "server", c.config.Name, "url", c.config.URL)
	return nil
}

// ListTools implements Client.
func (c *httpClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
	raw, err := c.call(ctx, methodToolsList, nil)
	if err != nil {
		return nil, err
	}
	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: parse tools/list result: %w", err)
	}
	return result.Tools, nil
}

// CallTool implements Client.
func (c *httpClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := c.call(ctx, methodToolsCall, toolCallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	var result ToolCallResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("mcp: parse tools/call result: %w", err)
	}
	return unwrapToolResult(&result)
}

// Disconnect implements Client. Idempotent.
func (c *httpClient) Disconnect() error {
	c.connected.Store(false)
	c.client.CloseIdleConnections()
	return nil
}

// Connected implements Client.
func (c *httpClient) Connected() bool { return c.connected.Load() }

func (c *httpClient) requestTimeout() time.Duration {
	if c.config.RequestTimeout > 0 {
		return c.config.RequestTimeout
	}
	return 30 * time.Second
}

func (c *httpClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	id := c.nextID.Add(1)
	body, err := c.roundTrip(ctx, request{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		return nil, err
	}

	var resp response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("mcp: parse response from %q: %w", c.config.Name, err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *httpClient) notify(ctx context.Context, method string, params any) error {
	_, err := c.roundTrip(ctx, notification{JSONRPC: "2.0", Method: method, Params: params})
	return err
}

func (c *httpClient) roundTrip(ctx context.Context, msg any) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal message: %w", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.URL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("mcp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() == nil && reqCtx.Err() == context.DeadlineExceeded {
			return nil, core.Errorf(core.CodeMCPTimeout,
				"request to server %q timed out after %s", c.config.Name, c.requestTimeout())
		}
		return nil, fmt.Errorf("mcp: request to %q: %w", c.config.Name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("mcp: read response from %q: %w", c.config.Name, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, &core.StatusError{
			Status: resp.StatusCode,
			Err:    fmt.Errorf("mcp: server %q returned status %d", c.config.Name, resp.StatusCode),
		}
	}
	return body, nil
}
