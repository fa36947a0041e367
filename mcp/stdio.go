package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
)

// stdioClient speaks newline-delimited JSON-RPC 2.0 to a spawned subprocess
// over its standard streams. Incoming bytes are buffered and split on
// newlines; each complete line resolves a pending request by id or is
// treated as a server-initiated notification.
type stdioClient struct {
	config ServerConfig
	logger logging.Logger

	process *exec.Cmd
	stdin   io.WriteCloser

	writeMu   sync.Mutex
	pending   map[int64]chan *response
	pendingMu sync.Mutex
	nextID    atomic.Int64

	connected atomic.Bool
	stopChan  chan struct{}
	onExit    func()
	wg        sync.WaitGroup
}

func newStdioClient(config ServerConfig, logger logging.Logger) *stdioClient {
	return &stdioClient{
		config:   config,
		logger:   logger,
		pending:  make(map[int64]chan *response),
		stopChan: make(chan struct{}),
	}
}

// setOnExit registers the manager's eviction hook, invoked once when the
// subprocess exits or the client disconnects.
func (c *stdioClient) setOnExit(fn func()) { c.onExit = fn }

// Connect spawns the subprocess, starts the read loop and performs the
// initialize / initialized handshake.
func (c *stdioClient) Connect(ctx context.Context) error {
	if c.config.Command == "" {
		return fmt.Errorf("mcp: server %q: command is required for stdio transport", c.config.Name)
	}

	c.process = exec.Command(c.config.Command, c.config.Args...)
	c.process.Env = os.Environ()
	for k, v := range c.config.Env {
		c.process.Env = append(c.process.Env, k+"="+v)
	}

	stdin, err := c.process.StdinPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	c.stdin = stdin

	stdout, err := c.process.StdoutPipe()
	if err != nil {
		return fmt.Errorf("mcp: stdout pipe: %w", err)
	}

	stderr, _ := c.process.StderrPipe()

	if err := c.process.Start(); err != nil {
		return fmt.Errorf("mcp: start %q: %w", c.config.Command, err)
	}

	c.connected.Store(true)
	c.logger.Debug("mcp server process started", "server", c.config.Name, "command", c.config.Command)

	c.wg.Add(1)
	go c.readLoop(stdout)

	if stderr != nil {
		c.wg.Add(1)
		go c.drainStderr(stderr)
	}

	go c.waitForExit()

	if err := c.handshake(ctx); err != nil {
		_ = c.Disconnect()
		return err
	}
	return nil
}

func (c *stdioClient) handshake(ctx context.Context) error {
	params := initializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: clientName, Version: clientVersion},
	}
	if _, err := c.call(ctx, methodInitialize, params); err != nil {
		return fmt.Errorf("mcp: initialize %q: %w", c.config.Name, err)
	}
	if err := c.notify(notifyInitialized, nil); err != nil {
		return fmt.Errorf("mcp: initialized notification %q: %w", c.config.Name, err)
	}
	return nil
}

// ListTools implements Client.
func (c *stdioClient) ListTools(ctx context.Context) ([]ToolInfo, error) {
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
func (c *stdioClient) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
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
func (c *stdioClient) Disconnect() error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	close(c.stopChan)
	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.process != nil && c.process.Process != nil {
		_ = c.process.Process.Kill()
	}
	c.failPending()
	return nil
}

// Connected implements Client.
func (c *stdioClient) Connected() bool { return c.connected.Load() }

func (c *stdioClient) requestTimeout() time.Duration {
	if c.config.RequestTimeout > 0 {
		return c.config.RequestTimeout
	}
	return 30 * time.Second
}

// call sends one request and waits for its matching response. A request
// that is not answered within the timeout fails with a coded MCP timeout.
func (c *stdioClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	id := c.nextID.Add(1)
	respChan := make(chan *response, 1)

	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeLine(request{JSONRPC: "2.0", ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.requestTimeout())
	defer timer.Stop()

	select {
	case resp := <-respChan:
		if resp == nil {
			return nil, ErrNotConnected
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		return nil, core.Errorf(core.CodeMCPTimeout,
			"request %q to server %q timed out after %s", method, c.config.Name, c.requestTimeout())
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.stopChan:
		return nil, ErrNotConnected
	}
}

func (c *stdioClient) notify(method string, params any) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}
	return c.writeLine(notification{JSONRPC: "2.0", Method: method, Params: params})
}

func (c *stdioClient) writeLine(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mcp: marshal message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.stdin.Write(append(data, '\n'))
	if err != nil {
		return fmt.Errorf("mcp: write to server %q: %w", c.config.Name, err)
	}
	return nil
}

// readLoop splits stdout into newline-delimited JSON-RPC messages. Two
// responses arriving in one read still resolve both pending requests.
func (c *stdioClient) readLoop(stdout io.Reader) {
	defer c.wg.Done()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		select {
		case <-c.stopChan:
			return
		default:
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		c.dispatchLine(line)
	}
}

func (c *stdioClient) dispatchLine(line []byte) {
	var resp response
	if err := json.Unmarshal(line, &resp); err != nil {
		c.logger.Warn("mcp: dropped unparsable line", "server", c.config.Name, "error", err)
		return
	}

	if resp.ID != nil {
		c.pendingMu.Lock()
		ch, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()
		if ok {
			ch <- &resp
		}
		return
	}

	if resp.Method != "" {
		c.logger.Debug("mcp: server notification", "server", c.config.Name, "method", resp.Method)
	}
}

func (c *stdioClient) drainStderr(stderr io.Reader) {
	defer c.wg.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			c.logger.Debug("mcp: server stderr", "server", c.config.Name, "line", line)
		}
	}
}

// waitForExit observes subprocess termination and triggers pool eviction.
func (c *stdioClient) waitForExit() {
	err := c.process.Wait()
	if c.connected.CompareAndSwap(true, false) {
		c.logger.Warn("mcp: server process exited", "server", c.config.Name, "error", err)
		close(c.stopChan)
		c.failPending()
		if c.onExit != nil {
			c.onExit()
		}
	}
}

func (c *stdioClient) failPending() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		select {
		case ch <- nil:
		default:
		}
		delete(c.pending, id)
	}
}
