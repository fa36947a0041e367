// Package mcp implements the external tool protocol layer: JSON-RPC 2.0
// clients for subprocess (newline-delimited over standard streams) and
// remote HTTP servers, and a manager owning the client pool and per-server
// tool catalogs.
package mcp

import (
	"encoding/json"
	"time"
)

// Protocol constants.
const (
	protocolVersion = "2025-03-26"
	clientName      = "agentrelay"
	clientVersion   = "0.1.0"

	methodInitialize  = "initialize"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
	notifyInitialized = "notifications/initialized"
)

// request is a JSON-RPC 2.0 request envelope.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// notification is a JSON-RPC 2.0 notification envelope (no id).
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response envelope.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *RPCError) Error() string { return e.Message }

// ToolInfo describes one tool advertised by a server.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// toolsListResult is the tools/list response payload.
type toolsListResult struct {
	Tools []ToolInfo `json:"tools"`
}

// toolCallParams is the tools/call request payload.
type toolCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// ContentBlock is one element of a tool call result.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// ToolCallResult is the tools/call response payload.
type ToolCallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// initializeParams is the initialize request payload.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// TransportKind selects how a server is reached.
type TransportKind string

const (
	// TransportStdio spawns a subprocess speaking newline-delimited
	// JSON-RPC over its standard streams.
	TransportStdio TransportKind = "stdio"
	// TransportHTTP speaks the same RPC semantics to a remote endpoint
	// over a persistent HTTP connection.
	TransportHTTP TransportKind = "http"
)

// ServerConfig describes one external tool server.
type ServerConfig struct {
	// Name is the server's unique pool key, also used to tag tool names.
	Name string `yaml:"name"`
	// Transport selects stdio (default) or http.
	Transport TransportKind `yaml:"transport"`

	// Subprocess settings (stdio).
	Command string            `yaml:"command"`
	Args    []string          `yaml:"args"`
	Env     map[string]string `yaml:"env"`

	// Remote settings (http).
	URL     string            `yaml:"url"`
	Headers map[string]string `yaml:"headers"`

	// Lazy defers connection until the first tool call instead of
	// connecting during manager initialization.
	Lazy bool `yaml:"lazy"`

	// RequestTimeout bounds each request round-trip. Zero means the
	// manager default.
	RequestTimeout time.Duration `yaml:"request_timeout"`
}
