package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/agentrelay/logging"
)

// ErrNotConnected is returned when a request is issued against a client
// whose transport is not (or no longer) established.
var ErrNotConnected = errors.New("mcp: not connected")

// Client is the logical contract both transports satisfy. One client serves
// exactly one external tool server.
type Client interface {
	// Connect establishes the transport and performs the initialize /
	// initialized handshake.
	Connect(ctx context.Context) error

	// ListTools fetches the server's tool catalog.
	ListTools(ctx context.Context) ([]ToolInfo, error)

	// CallTool invokes a tool by its original (unsanitized) name and
	// unwraps the content-block result.
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)

	// Disconnect tears the transport down. Idempotent.
	Disconnect() error

	// Connected reports whether the transport is currently established.
	Connected() bool
}

// NewClient builds a client for the configured transport kind.
func NewClient(config ServerConfig, logger logging.Logger) (Client, error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	switch config.Transport {
	case TransportStdio, "":
		return newStdioClient(config, logger), nil
	case TransportHTTP:
		return newHTTPClient(config, logger), nil
	default:
		return nil, fmt.Errorf("mcp: unsupported transport %q", config.Transport)
	}
}

// unwrapToolResult flattens a content-block result into a Go value: text
// blocks are concatenated and opportunistically parsed as JSON, non-text
// blocks are represented by a short placeholder.
func unwrapToolResult(result *ToolCallResult) (any, error) {
	var parts []string
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			parts = append(parts, block.Text)
		default:
			parts = append(parts, "["+block.Type+"]")
		}
	}
	text := strings.Join(parts, "\n")

	if result.IsError {
		return nil, fmt.Errorf("mcp: tool reported error: %s", text)
	}

	if looksLikeJSON(text) {
		var parsed any
		if err := json.Unmarshal([]byte(text), &parsed); err == nil {
			return parsed, nil
		}
	}
	return text, nil
}

func looksLikeJSON(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	switch s[0] {
	case '{', '[', '"':
		return true
	}
	return s == "true" || s == "false" || s == "null" ||
		(s[0] >= '0' && s[0] <= '9') || s[0] == '-'
}
