package tool

import (
	"context"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/mcp"
)

// ServerTool exposes one tool advertised by an external MCP server as a
// core.Tool. The model sees the sanitized, server-tagged name; the wire call
// carries the server's original tool name.
type ServerTool struct {
	manager *mcp.Manager
	entry   mcp.CatalogEntry
}

// NewServerTool wraps a catalog entry from the MCP manager.
func NewServerTool(manager *mcp.Manager, entry mcp.CatalogEntry) *ServerTool {
	return &ServerTool{manager: manager, entry: entry}
}

// ServerTools wraps every catalog entry advertised by the named servers.
func ServerTools(ctx context.Context, manager *mcp.Manager, serverNames []string) ([]core.Tool, error) {
	entries, err := manager.Tools(ctx, serverNames)
	if err != nil {
		return nil, err
	}
	tools := make([]core.Tool, len(entries))
	for i, entry := range entries {
		tools[i] = NewServerTool(manager, entry)
	}
	return tools, nil
}

// Name returns the sanitized, server-tagged tool name.
func (t *ServerTool) Name() string { return t.entry.ExposedName }

// Description returns the description the server advertised.
func (t *ServerTool) Description() string { return t.entry.Description }

// InputSchema returns the schema the server advertised.
func (t *ServerTool) InputSchema() map[string]any {
	if t.entry.InputSchema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return t.entry.InputSchema
}

// ServerName returns the MCP server this tool belongs to.
func (t *ServerTool) ServerName() string { return t.entry.ServerName }

// OriginalName returns the tool name as the server advertised it.
func (t *ServerTool) OriginalName() string { return t.entry.OriginalName }

// Execute routes the call through the manager using the original tool name.
func (t *ServerTool) Execute(ctx context.Context, toolCtx *core.ToolContext, args map[string]any) (any, error) {
	result, err := t.manager.CallTool(ctx, t.entry, args)
	if err != nil {
		return nil, err
	}
	return result, nil
}
