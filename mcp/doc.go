// Package mcp connects the runtime to external tool servers speaking the
// Model Context Protocol over JSON-RPC 2.0.
//
// Two transports are supported: stdio (a spawned subprocess exchanging
// newline-delimited messages over its standard streams) and http (a remote
// endpoint receiving POSTed requests). The Manager pools clients by server
// name, caches each server's tool catalog and exposes advertised tools
// under sanitized, server-tagged names so models from any provider can
// call them.
//
// Usage:
//
//	mgr, err := mcp.NewManager([]mcp.ServerConfig{{
//		Name:    "files",
//		Command: "mcp-fs-server",
//	}})
//	if err != nil {
//		return err
//	}
//	defer mgr.Shutdown()
//
//	tools, err := mgr.Tools(ctx, []string{"files"})
package mcp
