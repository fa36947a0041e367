package mcp

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentrelay/core"
	"github.com/hupe1980/agentrelay/logging"
	"github.com/hupe1980/agentrelay/retry"
)

// invalidToolNameChars matches every character the model providers reject
// in tool names.
var invalidToolNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeToolName replaces characters that providers reject in tool names
// with underscores. "fs.read" becomes "fs_read".
func SanitizeToolName(name string) string {
	return invalidToolNameChars.ReplaceAllString(name, "_")
}

// CatalogEntry is one server tool as exposed to agents. ExposedName is the
// sanitized, server-tagged name the model sees; OriginalName is what the
// server advertised and what tools/call must receive.
type CatalogEntry struct {
	ServerName   string
	OriginalName string
	ExposedName  string
	Description  string
	InputSchema  map[string]any
}

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	// Logger used for connection lifecycle and eviction messages.
	Logger logging.Logger

	// Retry wraps server connect and tools/list calls.
	Retry retry.Config

	// newClient overrides transport construction in tests.
	newClient func(config ServerConfig, logger logging.Logger) (Client, error)
}

// Manager owns a pool of MCP clients keyed by server name. Servers marked
// lazy connect on first use; everything else connects during Initialize.
// A crashed server is evicted from the pool together with its cached tool
// catalog so a later call can reconnect cleanly.
type Manager struct {
	logger logging.Logger
	rc     retry.Config
	create func(config ServerConfig, logger logging.Logger) (Client, error)

	mu      sync.Mutex
	configs map[string]ServerConfig
	clients map[string]Client
	catalog map[string][]CatalogEntry
	closed  bool
}

// NewManager creates a manager for the given server configurations.
func NewManager(servers []ServerConfig, optFns ...func(o *ManagerOptions)) (*Manager, error) {
	opts := ManagerOptions{
		Logger: logging.NewNoOpLogger(),
		Retry:  retry.DefaultConfig(),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.newClient == nil {
		opts.newClient = NewClient
	}

	m := &Manager{
		logger:  opts.Logger,
		rc:      opts.Retry,
		create:  opts.newClient,
		configs: make(map[string]ServerConfig, len(servers)),
		clients: make(map[string]Client),
		catalog: make(map[string][]CatalogEntry),
	}
	for _, cfg := range servers {
		if cfg.Name == "" {
			return nil, fmt.Errorf("mcp: server config without a name")
		}
		if _, exists := m.configs[cfg.Name]; exists {
			return nil, fmt.Errorf("mcp: duplicate server name %q", cfg.Name)
		}
		m.configs[cfg.Name] = cfg
	}
	return m, nil
}

// Initialize connects every non-lazy server and caches its tool catalog.
// A server that fails to connect is reported but does not abort the rest.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	var eager []ServerConfig
	for _, cfg := range m.configs {
		if !cfg.Lazy {
			eager = append(eager, cfg)
		}
	}
	m.mu.Unlock()

	sort.Slice(eager, func(i, j int) bool { return eager[i].Name < eager[j].Name })

	var errs []string
	for _, cfg := range eager {
		if _, err := m.ensureConnected(ctx, cfg.Name); err != nil {
			m.logger.Warn("mcp server failed to initialize", "server", cfg.Name, "error", err)
			errs = append(errs, fmt.Sprintf("%s: %v", cfg.Name, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("mcp: %d server(s) failed to initialize: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// ensureConnected returns a live client for the named server, connecting
// and listing tools on first use. Connect and tools/list run under retry.
func (m *Manager) ensureConnected(ctx context.Context, serverName string) (Client, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("mcp: manager is shut down")
	}
	if client, ok := m.clients[serverName]; ok && client.Connected() {
		m.mu.Unlock()
		return client, nil
	}
	cfg, ok := m.configs[serverName]
	if !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("mcp: unknown server %q", serverName)
	}
	m.mu.Unlock()

	client, err := m.create(cfg, m.logger)
	if err != nil {
		return nil, fmt.Errorf("mcp: client %q: %w", serverName, err)
	}
	if sc, ok := client.(*stdioClient); ok {
		sc.setOnExit(func() { m.evict(serverName) })
	}

	err = retry.Do(ctx, m.rc, func() error {
		return client.Connect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("mcp: connect %q: %w", serverName, err)
	}

	tools, err := retry.DoWithValue(ctx, m.rc, func() ([]ToolInfo, error) {
		return client.ListTools(ctx)
	})
	if err != nil {
		_ = client.Disconnect()
		return nil, fmt.Errorf("mcp: list tools %q: %w", serverName, err)
	}

	entries := make([]CatalogEntry, 0, len(tools))
	for _, t := range tools {
		entries = append(entries, CatalogEntry{
			ServerName:   serverName,
			OriginalName: t.Name,
			ExposedName:  serverName + "__" + SanitizeToolName(t.Name),
			Description:  t.Description,
			InputSchema:  t.InputSchema,
		})
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		_ = client.Disconnect()
		return nil, fmt.Errorf("mcp: manager is shut down")
	}
	if existing, ok := m.clients[serverName]; ok && existing.Connected() {
		_ = client.Disconnect()
		return existing, nil
	}
	m.clients[serverName] = client
	m.catalog[serverName] = entries
	m.logger.Info("mcp server ready", "server", serverName, "tools", len(entries))
	return client, nil
}

// Tools returns the catalog entries for the named servers, connecting lazy
// servers as needed. Unknown server names fail; a server that cannot be
// reached fails the whole call so agents never see a partial tool set.
func (m *Manager) Tools(ctx context.Context, serverNames []string) ([]CatalogEntry, error) {
	var out []CatalogEntry
	for _, name := range serverNames {
		if _, err := m.ensureConnected(ctx, name); err != nil {
			return nil, err
		}
		m.mu.Lock()
		out = append(out, m.catalog[name]...)
		m.mu.Unlock()
	}
	return out, nil
}

// CallTool invokes a tool by its catalog entry, routing the server's
// original tool name over the wire.
func (m *Manager) CallTool(ctx context.Context, entry CatalogEntry, args map[string]any) (any, error) {
	client, err := m.ensureConnected(ctx, entry.ServerName)
	if err != nil {
		return nil, err
	}
	result, err := client.CallTool(ctx, entry.OriginalName, args)
	if err != nil {
		var cerr *core.Error
		if errors.As(err, &cerr) {
			return nil, err
		}
		return nil, fmt.Errorf("mcp: call %q on %q: %w", entry.OriginalName, entry.ServerName, err)
	}
	return result, nil
}

// evict drops a dead client and its cached catalog so the next use
// reconnects from scratch.
func (m *Manager) evict(serverName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clients, serverName)
	delete(m.catalog, serverName)
	m.logger.Warn("mcp server evicted from pool", "server", serverName)
}

// Shutdown disconnects every client. Safe to call more than once.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	clients := make([]Client, 0, len(m.clients))
	for _, c := range m.clients {
		clients = append(clients, c)
	}
	m.clients = make(map[string]Client)
	m.catalog = make(map[string][]CatalogEntry)
	m.mu.Unlock()

	for _, c := range clients {
		_ = c.Disconnect()
	}
}
