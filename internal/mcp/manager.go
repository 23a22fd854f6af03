// Package mcp exposes tools served by external MCP servers through the tool registry.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/nextlevelbuilder/jobagent/internal/tools"
)

const (
	clientName    = "jobagent"
	clientVersion = "1.0.0"

	initTimeout = 30 * time.Second
)

// ServerConfig declares one stdio MCP server.
type ServerConfig struct {
	Name       string            `json:"name"`
	Command    string            `json:"command"`
	Args       []string          `json:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty"`
	Prefix     string            `json:"prefix,omitempty"`     // registered as "{prefix}__{tool}"
	TimeoutSec int               `json:"timeoutSec,omitempty"` // per call, default 60
	Disabled   bool              `json:"disabled,omitempty"`
}

type serverConn struct {
	cfg       ServerConfig
	client    *mcpclient.Client
	tools     []string
	connected atomic.Bool
}

// Manager connects MCP servers and keeps their tools registered.
type Manager struct {
	registry *tools.Registry

	mu      sync.Mutex
	servers map[string]*serverConn

	// dial opens the client for a server; replaced in tests.
	dial func(ctx context.Context, cfg ServerConfig) (*mcpclient.Client, error)
}

func NewManager(registry *tools.Registry) *Manager {
	return &Manager{
		registry: registry,
		servers:  make(map[string]*serverConn),
		dial:     dialStdio,
	}
}

func dialStdio(_ context.Context, cfg ServerConfig) (*mcpclient.Client, error) {
	return mcpclient.NewStdioMCPClient(cfg.Command, envList(cfg.Env), cfg.Args...)
}

// Start connects every enabled server. A server that fails to connect is
// skipped; the combined error lists all failures.
func (m *Manager) Start(ctx context.Context, servers []ServerConfig) error {
	var errs []error
	for _, cfg := range servers {
		if cfg.Disabled {
			slog.Debug("mcp: server disabled", "server", cfg.Name)
			continue
		}
		if err := m.AddServer(ctx, cfg); err != nil {
			slog.Warn("mcp: server failed to start", "server", cfg.Name, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddServer connects one server and registers its tools. Tools whose names
// collide with an existing registration are skipped.
func (m *Manager) AddServer(ctx context.Context, cfg ServerConfig) error {
	if cfg.Name == "" {
		return fmt.Errorf("mcp server name is required")
	}

	m.mu.Lock()
	_, exists := m.servers[cfg.Name]
	m.mu.Unlock()
	if exists {
		return fmt.Errorf("mcp server %q already connected", cfg.Name)
	}

	client, err := m.dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("mcp server %q: connect: %w", cfg.Name, err)
	}

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()

	initReq := mcpgo.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpgo.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcpgo.Implementation{Name: clientName, Version: clientVersion}
	if _, err := client.Initialize(initCtx, initReq); err != nil {
		client.Close()
		return fmt.Errorf("mcp server %q: initialize: %w", cfg.Name, err)
	}

	listed, err := client.ListTools(initCtx, mcpgo.ListToolsRequest{})
	if err != nil {
		client.Close()
		return fmt.Errorf("mcp server %q: list tools: %w", cfg.Name, err)
	}

	conn := &serverConn{cfg: cfg, client: client}
	conn.connected.Store(true)

	for _, t := range listed.Tools {
		bt := NewBridgeTool(cfg.Name, t, client, cfg.Prefix, cfg.TimeoutSec, &conn.connected)
		if err := m.registry.Register(bt); err != nil {
			slog.Warn("mcp: tool not registered", "server", cfg.Name, "tool", bt.Name(), "error", err)
			continue
		}
		conn.tools = append(conn.tools, bt.Name())
	}
	sort.Strings(conn.tools)

	m.mu.Lock()
	m.servers[cfg.Name] = conn
	m.mu.Unlock()

	slog.Info("mcp server connected", "server", cfg.Name, "tools", len(conn.tools))
	return nil
}

// RemoveServer unregisters the server's tools and closes its client.
func (m *Manager) RemoveServer(name string) {
	m.mu.Lock()
	conn, ok := m.servers[name]
	delete(m.servers, name)
	m.mu.Unlock()
	if !ok {
		return
	}
	m.disconnect(conn)
}

func (m *Manager) disconnect(conn *serverConn) {
	conn.connected.Store(false)
	for _, name := range conn.tools {
		m.registry.Unregister(name)
	}
	if err := conn.client.Close(); err != nil {
		slog.Debug("mcp: close failed", "server", conn.cfg.Name, "error", err)
	}
}

// ServerTools returns the registered tool names of a server.
func (m *Manager) ServerTools(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	conn, ok := m.servers[name]
	if !ok {
		return nil
	}
	return append([]string(nil), conn.tools...)
}

// Servers returns the connected server names, sorted.
func (m *Manager) Servers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close disconnects every server.
func (m *Manager) Close() {
	m.mu.Lock()
	conns := m.servers
	m.servers = make(map[string]*serverConn)
	m.mu.Unlock()

	for _, conn := range conns {
		m.disconnect(conn)
	}
}
