// internal/mcp/manager.go
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/json-iterator/go"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/seeclaw/internal/config"
)

var (
	// ErrUnknownServer is returned for a server name missing from mcp.servers.
	ErrUnknownServer = errors.New("unknown MCP server")
	// ErrServerDisabled is returned for a configured server with enabled: false.
	ErrServerDisabled = errors.New("MCP server is disabled")
	// ErrToolFailed wraps a result the server flagged as an error.
	ErrToolFailed = errors.New("MCP tool reported an error")
)

const (
	clientName    = "seeclaw"
	clientVersion = "v1.0.0"
	terminateWait = 3 * time.Second
)

// ToolInfo summarizes a tool exposed by a server.
type ToolInfo struct {
	Server      string `json:"server"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// TransportFactory builds the transport used to reach a server.
type TransportFactory func(ctx context.Context, cfg config.MCPServerConfig) (sdk.Transport, error)

// StdioTransport launches the server command and talks MCP over its stdin/stdout.
func StdioTransport(_ context.Context, cfg config.MCPServerConfig) (sdk.Transport, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("MCP server %q has no command", cfg.Name)
	}
	// The command is not bound to ctx: the session outlives the first call.
	cmd := exec.Command(cfg.Command, cfg.Args...)
	return &sdk.CommandTransport{Command: cmd, TerminateDuration: terminateWait}, nil
}

// Manager owns one client session per configured server. Sessions are opened
// on first use and kept until Close.
type Manager struct {
	client    *sdk.Client
	servers   map[string]config.MCPServerConfig
	transport TransportFactory
	logger    *zap.Logger

	mu       sync.Mutex
	sessions map[string]*sdk.ClientSession
}

// NewManager creates a manager for the configured servers.
func NewManager(cfg config.MCPConfig, logger *zap.Logger) *Manager {
	return NewManagerWithTransport(cfg, StdioTransport, logger)
}

// NewManagerWithTransport is NewManager with a custom transport factory.
func NewManagerWithTransport(cfg config.MCPConfig, transport TransportFactory, logger *zap.Logger) *Manager {
	servers := make(map[string]config.MCPServerConfig, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers[s.Name] = s
	}
	return &Manager{
		client:    sdk.NewClient(&sdk.Implementation{Name: clientName, Version: clientVersion}, nil),
		servers:   servers,
		transport: transport,
		logger:    logger.Named("mcp"),
		sessions:  make(map[string]*sdk.ClientSession),
	}
}

// Servers lists the enabled server names in sorted order.
func (m *Manager) Servers() []string {
	names := make([]string, 0, len(m.servers))
	for name, s := range m.servers {
		if s.IsEnabled() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (m *Manager) session(ctx context.Context, server string) (*sdk.ClientSession, error) {
	cfg, ok := m.servers[server]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownServer, server)
	}
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("%w: %q", ErrServerDisabled, server)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[server]; ok {
		return s, nil
	}

	t, err := m.transport(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s, err := m.client.Connect(ctx, t, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MCP server %q: %w", server, err)
	}
	m.logger.Info("Connected to MCP server.", zap.String("server", server), zap.String("command", cfg.Command))
	m.sessions[server] = s
	return s, nil
}

// drop forgets a session after a transport failure so the next call reconnects.
func (m *Manager) drop(server string, s *sdk.ClientSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[server]; ok && cur == s {
		delete(m.sessions, server)
		_ = s.Close()
	}
}

// CallTool invokes tool on server and renders the result as text.
func (m *Manager) CallTool(ctx context.Context, server, tool string, args map[string]any) (string, error) {
	if tool == "" {
		return "", errors.New("MCP call requires a tool name")
	}
	s, err := m.session(ctx, server)
	if err != nil {
		return "", err
	}
	if args == nil {
		args = map[string]any{}
	}

	m.logger.Debug("Calling MCP tool.", zap.String("server", server), zap.String("tool", tool))
	res, err := s.CallTool(ctx, &sdk.CallToolParams{Name: tool, Arguments: args})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		m.drop(server, s)
		return "", fmt.Errorf("MCP call %s/%s failed: %w", server, tool, err)
	}

	text := renderResult(res)
	if res.IsError {
		return text, fmt.Errorf("%w: %s/%s: %s", ErrToolFailed, server, tool, text)
	}
	return text, nil
}

// ListTools returns the tools exposed by every enabled server. Servers that
// cannot be reached are logged and skipped.
func (m *Manager) ListTools(ctx context.Context) ([]ToolInfo, error) {
	var out []ToolInfo
	var errs []error
	for _, name := range m.Servers() {
		s, err := m.session(ctx, name)
		if err != nil {
			m.logger.Warn("Skipping unreachable MCP server.", zap.String("server", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		params := &sdk.ListToolsParams{}
		for {
			res, err := s.ListTools(ctx, params)
			if err != nil {
				errs = append(errs, fmt.Errorf("listing tools on %q: %w", name, err))
				break
			}
			for _, tool := range res.Tools {
				out = append(out, ToolInfo{Server: name, Name: tool.Name, Description: tool.Description})
			}
			if res.NextCursor == "" {
				break
			}
			params = &sdk.ListToolsParams{Cursor: res.NextCursor}
		}
	}
	if len(out) == 0 && len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

// Close ends every open session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for name, s := range m.sessions {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing MCP session %q: %w", name, err))
		}
		delete(m.sessions, name)
	}
	return errors.Join(errs...)
}

func renderResult(res *sdk.CallToolResult) string {
	var parts []string
	for _, c := range res.Content {
		switch v := c.(type) {
		case *sdk.TextContent:
			parts = append(parts, v.Text)
		case *sdk.ImageContent:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", v.MIMEType, len(v.Data)))
		default:
			parts = append(parts, "[non-text content]")
		}
	}
	if len(parts) == 0 && res.StructuredContent != nil {
		if b, err := json.Marshal(res.StructuredContent); err == nil {
			return string(b)
		}
	}
	return strings.Join(parts, "\n")
}
