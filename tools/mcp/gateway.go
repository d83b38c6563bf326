// Package mcp is a tools.Gateway over one or more MCP servers.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/becomeliminal/nim-graph/core"
	"github.com/becomeliminal/nim-graph/tools"
)

// Endpoint is a streamable-HTTP MCP server to connect to.
type Endpoint struct {
	Name string `mapstructure:"name" yaml:"name" validate:"required"`
	URL  string `mapstructure:"url" yaml:"url" validate:"required,url"`
}

// Gateway routes tool calls to the MCP session that advertised the tool.
type Gateway struct {
	mu       sync.RWMutex
	sessions map[string]*sdkmcp.ClientSession
	owner    map[string]string
	defs     []tools.Definition
	timeout  time.Duration
	logger   *zap.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithTimeout bounds every tool call.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l.Named("mcp") }
}

func newGateway(opts []Option) *Gateway {
	g := &Gateway{
		sessions: make(map[string]*sdkmcp.ClientSession),
		owner:    make(map[string]string),
		timeout:  30 * time.Second,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func newClient() *sdkmcp.Client {
	return sdkmcp.NewClient(&sdkmcp.Implementation{Name: "nim-graph", Version: "v1.0.0"}, nil)
}

// Connect dials every endpoint over streamable HTTP and loads their tools.
func Connect(ctx context.Context, endpoints []Endpoint, opts ...Option) (*Gateway, error) {
	g := newGateway(opts)
	client := newClient()
	for _, ep := range endpoints {
		session, err := client.Connect(ctx, &sdkmcp.StreamableClientTransport{Endpoint: ep.URL}, nil)
		if err != nil {
			g.Close()
			return nil, &core.ToolInvocationError{Tool: ep.Name, Err: fmt.Errorf("connect %s: %w", ep.URL, err)}
		}
		if err := g.add(ctx, ep.Name, session); err != nil {
			session.Close()
			g.Close()
			return nil, err
		}
	}
	return g, nil
}

// ConnectTransport attaches an already built transport, such as an in-memory
// or stdio transport, under the given server name.
func (g *Gateway) ConnectTransport(ctx context.Context, name string, transport sdkmcp.Transport) error {
	session, err := newClient().Connect(ctx, transport, nil)
	if err != nil {
		return &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("connect: %w", err)}
	}
	if err := g.add(ctx, name, session); err != nil {
		session.Close()
		return err
	}
	return nil
}

// New creates a gateway with no servers attached.
func New(opts ...Option) *Gateway {
	return newGateway(opts)
}

func (g *Gateway) add(ctx context.Context, name string, session *sdkmcp.ClientSession) error {
	var defs []tools.Definition
	params := &sdkmcp.ListToolsParams{}
	for {
		res, err := session.ListTools(ctx, params)
		if err != nil {
			return &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("list tools: %w", err)}
		}
		for _, t := range res.Tools {
			defs = append(defs, tools.Definition{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schemaMap(t.InputSchema),
			})
		}
		if res.NextCursor == "" {
			break
		}
		params = &sdkmcp.ListToolsParams{Cursor: res.NextCursor}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[name] = session
	for _, d := range defs {
		if prev, dup := g.owner[d.Name]; dup {
			g.logger.Warn("duplicate tool name, keeping first",
				zap.String("tool", d.Name), zap.String("kept", prev), zap.String("ignored", name))
			continue
		}
		g.owner[d.Name] = name
		g.defs = append(g.defs, d)
	}
	g.logger.Info("mcp server attached", zap.String("server", name), zap.Int("tools", len(defs)))
	return nil
}

// schemaMap normalizes whatever schema type the SDK hands back into a plain map.
func schemaMap(schema any) map[string]any {
	out := map[string]any{"type": "object", "properties": map[string]any{}}
	if schema == nil {
		return out
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return out
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return out
	}
	if _, ok := m["properties"]; !ok {
		m["properties"] = map[string]any{}
	}
	return m
}

// Definitions lists every tool across attached servers.
func (g *Gateway) Definitions() []tools.Definition {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]tools.Definition(nil), g.defs...)
}

// Invoke calls a tool on the server that advertised it.
func (g *Gateway) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	g.mu.RLock()
	server, ok := g.owner[name]
	session := g.sessions[server]
	g.mu.RUnlock()
	if !ok || session == nil {
		return nil, &core.ToolInvocationError{Tool: name, Err: fmt.Errorf("unknown tool")}
	}

	var arguments map[string]any
	if len(args) > 0 && string(args) != "null" {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return tools.ErrorResult("invalid arguments: " + err.Error()), nil
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := session.CallTool(ctx, &sdkmcp.CallToolParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, &core.ToolInvocationError{Tool: name, Err: err}
	}

	var texts []string
	for _, c := range res.Content {
		if tc, ok := c.(*sdkmcp.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")
	g.logger.Debug("tool call",
		zap.String("tool", name),
		zap.String("server", server),
		zap.Bool("is_error", res.IsError),
		zap.Duration("took", time.Since(start)))

	if res.IsError {
		return tools.ErrorResult(text), nil
	}
	if text == "" && res.StructuredContent != nil {
		return json.Marshal(res.StructuredContent)
	}
	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	return json.Marshal(text)
}

// Close ends every session.
func (g *Gateway) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for name, s := range g.sessions {
		if err := s.Close(); err != nil {
			g.logger.Debug("close session", zap.String("server", name), zap.Error(err))
		}
	}
	g.sessions = map[string]*sdkmcp.ClientSession{}
	return nil
}
