package mcprun

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// Transport names accepted by SessionConfig.
const (
	TransportHTTP  = "http"
	TransportStdio = "stdio"
)

// SessionConfig describes how to reach the mcp.run tool service.
type SessionConfig struct {
	// Transport is TransportHTTP (default) or TransportStdio
	Transport string
	// Endpoint is the streamable MCP URL for TransportHTTP
	Endpoint string
	// Command is the mcpx binary for TransportStdio
	Command   string
	Args      []string
	SessionID string
	Timeout   time.Duration
	Logger    interfaces.Logger
	// Connect overrides transport construction, used by tests
	Connect func(ctx context.Context, client *mcp.Client) (*mcp.ClientSession, error)
}

// MCPSession is a lazily connected MCP client session to the tool service.
// It implements tools.Source and tools.Caller.
type MCPSession struct {
	cfg    SessionConfig
	client *mcp.Client
	logger interfaces.Logger

	mu      sync.RWMutex
	session *mcp.ClientSession
}

// NewMCPSession creates a session; no connection is made until first use.
func NewMCPSession(cfg SessionConfig) *MCPSession {
	if cfg.Transport == "" {
		cfg.Transport = TransportHTTP
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "mcpx-chat",
		Version: "1.0.0",
	}, nil)
	return &MCPSession{cfg: cfg, client: client, logger: logger}
}

// getSession returns the existing session or connects a new one.
func (s *MCPSession) getSession(ctx context.Context) (*mcp.ClientSession, error) {
	s.mu.RLock()
	if s.session != nil {
		session := s.session
		s.mu.RUnlock()
		return session, nil
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Double check
	if s.session != nil {
		return s.session, nil
	}

	session, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	s.session = session
	s.logger.Infof("Connected to tool service - transport: %s", s.cfg.Transport)
	return session, nil
}

func (s *MCPSession) connect(ctx context.Context) (*mcp.ClientSession, error) {
	if s.cfg.Connect != nil {
		return s.cfg.Connect(ctx, s.client)
	}

	var transport mcp.Transport
	switch s.cfg.Transport {
	case TransportHTTP:
		if s.cfg.Endpoint == "" {
			return nil, errors.New("no MCP endpoint configured")
		}
		transport = &mcp.StreamableClientTransport{
			Endpoint: s.cfg.Endpoint,
			HTTPClient: &http.Client{
				Timeout:   s.cfg.Timeout,
				Transport: &cookieTransport{sessionID: s.cfg.SessionID, base: http.DefaultTransport},
			},
		}
	case TransportStdio:
		command := s.cfg.Command
		if command == "" {
			command = "mcpx"
		}
		cmd := exec.Command(command, s.cfg.Args...)
		cmd.Env = append(os.Environ(), envSessionID+"="+s.cfg.SessionID)
		transport = &mcp.CommandTransport{Command: cmd}
	default:
		return nil, fmt.Errorf("unknown tool transport %q", s.cfg.Transport)
	}

	session, err := s.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to tool service: %w", err)
	}
	return session, nil
}

// drop discards a session after a transport failure so the next call reconnects.
func (s *MCPSession) drop(session *mcp.ClientSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == session {
		_ = session.Close()
		s.session = nil
	}
}

// ListTools pages through tools/list.
func (s *MCPSession) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	session, err := s.getSession(ctx)
	if err != nil {
		return nil, err
	}

	out := []tools.Descriptor{}
	params := &mcp.ListToolsParams{}
	for {
		result, err := session.ListTools(ctx, params)
		if err != nil {
			if !isRemoteError(err) {
				s.drop(session)
			}
			return nil, fmt.Errorf("list tools: %w", err)
		}
		for _, t := range result.Tools {
			schema, err := schemaMap(t.InputSchema)
			if err != nil {
				s.logger.Errorf("Skipping tool %s with unreadable schema: %v", t.Name, err)
				continue
			}
			out = append(out, tools.Descriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: schema,
			})
		}
		if result.NextCursor == "" {
			return out, nil
		}
		params = &mcp.ListToolsParams{Cursor: result.NextCursor}
	}
}

// CallTool runs tools/call. JSON-RPC errors from the server are execution
// failures; anything else means the service could not be reached.
func (s *MCPSession) CallTool(ctx context.Context, name string, args map[string]any) (*tools.Result, error) {
	session, err := s.getSession(ctx)
	if err != nil {
		return nil, &tools.ToolError{Kind: tools.KindTransportFailure, Tool: name, Err: err}
	}

	result, err := session.CallTool(ctx, &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isRemoteError(err) {
			return nil, &tools.ToolError{Kind: tools.KindExecutionFailure, Tool: name, Err: err}
		}
		s.drop(session)
		return nil, &tools.ToolError{Kind: tools.KindTransportFailure, Tool: name, Err: err}
	}
	return ConvertResult(result)
}

// Close ends the session, if any.
func (s *MCPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Close()
	s.session = nil
	return err
}

// ConvertResult maps MCP content onto the tool content model.
func ConvertResult(result *mcp.CallToolResult) (*tools.Result, error) {
	out := &tools.Result{IsError: result.IsError}
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			out.Content = append(out.Content, tools.Text(c.Text))
		case *mcp.ImageContent:
			out.Content = append(out.Content, tools.Image(c.MIMEType, c.Data))
		default:
			item, err := tools.Structured(c)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, item)
		}
	}
	if result.StructuredContent != nil {
		item, err := tools.Structured(result.StructuredContent)
		if err != nil {
			return nil, err
		}
		out.Content = append(out.Content, item)
	}
	return out, nil
}

func isRemoteError(err error) bool {
	var wireErr *jsonrpc.Error
	return errors.As(err, &wireErr)
}

func schemaMap(schema any) (map[string]any, error) {
	if schema == nil {
		return nil, nil
	}
	if m, ok := schema.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// cookieTransport attaches the mcp.run session cookie to every request.
type cookieTransport struct {
	sessionID string
	base      http.RoundTripper
}

func (t *cookieTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.sessionID == "" {
		return t.base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.AddCookie(&http.Cookie{Name: "sessionId", Value: t.sessionID})
	return t.base.RoundTrip(req)
}
