// Package mcprun talks to the mcp.run platform: session lookup, the REST
// installations and search API, and the MCP tool session.
package mcprun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// DefaultBaseURL is the public mcp.run origin.
const DefaultBaseURL = "https://www.mcp.run"

// Endpoints builds mcp.run API URLs from a base origin.
type Endpoints struct {
	Base string
}

// Installations lists the servlets installed in the default profile.
func (e Endpoints) Installations() string {
	return e.Base + "/api/profiles/~/default/installations"
}

// Search queries the public servlet index.
func (e Endpoints) Search(query string) string {
	return e.Base + "/api/servlets?q=" + url.QueryEscape(query)
}

// MCP is the default streamable MCP endpoint of the session's profile.
func (e Endpoints) MCP() string {
	return e.Base + "/api/mcp"
}

// Servlet is one installed servlet and the tools it provides.
type Servlet struct {
	Name        string
	Slug        string
	BindingID   string
	ContentAddr string
	Settings    map[string]any
	Tools       []tools.Descriptor
}

// SearchResult is one servlet returned by Search.
type SearchResult struct {
	Slug              string `json:"slug"`
	InstallationCount int    `json:"installation_count"`
	Meta              struct {
		Description string `json:"description"`
	} `json:"meta"`
}

// InstallURL is where the user can install the servlet.
func (r SearchResult) InstallURL() string {
	return "https://mcp.run/" + strings.TrimPrefix(r.Slug, "/")
}

// StatusError is a non-2xx answer from the mcp.run API.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mcp.run request %s failed: %d %s", e.URL, e.StatusCode, e.Body)
}

// Client is the mcp.run REST client. It implements tools.Source over the
// installations endpoint.
type Client struct {
	endpoints  Endpoints
	sessionID  string
	httpClient *http.Client
	logger     interfaces.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client logger.
func WithLogger(logger interfaces.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a REST client for baseURL authenticated with sessionID.
func NewClient(baseURL, sessionID string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		endpoints:  Endpoints{Base: strings.TrimRight(baseURL, "/")},
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     interfaces.NoopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type installsResponse struct {
	Installs []struct {
		Name    string `json:"name"`
		Binding struct {
			ID             string `json:"id"`
			ContentAddress string `json:"contentAddress"`
		} `json:"binding"`
		Servlet struct {
			Slug string `json:"slug"`
			Meta struct {
				Schema json.RawMessage `json:"schema"`
			} `json:"meta"`
		} `json:"servlet"`
		Settings map[string]any `json:"settings"`
	} `json:"installs"`
}

type toolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ListInstalls fetches the installed servlets. Every call is a request.
func (c *Client) ListInstalls(ctx context.Context) ([]Servlet, error) {
	var resp installsResponse
	if err := c.getJSON(ctx, c.endpoints.Installations(), &resp); err != nil {
		return nil, err
	}

	servlets := make([]Servlet, 0, len(resp.Installs))
	for _, in := range resp.Installs {
		schemas, err := parseServletSchema(in.Servlet.Meta.Schema)
		if err != nil {
			return nil, fmt.Errorf("servlet %s: %w", in.Name, err)
		}
		s := Servlet{
			Name:        in.Name,
			Slug:        in.Servlet.Slug,
			BindingID:   in.Binding.ID,
			ContentAddr: in.Binding.ContentAddress,
			Settings:    in.Settings,
		}
		for _, t := range schemas {
			s.Tools = append(s.Tools, tools.Descriptor{
				Name:        t.Name,
				Description: t.Description,
				InputSchema: t.InputSchema,
				Servlet:     in.Name,
			})
		}
		servlets = append(servlets, s)
	}
	return servlets, nil
}

// parseServletSchema accepts either {"tools": [...]} or a single tool object.
func parseServletSchema(raw json.RawMessage) ([]toolSchema, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var multi struct {
		Tools []toolSchema `json:"tools"`
	}
	if err := json.Unmarshal(raw, &multi); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if multi.Tools != nil {
		return multi.Tools, nil
	}
	var single toolSchema
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	if single.Name == "" {
		return nil, nil
	}
	return []toolSchema{single}, nil
}

// ListTools flattens the tools of every installed servlet.
func (c *Client) ListTools(ctx context.Context) ([]tools.Descriptor, error) {
	servlets, err := c.ListInstalls(ctx)
	if err != nil {
		return nil, err
	}
	out := []tools.Descriptor{}
	for _, s := range servlets {
		out = append(out, s.Tools...)
	}
	return out, nil
}

// Search looks up servlets matching query.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	var results []SearchResult
	if err := c.getJSON(ctx, c.endpoints.Search(query), &results); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionId", Value: c.sessionID})
	}

	c.logger.Debugf("mcp.run GET %s", u)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp.run request %s: %w", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: u, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", u, err)
	}
	return nil
}
