// Package tools holds the canonical tool catalogue, the tool invoker and the
// content model shared by the chat loop and every tool backend.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

// Descriptor describes one callable tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
	// Servlet is the install the tool came from, if known
	Servlet string `json:"servlet,omitempty"`
}

// LLMTool converts the descriptor into the provider-neutral tool definition.
func (d Descriptor) LLMTool() llmtypes.Tool {
	return llmtypes.Tool{
		Type: "function",
		Function: &llmtypes.FunctionDefinition{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  llmtypes.NewParameters(objectSchema(d.InputSchema)),
		},
	}
}

// LLMTools converts a catalogue snapshot for a provider call.
func LLMTools(descriptors []Descriptor) []llmtypes.Tool {
	out := make([]llmtypes.Tool, 0, len(descriptors))
	for _, d := range descriptors {
		out = append(out, d.LLMTool())
	}
	return out
}

func objectSchema(schema map[string]any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object", "properties": map[string]any{}}
	}
	return schema
}

// Source lists the tools offered by a backend.
type Source interface {
	ListTools(ctx context.Context) ([]Descriptor, error)
}

// Caller executes a tool on a backend.
// Implementations report failures as *ToolError where they can tell
// execution failures from transport failures.
type Caller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*Result, error)
}

// ContentKind is the closed set of tool result item kinds.
type ContentKind string

const (
	ContentText       ContentKind = "text"
	ContentImage      ContentKind = "image"
	ContentStructured ContentKind = "structured"
)

// Content is one item of a tool result.
type Content struct {
	Kind       ContentKind     `json:"kind"`
	Text       string          `json:"text,omitempty"`
	MIMEType   string          `json:"mimeType,omitempty"`
	Data       []byte          `json:"data,omitempty"`
	Structured json.RawMessage `json:"structured,omitempty"`
}

// Text builds a text content item.
func Text(s string) Content {
	return Content{Kind: ContentText, Text: s}
}

// Image builds an image content item from raw bytes.
func Image(mimeType string, data []byte) Content {
	return Content{Kind: ContentImage, MIMEType: mimeType, Data: data}
}

// Structured builds a structured item from any JSON-marshalable value.
func Structured(v any) (Content, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return Content{}, fmt.Errorf("marshal structured content: %w", err)
	}
	return Content{Kind: ContentStructured, Structured: raw}, nil
}

// Result is the ordered content returned by one tool call.
type Result struct {
	Content []Content `json:"content"`
	IsError bool      `json:"isError,omitempty"`
}

// String renders the result as the text handed back to the model.
func (r *Result) String() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, c := range r.Content {
		switch c.Kind {
		case ContentText:
			parts = append(parts, c.Text)
		case ContentImage:
			parts = append(parts, fmt.Sprintf("[image %s, %d bytes]", c.MIMEType, len(c.Data)))
		case ContentStructured:
			parts = append(parts, string(c.Structured))
		}
	}
	return strings.Join(parts, "\n")
}

// Images returns the image items of the result.
func (r *Result) Images() []Content {
	if r == nil {
		return nil
	}
	var out []Content
	for _, c := range r.Content {
		if c.Kind == ContentImage {
			out = append(out, c)
		}
	}
	return out
}

// Builtin is a tool served in-process instead of by the remote service.
type Builtin struct {
	Descriptor
	Handler func(ctx context.Context, args map[string]any) (*Result, error)
}
