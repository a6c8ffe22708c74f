package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

// RequestInfo is the part of a provider request that identifies it
type RequestInfo struct {
	Messages []MessageInfo `json:"messages"`
	Tools    []string      `json:"tools,omitempty"`
}

// MessageInfo represents a single message in the request
type MessageInfo struct {
	Role  string     `json:"role"`
	Parts []PartInfo `json:"parts"`
}

// PartInfo flattens the content part variants into one JSON shape
type PartInfo struct {
	Type       string `json:"type"`
	Text       string `json:"text,omitempty"`
	MediaType  string `json:"media_type,omitempty"`
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
	Arguments  string `json:"arguments,omitempty"`
	IsError    bool   `json:"is_error,omitempty"`
}

// NewRequestInfo describes messages and the offered catalogue. Tool names
// are sorted so a reordered catalogue still matches.
func NewRequestInfo(messages []llmtypes.MessageContent, catalogue []tools.Descriptor) RequestInfo {
	info := RequestInfo{Messages: make([]MessageInfo, 0, len(messages))}
	for _, msg := range messages {
		m := MessageInfo{Role: string(msg.Role), Parts: make([]PartInfo, 0, len(msg.Parts))}
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				m.Parts = append(m.Parts, PartInfo{Type: "text", Text: p.Text})
			case llmtypes.ImageContent:
				// Image bytes are hashed, not stored
				sum := sha256.Sum256([]byte(p.Data))
				m.Parts = append(m.Parts, PartInfo{Type: "image", MediaType: p.MediaType, Text: hex.EncodeToString(sum[:8])})
			case llmtypes.ToolCall:
				pi := PartInfo{Type: "tool_call", ToolCallID: p.ID}
				if p.FunctionCall != nil {
					pi.Name = p.FunctionCall.Name
					pi.Arguments = p.FunctionCall.Arguments
				}
				m.Parts = append(m.Parts, pi)
			case llmtypes.ToolCallResponse:
				m.Parts = append(m.Parts, PartInfo{Type: "tool_result", ToolCallID: p.ToolCallID, Name: p.Name, Text: p.Content, IsError: p.IsError})
			default:
				m.Parts = append(m.Parts, PartInfo{Type: fmt.Sprintf("%T", part)})
			}
		}
		info.Messages = append(info.Messages, m)
	}
	for _, d := range catalogue {
		info.Tools = append(info.Tools, d.Name)
	}
	sort.Strings(info.Tools)
	return info
}

// ComputeRequestHash computes a hash of the request for matching
func ComputeRequestHash(request RequestInfo) (string, error) {
	jsonData, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}
