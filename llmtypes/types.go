package llmtypes

import (
	"context"
	"strings"
)

// Model is the core interface for LLM implementations
type Model interface {
	GenerateContent(ctx context.Context, messages []MessageContent, options ...CallOption) (*ContentResponse, error)
	// GetModelID returns the model ID for this LLM instance
	// Returns empty string if the model ID is not available
	GetModelID() string
}

// ChatMessageType represents the role of a chat message
type ChatMessageType string

const (
	ChatMessageTypeSystem ChatMessageType = "system"
	ChatMessageTypeHuman  ChatMessageType = "human"
	ChatMessageTypeAI     ChatMessageType = "ai"
	ChatMessageTypeTool   ChatMessageType = "tool"
)

// ContentPart is an interface for different types of message parts
type ContentPart interface{}

// TextContent represents a text content part
type TextContent struct {
	Text string
}

// ImageContent represents an image content part
type ImageContent struct {
	// SourceType is either "base64" or "url"
	SourceType string
	// MediaType is the MIME type, required for base64 sources
	MediaType string
	// Data is base64 data (no data: prefix) or the image URL
	Data string
}

// StreamChunkType represents the type of a streaming chunk
type StreamChunkType string

const (
	StreamChunkTypeContent  StreamChunkType = "content"
	StreamChunkTypeToolCall StreamChunkType = "tool_call"
)

// StreamChunk represents a single chunk in a streaming response
// It can contain either content text or a complete tool call
type StreamChunk struct {
	Type     StreamChunkType
	Content  string
	ToolCall *ToolCall
}

// ToolCall represents a tool/function call request
type ToolCall struct {
	ID           string
	Type         string
	FunctionCall *FunctionCall
	// ThoughtSignature is an opaque Gemini token that must be echoed back
	// with the call in later requests
	ThoughtSignature []byte `json:"thought_signature,omitempty"`
}

// FunctionCall represents a function call with name and arguments
type FunctionCall struct {
	Name      string
	Arguments string // JSON string
}

// ToolCallResponse represents a tool/function call response
type ToolCallResponse struct {
	ToolCallID string
	Name       string // Name of the tool/function that was called
	Content    string
	// IsError marks the content as a tool failure report
	IsError bool
}

// NoToolOutput stands in for a tool result without content.
const NoToolOutput = "(no output)"

// ContentOrPlaceholder returns Content, or NoToolOutput when it is blank.
// Anthropic and Bedrock reject empty text blocks.
func (r ToolCallResponse) ContentOrPlaceholder() string {
	if strings.TrimSpace(r.Content) == "" {
		return NoToolOutput
	}
	return r.Content
}

// MessageContent represents a message in the conversation
type MessageContent struct {
	Role  ChatMessageType
	Parts []ContentPart
}

// ContentResponse represents the response from an LLM
type ContentResponse struct {
	Choices []*ContentChoice
	Usage   *Usage `json:"usage,omitempty"`
}

// ContentChoice represents a single choice in the response
type ContentChoice struct {
	Content        string
	StopReason     string
	ToolCalls      []ToolCall
	GenerationInfo *GenerationInfo `json:"generation_info,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
	CacheTokens  *int `json:"cache_tokens,omitempty"`
}

// GenerationInfo contains token usage reported by a provider.
type GenerationInfo struct {
	InputTokens  *int `json:"input_tokens,omitempty"`
	OutputTokens *int `json:"output_tokens,omitempty"`
	TotalTokens  *int `json:"total_tokens,omitempty"`

	CachedContentTokens *int `json:"cached_content_tokens,omitempty"`

	// Provider-specific extras
	Additional map[string]interface{} `json:"-"`
}

// ExtractUsageFromGenerationInfo turns provider generation info into a Usage.
// Returns nil if no token information is available.
func ExtractUsageFromGenerationInfo(genInfo *GenerationInfo) *Usage {
	if genInfo == nil {
		return nil
	}

	usage := &Usage{}
	if genInfo.InputTokens != nil {
		usage.InputTokens = *genInfo.InputTokens
	}
	if genInfo.OutputTokens != nil {
		usage.OutputTokens = *genInfo.OutputTokens
	}
	if genInfo.TotalTokens != nil {
		usage.TotalTokens = *genInfo.TotalTokens
	}

	cacheTokens := 0
	if genInfo.CachedContentTokens != nil {
		cacheTokens += *genInfo.CachedContentTokens
	}
	for _, key := range []string{"CacheReadInputTokens", "CacheCreationInputTokens"} {
		switch v := genInfo.Additional[key].(type) {
		case int:
			cacheTokens += v
		case int64:
			cacheTokens += int(v)
		case float64:
			cacheTokens += int(v)
		}
	}
	if cacheTokens > 0 {
		usage.CacheTokens = &cacheTokens
	}

	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.InputTokens + usage.OutputTokens
	}
	if usage.InputTokens == 0 && usage.OutputTokens == 0 && usage.TotalTokens == 0 {
		return nil
	}
	return usage
}

// Parameters represents a JSON schema for function parameters.
// This follows the JSON Schema specification used by LLM providers for function definitions.
type Parameters struct {
	Type                 string                 `json:"type,omitempty"` // Typically "object"
	Properties           map[string]interface{} `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties interface{}            `json:"additionalProperties,omitempty"`
	// Any other schema keywords ($defs, description, ...)
	Additional map[string]interface{} `json:"-"`
}

// Tool represents a tool/function definition that can be called
type Tool struct {
	Type     string
	Function *FunctionDefinition
}

// FunctionDefinition represents a function definition with schema
type FunctionDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  *Parameters `json:"parameters,omitempty"`
}

// ToolChoice represents tool choice configuration
type ToolChoice struct {
	Type     string // "auto", "none", "required", "function"
	Function *FunctionName
}

// FunctionName represents a specific function to call
type FunctionName struct {
	Name string
}

// CallOptions holds all call options for LLM generation
type CallOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool
	Tools       []Tool
	ToolChoice  *ToolChoice
	StreamChan  chan<- StreamChunk // Channel for streaming chunks (content and tool calls)
}

// CallOption is a function type for setting call options
type CallOption func(*CallOptions)

// NewParameters creates a new Parameters struct from a JSON schema map.
func NewParameters(paramsMap map[string]interface{}) *Parameters {
	if paramsMap == nil {
		return nil
	}

	params := &Parameters{}
	if typ, ok := paramsMap["type"].(string); ok {
		params.Type = typ
	}
	if properties, ok := paramsMap["properties"].(map[string]interface{}); ok {
		params.Properties = properties
	}
	switch required := paramsMap["required"].(type) {
	case []interface{}:
		params.Required = make([]string, 0, len(required))
		for _, r := range required {
			if s, ok := r.(string); ok {
				params.Required = append(params.Required, s)
			}
		}
	case []string:
		params.Required = required
	}
	if additionalProps, ok := paramsMap["additionalProperties"]; ok {
		params.AdditionalProperties = additionalProps
	}
	for k, v := range paramsMap {
		switch k {
		case "type", "properties", "required", "additionalProperties":
		default:
			if params.Additional == nil {
				params.Additional = make(map[string]interface{})
			}
			params.Additional[k] = v
		}
	}
	return params
}

// Map renders the parameters back into a JSON schema map.
// A nil receiver yields an empty object schema.
func (p *Parameters) Map() map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
	if p == nil {
		return schema
	}
	for k, v := range p.Additional {
		schema[k] = v
	}
	if p.Type != "" {
		schema["type"] = p.Type
	}
	if p.Properties != nil {
		schema["properties"] = p.Properties
	}
	if len(p.Required) > 0 {
		schema["required"] = p.Required
	}
	if p.AdditionalProperties != nil {
		schema["additionalProperties"] = p.AdditionalProperties
	}
	return schema
}
