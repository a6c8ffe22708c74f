package llmproviders

import (
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

// Re-export types from llmtypes for convenience
type Model = llmtypes.Model
type ChatMessageType = llmtypes.ChatMessageType
type ContentPart = llmtypes.ContentPart
type TextContent = llmtypes.TextContent
type ImageContent = llmtypes.ImageContent
type ToolCall = llmtypes.ToolCall
type FunctionCall = llmtypes.FunctionCall
type ToolCallResponse = llmtypes.ToolCallResponse
type MessageContent = llmtypes.MessageContent
type ContentResponse = llmtypes.ContentResponse
type ContentChoice = llmtypes.ContentChoice
type Usage = llmtypes.Usage
type Tool = llmtypes.Tool
type FunctionDefinition = llmtypes.FunctionDefinition
type ToolChoice = llmtypes.ToolChoice
type CallOptions = llmtypes.CallOptions
type CallOption = llmtypes.CallOption
type StreamChunk = llmtypes.StreamChunk
type ProviderError = llmtypes.ProviderError
type ConfigurationError = llmtypes.ConfigurationError

// Re-export constants
const (
	ChatMessageTypeSystem = llmtypes.ChatMessageTypeSystem
	ChatMessageTypeHuman  = llmtypes.ChatMessageTypeHuman
	ChatMessageTypeAI     = llmtypes.ChatMessageTypeAI
	ChatMessageTypeTool   = llmtypes.ChatMessageTypeTool
)

// Re-export functions
var (
	WithModel         = llmtypes.WithModel
	WithTemperature   = llmtypes.WithTemperature
	WithMaxTokens     = llmtypes.WithMaxTokens
	WithJSONMode      = llmtypes.WithJSONMode
	WithTools         = llmtypes.WithTools
	WithStreamingChan = llmtypes.WithStreamingChan
	TextPart          = llmtypes.TextPart
	TextParts         = llmtypes.TextParts
	ErrConfiguration  = llmtypes.ErrConfiguration
)
