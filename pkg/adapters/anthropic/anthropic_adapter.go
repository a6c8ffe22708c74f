package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"

	"github.com/anthropics/anthropic-sdk-go"
)

const providerName = "claude"

const jsonInstruction = "You must respond with valid JSON only, no other text. Return a JSON object."

// AnthropicAdapter is an adapter that implements llmtypes.Model interface
// using the Anthropic SDK directly
type AnthropicAdapter struct {
	client  anthropic.Client
	modelID string
	logger  interfaces.Logger
}

// NewAnthropicAdapter creates a new adapter instance
func NewAnthropicAdapter(client anthropic.Client, modelID string, logger interfaces.Logger) *AnthropicAdapter {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &AnthropicAdapter{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// GetModelID returns the configured model ID
func (a *AnthropicAdapter) GetModelID() string {
	return a.modelID
}

// GenerateContent implements the llmtypes.Model interface
func (a *AnthropicAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)

	// Ensure channel is closed when done (if streaming is enabled)
	if opts.StreamChan != nil {
		defer close(opts.StreamChan)
	}

	modelID := a.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	anthropicMessages, systemMessage := convertMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  anthropicMessages,
		MaxTokens: 4096,
	}

	if opts.JSONMode {
		if systemMessage != "" {
			systemMessage += "\n\n"
		}
		systemMessage += jsonInstruction
	}
	if systemMessage != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemMessage}}
	}
	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if len(opts.Tools) > 0 {
		params.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			params.ToolChoice = convertToolChoice(opts.ToolChoice)
		}
	}

	a.logger.Debugf("Anthropic request - model: %s, messages: %d, tools: %d", modelID, len(params.Messages), len(params.Tools))

	// Always use the streaming API; long requests are rejected on the blocking one
	stream := a.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return nil, llmtypes.MalformedResponse(providerName, "accumulate stream event: %v", err)
		}

		if opts.StreamChan == nil {
			continue
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				select {
				case opts.StreamChan <- llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeContent, Content: text.Text}:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		a.logger.Errorf("Anthropic streaming error - model: %s, error: %v", modelID, err)
		return nil, classifyError(err)
	}

	resp := convertResponse(&message)
	if opts.StreamChan != nil {
		for i := range resp.Choices[0].ToolCalls {
			tc := resp.Choices[0].ToolCalls[i]
			select {
			case opts.StreamChan <- llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeToolCall, ToolCall: &tc}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return resp, nil
}

// classifyError maps SDK failures onto provider error kinds.
func classifyError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmtypes.NewProviderError(providerName, apiErr.StatusCode, err)
	}
	return llmtypes.NewProviderError(providerName, 0, err)
}

// convertMessages converts llmtypes messages to Anthropic message format
// Returns messages and system message (if present)
func convertMessages(langMessages []llmtypes.MessageContent) ([]anthropic.MessageParam, string) {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(langMessages))
	var systemParts []string

	for _, msg := range langMessages {
		var textParts []string
		var imageParts []llmtypes.ImageContent
		var toolResults []llmtypes.ToolCallResponse
		var toolCalls []llmtypes.ToolCall

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				textParts = append(textParts, p.Text)
			case llmtypes.ImageContent:
				imageParts = append(imageParts, p)
			case llmtypes.ToolCallResponse:
				toolResults = append(toolResults, p)
			case llmtypes.ToolCall:
				toolCalls = append(toolCalls, p)
			}
		}
		content := strings.Join(textParts, "\n")

		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			// System messages go to the system parameter, not messages array
			if content != "" {
				systemParts = append(systemParts, content)
			}
		case llmtypes.ChatMessageTypeAI:
			blocks := []anthropic.ContentBlockParamUnion{}
			if content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(content))
			}
			for _, tc := range toolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, toolInput(tc), tc.FunctionCall.Name))
			}
			if len(blocks) > 0 {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: blocks,
				})
			}
		case llmtypes.ChatMessageTypeTool:
			// All results answering one assistant turn travel in a single user message
			blocks := make([]anthropic.ContentBlockParamUnion, 0, len(toolResults))
			for _, tr := range toolResults {
				blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.ContentOrPlaceholder(), tr.IsError))
			}
			if len(blocks) > 0 {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleUser,
					Content: blocks,
				})
			}
		default:
			blocks := []anthropic.ContentBlockParamUnion{}
			if content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(content))
			}
			for _, img := range imageParts {
				if block := createImageBlock(img); block != nil {
					blocks = append(blocks, *block)
				}
			}
			if len(blocks) > 0 {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleUser,
					Content: blocks,
				})
			}
		}
	}

	return anthropicMessages, strings.Join(systemParts, "\n")
}

func toolInput(tc llmtypes.ToolCall) map[string]interface{} {
	args := map[string]interface{}{}
	if tc.FunctionCall != nil && tc.FunctionCall.Arguments != "" {
		if err := json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args); err != nil {
			return map[string]interface{}{}
		}
	}
	return args
}

// createImageBlock creates an Anthropic image content block from ImageContent
func createImageBlock(img llmtypes.ImageContent) *anthropic.ContentBlockParamUnion {
	switch img.SourceType {
	case "base64":
		block := anthropic.NewImageBlockBase64(img.MediaType, img.Data)
		return &block
	case "url":
		block := anthropic.NewImageBlock(anthropic.URLImageSourceParam{URL: img.Data})
		return &block
	}
	return nil
}

// convertTools converts llmtypes tools to Anthropic tool format
func convertTools(llmTools []llmtypes.Tool) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, 0, len(llmTools))

	for _, tool := range llmTools {
		if tool.Function == nil {
			continue
		}

		schema := tool.Function.Parameters.Map()
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schema["properties"],
		}
		if tool.Function.Parameters != nil {
			inputSchema.Required = tool.Function.Parameters.Required
		}
		// Keywords other than type/properties/required ride along as extras
		for k, v := range schema {
			switch k {
			case "type", "properties", "required":
			default:
				if inputSchema.ExtraFields == nil {
					inputSchema.ExtraFields = map[string]any{}
				}
				inputSchema.ExtraFields[k] = v
			}
		}

		anthropicTool := anthropic.ToolUnionParamOfTool(inputSchema, tool.Function.Name)
		if tool.Function.Description != "" && anthropicTool.OfTool != nil {
			anthropicTool.OfTool.Description = anthropic.String(tool.Function.Description)
		}
		anthropicTools = append(anthropicTools, anthropicTool)
	}

	return anthropicTools
}

// convertToolChoice converts llmtypes tool choice to Anthropic tool choice format
func convertToolChoice(tc *llmtypes.ToolChoice) anthropic.ToolChoiceUnionParam {
	if tc.Function != nil && tc.Function.Name != "" {
		return anthropic.ToolChoiceParamOfTool(tc.Function.Name)
	}
	switch tc.Type {
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case "required", "any":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func convertResponse(result *anthropic.Message) *llmtypes.ContentResponse {
	choice := &llmtypes.ContentChoice{}

	var textParts []string
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			argsJSON := string(block.Input)
			if argsJSON == "" {
				argsJSON = "{}"
			}
			choice.ToolCalls = append(choice.ToolCalls, llmtypes.ToolCall{
				ID:   block.ID,
				Type: "function",
				FunctionCall: &llmtypes.FunctionCall{
					Name:      block.Name,
					Arguments: argsJSON,
				},
			})
		}
	}
	choice.Content = strings.Join(textParts, "\n")
	choice.StopReason = string(result.StopReason)

	inputTokens := int(result.Usage.InputTokens)
	outputTokens := int(result.Usage.OutputTokens)
	totalTokens := inputTokens + outputTokens
	genInfo := &llmtypes.GenerationInfo{
		InputTokens:  &inputTokens,
		OutputTokens: &outputTokens,
		TotalTokens:  &totalTokens,
		Additional: map[string]interface{}{
			"CacheReadInputTokens":     int(result.Usage.CacheReadInputTokens),
			"CacheCreationInputTokens": int(result.Usage.CacheCreationInputTokens),
		},
	}
	choice.GenerationInfo = genInfo

	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{choice},
		Usage:   llmtypes.ExtractUsageFromGenerationInfo(genInfo),
	}
}

// String renders the adapter for logs.
func (a *AnthropicAdapter) String() string {
	return fmt.Sprintf("anthropic(%s)", a.modelID)
}
