package openai

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/packages/param"
	"github.com/openai/openai-go/v3/shared"
)

// OpenAIAdapter is an adapter that implements llmtypes.Model interface
// using the OpenAI Go SDK directly. It also serves OpenAI-compatible local
// servers (Ollama, Llamafile) through a custom base URL.
type OpenAIAdapter struct {
	client   *openai.Client
	provider string
	modelID  string
	logger   interfaces.Logger
}

// NewOpenAIAdapter creates a new adapter instance for the OpenAI API
func NewOpenAIAdapter(client *openai.Client, modelID string, logger interfaces.Logger) *OpenAIAdapter {
	return NewCompatibleAdapter(client, "openai", modelID, logger)
}

// NewCompatibleAdapter creates an adapter for an OpenAI-compatible server.
// provider names the backend in errors and logs.
func NewCompatibleAdapter(client *openai.Client, provider, modelID string, logger interfaces.Logger) *OpenAIAdapter {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &OpenAIAdapter{
		client:   client,
		provider: provider,
		modelID:  modelID,
		logger:   logger,
	}
}

// GetModelID implements the llmtypes.Model interface
func (o *OpenAIAdapter) GetModelID() string {
	return o.modelID
}

// GenerateContent implements the llmtypes.Model interface
func (o *OpenAIAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)

	modelID := o.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(modelID),
		Messages: convertMessages(messages, o.logger),
	}

	// Some reasoning models only accept the default temperature
	if opts.Temperature > 0 {
		if hasTemperatureRestrictions(modelID) {
			o.logger.Debugf("Model %s only supports default temperature, omitting temperature parameter", modelID)
		} else {
			params.Temperature = param.NewOpt(opts.Temperature)
		}
	}
	if opts.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(opts.MaxTokens))
	}
	if opts.JSONMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	if len(opts.Tools) > 0 {
		params.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			params.ToolChoice = convertToolChoice(opts.ToolChoice)
		}
	}

	o.logger.Debugf("%s request - model: %s, messages: %d, tools: %d", o.provider, modelID, len(params.Messages), len(params.Tools))

	if opts.StreamChan != nil {
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: param.NewOpt(true),
		}
		return o.generateContentStreaming(ctx, params, opts)
	}

	result, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		o.logger.Errorf("%s API error - model: %s, error: %v", o.provider, modelID, err)
		return nil, o.classifyError(err)
	}
	return o.convertResponse(result)
}

func (o *OpenAIAdapter) generateContentStreaming(ctx context.Context, params openai.ChatCompletionNewParams, opts *llmtypes.CallOptions) (*llmtypes.ContentResponse, error) {
	defer close(opts.StreamChan)

	stream := o.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	var content strings.Builder
	var finishReason string
	var usage *openai.CompletionUsage

	// OpenAI streams tool calls incrementally, keyed by index
	toolCallMap := make(map[int64]*llmtypes.ToolCall)
	var order []int64

	for stream.Next() {
		chunk := stream.Current()

		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			u := chunk.Usage
			usage = &u
		}

		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				content.WriteString(choice.Delta.Content)
				select {
				case opts.StreamChan <- llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeContent, Content: choice.Delta.Content}:
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			}

			for _, delta := range choice.Delta.ToolCalls {
				tc := toolCallMap[delta.Index]
				if tc == nil {
					tc = &llmtypes.ToolCall{Type: "function", FunctionCall: &llmtypes.FunctionCall{}}
					toolCallMap[delta.Index] = tc
					order = append(order, delta.Index)
				}
				if delta.ID != "" {
					tc.ID = delta.ID
				}
				if delta.Function.Name != "" {
					tc.FunctionCall.Name = delta.Function.Name
				}
				tc.FunctionCall.Arguments += delta.Function.Arguments
			}

			if choice.FinishReason != "" {
				finishReason = choice.FinishReason
			}
		}
	}
	if err := stream.Err(); err != nil {
		o.logger.Errorf("%s streaming error: %v", o.provider, err)
		return nil, o.classifyError(err)
	}

	choice := &llmtypes.ContentChoice{
		Content:    content.String(),
		StopReason: finishReason,
	}
	for _, index := range order {
		tc := *toolCallMap[index]
		if tc.FunctionCall.Arguments == "" {
			tc.FunctionCall.Arguments = "{}"
		}
		choice.ToolCalls = append(choice.ToolCalls, tc)
		select {
		case opts.StreamChan <- llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeToolCall, ToolCall: &tc}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if usage != nil {
		choice.GenerationInfo = generationInfo(usage)
	}

	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{choice},
		Usage:   llmtypes.ExtractUsageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

// classifyError maps SDK failures onto provider error kinds and carries
// any Retry-After hint.
func (o *OpenAIAdapter) classifyError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return llmtypes.NewProviderError(o.provider, 0, err)
	}
	wrapped := llmtypes.NewProviderError(o.provider, apiErr.StatusCode, err)
	if pe, ok := llmtypes.AsProviderError(wrapped); ok && apiErr.Response != nil {
		if secs, convErr := strconv.Atoi(apiErr.Response.Header.Get("Retry-After")); convErr == nil {
			pe.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	return wrapped
}

// hasTemperatureRestrictions reports models that reject a custom temperature
func hasTemperatureRestrictions(modelID string) bool {
	modelLower := strings.ToLower(modelID)
	for _, prefix := range []string{"o1", "o3", "o4", "gpt-5"} {
		if strings.HasPrefix(modelLower, prefix) {
			return true
		}
	}
	return false
}

// convertMessages converts llmtypes messages to OpenAI message format
func convertMessages(langMessages []llmtypes.MessageContent, logger interfaces.Logger) []openai.ChatCompletionMessageParamUnion {
	openaiMessages := make([]openai.ChatCompletionMessageParamUnion, 0, len(langMessages))

	for _, msg := range langMessages {
		var contentParts []string
		var imageParts []llmtypes.ImageContent
		var toolResponses []llmtypes.ToolCallResponse
		var toolCalls []llmtypes.ToolCall

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				contentParts = append(contentParts, p.Text)
			case llmtypes.ImageContent:
				imageParts = append(imageParts, p)
			case llmtypes.ToolCallResponse:
				toolResponses = append(toolResponses, p)
			case llmtypes.ToolCall:
				toolCalls = append(toolCalls, p)
			}
		}
		content := strings.Join(contentParts, "\n")

		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			openaiMessages = append(openaiMessages, openai.SystemMessage(content))
		case llmtypes.ChatMessageTypeAI:
			if len(toolCalls) == 0 {
				openaiMessages = append(openaiMessages, openai.AssistantMessage(content))
				continue
			}
			openaiToolCalls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(toolCalls))
			for _, tc := range toolCalls {
				openaiToolCalls = append(openaiToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.FunctionCall.Name,
							Arguments: tc.FunctionCall.Arguments,
						},
					},
				})
			}
			assistantMsg := openai.ChatCompletionAssistantMessageParam{ToolCalls: openaiToolCalls}
			if content != "" {
				assistantMsg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
					OfString: param.NewOpt(content),
				}
			}
			openaiMessages = append(openaiMessages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistantMsg})
		case llmtypes.ChatMessageTypeTool:
			// OpenAI wants one tool message per call id
			for _, toolResp := range toolResponses {
				if toolResp.ToolCallID == "" {
					logger.Debugf("Skipping tool response with empty ToolCallID - Name: %s", toolResp.Name)
					continue
				}
				openaiMessages = append(openaiMessages, openai.ToolMessage(toolResp.Content, toolResp.ToolCallID))
			}
		default:
			if len(imageParts) == 0 {
				openaiMessages = append(openaiMessages, openai.UserMessage(content))
				continue
			}
			parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(contentParts)+len(imageParts))
			for _, text := range contentParts {
				if text != "" {
					parts = append(parts, openai.TextContentPart(text))
				}
			}
			for _, img := range imageParts {
				if imagePart := createImageContentPart(img); imagePart != nil {
					parts = append(parts, *imagePart)
				}
			}
			openaiMessages = append(openaiMessages, openai.UserMessage(parts))
		}
	}

	return openaiMessages
}

// createImageContentPart creates an OpenAI image content part from ImageContent
func createImageContentPart(img llmtypes.ImageContent) *openai.ChatCompletionContentPartUnionParam {
	var url string
	switch img.SourceType {
	case "base64":
		url = fmt.Sprintf("data:%s;base64,%s", img.MediaType, img.Data)
	case "url":
		url = img.Data
	default:
		return nil
	}
	part := openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url})
	return &part
}

// convertTools converts llmtypes tools to OpenAI tools format
func convertTools(llmTools []llmtypes.Tool) []openai.ChatCompletionToolUnionParam {
	openaiTools := make([]openai.ChatCompletionToolUnionParam, 0, len(llmTools))

	for _, tool := range llmTools {
		if tool.Function == nil {
			continue
		}

		paramsMap := tool.Function.Parameters.Map()
		// OpenAI rejects an object schema with empty properties, so give it
		// an unused optional one
		if props, _ := paramsMap["properties"].(map[string]interface{}); paramsMap["type"] == "object" && len(props) == 0 {
			paramsMap["properties"] = map[string]interface{}{
				"_": map[string]interface{}{
					"type":        "string",
					"description": "Unused parameter",
				},
			}
		}

		functionDef := shared.FunctionDefinitionParam{
			Name:       tool.Function.Name,
			Parameters: shared.FunctionParameters(paramsMap),
		}
		if tool.Function.Description != "" {
			functionDef.Description = param.NewOpt(tool.Function.Description)
		}
		openaiTools = append(openaiTools, openai.ChatCompletionFunctionTool(functionDef))
	}

	return openaiTools
}

// convertToolChoice converts llmtypes tool choice to OpenAI tool choice format
func convertToolChoice(tc *llmtypes.ToolChoice) openai.ChatCompletionToolChoiceOptionUnionParam {
	if tc.Function != nil && tc.Function.Name != "" {
		return openai.ToolChoiceOptionFunctionToolChoice(openai.ChatCompletionNamedToolChoiceFunctionParam{
			Name: tc.Function.Name,
		})
	}
	switch tc.Type {
	case "none", "required":
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt(tc.Type)}
	default:
		return openai.ChatCompletionToolChoiceOptionUnionParam{OfAuto: param.NewOpt("auto")}
	}
}

// convertResponse converts OpenAI response to llmtypes ContentResponse
func (o *OpenAIAdapter) convertResponse(result *openai.ChatCompletion) (*llmtypes.ContentResponse, error) {
	if result == nil || len(result.Choices) == 0 {
		return nil, llmtypes.MalformedResponse(o.provider, "response has no choices")
	}

	choice := result.Choices[0]
	out := &llmtypes.ContentChoice{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, llmtypes.ToolCall{
			ID:   tc.ID,
			Type: "function",
			FunctionCall: &llmtypes.FunctionCall{
				Name:      tc.Function.Name,
				Arguments: args,
			},
		})
	}
	out.GenerationInfo = generationInfo(&result.Usage)

	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{out},
		Usage:   llmtypes.ExtractUsageFromGenerationInfo(out.GenerationInfo),
	}, nil
}

func generationInfo(usage *openai.CompletionUsage) *llmtypes.GenerationInfo {
	inputTokens := int(usage.PromptTokens)
	outputTokens := int(usage.CompletionTokens)
	totalTokens := int(usage.TotalTokens)
	info := &llmtypes.GenerationInfo{
		InputTokens:  &inputTokens,
		OutputTokens: &outputTokens,
		TotalTokens:  &totalTokens,
	}
	if cached := int(usage.PromptTokensDetails.CachedTokens); cached > 0 {
		info.CachedContentTokens = &cached
	}
	return info
}
