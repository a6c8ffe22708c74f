package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

const providerName = "bedrock"

const jsonInstruction = "You must respond with valid JSON only. Return pure JSON with no markdown code blocks and no additional text."

// ConverseAPI is the subset of the Bedrock runtime client used here.
type ConverseAPI interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// BedrockAdapter is an adapter that implements llmtypes.Model interface
// using the AWS Bedrock Converse API
type BedrockAdapter struct {
	client  ConverseAPI
	modelID string
	logger  interfaces.Logger
}

// NewBedrockAdapter creates a new adapter instance
func NewBedrockAdapter(client ConverseAPI, modelID string, logger interfaces.Logger) *BedrockAdapter {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &BedrockAdapter{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// GetModelID returns the configured model ID
func (b *BedrockAdapter) GetModelID() string {
	return b.modelID
}

// GenerateContent implements the llmtypes.Model interface
func (b *BedrockAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)
	if opts.StreamChan != nil {
		defer close(opts.StreamChan)
	}

	modelID := b.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	converseMessages, system := convertMessagesToConverse(messages)
	if opts.JSONMode {
		system = append(system, &types.SystemContentBlockMemberText{Value: jsonInstruction})
	}

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}
	if maxTokens > math.MaxInt32 {
		maxTokens = math.MaxInt32
	}
	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(modelID),
		Messages: converseMessages,
		InferenceConfig: &types.InferenceConfiguration{
			MaxTokens: aws.Int32(int32(maxTokens)),
		},
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		input.InferenceConfig.Temperature = &temp
	}
	if len(system) > 0 {
		input.System = system
	}
	if len(opts.Tools) > 0 {
		input.ToolConfig = &types.ToolConfiguration{Tools: convertToolsToConverse(opts.Tools)}
		if opts.ToolChoice != nil {
			input.ToolConfig.ToolChoice = convertToolChoiceToConverse(opts.ToolChoice)
		}
	}

	b.logger.Debugf("Bedrock request - model: %s, messages: %d, tools: %d", modelID, len(converseMessages), len(opts.Tools))

	result, err := b.client.Converse(ctx, input)
	if err != nil {
		b.logger.Errorf("Bedrock Converse error - model: %s, error: %v", modelID, err)
		return nil, classifyError(err)
	}

	resp, err := convertConverseResponse(result)
	if err != nil {
		return nil, err
	}
	if opts.StreamChan != nil {
		choice := resp.Choices[0]
		if choice.Content != "" {
			select {
			case opts.StreamChan <- llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeContent, Content: choice.Content}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		for i := range choice.ToolCalls {
			tc := choice.ToolCalls[i]
			select {
			case opts.StreamChan <- llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeToolCall, ToolCall: &tc}:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return resp, nil
}

// classifyError maps AWS failures onto provider error kinds. Throttling is
// reported as a rate limit whatever the status code.
func classifyError(err error) error {
	status := 0
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		status = respErr.HTTPStatusCode()
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "ServiceQuotaExceededException":
			status = 429
		case "AccessDeniedException", "UnrecognizedClientException":
			status = 403
		}
	}
	return llmtypes.NewProviderError(providerName, status, err)
}

// convertMessagesToConverse converts llmtypes messages to Converse messages.
// System text is returned as system blocks.
func convertMessagesToConverse(langMessages []llmtypes.MessageContent) ([]types.Message, []types.SystemContentBlock) {
	converseMessages := make([]types.Message, 0, len(langMessages))
	var system []types.SystemContentBlock

	for _, msg := range langMessages {
		if msg.Role == llmtypes.ChatMessageTypeSystem {
			for _, part := range msg.Parts {
				if p, ok := part.(llmtypes.TextContent); ok && p.Text != "" {
					system = append(system, &types.SystemContentBlockMemberText{Value: p.Text})
				}
			}
			continue
		}

		var blocks []types.ContentBlock
		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				if p.Text != "" {
					blocks = append(blocks, &types.ContentBlockMemberText{Value: p.Text})
				}
			case llmtypes.ToolCallResponse:
				result := types.ToolResultBlock{
					ToolUseId: aws.String(p.ToolCallID),
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: p.ContentOrPlaceholder()},
					},
				}
				if p.IsError {
					result.Status = types.ToolResultStatusError
				}
				blocks = append(blocks, &types.ContentBlockMemberToolResult{Value: result})
			case llmtypes.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				blocks = append(blocks, &types.ContentBlockMemberToolUse{
					Value: types.ToolUseBlock{
						ToolUseId: aws.String(p.ID),
						Name:      aws.String(p.FunctionCall.Name),
						Input:     document.NewLazyDocument(parseArguments(p.FunctionCall.Arguments)),
					},
				})
			}
		}
		if len(blocks) == 0 {
			continue
		}

		role := types.ConversationRoleUser
		if msg.Role == llmtypes.ChatMessageTypeAI {
			role = types.ConversationRoleAssistant
		}
		converseMessages = append(converseMessages, types.Message{Role: role, Content: blocks})
	}

	return converseMessages, system
}

func parseArguments(raw string) map[string]interface{} {
	args := map[string]interface{}{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]interface{}{}
	}
	return args
}

// convertToolsToConverse converts llmtypes tools to Converse API format
func convertToolsToConverse(llmTools []llmtypes.Tool) []types.Tool {
	converseTools := make([]types.Tool, 0, len(llmTools))
	for _, tool := range llmTools {
		if tool.Function == nil {
			continue
		}
		spec := types.ToolSpecification{
			Name: aws.String(tool.Function.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{
				Value: document.NewLazyDocument(tool.Function.Parameters.Map()),
			},
		}
		if tool.Function.Description != "" {
			spec.Description = aws.String(tool.Function.Description)
		}
		converseTools = append(converseTools, &types.ToolMemberToolSpec{Value: spec})
	}
	return converseTools
}

// convertToolChoiceToConverse converts llmtypes tool choice to Converse API
// format. Converse has no "none", so it falls back to auto.
func convertToolChoiceToConverse(tc *llmtypes.ToolChoice) types.ToolChoice {
	switch {
	case tc.Function != nil && tc.Function.Name != "":
		return &types.ToolChoiceMemberTool{Value: types.SpecificToolChoice{Name: aws.String(tc.Function.Name)}}
	case tc.Type == "required" || tc.Type == "any":
		return &types.ToolChoiceMemberAny{}
	default:
		return &types.ToolChoiceMemberAuto{}
	}
}

// convertConverseResponse converts Converse API response to llmtypes.ContentResponse format
func convertConverseResponse(result *bedrockruntime.ConverseOutput) (*llmtypes.ContentResponse, error) {
	msgOutput, ok := result.Output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return nil, llmtypes.MalformedResponse(providerName, "unexpected converse output %T", result.Output)
	}

	var text []string
	var toolCalls []llmtypes.ToolCall
	for _, block := range msgOutput.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text = append(text, b.Value)
		case *types.ContentBlockMemberToolUse:
			inputJSON := "{}"
			if b.Value.Input != nil {
				data, err := b.Value.Input.MarshalSmithyDocument()
				if err != nil {
					return nil, llmtypes.MalformedResponse(providerName, "tool input for %s: %v", aws.ToString(b.Value.Name), err)
				}
				inputJSON = string(data)
			}
			toolCalls = append(toolCalls, llmtypes.ToolCall{
				ID:   aws.ToString(b.Value.ToolUseId),
				Type: "function",
				FunctionCall: &llmtypes.FunctionCall{
					Name:      aws.ToString(b.Value.Name),
					Arguments: inputJSON,
				},
			})
		}
	}

	choice := &llmtypes.ContentChoice{
		Content:    strings.Join(text, "\n"),
		StopReason: string(result.StopReason),
		ToolCalls:  toolCalls,
	}
	if result.Usage != nil {
		inputTokens := int(aws.ToInt32(result.Usage.InputTokens))
		outputTokens := int(aws.ToInt32(result.Usage.OutputTokens))
		totalTokens := int(aws.ToInt32(result.Usage.TotalTokens))
		choice.GenerationInfo = &llmtypes.GenerationInfo{
			InputTokens:  &inputTokens,
			OutputTokens: &outputTokens,
			TotalTokens:  &totalTokens,
		}
	}

	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{choice},
		Usage:   llmtypes.ExtractUsageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}
