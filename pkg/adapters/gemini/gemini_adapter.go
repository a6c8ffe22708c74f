package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

const providerName = "gemini"

// GeminiAdapter is an adapter that implements llmtypes.Model interface
// using the Google GenAI SDK directly. It serves both the Gemini API and
// Vertex AI backends.
type GeminiAdapter struct {
	client  *genai.Client
	modelID string
	logger  interfaces.Logger
}

// NewGeminiAdapter creates a new adapter instance
func NewGeminiAdapter(client *genai.Client, modelID string, logger interfaces.Logger) *GeminiAdapter {
	if logger == nil {
		logger = interfaces.NoopLogger{}
	}
	return &GeminiAdapter{
		client:  client,
		modelID: modelID,
		logger:  logger,
	}
}

// GetModelID returns the configured model ID
func (g *GeminiAdapter) GetModelID() string {
	return g.modelID
}

// GenerateContent implements the llmtypes.Model interface. The streaming
// endpoint is used for every request; without a stream channel the chunks
// are only accumulated.
func (g *GeminiAdapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := llmtypes.ApplyOptions(options...)
	if opts.StreamChan != nil {
		defer close(opts.StreamChan)
	}

	modelID := g.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	contents, system := convertMessages(messages)
	config := &genai.GenerateContentConfig{}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		maxTokens := opts.MaxTokens
		if maxTokens > math.MaxInt32 {
			maxTokens = math.MaxInt32
		}
		config.MaxOutputTokens = int32(maxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if len(opts.Tools) > 0 {
		config.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			config.ToolConfig = convertToolChoice(opts.ToolChoice)
		}
	}

	g.logger.Debugf("Gemini request - model: %s, contents: %d, tools: %d", modelID, len(contents), len(opts.Tools))

	var text strings.Builder
	var toolCalls []llmtypes.ToolCall
	var usage *genai.GenerateContentResponseUsageMetadata
	var finishReason string
	// Parallel calls may carry the signature on the first part only
	var sharedSignature []byte

	for response, err := range g.client.Models.GenerateContentStream(ctx, modelID, contents, config) {
		if err != nil {
			g.logger.Errorf("Gemini streaming error - model: %s, error: %v", modelID, err)
			return nil, classifyError(err)
		}
		if response.UsageMetadata != nil {
			usage = response.UsageMetadata
		}

		for _, candidate := range response.Candidates {
			if candidate.FinishReason != "" {
				finishReason = string(candidate.FinishReason)
			}
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if len(part.ThoughtSignature) > 0 && sharedSignature == nil {
					sharedSignature = part.ThoughtSignature
				}
				if part.Text != "" && !part.Thought {
					text.WriteString(part.Text)
					if err := send(ctx, opts.StreamChan, llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeContent, Content: part.Text}); err != nil {
						return nil, err
					}
				}
				if part.FunctionCall == nil {
					continue
				}

				id := part.FunctionCall.ID
				if id == "" {
					id = "call_" + uuid.NewString()
				}
				signature := part.ThoughtSignature
				if len(signature) == 0 {
					signature = sharedSignature
				}
				toolCall := llmtypes.ToolCall{
					ID:               id,
					Type:             "function",
					ThoughtSignature: signature,
					FunctionCall: &llmtypes.FunctionCall{
						Name:      part.FunctionCall.Name,
						Arguments: argumentsJSON(part.FunctionCall.Args),
					},
				}
				toolCalls = append(toolCalls, toolCall)
				if err := send(ctx, opts.StreamChan, llmtypes.StreamChunk{Type: llmtypes.StreamChunkTypeToolCall, ToolCall: &toolCall}); err != nil {
					return nil, err
				}
			}
		}
	}

	choice := &llmtypes.ContentChoice{
		Content:        text.String(),
		StopReason:     finishReason,
		ToolCalls:      toolCalls,
		GenerationInfo: generationInfo(usage),
	}
	return &llmtypes.ContentResponse{
		Choices: []*llmtypes.ContentChoice{choice},
		Usage:   llmtypes.ExtractUsageFromGenerationInfo(choice.GenerationInfo),
	}, nil
}

func send(ctx context.Context, ch chan<- llmtypes.StreamChunk, chunk llmtypes.StreamChunk) error {
	if ch == nil {
		return nil
	}
	select {
	case ch <- chunk:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classifyError maps SDK failures onto provider error kinds.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmtypes.NewProviderError(providerName, apiErr.Code, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return llmtypes.NewProviderError(providerName, apiErrPtr.Code, err)
	}
	return llmtypes.NewProviderError(providerName, 0, err)
}

// convertMessages converts llmtypes messages to genai contents. System text
// is returned separately for the system instruction.
func convertMessages(messages []llmtypes.MessageContent) ([]*genai.Content, string) {
	contents := make([]*genai.Content, 0, len(messages))
	var system []string

	// Function responses are matched to calls by name, so remember them
	callNames := make(map[string]string)
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tc, ok := part.(llmtypes.ToolCall); ok && tc.FunctionCall != nil {
				callNames[tc.ID] = tc.FunctionCall.Name
			}
		}
	}

	for _, msg := range messages {
		var parts []*genai.Part
		role := genai.RoleUser

		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			for _, part := range msg.Parts {
				if t, ok := part.(llmtypes.TextContent); ok && t.Text != "" {
					system = append(system, t.Text)
				}
			}
			continue
		case llmtypes.ChatMessageTypeAI:
			role = genai.RoleModel
		}

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				if p.Text != "" {
					parts = append(parts, genai.NewPartFromText(p.Text))
				}
			case llmtypes.ImageContent:
				if img := imagePart(p); img != nil {
					parts = append(parts, img)
				}
			case llmtypes.ToolCall:
				if p.FunctionCall == nil {
					continue
				}
				gp := genai.NewPartFromFunctionCall(p.FunctionCall.Name, parseArguments(p.FunctionCall.Arguments))
				gp.FunctionCall.ID = p.ID
				gp.ThoughtSignature = p.ThoughtSignature
				parts = append(parts, gp)
			case llmtypes.ToolCallResponse:
				name := p.Name
				if name == "" {
					name = callNames[p.ToolCallID]
				}
				key := "output"
				if p.IsError {
					key = "error"
				}
				gp := genai.NewPartFromFunctionResponse(name, map[string]any{key: p.Content})
				gp.FunctionResponse.ID = p.ToolCallID
				parts = append(parts, gp)
			}
		}

		if len(parts) > 0 {
			contents = append(contents, genai.NewContentFromParts(parts, genai.Role(role)))
		}
	}
	return contents, strings.Join(system, "\n")
}

func imagePart(img llmtypes.ImageContent) *genai.Part {
	switch img.SourceType {
	case "base64":
		data, err := base64.StdEncoding.DecodeString(img.Data)
		if err != nil {
			return nil
		}
		return genai.NewPartFromBytes(data, img.MediaType)
	case "url":
		return genai.NewPartFromURI(img.Data, img.MediaType)
	}
	return nil
}

// convertTools converts llmtypes tools to genai tools. All declarations go
// into a single Tool; Gemini rejects several function tools.
func convertTools(llmTools []llmtypes.Tool) []*genai.Tool {
	declarations := make([]*genai.FunctionDeclaration, 0, len(llmTools))
	for _, tool := range llmTools {
		if tool.Function == nil || tool.Function.Name == "" {
			continue
		}
		declarations = append(declarations, &genai.FunctionDeclaration{
			Name:                 tool.Function.Name,
			Description:          tool.Function.Description,
			ParametersJsonSchema: tool.Function.Parameters.Map(),
		})
	}
	if len(declarations) == 0 {
		return nil
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

func convertToolChoice(tc *llmtypes.ToolChoice) *genai.ToolConfig {
	config := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{}}
	switch {
	case tc.Function != nil && tc.Function.Name != "":
		config.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAny
		config.FunctionCallingConfig.AllowedFunctionNames = []string{tc.Function.Name}
	case tc.Type == "none":
		config.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeNone
	case tc.Type == "required":
		config.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAny
	default:
		config.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAuto
	}
	return config
}

func generationInfo(usage *genai.GenerateContentResponseUsageMetadata) *llmtypes.GenerationInfo {
	if usage == nil {
		return nil
	}
	input := int(usage.PromptTokenCount)
	output := int(usage.CandidatesTokenCount)
	total := int(usage.TotalTokenCount)
	info := &llmtypes.GenerationInfo{
		InputTokens:  &input,
		OutputTokens: &output,
		TotalTokens:  &total,
	}
	if cached := int(usage.CachedContentTokenCount); cached > 0 {
		info.CachedContentTokens = &cached
	}
	return info
}

func argumentsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	data, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func parseArguments(raw string) map[string]any {
	args := map[string]any{}
	if raw == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{}
	}
	return args
}
