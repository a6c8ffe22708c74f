package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

// fakeConverse captures the request and replays a canned output.
type fakeConverse struct {
	input  *bedrockruntime.ConverseInput
	output *bedrockruntime.ConverseOutput
	err    error
}

func (f *fakeConverse) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.input = params
	return f.output, f.err
}

func toolUseOutput() *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &types.ConverseOutputMemberMessage{Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "Let me compute that."},
				&types.ContentBlockMemberToolUse{Value: types.ToolUseBlock{
					ToolUseId: aws.String("tooluse_1"),
					Name:      aws.String("eval_js"),
					Input:     document.NewLazyDocument(map[string]any{"code": "2+2"}),
				}},
			},
		}},
		StopReason: types.StopReasonToolUse,
		Usage: &types.TokenUsage{
			InputTokens:  aws.Int32(10),
			OutputTokens: aws.Int32(5),
			TotalTokens:  aws.Int32(15),
		},
	}
}

func conversation() []llmtypes.MessageContent {
	return []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "be brief"),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "what is 2+2?"),
		{Role: llmtypes.ChatMessageTypeAI, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCall{ID: "t0", Type: "function", FunctionCall: &llmtypes.FunctionCall{Name: "eval_js", Arguments: `{"code":"1+1"}`}},
		}},
		{Role: llmtypes.ChatMessageTypeTool, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCallResponse{ToolCallID: "t0", Name: "eval_js", Content: "Error: boom", IsError: true},
		}},
	}
}

func TestGenerateContent_ToolUse(t *testing.T) {
	fake := &fakeConverse{output: toolUseOutput()}
	adapter := NewBedrockAdapter(fake, "anthropic.claude-3-haiku", nil)

	tools := []llmtypes.Tool{{Type: "function", Function: &llmtypes.FunctionDefinition{
		Name:        "eval_js",
		Description: "Evaluate javascript",
		Parameters:  llmtypes.NewParameters(map[string]any{"type": "object"}),
	}}}
	resp, err := adapter.GenerateContent(context.Background(), conversation(), llmtypes.WithTools(tools))
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}

	in := fake.input
	if aws.ToString(in.ModelId) != "anthropic.claude-3-haiku" {
		t.Errorf("model = %s", aws.ToString(in.ModelId))
	}
	if len(in.System) != 1 {
		t.Errorf("system blocks = %d, want 1", len(in.System))
	}
	if len(in.Messages) != 3 {
		t.Fatalf("messages = %d, want 3 (system goes separately)", len(in.Messages))
	}
	if in.Messages[1].Role != types.ConversationRoleAssistant {
		t.Errorf("tool call message role = %s", in.Messages[1].Role)
	}
	result, ok := in.Messages[2].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok || aws.ToString(result.Value.ToolUseId) != "t0" || result.Value.Status != types.ToolResultStatusError {
		t.Errorf("tool result block = %#v", in.Messages[2].Content[0])
	}
	if in.ToolConfig == nil || len(in.ToolConfig.Tools) != 1 {
		t.Errorf("tool config = %#v", in.ToolConfig)
	}

	choice := resp.Choices[0]
	if choice.Content != "Let me compute that." {
		t.Errorf("content = %q", choice.Content)
	}
	if len(choice.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(choice.ToolCalls))
	}
	call := choice.ToolCalls[0]
	if call.ID != "tooluse_1" || call.FunctionCall.Name != "eval_js" || call.FunctionCall.Arguments != `{"code":"2+2"}` {
		t.Errorf("tool call = %+v / %+v", call, call.FunctionCall)
	}
	if resp.Usage == nil || resp.Usage.InputTokens != 10 || resp.Usage.OutputTokens != 5 {
		t.Errorf("usage = %+v", resp.Usage)
	}
}

func TestGenerateContent_Streams(t *testing.T) {
	fake := &fakeConverse{output: toolUseOutput()}
	adapter := NewBedrockAdapter(fake, "m", nil)

	ch := make(chan llmtypes.StreamChunk, 8)
	if _, err := adapter.GenerateContent(context.Background(), conversation(), llmtypes.WithStreamingChan(ch)); err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}
	var kinds []llmtypes.StreamChunkType
	for chunk := range ch {
		kinds = append(kinds, chunk.Type)
	}
	if len(kinds) != 2 || kinds[0] != llmtypes.StreamChunkTypeContent || kinds[1] != llmtypes.StreamChunkTypeToolCall {
		t.Errorf("chunks = %v", kinds)
	}
}

func TestGenerateContent_Errors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		output *bedrockruntime.ConverseOutput
		check  func(*llmtypes.ProviderError) bool
	}{
		{
			name:  "throttled",
			err:   &smithy.GenericAPIError{Code: "ThrottlingException", Message: "slow down"},
			check: (*llmtypes.ProviderError).IsRateLimit,
		},
		{
			name:  "access denied",
			err:   &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "no"},
			check: (*llmtypes.ProviderError).IsAuth,
		},
		{
			name:   "unknown output",
			output: &bedrockruntime.ConverseOutput{},
			check:  func(pe *llmtypes.ProviderError) bool { return pe.Kind == llmtypes.ErrorKindMalformed },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := NewBedrockAdapter(&fakeConverse{output: tt.output, err: tt.err}, "m", nil)
			_, err := adapter.GenerateContent(context.Background(), conversation())
			pe, ok := llmtypes.AsProviderError(err)
			if !ok {
				t.Fatalf("err = %v, want ProviderError", err)
			}
			if pe.Provider != "bedrock" || !tt.check(pe) {
				t.Errorf("ProviderError = %+v", pe)
			}
			if tt.err != nil && !errors.Is(err, tt.err) {
				t.Error("cause not wrapped")
			}
		})
	}
}

func TestConvertToolChoice(t *testing.T) {
	if _, ok := convertToolChoiceToConverse(&llmtypes.ToolChoice{Type: "required"}).(*types.ToolChoiceMemberAny); !ok {
		t.Error("required should map to any")
	}
	named := convertToolChoiceToConverse(&llmtypes.ToolChoice{Function: &llmtypes.FunctionName{Name: "x"}})
	if tc, ok := named.(*types.ToolChoiceMemberTool); !ok || aws.ToString(tc.Value.Name) != "x" {
		t.Errorf("named choice = %#v", named)
	}
	if _, ok := convertToolChoiceToConverse(&llmtypes.ToolChoice{Type: "none"}).(*types.ToolChoiceMemberAuto); !ok {
		t.Error("none should fall back to auto")
	}
}

var codeSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"code": map[string]any{"type": "string"},
		"n":    map[string]any{"type": "integer"},
	},
	"required": []any{"code"},
}

func TestConvertToolsToConverse_Schema(t *testing.T) {
	tests := []struct {
		name         string
		params       map[string]any
		wantProps    map[string]string
		wantRequired []string
	}{
		{
			name:         "typed properties with required",
			params:       codeSchema,
			wantProps:    map[string]string{"code": "string", "n": "integer"},
			wantRequired: []string{"code"},
		},
		{
			name:      "no properties",
			params:    map[string]any{"type": "object"},
			wantProps: map[string]string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertToolsToConverse([]llmtypes.Tool{{Function: &llmtypes.FunctionDefinition{
				Name:        "eval_js",
				Description: "Evaluate javascript",
				Parameters:  llmtypes.NewParameters(tt.params),
			}}})
			if len(got) != 1 {
				t.Fatalf("tools = %#v", got)
			}
			spec, ok := got[0].(*types.ToolMemberToolSpec)
			if !ok || aws.ToString(spec.Value.Name) != "eval_js" {
				t.Fatalf("tool = %#v", got[0])
			}
			input, ok := spec.Value.InputSchema.(*types.ToolInputSchemaMemberJson)
			if !ok {
				t.Fatalf("input schema = %#v", spec.Value.InputSchema)
			}
			raw, err := input.Value.MarshalSmithyDocument()
			if err != nil {
				t.Fatal(err)
			}
			var schema map[string]any
			if err := json.Unmarshal(raw, &schema); err != nil {
				t.Fatal(err)
			}
			if schema["type"] != "object" {
				t.Errorf("schema = %s", raw)
			}
			checkSchema(t, schema, tt.wantProps, tt.wantRequired)
		})
	}
}

func TestConvertMessagesToConverse_EmptyToolResult(t *testing.T) {
	msgs, _ := convertMessagesToConverse([]llmtypes.MessageContent{
		{Role: llmtypes.ChatMessageTypeTool, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCallResponse{ToolCallID: "t0", Name: "eval_js", Content: "  "},
		}},
	})
	if len(msgs) != 1 || len(msgs[0].Content) != 1 {
		t.Fatalf("messages = %#v", msgs)
	}
	result, ok := msgs[0].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok || len(result.Value.Content) != 1 {
		t.Fatalf("block = %#v", msgs[0].Content[0])
	}
	text, ok := result.Value.Content[0].(*types.ToolResultContentBlockMemberText)
	if !ok || text.Value != llmtypes.NoToolOutput {
		t.Errorf("result content = %#v", result.Value.Content[0])
	}
}

// checkSchema compares the property types and required names of a decoded
// JSON schema.
func checkSchema(t *testing.T, schema map[string]any, wantProps map[string]string, wantRequired []string) {
	t.Helper()
	props, _ := schema["properties"].(map[string]any)
	if len(props) != len(wantProps) {
		t.Errorf("properties = %v, want %v", props, wantProps)
	}
	for name, typ := range wantProps {
		prop, _ := props[name].(map[string]any)
		if prop["type"] != typ {
			t.Errorf("property %s = %v, want type %s", name, props[name], typ)
		}
	}
	required, _ := schema["required"].([]any)
	if len(required) != len(wantRequired) {
		t.Fatalf("required = %v, want %v", schema["required"], wantRequired)
	}
	for i, name := range wantRequired {
		if required[i] != name {
			t.Errorf("required[%d] = %v, want %s", i, required[i], name)
		}
	}
}
