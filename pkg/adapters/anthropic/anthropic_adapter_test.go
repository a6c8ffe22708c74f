package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

const toolUseStream = `event: message_start
data: {"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-20241022","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Checking."}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"eval_js","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"code\": \"2+2\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":20}}

event: message_stop
data: {"type":"message_stop"}

`

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *AnthropicAdapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := anthropic.NewClient(
		option.WithAPIKey("test-key"),
		option.WithBaseURL(srv.URL),
		option.WithMaxRetries(0),
	)
	return NewAnthropicAdapter(client, "claude-3-5-sonnet-20241022", nil)
}

func TestGenerateContent_ToolUse(t *testing.T) {
	var body map[string]any
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(toolUseStream))
	})

	tools := []llmtypes.Tool{{Type: "function", Function: &llmtypes.FunctionDefinition{
		Name:        "eval_js",
		Description: "Evaluate javascript",
		Parameters: llmtypes.NewParameters(map[string]any{
			"type":       "object",
			"properties": map[string]any{"code": map[string]any{"type": "string"}},
			"required":   []any{"code"},
		}),
	}}}
	ch := make(chan llmtypes.StreamChunk, 8)
	resp, err := adapter.GenerateContent(context.Background(), []llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "be brief"),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "what is 2+2?"),
	}, llmtypes.WithTools(tools), llmtypes.WithStreamingChan(ch))
	if err != nil {
		t.Fatalf("GenerateContent: %v", err)
	}

	if sys, ok := body["system"].([]any); !ok || len(sys) != 1 {
		t.Errorf("system = %v", body["system"])
	}
	if msgs, ok := body["messages"].([]any); !ok || len(msgs) != 1 {
		t.Errorf("messages = %v", body["messages"])
	}
	if sent, ok := body["tools"].([]any); !ok || len(sent) != 1 {
		t.Errorf("tools = %v", body["tools"])
	}

	choice := resp.Choices[0]
	if choice.Content != "Checking." {
		t.Errorf("content = %q", choice.Content)
	}
	if len(choice.ToolCalls) != 1 {
		t.Fatalf("tool calls = %+v", choice.ToolCalls)
	}
	call := choice.ToolCalls[0]
	var args map[string]string
	if err := json.Unmarshal([]byte(call.FunctionCall.Arguments), &args); err != nil || args["code"] != "2+2" {
		t.Errorf("arguments = %q (%v)", call.FunctionCall.Arguments, err)
	}
	if call.ID != "toolu_1" || call.FunctionCall.Name != "eval_js" {
		t.Errorf("call = %+v", call)
	}

	var kinds []llmtypes.StreamChunkType
	for chunk := range ch {
		kinds = append(kinds, chunk.Type)
	}
	if len(kinds) != 2 || kinds[0] != llmtypes.StreamChunkTypeContent || kinds[1] != llmtypes.StreamChunkTypeToolCall {
		t.Errorf("stream chunks = %v", kinds)
	}
}

func TestGenerateContent_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		kind   llmtypes.ErrorKind
	}{
		{name: "auth", status: http.StatusUnauthorized, kind: llmtypes.ErrorKindAuth},
		{name: "rate limit", status: http.StatusTooManyRequests, kind: llmtypes.ErrorKindRateLimit},
		{name: "overloaded", status: 529, kind: llmtypes.ErrorKindServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"type":"error","error":{"type":"error","message":"nope"}}`))
			})
			_, err := adapter.GenerateContent(context.Background(), []llmtypes.MessageContent{
				llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "hi"),
			})
			pe, ok := llmtypes.AsProviderError(err)
			if !ok {
				t.Fatalf("err = %v, want ProviderError", err)
			}
			if pe.Kind != tt.kind || pe.StatusCode != tt.status || pe.Provider != "claude" {
				t.Errorf("ProviderError = %+v", pe)
			}
		})
	}
}

func TestConvertMessages_ToolRoundTrip(t *testing.T) {
	msgs, system := convertMessages([]llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "sys"),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "run two tools"),
		{Role: llmtypes.ChatMessageTypeAI, Parts: []llmtypes.ContentPart{
			llmtypes.TextContent{Text: "on it"},
			llmtypes.ToolCall{ID: "a", FunctionCall: &llmtypes.FunctionCall{Name: "f", Arguments: `{"x":1}`}},
			llmtypes.ToolCall{ID: "b", FunctionCall: &llmtypes.FunctionCall{Name: "g", Arguments: ``}},
		}},
		{Role: llmtypes.ChatMessageTypeTool, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCallResponse{ToolCallID: "a", Name: "f", Content: "1"},
			llmtypes.ToolCallResponse{ToolCallID: "b", Name: "g", Content: "Error: no", IsError: true},
		}},
	})

	if system != "sys" {
		t.Errorf("system = %q", system)
	}
	if len(msgs) != 3 {
		t.Fatalf("messages = %d, want 3", len(msgs))
	}
	if msgs[1].Role != anthropic.MessageParamRoleAssistant || len(msgs[1].Content) != 3 {
		t.Errorf("assistant message = %+v", msgs[1])
	}
	results := msgs[2]
	if results.Role != anthropic.MessageParamRoleUser || len(results.Content) != 2 {
		t.Fatalf("tool results should share one user message: %+v", results)
	}
	second := results.Content[1].OfToolResult
	if second == nil || second.ToolUseID != "b" || !second.IsError.Value {
		t.Errorf("second result = %+v", second)
	}
}

func TestConvertToolChoice(t *testing.T) {
	if c := convertToolChoice(&llmtypes.ToolChoice{Type: "required"}); c.OfAny == nil {
		t.Error("required should map to any")
	}
	if c := convertToolChoice(&llmtypes.ToolChoice{Type: "none"}); c.OfNone == nil {
		t.Error("none should map to none")
	}
	if c := convertToolChoice(&llmtypes.ToolChoice{Function: &llmtypes.FunctionName{Name: "f"}}); c.OfTool == nil || c.OfTool.Name != "f" {
		t.Errorf("named choice = %+v", c)
	}
}

func TestConvertMessages_EmptyToolResult(t *testing.T) {
	msgs, _ := convertMessages([]llmtypes.MessageContent{
		{Role: llmtypes.ChatMessageTypeTool, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCallResponse{ToolCallID: "a", Name: "f"},
		}},
	})
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	raw, err := json.Marshal(msgs[0])
	if err != nil {
		t.Fatal(err)
	}
	var decoded struct {
		Content []struct {
			Type    string `json:"type"`
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
		} `json:"content"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	block := decoded.Content[0]
	if block.Type != "tool_result" || len(block.Content) != 1 || block.Content[0].Text != llmtypes.NoToolOutput {
		t.Errorf("tool result = %s", raw)
	}
}

func TestConvertTools_Schema(t *testing.T) {
	tests := []struct {
		name         string
		params       map[string]any
		wantProps    map[string]string
		wantRequired []string
	}{
		{
			name: "typed properties with required",
			params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"code": map[string]any{"type": "string"},
					"n":    map[string]any{"type": "integer"},
				},
				"required": []any{"code"},
			},
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
			got := convertTools([]llmtypes.Tool{{Type: "function", Function: &llmtypes.FunctionDefinition{
				Name:        "eval_js",
				Description: "Evaluate javascript",
				Parameters:  llmtypes.NewParameters(tt.params),
			}}})
			if len(got) != 1 || got[0].OfTool == nil {
				t.Fatalf("tools = %+v", got)
			}
			raw, err := json.Marshal(got[0].OfTool)
			if err != nil {
				t.Fatal(err)
			}
			var decoded struct {
				Name        string         `json:"name"`
				InputSchema map[string]any `json:"input_schema"`
			}
			if err := json.Unmarshal(raw, &decoded); err != nil {
				t.Fatal(err)
			}
			if decoded.Name != "eval_js" || decoded.InputSchema["type"] != "object" {
				t.Errorf("tool = %s", raw)
			}
			checkSchema(t, decoded.InputSchema, tt.wantProps, tt.wantRequired)
		})
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
