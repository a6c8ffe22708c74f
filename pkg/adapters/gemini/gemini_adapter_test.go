package gemini

import (
	"encoding/json"
	"errors"
	"testing"

	"google.golang.org/genai"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
)

func TestConvertMessages(t *testing.T) {
	contents, system := convertMessages([]llmtypes.MessageContent{
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "one"),
		llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, "two"),
		llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, "compute"),
		{Role: llmtypes.ChatMessageTypeAI, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCall{ID: "c1", FunctionCall: &llmtypes.FunctionCall{Name: "eval_js", Arguments: `{"code":"1+1"}`}},
			llmtypes.ToolCall{ID: "c2", FunctionCall: &llmtypes.FunctionCall{Name: "fetch", Arguments: `not json`}},
		}},
		{Role: llmtypes.ChatMessageTypeTool, Parts: []llmtypes.ContentPart{
			llmtypes.ToolCallResponse{ToolCallID: "c1", Content: "2"},
			llmtypes.ToolCallResponse{ToolCallID: "c2", Name: "fetch", Content: "Error: 404", IsError: true},
		}},
	})

	if system != "one\ntwo" {
		t.Errorf("system = %q", system)
	}
	if len(contents) != 3 {
		t.Fatalf("contents = %d, want 3", len(contents))
	}
	model := contents[1]
	if model.Role != genai.RoleModel || len(model.Parts) != 2 {
		t.Fatalf("model content = %+v", model)
	}
	if model.Parts[0].FunctionCall.Args["code"] != "1+1" || len(model.Parts[1].FunctionCall.Args) != 0 {
		t.Errorf("function call args = %v / %v", model.Parts[0].FunctionCall.Args, model.Parts[1].FunctionCall.Args)
	}

	responses := contents[2]
	if responses.Role != genai.RoleUser || len(responses.Parts) != 2 {
		t.Fatalf("tool responses should share one content: %+v", responses)
	}
	first := responses.Parts[0].FunctionResponse
	if first.Name != "eval_js" || first.ID != "c1" || first.Response["output"] != "2" {
		t.Errorf("first response = %+v", first)
	}
	if second := responses.Parts[1].FunctionResponse; second.Response["error"] != "Error: 404" {
		t.Errorf("error response = %+v", second)
	}
}

func TestConvertTools(t *testing.T) {
	got := convertTools([]llmtypes.Tool{
		{Function: &llmtypes.FunctionDefinition{Name: "a", Parameters: llmtypes.NewParameters(map[string]any{"type": "object"})}},
		{Function: &llmtypes.FunctionDefinition{Name: "b"}},
		{Function: nil},
	})
	if len(got) != 1 || len(got[0].FunctionDeclarations) != 2 {
		t.Fatalf("tools = %+v", got)
	}
	if convertTools(nil) != nil {
		t.Error("no tools should produce nil")
	}
}

func TestConvertToolChoice(t *testing.T) {
	tests := []struct {
		choice *llmtypes.ToolChoice
		mode   genai.FunctionCallingConfigMode
	}{
		{choice: &llmtypes.ToolChoice{Type: "auto"}, mode: genai.FunctionCallingConfigModeAuto},
		{choice: &llmtypes.ToolChoice{Type: "none"}, mode: genai.FunctionCallingConfigModeNone},
		{choice: &llmtypes.ToolChoice{Type: "required"}, mode: genai.FunctionCallingConfigModeAny},
		{choice: &llmtypes.ToolChoice{Function: &llmtypes.FunctionName{Name: "x"}}, mode: genai.FunctionCallingConfigModeAny},
	}
	for _, tt := range tests {
		cfg := convertToolChoice(tt.choice).FunctionCallingConfig
		if cfg.Mode != tt.mode {
			t.Errorf("%+v: mode = %s, want %s", tt.choice, cfg.Mode, tt.mode)
		}
	}
	named := convertToolChoice(&llmtypes.ToolChoice{Function: &llmtypes.FunctionName{Name: "x"}})
	if names := named.FunctionCallingConfig.AllowedFunctionNames; len(names) != 1 || names[0] != "x" {
		t.Errorf("allowed names = %v", names)
	}
}

func TestArguments(t *testing.T) {
	if got := argumentsJSON(nil); got != "{}" {
		t.Errorf("argumentsJSON(nil) = %q", got)
	}
	if got := argumentsJSON(map[string]any{"n": 1}); got != `{"n":1}` {
		t.Errorf("argumentsJSON = %q", got)
	}
	if got := parseArguments(""); len(got) != 0 {
		t.Errorf("parseArguments empty = %v", got)
	}
	if got := parseArguments(`{"a":"b"}`); got["a"] != "b" {
		t.Errorf("parseArguments = %v", got)
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err  error
		kind llmtypes.ErrorKind
	}{
		{err: genai.APIError{Code: 429, Message: "quota"}, kind: llmtypes.ErrorKindRateLimit},
		{err: &genai.APIError{Code: 403, Message: "denied"}, kind: llmtypes.ErrorKindAuth},
		{err: errors.New("connection reset"), kind: llmtypes.ErrorKindTransport},
	}
	for _, tt := range tests {
		pe, ok := llmtypes.AsProviderError(classifyError(tt.err))
		if !ok || pe.Kind != tt.kind || pe.Provider != "gemini" {
			t.Errorf("classifyError(%v) = %+v", tt.err, pe)
		}
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

func TestConvertTools_Schema(t *testing.T) {
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
			got := convertTools([]llmtypes.Tool{{Function: &llmtypes.FunctionDefinition{
				Name:       "eval_js",
				Parameters: llmtypes.NewParameters(tt.params),
			}}})
			if len(got) != 1 || len(got[0].FunctionDeclarations) != 1 {
				t.Fatalf("tools = %+v", got)
			}
			raw, err := json.Marshal(got[0].FunctionDeclarations[0].ParametersJsonSchema)
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
