package llmproviders

import (
	"errors"
	"testing"

	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/adapters/promptemu"
)

func TestValidateProvider(t *testing.T) {
	for _, p := range Providers {
		got, err := ValidateProvider(string(p))
		if err != nil || got != p {
			t.Errorf("ValidateProvider(%q) = %q, %v", p, got, err)
		}
	}
	_, err := ValidateProvider("mistral")
	if !errors.Is(err, llmtypes.ErrConfiguration) {
		t.Errorf("unknown provider err = %v, want configuration error", err)
	}
}

func TestValidateToolMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ToolMode
		wantErr bool
	}{
		{in: "", want: ""},
		{in: "native", want: ToolModeNative},
		{in: "prompt", want: ToolModePrompt},
		{in: "json", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ValidateToolMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ValidateToolMode(%q) = %q, %v", tt.in, got, err)
		}
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv("OLLAMA_PRIMARY_MODEL", "")
	t.Setenv("CLAUDE_PRIMARY_MODEL", "claude-custom")

	if got := GetDefaultModel(ProviderClaude); got != "claude-custom" {
		t.Errorf("override ignored: %q", got)
	}
	if got := GetDefaultModel(ProviderOllama); got != "llama3.2" {
		t.Errorf("ollama default = %q", got)
	}
	if DefaultToolMode(ProviderLlamafile) != ToolModePrompt || DefaultToolMode(ProviderOpenAI) != ToolModeNative {
		t.Error("unexpected default tool modes")
	}
	if DefaultBaseURL(ProviderOllama) != "http://localhost:11434/v1" || DefaultBaseURL(ProviderClaude) != "" {
		t.Error("unexpected default base URLs")
	}
}

func TestInitializeLLM(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("LLAMAFILE_PRIMARY_MODEL", "")

	t.Run("missing key", func(t *testing.T) {
		_, err := InitializeLLM(Config{Provider: ProviderClaude})
		var ce *llmtypes.ConfigurationError
		if !errors.As(err, &ce) || ce.Field != "ANTHROPIC_API_KEY" {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("configured key", func(t *testing.T) {
		key := "sk-test"
		llm, err := InitializeLLM(Config{Provider: ProviderClaude, APIKeys: &ProviderAPIKeys{Anthropic: &key}})
		if err != nil {
			t.Fatalf("InitializeLLM: %v", err)
		}
		pa := llm.(*ProviderAwareLLM)
		if pa.GetProvider() != ProviderClaude || pa.GetModelID() != GetDefaultModel(ProviderClaude) {
			t.Errorf("llm = %s/%s", pa.GetProvider(), pa.GetModelID())
		}
	})

	t.Run("llamafile uses prompt tools", func(t *testing.T) {
		llm, err := InitializeLLM(Config{Provider: ProviderLlamafile})
		if err != nil {
			t.Fatalf("InitializeLLM: %v", err)
		}
		if _, ok := llm.(*ProviderAwareLLM).Model.(*promptemu.Adapter); !ok {
			t.Errorf("wrapped model = %T", llm.(*ProviderAwareLLM).Model)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		if _, err := InitializeLLM(Config{Provider: "nope"}); !errors.Is(err, llmtypes.ErrConfiguration) {
			t.Errorf("err = %v", err)
		}
	})
}
