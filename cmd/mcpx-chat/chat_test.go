package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/manishiitg/mcpx-chat-go/interfaces"
	"github.com/manishiitg/mcpx-chat-go/internal/recorder"
	"github.com/manishiitg/mcpx-chat-go/llmtypes"
	"github.com/manishiitg/mcpx-chat-go/pkg/chat"
	"github.com/manishiitg/mcpx-chat-go/pkg/tools"
)

func echoBuiltin() tools.Builtin {
	return tools.Builtin{
		Descriptor: tools.Descriptor{
			Name:        "echo",
			Description: "Echo the text back",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"text": map[string]any{"type": "string"}},
			},
		},
		Handler: func(_ context.Context, args map[string]any) (*tools.Result, error) {
			text, _ := args["text"].(string)
			return &tools.Result{Content: []tools.Content{tools.Text(text)}}, nil
		},
	}
}

// queuedProvider answers with the queued turns in order.
func queuedProvider(turns ...*chat.AssistantTurn) chat.Provider {
	i := 0
	return chat.ProviderFunc(func(context.Context, []llmtypes.MessageContent, []tools.Descriptor) (*chat.AssistantTurn, error) {
		if i >= len(turns) {
			return nil, errors.New("no more turns")
		}
		i++
		return turns[i-1], nil
	})
}

func newTestREPL(t *testing.T, provider chat.Provider, input string) (*repl, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	catalogue := tools.NewCatalogue(nil, tools.CatalogueOptions{Builtins: []tools.Builtin{echoBuiltin()}})
	loop := chat.NewLoop(provider, catalogue, tools.NewInvoker(catalogue, nil, nil), chat.Options{
		Observer: &consoleObserver{out: out, imageDir: t.TempDir()},
	})
	return &repl{
		in:        strings.NewReader(input),
		out:       out,
		conv:      chat.NewConversation("system"),
		loop:      loop,
		catalogue: catalogue,
		logger:    interfaces.NoopLogger{},
	}, out
}

func TestREPL_ToolTurn(t *testing.T) {
	provider := queuedProvider(
		&chat.AssistantTurn{ToolCalls: []llmtypes.ToolCall{{
			ID:           "c1",
			Type:         "function",
			FunctionCall: &llmtypes.FunctionCall{Name: "echo", Arguments: `{"text":"pong"}`},
		}}},
		&chat.AssistantTurn{Text: "The tool said pong."},
	)
	r, out := newTestREPL(t, provider, "ping\n!exit\n")

	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	got := out.String()
	for _, want := range []string{
		`[Tool call: echo, args: {"text":"pong"}]`,
		"[Tool echo completed]",
		"The tool said pong.",
		"Goodbye!",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
	if err := r.conv.CheckPairing(); err != nil {
		t.Errorf("pairing: %v", err)
	}
}

func TestREPL_ErrorKeepsChatting(t *testing.T) {
	provider := chat.ProviderFunc(func(context.Context, []llmtypes.MessageContent, []tools.Descriptor) (*chat.AssistantTurn, error) {
		return nil, llmtypes.NewProviderError("claude", 401, errors.New("invalid x-api-key"))
	})
	r, out := newTestREPL(t, provider, "hello\nagain\nquit\n")

	if err := r.run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if n := strings.Count(out.String(), "ERROR>>"); n != 2 {
		t.Errorf("reported %d errors, want 2:\n%s", n, out.String())
	}
	if !strings.Contains(out.String(), "check the provider API key") {
		t.Errorf("auth hint missing:\n%s", out.String())
	}
}

func TestREPL_Commands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{name: "help", input: "!help\n", want: []string{"!refresh", "!history"}},
		{name: "tools", input: "!tools\n", want: []string{"Available tools:", "- echo"}},
		{name: "refresh", input: "!refresh\n", want: []string{"Reloaded 1 tools"}},
		{name: "clear", input: "!clear\n!history\n", want: []string{"Chat history cleared", "Conversation history (1 messages)"}},
		{name: "unknown", input: "!sh ls\n", want: []string{"Unknown command: !sh ls"}},
		{name: "end of input", input: "", want: []string{"Goodbye!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, out := newTestREPL(t, queuedProvider(), tt.input)
			if err := r.run(context.Background()); err != nil {
				t.Fatalf("run: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out.String(), want) {
					t.Errorf("output missing %q:\n%s", want, out.String())
				}
			}
		})
	}
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		hint string
	}{
		{name: "loop limit", err: &chat.LoopLimitError{Max: 3}, hint: "--max-iterations"},
		{name: "unreachable", err: fmt.Errorf("load tool catalogue: %w", &tools.UnreachableError{Err: errors.New("dial tcp")}), hint: "mcp.run session"},
		{name: "replay miss", err: fmt.Errorf("%w (hash abcd)", recorder.ErrNoRecording), hint: "not recorded"},
		{name: "rate limit", err: llmtypes.NewProviderError("openai", 429, errors.New("slow down")), hint: "rate limited"},
		{name: "plain", err: errors.New("boom"), hint: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := describeError(tt.err)
			if !strings.HasPrefix(got, tt.err.Error()) {
				t.Errorf("message lost: %q", got)
			}
			if tt.hint == "" && got != tt.err.Error() {
				t.Errorf("unexpected hint: %q", got)
			}
			if tt.hint != "" && !strings.Contains(got, tt.hint) {
				t.Errorf("hint %q missing from %q", tt.hint, got)
			}
		})
	}
}

func TestSaveImages(t *testing.T) {
	dir := t.TempDir()
	result := &tools.Result{Content: []tools.Content{
		tools.Text("a chart"),
		tools.Image("image/png", []byte("\x89PNG")),
	}}

	paths, err := saveImages(result, dir)
	if err != nil {
		t.Fatalf("saveImages: %v", err)
	}
	if len(paths) != 1 || !strings.HasSuffix(paths[0], ".png") {
		t.Fatalf("paths = %v", paths)
	}
	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "\x89PNG" {
		t.Errorf("image data = %q", data)
	}
}

func TestCallTool_FailedExecutionPrintsContent(t *testing.T) {
	chart := tools.Builtin{
		Descriptor: tools.Descriptor{Name: "chart"},
		Handler: func(context.Context, map[string]any) (*tools.Result, error) {
			return &tools.Result{IsError: true, Content: []tools.Content{
				tools.Text("render failed"),
				tools.Image("image/png", []byte("\x89PNG")),
			}}, nil
		},
	}
	inv := tools.NewInvoker(tools.NewCatalogue(nil, tools.CatalogueOptions{Builtins: []tools.Builtin{chart}}), nil, nil)

	var out bytes.Buffer
	err := callTool(context.Background(), &out, inv, "chart", "{}", t.TempDir())
	if tools.KindOf(err) != tools.KindExecutionFailure {
		t.Fatalf("err = %v, want execution failure", err)
	}
	if !strings.Contains(out.String(), "render failed") || !strings.Contains(out.String(), "[Image saved to ") {
		t.Errorf("output = %q", out.String())
	}
}

func TestCallTool_UnknownToolPrintsNothing(t *testing.T) {
	inv := tools.NewInvoker(tools.NewCatalogue(nil, tools.CatalogueOptions{}), nil, nil)

	var out bytes.Buffer
	err := callTool(context.Background(), &out, inv, "missing", "{}", t.TempDir())
	if tools.KindOf(err) != tools.KindUnknownTool || out.Len() != 0 {
		t.Errorf("err = %v, output = %q", err, out.String())
	}
}
