package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fakeCaller records calls and answers from a per-tool table.
type fakeCaller struct {
	results map[string]*Result
	errs    map[string]error
	called  []string
	args    []map[string]any
}

func (f *fakeCaller) CallTool(_ context.Context, name string, args map[string]any) (*Result, error) {
	f.called = append(f.called, name)
	f.args = append(f.args, args)
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	return f.results[name], nil
}

var greetSchema = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"name": map[string]any{"type": "string"},
	},
	"required": []any{"name"},
}

func newTestInvoker(caller Caller) *Invoker {
	src := &fakeSource{tools: []Descriptor{
		{Name: "greet", InputSchema: greetSchema},
		{Name: "crash"},
		{Name: "flaky"},
	}}
	upper := Builtin{
		Descriptor: Descriptor{Name: "upper"},
		Handler: func(_ context.Context, args map[string]any) (*Result, error) {
			s, _ := args["s"].(string)
			return &Result{Content: []Content{Text(strings.ToUpper(s))}}, nil
		},
	}
	return NewInvoker(NewCatalogue(src, CatalogueOptions{Builtins: []Builtin{upper}}), caller, nil)
}

func TestInvoker_Call(t *testing.T) {
	caller := &fakeCaller{
		results: map[string]*Result{
			"greet": {Content: []Content{Text("hello ada")}},
			"crash": {Content: []Content{Text("division by zero")}, IsError: true},
		},
		errs: map[string]error{"flaky": errors.New("connection reset")},
	}
	inv := newTestInvoker(caller)

	tests := []struct {
		name     string
		tool     string
		args     string
		wantText string
		wantKind ErrorKind
	}{
		{name: "success", tool: "greet", args: `{"name":"ada"}`, wantText: "hello ada"},
		{name: "builtin", tool: "upper", args: `{"s":"abc"}`, wantText: "ABC"},
		{name: "unknown tool", tool: "nope", args: `{}`, wantKind: KindUnknownTool},
		{name: "malformed json", tool: "greet", args: `{"name":`, wantKind: KindInvalidArguments},
		{name: "not an object", tool: "greet", args: `[1,2]`, wantKind: KindInvalidArguments},
		{name: "schema violation", tool: "greet", args: `{}`, wantKind: KindInvalidArguments},
		{name: "execution failure", tool: "crash", args: ``, wantKind: KindExecutionFailure},
		{name: "transport failure", tool: "flaky", args: `{}`, wantKind: KindTransportFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := inv.Call(context.Background(), tt.tool, tt.args)
			if tt.wantKind != "" {
				if KindOf(err) != tt.wantKind {
					t.Fatalf("err = %v, want kind %s", err, tt.wantKind)
				}
				var te *ToolError
				if errors.As(err, &te) && te.Tool != tt.tool {
					t.Errorf("ToolError.Tool = %q", te.Tool)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.String() != tt.wantText {
				t.Errorf("result = %q, want %q", res.String(), tt.wantText)
			}
		})
	}

	for _, name := range caller.called {
		if name == "nope" || name == "upper" {
			t.Errorf("%s should never reach the remote caller", name)
		}
	}
}

func TestInvoker_ExecutionFailureKeepsContent(t *testing.T) {
	caller := &fakeCaller{results: map[string]*Result{
		"crash": {Content: []Content{Text("division by zero")}, IsError: true},
	}}
	_, err := newTestInvoker(caller).Call(context.Background(), "crash", "{}")

	res := ErrorResult(err)
	if !res.IsError || res.String() != "division by zero" {
		t.Errorf("ErrorResult = %+v", res)
	}
}

func TestInvoker_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	caller := &fakeCaller{errs: map[string]error{"flaky": context.Canceled}}
	inv := newTestInvoker(caller)
	if _, err := inv.Call(ctx, "upper", `{"s":"a"}`); err != nil {
		t.Fatal(err)
	}
	cancel()

	_, err := inv.Call(ctx, "flaky", "{}")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if KindOf(err) != "" {
		t.Errorf("cancellation reported as tool error kind %s", KindOf(err))
	}
}

func TestParseArguments(t *testing.T) {
	tests := []struct {
		raw     string
		wantLen int
		wantErr bool
	}{
		{raw: "", wantLen: 0},
		{raw: "null", wantLen: 0},
		{raw: "  {} ", wantLen: 0},
		{raw: `{"a":1,"b":"x"}`, wantLen: 2},
		{raw: `"str"`, wantErr: true},
		{raw: `{`, wantErr: true},
	}
	for _, tt := range tests {
		args, err := ParseArguments(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseArguments(%q) err = %v", tt.raw, err)
			continue
		}
		if !tt.wantErr && len(args) != tt.wantLen {
			t.Errorf("ParseArguments(%q) = %v", tt.raw, args)
		}
	}
}
