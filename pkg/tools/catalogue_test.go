package tools

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSource serves a fixed list and counts fetches.
type fakeSource struct {
	mu    sync.Mutex
	tools []Descriptor
	err   error
	calls int
}

func (s *fakeSource) ListTools(context.Context) ([]Descriptor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]Descriptor(nil), s.tools...), nil
}

func (s *fakeSource) fetches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func names(ds []Descriptor) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.Name
	}
	return out
}

func TestCatalogue_CachesUntilExpiry(t *testing.T) {
	src := &fakeSource{tools: []Descriptor{{Name: "fetch"}}}
	c := NewCatalogue(src, CatalogueOptions{RefreshInterval: time.Minute})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.Tools(ctx); err != nil {
			t.Fatalf("Tools: %v", err)
		}
	}
	if src.fetches() != 1 {
		t.Fatalf("fetches = %d, want 1", src.fetches())
	}

	now = now.Add(time.Minute)
	if _, err := c.Tools(ctx); err != nil {
		t.Fatalf("Tools after expiry: %v", err)
	}
	if src.fetches() != 2 {
		t.Errorf("fetches after expiry = %d, want 2", src.fetches())
	}
}

func TestCatalogue_NeverExpires(t *testing.T) {
	src := &fakeSource{tools: []Descriptor{{Name: "fetch"}}}
	c := NewCatalogue(src, CatalogueOptions{RefreshInterval: -1})
	now := time.Unix(1000, 0)
	c.now = func() time.Time { return now }

	_, _ = c.Tools(context.Background())
	now = now.Add(24 * time.Hour)
	_, _ = c.Tools(context.Background())
	if src.fetches() != 1 {
		t.Errorf("fetches = %d, want 1", src.fetches())
	}
}

func TestCatalogue_BuiltinsAndDuplicates(t *testing.T) {
	src := &fakeSource{tools: []Descriptor{
		{Name: "eval_js", Servlet: "eval-js"},
		{Name: "fetch", Servlet: "fetch"},
		{Name: "eval_js", Servlet: "other"},
	}}
	search := Builtin{Descriptor: Descriptor{Name: "search"}}
	c := NewCatalogue(src, CatalogueOptions{Builtins: []Builtin{search}})

	got, err := c.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	want := []string{"eval_js", "fetch", "search"}
	if g := names(got); len(g) != len(want) || g[0] != want[0] || g[1] != want[1] || g[2] != want[2] {
		t.Fatalf("tools = %v, want %v", g, want)
	}
	if got[0].Servlet != "eval-js" {
		t.Errorf("first duplicate should win, got servlet %q", got[0].Servlet)
	}

	d, ok, err := c.Lookup(context.Background(), "search")
	if err != nil || !ok || d.Name != "search" {
		t.Errorf("Lookup(search) = %v, %v, %v", d, ok, err)
	}
	if _, ok, _ := c.Lookup(context.Background(), "missing"); ok {
		t.Error("Lookup(missing) found a tool")
	}
}

func TestCatalogue_Unreachable(t *testing.T) {
	src := &fakeSource{err: errors.New("connection refused")}
	c := NewCatalogue(src, CatalogueOptions{})

	_, err := c.Tools(context.Background())
	if !errors.Is(err, ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
	var ue *UnreachableError
	if !errors.As(err, &ue) || ue.Err.Error() != "connection refused" {
		t.Errorf("cause lost: %v", err)
	}
}

func TestCatalogue_EmptyIsNotUnreachable(t *testing.T) {
	c := NewCatalogue(&fakeSource{}, CatalogueOptions{})
	got, err := c.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("tools = %v", names(got))
	}
}

func TestCatalogue_RefreshKeepsSnapshotOnFailure(t *testing.T) {
	src := &fakeSource{tools: []Descriptor{{Name: "fetch"}}}
	c := NewCatalogue(src, CatalogueOptions{})
	if _, err := c.Tools(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.mu.Lock()
	src.err = errors.New("down")
	src.mu.Unlock()
	if _, err := c.Refresh(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Fatalf("Refresh err = %v", err)
	}
	got, err := c.Tools(context.Background())
	if err != nil || len(got) != 1 {
		t.Errorf("snapshot lost after failed refresh: %v, %v", names(got), err)
	}
}

func TestDescriptor_LLMTool(t *testing.T) {
	tool := Descriptor{Name: "noop", Description: "does nothing"}.LLMTool()
	if tool.Type != "function" || tool.Function == nil || tool.Function.Name != "noop" {
		t.Fatalf("tool = %+v", tool)
	}
	if tool.Function.Parameters == nil {
		t.Error("nil schema should become an empty object schema")
	}
}

func TestResult_String(t *testing.T) {
	structured, err := Structured(map[string]int{"n": 4})
	if err != nil {
		t.Fatal(err)
	}
	r := &Result{Content: []Content{
		Text("hello"),
		Image("image/png", []byte{1, 2, 3}),
		structured,
	}}
	want := "hello\n[image image/png, 3 bytes]\n{\"n\":4}"
	if got := r.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if imgs := r.Images(); len(imgs) != 1 || imgs[0].MIMEType != "image/png" {
		t.Errorf("Images() = %+v", imgs)
	}
	var nilResult *Result
	if nilResult.String() != "" {
		t.Error("nil result should render empty")
	}
}
