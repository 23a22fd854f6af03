package tools

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeRenderer struct {
	title, text string
	err         error
	calls       int
}

func (f *fakeRenderer) PageText(ctx context.Context, url string) (string, string, error) {
	f.calls++
	return f.title, f.text, f.err
}

func TestBrowseTool_RendersText(t *testing.T) {
	r := &fakeRenderer{title: "Docs", text: "line one\n\n\n\nline two  \n"}
	tool := NewBrowseTool(r, BrowseConfig{AllowPrivateHosts: true})

	res, err := tool.Execute(context.Background(), map[string]any{"url": "http://127.0.0.1/docs"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	want := "Title: Docs\n\nline one\n\nline two"
	if res.ForLLM != want {
		t.Errorf("ForLLM = %q, want %q", res.ForLLM, want)
	}
}

func TestBrowseTool_Truncates(t *testing.T) {
	r := &fakeRenderer{text: strings.Repeat("é", 500)}
	tool := NewBrowseTool(r, BrowseConfig{MaxChars: 100, AllowPrivateHosts: true})

	res, err := tool.Execute(context.Background(), map[string]any{"url": "http://localhost/"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasSuffix(res.ForLLM, "[content truncated]") {
		t.Errorf("missing truncation marker: %q", res.ForLLM[len(res.ForLLM)-30:])
	}
}

func TestBrowseTool_RefusesPrivateHosts(t *testing.T) {
	r := &fakeRenderer{}
	tool := NewBrowseTool(r, BrowseConfig{})

	for _, u := range []string{"http://127.0.0.1/", "http://metadata.google.internal/", "file:///etc/passwd"} {
		if _, err := tool.Execute(context.Background(), map[string]any{"url": u}); err == nil {
			t.Errorf("expected %s to be refused", u)
		}
	}
	if r.calls != 0 {
		t.Errorf("renderer called %d times for refused URLs", r.calls)
	}
}

func TestBrowseTool_RendererError(t *testing.T) {
	tool := NewBrowseTool(&fakeRenderer{err: errors.New("chrome crashed")}, BrowseConfig{AllowPrivateHosts: true})
	_, err := tool.Execute(context.Background(), map[string]any{"url": "http://localhost/"})
	if err == nil || !strings.Contains(err.Error(), "chrome crashed") {
		t.Errorf("err = %v", err)
	}
}
