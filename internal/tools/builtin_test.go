package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

type mockQueue struct {
	submitFn func(ctx context.Context, prompt, sessionID string) (store.Job, error)
}

func (m *mockQueue) Submit(ctx context.Context, prompt, sessionID string) (store.Job, error) {
	return m.submitFn(ctx, prompt, sessionID)
}

func TestFinishTool(t *testing.T) {
	res, err := NewFinishTool().Execute(context.Background(), map[string]any{"message": "all done"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !res.Finish || res.ForLLM != "all done" {
		t.Errorf("expected finish result with message, got %+v", res)
	}
}

func TestSpawnJobTool_Submits(t *testing.T) {
	var gotPrompt, gotSession string
	q := &mockQueue{submitFn: func(ctx context.Context, prompt, sessionID string) (store.Job, error) {
		gotPrompt, gotSession = prompt, sessionID
		return store.Job{ID: "child-1"}, nil
	}}
	ec := &ExecContext{
		Job:     store.Job{ID: "parent"},
		Session: &store.Session{ID: "sess-1"},
		Queue:   q,
	}
	ctx := WithExecContext(context.Background(), ec)

	res, err := NewSpawnJobTool().Execute(ctx, map[string]any{"prompt": " summarize ", "sameSession": true})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotPrompt != "summarize" || gotSession != "sess-1" {
		t.Errorf("submit got prompt=%q session=%q", gotPrompt, gotSession)
	}
	if !strings.Contains(res.ForLLM, "child-1") {
		t.Errorf("result should name the new job: %q", res.ForLLM)
	}
}

func TestSpawnJobTool_NoQueue(t *testing.T) {
	ctx := WithExecContext(context.Background(), &ExecContext{})
	if _, err := NewSpawnJobTool().Execute(ctx, map[string]any{"prompt": "x"}); err == nil {
		t.Error("expected error without a queue")
	}
}

func TestSpawnJobTool_SubmitError(t *testing.T) {
	q := &mockQueue{submitFn: func(ctx context.Context, prompt, sessionID string) (store.Job, error) {
		return store.Job{}, errors.New("redis down")
	}}
	ctx := WithExecContext(context.Background(), &ExecContext{Queue: q})
	_, err := NewSpawnJobTool().Execute(ctx, map[string]any{"prompt": "x"})
	if err == nil || !strings.Contains(err.Error(), "redis down") {
		t.Errorf("expected wrapped submit error, got %v", err)
	}
}

func TestBuiltinSchemasCompile(t *testing.T) {
	reg := NewRegistry()
	for _, tool := range []Tool{NewFinishTool(), NewSpawnJobTool(), NewWebFetchTool(WebFetchConfig{})} {
		if err := reg.Register(tool); err != nil {
			t.Errorf("register %s: %v", tool.Name(), err)
		}
	}
}
