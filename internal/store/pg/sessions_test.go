package pg

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

// Runs only against a real database: JOBAGENT_TEST_PG_DSN=postgres://...
func newTestStore(t *testing.T) *SessionStore {
	t.Helper()
	dsn := os.Getenv("JOBAGENT_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("JOBAGENT_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := "test-" + store.GenNewID()

	sess, err := s.GetOrCreate(ctx, id, "openai")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if sess.Provider != "openai" || len(sess.History) != 0 {
		t.Fatalf("unexpected new session %+v", sess)
	}

	now := time.Now().UTC().Truncate(time.Microsecond)
	for _, e := range []store.HistoryEntry{
		{Role: store.RoleUser, Content: "hi", CreatedAt: now},
		{Role: store.RoleModel, Content: `{"command":{"name":"x"}}`, CreatedAt: now},
		{Role: store.RoleTool, Content: "ok", ToolName: "x", CreatedAt: now},
	} {
		if err := s.AppendHistory(ctx, id, e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}

	got, err := s.GetOrCreate(ctx, id, "other")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Provider != "openai" {
		t.Errorf("provider overwritten: %s", got.Provider)
	}
	if len(got.History) != 3 || got.History[2].ToolName != "x" || got.History[1].Role != store.RoleModel {
		t.Errorf("history = %+v", got.History)
	}
}

func TestSessionStore_AppendUnknownSession(t *testing.T) {
	s := newTestStore(t)
	err := s.AppendHistory(context.Background(), "missing-"+store.GenNewID(), store.HistoryEntry{Role: store.RoleUser, CreatedAt: time.Now()})
	if !errors.Is(err, store.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}
