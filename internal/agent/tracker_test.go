package agent

import (
	"context"
	"testing"
)

func TestRunTracker_AbortCancels(t *testing.T) {
	tr := NewRunTracker()
	ctx, cancel := context.WithCancel(context.Background())
	tr.Register("job-1", "sess-1", cancel)

	if !tr.Abort("job-1") {
		t.Fatal("expected Abort to find the run")
	}
	if ctx.Err() == nil {
		t.Error("Abort should cancel the run context")
	}
	if tr.Abort("job-1") {
		t.Error("second Abort should report not found")
	}
}

func TestRunTracker_AbortAll(t *testing.T) {
	tr := NewRunTracker()
	var cancelled int
	for _, id := range []string{"b", "a"} {
		tr.Register(id, "", func() { cancelled++ })
	}

	got := tr.AbortAll()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("AbortAll = %v", got)
	}
	if cancelled != 2 || tr.Len() != 0 {
		t.Errorf("cancelled=%d remaining=%d", cancelled, tr.Len())
	}
}

func TestRunTracker_ActiveSnapshot(t *testing.T) {
	tr := NewRunTracker()
	tr.Register("job-1", "s", func() {})
	tr.Register("job-2", "s", func() {})
	tr.Unregister("job-1")

	active := tr.Active()
	if len(active) != 1 || active[0].JobID != "job-2" {
		t.Errorf("Active = %+v", active)
	}
}
