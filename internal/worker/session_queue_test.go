package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

func TestSessionScheduler_Serializes(t *testing.T) {
	var active atomic.Int32
	var maxActive atomic.Int32
	var mu sync.Mutex
	var order []string

	runFn := func(_ context.Context, job store.Job) {
		cur := active.Add(1)
		for {
			old := maxActive.Load()
			if cur <= old || maxActive.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		order = append(order, job.ID)
		mu.Unlock()
		active.Add(-1)
	}
	s := NewSessionScheduler(runFn, nil)

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c"} {
		if drain := s.Schedule(store.Job{ID: id, SessionID: "s1"}); drain != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				drain(context.Background())
			}()
		}
	}
	wg.Wait()

	if m := maxActive.Load(); m != 1 {
		t.Errorf("same session max active = %d, want 1", m)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("order = %v, want [a b c]", order)
	}
	if s.IsActive("s1") || s.QueueLen("s1") != 0 {
		t.Error("session should be idle after drain")
	}
}

func TestSessionScheduler_DifferentSessionsGetOwnDrain(t *testing.T) {
	s := NewSessionScheduler(func(context.Context, store.Job) {}, nil)

	d1 := s.Schedule(store.Job{ID: "1", SessionID: "s1"})
	d2 := s.Schedule(store.Job{ID: "2", SessionID: "s2"})
	d3 := s.Schedule(store.Job{ID: "3", SessionID: "s1"})

	if d1 == nil || d2 == nil {
		t.Fatal("idle sessions should return a drain")
	}
	if d3 != nil {
		t.Fatal("busy session should queue")
	}
	if s.QueueLen("s1") != 1 || !s.IsActive("s1") {
		t.Errorf("s1 queue len = %d", s.QueueLen("s1"))
	}
}

func TestSessionScheduler_AbandonsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran []string
	var abandoned []string

	s := NewSessionScheduler(func(_ context.Context, job store.Job) {
		ran = append(ran, job.ID)
		cancel()
	}, func(job store.Job) {
		abandoned = append(abandoned, job.ID)
	})

	drain := s.Schedule(store.Job{ID: "first", SessionID: "s1"})
	s.Schedule(store.Job{ID: "second", SessionID: "s1"})
	s.Schedule(store.Job{ID: "third", SessionID: "s1"})
	drain(ctx)

	if len(ran) != 1 || ran[0] != "first" {
		t.Errorf("ran = %v", ran)
	}
	if len(abandoned) != 2 || abandoned[0] != "second" || abandoned[1] != "third" {
		t.Errorf("abandoned = %v", abandoned)
	}
	if s.IsActive("s1") {
		t.Error("session should be released")
	}
}
