package cron

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

type fakeSubmitter struct {
	mu      sync.Mutex
	prompts []string
	err     error
}

func (f *fakeSubmitter) Submit(_ context.Context, prompt, sessionID string) (store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return store.Job{}, f.err
	}
	f.prompts = append(f.prompts, prompt)
	return store.Job{ID: "job-" + prompt, Prompt: prompt, SessionID: sessionID}, nil
}

type setClaimer struct {
	claimed map[string]bool
}

func (c *setClaimer) ClaimTick(_ context.Context, name string, tick time.Time) (bool, error) {
	key := name + tick.String()
	if c.claimed[key] {
		return false, nil
	}
	c.claimed[key] = true
	return true, nil
}

func TestSchedule_Validate(t *testing.T) {
	good := []Schedule{
		{Name: "hourly", Cron: "0 * * * *", Prompt: "p"},
		{Name: "tick", EverySec: 30, Prompt: "p"},
	}
	for _, s := range good {
		if err := s.Validate(); err != nil {
			t.Errorf("%s: unexpected error %v", s.Name, err)
		}
	}

	bad := []Schedule{
		{Cron: "0 * * * *", Prompt: "p"},
		{Name: "x", Cron: "0 * * * *"},
		{Name: "x", Prompt: "p"},
		{Name: "x", Cron: "not a cron", Prompt: "p"},
		{Name: "x", Cron: "0 * * * *", EverySec: 5, Prompt: "p"},
	}
	for i, s := range bad {
		if err := s.Validate(); err == nil {
			t.Errorf("case %d: expected error", i)
		}
	}
}

func TestService_NextPicksEarliest(t *testing.T) {
	cs, err := NewService([]Schedule{
		{Name: "hourly", Cron: "0 * * * *", Prompt: "a"},
		{Name: "quarter", Cron: "*/15 * * * *", Prompt: "b"},
		{Name: "off", Cron: "* * * * *", Prompt: "c", Disabled: true},
	}, &fakeSubmitter{}, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	ref := time.Date(2026, 3, 1, 10, 7, 0, 0, time.UTC)
	tick, due, ok := cs.Next(ref)
	if !ok {
		t.Fatal("expected a next tick")
	}
	if want := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC); !tick.Equal(want) {
		t.Errorf("tick = %v, want %v", tick, want)
	}
	if len(due) != 1 || due[0].Name != "quarter" {
		t.Errorf("due = %+v", due)
	}

	ref = time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	tick, due, _ = cs.Next(ref)
	if want := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC); !tick.Equal(want) {
		t.Errorf("tick = %v, want %v", tick, want)
	}
	if len(due) != 2 {
		t.Errorf("expected both schedules due on the hour, got %d", len(due))
	}
}

func TestSchedule_EveryAligned(t *testing.T) {
	s := Schedule{Name: "e", EverySec: 60, Prompt: "p"}
	ref := time.Date(2026, 3, 1, 10, 7, 30, 0, time.UTC)
	next, err := s.NextAfter(ref)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2026, 3, 1, 10, 8, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestService_FireDedupesClaimedTicks(t *testing.T) {
	sub := &fakeSubmitter{}
	claim := &setClaimer{claimed: map[string]bool{}}
	cs, _ := NewService([]Schedule{{Name: "s", EverySec: 60, Prompt: "report"}}, sub, claim)
	tick := time.Date(2026, 3, 1, 10, 8, 0, 0, time.UTC)

	if _, ok := cs.fire(context.Background(), cs.schedules[0], tick); !ok {
		t.Fatal("first fire should submit")
	}
	if _, ok := cs.fire(context.Background(), cs.schedules[0], tick); ok {
		t.Fatal("second fire for the same tick should be skipped")
	}
	if len(sub.prompts) != 1 {
		t.Errorf("submitted %d jobs, want 1", len(sub.prompts))
	}
}

func TestService_FireSubmitError(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("redis down")}
	cs, _ := NewService([]Schedule{{Name: "s", EverySec: 60, Prompt: "p"}}, sub, nil)
	if _, ok := cs.fire(context.Background(), cs.schedules[0], time.Now()); ok {
		t.Error("fire should report failure")
	}
}

func TestNewService_DuplicateName(t *testing.T) {
	_, err := NewService([]Schedule{
		{Name: "s", EverySec: 1, Prompt: "p"},
		{Name: "s", EverySec: 2, Prompt: "p"},
	}, &fakeSubmitter{}, nil)
	if err == nil {
		t.Error("expected duplicate name error")
	}
}

func TestService_RunFiresAndStops(t *testing.T) {
	sub := &fakeSubmitter{}
	cs, _ := NewService([]Schedule{{Name: "fast", EverySec: 1, Prompt: "ping"}}, sub, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()
	if err := cs.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sub.mu.Lock()
	defer sub.mu.Unlock()
	if len(sub.prompts) == 0 {
		t.Error("expected at least one submission")
	}
}

func TestService_RunWithoutSchedulesBlocksUntilCancel(t *testing.T) {
	cs, _ := NewService(nil, &fakeSubmitter{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := cs.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
