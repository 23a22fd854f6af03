package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

// Submitter queues a new job.
type Submitter interface {
	Submit(ctx context.Context, prompt, sessionID string) (store.Job, error)
}

// TickClaimer reports whether this instance owns a given tick. Lets several
// scheduler instances share one queue without double submissions.
type TickClaimer interface {
	ClaimTick(ctx context.Context, name string, tick time.Time) (bool, error)
}

// Service fires schedules and submits their prompts as jobs.
type Service struct {
	schedules []Schedule
	submit    Submitter
	claim     TickClaimer
	now       func() time.Time
}

// NewService validates schedules and drops disabled ones. claim may be nil.
func NewService(schedules []Schedule, submit Submitter, claim TickClaimer) (*Service, error) {
	seen := make(map[string]bool)
	var active []Schedule
	for _, s := range schedules {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("duplicate schedule name %q", s.Name)
		}
		seen[s.Name] = true
		if !s.Disabled {
			active = append(active, s)
		}
	}
	return &Service{schedules: active, submit: submit, claim: claim, now: time.Now}, nil
}

// Schedules returns the active schedules.
func (cs *Service) Schedules() []Schedule { return cs.schedules }

// Next returns the earliest fire time after ref and the schedules due then.
// ok is false when nothing is scheduled.
func (cs *Service) Next(ref time.Time) (tick time.Time, due []Schedule, ok bool) {
	for _, s := range cs.schedules {
		next, err := s.NextAfter(ref)
		if err != nil {
			slog.Error("cron: failed to compute next run", "schedule", s.Name, "error", err)
			continue
		}
		switch {
		case !ok || next.Before(tick):
			tick, due, ok = next, []Schedule{s}, true
		case next.Equal(tick):
			due = append(due, s)
		}
	}
	return tick, due, ok
}

// Run fires schedules until ctx is done.
func (cs *Service) Run(ctx context.Context) error {
	slog.Info("cron started", "schedules", len(cs.schedules))
	defer slog.Info("cron stopped")

	ref := cs.now()
	for {
		tick, due, ok := cs.Next(ref)
		if !ok {
			<-ctx.Done()
			return nil
		}

		timer := time.NewTimer(time.Until(tick))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		for _, s := range due {
			cs.fire(ctx, s, tick)
		}
		ref = tick
	}
}

// fire submits one schedule's job for tick unless another instance claimed it.
func (cs *Service) fire(ctx context.Context, s Schedule, tick time.Time) (store.Job, bool) {
	if cs.claim != nil {
		owned, err := cs.claim.ClaimTick(ctx, s.Name, tick)
		if err != nil {
			slog.Warn("cron: claim failed, skipping tick", "schedule", s.Name, "error", err)
			return store.Job{}, false
		}
		if !owned {
			slog.Debug("cron: tick claimed elsewhere", "schedule", s.Name, "tick", tick)
			return store.Job{}, false
		}
	}

	job, err := cs.submit.Submit(ctx, s.Prompt, s.Session)
	if err != nil {
		slog.Error("cron: submit failed", "schedule", s.Name, "error", err)
		return store.Job{}, false
	}
	slog.Info("cron: job submitted", "schedule", s.Name, "job", job.ID, "tick", tick)
	return job, true
}
