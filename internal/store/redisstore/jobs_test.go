package redisstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestJobStore_SubmitAndDequeue(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewJobStore(rdb)
	ctx := context.Background()

	job, err := s.Submit(ctx, "  summarize the report  ", "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.Prompt != "summarize the report" {
		t.Errorf("prompt not trimmed: %q", job.Prompt)
	}
	if job.SessionID != job.ID {
		t.Errorf("empty session should default to job id, got %q", job.SessionID)
	}

	id, err := s.Dequeue(ctx, time.Second)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if id != job.ID {
		t.Errorf("dequeued %q, want %q", id, job.ID)
	}

	rec, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.State != protocol.JobStateQueued || rec.Prompt != job.Prompt {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("createdAt not stored")
	}
}

func TestJobStore_SubmitRejectsEmptyPrompt(t *testing.T) {
	_, rdb := newTestRedis(t)
	if _, err := NewJobStore(rdb).Submit(context.Background(), "   ", ""); err == nil {
		t.Error("expected error for empty prompt")
	}
}

func TestJobStore_DequeueTimeout(t *testing.T) {
	_, rdb := newTestRedis(t)
	id, err := NewJobStore(rdb).Dequeue(context.Background(), 50*time.Millisecond)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if id != "" {
		t.Errorf("expected empty id on timeout, got %q", id)
	}
}

func TestJobStore_MarkFailed(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewJobStore(rdb)
	ctx := context.Background()

	job, err := s.Create(ctx, "work", "sess")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if failed, _ := s.IsFailed(ctx, job.ID); failed {
		t.Fatal("new job should not be failed")
	}
	if err := s.MarkFailed(ctx, job.ID); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	failed, err := s.IsFailed(ctx, job.ID)
	if err != nil || !failed {
		t.Errorf("IsFailed = %v, %v", failed, err)
	}

	// Completing a failed job keeps the failed state but records the outcome.
	if err := s.Complete(ctx, job.ID, "stopped", protocol.ReasonInterrupted); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	rec, _ := s.Get(ctx, job.ID)
	if rec.State != protocol.JobStateFailed || rec.Reason != protocol.ReasonInterrupted || rec.Result != "stopped" {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestJobStore_UnknownJob(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewJobStore(rdb)
	ctx := context.Background()

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Get: expected ErrJobNotFound, got %v", err)
	}
	if err := s.MarkFailed(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("MarkFailed: expected ErrJobNotFound, got %v", err)
	}
	if err := s.MarkActive(ctx, "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("MarkActive: expected ErrJobNotFound, got %v", err)
	}
	if failed, err := s.IsFailed(ctx, "nope"); failed || err != nil {
		t.Errorf("IsFailed = %v, %v", failed, err)
	}
}

func TestJobStore_MarkActiveKeepsFailed(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewJobStore(rdb)
	ctx := context.Background()

	job, _ := s.Submit(ctx, "work", "")
	if err := s.MarkFailed(ctx, job.ID); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := s.MarkActive(ctx, job.ID); !errors.Is(err, ErrJobFailed) {
		t.Fatalf("MarkActive: expected ErrJobFailed, got %v", err)
	}
	rec, _ := s.Get(ctx, job.ID)
	if rec.State != protocol.JobStateFailed {
		t.Errorf("state = %q, want failed", rec.State)
	}
}

func TestJobStore_CompleteSetsTTL(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewJobStore(rdb)
	s.ResultTTL = time.Hour
	ctx := context.Background()

	job, _ := s.Create(ctx, "work", "")
	if err := s.MarkActive(ctx, job.ID); err != nil {
		t.Fatalf("MarkActive: %v", err)
	}
	if err := s.Complete(ctx, job.ID, "done", protocol.ReasonAnswered); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	rec, _ := s.Get(ctx, job.ID)
	if rec.State != protocol.JobStateCompleted || rec.FinishedAt.IsZero() {
		t.Errorf("unexpected record %+v", rec)
	}
	if ttl := mr.TTL(jobKey(job.ID)); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}
}
