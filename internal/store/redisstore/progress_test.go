package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobagent/internal/bus"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func TestProgressPublisher_ForwardsBusEvents(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := WatchProgress(ctx, rdb, "job-1")
	if err != nil {
		t.Fatalf("WatchProgress: %v", err)
	}

	b := bus.New(8)
	defer b.Close()
	NewProgressPublisher(rdb).Attach(b)

	b.Publish(ctx, protocol.ProgressEvent{
		JobID:     "job-1",
		Type:      protocol.ProgressThought,
		Iteration: 2,
		Payload:   map[string]any{"text": "checking"},
		Timestamp: time.Now().UTC(),
	})
	// Events for other jobs go to other channels.
	b.Publish(ctx, protocol.ProgressEvent{JobID: "job-2", Type: protocol.ProgressThought})

	select {
	case ev := <-events:
		if ev.JobID != "job-1" || ev.Type != protocol.ProgressThought || ev.Iteration != 2 {
			t.Errorf("unexpected event %+v", ev)
		}
		if ev.Payload["text"] != "checking" {
			t.Errorf("payload = %v", ev.Payload)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for progress event")
	}
}

func TestWatchProgress_SkipsMalformed(t *testing.T) {
	_, rdb := newTestRedis(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := WatchProgress(ctx, rdb, "job-1")
	if err != nil {
		t.Fatalf("WatchProgress: %v", err)
	}
	rdb.Publish(ctx, protocol.ProgressChannel("job-1"), "not json")
	rdb.Publish(ctx, protocol.ProgressChannel("job-1"), `{"jobId":"job-1","type":"final_answer"}`)

	select {
	case ev := <-events:
		if ev.Type != protocol.ProgressFinalAnswer {
			t.Errorf("expected final_answer, got %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out")
	}
}
