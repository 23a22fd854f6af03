package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/jobagent/internal/bus"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

const progressSubscriberID = "redis-progress"

// ProgressPublisher forwards bus events to job:<id>:progress as JSON.
type ProgressPublisher struct {
	rdb     redis.UniversalClient
	timeout time.Duration
}

func NewProgressPublisher(rdb redis.UniversalClient) *ProgressPublisher {
	return &ProgressPublisher{rdb: rdb, timeout: 2 * time.Second}
}

// Attach subscribes the publisher to b.
func (p *ProgressPublisher) Attach(b *bus.ProgressBus) {
	b.Subscribe(progressSubscriberID, p.Handle)
}

// Detach removes the publisher from b.
func (p *ProgressPublisher) Detach(b *bus.ProgressBus) {
	b.Unsubscribe(progressSubscriberID)
}

// Handle publishes one event. Failures are logged and the event is lost.
func (p *ProgressPublisher) Handle(ev protocol.ProgressEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("progress: marshal failed", "job", ev.JobID, "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.rdb.Publish(ctx, protocol.ProgressChannel(ev.JobID), data).Err(); err != nil {
		slog.Debug("progress: publish failed", "job", ev.JobID, "type", ev.Type, "error", err)
	}
}

// WatchProgress streams progress events for jobID until ctx is done.
// Malformed messages are skipped.
func WatchProgress(ctx context.Context, rdb redis.UniversalClient, jobID string) (<-chan protocol.ProgressEvent, error) {
	channel := protocol.ProgressChannel(jobID)
	ps := rdb.Subscribe(ctx, channel)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan protocol.ProgressEvent, 16)
	go func() {
		defer close(out)
		defer ps.Close()
		msgs := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev protocol.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Debug("progress: bad message", "job", jobID, "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
