package interrupt

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

// Listener subscribes to per-job interrupt channels. Each Listen call takes
// its own PubSub connection from the client's pool.
type Listener struct {
	rdb redis.UniversalClient
}

func NewListener(rdb redis.UniversalClient) *Listener {
	return &Listener{rdb: rdb}
}

// Listen subscribes to the interrupt channel of jobID and returns a token
// that flips when the literal payload "interrupt" arrives. Other payloads are
// ignored. The subscription ends on the first interrupt, when ctx is done or
// when the token is closed, whichever comes first. Callers must Close the
// token when the run ends.
func (l *Listener) Listen(ctx context.Context, jobID string) (*Token, error) {
	channel := protocol.InterruptChannel(jobID)
	ps := l.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so an interrupt published right
	// after Listen returns is not lost.
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	tok := NewToken()
	var once sync.Once
	release := func() {
		once.Do(func() {
			unsubCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := ps.Unsubscribe(unsubCtx, channel); err != nil {
				slog.Debug("interrupt: unsubscribe failed", "job", jobID, "error", err)
			}
			ps.Close()
		})
	}
	tok.cleanup = release

	msgs := ps.Channel()
	go func() {
		defer release()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				if msg.Payload != protocol.InterruptPayload {
					slog.Debug("interrupt: ignoring payload", "job", jobID, "payload", msg.Payload)
					continue
				}
				tok.Trigger()
				slog.Info("interrupt received", "job", jobID)
				return
			case <-tok.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return tok, nil
}

// Publish sends an interrupt for jobID and returns the number of subscribers
// that received it. Zero means no run is currently listening.
func Publish(ctx context.Context, rdb redis.UniversalClient, jobID string) (int64, error) {
	n, err := rdb.Publish(ctx, protocol.InterruptChannel(jobID), protocol.InterruptPayload).Result()
	if err != nil {
		return 0, fmt.Errorf("publish interrupt for %s: %w", jobID, err)
	}
	return n, nil
}
