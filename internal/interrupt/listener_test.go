package interrupt

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func newTestRedis(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func waitFor(t *testing.T, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func TestToken_TriggerAndClose(t *testing.T) {
	tok := NewToken()
	if tok.Interrupted() {
		t.Fatal("new token should not be interrupted")
	}
	tok.Trigger()
	tok.Close()
	tok.Close()
	if !tok.Interrupted() {
		t.Error("Close must not reset the interrupted state")
	}
}

func TestListener_InterruptPayload(t *testing.T) {
	rdb := newTestRedis(t)
	tok, err := NewListener(rdb).Listen(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer tok.Close()

	n, err := Publish(context.Background(), rdb, "job-1")
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 subscriber, got %d", n)
	}
	if !waitFor(t, tok.Interrupted) {
		t.Error("token not triggered by interrupt payload")
	}
}

func TestListener_IgnoresOtherPayloads(t *testing.T) {
	rdb := newTestRedis(t)
	tok, err := NewListener(rdb).Listen(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer tok.Close()

	ctx := context.Background()
	rdb.Publish(ctx, protocol.InterruptChannel("job-1"), "INTERRUPT")
	rdb.Publish(ctx, protocol.InterruptChannel("job-2"), protocol.InterruptPayload)

	time.Sleep(100 * time.Millisecond)
	if tok.Interrupted() {
		t.Error("token must only flip on the exact payload for its own job")
	}

	rdb.Publish(ctx, protocol.InterruptChannel("job-1"), protocol.InterruptPayload)
	if !waitFor(t, tok.Interrupted) {
		t.Error("token not triggered after the real interrupt")
	}
}

func TestListener_UnsubscribesAfterInterrupt(t *testing.T) {
	rdb := newTestRedis(t)
	tok, err := NewListener(rdb).Listen(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer tok.Close()

	Publish(context.Background(), rdb, "job-1")
	waitFor(t, tok.Interrupted)

	gone := waitFor(t, func() bool {
		n, _ := rdb.PubSubNumSub(context.Background(), protocol.InterruptChannel("job-1")).Result()
		return n[protocol.InterruptChannel("job-1")] == 0
	})
	if !gone {
		t.Error("listener should unsubscribe once interrupted")
	}
}

func TestListener_CloseReleasesSubscription(t *testing.T) {
	rdb := newTestRedis(t)
	tok, err := NewListener(rdb).Listen(context.Background(), "job-9")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	tok.Close()

	gone := waitFor(t, func() bool {
		n, _ := rdb.PubSubNumSub(context.Background(), protocol.InterruptChannel("job-9")).Result()
		return n[protocol.InterruptChannel("job-9")] == 0
	})
	if !gone {
		t.Error("Close should release the subscription")
	}
	if tok.Interrupted() {
		t.Error("closing must not mark the token interrupted")
	}
}
