package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

func TestProgressBus_DeliversToSubscribers(t *testing.T) {
	b := New(8)
	defer b.Close()

	var mu sync.Mutex
	got := map[string][]string{}
	for _, id := range []string{"a", "b"} {
		id := id
		b.Subscribe(id, func(ev protocol.ProgressEvent) {
			mu.Lock()
			got[id] = append(got[id], ev.Type)
			mu.Unlock()
		})
	}

	b.Publish(context.Background(), protocol.ProgressEvent{JobID: "j", Type: protocol.ProgressThought})
	b.Publish(context.Background(), protocol.ProgressEvent{JobID: "j", Type: protocol.ProgressFinalAnswer})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		done := len(got["a"]) == 2 && len(got["b"]) == 2
		mu.Unlock()
		if done {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range []string{"a", "b"} {
		if len(got[id]) != 2 || got[id][0] != protocol.ProgressThought || got[id][1] != protocol.ProgressFinalAnswer {
			t.Errorf("subscriber %s got %v", id, got[id])
		}
	}
}

func TestProgressBus_Unsubscribe(t *testing.T) {
	b := New(8)
	defer b.Close()

	calls := 0
	b.Subscribe("x", func(protocol.ProgressEvent) { calls++ })
	b.Unsubscribe("x")
	b.Broadcast(protocol.ProgressEvent{Type: protocol.ProgressThought})
	if calls != 0 {
		t.Errorf("unsubscribed handler called %d times", calls)
	}
}

func TestProgressBus_PublishNeverBlocks(t *testing.T) {
	b := New(1)
	defer b.Close()

	release := make(chan struct{})
	b.Subscribe("slow", func(protocol.ProgressEvent) { <-release })

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			b.Publish(context.Background(), protocol.ProgressEvent{Type: protocol.ProgressThought})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
	close(release)
	if b.Dropped() == 0 {
		t.Error("expected dropped events with a full buffer")
	}
}

func TestProgressBus_SubscriberPanicContained(t *testing.T) {
	b := New(1)
	defer b.Close()

	called := false
	b.Subscribe("bad", func(protocol.ProgressEvent) { panic("boom") })
	b.Subscribe("good", func(protocol.ProgressEvent) { called = true })
	b.Broadcast(protocol.ProgressEvent{Type: protocol.ProgressThought})
	if !called {
		t.Error("a panicking subscriber must not prevent delivery to others")
	}
}
