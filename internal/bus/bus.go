// Package bus fans progress events out to in-process subscribers.
package bus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

// EventHandler receives progress events. Handlers run on the bus goroutine
// and should not block.
type EventHandler func(protocol.ProgressEvent)

const defaultBufferSize = 256

// ProgressBus decouples runs from progress consumers. Publish never blocks:
// when the buffer is full the event is dropped.
type ProgressBus struct {
	events chan protocol.ProgressEvent

	subscribers map[string]EventHandler
	subMu       sync.RWMutex

	dropped   atomic.Int64
	closeOnce sync.Once
	done      chan struct{}
}

// New starts a bus with the given buffer size (<= 0 uses the default).
func New(bufferSize int) *ProgressBus {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	b := &ProgressBus{
		events:      make(chan protocol.ProgressEvent, bufferSize),
		subscribers: make(map[string]EventHandler),
		done:        make(chan struct{}),
	}
	go b.loop()
	return b
}

// Publish queues ev for delivery.
func (b *ProgressBus) Publish(ctx context.Context, ev protocol.ProgressEvent) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- ev:
	default:
		n := b.dropped.Add(1)
		slog.Debug("progress bus full, event dropped", "job", ev.JobID, "type", ev.Type, "dropped_total", n)
	}
}

// Subscribe registers a handler under id, replacing any previous one.
func (b *ProgressBus) Subscribe(id string, handler EventHandler) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	b.subscribers[id] = handler
}

// Unsubscribe removes a subscriber.
func (b *ProgressBus) Unsubscribe(id string) {
	b.subMu.Lock()
	defer b.subMu.Unlock()
	delete(b.subscribers, id)
}

// Broadcast delivers ev to all subscribers synchronously.
func (b *ProgressBus) Broadcast(ev protocol.ProgressEvent) {
	b.subMu.RLock()
	defer b.subMu.RUnlock()
	for id, handler := range b.subscribers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Warn("progress subscriber panicked", "subscriber", id, "panic", r)
				}
			}()
			handler(ev)
		}()
	}
}

// Dropped returns how many events were discarded because the buffer was full.
func (b *ProgressBus) Dropped() int64 { return b.dropped.Load() }

// Close stops delivery after draining queued events.
func (b *ProgressBus) Close() {
	b.closeOnce.Do(func() {
		close(b.done)
	})
}

func (b *ProgressBus) loop() {
	for {
		select {
		case ev := <-b.events:
			b.Broadcast(ev)
		case <-b.done:
			for {
				select {
				case ev := <-b.events:
					b.Broadcast(ev)
				default:
					return
				}
			}
		}
	}
}
