// Package interrupt implements cooperative cancellation of running jobs.
// A Token is flipped by a background subscriber and polled by the run loop
// between iterations.
package interrupt

import (
	"sync"
	"sync/atomic"
)

// Token records whether a run has been asked to stop.
type Token struct {
	flag    atomic.Bool
	done    chan struct{}
	once    sync.Once
	cleanup func()
}

// NewToken returns an untriggered token with no background subscriber.
func NewToken() *Token {
	return &Token{done: make(chan struct{})}
}

// Trigger marks the run as interrupted. Safe to call more than once.
func (t *Token) Trigger() { t.flag.Store(true) }

// Interrupted reports whether Trigger has been called.
func (t *Token) Interrupted() bool { return t.flag.Load() }

// Close releases the subscriber behind the token, if any. The interrupted
// state is kept. Close is idempotent.
func (t *Token) Close() error {
	t.once.Do(func() {
		close(t.done)
		if t.cleanup != nil {
			t.cleanup()
		}
	})
	return nil
}
