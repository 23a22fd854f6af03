package worker

import (
	"context"
	"log/slog"
	"sync"

	"github.com/nextlevelbuilder/jobagent/internal/store"
)

// RunFunc processes one job.
type RunFunc func(ctx context.Context, job store.Job)

// sessionQueue holds the jobs waiting behind the active run of one session.
type sessionQueue struct {
	pending []store.Job
	active  bool
}

// SessionScheduler serializes jobs per session so history appends from two
// jobs never interleave. Jobs of different sessions run in parallel.
type SessionScheduler struct {
	runFn     RunFunc
	abandonFn func(job store.Job) // called for queued jobs left when ctx ends

	mu     sync.Mutex
	queues map[string]*sessionQueue
}

func NewSessionScheduler(runFn RunFunc, abandonFn func(store.Job)) *SessionScheduler {
	return &SessionScheduler{
		runFn:     runFn,
		abandonFn: abandonFn,
		queues:    make(map[string]*sessionQueue),
	}
}

// Schedule queues job behind its session. When the session was idle it
// returns the drain function the caller must run (in a goroutine of its
// choosing); otherwise it returns nil and the active drain picks the job up.
func (s *SessionScheduler) Schedule(job store.Job) func(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sq, ok := s.queues[job.SessionID]
	if !ok {
		sq = &sessionQueue{}
		s.queues[job.SessionID] = sq
	}
	if sq.active {
		sq.pending = append(sq.pending, job)
		slog.Debug("job queued behind session", "job", job.ID, "session", job.SessionID, "pending", len(sq.pending))
		return nil
	}
	sq.active = true
	return func(ctx context.Context) { s.drain(ctx, job) }
}

// drain runs first and then every job queued for the same session, in order.
func (s *SessionScheduler) drain(ctx context.Context, first store.Job) {
	sessionID := first.SessionID
	job := first
	for {
		s.runFn(ctx, job)

		s.mu.Lock()
		sq := s.queues[sessionID]
		if len(sq.pending) == 0 {
			delete(s.queues, sessionID)
			s.mu.Unlock()
			return
		}
		if ctx.Err() != nil {
			abandoned := sq.pending
			delete(s.queues, sessionID)
			s.mu.Unlock()
			for _, j := range abandoned {
				if s.abandonFn != nil {
					s.abandonFn(j)
				}
			}
			return
		}
		job = sq.pending[0]
		sq.pending = sq.pending[1:]
		s.mu.Unlock()
	}
}

// IsActive returns whether a run is executing for the session.
func (s *SessionScheduler) IsActive(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sq, ok := s.queues[sessionID]
	return ok && sq.active
}

// QueueLen returns the number of jobs waiting for the session.
func (s *SessionScheduler) QueueLen(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sq, ok := s.queues[sessionID]; ok {
		return len(sq.pending)
	}
	return 0
}
