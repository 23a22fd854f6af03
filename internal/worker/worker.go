// Package worker pulls jobs off the Redis queue and runs them through the agent loop.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/jobagent/internal/agent"
	"github.com/nextlevelbuilder/jobagent/internal/store"
	"github.com/nextlevelbuilder/jobagent/internal/store/redisstore"
	"github.com/nextlevelbuilder/jobagent/internal/tools"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

const (
	defaultPollTimeout   = 5 * time.Second
	defaultShutdownGrace = 30 * time.Second
	dequeueBackoff       = time.Second
	maxDequeueBackoff    = 30 * time.Second
	bookkeepingTimeout   = 5 * time.Second
)

// Jobs is the job store the worker drives.
type Jobs interface {
	Dequeue(ctx context.Context, timeout time.Duration) (string, error)
	Enqueue(ctx context.Context, jobID string) error
	Get(ctx context.Context, jobID string) (*redisstore.JobRecord, error)
	MarkActive(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID, result, reason string) error
}

type Config struct {
	Concurrency   int
	PollTimeout   time.Duration
	ShutdownGrace time.Duration
}

// Deps are the collaborators of a worker. Loop carries both the shared
// collaborators and the initial loop settings.
type Deps struct {
	Jobs        Jobs
	Sessions    store.SessionStore
	Loop        agent.LoopConfig
	RateLimiter *tools.ToolRateLimiter

	// NewAgent builds the agent for one run. Defaults to agent.NewLoop.
	NewAgent func(cfg agent.LoopConfig) agent.Agent
}

// Worker runs queued jobs with bounded concurrency.
type Worker struct {
	cfg      Config
	jobs     Jobs
	sessions store.SessionStore
	limiter  *tools.ToolRateLimiter
	newAgent func(agent.LoopConfig) agent.Agent

	loop    atomic.Pointer[agent.LoopConfig]
	tracker *agent.RunTracker
	sched   *SessionScheduler
}

func New(cfg Config, deps Deps) *Worker {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = defaultShutdownGrace
	}
	if deps.Sessions == nil {
		deps.Sessions = store.NewMemorySessionStore()
	}
	if deps.Loop.Sessions == nil {
		deps.Loop.Sessions = deps.Sessions
	}
	if deps.NewAgent == nil {
		deps.NewAgent = func(c agent.LoopConfig) agent.Agent { return agent.NewLoop(c) }
	}

	w := &Worker{
		cfg:      cfg,
		jobs:     deps.Jobs,
		sessions: deps.Sessions,
		limiter:  deps.RateLimiter,
		newAgent: deps.NewAgent,
		tracker:  agent.NewRunTracker(),
	}
	loop := deps.Loop
	w.loop.Store(&loop)
	w.sched = NewSessionScheduler(w.process, w.requeue)
	return w
}

// UpdateSettings applies reloaded loop settings to runs started afterwards.
// Collaborators are kept; running jobs are not affected.
func (w *Worker) UpdateSettings(s agent.LoopConfig) {
	next := *w.loop.Load()
	next.MaxIterations = s.MaxIterations
	next.MaxCommandRepeats = s.MaxCommandRepeats
	next.ToolResultLimit = s.ToolResultLimit
	next.ToolTimeout = s.ToolTimeout
	next.SystemPrompt = s.SystemPrompt
	next.FailFastOnPermanentErrors = s.FailFastOnPermanentErrors
	next.ScrubCredentials = s.ScrubCredentials
	next.InjectionAction = s.InjectionAction
	w.loop.Store(&next)
	slog.Info("worker settings updated", "max_iterations", next.MaxIterations, "tool_timeout", next.ToolTimeout)
}

// Settings returns the loop settings new runs will use.
func (w *Worker) Settings() agent.LoopConfig { return *w.loop.Load() }

// Active lists the runs executing on this worker.
func (w *Worker) Active() []agent.ActiveRun { return w.tracker.Active() }

// Abort cancels a local run. It returns false when the job is not running here.
func (w *Worker) Abort(jobID string) bool { return w.tracker.Abort(jobID) }

// Run dequeues jobs until ctx is done, then waits up to the shutdown grace
// period for in-flight runs before cancelling them.
func (w *Worker) Run(ctx context.Context) error {
	if w.jobs == nil {
		return errors.New("worker: no job store")
	}

	// Runs outlive ctx until the grace period ends.
	runCtx, cancelRuns := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRuns()

	var g errgroup.Group
	g.SetLimit(w.cfg.Concurrency)

	slog.Info("worker started", "concurrency", w.cfg.Concurrency)

	failures := 0
	for ctx.Err() == nil {
		id, err := w.jobs.Dequeue(ctx, w.cfg.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Warn("worker: dequeue failed", "error", err, "failures", failures+1)
			select {
			case <-ctx.Done():
			case <-time.After(backoffWithJitter(dequeueBackoff, maxDequeueBackoff, failures)):
			}
			failures++
			continue
		}
		failures = 0
		if id == "" {
			continue
		}

		job, ok := w.load(runCtx, id)
		if !ok {
			continue
		}
		if drain := w.sched.Schedule(job); drain != nil {
			g.Go(func() error {
				drain(runCtx)
				return nil
			})
		}
	}

	slog.Info("worker stopping", "active", w.tracker.Len())

	done := make(chan struct{})
	go func() {
		g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		aborted := w.tracker.AbortAll()
		slog.Warn("worker: shutdown grace elapsed, aborting runs", "jobs", aborted)
		cancelRuns()
		<-done
	}

	slog.Info("worker stopped")
	return nil
}

// load fetches the job record. Jobs already failed are skipped.
func (w *Worker) load(ctx context.Context, id string) (store.Job, bool) {
	rec, err := w.jobs.Get(ctx, id)
	if err != nil {
		slog.Warn("worker: job not loadable", "job", id, "error", err)
		return store.Job{}, false
	}
	if rec.State == protocol.JobStateFailed {
		slog.Info("worker: skipping failed job", "job", id)
		return store.Job{}, false
	}
	return rec.Job, true
}

func (w *Worker) process(ctx context.Context, job store.Job) {
	logger := slog.With("job", job.ID, "session", job.SessionID)
	loop := *w.loop.Load()

	book, cancelBook := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancelBook()

	if err := w.jobs.MarkActive(book, job.ID); err != nil {
		// Failed while waiting behind another run of its session.
		if errors.Is(err, redisstore.ErrJobFailed) {
			logger.Info("worker: skipping failed job")
			return
		}
		logger.Warn("worker: mark active failed", "error", err)
	}

	providerName := ""
	if loop.Provider != nil {
		providerName = loop.Provider.Name()
	}
	sess, err := w.sessions.GetOrCreate(ctx, job.SessionID, providerName)
	if err != nil {
		logger.Error("worker: session unavailable", "error", err)
		if err := w.jobs.MarkFailed(book, job.ID); err != nil {
			logger.Warn("worker: could not mark job failed", "error", err)
		}
		if err := w.jobs.Complete(book, job.ID, "Error: session unavailable: "+err.Error(), ""); err != nil {
			logger.Warn("worker: complete failed", "error", err)
		}
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.tracker.Register(job.ID, job.SessionID, cancel)
	defer w.tracker.Unregister(job.ID)

	start := time.Now()
	res := w.newAgent(loop).Run(runCtx, agent.RunRequest{Job: job, Session: sess})

	if w.limiter != nil {
		w.limiter.Forget(job.ID)
	}

	// Fresh deadline: the run may have used up the first one.
	book2, cancelBook2 := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancelBook2()
	attempts, err := withRetry(book2, completeRetry, func(c context.Context) error {
		return w.jobs.Complete(c, job.ID, res.Output, res.Reason)
	})
	if err != nil {
		logger.Error("worker: complete failed", "error", err, "attempts", attempts)
	}

	logger.Info("job finished",
		"reason", res.Reason,
		"iterations", res.Iterations,
		"model_calls", res.ModelCalls,
		"duration", time.Since(start).Round(time.Millisecond),
	)
}

// requeue returns a job that never started to the shared queue.
func (w *Worker) requeue(job store.Job) {
	ctx, cancel := context.WithTimeout(context.Background(), bookkeepingTimeout)
	defer cancel()
	if err := w.jobs.Enqueue(ctx, job.ID); err != nil {
		slog.Error("worker: requeue failed", "job", job.ID, "error", err)
		return
	}
	slog.Info("worker: job requeued", "job", job.ID)
}
