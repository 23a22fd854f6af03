package agent

import (
	"context"
	"sort"
	"sync"
	"time"
)

// ActiveRun tracks a running job so it can be cancelled locally.
type ActiveRun struct {
	JobID     string    `json:"jobId"`
	SessionID string    `json:"sessionId"`
	StartedAt time.Time `json:"startedAt"`
	cancel    context.CancelFunc
}

// RunTracker records the runs a worker currently executes.
type RunTracker struct {
	runs sync.Map // jobID → *ActiveRun
}

func NewRunTracker() *RunTracker { return &RunTracker{} }

// Register records an active run. Registering a job twice replaces the entry.
func (t *RunTracker) Register(jobID, sessionID string, cancel context.CancelFunc) {
	t.runs.Store(jobID, &ActiveRun{
		JobID:     jobID,
		SessionID: sessionID,
		StartedAt: time.Now(),
		cancel:    cancel,
	})
}

// Unregister removes a finished run.
func (t *RunTracker) Unregister(jobID string) {
	t.runs.Delete(jobID)
}

// Abort cancels the run for jobID. Returns false when it is not running here.
func (t *RunTracker) Abort(jobID string) bool {
	val, ok := t.runs.LoadAndDelete(jobID)
	if !ok {
		return false
	}
	val.(*ActiveRun).cancel()
	return true
}

// AbortAll cancels every tracked run and returns their job IDs.
func (t *RunTracker) AbortAll() []string {
	var aborted []string
	t.runs.Range(func(key, val any) bool {
		if _, ok := t.runs.LoadAndDelete(key); ok {
			val.(*ActiveRun).cancel()
			aborted = append(aborted, key.(string))
		}
		return true
	})
	sort.Strings(aborted)
	return aborted
}

// Active returns a snapshot of running jobs, oldest first.
func (t *RunTracker) Active() []ActiveRun {
	var out []ActiveRun
	t.runs.Range(func(_, val any) bool {
		r := val.(*ActiveRun)
		out = append(out, ActiveRun{JobID: r.JobID, SessionID: r.SessionID, StartedAt: r.StartedAt})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// Len returns the number of tracked runs.
func (t *RunTracker) Len() int {
	n := 0
	t.runs.Range(func(_, _ any) bool { n++; return true })
	return n
}
