package agent

import (
	"context"

	"github.com/nextlevelbuilder/jobagent/internal/interrupt"
	"github.com/nextlevelbuilder/jobagent/internal/store"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

// Agent runs one job to completion. Implemented by *Loop; extracted as an
// interface so the worker can be tested with scripted agents.
type Agent interface {
	Run(ctx context.Context, req RunRequest) *RunResult
}

// RunRequest is the input to a single run.
type RunRequest struct {
	Job     store.Job
	Session *store.Session // nil = a fresh session keyed by Job.SessionID
}

// RunResult is the single outcome of a run. Output is always set: the final
// answer, or a notice explaining why the run stopped.
type RunResult struct {
	Reason     string `json:"reason"`
	Output     string `json:"output"`
	Iterations int    `json:"iterations"`
	ModelCalls int    `json:"modelCalls"`
}

// ProgressSink receives fire-and-forget progress events. Publish must not
// block the run for long; implementations drop events rather than wait.
type ProgressSink interface {
	Publish(ctx context.Context, ev protocol.ProgressEvent)
}

// JobStatus reports whether a job was marked failed outside the run.
type JobStatus interface {
	IsFailed(ctx context.Context, jobID string) (bool, error)
}

// InterruptSource opens the cancellation subscription for a job.
type InterruptSource interface {
	Listen(ctx context.Context, jobID string) (*interrupt.Token, error)
}
