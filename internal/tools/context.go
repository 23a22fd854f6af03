package tools

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/jobagent/internal/providers"
	"github.com/nextlevelbuilder/jobagent/internal/store"
)

// JobQueue is the task-queue handle tools use to schedule follow-up work.
type JobQueue interface {
	Submit(ctx context.Context, prompt, sessionID string) (store.Job, error)
}

// ExecContext is the per-run environment handed to tools. It is injected into
// the ctx passed to Execute so tool instances stay stateless and can serve
// concurrent runs.
type ExecContext struct {
	Job      store.Job
	Session  *store.Session
	Logger   *slog.Logger
	Provider providers.Provider
	Queue    JobQueue // nil when the run has no queue (local runs)
}

type execContextKey struct{}

// WithExecContext returns ctx carrying ec.
func WithExecContext(ctx context.Context, ec *ExecContext) context.Context {
	return context.WithValue(ctx, execContextKey{}, ec)
}

// ExecContextFromCtx returns the ExecContext stored in ctx, or nil.
func ExecContextFromCtx(ctx context.Context) *ExecContext {
	ec, _ := ctx.Value(execContextKey{}).(*ExecContext)
	return ec
}

// loggerFromCtx returns the run logger, falling back to slog.Default.
func loggerFromCtx(ctx context.Context) *slog.Logger {
	if ec := ExecContextFromCtx(ctx); ec != nil && ec.Logger != nil {
		return ec.Logger
	}
	return slog.Default()
}
