package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/jobagent/internal/interrupt"
	"github.com/nextlevelbuilder/jobagent/internal/providers"
	"github.com/nextlevelbuilder/jobagent/internal/store"
	"github.com/nextlevelbuilder/jobagent/internal/tools"
	"github.com/nextlevelbuilder/jobagent/pkg/protocol"
)

const (
	DefaultMaxIterations     = 10
	DefaultMaxCommandRepeats = 3
	DefaultToolTimeout       = 60 * time.Second

	tracerName = "github.com/nextlevelbuilder/jobagent/internal/agent"
)

// ErrToolTimeout is recorded when a tool exceeds its per-call deadline.
var ErrToolTimeout = errors.New("tool call timed out")

// LoopConfig configures a Loop. Collaborators other than Provider and Tools
// are optional.
type LoopConfig struct {
	Provider   providers.Provider
	Tools      *tools.Registry
	Sessions   store.SessionStore // persists history appends
	Jobs       JobStatus          // external failure flag
	Interrupts InterruptSource    // per-job cancellation subscription
	Sink       ProgressSink
	Queue      tools.JobQueue // handed to tools through ExecContext
	Tracer     trace.Tracer
	Logger     *slog.Logger

	MaxIterations     int           // model calls per run (default 10)
	MaxCommandRepeats int           // consecutive repeats of one command before stuck_loop (default 3)
	ToolResultLimit   int           // characters kept per tool entry (default 1000)
	ToolTimeout       time.Duration // per tool call (default 60s)
	SystemPrompt      string

	// FailFastOnPermanentErrors ends the run with provider_error on auth,
	// quota and invalid-request failures instead of retrying them.
	FailFastOnPermanentErrors bool
	ScrubCredentials          bool
	InjectionAction           string // off | log | warn | block (default warn)
	InputGuard                *InputGuard
}

// Loop is the orchestration loop. It is stateless between runs; a single
// Loop may serve concurrent runs.
type Loop struct {
	cfg             LoopConfig
	tracer          trace.Tracer
	logger          *slog.Logger
	injectionAction string
	inputGuard      *InputGuard
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxCommandRepeats <= 0 {
		cfg.MaxCommandRepeats = DefaultMaxCommandRepeats
	}
	if cfg.ToolResultLimit <= 0 {
		cfg.ToolResultLimit = DefaultToolResultLimit
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = DefaultToolTimeout
	}
	if cfg.Tools == nil {
		cfg.Tools = tools.NewRegistry()
	}

	l := &Loop{
		cfg:             cfg,
		tracer:          cfg.Tracer,
		logger:          cfg.Logger,
		injectionAction: normalizeInjectionAction(cfg.InjectionAction),
	}
	if l.tracer == nil {
		l.tracer = otel.Tracer(tracerName)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	if l.injectionAction != InjectionOff {
		l.inputGuard = cfg.InputGuard
		if l.inputGuard == nil {
			l.inputGuard = NewInputGuard()
		}
	}
	return l
}

// runState is the per-run mutable state. It never outlives Run.
type runState struct {
	job          store.Job
	history      *History
	systemPrompt string
	execCtx      *tools.ExecContext
	logger       *slog.Logger

	iterations int
	modelCalls int
	lastCmd    *Command
	repeats    int
}

// Run drives one job until it answers, is interrupted, gets stuck, finishes
// through a terminal tool or exhausts its iterations. It always returns a
// result and never panics.
func (l *Loop) Run(ctx context.Context, req RunRequest) *RunResult {
	job := req.Job
	sess := req.Session
	if sess == nil {
		sess = &store.Session{ID: job.SessionID}
	}
	logger := l.logger.With("job", job.ID, "session", sess.ID)

	ctx, span := l.tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("session.id", sess.ID),
		attribute.Int("agent.max_iterations", l.cfg.MaxIterations),
	))

	st := &runState{
		job:     job,
		history: newHistory(sess, l.cfg.Sessions, l.cfg.ToolResultLimit, logger),
		logger:  logger,
		execCtx: &tools.ExecContext{
			Job:      job,
			Session:  sess,
			Logger:   logger,
			Provider: l.cfg.Provider,
			Queue:    l.cfg.Queue,
		},
	}

	res := l.run(ctx, st)
	res.Iterations = st.iterations
	res.ModelCalls = st.modelCalls

	span.SetAttributes(
		attribute.String("agent.reason", res.Reason),
		attribute.Int("agent.iterations", res.Iterations),
		attribute.Int("agent.model_calls", res.ModelCalls),
	)
	span.End()

	logger.Info("run finished",
		"reason", res.Reason,
		"iterations", res.Iterations,
		"model_calls", res.ModelCalls,
	)
	return res
}

func (l *Loop) run(ctx context.Context, st *runState) *RunResult {
	token := l.listen(ctx, st)
	defer token.Close()

	if _, blocked := l.inputGuard.Inspect(st.logger, l.injectionAction, "prompt", st.job.Prompt); blocked {
		return &RunResult{Reason: protocol.ReasonRejected, Output: "The task was refused: the prompt matched prompt-injection patterns."}
	}

	st.history.AppendUser(ctx, st.job.Prompt)
	st.systemPrompt = BuildSystemPrompt(l.cfg.SystemPrompt, l.cfg.Tools.All())

	for st.iterations < l.cfg.MaxIterations {
		if l.shouldStop(ctx, st, token) {
			return &RunResult{Reason: protocol.ReasonInterrupted, Output: "The job was interrupted before it finished."}
		}
		st.iterations++
		if res := l.iterate(ctx, st); res != nil {
			return res
		}
	}

	return &RunResult{
		Reason: protocol.ReasonMaxIterations,
		Output: fmt.Sprintf("Stopped after %d iterations without a final answer.", l.cfg.MaxIterations),
	}
}

// listen opens the interrupt subscription. Without a source, or when the
// subscription fails, the run gets a token nobody triggers; the job-failed
// flag and ctx still stop it.
func (l *Loop) listen(ctx context.Context, st *runState) *interrupt.Token {
	if l.cfg.Interrupts == nil {
		return interrupt.NewToken()
	}
	tok, err := l.cfg.Interrupts.Listen(ctx, st.job.ID)
	if err != nil {
		st.logger.Warn("interrupt subscription failed; continuing without it", "error", err)
		return interrupt.NewToken()
	}
	return tok
}

func (l *Loop) shouldStop(ctx context.Context, st *runState, token *interrupt.Token) bool {
	if token.Interrupted() {
		st.logger.Info("run interrupted", "iteration", st.iterations)
		return true
	}
	if ctx.Err() != nil {
		st.logger.Info("run cancelled", "iteration", st.iterations, "error", ctx.Err())
		return true
	}
	if l.cfg.Jobs != nil {
		failed, err := l.cfg.Jobs.IsFailed(ctx, st.job.ID)
		if err != nil {
			st.logger.Warn("job status check failed", "error", err)
			return false
		}
		if failed {
			st.logger.Info("job marked failed externally", "iteration", st.iterations)
			return true
		}
	}
	return false
}

// iterate performs one pass: model call, parse, then answer, dispatch or
// correction. A nil result means the loop continues. Panics are recovered
// and recorded like any other iteration error.
func (l *Loop) iterate(ctx context.Context, st *runState) (res *RunResult) {
	defer func() {
		if r := recover(); r != nil {
			st.logger.Error("iteration panicked", "iteration", st.iterations, "panic", r, "stack", string(debug.Stack()))
			st.history.AppendTool(ctx, "", fmt.Sprintf("Error: internal failure: %v", r))
			res = nil
		}
	}()

	reply, err := l.callModel(ctx, st)
	if err != nil {
		if l.cfg.FailFastOnPermanentErrors && providers.IsPermanent(err) {
			st.logger.Error("provider failed permanently", "error", err)
			return &RunResult{Reason: protocol.ReasonProviderError, Output: "The model provider failed: " + err.Error()}
		}
		st.logger.Warn("provider call failed", "iteration", st.iterations, "error", err)
		st.history.AppendTool(ctx, "", "Error: model provider failed: "+err.Error())
		return nil
	}

	st.history.AppendModel(ctx, reply)

	parsed, err := ParseResponse(reply)
	if err != nil {
		st.logger.Debug("unparseable reply", "iteration", st.iterations, "error", err)
		st.history.AppendUser(ctx, parseCorrection(reply, err, l.cfg.ToolResultLimit))
		return nil
	}

	if parsed.Thought != nil {
		l.emit(ctx, st, protocol.ProgressThought, map[string]any{"thought": *parsed.Thought})
	}
	if parsed.Canvas != nil {
		l.emit(ctx, st, protocol.ProgressCanvas, map[string]any{
			"content":     parsed.Canvas.Content,
			"contentType": parsed.Canvas.ContentType,
		})
	}

	switch {
	case parsed.Answer != nil:
		l.emit(ctx, st, protocol.ProgressFinalAnswer, map[string]any{"answer": *parsed.Answer})
		return &RunResult{Reason: protocol.ReasonAnswered, Output: *parsed.Answer}

	case parsed.Command != nil:
		cmd := *parsed.Command
		if l.observeCommand(st, cmd) {
			st.logger.Warn("stuck loop detected", "tool", cmd.Name, "repeats", st.repeats)
			return &RunResult{
				Reason: protocol.ReasonStuckLoop,
				Output: fmt.Sprintf("Stopped: the command %q was issued %d times in a row without progress.", cmd.Name, st.repeats+1),
			}
		}
		if msg, finished := l.dispatch(ctx, st, cmd); finished {
			return &RunResult{Reason: protocol.ReasonFinishSignal, Output: msg}
		}
		return nil

	case parsed.Thought == nil && parsed.Canvas == nil:
		st.history.AppendUser(ctx, missingFieldsCorrection)
	}
	return nil
}

// observeCommand updates cycle detection and reports whether cmd is one
// repeat too many.
func (l *Loop) observeCommand(st *runState, cmd Command) bool {
	if st.lastCmd != nil && cmp.Equal(*st.lastCmd, cmd, cmpopts.EquateEmpty()) {
		st.repeats++
	} else {
		st.repeats = 0
	}
	st.lastCmd = &cmd
	return st.repeats >= l.cfg.MaxCommandRepeats
}

func (l *Loop) callModel(ctx context.Context, st *runState) (string, error) {
	if l.cfg.Provider == nil {
		return "", &providers.Error{Provider: "none", Kind: providers.KindInvalid, Message: "no model provider configured"}
	}

	ctx, span := l.tracer.Start(ctx, "agent.model_call", trace.WithAttributes(
		attribute.String("provider", l.cfg.Provider.Name()),
		attribute.Int("agent.iteration", st.iterations),
	))
	defer span.End()

	st.modelCalls++
	start := time.Now()
	reply, err := l.cfg.Provider.GetResponse(ctx, st.history.Messages(), st.systemPrompt)
	span.SetAttributes(attribute.Int64("duration_ms", time.Since(start).Milliseconds()))
	if err != nil {
		err = providers.Classify(l.cfg.Provider.Name(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return reply, nil
}

// dispatch runs cmd and records its outcome. It reports the closing message
// and true when a terminal tool asked to finish the run.
func (l *Loop) dispatch(ctx context.Context, st *runState, cmd Command) (string, bool) {
	l.emit(ctx, st, protocol.ProgressToolStart, map[string]any{"tool": cmd.Name, "params": cmd.Params})

	ctx, span := l.tracer.Start(ctx, "agent.tool_call", trace.WithAttributes(
		attribute.String("tool.name", cmd.Name),
		attribute.Int("agent.iteration", st.iterations),
	))
	defer span.End()

	result, err := l.executeTool(ctx, st, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	output := l.summarize(st, cmd.Name, result, err)
	st.history.AppendTool(ctx, cmd.Name, output)

	isError := err != nil || (result != nil && result.IsError)
	l.emit(ctx, st, protocol.ProgressToolResult, map[string]any{
		"tool":    cmd.Name,
		"isError": isError,
		"output":  Truncate(output, l.cfg.ToolResultLimit),
	})

	if err == nil && result != nil && result.Finish {
		span.SetAttributes(attribute.Bool("tool.finish", true))
		return result.ForLLM, true
	}
	return "", false
}

// executeTool dispatches through the registry under the per-call timeout.
// A tool that ignores its context is abandoned when the deadline passes.
func (l *Loop) executeTool(ctx context.Context, st *runState, cmd Command) (*tools.Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.cfg.ToolTimeout)
	defer cancel()

	type outcome struct {
		result *tools.Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				st.logger.Error("tool panicked", "tool", cmd.Name, "panic", r)
				done <- outcome{err: fmt.Errorf("tool %s panicked: %v", cmd.Name, r)}
			}
		}()
		res, err := l.cfg.Tools.Execute(callCtx, cmd.Name, cmd.Params, st.execCtx)
		done <- outcome{result: res, err: err}
	}()

	select {
	case o := <-done:
		return o.result, o.err
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		st.logger.Warn("tool call timed out", "tool", cmd.Name, "timeout", l.cfg.ToolTimeout)
		return nil, fmt.Errorf("%w: %s after %s", ErrToolTimeout, cmd.Name, l.cfg.ToolTimeout)
	}
}

// summarize turns a tool outcome into the text recorded in history.
func (l *Loop) summarize(st *runState, name string, result *tools.Result, err error) string {
	var out string
	switch {
	case err != nil:
		out = "Error: " + err.Error()
	case result == nil:
		out = "(no output)"
	case result.IsError:
		out = "Error: " + result.ForLLM
	default:
		out = result.ForLLM
	}

	if l.cfg.ScrubCredentials {
		out = tools.ScrubCredentials(out)
	}
	if matches, blocked := l.inputGuard.Inspect(st.logger, l.injectionAction, "tool:"+name, out); blocked {
		out = fmt.Sprintf("[output of %s withheld: matched prompt-injection patterns %v]", name, matches)
	}
	return out
}

func (l *Loop) emit(ctx context.Context, st *runState, typ string, payload map[string]any) {
	if l.cfg.Sink == nil {
		return
	}
	l.cfg.Sink.Publish(ctx, protocol.ProgressEvent{
		JobID:     st.job.ID,
		Type:      typ,
		Iteration: st.iterations,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	})
}

const missingFieldsCorrection = "Your reply had none of the fields answer, thought, canvas or command. " +
	"Reply with a JSON object that runs a command, records a thought, shows canvas output, or gives the final answer."

func parseCorrection(reply string, err error, limit int) string {
	reason := err.Error()
	var pe *ParseError
	if errors.As(err, &pe) {
		reason = pe.Reason
	}
	return fmt.Sprintf("Your previous reply could not be used (%s). It was:\n\n%s\n\n"+
		"Reply again with a single JSON object using only the fields answer, thought, canvas or command.",
		reason, Truncate(reply, limit))
}
