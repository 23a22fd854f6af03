package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SpawnJobTool queues a follow-up job through the run's task-queue handle.
type SpawnJobTool struct{}

func NewSpawnJobTool() *SpawnJobTool { return &SpawnJobTool{} }

func (t *SpawnJobTool) Name() string { return "spawn_job" }

func (t *SpawnJobTool) Description() string {
	return "Queue a new background job with its own prompt. Returns the new job ID; the job runs independently."
}

func (t *SpawnJobTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "Task for the new job.",
				"minLength":   1,
			},
			"sameSession": map[string]any{
				"type":        "boolean",
				"description": "Share this job's session history. Default: false.",
			},
		},
		"required":             []string{"prompt"},
		"additionalProperties": false,
	}
}

func (t *SpawnJobTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	ec := ExecContextFromCtx(ctx)
	if ec == nil || ec.Queue == nil {
		return nil, errors.New("spawn_job: no job queue available in this run")
	}

	prompt := strings.TrimSpace(fmt.Sprint(args["prompt"]))
	sessionID := ""
	if same, _ := args["sameSession"].(bool); same && ec.Session != nil {
		sessionID = ec.Session.ID
	}

	job, err := ec.Queue.Submit(ctx, prompt, sessionID)
	if err != nil {
		return nil, fmt.Errorf("spawn_job: submit: %w", err)
	}
	loggerFromCtx(ctx).Info("spawned job", "parent", ec.Job.ID, "child", job.ID)
	return UserResult(fmt.Sprintf("Queued job %s.", job.ID)), nil
}
