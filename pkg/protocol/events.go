package protocol

import "time"

// Progress event types published while a job runs.
const (
	ProgressThought     = "thought"
	ProgressCanvas      = "canvas_output"
	ProgressToolStart   = "tool_start"
	ProgressToolResult  = "tool_result"
	ProgressFinalAnswer = "final_answer"
)

// InterruptPayload is the only message that cancels a running job.
const InterruptPayload = "interrupt"

// ProgressEvent is a fire-and-forget notification about a running job.
// Consumers must not rely on receiving every event.
type ProgressEvent struct {
	JobID     string         `json:"jobId"`
	Type      string         `json:"type"`
	Iteration int            `json:"iteration"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// InterruptChannel returns the pub/sub channel that carries cancellation for a job.
func InterruptChannel(jobID string) string {
	return "job:" + jobID + ":interrupt"
}

// ProgressChannel returns the pub/sub channel progress events are published on.
func ProgressChannel(jobID string) string {
	return "job:" + jobID + ":progress"
}
