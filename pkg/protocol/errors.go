package protocol

// Termination reasons recorded on a finished job.
const (
	ReasonAnswered      = "answered"
	ReasonInterrupted   = "interrupted"
	ReasonMaxIterations = "max_iterations"
	ReasonStuckLoop     = "stuck_loop"
	ReasonFinishSignal  = "finish_signal"
	ReasonProviderError = "provider_error"
	ReasonRejected      = "rejected" // prompt refused by the input guard
)

// Job states stored alongside a job.
const (
	JobStateQueued    = "queued"
	JobStateActive    = "active"
	JobStateCompleted = "completed"
	JobStateFailed    = "failed"
)
