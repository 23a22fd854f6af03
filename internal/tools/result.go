package tools

// Result is the unified return type from tool execution.
type Result struct {
	ForLLM  string `json:"for_llm"`            // content recorded in history
	ForUser string `json:"for_user,omitempty"` // content shown in progress events
	IsError bool   `json:"is_error"`           // tool ran but reports failure
	Finish  bool   `json:"finish,omitempty"`   // terminal tool: end the run with ForLLM as output
}

func NewResult(forLLM string) *Result {
	return &Result{ForLLM: forLLM}
}

func ErrorResult(message string) *Result {
	return &Result{ForLLM: message, IsError: true}
}

func UserResult(content string) *Result {
	return &Result{ForLLM: content, ForUser: content}
}

// FinishResult ends the run. message becomes the run's output.
func FinishResult(message string) *Result {
	return &Result{ForLLM: message, ForUser: message, Finish: true}
}
