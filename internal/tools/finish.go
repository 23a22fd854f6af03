package tools

import "context"

// FinishTool lets the model end a run explicitly with a closing message.
type FinishTool struct{}

func NewFinishTool() *FinishTool { return &FinishTool{} }

func (t *FinishTool) Name() string { return "finish" }

func (t *FinishTool) Description() string {
	return "End the task. Use when the work is complete and no answer text is needed beyond the message."
}

func (t *FinishTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{
				"type":        "string",
				"description": "Closing message recorded as the job result.",
			},
		},
		"required": []string{"message"},
	}
}

func (t *FinishTool) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	msg, _ := args["message"].(string)
	return FinishResult(msg), nil
}
