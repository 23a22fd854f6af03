package agent

import (
	"encoding/json"
	"strings"

	"github.com/nextlevelbuilder/jobagent/internal/tools"
)

// DefaultSystemPrompt opens the system instructions when none is configured.
const DefaultSystemPrompt = "You are an autonomous agent that completes tasks step by step using the tools listed below."

const replyFormat = `## Reply format

Reply with exactly one JSON object, optionally inside a ` + "```json" + ` fence. All fields are optional:

- "thought": your reasoning for this step.
- "canvas": {"content": "...", "contentType": "text/markdown"} to show output to the user.
- "command": {"name": "<tool name>", "params": {...}} to run one tool. Its result arrives in the next message.
- "answer": your final answer. It ends the task.

Send at least one field per reply. Do not repeat a command that already returned a result.`

// BuildSystemPrompt assembles the system instructions and the tool catalogue.
func BuildSystemPrompt(base string, available []tools.Tool) string {
	if strings.TrimSpace(base) == "" {
		base = DefaultSystemPrompt
	}

	var sb strings.Builder
	sb.WriteString(base)
	sb.WriteString("\n\n")
	sb.WriteString(replyFormat)

	if len(available) == 0 {
		sb.WriteString("\n\n## Tools\n\nNo tools are available. Answer directly.")
		return sb.String()
	}

	sb.WriteString("\n\n## Tools\n")
	for _, t := range available {
		sb.WriteString("\n### ")
		sb.WriteString(t.Name())
		sb.WriteString("\n")
		if d := strings.TrimSpace(t.Description()); d != "" {
			sb.WriteString(d)
			sb.WriteString("\n")
		}
		if params := t.Parameters(); len(params) > 0 {
			if b, err := json.Marshal(params); err == nil {
				sb.WriteString("Parameters: ")
				sb.Write(b)
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
