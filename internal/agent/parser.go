package agent

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/nextlevelbuilder/jobagent/internal/tools"
)

// Canvas is output the model wants rendered to the user.
type Canvas struct {
	Content     string `json:"content"`
	ContentType string `json:"contentType,omitempty"`
}

// Command selects a tool to run.
type Command struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params,omitempty"`
}

// ParsedResponse is a structured model reply. Every field is optional; a nil
// pointer means the field was absent.
type ParsedResponse struct {
	Answer  *string  `json:"answer,omitempty"`
	Thought *string  `json:"thought,omitempty"`
	Canvas  *Canvas  `json:"canvas,omitempty"`
	Command *Command `json:"command,omitempty"`
}

// Empty reports whether the reply carries none of the recognized fields.
func (p *ParsedResponse) Empty() bool {
	return p.Answer == nil && p.Thought == nil && p.Canvas == nil && p.Command == nil
}

// ParseError reports a model reply that is not a valid structured response.
type ParseError struct {
	Raw    string
	Reason string
	Err    error
}

func (e *ParseError) Error() string { return "parse model reply: " + e.Reason }
func (e *ParseError) Unwrap() error { return e.Err }

var fenceRe = regexp.MustCompile("(?s)```[ \\t]*(?i:json)?[ \\t]*\\r?\\n?(.*?)```")

var replySchemaDoc = map[string]any{
	"type": "object",
	"properties": map[string]any{
		"answer":  map[string]any{"type": "string"},
		"thought": map[string]any{"type": "string"},
		"canvas": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"content":     map[string]any{"type": "string"},
				"contentType": map[string]any{"type": "string"},
			},
			"required": []string{"content"},
		},
		"command": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name":   map[string]any{"type": "string", "minLength": 1},
				"params": map[string]any{"type": "object"},
			},
			"required": []string{"name"},
		},
	},
}

var replySchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	return tools.CompileSchema("mem://agent/reply.json", replySchemaDoc)
})

var replyPrinter = message.NewPrinter(language.English)

// ParseResponse extracts a structured reply from raw model text. Text that
// is already valid JSON is used as is; otherwise a fenced block (optionally
// tagged json) is used when present. Any decode or shape failure yields a
// *ParseError; nothing is partially accepted.
func ParseResponse(raw string) (*ParsedResponse, error) {
	body := strings.TrimSpace(raw)
	if !json.Valid([]byte(body)) {
		if m := fenceRe.FindStringSubmatch(raw); m != nil {
			body = strings.TrimSpace(m[1])
		}
	}
	if body == "" {
		return nil, &ParseError{Raw: raw, Reason: "empty reply"}
	}

	var probe any
	if err := json.Unmarshal([]byte(body), &probe); err != nil {
		return nil, &ParseError{Raw: raw, Reason: "invalid JSON", Err: err}
	}

	sch, err := replySchema()
	if err != nil {
		return nil, &ParseError{Raw: raw, Reason: "reply schema unavailable", Err: err}
	}
	inst, err := jsonschema.UnmarshalJSON(strings.NewReader(body))
	if err != nil {
		return nil, &ParseError{Raw: raw, Reason: "invalid JSON", Err: err}
	}
	if err := sch.Validate(inst); err != nil {
		return nil, &ParseError{Raw: raw, Reason: describeShapeError(err), Err: err}
	}

	var out ParsedResponse
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		return nil, &ParseError{Raw: raw, Reason: "invalid JSON", Err: err}
	}
	return &out, nil
}

func describeShapeError(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	fields := tools.FieldErrors(ve, replyPrinter)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s %s", f.Field, f.Message))
	}
	return "unexpected shape: " + strings.Join(parts, "; ")
}
