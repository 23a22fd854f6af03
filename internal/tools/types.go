package tools

import "context"

// Tool is the interface all tools must implement.
//
// Parameters returns a JSON Schema object describing args. Execute receives
// args only after they validated against that schema. A returned error is a
// tool failure; it never ends the run.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// Validator checks raw arguments against a tool's declared parameters before
// the tool runs. Implementations return *ValidationError on mismatch.
type Validator interface {
	Validate(tool Tool, args map[string]any) error
}

// schemaPreparer is implemented by validators that compile a tool's schema
// once at registration.
type schemaPreparer interface {
	Prepare(tool Tool) error
	Forget(name string)
}

// emptyParameters is the schema used by tools that take no arguments.
func emptyParameters() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
