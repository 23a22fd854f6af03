package tools

import (
	"errors"
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

var (
	// ErrToolExists is returned when registering a name that is already taken.
	ErrToolExists = errors.New("tool already registered")

	// ErrRateLimited is returned when a job exceeds its tool call budget.
	ErrRateLimited = errors.New("tool rate limit exceeded")
)

// NotFoundError reports a command naming a tool that is not registered.
type NotFoundError struct {
	Name       string
	Suggestion string // closest registered name, empty if none is close
}

func (e *NotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("tool not found: %s (did you mean %q?)", e.Name, e.Suggestion)
	}
	return "tool not found: " + e.Name
}

// FieldError is one parameter diagnostic.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports parameters that do not satisfy a tool's schema.
type ValidationError struct {
	Tool   string
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return fmt.Sprintf("invalid parameters for %s: %s", e.Tool, strings.Join(parts, "; "))
}

// suggestName returns the candidate closest to name, or "" when nothing is
// within a third of the name's length (minimum 2 edits).
func suggestName(name string, candidates []string) string {
	maxDist := len(name) / 3
	if maxDist < 2 {
		maxDist = 2
	}
	best, bestDist := "", maxDist+1
	for _, c := range candidates {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(c))
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}
