package config

import (
	"regexp"
	"strings"
)

var (
	validToolNameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)
	invalidChars    = regexp.MustCompile(`[^a-z0-9_-]+`)
	leadingSep      = regexp.MustCompile(`^[-_]+`)
	trailingSep     = regexp.MustCompile(`[-_]+$`)
)

// IsValidToolName reports whether name can be registered as-is.
func IsValidToolName(name string) bool {
	return validToolNameRe.MatchString(name)
}

// NormalizeToolName converts a user-provided name into a registrable tool name:
//   - Lowercase, max 64 chars
//   - Only [a-z0-9_-] allowed
//   - Invalid chars replaced with "_"
//   - Leading/trailing separators stripped
//
// An empty result stays empty so Validate can reject it.
func NormalizeToolName(name string) string {
	lower := strings.ToLower(strings.TrimSpace(name))
	if lower == "" || validToolNameRe.MatchString(lower) {
		return lower
	}

	result := invalidChars.ReplaceAllString(lower, "_")
	result = leadingSep.ReplaceAllString(result, "")
	result = trailingSep.ReplaceAllString(result, "")

	if len(result) > 64 {
		result = result[:64]
	}
	return result
}
