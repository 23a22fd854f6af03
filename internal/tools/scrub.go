package tools

import "regexp"

const redactedPlaceholder = "[REDACTED]"

type scrubRule struct {
	re   *regexp.Regexp
	repl string
}

// Credential patterns removed from tool output before it enters history.
var credentialPatterns = []scrubRule{
	{regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`), redactedPlaceholder},
	{regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`), redactedPlaceholder},
	{regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]{36}`), redactedPlaceholder},
	{regexp.MustCompile(`AKIA[A-Z0-9]{16}`), redactedPlaceholder},
	{regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`), redactedPlaceholder},
	{regexp.MustCompile(`xox[abposr]-[0-9A-Za-z-]{10,}`), redactedPlaceholder},
	{regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`), redactedPlaceholder},
	// user:password@ in connection URLs (redis://, postgres://, ...)
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://[^:/@\s]+:)[^@\s]+@`), "${1}" + redactedPlaceholder + "@"},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password|bearer|authorization)\s*[:=]\s*["']?\S{8,}["']?`), redactedPlaceholder},
}

// ScrubCredentials replaces known credential patterns in text with [REDACTED].
func ScrubCredentials(text string) string {
	if text == "" {
		return text
	}
	for _, rule := range credentialPatterns {
		text = rule.re.ReplaceAllString(text, rule.repl)
	}
	return text
}
