// Package agent drives a job through the model/tool loop.
//
// InputGuard scans the job prompt and tool output for known injection
// patterns. Action is configurable via agent.injectionAction:
//   - "log":   info-level logging (quiet)
//   - "warn":  warning-level logging (default)
//   - "block": refuse the prompt, withhold the tool output
//   - "off":   disable scanning entirely
package agent

import (
	"log/slog"
	"regexp"
	"strings"
)

const (
	InjectionOff   = "off"
	InjectionLog   = "log"
	InjectionWarn  = "warn"
	InjectionBlock = "block"
)

// normalizeInjectionAction maps unknown values to "warn".
func normalizeInjectionAction(action string) string {
	switch action {
	case InjectionOff, InjectionLog, InjectionWarn, InjectionBlock:
		return action
	default:
		return InjectionWarn
	}
}

type guardPattern struct {
	name    string
	pattern *regexp.Regexp
}

// InputGuard scans text for known prompt injection patterns.
type InputGuard struct {
	patterns []guardPattern
}

// NewInputGuard creates an InputGuard with the default pattern set.
func NewInputGuard() *InputGuard {
	return &InputGuard{patterns: defaultGuardPatterns()}
}

// Scan returns the names of matched patterns (nil = clean).
func (g *InputGuard) Scan(text string) []string {
	if text == "" {
		return nil
	}
	var matches []string
	for _, gp := range g.patterns {
		if gp.pattern.MatchString(text) {
			matches = append(matches, gp.name)
		}
	}
	return matches
}

// Inspect scans text and logs matches according to action. It reports
// whether the text must be rejected, which only happens under "block".
func (g *InputGuard) Inspect(logger *slog.Logger, action, source, text string) (matches []string, blocked bool) {
	if g == nil || action == InjectionOff {
		return nil, false
	}
	matches = g.Scan(text)
	if len(matches) == 0 {
		return nil, false
	}
	attrs := []any{"source", source, "patterns", strings.Join(matches, ",")}
	switch action {
	case InjectionLog:
		logger.Info("possible prompt injection", attrs...)
	case InjectionBlock:
		logger.Warn("prompt injection blocked", attrs...)
		return matches, true
	default:
		logger.Warn("possible prompt injection", attrs...)
	}
	return matches, false
}

func defaultGuardPatterns() []guardPattern {
	return []guardPattern{
		{
			name:    "ignore_instructions",
			pattern: regexp.MustCompile(`(?i)ignore\s+(all\s+)?(previous|prior|above|earlier|preceding)\s+(instructions?|rules?|prompts?|directives?|guidelines?)`),
		},
		{
			name:    "role_override",
			pattern: regexp.MustCompile(`(?i)(you are now|from now on you are|pretend you are|act as if you are)\s+`),
		},
		{
			name:    "system_tags",
			pattern: regexp.MustCompile(`(?i)</?system>|\[SYSTEM\]|\[INST\]|<<SYS>>|<\|im_start\|>system`),
		},
		{
			name:    "instruction_injection",
			pattern: regexp.MustCompile(`(?i)(new instructions?:|override:|system prompt:|<\|system\|>)`),
		},
		{
			name:    "fake_tool_result",
			pattern: regexp.MustCompile(`(?i)\[tool result:`),
		},
		{
			name:    "null_bytes",
			pattern: regexp.MustCompile(`\x00`),
		},
	}
}
