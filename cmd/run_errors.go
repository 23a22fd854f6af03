package cmd

import (
	"log/slog"
	"strings"
)

// describeProviderFailure turns the provider error text of a failed run into
// an actionable hint. Raw API payloads are never repeated to the user.
func describeProviderFailure(output string) string {
	lower := strings.ToLower(output)

	// 1. Context overflow
	if isContextOverflowError(lower) {
		return "Hint: the conversation is too large for this model. Start a new session."
	}

	// 2. Rate limit
	if containsAny(lower, "rate limit", "rate_limit", "too many requests", "429", "resource_exhausted") {
		return "Hint: API rate limit reached. Lower provider.requestsPerMinute or try again later."
	}

	// 3. Billing / quota
	if containsAny(lower, "billing", "insufficient credits", "credit balance", "payment required", "402", "quota") {
		return "Hint: API billing or quota error. Check your provider's billing dashboard."
	}

	// 4. Auth errors
	if containsAny(lower, "invalid api key", "invalid_api_key", "unauthorized", "forbidden", "authentication", "401", "403", "access denied") {
		return "Hint: authentication failed. Check provider.apiKey or JOBAGENT_API_KEY."
	}

	// 5. Timeout
	if containsAny(lower, "timeout", "timed out", "deadline exceeded") {
		return "Hint: the provider timed out. Try again."
	}

	// 6. Model config
	if containsAny(lower, "not a valid model", "model not found", "unknown model") {
		return "Hint: model configuration error. Check provider.name and provider.model."
	}

	slog.Debug("unclassified provider failure", "output", output)
	return "Hint: the model provider failed. Run with --verbose for details."
}

// isContextOverflowError checks for context window/size overflow patterns.
func isContextOverflowError(lower string) bool {
	return containsAny(lower,
		"request_too_large",
		"context length exceeded",
		"maximum context length",
		"prompt is too long",
		"exceeds model context window",
	) || (strings.Contains(lower, "context") && !strings.Contains(lower, "deadline") &&
		containsAny(lower, "overflow", "too large", "too long", "exceeded"))
}

// containsAny returns true if s contains any of the given substrings.
func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
