package lmerr

import "fmt"

// MissingConfig reports required configuration that is absent or still a
// placeholder.
func MissingConfig(message string, suggestions ...string) *Error {
	e := New(CodeMissingConfig, ExitUsage, false, "%s", message)
	return e.WithSuggestions(suggestions...)
}

// InvalidInput reports a malformed argument or flag.
func InvalidInput(format string, args ...any) *Error {
	return New(CodeInvalidInput, ExitUsage, false, format, args...)
}

// TopicRequired is returned when no topic could be determined for a post.
func TopicRequired(reason string) *Error {
	return New(CodeTopicRequired, ExitUsage, false, "a topic is required (%s)", reason).
		WithSuggestions("Pass --topic <name>", "Pin a topic with: liquid-mail topic pin <name>").
		WithDetail("reason", reason)
}

// UnknownCommand reports an unrecognised subcommand.
func UnknownCommand(name string) *Error {
	return New(CodeUnknownCommand, ExitUsage, false, "unknown command %q", name).
		WithSuggestions("Run liquid-mail --help")
}

// HTTPStatus maps a non-2xx backend response onto the error taxonomy.
//
//	401/403 -> HONCHO_AUTH_FAILED (exit 3)
//	429     -> RATE_LIMITED (exit 4, retryable)
//	5xx     -> HONCHO_UNAVAILABLE (exit 5, retryable)
//	other   -> HONCHO_REQUEST_FAILED (exit 6)
func HTTPStatus(status int, method, path, body string) *Error {
	var e *Error
	switch {
	case status == 401 || status == 403:
		e = New(CodeAuthFailed, ExitAuth, false, "Honcho rejected the credentials (HTTP %d)", status).
			WithSuggestions("Check honcho.api_key or LIQUID_MAIL_HONCHO_API_KEY",
				"Check honcho.workspace_id matches the key")
	case status == 429:
		e = New(CodeRateLimited, ExitRateLimited, true, "Honcho rate limit exceeded (HTTP 429)").
			WithSuggestions("Wait and retry")
	case status >= 500:
		e = New(CodeUnavailable, ExitUnavailable, true, "Honcho is unavailable (HTTP %d)", status).
			WithSuggestions("Retry shortly")
	default:
		e = New(CodeRequestFailed, ExitRemoteFailed, status >= 500, "Honcho request failed (HTTP %d)", status)
	}
	e.WithDetail("status", status).WithDetail("method", method).WithDetail("path", path)
	if body != "" {
		e.WithDetail("body", body)
	}
	return e
}

// Network wraps a transport failure (DNS, refused connection, timeout).
func Network(method, path string, err error) *Error {
	e := New(CodeRequestFailed, ExitRemoteFailed, true, "Honcho request %s %s failed", method, path)
	e.Err = err
	return e.WithDetail("cause", err.Error())
}

// ChatInvalid reports a structured chat response that never matched its
// schema within the retry budget.
func ChatInvalid(schema string, attempts int, last error) *Error {
	e := New(CodeChatInvalid, ExitRemoteFailed, true,
		"structured response for %s was invalid after %d attempts", schema, attempts)
	e.Err = last
	e.WithDetail("schema", schema).WithDetail("attempts", attempts)
	if last != nil {
		e.WithDetail("last_error", last.Error())
	}
	return e
}

// DecisionConflict blocks a post whose decision contradicts a prior one.
func DecisionConflict(topicID string, maxConfidence float64, conflicts any) *Error {
	return New(CodeDecisionConflict, ExitConflict, false,
		"decision conflicts with a prior decision in topic %s", topicID).
		WithSuggestions("Review the prior decision", "Re-run with --force to post anyway").
		WithDetail("topic_id", topicID).
		WithDetail("max_confidence", maxConfidence).
		WithDetail("conflicts", conflicts)
}

// TopicCapacityExceeded reports that no new topic may be created.
func TopicCapacityExceeded(maxActive, activeCount int) *Error {
	return New(CodeTopicCapacityExceeded, ExitRemoteFailed, false,
		"active topic limit reached (%d/%d)", activeCount, maxActive).
		WithSuggestions("Pass --topic to reuse an existing topic",
			"Set topics.consolidation_strategy = \"merge\" to merge topics automatically").
		WithDetail("max_active", maxActive).
		WithDetail("active_count", activeCount)
}

// ConsolidationFailed reports a failed topic merge.
func ConsolidationFailed(retryable bool, format string, args ...any) *Error {
	return New(CodeTopicConsolidationFailed, ExitRemoteFailed, retryable, format, args...)
}

// InvalidTopicName reports a topic name that breaks the naming rules.
func InvalidTopicName(name, reason string) *Error {
	return New(CodeInvalidTopicName, ExitUsage, false, "invalid topic name %q: %s", name, reason).
		WithSuggestions("Use 4-50 lowercase letters, digits and single hyphens, starting with a letter").
		WithDetail("name", name)
}

// ReservedTopicName reports a topic name that collides with a command word.
func ReservedTopicName(name string) *Error {
	return New(CodeReservedTopicName, ExitUsage, false, "topic name %q is reserved", name).
		WithDetail("name", name)
}

// Wrap attaches cause to a typed error and returns it.
func Wrap(e *Error, cause error) *Error {
	e.Err = cause
	if cause != nil && e.Details["cause"] == nil {
		e.WithDetail("cause", fmt.Sprint(cause))
	}
	return e
}
