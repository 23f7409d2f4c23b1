// Package lmerr defines the typed errors surfaced by liquid-mail commands.
//
// Every failure that reaches the CLI boundary is an *Error carrying a stable
// code, a process exit code and a retryable flag so that agents driving the
// tool can decide whether to try again.
package lmerr

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeMissingConfig            Code = "MISSING_CONFIG"
	CodeAuthFailed               Code = "HONCHO_AUTH_FAILED"
	CodeRateLimited              Code = "RATE_LIMITED"
	CodeUnavailable              Code = "HONCHO_UNAVAILABLE"
	CodeRequestFailed            Code = "HONCHO_REQUEST_FAILED"
	CodeChatInvalid              Code = "HONCHO_CHAT_INVALID"
	CodeDecisionConflict         Code = "DECISION_CONFLICT"
	CodeTopicCapacityExceeded    Code = "TOPIC_CAPACITY_EXCEEDED"
	CodeTopicConsolidationFailed Code = "TOPIC_CONSOLIDATION_FAILED"
	CodeInvalidInput             Code = "INVALID_INPUT"
	CodeTopicRequired            Code = "TOPIC_REQUIRED"
	CodeInvalidTopicName         Code = "INVALID_TOPIC_NAME"
	CodeReservedTopicName        Code = "RESERVED_TOPIC_NAME"
	CodeUnknownCommand           Code = "UNKNOWN_COMMAND"
	CodeUnexpected               Code = "UNEXPECTED_ERROR"
)

// Exit codes shared by all commands.
const (
	ExitUnexpected   = 1
	ExitUsage        = 2
	ExitAuth         = 3
	ExitRateLimited  = 4
	ExitUnavailable  = 5
	ExitRemoteFailed = 6
	ExitConflict     = 7
)

// Error is a classified liquid-mail failure.
type Error struct {
	Code        Code
	Message     string
	ExitCode    int
	Retryable   bool
	Suggestions []string
	Details     map[string]any
	Err         error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by code, so errors.Is(err, &Error{Code: ...})
// works as a classification test.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithSuggestions returns e with the suggestions appended.
func (e *Error) WithSuggestions(s ...string) *Error {
	e.Suggestions = append(e.Suggestions, s...)
	return e
}

// WithDetail sets a single detail key.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// Payload is the JSON body for the error half of the output envelope.
type Payload struct {
	Code        Code           `json:"code"`
	Message     string         `json:"message"`
	Retryable   bool           `json:"retryable"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Envelope is the {ok:false,error:{...}} document written on failure.
type Envelope struct {
	OK    bool    `json:"ok"`
	Error Payload `json:"error"`
}

// ToEnvelope renders e for JSON output.
func (e *Error) ToEnvelope() Envelope {
	return Envelope{
		OK: false,
		Error: Payload{
			Code:        e.Code,
			Message:     e.Message,
			Retryable:   e.Retryable,
			Suggestions: e.Suggestions,
			Details:     e.Details,
		},
	}
}

// New creates an Error with an explicit exit code.
func New(code Code, exitCode int, retryable bool, format string, args ...any) *Error {
	return &Error{
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		ExitCode:  exitCode,
		Retryable: retryable,
	}
}

// From classifies any error. Errors that are already typed are returned as-is;
// everything else becomes a retryable UNEXPECTED_ERROR.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:      CodeUnexpected,
		Message:   err.Error(),
		ExitCode:  ExitUnexpected,
		Retryable: true,
		Err:       err,
	}
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// IsRetryable reports whether err is classified as retryable.
func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}
