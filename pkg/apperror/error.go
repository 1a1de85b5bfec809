// Package apperror defines the error taxonomy used by the extraction worker.
package apperror

import (
	"errors"
	"fmt"
)

// Kind classifies a job failure. The coordinator uses it to decide whether a
// failed job is worth retrying and what to record in the debug snapshot.
type Kind string

const (
	// KindConfig covers missing providers, missing schemas after auto-install,
	// and other misconfiguration. Not retryable.
	KindConfig Kind = "config"

	// KindInput covers invalid source types and missing source content. Not retryable.
	KindInput Kind = "input"

	// KindRateLimited means the token budget refused capacity within the wait window.
	KindRateLimited Kind = "rate_limited"

	// KindLLM means every LLM call for the job failed.
	KindLLM Kind = "llm"

	// KindVerification covers verifier failures. Non-fatal; recorded as warnings.
	KindVerification Kind = "verification"

	// KindPersistence covers single entity/relationship write failures.
	KindPersistence Kind = "persistence"

	// KindTenant means organization or project context could not be established.
	KindTenant Kind = "tenant"
)

// Error is a classified job error.
type Error struct {
	Kind     Kind
	Message  string
	Internal error
	Details  map[string]any
}

func (e *Error) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Kind, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Internal
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindRateLimited, KindLLM:
		return true
	default:
		return false
	}
}

// WithInternal returns a copy with an underlying cause attached.
func (e *Error) WithInternal(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Internal: err, Details: e.Details}
}

// WithDetails returns a copy with structured details attached.
func (e *Error) WithDetails(details map[string]any) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Internal: e.Internal, Details: details}
}

// New creates a classified error.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, or "" when err carries no classification.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err is a classified, retryable failure.
// Unclassified errors default to retryable: transient infrastructure faults
// (database, network) arrive unwrapped.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return true
}
