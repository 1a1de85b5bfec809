package apperror

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		expected string
	}{
		{
			name:     "without internal error",
			err:      New(KindInput, "document has no content"),
			expected: "input: document has no content",
		},
		{
			name:     "with internal error",
			err:      New(KindLLM, "all extraction calls failed").WithInternal(errors.New("deadline exceeded")),
			expected: "llm: all extraction calls failed (deadline exceeded)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindConfig, false},
		{KindInput, false},
		{KindRateLimited, true},
		{KindLLM, true},
		{KindTenant, false},
		{KindPersistence, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := New(tt.kind, "x").Retryable(); got != tt.want {
				t.Errorf("Retryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	wrapped := fmt.Errorf("process job: %w", New(KindRateLimited, "budget exhausted"))
	if got := KindOf(wrapped); got != KindRateLimited {
		t.Errorf("KindOf(wrapped) = %q, want %q", got, KindRateLimited)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestIsRetryableDefaultsTrueForUnclassified(t *testing.T) {
	if !IsRetryable(errors.New("connection reset")) {
		t.Error("unclassified errors should be retryable")
	}
	if IsRetryable(New(KindConfig, "no schemas")) {
		t.Error("config errors should not be retryable")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindPersistence, "insert failed").WithInternal(cause)
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the internal cause")
	}
}
