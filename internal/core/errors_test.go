package core

import (
	"errors"
	"strings"
	"testing"
)

func TestDomainError_ErrorAndUnwrap(t *testing.T) {
	cause := errors.New("root")
	err := (&DomainError{
		Category: ErrCatValidation,
		Code:     "CODE",
		Message:  "message",
	}).WithCause(cause)

	if err.Unwrap() != cause {
		t.Fatalf("expected cause to be unwrapped")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to match cause")
	}

	match := &DomainError{Category: ErrCatValidation, Code: "CODE"}
	if !errors.Is(err, match) {
		t.Fatalf("expected errors.Is to match category and code")
	}
	other := &DomainError{Category: ErrCatValidation, Code: "OTHER"}
	if errors.Is(err, other) {
		t.Fatalf("expected errors.Is to reject a different code")
	}
}

func TestDomainError_Message(t *testing.T) {
	plain := ErrNotFound("missing", "not here")
	if got := plain.Error(); !strings.Contains(got, "not_found") || !strings.Contains(got, "missing") {
		t.Fatalf("unexpected error string: %q", got)
	}

	wrapped := ErrInternal("boom", "broke").WithCause(errors.New("disk full"))
	if got := wrapped.Error(); !strings.Contains(got, "disk full") {
		t.Fatalf("expected cause in error string, got %q", got)
	}
}

func TestErrorFactories(t *testing.T) {
	if ErrValidation("C", "m").Retryable {
		t.Fatalf("validation should not be retryable")
	}
	if ErrAuth("C", "m").Retryable {
		t.Fatalf("auth should not be retryable")
	}
	if ErrNotFound("C", "m").Retryable {
		t.Fatalf("not found should not be retryable")
	}
	if ErrConflict("C", "m").Retryable {
		t.Fatalf("conflict should not be retryable")
	}
	if !ErrExecution("C", "m").Retryable {
		t.Fatalf("execution should be retryable")
	}
	if !ErrRateLimit("m").Retryable {
		t.Fatalf("rate limit should be retryable")
	}
	if ErrInternal("C", "m").Retryable {
		t.Fatalf("internal should not be retryable")
	}
	if got := ErrRateLimit("m").Code; got != "RATE_LIMITED" {
		t.Fatalf("expected stable rate limit code, got %q", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(ErrExecution("X", "m")) {
		t.Fatalf("expected retryable error")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("expected non-domain error to be non-retryable")
	}
}

func TestCategoryOf(t *testing.T) {
	if CategoryOf(ErrRateLimit("m")) != ErrCatRateLimit {
		t.Fatalf("expected rate_limit category")
	}
	if CategoryOf(errors.New("plain")) != ErrCatInternal {
		t.Fatalf("expected internal category for non-domain error")
	}
}
