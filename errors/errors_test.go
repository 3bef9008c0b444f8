package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClass_String(t *testing.T) {
	tests := []struct {
		class    ErrorClass
		expected string
	}{
		{ErrorTransient, "transient"},
		{ErrorInvalid, "invalid"},
		{ErrorFatal, "fatal"},
		{ErrorClass(999), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			result := test.class.String()
			if result != test.expected {
				t.Errorf("expected %s, got %s", test.expected, result)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"sink unavailable", ErrSinkUnavailable, true},
		{"storage unavailable", ErrStorageUnavailable, true},
		{"connection lost", ErrConnectionLost, true},
		{"connection timeout", ErrConnectionTimeout, true},
		{"context deadline exceeded", context.DeadlineExceeded, true},
		{"context canceled", context.Canceled, true},
		{"malformed payload", ErrMalformedPayload, false},
		{"type mismatch", ErrTypeMismatch, false},
		{"timeout in message", fmt.Errorf("operation timeout occurred"), true},
		{"driver connection error", fmt.Errorf("tcp connection refused"), true},
		{"classified transient", &ClassifiedError{Class: ErrorTransient, Err: fmt.Errorf("test")}, true},
		{"classified fatal", &ClassifiedError{Class: ErrorFatal, Err: fmt.Errorf("test")}, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsTransient(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"malformed payload", ErrMalformedPayload, true},
		{"missing field", ErrMissingField, true},
		{"unknown device", ErrUnknownDevice, true},
		{"value out of range", ErrValueOutOfRange, true},
		{"bad timestamp", ErrBadTimestamp, true},
		{"type mismatch", ErrTypeMismatch, true},
		{"field not found", ErrFieldNotFound, true},
		{"sink unavailable", ErrSinkUnavailable, false},
		{"classified invalid", &ClassifiedError{Class: ErrorInvalid, Err: fmt.Errorf("test")}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsInvalid(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"invalid config", ErrInvalidConfig, true},
		{"missing config", ErrMissingConfig, true},
		{"resource exhausted", ErrResourceExhausted, true},
		{"connection timeout", ErrConnectionTimeout, false},
		{"malformed payload", ErrMalformedPayload, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			result := IsFatal(test.err)
			if result != test.expected {
				t.Errorf("expected %v, got %v for error: %v", test.expected, result, test.err)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorClass
	}{
		{"validation error stays invalid", ErrUnknownDevice, ErrorInvalid},
		{"sink error stays transient", ErrSinkUnavailable, ErrorTransient},
		{"config error is fatal", ErrInvalidConfig, ErrorFatal},
		{"unknown defaults to transient", fmt.Errorf("mystery"), ErrorTransient},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Classify(test.err); got != test.expected {
				t.Errorf("expected %v, got %v", test.expected, got)
			}
		})
	}
}

func TestWrap(t *testing.T) {
	base := errors.New("boom")
	wrapped := Wrap(base, "Router", "Dispatch", "sink write")

	if !errors.Is(wrapped, base) {
		t.Error("wrapped error should match base via errors.Is")
	}
	if !strings.Contains(wrapped.Error(), "Router.Dispatch: sink write failed") {
		t.Errorf("unexpected message: %s", wrapped.Error())
	}
	if Wrap(nil, "a", "b", "c") != nil {
		t.Error("wrapping nil should return nil")
	}
}

func TestWrapClassPreservesChain(t *testing.T) {
	wrapped := WrapInvalid(ErrTypeMismatch, "Chain", "Apply", "clamp humidity_pct")

	if !errors.Is(wrapped, ErrTypeMismatch) {
		t.Error("classification wrapping should preserve the error chain")
	}
	if !IsInvalid(wrapped) {
		t.Error("wrapped error should be classified invalid")
	}

	var ce *ClassifiedError
	if !errors.As(wrapped, &ce) {
		t.Fatal("expected ClassifiedError in chain")
	}
	if ce.Component != "Chain" || ce.Operation != "Apply" {
		t.Errorf("unexpected context: %+v", ce)
	}
}

func TestWrapTransientThenClassify(t *testing.T) {
	// A sink error that mentions nothing transient in its message still
	// retries when explicitly wrapped as transient.
	wrapped := WrapTransient(errors.New("kaput"), "Sink", "Write", "publish")
	if Classify(wrapped) != ErrorTransient {
		t.Error("explicit transient wrap should classify as transient")
	}
}
