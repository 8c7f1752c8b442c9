package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		kind   error
		status int
	}{
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrNotFound), ErrNotFound, http.StatusNotFound},
		{"duplicate", ErrAlreadyExists, ErrAlreadyExists, http.StatusConflict},
		{"lifecycle", ErrLifecycleConflict, ErrLifecycleConflict, http.StatusConflict},
		{"signature", ErrInvalidSignature, ErrInvalidSignature, http.StatusBadRequest},
		{"unknown", errors.New("connection refused"), ErrUpstreamFailure, http.StatusInternalServerError},
		{"deadline", context.DeadlineExceeded, ErrUpstreamFailure, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.err)
			if !errors.Is(got, tt.kind) {
				t.Fatalf("expected kind %v, got %v", tt.kind, got.Kind)
			}
			if got.Status() != tt.status {
				t.Fatalf("expected status %d, got %d", tt.status, got.Status())
			}
		})
	}
}

func TestUpstreamHidesCause(t *testing.T) {
	cause := errors.New("dial tcp 10.0.0.1:5432: refused")
	err := Upstream(cause)
	if err.Message != "upstream failure" {
		t.Fatalf("unexpected public message %q", err.Message)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved")
	}
}

func TestNormalizeKeepsDomainError(t *testing.T) {
	in := ValidationError(map[string]string{"email": "Email address is invalid"})
	if got := Normalize(fmt.Errorf("set profile: %w", in)); got != in {
		t.Fatalf("expected the original *Error")
	}
}

func TestIsValidIdentity(t *testing.T) {
	if !IsValidIdentity("did:chlu:zabc") {
		t.Fatalf("expected did:chlu id to be valid")
	}
	for _, id := range []string{"", "did:chlu:", "did:key:zabc", "Qmabc"} {
		if IsValidIdentity(id) {
			t.Fatalf("expected %q to be invalid", id)
		}
	}
}
