package domain

import (
	"context"
	"errors"
	"net/http"
)

var (
	ErrInvalidIdentity   = errors.New("invalid identity")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrInvalidSignature  = errors.New("invalid signature")
	ErrValidationFailed  = errors.New("validation failed")
	ErrLifecycleConflict = errors.New("lifecycle conflict")
	ErrUpstreamFailure   = errors.New("upstream failure")
)

// Error is the only error shape that leaves the usecase layer. Message is
// safe to show to clients; Err keeps the underlying cause for logs.
type Error struct {
	Kind    error
	Message string
	Data    map[string]string
	Err     error
}

func NewError(kind error, message string) *Error {
	if message == "" {
		message = kind.Error()
	}
	return &Error{Kind: kind, Message: message}
}

func ValidationError(fields map[string]string) *Error {
	return &Error{Kind: ErrValidationFailed, Message: "profile validation failed", Data: fields}
}

func Upstream(err error) *Error {
	return &Error{Kind: ErrUpstreamFailure, Message: "upstream failure", Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func (e *Error) Status() int {
	switch e.Kind {
	case ErrInvalidIdentity, ErrInvalidSignature, ErrValidationFailed:
		return http.StatusBadRequest
	case ErrNotFound:
		return http.StatusNotFound
	case ErrAlreadyExists, ErrLifecycleConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (e *Error) Code() string {
	switch e.Kind {
	case ErrInvalidIdentity:
		return "INVALID_IDENTITY"
	case ErrNotFound:
		return "NOT_FOUND"
	case ErrAlreadyExists:
		return "ALREADY_EXISTS"
	case ErrInvalidSignature:
		return "INVALID_SIGNATURE"
	case ErrValidationFailed:
		return "VALIDATION_FAILED"
	case ErrLifecycleConflict:
		return "LIFECYCLE_CONFLICT"
	default:
		return "UPSTREAM_FAILURE"
	}
}

var kinds = []error{
	ErrInvalidIdentity,
	ErrNotFound,
	ErrAlreadyExists,
	ErrInvalidSignature,
	ErrValidationFailed,
	ErrLifecycleConflict,
}

// Normalize maps any error onto the taxonomy. Unknown errors, including
// context cancellation, become UpstreamFailure.
func Normalize(err error) *Error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return de
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Upstream(err)
	}
	for _, kind := range kinds {
		if errors.Is(err, kind) {
			return &Error{Kind: kind, Message: kind.Error(), Err: err}
		}
	}
	return Upstream(err)
}
