package client

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Errors surfaced to the user by the verification and ledger flows. None of
// them are retried.
var (
	ErrDuplicateResource = errors.New("resource already registered")
	ErrCodeMismatch      = errors.New("verification code does not match")
	ErrCodeNotFound      = errors.New("verification code not found")
	ErrExpired           = errors.New("verification window expired")
	ErrUnauthorized      = errors.New("invalid login id or password")

	// ErrStale is returned when a response arrives after the flow was reset
	// or closed. The response is dropped.
	ErrStale = errors.New("response superseded")
	// ErrVerifiedLocked is returned for edits after the phone was verified.
	ErrVerifiedLocked = errors.New("phone number already verified")
	ErrClosed         = errors.New("flow closed")
	ErrInFlight       = errors.New("request already in flight")
)

// ValidationError is a local, pre-network input error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError returns a *ValidationError for field.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// UnknownNetworkError is the catch-all for transport failures and unmapped
// backend statuses. StatusCode is zero when no response was received.
type UnknownNetworkError struct {
	StatusCode int
	Err        error
}

func (e *UnknownNetworkError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("request failed: %v", e.Err)
	}
	return fmt.Sprintf("request failed with status %d: %v", e.StatusCode, e.Err)
}

func (e *UnknownNetworkError) Unwrap() error {
	return e.Err
}

// Unknown wraps err as an *UnknownNetworkError, keeping the status of an
// *APIError when there is one.
func Unknown(err error) error {
	var unknown *UnknownNetworkError
	if errors.As(err, &unknown) {
		return err
	}
	status := 0
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		status = apiErr.StatusCode
	}
	return &UnknownNetworkError{StatusCode: status, Err: err}
}

// StatusCode reports the backend status carried by err, or zero.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsDuplicateMessage reports whether a backend error message describes an
// already registered record.
func IsDuplicateMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "duplicate") || strings.Contains(lower, "already exists")
}
