package service

import "errors"

var (
	ErrPhoneRegistered    = errors.New("phone number already registered")
	ErrCodeNotFound       = errors.New("verification code not found or expired")
	ErrCodeMismatch       = errors.New("verification code does not match")
	ErrPhoneNotVerified   = errors.New("phone number not verified")
	ErrAccountExists      = errors.New("login id or phone number already exists")
	ErrInvalidCredentials = errors.New("invalid login id or password")
	ErrEventNotFound      = errors.New("event not found")
	ErrGuestNotFound      = errors.New("guest not found")
	ErrDuplicateEntry     = errors.New("participation already exists")
)

// InputError is a request the service refuses before touching storage.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}
