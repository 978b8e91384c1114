package domain

import "errors"

// Error classes. Callers wrap these with fmt.Errorf("...: %w", err) and the
// HTTP layer maps them to status codes with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrForbidden       = errors.New("forbidden")
	ErrPolicyRejected  = errors.New("submission rejected by policy")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnavailable     = errors.New("persistence unavailable")
)
