package domain

import "errors"

// Sentinel errors for the application. Callers wrap these with context via
// fmt.Errorf("%w: ...") and the transport layers map them with errors.Is.
var (
	ErrValidation   = errors.New("invalid input")
	ErrNotFound     = errors.New("resource not found")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("resource already exists")
	ErrCapacity     = errors.New("capacity exceeded")
	ErrInternal     = errors.New("internal server error")
)
