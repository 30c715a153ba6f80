package domain

import "errors"

var (
	ErrAuthInvalid     = errors.New("invalid or expired credential")
	ErrForbidden       = errors.New("forbidden")
	ErrNoActiveSession = errors.New("no active work session")
	ErrInvalidInterval = errors.New("interval not allowed")
	ErrStorageFailure  = errors.New("storage failure")
	ErrNotDelivered    = errors.New("source not connected")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidInput    = errors.New("invalid input")
)
