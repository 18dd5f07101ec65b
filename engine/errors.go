package engine

import "errors"

// Sentinel errors for config mutation operations. Callers classify with
// errors.Is to map onto HTTP status codes.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")
	ErrSaveFailed    = errors.New("failed to save config")
)
