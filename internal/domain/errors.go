package domain

import "errors"

var (
	// ErrValidation marks input that fails domain validation rules.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup that matched no record.
	ErrNotFound = errors.New("not found")
)
