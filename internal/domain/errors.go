// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a request failed input validation.
// Wrap it with the field-level message: fmt.Errorf("%w: sensorId is required", ErrValidation).
var ErrValidation = errors.New("validation failed")
