// Package errors holds the sentinel errors shared by every proof component.
// Callers wrap them with fmt.Errorf("...: %w", err) and inspect with errors.Is.
package errors

import (
	"fmt"
)

var (
	ErrNotFound            = fmt.Errorf("not found")
	ErrAlreadyExists       = fmt.Errorf("already exists")
	ErrUnauthorized        = fmt.Errorf("unauthorized")
	ErrExpired             = fmt.Errorf("expired")
	ErrAlreadyUsed         = fmt.Errorf("already used")
	ErrIndexOutOfRange     = fmt.Errorf("index out of range")
	ErrGenerationExhausted = fmt.Errorf("code generation exhausted")
	ErrStoreUnavailable    = fmt.Errorf("store unavailable")
	ErrInvalidInput        = fmt.Errorf("invalid input")
	ErrCompanyInactive     = fmt.Errorf("company inactive")

	// ErrRandomnessUnavailable is returned when the secure randomness source
	// fails. Code generation never falls back to a weaker source.
	ErrRandomnessUnavailable = fmt.Errorf("randomness unavailable")
)
