package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. It is never retried.
	ErrValidation = errors.New("validation failed")
	// ErrDuplicateSubmission is returned when a player already answered a question.
	ErrDuplicateSubmission = errors.New("answer already submitted")
	// ErrNotFound is the parent of every missing-entity error.
	ErrNotFound = errors.New("not found")
	// ErrTransientPersistence wraps store failures that may succeed on a later attempt.
	ErrTransientPersistence = errors.New("transient persistence failure")
	// ErrBroadcastDelivery wraps relay publish failures. Always non-fatal.
	ErrBroadcastDelivery = errors.New("broadcast delivery failed")
	// ErrInvalidTransition is returned when a game cannot move to the requested state.
	ErrInvalidTransition = errors.New("invalid game transition")

	ErrGameNotFound        = fmt.Errorf("game %w", ErrNotFound)
	ErrPlayerNotFound      = fmt.Errorf("player %w", ErrNotFound)
	ErrQuestionNotFound    = fmt.Errorf("question %w", ErrNotFound)
	ErrQuestionSetNotFound = fmt.Errorf("question set %w", ErrNotFound)
)

// ValidationError describes which input was rejected and why.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Invalid is shorthand for building a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
