package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrContentNotFound is returned when no authored content exists for a key.
	ErrContentNotFound = errors.New("content not found")
	// ErrContentUnavailable indicates generation could not produce a usable quiz.
	ErrContentUnavailable = errors.New("content unavailable")
	// ErrInvalidGeneratedContent indicates the generator answered with the wrong shape.
	ErrInvalidGeneratedContent = errors.New("invalid generated content")
	// ErrAuthRequired is returned when an action needs an authenticated identity.
	ErrAuthRequired = errors.New("authentication required")
	// ErrPersistence wraps any store read/write failure.
	ErrPersistence = errors.New("persistence error")
	// ErrRateLimited is returned when a client exceeds the generation budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrDuplicateAttempt signals that a score for the attempt was already stored.
	ErrDuplicateAttempt = errors.New("duplicate attempt")
)

// ValidationError names the offending request field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
