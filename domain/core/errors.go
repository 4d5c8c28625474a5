package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	// Validation errors
	ErrNegativeCount     = errors.New("contingency count is negative")
	ErrInconsistentTotal = errors.New("total reports smaller than a table margin")
	ErrEmptyPair         = errors.New("drug and reaction term are required")
	ErrInvalidID         = errors.New("invalid identifier")

	// Configuration errors
	ErrUnknownSignalMode = errors.New("unknown signal mode")
	ErrUnknownRanking    = errors.New("unknown ranking criterion")
	ErrUnknownSource     = errors.New("unknown data source")
	ErrInvalidSpec       = errors.New("invalid analysis spec")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("validation failed for %s: %s", field, reason)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError reports whether err rejects an input value.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrNegativeCount) ||
		errors.Is(err, ErrInconsistentTotal) ||
		errors.Is(err, ErrEmptyPair) ||
		errors.Is(err, ErrInvalidID)
}

// IsConfigError reports whether err rejects a run setting.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownSignalMode) ||
		errors.Is(err, ErrUnknownRanking) ||
		errors.Is(err, ErrUnknownSource) ||
		errors.Is(err, ErrInvalidSpec)
}
