// Package compose contains pure functions for reading and rewriting Docker Compose documents.
// This is part of the Functional Core - all functions are pure with no I/O.
package compose

import (
	"errors"
	"fmt"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Input validation errors
	ErrEmptyInput = errors.New("empty compose file")

	// YAML parsing errors
	ErrInvalidYAML = errors.New("invalid YAML syntax")

	// Document structure errors
	ErrNotMapping         = errors.New("compose file must be a YAML mapping")
	ErrNoServices         = errors.New("no services found")
	ErrServicesNotMapping = errors.New("services must be a mapping")
	ErrServicesEmpty      = errors.New("services section cannot be empty")

	// Service shape errors
	ErrServiceNotMapping = errors.New("service definition must be a mapping")

	// Strict validation errors (Lint only)
	ErrServiceNoImage     = errors.New("service must have image or build")
	ErrServiceInvalidPort = errors.New("invalid port")
	ErrCircularDependency = errors.New("circular dependency detected")
	ErrUnsupportedFeature = errors.New("unsupported compose feature")
)

// ParseError wraps errors with context about where parsing failed.
type ParseError struct {
	Field   string // e.g., "services.web.labels"
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError.
func NewParseError(field, message string, err error) *ParseError {
	return &ParseError{
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// IsStructural reports whether err means the document does not have the minimal
// shape (a mapping with a non-empty services mapping) needed for rewriting.
func IsStructural(err error) bool {
	return errors.Is(err, ErrEmptyInput) ||
		errors.Is(err, ErrInvalidYAML) ||
		errors.Is(err, ErrNotMapping) ||
		errors.Is(err, ErrNoServices) ||
		errors.Is(err, ErrServicesNotMapping) ||
		errors.Is(err, ErrServicesEmpty)
}
