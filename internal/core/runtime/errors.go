package runtime

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedOutput = errors.New("malformed runtime output")
	ErrNotFound        = errors.New("container not found")
	ErrNoStats         = errors.New("no stats available")
)

// OutputError describes output that could not be parsed.
type OutputError struct {
	Op      string // list, inspect, stats
	Line    int    // 1-based; 0 when not line oriented
	Message string
	Err     error
}

func (e *OutputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s: line %d: %s", e.Op, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OutputError) Unwrap() error {
	return e.Err
}

func newOutputError(op string, line int, message string) *OutputError {
	return &OutputError{Op: op, Line: line, Message: message, Err: ErrMalformedOutput}
}
