package docker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/docklite/internal/core/runtime"
)

// =============================================================================
// Error Types
// =============================================================================

var (
	// Runtime errors
	ErrRuntimeUnavailable = errors.New("container runtime unavailable")
	ErrCommandFailed      = errors.New("command failed")
	ErrEmptyCommand       = errors.New("empty command")

	// Connection errors
	ErrConnectionFailed = errors.New("remote connection failed")
	ErrTimeout          = errors.New("operation timed out")

	// Orchestration errors
	ErrDeploymentNotRunning = errors.New("deployment has no running containers")
)

// genericFailure is reported when the runtime wrote nothing to stderr.
const genericFailure = "command failed"

// CommandError wraps a failed runtime command with context.
type CommandError struct {
	Op       string // verb or compose action
	Entity   string // container, project, runtime
	ID       string // container identifier or project directory
	ExitCode int
	Message  string // stderr, or "command failed" when empty
	Err      error
}

func (e *CommandError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %s", e.Op, e.Entity, e.ID, e.Message)
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s %s: %s", e.Op, e.Entity, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError creates a new CommandError.
func NewCommandError(op, entity, id, message string, err error) *CommandError {
	return &CommandError{
		Op:      op,
		Entity:  entity,
		ID:      id,
		Message: message,
		Err:     err,
	}
}

// commandFailure builds the error for a command that ran but exited non-zero.
func commandFailure(op, entity, id string, res runtime.CommandResult) *CommandError {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = genericFailure
	}
	e := NewCommandError(op, entity, id, msg, ErrCommandFailed)
	e.ExitCode = res.ExitCode
	return e
}

// Diagnostic returns the runtime's own message for err when it carries one.
func Diagnostic(err error) string {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
