package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Deployment Errors
// =============================================================================

var (
	ErrNameRequired      = errors.New("name is required")
	ErrComposeRequired   = errors.New("compose content is required")
	ErrInvalidStatus     = errors.New("invalid deployment status")
	ErrInvalidEnvVarName = errors.New("invalid environment variable name")
)

// =============================================================================
// Deployment Status
// =============================================================================

type DeploymentStatus string

const (
	StatusCreated DeploymentStatus = "created"
	StatusRunning DeploymentStatus = "running"
	StatusStopped DeploymentStatus = "stopped"
	StatusError   DeploymentStatus = "error"
)

// Valid reports whether s is a known status.
func (s DeploymentStatus) Valid() bool {
	switch s {
	case StatusCreated, StatusRunning, StatusStopped, StatusError:
		return true
	}
	return false
}

// =============================================================================
// Deployment
// =============================================================================

// Deployment is a compose project routed to a domain.
type Deployment struct {
	ID             string            `json:"id"`
	Seq            int64             `json:"seq"`
	Name           string            `json:"name"`
	Domain         string            `json:"domain"`
	Slug           string            `json:"slug"`
	Port           int               `json:"port,omitempty"` // internal port the proxy targets
	ComposeContent string            `json:"compose_content"`
	EnvVars        map[string]string `json:"env_vars,omitempty"`
	Status         DeploymentStatus  `json:"status"`
	ErrorMessage   string            `json:"error_message,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	StoppedAt      *time.Time        `json:"stopped_at,omitempty"`
}

// NewDeployment validates input and returns a deployment in the created state.
// Seq and Slug are assigned when the deployment is first stored.
func NewDeployment(name, domainName, composeContent string, envVars map[string]string) (*Deployment, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if err := ValidateDomain(domainName); err != nil {
		return nil, err
	}
	if strings.TrimSpace(composeContent) == "" {
		return nil, ErrComposeRequired
	}
	if err := ValidateEnvVars(envVars); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	return &Deployment{
		ID:             uuid.New().String(),
		Name:           name,
		Domain:         NormalizeDomain(domainName),
		ComposeContent: composeContent,
		EnvVars:        envVars,
		Status:         StatusCreated,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Transition moves the deployment to status, maintaining timestamps. Moving to
// StatusError records message; any other status clears it.
func (d *Deployment) Transition(to DeploymentStatus, message string) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, to)
	}

	now := time.Now().UTC()
	d.UpdatedAt = now
	d.ErrorMessage = ""

	switch to {
	case StatusRunning:
		if d.Status != StatusRunning {
			d.StartedAt = &now
		}
	case StatusStopped:
		if d.Status != StatusStopped {
			d.StoppedAt = &now
		}
	case StatusError:
		d.ErrorMessage = message
	}
	d.Status = to
	return nil
}

// ValidateEnvVars checks that every key can be written as a KEY=value line.
func ValidateEnvVars(env map[string]string) error {
	for k := range env {
		if k == "" || strings.ContainsAny(k, "= \t\r\n#") {
			return fmt.Errorf("%w: %q", ErrInvalidEnvVarName, k)
		}
	}
	return nil
}
