package api

import (
	"github.com/artpar/docklite/internal/core/compose"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/artpar/docklite/internal/core/runtime"
)

// =============================================================================
// Request Types
// =============================================================================

// LintRequest is the request body for checking a compose document.
type LintRequest struct {
	ComposeContent string `json:"compose_content"`
	Strict         bool   `json:"strict,omitempty"`
}

// =============================================================================
// Response Types
// =============================================================================

// ListResponse wraps a list of items.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Count int `json:"count"`
}

func newList[T any](items []T) ListResponse[T] {
	if items == nil {
		items = []T{}
	}
	return ListResponse[T]{Data: items, Count: len(items)}
}

// LogsResponse carries log text.
type LogsResponse struct {
	Logs string `json:"logs"`
}

// ActionResponse reports a lifecycle action.
type ActionResponse struct {
	Status string `json:"status"`
	Output string `json:"output,omitempty"`
}

// ContainerResponse is a container snapshot.
type ContainerResponse = runtime.ContainerSnapshot

// DeploymentResponse is a stored deployment.
type DeploymentResponse = domain.Deployment

// LintResponse reports what docklite would make of a compose document.
type LintResponse struct {
	Valid     bool               `json:"valid"`
	Port      compose.PortResult `json:"port"`
	Variables []string           `json:"variables"`
	Summary   *compose.Summary   `json:"summary,omitempty"`
}

// ErrorResponse is the response for errors.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// HealthResponse is the response for health check.
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadyResponse is the response for readiness check.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
