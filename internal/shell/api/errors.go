package api

import (
	"errors"
	"net/http"

	"github.com/artpar/docklite/internal/core/compose"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/artpar/docklite/internal/core/protection"
	"github.com/artpar/docklite/internal/core/runtime"
	"github.com/artpar/docklite/internal/core/traefik"
	"github.com/artpar/docklite/internal/shell/docker"
	"github.com/artpar/docklite/internal/shell/store"
)

// =============================================================================
// Error Mapping
// =============================================================================

// errorStatus maps a domain error to an HTTP status and error code.
func errorStatus(err error) (int, string) {
	var parseErr *compose.ParseError
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "deployment_not_found"
	case errors.Is(err, runtime.ErrNotFound):
		return http.StatusNotFound, "container_not_found"
	case errors.Is(err, store.ErrDuplicateDomain):
		return http.StatusConflict, "domain_in_use"
	case errors.Is(err, protection.ErrProtected):
		return http.StatusForbidden, "protected_container"
	case compose.IsStructural(err), errors.As(err, &parseErr),
		errors.Is(err, compose.ErrServiceNotMapping),
		errors.Is(err, compose.ErrServiceNoImage),
		errors.Is(err, compose.ErrCircularDependency),
		errors.Is(err, compose.ErrUnsupportedFeature):
		return http.StatusBadRequest, "invalid_compose"
	case errors.Is(err, domain.ErrDomainEmpty), errors.Is(err, domain.ErrDomainInvalid),
		errors.Is(err, domain.ErrDomainTooLong), errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrComposeRequired), errors.Is(err, domain.ErrInvalidEnvVarName),
		errors.Is(err, traefik.ErrInvalidPort), errors.Is(err, traefik.ErrInvalidHostname),
		errors.Is(err, traefik.ErrEmptyHostname), errors.Is(err, traefik.ErrEmptyRoutingKey):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, docker.ErrTimeout):
		return http.StatusGatewayTimeout, "runtime_timeout"
	case errors.Is(err, docker.ErrRuntimeUnavailable), errors.Is(err, docker.ErrConnectionFailed):
		return http.StatusServiceUnavailable, "runtime_unavailable"
	case errors.Is(err, docker.ErrCommandFailed), errors.Is(err, runtime.ErrMalformedOutput),
		errors.Is(err, runtime.ErrNoStats):
		return http.StatusBadGateway, "runtime_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// errorMessage returns the text shown to clients. Runtime failures carry the
// runtime's own diagnostic.
func errorMessage(err error, status int) string {
	if status == http.StatusInternalServerError {
		return "internal error"
	}
	return docker.Diagnostic(err)
}
