// Package monitoring derives deployment health from the runtime's view of its
// containers. It contains NO I/O.
package monitoring

import "github.com/artpar/docklite/internal/core/runtime"

// HealthStatus summarises how well a deployment is running.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthUnknown   HealthStatus = "unknown"
)

// =============================================================================
// Health Aggregation
// =============================================================================

// ContainerHealth maps one compose container to a health status.
//
// A container that is not running is unhealthy, as is one whose healthcheck
// reports unhealthy. A healthcheck still starting counts as degraded.
func ContainerHealth(c runtime.ComposeContainer) HealthStatus {
	if c.State != runtime.StateRunning {
		return HealthUnhealthy
	}
	switch c.Health {
	case "unhealthy":
		return HealthUnhealthy
	case "starting":
		return HealthDegraded
	}
	return HealthHealthy
}

// AggregateHealth folds container health into one status: unhealthy when every
// container is, degraded when some are, healthy otherwise. No containers means
// unknown.
func AggregateHealth(containers []runtime.ComposeContainer) HealthStatus {
	if len(containers) == 0 {
		return HealthUnknown
	}

	unhealthy, degraded := 0, 0
	for _, c := range containers {
		switch ContainerHealth(c) {
		case HealthUnhealthy:
			unhealthy++
		case HealthDegraded:
			degraded++
		}
	}

	if unhealthy == len(containers) {
		return HealthUnhealthy
	}
	if unhealthy > 0 || degraded > 0 {
		return HealthDegraded
	}
	return HealthHealthy
}

// StatusHealth reports the health of a compose project. Text output that could
// not be parsed into containers only tells us whether something is up.
func StatusHealth(st runtime.ComposeStatus) HealthStatus {
	if !st.Structured && len(st.Containers) == 0 {
		return HealthUnknown
	}
	if len(st.Containers) == 0 {
		return HealthUnhealthy
	}
	return AggregateHealth(st.Containers)
}
