package docker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// commandsTotal counts runtime commands.
	// Labels: verb, outcome (success, failure, timeout, error)
	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docklite",
		Subsystem: "runtime",
		Name:      "commands_total",
		Help:      "Total runtime commands by verb and outcome",
	}, []string{"verb", "outcome"})

	// commandDuration measures wall time of runtime commands.
	commandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "docklite",
		Subsystem: "runtime",
		Name:      "command_duration_seconds",
		Help:      "Runtime command duration in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"verb"})

	// protectionViolations counts destructive verbs refused on system containers.
	protectionViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docklite",
		Subsystem: "runtime",
		Name:      "protection_violations_total",
		Help:      "Destructive verbs refused on protected containers",
	}, []string{"verb"})

	// deploymentOperations counts orchestrator operations.
	// Labels: operation (deploy, redeploy, start, stop, restart, remove), outcome
	deploymentOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "docklite",
		Subsystem: "orchestrator",
		Name:      "operations_total",
		Help:      "Deployment lifecycle operations by outcome",
	}, []string{"operation", "outcome"})
)

func observeCommand(verb string, d time.Duration, exitCode int, err error) {
	outcome := "success"
	switch {
	case errors.Is(err, ErrTimeout):
		outcome = "timeout"
	case err != nil:
		outcome = "error"
	case exitCode != 0:
		outcome = "failure"
	}
	commandsTotal.WithLabelValues(verb, outcome).Inc()
	commandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

func observeOperation(op string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	deploymentOperations.WithLabelValues(op, outcome).Inc()
}
