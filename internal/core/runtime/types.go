// Package runtime models what the container runtime CLI prints and turns it into
// typed values. Commands are run elsewhere; this package only parses their output.
// This is part of the Functional Core - all functions are pure with no I/O.
package runtime

import "time"

// =============================================================================
// Command Results
// =============================================================================

// CommandResult is the captured outcome of one process invocation.
type CommandResult struct {
	Argv     []string      `json:"argv"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Success reports whether the process exited with status 0.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// =============================================================================
// Verbs
// =============================================================================

// Verb names a lifecycle operation on a container.
type Verb string

const (
	VerbStart   Verb = "start"
	VerbStop    Verb = "stop"
	VerbRestart Verb = "restart"
	VerbRemove  Verb = "remove"
	VerbLogs    Verb = "logs"
	VerbStats   Verb = "stats"
	VerbInspect Verb = "inspect"
	VerbList    Verb = "list"
)

// Destructive reports whether the verb can take a running container down.
func (v Verb) Destructive() bool {
	switch v {
	case VerbStop, VerbRestart, VerbRemove:
		return true
	}
	return false
}

// Classifier decides whether a container name belongs to the platform itself.
type Classifier interface {
	IsProtected(name string) bool
}

// =============================================================================
// Container Snapshots
// =============================================================================

// Container states as reported by the runtime.
const (
	StateCreated    = "created"
	StateRunning    = "running"
	StatePaused     = "paused"
	StateRestarting = "restarting"
	StateRemoving   = "removing"
	StateExited     = "exited"
	StateDead       = "dead"
	StateUnknown    = "unknown"
)

// ContainerSnapshot is a read-only view of one container at the time of the call.
type ContainerSnapshot struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Image        string            `json:"image"`
	State        string            `json:"state"`
	Status       string            `json:"status,omitempty"`
	Health       string            `json:"health,omitempty"`
	Created      string            `json:"created"`
	StartedAt    string            `json:"started_at,omitempty"`
	Ports        []string          `json:"ports"`
	OwnerProject string            `json:"project,omitempty"`
	OwnerService string            `json:"service,omitempty"`
	IsProtected  bool              `json:"is_system"`
	Labels       map[string]string `json:"labels,omitempty"`
}

// Running reports whether the container is up.
func (c ContainerSnapshot) Running() bool {
	return c.State == StateRunning
}

// =============================================================================
// Compose Status
// =============================================================================

// ComposeContainer is one row of a compose project's ps output.
type ComposeContainer struct {
	Name    string `json:"name"`
	Service string `json:"service,omitempty"`
	State   string `json:"status"`
	Health  string `json:"health"`
}

// ComposeStatus summarises a compose project. Structured is false when the
// text fallback was used.
type ComposeStatus struct {
	Running    bool               `json:"running"`
	Containers []ComposeContainer `json:"containers"`
	Structured bool               `json:"structured"`
	Raw        string             `json:"raw_output"`
}

// =============================================================================
// Stats
// =============================================================================

// Stat field names recorded in Stats.Defaulted.
const (
	FieldCPUPercent    = "cpu_percent"
	FieldMemoryPercent = "memory_percent"
	FieldMemoryUsage   = "memory_usage"
	FieldMemoryLimit   = "memory_limit"
	FieldNetworkIO     = "network_io"
)

// ZeroSize is substituted when a "used / limit" pair lacks a limit.
const ZeroSize = "0B"

// Stats is a single resource usage sample. Percentages are rounded to two
// decimal places. Any field that could not be read is listed in Defaulted, so a
// fallback zero can be told apart from a measured one.
type Stats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryUsage   string  `json:"memory_usage"`
	MemoryLimit   string  `json:"memory_limit"`
	MemoryPercent float64 `json:"memory_percent"`
	NetworkIO     string  `json:"network_io"`
	BlockIO       string  `json:"block_io,omitempty"`
	PIDs          int     `json:"pids,omitempty"`

	MemoryUsageBytes int64 `json:"memory_usage_bytes"`
	MemoryLimitBytes int64 `json:"memory_limit_bytes"`
	NetworkRxBytes   int64 `json:"network_rx_bytes"`
	NetworkTxBytes   int64 `json:"network_tx_bytes"`

	Defaulted []string `json:"defaulted,omitempty"`
}

// IsDefaulted reports whether field fell back to its zero value.
func (s Stats) IsDefaulted(field string) bool {
	for _, f := range s.Defaulted {
		if f == field {
			return true
		}
	}
	return false
}
