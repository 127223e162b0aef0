// Package docker drives the container runtime through its command line, either
// on this host or over SSH, and orchestrates compose deployments on top of it.
package docker

import (
	"sort"
	"strconv"
	"time"
)

// =============================================================================
// Defaults
// =============================================================================

const (
	DefaultBinary         = "docker"
	DefaultCommandTimeout = 30 * time.Second
	DefaultComposeTimeout = 5 * time.Minute
	DefaultStopTimeout    = 10 * time.Second
	DefaultLogTail        = 100
	ComposeFileName       = "docker-compose.yml"
	EnvFileName           = ".env"
)

// DefaultComposeCommand is the compose v2 plugin invocation.
var DefaultComposeCommand = []string{"docker", "compose"}

// jsonFormat asks the runtime for one JSON object per line.
const jsonFormat = "{{json .}}"

// =============================================================================
// Options
// =============================================================================

// StopOptions defines options for stop and restart.
type StopOptions struct {
	Timeout time.Duration // grace period before SIGKILL; 0 means DefaultStopTimeout
}

func (o StopOptions) grace() time.Duration {
	if o.Timeout <= 0 {
		return DefaultStopTimeout
	}
	return o.Timeout
}

// seconds renders the grace period for -t, rounding partial seconds up so a
// sub-second grace never becomes an immediate kill.
func (o StopOptions) seconds() string {
	t := o.grace()
	secs := int(t / time.Second)
	if t%time.Second != 0 {
		secs++
	}
	return strconv.Itoa(secs)
}

// RemoveOptions defines options for removing containers.
type RemoveOptions struct {
	Force bool // remove even when running
}

// ListOptions defines options for listing containers.
type ListOptions struct {
	All     bool              // Include stopped containers
	Filters map[string]string // e.g., {"label": "com.docker.compose.project=blog"}
}

func (o ListOptions) filterArgs() []string {
	keys := make([]string, 0, len(o.Filters))
	for k := range o.Filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		args = append(args, "--filter", k+"="+o.Filters[k])
	}
	return args
}

// LogOptions defines options for container logs.
type LogOptions struct {
	Tail       int // lines from the end; 0 means DefaultLogTail, negative means all
	Timestamps bool
}

// DefaultLogOptions returns the options used when a caller supplies none.
func DefaultLogOptions() LogOptions {
	return LogOptions{Tail: DefaultLogTail, Timestamps: true}
}

func (o LogOptions) tail() string {
	switch {
	case o.Tail < 0:
		return "all"
	case o.Tail == 0:
		return strconv.Itoa(DefaultLogTail)
	}
	return strconv.Itoa(o.Tail)
}
