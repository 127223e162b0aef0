package runtime

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
	"github.com/docker/go-units"
)

// Compose labels the runtime stamps on containers it creates for a project.
const (
	LabelComposeProject = "com.docker.compose.project"
	LabelComposeService = "com.docker.compose.service"
)

// =============================================================================
// Container List
// =============================================================================

// psLine is one line of `ps --format {{json .}}`.
type psLine struct {
	ID        string `json:"ID"`
	Names     string `json:"Names"`
	Image     string `json:"Image"`
	State     string `json:"State"`
	Status    string `json:"Status"`
	Ports     string `json:"Ports"`
	CreatedAt string `json:"CreatedAt"`
	Labels    string `json:"Labels"`
}

// ParseContainerList parses one JSON object per line. A single undecodable line
// fails the whole call: a partial listing would hide containers.
func ParseContainerList(stdout string, classifier Classifier) ([]ContainerSnapshot, error) {
	containers := []ContainerSnapshot{}
	for i, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var row psLine
		if err := json.Unmarshal([]byte(line), &row); err != nil {
			return nil, newOutputError("list", i+1, "invalid JSON: "+err.Error())
		}

		name := strings.TrimPrefix(strings.Split(row.Names, ",")[0], "/")
		snap := ContainerSnapshot{
			ID:          row.ID,
			Name:        name,
			Image:       row.Image,
			State:       row.State,
			Status:      row.Status,
			Created:     row.CreatedAt,
			Ports:       splitPorts(row.Ports),
			Labels:      parseLabelList(row.Labels),
			IsProtected: isProtected(classifier, name),
		}
		if snap.State == "" {
			snap.State = StateFromStatus(row.Status)
		}
		if !snap.IsProtected {
			snap.OwnerProject, snap.OwnerService = ownerFromName(name)
			if snap.OwnerProject == "" {
				snap.OwnerProject = snap.Labels[LabelComposeProject]
				snap.OwnerService = snap.Labels[LabelComposeService]
			}
		}
		containers = append(containers, snap)
	}
	return containers, nil
}

// StateFromStatus maps the human status column ("Up 2 hours", "Exited (0) 3
// minutes ago") to a state name.
func StateFromStatus(status string) string {
	switch {
	case strings.Contains(status, "(Paused)"):
		return StatePaused
	case strings.HasPrefix(status, "Up"):
		return StateRunning
	case strings.HasPrefix(status, "Restarting"):
		return StateRestarting
	case strings.HasPrefix(status, "Exited"):
		return StateExited
	case strings.HasPrefix(status, "Created"):
		return StateCreated
	case strings.HasPrefix(status, "Removal"):
		return StateRemoving
	case strings.HasPrefix(status, "Dead"):
		return StateDead
	}
	return StateUnknown
}

// ownerFromName splits legacy compose names such as "myproject_web_1".
func ownerFromName(name string) (project, service string) {
	parts := strings.Split(name, "_")
	if len(parts) < 2 {
		return "", ""
	}
	return parts[0], parts[1]
}

func splitPorts(ports string) []string {
	out := []string{}
	for _, p := range strings.Split(ports, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseLabelList(labels string) map[string]string {
	if strings.TrimSpace(labels) == "" {
		return nil
	}
	out := make(map[string]string)
	for _, kv := range strings.Split(labels, ",") {
		k, v, _ := strings.Cut(kv, "=")
		if k = strings.TrimSpace(k); k != "" {
			out[k] = v
		}
	}
	return out
}

func isProtected(c Classifier, name string) bool {
	return c != nil && c.IsProtected(name)
}

// =============================================================================
// Inspect
// =============================================================================

// ParseInspect parses the JSON array printed by inspect. An empty array means
// the container does not exist.
func ParseInspect(stdout string, classifier Classifier) (*ContainerSnapshot, error) {
	var resp []container.InspectResponse
	if err := json.Unmarshal([]byte(strings.TrimSpace(stdout)), &resp); err != nil {
		return nil, newOutputError("inspect", 0, "invalid JSON: "+err.Error())
	}
	if len(resp) == 0 || resp[0].ContainerJSONBase == nil {
		return nil, ErrNotFound
	}
	c := resp[0]

	name := strings.TrimPrefix(c.Name, "/")
	snap := &ContainerSnapshot{
		ID:          c.ID,
		Name:        name,
		Created:     c.Created,
		Ports:       []string{},
		IsProtected: isProtected(classifier, name),
		State:       StateUnknown,
	}
	if c.State != nil {
		snap.State = string(c.State.Status)
		snap.StartedAt = c.State.StartedAt
		if c.State.Health != nil {
			snap.Health = string(c.State.Health.Status)
		}
	}
	if c.Config != nil {
		snap.Image = c.Config.Image
		snap.Labels = c.Config.Labels
		snap.OwnerProject = c.Config.Labels[LabelComposeProject]
		snap.OwnerService = c.Config.Labels[LabelComposeService]
	}
	if c.NetworkSettings != nil {
		snap.Ports = formatPortMap(c.NetworkSettings.Ports)
	}
	return snap, nil
}

// formatPortMap renders bindings the way ps does: "0.0.0.0:8000->8000/tcp".
func formatPortMap(ports nat.PortMap) []string {
	out := []string{}
	for port, bindings := range ports {
		if len(bindings) == 0 {
			out = append(out, string(port))
			continue
		}
		for _, b := range bindings {
			out = append(out, fmt.Sprintf("%s:%s->%s", b.HostIP, b.HostPort, port))
		}
	}
	sort.Strings(out)
	return out
}

// =============================================================================
// Compose Status
// =============================================================================

type composePSLine struct {
	Name    string `json:"Name"`
	Service string `json:"Service"`
	State   string `json:"State"`
	Health  string `json:"Health"`
}

// ParseComposeStatus reads compose ps output. JSON (one object per line, or a
// single array) is preferred; otherwise any line containing "Up" counts as a
// running container named by its first field. It never fails.
func ParseComposeStatus(stdout string) ComposeStatus {
	status := ComposeStatus{Containers: []ComposeContainer{}, Raw: stdout}

	if rows, ok := decodeComposePS(stdout); ok {
		status.Structured = true
		for _, r := range rows {
			status.Containers = append(status.Containers, ComposeContainer{
				Name:    r.Name,
				Service: r.Service,
				State:   r.State,
				Health:  r.Health,
			})
			if r.State == StateRunning {
				status.Running = true
			}
		}
		return status
	}

	for _, line := range strings.Split(stdout, "\n") {
		if !strings.Contains(line, "Up") {
			continue
		}
		status.Running = true
		if fields := strings.Fields(line); len(fields) > 0 {
			status.Containers = append(status.Containers, ComposeContainer{
				Name:  fields[0],
				State: StateRunning,
			})
		}
	}
	return status
}

func decodeComposePS(stdout string) ([]composePSLine, bool) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, true
	}
	if strings.HasPrefix(trimmed, "[") {
		var rows []composePSLine
		if err := json.Unmarshal([]byte(trimmed), &rows); err != nil {
			return nil, false
		}
		return rows, true
	}

	var rows []composePSLine
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var r composePSLine
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			return nil, false
		}
		rows = append(rows, r)
	}
	return rows, true
}

// =============================================================================
// Stats
// =============================================================================

type statsLine struct {
	CPUPerc  string `json:"CPUPerc"`
	MemUsage string `json:"MemUsage"`
	MemPerc  string `json:"MemPerc"`
	NetIO    string `json:"NetIO"`
	BlockIO  string `json:"BlockIO"`
	PIDs     string `json:"PIDs"`
}

// ParseStats parses a single `stats --no-stream --format {{json .}}` object.
// Unreadable numbers become zero and are listed in Stats.Defaulted; only empty
// or undecodable output is an error.
func ParseStats(stdout string) (*Stats, error) {
	trimmed := strings.TrimSpace(stdout)
	if trimmed == "" {
		return nil, ErrNoStats
	}
	// one sample per container; only the first is ours
	first, _, _ := strings.Cut(trimmed, "\n")

	var raw statsLine
	if err := json.Unmarshal([]byte(first), &raw); err != nil {
		return nil, newOutputError("stats", 1, "invalid JSON: "+err.Error())
	}

	s := &Stats{
		NetworkIO: raw.NetIO,
		BlockIO:   raw.BlockIO,
	}

	var ok bool
	if s.CPUPercent, ok = parsePercent(raw.CPUPerc); !ok {
		s.Defaulted = append(s.Defaulted, FieldCPUPercent)
	}
	if s.MemoryPercent, ok = parsePercent(raw.MemPerc); !ok {
		s.Defaulted = append(s.Defaulted, FieldMemoryPercent)
	}

	used, limit, hasLimit := splitUsage(raw.MemUsage)
	s.MemoryUsage, s.MemoryLimit = used, limit
	if used == "" {
		s.MemoryUsage = ZeroSize
		s.Defaulted = append(s.Defaulted, FieldMemoryUsage)
	}
	if !hasLimit {
		s.Defaulted = append(s.Defaulted, FieldMemoryLimit)
	}
	s.MemoryUsageBytes, _ = units.RAMInBytes(s.MemoryUsage)
	s.MemoryLimitBytes, _ = units.RAMInBytes(s.MemoryLimit)

	if raw.NetIO == "" {
		s.Defaulted = append(s.Defaulted, FieldNetworkIO)
	} else {
		rx, tx, _ := splitUsage(raw.NetIO)
		s.NetworkRxBytes, _ = units.FromHumanSize(rx)
		s.NetworkTxBytes, _ = units.FromHumanSize(tx)
	}

	if raw.PIDs != "" {
		s.PIDs, _ = strconv.Atoi(strings.TrimSpace(raw.PIDs))
	}
	return s, nil
}

// parsePercent parses "12.34%" and rounds to two decimal places.
func parsePercent(v string) (float64, bool) {
	v = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(v), "%"))
	if v == "" {
		return 0.0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0, false
	}
	return math.Round(f*100) / 100, true
}

// splitUsage splits "used / limit". A missing limit is reported as ZeroSize.
func splitUsage(v string) (used, limit string, hasLimit bool) {
	used, limit, hasLimit = strings.Cut(strings.TrimSpace(v), " / ")
	used = strings.TrimSpace(used)
	limit = strings.TrimSpace(limit)
	if !hasLimit || limit == "" {
		return used, ZeroSize, false
	}
	return used, limit, true
}
