package compose

import (
	"strconv"
	"strings"

	"github.com/docker/go-connections/nat"
)

// DefaultInternalPort is used whenever no port can be inferred.
const DefaultInternalPort = 80

// PortSource records where a detected port came from.
type PortSource string

const (
	PortSourceExpose  PortSource = "expose"
	PortSourcePorts   PortSource = "ports"
	PortSourceDefault PortSource = "default"
	PortSourceForced  PortSource = "forced"
)

// PortResult is the outcome of port detection. Source is PortSourceDefault when
// the value is the fallback rather than something read from the document.
type PortResult struct {
	Port   int        `json:"port"`
	Source PortSource `json:"source"`
}

// Defaulted reports whether detection fell back to DefaultInternalPort.
func (r PortResult) Defaulted() bool {
	return r.Source == PortSourceDefault
}

// DetectInternalPort infers the port the first service listens on inside its
// container. Priority: expose[0], then the container side of ports[0], then 80.
// It never fails.
func DetectInternalPort(doc *Document) PortResult {
	fallback := PortResult{Port: DefaultInternalPort, Source: PortSourceDefault}
	if doc == nil {
		return fallback
	}
	svc, err := doc.FirstService()
	if err != nil {
		return fallback
	}

	if expose := svc.Expose(); len(expose) > 0 {
		if port, ok := parseContainerPort(expose[0]); ok {
			return PortResult{Port: port, Source: PortSourceExpose}
		}
	}

	if ports := svc.Ports(); len(ports) > 0 {
		if port, ok := parseContainerPort(ports[0]); ok {
			return PortResult{Port: port, Source: PortSourcePorts}
		}
	}

	return fallback
}

// DetectInternalPortFromYAML parses content and detects the internal port.
// Any parse problem yields DefaultInternalPort.
func DetectInternalPortFromYAML(content string) int {
	doc, err := Parse(content)
	if err != nil {
		return DefaultInternalPort
	}
	return DetectInternalPort(doc).Port
}

// parseContainerPort extracts the container side of a port entry. The host side
// may hold an env-default expression such as "${PORT:-8080}", so only the text
// after the final colon is considered.
func parseContainerPort(entry string) (int, bool) {
	entry = strings.TrimSpace(entry)
	if i := strings.LastIndex(entry, ":"); i >= 0 {
		entry = entry[i+1:]
	}
	_, port := nat.SplitProtoPort(entry)
	if port == "" {
		return 0, false
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return 0, false
	}
	return n, true
}
