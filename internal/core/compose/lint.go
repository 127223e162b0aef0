package compose

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/compose-spec/compose-go/v2/loader"
	"github.com/compose-spec/compose-go/v2/types"
	"gopkg.in/yaml.v3"
)

// lintProjectName is the throwaway project name handed to the loader.
const lintProjectName = "docklite-lint"

// =============================================================================
// Summary Types
// =============================================================================

// Summary is the result of a strict lint: what the document declares, as the
// compose loader understands it.
type Summary struct {
	Services  []ServiceSummary `json:"services"`
	Networks  []string         `json:"networks,omitempty"`
	Volumes   []string         `json:"volumes,omitempty"`
	Variables []string         `json:"variables,omitempty"`
}

// ServiceSummary describes one service.
type ServiceSummary struct {
	Name      string   `json:"name"`
	Image     string   `json:"image,omitempty"`
	HasBuild  bool     `json:"has_build"`
	Ports     []string `json:"ports,omitempty"`
	Networks  []string `json:"networks,omitempty"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// =============================================================================
// Lint
// =============================================================================

// Lint runs the full compose loader over content and reports schema errors the
// routing rewrite does not look for: missing image/build, dependency cycles,
// out-of-range ports and file-based extends. It is opt-in; Inject never calls it.
func Lint(content string) (*Summary, error) {
	if err := Validate(content); err != nil {
		return nil, err
	}

	project, err := loadProject(content)
	if err != nil {
		return nil, err
	}

	if err := checkUnsupportedFeatures(project); err != nil {
		return nil, err
	}

	summary := &Summary{
		Services:  make([]ServiceSummary, 0, len(project.Services)),
		Variables: ExtractVariablesFromYAML(content),
	}

	for _, name := range sortedKeys(project.Services) {
		svc := project.Services[name]
		if svc.Image == "" && svc.Build == nil {
			return nil, NewParseError("services."+name, "service must have image or build", ErrServiceNoImage)
		}
		if err := validatePorts(svc); err != nil {
			return nil, err
		}
		summary.Services = append(summary.Services, summarizeService(svc))
	}

	if err := detectCircularDependencies(summary.Services); err != nil {
		return nil, err
	}

	summary.Networks = sortedKeys(project.Networks)
	summary.Volumes = sortedKeys(project.Volumes)
	return summary, nil
}

// loadProject loads content with compose-go, entirely in memory.
func loadProject(content string) (*types.Project, error) {
	var dict map[string]interface{}
	if err := yaml.Unmarshal([]byte(content), &dict); err != nil {
		return nil, NewParseError("", "invalid YAML syntax", ErrInvalidYAML)
	}

	project, err := loader.LoadWithContext(context.Background(), types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{
				Content: []byte(content),
				Config:  dict,
			},
		},
	}, func(opts *loader.Options) {
		opts.SetProjectName(lintProjectName, false)
		opts.SkipValidation = false
		opts.SkipInterpolation = false
		opts.SkipNormalization = true
		opts.SkipExtends = true
	})
	if err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "dependency cycle detected") {
			return nil, NewParseError("", "circular dependency detected", ErrCircularDependency)
		}
		if strings.Contains(errStr, "image") && strings.Contains(errStr, "build") {
			return nil, NewParseError("", "service must have image or build", ErrServiceNoImage)
		}
		return nil, NewParseError("", errStr, ErrInvalidYAML)
	}
	return project, nil
}

func checkUnsupportedFeatures(project *types.Project) error {
	for _, svc := range project.Services {
		if svc.Extends != nil && svc.Extends.File != "" {
			return NewParseError("services."+svc.Name+".extends", "extends from another file is not supported", ErrUnsupportedFeature)
		}
	}
	return nil
}

func summarizeService(svc types.ServiceConfig) ServiceSummary {
	out := ServiceSummary{
		Name:      svc.Name,
		Image:     svc.Image,
		HasBuild:  svc.Build != nil,
		Networks:  sortedKeys(svc.Networks),
		DependsOn: sortedKeys(svc.DependsOn),
	}
	for _, p := range svc.Ports {
		entry := fmt.Sprintf("%d", p.Target)
		if p.Published != "" {
			entry = p.Published + ":" + entry
		}
		if p.Protocol != "" {
			entry += "/" + p.Protocol
		}
		out.Ports = append(out.Ports, entry)
	}
	return out
}

func validatePorts(svc types.ServiceConfig) error {
	for i, p := range svc.Ports {
		field := fmt.Sprintf("services.%s.ports[%d]", svc.Name, i)
		if p.Target == 0 {
			return NewParseError(field, "target port cannot be 0", ErrServiceInvalidPort)
		}
		if p.Target > 65535 {
			return NewParseError(field, "target port must be <= 65535", ErrServiceInvalidPort)
		}
	}
	return nil
}

// detectCircularDependencies walks depends_on edges looking for a cycle.
func detectCircularDependencies(services []ServiceSummary) error {
	deps := make(map[string][]string)
	for _, svc := range services {
		deps[svc.Name] = svc.DependsOn
	}

	visited := make(map[string]bool)
	recStack := make(map[string]bool)

	var hasCycle func(node string) bool
	hasCycle = func(node string) bool {
		visited[node] = true
		recStack[node] = true

		for _, dep := range deps[node] {
			if dep == node {
				return true
			}
			if !visited[dep] {
				if hasCycle(dep) {
					return true
				}
			} else if recStack[dep] {
				return true
			}
		}

		recStack[node] = false
		return false
	}

	for _, svc := range services {
		if !visited[svc.Name] && hasCycle(svc.Name) {
			return NewParseError("services."+svc.Name+".depends_on", "circular dependency detected", ErrCircularDependency)
		}
	}
	return nil
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// =============================================================================
// Variable Extraction
// =============================================================================

// variablePlaceholderRegex matches ${VAR_NAME} or ${VAR_NAME:-default}
var variablePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::?-[^}]*)?\}`)

// ExtractVariablesFromYAML extracts environment variable placeholders from raw YAML content.
// Returns unique variable names in order of first appearance, without the ${} wrapper.
func ExtractVariablesFromYAML(yamlContent string) []string {
	seen := make(map[string]bool)
	var vars []string

	for _, match := range variablePlaceholderRegex.FindAllStringSubmatch(yamlContent, -1) {
		if len(match) < 2 || seen[match[1]] {
			continue
		}
		seen[match[1]] = true
		vars = append(vars, match[1])
	}
	return vars
}
