package compose

import (
	"bytes"
	"strings"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Document
// =============================================================================

// Document is a parsed compose document. It keeps the original YAML node tree so
// that keys the injector does not own (volumes, environment, healthchecks, ...)
// survive a rewrite unchanged and in their original order.
type Document struct {
	root     *yaml.Node // DocumentNode
	mapping  *yaml.Node // root mapping
	services *yaml.Node // services mapping, never empty
}

// Service is a view over one entry of the services mapping.
type Service struct {
	Name string
	node *yaml.Node
}

// ServiceSpec is a read-only snapshot of the fields the routing layer consumes.
type ServiceSpec struct {
	Name     string   `json:"name"`
	Image    string   `json:"image,omitempty"`
	HasBuild bool     `json:"has_build"`
	Ports    []string `json:"ports,omitempty"`
	Expose   []string `json:"expose,omitempty"`
	Labels   []string `json:"labels,omitempty"`
	Networks []string `json:"networks,omitempty"`
}

// Parse parses YAML content into a Document and checks the minimal structure:
// the root must be a mapping with a non-empty services mapping.
// This is a pure function - no I/O, no side effects.
func Parse(content string) (*Document, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyInput
	}

	var root yaml.Node
	if err := yaml.Unmarshal([]byte(content), &root); err != nil {
		return nil, NewParseError("", "invalid YAML syntax: "+err.Error(), ErrInvalidYAML)
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, ErrEmptyInput
	}

	mapping := resolve(root.Content[0])
	if isNull(mapping) {
		return nil, ErrEmptyInput
	}
	if mapping.Kind != yaml.MappingNode {
		return nil, ErrNotMapping
	}
	if len(mapping.Content) == 0 {
		return nil, ErrEmptyInput
	}

	_, services := mappingGet(mapping, "services")
	if services == nil {
		return nil, ErrNoServices
	}
	services = resolve(services)
	if isNull(services) {
		return nil, ErrServicesEmpty
	}
	if services.Kind != yaml.MappingNode {
		return nil, NewParseError("services", "services must be a mapping", ErrServicesNotMapping)
	}
	if len(services.Content) == 0 {
		return nil, ErrServicesEmpty
	}

	return &Document{root: &root, mapping: mapping, services: services}, nil
}

// Marshal serializes the document back to YAML with two-space indentation.
func (d *Document) Marshal() (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d.root); err != nil {
		return "", NewParseError("", "failed to encode compose file: "+err.Error(), err)
	}
	if err := enc.Close(); err != nil {
		return "", NewParseError("", "failed to encode compose file: "+err.Error(), err)
	}
	return buf.String(), nil
}

// Services returns the services in declaration order.
func (d *Document) Services() []*Service {
	out := make([]*Service, 0, len(d.services.Content)/2)
	for i := 0; i+1 < len(d.services.Content); i += 2 {
		out = append(out, &Service{
			Name: d.services.Content[i].Value,
			node: d.serviceNode(i + 1),
		})
	}
	return out
}

// FirstService returns the first declared service, the one routing targets.
func (d *Document) FirstService() (*Service, error) {
	svc := &Service{
		Name: d.services.Content[0].Value,
		node: d.serviceNode(1),
	}
	if svc.node.Kind != yaml.MappingNode {
		return nil, NewParseError("services."+svc.Name, "service definition must be a mapping", ErrServiceNotMapping)
	}
	return svc, nil
}

// serviceNode returns the service definition at index i of the services
// mapping. A definition that is an alias or uses merge keys ("<<") is replaced
// in the tree by a private flattened copy, so reads see inherited keys and
// rewrites never reach the anchored original.
func (d *Document) serviceNode(i int) *yaml.Node {
	n := d.services.Content[i]
	if n.Kind != yaml.AliasNode && !hasMergeKey(n) {
		return n
	}
	flat := flattenMerges(resolve(n))
	d.services.Content[i] = flat
	return flat
}

// NetworkNames returns the keys of the top-level networks section.
func (d *Document) NetworkNames() []string {
	_, nets := mappingGet(d.mapping, "networks")
	nets = resolve(nets)
	if nets == nil || nets.Kind != yaml.MappingNode {
		return nil
	}
	var names []string
	for i := 0; i+1 < len(nets.Content); i += 2 {
		names = append(names, nets.Content[i].Value)
	}
	return names
}

// IsExternalNetwork reports whether the top-level network name is declared external.
func (d *Document) IsExternalNetwork(name string) bool {
	_, nets := mappingGet(d.mapping, "networks")
	nets = resolve(nets)
	if nets == nil || nets.Kind != yaml.MappingNode {
		return false
	}
	_, def := mappingGet(nets, name)
	def = resolve(def)
	if def == nil || def.Kind != yaml.MappingNode {
		return false
	}
	_, ext := mappingGet(def, "external")
	ext = resolve(ext)
	return ext != nil && ext.Kind == yaml.ScalarNode && ext.Value == "true"
}

// EnsureExternalNetwork declares name as an externally managed network in the
// top-level networks section, creating the section when absent.
func (d *Document) EnsureExternalNetwork(name string) {
	_, nets := mappingGet(d.mapping, "networks")
	nets = resolve(nets)
	if nets == nil || nets.Kind != yaml.MappingNode {
		nets = newMapping()
		mappingSet(d.mapping, "networks", nets)
	}
	def := newMapping()
	mappingSet(def, "external", &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: "true"})
	mappingSet(nets, name, def)
}

// =============================================================================
// Service Accessors
// =============================================================================

// Spec returns a typed snapshot of the service.
func (s *Service) Spec() (ServiceSpec, error) {
	spec := ServiceSpec{
		Name:     s.Name,
		Image:    s.Image(),
		HasBuild: s.HasBuild(),
		Ports:    s.Ports(),
		Expose:   s.Expose(),
	}
	labels, err := s.Labels()
	if err != nil {
		return ServiceSpec{}, err
	}
	spec.Labels = labels
	networks, err := s.Networks()
	if err != nil {
		return ServiceSpec{}, err
	}
	spec.Networks = networks
	return spec, nil
}

// Image returns the image reference, or "" when the service is built locally.
func (s *Service) Image() string {
	_, v := mappingGet(s.node, "image")
	v = resolve(v)
	if v == nil || v.Kind != yaml.ScalarNode {
		return ""
	}
	return v.Value
}

// HasBuild reports whether the service declares a build section.
func (s *Service) HasBuild() bool {
	_, v := mappingGet(s.node, "build")
	return v != nil && !isNull(resolve(v))
}

// Expose returns the expose entries as strings.
func (s *Service) Expose() []string {
	_, v := mappingGet(s.node, "expose")
	return scalarSequence(resolve(v))
}

// Ports returns the published port entries. Long-syntax entries are rendered in
// short form ("published:target/protocol") so callers can treat both alike.
func (s *Service) Ports() []string {
	_, v := mappingGet(s.node, "ports")
	v = resolve(v)
	if v == nil || v.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(v.Content))
	for _, item := range v.Content {
		item = resolve(item)
		switch item.Kind {
		case yaml.ScalarNode:
			out = append(out, item.Value)
		case yaml.MappingNode:
			out = append(out, longPortSyntax(item))
		}
	}
	return out
}

// HasPorts reports whether the service declares a ports key at all.
func (s *Service) HasPorts() bool {
	k, _ := mappingGet(s.node, "ports")
	return k != nil
}

// HasExpose reports whether the service declares a non-empty expose list.
func (s *Service) HasExpose() bool {
	return len(s.Expose()) > 0
}

// Labels returns the service labels as "key=value" strings in declaration order.
// The mapping form of labels is accepted and normalised.
func (s *Service) Labels() ([]string, error) {
	_, v := mappingGet(s.node, "labels")
	v = resolve(v)
	if v == nil || isNull(v) {
		return nil, nil
	}
	switch v.Kind {
	case yaml.SequenceNode:
		return scalarSequence(v), nil
	case yaml.MappingNode:
		out := make([]string, 0, len(v.Content)/2)
		for i := 0; i+1 < len(v.Content); i += 2 {
			out = append(out, v.Content[i].Value+"="+resolve(v.Content[i+1]).Value)
		}
		return out, nil
	default:
		return nil, NewParseError("services."+s.Name+".labels", "labels must be a list or a mapping", ErrServiceNotMapping)
	}
}

// SetLabels replaces the labels with a sequence of "key=value" strings.
func (s *Service) SetLabels(labels []string) {
	seq := newSequence()
	for _, l := range labels {
		seq.Content = append(seq.Content, stringNode(l))
	}
	mappingSet(s.node, "labels", seq)
}

// Networks returns the names of the networks the service joins. Both the list
// and the mapping form are accepted.
func (s *Service) Networks() ([]string, error) {
	_, v := mappingGet(s.node, "networks")
	v = resolve(v)
	if v == nil || isNull(v) {
		return nil, nil
	}
	switch v.Kind {
	case yaml.SequenceNode:
		return scalarSequence(v), nil
	case yaml.MappingNode:
		out := make([]string, 0, len(v.Content)/2)
		for i := 0; i+1 < len(v.Content); i += 2 {
			out = append(out, v.Content[i].Value)
		}
		return out, nil
	default:
		return nil, NewParseError("services."+s.Name+".networks", "networks must be a list or a mapping", ErrServiceNotMapping)
	}
}

// JoinNetwork adds the service to network name. It is a no-op when the service
// already joins it.
func (s *Service) JoinNetwork(name string) error {
	current, err := s.Networks()
	if err != nil {
		return err
	}
	for _, n := range current {
		if n == name {
			return nil
		}
	}

	_, v := mappingGet(s.node, "networks")
	v = resolve(v)
	if v != nil && v.Kind == yaml.MappingNode {
		empty := newMapping()
		empty.Style = yaml.FlowStyle
		mappingSet(v, name, empty)
		return nil
	}
	if v == nil || v.Kind != yaml.SequenceNode {
		v = newSequence()
		mappingSet(s.node, "networks", v)
	}
	v.Content = append(v.Content, stringNode(name))
	return nil
}

// RemovePorts deletes the ports declaration entirely.
func (s *Service) RemovePorts() {
	mappingDelete(s.node, "ports")
}

// SetExpose replaces the expose list.
func (s *Service) SetExpose(ports ...string) {
	seq := newSequence()
	for _, p := range ports {
		seq.Content = append(seq.Content, stringNode(p))
	}
	mappingSet(s.node, "expose", seq)
}

// =============================================================================
// Node Helpers
// =============================================================================

func resolve(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}

func isMergeKey(k *yaml.Node) bool {
	return k.Kind == yaml.ScalarNode && k.Value == "<<" && (k.Tag == "!!merge" || k.Tag == "")
}

func hasMergeKey(m *yaml.Node) bool {
	if m == nil || m.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if isMergeKey(m.Content[i]) {
			return true
		}
	}
	return false
}

// flattenMerges returns a copy of mapping m with every "<<" entry replaced by
// the keys it merges in. Explicit keys win over merged ones, and among merged
// sources the earlier one wins. Aliases inside the copy are expanded.
func flattenMerges(m *yaml.Node) *yaml.Node {
	m = resolve(m)
	if m == nil || m.Kind != yaml.MappingNode {
		return deepCopy(m)
	}

	explicit := make(map[string]bool)
	for i := 0; i+1 < len(m.Content); i += 2 {
		if !isMergeKey(m.Content[i]) {
			explicit[m.Content[i].Value] = true
		}
	}

	out := &yaml.Node{
		Kind:        yaml.MappingNode,
		Tag:         m.Tag,
		Style:       m.Style,
		HeadComment: m.HeadComment,
		LineComment: m.LineComment,
		FootComment: m.FootComment,
	}
	seen := make(map[string]bool)
	for i := 0; i+1 < len(m.Content); i += 2 {
		k, v := m.Content[i], m.Content[i+1]
		if !isMergeKey(k) {
			out.Content = append(out.Content, deepCopy(k), deepCopy(v))
			continue
		}
		for _, src := range mergeSources(v) {
			src = flattenMerges(src)
			if src == nil || src.Kind != yaml.MappingNode {
				continue
			}
			for j := 0; j+1 < len(src.Content); j += 2 {
				key := src.Content[j].Value
				if explicit[key] || seen[key] {
					continue
				}
				seen[key] = true
				out.Content = append(out.Content, src.Content[j], src.Content[j+1])
			}
		}
	}
	return out
}

// mergeSources lists the mappings a "<<" value names: one mapping or alias, or
// a sequence of them.
func mergeSources(v *yaml.Node) []*yaml.Node {
	v = resolve(v)
	if v == nil {
		return nil
	}
	if v.Kind == yaml.SequenceNode {
		out := make([]*yaml.Node, 0, len(v.Content))
		for _, item := range v.Content {
			out = append(out, resolve(item))
		}
		return out
	}
	return []*yaml.Node{v}
}

// deepCopy copies n with aliases expanded, merge keys flattened and anchors
// dropped.
func deepCopy(n *yaml.Node) *yaml.Node {
	n = resolve(n)
	if n == nil {
		return nil
	}
	if hasMergeKey(n) {
		return flattenMerges(n)
	}
	c := *n
	c.Anchor = ""
	c.Alias = nil
	if n.Content != nil {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = deepCopy(child)
		}
	}
	return &c
}

func isNull(n *yaml.Node) bool {
	return n == nil || (n.Kind == yaml.ScalarNode && n.Tag == "!!null")
}

func mappingGet(m *yaml.Node, key string) (*yaml.Node, *yaml.Node) {
	if m == nil || m.Kind != yaml.MappingNode {
		return nil, nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i], m.Content[i+1]
		}
	}
	return nil, nil
}

func mappingSet(m *yaml.Node, key string, value *yaml.Node) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1] = value
			return
		}
	}
	m.Content = append(m.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, value)
}

func mappingDelete(m *yaml.Node, key string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content = append(m.Content[:i], m.Content[i+2:]...)
			return
		}
	}
}

func newMapping() *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
}

func newSequence() *yaml.Node {
	return &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
}

func stringNode(v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v}
}

func scalarSequence(n *yaml.Node) []string {
	if n == nil || n.Kind != yaml.SequenceNode {
		return nil
	}
	out := make([]string, 0, len(n.Content))
	for _, item := range n.Content {
		item = resolve(item)
		if item.Kind == yaml.ScalarNode {
			out = append(out, item.Value)
		}
	}
	return out
}

func longPortSyntax(n *yaml.Node) string {
	var target, published, protocol string
	for i := 0; i+1 < len(n.Content); i += 2 {
		v := resolve(n.Content[i+1])
		switch n.Content[i].Value {
		case "target":
			target = v.Value
		case "published":
			published = v.Value
		case "protocol":
			protocol = v.Value
		}
	}
	out := target
	if published != "" {
		out = published + ":" + target
	}
	if protocol != "" {
		out += "/" + protocol
	}
	return out
}
