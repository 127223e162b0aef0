package traefik

import (
	"strconv"
	"strings"

	"github.com/artpar/docklite/internal/core/compose"
)

// Inject rewrites content so the first service is routed by the proxy for
// route.Domain. On any error the original content is returned unchanged
// together with the error; callers must not use it as a transformed document.
func Inject(content string, route Route, opts InjectOptions) (string, error) {
	doc, err := compose.Parse(content)
	if err != nil {
		return content, err
	}
	if _, err := InjectDocument(doc, route, opts); err != nil {
		return content, err
	}
	out, err := doc.Marshal()
	if err != nil {
		return content, err
	}
	return out, nil
}

// InjectDocument applies the routing rewrite to doc in place and returns the
// port the load balancer was pointed at.
//
// Steps: resolve the port (forced or detected), replace every managed label on
// the first service with a fresh set, join the shared network, drop published
// ports (synthesizing expose when absent), and declare the shared network as
// external at the top level.
func InjectDocument(doc *compose.Document, route Route, opts InjectOptions) (compose.PortResult, error) {
	hostname := strings.TrimSpace(route.Domain)
	if hostname == "" {
		return compose.PortResult{}, ErrEmptyHostname
	}
	if strings.ContainsAny(hostname, "`\"' \t\n") {
		return compose.PortResult{}, ErrInvalidHostname
	}
	key := SanitizeRoutingKey(route.Slug)
	if key == "" {
		return compose.PortResult{}, ErrEmptyRoutingKey
	}

	svc, err := doc.FirstService()
	if err != nil {
		return compose.PortResult{}, err
	}

	port := compose.DetectInternalPort(doc)
	if opts.ForcedPort != 0 {
		if opts.ForcedPort < 0 || opts.ForcedPort > 65535 {
			return compose.PortResult{}, ErrInvalidPort
		}
		port = compose.PortResult{Port: opts.ForcedPort, Source: compose.PortSourceForced}
	}

	existing, err := svc.Labels()
	if err != nil {
		return compose.PortResult{}, err
	}
	managed := GenerateLabels(opts.labelParams(key, hostname, port.Port))
	svc.SetLabels(MergeLabels(existing, managed))

	network := opts.network()
	if err := svc.JoinNetwork(network); err != nil {
		return compose.PortResult{}, err
	}

	svc.RemovePorts()
	if !svc.HasExpose() {
		svc.SetExpose(strconv.Itoa(port.Port))
	}

	doc.EnsureExternalNetwork(network)
	return port, nil
}
