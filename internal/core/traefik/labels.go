package traefik

import (
	"fmt"
	"strings"
)

// =============================================================================
// Traefik Label Generation Functions
// =============================================================================

// SanitizeRoutingKey lowercases slug and replaces every character outside
// [a-z0-9-] with "-", one for one. "My_App__1" becomes "my-app--1".
func SanitizeRoutingKey(slug string) string {
	return strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return '-'
	}, strings.ToLower(slug))
}

// GenerateLabels generates Traefik reverse proxy labels for a service.
//
// The result is ordered: enable flag, router rule, router entrypoint, then the
// load-balancer port. With EnableTLS, four labels for a "<key>-secure" router
// follow.
//
// Example:
//
//	GenerateLabels(LabelParams{RoutingKey: "blog", Hostname: "blog.example.com", Port: 2368})
//	// traefik.enable=true
//	// traefik.http.routers.blog.rule=Host(`blog.example.com`)
//	// traefik.http.routers.blog.entrypoints=web
//	// traefik.http.services.blog.loadbalancer.server.port=2368
func GenerateLabels(params LabelParams) []string {
	key := params.RoutingKey
	entrypoint := params.Entrypoint
	if entrypoint == "" {
		entrypoint = DefaultEntrypoint
	}
	rule := fmt.Sprintf("Host(`%s`)", params.Hostname)

	labels := []string{
		"traefik.enable=true",
		fmt.Sprintf("traefik.http.routers.%s.rule=%s", key, rule),
		fmt.Sprintf("traefik.http.routers.%s.entrypoints=%s", key, entrypoint),
		fmt.Sprintf("traefik.http.services.%s.loadbalancer.server.port=%d", key, params.Port),
	}

	if params.EnableTLS {
		secure := key + "-secure"
		secureEntrypoint := params.SecureEntrypoint
		if secureEntrypoint == "" {
			secureEntrypoint = DefaultSecureEntrypoint
		}
		resolver := params.CertResolver
		if resolver == "" {
			resolver = DefaultCertResolver
		}
		labels = append(labels,
			fmt.Sprintf("traefik.http.routers.%s.rule=%s", secure, rule),
			fmt.Sprintf("traefik.http.routers.%s.entrypoints=%s", secure, secureEntrypoint),
			fmt.Sprintf("traefik.http.routers.%s.tls=true", secure),
			fmt.Sprintf("traefik.http.routers.%s.tls.certresolver=%s", secure, resolver),
		)
	}

	return labels
}

// IsManagedLabel reports whether a "key=value" label belongs to the proxy namespace.
func IsManagedLabel(label string) bool {
	return strings.HasPrefix(label, LabelPrefix)
}

// MergeLabels drops every managed label from existing and appends managed.
// Unmanaged labels keep their order and text.
func MergeLabels(existing, managed []string) []string {
	out := make([]string, 0, len(existing)+len(managed))
	for _, l := range existing {
		if !IsManagedLabel(l) {
			out = append(out, l)
		}
	}
	return append(out, managed...)
}
