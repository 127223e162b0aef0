package traefik

// =============================================================================
// Defaults
// =============================================================================

const (
	// LabelPrefix namespaces every label this package owns.
	LabelPrefix = "traefik."

	// DefaultNetwork is the external network shared with the proxy.
	DefaultNetwork = "docklite-network"

	// DefaultEntrypoint is the plain HTTP entrypoint name.
	DefaultEntrypoint = "web"

	// DefaultSecureEntrypoint and DefaultCertResolver are used for the optional HTTPS router.
	DefaultSecureEntrypoint = "websecure"
	DefaultCertResolver     = "letsencrypt"
)

// =============================================================================
// Label Generation Types
// =============================================================================

// LabelParams contains parameters for generating Traefik labels.
type LabelParams struct {
	// RoutingKey names the router and service. It must already be sanitized.
	RoutingKey string

	// Hostname is the domain to route (e.g., "myapp.example.com").
	Hostname string

	// Port is the container port to route traffic to.
	Port int

	// Entrypoint defaults to DefaultEntrypoint.
	Entrypoint string

	// EnableTLS adds a second router on the secure entrypoint with TLS termination.
	EnableTLS        bool
	SecureEntrypoint string
	CertResolver     string
}

// =============================================================================
// Injection Types
// =============================================================================

// Route identifies where a compose document should be reachable.
type Route struct {
	// Domain is the public hostname.
	Domain string

	// Slug is the deployment identifier. It is sanitized into the routing key.
	Slug string
}

// InjectOptions tunes injection. The zero value matches the proxy's defaults.
type InjectOptions struct {
	// ForcedPort, when > 0, overrides port detection.
	ForcedPort int

	// Network defaults to DefaultNetwork.
	Network string

	Entrypoint       string
	EnableTLS        bool
	SecureEntrypoint string
	CertResolver     string
}

func (o InjectOptions) network() string {
	if o.Network == "" {
		return DefaultNetwork
	}
	return o.Network
}

func (o InjectOptions) labelParams(key, hostname string, port int) LabelParams {
	return LabelParams{
		RoutingKey:       key,
		Hostname:         hostname,
		Port:             port,
		Entrypoint:       o.Entrypoint,
		EnableTLS:        o.EnableTLS,
		SecureEntrypoint: o.SecureEntrypoint,
		CertResolver:     o.CertResolver,
	}
}
