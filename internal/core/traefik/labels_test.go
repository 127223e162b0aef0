package traefik

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// SanitizeRoutingKey Tests
// =============================================================================

func TestSanitizeRoutingKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"my_app__1", "my-app--1"},
		{"My-App", "my-app"},
		{"blog.example.com-1f", "blog-example-com-1f"},
		{"already-clean-42", "already-clean-42"},
		{"spaces here", "spaces-here"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeRoutingKey(tt.in))
		})
	}
}

// =============================================================================
// GenerateLabels Tests
// =============================================================================

func TestGenerateLabels_Basic(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		RoutingKey: "myapp-1",
		Hostname:   "myapp.example.com",
		Port:       80,
	})

	assert.Equal(t, []string{
		"traefik.enable=true",
		"traefik.http.routers.myapp-1.rule=Host(`myapp.example.com`)",
		"traefik.http.routers.myapp-1.entrypoints=web",
		"traefik.http.services.myapp-1.loadbalancer.server.port=80",
	}, labels)
}

func TestGenerateLabels_CustomEntrypoint(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		RoutingKey: "api",
		Hostname:   "api.example.com",
		Port:       8080,
		Entrypoint: "http",
	})

	assert.Contains(t, labels, "traefik.http.routers.api.entrypoints=http")
	assert.Contains(t, labels, "traefik.http.services.api.loadbalancer.server.port=8080")
}

func TestGenerateLabels_WithTLS(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		RoutingKey: "deploy-456",
		Hostname:   "api.example.com",
		Port:       3000,
		EnableTLS:  true,
	})

	assert.Len(t, labels, 8)
	assert.Equal(t, "traefik.enable=true", labels[0])

	// HTTPS router follows the base four
	assert.Equal(t, "traefik.http.routers.deploy-456-secure.rule=Host(`api.example.com`)", labels[4])
	assert.Equal(t, "traefik.http.routers.deploy-456-secure.entrypoints=websecure", labels[5])
	assert.Equal(t, "traefik.http.routers.deploy-456-secure.tls=true", labels[6])
	assert.Equal(t, "traefik.http.routers.deploy-456-secure.tls.certresolver=letsencrypt", labels[7])
}

func TestGenerateLabels_NoTLSLabels(t *testing.T) {
	labels := GenerateLabels(LabelParams{RoutingKey: "web", Hostname: "x.io", Port: 80})
	for _, l := range labels {
		assert.NotContains(t, l, "-secure")
	}
}

func TestGenerateLabels_CustomCertResolver(t *testing.T) {
	labels := GenerateLabels(LabelParams{
		RoutingKey:   "web",
		Hostname:     "x.io",
		Port:         80,
		EnableTLS:    true,
		CertResolver: "staging",
	})
	assert.Contains(t, labels, "traefik.http.routers.web-secure.tls.certresolver=staging")
}

// =============================================================================
// MergeLabels Tests
// =============================================================================

func TestMergeLabels(t *testing.T) {
	existing := []string{
		"com.example.team=platform",
		"traefik.enable=false",
		"traefik.http.routers.old.rule=Host(`old.io`)",
		"app.version=2",
	}
	managed := []string{"traefik.enable=true"}

	assert.Equal(t, []string{
		"com.example.team=platform",
		"app.version=2",
		"traefik.enable=true",
	}, MergeLabels(existing, managed))
}

func TestIsManagedLabel(t *testing.T) {
	assert.True(t, IsManagedLabel("traefik.enable=true"))
	assert.False(t, IsManagedLabel("com.traefik.note=x"))
	assert.False(t, IsManagedLabel("traefik=1"))
}
