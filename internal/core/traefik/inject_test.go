package traefik

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/docklite/internal/core/compose"
)

// =============================================================================
// Test Fixtures
// =============================================================================

const appSpec = `
services:
  app:
    image: ghost:5
    ports:
      - "${PORT:-8080}:2368"
    labels:
      - com.example.team=blog
      - traefik.http.routers.stale.rule=Host(` + "`stale.io`" + `)
    environment:
      url: https://blog.example.com
    volumes:
      - ghost:/var/lib/ghost/content
  db:
    image: mysql:8
    ports:
      - "3306:3306"

volumes:
  ghost:
`

var blogRoute = Route{Domain: "blog.example.com", Slug: "Blog_Example_1"}

func firstSpec(t *testing.T, content string) compose.ServiceSpec {
	t.Helper()
	doc, err := compose.Parse(content)
	require.NoError(t, err)
	svc, err := doc.FirstService()
	require.NoError(t, err)
	spec, err := svc.Spec()
	require.NoError(t, err)
	return spec
}

func countManaged(labels []string) int {
	n := 0
	for _, l := range labels {
		if IsManagedLabel(l) {
			n++
		}
	}
	return n
}

// =============================================================================
// Inject Tests
// =============================================================================

func TestInject_RewritesFirstService(t *testing.T) {
	out, err := Inject(appSpec, blogRoute, InjectOptions{})
	require.NoError(t, err)

	spec := firstSpec(t, out)
	assert.Equal(t, []string{
		"com.example.team=blog",
		"traefik.enable=true",
		"traefik.http.routers.blog-example-1.rule=Host(`blog.example.com`)",
		"traefik.http.routers.blog-example-1.entrypoints=web",
		"traefik.http.services.blog-example-1.loadbalancer.server.port=2368",
	}, spec.Labels)
	assert.Equal(t, []string{DefaultNetwork}, spec.Networks)
	assert.Empty(t, spec.Ports)
	assert.Equal(t, []string{"2368"}, spec.Expose)

	doc, err := compose.Parse(out)
	require.NoError(t, err)
	assert.True(t, doc.IsExternalNetwork(DefaultNetwork))

	// second service untouched
	db := doc.Services()[1]
	assert.Equal(t, []string{"3306:3306"}, db.Ports())

	assert.Contains(t, out, "url: https://blog.example.com")
}

func TestInject_Idempotent(t *testing.T) {
	once, err := Inject(appSpec, blogRoute, InjectOptions{})
	require.NoError(t, err)
	twice, err := Inject(once, blogRoute, InjectOptions{})
	require.NoError(t, err)

	first := firstSpec(t, once)
	second := firstSpec(t, twice)
	assert.Equal(t, first, second)
	assert.Equal(t, 4, countManaged(second.Labels))
	assert.Equal(t, []string{DefaultNetwork}, second.Networks)
	assert.Empty(t, second.Ports)

	doc, err := compose.Parse(twice)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultNetwork}, doc.NetworkNames())
}

func TestInject_ThenDetectReturnsSamePort(t *testing.T) {
	inputs := []string{
		appSpec,
		"services:\n  web:\n    image: nginx\n",
		"services:\n  web:\n    image: nginx\n    expose: [\"9090\"]\n    ports: [\"3000:80\"]\n",
		"services:\n  web:\n    image: nginx\n    ports:\n      - target: 5000\n        published: 80\n",
	}

	for _, in := range inputs {
		doc, err := compose.Parse(in)
		require.NoError(t, err)
		used, err := InjectDocument(doc, blogRoute, InjectOptions{})
		require.NoError(t, err)

		out, err := doc.Marshal()
		require.NoError(t, err)
		assert.Equal(t, used.Port, compose.DetectInternalPortFromYAML(out), in)
	}
}

func TestInject_MergedPorts(t *testing.T) {
	in := "x-base: &base {image: node, ports: [\"8080:3000\"]}\nservices:\n  web:\n    <<: *base\n"

	out, err := Inject(in, blogRoute, InjectOptions{})
	require.NoError(t, err)

	spec := firstSpec(t, out)
	assert.Empty(t, spec.Ports)
	assert.Equal(t, []string{"3000"}, spec.Expose)
	assert.Equal(t, "node", spec.Image)
	assert.Contains(t, spec.Labels, "traefik.http.services.blog-example-1.loadbalancer.server.port=3000")
	assert.Equal(t, 3000, compose.DetectInternalPortFromYAML(out))
}

func TestInject_ForcedPort(t *testing.T) {
	content := "services:\n  web:\n    image: nginx\n    ports: [\"8080:80\"]\n"
	doc, err := compose.Parse(content)
	require.NoError(t, err)

	used, err := InjectDocument(doc, blogRoute, InjectOptions{ForcedPort: 3000})
	require.NoError(t, err)
	assert.Equal(t, compose.PortResult{Port: 3000, Source: compose.PortSourceForced}, used)

	svc, _ := doc.FirstService()
	labels, _ := svc.Labels()
	assert.Contains(t, labels, "traefik.http.services.blog-example-1.loadbalancer.server.port=3000")
	assert.Equal(t, []string{"3000"}, svc.Expose())
}

func TestInject_KeepsExistingExpose(t *testing.T) {
	out, err := Inject("services:\n  web:\n    image: nginx\n    expose: [\"9090\"]\n    ports: [\"3000:80\"]\n", blogRoute, InjectOptions{})
	require.NoError(t, err)
	spec := firstSpec(t, out)
	assert.Equal(t, []string{"9090"}, spec.Expose)
	assert.Contains(t, spec.Labels, "traefik.http.services.blog-example-1.loadbalancer.server.port=9090")
}

func TestInject_MappingFormLabelsAndNetworks(t *testing.T) {
	content := `
services:
  web:
    image: nginx
    labels:
      traefik.enable: "false"
      com.example: x
    networks:
      backend: {}
`
	out, err := Inject(content, blogRoute, InjectOptions{})
	require.NoError(t, err)

	spec := firstSpec(t, out)
	assert.Equal(t, "com.example=x", spec.Labels[0])
	assert.Equal(t, 4, countManaged(spec.Labels))
	assert.Equal(t, []string{"backend", DefaultNetwork}, spec.Networks)
}

func TestInject_CustomNetworkAndTLS(t *testing.T) {
	out, err := Inject(appSpec, blogRoute, InjectOptions{Network: "edge", EnableTLS: true})
	require.NoError(t, err)

	spec := firstSpec(t, out)
	assert.Equal(t, []string{"edge"}, spec.Networks)
	assert.Equal(t, 8, countManaged(spec.Labels))

	doc, err := compose.Parse(out)
	require.NoError(t, err)
	assert.True(t, doc.IsExternalNetwork("edge"))
}

func TestInject_ExistingTopLevelNetworksKept(t *testing.T) {
	content := `
services:
  web:
    image: nginx
    networks: [internal]
networks:
  internal:
    driver: bridge
`
	out, err := Inject(content, blogRoute, InjectOptions{})
	require.NoError(t, err)

	doc, err := compose.Parse(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"internal", DefaultNetwork}, doc.NetworkNames())
	assert.False(t, doc.IsExternalNetwork("internal"))
}

// =============================================================================
// Rejection Tests
// =============================================================================

func TestInject_ReturnsOriginalOnError(t *testing.T) {
	tests := []struct {
		name    string
		content string
		route   Route
		opts    InjectOptions
		want    error
	}{
		{"empty document", "", blogRoute, InjectOptions{}, compose.ErrEmptyInput},
		{"no services", "version: '3'\n", blogRoute, InjectOptions{}, compose.ErrNoServices},
		{"empty services", "services: {}\n", blogRoute, InjectOptions{}, compose.ErrServicesEmpty},
		{"service not mapping", "services:\n  web: nginx\n", blogRoute, InjectOptions{}, compose.ErrServiceNotMapping},
		{"empty domain", appSpec, Route{Slug: "x"}, InjectOptions{}, ErrEmptyHostname},
		{"backtick domain", appSpec, Route{Domain: "a`b.io", Slug: "x"}, InjectOptions{}, ErrInvalidHostname},
		{"empty slug", appSpec, Route{Domain: "a.io"}, InjectOptions{}, ErrEmptyRoutingKey},
		{"port out of range", appSpec, blogRoute, InjectOptions{ForcedPort: 70000}, ErrInvalidPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := Inject(tt.content, tt.route, tt.opts)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.content, out)
		})
	}
}
