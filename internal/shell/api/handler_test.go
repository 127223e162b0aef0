package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/docklite/internal/core/domain"
	"github.com/artpar/docklite/internal/core/protection"
	"github.com/artpar/docklite/internal/core/runtime"
	"github.com/artpar/docklite/internal/shell/docker"
	"github.com/artpar/docklite/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

// scriptedExecutor answers runtime commands from a table keyed by a substring
// of the joined argv. Unmatched commands succeed with no output.
type scriptedExecutor struct {
	mu      sync.Mutex
	calls   []string
	scripts map[string]runtime.CommandResult
}

func (e *scriptedExecutor) Run(_ context.Context, argv []string) (runtime.CommandResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	joined := strings.Join(argv, " ")
	e.calls = append(e.calls, joined)
	for match, res := range e.scripts {
		if strings.Contains(joined, match) {
			res.Argv = argv
			return res, nil
		}
	}
	return runtime.CommandResult{Argv: argv}, nil
}

func (e *scriptedExecutor) ran(match string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.calls {
		if strings.Contains(c, match) {
			return true
		}
	}
	return false
}

type testServer struct {
	handler http.Handler
	exec    *scriptedExecutor
	store   *store.SQLiteStore
}

func setupTestServer(t *testing.T, token string, scripts map[string]runtime.CommandResult) *testServer {
	t.Helper()
	dir := t.TempDir()

	s, err := store.NewSQLiteStore(filepath.Join(dir, "docklite.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	if scripts == nil {
		scripts = map[string]runtime.CommandResult{}
	}
	exec := &scriptedExecutor{scripts: scripts}

	client, err := docker.NewClient(context.Background(), exec, docker.ClientConfig{}, protection.NewGuard(), nil)
	require.NoError(t, err)

	orch := docker.NewOrchestrator(s,
		docker.NewComposeClient(exec, docker.ComposeConfig{}, nil),
		docker.NewWorkspace(filepath.Join(dir, "projects"), ""),
		docker.OrchestratorConfig{}, nil)

	h := NewHandler(Config{Store: s, Orchestrator: orch, Containers: client, APIToken: token})
	return &testServer{handler: h.Routes(), exec: exec, store: s}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const webCompose = "services:\n  web:\n    image: nginx:alpine\n    ports:\n      - \"8080:80\"\n"

func createDeployment(t *testing.T, ts *testServer) docker.DeployResult {
	t.Helper()
	rec := ts.do(t, "POST", "/api/v1/deployments", docker.DeployRequest{
		Name: "web", Domain: "web.example.com", ComposeContent: webCompose,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[docker.DeployResult](t, rec)
}

// =============================================================================
// Health
// =============================================================================

func TestHealth(t *testing.T) {
	ts := setupTestServer(t, "", nil)

	rec := ts.do(t, "GET", "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode[HealthResponse](t, rec).Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestReady(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	rec := ts.do(t, "GET", "/ready", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts = setupTestServer(t, "", map[string]runtime.CommandResult{
		"ps --format": {ExitCode: 1, Stderr: "Cannot connect to the Docker daemon"},
	})
	rec = ts.do(t, "GET", "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "failed", decode[ReadyResponse](t, rec).Checks["runtime"])
}

func TestMetrics(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	rec := ts.do(t, "GET", "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "docklite_runtime_commands_total")
}

// =============================================================================
// Auth
// =============================================================================

func TestAPIToken(t *testing.T) {
	ts := setupTestServer(t, "s3cret", nil)

	rec := ts.do(t, "GET", "/api/v1/deployments", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/api/v1/deployments", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// health stays open
	assert.Equal(t, http.StatusOK, ts.do(t, "GET", "/health", nil).Code)
}

// =============================================================================
// Deployments
// =============================================================================

func TestCreateDeployment(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	result := createDeployment(t, ts)

	assert.Equal(t, "web-example-com-1", result.Deployment.Slug)
	assert.Equal(t, 80, result.Deployment.Port)
	assert.Contains(t, result.Deployment.ComposeContent, "traefik.enable=true")
	assert.Equal(t, domain.StatusCreated, result.Deployment.Status)
}

func TestCreateDeployment_Errors(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	createDeployment(t, ts)

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"invalid json", "not an object", http.StatusBadRequest, "validation_error"},
		{"structural", docker.DeployRequest{Name: "x", Domain: "x.example.com", ComposeContent: "- a\n- b\n"}, http.StatusBadRequest, "invalid_compose"},
		{"bad domain", docker.DeployRequest{Name: "x", Domain: "bad domain", ComposeContent: webCompose}, http.StatusBadRequest, "validation_error"},
		{"duplicate domain", docker.DeployRequest{Name: "x", Domain: "web.example.com", ComposeContent: webCompose}, http.StatusConflict, "domain_in_use"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, "POST", "/api/v1/deployments", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Code)
		})
	}
}

func TestCreateDeployment_StartFailure(t *testing.T) {
	ts := setupTestServer(t, "", map[string]runtime.CommandResult{
		"up -d": {ExitCode: 1, Stderr: "network docklite-network declared as external, but could not be found"},
	})

	start := true
	rec := ts.do(t, "POST", "/api/v1/deployments", docker.DeployRequest{
		Name: "web", Domain: "web.example.com", ComposeContent: webCompose, Start: &start,
	})
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	body := decode[struct {
		ErrorResponse
		Deployment *domain.Deployment `json:"deployment"`
	}](t, rec)
	assert.Contains(t, body.Error, "could not be found")
	require.NotNil(t, body.Deployment)
	assert.Equal(t, domain.StatusError, body.Deployment.Status)
}

func TestDeploymentLifecycle(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	slug := createDeployment(t, ts).Deployment.Slug
	base := "/api/v1/deployments/" + slug

	rec := ts.do(t, "POST", base+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "running", decode[ActionResponse](t, rec).Status)

	rec = ts.do(t, "GET", base, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusRunning, decode[domain.Deployment](t, rec).Status)

	rec = ts.do(t, "POST", base+"/restart", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, "POST", base+"/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.exec.ran("down"))

	rec = ts.do(t, "GET", base+"/logs?tail=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, ts.exec.ran("logs --tail=5"))

	rec = ts.do(t, "GET", base+"/logs?tail=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, "DELETE", base, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, "GET", base, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "deployment_not_found", decode[ErrorResponse](t, rec).Code)
}

func TestUpdateDeployment(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	slug := createDeployment(t, ts).Deployment.Slug

	port := 8081
	rec := ts.do(t, "PUT", "/api/v1/deployments/"+slug, docker.UpdateRequest{Port: &port})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode[docker.DeployResult](t, rec)
	assert.Equal(t, 8081, result.Deployment.Port)
	assert.Contains(t, result.Deployment.ComposeContent, "loadbalancer.server.port=8081")
}

func TestDeploymentStatus(t *testing.T) {
	ts := setupTestServer(t, "", map[string]runtime.CommandResult{
		"ps --format json": {Stdout: `{"Name":"web-web-1","Service":"web","State":"running"}` + "\n"},
	})
	slug := createDeployment(t, ts).Deployment.Slug

	rec := ts.do(t, "GET", "/api/v1/deployments/"+slug+"/status", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	report := decode[docker.StatusReport](t, rec)
	assert.True(t, report.Compose.Running)
	assert.Equal(t, domain.StatusRunning, report.Deployment.Status)
}

func TestListDeployments(t *testing.T) {
	ts := setupTestServer(t, "", nil)
	createDeployment(t, ts)

	rec := ts.do(t, "GET", "/api/v1/deployments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[ListResponse[domain.Deployment]](t, rec).Count)

	rec = ts.do(t, "GET", "/api/v1/deployments?status=running", nil)
	assert.Equal(t, 0, decode[ListResponse[domain.Deployment]](t, rec).Count)

	rec = ts.do(t, "GET", "/api/v1/deployments?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Compose Lint
// =============================================================================

func TestLint(t *testing.T) {
	ts := setupTestServer(t, "", nil)

	rec := ts.do(t, "POST", "/api/v1/compose/lint", LintRequest{
		ComposeContent: "services:\n  app:\n    image: app:${TAG:-latest}\n    expose: [\"3000\"]\n",
		Strict:         true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[LintResponse](t, rec)
	assert.True(t, resp.Valid)
	assert.Equal(t, 3000, resp.Port.Port)
	assert.Equal(t, []string{"TAG"}, resp.Variables)
	require.NotNil(t, resp.Summary)

	rec = ts.do(t, "POST", "/api/v1/compose/lint", LintRequest{ComposeContent: "services: {}\n"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// Containers
// =============================================================================

const inspectSystem = `[{"Id":"f00","Name":"/docklite-traefik","State":{"Status":"running"},"Config":{"Image":"traefik:v3","Labels":{}}}]`

func TestContainers_ProtectedIsForbidden(t *testing.T) {
	ts := setupTestServer(t, "", map[string]runtime.CommandResult{
		"inspect": {Stdout: inspectSystem},
	})

	for _, path := range []string{
		"/api/v1/containers/docklite-traefik/stop",
		"/api/v1/containers/docklite-traefik/restart",
		"/api/v1/containers/f00/stop",
	} {
		rec := ts.do(t, "POST", path, nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.Equal(t, "protected_container", decode[ErrorResponse](t, rec).Code)
	}

	rec := ts.do(t, "DELETE", "/api/v1/containers/docklite-traefik?force=true", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.False(t, ts.exec.ran("docker stop"))
	assert.False(t, ts.exec.ran("docker rm"))

	rec = ts.do(t, "POST", "/api/v1/containers/docklite-traefik/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestContainers_ListAndInspect(t *testing.T) {
	ts := setupTestServer(t, "", map[string]runtime.CommandResult{
		"ps --all": {Stdout: `{"ID":"1","Names":"web_web_1","Image":"nginx","State":"running","Status":"Up 1 minute"}` + "\n"},
		"inspect":  {Stdout: inspectSystem},
	})

	rec := ts.do(t, "GET", "/api/v1/containers?all=true", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	list := decode[ListResponse[runtime.ContainerSnapshot]](t, rec)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, "web", list.Data[0].OwnerProject)

	rec = ts.do(t, "GET", "/api/v1/containers/f00", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[runtime.ContainerSnapshot](t, rec).IsProtected)
}

func TestContainers_NotFoundAndRuntimeErrors(t *testing.T) {
	ts := setupTestServer(t, "", map[string]runtime.CommandResult{
		"inspect": {ExitCode: 1, Stdout: "[]", Stderr: "Error: No such object: ghost"},
		"logs":    {ExitCode: 1, Stderr: "Error response from daemon: can not get logs"},
		"stats":   {},
	})

	rec := ts.do(t, "GET", "/api/v1/containers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "container_not_found", decode[ErrorResponse](t, rec).Code)

	rec = ts.do(t, "GET", "/api/v1/containers/web_web_1/logs", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, "Error response from daemon: can not get logs", decode[ErrorResponse](t, rec).Error)

	rec = ts.do(t, "GET", "/api/v1/containers/web_web_1/stats", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}
