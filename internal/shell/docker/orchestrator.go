package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/artpar/docklite/internal/core/compose"
	"github.com/artpar/docklite/internal/core/domain"
	"github.com/artpar/docklite/internal/core/monitoring"
	"github.com/artpar/docklite/internal/core/runtime"
	"github.com/artpar/docklite/internal/core/traefik"
)

// =============================================================================
// Orchestrator - Manages Deployment Lifecycle
// =============================================================================

// DeploymentStore is the persistence the orchestrator needs.
type DeploymentStore interface {
	CreateDeployment(ctx context.Context, deployment *domain.Deployment) error
	GetDeploymentBySlug(ctx context.Context, slug string) (*domain.Deployment, error)
	UpdateDeployment(ctx context.Context, deployment *domain.Deployment) error
	DeleteDeployment(ctx context.Context, id string) error
}

// OrchestratorConfig holds deployment-wide settings.
type OrchestratorConfig struct {
	// Proxy carries network, entrypoint and TLS settings for label injection.
	// ForcedPort is ignored here; it is set per request.
	Proxy traefik.InjectOptions

	// AutoStart runs `compose up -d` right after a deployment is created.
	AutoStart bool

	// StrictValidation runs the full compose loader before accepting content.
	StrictValidation bool
}

// statusTimeout bounds a shared status read, which no single caller owns.
const statusTimeout = DefaultComposeTimeout + 30*time.Second

// Orchestrator turns deployment requests into stored records, workspace files
// and compose invocations. Mutating operations on one slug never overlap.
type Orchestrator struct {
	store     DeploymentStore
	compose   *ComposeClient
	workspace *Workspace
	cfg       OrchestratorConfig
	locks     *KeyedMutex
	reads     singleflight.Group
	logger    *slog.Logger
}

// NewOrchestrator creates a new orchestrator.
func NewOrchestrator(store DeploymentStore, composeClient *ComposeClient, workspace *Workspace, cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     store,
		compose:   composeClient,
		workspace: workspace,
		cfg:       cfg,
		locks:     NewKeyedMutex(),
		logger:    logger,
	}
}

// DeployRequest describes a new deployment.
type DeployRequest struct {
	Name           string            `json:"name"`
	Domain         string            `json:"domain"`
	ComposeContent string            `json:"compose_content"`
	EnvVars        map[string]string `json:"env_vars,omitempty"`
	Port           int               `json:"port,omitempty"`  // overrides detection when > 0
	Start          *bool             `json:"start,omitempty"` // nil follows AutoStart
}

// UpdateRequest changes an existing deployment. Nil fields are left alone.
type UpdateRequest struct {
	Name           *string            `json:"name,omitempty"`
	Domain         *string            `json:"domain,omitempty"`
	ComposeContent *string            `json:"compose_content,omitempty"`
	EnvVars        *map[string]string `json:"env_vars,omitempty"`
	Port           *int               `json:"port,omitempty"`
}

// DeployResult reports what a deploy or redeploy did.
type DeployResult struct {
	Deployment *domain.Deployment `json:"deployment"`
	PortSource compose.PortSource `json:"port_source"`
	Started    bool               `json:"started"`
	Output     string             `json:"output,omitempty"`
}

// StatusReport pairs the stored deployment with what compose reports.
type StatusReport struct {
	Deployment *domain.Deployment      `json:"deployment"`
	Compose    runtime.ComposeStatus   `json:"compose"`
	Health     monitoring.HealthStatus `json:"health"`
}

// =============================================================================
// Deploy / Redeploy
// =============================================================================

// Deploy validates and rewrites the compose content, stores the deployment,
// writes its workspace and, when asked to, starts it.
//
// When starting fails the deployment is kept in the error state and returned
// together with the error.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) (result *DeployResult, err error) {
	defer func() { observeOperation("deploy", err) }()

	if err := o.validate(req.ComposeContent); err != nil {
		return nil, err
	}
	d, err := domain.NewDeployment(req.Name, req.Domain, req.ComposeContent, req.EnvVars)
	if err != nil {
		return nil, err
	}

	if err := o.store.CreateDeployment(ctx, d); err != nil {
		return nil, err
	}
	unlock := o.locks.Lock(d.Slug)
	defer unlock()

	o.logger.Info("deployment created", "slug", d.Slug, "domain", d.Domain)

	source, err := o.rewrite(d, req.Port)
	if err != nil {
		o.discard(ctx, d)
		return nil, err
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		o.discard(ctx, d)
		return nil, err
	}
	if err := o.workspace.Write(d.Slug, d.ComposeContent, d.EnvVars); err != nil {
		o.discard(ctx, d)
		return nil, err
	}

	result = &DeployResult{Deployment: d, PortSource: source}

	start := o.cfg.AutoStart
	if req.Start != nil {
		start = *req.Start
	}
	if !start {
		return result, nil
	}

	result.Output, err = o.up(ctx, d)
	result.Started = err == nil
	return result, err
}

// Redeploy applies changes to an existing deployment, rewrites its workspace
// and, when it is running, brings it up again so the changes take effect.
func (o *Orchestrator) Redeploy(ctx context.Context, slug string, req UpdateRequest) (result *DeployResult, err error) {
	defer func() { observeOperation("redeploy", err) }()

	unlock := o.locks.Lock(slug)
	defer unlock()

	d, err := o.store.GetDeploymentBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return nil, domain.ErrNameRequired
		}
		d.Name = name
	}
	if req.Domain != nil {
		if err := domain.ValidateDomain(*req.Domain); err != nil {
			return nil, err
		}
		d.Domain = domain.NormalizeDomain(*req.Domain)
	}
	if req.ComposeContent != nil {
		if err := o.validate(*req.ComposeContent); err != nil {
			return nil, err
		}
		d.ComposeContent = *req.ComposeContent
	}
	if req.EnvVars != nil {
		if err := domain.ValidateEnvVars(*req.EnvVars); err != nil {
			return nil, err
		}
		d.EnvVars = *req.EnvVars
	}

	forced := 0
	if req.Port != nil {
		forced = *req.Port
	}
	source, err := o.rewrite(d, forced)
	if err != nil {
		return nil, err
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return nil, err
	}
	if err := o.workspace.Write(d.Slug, d.ComposeContent, d.EnvVars); err != nil {
		return nil, err
	}
	o.logger.Info("deployment updated", "slug", slug, "domain", d.Domain, "port", d.Port)

	result = &DeployResult{Deployment: d, PortSource: source}
	if d.Status != domain.StatusRunning {
		return result, nil
	}
	result.Output, err = o.up(ctx, d)
	result.Started = err == nil
	return result, err
}

// validate applies the structural checks, and the full loader when strict.
func (o *Orchestrator) validate(content string) error {
	if err := compose.Validate(content); err != nil {
		return err
	}
	if o.cfg.StrictValidation {
		if _, err := compose.Lint(content); err != nil {
			return err
		}
	}
	return nil
}

// rewrite injects routing labels into the deployment's compose content and
// records the port the proxy targets.
func (o *Orchestrator) rewrite(d *domain.Deployment, forcedPort int) (compose.PortSource, error) {
	doc, err := compose.Parse(d.ComposeContent)
	if err != nil {
		return "", err
	}

	opts := o.cfg.Proxy
	opts.ForcedPort = forcedPort
	port, err := traefik.InjectDocument(doc, traefik.Route{Domain: d.Domain, Slug: d.Slug}, opts)
	if err != nil {
		return "", err
	}

	out, err := doc.Marshal()
	if err != nil {
		return "", err
	}
	d.ComposeContent = out
	d.Port = port.Port
	return port.Source, nil
}

// discard removes a deployment whose creation could not be completed.
func (o *Orchestrator) discard(ctx context.Context, d *domain.Deployment) {
	if err := o.store.DeleteDeployment(ctx, d.ID); err != nil {
		o.logger.Error("failed to discard deployment", "slug", d.Slug, "error", err)
	}
	if err := o.workspace.Remove(d.Slug); err != nil {
		o.logger.Error("failed to remove workspace", "slug", d.Slug, "error", err)
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// Start brings the deployment up.
func (o *Orchestrator) Start(ctx context.Context, slug string) (output string, err error) {
	defer func() { observeOperation("start", err) }()

	unlock := o.locks.Lock(slug)
	defer unlock()

	d, err := o.store.GetDeploymentBySlug(ctx, slug)
	if err != nil {
		return "", err
	}
	return o.up(ctx, d)
}

// Stop takes the deployment down. Its workspace and record are kept.
func (o *Orchestrator) Stop(ctx context.Context, slug string) (err error) {
	defer func() { observeOperation("stop", err) }()

	unlock := o.locks.Lock(slug)
	defer unlock()

	d, err := o.store.GetDeploymentBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := o.compose.Down(ctx, o.workspace.RuntimePath(slug)); err != nil {
		o.fail(ctx, d, err)
		return err
	}
	return o.transition(ctx, d, domain.StatusStopped)
}

// Restart restarts every service of the deployment.
func (o *Orchestrator) Restart(ctx context.Context, slug string) (err error) {
	defer func() { observeOperation("restart", err) }()

	unlock := o.locks.Lock(slug)
	defer unlock()

	d, err := o.store.GetDeploymentBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := o.compose.Restart(ctx, o.workspace.RuntimePath(slug)); err != nil {
		o.fail(ctx, d, err)
		return err
	}
	return o.transition(ctx, d, domain.StatusRunning)
}

// Remove takes the deployment down and deletes its workspace and record.
// A failed teardown is logged and does not keep the record alive.
func (o *Orchestrator) Remove(ctx context.Context, slug string) (err error) {
	defer func() { observeOperation("remove", err) }()

	unlock := o.locks.Lock(slug)
	defer unlock()

	d, err := o.store.GetDeploymentBySlug(ctx, slug)
	if err != nil {
		return err
	}

	if err := o.compose.Down(ctx, o.workspace.RuntimePath(slug)); err != nil {
		o.logger.Warn("compose down failed during removal", "slug", slug, "error", Diagnostic(err))
	}
	if err := o.workspace.Remove(slug); err != nil {
		return fmt.Errorf("failed to remove workspace: %w", err)
	}
	if err := o.store.DeleteDeployment(ctx, d.ID); err != nil {
		return err
	}

	o.logger.Info("deployment removed", "slug", slug)
	return nil
}

// up runs `compose up -d` and records the outcome on the deployment.
func (o *Orchestrator) up(ctx context.Context, d *domain.Deployment) (string, error) {
	output, err := o.compose.Up(ctx, o.workspace.RuntimePath(d.Slug))
	if err != nil {
		o.fail(ctx, d, err)
		return output, err
	}
	return output, o.transition(ctx, d, domain.StatusRunning)
}

func (o *Orchestrator) transition(ctx context.Context, d *domain.Deployment, to domain.DeploymentStatus) error {
	if err := d.Transition(to, ""); err != nil {
		return err
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		return err
	}
	o.logger.Info("deployment status changed", "slug", d.Slug, "status", to)
	return nil
}

// fail records a runtime failure on the deployment. The runtime error is the
// one reported to the caller, so a store failure here is only logged.
func (o *Orchestrator) fail(ctx context.Context, d *domain.Deployment, cause error) {
	o.logger.Error("deployment command failed", "slug", d.Slug, "error", cause)
	if err := d.Transition(domain.StatusError, Diagnostic(cause)); err != nil {
		return
	}
	if err := o.store.UpdateDeployment(ctx, d); err != nil {
		o.logger.Error("failed to record deployment error", "slug", d.Slug, "error", err)
	}
}

// =============================================================================
// Reads
// =============================================================================

// Get returns the stored deployment.
func (o *Orchestrator) Get(ctx context.Context, slug string) (*domain.Deployment, error) {
	return o.store.GetDeploymentBySlug(ctx, slug)
}

// Status asks compose for the deployment's containers and reconciles the
// stored running/stopped status with the answer. Concurrent calls for one slug
// share a single compose invocation. Reconciliation is skipped while a
// mutating operation holds the slug.
// The shared call is detached from any one caller's cancellation and bounded
// by statusTimeout; each caller still stops waiting when its own ctx ends.
func (o *Orchestrator) Status(ctx context.Context, slug string) (*StatusReport, error) {
	ch := o.reads.DoChan(slug, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusTimeout)
		defer cancel()
		return o.status(sctx, slug)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}
	shared := res.Val.(*StatusReport)
	d := *shared.Deployment
	return &StatusReport{Deployment: &d, Compose: shared.Compose, Health: shared.Health}, nil
}

func (o *Orchestrator) status(ctx context.Context, slug string) (*StatusReport, error) {
	d, err := o.store.GetDeploymentBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}

	st, err := o.compose.Status(ctx, o.workspace.RuntimePath(slug))
	if err != nil {
		return nil, err
	}

	var want domain.DeploymentStatus
	switch {
	case st.Running && d.Status != domain.StatusRunning:
		want = domain.StatusRunning
	case !st.Running && d.Status == domain.StatusRunning:
		want = domain.StatusStopped
	}
	if want != "" {
		if unlock, ok := o.locks.TryLock(slug); ok {
			if err := o.transition(ctx, d, want); err != nil {
				o.logger.Warn("failed to reconcile deployment status", "slug", slug, "error", err)
			}
			unlock()
		}
	}

	return &StatusReport{Deployment: d, Compose: st, Health: monitoring.StatusHealth(st)}, nil
}

// Logs returns the deployment's recent logs across all services.
func (o *Orchestrator) Logs(ctx context.Context, slug string, tail int) (string, error) {
	if _, err := o.store.GetDeploymentBySlug(ctx, slug); err != nil {
		return "", err
	}
	return o.compose.Logs(ctx, o.workspace.RuntimePath(slug), tail)
}
