package docker

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/artpar/docklite/internal/core/protection"
	"github.com/artpar/docklite/internal/core/runtime"
)

// =============================================================================
// Runtime CLI Client
// =============================================================================

// ClientConfig configures the runtime CLI client.
type ClientConfig struct {
	Binary         string        // Default: "docker"
	CommandTimeout time.Duration // Default: 30 seconds
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.Binary == "" {
		c.Binary = DefaultBinary
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = DefaultCommandTimeout
	}
	return c
}

// Client runs lifecycle verbs against individual containers. Every verb is a
// single command with its own deadline and is never retried. Local and remote
// operation differ only in the Executor.
type Client struct {
	exec    Executor
	cfg     ClientConfig
	protect *protection.Guard
	logger  *slog.Logger
}

// NewClient probes the runtime with a version call and fails with
// ErrRuntimeUnavailable when it does not answer.
func NewClient(ctx context.Context, exec Executor, cfg ClientConfig, guard *protection.Guard, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		exec:    exec,
		cfg:     cfg.withDefaults(),
		protect: guard,
		logger:  logger,
	}

	if _, err := c.run(ctx, "version", "runtime", "", "version"); err != nil {
		return nil, NewCommandError("version", "runtime", "", Diagnostic(err), ErrRuntimeUnavailable)
	}
	return c, nil
}

// Guard returns the protection guard in use.
func (c *Client) Guard() *protection.Guard {
	return c.protect
}

// run executes `<binary> args...` under the per-call timeout.
func (c *Client) run(ctx context.Context, op, entity, id string, args ...string) (runtime.CommandResult, error) {
	return c.runWithin(ctx, c.cfg.CommandTimeout, op, entity, id, args...)
}

// runWithin is run with an explicit deadline. Stop and restart extend it by the
// grace period the runtime waits before killing.
func (c *Client) runWithin(ctx context.Context, timeout time.Duration, op, entity, id string, args ...string) (runtime.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	argv := append([]string{c.cfg.Binary}, args...)
	res, err := c.exec.Run(ctx, argv)
	observeCommand(op, res.Duration, res.ExitCode, err)

	if err != nil {
		c.logger.Error("runtime command did not complete", "op", op, "id", id, "error", err)
		return res, NewCommandError(op, entity, id, err.Error(), err)
	}
	if !res.Success() {
		c.logger.Debug("runtime command failed", "op", op, "id", id, "exit_code", res.ExitCode)
		return res, commandFailure(op, entity, id, res)
	}
	return res, nil
}

// checkProtected refuses destructive verbs on protected containers before the
// destructive command is spawned. The identifier may be an ID, so the name is
// resolved with a read-only inspect when the identifier itself does not match.
func (c *Client) checkProtected(ctx context.Context, id string, verb runtime.Verb) error {
	if c.protect == nil || !verb.Destructive() {
		return nil
	}
	if err := c.protect.Check(id, verb); err != nil {
		return c.refuse(id, verb, err)
	}
	snap, err := c.Inspect(ctx, id)
	if err != nil {
		return err
	}
	if err := c.protect.Check(snap.Name, verb); err != nil {
		return c.refuse(id, verb, err)
	}
	return nil
}

func (c *Client) refuse(id string, verb runtime.Verb, err error) error {
	protectionViolations.WithLabelValues(string(verb)).Inc()
	c.logger.Warn("refused destructive verb on protected container", "verb", verb, "id", id)
	return err
}

// =============================================================================
// Lifecycle Verbs
// =============================================================================

// Start starts a stopped container. Protected containers may be started.
func (c *Client) Start(ctx context.Context, id string) error {
	_, err := c.run(ctx, string(runtime.VerbStart), "container", id, "start", id)
	return err
}

// Stop stops a container, allowing opts.Timeout for a graceful shutdown.
func (c *Client) Stop(ctx context.Context, id string, opts StopOptions) error {
	if err := c.checkProtected(ctx, id, runtime.VerbStop); err != nil {
		return err
	}
	_, err := c.runWithin(ctx, c.cfg.CommandTimeout+opts.grace(), string(runtime.VerbStop), "container", id, "stop", "-t", opts.seconds(), id)
	return err
}

// Restart restarts a container.
func (c *Client) Restart(ctx context.Context, id string, opts StopOptions) error {
	if err := c.checkProtected(ctx, id, runtime.VerbRestart); err != nil {
		return err
	}
	_, err := c.runWithin(ctx, c.cfg.CommandTimeout+opts.grace(), string(runtime.VerbRestart), "container", id, "restart", "-t", opts.seconds(), id)
	return err
}

// Remove removes a container. Without Force the runtime refuses running ones.
func (c *Client) Remove(ctx context.Context, id string, opts RemoveOptions) error {
	if err := c.checkProtected(ctx, id, runtime.VerbRemove); err != nil {
		return err
	}
	args := []string{"rm"}
	if opts.Force {
		args = append(args, "-f")
	}
	_, err := c.run(ctx, string(runtime.VerbRemove), "container", id, append(args, id)...)
	return err
}

// Logs returns the tail of a container's logs. The container's stderr stream
// follows its stdout stream.
func (c *Client) Logs(ctx context.Context, id string, opts LogOptions) (string, error) {
	args := []string{"logs", "--tail", opts.tail()}
	if opts.Timestamps {
		args = append(args, "--timestamps")
	}
	res, err := c.run(ctx, string(runtime.VerbLogs), "container", id, append(args, id)...)
	if err != nil {
		return "", err
	}
	return res.Stdout + res.Stderr, nil
}

// Stats returns a single resource usage sample.
func (c *Client) Stats(ctx context.Context, id string) (*runtime.Stats, error) {
	res, err := c.run(ctx, string(runtime.VerbStats), "container", id, "stats", "--no-stream", "--format", jsonFormat, id)
	if err != nil {
		return nil, err
	}
	stats, err := runtime.ParseStats(res.Stdout)
	if err != nil {
		return nil, NewCommandError(string(runtime.VerbStats), "container", id, err.Error(), err)
	}
	return stats, nil
}

// List returns containers, running only unless opts.All is set.
func (c *Client) List(ctx context.Context, opts ListOptions) ([]runtime.ContainerSnapshot, error) {
	args := []string{"ps"}
	if opts.All {
		args = append(args, "--all")
	}
	args = append(args, opts.filterArgs()...)
	args = append(args, "--format", jsonFormat)

	res, err := c.run(ctx, string(runtime.VerbList), "containers", "", args...)
	if err != nil {
		return nil, err
	}
	containers, err := runtime.ParseContainerList(res.Stdout, c.protect)
	if err != nil {
		return nil, NewCommandError(string(runtime.VerbList), "containers", "", err.Error(), err)
	}
	return containers, nil
}

// Inspect returns a snapshot of one container.
func (c *Client) Inspect(ctx context.Context, id string) (*runtime.ContainerSnapshot, error) {
	res, err := c.run(ctx, string(runtime.VerbInspect), "container", id, "inspect", "--type", "container", id)
	if err != nil {
		if strings.Contains(res.Stderr, "No such") {
			return nil, NewCommandError(string(runtime.VerbInspect), "container", id, "container not found", runtime.ErrNotFound)
		}
		return nil, err
	}
	snap, err := runtime.ParseInspect(res.Stdout, c.protect)
	if err != nil {
		if errors.Is(err, runtime.ErrNotFound) {
			return nil, NewCommandError(string(runtime.VerbInspect), "container", id, "container not found", err)
		}
		return nil, NewCommandError(string(runtime.VerbInspect), "container", id, err.Error(), err)
	}
	return snap, nil
}
