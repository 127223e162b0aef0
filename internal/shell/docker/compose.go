package docker

import (
	"context"
	"log/slog"
	"path"
	"strconv"
	"time"

	"github.com/artpar/docklite/internal/core/runtime"
)

// =============================================================================
// Compose Client
// =============================================================================

// ComposeConfig configures compose invocations.
type ComposeConfig struct {
	Command []string      // Default: ["docker", "compose"]
	Timeout time.Duration // Default: 5 minutes; image pulls run under this bound
}

func (c ComposeConfig) withDefaults() ComposeConfig {
	if len(c.Command) == 0 {
		c.Command = DefaultComposeCommand
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultComposeTimeout
	}
	return c
}

// ComposeClient runs compose verbs against a deployment directory. The
// directory is a path on the runtime host.
type ComposeClient struct {
	exec   Executor
	cfg    ComposeConfig
	logger *slog.Logger
}

// NewComposeClient creates a compose client on top of exec.
func NewComposeClient(exec Executor, cfg ComposeConfig, logger *slog.Logger) *ComposeClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ComposeClient{
		exec:   exec,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// argv builds `<compose> --project-directory <dir> -f <dir>/docker-compose.yml args...`.
// The directory is passed as an argument so no shell `cd` is needed.
func (c *ComposeClient) argv(dir string, args ...string) []string {
	argv := make([]string, 0, len(c.cfg.Command)+4+len(args))
	argv = append(argv, c.cfg.Command...)
	argv = append(argv, "--project-directory", dir, "-f", path.Join(dir, ComposeFileName))
	return append(argv, args...)
}

func (c *ComposeClient) run(ctx context.Context, op, dir string, args ...string) (runtime.CommandResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	res, err := c.exec.Run(ctx, c.argv(dir, args...))
	observeCommand("compose_"+op, res.Duration, res.ExitCode, err)

	if err != nil {
		c.logger.Error("compose command did not complete", "op", op, "dir", dir, "error", err)
		return res, NewCommandError("compose "+op, "project", dir, err.Error(), err)
	}
	if !res.Success() {
		c.logger.Warn("compose command failed", "op", op, "dir", dir, "exit_code", res.ExitCode)
		return res, commandFailure("compose "+op, "project", dir, res)
	}
	return res, nil
}

// Up creates and starts the project in the background. Compose reports
// progress on stderr, which is returned as the output.
func (c *ComposeClient) Up(ctx context.Context, dir string) (string, error) {
	res, err := c.run(ctx, "up", dir, "up", "-d")
	return res.Stdout + res.Stderr, err
}

// Down stops and removes the project's containers and networks.
func (c *ComposeClient) Down(ctx context.Context, dir string) error {
	_, err := c.run(ctx, "down", dir, "down")
	return err
}

// Restart restarts every service of the project.
func (c *ComposeClient) Restart(ctx context.Context, dir string) error {
	_, err := c.run(ctx, "restart", dir, "restart")
	return err
}

// Status lists the project's containers. Unparseable output degrades to the
// raw text rather than failing.
func (c *ComposeClient) Status(ctx context.Context, dir string) (runtime.ComposeStatus, error) {
	res, err := c.run(ctx, "ps", dir, "ps", "--format", "json")
	if err != nil {
		return runtime.ComposeStatus{}, err
	}
	return runtime.ParseComposeStatus(res.Stdout), nil
}

// Logs returns the last tail lines of every service. Output is collected once
// the command exits, so logs are never followed.
func (c *ComposeClient) Logs(ctx context.Context, dir string, tail int) (string, error) {
	if tail <= 0 {
		tail = DefaultLogTail
	}
	res, err := c.run(ctx, "logs", dir, "logs", "--tail="+strconv.Itoa(tail))
	if err != nil {
		return "", err
	}
	return res.Stdout + res.Stderr, nil
}
