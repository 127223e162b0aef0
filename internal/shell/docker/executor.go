package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/artpar/docklite/internal/core/runtime"
)

// Executor runs one command given as an argument vector. A non-zero exit is not
// an error: it is reported through CommandResult.ExitCode. Errors mean the
// command could not be run to completion (spawn failure, lost connection,
// deadline).
type Executor interface {
	Run(ctx context.Context, argv []string) (runtime.CommandResult, error)
}

// killGrace bounds how long a killed process may hold its output pipes open.
const killGrace = 2 * time.Second

// LocalExecutor runs commands on this host without a shell.
type LocalExecutor struct {
	// Env, when set, replaces the process environment.
	Env []string
}

// NewLocalExecutor creates a LocalExecutor that inherits the environment.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{}
}

// Run implements Executor.
func (e *LocalExecutor) Run(ctx context.Context, argv []string) (runtime.CommandResult, error) {
	res := runtime.CommandResult{Argv: argv, ExitCode: -1}
	if len(argv) == 0 {
		return res, ErrEmptyCommand
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.WaitDelay = killGrace
	if e.Env != nil {
		cmd.Env = e.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, contextError(ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", argv[0], err)
	}

	res.ExitCode = 0
	return res, nil
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
