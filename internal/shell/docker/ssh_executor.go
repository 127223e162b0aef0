package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"sync"
	"time"

	"al.essio.dev/pkg/shellescape"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/artpar/docklite/internal/core/runtime"
)

// SSHConfig configures the remote execution channel.
// Port defaults to 22 and ConnectTimeout to 10 seconds. An empty KnownHostsFile
// disables host key verification.
type SSHConfig struct {
	Host           string
	Port           int
	User           string
	KeyFile        string
	KnownHostsFile string
	ConnectTimeout time.Duration
}

// SSHExecutor runs commands on a remote host over a single, lazily dialed SSH
// connection. Every argv element is shell-quoted before it is sent, so values
// such as paths and slugs are never interpreted by the remote shell.
type SSHExecutor struct {
	cfg             SSHConfig
	signer          ssh.Signer
	hostKeyCallback ssh.HostKeyCallback
	logger          *slog.Logger

	mu        sync.Mutex // Protects sshClient
	sshClient *ssh.Client
}

// NewSSHExecutor reads the key (and known_hosts file, when configured) and
// returns an executor. No connection is made until the first command.
func NewSSHExecutor(cfg SSHConfig, logger *slog.Logger) (*SSHExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Host == "" || cfg.User == "" {
		return nil, fmt.Errorf("%w: host and user are required", ErrConnectionFailed)
	}

	key, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read SSH private key: %w", err)
	}
	return newSSHExecutor(cfg, key, logger)
}

func newSSHExecutor(cfg SSHConfig, privateKey []byte, logger *slog.Logger) (*SSHExecutor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	signer, err := ssh.ParsePrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("parse SSH private key: %w", err)
	}

	callback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsFile != "" {
		callback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
	} else {
		logger.Warn("SSH host key verification disabled", "host", cfg.Host)
	}

	return &SSHExecutor{
		cfg:             cfg,
		signer:          signer,
		hostKeyCallback: callback,
		logger:          logger,
	}, nil
}

// Address returns host:port.
func (e *SSHExecutor) Address() string {
	return net.JoinHostPort(e.cfg.Host, strconv.Itoa(e.cfg.Port))
}

// =============================================================================
// Connection Management
// =============================================================================

// connect establishes the SSH connection if not already connected.
func (e *SSHExecutor) connect() (*ssh.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sshClient != nil {
		_, _, err := e.sshClient.SendRequest("keepalive@docklite", true, nil)
		if err == nil {
			return e.sshClient, nil
		}
		e.logger.Debug("SSH connection lost, reconnecting", "addr", e.Address(), "error", err)
		e.sshClient.Close()
		e.sshClient = nil
	}

	config := &ssh.ClientConfig{
		User:            e.cfg.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(e.signer)},
		HostKeyCallback: e.hostKeyCallback,
		Timeout:         e.cfg.ConnectTimeout,
	}

	client, err := ssh.Dial("tcp", e.Address(), config)
	if err != nil {
		return nil, fmt.Errorf("%w: SSH dial %s: %v", ErrConnectionFailed, e.Address(), err)
	}

	e.sshClient = client
	return client, nil
}

// Close closes the SSH connection.
func (e *SSHExecutor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sshClient != nil {
		err := e.sshClient.Close()
		e.sshClient = nil
		return err
	}
	return nil
}

// =============================================================================
// Command Execution
// =============================================================================

// Run implements Executor.
func (e *SSHExecutor) Run(ctx context.Context, argv []string) (runtime.CommandResult, error) {
	res := runtime.CommandResult{Argv: argv, ExitCode: -1}
	if len(argv) == 0 {
		return res, ErrEmptyCommand
	}

	client, err := e.connect()
	if err != nil {
		return res, err
	}

	session, err := client.NewSession()
	if err != nil {
		return res, fmt.Errorf("%w: create session: %v", ErrConnectionFailed, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	cmdStr := shellescape.QuoteCommand(argv)
	start := time.Now()

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmdStr)
	}()

	select {
	case <-ctx.Done():
		// output buffers are still owned by the session goroutine
		_ = session.Signal(ssh.SIGKILL)
		res.Duration = time.Since(start)
		return res, contextError(ctx.Err())
	case err := <-done:
		res.Duration = time.Since(start)
		res.Stdout = stdout.String()
		res.Stderr = stderr.String()

		var exitErr *ssh.ExitError
		switch {
		case err == nil:
			res.ExitCode = 0
			return res, nil
		case errors.As(err, &exitErr):
			res.ExitCode = exitErr.ExitStatus()
			return res, nil
		default:
			return res, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
		}
	}
}
