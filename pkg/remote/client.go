package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

// SyncError wraps a failed remote operation with the remote's name and
// the operation that failed.
type SyncError struct {
	Remote string
	Op     string
	Err    error
}

// Error implements the error interface.
func (e *SyncError) Error() string {
	return fmt.Sprintf("remote %s: %s: %v", e.Remote, e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SyncError) Unwrap() error {
	return e.Err
}

// Client holds one SSH connection and its SFTP session.
type Client struct {
	config *Config
	logger zerolog.Logger

	mu         sync.Mutex
	sshClient  *ssh.Client
	sftpClient *sftp.Client
}

// NewClient creates a client for the given remote. The configuration is
// validated up front; the connection is established by Connect.
func NewClient(config *Config, logger zerolog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		config: config,
		logger: logger.With().
			Str("component", "remote").
			Str("remote", config.Name).
			Logger(),
	}, nil
}

// Connect dials the remote and opens the SFTP session. Calling Connect
// on an already connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftpClient != nil {
		return nil
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return &SyncError{Remote: c.config.Name, Op: "connect", Err: err}
	}

	address := c.config.Address()
	c.logger.Debug().Str("address", address).Msg("Dialing remote")

	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return &SyncError{Remote: c.config.Name, Op: "connect", Err: err}
	}

	sshConn, channels, requests, err := ssh.NewClientConn(netConn, address, clientConfig)
	if err != nil {
		netConn.Close()
		return &SyncError{Remote: c.config.Name, Op: "connect", Err: err}
	}

	sshClient := ssh.NewClient(sshConn, channels, requests)

	sftpClient, err := sftp.NewClient(sshClient)
	if err != nil {
		sshClient.Close()
		return &SyncError{Remote: c.config.Name, Op: "connect", Err: fmt.Errorf("failed to start sftp subsystem: %w", err)}
	}

	c.sshClient = sshClient
	c.sftpClient = sftpClient

	c.logger.Info().Str("address", address).Str("user", c.config.User).Msg("Connected to remote")
	return nil
}

// Close shuts down the SFTP session and the SSH connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftpClient != nil {
		c.sftpClient.Close()
		c.sftpClient = nil
	}

	if c.sshClient != nil {
		err := c.sshClient.Close()
		c.sshClient = nil
		if err != nil {
			return &SyncError{Remote: c.config.Name, Op: "close", Err: err}
		}
		c.logger.Debug().Msg("Disconnected from remote")
	}

	return nil
}

// Connected reports whether the client has a live session.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sftpClient != nil
}

// HealthCheck verifies the connection by running a trivial command.
func (c *Client) HealthCheck(ctx context.Context) error {
	_, _, err := c.RunCommand(ctx, "true")
	return err
}

// RunCommand executes a command on the remote host and returns its
// trimmed stdout and stderr.
func (c *Client) RunCommand(ctx context.Context, command string) (string, string, error) {
	c.mu.Lock()
	sshClient := c.sshClient
	c.mu.Unlock()

	if sshClient == nil {
		return "", "", &SyncError{Remote: c.config.Name, Op: "exec", Err: errors.New("not connected")}
	}

	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", &SyncError{Remote: c.config.Name, Op: "exec", Err: fmt.Errorf("failed to create session: %w", err)}
	}
	defer session.Close()

	var stdoutBuf, stderrBuf bytes.Buffer
	session.Stdout = &stdoutBuf
	session.Stderr = &stderrBuf

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGTERM)
		runErr = ctx.Err()
	case runErr = <-done:
	}

	stdout := strings.TrimSpace(stdoutBuf.String())
	stderr := strings.TrimSpace(stderrBuf.String())

	c.logger.Debug().
		Str("command", command).
		Dur("duration", time.Since(start)).
		Msg("Remote command finished")

	if runErr != nil {
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			return stdout, stderr, &SyncError{
				Remote: c.config.Name,
				Op:     "exec",
				Err:    fmt.Errorf("command exited with status %d: %s", exitErr.ExitStatus(), stderr),
			}
		}
		return stdout, stderr, &SyncError{Remote: c.config.Name, Op: "exec", Err: runErr}
	}

	return stdout, stderr, nil
}

// session returns the live SFTP session or an error when disconnected.
func (c *Client) session() (*sftp.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sftpClient == nil {
		return nil, &SyncError{Remote: c.config.Name, Op: "session", Err: errors.New("not connected")}
	}
	return c.sftpClient, nil
}
