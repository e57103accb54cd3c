package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"
)

// CommandTransport runs a provider as a child process and talks to it over
// the child's stdin and stdout.
type CommandTransport struct {
	*StdioTransport
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	grace     time.Duration
	closeOnce sync.Once
	closeErr  error
}

// CommandOption configures a CommandTransport
type CommandOption func(*commandOptions)

type commandOptions struct {
	env    []string
	dir    string
	stderr io.Writer
	grace  time.Duration
	config TransportConfig
}

// WithEnv appends environment variables to the inherited environment.
func WithEnv(env ...string) CommandOption {
	return func(o *commandOptions) { o.env = append(o.env, env...) }
}

// WithDir sets the child's working directory.
func WithDir(dir string) CommandOption {
	return func(o *commandOptions) { o.dir = dir }
}

// WithStderr redirects the child's stderr. Defaults to the parent's stderr.
func WithStderr(w io.Writer) CommandOption {
	return func(o *commandOptions) { o.stderr = w }
}

// WithShutdownGrace sets how long Close waits for the child to exit after its
// stdin is closed before killing it.
func WithShutdownGrace(d time.Duration) CommandOption {
	return func(o *commandOptions) { o.grace = d }
}

// WithTransportConfig overrides frame limits.
func WithTransportConfig(cfg TransportConfig) CommandOption {
	return func(o *commandOptions) { o.config = cfg }
}

// NewCommandTransport starts name with args and returns a transport attached
// to it. ctx only bounds process start-up.
func NewCommandTransport(ctx context.Context, name string, args []string, opts ...CommandOption) (*CommandTransport, error) {
	o := &commandOptions{
		stderr: os.Stderr,
		grace:  2 * time.Second,
		config: DefaultTransportConfig(TransportTypeCommand),
	}
	for _, opt := range opts {
		opt(o)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), o.env...)
	cmd.Dir = o.dir
	cmd.Stderr = o.stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}

	return &CommandTransport{
		StdioTransport: NewStdioTransport(stdout, stdin, o.config),
		cmd:            cmd,
		stdin:          stdin,
		grace:          o.grace,
	}, nil
}

// Pid returns the child's process id.
func (c *CommandTransport) Pid() int {
	return c.cmd.Process.Pid
}

// Close closes the child's stdin, waits up to the grace period for it to
// exit, then kills it.
func (c *CommandTransport) Close() error {
	c.closeOnce.Do(func() {
		_ = c.StdioTransport.Close()
		_ = c.stdin.Close()

		exited := make(chan error, 1)
		go func() { exited <- c.cmd.Wait() }()

		select {
		case err := <-exited:
			var exitErr *exec.ExitError
			if err != nil && !errors.As(err, &exitErr) {
				c.closeErr = err
			}
		case <-time.After(c.grace):
			_ = c.cmd.Process.Kill()
			<-exited
		}
	})
	return c.closeErr
}
