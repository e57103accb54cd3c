package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/session"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

// DefaultSamplingTimeout bounds one sampling callback
const DefaultSamplingTimeout = 60 * time.Second

// Option configures a Client
type Option func(*Client)

// WithName sets the client name sent during the handshake
func WithName(name string) Option {
	return func(c *Client) {
		c.name = name
	}
}

// WithVersion sets the client version sent during the handshake
func WithVersion(version string) Option {
	return func(c *Client) {
		c.version = version
	}
}

// WithLogger sets the logger used by the client and its session
func WithLogger(logger logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records session and tool metrics into m
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer taken from the global provider. A nil
// tracer is ignored.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) {
		if tracer != nil {
			c.tracer = tracer
		}
	}
}

// WithSessionOptions passes options through to the underlying session
func WithSessionOptions(opts ...session.Option) Option {
	return func(c *Client) {
		c.sessionOpts = append(c.sessionOpts, opts...)
	}
}

// Client is a connection to one capability provider
type Client struct {
	name        string
	version     string
	logger      logging.Logger
	metrics     *observability.Metrics
	tracer      trace.Tracer
	sessionOpts []session.Option
	session     *session.Session

	callbacks       Callbacks
	samplingTimeout time.Duration
	progressMu      sync.Mutex
	progress        map[protocol.ProgressToken]ProgressHandler

	cacheMu   sync.RWMutex
	tools     *toolSnapshot
	resources []protocol.Resource
	templates []protocol.ResourceTemplate
	prompts   []protocol.Prompt
	stale     staleLists
}

// New creates a client over t. Nothing is sent until Connect.
func New(t transport.Transport, opts ...Option) *Client {
	c := &Client{
		name:            "mcp-agent-go",
		version:         "1.0.0",
		logger:          logging.NewNop(),
		tracer:          observability.Tracer(),
		samplingTimeout: DefaultSamplingTimeout,
		progress:        make(map[protocol.ProgressToken]ProgressHandler),
	}
	for _, opt := range opts {
		opt(c)
	}

	sessionOpts := []session.Option{
		session.WithRole(session.RoleClient),
		session.WithLogger(c.logger),
		session.WithMetrics(c.metrics),
		session.WithTracer(c.tracer),
	}
	c.session = session.New(t, append(sessionOpts, c.sessionOpts...)...)
	c.logger = c.session.Logger().WithFields(logging.String(logging.ComponentKey, "client"))

	c.registerCallbacks()
	c.session.OnNotification(protocol.MethodToolsListChanged, c.handleListChanged(listTools))
	c.session.OnNotification(protocol.MethodResourcesListChanged, c.handleListChanged(listResources))
	c.session.OnNotification(protocol.MethodPromptsListChanged, c.handleListChanged(listPrompts))
	return c
}

// Connect starts the session and performs the handshake
func (c *Client) Connect(ctx context.Context) (*protocol.InitializeResult, error) {
	c.session.Start()
	return c.session.Initialize(ctx, protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolRevision,
		Capabilities:    c.capabilities(),
		ClientInfo:      protocol.Implementation{Name: c.name, Version: c.version},
	})
}

// Close ends the session. Outstanding calls fail with ConnectionLost.
func (c *Client) Close() error {
	return c.session.Close()
}

// Wait blocks until the session has shut down
func (c *Client) Wait() error {
	return c.session.Wait()
}

// Session exposes the underlying session
func (c *Client) Session() *session.Session {
	return c.session
}

// ServerInfo returns the provider's handshake result, nil before Connect
func (c *Client) ServerInfo() *protocol.InitializeResult {
	return c.session.PeerInfo()
}

// Logger returns the client logger
func (c *Client) Logger() logging.Logger {
	return c.logger
}

// Ping checks that the provider is responsive
func (c *Client) Ping(ctx context.Context) error {
	return c.session.Ping(ctx)
}

// SetLogLevel asks the provider to send log records at level and above
func (c *Client) SetLogLevel(ctx context.Context, level protocol.LogLevel) error {
	_, err := c.session.Request(ctx, protocol.MethodSetLogLevel, protocol.SetLevelParams{Level: level})
	return err
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	raw, err := c.session.Request(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return mcperrors.ProtocolErrorWithCode(mcperrors.CodeProtocolError, fmt.Sprintf("malformed %s result", method), err)
	}
	return nil
}
