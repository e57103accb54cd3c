package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
)

const (
	// DefaultRequestTimeout bounds outbound requests that set no timeout of their own.
	DefaultRequestTimeout = 30 * time.Second
	// DefaultMaxConcurrentHandlers bounds peer-initiated requests served at once.
	DefaultMaxConcurrentHandlers = 32
	// DefaultNotificationQueue is the number of inbound notifications buffered
	// ahead of their handlers.
	DefaultNotificationQueue = 256

	cancelNotifyTimeout = time.Second
)

// Role distinguishes the initiating side of the handshake from the responder
type Role string

const (
	RoleClient Role = "client"
	RoleServer Role = "server"
)

// Option configures a Session
type Option func(*Session)

// WithRole sets which side of the handshake this session plays. Client
// sessions reject outbound requests until Initialize succeeds.
func WithRole(role Role) Option {
	return func(s *Session) { s.role = role }
}

// WithLogger sets the session logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithRequestTimeout sets the default timeout for outbound requests. Zero
// disables the default; the caller's context still applies.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(s *Session) { s.timeout = timeout }
}

// WithMaxConcurrentHandlers bounds how many peer-initiated requests run at once
func WithMaxConcurrentHandlers(n int64) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxHandlers = n
		}
	}
}

// WithNotificationQueue sets the inbound notification buffer
func WithNotificationQueue(size int) Option {
	return func(s *Session) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithMetrics records session metrics into m
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider. A nil
// tracer is ignored.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Session) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithProtocolErrorHandler is called for every inbound frame that fails to
// decode. The session keeps reading afterwards.
func WithProtocolErrorHandler(fn func(err error)) Option {
	return func(s *Session) { s.onProtocolError = fn }
}

// WithIDPrefix sets the prefix of generated request ids (default "req")
func WithIDPrefix(prefix string) Option {
	return func(s *Session) { s.idPrefix = prefix }
}

// RequestOption adjusts a single outbound request
type RequestOption func(*requestConfig)

type requestConfig struct {
	timeout time.Duration
}

// WithTimeout overrides the session default for one request. Zero means
// wait until the context ends.
func WithTimeout(timeout time.Duration) RequestOption {
	return func(c *requestConfig) { c.timeout = timeout }
}
