package observability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

// MetricsConfig configures the Prometheus collectors
type MetricsConfig struct {
	// Namespace prefixes every metric (default: mcp)
	Namespace string
	// HistogramBuckets for latency histograms in seconds
	HistogramBuckets []float64
	// ConstLabels are added to every metric
	ConstLabels prometheus.Labels
	// Registerer receives the collectors. Defaults to a fresh registry so
	// multiple sessions in one process (and tests) never collide.
	Registerer prometheus.Registerer
	// Gatherer backs Handler. Required when Registerer is not a *prometheus.Registry.
	Gatherer prometheus.Gatherer
}

// Metrics holds the collectors shared by sessions, the registry and the
// orchestrator. A nil *Metrics is valid and records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	requestDuration *prometheus.HistogramVec
	inboundDuration *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	unmatched       prometheus.Counter
	protocolErrors  prometheus.Counter
	pending         prometheus.Gauge

	frames     *prometheus.CounterVec
	frameBytes *prometheus.CounterVec

	toolCalls *prometheus.HistogramVec

	runs   *prometheus.CounterVec
	rounds prometheus.Histogram
}

// NewMetrics creates and registers the collectors
func NewMetrics(config MetricsConfig) (*Metrics, error) {
	if config.Namespace == "" {
		config.Namespace = "mcp"
	}
	if config.HistogramBuckets == nil {
		config.HistogramBuckets = prometheus.DefBuckets
	}
	if config.Registerer == nil {
		reg := prometheus.NewRegistry()
		config.Registerer = reg
		config.Gatherer = reg
	}
	if config.Gatherer == nil {
		reg, ok := config.Registerer.(*prometheus.Registry)
		if !ok {
			return nil, fmt.Errorf("metrics gatherer required for custom registerer")
		}
		config.Gatherer = reg
	}

	ns, labels, buckets := config.Namespace, config.ConstLabels, config.HistogramBuckets
	m := &Metrics{
		gatherer: config.Gatherer,

		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "session",
			Name:        "request_duration_seconds",
			Help:        "Duration of outbound requests by method and outcome",
			Buckets:     buckets,
			ConstLabels: labels,
		}, []string{"method", "status"}),
		inboundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "session",
			Name:        "inbound_request_duration_seconds",
			Help:        "Duration of peer-initiated requests served locally",
			Buckets:     buckets,
			ConstLabels: labels,
		}, []string{"method", "status"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "session",
			Name:        "notifications_total",
			Help:        "Notifications by direction and method",
			ConstLabels: labels,
		}, []string{"direction", "method"}),
		unmatched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "session",
			Name:        "unmatched_responses_total",
			Help:        "Responses whose id matched no outstanding request",
			ConstLabels: labels,
		}),
		protocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "session",
			Name:        "protocol_errors_total",
			Help:        "Inbound frames that failed to decode",
			ConstLabels: labels,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   "session",
			Name:        "pending_requests",
			Help:        "Outbound requests awaiting a response",
			ConstLabels: labels,
		}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "transport",
			Name:        "frames_total",
			Help:        "Frames by direction and outcome",
			ConstLabels: labels,
		}, []string{"direction", "status"}),
		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "transport",
			Name:        "frame_bytes_total",
			Help:        "Bytes moved by direction",
			ConstLabels: labels,
		}, []string{"direction"}),
		toolCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "tools",
			Name:        "call_duration_seconds",
			Help:        "Tool invocations by tool and outcome",
			Buckets:     buckets,
			ConstLabels: labels,
		}, []string{"tool", "status"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   "orchestrator",
			Name:        "runs_total",
			Help:        "Orchestrator runs by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		rounds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   "orchestrator",
			Name:        "rounds",
			Help:        "Model rounds used per run",
			Buckets:     prometheus.LinearBuckets(1, 1, 10),
			ConstLabels: labels,
		}),
	}

	collectors := []prometheus.Collector{
		m.requestDuration, m.inboundDuration, m.notifications, m.unmatched,
		m.protocolErrors, m.pending, m.frames, m.frameBytes, m.toolCalls,
		m.runs, m.rounds,
	}
	for _, collector := range collectors {
		if err := config.Registerer.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}
	return m, nil
}

// Status maps an error to a low-cardinality label value
func Status(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.Canceled):
		return string(mcperrors.KindCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		return string(mcperrors.KindTimeout)
	}
	return string(mcperrors.KindOf(err))
}

// RecordRequest records an outbound request outcome
func (m *Metrics) RecordRequest(method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.requestDuration.WithLabelValues(method, Status(err)).Observe(duration.Seconds())
}

// RecordInboundRequest records a locally served peer request
func (m *Metrics) RecordInboundRequest(method string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.inboundDuration.WithLabelValues(method, Status(err)).Observe(duration.Seconds())
}

// RecordNotification counts a notification; direction is "in" or "out"
func (m *Metrics) RecordNotification(direction, method string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(direction, method).Inc()
}

// RecordUnmatchedResponse counts a response nobody was waiting for
func (m *Metrics) RecordUnmatchedResponse() {
	if m == nil {
		return
	}
	m.unmatched.Inc()
}

// RecordProtocolError counts an undecodable inbound frame
func (m *Metrics) RecordProtocolError() {
	if m == nil {
		return
	}
	m.protocolErrors.Inc()
}

// AddPending adjusts the pending request gauge
func (m *Metrics) AddPending(delta int) {
	if m == nil {
		return
	}
	m.pending.Add(float64(delta))
}

// ObserveFrame implements transport.FrameObserver
func (m *Metrics) ObserveFrame(direction transport.Direction, size int, _ time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.frames.WithLabelValues(string(direction), status).Inc()
	m.frameBytes.WithLabelValues(string(direction)).Add(float64(size))
}

// RecordToolCall records one tool invocation
func (m *Metrics) RecordToolCall(tool string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.toolCalls.WithLabelValues(tool, Status(err)).Observe(duration.Seconds())
}

// RecordRun records a finished orchestrator run
func (m *Metrics) RecordRun(rounds int, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(Status(err)).Inc()
	m.rounds.Observe(float64(rounds))
}

// Handler serves the registered collectors in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the registry backing Handler
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.gatherer
}

// MetricsServer exposes Handler over HTTP
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
}

// StartMetricsServer listens on addr and serves /metrics in the background
func StartMetricsServer(addr string, m *Metrics) (*MetricsServer, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &MetricsServer{
		server:   &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		listener: listener,
	}
	go func() {
		_ = s.server.Serve(listener)
	}()
	return s, nil
}

// Addr returns the bound listen address
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
