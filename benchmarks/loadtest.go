// Package benchmarks provides load testing and benchmarks for agent/provider sessions
package benchmarks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/server"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

// Operation names used in the mix and in results
const (
	OpInvokeTool   = "InvokeTool"
	OpReadTemplate = "ReadTemplate"
	OpListTools    = "ListTools"
	OpPing         = "Ping"
)

// LoadTestConfig configures load testing parameters
type LoadTestConfig struct {
	// Number of concurrent agents, each with its own session
	Clients int

	// Number of requests per agent
	RequestsPerClient int

	// Request rate limit across all agents (requests per second, 0 = unlimited)
	RateLimit int

	// Test duration (0 = run until all requests complete)
	Duration time.Duration

	// Ramp up period for gradual load increase
	RampUpTime time.Duration

	// Mix of operations to perform
	OperationMix OperationMix

	// Logger receives periodic progress reports
	Logger         logging.Logger
	ReportInterval time.Duration
}

// OperationMix defines the relative weight of each operation
type OperationMix struct {
	InvokeTool   float64
	ReadTemplate float64
	ListTools    float64
	Ping         float64
}

// LoadTestResult contains the results of a load test
type LoadTestResult struct {
	TotalRequests      int64
	SuccessfulRequests int64
	FailedRequests     int64
	TotalDuration      time.Duration

	MinLatency time.Duration
	MaxLatency time.Duration
	AvgLatency time.Duration
	P50Latency time.Duration
	P90Latency time.Duration
	P99Latency time.Duration

	RequestsPerSecond float64

	// ErrorCounts is keyed by error kind
	ErrorCounts map[mcperrors.Kind]int64

	OperationMetrics map[string]*OperationMetrics
}

// OperationMetrics tracks metrics for one operation
type OperationMetrics struct {
	Count      int64
	Successful int64
	Failed     int64
	TotalTime  time.Duration

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *OperationMetrics) record(d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Count++
	m.TotalTime += d
	if err != nil {
		m.Failed++
	} else {
		m.Successful++
	}
	m.latencies = append(m.latencies, d)
}

// LoadTester drives in-process agents against a provider
type LoadTester struct {
	config LoadTestConfig
	setup  func(*server.Server) error

	totalRequests      int64
	successfulRequests int64
	failedRequests     int64

	mu          sync.Mutex
	errorCounts map[mcperrors.Kind]int64
	operations  map[string]*OperationMetrics
}

// NewLoadTester creates a load tester. setup registers the provider's
// capabilities; it is called once per agent session.
func NewLoadTester(config LoadTestConfig, setup func(*server.Server) error) *LoadTester {
	if config.Clients <= 0 {
		config.Clients = 1
	}
	if config.ReportInterval == 0 {
		config.ReportInterval = 5 * time.Second
	}
	if config.Logger == nil {
		config.Logger = logging.NewNop()
	}

	mix := &config.OperationMix
	total := mix.InvokeTool + mix.ReadTemplate + mix.ListTools + mix.Ping
	if total == 0 {
		*mix = OperationMix{InvokeTool: 50, ReadTemplate: 30, ListTools: 15, Ping: 5}
		total = 100
	}
	mix.InvokeTool /= total
	mix.ReadTemplate /= total
	mix.ListTools /= total
	mix.Ping /= total

	return &LoadTester{
		config:      config,
		setup:       setup,
		errorCounts: make(map[mcperrors.Kind]int64),
		operations:  make(map[string]*OperationMetrics),
	}
}

type agent struct {
	client *client.Client
	server *server.Server
	rng    *rand.Rand
}

func (a *agent) close() {
	_ = a.client.Close()
	_ = a.server.Close()
}

// Run executes the load test
func (lt *LoadTester) Run(ctx context.Context) (*LoadTestResult, error) {
	agents := make([]*agent, 0, lt.config.Clients)
	defer func() {
		for _, a := range agents {
			a.close()
		}
	}()
	for i := 0; i < lt.config.Clients; i++ {
		a, err := lt.connect(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("connect agent %d: %w", i, err)
		}
		agents = append(agents, a)
	}

	runCtx := ctx
	if lt.config.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, lt.config.Duration)
		defer cancel()
	}
	stopReports := lt.reportProgress(runCtx)
	defer stopReports()

	limiter := lt.rateLimiter(runCtx)
	start := time.Now()

	g, gctx := errgroup.WithContext(runCtx)
	for i, a := range agents {
		a := a
		g.Go(func() error {
			lt.runAgent(gctx, a, limiter)
			return nil
		})
		if lt.config.RampUpTime > 0 && i < len(agents)-1 {
			select {
			case <-time.After(lt.config.RampUpTime / time.Duration(len(agents)-1)):
			case <-gctx.Done():
			}
		}
	}
	_ = g.Wait()

	return lt.results(time.Since(start)), nil
}

func (lt *LoadTester) connect(ctx context.Context, id int) (*agent, error) {
	a, b := transport.NewPipe()
	srv := server.New(b, server.WithName("load-test-provider"))
	if lt.setup != nil {
		if err := lt.setup(srv); err != nil {
			return nil, err
		}
	}
	srv.Start()

	c := client.New(a, client.WithName(fmt.Sprintf("load-test-agent-%d", id)))
	if _, err := c.Connect(ctx); err != nil {
		_ = c.Close()
		_ = srv.Close()
		return nil, err
	}
	if _, err := c.ListTools(ctx); err != nil {
		_ = c.Close()
		_ = srv.Close()
		return nil, err
	}
	return &agent{client: c, server: srv, rng: rand.New(rand.NewSource(int64(id) + 1))}, nil
}

func (lt *LoadTester) runAgent(ctx context.Context, a *agent, limiter <-chan struct{}) {
	for n := 0; lt.config.RequestsPerClient <= 0 || n < lt.config.RequestsPerClient; n++ {
		if limiter != nil {
			select {
			case <-limiter:
			case <-ctx.Done():
				return
			}
		}
		if ctx.Err() != nil {
			return
		}
		lt.execute(ctx, a, lt.selectOperation(a.rng.Float64()), n)
	}
}

func (lt *LoadTester) selectOperation(r float64) string {
	mix := lt.config.OperationMix
	switch {
	case r < mix.InvokeTool:
		return OpInvokeTool
	case r < mix.InvokeTool+mix.ReadTemplate:
		return OpReadTemplate
	case r < mix.InvokeTool+mix.ReadTemplate+mix.ListTools:
		return OpListTools
	default:
		return OpPing
	}
}

func (lt *LoadTester) execute(ctx context.Context, a *agent, op string, n int) {
	start := time.Now()
	var err error
	switch op {
	case OpInvokeTool:
		args := json.RawMessage(fmt.Sprintf(`{"a":%d,"b":0.5}`, n))
		_, err = a.client.InvokeTool(ctx, "add", args)
	case OpReadTemplate:
		_, err = a.client.ReadTemplate(ctx, "user://{user_id}", map[string]string{"user_id": fmt.Sprint(n)})
	case OpListTools:
		_, err = a.client.ListTools(ctx)
	case OpPing:
		err = a.client.Ping(ctx)
	}
	d := time.Since(start)

	// requests cut short by the end of the run are not failures
	if err != nil && ctx.Err() != nil {
		return
	}
	atomic.AddInt64(&lt.totalRequests, 1)
	lt.metrics(op).record(d, err)
	if err != nil {
		atomic.AddInt64(&lt.failedRequests, 1)
		lt.mu.Lock()
		lt.errorCounts[mcperrors.KindOf(err)]++
		lt.mu.Unlock()
		return
	}
	atomic.AddInt64(&lt.successfulRequests, 1)
}

func (lt *LoadTester) metrics(op string) *OperationMetrics {
	lt.mu.Lock()
	defer lt.mu.Unlock()
	m, ok := lt.operations[op]
	if !ok {
		m = &OperationMetrics{}
		lt.operations[op] = m
	}
	return m
}

// rateLimiter hands out one token per interval until ctx ends
func (lt *LoadTester) rateLimiter(ctx context.Context) <-chan struct{} {
	if lt.config.RateLimit <= 0 {
		return nil
	}
	ch := make(chan struct{})
	go func() {
		ticker := time.NewTicker(time.Second / time.Duration(lt.config.RateLimit))
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case ch <- struct{}{}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func (lt *LoadTester) reportProgress(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(lt.config.ReportInterval)
		defer ticker.Stop()

		last, lastTime := int64(0), time.Now()
		for {
			select {
			case now := <-ticker.C:
				current := atomic.LoadInt64(&lt.totalRequests)
				rps := float64(current-last) / now.Sub(lastTime).Seconds()
				lt.config.Logger.Info("load test progress",
					logging.Any("requests", current),
					logging.Float64("rps", rps),
					logging.Any("failed", atomic.LoadInt64(&lt.failedRequests)),
				)
				last, lastTime = current, now
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (lt *LoadTester) results(elapsed time.Duration) *LoadTestResult {
	res := &LoadTestResult{
		TotalRequests:      atomic.LoadInt64(&lt.totalRequests),
		SuccessfulRequests: atomic.LoadInt64(&lt.successfulRequests),
		FailedRequests:     atomic.LoadInt64(&lt.failedRequests),
		TotalDuration:      elapsed,
		ErrorCounts:        make(map[mcperrors.Kind]int64),
		OperationMetrics:   make(map[string]*OperationMetrics),
	}
	if elapsed > 0 {
		res.RequestsPerSecond = float64(res.TotalRequests) / elapsed.Seconds()
	}

	lt.mu.Lock()
	defer lt.mu.Unlock()
	for k, v := range lt.errorCounts {
		res.ErrorCounts[k] = v
	}
	var all []time.Duration
	for op, m := range lt.operations {
		res.OperationMetrics[op] = m
		all = append(all, m.latencies...)
	}
	if len(all) == 0 {
		return res
	}

	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	var sum time.Duration
	for _, d := range all {
		sum += d
	}
	res.MinLatency = all[0]
	res.MaxLatency = all[len(all)-1]
	res.AvgLatency = sum / time.Duration(len(all))
	res.P50Latency = percentile(all, 50)
	res.P90Latency = percentile(all, 90)
	res.P99Latency = percentile(all, 99)
	return res
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	i := int(math.Ceil(float64(len(sorted))*p/100)) - 1
	if i < 0 {
		i = 0
	}
	if i >= len(sorted) {
		i = len(sorted) - 1
	}
	return sorted[i]
}

// WriteTo prints the results in a readable format
func (r *LoadTestResult) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	fmt.Fprintln(cw, "=== Load Test Results ===")
	fmt.Fprintf(cw, "Total Duration: %s\n", r.TotalDuration)
	fmt.Fprintf(cw, "Total Requests: %d (%d failed)\n", r.TotalRequests, r.FailedRequests)
	fmt.Fprintf(cw, "Requests/sec: %.2f\n", r.RequestsPerSecond)
	fmt.Fprintf(cw, "Latency: min %s avg %s p50 %s p90 %s p99 %s max %s\n",
		r.MinLatency, r.AvgLatency, r.P50Latency, r.P90Latency, r.P99Latency, r.MaxLatency)

	ops := make([]string, 0, len(r.OperationMetrics))
	for op := range r.OperationMetrics {
		ops = append(ops, op)
	}
	sort.Strings(ops)
	for _, op := range ops {
		m := r.OperationMetrics[op]
		fmt.Fprintf(cw, "  %s: %d calls, %d failed, avg %s\n", op, m.Count, m.Failed, m.TotalTime/time.Duration(m.Count))
	}
	for kind, count := range r.ErrorCounts {
		fmt.Fprintf(cw, "  error %s: %d\n", kind, count)
	}
	return cw.n, cw.err
}

type countingWriter struct {
	w   io.Writer
	n   int64
	err error
}

func (c *countingWriter) Write(p []byte) (int, error) {
	if c.err != nil {
		return 0, c.err
	}
	n, err := c.w.Write(p)
	c.n += int64(n)
	c.err = err
	return n, err
}
