// Package session implements the symmetric JSON-RPC machinery shared by both
// peers: request correlation, timeouts and cancellation, notification
// dispatch and serving peer-initiated requests.
//
// A Session owns one transport. Outbound requests register a pending entry
// keyed by request id and block until the single read loop delivers the
// matching response, the request times out, or the caller's context ends.
// Inbound requests run on their own goroutines, bounded by a semaphore, and
// inbound notifications are handed to a dedicated worker so handlers never
// stall the read loop.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

// RequestHandler serves one peer-initiated request. The returned value is
// marshalled as the result; an error becomes a JSON-RPC error response.
type RequestHandler func(ctx context.Context, params json.RawMessage) (interface{}, error)

// NotificationHandler consumes one inbound notification
type NotificationHandler func(ctx context.Context, params json.RawMessage)

type result struct {
	resp *protocol.Response
	err  error
}

type pendingRequest struct {
	method  string
	created time.Time
	ch      chan result // capacity 1, written at most once
}

// queuedNotification is either an inbound notification or a barrier
// closed once everything queued before it has been handled.
type queuedNotification struct {
	n       *protocol.Notification
	barrier chan struct{}
}

type inflightRequest struct {
	cancel          context.CancelFunc
	cancelledByPeer atomic.Bool
}

// Session is one live connection between an agent and a provider
type Session struct {
	id        string
	role      Role
	transport transport.Transport
	logger    logging.Logger
	metrics   *observability.Metrics
	tracer    trace.Tracer
	timeout   time.Duration
	idPrefix  string
	nextID    atomic.Int64

	maxHandlers int64
	queueSize   int
	sem         *semaphore.Weighted
	notifyQueue chan queuedNotification

	handlersMu           sync.RWMutex
	requestHandlers      map[string]RequestHandler
	notificationHandlers map[string][]NotificationHandler

	mu       sync.Mutex
	pending  map[protocol.ID]*pendingRequest
	inflight map[protocol.ID]*inflightRequest
	closed   bool
	closeErr error

	initialized atomic.Bool
	peerMu      sync.RWMutex
	peer        *protocol.InitializeResult

	onProtocolError func(error)

	ctx       context.Context
	cancel    context.CancelFunc
	startOnce sync.Once
	closeOnce sync.Once
	started   atomic.Bool
	loopsDone chan struct{}
	done      chan struct{}
}

// New creates a session over t. Register handlers, then call Start.
func New(t transport.Transport, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:                   uuid.NewString(),
		role:                 RoleClient,
		transport:            t,
		logger:               logging.NewNop(),
		tracer:               observability.Tracer(),
		timeout:              DefaultRequestTimeout,
		idPrefix:             "req",
		maxHandlers:          DefaultMaxConcurrentHandlers,
		queueSize:            DefaultNotificationQueue,
		requestHandlers:      make(map[string]RequestHandler),
		notificationHandlers: make(map[string][]NotificationHandler),
		pending:              make(map[protocol.ID]*pendingRequest),
		inflight:             make(map[protocol.ID]*inflightRequest),
		ctx:                  ctx,
		cancel:               cancel,
		loopsDone:            make(chan struct{}),
		done:                 make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.logger = s.logger.WithFields(
		logging.String(logging.ComponentKey, "session"),
		logging.String(logging.SessionIDKey, s.id),
		logging.String("role", string(s.role)),
	)
	s.sem = semaphore.NewWeighted(s.maxHandlers)
	s.notifyQueue = make(chan queuedNotification, s.queueSize)

	s.OnRequest(protocol.MethodPing, func(context.Context, json.RawMessage) (interface{}, error) {
		return protocol.EmptyResult{}, nil
	})
	return s
}

// ID returns the session's unique id
func (s *Session) ID() string { return s.id }

// Role returns which side of the handshake this session plays
func (s *Session) Role() Role { return s.role }

// Logger returns the session-scoped logger
func (s *Session) Logger() logging.Logger { return s.logger }

// Done is closed once the session has shut down
func (s *Session) Done() <-chan struct{} { return s.done }

// OnRequest installs the handler for a peer-initiated method, replacing any
// previous one.
func (s *Session) OnRequest(method string, handler RequestHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.requestHandlers[method] = handler
}

// OnNotification adds a handler for method. Every handler registered for a
// method sees every notification, in arrival order.
func (s *Session) OnNotification(method string, handler NotificationHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.notificationHandlers[method] = append(s.notificationHandlers[method], handler)
}

// Start launches the read loop and the notification worker
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		g, ctx := errgroup.WithContext(s.ctx)
		g.Go(func() error { return s.readLoop(ctx) })
		g.Go(func() error { return s.notificationLoop(ctx) })

		go func() {
			err := g.Wait()
			close(s.loopsDone)
			s.shutdown(err)
		}()
		s.logger.Debug("session started")
	})
}

// Close fails every pending request with ConnectionLost and closes the
// transport. It does not wait for handlers; use Wait for that.
func (s *Session) Close() error {
	s.shutdown(mcperrors.ConnectionLost("session closed locally", nil))
	return nil
}

// Wait blocks until the background loops exit and returns the reason the
// session ended.
func (s *Session) Wait() error {
	if s.started.Load() {
		<-s.loopsDone
	}
	<-s.done
	return s.Err()
}

// Err returns why the session closed, or nil while it is open
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeErr
}

// PendingCount returns the number of outbound requests awaiting a response
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Initialized reports whether the handshake has completed
func (s *Session) Initialized() bool {
	return s.initialized.Load()
}

// MarkInitialized records handshake completion for the responding side
func (s *Session) MarkInitialized() {
	s.initialized.Store(true)
}

// PeerInfo returns the provider's initialize result once the handshake is done
func (s *Session) PeerInfo() *protocol.InitializeResult {
	s.peerMu.RLock()
	defer s.peerMu.RUnlock()
	return s.peer
}

// Initialize performs the client side of the handshake: one initialize
// round-trip followed by notifications/initialized. Every failure is
// reported as a HandshakeError.
func (s *Session) Initialize(ctx context.Context, params protocol.InitializeParams) (*protocol.InitializeResult, error) {
	if params.ProtocolVersion == "" {
		params.ProtocolVersion = protocol.ProtocolRevision
	}

	raw, err := s.roundTrip(ctx, protocol.MethodInitialize, params)
	if err != nil {
		return nil, mcperrors.HandshakeFailed("initialize request failed", err)
	}

	var res protocol.InitializeResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperrors.HandshakeFailed("malformed initialize result", err)
	}
	if !protocol.IsSupportedVersion(res.ProtocolVersion) {
		return nil, mcperrors.HandshakeFailed(
			fmt.Sprintf("provider selected unsupported protocol version %q", res.ProtocolVersion), nil)
	}

	s.peerMu.Lock()
	s.peer = &res
	s.peerMu.Unlock()

	if err := s.Notify(ctx, protocol.MethodInitialized, nil); err != nil {
		return nil, mcperrors.HandshakeFailed("initialized notification failed", err)
	}
	s.initialized.Store(true)

	s.logger.Info("session initialized",
		logging.String("protocol_version", res.ProtocolVersion),
		logging.String("peer", res.ServerInfo.Name),
		logging.String("peer_version", res.ServerInfo.Version),
	)
	return &res, nil
}

// Ping checks that the peer is responsive
func (s *Session) Ping(ctx context.Context) error {
	_, err := s.Request(ctx, protocol.MethodPing, nil)
	return err
}

// Request sends method with params and waits for the matching response. On a
// client session every method except initialize and ping requires a completed
// handshake.
func (s *Session) Request(ctx context.Context, method string, params interface{}, opts ...RequestOption) (json.RawMessage, error) {
	if s.role == RoleClient && !s.initialized.Load() &&
		method != protocol.MethodInitialize && method != protocol.MethodPing {
		return nil, mcperrors.NotInitialized(method)
	}
	return s.roundTrip(ctx, method, params, opts...)
}

func (s *Session) roundTrip(ctx context.Context, method string, params interface{}, opts ...RequestOption) (raw json.RawMessage, err error) {
	cfg := requestConfig{timeout: s.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	id := protocol.StringID(fmt.Sprintf("%s_%d", s.idPrefix, s.nextID.Add(1)))
	req, err := protocol.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", method, err)
	}
	data, err := protocol.Encode(req)
	if err != nil {
		return nil, err
	}

	ctx, span := observability.StartMethodSpan(ctx, s.tracer, method, trace.SpanKindClient,
		attribute.String("mcp.request_id", id.String()))
	start := time.Now()
	defer func() {
		s.metrics.RecordRequest(method, time.Since(start), err)
		observability.EndSpan(span, err)
	}()

	ch := make(chan result, 1)
	s.mu.Lock()
	if s.closed {
		err = s.closeErr
		s.mu.Unlock()
		return nil, err
	}
	s.pending[id] = &pendingRequest{method: method, created: start, ch: ch}
	s.mu.Unlock()
	s.metrics.AddPending(1)

	if sendErr := s.transport.Send(ctx, data); sendErr != nil {
		if !s.removePending(id) {
			return unpack(<-ch)
		}
		if ctx.Err() != nil {
			return nil, mcperrors.RequestCancelled(method, id.String(), ctx.Err())
		}
		return nil, mcperrors.ConnectionLost(fmt.Sprintf("send %s", method), sendErr)
	}

	var timeout <-chan time.Time
	if cfg.timeout > 0 {
		timer := time.NewTimer(cfg.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case r := <-ch:
		return unpack(r)
	case <-timeout:
		return s.abandon(id, ch, mcperrors.RequestTimeout(method, id.String(), cfg.timeout), "request timed out")
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return s.abandon(id, ch, mcperrors.RequestTimeout(method, id.String(), time.Since(start)), "request timed out")
		}
		return s.abandon(id, ch, mcperrors.RequestCancelled(method, id.String(), ctx.Err()), "request cancelled")
	}
}

// abandon gives up on a pending request. If the read loop resolved it first
// the response wins.
func (s *Session) abandon(id protocol.ID, ch chan result, cause error, reason string) (json.RawMessage, error) {
	if !s.removePending(id) {
		return unpack(<-ch)
	}
	s.logger.Debug(reason, logging.String("id", id.String()))
	s.sendCancel(id, reason)
	return nil, cause
}

func unpack(r result) (json.RawMessage, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.resp.Error != nil {
		return nil, r.resp.Error.AsError()
	}
	return r.resp.Result, nil
}

func (s *Session) removePending(id protocol.ID) bool {
	s.mu.Lock()
	_, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		s.metrics.AddPending(-1)
	}
	return ok
}

func (s *Session) sendCancel(id protocol.ID, reason string) {
	ctx, cancel := context.WithTimeout(s.ctx, cancelNotifyTimeout)
	defer cancel()
	params := protocol.CancelledParams{RequestID: id, Reason: reason}
	if err := s.Notify(ctx, protocol.MethodCancelled, params); err != nil {
		s.logger.WithError(err).Debug("failed to notify peer of cancellation", logging.String("id", id.String()))
	}
}

// Notify sends a notification without waiting for anything in return
func (s *Session) Notify(ctx context.Context, method string, params interface{}) error {
	n, err := protocol.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("encode %s: %w", method, err)
	}
	data, err := protocol.Encode(n)
	if err != nil {
		return err
	}

	s.mu.Lock()
	closed, closeErr := s.closed, s.closeErr
	s.mu.Unlock()
	if closed {
		return closeErr
	}

	if err := s.transport.Send(ctx, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return mcperrors.ConnectionLost(fmt.Sprintf("send %s", method), err)
	}
	s.metrics.RecordNotification("out", method)
	return nil
}

func (s *Session) readLoop(ctx context.Context) error {
	for {
		data, err := s.transport.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return mcperrors.ConnectionLost("transport receive failed", err)
		}
		s.dispatch(ctx, data)
	}
}

// dispatch routes one inbound frame. It never blocks on handler execution.
func (s *Session) dispatch(ctx context.Context, data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.metrics.RecordProtocolError()
		s.logger.WithError(err).Warn("dropping malformed message", logging.Int("bytes", len(data)))
		if s.onProtocolError != nil {
			s.onProtocolError(err)
		}
		return
	}

	switch m := msg.(type) {
	case *protocol.Response:
		s.resolve(m)
	case *protocol.Notification:
		s.enqueueNotification(ctx, m)
	case *protocol.Request:
		s.serve(ctx, m)
	}
}

func (s *Session) resolve(resp *protocol.Response) {
	s.mu.Lock()
	p, ok := s.pending[resp.ID]
	if ok {
		delete(s.pending, resp.ID)
	}
	s.mu.Unlock()

	if !ok {
		s.metrics.RecordUnmatchedResponse()
		s.logger.Warn("response matched no pending request", logging.String("id", resp.ID.String()))
		return
	}
	s.metrics.AddPending(-1)
	p.ch <- result{resp: resp}
}

func (s *Session) enqueueNotification(ctx context.Context, n *protocol.Notification) {
	s.metrics.RecordNotification("in", n.Method)

	// Cancellation takes effect immediately rather than queueing behind other notifications
	if n.Method == protocol.MethodCancelled {
		s.cancelInbound(n)
		return
	}

	select {
	case s.notifyQueue <- queuedNotification{n: n}:
	case <-ctx.Done():
	}
}

// SyncNotifications waits until every notification received before the
// call has been handed to its handlers. A caller that got a response can
// use it to observe the progress and log records the peer sent first.
func (s *Session) SyncNotifications(ctx context.Context) error {
	barrier := make(chan struct{})
	select {
	case s.notifyQueue <- queuedNotification{barrier: barrier}:
	case <-s.ctx.Done():
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-s.loopsDone:
		return s.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) cancelInbound(n *protocol.Notification) {
	var params protocol.CancelledParams
	if err := json.Unmarshal(n.Params, &params); err != nil || params.RequestID.IsZero() {
		s.logger.Warn("ignoring malformed cancellation", logging.String("params", string(n.Params)))
		return
	}

	s.mu.Lock()
	entry, ok := s.inflight[params.RequestID]
	s.mu.Unlock()
	if !ok {
		s.logger.Debug("cancellation for unknown or finished request", logging.String("id", params.RequestID.String()))
		return
	}
	entry.cancelledByPeer.Store(true)
	entry.cancel()
	s.logger.Debug("peer cancelled request",
		logging.String("id", params.RequestID.String()),
		logging.String("reason", params.Reason),
	)
}

func (s *Session) notificationLoop(ctx context.Context) error {
	for {
		select {
		case q := <-s.notifyQueue:
			s.deliverQueued(ctx, q)
		case <-ctx.Done():
			// Deliver what already arrived, e.g. a provider's last log line before exit
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case q := <-s.notifyQueue:
					s.deliverQueued(drainCtx, q)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Session) deliverQueued(ctx context.Context, q queuedNotification) {
	if q.barrier != nil {
		close(q.barrier)
		return
	}
	s.deliverNotification(ctx, q.n)
}

func (s *Session) deliverNotification(ctx context.Context, n *protocol.Notification) {
	s.handlersMu.RLock()
	handlers := append([]NotificationHandler(nil), s.notificationHandlers[n.Method]...)
	s.handlersMu.RUnlock()

	if len(handlers) == 0 {
		s.logger.Debug("no handler for notification", logging.String("method", n.Method))
		return
	}
	for _, handler := range handlers {
		s.notifySafely(ctx, n, handler)
	}
}

func (s *Session) notifySafely(ctx context.Context, n *protocol.Notification, handler NotificationHandler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("notification handler panicked",
				logging.String("method", n.Method),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	handler(ctx, n.Params)
}

func (s *Session) serve(ctx context.Context, req *protocol.Request) {
	s.handlersMu.RLock()
	handler, ok := s.requestHandlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.logger.Debug("no handler for request", logging.String("method", req.Method))
		handler = func(context.Context, json.RawMessage) (interface{}, error) {
			return nil, mcperrors.MethodNotFound(req.Method)
		}
	}

	reqCtx, cancel := context.WithCancel(ctx)
	entry := &inflightRequest{cancel: cancel}
	s.mu.Lock()
	s.inflight[req.ID] = entry
	s.mu.Unlock()

	go s.runHandler(reqCtx, entry, req, handler)
}

func (s *Session) runHandler(ctx context.Context, entry *inflightRequest, req *protocol.Request, handler RequestHandler) {
	defer func() {
		s.mu.Lock()
		if s.inflight[req.ID] == entry {
			delete(s.inflight, req.ID)
		}
		s.mu.Unlock()
		entry.cancel()
	}()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.sem.Release(1)

	ctx = withSession(withRequestID(ctx, req.ID), s)
	ctx = logging.ContextWithRequestID(logging.ContextWithSessionID(ctx, s.id), req.ID.String())
	ctx, span := observability.StartMethodSpan(ctx, s.tracer, req.Method, trace.SpanKindServer,
		attribute.String("mcp.request_id", req.ID.String()))

	start := time.Now()
	res, err := s.invoke(ctx, req, handler)
	s.metrics.RecordInboundRequest(req.Method, time.Since(start), err)
	observability.EndSpan(span, err)

	if entry.cancelledByPeer.Load() {
		s.logger.Debug("dropping response to cancelled request", logging.String("id", req.ID.String()))
		return
	}

	var resp *protocol.Response
	if err != nil {
		resp = protocol.NewErrorResponseFrom(req.ID, err)
	} else if resp, err = protocol.NewResponse(req.ID, res); err != nil {
		resp = protocol.NewErrorResponseFrom(req.ID, mcperrors.Internal("encode "+req.Method+" result", err))
	}
	s.reply(resp)
}

func (s *Session) invoke(ctx context.Context, req *protocol.Request, handler RequestHandler) (res interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("request handler panicked",
				logging.String("method", req.Method),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())),
			)
			res = nil
			err = mcperrors.Internal("handle "+req.Method, fmt.Errorf("panic: %v", r))
		}
	}()
	return handler(ctx, req.Params)
}

func (s *Session) reply(resp *protocol.Response) {
	data, err := protocol.Encode(resp)
	if err != nil {
		s.logger.WithError(err).Error("failed to encode response", logging.String("id", resp.ID.String()))
		return
	}
	if err := s.transport.Send(s.ctx, data); err != nil {
		s.logger.WithError(err).Debug("failed to send response", logging.String("id", resp.ID.String()))
	}
}

// shutdown runs once, whichever of Close or a transport failure comes first
func (s *Session) shutdown(cause error) {
	s.closeOnce.Do(func() {
		if cause == nil {
			cause = mcperrors.ConnectionLost("session closed", nil)
		}

		s.mu.Lock()
		s.closed = true
		s.closeErr = cause
		pending := s.pending
		s.pending = make(map[protocol.ID]*pendingRequest)
		s.mu.Unlock()

		s.cancel()
		if err := s.transport.Close(); err != nil {
			s.logger.WithError(err).Debug("transport close failed")
		}

		for _, p := range pending {
			p.ch <- result{err: mcperrors.ConnectionLost(fmt.Sprintf("no response to %s", p.method), cause)}
		}
		s.metrics.AddPending(-len(pending))

		s.logger.WithError(cause).Info("session closed", logging.Int("abandoned_requests", len(pending)))
		close(s.done)
	})
}
