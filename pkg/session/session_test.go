package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
	"github.com/ajitpratap0/mcp-agent-go/pkg/utils"
)

// rawPeer drives the far end of a pipe frame by frame
type rawPeer struct {
	t  *testing.T
	tr transport.Transport
}

func (p *rawPeer) next() protocol.Message {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	data, err := p.tr.Receive(ctx)
	require.NoError(p.t, err)
	msg, err := protocol.Decode(data)
	require.NoError(p.t, err)
	return msg
}

func (p *rawPeer) nextRequest() *protocol.Request {
	p.t.Helper()
	msg := p.next()
	req, ok := msg.(*protocol.Request)
	require.True(p.t, ok, "expected request, got %T", msg)
	return req
}

func (p *rawPeer) nextNotification() *protocol.Notification {
	p.t.Helper()
	msg := p.next()
	n, ok := msg.(*protocol.Notification)
	require.True(p.t, ok, "expected notification, got %T", msg)
	return n
}

func (p *rawPeer) nextResponse() *protocol.Response {
	p.t.Helper()
	msg := p.next()
	resp, ok := msg.(*protocol.Response)
	require.True(p.t, ok, "expected response, got %T", msg)
	return resp
}

func (p *rawPeer) send(msg protocol.Message) {
	p.t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(p.t, err)
	p.sendRaw(string(data))
}

func (p *rawPeer) sendRaw(frame string) {
	p.t.Helper()
	require.NoError(p.t, p.tr.Send(context.Background(), []byte(frame)))
}

func (p *rawPeer) respond(id protocol.ID, result interface{}) {
	p.t.Helper()
	resp, err := protocol.NewResponse(id, result)
	require.NoError(p.t, err)
	p.send(resp)
}

func newTestSession(t *testing.T, opts ...Option) (*Session, *rawPeer) {
	t.Helper()
	a, b := transport.NewPipe()
	s := New(a, opts...)
	s.MarkInitialized()
	s.Start()
	t.Cleanup(func() {
		_ = s.Close()
		_ = b.Close()
	})
	return s, &rawPeer{t: t, tr: b}
}

func counterValue(t *testing.T, m *observability.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := metric.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
	}
	return total
}

func TestRequestResponse(t *testing.T) {
	s, peer := newTestSession(t)

	type out struct {
		raw json.RawMessage
		err error
	}
	done := make(chan out, 1)
	go func() {
		raw, err := s.Request(context.Background(), "tools/list", map[string]string{"cursor": "c1"})
		done <- out{raw, err}
	}()

	req := peer.nextRequest()
	assert.Equal(t, "tools/list", req.Method)
	assert.Equal(t, "req_1", req.ID.String())
	assert.JSONEq(t, `{"cursor":"c1"}`, string(req.Params))
	peer.respond(req.ID, map[string]interface{}{"tools": []interface{}{}})

	got := <-done
	require.NoError(t, got.err)
	assert.JSONEq(t, `{"tools":[]}`, string(got.raw))
	assert.Equal(t, 0, s.PendingCount())
}

func TestNilTracerKeepsDefault(t *testing.T) {
	s, peer := newTestSession(t, WithTracer(nil))

	done := make(chan error, 1)
	go func() {
		_, err := s.Request(context.Background(), "ping", nil)
		done <- err
	}()
	req := peer.nextRequest()
	peer.respond(req.ID, protocol.EmptyResult{})
	require.NoError(t, <-done)
}

func TestConcurrentRequestsAnsweredInReverseOrder(t *testing.T) {
	s, peer := newTestSession(t)
	const n = 20

	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw, err := s.Request(context.Background(), "echo", map[string]int{"n": i})
			if assert.NoError(t, err) {
				results[i] = string(raw)
			}
		}(i)
	}

	reqs := make([]*protocol.Request, 0, n)
	for i := 0; i < n; i++ {
		reqs = append(reqs, peer.nextRequest())
	}
	for i := n - 1; i >= 0; i-- {
		peer.respond(reqs[i].ID, reqs[i].Params)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.JSONEq(t, fmt.Sprintf(`{"n":%d}`, i), results[i])
	}
	assert.Equal(t, 0, s.PendingCount())
}

func TestTimeoutRemovesPendingAndLateResponseIsUnmatched(t *testing.T) {
	metrics, err := observability.NewMetrics(observability.MetricsConfig{})
	require.NoError(t, err)
	var logs bytes.Buffer
	logger := logging.New(&syncWriter{w: &logs}, &logging.TextFormatter{DisableColors: true})

	s, peer := newTestSession(t, WithMetrics(metrics), WithLogger(logger))

	_, reqErr := s.Request(context.Background(), "slow", nil, WithTimeout(50*time.Millisecond))
	require.Error(t, reqErr)
	assert.True(t, mcperrors.Is(reqErr, mcperrors.KindTimeout), "got %v", reqErr)
	assert.Equal(t, 0, s.PendingCount())

	req := peer.nextRequest()
	cancelled := peer.nextNotification()
	assert.Equal(t, protocol.MethodCancelled, cancelled.Method)
	var params protocol.CancelledParams
	require.NoError(t, json.Unmarshal(cancelled.Params, &params))
	assert.Equal(t, req.ID, params.RequestID)

	peer.respond(req.ID, "too late")
	require.Eventually(t, func() bool {
		return counterValue(t, metrics, "mcp_session_unmatched_responses_total") == 1
	}, time.Second, 10*time.Millisecond)

	// session keeps working
	go func() {
		r := peer.nextRequest()
		peer.respond(r.ID, "pong")
	}()
	raw, err := s.Request(context.Background(), "after", nil)
	require.NoError(t, err)
	assert.Equal(t, `"pong"`, string(raw))
}

func TestContextCancellationNotifiesPeer(t *testing.T) {
	s, peer := newTestSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := s.Request(ctx, "long", nil)
		errs <- err
	}()

	req := peer.nextRequest()
	cancel()

	err := <-errs
	assert.True(t, mcperrors.Is(err, mcperrors.KindCancelled), "got %v", err)
	assert.Equal(t, mcperrors.CodeOperationCancelled, mustCode(t, err))

	n := peer.nextNotification()
	var params protocol.CancelledParams
	require.NoError(t, json.Unmarshal(n.Params, &params))
	assert.Equal(t, req.ID, params.RequestID)
	assert.Equal(t, "request cancelled", params.Reason)
	assert.Equal(t, 0, s.PendingCount())
}

func TestRemoteErrorPropagates(t *testing.T) {
	s, peer := newTestSession(t)

	errs := make(chan error, 1)
	go func() {
		_, err := s.Request(context.Background(), "tools/call", nil)
		errs <- err
	}()

	req := peer.nextRequest()
	resp, err := protocol.NewErrorResponse(req.ID, -32602, "Unknown tool: nope", map[string]string{"tool": "nope"})
	require.NoError(t, err)
	peer.send(resp)

	got := <-errs
	require.Error(t, got)
	assert.True(t, mcperrors.Is(got, mcperrors.KindRemote))
	assert.Equal(t, -32602, mustCode(t, got))
	assert.Contains(t, got.Error(), "Unknown tool: nope")
}

func TestInboundRequests(t *testing.T) {
	s, peer := newTestSession(t)
	s.OnRequest("sum", func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		var args struct{ A, B int }
		if err := json.Unmarshal(params, &args); err != nil {
			return nil, mcperrors.InvalidParams("sum", err)
		}
		id, ok := RequestIDFromContext(ctx)
		assert.True(t, ok)
		from, ok := FromContext(ctx)
		assert.True(t, ok)
		assert.Same(t, s, from)
		return map[string]interface{}{"sum": args.A + args.B, "id": id.String()}, nil
	})
	s.OnRequest("explode", func(context.Context, json.RawMessage) (interface{}, error) {
		panic("kaboom")
	})

	t.Run("handled", func(t *testing.T) {
		req, err := protocol.NewRequest(protocol.IntID(7), "sum", map[string]int{"A": 2, "B": 3})
		require.NoError(t, err)
		peer.send(req)

		resp := peer.nextResponse()
		assert.Equal(t, protocol.IntID(7), resp.ID)
		assert.True(t, resp.ID.IsNumber())
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `{"sum":5,"id":"7"}`, string(resp.Result))
	})

	t.Run("method not found", func(t *testing.T) {
		req, err := protocol.NewRequest(protocol.StringID("x"), "does/not/exist", nil)
		require.NoError(t, err)
		peer.send(req)

		resp := peer.nextResponse()
		require.NotNil(t, resp.Error)
		assert.Equal(t, mcperrors.CodeMethodNotFound, resp.Error.Code)
	})

	t.Run("panic becomes internal error", func(t *testing.T) {
		req, err := protocol.NewRequest(protocol.StringID("p"), "explode", nil)
		require.NoError(t, err)
		peer.send(req)

		resp := peer.nextResponse()
		require.NotNil(t, resp.Error)
		assert.Equal(t, mcperrors.CodeInternalError, resp.Error.Code)
	})

	t.Run("ping answered by default", func(t *testing.T) {
		req, err := protocol.NewRequest(protocol.IntID(99), protocol.MethodPing, nil)
		require.NoError(t, err)
		peer.send(req)

		resp := peer.nextResponse()
		require.Nil(t, resp.Error)
		assert.JSONEq(t, `{}`, string(resp.Result))
	})
}

func TestHandlerConcurrencyBound(t *testing.T) {
	s, peer := newTestSession(t,
		WithMaxConcurrentHandlers(1),
		WithNotificationQueue(4),
		WithIDPrefix("agent"),
	)
	var running, peak int32
	release := make(chan struct{})
	s.OnRequest("slow", func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		n := atomic.AddInt32(&running, 1)
		defer atomic.AddInt32(&running, -1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return protocol.EmptyResult{}, nil
	})

	for i := 1; i <= 2; i++ {
		req, err := protocol.NewRequest(protocol.IntID(int64(i)), "slow", nil)
		require.NoError(t, err)
		peer.send(req)
	}

	// reads continue while the second handler waits for a slot
	done := make(chan error, 1)
	go func() {
		_, err := s.Request(context.Background(), "echo", nil)
		done <- err
	}()
	out := peer.nextRequest()
	assert.Equal(t, "agent_1", out.ID.String())
	peer.respond(out.ID, map[string]string{})
	require.NoError(t, <-done)

	close(release)
	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		got[peer.nextResponse().ID.String()] = true
	}
	assert.Equal(t, map[string]bool{"1": true, "2": true}, got)
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestInboundCancellation(t *testing.T) {
	s, peer := newTestSession(t)

	started := make(chan struct{})
	stopped := make(chan error, 1)
	s.OnRequest("block", func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		close(started)
		<-ctx.Done()
		stopped <- ctx.Err()
		return "ignored", nil
	})

	req, err := protocol.NewRequest(protocol.StringID("b1"), "block", nil)
	require.NoError(t, err)
	peer.send(req)
	<-started

	n, err := protocol.NewNotification(protocol.MethodCancelled, protocol.CancelledParams{RequestID: protocol.StringID("b1"), Reason: "user"})
	require.NoError(t, err)
	peer.send(n)

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}

	// No response for the cancelled request: the next frame is the ping reply
	ping, err := protocol.NewRequest(protocol.StringID("after"), protocol.MethodPing, nil)
	require.NoError(t, err)
	peer.send(ping)
	resp := peer.nextResponse()
	assert.Equal(t, protocol.StringID("after"), resp.ID)
}

func TestMalformedMessageReportedAndSessionContinues(t *testing.T) {
	var reported atomic.Int32
	var lastErr atomic.Value
	s, peer := newTestSession(t, WithProtocolErrorHandler(func(err error) {
		reported.Add(1)
		lastErr.Store(err)
	}))

	peer.sendRaw(`{"jsonrpc":"2.0","id":1,`)
	peer.sendRaw(`{"jsonrpc":"2.0","id":2,"result":{},"error":{"code":1,"message":"x"}}`)

	require.Eventually(t, func() bool { return reported.Load() == 2 }, time.Second, 5*time.Millisecond)
	err, _ := lastErr.Load().(error)
	assert.True(t, mcperrors.Is(err, mcperrors.KindProtocol))

	go func() {
		r := peer.nextRequest()
		peer.respond(r.ID, "ok")
	}()
	raw, reqErr := s.Request(context.Background(), "still/alive", nil)
	require.NoError(t, reqErr)
	assert.Equal(t, `"ok"`, string(raw))
}

func TestConnectionLostFailsPendingRequests(t *testing.T) {
	s, peer := newTestSession(t)

	const n = 5
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := s.Request(context.Background(), "never", nil, WithTimeout(0))
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		peer.nextRequest()
	}
	require.NoError(t, peer.tr.Close())

	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			assert.True(t, mcperrors.Is(err, mcperrors.KindConnectionLost), "got %v", err)
		case <-time.After(2 * time.Second):
			t.Fatal("pending request not failed")
		}
	}

	waitErr := s.Wait()
	assert.True(t, mcperrors.Is(waitErr, mcperrors.KindConnectionLost))

	_, err := s.Request(context.Background(), "later", nil)
	assert.True(t, mcperrors.Is(err, mcperrors.KindConnectionLost))
	assert.True(t, mcperrors.Is(s.Notify(context.Background(), "later", nil), mcperrors.KindConnectionLost))
	assert.Equal(t, 0, s.PendingCount())
}

func TestNotificationsDeliveredInOrder(t *testing.T) {
	s, peer := newTestSession(t)

	var mu sync.Mutex
	var got []int
	var other atomic.Int32
	received := make(chan struct{}, 1)
	s.OnNotification(protocol.MethodProgress, func(_ context.Context, params json.RawMessage) {
		var p protocol.ProgressParams
		assert.NoError(t, json.Unmarshal(params, &p))
		mu.Lock()
		got = append(got, int(p.Progress))
		if len(got) == 100 {
			received <- struct{}{}
		}
		mu.Unlock()
	})
	s.OnNotification(protocol.MethodProgress, func(context.Context, json.RawMessage) {
		other.Add(1)
	})
	s.OnNotification(protocol.MethodLogMessage, func(context.Context, json.RawMessage) {
		panic("handlers must not take the session down")
	})

	for i := 0; i < 100; i++ {
		n, err := protocol.NewNotification(protocol.MethodProgress, protocol.ProgressParams{
			ProgressToken: protocol.StringID("tok"),
			Progress:      float64(i),
		})
		require.NoError(t, err)
		peer.send(n)
		if i == 50 {
			logN, err := protocol.NewNotification(protocol.MethodLogMessage, protocol.LogMessageParams{Level: protocol.LogLevelInfo})
			require.NoError(t, err)
			peer.send(logN)
		}
	}

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("notifications not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Eventually(t, func() bool { return other.Load() == 100 }, time.Second, 5*time.Millisecond)
}

func TestSyncNotificationsWaitsForEarlierNotifications(t *testing.T) {
	s, peer := newTestSession(t)

	release := make(chan struct{})
	var handled atomic.Int32
	s.OnNotification("slow", func(context.Context, json.RawMessage) {
		<-release
		handled.Add(1)
	})

	for i := 0; i < 3; i++ {
		n, err := protocol.NewNotification("slow", nil)
		require.NoError(t, err)
		peer.send(n)
	}
	// a request/response pair after the notifications proves they were read
	go func() {
		r := peer.nextRequest()
		peer.respond(r.ID, "ok")
	}()
	_, err := s.Request(context.Background(), "marker", nil)
	require.NoError(t, err)

	synced := make(chan error, 1)
	go func() { synced <- s.SyncNotifications(context.Background()) }()

	select {
	case <-synced:
		t.Fatal("sync returned before notifications were handled")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	require.NoError(t, <-synced)
	assert.Equal(t, int32(3), handled.Load())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.SyncNotifications(ctx), context.Canceled)
}

func TestInitializeHandshake(t *testing.T) {
	a, b := transport.NewPipe()
	s := New(a, WithRole(RoleClient))
	s.Start()
	defer s.Close()
	peer := &rawPeer{t: t, tr: b}

	_, err := s.Request(context.Background(), "tools/list", nil)
	require.Error(t, err)
	assert.True(t, mcperrors.Is(err, mcperrors.KindHandshake))

	type out struct {
		res *protocol.InitializeResult
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := s.Initialize(context.Background(), protocol.InitializeParams{
			ClientInfo: protocol.Implementation{Name: "agent", Version: "1.0"},
		})
		done <- out{res, err}
	}()

	req := peer.nextRequest()
	assert.Equal(t, protocol.MethodInitialize, req.Method)
	var params protocol.InitializeParams
	require.NoError(t, json.Unmarshal(req.Params, &params))
	assert.Equal(t, protocol.ProtocolRevision, params.ProtocolVersion)

	peer.respond(req.ID, protocol.InitializeResult{
		ProtocolVersion: protocol.ProtocolRevision,
		ServerInfo:      protocol.Implementation{Name: "demo", Version: "0.1"},
	})
	initialized := peer.nextNotification()
	assert.Equal(t, protocol.MethodInitialized, initialized.Method)

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "demo", got.res.ServerInfo.Name)
	assert.True(t, s.Initialized())
	assert.Equal(t, "demo", s.PeerInfo().ServerInfo.Name)
}

func TestInitializeFailures(t *testing.T) {
	tests := []struct {
		name  string
		reply func(p *rawPeer, id protocol.ID)
	}{
		{"version mismatch", func(p *rawPeer, id protocol.ID) {
			p.respond(id, protocol.InitializeResult{ProtocolVersion: "1999-01-01"})
		}},
		{"remote error", func(p *rawPeer, id protocol.ID) {
			resp, _ := protocol.NewErrorResponse(id, -32603, "nope", nil)
			p.send(resp)
		}},
		{"malformed result", func(p *rawPeer, id protocol.ID) {
			p.respond(id, []int{1, 2})
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, b := transport.NewPipe()
			s := New(a)
			s.Start()
			defer s.Close()
			peer := &rawPeer{t: t, tr: b}

			errs := make(chan error, 1)
			go func() {
				_, err := s.Initialize(context.Background(), protocol.InitializeParams{})
				errs <- err
			}()
			tt.reply(peer, peer.nextRequest().ID)

			err := <-errs
			require.Error(t, err)
			assert.True(t, mcperrors.Is(err, mcperrors.KindHandshake), "got %v", err)
			assert.False(t, s.Initialized())
		})
	}

	t.Run("timeout", func(t *testing.T) {
		a, _ := transport.NewPipe()
		s := New(a, WithRequestTimeout(30*time.Millisecond))
		s.Start()
		defer s.Close()

		_, err := s.Initialize(context.Background(), protocol.InitializeParams{})
		assert.True(t, mcperrors.Is(err, mcperrors.KindHandshake))
		assert.True(t, mcperrors.IsCategory(err, mcperrors.CategoryProtocol))
	})
}

func TestSessionToSession(t *testing.T) {
	a, b := transport.NewPipe()
	client := New(a, WithRole(RoleClient))
	server := New(b, WithRole(RoleServer))

	server.OnRequest(protocol.MethodInitialize, func(context.Context, json.RawMessage) (interface{}, error) {
		return protocol.InitializeResult{ProtocolVersion: protocol.ProtocolRevision}, nil
	})
	initialized := make(chan struct{})
	server.OnNotification(protocol.MethodInitialized, func(context.Context, json.RawMessage) {
		server.MarkInitialized()
		close(initialized)
	})
	// the provider calls back into the agent while serving a request
	server.OnRequest("tools/call", func(ctx context.Context, _ json.RawMessage) (interface{}, error) {
		from, _ := FromContext(ctx)
		raw, err := from.Request(ctx, protocol.MethodCreateMessage, map[string]string{"q": "hi"})
		if err != nil {
			return nil, err
		}
		return map[string]json.RawMessage{"sampled": raw}, nil
	})
	client.OnRequest(protocol.MethodCreateMessage, func(context.Context, json.RawMessage) (interface{}, error) {
		return "model says hi", nil
	})

	server.Start()
	client.Start()
	defer client.Close()
	defer server.Close()

	_, err := client.Initialize(context.Background(), protocol.InitializeParams{})
	require.NoError(t, err)
	<-initialized

	raw, err := client.Request(context.Background(), "tools/call", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sampled":"model says hi"}`, string(raw))
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, server.Ping(context.Background()))
}

func TestExactlyOneResolutionUnderRace(t *testing.T) {
	s, peer := newTestSession(t)

	const n = 50
	go func() {
		for i := 0; i < n; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			data, err := peer.tr.Receive(ctx)
			cancel()
			if err != nil {
				return
			}
			msg, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if req, ok := msg.(*protocol.Request); ok {
				// reply right around the caller's deadline
				go func(id protocol.ID) {
					time.Sleep(10 * time.Millisecond)
					resp, _ := protocol.NewResponse(id, "ok")
					data, _ := protocol.Encode(resp)
					_ = peer.tr.Send(context.Background(), data)
				}(req.ID)
			} else {
				i--
			}
		}
	}()

	var ok, timedOut atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Request(context.Background(), "race", nil, WithTimeout(10*time.Millisecond))
			switch {
			case err == nil:
				ok.Add(1)
			case mcperrors.Is(err, mcperrors.KindTimeout):
				timedOut.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(n), ok.Load()+timedOut.Load())
	assert.Equal(t, 0, s.PendingCount())
}

func TestSessionShutdownDoesNotLeak(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).
		SetAllowedGrowth(1).
		SetStabilizeDelay(100 * time.Millisecond).
		Start()

	for i := 0; i < 5; i++ {
		a, b := transport.NewPipe()
		client := New(a)
		server := New(b, WithRole(RoleServer))
		client.Start()
		server.Start()

		require.NoError(t, client.Ping(context.Background()))

		require.NoError(t, client.Close())
		assert.True(t, mcperrors.Is(client.Wait(), mcperrors.KindConnectionLost))
		server.Wait()
	}

	detector.Check()
}

func mustCode(t *testing.T, err error) int {
	t.Helper()
	mcpErr, ok := mcperrors.AsMCPError(err)
	require.True(t, ok, "not an MCPError: %v", err)
	return mcpErr.Code()
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
