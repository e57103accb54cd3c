package transport

import (
	"context"
	"time"

	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
)

// Middleware wraps a transport to add behavior around every frame
type Middleware func(Transport) Transport

// Chain applies middleware so that the first one listed is the outermost.
func Chain(t Transport, middleware ...Middleware) Transport {
	for i := len(middleware) - 1; i >= 0; i-- {
		t = middleware[i](t)
	}
	return t
}

// Direction of a frame relative to the local peer
type Direction string

const (
	DirectionSend    Direction = "send"
	DirectionReceive Direction = "receive"
)

// FrameObserver receives one callback per frame. Implementations must be
// safe for concurrent use.
type FrameObserver interface {
	ObserveFrame(direction Direction, size int, duration time.Duration, err error)
}

type observedTransport struct {
	next     Transport
	observer FrameObserver
}

// Observe reports every Send and Receive to observer.
func Observe(observer FrameObserver) Middleware {
	return func(next Transport) Transport {
		return &observedTransport{next: next, observer: observer}
	}
}

func (o *observedTransport) Send(ctx context.Context, data []byte) error {
	start := time.Now()
	err := o.next.Send(ctx, data)
	o.observer.ObserveFrame(DirectionSend, len(data), time.Since(start), err)
	return err
}

func (o *observedTransport) Receive(ctx context.Context) ([]byte, error) {
	start := time.Now()
	data, err := o.next.Receive(ctx)
	o.observer.ObserveFrame(DirectionReceive, len(data), time.Since(start), err)
	return data, err
}

func (o *observedTransport) Close() error { return o.next.Close() }

// maxLoggedFrame truncates frame bodies in debug logs
const maxLoggedFrame = 512

type loggedTransport struct {
	next   Transport
	logger logging.Logger
}

// Log writes every frame to logger at debug level.
func Log(logger logging.Logger) Middleware {
	return func(next Transport) Transport {
		return &loggedTransport{next: next, logger: logger.WithFields(logging.String(logging.ComponentKey, "transport"))}
	}
}

func (l *loggedTransport) Send(ctx context.Context, data []byte) error {
	err := l.next.Send(ctx, data)
	if err != nil {
		l.logger.WithError(err).Debug("send failed", logging.Int("bytes", len(data)))
		return err
	}
	l.logger.Debug("-> "+truncate(data), logging.Int("bytes", len(data)))
	return nil
}

func (l *loggedTransport) Receive(ctx context.Context) ([]byte, error) {
	data, err := l.next.Receive(ctx)
	if err != nil {
		return nil, err
	}
	l.logger.Debug("<- "+truncate(data), logging.Int("bytes", len(data)))
	return data, nil
}

func (l *loggedTransport) Close() error { return l.next.Close() }

func truncate(data []byte) string {
	if len(data) <= maxLoggedFrame {
		return string(data)
	}
	return string(data[:maxLoggedFrame]) + "..."
}
