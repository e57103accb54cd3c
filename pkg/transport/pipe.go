package transport

import (
	"context"
	"sync"
)

type pipeShared struct {
	once   sync.Once
	closed chan struct{}
}

func (p *pipeShared) close() {
	p.once.Do(func() { close(p.closed) })
}

// pipeEnd is one side of an in-memory connection. Closing either side closes
// both, the way a dropped socket would.
type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	shared *pipeShared
}

// NewPipe returns two connected transports. Frames sent on one are received
// on the other, in order.
func NewPipe() (Transport, Transport) {
	return NewPipeWithBuffer(DefaultReceiveBuffer)
}

// NewPipeWithBuffer is NewPipe with an explicit per-direction buffer.
func NewPipeWithBuffer(size int) (Transport, Transport) {
	ab := make(chan []byte, size)
	ba := make(chan []byte, size)
	shared := &pipeShared{closed: make(chan struct{})}
	return &pipeEnd{in: ba, out: ab, shared: shared},
		&pipeEnd{in: ab, out: ba, shared: shared}
}

func (p *pipeEnd) Send(ctx context.Context, data []byte) error {
	select {
	case <-p.shared.closed:
		return ErrClosed
	default:
	}

	frame := make([]byte, len(data))
	copy(frame, data)

	select {
	case p.out <- frame:
		return nil
	case <-p.shared.closed:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *pipeEnd) Receive(ctx context.Context) ([]byte, error) {
	// frames already in flight are still delivered after close
	select {
	case data := <-p.in:
		return data, nil
	default:
	}

	select {
	case data := <-p.in:
		return data, nil
	case <-p.shared.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *pipeEnd) Close() error {
	p.shared.close()
	return nil
}
