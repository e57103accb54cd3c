package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send and Receive once the transport is closed,
// either locally or because the peer went away.
var ErrClosed = errors.New("transport closed")

// Transport is a bidirectional frame channel. Send may be called concurrently
// with Receive and with other Send calls; Receive is called from a single
// read loop.
type Transport interface {
	// Send writes one frame.
	Send(ctx context.Context, data []byte) error

	// Receive blocks for the next frame. At end of stream it returns an
	// error wrapping ErrClosed, or the underlying read error.
	Receive(ctx context.Context) ([]byte, error)

	// Close releases resources and unblocks pending Receive calls.
	Close() error
}

// TransportType identifies the base transport implementation
type TransportType string

const (
	TransportTypeStdio   TransportType = "stdio"
	TransportTypeCommand TransportType = "command"
	TransportTypePipe    TransportType = "pipe"
)

const (
	// DefaultMaxMessageSize bounds a single frame.
	DefaultMaxMessageSize = 10 * 1024 * 1024
	// DefaultReceiveBuffer is the number of decoded-but-unread frames kept per transport.
	DefaultReceiveBuffer = 64
)

// TransportConfig carries settings shared by the stream-based transports
type TransportConfig struct {
	Type           TransportType `toml:"-"`
	MaxMessageSize int           `toml:"max_message_size"`
	ReceiveBuffer  int           `toml:"receive_buffer"`
}

// DefaultTransportConfig returns a config with defaults applied
func DefaultTransportConfig(transportType TransportType) TransportConfig {
	return TransportConfig{
		Type:           transportType,
		MaxMessageSize: DefaultMaxMessageSize,
		ReceiveBuffer:  DefaultReceiveBuffer,
	}
}

func (c TransportConfig) withDefaults() TransportConfig {
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = DefaultMaxMessageSize
	}
	if c.ReceiveBuffer <= 0 {
		c.ReceiveBuffer = DefaultReceiveBuffer
	}
	return c
}
