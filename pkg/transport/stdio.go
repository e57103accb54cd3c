package transport

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// closeWait bounds how long Close waits for the read loop. A blocked read on
// a non-pollable file cannot always be interrupted.
const closeWait = time.Second

// StdioTransport implements Transport over a reader/writer pair with one JSON
// frame per line. This is the standard wiring when the agent spawns the
// provider as a subprocess.
type StdioTransport struct {
	reader   io.Reader
	writer   *bufio.Writer
	config   TransportConfig
	frames   chan []byte
	mutex    sync.Mutex // serializes writes
	done     chan struct{}
	stopOnce sync.Once
	group    *errgroup.Group

	errMu   sync.Mutex
	readErr error
}

// NewStdioTransport starts reading frames from r immediately. Frames are
// written to w.
func NewStdioTransport(r io.Reader, w io.Writer, config ...TransportConfig) *StdioTransport {
	cfg := DefaultTransportConfig(TransportTypeStdio)
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg = cfg.withDefaults()

	t := &StdioTransport{
		reader: r,
		writer: bufio.NewWriter(w),
		config: cfg,
		frames: make(chan []byte, cfg.ReceiveBuffer),
		done:   make(chan struct{}),
	}
	t.start()
	return t
}

// NewStdio returns a transport bound to the process's stdin and stdout.
func NewStdio() *StdioTransport {
	return NewStdioTransport(os.Stdin, os.Stdout)
}

func (t *StdioTransport) start() {
	g := &errgroup.Group{}
	scannerDone := make(chan struct{})

	g.Go(func() error {
		defer close(scannerDone)
		defer close(t.frames)

		scanner := bufio.NewScanner(t.reader)
		// Scanner enforces the larger of cap(buf) and max; one extra byte holds the newline.
		limit := t.config.MaxMessageSize + 1
		scanner.Buffer(make([]byte, 0, min(64*1024, limit)), limit)

		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			// Copy the line to avoid it being overwritten by the next Scan
			data := make([]byte, len(line))
			copy(data, line)

			select {
			case t.frames <- data:
			case <-t.done:
				return nil
			}
		}

		err := scanner.Err()
		if err == nil {
			err = io.EOF
		}
		t.setReadErr(err)
		return nil
	})

	// Unblock Scan when the transport is closed locally
	g.Go(func() error {
		select {
		case <-t.done:
			if closer, ok := t.reader.(io.Closer); ok {
				_ = closer.Close()
			}
		case <-scannerDone:
		}
		return nil
	})

	t.group = g
}

func (t *StdioTransport) setReadErr(err error) {
	t.errMu.Lock()
	t.readErr = err
	t.errMu.Unlock()
}

func (t *StdioTransport) endErr() error {
	t.errMu.Lock()
	defer t.errMu.Unlock()
	if t.readErr == nil || t.readErr == io.EOF {
		return fmt.Errorf("%w: %w", ErrClosed, io.EOF)
	}
	return fmt.Errorf("%w: stdio read: %w", ErrClosed, t.readErr)
}

// Receive returns the next frame.
func (t *StdioTransport) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-t.frames:
		if !ok {
			return nil, t.endErr()
		}
		return data, nil
	case <-t.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Send writes data followed by a newline and flushes.
func (t *StdioTransport) Send(ctx context.Context, data []byte) error {
	if bytes.IndexByte(data, '\n') >= 0 {
		return fmt.Errorf("stdio frame must not contain a newline")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("%w: stdio write: %w", ErrClosed, err)
	}
	if err := t.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("%w: stdio write: %w", ErrClosed, err)
	}
	if err := t.writer.Flush(); err != nil {
		return fmt.Errorf("%w: stdio flush: %w", ErrClosed, err)
	}
	return nil
}

// Close stops the read loop and flushes pending output. It is safe to call
// more than once.
func (t *StdioTransport) Close() error {
	var flushErr error
	t.stopOnce.Do(func() {
		t.mutex.Lock()
		close(t.done)
		flushErr = t.writer.Flush()
		t.mutex.Unlock()

		waited := make(chan struct{})
		go func() {
			_ = t.group.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(closeWait):
		}
	})
	return flushErr
}
