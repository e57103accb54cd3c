package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdioTransport_ReceiveFrames(t *testing.T) {
	input := "{\"jsonrpc\":\"2.0\",\"method\":\"a\"}\n\n  \n{\"jsonrpc\":\"2.0\",\"method\":\"b\"}\n"
	tr := NewStdioTransport(strings.NewReader(input), io.Discard)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	first, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"a"}`, string(first))

	second, err := tr.Receive(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"b"}`, string(second))

	_, err = tr.Receive(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestStdioTransport_SendWritesLine(t *testing.T) {
	outR, outW := io.Pipe()
	tr := NewStdioTransport(strings.NewReader(""), outW)
	defer tr.Close()

	lines := make(chan string, 1)
	go func() {
		line, _ := bufio.NewReader(outR).ReadString('\n')
		lines <- line
	}()

	require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)))

	select {
	case line := <-lines:
		assert.Equal(t, "{\"jsonrpc\":\"2.0\",\"method\":\"ping\",\"id\":1}\n", line)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

func TestStdioTransport_SendRejectsEmbeddedNewline(t *testing.T) {
	tr := NewStdioTransport(strings.NewReader(""), io.Discard)
	defer tr.Close()

	err := tr.Send(context.Background(), []byte("{\n}"))
	assert.Error(t, err)
}

func TestStdioTransport_ConcurrentSendsDoNotInterleave(t *testing.T) {
	var buf safeBuffer
	tr := NewStdioTransport(strings.NewReader(""), &buf)
	defer tr.Close()

	frame := `{"jsonrpc":"2.0","method":"notifications/progress","params":{"progress":1}}`
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tr.Send(context.Background(), []byte(frame)))
		}()
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 50)
	for _, line := range lines {
		assert.Equal(t, frame, line)
	}
}

func TestStdioTransport_ReceiveHonorsContext(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	tr := NewStdioTransport(inR, io.Discard)
	defer tr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := tr.Receive(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStdioTransport_CloseUnblocksReceive(t *testing.T) {
	inR, inW := io.Pipe()
	defer inW.Close()
	tr := NewStdioTransport(inR, io.Discard)

	errs := make(chan error, 1)
	go func() {
		_, err := tr.Receive(context.Background())
		errs <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}

	assert.ErrorIs(t, tr.Send(context.Background(), []byte(`{}`)), ErrClosed)
}

func TestStdioTransport_OversizedFrame(t *testing.T) {
	cfg := DefaultTransportConfig(TransportTypeStdio)
	cfg.MaxMessageSize = 16
	tr := NewStdioTransport(strings.NewReader(strings.Repeat("x", 64)+"\n"), io.Discard, cfg)
	defer tr.Close()

	_, err := tr.Receive(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestStdioTransport_LimitBelowDefaultBuffer(t *testing.T) {
	cfg := DefaultTransportConfig(TransportTypeStdio)
	cfg.MaxMessageSize = 1024

	fits := strings.Repeat("y", 1024)
	tr := NewStdioTransport(strings.NewReader(fits+"\n"+strings.Repeat("x", 32*1024)+"\n"), io.Discard, cfg)
	defer tr.Close()

	frame, err := tr.Receive(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fits, string(frame))

	_, err = tr.Receive(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, bufio.ErrTooLong)
}

func TestTransportConfigDefaults(t *testing.T) {
	cfg := TransportConfig{Type: TransportTypePipe}.withDefaults()
	assert.Equal(t, DefaultMaxMessageSize, cfg.MaxMessageSize)
	assert.Equal(t, DefaultReceiveBuffer, cfg.ReceiveBuffer)
	assert.Equal(t, TransportTypePipe, cfg.Type)
}

type safeBuffer struct {
	mu sync.Mutex
	sb strings.Builder
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sb.String()
}
