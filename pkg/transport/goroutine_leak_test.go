package transport

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-agent-go/pkg/utils"
)

// TestStdioTransportGoroutineLeak tests for goroutine leaks in StdioTransport
func TestStdioTransportGoroutineLeak(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).
		SetAllowedGrowth(1).
		SetStabilizeDelay(100 * time.Millisecond).
		Start()

	for i := 0; i < 5; i++ {
		inReader, inWriter := io.Pipe()
		outReader, outWriter := io.Pipe()
		go func() { _, _ = io.Copy(io.Discard, outReader) }()

		tr := NewStdioTransport(inReader, outWriter)
		require.NoError(t, tr.Send(context.Background(), []byte(`{"jsonrpc":"2.0","method":"ping","id":1}`)))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, _ = tr.Receive(ctx)
		cancel()

		require.NoError(t, tr.Close())
		_ = inWriter.Close()
		_ = outWriter.Close()
	}

	detector.Check()
}

// TestPipeGoroutineLeak verifies blocked pipe calls return on close
func TestPipeGoroutineLeak(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).
		SetStabilizeDelay(100 * time.Millisecond).
		Start()

	for i := 0; i < 5; i++ {
		a, b := NewPipeWithBuffer(1)
		done := make(chan struct{})
		go func() {
			defer close(done)
			_, _ = b.Receive(context.Background())
			_, _ = b.Receive(context.Background())
		}()
		require.NoError(t, a.Send(context.Background(), []byte("x")))
		require.NoError(t, a.Close())
		<-done
	}

	detector.Check()
}
