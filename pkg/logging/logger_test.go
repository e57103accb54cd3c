package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

// TestLogger tests the basic logger functionality
func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(DebugLevel)

	logger.Debug("Debug message", String("key", "value"))
	logger.Info("Info message", Int("count", 42))
	logger.Warn("Warning message", Bool("flag", true))
	logger.Error("Error message", ErrorField(errors.New("test error")))

	output := buf.String()

	for _, want := range []string{
		"Debug message", "Info message", "Warning message", "Error message",
		"key=value", "count=42", "flag=true", "error=test error",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected %q in output:\n%s", want, output)
		}
	}
}

// TestLogLevels tests log level filtering
func TestLogLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(WarnLevel)

	logger.Debug("Debug message")
	logger.Info("Info message")
	logger.Warn("Warning message")
	logger.Error("Error message")

	output := buf.String()
	assert.NotContains(t, output, "Debug message")
	assert.NotContains(t, output, "Info message")
	assert.Contains(t, output, "Warning message")
	assert.Contains(t, output, "Error message")
}

func TestOffLevelAndNop(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())
	logger.SetLevel(OffLevel)
	logger.Error("should not appear")
	assert.Empty(t, buf.String())

	// must not panic or write anywhere
	nop := NewNop()
	nop.WithFields(String("a", "b")).Error("x")
	assert.Equal(t, OffLevel, nop.GetLevel())
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": DebugLevel, "INFO": InfoLevel, "": InfoLevel, "warning": WarnLevel,
		"warn": WarnLevel, "error": ErrorLevel, "off": OffLevel,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

// TestWithFields tests field inheritance
func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	base := New(&buf, NewTextFormatter())
	logger := base.WithFields(String("service", "agent"), String("version", "1.0.0"))

	logger.Info("Test message", String("operation", "test"))

	output := buf.String()
	assert.Contains(t, output, "service=agent")
	assert.Contains(t, output, "version=1.0.0")
	assert.Contains(t, output, "operation=test")

	// the parent is not affected
	buf.Reset()
	base.Info("Parent message")
	assert.NotContains(t, buf.String(), "service=agent")
}

func TestWithContextIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	ctx := ContextWithSessionID(context.Background(), "5f0c6a1e-1111-2222-3333-444455556666")
	ctx = ContextWithRequestID(ctx, "req_7")

	logger.WithContext(ctx).WithFields(String(ComponentKey, "session")).Info("Test message")

	output := buf.String()
	assert.Contains(t, output, "[5f0c6a1e/req_7]")
	assert.Contains(t, output, "session: Test message")
	assert.NotContains(t, output, "request_id=")
}

// TestWithError tests error context integration
func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewTextFormatter())

	mcpErr := mcperrors.RequestTimeout("tools/call", "req_3", time.Second).
		WithContext(&mcperrors.Context{RequestID: "req_3", Component: "Session"})

	logger.WithError(mcpErr).Error("Operation failed")

	output := buf.String()
	assert.Contains(t, output, "error=")
	assert.Contains(t, output, "error_code=-32301")
	assert.Contains(t, output, "error_kind=TimeoutError")
	assert.Contains(t, output, "error_category=timeout")
	assert.Contains(t, output, "[req_3]")
}

// TestJSONFormatter tests JSON output formatting
func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, NewJSONFormatter())

	logger.Info("Test message",
		String("key", "value"),
		Int("count", 42),
		Bool("flag", true),
		Duration("elapsed", 1500*time.Millisecond),
		ErrorField(errors.New("test error")),
	)

	var entry map[string]interface{}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))

	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "Test message", entry["message"])
	assert.Equal(t, "value", entry["key"])
	assert.Equal(t, float64(42), entry["count"])
	assert.Equal(t, true, entry["flag"])
	assert.Equal(t, "1.5s", entry["elapsed"])
	assert.Equal(t, "test error", entry["error"])
	assert.Contains(t, entry, "timestamp")
}

func TestNewFormatter(t *testing.T) {
	_, isJSON := NewFormatter("JSON", false).(*JSONFormatter)
	assert.True(t, isJSON)

	text, ok := NewFormatter("text", false).(*TextFormatter)
	require.True(t, ok)
	assert.True(t, text.DisableColors)
}

func TestConcurrentWritesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	root := New(&buf, NewJSONFormatter())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			root.WithFields(Int("worker", i)).Info("tick")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 20)
	for _, line := range lines {
		var entry map[string]interface{}
		assert.NoError(t, json.Unmarshal([]byte(line), &entry), line)
	}
}

func TestPeerLogger(t *testing.T) {
	type record struct {
		level  protocol.LogLevel
		logger string
		data   map[string]interface{}
	}
	var got []record
	sink := func(level protocol.LogLevel, logger string, data interface{}) {
		got = append(got, record{level, logger, data.(map[string]interface{})})
	}

	logger := NewPeerLogger("demo", sink).WithFields(String("file", "a.txt"))
	logger.Info("processing", Int("step", 1))
	logger.WithError(errors.New("disk full")).Error("failed")
	logger.SetLevel(WarnLevel)
	logger.Debug("dropped")

	require.Len(t, got, 2)
	assert.Equal(t, protocol.LogLevelInfo, got[0].level)
	assert.Equal(t, "demo", got[0].logger)
	assert.Equal(t, "processing", got[0].data["message"])
	assert.Equal(t, "a.txt", got[0].data["file"])
	assert.Equal(t, 1, got[0].data["step"])
	assert.Equal(t, protocol.LogLevelError, got[1].level)
	assert.Equal(t, "disk full", got[1].data["error"])
}

func TestLevelMapping(t *testing.T) {
	assert.Equal(t, protocol.LogLevelWarning, ToProtocolLevel(WarnLevel))
	assert.Equal(t, InfoLevel, FromProtocolLevel(protocol.LogLevelNotice))
	assert.Equal(t, ErrorLevel, FromProtocolLevel(protocol.LogLevelEmergency))
	assert.Equal(t, InfoLevel, FromProtocolLevel("unknown"))
}
