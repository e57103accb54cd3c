package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/llm"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/orchestrator"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/server"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

type runnerFunc func(ctx context.Context, query string) (*orchestrator.Result, error)

func (f runnerFunc) Run(ctx context.Context, query string) (*orchestrator.Result, error) {
	return f(ctx, query)
}

func TestREPL(t *testing.T) {
	var queries []string
	r := runnerFunc(func(_ context.Context, query string) (*orchestrator.Result, error) {
		queries = append(queries, query)
		switch query {
		case "add":
			return &orchestrator.Result{
				Answer: "1.00001",
				ToolCalls: []orchestrator.ToolCallRecord{{
					ToolCall: llm.ToolCall{ID: "call_1", Name: "add", Arguments: `{"a":1,"b":0.00001}`},
					Result:   "1.00001",
				}},
			}, nil
		case "loop":
			return &orchestrator.Result{Answer: "partial"}, mcperrors.RoundLimitExceeded(2, "partial")
		default:
			return nil, errors.New("model unavailable")
		}
	})

	var out bytes.Buffer
	in := strings.NewReader("add\n\nloop\nbroken\nquit\nnever\n")
	require.NoError(t, repl(context.Background(), in, &out, r, logging.NewNop()))

	assert.Equal(t, []string{"add", "loop", "broken"}, queries)
	text := out.String()
	assert.Contains(t, text, `[1] add({"a":1,"b":0.00001})`)
	assert.Contains(t, text, "-> 1.00001\n1.00001\n")
	assert.Contains(t, text, "partial\n(stopped:")
	assert.Contains(t, text, "error: model unavailable")
}

func TestREPLStopsOnSessionErrors(t *testing.T) {
	r := runnerFunc(func(context.Context, string) (*orchestrator.Result, error) {
		return nil, mcperrors.ConnectionLost("provider exited", nil)
	})
	err := repl(context.Background(), strings.NewReader("one\ntwo\n"), &bytes.Buffer{}, r, logging.NewNop())
	assert.True(t, mcperrors.Is(err, mcperrors.KindConnectionLost))
}

func TestProgressRegistrySendsToken(t *testing.T) {
	a, b := transport.NewPipe()
	srv := server.New(b)
	require.NoError(t, server.TypedTool(srv, "slow", "Reports progress",
		func(ctx context.Context, rc *server.RequestContext, _ struct{}) (*protocol.CallToolResult, error) {
			total := 1.0
			if err := rc.ReportProgress(ctx, 1, &total, "halfway"); err != nil {
				return nil, err
			}
			return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent("done")}}, nil
		}))
	srv.Start()

	var orphans int
	c := client.New(a, client.WithProgressHandler(func(protocol.ProgressParams) { orphans++ }))
	_, err := c.Connect(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = c.Close()
		_ = srv.Close()
	})

	var logs bytes.Buffer
	reg := progressRegistry{Client: c, logger: logging.New(&logs, logging.NewJSONFormatter())}
	res, err := reg.InvokeTool(context.Background(), "slow", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.Equal(t, "done", res.Text())
	assert.Zero(t, orphans)
	assert.Contains(t, logs.String(), "tool progress")
	assert.Contains(t, logs.String(), "halfway")
}
