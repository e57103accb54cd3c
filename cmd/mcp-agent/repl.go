package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/orchestrator"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

const maxShownResult = 200

// progressRegistry attaches a progress token to every tool call so
// long-running tools can report back while the orchestrator waits.
type progressRegistry struct {
	*client.Client
	logger logging.Logger
}

func (r progressRegistry) InvokeTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	return r.CallToolWithProgress(ctx, name, args, func(p protocol.ProgressParams) {
		fields := []logging.Field{
			logging.String("tool", name),
			logging.Float64("progress", p.Progress),
		}
		if p.Total != nil {
			fields = append(fields, logging.Float64("total", *p.Total))
		}
		if p.Message != "" {
			fields = append(fields, logging.String("detail", p.Message))
		}
		r.logger.Info("tool progress", fields...)
	})
}

// runner answers one query
type runner interface {
	Run(ctx context.Context, query string) (*orchestrator.Result, error)
}

// repl reads one query per line from in and writes answers to out until in
// is exhausted, the user types quit or a session-level error occurs.
func repl(ctx context.Context, in io.Reader, out io.Writer, r runner, logger logging.Logger) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for scanner.Scan() {
		query := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(query) {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "quit", "exit":
			return nil
		}

		res, err := r.Run(ctx, query)
		switch {
		case err == nil:
			printResult(out, res)
		case mcperrors.Is(err, mcperrors.KindRoundLimitExceeded):
			printResult(out, res)
			fmt.Fprintf(out, "(stopped: %v)\n", err)
		case mcperrors.IsSessionFatal(err) || ctx.Err() != nil:
			return err
		default:
			logger.WithError(err).Error("query failed")
			fmt.Fprintf(out, "error: %v\n", err)
		}
		fmt.Fprint(out, "> ")
	}
	return scanner.Err()
}

func printResult(out io.Writer, res *orchestrator.Result) {
	if res == nil {
		return
	}
	for i, call := range res.ToolCalls {
		fmt.Fprintf(out, "  [%d] %s(%s)\n", i+1, call.Name, call.Arguments)
		result := call.Result
		if len(result) > maxShownResult {
			result = result[:maxShownResult] + "..."
		}
		if call.IsError {
			fmt.Fprintf(out, "      error: %s\n", result)
		} else {
			fmt.Fprintf(out, "      -> %s\n", result)
		}
	}
	fmt.Fprintln(out, res.Answer)
}
