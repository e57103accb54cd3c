// Command mcp-demo-server is a capability provider speaking MCP over stdio.
// stdout carries the protocol; logs go to stderr.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ajitpratap0/mcp-agent-go/pkg/config"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/server"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

const version = "1.0.0"

func main() {
	var (
		configFile = flag.String("config", "", "Path to a TOML config file")
		logLevel   = flag.String("log-level", "", "Log level (overrides config)")
		dataDir    = flag.String("data", "", "Directory holding about.txt and avatar.png (defaults to the built-in copies)")
		delay      = flag.Duration("file-delay", time.Second, "Simulated work per file in process_files")
	)
	flag.Parse()

	if err := run(*configFile, *logLevel, *dataDir, *delay); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-demo-server: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, logLevel, dataDir string, delay time.Duration) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	logger := cfg.NewLogger(os.Stderr).WithFields(logging.String("service", "mcp-demo-server"))

	tp, err := observability.NewTracingProvider(cfg.TracingProviderConfig("mcp-demo-server", version))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.WithError(err).Warn("tracing shutdown failed")
		}
	}()

	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		metrics, err = observability.NewMetrics(observability.MetricsConfig{Namespace: cfg.Metrics.Namespace})
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		ms, err := observability.StartMetricsServer(cfg.Metrics.Addr, metrics)
		if err != nil {
			return err
		}
		defer ms.Shutdown(context.Background())
		logger.Info("serving metrics", logging.String("addr", ms.Addr()))
	}

	p := &provider{data: defaultData(), delay: delay}
	if dataDir != "" {
		p.data = os.DirFS(dataDir)
	}

	var t transport.Transport = transport.NewStdioTransport(os.Stdin, os.Stdout, cfg.Transport)
	if metrics != nil {
		t = transport.Chain(t, transport.Observe(metrics))
	}
	srv := server.New(t,
		server.WithName("mcp-demo-server"),
		server.WithVersion(version),
		server.WithInstructions("Demo provider: arithmetic, greetings, file processing with progress, sampling, user records and a policy prompt."),
		server.WithLogger(logger),
		server.WithMetrics(metrics),
	)
	if err := p.register(srv); err != nil {
		return fmt.Errorf("register capabilities: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("serving on stdio")
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	logger.Info("shut down")
	return nil
}
