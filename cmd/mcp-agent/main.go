// Command mcp-agent spawns an MCP provider, connects to it over stdio and
// answers queries by letting a language model call the provider's tools.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ajitpratap0/mcp-agent-go/pkg/client"
	"github.com/ajitpratap0/mcp-agent-go/pkg/config"
	"github.com/ajitpratap0/mcp-agent-go/pkg/llm"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/orchestrator"
	"github.com/ajitpratap0/mcp-agent-go/pkg/session"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

const version = "1.0.0"

type options struct {
	configFile string
	provider   string
	query      string
	logLevel   string
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Path to a TOML config file")
	flag.StringVar(&opts.provider, "provider", "", "Provider command line (overrides config)")
	flag.StringVar(&opts.query, "query", "", "Answer a single query and exit")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (overrides config)")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "mcp-agent: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if fields := strings.Fields(opts.provider); len(fields) > 0 {
		cfg.Provider.Command, cfg.Provider.Args = fields[0], fields[1:]
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Provider.Command == "" {
		return fmt.Errorf("no provider: set provider.command, MCP_PROVIDER_COMMAND or -provider")
	}
	logger := cfg.NewLogger(os.Stderr).WithFields(logging.String("service", "mcp-agent"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := observability.NewTracingProvider(cfg.TracingProviderConfig("mcp-agent", version))
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
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

	proc, err := transport.NewCommandTransport(ctx, cfg.Provider.Command, cfg.Provider.Args,
		transport.WithEnv(cfg.Provider.Env...),
		transport.WithStderr(os.Stderr),
		transport.WithTransportConfig(cfg.Transport),
	)
	if err != nil {
		return err
	}
	logger.Info("provider started",
		logging.String("command", cfg.Provider.Command),
		logging.Int("pid", proc.Pid()),
	)
	middleware := []transport.Middleware{transport.Log(logger)}
	if metrics != nil {
		middleware = append(middleware, transport.Observe(metrics))
	}

	model := llm.NewOpenAIClient(append(cfg.OpenAIOptions(), llm.WithLogger(logger))...)
	c := client.New(transport.Chain(proc, middleware...),
		client.WithName("mcp-agent"),
		client.WithVersion(version),
		client.WithLogger(logger),
		client.WithMetrics(metrics),
		client.WithTracer(tp.Tracer()),
		client.WithSamplingHandler(llm.SamplingHandler(model)),
		client.WithSamplingTimeout(cfg.Agent.SamplingTimeout),
		client.WithSessionOptions(session.WithRequestTimeout(cfg.Agent.RequestTimeout)),
	)
	defer c.Close()

	info, err := c.Connect(ctx)
	if err != nil {
		return fmt.Errorf("connect to provider: %w", err)
	}
	logger.Info("connected",
		logging.String("provider", info.ServerInfo.Name),
		logging.String("protocol_version", info.ProtocolVersion),
	)

	o := orchestrator.New(progressRegistry{Client: c, logger: logger}, model,
		orchestrator.WithMaxRounds(cfg.Agent.MaxRounds),
		orchestrator.WithSystemPrompt(cfg.Agent.SystemPrompt),
		orchestrator.WithLogger(logger),
		orchestrator.WithMetrics(metrics),
		orchestrator.WithTracer(tp.Tracer()),
	)

	if opts.query != "" {
		return repl(ctx, strings.NewReader(opts.query+"\n"), os.Stdout, o, logger)
	}
	return repl(ctx, os.Stdin, os.Stdout, o, logger)
}
