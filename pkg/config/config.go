// Package config loads settings for the demo commands from a TOML file and
// MCP_* environment variables. Environment values override the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joeshaw/envdecode"

	"github.com/ajitpratap0/mcp-agent-go/pkg/llm"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/orchestrator"
	"github.com/ajitpratap0/mcp-agent-go/pkg/session"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

// LLMConfig selects the chat-completions endpoint
type LLMConfig struct {
	BaseURL     string   `toml:"base_url" env:"MCP_LLM_BASE_URL"`
	APIKey      string   `toml:"api_key" env:"MCP_LLM_API_KEY"`
	Model       string   `toml:"model" env:"MCP_LLM_MODEL"`
	Temperature *float64 `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
}

// AgentConfig tunes the orchestrator and the agent's session
type AgentConfig struct {
	MaxRounds       int           `toml:"max_rounds" env:"MCP_MAX_ROUNDS,strict"`
	RequestTimeout  time.Duration `toml:"request_timeout" env:"MCP_REQUEST_TIMEOUT,strict"`
	SamplingTimeout time.Duration `toml:"sampling_timeout"`
	SystemPrompt    string        `toml:"system_prompt"`
}

// ProviderConfig is the provider process the agent spawns
type ProviderConfig struct {
	Command string   `toml:"command" env:"MCP_PROVIDER_COMMAND"`
	Args    []string `toml:"args"`
	Env     []string `toml:"env"`
}

// LoggingConfig selects level and format of stderr logs
type LoggingConfig struct {
	Level  string `toml:"level" env:"MCP_LOG_LEVEL"`
	Format string `toml:"format" env:"MCP_LOG_FORMAT"`
	Colors bool   `toml:"colors"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set
type MetricsConfig struct {
	Addr      string `toml:"addr" env:"MCP_METRICS_ADDR"`
	Namespace string `toml:"namespace"`
}

// TracingConfig selects the OpenTelemetry exporter
type TracingConfig struct {
	Exporter   string  `toml:"exporter" env:"MCP_TRACING_EXPORTER"`
	Endpoint   string  `toml:"endpoint" env:"MCP_TRACING_ENDPOINT"`
	Insecure   bool    `toml:"insecure"`
	SampleRate float64 `toml:"sample_rate"`
}

// Config is the full demo configuration
type Config struct {
	LLM       LLMConfig                 `toml:"llm"`
	Agent     AgentConfig               `toml:"agent"`
	Provider  ProviderConfig            `toml:"provider"`
	Transport transport.TransportConfig `toml:"transport"`
	Logging   LoggingConfig             `toml:"logging"`
	Metrics   MetricsConfig             `toml:"metrics"`
	Tracing   TracingConfig             `toml:"tracing"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			BaseURL: llm.DefaultBaseURL,
			Model:   llm.DefaultModel,
		},
		Agent: AgentConfig{
			MaxRounds:       orchestrator.DefaultMaxRounds,
			RequestTimeout:  session.DefaultRequestTimeout,
			SamplingTimeout: 60 * time.Second,
		},
		Transport: transport.DefaultTransportConfig(transport.TransportTypeStdio),
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Metrics:   MetricsConfig{Namespace: "mcp"},
		Tracing:   TracingConfig{Exporter: string(observability.ExporterTypeNone), SampleRate: 1},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			sort.Strings(keys)
			return nil, fmt.Errorf("config %s: unknown keys %s", path, strings.Join(keys, ", "))
		}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overwrites fields whose MCP_* variable is set
func ApplyEnv(cfg *Config) error {
	if err := envdecode.Decode(cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("read environment: %w", err)
	}
	return nil
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	var errs []error
	if c.Agent.MaxRounds < 1 {
		errs = append(errs, fmt.Errorf("agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds))
	}
	if c.Transport.MaxMessageSize < 0 || c.Transport.ReceiveBuffer < 0 {
		errs = append(errs, fmt.Errorf("transport limits must not be negative"))
	}
	if c.Agent.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("agent.request_timeout must not be negative"))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	switch observability.ExporterType(c.Tracing.Exporter) {
	case "", observability.ExporterTypeNone, observability.ExporterTypeNoop,
		observability.ExporterTypeOTLPGRPC, observability.ExporterTypeOTLPHTTP:
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q is not supported", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be within [0, 1]"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the stderr logger described by Logging
func (c *Config) NewLogger(w io.Writer) logging.Logger {
	logger := logging.New(w, logging.NewFormatter(c.Logging.Format, c.Logging.Colors))
	level, _ := logging.ParseLevel(c.Logging.Level)
	logger.SetLevel(level)
	return logger
}

// TracingProviderConfig converts Tracing for observability.NewTracingProvider
func (c *Config) TracingProviderConfig(service, version string) observability.TracingConfig {
	exporter := observability.ExporterType(c.Tracing.Exporter)
	if exporter == "" {
		exporter = observability.ExporterTypeNone
	}
	return observability.TracingConfig{
		ServiceName:    service,
		ServiceVersion: version,
		ExporterType:   exporter,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
	}
}

// OpenAIOptions converts LLM into client options
func (c *Config) OpenAIOptions() []llm.OpenAIOption {
	opts := []llm.OpenAIOption{
		llm.WithBaseURL(c.LLM.BaseURL),
		llm.WithAPIKey(c.LLM.APIKey),
		llm.WithModel(c.LLM.Model),
	}
	if c.LLM.Temperature != nil {
		opts = append(opts, llm.WithTemperature(*c.LLM.Temperature))
	}
	if c.LLM.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(c.LLM.MaxTokens))
	}
	return opts
}
