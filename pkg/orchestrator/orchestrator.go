package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/llm"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

// DefaultMaxRounds bounds the model calls of one run
const DefaultMaxRounds = 10

// Registry is the capability surface a run draws on. *client.Client
// implements it.
type Registry interface {
	ListTools(ctx context.Context) ([]protocol.Tool, error)
	ListResourceTemplates(ctx context.Context) ([]protocol.ResourceTemplate, error)
	InvokeTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error)
	ReadTemplate(ctx context.Context, template string, params map[string]string) (*protocol.ReadResourceResult, error)
}

// State is the position of a run in its loop
type State string

const (
	StateAwaitingModel      State = "awaiting_model"
	StateToolCallsRequested State = "tool_calls_requested"
	StateExecutingTools     State = "executing_tools"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// ToolCallRecord logs one executed tool call
type ToolCallRecord struct {
	llm.ToolCall
	Round    int
	Result   string
	IsError  bool
	Kind     mcperrors.Kind
	Duration time.Duration
}

// Result is the outcome of Run. On RoundLimitExceeded Answer holds the last
// non-empty assistant text.
type Result struct {
	ID        string
	State     State
	Answer    string
	Rounds    int
	ToolCalls []ToolCallRecord
	Messages  []llm.Message
	// Transitions lists every state the run entered, in order
	Transitions []State
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMaxRounds sets how many model calls a run may make
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxRounds = n
		}
	}
}

// WithSystemPrompt prepends a system message to every run
func WithSystemPrompt(prompt string) Option {
	return func(o *Orchestrator) { o.systemPrompt = prompt }
}

// WithTemplateFunctions controls whether resource templates are offered to
// the model as functions. It is on by default.
func WithTemplateFunctions(enabled bool) Option {
	return func(o *Orchestrator) { o.templateFunctions = enabled }
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithMetrics records runs on m
func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithTracer overrides the tracer taken from the global provider
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// Orchestrator alternates model completions with capability calls until
// the model answers in text.
type Orchestrator struct {
	registry          Registry
	completer         llm.Completer
	maxRounds         int
	systemPrompt      string
	templateFunctions bool
	logger            logging.Logger
	metrics           *observability.Metrics
	tracer            trace.Tracer
}

// New creates an Orchestrator
func New(registry Registry, completer llm.Completer, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry:          registry,
		completer:         completer,
		maxRounds:         DefaultMaxRounds,
		templateFunctions: true,
		logger:            logging.NewNop(),
		tracer:            observability.Tracer(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.WithFields(logging.String(logging.ComponentKey, "orchestrator"))
	return o
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

func newRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// run holds the state of one Run call
type run struct {
	*Orchestrator
	result    *Result
	functions *functionTable
	logger    logging.Logger
	span      trace.Span
}

// enter moves the run to state and records the transition on the span
func (r *run) enter(state State, round int) {
	r.result.State = state
	r.result.Transitions = append(r.result.Transitions, state)
	r.span.AddEvent("state", trace.WithAttributes(
		attribute.String("mcp.state", string(state)),
		attribute.Int("mcp.round", round),
	))
	r.logger.Debug("run state", logging.String("state", string(state)), logging.Int("round", round))
}

// Run answers query, calling tools and reading templated resources as the
// model requests. Invocation failures are reported to the model and the
// loop continues; protocol, connection and handshake failures, completer
// errors and cancellation end the run. The returned Result is never nil.
func (o *Orchestrator) Run(ctx context.Context, query string) (res *Result, err error) {
	r := &run{
		Orchestrator: o,
		result:       &Result{ID: newRunID(), State: StateAwaitingModel},
	}
	r.logger = o.logger.WithFields(logging.String("run_id", r.result.ID))

	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("mcp.run_id", r.result.ID),
		attribute.Int("mcp.max_rounds", o.maxRounds),
	))
	r.span = span
	start := time.Now()
	defer func() {
		if err != nil && !mcperrors.Is(err, mcperrors.KindRoundLimitExceeded) {
			r.enter(StateFailed, r.result.Rounds)
		}
		span.SetAttributes(attribute.Int("mcp.rounds", r.result.Rounds))
		observability.EndSpan(span, err)
		o.metrics.RecordRun(r.result.Rounds, err)
		fields := []logging.Field{
			logging.String("state", string(r.result.State)),
			logging.Int("rounds", r.result.Rounds),
			logging.Int("tool_calls", len(r.result.ToolCalls)),
			logging.Duration("duration", time.Since(start)),
		}
		if err != nil {
			r.logger.WithError(err).Warn("run ended", fields...)
		} else {
			r.logger.Info("run finished", fields...)
		}
	}()

	r.functions, err = o.buildFunctions(ctx, r.logger)
	if err != nil {
		return r.result, err
	}

	if o.systemPrompt != "" {
		r.append(llm.NewMessage(llm.RoleSystem, o.systemPrompt))
	}
	r.append(llm.NewMessage(llm.RoleUser, query))
	r.logger.Info("run started",
		logging.Int("functions", len(r.functions.descriptors)),
		logging.Int("max_rounds", o.maxRounds),
	)

	var partial string
	for round := 1; round <= o.maxRounds; round++ {
		if err := ctx.Err(); err != nil {
			return r.result, err
		}
		r.result.Rounds = round
		r.enter(StateAwaitingModel, round)

		completion, err := r.complete(ctx, round)
		if err != nil {
			return r.result, err
		}
		msg := completion.Message
		msg.Role = llm.RoleAssistant
		r.append(msg)
		if msg.Content != "" {
			partial = msg.Content
		}

		if len(msg.ToolCalls) == 0 {
			r.enter(StateDone, round)
			r.result.Answer = msg.Content
			return r.result, nil
		}

		r.enter(StateToolCallsRequested, round)
		r.logger.Debug("model requested tool calls", logging.Int("round", round), logging.Int("count", len(msg.ToolCalls)))

		r.enter(StateExecutingTools, round)
		for _, call := range msg.ToolCalls {
			if err := r.execute(ctx, round, call); err != nil {
				return r.result, err
			}
		}
	}

	r.result.Answer = partial
	return r.result, mcperrors.RoundLimitExceeded(o.maxRounds, partial)
}

func (r *run) append(msg llm.Message) {
	r.result.Messages = append(r.result.Messages, msg)
}

func (r *run) complete(ctx context.Context, round int) (*llm.Completion, error) {
	ctx, span := r.tracer.Start(ctx, "orchestrator.complete", trace.WithAttributes(attribute.Int("mcp.round", round)))
	messages := append([]llm.Message(nil), r.result.Messages...)
	completion, err := r.completer.Complete(ctx, messages, r.functions.descriptors)
	if err == nil && completion == nil {
		err = llm.ErrEmptyResponse
	}
	observability.EndSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("model completion in round %d: %w", round, err)
	}
	return completion, nil
}

// execute runs one tool call and appends its tool message. Only a fatal
// error is returned.
func (r *run) execute(ctx context.Context, round int, call llm.ToolCall) error {
	ctx, span := r.tracer.Start(ctx, "orchestrator.tool_call", trace.WithAttributes(
		attribute.Int("mcp.round", round),
		attribute.String("mcp.function", call.Name),
	))
	start := time.Now()
	content, err := r.functions.dispatch(ctx, r.registry, call)
	record := ToolCallRecord{ToolCall: call, Round: round, Result: content, Duration: time.Since(start)}

	if err != nil {
		if fatal(ctx, err) {
			observability.EndSpan(span, err)
			return fmt.Errorf("tool call %s: %w", call.Name, err)
		}
		record.IsError = true
		record.Kind = mcperrors.KindOf(err)
		record.Result = errorContent(content, err)
		r.logger.WithError(err).Info("tool call failed",
			logging.String("function", call.Name),
			logging.String("kind", string(record.Kind)),
		)
	}
	observability.EndSpan(span, err)

	r.result.ToolCalls = append(r.result.ToolCalls, record)
	r.append(llm.Message{Role: llm.RoleTool, Content: record.Result, ToolCallID: call.ID})
	return nil
}

// fatal reports whether err must end the run instead of reaching the model
func fatal(ctx context.Context, err error) bool {
	return mcperrors.IsSessionFatal(err) || ctx.Err() != nil
}

// errorContent is what the model sees for a failed call
func errorContent(content string, err error) string {
	kind := mcperrors.KindOf(err)
	if kind == mcperrors.KindRemoteExecution && content != "" {
		return fmt.Sprintf("error (%s): %s", kind, content)
	}
	return fmt.Sprintf("error (%s): %v", kind, err)
}
