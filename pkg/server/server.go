package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/observability"
	"github.com/ajitpratap0/mcp-agent-go/pkg/pagination"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
	"github.com/ajitpratap0/mcp-agent-go/pkg/session"
	"github.com/ajitpratap0/mcp-agent-go/pkg/transport"
)

const notifyTimeout = 5 * time.Second

// Server serves one agent over one transport
type Server struct {
	name         string
	version      string
	instructions string
	pageSize     int
	logger       logging.Logger
	metrics      *observability.Metrics
	sessionOpts  []session.Option
	session      *session.Session

	mu       sync.RWMutex
	registry registry

	subscriptions *subscriptions

	initialized atomic.Bool
	logLevel    atomic.Value // protocol.LogLevel
	clientMu    sync.RWMutex
	clientInfo  protocol.Implementation
	clientCaps  protocol.ClientCapabilities
}

// Option configures a Server
type Option func(*Server)

// WithName sets the server name reported during the handshake
func WithName(name string) Option {
	return func(s *Server) {
		s.name = name
	}
}

// WithVersion sets the server version reported during the handshake
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// WithInstructions sets the usage hint returned from initialize
func WithInstructions(instructions string) Option {
	return func(s *Server) {
		s.instructions = instructions
	}
}

// WithPageSize sets how many items each list page carries
func WithPageSize(n int) Option {
	return func(s *Server) {
		if pagination.ValidateLimit(n) == nil {
			s.pageSize = n
		}
	}
}

// WithLogger sets the server logger
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records session and tool metrics into m
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithSessionOptions passes options through to the underlying session
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) {
		s.sessionOpts = append(s.sessionOpts, opts...)
	}
}

// New creates a server over t. Register capabilities, then call Start or Serve.
func New(t transport.Transport, opts ...Option) *Server {
	s := &Server{
		name:     "mcp-agent-go-server",
		version:  "1.0.0",
		pageSize: pagination.DefaultLimit,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logLevel.Store(protocol.LogLevelInfo)

	sessionOpts := []session.Option{
		session.WithRole(session.RoleServer),
		session.WithLogger(s.logger),
		session.WithMetrics(s.metrics),
	}
	s.session = session.New(t, append(sessionOpts, s.sessionOpts...)...)
	s.logger = s.session.Logger().WithFields(logging.String(logging.ComponentKey, "server"))
	s.subscriptions = newSubscriptions()

	s.session.OnRequest(protocol.MethodInitialize, s.handleInitialize)
	s.session.OnNotification(protocol.MethodInitialized, s.handleInitialized)
	s.handle(protocol.MethodSetLogLevel, s.handleSetLogLevel)
	s.handle(protocol.MethodListTools, s.handleListTools)
	s.handle(protocol.MethodCallTool, s.handleCallTool)
	s.handle(protocol.MethodListResources, s.handleListResources)
	s.handle(protocol.MethodListResourceTemplates, s.handleListResourceTemplates)
	s.handle(protocol.MethodReadResource, s.handleReadResource)
	s.handle(protocol.MethodSubscribeResource, s.handleSubscribe)
	s.handle(protocol.MethodUnsubscribeResource, s.handleUnsubscribe)
	s.handle(protocol.MethodListPrompts, s.handleListPrompts)
	s.handle(protocol.MethodGetPrompt, s.handleGetPrompt)
	return s
}

// handle registers a method that requires a completed initialize
func (s *Server) handle(method string, h session.RequestHandler) {
	s.session.OnRequest(method, func(ctx context.Context, params json.RawMessage) (interface{}, error) {
		if !s.initialized.Load() {
			return nil, mcperrors.NotInitialized(method)
		}
		return h(ctx, params)
	})
}

// Start begins serving
func (s *Server) Start() {
	s.session.Start()
}

// Serve serves until ctx ends or the agent disconnects
func (s *Server) Serve(ctx context.Context) error {
	s.Start()
	select {
	case <-ctx.Done():
		s.session.Close()
	case <-s.session.Done():
	}
	err := s.session.Wait()
	if mcperrors.Is(err, mcperrors.KindConnectionLost) {
		return nil
	}
	return err
}

// Close ends the session
func (s *Server) Close() error {
	return s.session.Close()
}

// Wait blocks until the session has shut down
func (s *Server) Wait() error {
	return s.session.Wait()
}

// Session exposes the underlying session
func (s *Server) Session() *session.Session {
	return s.session
}

// ClientInfo returns what the agent reported during initialize
func (s *Server) ClientInfo() (protocol.Implementation, protocol.ClientCapabilities) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	return s.clientInfo, s.clientCaps
}

// Log sends a notifications/message record if level passes the agent's filter
func (s *Server) Log(ctx context.Context, level protocol.LogLevel, logger string, data interface{}) error {
	threshold, _ := s.logLevel.Load().(protocol.LogLevel)
	if !level.AtLeast(threshold) {
		return nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode log data: %w", err)
	}
	return s.session.Notify(ctx, protocol.MethodLogMessage, protocol.LogMessageParams{
		Level:  level,
		Logger: logger,
		Data:   raw,
	})
}

// NotifyResourceUpdated tells the agent uri changed, if it subscribed
func (s *Server) NotifyResourceUpdated(ctx context.Context, uri string) error {
	if !s.subscriptions.has(uri) {
		return nil
	}
	return s.session.Notify(ctx, protocol.MethodResourceUpdated, protocol.ResourceUpdatedParams{URI: uri})
}

// listChanged announces a registration change once the agent is connected
func (s *Server) listChanged(method string) {
	if !s.initialized.Load() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	if err := s.session.Notify(ctx, method, nil); err != nil {
		s.logger.WithError(err).Warn("failed to send list_changed", logging.String("method", method))
	}
}

func (s *Server) capabilities() protocol.ServerCapabilities {
	return protocol.ServerCapabilities{
		Tools:     &protocol.ListChangedCapability{ListChanged: true},
		Resources: &protocol.ResourcesCapability{Subscribe: true, ListChanged: true},
		Prompts:   &protocol.ListChangedCapability{ListChanged: true},
		Logging:   &struct{}{},
	}
}

func decodeParams(method string, raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return mcperrors.InvalidParams(method, err)
	}
	return nil
}

func (s *Server) handleInitialize(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.InitializeParams
	if err := decodeParams(protocol.MethodInitialize, raw, &params); err != nil {
		return nil, err
	}

	version := params.ProtocolVersion
	if !protocol.IsSupportedVersion(version) {
		version = protocol.ProtocolRevision
	}

	s.clientMu.Lock()
	s.clientInfo = params.ClientInfo
	s.clientCaps = params.Capabilities
	s.clientMu.Unlock()
	s.initialized.Store(true)

	s.logger.Info("agent connected",
		logging.String("client", params.ClientInfo.Name),
		logging.String("client_version", params.ClientInfo.Version),
		logging.String("protocol_version", version),
	)
	return protocol.InitializeResult{
		ProtocolVersion: version,
		Capabilities:    s.capabilities(),
		ServerInfo:      protocol.Implementation{Name: s.name, Version: s.version},
		Instructions:    s.instructions,
	}, nil
}

func (s *Server) handleInitialized(context.Context, json.RawMessage) {
	s.session.MarkInitialized()
	s.logger.Debug("handshake complete")
}

func (s *Server) handleSetLogLevel(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.SetLevelParams
	if err := decodeParams(protocol.MethodSetLogLevel, raw, &params); err != nil {
		return nil, err
	}
	if !params.Level.Valid() {
		return nil, mcperrors.InvalidParams(protocol.MethodSetLogLevel, fmt.Errorf("unknown level %q", params.Level))
	}
	s.logLevel.Store(params.Level)
	return protocol.EmptyResult{}, nil
}

func (s *Server) handleListTools(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ListToolsParams
	if err := decodeParams(protocol.MethodListTools, raw, &params); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.toolList(), params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return protocol.ListToolsResult{Tools: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleCallTool(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.CallToolParams
	if err := decodeParams(protocol.MethodCallTool, raw, &params); err != nil {
		return nil, err
	}
	tool := s.findTool(params.Name)
	if tool == nil {
		return nil, mcperrors.NewError(mcperrors.CodeInvalidParams,
			fmt.Sprintf("Unknown tool: %s", params.Name), mcperrors.CategoryValidation, mcperrors.SeverityError)
	}

	args := params.Arguments
	if len(args) == 0 || string(args) == "null" {
		args = json.RawMessage(`{}`)
	}
	if err := tool.schema.Validate(args); err != nil {
		return errorResult(fmt.Sprintf("invalid arguments for %s: %v", params.Name, err)), nil
	}

	id, _ := session.RequestIDFromContext(ctx)
	rc := newRequestContext(s, id, protocol.MethodCallTool, params.Meta)

	start := time.Now()
	res, err := s.runTool(ctx, tool, rc, args)
	s.metrics.RecordToolCall(params.Name, time.Since(start), err)
	if err != nil {
		s.logger.WithError(err).Info("tool failed", logging.String("tool", params.Name))
		return errorResult(err.Error()), nil
	}
	if res == nil {
		res = &protocol.CallToolResult{}
	}
	if res.Content == nil {
		res.Content = []protocol.Content{}
	}
	return res, nil
}

// runTool converts a handler panic into a tool error
func (s *Server) runTool(ctx context.Context, tool *registeredTool, rc *RequestContext, args json.RawMessage) (res *protocol.CallToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", tool.tool.Name, r)
		}
	}()
	return tool.handler(ctx, rc, args)
}

func errorResult(msg string) *protocol.CallToolResult {
	return &protocol.CallToolResult{Content: []protocol.Content{protocol.TextContent(msg)}, IsError: true}
}

func (s *Server) handleListResources(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ListResourcesParams
	if err := decodeParams(protocol.MethodListResources, raw, &params); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.resourceList(), params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return protocol.ListResourcesResult{Resources: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleListResourceTemplates(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ListResourceTemplatesParams
	if err := decodeParams(protocol.MethodListResourceTemplates, raw, &params); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.templateList(), params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return protocol.ListResourceTemplatesResult{ResourceTemplates: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleReadResource(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ReadResourceParams
	if err := decodeParams(protocol.MethodReadResource, raw, &params); err != nil {
		return nil, err
	}
	if params.URI == "" {
		return nil, mcperrors.InvalidParams(protocol.MethodReadResource, fmt.Errorf("uri is required"))
	}

	id, _ := session.RequestIDFromContext(ctx)
	rc := newRequestContext(s, id, protocol.MethodReadResource, nil)

	resource, template, values := s.matchResource(params.URI)
	var (
		res *protocol.ReadResourceResult
		err error
	)
	switch {
	case resource != nil:
		res, err = resource.handler(ctx, rc, params.URI)
	case template != nil:
		res, err = template.handler(ctx, rc, params.URI, values)
	default:
		return nil, mcperrors.ResourceNotFound(params.URI)
	}
	if err != nil {
		return nil, handlerError("resources/read "+params.URI, err)
	}
	return res, nil
}

func (s *Server) handleSubscribe(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.SubscribeResourceParams
	if err := decodeParams(protocol.MethodSubscribeResource, raw, &params); err != nil {
		return nil, err
	}
	if resource, template, _ := s.matchResource(params.URI); resource == nil && template == nil {
		return nil, mcperrors.ResourceNotFound(params.URI)
	}
	s.subscriptions.add(params.URI)
	return protocol.EmptyResult{}, nil
}

func (s *Server) handleUnsubscribe(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.SubscribeResourceParams
	if err := decodeParams(protocol.MethodUnsubscribeResource, raw, &params); err != nil {
		return nil, err
	}
	s.subscriptions.remove(params.URI)
	return protocol.EmptyResult{}, nil
}

func (s *Server) handleListPrompts(_ context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ListPromptsParams
	if err := decodeParams(protocol.MethodListPrompts, raw, &params); err != nil {
		return nil, err
	}
	page, next, err := pagination.Paginate(s.promptList(), params.Cursor, s.pageSize)
	if err != nil {
		return nil, err
	}
	return protocol.ListPromptsResult{Prompts: page, PaginatedResult: protocol.PaginatedResult{NextCursor: next}}, nil
}

func (s *Server) handleGetPrompt(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.GetPromptParams
	if err := decodeParams(protocol.MethodGetPrompt, raw, &params); err != nil {
		return nil, err
	}
	prompt := s.findPrompt(params.Name)
	if prompt == nil {
		return nil, mcperrors.NewError(mcperrors.CodeInvalidParams,
			fmt.Sprintf("Unknown prompt: %s", params.Name), mcperrors.CategoryValidation, mcperrors.SeverityError)
	}
	for _, arg := range prompt.prompt.Arguments {
		if _, ok := params.Arguments[arg.Name]; arg.Required && !ok {
			return nil, mcperrors.InvalidParams(protocol.MethodGetPrompt, fmt.Errorf("missing required argument %q", arg.Name))
		}
	}

	id, _ := session.RequestIDFromContext(ctx)
	res, err := prompt.handler(ctx, newRequestContext(s, id, protocol.MethodGetPrompt, nil), params.Arguments)
	if err != nil {
		return nil, handlerError("prompts/get "+params.Name, err)
	}
	return res, nil
}

// handlerError keeps taxonomy errors from handlers and wraps the rest
func handlerError(operation string, err error) error {
	if mcperrors.IsMCPError(err) {
		return err
	}
	return mcperrors.Internal(operation, err)
}
