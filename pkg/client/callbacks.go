package client

import (
	"context"
	"encoding/json"
	"time"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

// SamplingHandler answers a provider's request for a model completion
type SamplingHandler func(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error)

// ElicitationHandler asks the user for input on the provider's behalf
type ElicitationHandler func(ctx context.Context, params *protocol.ElicitParams) (*protocol.ElicitResult, error)

// LoggingHandler receives log records forwarded by the provider
type LoggingHandler func(params protocol.LogMessageParams)

// ProgressHandler receives progress for a long-running request
type ProgressHandler func(params protocol.ProgressParams)

// ResourceUpdatedHandler is told when a subscribed resource changes
type ResourceUpdatedHandler func(uri string)

// Callbacks is the set of local services the provider may call. Every
// handler is optional; unset request handlers answer method-not-found.
type Callbacks struct {
	Sampling        SamplingHandler
	Elicitation     ElicitationHandler
	Logging         LoggingHandler
	Progress        ProgressHandler
	ResourceUpdated ResourceUpdatedHandler
}

// WithCallbacks sets all callbacks at once
func WithCallbacks(cb Callbacks) Option {
	return func(c *Client) {
		c.callbacks = cb
	}
}

// WithSamplingHandler serves sampling/createMessage
func WithSamplingHandler(h SamplingHandler) Option {
	return func(c *Client) {
		c.callbacks.Sampling = h
	}
}

// WithSamplingTimeout bounds each sampling callback (default 60s)
func WithSamplingTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.samplingTimeout = d
	}
}

// WithElicitationHandler serves elicitation/create
func WithElicitationHandler(h ElicitationHandler) Option {
	return func(c *Client) {
		c.callbacks.Elicitation = h
	}
}

// WithLoggingHandler receives notifications/message. Without one, records
// are written to the client logger.
func WithLoggingHandler(h LoggingHandler) Option {
	return func(c *Client) {
		c.callbacks.Logging = h
	}
}

// WithProgressHandler receives progress whose token has no handler of its own
func WithProgressHandler(h ProgressHandler) Option {
	return func(c *Client) {
		c.callbacks.Progress = h
	}
}

// WithResourceUpdatedHandler receives notifications/resources/updated
func WithResourceUpdatedHandler(h ResourceUpdatedHandler) Option {
	return func(c *Client) {
		c.callbacks.ResourceUpdated = h
	}
}

// capabilities advertises exactly the request callbacks that are set
func (c *Client) capabilities() protocol.ClientCapabilities {
	var caps protocol.ClientCapabilities
	if c.callbacks.Sampling != nil {
		caps.Sampling = &struct{}{}
	}
	if c.callbacks.Elicitation != nil {
		caps.Elicitation = &struct{}{}
	}
	return caps
}

func (c *Client) registerCallbacks() {
	if c.callbacks.Sampling != nil {
		c.session.OnRequest(protocol.MethodCreateMessage, c.handleSampling)
	}
	if c.callbacks.Elicitation != nil {
		c.session.OnRequest(protocol.MethodElicit, c.handleElicitation)
	}
	c.session.OnNotification(protocol.MethodLogMessage, c.handleLogMessage)
	c.session.OnNotification(protocol.MethodProgress, c.handleProgress)
	c.session.OnNotification(protocol.MethodResourceUpdated, c.handleResourceUpdated)
}

func (c *Client) handleSampling(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.CreateMessageParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mcperrors.InvalidParams(protocol.MethodCreateMessage, err)
	}
	if c.samplingTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.samplingTimeout)
		defer cancel()
	}

	start := time.Now()
	res, err := c.callbacks.Sampling(ctx, &params)
	if err != nil {
		c.logger.WithError(err).Warn("sampling callback failed", logging.Duration("duration", time.Since(start)))
		return nil, err
	}
	c.logger.Debug("sampling callback served",
		logging.String("model", res.Model),
		logging.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func (c *Client) handleElicitation(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var params protocol.ElicitParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, mcperrors.InvalidParams(protocol.MethodElicit, err)
	}
	return c.callbacks.Elicitation(ctx, &params)
}

func (c *Client) handleLogMessage(_ context.Context, raw json.RawMessage) {
	var params protocol.LogMessageParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.logger.WithError(err).Warn("dropping malformed log notification")
		return
	}
	if c.callbacks.Logging != nil {
		c.callbacks.Logging(params)
		return
	}

	fields := []logging.Field{logging.String("peer_level", string(params.Level))}
	if params.Logger != "" {
		fields = append(fields, logging.String("peer_logger", params.Logger))
	}
	fields = append(fields, logging.Any("data", params.Data))
	switch logging.FromProtocolLevel(params.Level) {
	case logging.DebugLevel:
		c.logger.Debug("provider log", fields...)
	case logging.WarnLevel:
		c.logger.Warn("provider log", fields...)
	case logging.ErrorLevel:
		c.logger.Error("provider log", fields...)
	default:
		c.logger.Info("provider log", fields...)
	}
}

func (c *Client) handleProgress(_ context.Context, raw json.RawMessage) {
	var params protocol.ProgressParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.logger.WithError(err).Warn("dropping malformed progress notification")
		return
	}

	c.progressMu.Lock()
	handler, ok := c.progress[params.ProgressToken]
	c.progressMu.Unlock()

	switch {
	case ok:
		handler(params)
	case c.callbacks.Progress != nil:
		c.callbacks.Progress(params)
	default:
		c.logger.Warn("progress for unknown token",
			logging.String("token", params.ProgressToken.String()),
			logging.Float64("progress", params.Progress),
		)
	}
}

func (c *Client) handleResourceUpdated(_ context.Context, raw json.RawMessage) {
	var params protocol.ResourceUpdatedParams
	if err := json.Unmarshal(raw, &params); err != nil {
		c.logger.WithError(err).Warn("dropping malformed resource update")
		return
	}
	if c.callbacks.ResourceUpdated != nil {
		c.callbacks.ResourceUpdated(params.URI)
		return
	}
	c.logger.Debug("resource updated", logging.String("uri", params.URI))
}

func (c *Client) addProgressHandler(token protocol.ProgressToken, h ProgressHandler) {
	c.progressMu.Lock()
	c.progress[token] = h
	c.progressMu.Unlock()
}

func (c *Client) removeProgressHandler(token protocol.ProgressToken) {
	c.progressMu.Lock()
	delete(c.progress, token)
	c.progressMu.Unlock()
}
