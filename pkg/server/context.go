package server

import (
	"context"
	"encoding/json"
	"fmt"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

// RequestContext gives a capability handler access to the agent that
// called it: sampling, logging and progress all travel over the same
// session as the request being served.
type RequestContext struct {
	server        *Server
	id            protocol.ID
	method        string
	progressToken *protocol.ProgressToken
}

func newRequestContext(s *Server, id protocol.ID, method string, meta *protocol.Meta) *RequestContext {
	rc := &RequestContext{server: s, id: id, method: method}
	if meta != nil {
		rc.progressToken = meta.ProgressToken
	}
	return rc
}

// RequestID returns the id of the request being served
func (rc *RequestContext) RequestID() protocol.ID {
	return rc.id
}

// Method returns the method being served
func (rc *RequestContext) Method() string {
	return rc.method
}

// Sample asks the agent's model for a completion
func (rc *RequestContext) Sample(ctx context.Context, params *protocol.CreateMessageParams) (*protocol.CreateMessageResult, error) {
	raw, err := rc.server.session.Request(ctx, protocol.MethodCreateMessage, params)
	if err != nil {
		return nil, err
	}
	var res protocol.CreateMessageResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeProtocolError, "malformed sampling result", err)
	}
	return &res, nil
}

// Elicit asks the agent's user for input
func (rc *RequestContext) Elicit(ctx context.Context, params *protocol.ElicitParams) (*protocol.ElicitResult, error) {
	raw, err := rc.server.session.Request(ctx, protocol.MethodElicit, params)
	if err != nil {
		return nil, err
	}
	var res protocol.ElicitResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeProtocolError, "malformed elicitation result", err)
	}
	return &res, nil
}

// Log sends a log record to the agent unless level is below the one set
// with logging/setLevel.
func (rc *RequestContext) Log(ctx context.Context, level protocol.LogLevel, data interface{}) error {
	return rc.server.Log(ctx, level, rc.server.name, data)
}

// Logger returns a structured logger whose records are forwarded to the agent
func (rc *RequestContext) Logger(name string) logging.Logger {
	return logging.NewPeerLogger(name, func(level protocol.LogLevel, logger string, data interface{}) {
		if err := rc.server.Log(context.Background(), level, logger, data); err != nil {
			rc.server.logger.WithError(err).Debug("failed to forward log record")
		}
	})
}

// ReportProgress notifies the agent of progress. It does nothing when the
// request carried no progress token.
func (rc *RequestContext) ReportProgress(ctx context.Context, progress float64, total *float64, message string) error {
	if rc.progressToken == nil {
		return nil
	}
	params := protocol.ProgressParams{
		ProgressToken: *rc.progressToken,
		Progress:      progress,
		Total:         total,
		Message:       message,
	}
	if err := rc.server.session.Notify(ctx, protocol.MethodProgress, params); err != nil {
		return fmt.Errorf("report progress: %w", err)
	}
	return nil
}
