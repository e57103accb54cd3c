package session

import (
	"context"

	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

type sessionCtxKey struct{}
type requestIDCtxKey struct{}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// FromContext returns the session serving the current peer request
func FromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(*Session)
	return s, ok
}

func withRequestID(ctx context.Context, id protocol.ID) context.Context {
	return context.WithValue(ctx, requestIDCtxKey{}, id)
}

// RequestIDFromContext returns the id of the peer request being served
func RequestIDFromContext(ctx context.Context) (protocol.ID, bool) {
	id, ok := ctx.Value(requestIDCtxKey{}).(protocol.ID)
	return id, ok
}
