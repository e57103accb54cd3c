package logging

import (
	"context"
	"os"
	"sync"

	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

// PeerSink delivers one log record to the remote side of a session, typically
// as a notifications/message notification.
type PeerSink func(level protocol.LogLevel, logger string, data interface{})

// peerLogger adapts the structured Logger interface onto a PeerSink so that
// capability handlers can log with the same API whether the records end up
// on stderr or at the agent.
type peerLogger struct {
	mu     sync.RWMutex
	name   string
	level  Level
	fields map[string]interface{}
	sink   PeerSink
}

// NewPeerLogger returns a Logger that forwards records through sink. The
// record data is an object with the message under "message" plus all fields.
func NewPeerLogger(name string, sink PeerSink) Logger {
	return &peerLogger{name: name, level: DebugLevel, fields: map[string]interface{}{}, sink: sink}
}

func (p *peerLogger) Debug(msg string, fields ...Field) { p.log(DebugLevel, msg, fields) }
func (p *peerLogger) Info(msg string, fields ...Field)  { p.log(InfoLevel, msg, fields) }
func (p *peerLogger) Warn(msg string, fields ...Field)  { p.log(WarnLevel, msg, fields) }
func (p *peerLogger) Error(msg string, fields ...Field) { p.log(ErrorLevel, msg, fields) }

func (p *peerLogger) Fatal(msg string, fields ...Field) {
	p.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (p *peerLogger) WithFields(fields ...Field) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	next := &peerLogger{name: p.name, level: p.level, fields: make(map[string]interface{}, len(p.fields)+len(fields)), sink: p.sink}
	for k, v := range p.fields {
		next.fields[k] = v
	}
	for _, f := range fields {
		next.fields[f.Key] = f.Value
	}
	return next
}

func (p *peerLogger) WithContext(ctx context.Context) Logger {
	if id := RequestIDFromContext(ctx); id != "" {
		return p.WithFields(String(RequestIDKey, id))
	}
	return p.WithFields()
}

func (p *peerLogger) WithError(err error) Logger {
	return p.WithFields(ErrorField(err))
}

func (p *peerLogger) SetLevel(level Level) {
	p.mu.Lock()
	p.level = level
	p.mu.Unlock()
}

func (p *peerLogger) GetLevel() Level {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.level
}

func (p *peerLogger) log(level Level, msg string, fields []Field) {
	p.mu.RLock()
	if level < p.level || p.level == OffLevel {
		p.mu.RUnlock()
		return
	}
	data := make(map[string]interface{}, len(p.fields)+len(fields)+1)
	for k, v := range p.fields {
		data[k] = v
	}
	p.mu.RUnlock()

	for _, f := range fields {
		data[f.Key] = f.Value
	}
	for k, v := range data {
		if err, ok := v.(error); ok {
			data[k] = err.Error()
		}
	}
	data["message"] = msg
	p.sink(ToProtocolLevel(level), p.name, data)
}

// ToProtocolLevel maps a local level onto the wire severity.
func ToProtocolLevel(l Level) protocol.LogLevel {
	switch l {
	case DebugLevel:
		return protocol.LogLevelDebug
	case InfoLevel:
		return protocol.LogLevelInfo
	case WarnLevel:
		return protocol.LogLevelWarning
	case ErrorLevel:
		return protocol.LogLevelError
	default:
		return protocol.LogLevelCritical
	}
}

// FromProtocolLevel maps a wire severity onto the nearest local level.
func FromProtocolLevel(l protocol.LogLevel) Level {
	switch l {
	case protocol.LogLevelDebug:
		return DebugLevel
	case protocol.LogLevelInfo, protocol.LogLevelNotice:
		return InfoLevel
	case protocol.LogLevelWarning:
		return WarnLevel
	case protocol.LogLevelError:
		return ErrorLevel
	case protocol.LogLevelCritical, protocol.LogLevelAlert, protocol.LogLevelEmergency:
		// never exit the process on a peer's record
		return ErrorLevel
	}
	return InfoLevel
}
