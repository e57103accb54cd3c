package errors

import (
	"fmt"
	"time"
)

// RequestErrorData describes a request that failed locally.
type RequestErrorData struct {
	Method    string `json:"method,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Timeout   string `json:"timeout,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// CapabilityErrorData describes a failure tied to a named capability.
type CapabilityErrorData struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// ArgumentErrorData lists schema violations for a tool invocation.
type ArgumentErrorData struct {
	Tool       string   `json:"tool"`
	Violations []string `json:"violations,omitempty"`
}

// TemplateErrorData identifies the template and the unbound placeholders.
type TemplateErrorData struct {
	Template string   `json:"template"`
	Missing  []string `json:"missing,omitempty"`
}

// RemoteErrorData carries the error object returned by the peer verbatim.
type RemoteErrorData struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RoundLimitData reports how far an orchestration got before stopping.
type RoundLimitData struct {
	MaxRounds     int    `json:"max_rounds"`
	PartialAnswer string `json:"partial_answer,omitempty"`
}

func newKind(kind Kind, code int, message string, category Category, severity Severity, cause error) MCPError {
	return &baseError{
		kind:     kind,
		code:     code,
		message:  message,
		category: category,
		severity: severity,
		cause:    cause,
		context:  &Context{Timestamp: time.Now()},
	}
}

// ProtocolError reports a malformed message or envelope violation.
func ProtocolError(reason string) MCPError {
	return ProtocolErrorWithCode(CodeProtocolError, reason, nil)
}

// ProtocolErrorf is ProtocolError with a formatted reason.
func ProtocolErrorf(format string, args ...interface{}) MCPError {
	return ProtocolError(fmt.Sprintf(format, args...))
}

// ProtocolErrorWithCode is ProtocolError with an explicit JSON-RPC code, used by
// the codec for parse (-32700) and invalid request (-32600) failures.
func ProtocolErrorWithCode(code int, reason string, cause error) MCPError {
	return newKind(KindProtocol, code, fmt.Sprintf("protocol error: %s", reason), CategoryProtocol, SeverityError, cause)
}

// HandshakeFailed reports a failed initialize exchange.
func HandshakeFailed(reason string, cause error) MCPError {
	return newKind(KindHandshake, CodeVersionMismatch, fmt.Sprintf("handshake failed: %s", reason), CategoryProtocol, SeverityCritical, cause)
}

// NotInitialized reports an operation attempted before the handshake completed.
func NotInitialized(method string) MCPError {
	return newKind(KindHandshake, CodeServerNotReady, "session not initialized", CategoryProtocol, SeverityError, nil).
		WithData(&RequestErrorData{Method: method, Reason: "initialize must complete first"})
}

// RequestTimeout reports a request whose deadline elapsed before a response.
func RequestTimeout(method, requestID string, timeout time.Duration) MCPError {
	return newKind(KindTimeout, CodeOperationTimeout,
		fmt.Sprintf("request %s (%s) timed out after %s", requestID, method, timeout),
		CategoryTimeout, SeverityError, nil).
		WithData(&RequestErrorData{Method: method, RequestID: requestID, Timeout: timeout.String()})
}

// RequestCancelled reports a request abandoned by its caller.
func RequestCancelled(method, requestID string, cause error) MCPError {
	return newKind(KindCancelled, CodeOperationCancelled,
		fmt.Sprintf("request %s (%s) cancelled", requestID, method),
		CategoryCancelled, SeverityInfo, cause).
		WithData(&RequestErrorData{Method: method, RequestID: requestID})
}

// ConnectionLost reports that the transport failed or the session closed.
func ConnectionLost(reason string, cause error) MCPError {
	return newKind(KindConnectionLost, CodeConnectionLost,
		fmt.Sprintf("connection lost: %s", reason),
		CategoryTransport, SeverityCritical, cause)
}

// UnknownCapability reports a tool, resource or prompt missing from the registry.
func UnknownCapability(kind, name string) MCPError {
	return newKind(KindUnknownCapability, CodeUnknownCapability,
		fmt.Sprintf("unknown %s %q", kind, name),
		CategoryNotFound, SeverityError, nil).
		WithData(&CapabilityErrorData{Kind: kind, Name: name})
}

// InvalidArguments reports arguments rejected before dispatch.
func InvalidArguments(tool string, cause error) MCPError {
	data := &ArgumentErrorData{Tool: tool}
	if cause != nil {
		data.Violations = []string{cause.Error()}
	}
	return newKind(KindInvalidArguments, CodeInvalidParams,
		fmt.Sprintf("invalid arguments for %q", tool),
		CategoryValidation, SeverityError, cause).WithData(data)
}

// MissingTemplateParam reports placeholders with no binding.
func MissingTemplateParam(template string, missing []string) MCPError {
	return newKind(KindMissingTemplateParam, CodeMissingTemplateParam,
		fmt.Sprintf("template %q is missing parameters %v", template, missing),
		CategoryValidation, SeverityError, nil).
		WithData(&TemplateErrorData{Template: template, Missing: missing})
}

// InvalidTemplate reports a URI template that does not parse.
func InvalidTemplate(template string, cause error) MCPError {
	return newKind(KindInvalidArguments, CodeInvalidTemplate,
		fmt.Sprintf("invalid uri template %q", template),
		CategoryValidation, SeverityError, cause).
		WithData(&TemplateErrorData{Template: template})
}

// RemoteExecutionError reports a capability that ran and signalled failure.
func RemoteExecutionError(tool, message string) MCPError {
	return newKind(KindRemoteExecution, CodeRemoteExecution,
		fmt.Sprintf("%s failed: %s", tool, message),
		CategoryProvider, SeverityWarning, nil).
		WithData(&CapabilityErrorData{Kind: "tool", Name: tool})
}

// RemoteError wraps an error object returned by the peer.
func RemoteError(code int, message string, data interface{}) MCPError {
	return newKind(KindRemote, code, message, GetErrorCodeCategory(code), GetErrorCodeSeverity(code), nil).
		WithData(&RemoteErrorData{Code: code, Message: message, Data: data})
}

// RoundLimitExceeded reports an orchestration that hit its round limit.
func RoundLimitExceeded(maxRounds int, partial string) MCPError {
	return newKind(KindRoundLimitExceeded, CodeRoundLimitExceeded,
		fmt.Sprintf("round limit of %d exceeded", maxRounds),
		CategoryInternal, SeverityWarning, nil).
		WithData(&RoundLimitData{MaxRounds: maxRounds, PartialAnswer: partial})
}

// MethodNotFound is returned to a peer that calls a method with no handler.
func MethodNotFound(method string) MCPError {
	return NewError(CodeMethodNotFound, fmt.Sprintf("method not found: %s", method), CategoryProtocol, SeverityError).
		WithData(&RequestErrorData{Method: method})
}

// InvalidParams is returned to a peer whose params do not decode.
func InvalidParams(method string, cause error) MCPError {
	return WrapError(cause, CodeInvalidParams, fmt.Sprintf("invalid params for %s", method), CategoryValidation, SeverityError)
}

// ResourceNotFound is returned when no resource or template matches a URI.
func ResourceNotFound(uri string) MCPError {
	return NewError(CodeResourceNotFound, fmt.Sprintf("resource %q not found", uri), CategoryNotFound, SeverityError)
}

// InvalidCursor reports a pagination cursor the provider cannot decode.
func InvalidCursor(cursor string, cause error) MCPError {
	return WrapError(cause, CodeInvalidCursor, fmt.Sprintf("invalid cursor %q", cursor), CategoryValidation, SeverityError)
}

// Internal wraps an unexpected failure.
func Internal(operation string, cause error) MCPError {
	return WrapError(cause, CodeInternalError, fmt.Sprintf("internal error during %s", operation), CategoryInternal, SeverityError)
}

// IsSessionFatal reports whether err ends an orchestration instead of being
// fed back to the model as tool output.
func IsSessionFatal(err error) bool {
	switch KindOf(err) {
	case KindProtocol, KindHandshake, KindConnectionLost:
		return true
	}
	return false
}
