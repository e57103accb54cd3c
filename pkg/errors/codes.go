package errors

// JSON-RPC 2.0 Standard Error Codes
const (
	// ParseError indicates invalid JSON was received
	CodeParseError int = -32700

	// InvalidRequest indicates the JSON sent is not a valid Request object
	CodeInvalidRequest int = -32600

	// MethodNotFound indicates the method does not exist / is not available
	CodeMethodNotFound int = -32601

	// InvalidParams indicates invalid method parameter(s)
	CodeInvalidParams int = -32602

	// InternalError indicates internal JSON-RPC error
	CodeInternalError int = -32603
)

// Module-specific codes. They only travel on the wire when a local failure is
// reported back to the peer; locally the Kind is authoritative.
const (
	CodeServerNotReady int = -32001 // Peer has not completed the handshake

	CodeResourceNotFound int = -32200 // Requested resource not found

	CodeOperationCancelled  int = -32300 // Operation was cancelled
	CodeOperationTimeout    int = -32301 // Operation timed out
	CodeRemoteExecution     int = -32302 // Capability ran and reported failure
	CodeOperationNotAllowed int = -32303 // Operation not valid in current state
	CodeRoundLimitExceeded  int = -32304 // Orchestration round limit reached

	CodeUnknownCapability int = -32400 // Capability absent from the registry

	CodeConnectionLost int = -32502 // Connection lost during operation

	CodeValidationError      int = -32750 // Generic validation error
	CodeMissingTemplateParam int = -32751 // URI template placeholder left unbound
	CodeInvalidTemplate      int = -32752 // URI template failed to parse

	CodeInvalidCursor int = -32801 // Invalid pagination cursor

	CodeProtocolError   int = -32900 // Generic protocol error
	CodeVersionMismatch int = -32901 // Protocol version mismatch
)

// Kind identifies a variant of the error taxonomy.
type Kind string

const (
	KindProtocol             Kind = "ProtocolError"
	KindHandshake            Kind = "HandshakeError"
	KindTimeout              Kind = "TimeoutError"
	KindCancelled            Kind = "CancelledError"
	KindConnectionLost       Kind = "ConnectionLost"
	KindUnknownCapability    Kind = "UnknownCapability"
	KindInvalidArguments     Kind = "InvalidArguments"
	KindMissingTemplateParam Kind = "MissingTemplateParam"
	KindRemoteExecution      Kind = "RemoteExecutionError"
	KindRemote               Kind = "RemoteError"
	KindRoundLimitExceeded   Kind = "RoundLimitExceeded"
	KindOther                Kind = "Other"
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeParseError:     {CodeParseError, "ParseError", "Invalid JSON was received", CategoryProtocol, SeverityError},
	CodeInvalidRequest: {CodeInvalidRequest, "InvalidRequest", "Invalid Request object", CategoryProtocol, SeverityError},
	CodeMethodNotFound: {CodeMethodNotFound, "MethodNotFound", "Method does not exist", CategoryProtocol, SeverityError},
	CodeInvalidParams:  {CodeInvalidParams, "InvalidParams", "Invalid method parameters", CategoryValidation, SeverityError},
	CodeInternalError:  {CodeInternalError, "InternalError", "Internal JSON-RPC error", CategoryInternal, SeverityError},

	CodeServerNotReady:   {CodeServerNotReady, "ServerNotReady", "Peer not initialized", CategoryProtocol, SeverityError},
	CodeResourceNotFound: {CodeResourceNotFound, "ResourceNotFound", "Resource not found", CategoryNotFound, SeverityError},

	CodeOperationCancelled:  {CodeOperationCancelled, "OperationCancelled", "Operation cancelled", CategoryCancelled, SeverityInfo},
	CodeOperationTimeout:    {CodeOperationTimeout, "OperationTimeout", "Operation timed out", CategoryTimeout, SeverityError},
	CodeRemoteExecution:     {CodeRemoteExecution, "RemoteExecutionError", "Capability execution failed", CategoryProvider, SeverityWarning},
	CodeOperationNotAllowed: {CodeOperationNotAllowed, "OperationNotAllowed", "Operation not allowed", CategoryProtocol, SeverityError},
	CodeRoundLimitExceeded:  {CodeRoundLimitExceeded, "RoundLimitExceeded", "Round limit exceeded", CategoryInternal, SeverityWarning},

	CodeUnknownCapability: {CodeUnknownCapability, "UnknownCapability", "Unknown capability", CategoryNotFound, SeverityError},
	CodeConnectionLost:    {CodeConnectionLost, "ConnectionLost", "Connection lost", CategoryTransport, SeverityCritical},

	CodeValidationError:      {CodeValidationError, "ValidationError", "Validation error", CategoryValidation, SeverityError},
	CodeMissingTemplateParam: {CodeMissingTemplateParam, "MissingTemplateParam", "Template parameter missing", CategoryValidation, SeverityError},
	CodeInvalidTemplate:      {CodeInvalidTemplate, "InvalidTemplate", "Invalid URI template", CategoryValidation, SeverityError},
	CodeInvalidCursor:        {CodeInvalidCursor, "InvalidCursor", "Invalid pagination cursor", CategoryValidation, SeverityError},

	CodeProtocolError:   {CodeProtocolError, "ProtocolError", "Protocol error", CategoryProtocol, SeverityError},
	CodeVersionMismatch: {CodeVersionMismatch, "VersionMismatch", "Protocol version mismatch", CategoryProtocol, SeverityError},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryProvider
}

// GetErrorCodeSeverity returns the severity of an error code
func GetErrorCodeSeverity(code int) Severity {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Severity
	}
	return SeverityError
}

// IsStandardJSONRPCCode checks if a code is in the JSON-RPC reserved range
func IsStandardJSONRPCCode(code int) bool {
	return code >= -32768 && code <= -32000
}
