package protocol

import (
	"encoding/json"
)

const (
	// Current protocol revision
	ProtocolRevision = "2025-03-26"

	// Methods for lifecycle management
	MethodInitialize  = "initialize"
	MethodInitialized = "notifications/initialized"
	MethodPing        = "ping"

	// Methods for provider features
	MethodListTools             = "tools/list"
	MethodCallTool              = "tools/call"
	MethodListResources         = "resources/list"
	MethodListResourceTemplates = "resources/templates/list"
	MethodReadResource          = "resources/read"
	MethodSubscribeResource     = "resources/subscribe"
	MethodUnsubscribeResource   = "resources/unsubscribe"
	MethodListPrompts           = "prompts/list"
	MethodGetPrompt             = "prompts/get"
	MethodSetLogLevel           = "logging/setLevel"

	// Methods for agent features, called by the provider
	MethodCreateMessage = "sampling/createMessage"
	MethodElicit        = "elicitation/create"

	// Notifications
	MethodCancelled            = "notifications/cancelled"
	MethodProgress             = "notifications/progress"
	MethodLogMessage           = "notifications/message"
	MethodToolsListChanged     = "notifications/tools/list_changed"
	MethodResourcesListChanged = "notifications/resources/list_changed"
	MethodResourceUpdated      = "notifications/resources/updated"
	MethodPromptsListChanged   = "notifications/prompts/list_changed"
)

// SupportedProtocolVersions lists the revisions this module can speak, newest first.
var SupportedProtocolVersions = []string{ProtocolRevision, "2024-11-05"}

// IsSupportedVersion reports whether v is one of SupportedProtocolVersions.
func IsSupportedVersion(v string) bool {
	for _, s := range SupportedProtocolVersions {
		if s == v {
			return true
		}
	}
	return false
}

// Implementation names a client or server build.
type Implementation struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientCapabilities advertises which callbacks the agent serves.
type ClientCapabilities struct {
	Sampling     *struct{}              `json:"sampling,omitempty"`
	Elicitation  *struct{}              `json:"elicitation,omitempty"`
	Roots        *ListChangedCapability `json:"roots,omitempty"`
	Experimental map[string]interface{} `json:"experimental,omitempty"`
}

// ListChangedCapability is shared by features that emit list_changed notifications.
type ListChangedCapability struct {
	ListChanged bool `json:"listChanged,omitempty"`
}

// ResourcesCapability describes resource support on the provider.
type ResourcesCapability struct {
	Subscribe   bool `json:"subscribe,omitempty"`
	ListChanged bool `json:"listChanged,omitempty"`
}

// ServerCapabilities advertises the provider's features.
type ServerCapabilities struct {
	Tools        *ListChangedCapability `json:"tools,omitempty"`
	Resources    *ResourcesCapability   `json:"resources,omitempty"`
	Prompts      *ListChangedCapability `json:"prompts,omitempty"`
	Logging      *struct{}              `json:"logging,omitempty"`
	Experimental map[string]interface{} `json:"experimental,omitempty"`
}

// InitializeParams defines the parameters for the initialize request
type InitializeParams struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ClientCapabilities `json:"capabilities"`
	ClientInfo      Implementation     `json:"clientInfo"`
}

// InitializeResult defines the response for the initialize request
type InitializeResult struct {
	ProtocolVersion string             `json:"protocolVersion"`
	Capabilities    ServerCapabilities `json:"capabilities"`
	ServerInfo      Implementation     `json:"serverInfo"`
	Instructions    string             `json:"instructions,omitempty"`
}

// Meta is the reserved _meta object on requests.
type Meta struct {
	ProgressToken *ProgressToken `json:"progressToken,omitempty"`
}

// CancelledParams is sent when the initiator abandons a request
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// ProgressParams defines parameters for the progress notification
type ProgressParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// LogLevel follows the syslog severities used by logging/setLevel
type LogLevel string

const (
	LogLevelDebug     LogLevel = "debug"
	LogLevelInfo      LogLevel = "info"
	LogLevelNotice    LogLevel = "notice"
	LogLevelWarning   LogLevel = "warning"
	LogLevelError     LogLevel = "error"
	LogLevelCritical  LogLevel = "critical"
	LogLevelAlert     LogLevel = "alert"
	LogLevelEmergency LogLevel = "emergency"
)

var logLevelRank = map[LogLevel]int{
	LogLevelDebug:     0,
	LogLevelInfo:      1,
	LogLevelNotice:    2,
	LogLevelWarning:   3,
	LogLevelError:     4,
	LogLevelCritical:  5,
	LogLevelAlert:     6,
	LogLevelEmergency: 7,
}

// Valid reports whether l is a known level.
func (l LogLevel) Valid() bool {
	_, ok := logLevelRank[l]
	return ok
}

// AtLeast reports whether l is as severe as min. Unknown levels always pass.
func (l LogLevel) AtLeast(min LogLevel) bool {
	lr, ok := logLevelRank[l]
	if !ok {
		return true
	}
	return lr >= logLevelRank[min]
}

// SetLevelParams defines parameters for the logging/setLevel request
type SetLevelParams struct {
	Level LogLevel `json:"level"`
}

// LogMessageParams defines parameters for the notifications/message notification
type LogMessageParams struct {
	Level  LogLevel        `json:"level"`
	Logger string          `json:"logger,omitempty"`
	Data   json.RawMessage `json:"data"`
}

// PaginatedParams for list requests
type PaginatedParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// PaginatedResult for list responses
type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitempty"`
}

// EmptyResult is the response body of requests with nothing to return.
type EmptyResult struct{}
