package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
)

const (
	// JSONRPCVersion is the supported JSON-RPC version
	JSONRPCVersion = "2.0"
)

// ID is a JSON-RPC request id or progress token. It is either a string or an
// integer and keeps its JSON kind across a round-trip. The zero value means
// "absent". ID is comparable and can key a map.
type ID struct {
	str   string
	num   int64
	isNum bool
	set   bool
}

// RequestID identifies a request among those outstanding in one direction.
type RequestID = ID

// ProgressToken is chosen by a request initiator and echoed in progress notifications.
type ProgressToken = ID

// StringID returns a string-valued ID.
func StringID(s string) ID { return ID{str: s, set: true} }

// IntID returns an integer-valued ID.
func IntID(n int64) ID { return ID{num: n, isNum: true, set: true} }

// IsZero reports whether the id is absent.
func (id ID) IsZero() bool { return !id.set }

// IsNumber reports whether the id was an integer on the wire.
func (id ID) IsNumber() bool { return id.isNum }

// String renders the id for logs and map keys.
func (id ID) String() string {
	if !id.set {
		return ""
	}
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

// MarshalJSON implements json.Marshaler.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

// UnmarshalJSON implements json.Unmarshaler. Fractional numbers are rejected.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ID{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = StringID(s)
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("id must be a string or integer, got %s", data)
	}
	*id = IntID(n)
	return nil
}

// MessageKind discriminates the three envelope shapes.
type MessageKind string

const (
	KindRequest      MessageKind = "request"
	KindResponse     MessageKind = "response"
	KindNotification MessageKind = "notification"
)

// Message is one of *Request, *Response or *Notification.
type Message interface {
	Kind() MessageKind
}

// JSONRPCMessage represents a JSON-RPC 2.0 message
type JSONRPCMessage struct {
	JSONRPC string `json:"jsonrpc"`
}

// Request represents a JSON-RPC 2.0 request
type Request struct {
	JSONRPCMessage
	ID     ID              `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Request) Kind() MessageKind { return KindRequest }

// NewRequest creates a new JSON-RPC 2.0 request
func NewRequest(id ID, method string, params interface{}) (*Request, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Request{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Response represents a JSON-RPC 2.0 response
type Response struct {
	JSONRPCMessage
	ID     ID              `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

func (*Response) Kind() MessageKind { return KindResponse }

// NewResponse creates a new JSON-RPC 2.0 success response. A nil result is
// encoded as JSON null so the envelope always carries exactly one of result
// or error.
func NewResponse(id ID, result interface{}) (*Response, error) {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         resultJSON,
	}, nil
}

// NewErrorResponse creates a new JSON-RPC 2.0 error response
func NewErrorResponse(id ID, code int, message string, data interface{}) (*Response, error) {
	dataJSON, err := marshalOptional(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal error data: %w", err)
	}

	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error: &Error{
			Code:    code,
			Message: message,
			Data:    dataJSON,
		},
	}, nil
}

// NewErrorResponseFrom builds an error response from any error. MCPErrors keep
// their code and data; anything else becomes an internal error.
func NewErrorResponseFrom(id ID, err error) *Response {
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Error:          NewErrorObject(err),
	}
}

// Notification represents a JSON-RPC 2.0 notification
type Notification struct {
	JSONRPCMessage
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (*Notification) Kind() MessageKind { return KindNotification }

// NewNotification creates a new JSON-RPC 2.0 notification
func NewNotification(method string, params interface{}) (*Notification, error) {
	paramsJSON, err := marshalOptional(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	return &Notification{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		Method:         method,
		Params:         paramsJSON,
	}, nil
}

// Error represents a JSON-RPC 2.0 error object
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// AsError converts the wire error into a RemoteError.
func (e *Error) AsError() error {
	var data interface{}
	if len(e.Data) > 0 {
		_ = json.Unmarshal(e.Data, &data)
	}
	return mcperrors.RemoteError(e.Code, e.Message, data)
}

// NewErrorObject converts a local error into a wire error object.
func NewErrorObject(err error) *Error {
	if mcpErr, ok := mcperrors.AsMCPError(err); ok {
		obj := &Error{Code: mcpErr.Code(), Message: mcpErr.Error()}
		if mcpErr.Data() != nil {
			if data, merr := json.Marshal(mcpErr.Data()); merr == nil {
				obj.Data = data
			}
		}
		return obj
	}
	return &Error{Code: mcperrors.CodeInternalError, Message: err.Error()}
}

func marshalOptional(v interface{}) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	return json.Marshal(v)
}
