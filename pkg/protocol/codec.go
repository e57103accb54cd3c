package protocol

import (
	"encoding/json"

	mcperrors "github.com/ajitpratap0/mcp-agent-go/pkg/errors"
)

// envelope is the superset of all message fields, decoded before
// classification so that conflicting shapes can be rejected.
type envelope struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

// Encode serializes a message. The jsonrpc field is always written as "2.0".
func Encode(msg Message) ([]byte, error) {
	switch m := msg.(type) {
	case *Request:
		if m.Method == "" {
			return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeInvalidRequest, "request without method", nil)
		}
		if m.ID.IsZero() {
			return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeInvalidRequest, "request without id", nil)
		}
		out := *m
		out.JSONRPC = JSONRPCVersion
		return json.Marshal(&out)
	case *Response:
		if (len(m.Result) > 0) == (m.Error != nil) {
			return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeInvalidRequest, "response must carry exactly one of result or error", nil)
		}
		out := *m
		out.JSONRPC = JSONRPCVersion
		return json.Marshal(&out)
	case *Notification:
		if m.Method == "" {
			return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeInvalidRequest, "notification without method", nil)
		}
		out := *m
		out.JSONRPC = JSONRPCVersion
		return json.Marshal(&out)
	case nil:
		return nil, mcperrors.ProtocolError("nil message")
	default:
		return nil, mcperrors.ProtocolErrorf("unsupported message type %T", msg)
	}
}

// Decode parses one envelope. Malformed JSON yields a ProtocolError with the
// parse error code; a structurally invalid envelope yields one with the
// invalid request code.
func Decode(data []byte) (Message, error) {
	if !json.Valid(data) {
		return nil, mcperrors.ProtocolErrorWithCode(mcperrors.CodeParseError, "malformed json", nil)
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, invalid("envelope is not an object", err)
	}

	if env.JSONRPC != nil && *env.JSONRPC != JSONRPCVersion {
		return nil, invalid("unsupported jsonrpc version "+*env.JSONRPC, nil)
	}

	var id ID
	hasID := len(env.ID) > 0
	if hasID {
		if err := json.Unmarshal(env.ID, &id); err != nil {
			return nil, invalid("bad id", err)
		}
	}
	hasResult := len(env.Result) > 0
	hasError := env.Error != nil

	if env.Method != nil {
		if *env.Method == "" {
			return nil, invalid("empty method", nil)
		}
		if hasResult || hasError {
			return nil, invalid("message has both method and result/error", nil)
		}
		if !hasID {
			return &Notification{
				JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
				Method:         *env.Method,
				Params:         env.Params,
			}, nil
		}
		if id.IsZero() {
			return nil, invalid("request id must not be null", nil)
		}
		return &Request{
			JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
			ID:             id,
			Method:         *env.Method,
			Params:         env.Params,
		}, nil
	}

	if !hasID {
		return nil, invalid("message has neither method nor id", nil)
	}
	if hasResult && hasError {
		return nil, invalid("response has both result and error", nil)
	}
	if !hasResult && !hasError {
		return nil, invalid("response has neither result nor error", nil)
	}
	return &Response{
		JSONRPCMessage: JSONRPCMessage{JSONRPC: JSONRPCVersion},
		ID:             id,
		Result:         env.Result,
		Error:          env.Error,
	}, nil
}

func invalid(reason string, cause error) error {
	return mcperrors.ProtocolErrorWithCode(mcperrors.CodeInvalidRequest, reason, cause)
}
