package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaxonomyKinds(t *testing.T) {
	tests := []struct {
		name     string
		err      MCPError
		wantKind Kind
		wantCode int
		wantCat  Category
	}{
		{"protocol", ProtocolError("missing method"), KindProtocol, CodeProtocolError, CategoryProtocol},
		{"parse", ProtocolErrorWithCode(CodeParseError, "bad json", nil), KindProtocol, CodeParseError, CategoryProtocol},
		{"handshake", HandshakeFailed("version mismatch", nil), KindHandshake, CodeVersionMismatch, CategoryProtocol},
		{"not initialized", NotInitialized("tools/list"), KindHandshake, CodeServerNotReady, CategoryProtocol},
		{"timeout", RequestTimeout("tools/call", "req_1", time.Second), KindTimeout, CodeOperationTimeout, CategoryTimeout},
		{"cancelled", RequestCancelled("tools/call", "req_1", nil), KindCancelled, CodeOperationCancelled, CategoryCancelled},
		{"connection lost", ConnectionLost("eof", nil), KindConnectionLost, CodeConnectionLost, CategoryTransport},
		{"unknown capability", UnknownCapability("tool", "nope"), KindUnknownCapability, CodeUnknownCapability, CategoryNotFound},
		{"invalid arguments", InvalidArguments("add", fmt.Errorf("a is required")), KindInvalidArguments, CodeInvalidParams, CategoryValidation},
		{"missing template param", MissingTemplateParam("user://{id}", []string{"id"}), KindMissingTemplateParam, CodeMissingTemplateParam, CategoryValidation},
		{"remote execution", RemoteExecutionError("add", "boom"), KindRemoteExecution, CodeRemoteExecution, CategoryProvider},
		{"remote", RemoteError(CodeMethodNotFound, "no such method", nil), KindRemote, CodeMethodNotFound, CategoryProtocol},
		{"round limit", RoundLimitExceeded(10, "partial"), KindRoundLimitExceeded, CodeRoundLimitExceeded, CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantKind, tt.err.Kind())
			assert.Equal(t, tt.wantCode, tt.err.Code())
			assert.Equal(t, tt.wantCat, tt.err.Category())
			assert.NotEmpty(t, tt.err.Error())
			assert.True(t, Is(tt.err, tt.wantKind))
		})
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := UnknownCapability("tool", "missing")
	wrapped := fmt.Errorf("invoke failed: %w", base)
	twice := fmt.Errorf("outer: %w", wrapped)

	assert.Equal(t, KindUnknownCapability, KindOf(twice))
	assert.True(t, IsCode(twice, CodeUnknownCapability))
	assert.True(t, IsCategory(twice, CategoryNotFound))

	mcpErr, ok := AsMCPError(twice)
	require.True(t, ok)
	data, ok := mcpErr.Data().(*CapabilityErrorData)
	require.True(t, ok)
	assert.Equal(t, "missing", data.Name)
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindOther, KindOf(stderrors.New("plain")))
	assert.Equal(t, KindOther, KindOf(nil))
	assert.Equal(t, KindOther, KindOf(NewError(CodeInternalError, "x", CategoryInternal, SeverityError)))
}

func TestWithHelpersPreserveKind(t *testing.T) {
	err := RequestTimeout("ping", "req_9", 50*time.Millisecond).
		WithDetail("peer slow").
		WithContext(&Context{SessionID: "s1", Component: "Session"})

	assert.Equal(t, KindTimeout, err.Kind())
	assert.Equal(t, "s1", err.Context().SessionID)
	assert.Contains(t, err.Error(), "peer slow")
}

func TestUnwrapCause(t *testing.T) {
	cause := stderrors.New("pipe closed")
	err := ConnectionLost("read failed", cause)
	assert.True(t, stderrors.Is(err, cause))
}

func TestRemoteErrorKeepsPeerPayload(t *testing.T) {
	err := RemoteError(-32000, "custom failure", map[string]interface{}{"hint": "retry"})
	data, ok := err.Data().(*RemoteErrorData)
	require.True(t, ok)
	assert.Equal(t, -32000, data.Code)
	assert.Equal(t, "custom failure", data.Message)
	assert.Equal(t, CategoryProvider, err.Category())
}

func TestRoundLimitPartialAnswer(t *testing.T) {
	err := RoundLimitExceeded(3, "so far: 42")
	data, ok := err.Data().(*RoundLimitData)
	require.True(t, ok)
	assert.Equal(t, 3, data.MaxRounds)
	assert.Equal(t, "so far: 42", data.PartialAnswer)
}

func TestIsSessionFatal(t *testing.T) {
	assert.True(t, IsSessionFatal(ProtocolError("x")))
	assert.True(t, IsSessionFatal(ConnectionLost("eof", nil)))
	assert.True(t, IsSessionFatal(fmt.Errorf("wrapped: %w", HandshakeFailed("x", nil))))
	assert.False(t, IsSessionFatal(RemoteExecutionError("add", "bad")))
	assert.False(t, IsSessionFatal(InvalidArguments("add", nil)))
	assert.False(t, IsSessionFatal(UnknownCapability("tool", "x")))
}

func TestMarshalJSON(t *testing.T) {
	err := MissingTemplateParam("user://{user_id}", []string{"user_id"})
	data, jerr := json.Marshal(err)
	require.NoError(t, jerr)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(CodeMissingTemplateParam), decoded["code"])
	assert.Equal(t, "validation", decoded["category"])
}

func TestErrorCodeRegistry(t *testing.T) {
	info, ok := GetErrorCodeInfo(CodeConnectionLost)
	require.True(t, ok)
	assert.Equal(t, "ConnectionLost", info.Name)
	assert.Equal(t, "UnknownError", GetErrorCodeName(12345))
	assert.Equal(t, CategoryProvider, GetErrorCodeCategory(12345))
	assert.True(t, IsStandardJSONRPCCode(CodeParseError))
	assert.False(t, IsStandardJSONRPCCode(1))
}
