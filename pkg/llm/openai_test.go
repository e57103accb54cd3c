package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/mcp-agent-go/pkg/protocol"
)

func TestToolCallJSON(t *testing.T) {
	tc := ToolCall{ID: "call_1", Name: "add", Arguments: `{"a":1}`}
	data, err := json.Marshal(tc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"call_1","type":"function","function":{"name":"add","arguments":"{\"a\":1}"}}`, string(data))

	var nested ToolCall
	require.NoError(t, json.Unmarshal(data, &nested))
	assert.Equal(t, tc, nested)

	var flat ToolCall
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","name":"hello","arguments":"{}"}`), &flat))
	assert.Equal(t, ToolCall{ID: "x", Name: "hello", Arguments: "{}"}, flat)
}

func TestToolDescriptorJSON(t *testing.T) {
	data, err := json.Marshal(ToolDescriptor{Name: "add", Description: "Add", Parameters: json.RawMessage(`{"type":"object"}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"add","description":"Add","parameters":{"type":"object"}}}`, string(data))

	data, err = json.Marshal(ToolDescriptor{Name: "noop"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{"name":"noop","parameters":{"type":"object","properties":{}}}}`, string(data))
}

func TestOpenAIClientComplete(t *testing.T) {
	var got struct {
		Model    string            `json:"model"`
		Messages []json.RawMessage `json:"messages"`
		Tools    []json.RawMessage `json:"tools"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "test-model",
			"choices": [{
				"message": {"role": "assistant", "content": "", "tool_calls": [
					{"id": "call_1", "type": "function", "function": {"name": "add", "arguments": "{\"a\":1,\"b\":0.00001}"}}
				]},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
		}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(WithBaseURL(srv.URL+"/v1/"), WithAPIKey("sk-test"), WithModel("test-model"))
	completion, err := c.Complete(context.Background(),
		[]Message{NewMessage(RoleSystem, "be brief"), NewMessage(RoleUser, "add 1 and 0.00001")},
		[]ToolDescriptor{{Name: "add", Parameters: json.RawMessage(`{"type":"object"}`)}},
	)
	require.NoError(t, err)

	assert.Equal(t, "test-model", got.Model)
	assert.Len(t, got.Messages, 2)
	require.Len(t, got.Tools, 1)
	assert.Contains(t, string(got.Tools[0]), `"type":"function"`)

	assert.Equal(t, FinishToolCalls, completion.FinishReason)
	assert.Equal(t, RoleAssistant, completion.Message.Role)
	require.Len(t, completion.Message.ToolCalls, 1)
	assert.Equal(t, ToolCall{ID: "call_1", Name: "add", Arguments: `{"a":1,"b":0.00001}`}, completion.Message.ToolCalls[0])
	require.NotNil(t, completion.Usage)
	assert.Equal(t, 15, completion.Usage.TotalTokens)
}

func TestOpenAIClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr func(t *testing.T, err error)
	}{
		{
			name:   "api error envelope",
			status: http.StatusUnauthorized,
			body:   `{"error":{"message":"bad key","type":"invalid_request_error"}}`,
			wantErr: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
				assert.Equal(t, "bad key", apiErr.Message)
				assert.Equal(t, "invalid_request_error", apiErr.Type)
			},
		},
		{
			name:   "plain error body",
			status: http.StatusBadGateway,
			body:   "upstream down",
			wantErr: func(t *testing.T, err error) {
				var apiErr *APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, "upstream down", apiErr.Message)
			},
		},
		{
			name:   "no choices",
			status: http.StatusOK,
			body:   `{"choices":[]}`,
			wantErr: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, ErrEmptyResponse)
			},
		},
		{
			name:   "garbage",
			status: http.StatusOK,
			body:   `not json`,
			wantErr: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "decode completion response")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAIClient(WithBaseURL(srv.URL)).Complete(context.Background(), []Message{NewMessage(RoleUser, "hi")}, nil)
			require.Error(t, err)
			tt.wantErr(t, err)
		})
	}
}

func TestSamplingHandler(t *testing.T) {
	var seen []Message
	completer := CompleterFunc(func(_ context.Context, messages []Message, tools []ToolDescriptor) (*Completion, error) {
		seen = messages
		assert.Empty(t, tools)
		return &Completion{Model: "fake", FinishReason: FinishStop, Message: NewMessage(RoleAssistant, "a haiku")}, nil
	})

	res, err := SamplingHandler(completer)(context.Background(), &protocol.CreateMessageParams{
		SystemPrompt: "you are a poet",
		Messages: []protocol.SamplingMessage{
			{Role: protocol.RoleUser, Content: protocol.TextContent("write a haiku")},
			{Role: protocol.RoleAssistant, Content: protocol.ImageContent("AAAA", "image/png")},
		},
		MaxTokens: 64,
	})
	require.NoError(t, err)
	assert.Equal(t, protocol.RoleAssistant, res.Role)
	assert.Equal(t, "a haiku", res.Content.Text)
	assert.Equal(t, "fake", res.Model)
	assert.Equal(t, "endTurn", res.StopReason)

	require.Len(t, seen, 3)
	assert.Equal(t, NewMessage(RoleSystem, "you are a poet"), seen[0])
	assert.Equal(t, NewMessage(RoleUser, "write a haiku"), seen[1])
	assert.Equal(t, RoleAssistant, seen[2].Role)
	assert.Equal(t, "[image content, image/png]", seen[2].Content)

	failing := CompleterFunc(func(context.Context, []Message, []ToolDescriptor) (*Completion, error) {
		return nil, errors.New("quota")
	})
	_, err = SamplingHandler(failing)(context.Background(), &protocol.CreateMessageParams{})
	assert.ErrorContains(t, err, "quota")
}
