package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ajitpratap0/mcp-agent-go/pkg/logging"
)

const (
	// DefaultBaseURL is the OpenAI API root
	DefaultBaseURL = "https://api.openai.com/v1"
	// DefaultModel is used when no model is configured
	DefaultModel = "gpt-4o-mini"
	// DefaultHTTPTimeout bounds one completion round-trip
	DefaultHTTPTimeout = 120 * time.Second

	maxErrorBody = 4 << 10
)

// ErrEmptyResponse is returned when the endpoint answers without choices
var ErrEmptyResponse = errors.New("completion returned no choices")

// APIError is a non-2xx answer from the completion endpoint
type APIError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("completion endpoint returned %d (%s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("completion endpoint returned %d: %s", e.StatusCode, e.Message)
}

// OpenAIClient implements Completer against any endpoint that speaks the
// OpenAI chat-completions API.
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	maxTokens   int
	httpClient  *http.Client
	logger      logging.Logger
}

// OpenAIOption configures an OpenAIClient
type OpenAIOption func(*OpenAIClient)

// WithBaseURL points the client at another compatible endpoint
func WithBaseURL(url string) OpenAIOption {
	return func(c *OpenAIClient) {
		if url != "" {
			c.baseURL = strings.TrimRight(url, "/")
		}
	}
}

// WithAPIKey sets the bearer token
func WithAPIKey(key string) OpenAIOption {
	return func(c *OpenAIClient) { c.apiKey = key }
}

// WithModel selects the model
func WithModel(model string) OpenAIOption {
	return func(c *OpenAIClient) {
		if model != "" {
			c.model = model
		}
	}
}

// WithTemperature sets the sampling temperature
func WithTemperature(t float64) OpenAIOption {
	return func(c *OpenAIClient) { c.temperature = &t }
}

// WithMaxTokens caps the completion length
func WithMaxTokens(n int) OpenAIOption {
	return func(c *OpenAIClient) { c.maxTokens = n }
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) OpenAIOption {
	return func(c *OpenAIClient) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger logging.Logger) OpenAIOption {
	return func(c *OpenAIClient) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewOpenAIClient creates a chat-completions client
func NewOpenAIClient(opts ...OpenAIOption) *OpenAIClient {
	c := &OpenAIClient{
		baseURL:    DefaultBaseURL,
		model:      DefaultModel,
		httpClient: &http.Client{Timeout: DefaultHTTPTimeout},
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithFields(logging.String(logging.ComponentKey, "llm"))
	return c
}

// Model returns the configured model name
func (c *OpenAIClient) Model() string {
	return c.model
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []Message        `json:"messages"`
	Tools       []ToolDescriptor `json:"tools,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      Message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *Usage `json:"usage,omitempty"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete posts the conversation to {base}/chat/completions
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message, tools []ToolDescriptor) (*Completion, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		Tools:       tools,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode completion response: %w", err)
	}
	if len(out.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	choice := out.Choices[0]
	c.logger.Debug("completion received",
		logging.String("model", out.Model),
		logging.String("finish_reason", choice.FinishReason),
		logging.Int("tool_calls", len(choice.Message.ToolCalls)),
		logging.Duration("duration", time.Since(start)),
	)
	if choice.Message.Role == "" {
		choice.Message.Role = RoleAssistant
	}
	return &Completion{
		Model:        out.Model,
		FinishReason: choice.FinishReason,
		Message:      choice.Message,
		Usage:        out.Usage,
	}, nil
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
	var env errorEnvelope
	if json.Unmarshal(raw, &env) == nil && env.Error.Message != "" {
		apiErr.Message = env.Error.Message
		apiErr.Type = env.Error.Type
	}
	return apiErr
}
