package digitalocean

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	InferenceBaseURL        = "https://inference.do-ai.run"
	DefaultInferenceModel   = "openai-gpt-oss-120b"
	DefaultInferenceTimeout = 120 * time.Second

	completionsPath     = "/v1/chat/completions"
	defaultRetryBackoff = 500 * time.Millisecond
	maxRetryWait        = 10 * time.Second
	maxErrorBody        = 512
)

// InferenceClient talks to an OpenAI-compatible chat completion endpoint
type InferenceClient struct {
	apiKey     string
	url        string
	model      string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
}

type InferenceConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// MaxRetries counts extra attempts after a 429 or 5xx; zero disables retries
	MaxRetries   int
	RetryBackoff time.Duration
	// HTTPClient replaces the default client, in which case Timeout is ignored
	HTTPClient *http.Client
}

func NewInferenceClient(cfg InferenceConfig) *InferenceClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = InferenceBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultInferenceModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultInferenceTimeout
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &InferenceClient{
		apiKey:     cfg.APIKey,
		url:        cfg.BaseURL + completionsPath,
		model:      cfg.Model,
		http:       cfg.HTTPClient,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.RetryBackoff,
	}
}

func (c *InferenceClient) Model() string { return c.model }

// ChatMessage is one chat turn
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func SystemMessage(content string) ChatMessage { return ChatMessage{Role: "system", Content: content} }

func UserMessage(content string) ChatMessage { return ChatMessage{Role: "user", Content: content} }

// JSONSchema asks the model for output that follows Schema
type JSONSchema struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Schema      map[string]interface{} `json:"schema"`
	Strict      bool                   `json:"strict,omitempty"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

// ChatRequest is the wire body of a completion call
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// SchemaName returns the requested schema name, or "" for free-form output
func (r ChatRequest) SchemaName() string {
	if r.ResponseFormat == nil || r.ResponseFormat.JSONSchema == nil {
		return ""
	}
	return r.ResponseFormat.JSONSchema.Name
}

type ChatOption func(*ChatRequest)

func WithTemperature(t float64) ChatOption {
	return func(r *ChatRequest) { r.Temperature = t }
}

func WithMaxTokens(n int) ChatOption {
	return func(r *ChatRequest) { r.MaxTokens = n }
}

func WithJSONSchema(schema JSONSchema) ChatOption {
	return func(r *ChatRequest) {
		r.ResponseFormat = &responseFormat{Type: "json_schema", JSONSchema: &schema}
	}
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   Usage        `json:"usage"`
}

// Content is the first choice's text, "" when the model returned no choices
func (r *ChatResponse) Content() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

func (r *ChatResponse) FinishReason() string {
	if len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].FinishReason
}

// Truncated reports a completion cut off by the token limit
func (r *ChatResponse) Truncated() bool {
	return r.FinishReason() == "length"
}

// APIError is a non-2xx answer from the inference API
type APIError struct {
	StatusCode int
	Body       string
	// RetryAfter is the server's Retry-After hint, zero when absent
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	body := e.Body
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody] + "..."
	}
	return fmt.Sprintf("inference API error (status %d): %s", e.StatusCode, body)
}

// Retryable reports whether the same request may succeed later
func (e *APIError) Retryable() bool {
	switch e.StatusCode {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Complete sends messages and returns the model's answer. Retryable API
// errors are attempted again up to MaxRetries times with exponential backoff,
// or after the server's Retry-After when it sends one.
func (c *InferenceClient) Complete(ctx context.Context, messages []ChatMessage, opts ...ChatOption) (*ChatResponse, error) {
	req := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   4096,
	}
	for _, opt := range opts {
		opt(&req)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode chat request: %w", err)
	}

	schedule := newRetrySchedule(c.backoff)
	return backoff.Retry(ctx, func() (*ChatResponse, error) {
		resp, err := c.send(ctx, body)
		if err == nil {
			return resp, nil
		}
		var apiErr *APIError
		if !errors.As(err, &apiErr) || !apiErr.Retryable() {
			return nil, backoff.Permanent(err)
		}
		schedule.hint = apiErr.RetryAfter
		return nil, err
	},
		backoff.WithBackOff(schedule),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
	)
}

func (c *InferenceClient) send(ctx context.Context, body []byte) (*ChatResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read chat response: %w", err)
	}

	if res.StatusCode/100 != 2 {
		apiErr := &APIError{StatusCode: res.StatusCode, Body: string(payload)}
		if secs, err := strconv.Atoi(res.Header.Get("Retry-After")); err == nil && secs > 0 {
			apiErr.RetryAfter = time.Duration(secs) * time.Second
		}
		return nil, apiErr
	}

	var out ChatResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return nil, fmt.Errorf("decode chat response: %w", err)
	}
	return &out, nil
}

// retrySchedule is exponential backoff that defers to a one-shot server hint
type retrySchedule struct {
	exp  *backoff.ExponentialBackOff
	hint time.Duration
}

func newRetrySchedule(initial time.Duration) *retrySchedule {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = initial
	exp.MaxInterval = maxRetryWait
	return &retrySchedule{exp: exp}
}

func (s *retrySchedule) NextBackOff() time.Duration {
	if s.hint > 0 {
		wait := min(s.hint, maxRetryWait)
		s.hint = 0
		return wait
	}
	return s.exp.NextBackOff()
}

func (s *retrySchedule) Reset() {
	s.hint = 0
	s.exp.Reset()
}
