package questionparser

import (
	"context"
	"errors"
	"fmt"

	"github.com/sahilchouksey/exam-prep-api/services/digitalocean"
	"github.com/sahilchouksey/exam-prep-api/utils"
)

// RawOutput is the untrusted text an oracle produced, expected to hold one JSON object
type RawOutput string

// Oracle turns raw text into data that should satisfy schema, following instructions.
// Implementations must be safe for concurrent use and hold no state between calls.
type Oracle interface {
	Invoke(ctx context.Context, instructions string, schema SchemaDescriptor, rawText string) (RawOutput, error)
}

// OracleFunc adapts a function to the Oracle interface
type OracleFunc func(ctx context.Context, instructions string, schema SchemaDescriptor, rawText string) (RawOutput, error)

// Invoke calls f
func (f OracleFunc) Invoke(ctx context.Context, instructions string, schema SchemaDescriptor, rawText string) (RawOutput, error) {
	return f(ctx, instructions, schema, rawText)
}

// ChatCompleter is the part of the inference client the oracle needs
type ChatCompleter interface {
	Complete(ctx context.Context, messages []digitalocean.ChatMessage, opts ...digitalocean.ChatOption) (*digitalocean.ChatResponse, error)
}

// InferenceOracle is an Oracle backed by an OpenAI-compatible chat completion endpoint
type InferenceOracle struct {
	client    ChatCompleter
	limiter   *digitalocean.RateLimiter
	maxTokens int
	log       *utils.Logger
}

// InferenceOracleOption configures an InferenceOracle
type InferenceOracleOption func(*InferenceOracle)

// WithRateLimiter makes every call wait for a token first
func WithRateLimiter(limiter *digitalocean.RateLimiter) InferenceOracleOption {
	return func(o *InferenceOracle) {
		o.limiter = limiter
	}
}

// WithMaxTokens caps the completion length
func WithMaxTokens(n int) InferenceOracleOption {
	return func(o *InferenceOracle) {
		o.maxTokens = n
	}
}

// WithOracleLogger sets the logger used for per-call usage lines
func WithOracleLogger(log *utils.Logger) InferenceOracleOption {
	return func(o *InferenceOracle) {
		o.log = log
	}
}

// NewInferenceOracle creates an oracle over client
func NewInferenceOracle(client ChatCompleter, opts ...InferenceOracleOption) *InferenceOracle {
	o := &InferenceOracle{
		client:    client,
		maxTokens: 8192,
		log:       utils.L(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Invoke sends instructions as the system message and the raw text, fenced
// with ''', as the user message. Transport failures map to ErrOracleUnavailable.
func (o *InferenceOracle) Invoke(ctx context.Context, instructions string, schema SchemaDescriptor, rawText string) (RawOutput, error) {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	messages := []digitalocean.ChatMessage{
		digitalocean.SystemMessage(instructions),
		digitalocean.UserMessage("Raw text to parse:\n'''\n" + rawText + "\n'''"),
	}

	resp, err := o.client.Complete(ctx, messages,
		digitalocean.WithTemperature(0.1),
		digitalocean.WithMaxTokens(o.maxTokens),
		digitalocean.WithJSONSchema(digitalocean.JSONSchema{
			Name:        schema.Name,
			Description: schema.Description,
			Schema:      schema.Definition,
		}),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	o.log.Debug("inference completed",
		"schema", schema.Name,
		"model", resp.Model,
		"usage_prompt", resp.Usage.PromptTokens,
		"usage_completion", resp.Usage.CompletionTokens,
		"finish_reason", resp.FinishReason(),
	)

	if resp.Truncated() {
		o.log.Warn("inference output truncated at the token limit", "schema", schema.Name, "max_tokens", o.maxTokens)
	}

	return RawOutput(resp.Content()), nil
}
