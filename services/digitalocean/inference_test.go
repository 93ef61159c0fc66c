package digitalocean

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

type roundTripperFunc func(req *http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) { return f(req) }

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestComplete_SendsSchemaAndReadsContent(t *testing.T) {
	var captured ChatRequest
	client := NewInferenceClient(InferenceConfig{
		APIKey:  "test-key",
		BaseURL: "https://inference.test",
		Model:   "test-model",
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.String() != "https://inference.test/v1/chat/completions" {
				t.Errorf("unexpected url %s", req.URL)
			}
			if got := req.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("unexpected auth header %q", got)
			}
			if err := json.NewDecoder(req.Body).Decode(&captured); err != nil {
				t.Fatalf("decode request: %v", err)
			}
			return jsonResponse(http.StatusOK, `{"model": "test-model", "choices": [{"message": {"role": "assistant", "content": "{\"ok\": true}"}, "finish_reason": "stop"}], "usage": {"prompt_tokens": 10, "completion_tokens": 3, "total_tokens": 13}}`), nil
		})},
	})

	schema := map[string]interface{}{"type": "object"}
	resp, err := client.Complete(context.Background(),
		[]ChatMessage{SystemMessage("rules"), UserMessage("text")},
		WithTemperature(0.1),
		WithMaxTokens(100),
		WithJSONSchema(JSONSchema{Name: "shape", Description: "desc", Schema: schema}),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if captured.Model != "test-model" || captured.MaxTokens != 100 || captured.Temperature != 0.1 {
		t.Errorf("options not applied: %+v", captured)
	}
	if captured.ResponseFormat == nil || captured.ResponseFormat.Type != "json_schema" {
		t.Fatalf("expected json_schema response format, got %+v", captured.ResponseFormat)
	}
	if captured.SchemaName() != "shape" {
		t.Errorf("unexpected schema name %q", captured.SchemaName())
	}
	if resp.Content() != `{"ok": true}` {
		t.Errorf("unexpected content %q", resp.Content())
	}
	if resp.Usage.TotalTokens != 13 {
		t.Errorf("expected 13 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestComplete_APIError(t *testing.T) {
	client := NewInferenceClient(InferenceConfig{
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			return jsonResponse(http.StatusServiceUnavailable, `{"error": "overloaded"}`), nil
		})},
	})

	_, err := client.Complete(context.Background(), []ChatMessage{UserMessage("hi")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("unexpected status %d", apiErr.StatusCode)
	}
}

func TestComplete_RetriesTemporaryErrors(t *testing.T) {
	calls := 0
	client := NewInferenceClient(InferenceConfig{
		MaxRetries:   2,
		RetryBackoff: time.Millisecond,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			if calls < 3 {
				return jsonResponse(http.StatusTooManyRequests, `{"error": "slow down"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "done"}, "finish_reason": "length"}]}`), nil
		})},
	})

	resp, err := client.Complete(context.Background(), []ChatMessage{UserMessage("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
	if !resp.Truncated() {
		t.Error("finish_reason length should report truncation")
	}
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	calls := 0
	client := NewInferenceClient(InferenceConfig{
		MaxRetries:   3,
		RetryBackoff: time.Millisecond,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			return jsonResponse(http.StatusUnauthorized, `{"error": "bad key"}`), nil
		})},
	})

	_, err := client.Complete(context.Background(), []ChatMessage{UserMessage("hi")})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Retryable() {
		t.Fatalf("expected a permanent *APIError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single attempt, got %d", calls)
	}
}

func TestComplete_HonoursRetryAfter(t *testing.T) {
	calls := 0
	client := NewInferenceClient(InferenceConfig{
		MaxRetries:   1,
		RetryBackoff: time.Millisecond,
		HTTPClient: &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			calls++
			if calls == 1 {
				resp := jsonResponse(http.StatusTooManyRequests, `{"error": "slow down"}`)
				resp.Header.Set("Retry-After", "30")
				return resp, nil
			}
			return jsonResponse(http.StatusOK, `{"choices": [{"message": {"role": "assistant", "content": "late"}}]}`), nil
		})},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := client.Complete(ctx, []ChatMessage{UserMessage("hi")}); err == nil {
		t.Fatal("expected the Retry-After wait to outlast the context")
	}
	if calls != 1 {
		t.Errorf("expected no second attempt before Retry-After, got %d calls", calls)
	}
}

func TestContent_NoChoices(t *testing.T) {
	if got := (&ChatResponse{}).Content(); got != "" {
		t.Errorf("expected empty content, got %q", got)
	}
}
