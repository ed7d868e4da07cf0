package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"

	"github.com/cenkalti/backoff/v4"
)

func chatResponse(content string, tokens int) map[string]any {
	return map[string]any{
		"id":     "chatcmpl-test",
		"object": "chat.completion",
		"model":  "test-model",
		"choices": []map[string]any{
			{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}},
		},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": tokens - 10, "total_tokens": tokens},
	}
}

func newTestClient(baseURL string) *Client {
	return NewClient(config.LLM{
		APIBase:        baseURL + "/v1",
		APIKey:         "test-key",
		Model:          "test-model",
		EmbeddingModel: "test-embed",
		MaxTokens:      256,
	})
}

func TestCompleteReturnsContentAndTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(chatResponse(`{"summary":"ok"}`, 42))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	content, tokens, err := c.Complete(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if content != `{"summary":"ok"}` {
		t.Errorf("content = %q", content)
	}
	if tokens != 42 {
		t.Errorf("tokens = %d, want 42", tokens)
	}
}

func TestCompleteRetriesOn429(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":{"message":"rate limit","type":"rate_limit_exceeded"}}`))
			return
		}
		json.NewEncoder(w).Encode(chatResponse("second try", 20))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	content, _, err := c.Complete(context.Background(), "s", "u")
	if err != nil {
		t.Fatalf("Complete after retry: %v", err)
	}
	if content != "second try" {
		t.Errorf("content = %q", content)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestCompletePersistent429SurfacesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"rate limit","type":"rate_limit_exceeded"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRateLimited(err) {
		t.Errorf("expected rate-limited error, got %v (kind %v)", err, core.KindOf(err))
	}
}

func TestRetryAfterHeaderStretchesBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	rt := &rateLimitTransport{base: http.DefaultTransport}
	resp, err := (&http.Client{Transport: rt}).Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()

	bo := &hintedBackOff{BackOff: backoff.NewConstantBackOff(time.Second), rt: rt}
	if d := bo.NextBackOff(); d != 7*time.Second {
		t.Errorf("first wait = %v, want the server's 7s", d)
	}
	if d := bo.NextBackOff(); d != time.Second {
		t.Errorf("hint must clear after one use, got %v", d)
	}
}

func TestCompleteAuthErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	_, _, err := c.Complete(context.Background(), "s", "u")
	if err == nil {
		t.Fatal("expected error")
	}
	if core.KindOf(err) != core.KindAuth {
		t.Errorf("kind = %v, want KindAuth", core.KindOf(err))
	}
	if calls.Load() != 1 {
		t.Errorf("auth failures must not retry, got %d calls", calls.Load())
	}
}

func TestEmbedDisabledWithoutModel(t *testing.T) {
	c := NewClient(config.LLM{APIBase: "http://unused.example/v1", Model: "m"})
	vec, err := c.Embed(context.Background(), "text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if vec != nil {
		t.Error("expected nil vector when embeddings are not configured")
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data": []map[string]any{
				{"object": "embedding", "index": 0, "embedding": []float32{0.1, 0.2, 0.3}},
			},
			"usage": map[string]any{"prompt_tokens": 3, "total_tokens": 3},
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	vec, err := c.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("len(vec) = %d, want 3", len(vec))
	}
}
