// Package llm wraps the OpenAI-compatible endpoint used for article
// summarization and embeddings. Any backend speaking the chat
// completions contract works (OpenAI, Ollama, vLLM, LM Studio).
package llm

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"newsward/internal/config"
	"newsward/internal/core"
	"newsward/internal/logger"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// ChatClient is the summarizer's view of the model endpoint.
type ChatClient interface {
	// Complete runs one chat turn and returns the raw model text plus
	// total token usage.
	Complete(ctx context.Context, system, user string) (string, int, error)
	// Embed returns the embedding vector for a text, or nil when
	// embeddings are not configured.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is the production ChatClient backed by go-openai.
type Client struct {
	api            *openai.Client
	rt             *rateLimitTransport
	model          string
	embeddingModel string
	maxTokens      int
}

// Retry envelope for model calls.
const (
	retryInitial = 2 * time.Second
	retryMax     = 30 * time.Second
	retryTries   = 3
	callTimeout  = 60 * time.Second
)

// NewClient builds a Client from config.
func NewClient(cfg config.LLM) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIBase != "" {
		apiCfg.BaseURL = cfg.APIBase
	}
	rt := &rateLimitTransport{base: http.DefaultTransport}
	apiCfg.HTTPClient = &http.Client{Transport: rt}
	return &Client{
		api:            openai.NewClientWithConfig(apiCfg),
		rt:             rt,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		maxTokens:      cfg.MaxTokens,
	}
}

// rateLimitTransport records the Retry-After hint of the most recent
// 429 response. go-openai's error type does not carry response headers,
// so the hint has to be captured at the transport.
type rateLimitTransport struct {
	base http.RoundTripper

	mu   sync.Mutex
	hint time.Duration
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		if s := resp.Header.Get("Retry-After"); s != "" {
			if n, perr := strconv.Atoi(s); perr == nil && n > 0 {
				t.mu.Lock()
				t.hint = time.Duration(n) * time.Second
				t.mu.Unlock()
			}
		}
	}
	return resp, err
}

// takeHint returns and clears the pending Retry-After duration.
func (t *rateLimitTransport) takeHint() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	d := t.hint
	t.hint = 0
	return d
}

// Complete runs one chat completion with retries. Rate limits and 5xx
// responses are retried with exponential backoff; after the envelope is
// exhausted a 429 surfaces as KindRateLimited so callers can shed load.
func (c *Client) Complete(ctx context.Context, system, user string) (string, int, error) {
	var content string
	var tokens int

	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		resp, err := c.api.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: 0.3,
			MaxTokens:   c.maxTokens,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Permanent(core.E(core.KindData, "model returned no choices"))
		}
		content = resp.Choices[0].Message.Content
		tokens = resp.Usage.TotalTokens
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return "", 0, err
	}
	return content, tokens, nil
}

// Embed returns the embedding for text, nil when no embedding model is
// configured.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if c.embeddingModel == "" {
		return nil, nil
	}

	var vec []float32
	op := func() error {
		callCtx, cancel := context.WithTimeout(ctx, callTimeout)
		defer cancel()

		resp, err := c.api.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Model: openai.EmbeddingModel(c.embeddingModel),
			Input: []string{text},
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Data) == 0 {
			return backoff.Permanent(core.E(core.KindData, "empty embedding response"))
		}
		vec = resp.Data[0].Embedding
		return nil
	}

	if err := backoff.Retry(op, c.policy(ctx)); err != nil {
		return nil, err
	}
	return vec, nil
}

func (c *Client) policy(ctx context.Context) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryInitial
	bo.MaxInterval = retryMax
	var b backoff.BackOff = bo
	if c.rt != nil {
		b = &hintedBackOff{BackOff: bo, rt: c.rt}
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retryTries-1), ctx)
}

// hintedBackOff stretches the next wait to a server-provided
// Retry-After when it exceeds the exponential interval.
type hintedBackOff struct {
	backoff.BackOff
	rt *rateLimitTransport
}

func (h *hintedBackOff) NextBackOff() time.Duration {
	d := h.BackOff.NextBackOff()
	if d == backoff.Stop {
		return d
	}
	if hint := h.rt.takeHint(); hint > d {
		return hint
	}
	return d
}

// classify maps an API error to the retry policy: 429 and 5xx retry,
// everything else is permanent.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			logger.Warn("llm rate limited, backing off")
			return core.E(core.KindRateLimited, "llm rate limited", err)
		case apiErr.HTTPStatusCode >= 500:
			return core.E(core.KindUpstream, "llm server error (%d): %v", apiErr.HTTPStatusCode, err)
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return backoff.Permanent(core.E(core.KindAuth, "llm auth rejected", err))
		default:
			return backoff.Permanent(core.E(core.KindUpstream, "llm request failed", err))
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return core.E(core.KindTransient, "llm call timed out", err)
	}
	// Network-level failures are worth retrying.
	return core.E(core.KindTransient, "llm call failed", err)
}

// IsRateLimited reports whether err is (or wraps) a 429 outcome.
func IsRateLimited(err error) bool {
	return core.KindOf(err) == core.KindRateLimited
}
