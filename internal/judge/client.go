// Package judge is the Judge Runner (spec §4.6): builds grading prompts for
// single-document and pairwise evaluation, calls judge models through a
// rate-limited HTTP client, tolerantly parses their replies with
// tidwall/gjson, and retries a malformed reply with a stricter "reformat"
// prompt before giving up and recording a failed-parse row.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/ratelimit"
	"github.com/genbatch/pipeline/internal/resilience"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultMaxBodySize    = 4 << 20
	defaultAcquireTimeout = 30 * time.Second
)

// ModelClient calls one judge model with a fully-built prompt and returns
// its raw text reply. Implementations own rate limiting and HTTP transport;
// Runner owns prompting, parsing and retry-with-reformat.
type ModelClient interface {
	Call(ctx context.Context, provider, model, prompt string, credentialHeaders map[string]string) (raw string, tokens int, err error)
}

// HTTPModelClient is the concrete ModelClient: a thin POST to a
// chat-completion-shaped judge endpoint, grounded in the same pattern as
// internal/generator's HTTP client.
type HTTPModelClient struct {
	baseURL        string
	httpClient     *http.Client
	rateLimiter    *ratelimit.Manager
	breakers       *resilience.BreakerRegistry
	maxBodyBytes   int64
	acquireTimeout time.Duration
}

// HTTPModelClientConfig configures HTTPModelClient.
type HTTPModelClientConfig struct {
	BaseURL        string
	HTTPClient     *http.Client
	RateLimiter    *ratelimit.Manager
	Breakers       *resilience.BreakerRegistry
	Timeout        time.Duration
	MaxBodyBytes   int64
	AcquireTimeout time.Duration
}

func NewHTTPModelClient(cfg HTTPModelClientConfig) (*HTTPModelClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("judge: BaseURL is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("judge: BaseURL must be a valid absolute URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	} else {
		copied := *client
		if copied.Timeout == 0 {
			copied.Timeout = timeout
		}
		client = &copied
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}

	acquire := cfg.AcquireTimeout
	if acquire <= 0 {
		acquire = defaultAcquireTimeout
	}

	return &HTTPModelClient{baseURL: baseURL, httpClient: client, rateLimiter: cfg.RateLimiter, breakers: cfg.Breakers, maxBodyBytes: maxBody, acquireTimeout: acquire}, nil
}

var _ ModelClient = (*HTTPModelClient)(nil)

type judgeWireRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Prompt   string `json:"prompt"`
}

type judgeWireResponse struct {
	Text       string `json:"text"`
	TokenCount int    `json:"token_count"`
}

func (c *HTTPModelClient) Call(ctx context.Context, provider, model, prompt string, credentialHeaders map[string]string) (string, int, error) {
	estimatedTokens := len(prompt) / 4
	if estimatedTokens < 1 {
		estimatedTokens = 1
	}

	if c.rateLimiter != nil {
		permit, err := c.rateLimiter.Acquire(ctx, provider, model, estimatedTokens, c.acquireTimeout)
		if err != nil {
			return "", 0, err
		}
		text, tokens, header, err := c.callThroughBreaker(ctx, provider, model, prompt, credentialHeaders)
		c.rateLimiter.Release(permit, tokens, ratelimit.ResponseHeaders{Provider: provider, Header: header})
		return text, tokens, err
	}

	text, tokens, _, err := c.callThroughBreaker(ctx, provider, model, prompt, credentialHeaders)
	return text, tokens, err
}

// callThroughBreaker runs doCall through the (provider, model) circuit
// breaker when one is configured, surfacing a trip as
// apperr.UpstreamTransient so it retries the same way any other transient
// upstream failure would.
func (c *HTTPModelClient) callThroughBreaker(ctx context.Context, provider, model, prompt string, credentialHeaders map[string]string) (string, int, http.Header, error) {
	if c.breakers == nil {
		return c.doCall(ctx, provider, model, prompt, credentialHeaders)
	}

	var text string
	var tokens int
	var header http.Header
	cb := c.breakers.Get(provider, model)
	err := cb.Execute(ctx, func() error {
		var callErr error
		text, tokens, header, callErr = c.doCall(ctx, provider, model, prompt, credentialHeaders)
		return callErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return "", 0, nil, apperr.UpstreamTransient("judge_call", err)
	}
	return text, tokens, header, err
}

func (c *HTTPModelClient) doCall(ctx context.Context, provider, model, prompt string, credentialHeaders map[string]string) (string, int, http.Header, error) {
	body, err := json.Marshal(judgeWireRequest{Provider: provider, Model: model, Prompt: prompt})
	if err != nil {
		return "", 0, nil, apperr.Internal("encode judge request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/judge", bytes.NewReader(body))
	if err != nil {
		return "", 0, nil, apperr.Internal("build judge request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range credentialHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", 0, nil, apperr.UpstreamTransient("judge_call", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyBytes))
	if err != nil {
		return "", 0, resp.Header, apperr.UpstreamTransient("judge_call", err)
	}

	if resp.StatusCode >= 500 {
		return "", 0, resp.Header, apperr.UpstreamTransient("judge_call", fmt.Errorf("upstream %s", resp.Status))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return "", 0, resp.Header, apperr.UpstreamThrottled(provider, 0)
	}
	if resp.StatusCode >= 400 {
		return "", 0, resp.Header, apperr.UpstreamNonTransient("judge_call", fmt.Errorf("upstream %s", resp.Status))
	}

	var wire judgeWireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return "", 0, resp.Header, apperr.UpstreamNonTransient("judge_call", fmt.Errorf("decode response: %w", err))
	}
	return wire.Text, wire.TokenCount, resp.Header, nil
}
