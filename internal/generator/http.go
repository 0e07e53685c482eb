package generator

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
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/ratelimit"
	"github.com/genbatch/pipeline/internal/resilience"
)

const (
	defaultTimeout        = 60 * time.Second
	defaultMaxBodySize    = 8 << 20 // 8MiB
	defaultAcquireTimeout = 30 * time.Second
)

// Config configures one HTTPClient.
type Config struct {
	Kind           domain.GeneratorKind
	Provider       string
	Model          string
	BaseURL        string
	HTTPClient     *http.Client
	RateLimiter    *ratelimit.Manager
	Breakers       *resilience.BreakerRegistry
	Timeout        time.Duration
	MaxBodyBytes   int64
	AcquireTimeout time.Duration
}

// HTTPClient is the shared implementation backing both generator kinds
// (spec §4.5): POST {prompt, config}, credential headers injected per call,
// one attempt per call with transient 5xx/timeouts reported as retryable
// errors for the caller and 4xx reported as non-retryable, and a
// per-(provider,model) circuit breaker short-circuiting a model that
// is already failing instead of piling more timeouts onto it (spec §2).
type HTTPClient struct {
	kind           domain.GeneratorKind
	provider       string
	model          string
	baseURL        string
	httpClient     *http.Client
	rateLimiter    *ratelimit.Manager
	breakers       *resilience.BreakerRegistry
	maxBodyBytes   int64
	acquireTimeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

func New(cfg Config) (*HTTPClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("generator: BaseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("generator: BaseURL must be a valid absolute URL")
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

	return &HTTPClient{
		kind:           cfg.Kind,
		provider:       cfg.Provider,
		model:          cfg.Model,
		baseURL:        baseURL,
		httpClient:     client,
		rateLimiter:    cfg.RateLimiter,
		breakers:       cfg.Breakers,
		maxBodyBytes:   maxBody,
		acquireTimeout: acquire,
	}, nil
}

func (c *HTTPClient) Kind() domain.GeneratorKind { return c.kind }

type wireRequest struct {
	Prompt string          `json:"prompt"`
	Config json.RawMessage `json:"config,omitempty"`
}

type wireResponse struct {
	Artifact   string   `json:"artifact"`
	CostUSD    float64  `json:"cost_usd"`
	TokenCount int      `json:"token_count"`
	SourceRefs []string `json:"source_refs,omitempty"`
}

// Generate performs exactly one attempt; retry orchestration belongs to the
// scheduler (spec §4.8), which classifies errors with apperr.Transient and
// retries with resilience.TaskRetryConfig.
func (c *HTTPClient) Generate(ctx context.Context, req Request) (Result, error) {
	provider, model := c.provider, c.model
	if req.Provider != "" {
		provider = req.Provider
	}
	if req.Model != "" {
		model = req.Model
	}

	if c.rateLimiter != nil {
		permit, err := c.rateLimiter.Acquire(ctx, provider, model, req.EstimatedTokens(), c.acquireTimeout)
		if err != nil {
			return Result{}, err
		}
		start := time.Now()
		result, actualTokens, header, err := c.callThroughBreaker(ctx, provider, model, req)
		c.rateLimiter.Release(permit, actualTokens, ratelimit.ResponseHeaders{Provider: provider, Header: header})
		result.DurationMS = time.Since(start).Milliseconds()
		return result, err
	}

	start := time.Now()
	result, _, _, err := c.callThroughBreaker(ctx, provider, model, req)
	result.DurationMS = time.Since(start).Milliseconds()
	return result, err
}

// callThroughBreaker runs doCall, tripping the (provider, model) circuit
// breaker on failures when one is configured. ErrCircuitOpen/ErrTooManyRequests
// are surfaced as apperr.UpstreamTransient so the scheduler's retry
// classification (apperr.Transient) treats an open breaker the same as any
// other transient upstream failure.
func (c *HTTPClient) callThroughBreaker(ctx context.Context, provider, model string, req Request) (Result, int, http.Header, error) {
	if c.breakers == nil {
		return c.doCall(ctx, req)
	}

	var result Result
	var tokens int
	var header http.Header
	cb := c.breakers.Get(provider, model)
	err := cb.Execute(ctx, func() error {
		var callErr error
		result, tokens, header, callErr = c.doCall(ctx, req)
		return callErr
	})
	if errors.Is(err, resilience.ErrCircuitOpen) || errors.Is(err, resilience.ErrTooManyRequests) {
		return Result{}, 0, nil, apperr.UpstreamTransient("generate", err)
	}
	return result, tokens, header, err
}

func (c *HTTPClient) doCall(ctx context.Context, req Request) (Result, int, http.Header, error) {
	body, err := json.Marshal(wireRequest{Prompt: req.Prompt, Config: req.Config})
	if err != nil {
		return Result{}, 0, nil, apperr.Internal("encode generator request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, 0, nil, apperr.Internal("build generator request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range req.CredentialHeaders {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, 0, nil, apperr.UpstreamTransient("generate", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.maxBodyBytes)
	respBody, err := io.ReadAll(limited)
	if err != nil {
		return Result{}, 0, resp.Header, apperr.UpstreamTransient("generate", err)
	}

	if resp.StatusCode >= 500 {
		return Result{}, 0, resp.Header, apperr.UpstreamTransient("generate", fmt.Errorf("upstream %s: %s", resp.Status, truncate(respBody, 256)))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, 0, resp.Header, apperr.UpstreamThrottled(c.provider, 0)
	}
	if resp.StatusCode >= 400 {
		return Result{}, 0, resp.Header, apperr.UpstreamNonTransient("generate", fmt.Errorf("upstream %s: %s", resp.Status, truncate(respBody, 256)))
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return Result{}, 0, resp.Header, apperr.UpstreamNonTransient("generate", fmt.Errorf("decode response: %w", err))
	}

	return Result{
		ArtifactBytes: []byte(wire.Artifact),
		CostUSD:       wire.CostUSD,
		TokenCount:    wire.TokenCount,
		SourceRefs:    wire.SourceRefs,
	}, wire.TokenCount, resp.Header, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "...(truncated)"
	}
	return s
}
