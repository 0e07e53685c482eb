// Package generator holds the two HTTP clients for the external generator
// services (spec §4.5): the file-prompt driver and the research driver.
// Both share one thin client shape; only the base URL and payload differ.
package generator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/genbatch/pipeline/internal/domain"
)

// Request is one generation call: a document rendered into prompt form plus
// the frozen per-spec config, and the per-tenant credential headers the
// Coordinator injected from the Key Vault.
type Request struct {
	DocumentID        string
	Prompt            string
	Config            json.RawMessage
	CredentialHeaders map[string]string
	Iteration         int
	// Provider and Model select the rate-limit bucket for this call. A
	// RunConfig may list several (provider, model) pairs under one
	// GeneratorKind, so these travel per-request rather than being fixed
	// on the client; a zero value falls back to the client's own default.
	Provider string
	Model    string
}

// Result is what a generator call produces (spec §4.5).
type Result struct {
	ArtifactBytes []byte
	CostUSD       float64
	TokenCount    int
	DurationMS    int64
	SourceRefs    []string
}

// EstimatedTokens is a coarse request-size estimate used only for the rate
// limiter's pre-call token budget; the bucket is corrected from response
// headers afterward (spec §4.1).
func (r Request) EstimatedTokens() int {
	n := len(r.Prompt) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// Client drives one generator kind end to end: prompt in, artifact out.
// Implementations must not retry non-transient (4xx) failures themselves —
// that policy is owned by the caller (internal/scheduler), which classifies
// the returned error via apperr.Transient.
type Client interface {
	Kind() domain.GeneratorKind
	Generate(ctx context.Context, req Request) (Result, error)
}

// catastrophicCeiling bounds how long the coordinator will ever wait on a
// single generator call, regardless of upstream-advertised timeouts (spec
// §4.5: "coordinator imposes only a catastrophic ceiling (24h)").
const catastrophicCeiling = 24 * time.Hour

// WithCeiling wraps ctx with the catastrophic ceiling if the caller hasn't
// already set a tighter deadline.
func WithCeiling(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < catastrophicCeiling {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, catastrophicCeiling)
}
