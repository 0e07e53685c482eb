package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// HeaderSnapshot is what a per-provider adapter extracts from response
// headers (spec §4.1: "A per-provider adapter extracts limit/remaining/
// reset-at"). applyHeadersLocked ignores zero or negative limits and a zero
// ResetAt; remaining counts are applied whenever they are non-negative, so a
// remaining count of 0 sets that counter to 0.
type HeaderSnapshot struct {
	RPMLimit     int
	RPMRemaining int
	TPMLimit     int
	TPMRemaining int
	ResetAt      time.Time
}

// HeaderParser extracts a HeaderSnapshot from one provider's response
// headers. Parse failures must never propagate (spec §4.1): adapters return
// the zero HeaderSnapshot rather than an error, and the caller logs at the
// call site.
type HeaderParser func(h http.Header) HeaderSnapshot

// knownParsers maps provider name to its header adapter. Unknown providers
// fall back to ParseGenericHeaders (spec §4.1: "Unknown providers fall back
// to conservative hardcoded defaults").
var knownParsers = map[string]HeaderParser{
	"openai":    ParseOpenAIHeaders,
	"anthropic": ParseAnthropicHeaders,
}

// RegisterHeaderParser lets callers add or override a provider's adapter.
func RegisterHeaderParser(provider string, parser HeaderParser) {
	knownParsers[strings.ToLower(provider)] = parser
}

// ParserFor returns the adapter registered for provider, or the generic
// fallback.
func ParserFor(provider string) HeaderParser {
	if p, ok := knownParsers[strings.ToLower(provider)]; ok {
		return p
	}
	return ParseGenericHeaders
}

// ParseOpenAIHeaders reads OpenAI's x-ratelimit-* convention.
func ParseOpenAIHeaders(h http.Header) HeaderSnapshot {
	var s HeaderSnapshot
	s.RPMLimit = parseIntHeader(h, "X-Ratelimit-Limit-Requests")
	s.RPMRemaining = parseIntHeader(h, "X-Ratelimit-Remaining-Requests")
	s.TPMLimit = parseIntHeader(h, "X-Ratelimit-Limit-Tokens")
	s.TPMRemaining = parseIntHeader(h, "X-Ratelimit-Remaining-Tokens")
	if reset := h.Get("X-Ratelimit-Reset-Requests"); reset != "" {
		if d, err := parseResetDuration(reset); err == nil {
			s.ResetAt = time.Now().Add(d)
		}
	}
	return s
}

// ParseAnthropicHeaders reads Anthropic's anthropic-ratelimit-* convention.
func ParseAnthropicHeaders(h http.Header) HeaderSnapshot {
	var s HeaderSnapshot
	s.RPMLimit = parseIntHeader(h, "Anthropic-Ratelimit-Requests-Limit")
	s.RPMRemaining = parseIntHeader(h, "Anthropic-Ratelimit-Requests-Remaining")
	s.TPMLimit = parseIntHeader(h, "Anthropic-Ratelimit-Tokens-Limit")
	s.TPMRemaining = parseIntHeader(h, "Anthropic-Ratelimit-Tokens-Remaining")
	if reset := h.Get("Anthropic-Ratelimit-Requests-Reset"); reset != "" {
		if t, err := time.Parse(time.RFC3339, reset); err == nil {
			s.ResetAt = t
		}
	}
	return s
}

// ParseGenericHeaders is the conservative fallback for providers with no
// registered adapter: it never trusts headers it doesn't recognize, so it
// always returns the zero HeaderSnapshot and bucket state is left as-is.
func ParseGenericHeaders(http.Header) HeaderSnapshot {
	return HeaderSnapshot{}
}

func parseIntHeader(h http.Header, key string) int {
	v := strings.TrimSpace(h.Get(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// parseResetDuration parses OpenAI's "6m0s"-style or plain-seconds reset
// values into a time.Duration.
func parseResetDuration(v string) (time.Duration, error) {
	if d, err := time.ParseDuration(v); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}
