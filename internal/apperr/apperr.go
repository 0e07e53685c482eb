// Package apperr gives every engine component one error shape: a code, an
// HTTP status, a message and an optional wrapped cause. Coordinator, HTTP
// layer and scheduler all branch on Code rather than on error strings.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies one error kind from the taxonomy in spec §7.
type Code string

const (
	// Domain
	CodeRunNotFound              Code = "RUN_NOT_FOUND"
	CodeInvalidStatusTransition  Code = "INVALID_STATUS_TRANSITION"
	CodeRunAlreadyTerminal       Code = "RUN_ALREADY_TERMINAL"
	CodeDocumentNotFound         Code = "DOCUMENT_NOT_FOUND"
	CodeDocumentAlreadyAttached  Code = "DOCUMENT_ALREADY_ATTACHED"
	CodeDocumentNotAttached      Code = "DOCUMENT_NOT_ATTACHED"

	// Validation
	CodeInvalidConfig  Code = "INVALID_CONFIG"
	CodeOversizeInput  Code = "OVERSIZE_INPUT"
	CodeMalformedID    Code = "MALFORMED_ID"

	// Auth
	CodeMissingCredential Code = "MISSING_CREDENTIAL"
	CodeInvalidCredential Code = "INVALID_CREDENTIAL"
	CodeMissingSecret     Code = "MISSING_PLUGIN_SECRET"
	CodeTenantMismatch    Code = "TENANT_MISMATCH"

	// Rate-limit
	CodeRateLimitTimeout  Code = "RATE_LIMIT_TIMEOUT"
	CodeUpstreamThrottled Code = "UPSTREAM_RATE_LIMITED"

	// Upstream
	CodeUpstreamTransient    Code = "UPSTREAM_TRANSIENT"
	CodeUpstreamNonTransient Code = "UPSTREAM_NON_TRANSIENT"

	// Infrastructure
	CodeDatabaseUnavailable Code = "DATABASE_UNAVAILABLE"
	CodeStorageUnreachable  Code = "STORAGE_UNREACHABLE"
	CodeVaultUnreachable    Code = "VAULT_UNREACHABLE"

	// Budget
	CodeBudgetExceeded Code = "BUDGET_EXCEEDED"

	CodeInternal Code = "INTERNAL"
)

// Error is the structured error every component returns across its public
// surface (spec §7). It carries enough to render an HTTP response directly
// or to decide retry/fail-the-run without string matching.
type Error struct {
	Code       Code
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// WithDetail attaches one contextual key/value and returns the receiver.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(code Code, status int, message string) *Error {
	return &Error{Code: code, HTTPStatus: status, Message: message}
}

func Wrap(code Code, status int, message string, err error) *Error {
	return &Error{Code: code, HTTPStatus: status, Message: message, Err: err}
}

// As extracts an *Error from err, if any wraps one.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}

// CodeOf returns the Code of err if it (or something it wraps) is an *Error,
// else CodeInternal.
func CodeOf(err error) Code {
	if ae, ok := As(err); ok {
		return ae.Code
	}
	return CodeInternal
}

// Domain constructors

func RunNotFound(runID string) *Error {
	return New(CodeRunNotFound, http.StatusNotFound, "run not found").WithDetail("run_id", runID)
}

func InvalidStatusTransition(from, to string) *Error {
	return New(CodeInvalidStatusTransition, http.StatusConflict, "invalid status transition").
		WithDetail("from", from).WithDetail("to", to)
}

func RunAlreadyTerminal(runID, status string) *Error {
	return New(CodeRunAlreadyTerminal, http.StatusConflict, "run is already in a terminal state").
		WithDetail("run_id", runID).WithDetail("status", status)
}

func DocumentNotFound(documentID string) *Error {
	return New(CodeDocumentNotFound, http.StatusNotFound, "document not found").WithDetail("document_id", documentID)
}

func DocumentAlreadyAttached(runID, documentID string) *Error {
	return New(CodeDocumentAlreadyAttached, http.StatusConflict, "document already attached to run").
		WithDetail("run_id", runID).WithDetail("document_id", documentID)
}

func DocumentNotAttached(runID, documentID string) *Error {
	return New(CodeDocumentNotAttached, http.StatusBadRequest, "document not attached to run").
		WithDetail("run_id", runID).WithDetail("document_id", documentID)
}

// Validation constructors

func InvalidConfig(reason string) *Error {
	return New(CodeInvalidConfig, http.StatusBadRequest, "invalid run config").WithDetail("reason", reason)
}

func OversizeInput(field string, limit int) *Error {
	return New(CodeOversizeInput, http.StatusBadRequest, "input exceeds size limit").
		WithDetail("field", field).WithDetail("limit", limit)
}

func MalformedID(field, value string) *Error {
	return New(CodeMalformedID, http.StatusBadRequest, "malformed identifier").
		WithDetail("field", field).WithDetail("value", value)
}

// Auth constructors

func MissingCredential(tenant string) *Error {
	return New(CodeMissingCredential, http.StatusUnauthorized, "missing credential").WithDetail("tenant_id", tenant)
}

func InvalidCredential(err error) *Error {
	return Wrap(CodeInvalidCredential, http.StatusUnauthorized, "invalid credential", err)
}

func MissingSecret(tenant, provider string) *Error {
	return New(CodeMissingSecret, http.StatusUnprocessableEntity, "missing plugin secret").
		WithDetail("tenant_id", tenant).WithDetail("provider", provider)
}

func TenantMismatch(expected, got string) *Error {
	return New(CodeTenantMismatch, http.StatusForbidden, "tenant mismatch").
		WithDetail("expected", expected).WithDetail("got", got)
}

// Rate-limit constructors

func RateLimitTimeout(provider, model string) *Error {
	return New(CodeRateLimitTimeout, http.StatusServiceUnavailable, "timed out waiting for rate-limit permit").
		WithDetail("provider", provider).WithDetail("model", model)
}

func UpstreamThrottled(provider string, retryAfterSeconds float64) *Error {
	return New(CodeUpstreamThrottled, http.StatusTooManyRequests, "upstream rate limited the request").
		WithDetail("provider", provider).WithDetail("retry_after_s", retryAfterSeconds)
}

// Upstream constructors

func UpstreamTransient(operation string, err error) *Error {
	return Wrap(CodeUpstreamTransient, http.StatusBadGateway, "transient upstream error", err).
		WithDetail("operation", operation)
}

func UpstreamNonTransient(operation string, err error) *Error {
	return Wrap(CodeUpstreamNonTransient, http.StatusBadGateway, "non-transient upstream error", err).
		WithDetail("operation", operation)
}

// Infrastructure constructors

func DatabaseUnavailable(operation string, err error) *Error {
	return Wrap(CodeDatabaseUnavailable, http.StatusInternalServerError, "database unavailable", err).
		WithDetail("operation", operation)
}

func StorageUnreachable(operation string, err error) *Error {
	return Wrap(CodeStorageUnreachable, http.StatusInternalServerError, "storage provider unreachable", err).
		WithDetail("operation", operation)
}

func VaultUnreachable(operation string, err error) *Error {
	return Wrap(CodeVaultUnreachable, http.StatusInternalServerError, "key vault unreachable", err).
		WithDetail("operation", operation)
}

// Budget constructors

func BudgetExceeded(runID string, estimatedUSD, capUSD float64) *Error {
	return New(CodeBudgetExceeded, http.StatusPaymentRequired, "run cost cap exceeded").
		WithDetail("run_id", runID).WithDetail("estimated_usd", estimatedUSD).WithDetail("cap_usd", capUSD)
}

func Internal(message string, err error) *Error {
	return Wrap(CodeInternal, http.StatusInternalServerError, message, err)
}

// Transient reports whether err represents a condition the scheduler should
// retry in place (spec §4.8/§7) rather than fail the task immediately.
func Transient(err error) bool {
	ae, ok := As(err)
	if !ok {
		return false
	}
	switch ae.Code {
	case CodeUpstreamTransient, CodeRateLimitTimeout, CodeUpstreamThrottled, CodeDatabaseUnavailable:
		return true
	default:
		return false
	}
}
