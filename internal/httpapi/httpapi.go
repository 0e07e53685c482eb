// Package httpapi is the thin HTTP shell over the Run Coordinator (spec §6):
// it decodes/validates requests, delegates to the coordinator and metadata
// store, and shapes responses and errors into the wire contract. It owns no
// state transitions itself.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/genbatch/pipeline/internal/coordinator"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
	"github.com/genbatch/pipeline/internal/obs/metrics"
	"github.com/genbatch/pipeline/internal/ratelimit"
	"github.com/genbatch/pipeline/internal/tenantauth"
)

// Handler bundles the dependencies every endpoint needs.
type Handler struct {
	coordinator *coordinator.Coordinator
	store       *metadata.Store
	ratelimit   *ratelimit.Manager
	auth        *tenantauth.Validator
	logger      *log.Logger
	metrics     *metrics.Metrics
}

// Config wires a Handler's dependencies.
type Config struct {
	Coordinator *coordinator.Coordinator
	Store       *metadata.Store
	RateLimit   *ratelimit.Manager
	Auth        *tenantauth.Validator
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

// NewRouter returns the mux exposing every verb in spec §6.
func NewRouter(cfg Config) http.Handler {
	h := &Handler{
		coordinator: cfg.Coordinator,
		store:       cfg.Store,
		ratelimit:   cfg.RateLimit,
		auth:        cfg.Auth,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
	}

	r := mux.NewRouter()
	r.Use(h.metricsMiddleware)
	if h.auth != nil {
		r.Use(h.authMiddleware)
	}

	r.HandleFunc("/health", h.health).Methods(http.MethodGet)
	r.HandleFunc("/rate-limits/status", h.rateLimitStatus).Methods(http.MethodGet)

	r.HandleFunc("/runs", h.createRun).Methods(http.MethodPost)
	r.HandleFunc("/runs", h.listRuns).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.getRun).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}", h.updateRun).Methods(http.MethodPatch)
	r.HandleFunc("/runs/{id}", h.deleteRun).Methods(http.MethodDelete)
	r.HandleFunc("/runs/{id}/documents", h.attachDocument).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/documents/batch", h.attachDocumentsBatch).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/documents", h.listRunDocuments).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/start", h.startRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/cancel", h.cancelRun).Methods(http.MethodPost)
	r.HandleFunc("/runs/{id}/evaluate/status", h.evaluateStatus).Methods(http.MethodGet)
	r.HandleFunc("/runs/{id}/evaluate/results", h.evaluateResults).Methods(http.MethodGet)
	r.HandleFunc("/documents/{id}", h.deleteDocument).Methods(http.MethodDelete)

	return r
}

func (h *Handler) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		status := http.StatusText(rec.status)
		h.metrics.RequestsTotal.WithLabelValues(r.Method, path, status).Inc()
		h.metrics.RequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) rateLimitStatus(w http.ResponseWriter, r *http.Request) {
	if h.ratelimit == nil {
		writeJSON(w, http.StatusOK, []ratelimit.Snapshot{})
		return
	}
	writeJSON(w, http.StatusOK, h.ratelimit.Snapshots())
}
