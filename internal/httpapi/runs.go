package httpapi

import (
	"net/http"
	"strconv"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/metadata"
)

type createRunRequest struct {
	ProjectID   string            `json:"project_id"`
	Config      domain.RunConfig  `json:"config"`
	Tags        []string          `json:"tags"`
	Priority    int               `json:"priority"`
	RequestedBy string            `json:"requested_by"`
}

func (h *Handler) createRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body"))
		return
	}

	tenantID := claimsFrom(r).TenantID
	runID, err := h.coordinator.CreateRun(r.Context(), tenantID, req.ProjectID, req.Config, req.Tags, req.Priority, req.RequestedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"run_id": runID})
}

func (h *Handler) listRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := metadata.RunFilter{
		TenantID:  claimsFrom(r).TenantID,
		ProjectID: q.Get("project_id"),
		Status:    domain.RunStatus(q.Get("status")),
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		filter.Offset = offset
	}

	runs, err := h.coordinator.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.coordinator.Get(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type updateRunRequest struct {
	Priority *int     `json:"priority"`
	Tags     []string `json:"tags"`
	Summary  *string  `json:"summary"`
}

func (h *Handler) updateRun(w http.ResponseWriter, r *http.Request) {
	var req updateRunRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body"))
		return
	}
	err := h.coordinator.Update(r.Context(), pathVar(r, "id"), metadata.UpdateRunFields{
		Priority: req.Priority, Tags: req.Tags, Summary: req.Summary,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteRun(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Delete(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) startRun(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Start(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) cancelRun(w http.ResponseWriter, r *http.Request) {
	if err := h.coordinator.Cancel(r.Context(), pathVar(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
