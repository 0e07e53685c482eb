package httpapi

import (
	"net/http"

	"github.com/genbatch/pipeline/internal/domain"
)

type evaluateStatusResponse struct {
	Run      domain.Run                       `json:"run"`
	Timeline any                               `json:"timeline"`
	Tasks    map[domain.TaskKind]map[string]int `json:"tasks"`
}

// evaluateStatus reports the run's current phase timeline plus a
// per-task-kind status breakdown (spec §6).
func (h *Handler) evaluateStatus(w http.ResponseWriter, r *http.Request) {
	runID := pathVar(r, "id")

	run, err := h.coordinator.Get(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	timeline, err := h.store.GetRunTimeline(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}

	taskKinds := []domain.TaskKind{
		domain.TaskGenerateFPF, domain.TaskGenerateResearch,
		domain.TaskSingleEval, domain.TaskPairwiseEval,
		domain.TaskCombine, domain.TaskPostCombineEval,
	}
	counts := make(map[domain.TaskKind]map[string]int, len(taskKinds))
	for _, kind := range taskKinds {
		byStatus, err := h.store.CountTasksByStatus(r.Context(), runID, kind)
		if err != nil {
			writeError(w, err)
			return
		}
		if len(byStatus) == 0 {
			continue
		}
		flat := make(map[string]int, len(byStatus))
		for status, n := range byStatus {
			flat[string(status)] = n
		}
		counts[kind] = flat
	}

	writeJSON(w, http.StatusOK, evaluateStatusResponse{Run: run, Timeline: timeline, Tasks: counts})
}

type evaluateResultsResponse struct {
	EloRatings      []domain.EloRating      `json:"elo_ratings"`
	EvaluationRows  []domain.EvaluationRow  `json:"evaluation_rows"`
}

// evaluateResults reports the run's graded scores and final Elo standings
// (spec §4.7/§6).
func (h *Handler) evaluateResults(w http.ResponseWriter, r *http.Request) {
	runID := pathVar(r, "id")

	ratings, err := h.store.ListEloRatings(r.Context(), runID)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.store.ListEvaluationRows(r.Context(), runID, "")
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, evaluateResultsResponse{EloRatings: ratings, EvaluationRows: rows})
}
