package httpapi

import (
	"net/http"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

type documentRequest struct {
	Kind          domain.SourceKind `json:"kind"`
	DisplayName   string            `json:"display_name"`
	Repository    string            `json:"repository"`
	Ref           string            `json:"ref"`
	Path          string            `json:"path"`
	InlineContent []byte            `json:"inline_content"`
	Filename      string            `json:"filename"`
	MIMEType      string            `json:"mime_type"`
}

func (d documentRequest) toDomain() domain.Document {
	return domain.Document{
		Kind:          d.Kind,
		DisplayName:   d.DisplayName,
		Repository:    d.Repository,
		Ref:           d.Ref,
		Path:          d.Path,
		InlineContent: d.InlineContent,
		Filename:      d.Filename,
		MIMEType:      d.MIMEType,
	}
}

func (h *Handler) attachDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body"))
		return
	}
	if err := h.coordinator.AttachDocuments(r.Context(), pathVar(r, "id"), []domain.Document{req.toDomain()}); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) attachDocumentsBatch(w http.ResponseWriter, r *http.Request) {
	var reqs []documentRequest
	if err := decodeJSON(r, &reqs); err != nil {
		writeError(w, apperr.InvalidConfig("malformed request body"))
		return
	}
	docs := make([]domain.Document, len(reqs))
	for i, req := range reqs {
		docs[i] = req.toDomain()
	}
	if err := h.coordinator.AttachDocuments(r.Context(), pathVar(r, "id"), docs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *Handler) listRunDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.store.ListRunDocuments(r.Context(), pathVar(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

// deleteDocument detaches a document from a run by marking its RunDocument
// row skipped; the Document and any Artifacts already produced for it are
// retained for audit (spec §3). The owning run is passed as ?run_id= since
// a document_id is scoped to the run it was attached under.
func (h *Handler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("run_id")
	if runID == "" {
		writeError(w, apperr.InvalidConfig("run_id query parameter required"))
		return
	}
	documentID := pathVar(r, "id")
	err := h.store.UpdateRunDocumentStatus(r.Context(), runID, documentID, domain.RunDocSkipped, "")
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
