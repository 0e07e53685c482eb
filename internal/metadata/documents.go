package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

type documentRow struct {
	DocumentID    string    `db:"document_id"`
	Kind          string    `db:"kind"`
	DisplayName   string    `db:"display_name"`
	Repository    string    `db:"repository"`
	Ref           string    `db:"ref"`
	Path          string    `db:"path"`
	InlineContent []byte    `db:"inline_content"`
	Filename      string    `db:"filename"`
	MIMEType      string    `db:"mime_type"`
	ContentHash   string    `db:"content_hash"`
	CreatedAt     time.Time `db:"created_at"`
}

func (r documentRow) toDomain() domain.Document {
	return domain.Document{
		DocumentID:    r.DocumentID,
		Kind:          domain.SourceKind(r.Kind),
		DisplayName:   r.DisplayName,
		Repository:    r.Repository,
		Ref:           r.Ref,
		Path:          r.Path,
		InlineContent: r.InlineContent,
		Filename:      r.Filename,
		MIMEType:      r.MIMEType,
		ContentHash:   r.ContentHash,
		CreatedAt:     r.CreatedAt,
	}
}

func (s *Store) CreateDocument(ctx context.Context, doc domain.Document) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, kind, display_name, repository, ref, path, inline_content, filename, mime_type, content_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, doc.DocumentID, string(doc.Kind), doc.DisplayName, doc.Repository, doc.Ref, doc.Path, doc.InlineContent, doc.Filename, doc.MIMEType, doc.ContentHash, doc.CreatedAt)
	if err != nil {
		return apperr.DatabaseUnavailable("create_document", err)
	}
	return nil
}

func (s *Store) GetDocument(ctx context.Context, documentID string) (domain.Document, error) {
	var row documentRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM documents WHERE document_id = $1`, documentID)
	if isNoRows(err) {
		return domain.Document{}, apperr.DocumentNotFound(documentID)
	}
	if err != nil {
		return domain.Document{}, apperr.DatabaseUnavailable("get_document", err)
	}
	return row.toDomain(), nil
}

type runDocumentRow struct {
	RunID        string       `db:"run_id"`
	DocumentID   string       `db:"document_id"`
	Status       string       `db:"status"`
	SortOrder    int          `db:"sort_order"`
	ErrorMessage string       `db:"error_message"`
	StartedAt    sql.NullTime `db:"started_at"`
	CompletedAt  sql.NullTime `db:"completed_at"`
}

func (r runDocumentRow) toDomain() domain.RunDocument {
	rd := domain.RunDocument{
		RunID:        r.RunID,
		DocumentID:   r.DocumentID,
		Status:       domain.RunDocumentStatus(r.Status),
		SortOrder:    r.SortOrder,
		ErrorMessage: r.ErrorMessage,
	}
	if r.StartedAt.Valid {
		rd.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		rd.CompletedAt = &r.CompletedAt.Time
	}
	return rd
}

// AttachDocuments inserts junction rows for runID inside tx, assigning
// sort_order by slice position and failing with DOCUMENT_ALREADY_ATTACHED on
// a unique-constraint violation (spec §4.9).
func AttachDocuments(ctx context.Context, tx *sqlx.Tx, runID string, documentIDs []string, startSortOrder int) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO run_documents (run_id, document_id, status, sort_order)
		VALUES ($1, $2, $3, $4)
	`)
	if err != nil {
		return apperr.DatabaseUnavailable("attach_documents", err)
	}
	defer stmt.Close()

	for i, docID := range documentIDs {
		if _, err := stmt.ExecContext(ctx, runID, docID, string(domain.RunDocPending), startSortOrder+i); err != nil {
			if isUniqueViolation(err) {
				return apperr.DocumentAlreadyAttached(runID, docID)
			}
			return apperr.DatabaseUnavailable("attach_documents", err)
		}
	}
	return nil
}

func (s *Store) ListRunDocuments(ctx context.Context, runID string) ([]domain.RunDocument, error) {
	var rows []runDocumentRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM run_documents WHERE run_id = $1 ORDER BY sort_order`, runID)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("list_run_documents", err)
	}
	out := make([]domain.RunDocument, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

func (s *Store) UpdateRunDocumentStatus(ctx context.Context, runID, documentID string, status domain.RunDocumentStatus, errMsg string) error {
	now := time.Now().UTC()
	sets := []string{"status = $1", "error_message = $2"}
	args := []any{string(status), errMsg}

	switch status {
	case domain.RunDocProcessing:
		args = append(args, now)
		sets = append(sets, fmt.Sprintf("started_at = COALESCE(started_at, $%d)", len(args)))
	case domain.RunDocCompleted, domain.RunDocFailed, domain.RunDocSkipped:
		args = append(args, now)
		sets = append(sets, fmt.Sprintf("completed_at = $%d", len(args)))
	}

	args = append(args, runID, documentID)
	query := fmt.Sprintf("UPDATE run_documents SET %s WHERE run_id = $%d AND document_id = $%d",
		strings.Join(sets, ", "), len(args)-1, len(args))

	_, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.DatabaseUnavailable("update_run_document_status", err)
	}
	return nil
}
