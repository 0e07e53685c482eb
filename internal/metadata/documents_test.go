package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

func sampleDocument() domain.Document {
	return domain.Document{
		DocumentID:  "01HR000000000000000000DOC1",
		Kind:        domain.SourceInline,
		DisplayName: "notes.md",
		InlineContent: []byte("hello"),
		Filename:    "notes.md",
		MIMEType:    "text/markdown",
		ContentHash: "deadbeef",
		CreatedAt:   time.Now().UTC(),
	}
}

func TestCreateDocumentInsertsRow(t *testing.T) {
	store, mock := newMockStore(t)
	doc := sampleDocument()

	mock.ExpectExec("INSERT INTO documents").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateDocument(context.Background(), doc)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocumentNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT \\* FROM documents").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(nil))

	_, err := store.GetDocument(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeDocumentNotFound, apperr.CodeOf(err))
}

func TestAttachDocumentsAssignsSortOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "postgres")

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO run_documents")
	prep.ExpectExec().WithArgs("run-1", "doc-a", "pending", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("run-1", "doc-b", "pending", 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := sqlxdb.Beginx()
	require.NoError(t, err)

	err = AttachDocuments(context.Background(), tx, "run-1", []string{"doc-a", "doc-b"}, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListRunDocumentsOrdersBySortOrder(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"run_id", "document_id", "status", "sort_order", "error_message", "started_at", "completed_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("run-1", "doc-a", "completed", 0, "", nil, nil).
		AddRow("run-1", "doc-b", "pending", 1, "", nil, nil)
	mock.ExpectQuery("SELECT \\* FROM run_documents WHERE run_id = \\$1 ORDER BY sort_order").
		WithArgs("run-1").
		WillReturnRows(rows)

	out, err := store.ListRunDocuments(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.RunDocCompleted, out[0].Status)
}

func TestUpdateRunDocumentStatusSetsCompletedAt(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("UPDATE run_documents SET status = \\$1, error_message = \\$2, completed_at = \\$3 WHERE run_id = \\$4 AND document_id = \\$5").
		WithArgs("completed", "", sqlmock.AnyArg(), "run-1", "doc-a").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.UpdateRunDocumentStatus(context.Background(), "run-1", "doc-a", domain.RunDocCompleted, "")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
