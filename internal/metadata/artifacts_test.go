package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/domain"
)

func sampleArtifact() domain.Artifact {
	return domain.Artifact{
		ArtifactID:   "01HR000000000000000000ART1",
		RunID:        "run-1",
		DocumentID:   "doc-1",
		Generator:    domain.GeneratorFilePrompt,
		Provider:     "acme",
		ModelID:      "acme-large",
		StoragePath:  "run-1/art1",
		ContentHash:  "abc123",
		CostUSD:      0.25,
		TokenCount:   512,
		GenerationMS: 900,
		Metadata:     map[string]any{"source_refs": []string{"doc-1"}},
		CreatedAt:    time.Now().UTC(),
	}
}

func TestCreateArtifactEncodesMetadata(t *testing.T) {
	store, mock := newMockStore(t)
	a := sampleArtifact()

	mock.ExpectExec("INSERT INTO artifacts").WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.CreateArtifact(context.Background(), a)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetArtifactDecodesMetadata(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"artifact_id", "run_id", "document_id", "generator", "provider", "model_id", "storage_path", "content_hash", "cost_usd", "token_count", "generation_ms", "metadata", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		"art-1", "run-1", "doc-1", "generate-fpf", "acme", "acme-large", "run-1/art1", "abc123", 0.25, 512, 900, []byte(`{"source_refs":["doc-1"]}`), time.Now(),
	)
	mock.ExpectQuery("SELECT \\* FROM artifacts WHERE artifact_id = \\$1").
		WithArgs("art-1").
		WillReturnRows(rows)

	out, err := store.GetArtifact(context.Background(), "art-1")
	require.NoError(t, err)
	assert.Equal(t, domain.GeneratorFilePrompt, out.Generator)
	assert.NotNil(t, out.Metadata)
}

func TestListArtifactsByRunFiltersByDocument(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"artifact_id", "run_id", "document_id", "generator", "provider", "model_id", "storage_path", "content_hash", "cost_usd", "token_count", "generation_ms", "metadata", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow(
		"art-1", "run-1", "doc-1", "file_prompt", "acme", "acme-large", "run-1/art1", "abc123", 0.0, 0, 0, nil, time.Now(),
	)
	mock.ExpectQuery("SELECT \\* FROM artifacts WHERE run_id = \\$1 AND document_id = \\$2 ORDER BY created_at, artifact_id").
		WithArgs("run-1", "doc-1").
		WillReturnRows(rows)

	out, err := store.ListArtifactsByRun(context.Background(), "run-1", "doc-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "art-1", out[0].ArtifactID)
}
