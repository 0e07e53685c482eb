package executors

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/scheduler"
)

func TestExecutePairwiseEvalPersistsResultAndReplaysElo(t *testing.T) {
	modelClient := &fakeModelClient{raw: `{"winner": "a", "rationale": "better"}`}
	rg, mock, mem := newMockRegistry(t, nil, modelClient)
	ctx := context.Background()
	_, err := mem.Write(ctx, "runs/run-1/artifacts/art-a", []byte("content a"), "seed")
	require.NoError(t, err)
	_, err = mem.Write(ctx, "runs/run-1/artifacts/art-b", []byte("content b"), "seed")
	require.NoError(t, err)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "running", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))
	mock.ExpectQuery("SELECT \\* FROM artifacts WHERE artifact_id").WillReturnRows(sqlmock.NewRows(
		[]string{"artifact_id", "run_id", "document_id", "generator", "provider", "model_id", "storage_path", "content_hash", "cost_usd", "token_count", "generation_ms", "metadata", "created_at"},
	).AddRow("art-a", "run-1", "doc-1", "file_prompt", "openai", "gpt-4", "runs/run-1/artifacts/art-a", "h", 0.0, 10, 50, []byte("{}"), time.Now()))
	mock.ExpectQuery("SELECT \\* FROM artifacts WHERE artifact_id").WillReturnRows(sqlmock.NewRows(
		[]string{"artifact_id", "run_id", "document_id", "generator", "provider", "model_id", "storage_path", "content_hash", "cost_usd", "token_count", "generation_ms", "metadata", "created_at"},
	).AddRow("art-b", "run-1", "doc-1", "file_prompt", "openai", "gpt-4", "runs/run-1/artifacts/art-b", "h", 0.0, 10, 50, []byte("{}"), time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pairwise_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT \\* FROM pairwise_results").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "artifact_a", "artifact_b", "judge_model", "iteration", "winner", "flipped", "created_at"},
	).AddRow("run-1", "art-a", "art-b", "gpt-4", 0, "A", false, time.Now()))
	mock.ExpectExec("INSERT INTO elo_ratings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO elo_ratings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	payload, err := json.Marshal(scheduler.PairwiseEvalPayload{ArtifactA: "art-a", ArtifactB: "art-b", Provider: "openai", Model: "gpt-4"})
	require.NoError(t, err)
	task := domain.Task{TaskID: "t1", RunID: "run-1", Kind: domain.TaskPairwiseEval, Payload: payload}

	err = rg.executePairwiseEval(context.Background(), task)
	assert.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
