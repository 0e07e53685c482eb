package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/coordinator"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/metadata"
)

type noopRunner struct{}

func (noopRunner) EnumeratePhase(ctx context.Context, run domain.Run, phase domain.Phase) error {
	return nil
}
func (noopRunner) RunPhase(ctx context.Context, run domain.Run, phase domain.Phase, concurrency int) (domain.PhaseOutcome, error) {
	return domain.PhaseCompleted, nil
}

func newTestRouter(t *testing.T) (http.Handler, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := metadata.NewStore(sqlx.NewDb(db, "postgres"))
	c := coordinator.New(coordinator.Config{Store: store, Runner: noopRunner{}})
	return NewRouter(Config{Coordinator: c, Store: store}), mock
}

func TestCreateRunReturns201AndRunID(t *testing.T) {
	router, mock := newTestRouter(t)
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))

	body, _ := json.Marshal(createRunRequest{
		ProjectID: "project-x",
		Config: domain.RunConfig{
			Generators: []domain.GeneratorSpec{{Kind: domain.GeneratorFilePrompt, Provider: "openai", Model: "gpt-4", Iterations: 1}},
		},
		Priority: 5,
	})
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["run_id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateRunRejectsInvalidConfigWith400(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(createRunRequest{ProjectID: "project-x"})
	req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "INVALID_CONFIG", resp.ErrorType)
}

func TestGetRunReturns500OnStoreError(t *testing.T) {
	router, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnError(sqlmock.ErrCancelled)

	req := httptest.NewRequest(http.MethodGet, "/runs/does-not-exist", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestGetRunReturns200(t *testing.T) {
	router, mock := newTestRouter(t)
	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "pending", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))

	req := httptest.NewRequest(http.MethodGet, "/runs/run-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHealthReturns200(t *testing.T) {
	router, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
