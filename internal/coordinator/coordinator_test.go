package coordinator

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
	"github.com/genbatch/pipeline/internal/metadata"
)

type fakeRunner struct {
	outcome   domain.PhaseOutcome
	enumErr   error
	runErr    error
	phasesRan []domain.Phase
}

func (f *fakeRunner) EnumeratePhase(ctx context.Context, run domain.Run, phase domain.Phase) error {
	return f.enumErr
}

func (f *fakeRunner) RunPhase(ctx context.Context, run domain.Run, phase domain.Phase, concurrency int) (domain.PhaseOutcome, error) {
	f.phasesRan = append(f.phasesRan, phase)
	if f.runErr != nil {
		return domain.PhaseFailed, f.runErr
	}
	return f.outcome, nil
}

func newMockCoordinator(t *testing.T, runner PhaseRunner) (*Coordinator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := metadata.NewStore(sqlx.NewDb(db, "postgres"))
	return New(Config{Store: store, Runner: runner}), mock
}

func validConfig() domain.RunConfig {
	return domain.RunConfig{
		Generators: []domain.GeneratorSpec{{Kind: domain.GeneratorFilePrompt, Provider: "openai", Model: "gpt-4", Iterations: 1}},
	}
}

func TestCreateRunRejectsConfigWithNoGenerators(t *testing.T) {
	c, _ := newMockCoordinator(t, nil)
	_, err := c.CreateRun(context.Background(), "tenant-a", "project-x", domain.RunConfig{}, nil, 5, "user-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidConfig, apperr.CodeOf(err))
}

func TestCreateRunRejectsTooManyTags(t *testing.T) {
	c, _ := newMockCoordinator(t, nil)
	tags := make([]string, domain.MaxTags+1)
	_, err := c.CreateRun(context.Background(), "tenant-a", "project-x", validConfig(), tags, 5, "user-1")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidConfig, apperr.CodeOf(err))
}

func TestCreateRunPersistsRun(t *testing.T) {
	c, mock := newMockCoordinator(t, nil)
	mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(1, 1))

	runID, err := c.CreateRun(context.Background(), "tenant-a", "project-x", validConfig(), []string{"eval"}, 5, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, runID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelSetsFlagAndTransitionsNonTerminalRun(t *testing.T) {
	c, mock := newMockCoordinator(t, nil)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "running", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE runs SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := c.Cancel(context.Background(), "run-1")
	require.NoError(t, err)
	assert.True(t, c.IsCancelled("run-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelIsNoOpOnAlreadyTerminalRun(t *testing.T) {
	c, mock := newMockCoordinator(t, nil)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "completed", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))

	err := c.Cancel(context.Background(), "run-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateRejectsNonSummaryFieldsOnTerminalRun(t *testing.T) {
	c, mock := newMockCoordinator(t, nil)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "completed", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))

	priority := 9
	err := c.Update(context.Background(), "run-1", metadata.UpdateRunFields{Priority: &priority})
	require.Error(t, err)
	assert.Equal(t, apperr.CodeRunAlreadyTerminal, apperr.CodeOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAllowsSummaryOnTerminalRun(t *testing.T) {
	c, mock := newMockCoordinator(t, nil)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "completed", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))
	mock.ExpectExec("UPDATE runs SET").WillReturnResult(sqlmock.NewResult(0, 1))

	summary := "final summary"
	err := c.Update(context.Background(), "run-1", metadata.UpdateRunFields{Summary: &summary})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAllowsAnyFieldOnNonTerminalRun(t *testing.T) {
	c, mock := newMockCoordinator(t, nil)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "running", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil))
	mock.ExpectExec("UPDATE runs SET").WillReturnResult(sqlmock.NewResult(0, 1))

	priority := 9
	err := c.Update(context.Background(), "run-1", metadata.UpdateRunFields{Priority: &priority})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriveRunsEveryConfiguredPhaseAndCompletes(t *testing.T) {
	runner := &fakeRunner{outcome: domain.PhaseCompleted}
	c, mock := newMockCoordinator(t, runner)

	runRow := func(status string) *sqlmock.Rows {
		return sqlmock.NewRows(
			[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
		).AddRow("run-1", "tenant-a", "project-x", status, 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil)
	}

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(runRow("queued"))
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE runs SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE runs SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO run_timelines").WillReturnResult(sqlmock.NewResult(1, 1))

	c.drive(context.Background(), "run-1")

	// Combine/PostCombineEval are skipped because the run row's empty config
	// leaves Combine.Enabled false (domain.RunConfig.SkipCombine/SkipPostCombineEval).
	assert.Equal(t, []domain.Phase{domain.PhaseGeneration, domain.PhaseSingleDocEval, domain.PhasePairwiseEval}, runner.phasesRan)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDriveFailsRunWhenPhaseFails(t *testing.T) {
	runner := &fakeRunner{outcome: domain.PhaseFailed}
	c, mock := newMockCoordinator(t, runner)

	runRow := sqlmock.NewRows(
		[]string{"run_id", "tenant_id", "project_id", "status", "priority", "config", "tags", "requested_by", "summary", "created_at", "updated_at", "started_at", "completed_at"},
	).AddRow("run-1", "tenant-a", "project-x", "queued", 5, []byte(`{}`), "{}", "", "", time.Now(), time.Now(), nil, nil)

	mock.ExpectQuery("SELECT \\* FROM runs").WillReturnRows(runRow)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE runs SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE runs SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectExec("INSERT INTO run_timelines").WillReturnResult(sqlmock.NewResult(1, 1))

	c.drive(context.Background(), "run-1")

	assert.Len(t, runner.phasesRan, 1) // stops at first phase on failure
	require.NoError(t, mock.ExpectationsWereMet())
}
