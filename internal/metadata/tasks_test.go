package metadata

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

func beginTx(t *testing.T) (*sqlx.Tx, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "postgres")
	mock.ExpectBegin()
	tx, err := sqlxdb.Beginx()
	require.NoError(t, err)
	return tx, mock, func() { db.Close() }
}

func TestCreateTasksPreservesSortOrder(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectPrepare("INSERT INTO tasks")
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO tasks").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tasks := []domain.Task{
		{TaskID: "t1", RunID: "run-1", Kind: domain.TaskGenerateFPF, Status: domain.TaskPending, SortOrder: 0},
		{TaskID: "t2", RunID: "run-1", Kind: domain.TaskGenerateFPF, Status: domain.TaskPending, SortOrder: 1},
	}
	err := CreateTasks(context.Background(), tx, tasks)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTaskRejectsIllegal(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()
	_ = mock

	err := TransitionTask(context.Background(), tx, "t1", domain.TaskSucceeded, domain.TaskRunning, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidStatusTransition, apperr.CodeOf(err))
}

func TestTransitionTaskToFailedIncrementsAttempts(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tasks SET status = \\$1, updated_at = \\$2, last_error = \\$3, completed_at = \\$4, attempts = attempts \\+ 1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := TransitionTask(context.Background(), tx, "t1", domain.TaskRunning, domain.TaskFailed, "upstream timeout")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTransitionTaskNoRowsAffectedIsConflict(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectExec("UPDATE tasks SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := TransitionTask(context.Background(), tx, "t1", domain.TaskRunning, domain.TaskSucceeded, "")
	require.Error(t, err)
	assert.Equal(t, apperr.CodeInvalidStatusTransition, apperr.CodeOf(err))
	require.NoError(t, tx.Commit())
}

func TestCountTasksByStatusAggregates(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows([]string{"status", "count"}).
		AddRow("succeeded", 3).
		AddRow("failed", 1)
	mock.ExpectQuery("SELECT status, count\\(\\*\\) FROM tasks").
		WithArgs("run-1", string(domain.TaskGenerateFPF)).
		WillReturnRows(rows)

	counts, err := store.CountTasksByStatus(context.Background(), "run-1", domain.TaskGenerateFPF)
	require.NoError(t, err)
	assert.Equal(t, 3, counts[domain.TaskSucceeded])
	assert.Equal(t, 1, counts[domain.TaskFailed])
}

func TestReapRunningTasksReturnsReapedIDs(t *testing.T) {
	tx, mock, cleanup := beginTx(t)
	defer cleanup()

	mock.ExpectQuery("UPDATE tasks SET status = \\$1, last_error = \\$2").
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}).AddRow("t1").AddRow("t2"))
	mock.ExpectCommit()

	ids, err := ReapRunningTasks(context.Background(), tx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"t1", "t2"}, ids)
	require.NoError(t, tx.Commit())
}
