package reaper

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
)

func newMockReaper(t *testing.T) (*Reaper, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store := metadata.NewStore(sqlx.NewDb(db, "postgres"))
	return New(store, log.NewDefault()), mock
}

func TestRunReapsTasksAndRunsInOneTransaction(t *testing.T) {
	r, mock := newMockReaper(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE tasks SET status = \\$1, last_error = \\$2").
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}).AddRow("t1").AddRow("t2"))
	mock.ExpectQuery("UPDATE runs SET status = 'failed'").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}).AddRow("run-1"))
	mock.ExpectCommit()

	err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunIsNoOpWhenNothingToReap(t *testing.T) {
	r, mock := newMockReaper(t)

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE tasks SET status = \\$1, last_error = \\$2").
		WillReturnRows(sqlmock.NewRows([]string{"task_id"}))
	mock.ExpectQuery("UPDATE runs SET status = 'failed'").
		WillReturnRows(sqlmock.NewRows([]string{"run_id"}))
	mock.ExpectCommit()

	err := r.Run(context.Background())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
