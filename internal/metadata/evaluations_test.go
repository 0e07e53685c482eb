package metadata

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbatch/pipeline/internal/domain"
)

func TestCreateEvaluationRowStoresNullableScore(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "postgres")

	score := 4
	row := domain.EvaluationRow{
		RunID:      "run-1",
		ArtifactID: "art-1",
		JudgeModel: "judge-large",
		Dimension:  "overall",
		Iteration:  0,
		Score:      &score,
		Rationale:  "solid",
		CreatedAt:  time.Now().UTC(),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO evaluation_rows").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := sqlxdb.Beginx()
	require.NoError(t, err)
	err = CreateEvaluationRow(context.Background(), tx, row)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEvaluationRowsFiltersByArtifact(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"run_id", "artifact_id", "judge_model", "dimension", "iteration", "score", "rationale", "failed_parse", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow("run-1", "art-1", "judge-large", "overall", 0, 4, "solid", false, time.Now())
	mock.ExpectQuery("SELECT \\* FROM evaluation_rows WHERE run_id = \\$1 AND artifact_id = \\$2 ORDER BY created_at").
		WithArgs("run-1", "art-1").
		WillReturnRows(rows)

	out, err := store.ListEvaluationRows(context.Background(), "run-1", "art-1")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.NotNil(t, out[0].Score)
	assert.Equal(t, 4, *out[0].Score)
}

func TestCreatePairwiseResultInsertsRow(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pairwise_results").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := sqlxdb.Beginx()
	require.NoError(t, err)
	err = CreatePairwiseResult(context.Background(), tx, domain.PairwiseResult{
		RunID:      "run-1",
		ArtifactA:  "art-a",
		ArtifactB:  "art-b",
		JudgeModel: "judge-large",
		Winner:     domain.WinnerA,
		CreatedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListPairwiseResultsForReplayTxSeesUncommittedRow(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO pairwise_results").WillReturnResult(sqlmock.NewResult(1, 1))

	cols := []string{"run_id", "artifact_a", "artifact_b", "judge_model", "iteration", "winner", "flipped", "created_at"}
	rows := sqlmock.NewRows(cols).AddRow("run-1", "art-a", "art-b", "judge-large", 0, "A", false, time.Now())
	mock.ExpectQuery("SELECT \\* FROM pairwise_results WHERE run_id = \\$1 ORDER BY created_at").
		WithArgs("run-1").
		WillReturnRows(rows)
	mock.ExpectCommit()

	tx, err := sqlxdb.Beginx()
	require.NoError(t, err)

	require.NoError(t, CreatePairwiseResult(context.Background(), tx, domain.PairwiseResult{
		RunID: "run-1", ArtifactA: "art-a", ArtifactB: "art-b", JudgeModel: "judge-large", Winner: domain.WinnerA, CreatedAt: time.Now().UTC(),
	}))

	history, err := ListPairwiseResultsForReplayTx(context.Background(), tx, "run-1")
	require.NoError(t, err)
	require.Len(t, history, 1)

	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertEloRatingOverwritesExisting(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()
	sqlxdb := sqlx.NewDb(db, "postgres")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO elo_ratings").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	tx, err := sqlxdb.Beginx()
	require.NoError(t, err)
	err = UpsertEloRating(context.Background(), tx, domain.EloRating{
		RunID: "run-1", ArtifactID: "art-a", Rating: 1540, GamesPlayed: 3, UpdatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListEloRatingsOrdersDescending(t *testing.T) {
	store, mock := newMockStore(t)

	cols := []string{"run_id", "artifact_id", "rating", "games_played", "updated_at"}
	rows := sqlmock.NewRows(cols).
		AddRow("run-1", "art-a", 1600.0, 4, time.Now()).
		AddRow("run-1", "art-b", 1400.0, 4, time.Now())
	mock.ExpectQuery("SELECT \\* FROM elo_ratings WHERE run_id = \\$1 ORDER BY rating DESC").
		WithArgs("run-1").
		WillReturnRows(rows)

	out, err := store.ListEloRatings(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "art-a", out[0].ArtifactID)
}
