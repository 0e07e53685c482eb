package metadata

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

type evaluationRow struct {
	RunID       string        `db:"run_id"`
	ArtifactID  string        `db:"artifact_id"`
	JudgeModel  string        `db:"judge_model"`
	Dimension   string        `db:"dimension"`
	Iteration   int           `db:"iteration"`
	Score       sql.NullInt32 `db:"score"`
	Rationale   string        `db:"rationale"`
	FailedParse bool          `db:"failed_parse"`
	CreatedAt   time.Time     `db:"created_at"`
}

func (r evaluationRow) toDomain() domain.EvaluationRow {
	e := domain.EvaluationRow{
		RunID:       r.RunID,
		ArtifactID:  r.ArtifactID,
		JudgeModel:  r.JudgeModel,
		Dimension:   r.Dimension,
		Iteration:   r.Iteration,
		Rationale:   r.Rationale,
		FailedParse: r.FailedParse,
		CreatedAt:   r.CreatedAt,
	}
	if r.Score.Valid {
		score := int(r.Score.Int32)
		e.Score = &score
	}
	return e
}

// CreateEvaluationRow inserts one judge score inside tx.
func CreateEvaluationRow(ctx context.Context, tx *sqlx.Tx, e domain.EvaluationRow) error {
	var score sql.NullInt32
	if e.Score != nil {
		score = sql.NullInt32{Int32: int32(*e.Score), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO evaluation_rows (run_id, artifact_id, judge_model, dimension, iteration, score, rationale, failed_parse, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.RunID, e.ArtifactID, e.JudgeModel, e.Dimension, e.Iteration, score, e.Rationale, e.FailedParse, e.CreatedAt)
	if err != nil {
		return apperr.DatabaseUnavailable("create_evaluation_row", err)
	}
	return nil
}

func (s *Store) ListEvaluationRows(ctx context.Context, runID, artifactID string) ([]domain.EvaluationRow, error) {
	query := `SELECT * FROM evaluation_rows WHERE run_id = $1`
	args := []any{runID}
	if artifactID != "" {
		args = append(args, artifactID)
		query += " AND artifact_id = $2"
	}
	query += " ORDER BY created_at"

	var rows []evaluationRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.DatabaseUnavailable("list_evaluation_rows", err)
	}
	out := make([]domain.EvaluationRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type pairwiseRow struct {
	RunID      string    `db:"run_id"`
	ArtifactA  string    `db:"artifact_a"`
	ArtifactB  string    `db:"artifact_b"`
	JudgeModel string    `db:"judge_model"`
	Iteration  int       `db:"iteration"`
	Winner     string    `db:"winner"`
	Flipped    bool      `db:"flipped"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r pairwiseRow) toDomain() domain.PairwiseResult {
	return domain.PairwiseResult{
		RunID:      r.RunID,
		ArtifactA:  r.ArtifactA,
		ArtifactB:  r.ArtifactB,
		JudgeModel: r.JudgeModel,
		Iteration:  r.Iteration,
		Winner:     domain.Winner(r.Winner),
		Flipped:    r.Flipped,
		CreatedAt:  r.CreatedAt,
	}
}

// CreatePairwiseResult inserts one pairwise comparison outcome inside tx.
// Callers must pass artifacts already canonicalized via domain.CanonicalPair.
func CreatePairwiseResult(ctx context.Context, tx *sqlx.Tx, p domain.PairwiseResult) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO pairwise_results (run_id, artifact_a, artifact_b, judge_model, iteration, winner, flipped, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, p.RunID, p.ArtifactA, p.ArtifactB, p.JudgeModel, p.Iteration, string(p.Winner), p.Flipped, p.CreatedAt)
	if err != nil {
		return apperr.DatabaseUnavailable("create_pairwise_result", err)
	}
	return nil
}

// ListPairwiseResultsForReplay returns every pairwise result for a run
// ordered by created_at, matching idx_pairwise_replay — the Elo Engine
// replays these in this exact order to get a deterministic rating (spec
// §4.7).
func (s *Store) ListPairwiseResultsForReplay(ctx context.Context, runID string) ([]domain.PairwiseResult, error) {
	var rows []pairwiseRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM pairwise_results WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("list_pairwise_results_for_replay", err)
	}
	out := make([]domain.PairwiseResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ListPairwiseResultsForReplayTx is ListPairwiseResultsForReplay run inside
// an in-flight transaction, so a replay can see a row just inserted by
// CreatePairwiseResult on the same tx before it commits.
func ListPairwiseResultsForReplayTx(ctx context.Context, tx *sqlx.Tx, runID string) ([]domain.PairwiseResult, error) {
	var rows []pairwiseRow
	err := tx.SelectContext(ctx, &rows, `
		SELECT * FROM pairwise_results WHERE run_id = $1 ORDER BY created_at
	`, runID)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("list_pairwise_results_for_replay", err)
	}
	out := make([]domain.PairwiseResult, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

type eloRatingRow struct {
	RunID       string    `db:"run_id"`
	ArtifactID  string    `db:"artifact_id"`
	Rating      float64   `db:"rating"`
	GamesPlayed int       `db:"games_played"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r eloRatingRow) toDomain() domain.EloRating {
	return domain.EloRating{
		RunID:       r.RunID,
		ArtifactID:  r.ArtifactID,
		Rating:      r.Rating,
		GamesPlayed: r.GamesPlayed,
		UpdatedAt:   r.UpdatedAt,
	}
}

// UpsertEloRating writes the current rating for (run_id, artifact_id) inside
// tx, overwriting any prior value — the Elo Engine always replays from
// scratch and rewrites the full table rather than incrementally patching it
// (spec §4.7).
func UpsertEloRating(ctx context.Context, tx *sqlx.Tx, e domain.EloRating) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO elo_ratings (run_id, artifact_id, rating, games_played, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (run_id, artifact_id) DO UPDATE SET
			rating = EXCLUDED.rating, games_played = EXCLUDED.games_played, updated_at = EXCLUDED.updated_at
	`, e.RunID, e.ArtifactID, e.Rating, e.GamesPlayed, e.UpdatedAt)
	if err != nil {
		return apperr.DatabaseUnavailable("upsert_elo_rating", err)
	}
	return nil
}

// ListEloRatings returns every current rating for a run, ordered by rating
// descending so the caller can read off the winner directly.
func (s *Store) ListEloRatings(ctx context.Context, runID string) ([]domain.EloRating, error) {
	var rows []eloRatingRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT * FROM elo_ratings WHERE run_id = $1 ORDER BY rating DESC
	`, runID)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("list_elo_ratings", err)
	}
	out := make([]domain.EloRating, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}
