package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
)

// PhaseTiming is one entry in a run's persisted timeline (spec §4.11): the
// wall-clock span a phase occupied plus its outcome.
type PhaseTiming struct {
	Phase      string    `json:"phase"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcome    string    `json:"outcome"`
}

// PutRunTimeline writes (or overwrites) the timeline for a run.
func (s *Store) PutRunTimeline(ctx context.Context, runID string, phases []PhaseTiming) error {
	raw, err := json.Marshal(phases)
	if err != nil {
		return apperr.Internal("encode run timeline", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_timelines (run_id, phases, recorded_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (run_id) DO UPDATE SET phases = EXCLUDED.phases, recorded_at = EXCLUDED.recorded_at
	`, runID, raw, time.Now().UTC())
	if err != nil {
		return apperr.DatabaseUnavailable("put_run_timeline", err)
	}
	return nil
}

func (s *Store) GetRunTimeline(ctx context.Context, runID string) ([]PhaseTiming, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT phases FROM run_timelines WHERE run_id = $1`, runID)
	if isNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.DatabaseUnavailable("get_run_timeline", err)
	}
	var phases []PhaseTiming
	if err := json.Unmarshal(raw, &phases); err != nil {
		return nil, apperr.Internal("decode run timeline", err)
	}
	return phases, nil
}

// ReapRunningRuns marks every run still running as failed, companion to
// ReapRunningTasks (spec §4.10). Called once at boot, inside the same
// transaction as ReapRunningTasks.
func ReapRunningRuns(ctx context.Context, tx *sqlx.Tx) ([]string, error) {
	var runIDs []string
	err := tx.SelectContext(ctx, &runIDs, `
		UPDATE runs SET status = 'failed', updated_at = now(), completed_at = now()
		WHERE status = 'running'
		RETURNING run_id
	`)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("reap_running_runs", err)
	}
	return runIDs, nil
}
