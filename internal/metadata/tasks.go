package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

type taskRow struct {
	TaskID      string       `db:"task_id"`
	RunID       string       `db:"run_id"`
	Kind        string       `db:"kind"`
	Status      string       `db:"status"`
	DocumentID  string       `db:"document_id"`
	SortOrder   int          `db:"sort_order"`
	Attempts    int          `db:"attempts"`
	LastError   string       `db:"last_error"`
	Payload     []byte       `db:"payload"`
	CreatedAt   time.Time    `db:"created_at"`
	UpdatedAt   time.Time    `db:"updated_at"`
	StartedAt   sql.NullTime `db:"started_at"`
	CompletedAt sql.NullTime `db:"completed_at"`
}

func (r taskRow) toDomain() domain.Task {
	t := domain.Task{
		TaskID:     r.TaskID,
		RunID:      r.RunID,
		Kind:       domain.TaskKind(r.Kind),
		Status:     domain.TaskStatus(r.Status),
		DocumentID: r.DocumentID,
		SortOrder:  r.SortOrder,
		Attempts:   r.Attempts,
		LastError:  r.LastError,
		Payload:    r.Payload,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.StartedAt.Valid {
		t.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		t.CompletedAt = &r.CompletedAt.Time
	}
	return t
}

// CreateTasks inserts a batch of tasks inside tx, preserving slice order as
// sort_order so idx_tasks_dispatch yields FIFO dispatch within a phase.
func CreateTasks(ctx context.Context, tx *sqlx.Tx, tasks []domain.Task) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO tasks (task_id, run_id, kind, status, document_id, sort_order, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
	`)
	if err != nil {
		return apperr.DatabaseUnavailable("create_tasks", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		if _, err := stmt.ExecContext(ctx, t.TaskID, t.RunID, string(t.Kind), string(t.Status), t.DocumentID, t.SortOrder, t.Payload, t.CreatedAt); err != nil {
			return apperr.DatabaseUnavailable("create_tasks", err)
		}
	}
	return nil
}

func (s *Store) GetTask(ctx context.Context, taskID string) (domain.Task, error) {
	var row taskRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM tasks WHERE task_id = $1`, taskID)
	if isNoRows(err) {
		return domain.Task{}, apperr.New(apperr.CodeInternal, 404, fmt.Sprintf("task %s not found", taskID))
	}
	if err != nil {
		return domain.Task{}, apperr.DatabaseUnavailable("get_task", err)
	}
	return row.toDomain(), nil
}

// ListTasksByRun returns every task for a run ordered for dispatch, matching
// idx_tasks_dispatch (run_id, status, sort_order, task_id).
func (s *Store) ListTasksByRun(ctx context.Context, runID string, status domain.TaskStatus) ([]domain.Task, error) {
	query := `SELECT * FROM tasks WHERE run_id = $1`
	args := []any{runID}
	if status != "" {
		args = append(args, string(status))
		query += " AND status = $2"
	}
	query += " ORDER BY sort_order, task_id"

	var rows []taskRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.DatabaseUnavailable("list_tasks_by_run", err)
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// ClaimNextTasks atomically marks up to limit pending tasks for kind as
// running and returns them, ordered per idx_tasks_dispatch. Used by the
// scheduler's bounded worker pool to hand out work without double-dispatch.
func ClaimNextTasks(ctx context.Context, tx *sqlx.Tx, runID string, kind domain.TaskKind, limit int) ([]domain.Task, error) {
	now := time.Now().UTC()
	var rows []taskRow
	err := tx.SelectContext(ctx, &rows, `
		UPDATE tasks SET status = $1, started_at = $2, updated_at = $2
		WHERE task_id IN (
			SELECT task_id FROM tasks
			WHERE run_id = $3 AND kind = $4 AND status = $5
			ORDER BY sort_order, task_id
			LIMIT $6
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, string(domain.TaskRunning), now, runID, string(kind), string(domain.TaskPending), limit)
	if err != nil {
		return nil, apperr.DatabaseUnavailable("claim_next_tasks", err)
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// TransitionTask moves a task from->to inside tx, validating against
// domain.CanTransitionTask and stamping completed_at on terminal states.
func TransitionTask(ctx context.Context, tx *sqlx.Tx, taskID string, from, to domain.TaskStatus, lastError string) error {
	if !domain.CanTransitionTask(from, to) {
		return apperr.InvalidStatusTransition(string(from), string(to))
	}
	now := time.Now().UTC()

	query := `UPDATE tasks SET status = $1, updated_at = $2, last_error = $3`
	args := []any{string(to), now, lastError}
	if to == domain.TaskFailed || to == domain.TaskSucceeded || to == domain.TaskCancelled {
		args = append(args, now)
		query += fmt.Sprintf(", completed_at = $%d", len(args))
	}
	if to == domain.TaskFailed {
		query += ", attempts = attempts + 1"
	}
	args = append(args, taskID, string(from))
	query += fmt.Sprintf(" WHERE task_id = $%d AND status = $%d", len(args)-1, len(args))

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.DatabaseUnavailable("transition_task", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.DatabaseUnavailable("transition_task", err)
	}
	if n == 0 {
		return apperr.New(apperr.CodeInvalidStatusTransition, 409, fmt.Sprintf("task %s is not in status %s", taskID, from))
	}
	return nil
}

// CountTasksByStatus reports per-status counts for a run and kind, used by
// the scheduler to evaluate phase partial-failure thresholds (spec §4.8).
func (s *Store) CountTasksByStatus(ctx context.Context, runID string, kind domain.TaskKind) (map[domain.TaskStatus]int, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT status, count(*) FROM tasks WHERE run_id = $1 AND kind = $2 GROUP BY status
	`, runID, string(kind))
	if err != nil {
		return nil, apperr.DatabaseUnavailable("count_tasks_by_status", err)
	}
	defer rows.Close()

	out := map[domain.TaskStatus]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperr.DatabaseUnavailable("count_tasks_by_status", err)
		}
		out[domain.TaskStatus(status)] = count
	}
	return out, rows.Err()
}

// ReapRunningTasks marks every task still running as failed with a fixed
// reason. Used at boot by the Recovery Reaper (spec §4.10) to clear tasks
// that were mid-flight when the process died.
func ReapRunningTasks(ctx context.Context, tx *sqlx.Tx) ([]string, error) {
	var taskIDs []string
	err := tx.SelectContext(ctx, &taskIDs, `
		UPDATE tasks SET status = $1, last_error = $2, completed_at = $3, updated_at = $3
		WHERE status = $4
		RETURNING task_id
	`, string(domain.TaskFailed), "reaped_on_boot", time.Now().UTC(), string(domain.TaskRunning))
	if err != nil {
		return nil, apperr.DatabaseUnavailable("reap_running_tasks", err)
	}
	return taskIDs, nil
}
