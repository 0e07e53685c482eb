package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

type runRow struct {
	RunID       string         `db:"run_id"`
	TenantID    string         `db:"tenant_id"`
	ProjectID   string         `db:"project_id"`
	Status      string         `db:"status"`
	Priority    int            `db:"priority"`
	Config      []byte         `db:"config"`
	Tags        pq.StringArray `db:"tags"`
	RequestedBy string         `db:"requested_by"`
	Summary     string         `db:"summary"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
}

func (r runRow) toDomain() (domain.Run, error) {
	run := domain.Run{
		RunID:       r.RunID,
		TenantID:    r.TenantID,
		ProjectID:   r.ProjectID,
		Status:      domain.RunStatus(r.Status),
		Priority:    r.Priority,
		ConfigRaw:   r.Config,
		Tags:        []string(r.Tags),
		RequestedBy: r.RequestedBy,
		Summary:     r.Summary,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if r.StartedAt.Valid {
		run.StartedAt = &r.StartedAt.Time
	}
	if r.CompletedAt.Valid {
		run.CompletedAt = &r.CompletedAt.Time
	}
	if err := json.Unmarshal(r.Config, &run.Config); err != nil {
		return domain.Run{}, fmt.Errorf("metadata: decode run config: %w", err)
	}
	return run, nil
}

// RunFilter narrows List by the fields operators actually query on.
type RunFilter struct {
	TenantID  string
	ProjectID string
	Status    domain.RunStatus
	Limit     int
	Offset    int
}

// CreateRun inserts run, freezing ConfigRaw from run.Config if ConfigRaw is
// not already populated by the caller.
func (s *Store) CreateRun(ctx context.Context, run domain.Run) error {
	raw := run.ConfigRaw
	if raw == nil {
		var err error
		raw, err = json.Marshal(run.Config)
		if err != nil {
			return fmt.Errorf("metadata: encode run config: %w", err)
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, tenant_id, project_id, status, priority, config, tags, requested_by, summary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, run.RunID, run.TenantID, run.ProjectID, string(run.Status), run.Priority, raw, pq.StringArray(run.Tags), run.RequestedBy, run.Summary, run.CreatedAt)
	if err != nil {
		return apperr.DatabaseUnavailable("create_run", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	var row runRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE run_id = $1`, runID)
	if isNoRows(err) {
		return domain.Run{}, apperr.RunNotFound(runID)
	}
	if err != nil {
		return domain.Run{}, apperr.DatabaseUnavailable("get_run", err)
	}
	return row.toDomain()
}

func (s *Store) ListRuns(ctx context.Context, filter RunFilter) ([]domain.Run, error) {
	query := `SELECT * FROM runs WHERE tenant_id = $1`
	args := []any{filter.TenantID}

	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
		query += fmt.Sprintf(" AND project_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []runRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.DatabaseUnavailable("list_runs", err)
	}
	out := make([]domain.Run, 0, len(rows))
	for _, r := range rows {
		run, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// TransitionRun moves a run from->to inside tx, validating the transition
// against domain.CanTransitionRun and stamping started_at/completed_at.
func TransitionRun(ctx context.Context, tx *sqlx.Tx, runID string, from, to domain.RunStatus) error {
	if !domain.CanTransitionRun(from, to) {
		return apperr.InvalidStatusTransition(string(from), string(to))
	}
	now := time.Now().UTC()

	query := `UPDATE runs SET status = $1, updated_at = $2`
	args := []any{string(to), now}
	switch to {
	case domain.RunRunning:
		query += `, started_at = $3 WHERE run_id = $4 AND status = $5`
		args = append(args, now, runID, string(from))
	case domain.RunCompleted, domain.RunFailed, domain.RunCancelled:
		query += `, completed_at = $3 WHERE run_id = $4 AND status = $5`
		args = append(args, now, runID, string(from))
	default:
		query += ` WHERE run_id = $3 AND status = $4`
		args = append(args, runID, string(from))
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.DatabaseUnavailable("transition_run", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return apperr.DatabaseUnavailable("transition_run", err)
	}
	if n == 0 {
		return apperr.RunAlreadyTerminal(runID, string(from))
	}
	return nil
}

// UpdateRunFields applies a partial update (spec §4.9 Update).
type UpdateRunFields struct {
	Priority *int
	Tags     []string
	Summary  *string
}

func (s *Store) UpdateRun(ctx context.Context, runID string, fields UpdateRunFields) error {
	sets := []string{"updated_at = now()"}
	args := []any{}
	if fields.Priority != nil {
		args = append(args, *fields.Priority)
		sets = append(sets, fmt.Sprintf("priority = $%d", len(args)))
	}
	if fields.Tags != nil {
		args = append(args, pq.StringArray(fields.Tags))
		sets = append(sets, fmt.Sprintf("tags = $%d", len(args)))
	}
	if fields.Summary != nil {
		args = append(args, *fields.Summary)
		sets = append(sets, fmt.Sprintf("summary = $%d", len(args)))
	}
	args = append(args, runID)

	query := fmt.Sprintf("UPDATE runs SET %s WHERE run_id = $%d", joinComma(sets), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return apperr.DatabaseUnavailable("update_run", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.RunNotFound(runID)
	}
	return nil
}

func joinComma(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
