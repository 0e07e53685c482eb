package metadata

import (
	"context"
	"encoding/json"
	"time"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
)

type artifactRow struct {
	ArtifactID   string    `db:"artifact_id"`
	RunID        string    `db:"run_id"`
	DocumentID   string    `db:"document_id"`
	Generator    string    `db:"generator"`
	Provider     string    `db:"provider"`
	ModelID      string    `db:"model_id"`
	StoragePath  string    `db:"storage_path"`
	ContentHash  string    `db:"content_hash"`
	CostUSD      float64   `db:"cost_usd"`
	TokenCount   int       `db:"token_count"`
	GenerationMS int64     `db:"generation_ms"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
}

func (r artifactRow) toDomain() (domain.Artifact, error) {
	a := domain.Artifact{
		ArtifactID:   r.ArtifactID,
		RunID:        r.RunID,
		DocumentID:   r.DocumentID,
		Generator:    domain.GeneratorKind(r.Generator),
		Provider:     r.Provider,
		ModelID:      r.ModelID,
		StoragePath:  r.StoragePath,
		ContentHash:  r.ContentHash,
		CostUSD:      r.CostUSD,
		TokenCount:   r.TokenCount,
		GenerationMS: r.GenerationMS,
		CreatedAt:    r.CreatedAt,
	}
	if len(r.Metadata) > 0 {
		if err := json.Unmarshal(r.Metadata, &a.Metadata); err != nil {
			return domain.Artifact{}, apperr.Internal("decode artifact metadata", err)
		}
	}
	return a, nil
}

func (s *Store) CreateArtifact(ctx context.Context, a domain.Artifact) error {
	meta, err := json.Marshal(a.Metadata)
	if err != nil {
		return apperr.Internal("encode artifact metadata", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO artifacts (artifact_id, run_id, document_id, generator, provider, model_id, storage_path, content_hash, cost_usd, token_count, generation_ms, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, a.ArtifactID, a.RunID, a.DocumentID, string(a.Generator), a.Provider, a.ModelID, a.StoragePath, a.ContentHash, a.CostUSD, a.TokenCount, a.GenerationMS, meta, a.CreatedAt)
	if err != nil {
		return apperr.DatabaseUnavailable("create_artifact", err)
	}
	return nil
}

func (s *Store) GetArtifact(ctx context.Context, artifactID string) (domain.Artifact, error) {
	var row artifactRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM artifacts WHERE artifact_id = $1`, artifactID)
	if isNoRows(err) {
		return domain.Artifact{}, apperr.New(apperr.CodeInternal, 404, "artifact not found").WithDetail("artifact_id", artifactID)
	}
	if err != nil {
		return domain.Artifact{}, apperr.DatabaseUnavailable("get_artifact", err)
	}
	return row.toDomain()
}

// ListArtifactsByRun returns every artifact for a run, optionally narrowed
// to one document, ordered by creation for deterministic pairwise-pair
// generation (spec §4.6).
func (s *Store) ListArtifactsByRun(ctx context.Context, runID, documentID string) ([]domain.Artifact, error) {
	query := `SELECT * FROM artifacts WHERE run_id = $1`
	args := []any{runID}
	if documentID != "" {
		args = append(args, documentID)
		query += " AND document_id = $2"
	}
	query += " ORDER BY created_at, artifact_id"

	var rows []artifactRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, apperr.DatabaseUnavailable("list_artifacts_by_run", err)
	}
	out := make([]domain.Artifact, 0, len(rows))
	for _, r := range rows {
		a, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
