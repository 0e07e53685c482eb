package executors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/judge"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/scheduler"
)

// executeSingleEval runs one graded single-document evaluation (spec §4.6
// step 1), shared by the SingleDocEval and PostCombineEval phases — both
// grade one artifact on one dimension with one judge.
func (rg *Registry) executeSingleEval(ctx context.Context, task domain.Task) error {
	var payload scheduler.SingleEvalPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return apperr.Internal("decode single-eval payload", err)
	}

	run, err := rg.store.GetRun(ctx, task.RunID)
	if err != nil {
		return err
	}
	artifact, err := rg.store.GetArtifact(ctx, payload.ArtifactID)
	if err != nil {
		return err
	}
	content, err := rg.storage.Read(ctx, artifact.StoragePath)
	if err != nil {
		return err
	}
	headers, err := rg.vault.Materialize(ctx, run.TenantID)
	if err != nil {
		return err
	}

	row, err := rg.judgeRun.EvaluateSingleDoc(ctx, judge.SingleDocRequest{
		RunID:             task.RunID,
		ArtifactID:        payload.ArtifactID,
		ArtifactContent:   string(content),
		JudgeProvider:     payload.Provider,
		JudgeModel:        payload.Model,
		Dimension:         payload.Dimension,
		Iteration:         payload.Iteration,
		CredentialHeaders: headers,
	})
	if err != nil {
		return err
	}
	row.CreatedAt = time.Now().UTC()

	return rg.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.CreateEvaluationRow(ctx, tx, row)
	})
}
