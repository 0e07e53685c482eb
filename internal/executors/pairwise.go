package executors

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/elo"
	"github.com/genbatch/pipeline/internal/judge"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/scheduler"
)

// executePairwiseEval runs one pairwise comparison (spec §4.6) and rebuilds
// the run's Elo ratings from the full pairwise_results history in the same
// transaction as the new row, matching the Elo Engine's full-replay
// contract (metadata.UpsertEloRating: "always replays from scratch").
func (rg *Registry) executePairwiseEval(ctx context.Context, task domain.Task) error {
	var payload scheduler.PairwiseEvalPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return apperr.Internal("decode pairwise-eval payload", err)
	}

	run, err := rg.store.GetRun(ctx, task.RunID)
	if err != nil {
		return err
	}
	artifactA, err := rg.store.GetArtifact(ctx, payload.ArtifactA)
	if err != nil {
		return err
	}
	artifactB, err := rg.store.GetArtifact(ctx, payload.ArtifactB)
	if err != nil {
		return err
	}
	contentA, err := rg.storage.Read(ctx, artifactA.StoragePath)
	if err != nil {
		return err
	}
	contentB, err := rg.storage.Read(ctx, artifactB.StoragePath)
	if err != nil {
		return err
	}
	headers, err := rg.vault.Materialize(ctx, run.TenantID)
	if err != nil {
		return err
	}

	result, err := rg.judgeRun.ComparePairwise(ctx, judge.PairwiseRequest{
		RunID:             task.RunID,
		ArtifactA:         payload.ArtifactA,
		ArtifactB:         payload.ArtifactB,
		ContentA:          string(contentA),
		ContentB:          string(contentB),
		JudgeProvider:     payload.Provider,
		JudgeModel:        payload.Model,
		Iteration:         payload.Iteration,
		CredentialHeaders: headers,
	})
	if err != nil {
		return err
	}
	result.CreatedAt = time.Now().UTC()

	return rg.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := metadata.CreatePairwiseResult(ctx, tx, result); err != nil {
			return err
		}
		history, err := metadata.ListPairwiseResultsForReplayTx(ctx, tx, task.RunID)
		if err != nil {
			return err
		}
		ratings := elo.Replay(history)
		now := time.Now().UTC()
		for _, r := range ratings {
			if err := metadata.UpsertEloRating(ctx, tx, domain.EloRating{
				RunID:       task.RunID,
				ArtifactID:  r.ArtifactID,
				Rating:      r.Value,
				GamesPlayed: r.GamesPlayed,
				UpdatedAt:   now,
			}); err != nil {
				return err
			}
		}
		return nil
	})
}
