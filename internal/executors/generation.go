package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/generator"
	"github.com/genbatch/pipeline/internal/ids"
	"github.com/genbatch/pipeline/internal/scheduler"
)

// executeGeneration runs one generator call for one document (spec §4.5):
// resolve the document and credentials, call the generator client matching
// the task's kind, and persist the resulting Artifact.
func (rg *Registry) executeGeneration(ctx context.Context, task domain.Task) error {
	var payload scheduler.GenerationPayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return apperr.Internal("decode generation payload", err)
	}

	run, err := rg.store.GetRun(ctx, task.RunID)
	if err != nil {
		return err
	}
	doc, err := rg.store.GetDocument(ctx, task.DocumentID)
	if err != nil {
		return err
	}

	kind := domain.GeneratorFilePrompt
	if task.Kind == domain.TaskGenerateResearch {
		kind = domain.GeneratorResearch
	}
	client, ok := rg.generators[kind]
	if !ok {
		return apperr.Internal(fmt.Sprintf("no generator client registered for kind %s", kind), nil)
	}

	headers, err := rg.vault.Materialize(ctx, run.TenantID)
	if err != nil {
		return err
	}

	configRaw, err := json.Marshal(run.Config)
	if err != nil {
		return apperr.Internal("marshal run config for generator call", err)
	}

	result, err := client.Generate(ctx, generator.Request{
		DocumentID:        task.DocumentID,
		Prompt:            documentPrompt(doc),
		Config:            configRaw,
		CredentialHeaders: headers,
		Iteration:         payload.Iteration,
		Provider:          payload.Provider,
		Model:             payload.Model,
	})
	if err != nil {
		return err
	}

	artifactID := ids.New()
	path := artifactStoragePath(task.RunID, artifactID)
	version, err := rg.storage.Write(ctx, path, result.ArtifactBytes, "generation artifact")
	if err != nil {
		return err
	}

	artifact := domain.Artifact{
		ArtifactID:   artifactID,
		RunID:        task.RunID,
		DocumentID:   task.DocumentID,
		Generator:    kind,
		Provider:     payload.Provider,
		ModelID:      payload.Model,
		StoragePath:  path,
		ContentHash:  version,
		CostUSD:      result.CostUSD,
		TokenCount:   result.TokenCount,
		GenerationMS: result.DurationMS,
		CreatedAt:    time.Now().UTC(),
	}
	return rg.store.CreateArtifact(ctx, artifact)
}
