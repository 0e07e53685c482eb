package executors

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/generator"
	"github.com/genbatch/pipeline/internal/ids"
	"github.com/genbatch/pipeline/internal/scheduler"
)

// combineConfig is the Request.Config payload for a combine call: just the
// model name the tenant configured (spec's combine config carries no
// separate provider, unlike a GeneratorSpec).
type combineConfig struct {
	Model string `json:"model"`
}

// executeCombine merges every surviving generation-phase artifact for a
// document into one combined artifact (spec §4.6): combine operates over all
// artifacts listed in the task payload, not a judge-selected subset, and
// each task produces one artifact for its configured combine model (see
// SPEC_FULL.md §5). Combine is a prompt-driven LLM call like file/
// prompt generation, so it reuses the file/prompt generator client rather
// than a dedicated interface — the prompt is the concatenation of the
// source artifacts instead of a rendered document.
func (rg *Registry) executeCombine(ctx context.Context, task domain.Task) error {
	var payload scheduler.CombinePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return apperr.Internal("decode combine payload", err)
	}

	run, err := rg.store.GetRun(ctx, task.RunID)
	if err != nil {
		return err
	}

	client, ok := rg.generators[domain.GeneratorFilePrompt]
	if !ok {
		return apperr.Internal("no file/prompt generator client registered for combine", nil)
	}

	var sections []string
	for i, artifactID := range payload.ArtifactIDs {
		artifact, err := rg.store.GetArtifact(ctx, artifactID)
		if err != nil {
			return err
		}
		content, err := rg.storage.Read(ctx, artifact.StoragePath)
		if err != nil {
			return err
		}
		sections = append(sections, fmt.Sprintf("--- candidate %d (%s) ---\n%s", i+1, artifactID, content))
	}
	prompt := strings.Join(sections, "\n\n")

	headers, err := rg.vault.Materialize(ctx, run.TenantID)
	if err != nil {
		return err
	}

	configRaw, err := json.Marshal(combineConfig{Model: payload.Model})
	if err != nil {
		return apperr.Internal("marshal combine config", err)
	}

	result, err := client.Generate(ctx, generator.Request{
		DocumentID:        task.DocumentID,
		Prompt:            prompt,
		Config:            configRaw,
		CredentialHeaders: headers,
		Model:             payload.Model,
	})
	if err != nil {
		return err
	}

	artifactID := ids.New()
	path := artifactStoragePath(task.RunID, artifactID)
	version, err := rg.storage.Write(ctx, path, result.ArtifactBytes, "combine artifact")
	if err != nil {
		return err
	}

	artifact := domain.Artifact{
		ArtifactID:   artifactID,
		RunID:        task.RunID,
		DocumentID:   task.DocumentID,
		Generator:    scheduler.CombineGeneratorKind,
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
