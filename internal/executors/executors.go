// Package executors wires the six Task kinds to their concrete collaborators
// — the generator clients, the Judge Runner, the Elo Engine, the Storage
// Provider and the Key Vault — implementing the scheduler.Executor seam the
// Scheduler dispatches against (spec §4.5/§4.6/§4.7).
package executors

import (
	"fmt"

	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/generator"
	"github.com/genbatch/pipeline/internal/judge"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/scheduler"
	"github.com/genbatch/pipeline/internal/secretvault"
	"github.com/genbatch/pipeline/internal/storage"
)

// Registry owns the shared collaborators every Executor closure reads from.
type Registry struct {
	store     *metadata.Store
	storage   storage.Provider
	vault     *secretvault.Vault
	judgeRun  *judge.Runner
	generators map[domain.GeneratorKind]generator.Client
}

// Config wires a Registry's dependencies.
type Config struct {
	Store      *metadata.Store
	Storage    storage.Provider
	Vault      *secretvault.Vault
	JudgeRunner *judge.Runner
	Generators []generator.Client
}

func New(cfg Config) *Registry {
	byKind := make(map[domain.GeneratorKind]generator.Client, len(cfg.Generators))
	for _, g := range cfg.Generators {
		byKind[g.Kind()] = g
	}
	return &Registry{store: cfg.Store, storage: cfg.Storage, vault: cfg.Vault, judgeRun: cfg.JudgeRunner, generators: byKind}
}

// Executors returns the scheduler.Executor implementations keyed by
// domain.TaskKind, ready to pass into scheduler.Config.Executors.
func (rg *Registry) Executors() map[domain.TaskKind]scheduler.Executor {
	return map[domain.TaskKind]scheduler.Executor{
		domain.TaskGenerateFPF:      scheduler.ExecutorFunc(rg.executeGeneration),
		domain.TaskGenerateResearch: scheduler.ExecutorFunc(rg.executeGeneration),
		domain.TaskSingleEval:       scheduler.ExecutorFunc(rg.executeSingleEval),
		domain.TaskPairwiseEval:     scheduler.ExecutorFunc(rg.executePairwiseEval),
		domain.TaskCombine:          scheduler.ExecutorFunc(rg.executeCombine),
		domain.TaskPostCombineEval:  scheduler.ExecutorFunc(rg.executeSingleEval),
	}
}

func documentPrompt(doc domain.Document) string {
	if doc.Kind == domain.SourceInline {
		return string(doc.InlineContent)
	}
	return fmt.Sprintf("%s@%s:%s", doc.Repository, doc.Ref, doc.Path)
}

func artifactStoragePath(runID, artifactID string) string {
	return fmt.Sprintf("runs/%s/artifacts/%s", runID, artifactID)
}
