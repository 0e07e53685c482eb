package scheduler

import (
	"context"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/ids"
	"github.com/genbatch/pipeline/internal/metadata"
)

// CombineGeneratorKind marks an Artifact produced by the Combine phase
// rather than by one of the two external generator drivers; it is never a
// value a tenant can request directly in RunConfig.Generators.
const CombineGeneratorKind domain.GeneratorKind = "combine"

// EnumeratePhase computes and persists the Task rows a phase needs before
// it can be dispatched, reading whatever the previous phase produced from
// the Metadata Store. It is not idempotent: calling it twice for the same
// run/phase double-enumerates; the coordinator calls it
// exactly once per phase entry (spec §4.8).
func (s *Scheduler) EnumeratePhase(ctx context.Context, run domain.Run, phase domain.Phase) error {
	var tasks []domain.Task
	var err error

	switch phase {
	case domain.PhaseGeneration:
		tasks, err = s.enumerateGeneration(ctx, run)
	case domain.PhaseSingleDocEval:
		tasks, err = s.enumerateSingleDocEval(ctx, run, "")
	case domain.PhasePairwiseEval:
		tasks, err = s.enumeratePairwiseEval(ctx, run)
	case domain.PhaseCombine:
		tasks, err = s.enumerateCombine(ctx, run)
	case domain.PhasePostCombineEval:
		tasks, err = s.enumerateSingleDocEval(ctx, run, CombineGeneratorKind)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return nil
	}
	return s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.CreateTasks(ctx, tx, tasks)
	})
}

func (s *Scheduler) enumerateGeneration(ctx context.Context, run domain.Run) ([]domain.Task, error) {
	docs, err := s.store.ListRunDocuments(ctx, run.RunID)
	if err != nil {
		return nil, err
	}

	var tasks []domain.Task
	order := 0
	for _, doc := range docs {
		for _, spec := range run.Config.Generators {
			iterations := spec.Iterations
			if iterations <= 0 {
				iterations = run.Config.IterationsDefault
			}
			if iterations <= 0 {
				iterations = 1
			}
			kind := domain.TaskGenerateFPF
			if spec.Kind == domain.GeneratorResearch {
				kind = domain.TaskGenerateResearch
			}
			for iter := 0; iter < iterations; iter++ {
				tasks = append(tasks, domain.Task{
					TaskID:     ids.New(),
					RunID:      run.RunID,
					Kind:       kind,
					Status:     domain.TaskPending,
					DocumentID: doc.DocumentID,
					SortOrder:  order,
					Payload: marshal(GenerationPayload{
						Provider: spec.Provider, Model: spec.Model, Iteration: iter,
					}),
				})
				order++
			}
		}
	}
	return tasks, nil
}

// enumerateSingleDocEval builds single-eval tasks over artifacts produced by
// the Generation phase (generatorFilter == "") or over the Combine phase's
// artifacts (generatorFilter == CombineGeneratorKind, for PostCombineEval).
func (s *Scheduler) enumerateSingleDocEval(ctx context.Context, run domain.Run, generatorFilter domain.GeneratorKind) ([]domain.Task, error) {
	artifacts, err := s.store.ListArtifactsByRun(ctx, run.RunID, "")
	if err != nil {
		return nil, err
	}

	var tasks []domain.Task
	order := 0
	for _, artifact := range artifacts {
		if generatorFilter == "" && artifact.Generator == CombineGeneratorKind {
			continue
		}
		if generatorFilter != "" && artifact.Generator != generatorFilter {
			continue
		}
		for _, judge := range run.Config.Eval.Judges {
			for _, dimension := range domain.EvalDimensions {
				iterations := run.Config.Eval.Iterations
				if iterations <= 0 {
					iterations = 1
				}
				for iter := 0; iter < iterations; iter++ {
					tasks = append(tasks, domain.Task{
						TaskID:     ids.New(),
						RunID:      run.RunID,
						Kind:       singleEvalTaskKind(generatorFilter),
						Status:     domain.TaskPending,
						DocumentID: artifact.DocumentID,
						SortOrder:  order,
						Payload: marshal(SingleEvalPayload{
							ArtifactID: artifact.ArtifactID, Provider: judge.Provider, Model: judge.Model,
							Dimension: dimension, Iteration: iter,
						}),
					})
					order++
				}
			}
		}
	}
	return tasks, nil
}

func singleEvalTaskKind(generatorFilter domain.GeneratorKind) domain.TaskKind {
	if generatorFilter == CombineGeneratorKind {
		return domain.TaskPostCombineEval
	}
	return domain.TaskSingleEval
}

// enumeratePairwiseEval groups a run's generation-phase artifacts by
// document and pairs them per the configured tournament strategy (spec
// §4.6).
func (s *Scheduler) enumeratePairwiseEval(ctx context.Context, run domain.Run) ([]domain.Task, error) {
	artifacts, err := s.store.ListArtifactsByRun(ctx, run.RunID, "")
	if err != nil {
		return nil, err
	}

	byDocument := map[string][]domain.Artifact{}
	for _, a := range artifacts {
		if a.Generator == CombineGeneratorKind {
			continue
		}
		byDocument[a.DocumentID] = append(byDocument[a.DocumentID], a)
	}

	var tasks []domain.Task
	order := 0
	iterations := run.Config.Eval.Iterations
	if iterations <= 0 {
		iterations = 1
	}
	for documentID, docArtifacts := range byDocument {
		pairs := tournamentPairs(run.Config.Eval.Strategy, docArtifacts, run.Config.Eval.PairwiseTopN)
		for _, pair := range pairs {
			lo, hi, _ := domain.CanonicalPair(pair[0], pair[1])
			for _, judge := range run.Config.Eval.Judges {
				for iter := 0; iter < iterations; iter++ {
					tasks = append(tasks, domain.Task{
						TaskID:     ids.New(),
						RunID:      run.RunID,
						Kind:       domain.TaskPairwiseEval,
						Status:     domain.TaskPending,
						DocumentID: documentID,
						SortOrder:  order,
						Payload: marshal(PairwiseEvalPayload{
							ArtifactA: lo, ArtifactB: hi, Provider: judge.Provider, Model: judge.Model, Iteration: iter,
						}),
					})
					order++
				}
			}
		}
	}
	return tasks, nil
}

// tournamentPairs returns the (artifactID, artifactID) pairs to compare for
// one document's artifacts, per strategy (spec §4.6):
//   - round-robin: every unordered pair
//   - swiss: paired by adjacent current rank (seeded by arrival order on the
//     first round, since no ratings exist yet within one run's first pass)
//   - top-k: every artifact compared against each of the first topN
func tournamentPairs(strategy domain.TournamentStrategy, artifacts []domain.Artifact, topN int) [][2]string {
	artifactIDs := make([]string, len(artifacts))
	for i, a := range artifacts {
		artifactIDs[i] = a.ArtifactID
	}
	sort.Strings(artifactIDs)

	switch strategy {
	case domain.TournamentSwiss:
		var pairs [][2]string
		for i := 0; i+1 < len(artifactIDs); i += 2 {
			pairs = append(pairs, [2]string{artifactIDs[i], artifactIDs[i+1]})
		}
		return pairs
	case domain.TournamentTopK:
		if topN <= 0 {
			topN = 1
		}
		if topN > len(artifactIDs) {
			topN = len(artifactIDs)
		}
		seen := map[[2]string]bool{}
		var pairs [][2]string
		for i := 0; i < topN; i++ {
			for j := 0; j < len(artifactIDs); j++ {
				if i == j {
					continue
				}
				lo, hi := artifactIDs[i], artifactIDs[j]
				if lo > hi {
					lo, hi = hi, lo
				}
				key := [2]string{lo, hi}
				if seen[key] {
					continue
				}
				seen[key] = true
				pairs = append(pairs, key)
			}
		}
		return pairs
	default: // round-robin
		var pairs [][2]string
		for i := 0; i < len(artifactIDs); i++ {
			for j := i + 1; j < len(artifactIDs); j++ {
				pairs = append(pairs, [2]string{artifactIDs[i], artifactIDs[j]})
			}
		}
		return pairs
	}
}

// enumerateCombine creates one combine task per document per configured
// combine model (SPEC_FULL.md §5 Open Question Decision), carrying every
// generation-phase artifact id for that document: combine operates over all
// of a document's generation artifacts, not a judge-selected subset.
func (s *Scheduler) enumerateCombine(ctx context.Context, run domain.Run) ([]domain.Task, error) {
	artifacts, err := s.store.ListArtifactsByRun(ctx, run.RunID, "")
	if err != nil {
		return nil, err
	}

	byDocument := map[string][]string{}
	for _, a := range artifacts {
		if a.Generator == CombineGeneratorKind {
			continue
		}
		byDocument[a.DocumentID] = append(byDocument[a.DocumentID], a.ArtifactID)
	}

	var tasks []domain.Task
	order := 0
	for documentID, artifactIDs := range byDocument {
		sort.Strings(artifactIDs)
		for _, model := range run.Config.Combine.Models {
			tasks = append(tasks, domain.Task{
				TaskID:     ids.New(),
				RunID:      run.RunID,
				Kind:       domain.TaskCombine,
				Status:     domain.TaskPending,
				DocumentID: documentID,
				SortOrder:  order,
				Payload:    marshal(CombinePayload{Model: model, ArtifactIDs: artifactIDs}),
			})
			order++
		}
	}
	return tasks, nil
}
