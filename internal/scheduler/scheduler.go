// Package scheduler is the Phase Scheduler (spec §4.8): it drives the fixed
// phase DAG Generation -> SingleDocEval -> PairwiseEval -> Combine ->
// PostCombineEval -> Done, dispatching each phase's tasks to a bounded
// worker pool with FIFO ordering, retrying transient failures in place, and
// deciding per-phase partial-failure outcomes.
package scheduler

import (
	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"context"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
	"github.com/genbatch/pipeline/internal/obs/metrics"
	"github.com/genbatch/pipeline/internal/resilience"
)

// Executor runs one task's external work (a generator call, a judge call,
// a combine step). Errors are classified by apperr.Transient to decide
// retry eligibility; a non-nil error that is not transient fails the task.
type Executor interface {
	Execute(ctx context.Context, task domain.Task) error
}

// ExecutorFunc adapts a plain function to Executor.
type ExecutorFunc func(ctx context.Context, task domain.Task) error

func (f ExecutorFunc) Execute(ctx context.Context, task domain.Task) error { return f(ctx, task) }

// CancellationChecker reports whether a run has been asked to cancel. The
// Run Coordinator owns the authoritative registry (spec §4.8); the
// scheduler only ever reads it, checking "between calls and on every
// permit-acquire wake-up".
type CancellationChecker func(runID string) bool

// taskKindsForPhase lists which Task kinds belong to each phase of the DAG.
var taskKindsForPhase = map[domain.Phase][]domain.TaskKind{
	domain.PhaseGeneration:       {domain.TaskGenerateFPF, domain.TaskGenerateResearch},
	domain.PhaseSingleDocEval:    {domain.TaskSingleEval},
	domain.PhasePairwiseEval:     {domain.TaskPairwiseEval},
	domain.PhaseCombine:          {domain.TaskCombine},
	domain.PhasePostCombineEval:  {domain.TaskPostCombineEval},
}

// Scheduler executes one phase of one run at a time. One Scheduler instance
// is shared across runs; all per-run state lives in the Metadata Store.
type Scheduler struct {
	store     *metadata.Store
	executors map[domain.TaskKind]Executor
	cancelled CancellationChecker
	logger    *log.Logger
	metrics   *metrics.Metrics
}

// Config wires a Scheduler's dependencies.
type Config struct {
	Store     *metadata.Store
	Executors map[domain.TaskKind]Executor
	Cancelled CancellationChecker
	Logger    *log.Logger
	Metrics   *metrics.Metrics
}

func New(cfg Config) *Scheduler {
	cancelled := cfg.Cancelled
	if cancelled == nil {
		cancelled = func(string) bool { return false }
	}
	return &Scheduler{
		store:     cfg.Store,
		executors: cfg.Executors,
		cancelled: cancelled,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
}

// RunPhase dispatches every pending task of phase's kinds for run to a
// worker pool of size concurrency, retries transient failures per
// resilience.TaskRetryConfig, and returns the phase's outcome once no
// pending or running tasks of these kinds remain.
func (s *Scheduler) RunPhase(ctx context.Context, run domain.Run, phase domain.Phase, concurrency int) (domain.PhaseOutcome, error) {
	kinds := taskKindsForPhase[phase]
	if len(kinds) == 0 {
		return domain.PhaseCompleted, nil
	}

	sem := semaphore.NewWeighted(int64(concurrency))
	g, gctx := errgroup.WithContext(ctx)

	for _, kind := range kinds {
		kind := kind
		for {
			if s.cancelled(run.RunID) {
				break
			}
			tasks, err := s.claimBatch(gctx, run.RunID, kind, concurrency)
			if err != nil {
				return domain.PhaseFailed, err
			}
			if len(tasks) == 0 {
				break
			}
			for _, task := range tasks {
				task := task
				if err := sem.Acquire(gctx, 1); err != nil {
					return domain.PhaseFailed, err
				}
				g.Go(func() error {
					defer sem.Release(1)
					s.runOne(gctx, phase, run, task)
					return nil
				})
			}
		}
	}

	if err := g.Wait(); err != nil {
		return domain.PhaseFailed, err
	}

	outcome, err := s.evaluateOutcome(ctx, run.RunID, phase, kinds)
	if err != nil {
		return domain.PhaseFailed, err
	}
	if s.metrics != nil {
		s.metrics.PhaseOutcomesTotal.WithLabelValues(string(phase), string(outcome)).Inc()
	}
	if s.logger != nil {
		s.logger.WithFields(map[string]any{
			"run_id": run.RunID, "phase": phase, "outcome": outcome,
		}).Info("phase finished")
	}
	return outcome, nil
}

// claimBatch atomically claims up to limit pending tasks of kind for run.
func (s *Scheduler) claimBatch(ctx context.Context, runID string, kind domain.TaskKind, limit int) ([]domain.Task, error) {
	var tasks []domain.Task
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		tasks, err = metadata.ClaimNextTasks(ctx, tx, runID, kind, limit)
		return err
	})
	return tasks, err
}

// runOne executes a single claimed (already running) task with retry, then
// persists its terminal transition. Executor errors are swallowed into the
// task's last_error column rather than propagated: one failing task must
// never abort its phase's errgroup for the others.
func (s *Scheduler) runOne(ctx context.Context, phase domain.Phase, run domain.Run, task domain.Task) {
	executor, ok := s.executors[task.Kind]
	if !ok {
		s.terminal(ctx, phase, task, domain.TaskFailed, apperr.Internal("no executor registered for task kind", nil).Error())
		return
	}

	if s.cancelled(run.RunID) {
		s.terminal(ctx, phase, task, domain.TaskCancelled, "cancelled")
		return
	}

	err := resilience.RetryIf(ctx, resilience.TaskRetryConfig(), apperr.Transient, func() error {
		if s.cancelled(run.RunID) {
			return nil
		}
		return executor.Execute(ctx, task)
	})

	if s.cancelled(run.RunID) {
		s.terminal(ctx, phase, task, domain.TaskCancelled, "cancelled")
		return
	}
	if err != nil {
		s.terminal(ctx, phase, task, domain.TaskFailed, err.Error())
		return
	}
	s.terminal(ctx, phase, task, domain.TaskSucceeded, "")
}

func (s *Scheduler) terminal(ctx context.Context, phase domain.Phase, task domain.Task, to domain.TaskStatus, lastError string) {
	err := s.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.TransitionTask(ctx, tx, task.TaskID, domain.TaskRunning, to, lastError)
	})
	if err != nil && s.logger != nil {
		s.logger.WithFields(map[string]any{"task_id": task.TaskID, "to": to}).WithError(err).Error("task transition failed")
	}
	if s.metrics != nil {
		s.metrics.TasksTotal.WithLabelValues(string(phase), string(task.Kind), string(to)).Inc()
	}
}

// evaluateOutcome applies the per-phase partial-failure thresholds of spec
// §4.8's table.
func (s *Scheduler) evaluateOutcome(ctx context.Context, runID string, phase domain.Phase, kinds []domain.TaskKind) (domain.PhaseOutcome, error) {
	total, failed := 0, 0
	for _, kind := range kinds {
		counts, err := s.store.CountTasksByStatus(ctx, runID, kind)
		if err != nil {
			return domain.PhaseFailed, err
		}
		for status, n := range counts {
			total += n
			if status == domain.TaskFailed {
				failed += n
			}
		}
	}
	if total == 0 {
		return domain.PhaseCompleted, nil
	}

	switch phase {
	case domain.PhaseGeneration:
		if failed == total {
			return domain.PhaseFailed, nil
		}
	case domain.PhaseSingleDocEval, domain.PhasePairwiseEval, domain.PhasePostCombineEval:
		if float64(failed)/float64(total) >= 0.5 {
			return domain.PhaseCompletedPartialFailure, nil
		}
	case domain.PhaseCombine:
		if failed > 0 {
			return domain.PhaseFailed, nil
		}
	}
	if failed > 0 {
		return domain.PhaseCompletedPartialFailure, nil
	}
	return domain.PhaseCompleted, nil
}
