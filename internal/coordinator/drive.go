package coordinator

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
)

// drive walks runID through the fixed phase DAG (spec §4.8), one phase at a
// time: enumerate that phase's tasks, dispatch them, and decide whether to
// continue, stop on a fatal phase failure, or stop because the run was
// cancelled mid-phase. It runs in its own goroutine for the lifetime of one
// run; Start launches exactly one of these per run.
func (c *Coordinator) drive(ctx context.Context, runID string) {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		c.logError(runID, "drive: load run", err)
		return
	}

	if err := c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.TransitionRun(ctx, tx, runID, domain.RunQueued, domain.RunRunning)
	}); err != nil {
		c.logError(runID, "drive: transition to running", err)
		return
	}
	if c.metrics != nil {
		c.metrics.RunsActive.Inc()
		defer c.metrics.RunsActive.Dec()
	}

	var timeline []metadata.PhaseTiming
	finalStatus := domain.RunCompleted

	for phase := domain.Phases[0]; phase != domain.PhaseDone; phase = phase.Next() {
		if c.IsCancelled(runID) {
			finalStatus = domain.RunCancelled
			break
		}
		if c.skipPhase(run, phase) {
			continue
		}

		started := time.Now().UTC()
		if err := c.runner.EnumeratePhase(ctx, run, phase); err != nil {
			c.logError(runID, "drive: enumerate phase "+string(phase), err)
			finalStatus = domain.RunFailed
			break
		}

		concurrency := run.Config.Concurrency.For(phase)
		outcome, err := c.runner.RunPhase(ctx, run, phase, concurrency)
		timeline = append(timeline, metadata.PhaseTiming{
			Phase: string(phase), StartedAt: started, FinishedAt: time.Now().UTC(), Outcome: string(outcome),
		})
		if err != nil {
			c.logError(runID, "drive: run phase "+string(phase), err)
			finalStatus = domain.RunFailed
			break
		}
		if outcome == domain.PhaseFailed {
			finalStatus = domain.RunFailed
			break
		}
	}

	if c.IsCancelled(runID) {
		finalStatus = domain.RunCancelled
	}

	if err := c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.TransitionRun(ctx, tx, runID, domain.RunRunning, finalStatus)
	}); err != nil {
		c.logError(runID, "drive: transition to terminal status", err)
	}
	if err := c.store.PutRunTimeline(ctx, runID, timeline); err != nil {
		c.logError(runID, "drive: persist timeline", err)
	}
	if c.metrics != nil {
		c.metrics.RunsTotal.WithLabelValues(string(finalStatus)).Inc()
	}
}

// skipPhase honors the run config's per-phase skip flags (spec §4.8: "each
// phase's skip flag is read from the run's frozen config").
func (c *Coordinator) skipPhase(run domain.Run, phase domain.Phase) bool {
	switch phase {
	case domain.PhaseSingleDocEval:
		return run.Config.SkipSingleDocEval()
	case domain.PhasePairwiseEval:
		return run.Config.SkipPairwiseEval()
	case domain.PhaseCombine:
		return run.Config.SkipCombine()
	case domain.PhasePostCombineEval:
		return run.Config.SkipPostCombineEval()
	default:
		return false
	}
}

func (c *Coordinator) logError(runID, msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.WithEntry(context.Background(), log.Entry{RunID: runID}).WithError(err).Error(msg)
}
