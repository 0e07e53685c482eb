// Package reaper implements the Recovery Reaper (spec §4.10): a boot-time
// sweep that fails any task or run left in a running state by a process that
// died mid-flight, before the scheduler accepts new work.
package reaper

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
)

// Reaper sweeps stale running tasks and runs at process start.
type Reaper struct {
	store  *metadata.Store
	logger *log.Logger
}

func New(store *metadata.Store, logger *log.Logger) *Reaper {
	return &Reaper{store: store, logger: logger}
}

// Run performs the boot-time sweep in a single transaction: every running
// task is failed with "reaped_on_boot", then every running run is failed.
// Callers must finish this before handing any work to the scheduler.
func (r *Reaper) Run(ctx context.Context) error {
	var taskIDs, runIDs []string
	err := r.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		taskIDs, err = metadata.ReapRunningTasks(ctx, tx)
		if err != nil {
			return err
		}
		runIDs, err = metadata.ReapRunningRuns(ctx, tx)
		return err
	})
	if err != nil {
		return err
	}

	if r.logger == nil {
		return nil
	}
	for _, taskID := range taskIDs {
		r.logger.WithEntry(ctx, log.Entry{TaskID: taskID}).Warn("reaped running task on boot")
	}
	for _, runID := range runIDs {
		r.logger.WithEntry(ctx, log.Entry{RunID: runID}).Warn("reaped running run on boot")
	}
	return nil
}
