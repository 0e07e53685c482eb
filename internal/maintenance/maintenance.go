// Package maintenance runs the periodic janitor tasks that keep
// process-wide state from growing without bound: today, GC of rate-limit
// buckets for (provider, model) pairs that have gone idle.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/genbatch/pipeline/internal/config"
	"github.com/genbatch/pipeline/internal/obs/log"
	"github.com/genbatch/pipeline/internal/ratelimit"
)

// idleBucketTTL is how long a (provider, model) bucket can go untouched
// before the janitor reclaims it.
var idleBucketTTL = 30 * time.Minute

// Janitor wraps a robfig/cron scheduler running the maintenance jobs.
type Janitor struct {
	cron   *cron.Cron
	rl     *ratelimit.Manager
	logger *log.Logger
}

func New(cfg config.MaintenanceConfig, rl *ratelimit.Manager, logger *log.Logger) (*Janitor, error) {
	j := &Janitor{cron: cron.New(), rl: rl, logger: logger}

	schedule := cfg.IdleBucketGCSchedule
	if schedule == "" {
		schedule = "@every 10m"
	}
	if _, err := j.cron.AddFunc(schedule, j.gcIdleBuckets); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Janitor) Start() { j.cron.Start() }

func (j *Janitor) Stop(ctx context.Context) {
	<-j.cron.Stop().Done()
}

func (j *Janitor) gcIdleBuckets() {
	reaped := j.rl.GCIdle(idleBucketTTL)
	if j.logger == nil {
		return
	}
	for _, providerModel := range reaped {
		j.logger.WithField("provider_model", providerModel).Info("gc'd idle rate-limit bucket")
	}
}
