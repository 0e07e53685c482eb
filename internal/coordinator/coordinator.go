// Package coordinator is the Run Coordinator (spec §4.9), the engine's only
// public entry point: it creates/starts/cancels/inspects runs, validates
// every state transition against domain.CanTransitionRun, and owns the
// in-memory cancellation registry the Scheduler polls from its worker pool.
package coordinator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/genbatch/pipeline/internal/apperr"
	"github.com/genbatch/pipeline/internal/domain"
	"github.com/genbatch/pipeline/internal/ids"
	"github.com/genbatch/pipeline/internal/metadata"
	"github.com/genbatch/pipeline/internal/obs/log"
	"github.com/genbatch/pipeline/internal/obs/metrics"
)

// PhaseRunner is the subset of *scheduler.Scheduler the coordinator drives a
// run through; narrowed to an interface so coordinator tests don't need a
// live Metadata Store wired through the scheduler.
type PhaseRunner interface {
	EnumeratePhase(ctx context.Context, run domain.Run, phase domain.Phase) error
	RunPhase(ctx context.Context, run domain.Run, phase domain.Phase, concurrency int) (domain.PhaseOutcome, error)
}

// Coordinator is the single writer of Run state transitions. One instance
// per process; safe for concurrent use across HTTP handlers and the
// background drive loop each Start spawns.
type Coordinator struct {
	store       *metadata.Store
	runner      PhaseRunner
	logger      *log.Logger
	metrics     *metrics.Metrics
	cancelled   sync.Map // runID string -> bool
	maxPriority int
}

// Config wires a Coordinator's dependencies.
type Config struct {
	Store   *metadata.Store
	Runner  PhaseRunner
	Logger  *log.Logger
	Metrics *metrics.Metrics
}

func New(cfg Config) *Coordinator {
	return &Coordinator{store: cfg.Store, runner: cfg.Runner, logger: cfg.Logger, metrics: cfg.Metrics, maxPriority: 9}
}

// CreateRun validates config, freezes it as ConfigRaw, and persists a new
// Run in RunPending.
func (c *Coordinator) CreateRun(ctx context.Context, tenantID, projectID string, cfg domain.RunConfig, tags []string, priority int, requestedBy string) (string, error) {
	if err := validateConfig(cfg); err != nil {
		return "", err
	}
	if priority <= 0 {
		priority = 5
	}
	if priority > c.maxPriority {
		return "", apperr.InvalidConfig("priority out of range")
	}
	if len(tags) > domain.MaxTags {
		return "", apperr.InvalidConfig("too many tags")
	}
	for _, tag := range tags {
		if len(tag) > domain.MaxTagLength {
			return "", apperr.InvalidConfig("tag exceeds max length")
		}
	}

	raw, err := json.Marshal(cfg)
	if err != nil {
		return "", apperr.InvalidConfig("config is not serializable")
	}

	run := domain.Run{
		RunID:       ids.New(),
		TenantID:    tenantID,
		ProjectID:   projectID,
		Status:      domain.RunPending,
		Priority:    priority,
		Config:      cfg,
		ConfigRaw:   raw,
		Tags:        tags,
		RequestedBy: requestedBy,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := c.store.CreateRun(ctx, run); err != nil {
		return "", err
	}
	return run.RunID, nil
}

func validateConfig(cfg domain.RunConfig) error {
	if len(cfg.Generators) == 0 {
		return apperr.InvalidConfig("at least one generator is required")
	}
	for _, g := range cfg.Generators {
		if g.Provider == "" || g.Model == "" {
			return apperr.InvalidConfig("generator provider/model must be set")
		}
	}
	return nil
}

// AttachDocuments creates the Document rows and attaches them to the run as
// RunDocuments inside one transaction, assigning sort_order after any
// already-attached documents (spec §4.9).
func (c *Coordinator) AttachDocuments(ctx context.Context, runID string, docs []domain.Document) error {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return apperr.RunAlreadyTerminal(runID, string(run.Status))
	}

	existing, err := c.store.ListRunDocuments(ctx, runID)
	if err != nil {
		return err
	}
	startSortOrder := len(existing)

	documentIDs := make([]string, len(docs))
	for i, doc := range docs {
		if doc.DocumentID == "" {
			doc.DocumentID = ids.New()
		}
		doc.CreatedAt = time.Now().UTC()
		if err := c.store.CreateDocument(ctx, doc); err != nil {
			return err
		}
		documentIDs[i] = doc.DocumentID
	}

	return c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.AttachDocuments(ctx, tx, runID, documentIDs, startSortOrder)
	})
}

// Start validates run is pending, transitions it to queued, and spawns the
// background drive loop that walks the phase DAG (spec §4.8/§4.9). Start
// returns as soon as the transition is durable; it does not wait for the
// run to finish.
func (c *Coordinator) Start(ctx context.Context, runID string) error {
	if err := c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.TransitionRun(ctx, tx, runID, domain.RunPending, domain.RunQueued)
	}); err != nil {
		return err
	}

	go c.drive(context.Background(), runID)
	return nil
}

// Cancel flips the run's cancellation flag (observed by the scheduler's
// worker pool between calls and on every permit-acquire wake-up, spec §5)
// and transitions the run to cancelled if it is not already terminal.
func (c *Coordinator) Cancel(ctx context.Context, runID string) error {
	c.setCancelled(runID)

	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() {
		return nil
	}
	return c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		return metadata.TransitionRun(ctx, tx, runID, run.Status, domain.RunCancelled)
	})
}

func (c *Coordinator) setCancelled(runID string) {
	c.cancelled.Store(runID, true)
}

// IsCancelled is the CancellationChecker the Scheduler polls.
func (c *Coordinator) IsCancelled(runID string) bool {
	v, ok := c.cancelled.Load(runID)
	return ok && v.(bool)
}

func (c *Coordinator) Get(ctx context.Context, runID string) (domain.Run, error) {
	return c.store.GetRun(ctx, runID)
}

func (c *Coordinator) List(ctx context.Context, filter metadata.RunFilter) ([]domain.Run, error) {
	return c.store.ListRuns(ctx, filter)
}

// Update applies a partial field update. Once a run reaches a terminal
// status (completed/failed/cancelled) only its summary may still change
// (spec §3); a terminal run rejects any other field, mirroring the
// Terminal() guard AttachDocuments and Cancel already enforce.
func (c *Coordinator) Update(ctx context.Context, runID string, fields metadata.UpdateRunFields) error {
	run, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status.Terminal() && (fields.Priority != nil || fields.Tags != nil) {
		return apperr.RunAlreadyTerminal(runID, string(run.Status))
	}
	return c.store.UpdateRun(ctx, runID, fields)
}

// Delete soft-deletes by transitioning to cancelled; rows are retained
// (spec §4.9: "hard delete reserved for administrative paths").
func (c *Coordinator) Delete(ctx context.Context, runID string) error {
	return c.Cancel(ctx, runID)
}
