// Package domain holds the persistent entities shared by every engine
// component: Run, Document, RunDocument, Task, Artifact, EvaluationRow,
// PairwiseResult and EloRating (spec §3). Keeping one definition per entity
// here is what lets the Metadata Store, Scheduler, Judge Runner and Elo
// Engine agree on invariants without duplicating struct tags.
package domain

import "time"

// RunStatus is one node of the Run state machine (spec §4.8).
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is a sink state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	default:
		return false
	}
}

// runTransitions is the DAG from spec §4.8. A transition not present here is
// rejected with apperr.InvalidStatusTransition (see metadata.TransitionRun)
// regardless of caller.
var runTransitions = map[RunStatus]map[RunStatus]bool{
	RunPending: {RunQueued: true, RunCancelled: true},
	RunQueued:  {RunRunning: true, RunCancelled: true},
	RunRunning: {RunCompleted: true, RunFailed: true, RunCancelled: true},
}

// CanTransitionRun reports whether from->to is a legal Run state transition.
func CanTransitionRun(from, to RunStatus) bool {
	if from == to {
		return false
	}
	return runTransitions[from][to]
}

const (
	MaxTags       = 10
	MaxTagLength  = 32
	MaxInlineSize = 1 << 20 // 1 MiB
)

// Run is one batch job submitted by a tenant (spec §3).
type Run struct {
	RunID       string
	TenantID    string
	ProjectID   string
	Status      RunStatus
	Priority    int // 1..9
	Config      RunConfig
	ConfigRaw   []byte // frozen JSON snapshot, opaque after validation
	Tags        []string
	RequestedBy string
	Summary     string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}
