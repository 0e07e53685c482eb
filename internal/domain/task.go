package domain

import "time"

// TaskKind identifies the unit of external work a Task performs (spec §3).
type TaskKind string

const (
	TaskGenerateFPF      TaskKind = "generate-fpf"
	TaskGenerateResearch TaskKind = "generate-research"
	TaskSingleEval       TaskKind = "single-eval"
	TaskPairwiseEval     TaskKind = "pairwise-eval"
	TaskCombine          TaskKind = "combine"
	TaskPostCombineEval  TaskKind = "post-combine-eval"
)

// TaskStatus is the lifecycle of one Task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// taskTransitions enumerates the legal Task transitions; the Scheduler is
// the only writer and always moves pending->running->{succeeded,failed,cancelled}.
var taskTransitions = map[TaskStatus]map[TaskStatus]bool{
	TaskPending: {TaskRunning: true, TaskCancelled: true},
	TaskRunning: {TaskSucceeded: true, TaskFailed: true, TaskCancelled: true},
}

// CanTransitionTask reports whether from->to is legal.
func CanTransitionTask(from, to TaskStatus) bool {
	if from == to {
		return false
	}
	return taskTransitions[from][to]
}

// Task is one unit of external work for a phase: one generator call for one
// document, or one judge call for one artifact (spec §3).
type Task struct {
	TaskID      string
	RunID       string
	Kind        TaskKind
	Status      TaskStatus
	DocumentID  string // empty for tasks not tied to a single document
	SortOrder   int
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time

	// Payload carries kind-specific scheduling data (generator/judge spec,
	// artifact ids being compared, iteration index, …) as opaque JSON so the
	// Task table stays generic across all six kinds.
	Payload []byte
}

// Artifact is produced content: the output of one generator call (spec §3).
// Immutable after creation.
type Artifact struct {
	ArtifactID   string
	RunID        string
	DocumentID   string
	Generator    GeneratorKind
	Provider     string
	ModelID      string
	StoragePath  string
	ContentHash  string
	CostUSD      float64
	TokenCount   int
	GenerationMS int64
	Metadata     map[string]any
	CreatedAt    time.Time
}
