package domain

// RunConfig is the validated, frozen shape of the opaque per-run config blob
// described in spec §6. Once a Run is started the engine only ever reads
// this struct back from the stored JSON snapshot — it is never re-validated
// or mutated.
type RunConfig struct {
	IterationsDefault int               `json:"iterations_default"`
	Generators        []GeneratorSpec   `json:"generators"`
	Concurrency       ConcurrencyConfig `json:"concurrency"`
	Eval              EvalConfig        `json:"eval"`
	Combine           CombineConfig     `json:"combine"`
}

// GeneratorSpec names one generator invocation: a (kind, provider, model)
// triple run for `Iterations` rounds per document.
type GeneratorSpec struct {
	Kind       GeneratorKind `json:"kind"`
	Provider   string        `json:"provider"`
	Model      string        `json:"model"`
	Iterations int           `json:"iterations"`
}

// GeneratorKind is one of the two external generator drivers (spec §1).
type GeneratorKind string

const (
	GeneratorFilePrompt GeneratorKind = "generate-fpf"
	GeneratorResearch   GeneratorKind = "generate-research"
)

// ConcurrencyConfig sets bounded worker-pool sizes per phase (spec §4.8).
// Zero means "use the default of 2"; values are clamped to [1, 20].
type ConcurrencyConfig struct {
	Generation       int `json:"generation"`
	SingleDocEval    int `json:"single_doc_eval"`
	PairwiseEval     int `json:"pairwise_eval"`
	Combine          int `json:"combine"`
	PostCombineEval  int `json:"post_combine_eval"`
}

const (
	defaultPhaseConcurrency = 2
	minPhaseConcurrency     = 1
	maxPhaseConcurrency     = 20
)

// For resolves the effective worker count for a phase, applying defaults and
// clamping into [1, 20].
func (c ConcurrencyConfig) For(phase Phase) int {
	var n int
	switch phase {
	case PhaseGeneration:
		n = c.Generation
	case PhaseSingleDocEval:
		n = c.SingleDocEval
	case PhasePairwiseEval:
		n = c.PairwiseEval
	case PhaseCombine:
		n = c.Combine
	case PhasePostCombineEval:
		n = c.PostCombineEval
	}
	if n <= 0 {
		n = defaultPhaseConcurrency
	}
	if n < minPhaseConcurrency {
		n = minPhaseConcurrency
	}
	if n > maxPhaseConcurrency {
		n = maxPhaseConcurrency
	}
	return n
}

// EvalDimensions is the fixed set of dimensions every single-doc and
// post-combine evaluation grades an artifact on (spec §4.6/§9: "graded
// scoring of one artifact on fixed dimensions").
var EvalDimensions = []string{"accuracy", "completeness", "clarity"}

// EvalMode selects which evaluation phases run.
type EvalMode string

const (
	EvalSingle   EvalMode = "single"
	EvalPairwise EvalMode = "pairwise"
	EvalBoth     EvalMode = "both"
)

// TournamentStrategy selects the pairwise pairing algorithm (spec §4.6).
type TournamentStrategy string

const (
	TournamentRoundRobin TournamentStrategy = "round-robin"
	TournamentSwiss      TournamentStrategy = "swiss"
	TournamentTopK       TournamentStrategy = "top-k"
)

// JudgeSpec names one judge model used for scoring/comparison.
type JudgeSpec struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

// EvalConfig controls the evaluation phases.
type EvalConfig struct {
	AutoRun      bool               `json:"auto_run"`
	Iterations   int                `json:"iterations"`
	PairwiseTopN int                `json:"pairwise_top_n"`
	Mode         EvalMode           `json:"mode"`
	Strategy     TournamentStrategy `json:"strategy"`
	Judges       []JudgeSpec        `json:"judges"`
}

// CombineConfig controls the optional Combine phase.
type CombineConfig struct {
	Enabled bool     `json:"enabled"`
	Models  []string `json:"models"`
}

// SkipPairwiseEval and friends are convenience readers used by the scheduler
// to decide whether a phase is configured out entirely (spec §4.8: "Each
// phase's skip flag is read from the run's frozen config"). Generation itself
// is never skippable — every run needs at least one artifact per document.
func (c RunConfig) SkipPairwiseEval() bool {
	return c.Eval.Mode != "" && c.Eval.Mode == EvalSingle
}

func (c RunConfig) SkipSingleDocEval() bool {
	return c.Eval.Mode != "" && c.Eval.Mode == EvalPairwise
}

func (c RunConfig) SkipCombine() bool {
	return !c.Combine.Enabled
}

func (c RunConfig) SkipPostCombineEval() bool {
	return c.SkipCombine() || (!c.Eval.AutoRun && len(c.Eval.Judges) == 0)
}
