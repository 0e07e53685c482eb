package domain

import (
	"strconv"
	"time"
)

// EvaluationRow is one graded score from one judge model for one artifact on
// one dimension (spec §3). Unique on (run_id, artifact_id, judge_model,
// dimension, iteration).
type EvaluationRow struct {
	RunID      string
	ArtifactID string
	JudgeModel string
	Dimension  string
	Iteration  int
	Score      *int // 1..5, nil when FailedParse
	Rationale  string
	FailedParse bool
	CreatedAt  time.Time
}

// Key returns the row's unique-constraint key.
func (e EvaluationRow) Key() [5]string {
	return [5]string{e.RunID, e.ArtifactID, e.JudgeModel, e.Dimension, strconv.Itoa(e.Iteration)}
}

// Winner is the outcome of one pairwise comparison.
type Winner string

const (
	WinnerA    Winner = "A"
	WinnerB    Winner = "B"
	WinnerTie  Winner = "tie"
	WinnerNone Winner = "" // terminal judge failure; does not update Elo
)

// PairwiseResult is the outcome of one (A, B, judge, iteration) comparison
// (spec §3). ArtifactA must sort before ArtifactB (canonicalization).
type PairwiseResult struct {
	RunID      string
	ArtifactA  string
	ArtifactB  string
	JudgeModel string
	Iteration  int
	Winner     Winner
	Flipped    bool // presentation order was flipped before the call
	CreatedAt  time.Time
}

// Key returns the row's unique-constraint key.
func (p PairwiseResult) Key() [5]string {
	return [5]string{p.RunID, p.ArtifactA, p.ArtifactB, p.JudgeModel, strconv.Itoa(p.Iteration)}
}

// CanonicalPair orders two artifact ids per spec §4.6/§8 ("Canonicalize to
// (a,b) with a<b"), returning whether a swap (and thus a winner flip) was
// required.
func CanonicalPair(a, b string) (lo, hi string, swapped bool) {
	if a <= b {
		return a, b, false
	}
	return b, a, true
}

// FlipWinner inverts a Winner for A/B swap (used both for canonicalization
// and for position-bias randomization, spec §4.6 step 2/3).
func FlipWinner(w Winner) Winner {
	switch w {
	case WinnerA:
		return WinnerB
	case WinnerB:
		return WinnerA
	default:
		return w
	}
}

// EloRating is the current Elo per (run_id, artifact_id) (spec §3/§4.7).
type EloRating struct {
	RunID        string
	ArtifactID   string
	Rating       float64
	GamesPlayed  int
	UpdatedAt    time.Time
}

const EloStartingRating = 1500.0
const EloK = 32.0
