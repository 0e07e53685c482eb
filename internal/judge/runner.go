package judge

import (
	"context"
	"math/rand"
	"time"

	"github.com/genbatch/pipeline/internal/domain"
)

// maxReformatAttempts is how many reformat retries follow the first judge
// call when its reply cannot be parsed.
const maxReformatAttempts = 3

// Runner executes graded single-doc evaluations and pairwise comparisons
// (spec §4.6), owning prompt construction, retry-with-reformat and
// position-bias randomization. It does not persist results — callers
// (internal/executors) write the returned rows through the Metadata Store
// inside a transaction, honoring the "do not overwrite a successful prior
// row" rule.
type Runner struct {
	client ModelClient
	rng    *rand.Rand
}

func NewRunner(client ModelClient, seed int64) *Runner {
	return &Runner{client: client, rng: rand.New(rand.NewSource(seed))}
}

// SingleDocRequest names one (artifact, judge, dimension, iteration) unit.
type SingleDocRequest struct {
	RunID             string
	ArtifactID        string
	ArtifactContent   string
	JudgeProvider     string
	JudgeModel        string
	Dimension         string
	Iteration         int
	RubricOverrides   map[string]string
	CredentialHeaders map[string]string
}

// EvaluateSingleDoc runs the grade-then-reformat-on-failure loop (spec §4.6
// steps 1-3). On final failure it returns a row with FailedParse=true and a
// nil Score rather than an error — a terminal parse failure is a recorded
// outcome, not a caller-visible error.
func (r *Runner) EvaluateSingleDoc(ctx context.Context, req SingleDocRequest) (domain.EvaluationRow, error) {
	rubric := ResolveRubric(req.Dimension, req.RubricOverrides)

	var parsed ParsedScore
	for attempt := 0; attempt <= maxReformatAttempts; attempt++ {
		prompt := BuildSingleDocPrompt(req.ArtifactContent, req.Dimension, rubric, attempt > 0)
		raw, _, err := r.client.Call(ctx, req.JudgeProvider, req.JudgeModel, prompt, req.CredentialHeaders)
		if err != nil {
			return domain.EvaluationRow{}, err
		}
		parsed = ParseScoreResponse(raw)
		if parsed.OK {
			break
		}
	}

	row := domain.EvaluationRow{
		RunID:      req.RunID,
		ArtifactID: req.ArtifactID,
		JudgeModel: req.JudgeModel,
		Dimension:  req.Dimension,
		Iteration:  req.Iteration,
		CreatedAt:  time.Now().UTC(),
	}
	if !parsed.OK {
		row.FailedParse = true
		return row, nil
	}
	score := parsed.Score
	row.Score = &score
	row.Rationale = parsed.Rationale
	return row, nil
}

// PairwiseRequest names one scheduled comparison. ArtifactA/ArtifactB are
// the raw (not yet canonicalized) pair as the tournament scheduler produced
// them.
type PairwiseRequest struct {
	RunID             string
	ArtifactA         string
	ArtifactB         string
	ContentA          string
	ContentB          string
	JudgeProvider     string
	JudgeModel        string
	Iteration         int
	CredentialHeaders map[string]string
}

// ComparePairwise runs one pairwise comparison end to end (spec §4.6 steps
// 1-4): canonicalize, randomize presentation order, call, parse with
// reformat retry, undo the flip, and return a row already canonicalized for
// storage. A terminal parse failure returns Winner=WinnerNone (recorded,
// does not update Elo, does not stop the tournament) rather than an error.
func (r *Runner) ComparePairwise(ctx context.Context, req PairwiseRequest) (domain.PairwiseResult, error) {
	lo, hi, canonSwapped := domain.CanonicalPair(req.ArtifactA, req.ArtifactB)
	contentLo, contentHi := req.ContentA, req.ContentB
	if canonSwapped {
		contentLo, contentHi = req.ContentB, req.ContentA
	}

	presentFlipped := ShouldFlip(r.rng)
	presentA, presentB := contentLo, contentHi
	if presentFlipped {
		presentA, presentB = contentHi, contentLo
	}

	var parsed ParsedWinner
	for attempt := 0; attempt <= maxReformatAttempts; attempt++ {
		prompt := BuildPairwisePrompt(presentA, presentB, attempt > 0)
		raw, _, err := r.client.Call(ctx, req.JudgeProvider, req.JudgeModel, prompt, req.CredentialHeaders)
		if err != nil {
			return domain.PairwiseResult{}, err
		}
		parsed = ParseWinnerResponse(raw)
		if parsed.OK {
			break
		}
	}

	result := domain.PairwiseResult{
		RunID:      req.RunID,
		ArtifactA:  lo,
		ArtifactB:  hi,
		JudgeModel: req.JudgeModel,
		Iteration:  req.Iteration,
		Flipped:    presentFlipped,
		CreatedAt:  time.Now().UTC(),
	}
	if !parsed.OK {
		result.Winner = domain.WinnerNone
		return result, nil
	}

	winner := parsed.Winner
	if presentFlipped {
		winner = domain.FlipWinner(winner)
	}
	result.Winner = winner
	return result, nil
}
