// Package elo is the Elo Engine (spec §4.7): standard Elo rating updates
// applied to pairwise judge outcomes, replayed deterministically in
// created_at order so a run's ratings can always be rebuilt from the
// pairwise_results table alone.
package elo

import (
	"math"
	"sort"

	"github.com/genbatch/pipeline/internal/domain"
)

// Rating is the in-memory working state for one artifact during a replay.
type Rating struct {
	ArtifactID  string
	Value       float64
	GamesPlayed int
}

// expectedScore is E_A = 1 / (1 + 10^((R_B - R_A)/400)).
func expectedScore(ratingA, ratingB float64) float64 {
	return 1 / (1 + math.Pow(10, (ratingB-ratingA)/400))
}

// outcomeScores maps a Winner (already in (A,B) == (artifactA, artifactB)
// framing) to the (S_A, S_B) pair Elo expects.
func outcomeScores(winner domain.Winner) (scoreA, scoreB float64, counts bool) {
	switch winner {
	case domain.WinnerA:
		return 1, 0, true
	case domain.WinnerB:
		return 0, 1, true
	case domain.WinnerTie:
		return 0.5, 0.5, true
	default: // WinnerNone: terminal judge failure, does not update Elo
		return 0, 0, false
	}
}

// ApplyResult updates ratings in place for one pairwise outcome, creating
// fresh entries at domain.EloStartingRating for artifacts not seen before.
// Results with Winner == domain.WinnerNone are no-ops (spec §4.6: "does not
// update Elo").
func ApplyResult(ratings map[string]*Rating, result domain.PairwiseResult) {
	scoreA, scoreB, counts := outcomeScores(result.Winner)
	if !counts {
		return
	}

	ra := getOrInit(ratings, result.ArtifactA)
	rb := getOrInit(ratings, result.ArtifactB)

	expectedA := expectedScore(ra.Value, rb.Value)
	expectedB := 1 - expectedA

	ra.Value += domain.EloK * (scoreA - expectedA)
	rb.Value += domain.EloK * (scoreB - expectedB)
	ra.GamesPlayed++
	rb.GamesPlayed++
}

func getOrInit(ratings map[string]*Rating, artifactID string) *Rating {
	r, ok := ratings[artifactID]
	if !ok {
		r = &Rating{ArtifactID: artifactID, Value: domain.EloStartingRating}
		ratings[artifactID] = r
	}
	return r
}

// Replay rebuilds every artifact's Elo rating from scratch by applying
// results in the order given. Callers must supply results already sorted by
// created_at — the Metadata Store's idx_pairwise_replay index exists for
// exactly this query; Replay does not re-sort, so a caller-supplied order
// determines the outcome.
func Replay(results []domain.PairwiseResult) map[string]*Rating {
	ratings := make(map[string]*Rating)
	for _, r := range results {
		ApplyResult(ratings, r)
	}
	return ratings
}

// Ranked returns ratings ordered by the tie-break rule: rating desc, then
// games_played desc, then artifact_id asc.
func Ranked(ratings map[string]*Rating) []*Rating {
	out := make([]*Rating, 0, len(ratings))
	for _, r := range ratings {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		if out[i].GamesPlayed != out[j].GamesPlayed {
			return out[i].GamesPlayed > out[j].GamesPlayed
		}
		return out[i].ArtifactID < out[j].ArtifactID
	})
	return out
}
