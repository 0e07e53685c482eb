package elo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/genbatch/pipeline/internal/domain"
)

func TestApplyResultStartsAtStartingRating(t *testing.T) {
	ratings := map[string]*Rating{}
	ApplyResult(ratings, domain.PairwiseResult{ArtifactA: "a", ArtifactB: "b", Winner: domain.WinnerA})

	assert.Equal(t, domain.EloStartingRating+domain.EloK*0.5, ratings["a"].Value)
	assert.Equal(t, domain.EloStartingRating-domain.EloK*0.5, ratings["b"].Value)
	assert.Equal(t, 1, ratings["a"].GamesPlayed)
	assert.Equal(t, 1, ratings["b"].GamesPlayed)
}

func TestApplyResultTieMovesBothTowardHalf(t *testing.T) {
	ratings := map[string]*Rating{
		"a": {ArtifactID: "a", Value: 1600},
		"b": {ArtifactID: "b", Value: 1400},
	}
	ApplyResult(ratings, domain.PairwiseResult{ArtifactA: "a", ArtifactB: "b", Winner: domain.WinnerTie})

	assert.Less(t, ratings["a"].Value, 1600.0)
	assert.Greater(t, ratings["b"].Value, 1400.0)
}

func TestApplyResultWinnerNoneIsNoOp(t *testing.T) {
	ratings := map[string]*Rating{}
	ApplyResult(ratings, domain.PairwiseResult{ArtifactA: "a", ArtifactB: "b", Winner: domain.WinnerNone})
	assert.Empty(t, ratings)
}

func TestReplayIsDeterministicUnderSameOrder(t *testing.T) {
	now := time.Now()
	results := []domain.PairwiseResult{
		{ArtifactA: "a", ArtifactB: "b", Winner: domain.WinnerA, CreatedAt: now},
		{ArtifactA: "a", ArtifactB: "c", Winner: domain.WinnerB, CreatedAt: now.Add(time.Second)},
		{ArtifactA: "b", ArtifactB: "c", Winner: domain.WinnerTie, CreatedAt: now.Add(2 * time.Second)},
	}
	first := Replay(results)
	second := Replay(results)

	for id := range first {
		assert.Equal(t, first[id].Value, second[id].Value, id)
	}
}

func TestRankedOrdersByRatingThenGamesThenID(t *testing.T) {
	ratings := map[string]*Rating{
		"z": {ArtifactID: "z", Value: 1500, GamesPlayed: 2},
		"a": {ArtifactID: "a", Value: 1500, GamesPlayed: 2},
		"b": {ArtifactID: "b", Value: 1600, GamesPlayed: 1},
	}
	ranked := Ranked(ratings)
	assert.Equal(t, []string{"b", "a", "z"}, []string{ranked[0].ArtifactID, ranked[1].ArtifactID, ranked[2].ArtifactID})
}

func TestExpectedScoreSymmetric(t *testing.T) {
	e := expectedScore(1500, 1500)
	assert.InDelta(t, 0.5, e, 1e-9)
}
