package judge

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/genbatch/pipeline/internal/domain"
)

func TestParseScoreResponseExtractsFromCleanJSON(t *testing.T) {
	p := ParseScoreResponse(`{"score": 4, "rationale": "solid coverage"}`)
	assert.True(t, p.OK)
	assert.Equal(t, 4, p.Score)
	assert.Equal(t, "solid coverage", p.Rationale)
}

func TestParseScoreResponseTolerantOfSurroundingProse(t *testing.T) {
	p := ParseScoreResponse("Sure, here you go:\n```json\n{\"score\": 3, \"rationale\": \"ok\"}\n```\nHope that helps!")
	assert.True(t, p.OK)
	assert.Equal(t, 3, p.Score)
}

func TestParseScoreResponseRejectsOutOfRange(t *testing.T) {
	p := ParseScoreResponse(`{"score": 7, "rationale": "too high"}`)
	assert.False(t, p.OK)
}

func TestParseScoreResponseRejectsMissingScore(t *testing.T) {
	p := ParseScoreResponse(`{"rationale": "no score field"}`)
	assert.False(t, p.OK)
}

func TestParseScoreResponseRejectsNoJSON(t *testing.T) {
	p := ParseScoreResponse("I think it's pretty good, maybe a 4.")
	assert.False(t, p.OK)
}

func TestParseWinnerResponseAcceptsAllThreeOutcomes(t *testing.T) {
	for raw, want := range map[string]domain.Winner{
		`{"winner": "A"}`:   domain.WinnerA,
		`{"winner": "b"}`:   domain.WinnerB,
		`{"winner": "tie"}`: domain.WinnerTie,
	} {
		p := ParseWinnerResponse(raw)
		assert.True(t, p.OK, raw)
		assert.Equal(t, want, p.Winner, raw)
	}
}

func TestParseWinnerResponseRejectsUnknownValue(t *testing.T) {
	p := ParseWinnerResponse(`{"winner": "C"}`)
	assert.False(t, p.OK)
}
