package judge

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/genbatch/pipeline/internal/domain"
)

// ParsedScore is the tolerant extraction of a single-doc judge reply.
type ParsedScore struct {
	Score     int
	Rationale string
	OK        bool
}

// ParseScoreResponse tolerantly extracts score/rationale from raw judge
// text using gjson ahead of any strict unmarshal, since judge models
// routinely wrap JSON in prose or code fences (spec §4.6 step 3: "On parse
// failure or out-of-range score: retry"). OK is false on any of: no JSON
// object found, missing/non-numeric score, or score outside [1,5].
func ParseScoreResponse(raw string) ParsedScore {
	obj := extractJSONObject(raw)
	if obj == "" {
		return ParsedScore{}
	}
	scoreResult := gjson.Get(obj, "score")
	if !scoreResult.Exists() || scoreResult.Type.String() != "Number" {
		return ParsedScore{}
	}
	score := int(scoreResult.Int())
	if score < 1 || score > 5 {
		return ParsedScore{}
	}
	rationale := strings.TrimSpace(gjson.Get(obj, "rationale").String())
	return ParsedScore{Score: score, Rationale: rationale, OK: true}
}

// ParsedWinner is the tolerant extraction of a pairwise judge reply.
type ParsedWinner struct {
	Winner    domain.Winner
	Rationale string
	OK        bool
}

// ParseWinnerResponse tolerantly extracts a winner from raw judge text.
func ParseWinnerResponse(raw string) ParsedWinner {
	obj := extractJSONObject(raw)
	if obj == "" {
		return ParsedWinner{}
	}
	winnerResult := gjson.Get(obj, "winner")
	if !winnerResult.Exists() {
		return ParsedWinner{}
	}
	var winner domain.Winner
	switch strings.ToLower(strings.TrimSpace(winnerResult.String())) {
	case "a":
		winner = domain.WinnerA
	case "b":
		winner = domain.WinnerB
	case "tie":
		winner = domain.WinnerTie
	default:
		return ParsedWinner{}
	}
	rationale := strings.TrimSpace(gjson.Get(obj, "rationale").String())
	return ParsedWinner{Winner: winner, Rationale: rationale, OK: true}
}

// extractJSONObject finds the first balanced top-level {...} span in raw,
// tolerating prose or Markdown code fences around it. Returns "" if no
// balanced object is found.
func extractJSONObject(raw string) string {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				candidate := raw[start : i+1]
				if gjson.Valid(candidate) {
					return candidate
				}
				return ""
			}
		}
	}
	return ""
}
