package judge

import (
	"fmt"
	"math/rand"
)

// Rubrics maps a dimension name to its stored grading rubric (spec §4.6:
// "dimension rubric (stored templates; overridable per run)"). A run's
// config may override an entry by supplying its own text for the same key.
var Rubrics = map[string]string{
	"accuracy":    "Score how factually accurate the content is relative to the source document. 5 = fully accurate, 1 = materially wrong.",
	"completeness": "Score how completely the content covers the source document's key points. 5 = nothing important omitted, 1 = large gaps.",
	"clarity":     "Score how clear and well-organized the writing is. 5 = effortless to follow, 1 = confusing or incoherent.",
}

// ResolveRubric returns the run-level override for dimension if present,
// else the stored default, else a generic fallback.
func ResolveRubric(dimension string, overrides map[string]string) string {
	if overrides != nil {
		if r, ok := overrides[dimension]; ok && r != "" {
			return r
		}
	}
	if r, ok := Rubrics[dimension]; ok {
		return r
	}
	return fmt.Sprintf("Score the content on the '%s' dimension from 1 (worst) to 5 (best).", dimension)
}

const scoreOutputContract = `Respond with a single JSON object and nothing else, of the exact shape:
{"score": <integer 1-5>, "rationale": "<one sentence>"}`

const reformatPrefix = "Your previous reply could not be parsed. Reply again, strictly as JSON only, no prose before or after.\n\n"

// BuildSingleDocPrompt builds the grading prompt for one (artifact,
// dimension) pair (spec §4.6 step 1). reformat requests a stricter
// follow-up after a parse failure.
func BuildSingleDocPrompt(content, dimension, rubric string, reformat bool) string {
	prefix := ""
	if reformat {
		prefix = reformatPrefix
	}
	return fmt.Sprintf(`%sYou are grading a generated document on the dimension "%s".

Rubric: %s

%s

Document:
---
%s
---`, prefix, dimension, rubric, scoreOutputContract, content)
}

const pairwiseOutputContract = `Respond with a single JSON object and nothing else, of the exact shape:
{"winner": "A"|"B"|"tie", "rationale": "<one sentence>"}`

// BuildPairwisePrompt builds the comparison prompt for two artifacts already
// presented in the order the caller wants graded (spec §4.6 step 2: the
// caller is responsible for the 50% position-bias flip before calling this).
func BuildPairwisePrompt(contentA, contentB string, reformat bool) string {
	prefix := ""
	if reformat {
		prefix = reformatPrefix
	}
	return fmt.Sprintf(`%sYou are comparing two generated documents, labeled A and B, responding to the same source material. Decide which is better overall, or declare a tie if they are equally good.

%s

Document A:
---
%s
---

Document B:
---
%s
---`, prefix, pairwiseOutputContract, contentA, contentB)
}

// ShouldFlip decides whether to present (A,B) reversed for this call, to
// mitigate position bias (spec §4.6 step 2: "flip A/B 50% of the time").
func ShouldFlip(rng *rand.Rand) bool {
	return rng.Intn(2) == 0
}
