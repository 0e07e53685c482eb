package scheduler

import "encoding/json"

// GenerationPayload is the Task.Payload shape for a generate-fpf/generate-research task.
type GenerationPayload struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Iteration  int    `json:"iteration"`
}

// SingleEvalPayload is the Task.Payload shape for a single-eval task.
type SingleEvalPayload struct {
	ArtifactID string `json:"artifact_id"`
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Dimension  string `json:"dimension"`
	Iteration  int    `json:"iteration"`
}

// PairwiseEvalPayload is the Task.Payload shape for a pairwise-eval task.
// ArtifactA/ArtifactB are already canonicalized (a<b, spec §4.6).
type PairwiseEvalPayload struct {
	ArtifactA string `json:"artifact_a"`
	ArtifactB string `json:"artifact_b"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Iteration int    `json:"iteration"`
}

// CombinePayload is the Task.Payload shape for a combine task.
type CombinePayload struct {
	Model       string   `json:"model"`
	ArtifactIDs []string `json:"artifact_ids"`
}

func marshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// payload fields are all plain strings/ints; this can only fail on
		// programmer error (e.g. a NaN float), never on scheduler input.
		panic(err)
	}
	return b
}

func unmarshal[T any](raw []byte) (T, error) {
	var v T
	err := json.Unmarshal(raw, &v)
	return v, err
}
