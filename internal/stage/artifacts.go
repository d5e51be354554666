package stage

import (
	"encoding/json"
	"fmt"
)

// Artifacts holds the JSON outputs of completed stages keyed by stage name.
// The scheduler rebuilds this from the ledger before every attempt, so a
// stage restarted after a crash sees exactly what its predecessors recorded.
type Artifacts map[string]json.RawMessage

// Decode unmarshals the named stage's artifact into out. Missing artifacts
// are an error: a stage's preconditions are completed predecessor entries.
func (a Artifacts) Decode(stageName string, out any) error {
	raw, ok := a[stageName]
	if !ok || len(raw) == 0 {
		return fmt.Errorf("artifact for stage %q is not available", stageName)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s artifact: %w", stageName, err)
	}
	return nil
}

// Has reports whether the named stage recorded an artifact.
func (a Artifacts) Has(stageName string) bool {
	raw, ok := a[stageName]
	return ok && len(raw) > 0
}

// EncodeArtifact marshals a stage result for ledger persistence. A nil
// result is recorded as an empty JSON object so the completed entry is
// always self-describing.
func EncodeArtifact(result any) (string, error) {
	if result == nil {
		return "{}", nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return "", fmt.Errorf("encode stage artifact: %w", err)
	}
	return string(raw), nil
}
