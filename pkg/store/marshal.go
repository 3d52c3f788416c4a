package store

import (
	"encoding/json"
	"fmt"

	"github.com/hwvendor/triage-orchestrator/pkg/models"
)

// marshalJSON is a small wrapper so every call site gets a consistent
// wrapped error instead of a bare encoding/json error.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshaling %T: %w", v, err)
	}
	return string(b), nil
}

func unmarshalStrings(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("unmarshaling string list: %w", err)
	}
	return out, nil
}

// storedArtifact mirrors models.LogArtifact but, unlike the API-facing
// type, persists Payload: a Task recovered after a restart must still be
// able to materialize an Issue's embedded-payload artifacts.
type storedArtifact struct {
	Name        string `json:"name"`
	OpaqueToken string `json:"opaque_token,omitempty"`
	Payload     []byte `json:"payload,omitempty"`
	Size        int64  `json:"size"`
}

func marshalLogArtifacts(artifacts []models.LogArtifact) (string, error) {
	stored := make([]storedArtifact, len(artifacts))
	for i, a := range artifacts {
		stored[i] = storedArtifact{Name: a.Name, OpaqueToken: a.OpaqueToken, Payload: a.Payload, Size: a.Size}
	}
	return marshalJSON(stored)
}

func unmarshalLogArtifacts(raw string) ([]models.LogArtifact, error) {
	if raw == "" {
		return nil, nil
	}
	var stored []storedArtifact
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshaling log artifacts: %w", err)
	}
	out := make([]models.LogArtifact, len(stored))
	for i, a := range stored {
		out[i] = models.LogArtifact{Name: a.Name, OpaqueToken: a.OpaqueToken, Payload: a.Payload, Size: a.Size}
	}
	return out, nil
}
