package plan

import (
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"
)

// BaselineHash computes the blake3 hash of the normalized plan content.
// The hash is recorded once per plan generation and used for idempotency and
// audit, not for conflict resolution (single-writer model).
func BaselineHash(p *Plan) (string, error) {
	// normalization must not leak into the caller's plan, and a shallow step
	// copy still shares the nested slices, so clone through JSON
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("clone plan: %w", err)
	}
	var normalized Plan
	if err := json.Unmarshal(data, &normalized); err != nil {
		return "", fmt.Errorf("clone plan: %w", err)
	}
	normalized.Normalize()

	canonical, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("canonicalize plan: %w", err)
	}

	hasher := blake3.New()
	if _, err := hasher.Write(canonical); err != nil {
		return "", fmt.Errorf("hash plan: %w", err)
	}

	return fmt.Sprintf("%x", hasher.Sum(nil)), nil
}
