package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubtaskResult is the outcome a specialist reports for a subtask.
type SubtaskResult struct {
	Status string `json:"status"`
	Output string `json:"output"`
}

// SynthesizeResult is the outcome of recording a subtask's completion.
type SynthesizeResult struct {
	Success           bool `json:"success"`
	UnblockedCount    int  `json:"unblocked_count"`
	ReadyForSynthesis bool `json:"ready_for_synthesis"`
}

// SynthesizeProgress records a subtask's terminal result, releases its
// specialist's load, and walks the dependents graph to unblock any
// subtask whose dependencies are now all satisfied, per SPEC_FULL.md §5.1.
// Idempotent: replaying against an already-terminal subtask is a no-op.
func (s *Store) SynthesizeProgress(ctx context.Context, parentID, subtaskID string, result SubtaskResult) (*SynthesizeResult, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}

	eventID := uuid.NewString()
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	raw, err := s.synthesizeScript.Run(ctx, s.rdb, nil, parentID, subtaskID, string(payload), now, eventID).Result()
	if err != nil {
		return nil, fmt.Errorf("synthesize script: %w", err)
	}

	var out SynthesizeResult
	if err := json.Unmarshal([]byte(raw.(string)), &out); err != nil {
		return nil, fmt.Errorf("decode synthesize result: %w", err)
	}
	return &out, nil
}
