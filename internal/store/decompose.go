package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubtaskInput is one subtask within a decomposition, as handed to
// DecomposeAndStoreSubtasks.
type SubtaskInput struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	Kind             string   `json:"kind"`
	Complexity       int      `json:"complexity"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Priority         int      `json:"priority"`
	Dependencies     []string `json:"dependencies"`
}

// DecomposeResult is the outcome of installing a decomposition.
type DecomposeResult struct {
	Success      bool `json:"success"`
	SubtaskCount int  `json:"subtask_count"`
	QueuedCount  int  `json:"queued_count"`
}

// DecomposeAndStoreSubtasks atomically installs a project decomposition:
// subtask records, the dependency graph, and the initial ready-queue
// membership for subtasks with no declared dependencies, per
// SPEC_FULL.md §5.1. Idempotent on (parentID, decomposition).
func (s *Store) DecomposeAndStoreSubtasks(ctx context.Context, parentID string, subtasks []SubtaskInput) (*DecomposeResult, error) {
	payload, err := json.Marshal(subtasks)
	if err != nil {
		return nil, fmt.Errorf("marshal subtasks: %w", err)
	}

	eventID := uuid.NewString()
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	raw, err := s.decomposeScript.Run(ctx, s.rdb, nil, parentID, now, eventID, string(payload)).Result()
	if err != nil {
		return nil, fmt.Errorf("decompose script: %w", err)
	}

	var result DecomposeResult
	if err := json.Unmarshal([]byte(raw.(string)), &result); err != nil {
		return nil, fmt.Errorf("decode decompose result: %w", err)
	}
	return &result, nil
}
