package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrNoneAvailable is returned when no specialist in the pool has free
// capacity and the required capabilities.
var ErrNoneAvailable = errors.New("NONE_AVAILABLE")

// AssignResult is the outcome of a specialist assignment attempt.
type AssignResult struct {
	Success       bool `json:"success"`
	SpecialistID  string `json:"specialist_id,omitempty"`
	Score         int  `json:"score"`
	QueuePosition int  `json:"queue_position,omitempty"`
}

// AssignToSpecialist scores the specialist pool for `kind`, atomically
// assigns the subtask to the highest-scoring candidate with free capacity,
// and dispatches it to that specialist's per-instance queue, per
// SPEC_FULL.md §5.1. Returns ErrNoneAvailable if no candidate qualifies.
func (s *Store) AssignToSpecialist(ctx context.Context, parentID, subtaskID, kind string, requiredCapabilities []string) (*AssignResult, error) {
	if requiredCapabilities == nil {
		requiredCapabilities = []string{}
	}
	caps, err := json.Marshal(requiredCapabilities)
	if err != nil {
		return nil, fmt.Errorf("marshal capabilities: %w", err)
	}

	eventID := uuid.NewString()
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	raw, err := s.assignScript.Run(ctx, s.rdb, nil, parentID, subtaskID, kind, string(caps), now, eventID).Result()
	if err != nil {
		return nil, fmt.Errorf("assign script: %w", err)
	}

	var result struct {
		Success      bool   `json:"success"`
		SpecialistID string `json:"specialist_id"`
		Score        int    `json:"score"`
		QueuePosition int   `json:"queue_position"`
		Error        string `json:"error"`
	}
	if err := json.Unmarshal([]byte(raw.(string)), &result); err != nil {
		return nil, fmt.Errorf("decode assign result: %w", err)
	}

	if !result.Success {
		if result.Error == "NONE_AVAILABLE" {
			return nil, ErrNoneAvailable
		}
		return nil, fmt.Errorf("assign failed: %s", result.Error)
	}

	return &AssignResult{
		Success:       true,
		SpecialistID:  result.SpecialistID,
		Score:         result.Score,
		QueuePosition: result.QueuePosition,
	}, nil
}
