package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ReassignResult is the outcome of draining an instance's work queue.
type ReassignResult struct {
	ReassignedCount int `json:"reassigned_count"`
}

// ReassignFromInstance drains an offline instance's per-instance queue,
// returning each subtask to the ready queue (if its dependencies are
// satisfied) or the blocked set (if not), and removes the instance from
// every specialist pool named in kinds, per SPEC_FULL.md §5.1. Safe to
// call repeatedly against an already-drained instance.
func (s *Store) ReassignFromInstance(ctx context.Context, instanceID string, kinds []string) (*ReassignResult, error) {
	payload, err := json.Marshal(kinds)
	if err != nil {
		return nil, fmt.Errorf("marshal kinds: %w", err)
	}

	eventID := uuid.NewString()
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	raw, err := s.reassignScript.Run(ctx, s.rdb, nil, instanceID, now, eventID, string(payload)).Result()
	if err != nil {
		return nil, fmt.Errorf("reassign script: %w", err)
	}

	var out ReassignResult
	if err := json.Unmarshal([]byte(raw.(string)), &out); err != nil {
		return nil, fmt.Errorf("decode reassign result: %w", err)
	}
	return &out, nil
}
