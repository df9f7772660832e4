package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// ConflictResult is the outcome of appending a proposal to a conflict.
type ConflictResult struct {
	ConflictDetected bool `json:"conflict_detected"`
	SolutionCount    int  `json:"solution_count"`
}

// DetectAndQueueConflict appends a proposal to the subtask's conflict
// record. When the second proposal for the same subtask arrives, the
// conflict transitions to "detected" and is pushed onto the global
// conflict queue for arbitration, per SPEC_FULL.md §5.1.
func (s *Store) DetectAndQueueConflict(ctx context.Context, taskID, subtaskID string, proposal swarmtypes.Proposal) (*ConflictResult, error) {
	payload, err := json.Marshal(proposal)
	if err != nil {
		return nil, fmt.Errorf("marshal proposal: %w", err)
	}

	eventID := uuid.NewString()
	now := fmt.Sprintf("%d", time.Now().UnixMilli())

	raw, err := s.conflictScript.Run(ctx, s.rdb, nil, taskID, subtaskID, string(payload), now, eventID).Result()
	if err != nil {
		return nil, fmt.Errorf("conflict script: %w", err)
	}

	var result ConflictResult
	if err := json.Unmarshal([]byte(raw.(string)), &result); err != nil {
		return nil, fmt.Errorf("decode conflict result: %w", err)
	}
	return &result, nil
}

// GetConflictProposals returns every proposal recorded for (taskID, subtaskID).
func (s *Store) GetConflictProposals(ctx context.Context, taskID, subtaskID string) ([]swarmtypes.Proposal, error) {
	raw, err := s.rdb.LRange(ctx, ConflictKey(taskID, subtaskID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange conflict proposals: %w", err)
	}
	proposals := make([]swarmtypes.Proposal, 0, len(raw))
	for _, r := range raw {
		var p swarmtypes.Proposal
		if err := json.Unmarshal([]byte(r), &p); err != nil {
			return nil, fmt.Errorf("decode proposal: %w", err)
		}
		proposals = append(proposals, p)
	}
	return proposals, nil
}

// PopConflictQueue blocks up to timeout for the next ready conflict id
// ("taskID:subtaskID"), or returns ("", nil) on timeout.
func (s *Store) PopConflictQueue(ctx context.Context, timeout time.Duration) (string, error) {
	res, err := s.rdb.BLPop(ctx, timeout, ConflictQueueKey()).Result()
	if err != nil {
		if err.Error() == "redis: nil" {
			return "", nil
		}
		return "", fmt.Errorf("blpop conflict queue: %w", err)
	}
	if len(res) < 2 {
		return "", nil
	}
	return res[1], nil
}
