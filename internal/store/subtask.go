package store

import (
	"context"
	"fmt"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// GetSubtask reads a single subtask's hash record back, as written by the
// decomposeAndStoreSubtasks / assignToSpecialist / synthesizeProgress
// scripts. Returns nil, nil if the subtask does not exist.
func (s *Store) GetSubtask(ctx context.Context, parentID, subtaskID string) (*swarmtypes.Subtask, error) {
	fields, err := s.rdb.HGetAll(ctx, SubtaskKey(parentID, subtaskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get subtask: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return subtaskFromFields(parentID, subtaskID, fields), nil
}

// ListSubtasks returns every subtask belonging to parentID, in no
// particular order.
func (s *Store) ListSubtasks(ctx context.Context, parentID string) ([]swarmtypes.Subtask, error) {
	ids, err := s.rdb.SMembers(ctx, SubtaskSetKey(parentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list subtask ids: %w", err)
	}
	out := make([]swarmtypes.Subtask, 0, len(ids))
	for _, id := range ids {
		st, err := s.GetSubtask(ctx, parentID, id)
		if err != nil || st == nil {
			continue
		}
		out = append(out, *st)
	}
	return out, nil
}

// GetDependencies returns the declared predecessor ids of a subtask.
func (s *Store) GetDependencies(ctx context.Context, parentID, subtaskID string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, DependenciesKey(parentID, subtaskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get dependencies: %w", err)
	}
	return members, nil
}

// GetDependents returns the ids of subtasks that declared subtaskID as a
// predecessor.
func (s *Store) GetDependents(ctx context.Context, parentID, subtaskID string) ([]string, error) {
	members, err := s.rdb.SMembers(ctx, DependentsKey(parentID, subtaskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get dependents: %w", err)
	}
	return members, nil
}

func subtaskFromFields(parentID, subtaskID string, fields map[string]string) *swarmtypes.Subtask {
	st := &swarmtypes.Subtask{
		ID:          subtaskID,
		ParentID:    parentID,
		Description: fields["description"],
		Kind:        swarmtypes.SpecialistKind(fields["kind"]),
		Status:      swarmtypes.SubtaskStatus(fields["status"]),
		AssignedTo:  fields["assigned_to"],
		Output:      fields["output"],
		ExternalRef: fields["external_ref"],
	}
	fmt.Sscanf(fields["complexity"], "%d", &st.Complexity)
	fmt.Sscanf(fields["estimated_minutes"], "%d", &st.EstimatedMinutes)
	fmt.Sscanf(fields["priority"], "%d", &st.Priority)
	return st
}
