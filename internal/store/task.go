package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func taskSetKey() string {
	return Prefix + "tasks"
}

// PutTask upserts a task's hash record and indexes its id for listing.
func (s *Store) PutTask(ctx context.Context, t swarmtypes.Task) error {
	fields, err := taskFields(&t)
	if err != nil {
		return fmt.Errorf("marshal task fields: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, TaskKey(t.ID), fields)
	pipe.SAdd(ctx, taskSetKey(), t.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put task: %w", err)
	}
	return nil
}

// GetTask reads a task's hash record back.
func (s *Store) GetTask(ctx context.Context, id string) (*swarmtypes.Task, error) {
	fields, err := s.rdb.HGetAll(ctx, TaskKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return taskFromFields(id, fields)
}

// ListTasks returns every task, optionally filtered to those carrying
// every label in labelFilter (AND semantics), per SPEC_FULL.md §4's
// Task.Labels addition.
func (s *Store) ListTasks(ctx context.Context, labelFilter []string) ([]swarmtypes.Task, error) {
	ids, err := s.rdb.SMembers(ctx, taskSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list task ids: %w", err)
	}

	out := make([]swarmtypes.Task, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetTask(ctx, id)
		if err != nil || t == nil {
			continue
		}
		if hasAllLabels(t.Labels, labelFilter) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func hasAllLabels(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]bool, len(have))
	for _, l := range have {
		set[l] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}

func taskFields(t *swarmtypes.Task) (map[string]any, error) {
	meta, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, err
	}
	labels, err := json.Marshal(t.Labels)
	if err != nil {
		return nil, err
	}
	fields := map[string]any{
		"id":         t.ID,
		"text":       t.Text,
		"priority":   t.Priority,
		"status":     string(t.Status),
		"metadata":   meta,
		"labels":     labels,
		"created_at": t.CreatedAt.Format(time.RFC3339Nano),
		"updated_at": t.UpdatedAt.Format(time.RFC3339Nano),
	}
	if t.CompletedAt != nil {
		fields["completed_at"] = t.CompletedAt.Format(time.RFC3339Nano)
	}
	return fields, nil
}

func taskFromFields(id string, fields map[string]string) (*swarmtypes.Task, error) {
	t := &swarmtypes.Task{ID: id, Text: fields["text"], Status: swarmtypes.TaskStatus(fields["status"])}
	fmt.Sscanf(fields["priority"], "%d", &t.Priority)
	if v, ok := fields["metadata"]; ok {
		_ = json.Unmarshal([]byte(v), &t.Metadata)
	}
	if v, ok := fields["labels"]; ok {
		_ = json.Unmarshal([]byte(v), &t.Labels)
	}
	if v, ok := fields["created_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			t.CreatedAt = ts
		}
	}
	if v, ok := fields["updated_at"]; ok {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			t.UpdatedAt = ts
		}
	}
	if v, ok := fields["completed_at"]; ok && v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			t.CompletedAt = &ts
		}
	}
	return t, nil
}
