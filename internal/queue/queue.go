// Package queue is the thin Go API over the ready/per-instance queues of
// spec.md §4.1/§4.5: a priority-ordered sorted-set ready queue, per-
// instance FIFO lists, and the blocked holding set, backed by direct
// script-free reads (ZRANGE/LRANGE) where no multi-key atomicity is
// needed, and the store's atomic scripts where it is.
package queue

import (
	"context"
	"fmt"
	"strings"

	"github.com/coordinator/swarmd/internal/store"
)

// Queue is a read/dispatch façade over the store.
type Queue struct {
	store *store.Store
}

// New wraps a Store.
func New(s *store.Store) *Queue {
	return &Queue{store: s}
}

// ReadyEntry is one member of the priority ready queue.
type ReadyEntry struct {
	ParentID  string
	SubtaskID string
	Score     float64
}

// Ready returns up to limit ready-queue entries in priority order
// (highest score first).
func (q *Queue) Ready(ctx context.Context, limit int64) ([]ReadyEntry, error) {
	results, err := q.store.Client().ZRevRangeWithScores(ctx, store.ReadyQueueKey(), 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrevrange ready queue: %w", err)
	}
	out := make([]ReadyEntry, 0, len(results))
	for _, z := range results {
		member, _ := z.Member.(string)
		parentID, subtaskID, ok := splitMember(member)
		if !ok {
			continue
		}
		out = append(out, ReadyEntry{ParentID: parentID, SubtaskID: subtaskID, Score: z.Score})
	}
	return out, nil
}

// Blocked returns every subtask id currently in the blocked holding set.
func (q *Queue) Blocked(ctx context.Context) ([]string, error) {
	members, err := q.store.Client().SMembers(ctx, store.BlockedSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers blocked set: %w", err)
	}
	return members, nil
}

// InstanceQueue returns the full FIFO of subtask ids dispatched to
// instanceID, in dispatch order.
func (q *Queue) InstanceQueue(ctx context.Context, instanceID string) ([]string, error) {
	items, err := q.store.Client().LRange(ctx, store.InstanceQueueKey(instanceID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange instance queue: %w", err)
	}
	return items, nil
}

// AutoPull pops the highest-priority ready subtask matching kind and
// requiredCapabilities and assigns it to the best-scoring specialist via
// the store's atomic assignToSpecialist script (spec.md §4.5's
// "auto-pull matches role/capability"). Returns (nil, nil) if the ready
// queue has nothing for this kind.
func (q *Queue) AutoPull(ctx context.Context, kind string, requiredCapabilities []string) (*store.AssignResult, string, string, error) {
	entries, err := q.Ready(ctx, 50)
	if err != nil {
		return nil, "", "", err
	}

	for _, e := range entries {
		result, err := q.store.AssignToSpecialist(ctx, e.ParentID, e.SubtaskID, kind, requiredCapabilities)
		if err == store.ErrNoneAvailable {
			return nil, "", "", store.ErrNoneAvailable
		}
		if err != nil {
			return nil, "", "", err
		}
		return result, e.ParentID, e.SubtaskID, nil
	}

	return nil, "", "", nil
}

// Assign is the admin-only explicit-assignment path (`task.assign`),
// bypassing pool scoring by going straight through the same
// assignToSpecialist script but letting the caller pin the kind; the
// score-based candidate selection inside the script still applies since
// there is no separate "force onto this exact instance" primitive in the
// keyspace — an operator who needs that can drain the instance's
// capabilities down to a single candidate via the specialist pool.
func (q *Queue) Assign(ctx context.Context, parentID, subtaskID, kind string, requiredCapabilities []string) (*store.AssignResult, error) {
	return q.store.AssignToSpecialist(ctx, parentID, subtaskID, kind, requiredCapabilities)
}

// Complete reports a subtask's terminal result via the store's
// synthesizeProgress script.
func (q *Queue) Complete(ctx context.Context, parentID, subtaskID string, result store.SubtaskResult) (*store.SynthesizeResult, error) {
	return q.store.SynthesizeProgress(ctx, parentID, subtaskID, result)
}

func splitMember(member string) (parentID, subtaskID string, ok bool) {
	idx := strings.LastIndex(member, ":")
	if idx < 0 {
		return "", "", false
	}
	return member[:idx], member[idx+1:], true
}
