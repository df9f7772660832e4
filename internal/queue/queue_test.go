package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/internal/store"
)

func newTestQueue(t *testing.T) (*Queue, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb)
	return New(s), s
}

func TestReadyReturnsHighestPriorityFirst(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-1", []store.SubtaskInput{
		{ID: "low", Kind: "backend", Priority: 1},
		{ID: "high", Kind: "backend", Priority: 9},
	})
	require.NoError(t, err)

	entries, err := q.Ready(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "high", entries[0].SubtaskID)
	require.Equal(t, "low", entries[1].SubtaskID)
}

func TestAutoPullAssignsHighestPriorityEntry(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-2", []store.SubtaskInput{
		{ID: "sub-a", Kind: "backend", Priority: 5},
	})
	require.NoError(t, err)
	require.NoError(t, s.Client().HSet(ctx, store.SpecialistsKey("backend"),
		"inst-1", `{"id":"inst-1","capabilities":[],"current_load":0,"max_load":2}`).Err())

	result, parentID, subtaskID, err := q.AutoPull(ctx, "backend", nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "task-2", parentID)
	require.Equal(t, "sub-a", subtaskID)
	require.True(t, result.Success)
}

func TestAutoPullNoneReady(t *testing.T) {
	q, _ := newTestQueue(t)
	result, _, _, err := q.AutoPull(context.Background(), "backend", nil)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestBlockedListsBlockedSubtasks(t *testing.T) {
	q, s := newTestQueue(t)
	ctx := context.Background()
	require.NoError(t, s.Client().SAdd(ctx, store.BlockedSetKey(), "task-1:sub-b").Err())

	blocked, err := q.Blocked(ctx)
	require.NoError(t, err)
	require.Contains(t, blocked, "task-1:sub-b")
}
