package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/internal/store"
)

func newTestBus(t *testing.T) (*Bus, *store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb)
	return New(s), s
}

func TestPublishAndSubscribeDeliversMatchingEvents(t *testing.T) {
	bus, _ := newTestBus(t)

	_, err := bus.Publish(context.Background(), "task-1", "subtask.assigned", map[string]string{"subtask": "sub-a"})
	require.NoError(t, err)
	_, err = bus.Publish(context.Background(), "task-1", "subtask.completed", map[string]string{"subtask": "sub-a"})
	require.NoError(t, err)

	var delivered []Event
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	sub := bus.Subscribe("task-1", "sub-1", "subtask.*", func(ctx context.Context, ev Event) error {
		delivered = append(delivered, ev)
		return nil
	})

	_ = sub.Run(ctx, 50*time.Millisecond)
	require.Len(t, delivered, 2)
	require.Equal(t, "subtask.assigned", delivered[0].Type)
}

func TestSubscribeFiltersByPattern(t *testing.T) {
	bus, _ := newTestBus(t)

	_, err := bus.Publish(context.Background(), "task-2", "subtask.assigned", nil)
	require.NoError(t, err)
	_, err = bus.Publish(context.Background(), "task-2", "conflict.detected", nil)
	require.NoError(t, err)

	var delivered []Event
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	sub := bus.Subscribe("task-2", "sub-2", "conflict.*", func(ctx context.Context, ev Event) error {
		delivered = append(delivered, ev)
		return nil
	})

	_ = sub.Run(ctx, 50*time.Millisecond)
	require.Len(t, delivered, 1)
	require.Equal(t, "conflict.detected", delivered[0].Type)
}

func TestMatchesPattern(t *testing.T) {
	require.True(t, matchesPattern("*", "anything"))
	require.True(t, matchesPattern("", "anything"))
	require.True(t, matchesPattern("subtask.*", "subtask.assigned"))
	require.False(t, matchesPattern("subtask.*", "conflict.detected"))
	require.True(t, matchesPattern("task.created", "task.created"))
}
