package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func TestPutAndGetTaskRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	task := swarmtypes.Task{
		ID: "task-1", Text: "build a thing", Priority: 7, Status: swarmtypes.TaskPending,
		Labels: []string{"backend", "urgent"}, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.PutTask(ctx, task))

	got, err := s.GetTask(ctx, "task-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "build a thing", got.Text)
	require.Equal(t, 7, got.Priority)
	require.ElementsMatch(t, []string{"backend", "urgent"}, got.Labels)
}

func TestGetTaskMissingReturnsNil(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetTask(context.Background(), "ghost")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListTasksFiltersByLabel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.PutTask(ctx, swarmtypes.Task{ID: "a", Text: "a", Status: swarmtypes.TaskPending, Labels: []string{"urgent"}, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.PutTask(ctx, swarmtypes.Task{ID: "b", Text: "b", Status: swarmtypes.TaskPending, Labels: []string{"low-priority"}, CreatedAt: now, UpdatedAt: now}))

	urgent, err := s.ListTasks(ctx, []string{"urgent"})
	require.NoError(t, err)
	require.Len(t, urgent, 1)
	require.Equal(t, "a", urgent[0].ID)

	all, err := s.ListTasks(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
}
