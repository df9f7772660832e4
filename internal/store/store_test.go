package store

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewWithClient(rdb)
}

func TestDecomposeAndStoreSubtasksQueuesRootsOnly(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.DecomposeAndStoreSubtasks(ctx, "task-1", []SubtaskInput{
		{ID: "sub-a", Description: "build api", Kind: "backend", Priority: 5},
		{ID: "sub-b", Description: "build ui", Kind: "frontend", Priority: 3, Dependencies: []string{"sub-a"}},
	})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 2, result.SubtaskCount)
	require.Equal(t, 1, result.QueuedCount)

	card, err := s.Client().ZCard(ctx, ReadyQueueKey()).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, card)
}

func TestDecomposeAndStoreSubtasksIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	subtasks := []SubtaskInput{{ID: "sub-a", Description: "x", Kind: "backend", Priority: 1}}

	first, err := s.DecomposeAndStoreSubtasks(ctx, "task-2", subtasks)
	require.NoError(t, err)
	require.Equal(t, 1, first.QueuedCount)

	second, err := s.DecomposeAndStoreSubtasks(ctx, "task-2", subtasks)
	require.NoError(t, err)
	require.Equal(t, 0, second.QueuedCount)
}

func TestDecomposeAndStoreSubtasksExcludesCyclicMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.DecomposeAndStoreSubtasks(ctx, "task-3", []SubtaskInput{
		{ID: "sub-a", Kind: "backend", Priority: 1, Dependencies: []string{"sub-b"}},
		{ID: "sub-b", Kind: "backend", Priority: 1, Dependencies: []string{"sub-a"}},
	})
	require.NoError(t, err)
	require.Equal(t, 2, result.SubtaskCount)
	require.Equal(t, 0, result.QueuedCount)
}

func TestAssignToSpecialistPicksHighestScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-4", []SubtaskInput{
		{ID: "sub-a", Kind: "backend", Priority: 1},
	})
	require.NoError(t, err)

	// inst-1 carries one unit of load: it scores 1*10-1 = 9, inst-2 scores 1*10-0 = 10.
	err = s.Client().HSet(ctx, SpecialistsKey("backend"),
		"inst-1", `{"id":"inst-1","capabilities":["go"],"current_load":1,"max_load":3}`,
		"inst-2", `{"id":"inst-2","capabilities":["go","sql"],"current_load":0,"max_load":3}`,
	).Err()
	require.NoError(t, err)

	result, err := s.AssignToSpecialist(ctx, "task-4", "sub-a", "backend", []string{"go"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, "inst-2", result.SpecialistID)
}

func TestAssignToSpecialistNoneAvailable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-5", []SubtaskInput{{ID: "sub-a", Kind: "backend", Priority: 1}})
	require.NoError(t, err)

	_, err = s.AssignToSpecialist(ctx, "task-5", "sub-a", "backend", []string{"go"})
	require.ErrorIs(t, err, ErrNoneAvailable)
}

func TestDetectAndQueueConflictEmitsOnSecondProposal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	result, err := s.DetectAndQueueConflict(ctx, "task-6", "sub-a", swarmProposal("inst-1"))
	require.NoError(t, err)
	require.False(t, result.ConflictDetected)
	require.Equal(t, 1, result.SolutionCount)

	result, err = s.DetectAndQueueConflict(ctx, "task-6", "sub-a", swarmProposal("inst-2"))
	require.NoError(t, err)
	require.True(t, result.ConflictDetected)
	require.Equal(t, 2, result.SolutionCount)

	popped, err := s.PopConflictQueue(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "task-6:sub-a", popped)
}

func TestSynthesizeProgressUnblocksDependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-7", []SubtaskInput{
		{ID: "sub-a", Kind: "backend", Priority: 1},
		{ID: "sub-b", Kind: "backend", Priority: 1, Dependencies: []string{"sub-a"}},
	})
	require.NoError(t, err)

	result, err := s.SynthesizeProgress(ctx, "task-7", "sub-a", SubtaskResult{Status: "completed", Output: "done"})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.UnblockedCount)
	require.False(t, result.ReadyForSynthesis)

	card, err := s.Client().ZCard(ctx, ReadyQueueKey()).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, card)
}

func TestSynthesizeProgressIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-8", []SubtaskInput{{ID: "sub-a", Kind: "backend", Priority: 1}})
	require.NoError(t, err)

	first, err := s.SynthesizeProgress(ctx, "task-8", "sub-a", SubtaskResult{Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, 0, first.UnblockedCount)
	require.True(t, first.ReadyForSynthesis)

	second, err := s.SynthesizeProgress(ctx, "task-8", "sub-a", SubtaskResult{Status: "completed"})
	require.NoError(t, err)
	require.Equal(t, 0, second.UnblockedCount)
	require.True(t, second.ReadyForSynthesis)
}

func TestReassignFromInstanceDrainsQueue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.DecomposeAndStoreSubtasks(ctx, "task-9", []SubtaskInput{{ID: "sub-a", Kind: "backend", Priority: 1}})
	require.NoError(t, err)
	require.NoError(t, s.Client().HSet(ctx, SpecialistsKey("backend"),
		"inst-1", `{"id":"inst-1","capabilities":[],"current_load":0,"max_load":3}`).Err())

	_, err = s.AssignToSpecialist(ctx, "task-9", "sub-a", "backend", nil)
	require.NoError(t, err)

	result, err := s.ReassignFromInstance(ctx, "inst-1", []string{"backend"})
	require.NoError(t, err)
	require.Equal(t, 1, result.ReassignedCount)

	card, err := s.Client().ZCard(ctx, ReadyQueueKey()).Result()
	require.NoError(t, err)
	require.EqualValues(t, 1, card)
}

func swarmProposal(instanceID string) swarmtypes.Proposal {
	return swarmtypes.Proposal{InstanceID: instanceID, Approach: "a", Reasoning: "r"}
}
