package sink

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// setupTestSink starts (or reuses, via CI_SINK_DSN) a Postgres instance and
// returns a migrated Sink, matching the teacher's testcontainers-go +
// modules/postgres harness shape (test/util/database.go), with the dolt
// backend module swapped for postgres per SPEC_FULL.md §2.
func setupTestSink(t *testing.T) *Sink {
	t.Helper()
	ctx := context.Background()

	dsn := os.Getenv("CI_SINK_DSN")
	if dsn == "" {
		pgContainer, err := postgres.Run(ctx,
			"postgres:17-alpine",
			postgres.WithDatabase("swarmd_test"),
			postgres.WithUsername("swarmd"),
			postgres.WithPassword("swarmd"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		require.NoError(t, err)
		t.Cleanup(func() { _ = pgContainer.Terminate(context.Background()) })

		connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
		require.NoError(t, err)
		dsn = connStr
	}

	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestPutAndGetAttachmentRoundTrips(t *testing.T) {
	s := setupTestSink(t)
	ctx := context.Background()

	att := swarmtypes.Attachment{
		TaskID:    "task-1",
		Key:       "k1",
		Type:      swarmtypes.AttachmentJSON,
		Value:     map[string]any{"foo": "bar"},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		CreatedBy: "tester",
	}

	require.NoError(t, s.PutTask(ctx, swarmtypes.Task{
		ID: "task-1", Text: "build it", Status: swarmtypes.TaskPending,
		CreatedAt: att.CreatedAt, UpdatedAt: att.CreatedAt,
	}))
	require.NoError(t, s.PutAttachment(ctx, att))

	got, err := s.GetAttachment(ctx, "task-1", "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, swarmtypes.AttachmentJSON, got.Type)
	require.Equal(t, "tester", got.CreatedBy)

	m, ok := got.Value.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "bar", m["foo"])
}

func TestGetAttachmentMissingReturnsNil(t *testing.T) {
	s := setupTestSink(t)
	got, err := s.GetAttachment(context.Background(), "task-missing", "nope")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPutSubtaskUpsert(t *testing.T) {
	s := setupTestSink(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.PutTask(ctx, swarmtypes.Task{ID: "task-2", Text: "x", Status: swarmtypes.TaskPending, CreatedAt: now, UpdatedAt: now}))

	st := swarmtypes.Subtask{ID: "sub-a", ParentID: "task-2", Description: "do a thing", Kind: swarmtypes.KindBackend, Status: swarmtypes.SubtaskPending, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, s.PutSubtask(ctx, st))

	st.Status = swarmtypes.SubtaskCompleted
	st.Output = "done"
	require.NoError(t, s.PutSubtask(ctx, st))
}

func TestRecordAssignmentAppendsHistory(t *testing.T) {
	s := setupTestSink(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, s.PutTask(ctx, swarmtypes.Task{ID: "task-3", Text: "x", Status: swarmtypes.TaskPending, CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.RecordAssignment(ctx, "task-3", "sub-a", "inst-1", "assigned"))
	require.NoError(t, s.RecordAssignment(ctx, "task-3", "sub-a", "inst-1", "completed"))
}
