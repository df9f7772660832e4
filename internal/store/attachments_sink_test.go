package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// fakeSink is an in-memory AttachmentSink double, standing in for
// internal/sink.Sink in unit tests that shouldn't require a live Postgres.
type fakeSink struct {
	mu       sync.Mutex
	data     map[string]swarmtypes.Attachment
	putCalls int
	failPut  bool
}

func newFakeSink() *fakeSink {
	return &fakeSink{data: make(map[string]swarmtypes.Attachment)}
}

func (f *fakeSink) PutAttachment(ctx context.Context, att swarmtypes.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putCalls++
	if f.failPut {
		return context.DeadlineExceeded
	}
	f.data[att.TaskID+"/"+att.Key] = att
	return nil
}

func (f *fakeSink) GetAttachment(ctx context.Context, taskID, key string) (*swarmtypes.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	att, ok := f.data[taskID+"/"+key]
	if !ok {
		return nil, nil
	}
	return &att, nil
}

func TestPutAttachmentWritesThroughToSink(t *testing.T) {
	s := newTestStore(t)
	fs := newFakeSink()
	s.SetSink(fs)

	err := s.PutAttachment(context.Background(), swarmtypes.Attachment{
		TaskID: "t1", Key: "k1", Type: swarmtypes.AttachmentText, Content: "hello",
	})
	require.NoError(t, err)
	require.Equal(t, 1, fs.putCalls)

	got, ok := fs.data["t1/k1"]
	require.True(t, ok)
	require.Equal(t, "hello", got.Content)
}

func TestPutAttachmentFailsWholeWriteOnSinkFailure(t *testing.T) {
	s := newTestStore(t)
	fs := newFakeSink()
	fs.failPut = true
	s.SetSink(fs)

	err := s.PutAttachment(context.Background(), swarmtypes.Attachment{TaskID: "t1", Key: "k1", Type: swarmtypes.AttachmentText, Content: "hello"})
	require.Error(t, err)

	_, getErr := s.GetAttachment(context.Background(), "t1", "k1")
	require.Error(t, getErr) // never reached the in-store write either
}

func TestGetAttachmentReadsThroughOnMiss(t *testing.T) {
	s := newTestStore(t)
	fs := newFakeSink()
	fs.data["t2/k2"] = swarmtypes.Attachment{
		TaskID: "t2", Key: "k2", Type: swarmtypes.AttachmentMarkdown, Content: "# hi", CreatedAt: time.Now().UTC(),
	}
	s.SetSink(fs)

	att, err := s.GetAttachment(context.Background(), "t2", "k2")
	require.NoError(t, err)
	require.NotNil(t, att)
	require.Equal(t, "# hi", att.Content)

	// second read should now be served from the in-store copy without
	// touching the sink again.
	fs.data = map[string]swarmtypes.Attachment{}
	att2, err := s.GetAttachment(context.Background(), "t2", "k2")
	require.NoError(t, err)
	require.NotNil(t, att2)
	require.Equal(t, "# hi", att2.Content)
}

func TestGetAttachmentMissingEverywhereReturnsRedisNil(t *testing.T) {
	s := newTestStore(t)
	s.SetSink(newFakeSink())

	_, err := s.GetAttachment(context.Background(), "ghost", "nope")
	require.Error(t, err)
}
