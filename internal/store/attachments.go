package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// PutAttachment writes an attachment keyed by (taskID, key), overwriting any
// existing value at that key, and records the key in the task's attachment
// index. Used both for client-created attachments (`task.create_attachment`)
// and the swarm coordinator's own cached artifacts (`context_{subtaskId}`,
// synthesis reports), per spec.md §4.6.
func (s *Store) PutAttachment(ctx context.Context, att swarmtypes.Attachment) error {
	if att.CreatedAt.IsZero() {
		att.CreatedAt = time.Now().UTC()
	}

	if s.sink != nil {
		if err := s.sink.PutAttachment(ctx, att); err != nil {
			return fmt.Errorf("write-through attachment to sink: %w", err)
		}
	}

	blob, err := json.Marshal(att)
	if err != nil {
		return fmt.Errorf("marshal attachment: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, AttachmentKey(att.TaskID, att.Key), blob, 0)
	pipe.SAdd(ctx, AttachmentIndexKey(att.TaskID), att.Key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put attachment: %w", err)
	}
	return nil
}

// GetAttachment reads a single attachment back. On a store miss, it reads
// through to the sink (when attached) and re-hydrates the in-store copy,
// per spec.md §4.5's read-through cache policy. Returns nil, nil if the
// attachment is absent from both.
func (s *Store) GetAttachment(ctx context.Context, taskID, key string) (*swarmtypes.Attachment, error) {
	raw, err := s.rdb.Get(ctx, AttachmentKey(taskID, key)).Result()
	if err == nil {
		var att swarmtypes.Attachment
		if err := json.Unmarshal([]byte(raw), &att); err != nil {
			return nil, fmt.Errorf("decode attachment: %w", err)
		}
		return &att, nil
	}
	if err != redis.Nil {
		return nil, err
	}

	if s.sink == nil {
		return nil, err
	}

	att, sinkErr := s.sink.GetAttachment(ctx, taskID, key)
	if sinkErr != nil {
		return nil, fmt.Errorf("read-through attachment from sink: %w", sinkErr)
	}
	if att == nil {
		return nil, redis.Nil
	}

	blob, marshalErr := json.Marshal(att)
	if marshalErr == nil {
		_ = s.rdb.Set(ctx, AttachmentKey(taskID, key), blob, 0).Err()
		_ = s.rdb.SAdd(ctx, AttachmentIndexKey(taskID), key).Err()
	}
	return att, nil
}

// ListAttachments returns every attachment key recorded for taskID.
func (s *Store) ListAttachments(ctx context.Context, taskID string) ([]string, error) {
	keys, err := s.rdb.SMembers(ctx, AttachmentIndexKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list attachment keys: %w", err)
	}
	return keys, nil
}

// GetAttachmentsBatch reads every attachment named in keys, skipping any
// that no longer exist rather than failing the whole batch.
func (s *Store) GetAttachmentsBatch(ctx context.Context, taskID string, keys []string) ([]swarmtypes.Attachment, error) {
	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.StringCmd, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, pipe.Get(ctx, AttachmentKey(taskID, k)))
	}
	// Partial failures (missing keys) are expected inside a pipeline batch;
	// errors are inspected per-command below instead of on Exec's return.
	_, _ = pipe.Exec(ctx)

	out := make([]swarmtypes.Attachment, 0, len(keys))
	for _, cmd := range cmds {
		raw, err := cmd.Result()
		if err != nil {
			continue
		}
		var att swarmtypes.Attachment
		if err := json.Unmarshal([]byte(raw), &att); err != nil {
			continue
		}
		out = append(out, att)
	}
	return out, nil
}
