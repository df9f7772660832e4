package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coordinator/swarmd/internal/store"
)

// AuditEntry is one recorded hook decision.
type AuditEntry struct {
	SessionID string    `json:"session_id"`
	Hook      Type      `json:"hook"`
	Tool      string    `json:"tool"`
	Decision  string    `json:"decision"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Auditor appends hook decisions to the append-only `events:hooks` stream
// (spec.md §4.7: "decision audit trail is an append-only stream") and
// mirrors the most recent rejection reason per tool at a stable key for
// UI display.
type Auditor struct {
	rdb redis.UniversalClient
}

// NewAuditor wraps the store's client for audit writes.
func NewAuditor(s *store.Store) *Auditor {
	return &Auditor{rdb: s.Client()}
}

// Record appends an audit entry and, on rejection, updates the stable
// last-rejection key for the tool.
func (a *Auditor) Record(ctx context.Context, c Call, d Decision) error {
	decision := "allow"
	if !d.Allow {
		decision = "block"
	}
	entry := AuditEntry{
		SessionID: c.SessionID,
		Hook:      c.Hook,
		Tool:      c.Tool,
		Decision:  decision,
		Reason:    d.Reason,
		Timestamp: time.Now(),
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	pipe := a.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: store.EventStreamKey("hooks"),
		Values: map[string]any{"entry": payload},
	})
	if !d.Allow {
		pipe.Set(ctx, lastRejectionKey(c.Tool), payload, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func lastRejectionKey(tool string) string {
	return store.Prefix + "hooks:last_rejection:" + tool
}
