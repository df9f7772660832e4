package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// Store wraps the shared key-value store connection and the atomic scripts
// that operate over it. Handlers receive a *Store (constructed once at
// startup, per SPEC_FULL.md §9's "process-scoped context objects" note) and
// never hold their own connections or locks.
type Store struct {
	rdb redis.UniversalClient
	sink AttachmentSink

	decomposeScript *redis.Script
	assignScript    *redis.Script
	conflictScript  *redis.Script
	synthesizeScript *redis.Script
	reassignScript  *redis.Script
}

// AttachmentSink is the relational archival store's attachment contract
// (implemented by internal/sink.Sink), kept as a narrow interface here so
// internal/store never imports internal/sink directly. Write-through: a
// PutAttachment call fails as a whole if the sink write fails, per
// spec.md §4.5's "sink is the slower path, its failure fails the
// attachment write as a whole." Read-through: GetAttachment falls back to
// the sink on a store cache miss and re-hydrates the in-store copy.
type AttachmentSink interface {
	PutAttachment(ctx context.Context, att swarmtypes.Attachment) error
	GetAttachment(ctx context.Context, taskID, key string) (*swarmtypes.Attachment, error)
}

// SetSink attaches the relational archival store used for write-through/
// read-through attachment persistence. A nil sink (the default) makes
// PutAttachment/GetAttachment operate store-only, which test suites rely
// on to avoid standing up Postgres for unrelated coverage.
func (s *Store) SetSink(sink AttachmentSink) {
	s.sink = sink
}

// Options configures a new Store.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New dials the store and preloads the atomic scripts.
func New(opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to store at %s: %w", opts.Addr, err)
	}

	return newWithClient(rdb), nil
}

// NewWithClient wraps an existing redis.UniversalClient, used by tests that
// run against an embedded miniredis instance.
func NewWithClient(rdb redis.UniversalClient) *Store {
	return newWithClient(rdb)
}

func newWithClient(rdb redis.UniversalClient) *Store {
	return &Store{
		rdb:              rdb,
		decomposeScript:  redis.NewScript(decomposeAndStoreSubtasksLua),
		assignScript:     redis.NewScript(assignToSpecialistLua),
		conflictScript:   redis.NewScript(detectAndQueueConflictLua),
		synthesizeScript: redis.NewScript(synthesizeProgressLua),
		reassignScript:   redis.NewScript(reassignFromInstanceLua),
	}
}

// Client exposes the underlying client for components (instance manager,
// task queue) that need direct, non-script reads (ZRANGE, LRANGE, HGETALL).
func (s *Store) Client() redis.UniversalClient {
	return s.rdb
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping round-trips a PING for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}
