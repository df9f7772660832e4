package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/coordinator/swarmd/internal/store"
)

// Bus reads events back off the store's Redis Streams and fans them out
// to in-process subscribers filtered by a dotted-name pattern, plus an
// optional NATS JetStream publish for external consumers.
type Bus struct {
	rdb redis.UniversalClient

	mu  sync.RWMutex
	js  nats.JetStreamContext
}

// New wraps the store's client for stream reads. Mutating scripts already
// write events via XADD inside their atomic block (spec.md §4.3); Bus is
// the read/subscribe side.
func New(s *store.Store) *Bus {
	return &Bus{rdb: s.Client()}
}

// SetJetStream attaches a JetStream context for supplementary external
// fan-out. When set, Publish additionally sends each event to NATS after
// appending it to the store stream.
func (b *Bus) SetJetStream(js nats.JetStreamContext) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.js = js
}

func (b *Bus) jetStream() nats.JetStreamContext {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.js
}

// Publish appends an out-of-band event to stream, for code paths that
// aren't already inside one of the atomic store scripts (e.g. instance
// lifecycle events raised directly from Go).
func (b *Bus) Publish(ctx context.Context, stream, eventType string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal event payload: %w", err)
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: store.EventStreamKey(stream),
		Values: map[string]any{"type": eventType, "payload": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	if js := b.jetStream(); js != nil {
		b.publishToJetStream(stream, eventType, data)
	}
	return id, nil
}

func (b *Bus) publishToJetStream(stream, eventType string, data []byte) {
	js := b.jetStream()
	if js == nil {
		return
	}
	subject := SubjectForStream(stream)
	if _, err := js.Publish(subject, data); err != nil {
		log.Printf("eventbus: jetstream publish to %s failed: %v", subject, err)
	}
}

// Handler processes one delivered event. Errors are logged, not fatal —
// the bus remains resilient to a single handler failing, matching the
// teacher's Dispatch semantics.
type Handler func(ctx context.Context, ev Event) error

// Subscription pulls events from one stream starting after the
// subscriber's last-processed cursor, matching events against pattern
// (supporting a single trailing `*` wildcard) and invoking handler for
// each match. The cursor is persisted after each successful delivery so
// redelivery on restart resumes exactly where it left off, per spec.md
// §4.3's dedup-by-cursor requirement.
type Subscription struct {
	bus          *Bus
	stream       string
	subscriberID string
	pattern      string
	handler      Handler
}

// Subscribe returns a Subscription ready to Run. pattern filters by event
// Type with `*` as a trailing wildcard ("subtask.*" matches
// "subtask.assigned", "subtask.completed", ...); "" or "*" matches all.
func (b *Bus) Subscribe(stream, subscriberID, pattern string, handler Handler) *Subscription {
	return &Subscription{bus: b, stream: stream, subscriberID: subscriberID, pattern: pattern, handler: handler}
}

func matchesPattern(pattern, eventType string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		return strings.HasPrefix(eventType, strings.TrimSuffix(pattern, "*"))
	}
	return pattern == eventType
}

// Run blocks, long-polling the stream via XREAD and delivering matching
// events to handler until ctx is canceled. blockDur bounds each XREAD
// call so ctx cancellation is observed promptly.
func (s *Subscription) Run(ctx context.Context, blockDur time.Duration) error {
	cursor, err := s.loadCursor(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		res, err := s.bus.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{store.EventStreamKey(s.stream), cursor},
			Block:   blockDur,
			Count:   100,
		}).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("xread %s: %w", s.stream, err)
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				eventType, _ := msg.Values["type"].(string)
				if !matchesPattern(s.pattern, eventType) {
					cursor = msg.ID
					continue
				}

				ev := Event{
					ID:        msg.ID,
					Stream:    s.stream,
					Type:      eventType,
					Timestamp: timestampFromStreamID(msg.ID),
				}
				if raw, ok := msg.Values["payload"]; ok {
					if s, ok := raw.(string); ok {
						ev.Payload = json.RawMessage(s)
					}
				}

				if err := s.handler(ctx, ev); err != nil {
					log.Printf("eventbus: handler error for subscriber %q on %s: %v", s.subscriberID, eventType, err)
				}

				cursor = msg.ID
				if err := s.saveCursor(ctx, cursor); err != nil {
					log.Printf("eventbus: cursor save failed for %q: %v", s.subscriberID, err)
				}
			}
		}
	}
}

func (s *Subscription) loadCursor(ctx context.Context) (string, error) {
	val, err := s.bus.rdb.HGet(ctx, store.CursorKey(s.subscriberID), s.stream).Result()
	if err == redis.Nil {
		return "0", nil
	}
	if err != nil {
		return "", fmt.Errorf("load cursor: %w", err)
	}
	return val, nil
}

func (s *Subscription) saveCursor(ctx context.Context, id string) error {
	return s.bus.rdb.HSet(ctx, store.CursorKey(s.subscriberID), s.stream, id).Err()
}

// timestampFromStreamID recovers the millisecond timestamp embedded in a
// Redis Stream entry ID ("<ms>-<seq>").
func timestampFromStreamID(id string) time.Time {
	msPart := strings.SplitN(id, "-", 2)[0]
	ms, err := strconv.ParseInt(msPart, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
