// Package eventbus implements the durable, at-least-once pub/sub of
// spec.md §4.3: Redis Streams are the source of truth (publishing is
// synchronous with the mutating Lua script, in the same atomic block),
// subscriptions filter by dotted-name pattern with `*` wildcards, and
// delivery is deduplicated per subscriber via a persisted cursor. NATS
// JetStream fan-out is layered on top for external subscribers, grounded
// on the teacher's internal/eventbus.Bus.SetJetStream/publishToJetStream
// pattern — but unlike the teacher (where JetStream is the durable
// store), here JetStream is strictly supplementary: the Redis Stream
// remains authoritative and NATS publish failures are logged, not
// propagated.
package eventbus

import (
	"encoding/json"
	"time"
)

// Event is a journaled fact read back off a stream.
type Event struct {
	ID        string          `json:"id"`
	Stream    string          `json:"stream"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// SubjectForStream maps an internal stream key ("task:{id}") to a NATS
// subject ("events.task.{id}"), following the teacher's
// SubjectForEvent-style prefixing convention.
func SubjectForStream(stream string) string {
	return "events." + dotsForColons(stream)
}

func dotsForColons(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == ':' {
			out[i] = '.'
		} else {
			out[i] = s[i]
		}
	}
	return string(out)
}
