package eventbus

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// StreamEvents is the single JetStream stream external subscribers
// consume; unlike the teacher's per-domain streams (HOOK_EVENTS,
// DECISION_EVENTS, OJ_EVENTS, AGENT_EVENTS), the coordination backend
// fans every stream kind out under one "events.>" subject space since
// subject-level filtering (per spec.md §4.3's dotted-pattern
// subscriptions) already gives external consumers the scoping they need.
const StreamEvents = "SWARMD_EVENTS"

// EnsureStream creates the JetStream stream if it doesn't already exist,
// mirroring the teacher's EnsureStreams idempotent AddStream-if-missing
// pattern.
func EnsureStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(StreamEvents); err != nil {
		_, err = js.AddStream(&nats.StreamConfig{
			Name:     StreamEvents,
			Subjects: []string{"events.>"},
			Storage:  nats.FileStorage,
			MaxMsgs:  100_000,
			MaxBytes: 512 << 20,
		})
		if err != nil {
			return fmt.Errorf("create %s stream: %w", StreamEvents, err)
		}
	}
	return nil
}
