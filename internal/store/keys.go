// Package store is the keyspace and atomic-script layer over the shared
// key-value store (Redis), implementing SPEC_FULL.md §5.1. All multi-key
// mutations run as server-side Lua scripts so that dependency-graph
// installation, queue inserts, and counter updates are atomic with respect
// to every other script — the store is the sole serialization point for
// concurrent coordination state, per spec.md §5.
package store

import "fmt"

// Prefix is the keyspace prefix for every key this package manages.
const Prefix = "cb:"

// Key builders. Keeping these as functions (not string concatenation at
// call sites) ensures every caller and every Lua script agrees on the
// exact key shape — critical since scripts reference keys positionally.

func TaskKey(taskID string) string {
	return fmt.Sprintf("%stask:%s", Prefix, taskID)
}

func SubtaskKey(parentID, subtaskID string) string {
	return fmt.Sprintf("%ssubtask:%s:%s", Prefix, parentID, subtaskID)
}

func DependenciesKey(parentID, subtaskID string) string {
	return fmt.Sprintf("%sdependencies:%s:%s", Prefix, parentID, subtaskID)
}

func DependentsKey(parentID, subtaskID string) string {
	return fmt.Sprintf("%sdependents:%s:%s", Prefix, parentID, subtaskID)
}

func ReadyQueueKey() string {
	return Prefix + "queue:subtasks"
}

func PendingTasksQueueKey() string {
	return Prefix + "queue:tasks:pending"
}

func InstanceQueueKey(instanceID string) string {
	return fmt.Sprintf("%squeue:instance:%s", Prefix, instanceID)
}

func InstanceKey(instanceID string) string {
	return fmt.Sprintf("%sinstance:%s", Prefix, instanceID)
}

func InstanceSetKey() string {
	return Prefix + "instances"
}

func SpecialistsKey(kind string) string {
	return fmt.Sprintf("%sspecialists:%s", Prefix, kind)
}

func AssignmentKey(subtaskID string) string {
	return fmt.Sprintf("%sassignment:%s", Prefix, subtaskID)
}

func ConflictKey(taskID, subtaskID string) string {
	return fmt.Sprintf("%sconflict:%s:%s", Prefix, taskID, subtaskID)
}

func ConflictQueueKey() string {
	return Prefix + "queue:conflicts"
}

func DecompositionKey(taskID string) string {
	return fmt.Sprintf("%sdecomposition:%s", Prefix, taskID)
}

func SubtaskSetKey(parentID string) string {
	return fmt.Sprintf("%ssubtasks:%s", Prefix, parentID)
}

func BlockedSetKey() string {
	return Prefix + "queue:blocked"
}

func AttachmentKey(taskID, key string) string {
	return fmt.Sprintf("%sattachment:%s:%s", Prefix, taskID, key)
}

func AttachmentIndexKey(taskID string) string {
	return fmt.Sprintf("%sattachments:%s", Prefix, taskID)
}

func EventStreamKey(stream string) string {
	return fmt.Sprintf("%sevents:%s", Prefix, stream)
}

func CursorKey(subscriberID string) string {
	return fmt.Sprintf("%scursor:%s", Prefix, subscriberID)
}

func MetricKey(name string) string {
	return fmt.Sprintf("%smetrics:%s", Prefix, name)
}

// EventDedupKey names the set of applied event ids for scriptName. Event
// ids are random UUIDs (google/uuid v4), not monotonic. The decompose and
// conflict scripts keep their sets one level deeper, per entity
// (cb:dedup:decompose:{parentId}, cb:dedup:conflict:{taskId}:{subtaskId});
// the assign, synthesize and reassign scripts keep no dedup set and rely
// on state checks for idempotent retries.
func EventDedupKey(scriptName string) string {
	return fmt.Sprintf("%sdedup:%s", Prefix, scriptName)
}
