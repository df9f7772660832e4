// Package swarmtypes defines the shared data model for the coordination
// backend: instances, tasks, subtasks, the dependency graph, attachments,
// events, and conflicts. These types are serialized into the shared
// key-value store and onto the wire; they carry no behavior of their own.
package swarmtypes

import "time"

// InstanceStatus is the lifecycle state of a registered specialist instance.
type InstanceStatus string

const (
	InstanceActive  InstanceStatus = "ACTIVE"
	InstanceIdle    InstanceStatus = "IDLE"
	InstanceBusy    InstanceStatus = "BUSY"
	InstanceOffline InstanceStatus = "OFFLINE"
)

// SpecialistKind classifies the routing role of a subtask or instance.
type SpecialistKind string

const (
	KindFrontend SpecialistKind = "frontend"
	KindBackend  SpecialistKind = "backend"
	KindTesting  SpecialistKind = "testing"
	KindDocs     SpecialistKind = "docs"
	KindGeneral  SpecialistKind = "general"
)

// ValidKinds lists every accepted specialist kind, in catalog order.
func ValidKinds() []SpecialistKind {
	return []SpecialistKind{KindFrontend, KindBackend, KindTesting, KindDocs, KindGeneral}
}

// IsValid reports whether k is one of the catalog kinds.
func (k SpecialistKind) IsValid() bool {
	for _, v := range ValidKinds() {
		if v == k {
			return true
		}
	}
	return false
}

// TaskStatus is the lifecycle state of a parent task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// SubtaskStatus is the lifecycle state of a subtask.
type SubtaskStatus string

const (
	SubtaskPending    SubtaskStatus = "pending"
	SubtaskInProgress SubtaskStatus = "in_progress"
	SubtaskCompleted  SubtaskStatus = "completed"
	SubtaskFailed     SubtaskStatus = "failed"
	SubtaskBlocked    SubtaskStatus = "blocked"
)

// Instance is a registered specialist worker process.
type Instance struct {
	ID            string            `json:"id"`
	Roles         []string          `json:"roles"`
	Capabilities  []string          `json:"capabilities"`
	CurrentLoad   int               `json:"current_load"`
	MaxLoad       int               `json:"max_load"`
	LastHeartbeat time.Time         `json:"last_heartbeat"`
	Status        InstanceStatus    `json:"status"`
	Metadata      InstanceMetadata  `json:"metadata,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
}

// InstanceMetadata carries optional out-of-band instance details.
// WorkingDirectory and Version are supplemental fields carried forward
// from the original implementation's client compatibility bookkeeping
// (see SPEC_FULL.md §4); Version is informational only and never used to
// reject a request.
type InstanceMetadata struct {
	WorkingDirectory string `json:"working_directory,omitempty"`
	Version          string `json:"version,omitempty"`
}

// Task is a top-level project submitted by a client.
type Task struct {
	ID          string         `json:"id"`
	Text        string         `json:"text"`
	Priority    int            `json:"priority"`
	Status      TaskStatus     `json:"status"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
	Metadata    TaskMetadata   `json:"metadata,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
}

// TaskMetadata is the free-form bag of project context attached to a task.
type TaskMetadata struct {
	ProjectID   string   `json:"project_id,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	Requirements []string `json:"requirements,omitempty"`
}

// Subtask is a unit of decomposed work owned by exactly one parent task.
type Subtask struct {
	ID               string         `json:"id"`
	ParentID         string         `json:"parent_id"`
	Description      string         `json:"description"`
	Kind             SpecialistKind `json:"kind"`
	Complexity       int            `json:"complexity"`
	EstimatedMinutes int            `json:"estimated_minutes"`
	Dependencies     []string       `json:"dependencies,omitempty"`
	Status           SubtaskStatus  `json:"status"`
	AssignedTo       string         `json:"assigned_to,omitempty"`
	Output           string         `json:"output,omitempty"`
	Priority         int            `json:"priority"`
	ExternalRef      string         `json:"external_ref,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// Specialist is a per-kind pool member: the routing-facing view of an
// instance's capacity for a single specialist kind.
type Specialist struct {
	ID           string   `json:"id"`
	Kind         SpecialistKind `json:"kind"`
	Capabilities []string `json:"capabilities"`
	CurrentLoad  int      `json:"current_load"`
	MaxLoad      int      `json:"max_load"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// AttachmentType enumerates the supported attachment payload kinds.
type AttachmentType string

const (
	AttachmentJSON     AttachmentType = "json"
	AttachmentMarkdown AttachmentType = "markdown"
	AttachmentText     AttachmentType = "text"
	AttachmentURL      AttachmentType = "url"
	AttachmentBinary   AttachmentType = "binary"
)

// Attachment is a keyed artifact stored against a parent task.
type Attachment struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Key       string         `json:"key"`
	Type      AttachmentType `json:"type"`
	Value     any            `json:"value,omitempty"`
	Content   string         `json:"content,omitempty"`
	URL       string         `json:"url,omitempty"`
	Bytes     []byte         `json:"bytes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	CreatedBy string         `json:"created_by,omitempty"`
}

// Proposal is one specialist's candidate solution to a contested subtask.
type Proposal struct {
	InstanceID string `json:"instance_id"`
	Approach   string `json:"approach"`
	Reasoning  string `json:"reasoning"`
	Code       string `json:"code,omitempty"`
}

// Conflict tracks competing proposals for the same subtask.
type Conflict struct {
	ID         string     `json:"id"`
	TaskID     string     `json:"task_id"`
	SubtaskID  string     `json:"subtask_id"`
	Proposals  []Proposal `json:"proposals"`
	Resolved   bool       `json:"resolved"`
	ChosenIdx  int        `json:"chosen_index,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Event is a journaled fact about a state transition.
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       any             `json:"payload,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"`
}
