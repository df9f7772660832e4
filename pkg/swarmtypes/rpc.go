package swarmtypes

import "encoding/json"

// This file defines the RPC-facing request shapes for the method catalog of
// spec.md §6.2, carrying `validate:"..."` struct tags evaluated by
// github.com/go-playground/validator/v10 before a handler ever runs,
// per SPEC_FULL.md §3's "Schema validation" domain-stack entry. These are
// wire DTOs, not the durable domain types above: a handler maps a validated
// request onto the Task/Subtask/Instance/Attachment types before writing to
// the store.

// RegisterRequest is system.register's input.
type RegisterRequest struct {
	ID           string           `json:"id" validate:"required"`
	Roles        []string         `json:"roles" validate:"required,min=1,dive,oneof=frontend backend testing docs general"`
	Capabilities []string         `json:"capabilities"`
	MaxLoad      int              `json:"max_load" validate:"required,min=1,max=1000"`
	Metadata     InstanceMetadata `json:"metadata"`
}

// HeartbeatRequest is system.heartbeat's input.
type HeartbeatRequest struct {
	ID       string            `json:"id" validate:"required"`
	Metadata *InstanceMetadata `json:"metadata,omitempty"`
}

// UnregisterRequest is system.unregister's input.
type UnregisterRequest struct {
	ID string `json:"id" validate:"required"`
}

// FlushRequest is system.flush's input, requiring a confirmation token
// matching the daemon's configured FLUSH_ALL_DATA guard (spec.md §6.5).
type FlushRequest struct {
	Confirm string `json:"confirm" validate:"required"`
}

// PostgresQueryRequest is system.postgres.query's input: a read-only
// introspection query against the relational sink.
type PostgresQueryRequest struct {
	SQL  string `json:"sql" validate:"required"`
	Args []any  `json:"args,omitempty"`
}

// CreateTaskRequest is task.create's input.
type CreateTaskRequest struct {
	Text        string       `json:"text" validate:"required"`
	Priority    int          `json:"priority" validate:"min=0,max=100"`
	Metadata    TaskMetadata `json:"metadata"`
	Labels      []string     `json:"labels,omitempty"`
	AutoDecompose bool       `json:"auto_decompose"`
}

// ListTasksRequest is task.list's input.
type ListTasksRequest struct {
	Labels []string `json:"labels,omitempty"`
	Limit  int      `json:"limit" validate:"omitempty,min=1,max=100"`
}

// GetProjectRequest is task.get_project's input.
type GetProjectRequest struct {
	TaskID string `json:"task_id" validate:"required"`
}

// UpdateTaskRequest is task.update's input. Exactly the label-mutation
// trio from SPEC_FULL.md §4's supplemental Task.Labels field, plus the
// base mutable fields.
type UpdateTaskRequest struct {
	TaskID      string   `json:"task_id" validate:"required"`
	Text        *string  `json:"text,omitempty"`
	Priority    *int     `json:"priority,omitempty" validate:"omitempty,min=0,max=100"`
	Status      *string  `json:"status,omitempty" validate:"omitempty,oneof=pending in_progress completed failed"`
	AddLabels   []string `json:"add_labels,omitempty"`
	RemoveLabels []string `json:"remove_labels,omitempty"`
	SetLabels   []string `json:"set_labels,omitempty"`
}

// AssignTaskRequest is task.assign's input: the admin-override explicit
// assignment path.
type AssignTaskRequest struct {
	TaskID               string   `json:"task_id" validate:"required"`
	SubtaskID            string   `json:"subtask_id" validate:"required"`
	Kind                 string   `json:"kind" validate:"required,oneof=frontend backend testing docs general"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// ClaimTaskRequest is task.claim's input: an instance's auto-pull request.
type ClaimTaskRequest struct {
	InstanceID           string   `json:"instance_id" validate:"required"`
	Kind                 string   `json:"kind" validate:"required,oneof=frontend backend testing docs general"`
	RequiredCapabilities []string `json:"required_capabilities,omitempty"`
}

// CompleteTaskRequest is task.complete's input.
type CompleteTaskRequest struct {
	TaskID    string `json:"task_id" validate:"required"`
	SubtaskID string `json:"subtask_id" validate:"required"`
	Status    string `json:"status" validate:"required,oneof=completed failed"`
	Output    string `json:"output"`
}

// CreateAttachmentRequest is task.create_attachment's input.
type CreateAttachmentRequest struct {
	TaskID    string         `json:"task_id" validate:"required"`
	Key       string         `json:"key" validate:"required"`
	Type      AttachmentType `json:"type" validate:"required,oneof=json markdown text url binary"`
	Value     any            `json:"value,omitempty"`
	Content   string         `json:"content,omitempty"`
	URL       string         `json:"url,omitempty"`
	Bytes     []byte         `json:"bytes,omitempty"`
	CreatedBy string         `json:"created_by,omitempty"`
}

// GetAttachmentRequest is task.get_attachment's input.
type GetAttachmentRequest struct {
	TaskID string `json:"task_id" validate:"required"`
	Key    string `json:"key" validate:"required"`
}

// ListAttachmentsRequest is task.list_attachments's input.
type ListAttachmentsRequest struct {
	TaskID string `json:"task_id" validate:"required"`
}

// GetAttachmentsBatchRequest is task.get_attachments_batch's input.
type GetAttachmentsBatchRequest struct {
	TaskID string   `json:"task_id" validate:"required"`
	Keys   []string `json:"keys" validate:"required,min=1,max=100"`
}

// DecomposeRequest is swarm.decompose's input.
type DecomposeRequest struct {
	TaskID      string   `json:"task_id" validate:"required"`
	Task        string   `json:"task" validate:"required"`
	Priority    int      `json:"priority" validate:"min=0,max=100"`
	Constraints []string `json:"constraints,omitempty"`
}

// SwarmContextRequest is swarm.context's input.
type SwarmContextRequest struct {
	SubtaskID    string `json:"subtask_id" validate:"required"`
	Specialist   string `json:"specialist" validate:"required"`
	ParentTaskID string `json:"parent_task_id" validate:"required"`
	Description  string `json:"description"`
}

// ResolveRequest is swarm.resolve's input.
type ResolveRequest struct {
	TaskID     string `json:"task_id" validate:"required"`
	SubtaskID  string `json:"subtask_id" validate:"required"`
	ConflictID string `json:"conflict_id" validate:"required"`
}

// SynthesizeRequest is swarm.synthesize's input.
type SynthesizeRequest struct {
	TaskID string `json:"task_id" validate:"required"`
}

// SwarmAssignRequest is swarm.assign's input: a proposal submission that
// may trigger conflict detection if a second proposal arrives for the same
// subtask.
type SwarmAssignRequest struct {
	TaskID    string `json:"task_id" validate:"required"`
	SubtaskID string `json:"subtask_id" validate:"required"`
	Proposal  Proposal `json:"proposal" validate:"required"`
}

// PreToolRequest is hook.pre_tool's input.
type PreToolRequest struct {
	SessionID string  `json:"session_id" validate:"required"`
	Tool      ToolCall `json:"tool" validate:"required"`
}

// PostToolRequest is hook.post_tool's input.
type PostToolRequest struct {
	SessionID string          `json:"session_id" validate:"required"`
	Tool      ToolCall        `json:"tool" validate:"required"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// UserPromptRequest is hook.user_prompt's input.
type UserPromptRequest struct {
	SessionID string `json:"session_id" validate:"required"`
	Prompt    string `json:"prompt" validate:"required"`
}

// TodoWriteRequest is hook.todo_write's input.
type TodoWriteRequest struct {
	SessionID string   `json:"session_id" validate:"required"`
	Todos     []string `json:"todos"`
}

// DocGetRequest is docs.get's input.
type DocGetRequest struct {
	Name string `json:"name" validate:"required"`
}

// ToolKind tags the known shapes of a tool-invocation payload, per
// spec.md §9's "dynamic any payloads become tagged variants at the
// boundary" design note.
type ToolKind string

const (
	ToolBash      ToolKind = "bash"
	ToolFileWrite ToolKind = "file_write"
	ToolFileRead  ToolKind = "file_read"
	ToolOpaque    ToolKind = "opaque"
)

// BashParams is the structured payload for a bash-tool invocation.
type BashParams struct {
	Command string `json:"command"`
}

// FileWriteParams is the structured payload for a file-write-tool
// invocation.
type FileWriteParams struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// FileReadParams is the structured payload for a file-read-tool
// invocation.
type FileReadParams struct {
	Path string `json:"path"`
}

// ToolCall is a tagged variant over the known tool-invocation shapes, with
// an opaque byte fallback for unrecognized tool names so the hook validator
// can still hash-and-cache the call without understanding its shape.
type ToolCall struct {
	Name      string `json:"name"`
	Kind      ToolKind
	Bash      *BashParams
	FileWrite *FileWriteParams
	FileRead  *FileReadParams
	Opaque    json.RawMessage
}

// rawToolCall mirrors the wire shape: {"name": "...", "params": {...}}.
type rawToolCall struct {
	Name   string          `json:"name"`
	Params json.RawMessage `json:"params"`
}

// UnmarshalJSON decodes {"name","params"} into the matching known branch,
// or stores params opaque if the tool name isn't recognized.
func (t *ToolCall) UnmarshalJSON(data []byte) error {
	var raw rawToolCall
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Name = raw.Name
	switch ToolKind(raw.Name) {
	case ToolBash:
		var p BashParams
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return err
		}
		t.Kind = ToolBash
		t.Bash = &p
	case ToolFileWrite:
		var p FileWriteParams
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return err
		}
		t.Kind = ToolFileWrite
		t.FileWrite = &p
	case ToolFileRead:
		var p FileReadParams
		if err := json.Unmarshal(raw.Params, &p); err != nil {
			return err
		}
		t.Kind = ToolFileRead
		t.FileRead = &p
	default:
		t.Kind = ToolOpaque
		t.Opaque = raw.Params
	}
	return nil
}

// Params renders the tagged variant back into a flat map, the shape
// internal/hooks policies pattern-match against.
func (t ToolCall) Params() map[string]any {
	out := map[string]any{}
	switch t.Kind {
	case ToolBash:
		if t.Bash != nil {
			out["command"] = t.Bash.Command
		}
	case ToolFileWrite:
		if t.FileWrite != nil {
			out["path"] = t.FileWrite.Path
			out["file_path"] = t.FileWrite.Path
			out["content"] = t.FileWrite.Content
		}
	case ToolFileRead:
		if t.FileRead != nil {
			out["path"] = t.FileRead.Path
			out["file_path"] = t.FileRead.Path
		}
	default:
		if len(t.Opaque) > 0 {
			_ = json.Unmarshal(t.Opaque, &out)
		}
	}
	return out
}
