package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/internal/sampling"
	"github.com/coordinator/swarmd/internal/store"
	"github.com/coordinator/swarmd/pkg/rpcerr"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func taskMethods(d Deps) []registry.MethodConfig {
	return []registry.MethodConfig{
		{Method: "task.create", Handler: handlerFunc(createTaskHandler(d)), Persist: true, Timeout: 10 * time.Second},
		{Method: "task.list", Handler: handlerFunc(listTasksHandler(d)), Cache: &registry.CacheRule{TTL: time.Second}, Timeout: 5 * time.Second},
		{Method: "task.get_project", Handler: handlerFunc(getProjectHandler(d)), Timeout: 5 * time.Second},
		{Method: "task.update", Handler: handlerFunc(updateTaskHandler(d)), Persist: true, Timeout: 5 * time.Second},
		{Method: "task.assign", Handler: handlerFunc(assignTaskHandler(d)), Timeout: 5 * time.Second},
		{Method: "task.claim", Handler: handlerFunc(claimTaskHandler(d)), RateLimit: &registry.RateLimitRule{Capacity: 100, RefillPerSec: 25}, Timeout: 5 * time.Second},
		{Method: "task.complete", Handler: handlerFunc(completeTaskHandler(d)), Timeout: 10 * time.Second},
		// task.create_attachment isn't Persist:true: store.PutAttachment already
		// writes through to the sink itself via the AttachmentSink interface.
		{Method: "task.create_attachment", Handler: handlerFunc(createAttachmentHandler(d)), Timeout: 10 * time.Second},
		{Method: "task.get_attachment", Handler: handlerFunc(getAttachmentHandler(d)), Cache: &registry.CacheRule{TTL: 2 * time.Second}, Timeout: 5 * time.Second},
		{Method: "task.list_attachments", Handler: handlerFunc(listAttachmentsHandler(d)), Timeout: 5 * time.Second},
		{Method: "task.get_attachments_batch", Handler: handlerFunc(getAttachmentsBatchHandler(d)), Timeout: 5 * time.Second},
	}
}

func createTaskHandler(d Deps) func(ctx context.Context, req *swarmtypes.CreateTaskRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.CreateTaskRequest) (any, error) {
		now := time.Now().UTC()
		task := swarmtypes.Task{
			ID:        uuid.NewString(),
			Text:      req.Text,
			Priority:  req.Priority,
			Status:    swarmtypes.TaskPending,
			CreatedAt: now,
			UpdatedAt: now,
			Metadata:  req.Metadata,
			Labels:    req.Labels,
		}
		if err := d.Store.PutTask(ctx, task); err != nil {
			return nil, rpcerr.Handler("task.create", err)
		}
		if d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "task:"+task.ID, "task.created", map[string]any{"task_id": task.ID})
		}

		var decomposeResult any
		if req.AutoDecompose && d.Swarm != nil {
			res, err := d.Swarm.Decompose(ctx, task.ID, task.Text, task.Priority, task.Metadata.Constraints)
			if err != nil {
				return nil, rpcerr.Handler("task.create", err)
			}
			decomposeResult = res
		}
		return map[string]any{"task": task, "decompose": decomposeResult}, nil
	}
}

func listTasksHandler(d Deps) func(ctx context.Context, req *swarmtypes.ListTasksRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.ListTasksRequest) (any, error) {
		tasks, err := d.Store.ListTasks(ctx, req.Labels)
		if err != nil {
			return nil, rpcerr.Handler("task.list", err)
		}
		if req.Limit > 0 && len(tasks) > req.Limit {
			tasks = tasks[:req.Limit]
		}
		return map[string]any{"tasks": tasks}, nil
	}
}

func getProjectHandler(d Deps) func(ctx context.Context, req *swarmtypes.GetProjectRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.GetProjectRequest) (any, error) {
		task, err := d.Store.GetTask(ctx, req.TaskID)
		if err != nil {
			return nil, rpcerr.Handler("task.get_project", err)
		}
		if task == nil {
			return nil, rpcerr.Newf(rpcerr.InvalidParams, "unknown task %q", req.TaskID)
		}
		subtasks, err := d.Store.ListSubtasks(ctx, req.TaskID)
		if err != nil {
			return nil, rpcerr.Handler("task.get_project", err)
		}
		return map[string]any{"task": task, "subtasks": subtasks}, nil
	}
}

func updateTaskHandler(d Deps) func(ctx context.Context, req *swarmtypes.UpdateTaskRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.UpdateTaskRequest) (any, error) {
		task, err := d.Store.GetTask(ctx, req.TaskID)
		if err != nil {
			return nil, rpcerr.Handler("task.update", err)
		}
		if task == nil {
			return nil, rpcerr.Newf(rpcerr.InvalidParams, "unknown task %q", req.TaskID)
		}
		if req.Text != nil {
			task.Text = *req.Text
		}
		if req.Priority != nil {
			task.Priority = *req.Priority
		}
		if req.Status != nil {
			task.Status = swarmtypes.TaskStatus(*req.Status)
			if task.Status == swarmtypes.TaskCompleted || task.Status == swarmtypes.TaskFailed {
				now := time.Now().UTC()
				task.CompletedAt = &now
			}
		}
		task.Labels = applyLabelMutation(task.Labels, req.SetLabels, req.AddLabels, req.RemoveLabels)
		task.UpdatedAt = time.Now().UTC()

		if err := d.Store.PutTask(ctx, *task); err != nil {
			return nil, rpcerr.Handler("task.update", err)
		}
		return map[string]any{"task": task}, nil
	}
}

// applyLabelMutation resolves task.update's three label fields: setLabels
// replaces the set outright when non-nil, otherwise addLabels/removeLabels
// are applied to the existing set.
func applyLabelMutation(current, set, add, remove []string) []string {
	if set != nil {
		return dedupeStrings(set)
	}
	labels := make(map[string]bool, len(current))
	for _, l := range current {
		labels[l] = true
	}
	for _, l := range add {
		labels[l] = true
	}
	for _, l := range remove {
		delete(labels, l)
	}
	out := make([]string, 0, len(labels))
	for l := range labels {
		out = append(out, l)
	}
	return out
}

func dedupeStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func assignTaskHandler(d Deps) func(ctx context.Context, req *swarmtypes.AssignTaskRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.AssignTaskRequest) (any, error) {
		result, err := d.Queue.Assign(ctx, req.TaskID, req.SubtaskID, req.Kind, req.RequiredCapabilities)
		if err == store.ErrNoneAvailable {
			return nil, rpcerr.New(rpcerr.InvalidRequest, "no specialist available for this kind/capability set")
		}
		if err != nil {
			return nil, rpcerr.Handler("task.assign", err)
		}
		if d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "task:"+req.TaskID, "subtask.assigned", map[string]any{
				"subtask_id": req.SubtaskID, "specialist_id": result.SpecialistID,
			})
		}
		return result, nil
	}
}

func claimTaskHandler(d Deps) func(ctx context.Context, req *swarmtypes.ClaimTaskRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.ClaimTaskRequest) (any, error) {
		result, parentID, subtaskID, err := d.Queue.AutoPull(ctx, req.Kind, req.RequiredCapabilities)
		if err == store.ErrNoneAvailable {
			return nil, rpcerr.New(rpcerr.InvalidRequest, "no specialist available for this kind/capability set")
		}
		if err != nil {
			return nil, rpcerr.Handler("task.claim", err)
		}
		if result == nil {
			return map[string]any{"claimed": false}, nil
		}
		if d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "task:"+parentID, "subtask.assigned", map[string]any{
				"subtask_id": subtaskID, "specialist_id": result.SpecialistID,
			})
		}
		return map[string]any{"claimed": true, "task_id": parentID, "subtask_id": subtaskID, "result": result}, nil
	}
}

func completeTaskHandler(d Deps) func(ctx context.Context, req *swarmtypes.CompleteTaskRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.CompleteTaskRequest) (any, error) {
		result, err := d.Queue.Complete(ctx, req.TaskID, req.SubtaskID, store.SubtaskResult{Status: req.Status, Output: req.Output})
		if err != nil {
			return nil, rpcerr.Handler("task.complete", err)
		}
		if d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "task:"+req.TaskID, "subtask.completed", map[string]any{
				"subtask_id": req.SubtaskID, "status": req.Status, "unblocked_count": result.UnblockedCount,
			})
		}
		if result.ReadyForSynthesis && d.Swarm != nil {
			go synthesizeInBackground(d, req.TaskID)
		}
		return result, nil
	}
}

// synthesizeInBackground runs the swarm synthesis phase once a task's last
// subtask completes, decoupled from the completing specialist's RPC
// round-trip so task.complete doesn't block on an LLM sampling call.
func synthesizeInBackground(d Deps, taskID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	task, err := d.Store.GetTask(ctx, taskID)
	if err != nil || task == nil {
		return
	}
	subtasks, err := d.Store.ListSubtasks(ctx, taskID)
	if err != nil {
		return
	}
	_, _ = d.Swarm.Synthesize(ctx, taskID, task.Text, completedFromSubtasks(subtasks))
}

func completedFromSubtasks(subtasks []swarmtypes.Subtask) []sampling.CompletedSubtask {
	completed := make([]sampling.CompletedSubtask, 0, len(subtasks))
	for _, st := range subtasks {
		if st.Status != swarmtypes.SubtaskCompleted {
			continue
		}
		completed = append(completed, sampling.CompletedSubtask{ID: st.ID, Description: st.Description, Output: st.Output})
	}
	return completed
}

func createAttachmentHandler(d Deps) func(ctx context.Context, req *swarmtypes.CreateAttachmentRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.CreateAttachmentRequest) (any, error) {
		att := swarmtypes.Attachment{
			ID:        uuid.NewString(),
			TaskID:    req.TaskID,
			Key:       req.Key,
			Type:      req.Type,
			Value:     req.Value,
			Content:   req.Content,
			URL:       req.URL,
			Bytes:     req.Bytes,
			CreatedBy: req.CreatedBy,
		}
		if err := d.Store.PutAttachment(ctx, att); err != nil {
			return nil, rpcerr.Handler("task.create_attachment", err)
		}
		return map[string]any{"attachment": att}, nil
	}
}

func getAttachmentHandler(d Deps) func(ctx context.Context, req *swarmtypes.GetAttachmentRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.GetAttachmentRequest) (any, error) {
		att, err := d.Store.GetAttachment(ctx, req.TaskID, req.Key)
		if err != nil {
			return nil, rpcerr.Newf(rpcerr.InvalidParams, "attachment %s/%s not found", req.TaskID, req.Key)
		}
		return map[string]any{"attachment": att}, nil
	}
}

func listAttachmentsHandler(d Deps) func(ctx context.Context, req *swarmtypes.ListAttachmentsRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.ListAttachmentsRequest) (any, error) {
		keys, err := d.Store.ListAttachments(ctx, req.TaskID)
		if err != nil {
			return nil, rpcerr.Handler("task.list_attachments", err)
		}
		return map[string]any{"keys": keys}, nil
	}
}

func getAttachmentsBatchHandler(d Deps) func(ctx context.Context, req *swarmtypes.GetAttachmentsBatchRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.GetAttachmentsBatchRequest) (any, error) {
		atts, err := d.Store.GetAttachmentsBatch(ctx, req.TaskID, req.Keys)
		if err != nil {
			return nil, rpcerr.Handler("task.get_attachments_batch", err)
		}
		return map[string]any{"attachments": atts}, nil
	}
}
