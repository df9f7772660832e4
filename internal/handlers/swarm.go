package handlers

import (
	"context"
	"time"

	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/pkg/rpcerr"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func swarmMethods(d Deps) []registry.MethodConfig {
	return []registry.MethodConfig{
		{Method: "swarm.decompose", Handler: handlerFunc(decomposeHandler(d)), Timeout: 35 * time.Second},
		{Method: "swarm.context", Handler: handlerFunc(contextHandler(d)), Cache: &registry.CacheRule{TTL: 30 * time.Second}, Timeout: 35 * time.Second},
		{Method: "swarm.resolve", Handler: handlerFunc(resolveHandler(d)), Timeout: 35 * time.Second},
		{Method: "swarm.synthesize", Handler: handlerFunc(synthesizeHandler(d)), Timeout: 35 * time.Second},
		{Method: "swarm.assign", Handler: handlerFunc(swarmAssignHandler(d)), Timeout: 5 * time.Second},
	}
}

func decomposeHandler(d Deps) func(ctx context.Context, req *swarmtypes.DecomposeRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.DecomposeRequest) (any, error) {
		result, err := d.Swarm.Decompose(ctx, req.TaskID, req.Task, req.Priority, req.Constraints)
		if err != nil {
			return nil, rpcerr.Handler("swarm.decompose", err)
		}
		return result, nil
	}
}

func contextHandler(d Deps) func(ctx context.Context, req *swarmtypes.SwarmContextRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.SwarmContextRequest) (any, error) {
		brief, err := d.Swarm.Context(ctx, req.SubtaskID, req.Specialist, req.ParentTaskID, req.Description)
		if err != nil {
			return nil, rpcerr.Handler("swarm.context", err)
		}
		return brief, nil
	}
}

func resolveHandler(d Deps) func(ctx context.Context, req *swarmtypes.ResolveRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.ResolveRequest) (any, error) {
		proposals, err := d.Store.GetConflictProposals(ctx, req.TaskID, req.SubtaskID)
		if err != nil {
			return nil, rpcerr.Handler("swarm.resolve", err)
		}
		if len(proposals) == 0 {
			return nil, rpcerr.Newf(rpcerr.InvalidParams, "no proposals recorded for %s/%s", req.TaskID, req.SubtaskID)
		}
		resp, err := d.Swarm.Resolve(ctx, req.TaskID, req.SubtaskID, req.ConflictID, proposals)
		if err != nil {
			return nil, rpcerr.Handler("swarm.resolve", err)
		}
		return resp, nil
	}
}

func synthesizeHandler(d Deps) func(ctx context.Context, req *swarmtypes.SynthesizeRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.SynthesizeRequest) (any, error) {
		task, err := d.Store.GetTask(ctx, req.TaskID)
		if err != nil {
			return nil, rpcerr.Handler("swarm.synthesize", err)
		}
		if task == nil {
			return nil, rpcerr.Newf(rpcerr.InvalidParams, "unknown task %q", req.TaskID)
		}
		subtasks, err := d.Store.ListSubtasks(ctx, req.TaskID)
		if err != nil {
			return nil, rpcerr.Handler("swarm.synthesize", err)
		}
		completed := completedFromSubtasks(subtasks)
		resp, err := d.Swarm.Synthesize(ctx, req.TaskID, task.Text, completed)
		if err != nil {
			return nil, rpcerr.Handler("swarm.synthesize", err)
		}
		return resp, nil
	}
}

func swarmAssignHandler(d Deps) func(ctx context.Context, req *swarmtypes.SwarmAssignRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.SwarmAssignRequest) (any, error) {
		result, err := d.Store.DetectAndQueueConflict(ctx, req.TaskID, req.SubtaskID, req.Proposal)
		if err != nil {
			return nil, rpcerr.Handler("swarm.assign", err)
		}
		if result.ConflictDetected && d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "task:"+req.TaskID, "conflict.detected", map[string]any{
				"subtask_id": req.SubtaskID, "solution_count": result.SolutionCount,
			})
		}
		return result, nil
	}
}
