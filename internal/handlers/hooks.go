package handlers

import (
	"context"
	"time"

	"github.com/coordinator/swarmd/internal/hooks"
	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/pkg/rpcerr"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func hookMethods(d Deps) []registry.MethodConfig {
	return []registry.MethodConfig{
		{Method: "hook.pre_tool", Handler: handlerFunc(preToolHandler(d)), Timeout: 5 * time.Second},
		{Method: "hook.post_tool", Handler: handlerFunc(postToolHandler(d)), Timeout: 5 * time.Second},
		{Method: "hook.user_prompt", Handler: handlerFunc(userPromptHandler(d)), Timeout: 5 * time.Second},
		{Method: "hook.todo_write", Handler: handlerFunc(todoWriteHandler(d)), Timeout: 5 * time.Second},
	}
}

func preToolHandler(d Deps) func(ctx context.Context, req *swarmtypes.PreToolRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.PreToolRequest) (any, error) {
		decision, err := d.Hooks.Check(ctx, hooks.Call{
			SessionID: req.SessionID,
			Hook:      hooks.TypePreTool,
			Tool:      req.Tool.Name,
			Params:    req.Tool.Params(),
		})
		if err != nil {
			return nil, hookError("hook.pre_tool", err)
		}
		return decision, nil
	}
}

func postToolHandler(d Deps) func(ctx context.Context, req *swarmtypes.PostToolRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.PostToolRequest) (any, error) {
		decision, err := d.Hooks.Check(ctx, hooks.Call{
			SessionID: req.SessionID,
			Hook:      hooks.TypePostTool,
			Tool:      req.Tool.Name,
			Params:    req.Tool.Params(),
		})
		if err != nil {
			return nil, hookError("hook.post_tool", err)
		}
		return decision, nil
	}
}

func userPromptHandler(d Deps) func(ctx context.Context, req *swarmtypes.UserPromptRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.UserPromptRequest) (any, error) {
		decision, err := d.Hooks.Check(ctx, hooks.Call{
			SessionID: req.SessionID,
			Hook:      hooks.TypeUserPrompt,
			Tool:      "user_prompt",
			Params:    map[string]any{"prompt": req.Prompt},
		})
		if err != nil {
			return nil, hookError("hook.user_prompt", err)
		}
		return decision, nil
	}
}

func todoWriteHandler(d Deps) func(ctx context.Context, req *swarmtypes.TodoWriteRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.TodoWriteRequest) (any, error) {
		decision, err := d.Hooks.Check(ctx, hooks.Call{
			SessionID: req.SessionID,
			Hook:      hooks.TypeTodoWrite,
			Tool:      "todo_write",
			Params:    map[string]any{"todos": req.Todos},
		})
		if err != nil {
			return nil, hookError("hook.todo_write", err)
		}
		return decision, nil
	}
}

func hookError(method string, err error) error {
	if err == hooks.ErrRateLimited {
		return rpcerr.New(rpcerr.RateLimitExceeded, err.Error())
	}
	return rpcerr.Handler(method, err)
}
