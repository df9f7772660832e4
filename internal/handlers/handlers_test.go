package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/coordinator/swarmd/internal/hooks"
	"github.com/coordinator/swarmd/internal/instances"
	"github.com/coordinator/swarmd/internal/queue"
	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/internal/sampling"
	"github.com/coordinator/swarmd/internal/store"
	"github.com/coordinator/swarmd/internal/swarm"
	"github.com/coordinator/swarmd/pkg/rpcerr"
)

func newTestDeps(t *testing.T, samplerText string) Deps {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewWithClient(rdb)
	im := instances.New(s, time.Minute)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": "msg_test", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"usage":   map[string]any{"input_tokens": 1, "output_tokens": 1},
			"content": []map[string]any{{"type": "text", "text": samplerText}},
		})
	}))
	t.Cleanup(server.Close)

	sampler, err := sampling.New(sampling.Options{APIKey: "test-key", MaxRetries: 0}, option.WithBaseURL(server.URL))
	require.NoError(t, err)

	coordinator := swarm.New(s, im, nil, sampler, 5*time.Second)
	validator := hooks.NewValidator(hooks.NewDefaultRegistry(), time.Minute, hooks.NewAuditor(s), 100, 100)

	return Deps{
		Store:      s,
		Instances:  im,
		Queue:      queue.New(s),
		Swarm:      coordinator,
		Hooks:      validator,
		FlushToken: "let-me-in",
	}
}

func newTestRegistry(t *testing.T, d Deps) *registry.Registry {
	t.Helper()
	reg := registry.New()
	require.NoError(t, Register(reg, d))
	return reg
}

func dispatch(t *testing.T, reg *registry.Registry, method string, params any) (any, error) {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return reg.Dispatch(context.Background(), method, "test-client", raw)
}

func TestTaskLifecycleEndToEnd(t *testing.T) {
	d := newTestDeps(t, `{"subtasks":[{"id":"a","kind":"backend","priority":5}]}`)
	reg := newTestRegistry(t, d)

	createResult, err := dispatch(t, reg, "task.create", map[string]any{"text": "build a widget", "priority": 5})
	require.NoError(t, err)

	blob, err := json.Marshal(createResult)
	require.NoError(t, err)
	var decoded struct {
		Task struct {
			ID string `json:"id"`
		} `json:"task"`
	}
	require.NoError(t, json.Unmarshal(blob, &decoded))
	require.NotEmpty(t, decoded.Task.ID)

	_, err = dispatch(t, reg, "system.register", map[string]any{
		"id": "inst-1", "roles": []string{"backend"}, "max_load": 5,
	})
	require.NoError(t, err)

	decompose, err := dispatch(t, reg, "swarm.decompose", map[string]any{
		"task_id": decoded.Task.ID, "task": "build a widget", "priority": 5,
	})
	require.NoError(t, err)
	require.NotNil(t, decompose)

	claim, err := dispatch(t, reg, "task.claim", map[string]any{
		"instance_id": "inst-1", "kind": "backend",
	})
	require.NoError(t, err)
	claimed := claim.(map[string]any)
	require.Equal(t, true, claimed["claimed"])

	complete, err := dispatch(t, reg, "task.complete", map[string]any{
		"task_id": decoded.Task.ID, "subtask_id": claimed["subtask_id"], "status": "completed", "output": "done",
	})
	require.NoError(t, err)
	require.NotNil(t, complete)
}

func TestFlushRequiresMatchingToken(t *testing.T) {
	d := newTestDeps(t, `{}`)
	reg := newTestRegistry(t, d)

	_, err := dispatch(t, reg, "system.flush", map[string]any{"confirm": "wrong"})
	require.Error(t, err)
	rpcErr, ok := rpcerr.As(err)
	require.True(t, ok)
	require.Equal(t, rpcerr.Unauthorized, rpcErr.Code)

	result, err := dispatch(t, reg, "system.flush", map[string]any{"confirm": "let-me-in"})
	require.NoError(t, err)
	require.Equal(t, true, result.(map[string]any)["flushed"])
}

func TestPreToolDeniesDestructiveCommand(t *testing.T) {
	d := newTestDeps(t, `{}`)
	reg := newTestRegistry(t, d)

	result, err := dispatch(t, reg, "hook.pre_tool", map[string]any{
		"session_id": "sess-1",
		"tool":       map[string]any{"name": "bash", "params": map[string]any{"command": "rm -rf /"}},
	})
	require.NoError(t, err)
	decision := result.(hooks.Decision)
	require.False(t, decision.Allow)
}

func TestDocsListAndGet(t *testing.T) {
	d := newTestDeps(t, `{}`)
	reg := newTestRegistry(t, d)

	list, err := dispatch(t, reg, "docs.list", map[string]any{})
	require.NoError(t, err)
	require.NotEmpty(t, list.(map[string]any)["docs"])

	doc, err := dispatch(t, reg, "docs.get", map[string]any{"name": "runbook"})
	require.NoError(t, err)
	require.NotNil(t, doc)
}

func TestCreateTaskRejectsMissingText(t *testing.T) {
	d := newTestDeps(t, `{}`)
	reg := newTestRegistry(t, d)

	_, err := dispatch(t, reg, "task.create", map[string]any{"priority": 1})
	require.Error(t, err)
	rpcErr, ok := rpcerr.As(err)
	require.True(t, ok)
	require.Equal(t, rpcerr.ValidationError, rpcErr.Code)
}
