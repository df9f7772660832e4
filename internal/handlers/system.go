package handlers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/coordinator/swarmd/internal/instances"
	"github.com/coordinator/swarmd/internal/registry"
	"github.com/coordinator/swarmd/pkg/rpcerr"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

func instanceRegisterInput(req *swarmtypes.RegisterRequest) instances.RegisterInput {
	return instances.RegisterInput{
		ID:           req.ID,
		Roles:        req.Roles,
		Capabilities: req.Capabilities,
		MaxLoad:      req.MaxLoad,
		Metadata:     req.Metadata,
	}
}

func systemMethods(d Deps) []registry.MethodConfig {
	return []registry.MethodConfig{
		{
			Method:  "system.register",
			Handler: handlerFunc(registerHandler(d)),
			RateLimit: &registry.RateLimitRule{Capacity: 20, RefillPerSec: 5},
			Timeout: 5 * time.Second,
		},
		{
			Method:  "system.heartbeat",
			Handler: handlerFunc(heartbeatHandler(d)),
			RateLimit: &registry.RateLimitRule{Capacity: 200, RefillPerSec: 50},
			Timeout: 2 * time.Second,
		},
		{
			Method:  "system.unregister",
			Handler: handlerFunc(unregisterHandler(d)),
			Timeout: 5 * time.Second,
		},
		{
			Method:  "system.get_state",
			Handler: getStateHandler(d),
			Cache:   &registry.CacheRule{TTL: 2 * time.Second},
			Timeout: 5 * time.Second,
		},
		{
			Method:  "system.health",
			Handler: healthHandler(d),
			Timeout: 2 * time.Second,
		},
		{
			Method:  "system.metrics",
			Handler: metricsHandler(d),
			Cache:   &registry.CacheRule{TTL: 5 * time.Second},
			Timeout: 5 * time.Second,
		},
		{
			Method:  "system.flush",
			Handler: handlerFunc(flushHandler(d)),
			Circuit: &registry.CircuitRule{Failures: 3, Trip: 10 * time.Second, HalfOpenAfter: 30 * time.Second},
			Timeout: 30 * time.Second,
		},
		{
			Method:  "system.postgres.tables",
			Handler: postgresTablesHandler(d),
			Timeout: 5 * time.Second,
		},
		{
			Method:  "system.postgres.query",
			Handler: handlerFunc(postgresQueryHandler(d)),
			RateLimit: &registry.RateLimitRule{Capacity: 10, RefillPerSec: 2},
			Timeout: 10 * time.Second,
		},
	}
}

func registerHandler(d Deps) func(ctx context.Context, req *swarmtypes.RegisterRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.RegisterRequest) (any, error) {
		inst, err := d.Instances.Register(ctx, instanceRegisterInput(req))
		if err != nil {
			return nil, rpcerr.Handler("system.register", err)
		}
		if d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "instances", "instance.registered", map[string]any{"id": inst.ID, "roles": inst.Roles})
		}
		return inst, nil
	}
}

func heartbeatHandler(d Deps) func(ctx context.Context, req *swarmtypes.HeartbeatRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.HeartbeatRequest) (any, error) {
		if err := d.Instances.Heartbeat(ctx, req.ID, req.Metadata); err != nil {
			return nil, rpcerr.Handler("system.heartbeat", err)
		}
		return map[string]any{"ok": true}, nil
	}
}

func unregisterHandler(d Deps) func(ctx context.Context, req *swarmtypes.UnregisterRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.UnregisterRequest) (any, error) {
		if err := d.Instances.Unregister(ctx, req.ID); err != nil {
			return nil, rpcerr.Handler("system.unregister", err)
		}
		if d.Bus != nil {
			_, _ = d.Bus.Publish(ctx, "instances", "instance.unregistered", map[string]any{"id": req.ID})
		}
		return map[string]any{"ok": true}, nil
	}
}

func getStateHandler(d Deps) registry.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		all, err := d.Instances.List(ctx)
		if err != nil {
			return nil, rpcerr.Handler("system.get_state", err)
		}
		blocked, err := d.Queue.Blocked(ctx)
		if err != nil {
			return nil, rpcerr.Handler("system.get_state", err)
		}
		ready, err := d.Queue.Ready(ctx, 100)
		if err != nil {
			return nil, rpcerr.Handler("system.get_state", err)
		}
		return map[string]any{
			"instances":    all,
			"blocked":      blocked,
			"ready_count":  len(ready),
			"instance_count": len(all),
		}, nil
	}
}

func healthHandler(d Deps) registry.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if err := d.Store.Ping(ctx); err != nil {
			return nil, rpcerr.Newf(rpcerr.InternalError, "store unreachable: %v", err)
		}
		return map[string]any{"status": "ok", "time": time.Now().UTC()}, nil
	}
}

func metricsHandler(d Deps) registry.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		instancesList, err := d.Instances.List(ctx)
		if err != nil {
			return nil, rpcerr.Handler("system.metrics", err)
		}
		var idle, busy, offline int
		for _, inst := range instancesList {
			switch inst.Status {
			case swarmtypes.InstanceIdle:
				idle++
			case swarmtypes.InstanceBusy, swarmtypes.InstanceActive:
				busy++
			case swarmtypes.InstanceOffline:
				offline++
			}
		}
		ready, err := d.Queue.Ready(ctx, 1000)
		if err != nil {
			return nil, rpcerr.Handler("system.metrics", err)
		}
		blocked, err := d.Queue.Blocked(ctx)
		if err != nil {
			return nil, rpcerr.Handler("system.metrics", err)
		}
		return map[string]any{
			"instances_idle":    idle,
			"instances_busy":    busy,
			"instances_offline": offline,
			"queue_ready":       len(ready),
			"queue_blocked":     len(blocked),
		}, nil
	}
}

func flushHandler(d Deps) func(ctx context.Context, req *swarmtypes.FlushRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.FlushRequest) (any, error) {
		if d.FlushToken == "" || req.Confirm != d.FlushToken {
			return nil, rpcerr.New(rpcerr.Unauthorized, "flush confirmation token mismatch")
		}
		if err := d.Store.Client().FlushDB(ctx).Err(); err != nil {
			return nil, rpcerr.Handler("system.flush", err)
		}
		d.Log.Warn().Msg("system.flush: store flushed")
		return map[string]any{"flushed": true}, nil
	}
}

func postgresTablesHandler(d Deps) registry.Handler {
	return func(ctx context.Context, _ json.RawMessage) (any, error) {
		if d.Sink == nil {
			return nil, rpcerr.New(rpcerr.InvalidRequest, "no relational sink configured")
		}
		tables, err := d.Sink.ListTables(ctx)
		if err != nil {
			return nil, rpcerr.Handler("system.postgres.tables", err)
		}
		return map[string]any{"tables": tables}, nil
	}
}

func postgresQueryHandler(d Deps) func(ctx context.Context, req *swarmtypes.PostgresQueryRequest) (any, error) {
	return func(ctx context.Context, req *swarmtypes.PostgresQueryRequest) (any, error) {
		if d.Sink == nil {
			return nil, rpcerr.New(rpcerr.InvalidRequest, "no relational sink configured")
		}
		rows, err := d.Sink.RunReadOnlyQuery(ctx, req.SQL, req.Args)
		if err != nil {
			return nil, rpcerr.Handler("system.postgres.query", err)
		}
		return map[string]any{"rows": rows}, nil
	}
}
