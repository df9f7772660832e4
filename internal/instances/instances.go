// Package instances implements the instance lifecycle of spec.md §4.4:
// registration, heartbeat, and a periodic sweeper that marks stale
// instances OFFLINE and reassigns their in-flight work. The sweeper's
// ticker-driven background goroutine shape is grounded on the teacher's
// internal/rpc.startDecisionSweeper (interval-configurable ticker,
// shutdown-channel select, per-sweep context deadline).
package instances

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coordinator/swarmd/internal/store"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// Manager owns instance registration, heartbeats, and the offline sweep.
type Manager struct {
	store           *store.Store
	heartbeatTimeout time.Duration
}

// New returns a Manager. heartbeatTimeout is the T_offline threshold of
// spec.md §4.4's state machine.
func New(s *store.Store, heartbeatTimeout time.Duration) *Manager {
	return &Manager{store: s, heartbeatTimeout: heartbeatTimeout}
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	ID           string
	Roles        []string
	Capabilities []string
	MaxLoad      int
	Metadata     swarmtypes.InstanceMetadata
}

// Register records a new instance at IDLE with lastHeartbeat=now, per
// spec.md §4.4. The instance record is a Redis hash, not a JSON blob at a
// string key: the atomic Lua scripts (assign_to_specialist,
// synthesize_progress, reassign_from_instance) mutate individual fields
// of `instance:{id}` directly via HINCRBY/HSET, so this package and the
// scripts must agree on the same hash-field layout.
func (m *Manager) Register(ctx context.Context, in RegisterInput) (*swarmtypes.Instance, error) {
	now := time.Now().UTC()
	inst := swarmtypes.Instance{
		ID:            in.ID,
		Roles:         in.Roles,
		Capabilities:  in.Capabilities,
		CurrentLoad:   0,
		MaxLoad:       in.MaxLoad,
		LastHeartbeat: now,
		Status:        swarmtypes.InstanceIdle,
		Metadata:      in.Metadata,
		StartedAt:     now,
	}

	pipe := m.store.Client().TxPipeline()
	pipe.HSet(ctx, store.InstanceKey(in.ID), instanceFields(&inst))
	pipe.SAdd(ctx, store.InstanceSetKey(), in.ID)
	for _, role := range in.Roles {
		blob, _ := json.Marshal(map[string]any{
			"id":           in.ID,
			"capabilities": in.Capabilities,
			"current_load": 0,
			"max_load":     in.MaxLoad,
		})
		pipe.HSet(ctx, store.SpecialistsKey(role), in.ID, blob)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("register instance: %w", err)
	}

	return &inst, nil
}

// Heartbeat refreshes lastHeartbeat and optionally merges metadata
// updates.
func (m *Manager) Heartbeat(ctx context.Context, id string, metadata *swarmtypes.InstanceMetadata) error {
	fields := map[string]any{"last_heartbeat": time.Now().UTC().Format(time.RFC3339Nano)}
	if metadata != nil {
		blob, err := json.Marshal(metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		fields["metadata"] = blob
	}
	return m.store.Client().HSet(ctx, store.InstanceKey(id), fields).Err()
}

// Unregister removes an instance record outright (graceful shutdown path,
// distinct from the OFFLINE sweep which preserves history for audit).
func (m *Manager) Unregister(ctx context.Context, id string) error {
	pipe := m.store.Client().TxPipeline()
	pipe.Del(ctx, store.InstanceKey(id))
	pipe.SRem(ctx, store.InstanceSetKey(), id)
	_, err := pipe.Exec(ctx)
	return err
}

// Get reads an instance record back out of its hash fields.
func (m *Manager) Get(ctx context.Context, id string) (*swarmtypes.Instance, error) {
	fields, err := m.store.Client().HGetAll(ctx, store.InstanceKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("instance %q not found", id)
	}
	return instanceFromFields(id, fields)
}

// List returns every registered instance.
func (m *Manager) List(ctx context.Context) ([]swarmtypes.Instance, error) {
	ids, err := m.store.Client().SMembers(ctx, store.InstanceSetKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list instance ids: %w", err)
	}
	out := make([]swarmtypes.Instance, 0, len(ids))
	for _, id := range ids {
		inst, err := m.Get(ctx, id)
		if err != nil {
			continue // instance key expired/removed between SMEMBERS and GET
		}
		out = append(out, *inst)
	}
	return out, nil
}

// instanceFields renders an Instance into the hash-field map the Lua
// scripts read/write individual fields of.
func instanceFields(inst *swarmtypes.Instance) map[string]any {
	roles, _ := json.Marshal(inst.Roles)
	caps, _ := json.Marshal(inst.Capabilities)
	meta, _ := json.Marshal(inst.Metadata)
	return map[string]any{
		"id":             inst.ID,
		"roles":          roles,
		"capabilities":   caps,
		"current_load":   inst.CurrentLoad,
		"max_load":       inst.MaxLoad,
		"last_heartbeat": inst.LastHeartbeat.Format(time.RFC3339Nano),
		"status":         string(inst.Status),
		"metadata":       meta,
		"started_at":     inst.StartedAt.Format(time.RFC3339Nano),
	}
}

func instanceFromFields(id string, fields map[string]string) (*swarmtypes.Instance, error) {
	inst := &swarmtypes.Instance{ID: id, Status: swarmtypes.InstanceStatus(fields["status"])}

	if v, ok := fields["roles"]; ok {
		_ = json.Unmarshal([]byte(v), &inst.Roles)
	}
	if v, ok := fields["capabilities"]; ok {
		_ = json.Unmarshal([]byte(v), &inst.Capabilities)
	}
	if v, ok := fields["metadata"]; ok {
		_ = json.Unmarshal([]byte(v), &inst.Metadata)
	}
	if v, ok := fields["current_load"]; ok {
		fmt.Sscanf(v, "%d", &inst.CurrentLoad)
	}
	if v, ok := fields["max_load"]; ok {
		fmt.Sscanf(v, "%d", &inst.MaxLoad)
	}
	if v, ok := fields["last_heartbeat"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			inst.LastHeartbeat = t
		}
	}
	if v, ok := fields["started_at"]; ok {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			inst.StartedAt = t
		}
	}
	return inst, nil
}

// SweepOnce scans every registered instance and marks any whose
// lastHeartbeat is older than the configured timeout as OFFLINE,
// invoking ReassignFromInstance for each. Returns the ids swept.
func (m *Manager) SweepOnce(ctx context.Context) ([]string, error) {
	instancesList, err := m.List(ctx)
	if err != nil {
		return nil, err
	}

	var swept []string
	now := time.Now().UTC()
	for _, inst := range instancesList {
		if inst.Status == swarmtypes.InstanceOffline {
			continue
		}
		if now.Sub(inst.LastHeartbeat) <= m.heartbeatTimeout {
			continue
		}

		if _, err := m.store.ReassignFromInstance(ctx, inst.ID, inst.Roles); err != nil {
			return swept, fmt.Errorf("reassign from %s: %w", inst.ID, err)
		}
		swept = append(swept, inst.ID)
	}

	return swept, nil
}

// RunSweeper blocks, running SweepOnce every interval until ctx is
// canceled.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration, onSweep func(ids []string)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := m.SweepOnce(ctx)
			if err != nil {
				continue
			}
			if len(swept) > 0 && onSweep != nil {
				onSweep(swept)
			}
		}
	}
}
