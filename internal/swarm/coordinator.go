package swarm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/coordinator/swarmd/internal/eventbus"
	"github.com/coordinator/swarmd/internal/instances"
	"github.com/coordinator/swarmd/internal/sampling"
	"github.com/coordinator/swarmd/internal/store"
	"github.com/coordinator/swarmd/pkg/swarmtypes"
)

// Coordinator implements spec.md §4.6's four swarm operations, invoking the
// sampling provider and falling back to a deterministic single-subtask
// decomposition when the provider fails persistently so the system never
// wedges on a submitted project.
type Coordinator struct {
	store     *store.Store
	instances *instances.Manager
	bus       *eventbus.Bus
	sampler   *sampling.Client
	deadline  time.Duration
}

// New builds a Coordinator. deadline bounds every sampling call, per
// spec.md §5's "explicit overall deadline (default 30s, configurable)."
func New(s *store.Store, im *instances.Manager, bus *eventbus.Bus, sampler *sampling.Client, deadline time.Duration) *Coordinator {
	if deadline <= 0 {
		deadline = 30 * time.Second
	}
	return &Coordinator{store: s, instances: im, bus: bus, sampler: sampler, deadline: deadline}
}

// DecomposeResult is swarm.decompose's outcome.
type DecomposeResult struct {
	SubtaskCount int
	QueuedCount  int
	UsedFallback bool
}

// Decompose invokes the sampling provider with the project description and
// current specialist pool snapshot, validates the structured decomposition,
// and installs it via decomposeAndStoreSubtasks. On persistent provider
// failure or schema validation failure, installs a deterministic
// single-subtask fallback instead (spec.md §4.6).
func (c *Coordinator) Decompose(ctx context.Context, taskID, text string, priority int, constraints []string) (*DecomposeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	pool, err := c.poolSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot specialist pool: %w", err)
	}

	req := sampling.DecomposeRequest{
		TaskID: taskID, Text: text, Priority: priority, Constraints: constraints, SpecialistPool: pool,
	}
	prompt, err := render(decomposeTmpl, req)
	if err != nil {
		return nil, fmt.Errorf("render decompose prompt: %w", err)
	}

	subtasks, usedFallback := c.decomposeViaProvider(ctx, prompt, text)

	inputs := make([]store.SubtaskInput, 0, len(subtasks))
	for _, st := range subtasks {
		inputs = append(inputs, store.SubtaskInput{
			ID: st.ID, Description: st.Description, Kind: st.Kind,
			Complexity: st.Complexity, EstimatedMinutes: st.EstimatedMinutes,
			Priority: st.Priority, Dependencies: st.Dependencies,
		})
	}

	result, err := c.store.DecomposeAndStoreSubtasks(ctx, taskID, inputs)
	if err != nil {
		return nil, fmt.Errorf("install decomposition: %w", err)
	}

	if c.bus != nil {
		_, _ = c.bus.Publish(ctx, "task:"+taskID, "task.decomposed", map[string]any{
			"task_id": taskID, "subtask_count": result.SubtaskCount, "queued_count": result.QueuedCount,
			"used_fallback": usedFallback,
		})
	}

	return &DecomposeResult{SubtaskCount: result.SubtaskCount, QueuedCount: result.QueuedCount, UsedFallback: usedFallback}, nil
}

// decomposeViaProvider calls the sampling provider and returns its
// decomposition, or the deterministic fallback (one subtask = the project
// itself, specialist=general) if the call or its schema validation fails.
func (c *Coordinator) decomposeViaProvider(ctx context.Context, prompt, text string) ([]sampling.DecomposeSubtask, bool) {
	raw, err := c.sampler.Complete(ctx, sampling.PhaseDecompose, prompt)
	if err != nil {
		return fallbackDecomposition(text), true
	}

	var resp sampling.DecomposeResponse
	if err := sampling.DecodeJSON(raw, &resp); err != nil {
		return fallbackDecomposition(text), true
	}
	if err := resp.Validate(); err != nil {
		return fallbackDecomposition(text), true
	}

	graph := NewGraph(toNodes(resp.Subtasks))
	if cyclic := graph.CyclicMembers(); len(cyclic) == len(resp.Subtasks) {
		// The whole decomposition is one cycle; nothing would ever queue.
		// Fall back rather than install a graph that can never progress.
		return fallbackDecomposition(text), true
	}

	return resp.Subtasks, false
}

func toNodes(subtasks []sampling.DecomposeSubtask) []Node {
	nodes := make([]Node, 0, len(subtasks))
	for _, st := range subtasks {
		nodes = append(nodes, Node{ID: st.ID, Dependencies: st.Dependencies})
	}
	return nodes
}

func fallbackDecomposition(text string) []sampling.DecomposeSubtask {
	return []sampling.DecomposeSubtask{{
		ID:               "root",
		Description:      text,
		Kind:             string(swarmtypes.KindGeneral),
		Complexity:       1,
		EstimatedMinutes: 0,
		Priority:         0,
		Dependencies:     nil,
	}}
}

func (c *Coordinator) poolSnapshot(ctx context.Context) ([]sampling.SpecialistSnapshot, error) {
	all, err := c.instances.List(ctx)
	if err != nil {
		return nil, err
	}
	byRole := map[string]*sampling.SpecialistSnapshot{}
	for _, inst := range all {
		if inst.Status == swarmtypes.InstanceOffline {
			continue
		}
		free := inst.MaxLoad - inst.CurrentLoad
		if free <= 0 {
			continue
		}
		for _, role := range inst.Roles {
			snap, ok := byRole[role]
			if !ok {
				snap = &sampling.SpecialistSnapshot{Kind: role}
				byRole[role] = snap
			}
			snap.Capabilities = mergeUnique(snap.Capabilities, inst.Capabilities)
			snap.Available += free
		}
	}
	out := make([]sampling.SpecialistSnapshot, 0, len(byRole))
	for _, snap := range byRole {
		out = append(out, *snap)
	}
	return out, nil
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a))
	for _, v := range a {
		seen[v] = true
	}
	out := append([]string(nil), a...)
	for _, v := range b {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// Context produces the per-subtask execution brief, generated once per
// subtask and cached as an attachment keyed `context_{subtaskId}` on the
// parent task (spec.md §4.6). A cache hit skips the sampling call entirely.
func (c *Coordinator) Context(ctx context.Context, subtaskID, specialist, parentTaskID, description string) (*sampling.ContextBrief, error) {
	attKey := "context_" + subtaskID
	if existing, err := c.store.GetAttachment(ctx, parentTaskID, attKey); err == nil && existing != nil {
		var brief sampling.ContextBrief
		if err := sampling.DecodeJSON(existing.Content, &brief); err == nil {
			return &brief, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	req := sampling.ContextRequest{SubtaskID: subtaskID, ParentTaskID: parentTaskID, Specialist: specialist, Description: description}
	prompt, err := render(contextTmpl, req)
	if err != nil {
		return nil, fmt.Errorf("render context prompt: %w", err)
	}

	raw, err := c.sampler.Complete(ctx, sampling.PhaseContext, prompt)
	if err != nil {
		return fallbackContextBrief(description), nil
	}
	var brief sampling.ContextBrief
	if err := sampling.DecodeJSON(raw, &brief); err != nil {
		return fallbackContextBrief(description), nil
	}

	if err := c.store.PutAttachment(ctx, swarmtypes.Attachment{
		TaskID: parentTaskID, Key: attKey, Type: swarmtypes.AttachmentJSON, Content: raw,
	}); err != nil {
		return nil, fmt.Errorf("cache context brief: %w", err)
	}

	return &brief, nil
}

func fallbackContextBrief(description string) *sampling.ContextBrief {
	return &sampling.ContextBrief{
		Scope:           description,
		SuccessCriteria: []string{"subtask description is satisfied"},
	}
}

// Resolve invokes the sampling provider to choose among a conflict's
// proposals, writes the chosen proposal into the subtask record, emits
// `conflict.resolved`, and notifies losing specialists via a per-specialist
// conflict subject so they can subscribe to only their own outcomes
// (SPEC_FULL.md §5.3).
func (c *Coordinator) Resolve(ctx context.Context, taskID, subtaskID, conflictID string, proposals []swarmtypes.Proposal) (*sampling.ResolveResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	solutions := make([]sampling.ResolveProposal, 0, len(proposals))
	for _, p := range proposals {
		solutions = append(solutions, sampling.ResolveProposal{
			InstanceID: p.InstanceID, Approach: p.Approach, Reasoning: p.Reasoning, Code: p.Code,
		})
	}
	req := sampling.ResolveRequest{ConflictID: conflictID, Solutions: solutions, Context: fmt.Sprintf("task=%s subtask=%s", taskID, subtaskID)}
	prompt, err := render(resolveTmpl, req)
	if err != nil {
		return nil, fmt.Errorf("render resolve prompt: %w", err)
	}

	resp := resolveViaProvider(ctx, c.sampler, prompt, len(proposals))

	chosen := proposals[resp.ChosenIndex]
	if err := c.store.Client().HSet(ctx, store.SubtaskKey(taskID, subtaskID),
		"output", chosen.Code,
		"resolved_by", chosen.InstanceID,
	).Err(); err != nil {
		return nil, fmt.Errorf("write resolved proposal: %w", err)
	}

	if c.bus != nil {
		eventID := uuid.NewString()
		_, _ = c.bus.Publish(ctx, "task:"+taskID, "conflict.resolved", map[string]any{
			"event_id": eventID, "conflict_id": conflictID, "subtask_id": subtaskID,
			"chosen_index": resp.ChosenIndex, "rationale": resp.Rationale,
		})
		for i, p := range proposals {
			if i == resp.ChosenIndex {
				continue
			}
			_, _ = c.bus.Publish(ctx, "conflicts:"+p.InstanceID, "conflict.resolved", map[string]any{
				"conflict_id": conflictID, "subtask_id": subtaskID, "won": false,
			})
		}
	}

	return resp, nil
}

func resolveViaProvider(ctx context.Context, sampler *sampling.Client, prompt string, n int) *sampling.ResolveResponse {
	raw, err := sampler.Complete(ctx, sampling.PhaseResolve, prompt)
	if err == nil {
		var resp sampling.ResolveResponse
		if err := sampling.DecodeJSON(raw, &resp); err == nil && resp.Validate(n) == nil {
			return &resp
		}
	}
	return &sampling.ResolveResponse{ChosenIndex: 0, Rationale: "fallback: provider unavailable, first proposal chosen"}
}

// Synthesize runs when readyForSynthesis is true: produces an integration
// report, writes it as an attachment on the parent task, and emits
// `task.synthesized` (spec.md §4.6).
func (c *Coordinator) Synthesize(ctx context.Context, taskID, parentText string, completed []sampling.CompletedSubtask) (*sampling.SynthesizeResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	req := sampling.SynthesizeRequest{TaskID: taskID, ParentText: parentText, CompletedSubtasks: completed}
	prompt, err := render(synthesizeTmpl, req)
	if err != nil {
		return nil, fmt.Errorf("render synthesize prompt: %w", err)
	}

	resp := synthesizeViaProvider(ctx, c.sampler, prompt)

	rawBytes, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis report: %w", err)
	}
	raw := string(rawBytes)
	if err := c.store.PutAttachment(ctx, swarmtypes.Attachment{
		TaskID: taskID, Key: "synthesis_report", Type: swarmtypes.AttachmentJSON, Content: raw,
	}); err != nil {
		return nil, fmt.Errorf("store synthesis report: %w", err)
	}

	if c.bus != nil {
		_, _ = c.bus.Publish(ctx, "task:"+taskID, "task.synthesized", map[string]any{
			"task_id": taskID, "status": resp.Status,
		})
	}

	return resp, nil
}

func synthesizeViaProvider(ctx context.Context, sampler *sampling.Client, prompt string) *sampling.SynthesizeResponse {
	raw, err := sampler.Complete(ctx, sampling.PhaseSynthesize, prompt)
	if err == nil {
		var resp sampling.SynthesizeResponse
		if err := sampling.DecodeJSON(raw, &resp); err == nil && resp.Validate() == nil {
			return &resp
		}
	}
	return &sampling.SynthesizeResponse{
		Status:           sampling.IntegrationNeedsFix,
		IntegrationSteps: []string{"sampling provider unavailable: manual integration review required"},
	}
}
