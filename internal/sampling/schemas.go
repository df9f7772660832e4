package sampling

// DecomposeRequest is the structured prompt context for PhaseDecompose,
// matching spec.md §4.6's "project description and current specialist pool
// snapshot."
type DecomposeRequest struct {
	TaskID          string             `json:"task_id"`
	Text            string             `json:"text"`
	Priority        int                `json:"priority"`
	Constraints     []string           `json:"constraints,omitempty"`
	SpecialistPool  []SpecialistSnapshot `json:"specialist_pool"`
}

// SpecialistSnapshot is one pool member as surfaced to the provider, a
// routing hint rather than a capacity reservation.
type SpecialistSnapshot struct {
	Kind         string   `json:"kind"`
	Capabilities []string `json:"capabilities"`
	Available    int      `json:"available"`
}

// DecomposeSubtask is one subtask in a provider-returned decomposition.
type DecomposeSubtask struct {
	ID               string   `json:"id"`
	Description      string   `json:"description"`
	Kind             string   `json:"kind"`
	Complexity       int      `json:"complexity"`
	EstimatedMinutes int      `json:"estimated_minutes"`
	Priority         int      `json:"priority"`
	Dependencies     []string `json:"dependencies"`
}

// DecomposeResponse is the provider's structured decomposition, schema
// validated before being handed to decomposeAndStoreSubtasks.
type DecomposeResponse struct {
	Subtasks []DecomposeSubtask `json:"subtasks"`
}

// Validate reports whether r is well-formed enough to install: at least one
// subtask, every subtask carries an id, and every dependency refers to a
// sibling id declared in the same response (spec.md §3's "subtask ids are
// local to the parent decomposition").
func (r DecomposeResponse) Validate() error {
	if len(r.Subtasks) == 0 {
		return errEmptyDecomposition
	}
	ids := make(map[string]bool, len(r.Subtasks))
	for _, st := range r.Subtasks {
		if st.ID == "" {
			return errMissingSubtaskID
		}
		ids[st.ID] = true
	}
	for _, st := range r.Subtasks {
		for _, dep := range st.Dependencies {
			if !ids[dep] {
				return errUnknownDependency
			}
		}
	}
	return nil
}

// ContextRequest is the structured prompt context for PhaseContext.
type ContextRequest struct {
	SubtaskID    string `json:"subtask_id"`
	ParentTaskID string `json:"parent_task_id"`
	Specialist   string `json:"specialist"`
	Description  string `json:"description"`
}

// ContextBrief is the provider's per-subtask execution brief, cached as an
// attachment keyed `context_{subtaskId}` per spec.md §4.6.
type ContextBrief struct {
	Scope              string   `json:"scope"`
	MandatoryReadings  []string `json:"mandatory_readings"`
	ArchitectureNotes  []string `json:"architecture_constraints"`
	SuccessCriteria    []string `json:"success_criteria"`
	RelatedCompleted   []string `json:"related_completed_work"`
}

// ResolveRequest is the structured prompt context for PhaseResolve.
type ResolveRequest struct {
	ConflictID string            `json:"conflict_id"`
	Solutions  []ResolveProposal `json:"solutions"`
	Context    string            `json:"context"`
}

// ResolveProposal mirrors swarmtypes.Proposal for the provider request.
type ResolveProposal struct {
	InstanceID string `json:"instance_id"`
	Approach   string `json:"approach"`
	Reasoning  string `json:"reasoning"`
	Code       string `json:"code,omitempty"`
}

// ResolveResponse is the provider's chosen proposal plus rationale.
type ResolveResponse struct {
	ChosenIndex     int      `json:"chosen_index"`
	Rationale       string   `json:"rationale"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Validate reports whether the chosen index actually selects one of the n
// submitted proposals.
func (r ResolveResponse) Validate(n int) error {
	if r.ChosenIndex < 0 || r.ChosenIndex >= n {
		return errChosenIndexOutOfRange
	}
	return nil
}

// SynthesizeRequest is the structured prompt context for PhaseSynthesize.
type SynthesizeRequest struct {
	TaskID             string                `json:"task_id"`
	ParentText         string                `json:"parent_text"`
	CompletedSubtasks  []CompletedSubtask    `json:"completed_subtasks"`
}

// CompletedSubtask is one finished unit of work fed into synthesis.
type CompletedSubtask struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Output      string `json:"output"`
}

// IntegrationStatus enumerates swarm.synthesize's outcome, per spec.md §4.6.
type IntegrationStatus string

const (
	IntegrationReady    IntegrationStatus = "ready_for_integration"
	IntegrationNeedsFix IntegrationStatus = "requires_fixes"
	IntegrationDone     IntegrationStatus = "integrated"
)

// SynthesizeResponse is the provider's integration report.
type SynthesizeResponse struct {
	Status           IntegrationStatus `json:"status"`
	IntegrationSteps []string          `json:"integration_steps"`
	NextActions      []string          `json:"next_actions"`
}

// Validate reports whether status is one of the three recognized states.
func (r SynthesizeResponse) Validate() error {
	switch r.Status {
	case IntegrationReady, IntegrationNeedsFix, IntegrationDone:
		return nil
	default:
		return errUnknownIntegrationStatus
	}
}
