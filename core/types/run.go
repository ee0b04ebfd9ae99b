package types

// SelectionOutcome records why a candidate proposal was or was not selected
// during disjoint selection.
type SelectionOutcome string

const (
	SelectionSelected SelectionOutcome = "selected"
	SelectionConflict SelectionOutcome = "conflict_shared_intent"
)

// SelectionTrace is one entry of the deterministic selection trace.
type SelectionTrace struct {
	ProposalID string           `json:"proposal_id"`
	Outcome    SelectionOutcome `json:"outcome"`
}

// RunDiagnostics reports enumeration budget outcomes for a matching run.
type RunDiagnostics struct {
	CycleEnumerationLimited  bool `json:"cycle_enumeration_limited,omitempty"`
	CycleEnumerationTimedOut bool `json:"cycle_enumeration_timed_out,omitempty"`
	CyclesEnumerated         int  `json:"cycles_enumerated"`
	CandidatesScored         int  `json:"candidates_scored"`
}

// MatchingRun is one batch of proposals produced for a requesting actor.
// A later run for the same partner replaces the earlier batch: still-open
// proposals of the prior run are cancelled.
type MatchingRun struct {
	RunID       string           `json:"run_id"`
	PartnerID   string           `json:"partner_id,omitempty"`
	RequestedBy Actor            `json:"requested_by"`
	ProposalIDs []string         `json:"proposal_ids"`
	Trace       []SelectionTrace `json:"trace,omitempty"`
	Diagnostics RunDiagnostics   `json:"diagnostics"`
	CreatedAt   string           `json:"created_at"`
}

// Clone copies the run record.
func (r *MatchingRun) Clone() *MatchingRun {
	if r == nil {
		return nil
	}
	clone := *r
	clone.ProposalIDs = append([]string(nil), r.ProposalIDs...)
	clone.Trace = append([]SelectionTrace(nil), r.Trace...)
	return &clone
}
