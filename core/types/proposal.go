package types

// ProposalStatus tracks a proposal through the commit pipeline.
type ProposalStatus string

const (
	ProposalOpen      ProposalStatus = "open"
	ProposalCommitted ProposalStatus = "committed"
	ProposalCancelled ProposalStatus = "cancelled"
)

// ProposalParticipant is one position in a cycle: the intent gives its own
// offer and gets the successor's offer.
type ProposalParticipant struct {
	IntentID string  `json:"intent_id"`
	Actor    Actor   `json:"actor"`
	Give     []Asset `json:"give"`
	Get      []Asset `json:"get"`
}

// FeeEntry is the platform fee charged against one participant's received
// value.
type FeeEntry struct {
	IntentID  string  `json:"intent_id"`
	AmountUSD float64 `json:"amount_usd"`
	Basis     string  `json:"basis,omitempty"`
}

// Explainability carries the scoring inputs surfaced alongside a proposal.
type Explainability struct {
	CycleLength   int      `json:"cycle_length"`
	BaseScore     float64  `json:"base_score"`
	ValueSpread   float64  `json:"value_spread"`
	GetValuesUSD  []float64 `json:"get_values_usd"`
	Notes         []string `json:"notes,omitempty"`
}

// CycleProposal packages one discovered cycle with its score and fees.
// Participants are in cycle order: participants[i].Get equals
// participants[(i+1) mod N].Give as asset sequences.
type CycleProposal struct {
	ID              string                `json:"id"`
	RunID           string                `json:"run_id,omitempty"`
	ExpiresAt       string                `json:"expires_at"`
	Participants    []ProposalParticipant `json:"participants"`
	ConfidenceScore float64               `json:"confidence_score"`
	ValueSpread     float64               `json:"value_spread"`
	FeeBreakdown    []FeeEntry            `json:"fee_breakdown"`
	Explainability  *Explainability       `json:"explainability,omitempty"`
	Status          ProposalStatus        `json:"status"`
	CreatedAt       string                `json:"created_at"`
}

// Clone deep-copies the proposal.
func (p *CycleProposal) Clone() *CycleProposal {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Participants = make([]ProposalParticipant, len(p.Participants))
	for i, part := range p.Participants {
		clone.Participants[i] = part
		clone.Participants[i].Give = CloneAssets(part.Give)
		clone.Participants[i].Get = CloneAssets(part.Get)
	}
	clone.FeeBreakdown = append([]FeeEntry(nil), p.FeeBreakdown...)
	if p.Explainability != nil {
		exp := *p.Explainability
		exp.GetValuesUSD = append([]float64(nil), p.Explainability.GetValuesUSD...)
		exp.Notes = append([]string(nil), p.Explainability.Notes...)
		clone.Explainability = &exp
	}
	return &clone
}

// IntentIDs lists the participant intent ids in cycle order.
func (p *CycleProposal) IntentIDs() []string {
	ids := make([]string, len(p.Participants))
	for i, part := range p.Participants {
		ids[i] = part.IntentID
	}
	return ids
}

// ParticipantByIntent returns the participant entry for an intent id.
func (p *CycleProposal) ParticipantByIntent(intentID string) (ProposalParticipant, bool) {
	for _, part := range p.Participants {
		if part.IntentID == intentID {
			return part, true
		}
	}
	return ProposalParticipant{}, false
}
