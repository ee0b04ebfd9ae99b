package types

// CommitPhase is the aggregation state of one proposal's accept/decline set.
type CommitPhase string

const (
	CommitPending   CommitPhase = "pending"
	CommitReady     CommitPhase = "ready"
	CommitCancelled CommitPhase = "cancelled"
)

// Commit tracks accept/decline decisions for one proposal. It reaches
// `ready` iff every participant intent accepted and none declined; a single
// decline cancels it permanently.
type Commit struct {
	ProposalID string            `json:"proposal_id"`
	Phase      CommitPhase       `json:"phase"`
	Accepted   map[string]string `json:"accepted,omitempty"`
	Declined   map[string]string `json:"declined,omitempty"`
	UpdatedAt  string            `json:"updated_at"`
}

// Clone deep-copies the commit.
func (c *Commit) Clone() *Commit {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Accepted = cloneStringMap(c.Accepted)
	clone.Declined = cloneStringMap(c.Declined)
	return &clone
}

// Unanimous reports whether every listed intent id has accepted and none
// declined.
func (c *Commit) Unanimous(intentIDs []string) bool {
	if c == nil || len(c.Declined) > 0 {
		return false
	}
	for _, id := range intentIDs {
		if _, ok := c.Accepted[id]; !ok {
			return false
		}
	}
	return true
}

// Reservation binds an intent to exactly one live cycle.
type Reservation struct {
	CycleID    string `json:"cycle_id"`
	ReservedAt string `json:"reserved_at"`
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
