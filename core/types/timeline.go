package types

// TimelineState is the settlement state machine tag for one cycle.
type TimelineState string

const (
	StateEscrowPending TimelineState = "escrow.pending"
	StateEscrowReady   TimelineState = "escrow.ready"
	StateExecuting     TimelineState = "executing"
	StateCompleted     TimelineState = "completed"
	StateFailed        TimelineState = "failed"
)

// Terminal reports whether the state is write-once terminal.
func (s TimelineState) Terminal() bool { return s == StateCompleted || s == StateFailed }

// LegStatus is the per-leg deposit lifecycle tag.
type LegStatus string

const (
	LegPending   LegStatus = "pending"
	LegDeposited LegStatus = "deposited"
	LegReleased  LegStatus = "released"
	LegRefunded  LegStatus = "refunded"
)

// DepositMode distinguishes manual deposits from vault-bound ones.
type DepositMode string

const (
	DepositManual DepositMode = "manual"
	DepositVault  DepositMode = "vault"
)

// Leg is one delivery edge of a settling cycle: leg i carries participant
// i's assets to the predecessor participant (i-1 mod N).
type Leg struct {
	LegID              string      `json:"leg_id"`
	IntentID           string      `json:"intent_id"`
	FromActor          Actor       `json:"from_actor"`
	ToActor            Actor       `json:"to_actor"`
	Assets             []Asset     `json:"assets"`
	Status             LegStatus   `json:"status"`
	DepositDeadlineAt  string      `json:"deposit_deadline_at"`
	DepositMode        DepositMode `json:"deposit_mode,omitempty"`
	DepositRef         string      `json:"deposit_ref,omitempty"`
	VaultHoldingID     string      `json:"vault_holding_id,omitempty"`
	VaultReservationID string      `json:"vault_reservation_id,omitempty"`
	DepositedAt        string      `json:"deposited_at,omitempty"`
	ReleasedAt         string      `json:"released_at,omitempty"`
	RefundedAt         string      `json:"refunded_at,omitempty"`
}

// Timeline is the per-cycle settlement record.
type Timeline struct {
	CycleID    string        `json:"cycle_id"`
	State      TimelineState `json:"state"`
	Legs       []Leg         `json:"legs"`
	ReasonCode string        `json:"reason_code,omitempty"`
	UpdatedAt  string        `json:"updated_at"`
}

// Clone deep-copies the timeline.
func (t *Timeline) Clone() *Timeline {
	if t == nil {
		return nil
	}
	clone := *t
	clone.Legs = make([]Leg, len(t.Legs))
	for i, leg := range t.Legs {
		clone.Legs[i] = leg
		clone.Legs[i].Assets = CloneAssets(leg.Assets)
	}
	return &clone
}

// AllLegsDeposited reports whether every leg has reached `deposited`.
func (t *Timeline) AllLegsDeposited() bool {
	for _, leg := range t.Legs {
		if leg.Status != LegDeposited {
			return false
		}
	}
	return len(t.Legs) > 0
}

// LegByIntent locates the leg for a participant intent.
func (t *Timeline) LegByIntent(intentID string) (int, bool) {
	for i, leg := range t.Legs {
		if leg.IntentID == intentID {
			return i, true
		}
	}
	return -1, false
}
