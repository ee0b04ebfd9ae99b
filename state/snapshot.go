package state

import "swapring/core/types"

// Snapshot is the single durable state object. Every entity family lives
// here; engines receive the snapshot from the writer and replace records
// under their ids rather than mutating them in place.
type Snapshot struct {
	Intents       map[string]*types.SwapIntent        `json:"intents"`
	Proposals     map[string]*types.CycleProposal     `json:"proposals"`
	Commits       map[string]*types.Commit            `json:"commits"`
	Reservations  map[string]*types.Reservation       `json:"reservations"`
	Timelines     map[string]*types.Timeline          `json:"timelines"`
	Receipts      map[string]*types.Receipt           `json:"receipts"`
	Delegations   map[string]*types.Delegation        `json:"delegations"`
	Tenancy       types.Tenancy                       `json:"tenancy"`
	Events        []*types.Event                      `json:"events"`
	Idempotency   map[string]*types.IdempotencyRecord `json:"idempotency"`
	VaultHoldings map[string]*types.VaultHolding      `json:"vault_holdings"`
	VaultEvents   []*types.Event                      `json:"vault_events"`

	PolicySpendDaily    map[string]map[string]float64 `json:"policy_spend_daily"`
	PolicyConsentReplay map[string]string             `json:"policy_consent_replay"`

	Delivery DeliveryState `json:"delivery"`

	MatchingRuns       map[string]*types.MatchingRun `json:"matching_runs"`
	LatestRunByPartner map[string]string             `json:"latest_run_by_partner"`
}

// DeliveryState tracks webhook ingestion dedup.
type DeliveryState struct {
	WebhookSeenEventIDs map[string]string `json:"webhook_seen_event_ids"`
}

// NewSnapshot returns an empty snapshot with all families allocated.
func NewSnapshot() *Snapshot {
	snap := &Snapshot{}
	snap.ensure()
	return snap
}

func (s *Snapshot) ensure() {
	if s.Intents == nil {
		s.Intents = make(map[string]*types.SwapIntent)
	}
	if s.Proposals == nil {
		s.Proposals = make(map[string]*types.CycleProposal)
	}
	if s.Commits == nil {
		s.Commits = make(map[string]*types.Commit)
	}
	if s.Reservations == nil {
		s.Reservations = make(map[string]*types.Reservation)
	}
	if s.Timelines == nil {
		s.Timelines = make(map[string]*types.Timeline)
	}
	if s.Receipts == nil {
		s.Receipts = make(map[string]*types.Receipt)
	}
	if s.Delegations == nil {
		s.Delegations = make(map[string]*types.Delegation)
	}
	if s.Tenancy.Cycles == nil {
		s.Tenancy.Cycles = make(map[string]types.TenancyRecord)
	}
	if s.Tenancy.Proposals == nil {
		s.Tenancy.Proposals = make(map[string]types.TenancyRecord)
	}
	if s.Events == nil {
		s.Events = []*types.Event{}
	}
	if s.Idempotency == nil {
		s.Idempotency = make(map[string]*types.IdempotencyRecord)
	}
	if s.VaultHoldings == nil {
		s.VaultHoldings = make(map[string]*types.VaultHolding)
	}
	if s.VaultEvents == nil {
		s.VaultEvents = []*types.Event{}
	}
	if s.PolicySpendDaily == nil {
		s.PolicySpendDaily = make(map[string]map[string]float64)
	}
	if s.PolicyConsentReplay == nil {
		s.PolicyConsentReplay = make(map[string]string)
	}
	if s.Delivery.WebhookSeenEventIDs == nil {
		s.Delivery.WebhookSeenEventIDs = make(map[string]string)
	}
	if s.MatchingRuns == nil {
		s.MatchingRuns = make(map[string]*types.MatchingRun)
	}
	if s.LatestRunByPartner == nil {
		s.LatestRunByPartner = make(map[string]string)
	}
}

// AppendEvent appends to the main event log.
func (s *Snapshot) AppendEvent(evt *types.Event) {
	if evt != nil {
		s.Events = append(s.Events, evt)
	}
}

// AppendVaultEvent appends to the vault event log.
func (s *Snapshot) AppendVaultEvent(evt *types.Event) {
	if evt != nil {
		s.VaultEvents = append(s.VaultEvents, evt)
	}
}
