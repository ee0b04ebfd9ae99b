package types

import "time"

// IntentStatus is the lifecycle tag of a swap intent.
type IntentStatus string

const (
	IntentActive    IntentStatus = "active"
	IntentReserved  IntentStatus = "reserved"
	IntentCancelled IntentStatus = "cancelled"
)

// Valid reports whether the status is a supported tag.
func (s IntentStatus) Valid() bool {
	switch s {
	case IntentActive, IntentReserved, IntentCancelled:
		return true
	default:
		return false
	}
}

// ValueBand bounds the acceptable USD value of what an intent receives.
type ValueBand struct {
	MinUSD        float64 `json:"min_usd"`
	MaxUSD        float64 `json:"max_usd"`
	PricingSource string  `json:"pricing_source,omitempty"`
}

// Contains reports whether v lies within the band; non-positive bounds are
// treated as open.
func (b ValueBand) Contains(v float64) bool {
	if b.MinUSD > 0 && v < b.MinUSD {
		return false
	}
	if b.MaxUSD > 0 && v > b.MaxUSD {
		return false
	}
	return true
}

// TrustConstraints limit which cycles an intent may join.
type TrustConstraints struct {
	MaxCycleLength             int     `json:"max_cycle_length"`
	MinCounterpartyReliability float64 `json:"min_counterparty_reliability,omitempty"`
}

// TimeConstraints bound the intent's lifetime.
type TimeConstraints struct {
	ExpiresAt string `json:"expires_at"`
	Urgency   string `json:"urgency,omitempty"`
}

// SettlementPreferences carries per-intent settlement requirements.
type SettlementPreferences struct {
	RequireEscrow bool `json:"require_escrow"`
}

// SwapIntent is a standing offer-and-want declaration by one actor.
type SwapIntent struct {
	ID                    string                `json:"id"`
	Actor                 Actor                 `json:"actor"`
	Offer                 []Asset               `json:"offer"`
	WantSpec              WantSpec              `json:"want_spec"`
	ValueBand             ValueBand             `json:"value_band"`
	TrustConstraints      TrustConstraints      `json:"trust_constraints"`
	TimeConstraints       TimeConstraints       `json:"time_constraints"`
	SettlementPreferences SettlementPreferences `json:"settlement_preferences"`
	Status                IntentStatus          `json:"status"`
	CreatedAt             string                `json:"created_at"`
	UpdatedAt             string                `json:"updated_at"`
}

// Clone deep-copies the intent.
func (i *SwapIntent) Clone() *SwapIntent {
	if i == nil {
		return nil
	}
	clone := *i
	clone.Offer = CloneAssets(i.Offer)
	return &clone
}

// Matchable reports whether the intent may contribute edges to the
// compatibility graph at the given instant: status active and not expired.
func (i *SwapIntent) Matchable(now time.Time) bool {
	if i == nil || i.Status != IntentActive {
		return false
	}
	if i.TimeConstraints.ExpiresAt != "" {
		exp, err := ParseTime(i.TimeConstraints.ExpiresAt)
		if err == nil && now.After(exp) {
			return false
		}
	}
	return true
}

// ActiveMaxUSD is the intent's contribution to the daily value cap: the
// band's max_usd while the intent is not cancelled, zero otherwise.
func (i *SwapIntent) ActiveMaxUSD() float64 {
	if i == nil || i.Status == IntentCancelled {
		return 0
	}
	return i.ValueBand.MaxUSD
}
