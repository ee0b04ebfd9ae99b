package types

// HoldingStatus is the vault holding lifecycle tag.
type HoldingStatus string

const (
	HoldingAvailable HoldingStatus = "available"
	HoldingReserved  HoldingStatus = "reserved"
	HoldingWithdrawn HoldingStatus = "withdrawn"
)

// VaultHolding is a pre-deposited asset the settlement machine may bind to
// a leg in place of a manual deposit.
type VaultHolding struct {
	HoldingID         string        `json:"holding_id"`
	VaultID           string        `json:"vault_id"`
	Asset             Asset         `json:"asset"`
	OwnerActor        Actor         `json:"owner_actor"`
	Status            HoldingStatus `json:"status"`
	ReservationID     string        `json:"reservation_id,omitempty"`
	SettlementCycleID string        `json:"settlement_cycle_id,omitempty"`
	DepositedAt       string        `json:"deposited_at"`
	WithdrawnAt       string        `json:"withdrawn_at,omitempty"`
	UpdatedAt         string        `json:"updated_at"`
}

// Clone copies the holding.
func (h *VaultHolding) Clone() *VaultHolding {
	if h == nil {
		return nil
	}
	clone := *h
	if h.Asset.Metadata != nil {
		md := make(map[string]string, len(h.Asset.Metadata))
		for k, v := range h.Asset.Metadata {
			md[k] = v
		}
		clone.Asset.Metadata = md
	}
	return &clone
}
