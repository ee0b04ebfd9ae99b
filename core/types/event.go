package types

import "swapring/crypto"

// Event type identifiers appended by the engine. Webhook ingestion accepts
// the same envelope shape from partners.
const (
	EventProposalCreated     = "proposal.created"
	EventProposalExpiring    = "proposal.expiring"
	EventCycleStateChanged   = "cycle.state_changed"
	EventDepositRequired     = "settlement.deposit_required"
	EventDepositConfirmed    = "settlement.deposit_confirmed"
	EventSettlementExecuting = "settlement.executing"
	EventIntentUnreserved    = "intent.unreserved"
	EventReceiptCreated      = "receipt.created"

	EventVaultDepositConfirmed = "vault.deposit_confirmed"
	EventVaultHoldingReserved  = "vault.holding_reserved"
	EventVaultHoldingReleased  = "vault.holding_released"
	EventVaultHoldingWithdrawn = "vault.holding_withdrawn"
)

// Event is the signed envelope appended to the event log on every state
// transition. EventID is deterministic over `type|correlation_id|key` where
// key is type-specific; the signature covers the canonical envelope with the
// signature field stripped.
type Event struct {
	EventID       string                 `json:"event_id"`
	Type          string                 `json:"type"`
	OccurredAt    string                 `json:"occurred_at"`
	CorrelationID string                 `json:"correlation_id"`
	Actor         Actor                  `json:"actor"`
	Payload       map[string]interface{} `json:"payload,omitempty"`
	Signature     *crypto.Signature      `json:"signature,omitempty"`
}

// Clone deep-copies the event envelope one level down; payload values are
// shared since events are never mutated after append.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	clone := *e
	if e.Payload != nil {
		p := make(map[string]interface{}, len(e.Payload))
		for k, v := range e.Payload {
			p[k] = v
		}
		clone.Payload = p
	}
	if e.Signature != nil {
		sig := *e.Signature
		clone.Signature = &sig
	}
	return &clone
}
