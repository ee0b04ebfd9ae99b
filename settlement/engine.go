// Package settlement drives the per-cycle state machine: escrow.pending
// collects leg deposits (manual or vault-bound), escrow.ready gates
// execution, and the terminal states are write-once with a signed receipt.
package settlement

import (
	"fmt"
	"time"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
	"swapring/state"
	"swapring/vault"
)

// Emit appends a signed event; the facade supplies the closure so events
// share the operation's correlation id and flush with the state mutation.
type Emit func(eventType, key string, payload map[string]interface{})

// VaultBinding pre-fulfils one leg from a reserved vault holding.
type VaultBinding struct {
	IntentID      string `json:"intent_id"`
	HoldingID     string `json:"holding_id"`
	ReservationID string `json:"reservation_id"`
}

// Engine owns settlement transitions and receipt signing.
type Engine struct {
	receiptRing *crypto.Ring
}

// NewEngine builds the settlement engine over the receipt signing ring.
func NewEngine(receiptRing *crypto.Ring) *Engine {
	return &Engine{receiptRing: receiptRing}
}

// Start moves an accepted cycle into escrow. Every vault binding must name
// a reserved holding owned by that leg's from-actor with a matching
// reservation id and an asset present in the leg; bindings are one-per-
// intent and one-per-holding. When every leg is bound the cycle jumps
// straight to escrow.ready.
func (e *Engine) Start(snap *state.Snapshot, proposalID string, bindings []VaultBinding, depositDeadlineAt string, now time.Time, emit Emit) (*types.Timeline, *errs.Error) {
	proposal, ok := snap.Proposals[proposalID]
	if !ok {
		return nil, errs.NotFound("proposal %s not found", proposalID)
	}
	record, ok := snap.Commits[proposalID]
	if !ok || record.Phase != types.CommitReady {
		return nil, errs.Conflict("commit for proposal %s is not ready", proposalID)
	}
	if _, exists := snap.Timelines[proposalID]; exists {
		return nil, errs.Conflict("cycle %s already started settlement", proposalID)
	}
	if depositDeadlineAt == "" {
		return nil, errs.SchemaInvalid("deposit_deadline_at is required")
	}
	if _, err := types.ParseTime(depositDeadlineAt); err != nil {
		return nil, errs.SchemaInvalid("deposit_deadline_at: %v", err)
	}

	nowISO := types.FormatTime(now)
	count := len(proposal.Participants)
	legs := make([]types.Leg, count)
	for i, participant := range proposal.Participants {
		predecessor := proposal.Participants[(i-1+count)%count]
		legs[i] = types.Leg{
			LegID:             fmt.Sprintf("leg_%s_%d", proposalID, i),
			IntentID:          participant.IntentID,
			FromActor:         participant.Actor,
			ToActor:           predecessor.Actor,
			Assets:            types.CloneAssets(participant.Give),
			Status:            types.LegPending,
			DepositDeadlineAt: depositDeadlineAt,
			DepositMode:       types.DepositManual,
		}
	}
	timeline := &types.Timeline{
		CycleID:   proposalID,
		State:     types.StateEscrowPending,
		Legs:      legs,
		UpdatedAt: nowISO,
	}

	emit(types.EventCycleStateChanged, transitionKey("accepted", types.StateEscrowPending), map[string]interface{}{
		"cycle_id":   proposalID,
		"from_state": "accepted",
		"to_state":   string(types.StateEscrowPending),
	})
	if err := e.applyBindings(snap, timeline, bindings, nowISO, emit); err != nil {
		return nil, err
	}
	snap.Timelines[proposalID] = timeline

	for _, leg := range timeline.Legs {
		if leg.Status == types.LegPending {
			emit(types.EventDepositRequired, leg.IntentID, map[string]interface{}{
				"cycle_id":            proposalID,
				"intent_id":           leg.IntentID,
				"deposit_deadline_at": leg.DepositDeadlineAt,
			})
		}
	}
	if timeline.AllLegsDeposited() {
		e.toEscrowReady(timeline, nowISO, emit)
	}
	return timeline.Clone(), nil
}

func (e *Engine) applyBindings(snap *state.Snapshot, timeline *types.Timeline, bindings []VaultBinding, nowISO string, emit Emit) *errs.Error {
	seenIntents := make(map[string]bool)
	seenHoldings := make(map[string]bool)
	for _, binding := range bindings {
		if seenIntents[binding.IntentID] {
			return errs.ConstraintViolation("duplicate vault binding for intent %s", binding.IntentID)
		}
		if seenHoldings[binding.HoldingID] {
			return errs.ConstraintViolation("duplicate vault binding for holding %s", binding.HoldingID)
		}
		seenIntents[binding.IntentID] = true
		seenHoldings[binding.HoldingID] = true

		idx, ok := timeline.LegByIntent(binding.IntentID)
		if !ok {
			return errs.ConstraintViolation("vault binding names intent %s outside the cycle", binding.IntentID)
		}
		leg := &timeline.Legs[idx]
		holding, ok := snap.VaultHoldings[binding.HoldingID]
		if !ok {
			return errs.NotFound("holding %s not found", binding.HoldingID)
		}
		if holding.Status != types.HoldingReserved {
			return errs.Conflict("holding %s is %s, not reserved", binding.HoldingID, holding.Status)
		}
		if !holding.OwnerActor.Equal(leg.FromActor) {
			return errs.Forbidden("holding %s is not owned by the leg's from-actor", binding.HoldingID)
		}
		if holding.ReservationID != binding.ReservationID {
			return errs.Conflict("reservation id does not match holding %s", binding.HoldingID)
		}
		if !assetInLeg(leg.Assets, holding.Asset) {
			return errs.ConstraintViolation("holding %s asset is not part of the leg", binding.HoldingID)
		}

		leg.Status = types.LegDeposited
		leg.DepositMode = types.DepositVault
		leg.DepositRef = fmt.Sprintf("vault:%s:%s", binding.HoldingID, binding.ReservationID)
		leg.VaultHoldingID = binding.HoldingID
		leg.VaultReservationID = binding.ReservationID
		leg.DepositedAt = nowISO
		vault.BindToCycle(snap, binding.HoldingID, timeline.CycleID, nowISO)
		emit(types.EventDepositConfirmed, depositKey(leg.IntentID, leg.DepositRef), map[string]interface{}{
			"cycle_id":     timeline.CycleID,
			"intent_id":    leg.IntentID,
			"deposit_mode": string(types.DepositVault),
			"deposit_ref":  leg.DepositRef,
		})
	}
	return nil
}

// ConfirmDeposit applies a manual deposit to the caller's leg. Replays with
// the identical deposit_ref are idempotent; a conflicting ref is rejected.
func (e *Engine) ConfirmDeposit(snap *state.Snapshot, cycleID, intentID, depositRef string, caller types.Actor, delegation *types.Delegation, now time.Time, emit Emit) (*types.Timeline, *errs.Error) {
	timeline, err := e.lookup(snap, cycleID)
	if err != nil {
		return nil, err
	}
	if timeline.State != types.StateEscrowPending {
		return nil, errs.Conflict("cycle %s is %s; deposits apply in %s", cycleID, timeline.State, types.StateEscrowPending)
	}
	if depositRef == "" {
		return nil, errs.SchemaInvalid("deposit_ref is required")
	}
	next := timeline.Clone()
	idx, ok := next.LegByIntent(intentID)
	if !ok {
		return nil, errs.NotFound("cycle %s has no leg for intent %s", cycleID, intentID)
	}
	leg := &next.Legs[idx]
	if !leg.FromActor.Equal(caller) {
		if caller.Type != types.ActorAgent || delegation == nil || !delegation.SubjectActor.Equal(leg.FromActor) {
			return nil, errs.Forbidden("caller does not own leg %s", leg.LegID)
		}
	}
	if leg.DepositMode == types.DepositVault {
		return nil, errs.Conflict("leg %s is vault-bound; manual deposits do not apply", leg.LegID)
	}
	if leg.Status == types.LegDeposited {
		if leg.DepositRef == depositRef {
			return timeline.Clone(), nil
		}
		return nil, errs.Conflict("leg %s already deposited with a different reference", leg.LegID).
			WithDetail("deposit_ref", leg.DepositRef)
	}
	if leg.Status != types.LegPending {
		return nil, errs.Conflict("leg %s is %s, not pending", leg.LegID, leg.Status)
	}

	nowISO := types.FormatTime(now)
	leg.Status = types.LegDeposited
	leg.DepositRef = depositRef
	leg.DepositedAt = nowISO
	next.UpdatedAt = nowISO
	snap.Timelines[cycleID] = next

	emit(types.EventDepositConfirmed, depositKey(intentID, depositRef), map[string]interface{}{
		"cycle_id":     cycleID,
		"intent_id":    intentID,
		"deposit_mode": string(types.DepositManual),
		"deposit_ref":  depositRef,
	})
	if next.AllLegsDeposited() {
		e.toEscrowReady(next, nowISO, emit)
	}
	return next.Clone(), nil
}

// BeginExecution moves escrow.ready into executing.
func (e *Engine) BeginExecution(snap *state.Snapshot, cycleID string, now time.Time, emit Emit) (*types.Timeline, *errs.Error) {
	timeline, err := e.lookup(snap, cycleID)
	if err != nil {
		return nil, err
	}
	if timeline.State != types.StateEscrowReady {
		return nil, errs.Conflict("cycle %s is %s; execution requires %s", cycleID, timeline.State, types.StateEscrowReady)
	}
	nowISO := types.FormatTime(now)
	next := timeline.Clone()
	next.State = types.StateExecuting
	next.UpdatedAt = nowISO
	snap.Timelines[cycleID] = next

	emit(types.EventCycleStateChanged, transitionKey(types.StateEscrowReady, types.StateExecuting), map[string]interface{}{
		"cycle_id":   cycleID,
		"from_state": string(types.StateEscrowReady),
		"to_state":   string(types.StateExecuting),
	})
	emit(types.EventSettlementExecuting, cycleID, map[string]interface{}{"cycle_id": cycleID})
	return next.Clone(), nil
}

// Complete finishes an executing cycle: every leg releases, reservations
// drop, vault-bound holdings are consumed, and the signed completed receipt
// is appended.
func (e *Engine) Complete(snap *state.Snapshot, cycleID string, now time.Time, emit Emit) (*types.Timeline, *types.Receipt, *errs.Error) {
	timeline, err := e.lookup(snap, cycleID)
	if err != nil {
		return nil, nil, err
	}
	if timeline.State != types.StateExecuting {
		return nil, nil, errs.Conflict("cycle %s is %s; completion requires %s", cycleID, timeline.State, types.StateExecuting)
	}
	if !timeline.AllLegsDeposited() {
		return nil, nil, errs.Conflict("cycle %s has undeposited legs", cycleID)
	}
	proposal, ok := snap.Proposals[cycleID]
	if !ok {
		return nil, nil, errs.NotFound("proposal %s not found", cycleID)
	}

	nowISO := types.FormatTime(now)
	next := timeline.Clone()
	for i := range next.Legs {
		next.Legs[i].Status = types.LegReleased
		next.Legs[i].ReleasedAt = nowISO
		if next.Legs[i].VaultHoldingID != "" {
			vault.MarkWithdrawn(snap, next.Legs[i].VaultHoldingID, nowISO)
			emit(types.EventVaultHoldingWithdrawn, next.Legs[i].VaultHoldingID, map[string]interface{}{
				"holding_id": next.Legs[i].VaultHoldingID,
				"cycle_id":   cycleID,
			})
		}
	}
	next.State = types.StateCompleted
	next.UpdatedAt = nowISO
	snap.Timelines[cycleID] = next

	e.settleIntents(snap, proposal, nowISO, true, emit)

	receipt, buildErr := buildReceipt(e.receiptRing, proposal, cycleID, types.StateCompleted, nowISO, nil)
	if buildErr != nil {
		return nil, nil, errs.New(errs.CodeConstraintViolation, "receipt signing failed: %v", buildErr)
	}
	snap.Receipts[receipt.ID] = receipt

	emit(types.EventCycleStateChanged, transitionKey(types.StateExecuting, types.StateCompleted), map[string]interface{}{
		"cycle_id":   cycleID,
		"from_state": string(types.StateExecuting),
		"to_state":   string(types.StateCompleted),
	})
	emit(types.EventReceiptCreated, receipt.ID, map[string]interface{}{
		"receipt_id":  receipt.ID,
		"cycle_id":    cycleID,
		"final_state": string(types.StateCompleted),
	})
	return next.Clone(), receipt.Clone(), nil
}

// ExpireDepositWindow unwinds an escrow.pending cycle whose deadline has
// passed with legs missing: deposited legs refund, vault holdings return to
// the pool, reservations release, and the failed receipt is appended.
func (e *Engine) ExpireDepositWindow(snap *state.Snapshot, cycleID string, now time.Time, emit Emit) (*types.Timeline, *types.Receipt, *errs.Error) {
	timeline, err := e.lookup(snap, cycleID)
	if err != nil {
		return nil, nil, err
	}
	if timeline.State != types.StateEscrowPending {
		return nil, nil, errs.Conflict("cycle %s is %s; expiry applies in %s", cycleID, timeline.State, types.StateEscrowPending)
	}
	if timeline.AllLegsDeposited() {
		return nil, nil, errs.Conflict("cycle %s has every leg deposited", cycleID)
	}
	if len(timeline.Legs) > 0 {
		deadline, perr := types.ParseTime(timeline.Legs[0].DepositDeadlineAt)
		if perr == nil && !now.After(deadline) {
			return nil, nil, errs.ConstraintViolation("deposit window for cycle %s has not elapsed", cycleID)
		}
	}
	proposal, ok := snap.Proposals[cycleID]
	if !ok {
		return nil, nil, errs.NotFound("proposal %s not found", cycleID)
	}

	nowISO := types.FormatTime(now)
	next := timeline.Clone()
	for i := range next.Legs {
		leg := &next.Legs[i]
		if leg.Status == types.LegDeposited {
			leg.Status = types.LegRefunded
			leg.RefundedAt = nowISO
		}
		if leg.VaultHoldingID != "" {
			vault.MakeAvailable(snap, leg.VaultHoldingID, nowISO)
			emit(types.EventVaultHoldingReleased, leg.VaultHoldingID, map[string]interface{}{
				"holding_id": leg.VaultHoldingID,
				"cycle_id":   cycleID,
			})
		}
	}
	next.State = types.StateFailed
	next.ReasonCode = "deposit_timeout"
	next.UpdatedAt = nowISO
	snap.Timelines[cycleID] = next

	e.settleIntents(snap, proposal, nowISO, false, emit)

	receipt, buildErr := buildReceipt(e.receiptRing, proposal, cycleID, types.StateFailed, nowISO, map[string]interface{}{
		"reason_code": "deposit_timeout",
	})
	if buildErr != nil {
		return nil, nil, errs.New(errs.CodeConstraintViolation, "receipt signing failed: %v", buildErr)
	}
	snap.Receipts[receipt.ID] = receipt

	emit(types.EventCycleStateChanged, transitionKey(types.StateEscrowPending, types.StateFailed), map[string]interface{}{
		"cycle_id":    cycleID,
		"from_state":  string(types.StateEscrowPending),
		"to_state":    string(types.StateFailed),
		"reason_code": "deposit_timeout",
	})
	emit(types.EventReceiptCreated, receipt.ID, map[string]interface{}{
		"receipt_id":  receipt.ID,
		"cycle_id":    cycleID,
		"final_state": string(types.StateFailed),
	})
	return next.Clone(), receipt.Clone(), nil
}

// settleIntents releases the cycle's reservations. On completion the
// intents are consumed (cancelled); on unwind they return to active.
func (e *Engine) settleIntents(snap *state.Snapshot, proposal *types.CycleProposal, nowISO string, consumed bool, emit Emit) {
	for _, intentID := range proposal.IntentIDs() {
		if reservation, ok := snap.Reservations[intentID]; ok && reservation.CycleID == proposal.ID {
			delete(snap.Reservations, intentID)
			emit(types.EventIntentUnreserved, intentID, map[string]interface{}{
				"intent_id": intentID,
				"cycle_id":  proposal.ID,
			})
		}
		intent := snap.Intents[intentID]
		if intent == nil {
			continue
		}
		next := intent.Clone()
		if consumed {
			next.Status = types.IntentCancelled
		} else if next.Status == types.IntentReserved {
			next.Status = types.IntentActive
		}
		next.UpdatedAt = nowISO
		snap.Intents[intentID] = next
	}
}

func (e *Engine) toEscrowReady(timeline *types.Timeline, nowISO string, emit Emit) {
	timeline.State = types.StateEscrowReady
	timeline.UpdatedAt = nowISO
	emit(types.EventCycleStateChanged, transitionKey(types.StateEscrowPending, types.StateEscrowReady), map[string]interface{}{
		"cycle_id":   timeline.CycleID,
		"from_state": string(types.StateEscrowPending),
		"to_state":   string(types.StateEscrowReady),
	})
}

func (e *Engine) lookup(snap *state.Snapshot, cycleID string) (*types.Timeline, *errs.Error) {
	timeline, ok := snap.Timelines[cycleID]
	if !ok {
		return nil, errs.NotFound("cycle %s not found", cycleID)
	}
	if timeline.State.Terminal() {
		return nil, errs.Conflict("cycle %s is terminal (%s)", cycleID, timeline.State)
	}
	return timeline, nil
}

func transitionKey(from interface{}, to types.TimelineState) string {
	return fmt.Sprintf("%v>%s", from, to)
}

func depositKey(intentID, depositRef string) string {
	return fmt.Sprintf("%s|%s", intentID, depositRef)
}

func assetInLeg(assets []types.Asset, candidate types.Asset) bool {
	for _, a := range assets {
		if a.Fingerprint() == candidate.Fingerprint() {
			return true
		}
	}
	return false
}
