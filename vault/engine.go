// Package vault manages pre-deposited holdings the settlement machine can
// bind to legs in place of manual deposits. Holdings move through
// available -> reserved -> withdrawn, with release returning a reserved
// holding to the pool.
package vault

import (
	"time"

	"github.com/google/uuid"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// Deposit records a new available holding owned by the caller.
func Deposit(snap *state.Snapshot, owner types.Actor, vaultID string, asset types.Asset, now time.Time) (*types.VaultHolding, *errs.Error) {
	if asset.Platform == "" || asset.AssetID == "" {
		return nil, errs.SchemaInvalid("asset platform and asset_id are required")
	}
	nowISO := types.FormatTime(now)
	holding := &types.VaultHolding{
		HoldingID:   "hold_" + uuid.NewString(),
		VaultID:     vaultID,
		Asset:       asset,
		OwnerActor:  owner,
		Status:      types.HoldingAvailable,
		DepositedAt: nowISO,
		UpdatedAt:   nowISO,
	}
	snap.VaultHoldings[holding.HoldingID] = holding
	return holding, nil
}

// Reserve flips an available holding to reserved and assigns a reservation
// id the settlement machine later matches against.
func Reserve(snap *state.Snapshot, holdingID string, caller types.Actor, delegation *types.Delegation, now time.Time) (*types.VaultHolding, *errs.Error) {
	holding, err := owned(snap, holdingID, caller, delegation)
	if err != nil {
		return nil, err
	}
	if holding.Status != types.HoldingAvailable {
		return nil, errs.Conflict("holding %s is %s, not available", holdingID, holding.Status)
	}
	next := holding.Clone()
	next.Status = types.HoldingReserved
	next.ReservationID = "vres_" + uuid.NewString()
	next.UpdatedAt = types.FormatTime(now)
	snap.VaultHoldings[holdingID] = next
	return next, nil
}

// Release returns a reserved holding to the available pool. A holding bound
// to a live settlement cycle cannot be released by its owner.
func Release(snap *state.Snapshot, holdingID string, caller types.Actor, delegation *types.Delegation, now time.Time) (*types.VaultHolding, *errs.Error) {
	holding, err := owned(snap, holdingID, caller, delegation)
	if err != nil {
		return nil, err
	}
	if holding.Status != types.HoldingReserved {
		return nil, errs.Conflict("holding %s is %s, not reserved", holdingID, holding.Status)
	}
	if holding.SettlementCycleID != "" {
		if timeline := snap.Timelines[holding.SettlementCycleID]; timeline != nil && !timeline.State.Terminal() {
			return nil, errs.Conflict("holding %s is bound to settling cycle %s", holdingID, holding.SettlementCycleID)
		}
	}
	next := holding.Clone()
	next.Status = types.HoldingAvailable
	next.ReservationID = ""
	next.SettlementCycleID = ""
	next.UpdatedAt = types.FormatTime(now)
	snap.VaultHoldings[holdingID] = next
	return next, nil
}

// Withdraw removes an available holding from the vault permanently.
func Withdraw(snap *state.Snapshot, holdingID string, caller types.Actor, delegation *types.Delegation, now time.Time) (*types.VaultHolding, *errs.Error) {
	holding, err := owned(snap, holdingID, caller, delegation)
	if err != nil {
		return nil, err
	}
	if holding.Status != types.HoldingAvailable {
		return nil, errs.Conflict("holding %s is %s, not available", holdingID, holding.Status)
	}
	nowISO := types.FormatTime(now)
	next := holding.Clone()
	next.Status = types.HoldingWithdrawn
	next.WithdrawnAt = nowISO
	next.UpdatedAt = nowISO
	snap.VaultHoldings[holdingID] = next
	return next, nil
}

// BindToCycle stamps the settlement cycle onto a reserved holding. The
// settlement machine validates ownership and reservation matching before
// calling.
func BindToCycle(snap *state.Snapshot, holdingID, cycleID, nowISO string) {
	if holding := snap.VaultHoldings[holdingID]; holding != nil {
		next := holding.Clone()
		next.SettlementCycleID = cycleID
		next.UpdatedAt = nowISO
		snap.VaultHoldings[holdingID] = next
	}
}

// MarkWithdrawn consumes a cycle-bound holding on settlement completion.
func MarkWithdrawn(snap *state.Snapshot, holdingID, nowISO string) {
	if holding := snap.VaultHoldings[holdingID]; holding != nil {
		next := holding.Clone()
		next.Status = types.HoldingWithdrawn
		next.WithdrawnAt = nowISO
		next.UpdatedAt = nowISO
		snap.VaultHoldings[holdingID] = next
	}
}

// MakeAvailable returns a cycle-bound holding to the pool on unwind.
func MakeAvailable(snap *state.Snapshot, holdingID, nowISO string) {
	if holding := snap.VaultHoldings[holdingID]; holding != nil {
		next := holding.Clone()
		next.Status = types.HoldingAvailable
		next.ReservationID = ""
		next.SettlementCycleID = ""
		next.UpdatedAt = nowISO
		snap.VaultHoldings[holdingID] = next
	}
}

func owned(snap *state.Snapshot, holdingID string, caller types.Actor, delegation *types.Delegation) (*types.VaultHolding, *errs.Error) {
	holding, ok := snap.VaultHoldings[holdingID]
	if !ok {
		return nil, errs.NotFound("holding %s not found", holdingID)
	}
	if holding.OwnerActor.Equal(caller) {
		return holding, nil
	}
	if caller.Type == types.ActorAgent && delegation != nil && delegation.SubjectActor.Equal(holding.OwnerActor) {
		return holding, nil
	}
	return nil, errs.Forbidden("caller does not own holding %s", holdingID)
}
