package engine

import (
	"sort"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
	"swapring/vault"
)

// VaultDepositPayload is the operation payload for vault.deposit.
type VaultDepositPayload struct {
	VaultID string      `json:"vault_id"`
	Asset   types.Asset `json:"asset"`
}

// VaultDeposit implements vault.deposit.
func (e *Engine) VaultDeposit(req Request, payload VaultDepositPayload) (*Response, *errs.Error) {
	return e.mutate("vault.deposit", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		owner := vaultOwner(cc)
		holding, err := vault.Deposit(snap, owner, payload.VaultID, payload.Asset, cc.now)
		if err != nil {
			return nil, err
		}
		emit(types.EventVaultDepositConfirmed, holding.HoldingID, map[string]interface{}{
			"holding_id": holding.HoldingID,
			"vault_id":   holding.VaultID,
			"asset":      holding.Asset.Fingerprint(),
		})
		return map[string]interface{}{"holding": holding}, nil
	})
}

// HoldingRefPayload names one vault holding.
type HoldingRefPayload struct {
	HoldingID string `json:"holding_id"`
}

// VaultReserve implements vault.reserve.
func (e *Engine) VaultReserve(req Request, payload HoldingRefPayload) (*Response, *errs.Error) {
	return e.mutate("vault.reserve", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		holding, err := vault.Reserve(snap, payload.HoldingID, cc.actor, cc.delegation, cc.now)
		if err != nil {
			return nil, err
		}
		emit(types.EventVaultHoldingReserved, holding.HoldingID, map[string]interface{}{
			"holding_id":     holding.HoldingID,
			"reservation_id": holding.ReservationID,
		})
		return map[string]interface{}{"holding": holding}, nil
	})
}

// VaultRelease implements vault.release.
func (e *Engine) VaultRelease(req Request, payload HoldingRefPayload) (*Response, *errs.Error) {
	return e.mutate("vault.release", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		holding, err := vault.Release(snap, payload.HoldingID, cc.actor, cc.delegation, cc.now)
		if err != nil {
			return nil, err
		}
		emit(types.EventVaultHoldingReleased, holding.HoldingID, map[string]interface{}{
			"holding_id": holding.HoldingID,
		})
		return map[string]interface{}{"holding": holding}, nil
	})
}

// VaultWithdraw implements vault.withdraw.
func (e *Engine) VaultWithdraw(req Request, payload HoldingRefPayload) (*Response, *errs.Error) {
	return e.mutate("vault.withdraw", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		holding, err := vault.Withdraw(snap, payload.HoldingID, cc.actor, cc.delegation, cc.now)
		if err != nil {
			return nil, err
		}
		emit(types.EventVaultHoldingWithdrawn, holding.HoldingID, map[string]interface{}{
			"holding_id": holding.HoldingID,
		})
		return map[string]interface{}{"holding": holding}, nil
	})
}

// VaultGet implements vault.get.
func (e *Engine) VaultGet(req Request, payload HoldingRefPayload) (*Response, *errs.Error) {
	return e.query("vault.get", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		holding, ok := snap.VaultHoldings[payload.HoldingID]
		if !ok {
			return nil, errs.NotFound("holding %s not found", payload.HoldingID)
		}
		if err := requireHoldingOwner(holding, cc); err != nil {
			return nil, err
		}
		return map[string]interface{}{"holding": holding}, nil
	})
}

// VaultListPayload filters vault.list.
type VaultListPayload struct {
	Status types.HoldingStatus `json:"status,omitempty"`
}

// VaultList implements vault.list over the caller's holdings.
func (e *Engine) VaultList(req Request, payload VaultListPayload) (*Response, *errs.Error) {
	return e.query("vault.list", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		var out []*types.VaultHolding
		for _, holding := range snap.VaultHoldings {
			if requireHoldingOwner(holding, cc) != nil {
				continue
			}
			if payload.Status != "" && holding.Status != payload.Status {
				continue
			}
			out = append(out, holding)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].HoldingID < out[j].HoldingID })
		return map[string]interface{}{"holdings": out}, nil
	})
}

// vaultOwner resolves who a new holding belongs to: the delegation subject
// for agent callers, the caller otherwise.
func vaultOwner(cc *callContext) types.Actor {
	if cc.actor.Type == types.ActorAgent && cc.delegation != nil {
		return cc.delegation.SubjectActor
	}
	return cc.actor
}

func requireHoldingOwner(holding *types.VaultHolding, cc *callContext) *errs.Error {
	if holding.OwnerActor.Equal(cc.actor) {
		return nil
	}
	if cc.actor.Type == types.ActorAgent && cc.delegation != nil && cc.delegation.SubjectActor.Equal(holding.OwnerActor) {
		return nil
	}
	return errs.Forbidden("caller does not own holding %s", holding.HoldingID)
}
