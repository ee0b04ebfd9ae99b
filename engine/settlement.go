package engine

import (
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/settlement"
	"swapring/state"
	"swapring/tenancy"
)

// StartSettlementPayload is the operation payload for settlement.start.
// DepositDeadlineAt defaults to now plus the configured deposit window.
type StartSettlementPayload struct {
	CycleID           string                    `json:"cycle_id"`
	DepositDeadlineAt string                    `json:"deposit_deadline_at,omitempty"`
	VaultBindings     []settlement.VaultBinding `json:"vault_bindings,omitempty"`
}

// StartSettlement implements settlement.start.
func (e *Engine) StartSettlement(req Request, payload StartSettlementPayload) (*Response, *errs.Error) {
	return e.mutate("settlement.start", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := quietHoursGuard(cc); err != nil {
			return nil, err
		}
		deadline := payload.DepositDeadlineAt
		if deadline == "" {
			deadline = types.FormatTime(cc.now.Add(e.opts.DepositWindow))
		}
		timeline, err := e.settle.Start(snap, payload.CycleID, payload.VaultBindings, deadline, cc.now, emit)
		if err != nil {
			return nil, err
		}
		if record, scoped := snap.Tenancy.Proposals[payload.CycleID]; scoped {
			tenancy.RecordCycle(snap, payload.CycleID, record.PartnerID)
		}
		return map[string]interface{}{"timeline": timeline}, nil
	})
}

// DepositPayload is the operation payload for settlement.deposit_confirmed.
type DepositPayload struct {
	CycleID    string `json:"cycle_id"`
	IntentID   string `json:"intent_id"`
	DepositRef string `json:"deposit_ref"`
}

// ConfirmDeposit implements settlement.deposit_confirmed for manual legs.
func (e *Engine) ConfirmDeposit(req Request, payload DepositPayload) (*Response, *errs.Error) {
	return e.mutate("settlement.deposit_confirmed", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := quietHoursGuard(cc); err != nil {
			return nil, err
		}
		timeline, err := e.settle.ConfirmDeposit(snap, payload.CycleID, payload.IntentID, payload.DepositRef, cc.actor, cc.delegation, cc.now, emit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"timeline": timeline}, nil
	})
}

// CycleRefPayload names one settling cycle.
type CycleRefPayload struct {
	CycleID string `json:"cycle_id"`
}

// BeginExecution implements settlement.begin_execution.
func (e *Engine) BeginExecution(req Request, payload CycleRefPayload) (*Response, *errs.Error) {
	return e.mutate("settlement.begin_execution", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := quietHoursGuard(cc); err != nil {
			return nil, err
		}
		timeline, err := e.settle.BeginExecution(snap, payload.CycleID, cc.now, emit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"timeline": timeline}, nil
	})
}

// CompleteSettlement implements settlement.complete.
func (e *Engine) CompleteSettlement(req Request, payload CycleRefPayload) (*Response, *errs.Error) {
	return e.mutate("settlement.complete", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := quietHoursGuard(cc); err != nil {
			return nil, err
		}
		timeline, receipt, err := e.settle.Complete(snap, payload.CycleID, cc.now, emit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"timeline": timeline,
			"receipt":  e.exportReceipt(receipt, cc.actor),
		}, nil
	})
}

// SettlementStatus implements settlement.status.
func (e *Engine) SettlementStatus(req Request, payload CycleRefPayload) (*Response, *errs.Error) {
	return e.query("settlement.status", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		timeline, ok := snap.Timelines[payload.CycleID]
		if !ok {
			return nil, errs.NotFound("cycle %s not found", payload.CycleID)
		}
		if err := tenancy.RequireRead(tenancy.CanReadCycle(snap, payload.CycleID, cc.actor, cc.delegation), "cycle", payload.CycleID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"timeline": timeline}, nil
	})
}

// ReceiptRefPayload names one receipt.
type ReceiptRefPayload struct {
	ReceiptID string `json:"receipt_id"`
}

// GetReceipt implements receipts.get. Transparency data is withheld from
// partners outside the rollout gate.
func (e *Engine) GetReceipt(req Request, payload ReceiptRefPayload) (*Response, *errs.Error) {
	return e.query("receipts.get", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		receipt, ok := snap.Receipts[payload.ReceiptID]
		if !ok {
			return nil, errs.NotFound("receipt %s not found", payload.ReceiptID)
		}
		if err := tenancy.RequireRead(tenancy.CanReadCycle(snap, receipt.CycleID, cc.actor, cc.delegation), "receipt", payload.ReceiptID); err != nil {
			return nil, err
		}
		return map[string]interface{}{"receipt": e.exportReceipt(receipt, cc.actor)}, nil
	})
}

// exportReceipt strips the transparency payload when the rollout policy
// denies sensitive exports to the reading partner. The signature still
// verifies against the stored record, not the redacted copy.
func (e *Engine) exportReceipt(receipt *types.Receipt, actor types.Actor) *types.Receipt {
	if receipt == nil {
		return nil
	}
	if e.rollout.AllowSensitiveExport(actor) {
		return receipt
	}
	redacted := receipt.Clone()
	redacted.Transparency = nil
	return redacted
}
