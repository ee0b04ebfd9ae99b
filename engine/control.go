package engine

import (
	"sort"
	"time"

	"swapring/commit"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/delivery"
	"swapring/observability/logging"
	"swapring/state"
)

// systemActor stamps events produced by background sweeps.
var systemActor = types.Actor{Type: types.ActorPartner, ID: "system"}

// ExpireDepositWindow implements control.expire_deposit_window for one
// cycle whose deposit deadline has elapsed.
func (e *Engine) ExpireDepositWindow(req Request, payload CycleRefPayload) (*Response, *errs.Error) {
	return e.mutate("control.expire_deposit_window", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		timeline, receipt, err := e.settle.ExpireDepositWindow(snap, payload.CycleID, cc.now, emit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"timeline": timeline,
			"receipt":  receipt,
		}, nil
	})
}

// SweepExpiringProposals implements control.sweep_expiring_proposals: open
// proposals past their expiry cancel, those inside the warning horizon get a
// proposal.expiring event.
func (e *Engine) SweepExpiringProposals(req Request) (*Response, *errs.Error) {
	return e.mutate("control.sweep_expiring_proposals", req, struct{}{}, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		expired, warned := e.sweepProposals(snap, cc.actor, cc.now)
		return map[string]interface{}{
			"expired_proposals":  expired,
			"expiring_proposals": warned,
		}, nil
	})
}

// TickExpireDeposits is the daemon's periodic deposit-window scan. It
// unwinds every escrow.pending cycle whose deadline elapsed with legs
// missing and returns the cycle ids it failed.
func (e *Engine) TickExpireDeposits(now time.Time) []string {
	var failed []string
	err := e.store.Update(func(snap *state.Snapshot) error {
		var due []string
		for cycleID, timeline := range snap.Timelines {
			if timeline.State != types.StateEscrowPending || timeline.AllLegsDeposited() {
				continue
			}
			if len(timeline.Legs) == 0 {
				continue
			}
			deadline, perr := types.ParseTime(timeline.Legs[0].DepositDeadlineAt)
			if perr != nil || !now.After(deadline) {
				continue
			}
			due = append(due, cycleID)
		}
		sort.Strings(due)
		for _, cycleID := range due {
			cc := &callContext{operationID: "control.expire_deposit_window", actor: systemActor, now: now}
			emit := e.emitFor(snap, cc, "corr_control_expire_deposit_window_"+cycleID)
			if _, _, serr := e.settle.ExpireDepositWindow(snap, cycleID, now, emit); serr != nil {
				e.log.Error("deposit window expiry failed", logging.KeyCycle, cycleID, "err", serr)
				continue
			}
			failed = append(failed, cycleID)
		}
		return nil
	})
	if err != nil {
		e.log.Error("deposit expiry sweep failed", "err", err)
		return nil
	}
	return failed
}

// TickSweepProposals is the daemon's periodic proposal-expiry scan.
func (e *Engine) TickSweepProposals(now time.Time) (expired, warned []string) {
	err := e.store.Update(func(snap *state.Snapshot) error {
		expired, warned = e.sweepProposals(snap, systemActor, now)
		return nil
	})
	if err != nil {
		e.log.Error("proposal expiry sweep failed", "err", err)
	}
	return expired, warned
}

// sweepProposals cancels expired open proposals and warns about those
// expiring inside the horizon. Warning events carry a fixed correlation id
// keyed on (proposal, expiry), so repeated sweeps never duplicate them.
func (e *Engine) sweepProposals(snap *state.Snapshot, actor types.Actor, now time.Time) (expired, warned []string) {
	horizon := now.Add(e.opts.ProposalExpiryHorizon)
	nowISO := types.FormatTime(now)

	var ids []string
	for id, proposal := range snap.Proposals {
		if proposal.Status == types.ProposalOpen && proposal.ExpiresAt != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	for _, id := range ids {
		proposal := snap.Proposals[id]
		expiry, perr := types.ParseTime(proposal.ExpiresAt)
		if perr != nil {
			continue
		}
		if now.After(expiry) {
			commit.CancelProposal(snap, id, nowISO)
			expired = append(expired, id)
			continue
		}
		if expiry.After(horizon) {
			continue
		}
		key := id + "|" + proposal.ExpiresAt
		evt := delivery.NewEvent(types.EventProposalExpiring, nowISO, "corr_proposal_expiry_sweep", key, actor, map[string]interface{}{
			"proposal_id": id,
			"expires_at":  proposal.ExpiresAt,
		})
		if hasEvent(snap, evt.EventID) {
			continue
		}
		if err := delivery.SignEvent(e.keys.Events, evt); err != nil {
			e.log.Error("event signing failed", "type", types.EventProposalExpiring, "err", err)
			continue
		}
		snap.AppendEvent(evt)
		warned = append(warned, id)
	}
	return expired, warned
}

func hasEvent(snap *state.Snapshot, eventID string) bool {
	for _, evt := range snap.Events {
		if evt.EventID == eventID {
			return true
		}
	}
	return false
}
