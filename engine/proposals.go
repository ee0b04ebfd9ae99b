package engine

import (
	"sort"

	"swapring/commit"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
	"swapring/tenancy"
)

// ListProposalsPayload filters cycle_proposals.list.
type ListProposalsPayload struct {
	Status types.ProposalStatus `json:"status,omitempty"`
	RunID  string               `json:"run_id,omitempty"`
}

// ListProposals implements cycle_proposals.list: proposals the caller may
// read under the tenancy rules, newest ids last.
func (e *Engine) ListProposals(req Request, payload ListProposalsPayload) (*Response, *errs.Error) {
	return e.query("cycle_proposals.list", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		var out []*types.CycleProposal
		for id, proposal := range snap.Proposals {
			if payload.Status != "" && proposal.Status != payload.Status {
				continue
			}
			if payload.RunID != "" && proposal.RunID != payload.RunID {
				continue
			}
			if !tenancy.CanReadProposal(snap, id, cc.actor, cc.delegation) {
				continue
			}
			out = append(out, proposal)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return map[string]interface{}{"proposals": out}, nil
	})
}

// ProposalRefPayload names one proposal.
type ProposalRefPayload struct {
	ProposalID string `json:"proposal_id"`
}

// GetProposal implements cycle_proposals.get.
func (e *Engine) GetProposal(req Request, payload ProposalRefPayload) (*Response, *errs.Error) {
	return e.query("cycle_proposals.get", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		proposal, ok := snap.Proposals[payload.ProposalID]
		if !ok {
			return nil, errs.NotFound("proposal %s not found", payload.ProposalID)
		}
		if err := tenancy.RequireRead(tenancy.CanReadProposal(snap, payload.ProposalID, cc.actor, cc.delegation), "proposal", payload.ProposalID); err != nil {
			return nil, err
		}
		result := map[string]interface{}{"proposal": proposal}
		if record, ok := snap.Commits[payload.ProposalID]; ok {
			result["commit"] = record
		}
		return result, nil
	})
}

// ProposalDecisionPayload carries one participant's accept or decline.
type ProposalDecisionPayload struct {
	ProposalID string `json:"proposal_id"`
	IntentID   string `json:"intent_id"`
}

// AcceptProposal implements cycle_proposals.accept. Unanimity flips the
// commit to ready, reserves the participant intents and cancels rival open
// proposals sharing any of them.
func (e *Engine) AcceptProposal(req Request, payload ProposalDecisionPayload) (*Response, *errs.Error) {
	return e.mutate("cycle_proposals.accept", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := quietHoursGuard(cc); err != nil {
			return nil, err
		}
		proposal, ok := snap.Proposals[payload.ProposalID]
		if !ok {
			return nil, errs.NotFound("proposal %s not found", payload.ProposalID)
		}
		if err := checkProposalExpiry(proposal, cc); err != nil {
			return nil, err
		}
		if cc.delegation != nil {
			if err := e.evaluator.CheckProposalAction(cc.delegation, proposal); err != nil {
				return nil, err
			}
		}
		outcome, err := commit.Accept(snap, payload.ProposalID, payload.IntentID, cc.actor, cc.delegation, cc.now)
		if err != nil {
			return nil, err
		}
		for _, intentID := range outcome.ReleasedIntents {
			emit(types.EventIntentUnreserved, intentID, map[string]interface{}{
				"intent_id": intentID,
				"reason":    "rival_proposal_cancelled",
			})
		}
		return map[string]interface{}{
			"commit":              outcome.Commit,
			"became_ready":        outcome.BecameReady,
			"cancelled_proposals": outcome.CancelledProposals,
		}, nil
	})
}

// DeclineProposal implements cycle_proposals.decline. A decline is sticky:
// it cancels the proposal and releases its reservations.
func (e *Engine) DeclineProposal(req Request, payload ProposalDecisionPayload) (*Response, *errs.Error) {
	return e.mutate("cycle_proposals.decline", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if err := quietHoursGuard(cc); err != nil {
			return nil, err
		}
		outcome, err := commit.Decline(snap, payload.ProposalID, payload.IntentID, cc.actor, cc.delegation, cc.now)
		if err != nil {
			return nil, err
		}
		for _, intentID := range outcome.ReleasedIntents {
			emit(types.EventIntentUnreserved, intentID, map[string]interface{}{
				"intent_id": intentID,
				"reason":    "proposal_declined",
			})
		}
		return map[string]interface{}{"commit": outcome.Commit}, nil
	})
}

// checkProposalExpiry refuses accepts against an expired proposal.
func checkProposalExpiry(proposal *types.CycleProposal, cc *callContext) *errs.Error {
	if proposal.ExpiresAt == "" {
		return nil
	}
	expiry, err := types.ParseTime(proposal.ExpiresAt)
	if err != nil {
		return nil
	}
	if cc.now.After(expiry) {
		return errs.Conflict("proposal %s expired at %s", proposal.ID, proposal.ExpiresAt)
	}
	return nil
}
