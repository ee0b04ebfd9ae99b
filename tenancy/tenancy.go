// Package tenancy scopes cycles and proposals to the partner that recorded
// them and gates sensitive exports behind the rollout policy.
package tenancy

import (
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/state"
)

// RecordProposal scopes a proposal to a partner. No-op for empty partners.
func RecordProposal(snap *state.Snapshot, proposalID, partnerID string) {
	if partnerID != "" {
		snap.Tenancy.Proposals[proposalID] = types.TenancyRecord{PartnerID: partnerID}
	}
}

// RecordCycle scopes a cycle (and its timeline/receipt reads) to a partner.
func RecordCycle(snap *state.Snapshot, cycleID, partnerID string) {
	if partnerID != "" {
		snap.Tenancy.Cycles[cycleID] = types.TenancyRecord{PartnerID: partnerID}
	}
}

// CanReadProposal authorizes a proposal read: the recording partner, any
// directly involved user/agent actor, or anyone when the proposal is
// unscoped.
func CanReadProposal(snap *state.Snapshot, proposalID string, actor types.Actor, delegation *types.Delegation) bool {
	record, scoped := snap.Tenancy.Proposals[proposalID]
	if scoped && actor.Type == types.ActorPartner {
		return record.PartnerID == actor.ID
	}
	proposal, ok := snap.Proposals[proposalID]
	if !ok {
		return false
	}
	if !scoped && actor.Type == types.ActorPartner {
		return true
	}
	return involvedInProposal(proposal, actor, delegation)
}

// CanReadCycle authorizes timeline and receipt reads for a cycle.
func CanReadCycle(snap *state.Snapshot, cycleID string, actor types.Actor, delegation *types.Delegation) bool {
	record, scoped := snap.Tenancy.Cycles[cycleID]
	if scoped && actor.Type == types.ActorPartner {
		return record.PartnerID == actor.ID
	}
	proposal, ok := snap.Proposals[cycleID]
	if !ok {
		return false
	}
	if !scoped && actor.Type == types.ActorPartner {
		return true
	}
	return involvedInProposal(proposal, actor, delegation)
}

func involvedInProposal(proposal *types.CycleProposal, actor types.Actor, delegation *types.Delegation) bool {
	for _, participant := range proposal.Participants {
		if participant.Actor.Equal(actor) {
			return true
		}
		if actor.Type == types.ActorAgent && delegation != nil && delegation.SubjectActor.Equal(participant.Actor) {
			return true
		}
	}
	return false
}

// Plan ordering for rollout gating.
var planRank = map[string]int{
	"free":       0,
	"partner":    1,
	"enterprise": 2,
}

// RolloutPolicy gates sensitive exports (receipt transparency data) behind
// an allowlist or a minimum partner plan.
type RolloutPolicy struct {
	Allowlist    []string
	MinPlan      string
	PartnerPlans map[string]string
}

// AllowSensitiveExport reports whether the partner may read transparency
// payloads. Non-partner actors involved in the cycle always may.
func (p *RolloutPolicy) AllowSensitiveExport(actor types.Actor) bool {
	if actor.Type != types.ActorPartner {
		return true
	}
	if p == nil {
		return true
	}
	for _, id := range p.Allowlist {
		if id == actor.ID {
			return true
		}
	}
	if p.MinPlan == "" {
		return len(p.Allowlist) == 0
	}
	plan := p.PartnerPlans[actor.ID]
	return planRank[plan] >= planRank[p.MinPlan]
}

// RequireRead converts a failed read check into the wire error.
func RequireRead(ok bool, what, id string) *errs.Error {
	if ok {
		return nil
	}
	return errs.Forbidden("caller may not read %s %s", what, id)
}
