package tenancy

import (
	"testing"

	"swapring/core/types"
	"swapring/state"
)

func seedProposal(snap *state.Snapshot, proposalID string, userIDs ...string) {
	participants := make([]types.ProposalParticipant, len(userIDs))
	for i, id := range userIDs {
		participants[i] = types.ProposalParticipant{
			IntentID: "intent_" + id,
			Actor:    types.Actor{Type: types.ActorUser, ID: id},
		}
	}
	snap.Proposals[proposalID] = &types.CycleProposal{ID: proposalID, Participants: participants}
}

func TestProposalScopedToRecordingPartner(t *testing.T) {
	snap := state.NewSnapshot()
	seedProposal(snap, "prop_1", "user_a", "user_b")
	RecordProposal(snap, "prop_1", "partner_1")

	owner := types.Actor{Type: types.ActorPartner, ID: "partner_1"}
	rival := types.Actor{Type: types.ActorPartner, ID: "partner_2"}
	if !CanReadProposal(snap, "prop_1", owner, nil) {
		t.Fatal("expected the recording partner to read its proposal")
	}
	if CanReadProposal(snap, "prop_1", rival, nil) {
		t.Fatal("expected a rival partner refused")
	}
}

func TestUnscopedProposalOpenToPartners(t *testing.T) {
	snap := state.NewSnapshot()
	seedProposal(snap, "prop_1", "user_a", "user_b")

	partner := types.Actor{Type: types.ActorPartner, ID: "partner_1"}
	if !CanReadProposal(snap, "prop_1", partner, nil) {
		t.Fatal("expected an unscoped proposal readable by any partner")
	}
}

func TestInvolvedUsersAndAgentsMayRead(t *testing.T) {
	snap := state.NewSnapshot()
	seedProposal(snap, "prop_1", "user_a", "user_b")
	RecordProposal(snap, "prop_1", "partner_1")

	participant := types.Actor{Type: types.ActorUser, ID: "user_a"}
	bystander := types.Actor{Type: types.ActorUser, ID: "user_z"}
	if !CanReadProposal(snap, "prop_1", participant, nil) {
		t.Fatal("expected a participant to read the proposal")
	}
	if CanReadProposal(snap, "prop_1", bystander, nil) {
		t.Fatal("expected a bystander refused")
	}

	agent := types.Actor{Type: types.ActorAgent, ID: "agent_1"}
	delegation := &types.Delegation{
		DelegationID:   "dlg_1",
		PrincipalAgent: agent,
		SubjectActor:   participant,
	}
	if !CanReadProposal(snap, "prop_1", agent, delegation) {
		t.Fatal("expected an agent acting for a participant to read the proposal")
	}
	foreign := &types.Delegation{
		DelegationID:   "dlg_2",
		PrincipalAgent: agent,
		SubjectActor:   bystander,
	}
	if CanReadProposal(snap, "prop_1", agent, foreign) {
		t.Fatal("expected an agent for a bystander refused")
	}
}

func TestCycleReadsFollowCycleScope(t *testing.T) {
	snap := state.NewSnapshot()
	seedProposal(snap, "cycle_1", "user_a", "user_b")
	RecordCycle(snap, "cycle_1", "partner_1")

	owner := types.Actor{Type: types.ActorPartner, ID: "partner_1"}
	rival := types.Actor{Type: types.ActorPartner, ID: "partner_2"}
	if !CanReadCycle(snap, "cycle_1", owner, nil) {
		t.Fatal("expected the recording partner to read the cycle")
	}
	if CanReadCycle(snap, "cycle_1", rival, nil) {
		t.Fatal("expected a rival partner refused")
	}
	if !CanReadCycle(snap, "cycle_1", types.Actor{Type: types.ActorUser, ID: "user_b"}, nil) {
		t.Fatal("expected a participant to read the cycle")
	}
}

func TestUnknownProposalRefused(t *testing.T) {
	snap := state.NewSnapshot()
	if CanReadProposal(snap, "prop_missing", types.Actor{Type: types.ActorUser, ID: "user_a"}, nil) {
		t.Fatal("expected an unknown proposal refused")
	}
}

func TestRolloutAllowlist(t *testing.T) {
	policy := &RolloutPolicy{Allowlist: []string{"partner_1"}}
	listed := types.Actor{Type: types.ActorPartner, ID: "partner_1"}
	unlisted := types.Actor{Type: types.ActorPartner, ID: "partner_2"}
	if !policy.AllowSensitiveExport(listed) {
		t.Fatal("expected an allowlisted partner to export")
	}
	if policy.AllowSensitiveExport(unlisted) {
		t.Fatal("expected an unlisted partner refused")
	}
}

func TestRolloutMinPlan(t *testing.T) {
	policy := &RolloutPolicy{
		MinPlan: "partner",
		PartnerPlans: map[string]string{
			"partner_free": "free",
			"partner_paid": "enterprise",
		},
	}
	if policy.AllowSensitiveExport(types.Actor{Type: types.ActorPartner, ID: "partner_free"}) {
		t.Fatal("expected a free-plan partner refused")
	}
	if !policy.AllowSensitiveExport(types.Actor{Type: types.ActorPartner, ID: "partner_paid"}) {
		t.Fatal("expected an enterprise partner to export")
	}
}

func TestRolloutNonPartnersAlwaysAllowed(t *testing.T) {
	policy := &RolloutPolicy{Allowlist: []string{"partner_1"}}
	if !policy.AllowSensitiveExport(types.Actor{Type: types.ActorUser, ID: "user_a"}) {
		t.Fatal("expected users unaffected by rollout gating")
	}
	var nilPolicy *RolloutPolicy
	if !nilPolicy.AllowSensitiveExport(types.Actor{Type: types.ActorPartner, ID: "partner_2"}) {
		t.Fatal("expected a nil policy to allow everything")
	}
}

func TestRequireRead(t *testing.T) {
	if err := RequireRead(true, "proposal", "prop_1"); err != nil {
		t.Fatalf("expected no error for an allowed read, got %v", err)
	}
	if err := RequireRead(false, "proposal", "prop_1"); err == nil {
		t.Fatal("expected FORBIDDEN for a refused read")
	}
}
