package engine

import (
	"context"
	"testing"
	"time"

	"swapring/auth"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
	"swapring/delivery"
	"swapring/policy"
	"swapring/settlement"
	"swapring/state"
	"swapring/storage"
)

var engineNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func webhookRing() *crypto.Ring {
	return crypto.NewRing(crypto.DeriveKey("whk-1", "test/engine/webhooks"))
}

func newTestEngine(t *testing.T) (*Engine, *time.Time) {
	t.Helper()
	store, err := state.Open(storage.NewMemDB())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	keys := crypto.DevMaterial("test/engine")
	evaluator, perr := policy.NewEvaluator(keys.Consent, policy.FullEnforcement())
	if perr != nil {
		t.Fatalf("build evaluator: %v", perr)
	}
	eng := New(store, keys, evaluator, delivery.NewIngestor(webhookRing(), 1000, 1000), nil, nil, Options{AuthzEnabled: true})
	current := new(time.Time)
	*current = engineNow
	eng.SetNowFunc(func() time.Time { return *current })
	return eng, current
}

func userReq(id, key string) Request {
	return Request{Actor: types.Actor{Type: types.ActorUser, ID: id}, IdempotencyKey: key}
}

func partnerReq(id, key string) Request {
	return Request{Actor: types.Actor{Type: types.ActorPartner, ID: id}, IdempotencyKey: key}
}

func swapPayload(id, offerAsset, wantAsset string) IntentPayload {
	return IntentPayload{
		ID:       id,
		Offer:    []types.Asset{{Platform: "steam", AppID: "730", AssetID: offerAsset}},
		WantSpec: types.WantSpec{Type: types.WantSpecificAsset, Platform: "steam", AssetKey: "steam:" + wantAsset},
	}
}

func resultMap(t *testing.T, resp *Response) map[string]interface{} {
	t.Helper()
	m, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected result shape %T", resp.Result)
	}
	return m
}

func mustCreateIntent(t *testing.T, eng *Engine, userID string, payload IntentPayload) {
	t.Helper()
	if _, err := eng.CreateIntent(userReq(userID, "create-"+payload.ID), payload); err != nil {
		t.Fatalf("create %s: %v", payload.ID, err)
	}
}

func mustRun(t *testing.T, eng *Engine, key string, values map[string]float64) *types.MatchingRun {
	t.Helper()
	resp, err := eng.CreateRun(partnerReq("partner_1", key), RunPayload{AssetValuesUSD: values})
	if err != nil {
		t.Fatalf("matching run: %v", err)
	}
	return resultMap(t, resp)["run"].(*types.MatchingRun)
}

func TestSwapLifecycle(t *testing.T) {
	eng, _ := newTestEngine(t)
	mustCreateIntent(t, eng, "user_a", swapPayload("intent_a", "a1", "b1"))
	mustCreateIntent(t, eng, "user_b", swapPayload("intent_b", "b1", "a1"))

	run := mustRun(t, eng, "run-1", map[string]float64{"steam:a1": 100, "steam:b1": 100})
	if len(run.ProposalIDs) != 1 {
		t.Fatalf("expected one proposal, got %v", run.ProposalIDs)
	}
	proposalID := run.ProposalIDs[0]

	resp, err := eng.AcceptProposal(userReq("user_a", "acc-a"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_a"})
	if err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if resultMap(t, resp)["became_ready"].(bool) {
		t.Fatal("commit must not be ready after one accept")
	}
	resp, err = eng.AcceptProposal(userReq("user_b", "acc-b"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_b"})
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if !resultMap(t, resp)["became_ready"].(bool) {
		t.Fatal("expected unanimity on the second accept")
	}

	resp, err = eng.StartSettlement(partnerReq("partner_1", "settle-1"), StartSettlementPayload{CycleID: proposalID})
	if err != nil {
		t.Fatalf("start settlement: %v", err)
	}
	timeline := resultMap(t, resp)["timeline"].(*types.Timeline)
	if timeline.State != types.StateEscrowPending || len(timeline.Legs) != 2 {
		t.Fatalf("unexpected opening timeline: %+v", timeline)
	}

	for _, leg := range timeline.Legs {
		req := Request{Actor: leg.FromActor, IdempotencyKey: "dep-" + leg.IntentID}
		resp, err = eng.ConfirmDeposit(req, DepositPayload{
			CycleID:    proposalID,
			IntentID:   leg.IntentID,
			DepositRef: "manual:" + leg.IntentID,
		})
		if err != nil {
			t.Fatalf("deposit %s: %v", leg.IntentID, err)
		}
	}
	timeline = resultMap(t, resp)["timeline"].(*types.Timeline)
	if timeline.State != types.StateEscrowReady {
		t.Fatalf("expected escrow.ready after the last deposit, got %s", timeline.State)
	}

	if _, err = eng.BeginExecution(partnerReq("partner_1", "exec-1"), CycleRefPayload{CycleID: proposalID}); err != nil {
		t.Fatalf("begin execution: %v", err)
	}
	resp, err = eng.CompleteSettlement(partnerReq("partner_1", "complete-1"), CycleRefPayload{CycleID: proposalID})
	if err != nil {
		t.Fatalf("complete settlement: %v", err)
	}
	completed := resultMap(t, resp)
	if completed["timeline"].(*types.Timeline).State != types.StateCompleted {
		t.Fatal("expected the cycle completed")
	}
	receipt := completed["receipt"].(*types.Receipt)
	if receipt.FinalState != types.StateCompleted {
		t.Fatalf("unexpected receipt state %s", receipt.FinalState)
	}
	if err := settlement.VerifyReceipt(crypto.DevMaterial("test/engine").Receipts, receipt); err != nil {
		t.Fatalf("receipt signature rejected: %v", err)
	}

	resp, rerr := eng.GetReceipt(userReq("user_a", ""), ReceiptRefPayload{ReceiptID: receipt.ID})
	if rerr != nil {
		t.Fatalf("participant receipt read: %v", rerr)
	}
	if resultMap(t, resp)["receipt"].(*types.Receipt).ID != receipt.ID {
		t.Fatal("unexpected receipt returned")
	}

	// Completion consumes the matched intents.
	resp, gerr := eng.GetIntent(userReq("user_a", ""), CancelPayload{ID: "intent_a"})
	if gerr != nil {
		t.Fatalf("intent read: %v", gerr)
	}
	if resultMap(t, resp)["intent"].(*types.SwapIntent).Status != types.IntentCancelled {
		t.Fatal("expected intent_a consumed by completion")
	}

	// The cycle is scoped to the recording partner.
	_, serr := eng.SettlementStatus(partnerReq("partner_2", ""), CycleRefPayload{CycleID: proposalID})
	if serr == nil || serr.Code != errs.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for a rival partner, got %v", serr)
	}
}

func TestIdempotentReplayAndMismatch(t *testing.T) {
	eng, _ := newTestEngine(t)
	payload := swapPayload("intent_a", "a1", "b1")

	first, err := eng.CreateIntent(userReq("user_a", "key-1"), payload)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	replay, err := eng.CreateIntent(userReq("user_a", "key-1"), payload)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replay.CorrelationID != first.CorrelationID {
		t.Fatalf("replay correlation id diverged: %s vs %s", replay.CorrelationID, first.CorrelationID)
	}
	stored := resultMap(t, replay)["intent"].(map[string]interface{})
	if stored["id"] != "intent_a" {
		t.Fatalf("replay lost the stored result: %v", stored)
	}

	_, err = eng.CreateIntent(userReq("user_a", "key-1"), swapPayload("intent_other", "a2", "b2"))
	if err == nil || err.Code != errs.CodeIdempotencyMismatch {
		t.Fatalf("expected IDEMPOTENCY_KEY_REUSE_PAYLOAD_MISMATCH, got %v", err)
	}
}

func TestMissingIdempotencyKeyRefused(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.CreateIntent(userReq("user_a", ""), swapPayload("intent_a", "a1", "b1"))
	if err == nil || err.Code != errs.CodeSchemaInvalid {
		t.Fatalf("expected SCHEMA_INVALID without a key, got %v", err)
	}
}

func TestAgentScopeAndRevocation(t *testing.T) {
	eng, _ := newTestEngine(t)
	agent := types.Actor{Type: types.ActorAgent, ID: "agent_1"}

	// Agents are locked out entirely without a delegation.
	_, err := eng.CreateIntent(Request{Actor: agent, IdempotencyKey: "bare"}, swapPayload("intent_x", "x1", "y1"))
	if err == nil || err.Code != errs.CodeUnauthorized {
		t.Fatalf("expected UNAUTHORIZED without a delegation, got %v", err)
	}

	resp, merr := eng.MintDelegation(userReq("user_a", "mint-ro"), MintDelegationPayload{
		PrincipalAgent: agent,
		Scopes:         []string{auth.ScopeIntentsRead},
	})
	if merr != nil {
		t.Fatalf("mint read-only delegation: %v", merr)
	}
	readToken := resultMap(t, resp)["token"].(string)

	agentReq := func(key, token string) Request {
		return Request{Actor: agent, Auth: &Auth{Delegation: token}, IdempotencyKey: key}
	}
	_, err = eng.CreateIntent(agentReq("ro-create", readToken), swapPayload("intent_x", "x1", "y1"))
	if err == nil || err.Code != errs.CodeInsufficientScope {
		t.Fatalf("expected INSUFFICIENT_SCOPE, got %v", err)
	}

	resp, merr = eng.MintDelegation(userReq("user_a", "mint-rw"), MintDelegationPayload{
		PrincipalAgent: agent,
		Scopes:         []string{auth.ScopeIntentsWrite},
	})
	if merr != nil {
		t.Fatalf("mint write delegation: %v", merr)
	}
	writeDelegation := resultMap(t, resp)["delegation"].(*types.Delegation)
	writeToken := resultMap(t, resp)["token"].(string)

	if _, err = eng.CreateIntent(agentReq("rw-create", writeToken), swapPayload("intent_x", "x1", "y1")); err != nil {
		t.Fatalf("expected the write delegation to pass: %v", err)
	}

	if _, err = eng.RevokeDelegation(userReq("user_a", "revoke-rw"), RevokeDelegationPayload{DelegationID: writeDelegation.DelegationID}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	_, err = eng.CreateIntent(agentReq("rw-after-revoke", writeToken), swapPayload("intent_y", "x2", "y2"))
	if err == nil || err.Code != errs.CodeUnauthorized || err.Details["reason"] != "delegation_revoked" {
		t.Fatalf("expected delegation_revoked, got %v", err)
	}
}

func TestHighValueCreateNeedsConsent(t *testing.T) {
	eng, _ := newTestEngine(t)
	agent := types.Actor{Type: types.ActorAgent, ID: "agent_1"}

	resp, merr := eng.MintDelegation(userReq("user_a", "mint"), MintDelegationPayload{
		PrincipalAgent: agent,
		Scopes:         []string{auth.ScopeIntentsWrite},
		Policy:         types.DelegationPolicy{HighValueConsentThresholdUSD: 100},
	})
	if merr != nil {
		t.Fatalf("mint delegation: %v", merr)
	}
	token := resultMap(t, resp)["token"].(string)

	payload := swapPayload("intent_hv", "a1", "b1")
	payload.ValueBand = types.ValueBand{MaxUSD: 300}
	_, err := eng.CreateIntent(Request{
		Actor:          agent,
		Auth:           &Auth{Delegation: token},
		IdempotencyKey: "hv-create",
	}, payload)
	if err == nil || err.Details["reason"] != "consent_required" {
		t.Fatalf("expected consent_required, got %v", err)
	}
}

func TestRunReplacesPartnersPreviousRun(t *testing.T) {
	eng, _ := newTestEngine(t)
	mustCreateIntent(t, eng, "user_a", swapPayload("intent_a", "a1", "b1"))
	mustCreateIntent(t, eng, "user_b", swapPayload("intent_b", "b1", "a1"))
	values := map[string]float64{"steam:a1": 100, "steam:b1": 100, "steam:c1": 100, "steam:d1": 100}

	first := mustRun(t, eng, "run-1", values)
	if len(first.ProposalIDs) != 1 {
		t.Fatalf("expected one proposal in the first run, got %v", first.ProposalIDs)
	}

	// Retire the a/b pair so the superseded proposal cannot re-form, and
	// give the second run a fresh pair to propose.
	if _, err := eng.CancelIntent(userReq("user_b", "cancel-b"), CancelPayload{ID: "intent_b"}); err != nil {
		t.Fatalf("cancel intent_b: %v", err)
	}
	mustCreateIntent(t, eng, "user_c", swapPayload("intent_c", "c1", "d1"))
	mustCreateIntent(t, eng, "user_d", swapPayload("intent_d", "d1", "c1"))

	second := mustRun(t, eng, "run-2", values)
	if len(second.ProposalIDs) != 1 || second.ProposalIDs[0] == first.ProposalIDs[0] {
		t.Fatalf("expected a fresh proposal in the second run, got %v", second.ProposalIDs)
	}

	resp, err := eng.GetProposal(partnerReq("partner_1", ""), ProposalRefPayload{ProposalID: first.ProposalIDs[0]})
	if err != nil {
		t.Fatalf("read superseded proposal: %v", err)
	}
	if resultMap(t, resp)["proposal"].(*types.CycleProposal).Status != types.ProposalCancelled {
		t.Fatal("expected the superseded run's proposal cancelled")
	}
}

func TestProposalKeepsEarliestParticipantExpiry(t *testing.T) {
	eng, _ := newTestEngine(t)
	early := swapPayload("intent_a", "a1", "b1")
	early.TimeConstraints.ExpiresAt = types.FormatTime(engineNow.Add(6 * time.Hour))
	late := swapPayload("intent_b", "b1", "a1")
	late.TimeConstraints.ExpiresAt = types.FormatTime(engineNow.Add(8 * time.Hour))
	mustCreateIntent(t, eng, "user_a", early)
	mustCreateIntent(t, eng, "user_b", late)

	run := mustRun(t, eng, "run-1", map[string]float64{"steam:a1": 100, "steam:b1": 100})
	if len(run.ProposalIDs) != 1 {
		t.Fatalf("expected one proposal, got %v", run.ProposalIDs)
	}
	resp, err := eng.GetProposal(partnerReq("partner_1", ""), ProposalRefPayload{ProposalID: run.ProposalIDs[0]})
	if err != nil {
		t.Fatalf("read proposal: %v", err)
	}
	proposal := resultMap(t, resp)["proposal"].(*types.CycleProposal)
	if proposal.ExpiresAt != early.TimeConstraints.ExpiresAt {
		t.Fatalf("expected the earliest participant expiry %s, got %s", early.TimeConstraints.ExpiresAt, proposal.ExpiresAt)
	}
}

func TestQuietHoursGateDelegatedSettlement(t *testing.T) {
	eng, _ := newTestEngine(t)
	mustCreateIntent(t, eng, "user_a", swapPayload("intent_a", "a1", "b1"))
	mustCreateIntent(t, eng, "user_b", swapPayload("intent_b", "b1", "a1"))
	run := mustRun(t, eng, "run-1", map[string]float64{"steam:a1": 100, "steam:b1": 100})
	proposalID := run.ProposalIDs[0]
	if _, err := eng.AcceptProposal(userReq("user_a", "acc-a"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_a"}); err != nil {
		t.Fatalf("accept a: %v", err)
	}
	if _, err := eng.AcceptProposal(userReq("user_b", "acc-b"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_b"}); err != nil {
		t.Fatalf("accept b: %v", err)
	}
	if _, err := eng.StartSettlement(partnerReq("partner_1", "settle-1"), StartSettlementPayload{CycleID: proposalID}); err != nil {
		t.Fatalf("start settlement: %v", err)
	}

	agent := types.Actor{Type: types.ActorAgent, ID: "agent_1"}
	resp, merr := eng.MintDelegation(userReq("user_a", "mint"), MintDelegationPayload{
		PrincipalAgent: agent,
		Scopes:         []string{auth.ScopeSettlementWrite},
		Policy: types.DelegationPolicy{
			// start == end is always in-window.
			QuietHours: &types.QuietHours{Start: "00:00", End: "00:00", TZ: "UTC"},
		},
	})
	if merr != nil {
		t.Fatalf("mint delegation: %v", merr)
	}
	token := resultMap(t, resp)["token"].(string)
	agentReq := func(key string) Request {
		return Request{Actor: agent, Auth: &Auth{Delegation: token}, IdempotencyKey: key}
	}

	_, err := eng.ConfirmDeposit(agentReq("qh-deposit"), DepositPayload{CycleID: proposalID, IntentID: "intent_a", DepositRef: "manual:intent_a"})
	if err == nil || err.Code != errs.CodeForbidden || err.Details["reason"] != "quiet_hours" {
		t.Fatalf("expected quiet_hours refusing deposit_confirmed, got %v", err)
	}
	_, err = eng.CompleteSettlement(agentReq("qh-complete"), CycleRefPayload{CycleID: proposalID})
	if err == nil || err.Code != errs.CodeForbidden || err.Details["reason"] != "quiet_hours" {
		t.Fatalf("expected quiet_hours refusing settlement.complete, got %v", err)
	}

	// The subject acting directly is not gated.
	if _, err := eng.ConfirmDeposit(userReq("user_a", "dep-a"), DepositPayload{CycleID: proposalID, IntentID: "intent_a", DepositRef: "manual:intent_a"}); err != nil {
		t.Fatalf("direct deposit: %v", err)
	}
}

func TestProposalExpirySweep(t *testing.T) {
	eng, clock := newTestEngine(t)
	mustCreateIntent(t, eng, "user_a", swapPayload("intent_a", "a1", "b1"))
	mustCreateIntent(t, eng, "user_b", swapPayload("intent_b", "b1", "a1"))
	run := mustRun(t, eng, "run-1", map[string]float64{"steam:a1": 100, "steam:b1": 100})
	proposalID := run.ProposalIDs[0]

	// The fresh proposal sits inside the warning horizon.
	_, warned := eng.TickSweepProposals(*clock)
	if len(warned) != 1 || warned[0] != proposalID {
		t.Fatalf("expected one warning, got %v", warned)
	}
	// Repeating the sweep never re-emits the same warning.
	_, warned = eng.TickSweepProposals(*clock)
	if len(warned) != 0 {
		t.Fatalf("expected the warning deduplicated, got %v", warned)
	}

	*clock = engineNow.Add(31 * time.Minute)
	expired, _ := eng.TickSweepProposals(*clock)
	if len(expired) != 1 || expired[0] != proposalID {
		t.Fatalf("expected the proposal expired, got %v", expired)
	}
	_, err := eng.AcceptProposal(userReq("user_a", "late-accept"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_a"})
	if err == nil || err.Code != errs.CodeConflict {
		t.Fatalf("expected CONFLICT accepting a swept proposal, got %v", err)
	}
}

func TestDepositWindowTick(t *testing.T) {
	eng, clock := newTestEngine(t)
	mustCreateIntent(t, eng, "user_a", swapPayload("intent_a", "a1", "b1"))
	mustCreateIntent(t, eng, "user_b", swapPayload("intent_b", "b1", "a1"))
	run := mustRun(t, eng, "run-1", map[string]float64{"steam:a1": 100, "steam:b1": 100})
	proposalID := run.ProposalIDs[0]
	if _, err := eng.AcceptProposal(userReq("user_a", "acc-a"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_a"}); err != nil {
		t.Fatalf("accept a: %v", err)
	}
	if _, err := eng.AcceptProposal(userReq("user_b", "acc-b"), ProposalDecisionPayload{ProposalID: proposalID, IntentID: "intent_b"}); err != nil {
		t.Fatalf("accept b: %v", err)
	}
	deadline := types.FormatTime(engineNow.Add(time.Hour))
	if _, err := eng.StartSettlement(partnerReq("partner_1", "settle-1"), StartSettlementPayload{CycleID: proposalID, DepositDeadlineAt: deadline}); err != nil {
		t.Fatalf("start settlement: %v", err)
	}

	if failed := eng.TickExpireDeposits(*clock); len(failed) != 0 {
		t.Fatalf("expected nothing due before the deadline, got %v", failed)
	}
	*clock = engineNow.Add(2 * time.Hour)
	failed := eng.TickExpireDeposits(*clock)
	if len(failed) != 1 || failed[0] != proposalID {
		t.Fatalf("expected the cycle unwound, got %v", failed)
	}

	resp, err := eng.SettlementStatus(partnerReq("partner_1", ""), CycleRefPayload{CycleID: proposalID})
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	timeline := resultMap(t, resp)["timeline"].(*types.Timeline)
	if timeline.State != types.StateFailed || timeline.ReasonCode != "deposit_timeout" {
		t.Fatalf("expected a deposit_timeout failure, got %+v", timeline)
	}
	// Unwinding reactivates the matched intents.
	resp, gerr := eng.GetIntent(userReq("user_a", ""), CancelPayload{ID: "intent_a"})
	if gerr != nil {
		t.Fatalf("intent read: %v", gerr)
	}
	if resultMap(t, resp)["intent"].(*types.SwapIntent).Status != types.IntentActive {
		t.Fatal("expected intent_a reactivated after the unwind")
	}
}

func TestVaultOperations(t *testing.T) {
	eng, _ := newTestEngine(t)
	resp, err := eng.VaultDeposit(userReq("user_a", "vd-1"), VaultDepositPayload{
		VaultID: "vault_main",
		Asset:   types.Asset{Platform: "steam", AppID: "730", AssetID: "knife_1"},
	})
	if err != nil {
		t.Fatalf("vault deposit: %v", err)
	}
	holding := resultMap(t, resp)["holding"].(*types.VaultHolding)

	resp, err = eng.VaultReserve(userReq("user_a", "vr-1"), HoldingRefPayload{HoldingID: holding.HoldingID})
	if err != nil {
		t.Fatalf("vault reserve: %v", err)
	}
	if resultMap(t, resp)["holding"].(*types.VaultHolding).Status != types.HoldingReserved {
		t.Fatal("expected the holding reserved")
	}

	_, err = eng.VaultGet(userReq("user_b", ""), HoldingRefPayload{HoldingID: holding.HoldingID})
	if err == nil || err.Code != errs.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for a stranger, got %v", err)
	}

	resp, err = eng.VaultList(userReq("user_a", ""), VaultListPayload{Status: types.HoldingReserved})
	if err != nil {
		t.Fatalf("vault list: %v", err)
	}
	if len(resultMap(t, resp)["holdings"].([]*types.VaultHolding)) != 1 {
		t.Fatal("expected one reserved holding listed")
	}
}

func TestWebhookIngestOperation(t *testing.T) {
	eng, _ := newTestEngine(t)
	ring := webhookRing()
	evt := delivery.NewEvent(types.EventProposalCreated, types.FormatTime(engineNow), "corr_partner_push_1", "prop_ext_1",
		types.Actor{Type: types.ActorPartner, ID: "partner_1"},
		map[string]interface{}{
			"proposal": map[string]interface{}{
				"id": "prop_ext_1",
				"participants": []map[string]interface{}{
					{"intent_id": "intent_a", "actor": map[string]string{"type": "user", "id": "user_a"}},
					{"intent_id": "intent_b", "actor": map[string]string{"type": "user", "id": "user_b"}},
				},
			},
		})
	if err := delivery.SignEvent(ring, evt); err != nil {
		t.Fatalf("sign envelope: %v", err)
	}

	resp, err := eng.IngestWebhooks(context.Background(), partnerReq("partner_1", "wh-1"), WebhookPayload{Envelopes: []*types.Event{evt}})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	result := resultMap(t, resp)["ingest"].(delivery.IngestResult)
	if result.Applied != 1 {
		t.Fatalf("expected one applied envelope, got %+v", result)
	}

	// The pushed proposal is scoped to the pushing partner.
	if _, err := eng.GetProposal(partnerReq("partner_2", ""), ProposalRefPayload{ProposalID: "prop_ext_1"}); err == nil {
		t.Fatal("expected a rival partner refused")
	}
	if _, err := eng.GetProposal(partnerReq("partner_1", ""), ProposalRefPayload{ProposalID: "prop_ext_1"}); err != nil {
		t.Fatalf("expected the pushing partner to read its proposal: %v", err)
	}

	_, err = eng.IngestWebhooks(context.Background(), partnerReq("partner_1", "wh-empty"), WebhookPayload{})
	if err == nil || err.Code != errs.CodeSchemaInvalid {
		t.Fatalf("expected SCHEMA_INVALID for an empty batch, got %v", err)
	}
}

func TestHealth(t *testing.T) {
	eng, _ := newTestEngine(t)
	mustCreateIntent(t, eng, "user_a", swapPayload("intent_a", "a1", "b1"))

	resp, err := eng.Health(Request{Actor: types.Actor{Type: types.ActorUser, ID: "anyone"}})
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	health := resultMap(t, resp)
	if health["status"] != "ok" {
		t.Fatalf("unexpected health payload: %v", health)
	}
}
