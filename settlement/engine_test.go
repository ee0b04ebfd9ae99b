package settlement

import (
	"testing"
	"time"

	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
	"swapring/state"
	"swapring/vault"
)

var settleNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type capturedEvent struct {
	Type    string
	Key     string
	Payload map[string]interface{}
}

type recorder struct {
	events []capturedEvent
}

func (r *recorder) emit(eventType, key string, payload map[string]interface{}) {
	r.events = append(r.events, capturedEvent{Type: eventType, Key: key, Payload: payload})
}

func (r *recorder) ofType(eventType string) []capturedEvent {
	var out []capturedEvent
	for _, evt := range r.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

func testEngine() *Engine {
	return NewEngine(crypto.NewRing(crypto.DeriveKey("rcp-1", "test/receipts")))
}

func seedReadyCycle(snap *state.Snapshot, cycleID string, intentIDs ...string) *types.CycleProposal {
	participants := make([]types.ProposalParticipant, len(intentIDs))
	accepted := make(map[string]string)
	for i, id := range intentIDs {
		actor := types.Actor{Type: types.ActorUser, ID: "user_" + id}
		participants[i] = types.ProposalParticipant{
			IntentID: id,
			Actor:    actor,
			Give:     []types.Asset{{Platform: "steam", AssetID: "asset_" + id}},
		}
		snap.Intents[id] = &types.SwapIntent{ID: id, Actor: actor, Status: types.IntentReserved}
		snap.Reservations[id] = &types.Reservation{CycleID: cycleID, ReservedAt: types.FormatTime(settleNow)}
		accepted[id] = types.FormatTime(settleNow)
	}
	proposal := &types.CycleProposal{
		ID:           cycleID,
		Participants: participants,
		Status:       types.ProposalCommitted,
	}
	snap.Proposals[cycleID] = proposal
	snap.Commits[cycleID] = &types.Commit{ProposalID: cycleID, Phase: types.CommitReady, Accepted: accepted}
	return proposal
}

func deadline() string { return types.FormatTime(settleNow.Add(6 * time.Hour)) }

func TestStartBuildsLegsTowardPredecessor(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b", "intent_c")
	rec := &recorder{}

	timeline, err := testEngine().Start(snap, "cycle_1", nil, deadline(), settleNow, rec.emit)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if timeline.State != types.StateEscrowPending {
		t.Fatalf("expected escrow.pending, got %s", timeline.State)
	}
	if len(timeline.Legs) != 3 {
		t.Fatalf("expected 3 legs, got %d", len(timeline.Legs))
	}
	// Leg i delivers participant i's give to participant i-1.
	if timeline.Legs[0].FromActor.ID != "user_intent_a" || timeline.Legs[0].ToActor.ID != "user_intent_c" {
		t.Fatalf("unexpected leg 0 endpoints: %s -> %s", timeline.Legs[0].FromActor.ID, timeline.Legs[0].ToActor.ID)
	}
	if timeline.Legs[1].ToActor.ID != "user_intent_a" {
		t.Fatalf("unexpected leg 1 target: %s", timeline.Legs[1].ToActor.ID)
	}

	transitions := rec.ofType(types.EventCycleStateChanged)
	if len(transitions) != 1 || transitions[0].Payload["to_state"] != string(types.StateEscrowPending) {
		t.Fatalf("expected one transition into escrow.pending, got %+v", transitions)
	}
	if got := len(rec.ofType(types.EventDepositRequired)); got != 3 {
		t.Fatalf("expected 3 deposit_required events, got %d", got)
	}
}

func TestStartRequiresReadyCommit(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	snap.Commits["cycle_1"].Phase = types.CommitPending

	_, err := testEngine().Start(snap, "cycle_1", nil, deadline(), settleNow, (&recorder{}).emit)
	if err == nil || err.Code != errs.CodeConflict {
		t.Fatalf("expected CONFLICT, got %v", err)
	}
}

func TestManualDepositFlowToCompletion(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	eng := testEngine()
	rec := &recorder{}
	if _, err := eng.Start(snap, "cycle_1", nil, deadline(), settleNow, rec.emit); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	actorA := types.Actor{Type: types.ActorUser, ID: "user_intent_a"}
	actorB := types.Actor{Type: types.ActorUser, ID: "user_intent_b"}
	if _, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_a", "trade_offer_1", actorA, nil, settleNow, rec.emit); err != nil {
		t.Fatalf("deposit a failed: %v", err)
	}
	timeline, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_b", "trade_offer_2", actorB, nil, settleNow, rec.emit)
	if err != nil {
		t.Fatalf("deposit b failed: %v", err)
	}
	if timeline.State != types.StateEscrowReady {
		t.Fatalf("expected escrow.ready after final deposit, got %s", timeline.State)
	}

	if _, err := eng.BeginExecution(snap, "cycle_1", settleNow, rec.emit); err != nil {
		t.Fatalf("begin execution failed: %v", err)
	}
	timeline, receipt, cerr := eng.Complete(snap, "cycle_1", settleNow, rec.emit)
	if cerr != nil {
		t.Fatalf("complete failed: %v", cerr)
	}
	if timeline.State != types.StateCompleted {
		t.Fatalf("expected completed, got %s", timeline.State)
	}
	for _, leg := range timeline.Legs {
		if leg.Status != types.LegReleased {
			t.Fatalf("expected released leg, got %s", leg.Status)
		}
	}
	if receipt.FinalState != types.StateCompleted {
		t.Fatalf("expected completed receipt, got %s", receipt.FinalState)
	}
	if err := VerifyReceipt(crypto.NewRing(crypto.DeriveKey("rcp-1", "test/receipts")), receipt); err != nil {
		t.Fatalf("receipt signature rejected: %v", err)
	}

	// Completion consumes the intents and drops their reservations.
	for _, id := range []string{"intent_a", "intent_b"} {
		if _, held := snap.Reservations[id]; held {
			t.Fatalf("expected reservation for %s released", id)
		}
		if snap.Intents[id].Status != types.IntentCancelled {
			t.Fatalf("expected %s consumed, got %s", id, snap.Intents[id].Status)
		}
	}
}

func TestManualDepositReplayIdempotent(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	eng := testEngine()
	rec := &recorder{}
	if _, err := eng.Start(snap, "cycle_1", nil, deadline(), settleNow, rec.emit); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	actorA := types.Actor{Type: types.ActorUser, ID: "user_intent_a"}
	if _, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_a", "ref_1", actorA, nil, settleNow, rec.emit); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_a", "ref_1", actorA, nil, settleNow, rec.emit); err != nil {
		t.Fatalf("identical replay failed: %v", err)
	}
	_, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_a", "ref_2", actorA, nil, settleNow, rec.emit)
	if err == nil || err.Code != errs.CodeConflict {
		t.Fatalf("expected CONFLICT on differing ref, got %v", err)
	}
}

func TestVaultBindingsJumpToReady(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	actorA := types.Actor{Type: types.ActorUser, ID: "user_intent_a"}
	actorB := types.Actor{Type: types.ActorUser, ID: "user_intent_b"}

	holdingA, err := vault.Deposit(snap, actorA, "vault_1", types.Asset{Platform: "steam", AssetID: "asset_intent_a"}, settleNow)
	if err != nil {
		t.Fatalf("vault deposit failed: %v", err)
	}
	holdingA, err = vault.Reserve(snap, holdingA.HoldingID, actorA, nil, settleNow)
	if err != nil {
		t.Fatalf("vault reserve failed: %v", err)
	}
	holdingB, err := vault.Deposit(snap, actorB, "vault_1", types.Asset{Platform: "steam", AssetID: "asset_intent_b"}, settleNow)
	if err != nil {
		t.Fatalf("vault deposit failed: %v", err)
	}
	holdingB, err = vault.Reserve(snap, holdingB.HoldingID, actorB, nil, settleNow)
	if err != nil {
		t.Fatalf("vault reserve failed: %v", err)
	}

	rec := &recorder{}
	bindings := []VaultBinding{
		{IntentID: "intent_a", HoldingID: holdingA.HoldingID, ReservationID: holdingA.ReservationID},
		{IntentID: "intent_b", HoldingID: holdingB.HoldingID, ReservationID: holdingB.ReservationID},
	}
	timeline, serr := testEngine().Start(snap, "cycle_1", bindings, deadline(), settleNow, rec.emit)
	if serr != nil {
		t.Fatalf("start failed: %v", serr)
	}
	if timeline.State != types.StateEscrowReady {
		t.Fatalf("expected fully bound cycle to reach escrow.ready, got %s", timeline.State)
	}
	if got := len(rec.ofType(types.EventDepositRequired)); got != 0 {
		t.Fatalf("expected no deposit_required events, got %d", got)
	}
	deposits := rec.ofType(types.EventDepositConfirmed)
	if len(deposits) != 2 {
		t.Fatalf("expected 2 deposit_confirmed events, got %d", len(deposits))
	}
	if deposits[0].Payload["deposit_mode"] != string(types.DepositVault) {
		t.Fatalf("expected vault deposit mode, got %v", deposits[0].Payload["deposit_mode"])
	}
	if snap.VaultHoldings[holdingA.HoldingID].SettlementCycleID != "cycle_1" {
		t.Fatal("expected holding bound to the cycle")
	}
}

func TestVaultBindingRejectsForeignHolding(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	stranger := types.Actor{Type: types.ActorUser, ID: "user_stranger"}
	holding, err := vault.Deposit(snap, stranger, "vault_1", types.Asset{Platform: "steam", AssetID: "asset_intent_a"}, settleNow)
	if err != nil {
		t.Fatalf("vault deposit failed: %v", err)
	}
	holding, err = vault.Reserve(snap, holding.HoldingID, stranger, nil, settleNow)
	if err != nil {
		t.Fatalf("vault reserve failed: %v", err)
	}

	bindings := []VaultBinding{{IntentID: "intent_a", HoldingID: holding.HoldingID, ReservationID: holding.ReservationID}}
	_, serr := testEngine().Start(snap, "cycle_1", bindings, deadline(), settleNow, (&recorder{}).emit)
	if serr == nil || serr.Code != errs.CodeForbidden {
		t.Fatalf("expected FORBIDDEN for foreign holding, got %v", serr)
	}
}

func TestExpireDepositWindowUnwinds(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	eng := testEngine()
	rec := &recorder{}
	shortDeadline := types.FormatTime(settleNow.Add(time.Hour))
	if _, err := eng.Start(snap, "cycle_1", nil, shortDeadline, settleNow, rec.emit); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	actorA := types.Actor{Type: types.ActorUser, ID: "user_intent_a"}
	if _, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_a", "ref_1", actorA, nil, settleNow, rec.emit); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	// Before the deadline the window has not elapsed.
	_, _, err := eng.ExpireDepositWindow(snap, "cycle_1", settleNow.Add(30*time.Minute), rec.emit)
	if err == nil || err.Code != errs.CodeConstraintViolation {
		t.Fatalf("expected CONSTRAINT_VIOLATION before the deadline, got %v", err)
	}

	late := settleNow.Add(2 * time.Hour)
	timeline, receipt, err := eng.ExpireDepositWindow(snap, "cycle_1", late, rec.emit)
	if err != nil {
		t.Fatalf("expiry failed: %v", err)
	}
	if timeline.State != types.StateFailed || timeline.ReasonCode != "deposit_timeout" {
		t.Fatalf("expected failed/deposit_timeout, got %s/%s", timeline.State, timeline.ReasonCode)
	}
	legA, _ := timeline.LegByIntent("intent_a")
	if timeline.Legs[legA].Status != types.LegRefunded {
		t.Fatalf("expected deposited leg refunded, got %s", timeline.Legs[legA].Status)
	}
	legB, _ := timeline.LegByIntent("intent_b")
	if timeline.Legs[legB].Status != types.LegPending {
		t.Fatalf("expected missing leg to stay pending, got %s", timeline.Legs[legB].Status)
	}
	if receipt.FinalState != types.StateFailed {
		t.Fatalf("expected failed receipt, got %s", receipt.FinalState)
	}
	if receipt.Transparency["reason_code"] != "deposit_timeout" {
		t.Fatalf("expected transparency reason_code, got %v", receipt.Transparency)
	}
	// Unwind reactivates the intents.
	for _, id := range []string{"intent_a", "intent_b"} {
		if snap.Intents[id].Status != types.IntentActive {
			t.Fatalf("expected %s active after unwind, got %s", id, snap.Intents[id].Status)
		}
	}
}

func TestTerminalCycleRefusesFurtherTransitions(t *testing.T) {
	snap := state.NewSnapshot()
	seedReadyCycle(snap, "cycle_1", "intent_a", "intent_b")
	eng := testEngine()
	rec := &recorder{}
	if _, err := eng.Start(snap, "cycle_1", nil, deadline(), settleNow, rec.emit); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	actorA := types.Actor{Type: types.ActorUser, ID: "user_intent_a"}
	actorB := types.Actor{Type: types.ActorUser, ID: "user_intent_b"}
	if _, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_a", "r1", actorA, nil, settleNow, rec.emit); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := eng.ConfirmDeposit(snap, "cycle_1", "intent_b", "r2", actorB, nil, settleNow, rec.emit); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if _, err := eng.BeginExecution(snap, "cycle_1", settleNow, rec.emit); err != nil {
		t.Fatalf("begin execution failed: %v", err)
	}
	if _, _, err := eng.Complete(snap, "cycle_1", settleNow, rec.emit); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	if _, err := eng.BeginExecution(snap, "cycle_1", settleNow, rec.emit); err == nil || err.Code != errs.CodeConflict {
		t.Fatalf("expected CONFLICT on a terminal cycle, got %v", err)
	}
	if _, _, err := eng.Complete(snap, "cycle_1", settleNow, rec.emit); err == nil || err.Code != errs.CodeConflict {
		t.Fatalf("expected CONFLICT on a terminal cycle, got %v", err)
	}
}

func TestReceiptAssetsPlatformQualified(t *testing.T) {
	// The same bare asset id on two platforms is two assets.
	proposal := &types.CycleProposal{
		ID: "cycle_1",
		Participants: []types.ProposalParticipant{
			{IntentID: "intent_a", Give: []types.Asset{{Platform: "steam", AssetID: "skin_1"}}},
			{IntentID: "intent_b", Give: []types.Asset{{Platform: "xbox", AssetID: "skin_1"}}},
		},
	}
	receipt, err := buildReceipt(crypto.NewRing(crypto.DeriveKey("rcp-1", "test/receipts")), proposal, "cycle_1", types.StateCompleted, types.FormatTime(settleNow), nil)
	if err != nil {
		t.Fatalf("build receipt: %v", err)
	}
	if len(receipt.AssetIDs) != 2 {
		t.Fatalf("expected both platform-qualified assets, got %v", receipt.AssetIDs)
	}
	if receipt.AssetIDs[0] != "steam:skin_1" || receipt.AssetIDs[1] != "xbox:skin_1" {
		t.Fatalf("unexpected asset set %v", receipt.AssetIDs)
	}
}

func TestReceiptDeterministicID(t *testing.T) {
	if ReceiptID("cycle_1", types.StateCompleted) != ReceiptID("cycle_1", types.StateCompleted) {
		t.Fatal("expected stable receipt id")
	}
	if ReceiptID("cycle_1", types.StateCompleted) == ReceiptID("cycle_1", types.StateFailed) {
		t.Fatal("expected final state to discriminate receipt ids")
	}
}
