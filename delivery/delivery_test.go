package delivery

import (
	"context"
	"testing"

	"swapring/core/types"
	"swapring/crypto"
	"swapring/state"
)

const testNowISO = "2026-03-01T12:00:00Z"

func partnerActor() types.Actor { return types.Actor{Type: types.ActorPartner, ID: "partner_1"} }

func partnerRing() *crypto.Ring {
	return crypto.NewRing(crypto.DeriveKey("whk-1", "test/partner-webhooks"))
}

func testIngestor(ring *crypto.Ring) *Ingestor { return NewIngestor(ring, 1000, 1000) }

func proposalEnvelope(t *testing.T, ring *crypto.Ring, proposalID, key string) *types.Event {
	t.Helper()
	evt := NewEvent(types.EventProposalCreated, testNowISO, "corr_webhook_batch_1", key, partnerActor(), map[string]interface{}{
		"proposal": map[string]interface{}{
			"id": proposalID,
			"participants": []map[string]interface{}{
				{"intent_id": "intent_a", "actor": map[string]string{"type": "user", "id": "user_a"}},
				{"intent_id": "intent_b", "actor": map[string]string{"type": "user", "id": "user_b"}},
			},
		},
	})
	if err := SignEvent(ring, evt); err != nil {
		t.Fatalf("sign envelope: %v", err)
	}
	return evt
}

func TestEventIDDeterministic(t *testing.T) {
	a := EventID("proposal.created", "corr_1", "prop_1")
	b := EventID("proposal.created", "corr_1", "prop_1")
	if a != b {
		t.Fatalf("event id is not stable: %s vs %s", a, b)
	}
	if len(a) != 12 {
		t.Fatalf("expected a 12-hex id, got %q", a)
	}
	if a == EventID("proposal.created", "corr_1", "prop_2") {
		t.Fatal("expected distinct keys to yield distinct ids")
	}
	if a == EventID("proposal.expiring", "corr_1", "prop_1") {
		t.Fatal("expected distinct types to yield distinct ids")
	}
}

func TestSignAndVerifyEvent(t *testing.T) {
	ring := partnerRing()
	evt := proposalEnvelope(t, ring, "prop_1", "prop_1")
	if err := VerifyEvent(ring, evt); err != nil {
		t.Fatalf("verify failed: %v", err)
	}

	evt.Payload["extra"] = true
	if err := VerifyEvent(ring, evt); err == nil {
		t.Fatal("expected a tampered envelope to fail verification")
	}
}

func TestVerifyEventRequiresSignature(t *testing.T) {
	evt := NewEvent("proposal.created", testNowISO, "corr_1", "prop_1", partnerActor(), nil)
	if err := VerifyEvent(partnerRing(), evt); err == nil {
		t.Fatal("expected an unsigned envelope to fail verification")
	}
}

func TestIngestAppliesProposal(t *testing.T) {
	ring := partnerRing()
	snap := state.NewSnapshot()
	evt := proposalEnvelope(t, ring, "prop_1", "prop_1")

	result, err := testIngestor(ring).Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{evt})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Applied != 1 || result.Duplicates != 0 || result.Invalid != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	proposal := snap.Proposals["prop_1"]
	if proposal == nil || len(proposal.Participants) != 2 {
		t.Fatalf("expected the proposal stored, got %+v", proposal)
	}
	if proposal.Status != types.ProposalOpen {
		t.Fatalf("expected the ingested proposal open, got %s", proposal.Status)
	}
	if commit := snap.Commits["prop_1"]; commit == nil || commit.Phase != types.CommitPending {
		t.Fatalf("expected a pending commit seeded, got %+v", commit)
	}
	if record := snap.Tenancy.Proposals["prop_1"]; record.PartnerID != "partner_1" {
		t.Fatalf("expected the proposal recorded to partner_1, got %+v", record)
	}
}

func TestIngestDeduplicatesByEventID(t *testing.T) {
	ring := partnerRing()
	snap := state.NewSnapshot()
	evt := proposalEnvelope(t, ring, "prop_1", "prop_1")

	ingestor := testIngestor(ring)
	if _, err := ingestor.Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{evt}); err != nil {
		t.Fatalf("first ingest failed: %v", err)
	}
	result, err := ingestor.Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{evt})
	if err != nil {
		t.Fatalf("second ingest failed: %v", err)
	}
	if result.Applied != 0 || result.Duplicates != 1 {
		t.Fatalf("expected a pure duplicate batch, got %+v", result)
	}
}

func TestIngestRejectsBadSignature(t *testing.T) {
	snap := state.NewSnapshot()
	forger := crypto.NewRing(crypto.DeriveKey("whk-1", "attacker/webhooks"))
	evt := proposalEnvelope(t, forger, "prop_1", "prop_1")

	result, err := testIngestor(partnerRing()).Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{evt})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Invalid != 1 || result.Applied != 0 {
		t.Fatalf("expected the forged envelope counted invalid, got %+v", result)
	}
	if _, stored := snap.Proposals["prop_1"]; stored {
		t.Fatal("expected no proposal stored from a forged envelope")
	}
	// Invalid envelopes are never marked seen, so a correctly signed retry
	// with the same id still applies.
	if _, seen := snap.Delivery.WebhookSeenEventIDs[evt.EventID]; seen {
		t.Fatal("expected the forged envelope not marked seen")
	}
}

func TestIngestRejectsMalformedProposal(t *testing.T) {
	ring := partnerRing()
	snap := state.NewSnapshot()
	evt := NewEvent(types.EventProposalCreated, testNowISO, "corr_1", "bad", partnerActor(), map[string]interface{}{
		"proposal": map[string]interface{}{"id": ""},
	})
	if err := SignEvent(ring, evt); err != nil {
		t.Fatalf("sign envelope: %v", err)
	}

	result, err := testIngestor(ring).Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{evt})
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if result.Invalid != 1 {
		t.Fatalf("expected the malformed proposal counted invalid, got %+v", result)
	}
}

func TestIngestMixedBatch(t *testing.T) {
	ring := partnerRing()
	snap := state.NewSnapshot()
	first := proposalEnvelope(t, ring, "prop_1", "prop_1")
	second := proposalEnvelope(t, ring, "prop_2", "prop_2")

	ingestor := testIngestor(ring)
	if _, err := ingestor.Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{first}); err != nil {
		t.Fatalf("seed ingest failed: %v", err)
	}
	result, err := ingestor.Ingest(context.Background(), snap, "partner_1", testNowISO, []*types.Event{first, second, nil})
	if err != nil {
		t.Fatalf("mixed ingest failed: %v", err)
	}
	if result.Applied != 1 || result.Duplicates != 1 || result.Invalid != 1 {
		t.Fatalf("unexpected mixed batch result: %+v", result)
	}
}
