package delivery

import (
	"context"
	"encoding/json"

	"golang.org/x/time/rate"

	"swapring/core/types"
	"swapring/crypto"
	"swapring/state"
)

// IngestResult summarises one webhook batch.
type IngestResult struct {
	Applied    int `json:"applied"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// Ingestor applies partner-pushed proposal envelopes. Envelopes are
// deduplicated by event id and verified against the delivered partner key
// set before any effect is applied; unsigned or mis-signed envelopes count
// as invalid and are never marked seen.
type Ingestor struct {
	partnerKeys *crypto.Ring
	limiter     *rate.Limiter
}

// NewIngestor builds an ingestor over the partner webhook verification keys.
func NewIngestor(partnerKeys *crypto.Ring, perSecond float64, burst int) *Ingestor {
	if perSecond <= 0 {
		perSecond = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &Ingestor{
		partnerKeys: partnerKeys,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// Ingest verifies and applies a batch of envelopes for the named partner.
// Only `proposal.created` envelopes have effects today; other types are
// deduplicated and recorded as seen without further action.
func (in *Ingestor) Ingest(ctx context.Context, snap *state.Snapshot, partnerID, nowISO string, envelopes []*types.Event) (IngestResult, error) {
	result := IngestResult{}
	for _, evt := range envelopes {
		if err := in.limiter.Wait(ctx); err != nil {
			return result, err
		}
		if evt == nil || evt.EventID == "" {
			result.Invalid++
			continue
		}
		if err := VerifyEvent(in.partnerKeys, evt); err != nil {
			result.Invalid++
			continue
		}
		if _, seen := snap.Delivery.WebhookSeenEventIDs[evt.EventID]; seen {
			result.Duplicates++
			continue
		}
		if evt.Type == types.EventProposalCreated {
			if !applyProposal(snap, partnerID, nowISO, evt) {
				result.Invalid++
				continue
			}
		}
		snap.Delivery.WebhookSeenEventIDs[evt.EventID] = nowISO
		result.Applied++
	}
	return result, nil
}

func applyProposal(snap *state.Snapshot, partnerID, nowISO string, evt *types.Event) bool {
	raw, ok := evt.Payload["proposal"]
	if !ok {
		return false
	}
	enc, err := json.Marshal(raw)
	if err != nil {
		return false
	}
	proposal := &types.CycleProposal{}
	if err := json.Unmarshal(enc, proposal); err != nil || proposal.ID == "" || len(proposal.Participants) < 2 {
		return false
	}
	if proposal.Status == "" {
		proposal.Status = types.ProposalOpen
	}
	if proposal.CreatedAt == "" {
		proposal.CreatedAt = nowISO
	}
	snap.Proposals[proposal.ID] = proposal
	if _, ok := snap.Commits[proposal.ID]; !ok {
		snap.Commits[proposal.ID] = &types.Commit{
			ProposalID: proposal.ID,
			Phase:      types.CommitPending,
			UpdatedAt:  nowISO,
		}
	}
	if partnerID != "" {
		snap.Tenancy.Proposals[proposal.ID] = types.TenancyRecord{PartnerID: partnerID}
	}
	return true
}
