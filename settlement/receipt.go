package settlement

import (
	"fmt"
	"sort"

	"swapring/core/canonical"
	"swapring/core/types"
	"swapring/crypto"
)

// ReceiptID derives the deterministic receipt identifier for a terminal
// cycle outcome.
func ReceiptID(cycleID string, finalState types.TimelineState) string {
	return "receipt_" + canonical.ShortID(fmt.Sprintf("%s|%s", cycleID, finalState))
}

// buildReceipt assembles and signs the terminal record for a cycle. The
// signature covers the canonical payload with the signature field stripped.
func buildReceipt(ring *crypto.Ring, proposal *types.CycleProposal, cycleID string, finalState types.TimelineState, nowISO string, transparency map[string]interface{}) (*types.Receipt, error) {
	intentIDs := append([]string(nil), proposal.IntentIDs()...)
	sort.Strings(intentIDs)

	// Asset identity is the platform-qualified fingerprint; the same bare
	// asset id on two platforms is two assets.
	assetSet := make(map[string]bool)
	for _, participant := range proposal.Participants {
		for _, asset := range participant.Give {
			assetSet[asset.Fingerprint()] = true
		}
	}
	assetIDs := make([]string, 0, len(assetSet))
	for id := range assetSet {
		assetIDs = append(assetIDs, id)
	}
	sort.Strings(assetIDs)

	receipt := &types.Receipt{
		ID:           ReceiptID(cycleID, finalState),
		CycleID:      cycleID,
		FinalState:   finalState,
		IntentIDs:    intentIDs,
		AssetIDs:     assetIDs,
		Fees:         append([]types.FeeEntry(nil), proposal.FeeBreakdown...),
		CreatedAt:    nowISO,
		Transparency: transparency,
	}
	payload, err := canonical.Marshal(receipt)
	if err != nil {
		return nil, fmt.Errorf("settlement: encode receipt: %w", err)
	}
	sig, err := ring.Sign(payload)
	if err != nil {
		return nil, fmt.Errorf("settlement: sign receipt: %w", err)
	}
	receipt.Signature = &sig
	return receipt, nil
}

// VerifyReceipt checks a receipt signature against the ring.
func VerifyReceipt(ring *crypto.Ring, receipt *types.Receipt) error {
	if receipt.Signature == nil {
		return crypto.ErrBadSignature
	}
	unsigned := receipt.Clone()
	unsigned.Signature = nil
	payload, err := canonical.Marshal(unsigned)
	if err != nil {
		return err
	}
	return ring.Verify(*receipt.Signature, payload)
}
