package types

import "swapring/crypto"

// Receipt is the signed terminal record of a cycle. The id derives from
// `cycle_id|final_state`, so replaying a terminal transition yields a
// byte-equal receipt.
type Receipt struct {
	ID           string                 `json:"id"`
	CycleID      string                 `json:"cycle_id"`
	FinalState   TimelineState          `json:"final_state"`
	IntentIDs    []string               `json:"intent_ids"`
	AssetIDs     []string               `json:"asset_ids"`
	Fees         []FeeEntry             `json:"fees,omitempty"`
	CreatedAt    string                 `json:"created_at"`
	Transparency map[string]interface{} `json:"transparency,omitempty"`
	Signature    *crypto.Signature      `json:"signature,omitempty"`
}

// Clone deep-copies the receipt.
func (r *Receipt) Clone() *Receipt {
	if r == nil {
		return nil
	}
	clone := *r
	clone.IntentIDs = append([]string(nil), r.IntentIDs...)
	clone.AssetIDs = append([]string(nil), r.AssetIDs...)
	clone.Fees = append([]FeeEntry(nil), r.Fees...)
	if r.Transparency != nil {
		tr := make(map[string]interface{}, len(r.Transparency))
		for k, v := range r.Transparency {
			tr[k] = v
		}
		clone.Transparency = tr
	}
	if r.Signature != nil {
		sig := *r.Signature
		clone.Signature = &sig
	}
	return &clone
}
