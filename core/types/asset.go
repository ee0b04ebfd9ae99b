package types

import "fmt"

// Asset describes one tradable item. Identity for graph construction,
// receipts and the value table is the (platform, asset_id) pair; the
// remaining fields are descriptive.
type Asset struct {
	Platform   string            `json:"platform"`
	AppID      string            `json:"app_id,omitempty"`
	ContextID  string            `json:"context_id,omitempty"`
	AssetID    string            `json:"asset_id"`
	ClassID    string            `json:"class_id,omitempty"`
	InstanceID string            `json:"instance_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Proof      string            `json:"proof,omitempty"`
}

// Fingerprint is the asset identity key used by the asset_values_usd table.
func (a Asset) Fingerprint() string { return fmt.Sprintf("%s:%s", a.Platform, a.AssetID) }

// Category reads the asset's category from its metadata, empty when unset.
func (a Asset) Category() string {
	if a.Metadata == nil {
		return ""
	}
	return a.Metadata["category"]
}

// Wear reads the wear grade from metadata, empty when unset.
func (a Asset) Wear() string {
	if a.Metadata == nil {
		return ""
	}
	return a.Metadata["wear"]
}

// CloneAssets deep-copies an asset sequence so callers can mutate the copy
// without touching the stored record.
func CloneAssets(assets []Asset) []Asset {
	if assets == nil {
		return nil
	}
	out := make([]Asset, len(assets))
	for i, a := range assets {
		out[i] = a
		if a.Metadata != nil {
			md := make(map[string]string, len(a.Metadata))
			for k, v := range a.Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}

// SeqValueUSD sums the USD value of an asset sequence against the external
// value table. Assets missing from the table contribute zero.
func SeqValueUSD(assets []Asset, values map[string]float64) float64 {
	total := 0.0
	for _, a := range assets {
		total += values[a.Fingerprint()]
	}
	return total
}
