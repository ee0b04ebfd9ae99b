package types

import "strings"

// WantSpecType tags the want-spec union.
type WantSpecType string

const (
	WantSet           WantSpecType = "set"
	WantSpecificAsset WantSpecType = "specific_asset"
	WantCategory      WantSpecType = "category"
)

// WantConstraints narrows a category want.
type WantConstraints struct {
	AcceptableWear []string `json:"acceptable_wear,omitempty"`
}

// WantSpec is a tagged union describing what an intent wants in return.
// A `set` spec ORs its `any_of` members; `specific_asset` names one asset
// key on a platform; `category` matches any asset of an app category subject
// to constraints.
type WantSpec struct {
	Type        WantSpecType     `json:"type"`
	AnyOf       []WantSpec       `json:"any_of,omitempty"`
	Platform    string           `json:"platform,omitempty"`
	AssetKey    string           `json:"asset_key,omitempty"`
	AppID       string           `json:"app_id,omitempty"`
	Category    string           `json:"category,omitempty"`
	Constraints *WantConstraints `json:"constraints,omitempty"`
}

// SatisfiedBy reports whether the supplied offer satisfies the want spec.
func (w WantSpec) SatisfiedBy(offer []Asset) bool {
	switch w.Type {
	case WantSet:
		for _, member := range w.AnyOf {
			if member.SatisfiedBy(offer) {
				return true
			}
		}
		return false
	case WantSpecificAsset:
		for _, a := range offer {
			if a.Platform != w.Platform {
				continue
			}
			if matchAssetKey(a.AssetID, w.AssetKey) {
				return true
			}
		}
		return false
	case WantCategory:
		for _, a := range offer {
			if a.Platform != w.Platform || a.AppID != w.AppID {
				continue
			}
			if a.Category() != w.Category {
				continue
			}
			if w.Constraints != nil && len(w.Constraints.AcceptableWear) > 0 {
				if !containsString(w.Constraints.AcceptableWear, a.Wear()) {
					continue
				}
			}
			return true
		}
		return false
	default:
		return false
	}
}

// matchAssetKey accepts both the prefixed wire form ("steam:<asset_id>") and
// the bare asset id.
func matchAssetKey(assetID, wantKey string) bool {
	if wantKey == "steam:"+assetID {
		return true
	}
	if strings.Contains(wantKey, ":") {
		return false
	}
	return wantKey == assetID
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
