package matching

import (
	"math"

	"swapring/core/canonical"
	"swapring/core/types"
)

const (
	baseScoreTwoWay   = 0.9
	baseScoreMultiWay = 0.85
	feeRate           = 0.01
)

func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }

// ProposalID derives the deterministic proposal id from the canonicalized
// cycle intent-id list.
func ProposalID(cycle []string) string {
	enc, err := canonical.Marshal(cycle)
	if err != nil {
		// A []string always canonicalises.
		panic(err)
	}
	return canonical.ShortID(string(enc))
}

// BuildProposal packages one canonical cycle as a proposal. It returns nil
// when any participant's max_cycle_length forbids a cycle of this length.
func BuildProposal(cycle []string, intents map[string]*types.SwapIntent, values map[string]float64, nowISO string) *types.CycleProposal {
	length := len(cycle)
	participants := make([]types.ProposalParticipant, length)
	getValues := make([]float64, length)
	var expiresAt string

	for k, intentID := range cycle {
		intent := intents[intentID]
		if intent == nil {
			return nil
		}
		if intent.TrustConstraints.MaxCycleLength > 0 && intent.TrustConstraints.MaxCycleLength < length {
			return nil
		}
		successor := intents[cycle[(k+1)%length]]
		if successor == nil {
			return nil
		}
		participants[k] = types.ProposalParticipant{
			IntentID: intent.ID,
			Actor:    intent.Actor,
			Give:     types.CloneAssets(intent.Offer),
			Get:      types.CloneAssets(successor.Offer),
		}
		getValues[k] = types.SeqValueUSD(successor.Offer, values)
		exp := intent.TimeConstraints.ExpiresAt
		if exp != "" && (expiresAt == "" || types.After(expiresAt, exp)) {
			expiresAt = exp
		}
	}

	spread := valueSpread(getValues)
	base := baseScoreMultiWay
	if length == 2 {
		base = baseScoreTwoWay
	}
	score := base - spread
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	fees := make([]types.FeeEntry, length)
	for k := range participants {
		fees[k] = types.FeeEntry{
			IntentID:  participants[k].IntentID,
			AmountUSD: round2(getValues[k] * feeRate),
			Basis:     "get_value_pct",
		}
	}

	return &types.CycleProposal{
		ID:              ProposalID(cycle),
		ExpiresAt:       expiresAt,
		Participants:    participants,
		ConfidenceScore: round4(score),
		ValueSpread:     round4(spread),
		FeeBreakdown:    fees,
		Explainability: &types.Explainability{
			CycleLength:  length,
			BaseScore:    base,
			ValueSpread:  round4(spread),
			GetValuesUSD: getValues,
		},
		Status:    types.ProposalOpen,
		CreatedAt: nowISO,
	}
}

// valueSpread is (max - min) / max over the received values, zero when the
// maximum is not positive.
func valueSpread(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	min, max := values[0], values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if max <= 0 {
		return 0
	}
	return (max - min) / max
}
