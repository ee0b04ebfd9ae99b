package policy

import (
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/crypto"
)

// Evaluator applies a delegation's trading policy to intent and proposal
// mutations. Direct user actors carry no delegation and bypass it entirely.
type Evaluator struct {
	consentRing *crypto.Ring
	flags       Enforcement
}

// NewEvaluator builds an evaluator over the consent verification ring.
func NewEvaluator(consentRing *crypto.Ring, flags Enforcement) (*Evaluator, error) {
	if err := flags.Validate(); err != nil {
		return nil, err
	}
	return &Evaluator{consentRing: consentRing, flags: flags}, nil
}

// CheckIntentLimits enforces the static per-intent policy bounds.
func (e *Evaluator) CheckIntentLimits(delegation *types.Delegation, intent *types.SwapIntent) *errs.Error {
	if delegation == nil {
		return nil
	}
	pol := delegation.Policy
	if pol.MaxValuePerSwapUSD > 0 && intent.ValueBand.MaxUSD > pol.MaxValuePerSwapUSD {
		return errs.Forbidden("intent max_usd %0.2f exceeds the delegated per-swap limit", intent.ValueBand.MaxUSD).
			Reason("value_limit_exceeded").
			WithDetail("max_value_per_swap_usd", pol.MaxValuePerSwapUSD)
	}
	if pol.MaxCycleLength > 0 && intent.TrustConstraints.MaxCycleLength > pol.MaxCycleLength {
		return errs.Forbidden("intent max_cycle_length %d exceeds the delegated limit", intent.TrustConstraints.MaxCycleLength).
			Reason("cycle_length_limit_exceeded").
			WithDetail("max_cycle_length", pol.MaxCycleLength)
	}
	if pol.RequireEscrow != nil {
		if *pol.RequireEscrow && !intent.SettlementPreferences.RequireEscrow {
			return errs.Forbidden("delegation requires escrow settlement").
				Reason("escrow_required")
		}
		if !*pol.RequireEscrow && intent.SettlementPreferences.RequireEscrow {
			return errs.Forbidden("delegation forbids escrow settlement").
				Reason("escrow_forbidden")
		}
	}
	return nil
}

// CheckProposalAction enforces the per-proposal policy bounds for delegated
// accepts.
func (e *Evaluator) CheckProposalAction(delegation *types.Delegation, proposal *types.CycleProposal) *errs.Error {
	if delegation == nil {
		return nil
	}
	pol := delegation.Policy
	if pol.MaxCycleLength > 0 && len(proposal.Participants) > pol.MaxCycleLength {
		return errs.Forbidden("proposal cycle length %d exceeds the delegated limit", len(proposal.Participants)).
			Reason("cycle_length_limit_exceeded").
			WithDetail("max_cycle_length", pol.MaxCycleLength)
	}
	if pol.MinConfidenceScore > 0 && proposal.ConfidenceScore < pol.MinConfidenceScore {
		return errs.Forbidden("proposal confidence %0.4f is below the delegated minimum", proposal.ConfidenceScore).
			Reason("confidence_below_minimum").
			WithDetail("min_confidence_score", pol.MinConfidenceScore)
	}
	return nil
}
