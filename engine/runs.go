package engine

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"swapring/commit"
	"swapring/core/errs"
	"swapring/core/types"
	"swapring/matching"
	"swapring/state"
	"swapring/tenancy"
)

// RunPayload is the operation payload for marketplace.matching.runs.create.
// AssetValuesUSD is the external pricing table keyed by asset fingerprint.
// The cycle bounds default from the engine options when zero.
type RunPayload struct {
	AssetValuesUSD      map[string]float64 `json:"asset_values_usd"`
	MinCycleLength      int                `json:"min_cycle_length,omitempty"`
	MaxCycleLength      int                `json:"max_cycle_length,omitempty"`
	MaxEnumeratedCycles int                `json:"max_enumerated_cycles,omitempty"`
	TimeoutMs           int                `json:"timeout_ms,omitempty"`
}

// CreateRun implements marketplace.matching.runs.create. A partner's new run
// replaces its previous one: still-open proposals of the prior run are
// cancelled before the new batch lands.
func (e *Engine) CreateRun(req Request, payload RunPayload) (*Response, *errs.Error) {
	return e.mutate("marketplace.matching.runs.create", req, payload, func(snap *state.Snapshot, cc *callContext, emit eventSink) (interface{}, *errs.Error) {
		if len(payload.AssetValuesUSD) == 0 {
			return nil, errs.SchemaInvalid("asset_values_usd must not be empty")
		}
		bounds := e.runBounds(payload)
		start := time.Now()
		nowISO := cc.nowISO()

		partnerID := ""
		if cc.actor.Type == types.ActorPartner {
			partnerID = cc.actor.ID
		}
		if partnerID != "" {
			if prevRunID, ok := snap.LatestRunByPartner[partnerID]; ok {
				cancelOpenRunProposals(snap, prevRunID, nowISO)
			}
		}

		intents := make([]*types.SwapIntent, 0, len(snap.Intents))
		for _, intent := range snap.Intents {
			intents = append(intents, intent)
		}
		result := matching.Match(intents, payload.AssetValuesUSD, bounds, cc.now)

		runID := "run_" + uuid.NewString()
		proposalIDs := make([]string, 0, len(result.Proposals))
		// Matching sets expires_at to the earliest participant expiry; the
		// horizon is only the default when no participant carries one.
		horizon := types.FormatTime(cc.now.Add(e.opts.ProposalExpiryHorizon))
		for _, proposal := range result.Proposals {
			stored := proposal.Clone()
			stored.RunID = runID
			if stored.ExpiresAt == "" {
				stored.ExpiresAt = horizon
			}
			snap.Proposals[stored.ID] = stored
			snap.Commits[stored.ID] = &types.Commit{
				ProposalID: stored.ID,
				Phase:      types.CommitPending,
				UpdatedAt:  nowISO,
			}
			tenancy.RecordProposal(snap, stored.ID, partnerID)
			proposalIDs = append(proposalIDs, stored.ID)
			emit(types.EventProposalCreated, stored.ID, map[string]interface{}{
				"proposal_id":      stored.ID,
				"run_id":           runID,
				"cycle_length":     len(stored.Participants),
				"confidence_score": stored.ConfidenceScore,
				"expires_at":       stored.ExpiresAt,
			})
		}

		run := &types.MatchingRun{
			RunID:       runID,
			PartnerID:   partnerID,
			RequestedBy: cc.actor,
			ProposalIDs: proposalIDs,
			Trace:       result.Trace,
			Diagnostics: result.Diagnostics,
			CreatedAt:   nowISO,
		}
		snap.MatchingRuns[runID] = run
		if partnerID != "" {
			snap.LatestRunByPartner[partnerID] = runID
		}

		e.metrics.ObserveRun(start, result.Diagnostics.CyclesEnumerated, len(proposalIDs))
		return map[string]interface{}{"run": run}, nil
	})
}

// GetRunPayload names one run.
type GetRunPayload struct {
	RunID string `json:"run_id"`
}

// GetRun implements marketplace.matching.runs.get. Partner runs are visible
// only to their requesting partner.
func (e *Engine) GetRun(req Request, payload GetRunPayload) (*Response, *errs.Error) {
	return e.query("marketplace.matching.runs.get", req, func(snap *state.Snapshot, cc *callContext) (interface{}, *errs.Error) {
		run, ok := snap.MatchingRuns[payload.RunID]
		if !ok {
			return nil, errs.NotFound("run %s not found", payload.RunID)
		}
		if run.PartnerID != "" && cc.actor.Type == types.ActorPartner && run.PartnerID != cc.actor.ID {
			return nil, errs.Forbidden("caller may not read run %s", payload.RunID)
		}
		return map[string]interface{}{"run": run}, nil
	})
}

func (e *Engine) runBounds(payload RunPayload) matching.Bounds {
	bounds := e.opts.Bounds
	if payload.MinCycleLength > 0 {
		bounds.MinCycleLength = payload.MinCycleLength
	}
	if payload.MaxCycleLength > 0 {
		bounds.MaxCycleLength = payload.MaxCycleLength
	}
	if payload.MaxEnumeratedCycles > 0 {
		bounds.MaxEnumeratedCycles = payload.MaxEnumeratedCycles
	}
	if payload.TimeoutMs > 0 {
		bounds.TimeoutMs = payload.TimeoutMs
	}
	return bounds
}

// cancelOpenRunProposals cancels the still-open proposals of a superseded
// run, releasing any reservations they held.
func cancelOpenRunProposals(snap *state.Snapshot, runID, nowISO string) {
	run, ok := snap.MatchingRuns[runID]
	if !ok {
		return
	}
	ids := append([]string(nil), run.ProposalIDs...)
	sort.Strings(ids)
	for _, pid := range ids {
		proposal, ok := snap.Proposals[pid]
		if !ok || proposal.Status != types.ProposalOpen {
			continue
		}
		commit.CancelProposal(snap, pid, nowISO)
	}
}
