package matching

import (
	"time"

	"swapring/core/types"
)

// Result is the outcome of one matching pass.
type Result struct {
	Proposals   []*types.CycleProposal
	Trace       []types.SelectionTrace
	Diagnostics types.RunDiagnostics
}

// Match runs the full pipeline: graph construction, bounded cycle
// enumeration, proposal scoring, and disjoint selection. It is a pure
// function of its inputs; the caller persists the result.
func Match(intents []*types.SwapIntent, values map[string]float64, bounds Bounds, now time.Time) Result {
	graph := BuildGraph(intents, values, now)
	cycles, diag := EnumerateCycles(graph, bounds)

	candidates := make([]*types.CycleProposal, 0, len(cycles))
	nowISO := types.FormatTime(now)
	for _, cycle := range cycles {
		if proposal := BuildProposal(cycle, graph.Intents, values, nowISO); proposal != nil {
			candidates = append(candidates, proposal)
		}
	}

	selected, trace := SelectDisjoint(candidates)
	return Result{
		Proposals: selected,
		Trace:     trace,
		Diagnostics: types.RunDiagnostics{
			CycleEnumerationLimited:  diag.Limited,
			CycleEnumerationTimedOut: diag.TimedOut,
			CyclesEnumerated:         len(cycles),
			CandidatesScored:         len(candidates),
		},
	}
}
