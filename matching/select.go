package matching

import (
	"sort"

	"swapring/core/types"
)

// SelectDisjoint orders candidates by (score desc, id asc) and greedily
// keeps every proposal whose intents are all unused, marking its intents
// used. The returned trace records the outcome for every candidate in scan
// order.
func SelectDisjoint(candidates []*types.CycleProposal) ([]*types.CycleProposal, []types.SelectionTrace) {
	ordered := append([]*types.CycleProposal(nil), candidates...)
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].ConfidenceScore != ordered[j].ConfidenceScore {
			return ordered[i].ConfidenceScore > ordered[j].ConfidenceScore
		}
		return ordered[i].ID < ordered[j].ID
	})

	used := make(map[string]bool)
	var selected []*types.CycleProposal
	trace := make([]types.SelectionTrace, 0, len(ordered))
	for _, candidate := range ordered {
		conflict := false
		for _, id := range candidate.IntentIDs() {
			if used[id] {
				conflict = true
				break
			}
		}
		if conflict {
			trace = append(trace, types.SelectionTrace{ProposalID: candidate.ID, Outcome: types.SelectionConflict})
			continue
		}
		for _, id := range candidate.IntentIDs() {
			used[id] = true
		}
		selected = append(selected, candidate)
		trace = append(trace, types.SelectionTrace{ProposalID: candidate.ID, Outcome: types.SelectionSelected})
	}
	return selected, trace
}
