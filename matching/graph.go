// Package matching builds the compatibility graph over active intents,
// enumerates bounded simple cycles, scores the resulting proposals and
// selects a participant-disjoint set. All outputs are deterministic over a
// fixed (intents, asset_values_usd, bounds) input.
package matching

import (
	"sort"
	"time"

	"swapring/core/types"
)

// Graph is the directed compatibility graph. An edge a -> b means intent
// b's offer satisfies a's want spec and b's offer value lies inside a's
// value band. Node and adjacency order are sorted for determinism.
type Graph struct {
	Nodes   []string
	Adj     map[string][]string
	Intents map[string]*types.SwapIntent
	index   map[string]int
}

// BuildGraph constructs the graph from the matchable subset of intents.
func BuildGraph(intents []*types.SwapIntent, values map[string]float64, now time.Time) *Graph {
	g := &Graph{
		Adj:     make(map[string][]string),
		Intents: make(map[string]*types.SwapIntent),
		index:   make(map[string]int),
	}
	for _, intent := range intents {
		if !intent.Matchable(now) {
			continue
		}
		g.Intents[intent.ID] = intent
		g.Nodes = append(g.Nodes, intent.ID)
	}
	sort.Strings(g.Nodes)
	for i, id := range g.Nodes {
		g.index[id] = i
	}
	for _, from := range g.Nodes {
		wanter := g.Intents[from]
		for _, to := range g.Nodes {
			if from == to {
				continue
			}
			offerer := g.Intents[to]
			if !wanter.WantSpec.SatisfiedBy(offerer.Offer) {
				continue
			}
			offerValue := types.SeqValueUSD(offerer.Offer, values)
			if !wanter.ValueBand.Contains(offerValue) {
				continue
			}
			g.Adj[from] = append(g.Adj[from], to)
		}
	}
	return g
}

// Order returns the sort index of a node id.
func (g *Graph) Order(id string) int { return g.index[id] }
