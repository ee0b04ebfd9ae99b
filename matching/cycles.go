package matching

import (
	"sort"
	"strings"
	"time"
)

// Default cycle bounds.
const (
	DefaultMinCycleLength = 2
	DefaultMaxCycleLength = 3
)

// Bounds configures cycle enumeration. Zero values take the defaults; the
// budgets are optional and disabled when zero.
type Bounds struct {
	MinCycleLength      int
	MaxCycleLength      int
	MaxEnumeratedCycles int
	TimeoutMs           int
}

func (b Bounds) normalized() Bounds {
	if b.MinCycleLength < DefaultMinCycleLength {
		b.MinCycleLength = DefaultMinCycleLength
	}
	if b.MaxCycleLength <= 0 {
		b.MaxCycleLength = DefaultMaxCycleLength
	}
	if b.MaxCycleLength < b.MinCycleLength {
		b.MaxCycleLength = b.MinCycleLength
	}
	return b
}

// Diagnostics reports whether an enumeration budget tripped. Limited is set
// only when a distinct cycle beyond the budget was actually skipped, not when
// the budget and the cycle count happen to coincide. Partial output remains
// deterministic over the explored portion.
type Diagnostics struct {
	Limited  bool
	TimedOut bool
}

// EnumerateCycles walks each strongly connected component and records every
// simple directed cycle whose length lies in [min, max]. For a given start
// node the walk only descends into nodes sorting at or after the start, so
// each cycle is discovered exactly once with its smallest node leading.
// Output is sorted by length, then by canonical key.
func EnumerateCycles(g *Graph, bounds Bounds) ([][]string, Diagnostics) {
	bounds = bounds.normalized()
	diag := Diagnostics{}
	var deadline time.Time
	if bounds.TimeoutMs > 0 {
		deadline = time.Now().Add(time.Duration(bounds.TimeoutMs) * time.Millisecond)
	}

	seen := make(map[string]bool)
	var cycles [][]string

	components := stronglyConnected(g)
	inComponent := make(map[string]int)
	for ci, comp := range components {
		for _, id := range comp {
			inComponent[id] = ci
		}
	}

	stopped := func() bool {
		if diag.Limited || diag.TimedOut {
			return true
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			diag.TimedOut = true
			return true
		}
		return false
	}

	for _, start := range g.Nodes {
		if stopped() {
			break
		}
		comp := inComponent[start]
		if len(components[comp]) < 2 {
			continue
		}
		path := []string{start}
		onPath := map[string]bool{start: true}
		var walk func(current string) bool
		walk = func(current string) bool {
			for _, next := range g.Adj[current] {
				if stopped() {
					return false
				}
				if inComponent[next] != comp || g.Order(next) < g.Order(start) {
					continue
				}
				if next == start {
					if len(path) >= bounds.MinCycleLength && len(path) <= bounds.MaxCycleLength {
						cycle := canonicalizeCycle(path)
						key := cycleKey(cycle)
						if !seen[key] {
							if bounds.MaxEnumeratedCycles > 0 && len(cycles) >= bounds.MaxEnumeratedCycles {
								diag.Limited = true
								return false
							}
							seen[key] = true
							cycles = append(cycles, cycle)
						}
					}
					continue
				}
				if onPath[next] || len(path) >= bounds.MaxCycleLength {
					continue
				}
				path = append(path, next)
				onPath[next] = true
				ok := walk(next)
				path = path[:len(path)-1]
				delete(onPath, next)
				if !ok {
					return false
				}
			}
			return true
		}
		walk(start)
	}

	sort.Slice(cycles, func(i, j int) bool {
		if len(cycles[i]) != len(cycles[j]) {
			return len(cycles[i]) < len(cycles[j])
		}
		return cycleKey(cycles[i]) < cycleKey(cycles[j])
	})
	return cycles, diag
}

// canonicalizeCycle rotates the cycle so its lexicographically smallest
// intent id leads.
func canonicalizeCycle(cycle []string) []string {
	smallest := 0
	for i, id := range cycle {
		if id < cycle[smallest] {
			smallest = i
		}
	}
	out := make([]string, len(cycle))
	for i := range cycle {
		out[i] = cycle[(smallest+i)%len(cycle)]
	}
	return out
}

func cycleKey(cycle []string) string { return strings.Join(cycle, ">") }
