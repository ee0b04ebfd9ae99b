package matching

// stronglyConnected runs Tarjan's algorithm over the graph in sorted node
// order and returns the components. Component membership bounds the cycle
// walk: a simple cycle never crosses component boundaries.
func stronglyConnected(g *Graph) [][]string {
	n := len(g.Nodes)
	indexOf := make(map[string]int, n)
	lowlink := make(map[string]int, n)
	onStack := make(map[string]bool, n)
	var stack []string
	var components [][]string
	counter := 0

	var strongconnect func(v string)
	strongconnect = func(v string) {
		indexOf[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Adj[v] {
			if _, seen := indexOf[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && indexOf[w] < lowlink[v] {
				lowlink[v] = indexOf[w]
			}
		}

		if lowlink[v] == indexOf[v] {
			var component []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				component = append(component, w)
				if w == v {
					break
				}
			}
			components = append(components, component)
		}
	}

	for _, v := range g.Nodes {
		if _, seen := indexOf[v]; !seen {
			strongconnect(v)
		}
	}
	return components
}
