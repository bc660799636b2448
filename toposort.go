package gridcalc

import "slices"

// Order sorts the subgraph spanned by roots and edges so that every
// referenced label precedes its subscribers.
//
// Labels that sit on a cycle (a strongly connected component of more than one
// label, or a label subscribed to itself) are left out of order and returned
// in cyclic instead; labels downstream of a cycle stay in order after it. The
// result depends only on the order of roots and edges.
func Order(roots []string, edges []Edge) (order, cyclic []string) {
	var nodes []string
	known := make(map[string]bool)
	addNode := func(label string) {
		if !known[label] {
			known[label] = true
			nodes = append(nodes, label)
		}
	}
	for _, r := range roots {
		addNode(r)
	}
	adj := make(map[string][]string)
	selfLoop := make(map[string]bool)
	for _, e := range edges {
		addNode(e.From)
		addNode(e.To)
		adj[e.From] = append(adj[e.From], e.To)
		if e.From == e.To {
			selfLoop[e.From] = true
		}
	}

	// Tarjan emits a component only after every component reachable from it.
	var (
		next    int
		stack   []string
		sccs    [][]string
		index   = make(map[string]int, len(nodes))
		low     = make(map[string]int, len(nodes))
		onStack = make(map[string]bool, len(nodes))
	)
	var connect func(v string)
	connect = func(v string) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range adj[v] {
			if _, seen := index[w]; !seen {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var scc []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		sccs = append(sccs, scc)
	}
	// Starting from the last node makes independent labels come out in the
	// order they were given.
	for i := len(nodes) - 1; i >= 0; i-- {
		if _, seen := index[nodes[i]]; !seen {
			connect(nodes[i])
		}
	}

	for i := len(sccs) - 1; i >= 0; i-- {
		scc := sccs[i]
		if len(scc) > 1 || selfLoop[scc[0]] {
			slices.Reverse(scc)
			cyclic = append(cyclic, scc...)
			continue
		}
		order = append(order, scc[0])
	}
	return order, cyclic
}
