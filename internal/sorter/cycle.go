package sorter

const (
	unvisited = iota
	visiting
	visited
)

// detectCycles walks predecessor edges depth first. Every edge that closes a
// loop on the recursion stack is recorded as a cycle and marked as a back
// edge so ranking can still produce a partial order.
func (g *graph) detectCycles() {
	state := make(map[*node]int, len(g.nodes))
	var stack []*node

	var visit func(n *node)
	visit = func(n *node) {
		state[n] = visiting
		stack = append(stack, n)
		for _, p := range n.predList {
			switch state[p] {
			case visiting:
				n.back[p] = true
				g.recordCycle(stack, p)
			case unvisited:
				visit(p)
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
	}

	for _, n := range g.nodes {
		if state[n] == unvisited {
			visit(n)
		}
	}
	if len(g.diags.Cycles) > 0 {
		g.diags.Cycle = g.diags.Cycles[0]
	}
}

// recordCycle stores the stack segment starting at p, closed with p again.
// Each entry depends on the one after it.
func (g *graph) recordCycle(stack []*node, p *node) {
	start := len(stack) - 1
	for start > 0 && stack[start] != p {
		start--
	}
	path := make([]string, 0, len(stack)-start+1)
	for _, n := range stack[start:] {
		path = append(path, n.name())
	}
	path = append(path, p.name())
	g.diags.Cycles = append(g.diags.Cycles, path)
}

// computeRanks assigns 0 to nodes without predecessors and 1 + the highest
// predecessor rank to every other node. Back edges are ignored.
func (g *graph) computeRanks() {
	var rank func(n *node) int
	rank = func(n *node) int {
		if n.ranked {
			return n.rank
		}
		r := 0
		for _, p := range n.predList {
			if n.back[p] {
				continue
			}
			if pr := rank(p) + 1; pr > r {
				r = pr
			}
		}
		n.rank = r
		n.ranked = true
		return r
	}
	for _, n := range g.nodes {
		rank(n)
	}
}
