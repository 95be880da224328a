package builder

import (
	"github.com/flowforge/workflow-core/internal/domain"
)

// stage1Paths validates structure, builds adjacency, computes reachability
// and depth, and detects illegal cycles (any cycle not routed through a
// loop node). Grounded on executor/graph.go's WorkflowGraph adjacency and
// hasCyclesDFS, generalized to emit structured BuildError/BuildWarning
// values instead of a bare error/log.Printf.
func (b *buildCtx) stage1Paths() {
	if len(b.def.Nodes) == 0 {
		b.fail(domain.ErrCodeNoNodes, "", "", "workflow definition has no nodes")
		return
	}
	if b.def.EntryPoint == "" {
		b.fail(domain.ErrCodeNoEntryPoint, "", "", "workflow definition has no entryPoint")
		return
	}
	if _, ok := b.def.Nodes[b.def.EntryPoint]; !ok {
		b.fail(domain.ErrCodeNoEntryPoint, b.def.EntryPoint, "", "entryPoint %q is not a declared node", b.def.EntryPoint)
		return
	}

	for id, n := range b.def.Nodes {
		kind := domain.NodeKind(n.Type)
		if !kind.IsValid() {
			b.fail(domain.ErrCodeUnknownNodeType, id, "", "node %q has unknown type %q", id, n.Type)
			continue
		}
		if n.Name == "" {
			b.fail(domain.ErrCodeInvalidInput, id, "", "node %q has an empty name", id)
			continue
		}
		b.kinds[id] = kind
	}
	if len(b.errors) > 0 {
		return
	}

	for _, e := range b.def.Edges {
		if _, ok := b.def.Nodes[e.Source]; !ok {
			b.fail(domain.ErrCodeDanglingEdge, "", e.ID, "edge %q source %q does not exist", e.ID, e.Source)
			continue
		}
		if _, ok := b.def.Nodes[e.Target]; !ok {
			b.fail(domain.ErrCodeDanglingEdge, "", e.ID, "edge %q target %q does not exist", e.ID, e.Target)
			continue
		}
		if e.Source == e.Target {
			b.fail(domain.ErrCodeCycle, "", e.ID, "edge %q is a self-loop (%q -> %q), forbidden", e.ID, e.Source, e.Target)
			continue
		}
		b.forward[e.Source] = append(b.forward[e.Source], e.Target)
		b.reverse[e.Target] = append(b.reverse[e.Target], e.Source)
	}
	if len(b.errors) > 0 {
		return
	}

	// Cycle detection: a back edge into a loop-kind node is a legal
	// loop body return edge; any other back edge is a CYCLE error.
	visited := map[string]struct{}{}
	inStack := map[string]struct{}{}
	var dfs func(node string) bool
	dfs = func(node string) bool {
		visited[node] = struct{}{}
		inStack[node] = struct{}{}
		for _, next := range b.forward[node] {
			if _, onStack := inStack[next]; onStack {
				if b.kinds[next] == domain.NodeKindLoop {
					b.loopBackEdges[edgeKey(node, next)] = struct{}{}
					continue
				}
				b.fail(domain.ErrCodeCycle, next, "", "cycle detected through node %q (not a loop node)", next)
				return true
			}
			if _, seen := visited[next]; !seen {
				if dfs(next) {
					return true
				}
			}
		}
		delete(inStack, node)
		return false
	}
	// The walk starts at the entry point, so a loop body is entered through
	// its loop node and the body's return edge is the one seen as the back
	// edge; nodes the entry point does not reach are walked afterwards.
	if !dfs(b.def.EntryPoint) {
		for id := range b.def.Nodes {
			if _, seen := visited[id]; !seen {
				if dfs(id) {
					break
				}
			}
		}
	}
	if len(b.errors) > 0 {
		return
	}

	// Reachability + depth via Kahn's algorithm over the DAG with loop
	// back-edges removed (invariant 3: depth(n) = 1 + max(depth(dep))).
	fwdDAG := map[string][]string{}
	inDegree := map[string]int{}
	for id := range b.def.Nodes {
		inDegree[id] = 0
	}
	for src, targets := range b.forward {
		for _, tgt := range targets {
			if _, isBack := b.loopBackEdges[edgeKey(src, tgt)]; isBack {
				continue
			}
			fwdDAG[src] = append(fwdDAG[src], tgt)
			inDegree[tgt]++
		}
	}

	b.depth = map[string]int{b.def.EntryPoint: 0}
	b.reachable = map[string]struct{}{b.def.EntryPoint: {}}

	queue := []string{}
	remaining := map[string]int{}
	for id, d := range inDegree {
		remaining[id] = d
		if d == 0 {
			queue = append(queue, id)
		}
	}
	processed := map[string]struct{}{}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		processed[cur] = struct{}{}
		for _, next := range fwdDAG[cur] {
			if _, ok := b.reachable[cur]; ok {
				b.reachable[next] = struct{}{}
				nd := b.depth[cur] + 1
				if existing, ok := b.depth[next]; !ok || nd > existing {
					b.depth[next] = nd
				}
			}
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	for id := range b.def.Nodes {
		if _, ok := processed[id]; !ok {
			// A node with remaining in-degree > 0 here only happens if an
			// illegal cycle survived (shouldn't, given the DFS check above).
			b.fail(domain.ErrCodeCycle, id, "", "cycle detected involving node %q", id)
		}
	}
	if len(b.errors) > 0 {
		return
	}

	for id, deg := range inDegree {
		if _, reached := b.reachable[id]; !reached && deg == 0 && id != b.def.EntryPoint {
			b.warn(domain.WarnCodeUnreachableNode, id, "node %q has no incoming edges and is not reachable from the entry point", id)
		}
	}
}

func edgeKey(source, target string) string { return source + "\x00" + target }
