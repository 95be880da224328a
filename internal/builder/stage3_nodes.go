package builder

import (
	"fmt"
	"sort"

	"github.com/flowforge/workflow-core/internal/domain"
)

// stage3Nodes copies every node (real + sentinels) into an ExecutableNode,
// expands parallel branches, and assigns final depth/dependencies. Per
// spec §4.1 Stage 3, expansion and depth assignment happen together since
// expansion changes the node set depth is computed over.
func (b *buildCtx) stage3Nodes() {
	b.parallelBranches = map[string][]string{}

	for id, kind := range b.kinds {
		if kind != domain.NodeKindParallel {
			continue
		}
		b.expandParallel(id)
	}
	if len(b.errors) > 0 {
		return
	}

	// Final forward/reverse adjacency over the fully expanded edge set. A
	// body node's return edge into its loop's start sentinel stays in Edges
	// but is left out of the adjacency, so depth, dependencies and join
	// detection work over an acyclic graph.
	forward := map[string][]string{}
	reverse := map[string][]string{}
	for _, e := range b.edges {
		returnEdge := false
		for _, lc := range b.loopContexts {
			if _, inBody := lc.BodyNodes[e.Source]; inBody && e.Target == lc.StartSentinel {
				returnEdge = true
			}
		}
		if returnEdge {
			continue
		}
		forward[e.Source] = append(forward[e.Source], e.Target)
		reverse[e.Target] = append(reverse[e.Target], e.Source)
	}

	depth, order, err := longestPathDepth(b.kinds, forward, reverse, b.def.EntryPoint)
	if err != nil {
		b.fail(domain.ErrCodeCycle, "", "", "%s", err.Error())
		return
	}
	_ = order

	nodes := map[string]*ExecutableNode{}
	for id, kind := range b.kinds {
		cfg := b.nodeConfigs[id]
		if cfg == nil {
			cfg = map[string]any{}
		}
		dependents := append([]string{}, forward[id]...)
		dependencies := append([]string{}, reverse[id]...)
		sort.Strings(dependents)
		sort.Strings(dependencies)
		nodes[id] = &ExecutableNode{
			ID:           id,
			Type:         kind,
			Name:         b.nodeNames[id],
			Config:       cfg,
			Depth:        depth[id],
			Dependencies: dependencies,
			Dependents:   dependents,
		}
	}

	outputs := map[string]struct{}{}
	for id := range b.kinds {
		if b.kinds[id] == domain.NodeKindOutput {
			outputs[id] = struct{}{}
		}
	}

	maxDepth := 0
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}
	levels := make([][]string, maxDepth+1)
	for id, d := range depth {
		levels[d] = append(levels[d], id)
	}
	for _, lvl := range levels {
		sort.Strings(lvl)
	}

	b.result = &BuiltWorkflow{
		Nodes:            nodes,
		ExecutionLevels:  levels,
		TriggerNodeID:    b.def.EntryPoint,
		OutputNodeIDs:    outputs,
		LoopContexts:     b.loopContexts,
		ParallelBranches: b.parallelBranches,
		Forward:          forward,
		Reverse:          reverse,
	}
}

// expandParallel duplicates the template chain hanging off a parallel
// node's "branch-template" handle, once per declared branch name, or —
// when no branches are declared — records the node's ordinary direct
// successors as its (already distinct) branches, matching the plain
// multi-edge fan-out of spec §8 scenario 4.
func (b *buildCtx) expandParallel(id string) {
	cfg := b.nodeConfigs[id]
	rawBranches, _ := cfg["branches"].([]any)
	var templateEdgeIdx = -1
	for i, e := range b.edges {
		if e.Source == id && e.SourceHandle == "branch-template" {
			templateEdgeIdx = i
			break
		}
	}

	if len(rawBranches) == 0 || templateEdgeIdx == -1 {
		var branches []string
		for _, e := range b.edges {
			if e.Source == id {
				branches = append(branches, e.Target)
			}
		}
		sort.Strings(branches)
		b.parallelBranches[id] = branches
		return
	}

	templateTarget := b.edges[templateEdgeIdx].Target
	chain := b.templateChain(templateTarget)

	var branchIDs []string
	for _, raw := range rawBranches {
		name, _ := raw.(string)
		if name == "" {
			continue
		}
		branchIDs = append(branchIDs, name)
		idMap := map[string]string{}
		for _, nodeID := range chain {
			newID := fmt.Sprintf("%s::%s", nodeID, name)
			idMap[nodeID] = newID
			b.kinds[newID] = b.kinds[nodeID]
			b.nodeNames[newID] = b.nodeNames[nodeID] + " (" + name + ")"
			b.nodeConfigs[newID] = b.nodeConfigs[nodeID]
		}
		b.edges = append(b.edges, expandedEdge{
			ID:     fmt.Sprintf("%s__branch_%s", id, name),
			Source: id,
			Target: idMap[templateTarget],
		})
		for _, e := range b.copyEdgesWithinChain(chain, idMap) {
			b.edges = append(b.edges, e)
		}
		// Edges leaving the chain to an external convergence node are
		// duplicated too, so every branch reaches the same join.
		for _, e := range b.edgesLeavingChain(chain, idMap) {
			b.edges = append(b.edges, e)
		}
	}

	// Remove the original template edge and the template nodes/edges
	// themselves; only the per-branch copies remain.
	b.removeTemplateChain(id, chain)
	b.parallelBranches[id] = branchIDs
}

// templateChain walks forward from start, stopping at a join node (more
// than one distinct incoming source) or a dead end.
func (b *buildCtx) templateChain(start string) []string {
	incoming := map[string]map[string]struct{}{}
	for _, e := range b.edges {
		if incoming[e.Target] == nil {
			incoming[e.Target] = map[string]struct{}{}
		}
		incoming[e.Target][e.Source] = struct{}{}
	}

	chain := []string{}
	cur := start
	visited := map[string]struct{}{}
	for cur != "" {
		if _, seen := visited[cur]; seen {
			break
		}
		visited[cur] = struct{}{}
		chain = append(chain, cur)

		var nexts []string
		for _, e := range b.edges {
			if e.Source == cur {
				nexts = append(nexts, e.Target)
			}
		}
		if len(nexts) != 1 {
			break
		}
		next := nexts[0]
		if len(incoming[next]) > 1 {
			break
		}
		cur = next
	}
	return chain
}

func (b *buildCtx) copyEdgesWithinChain(chain []string, idMap map[string]string) []expandedEdge {
	chainSet := map[string]struct{}{}
	for _, id := range chain {
		chainSet[id] = struct{}{}
	}
	var out []expandedEdge
	for _, e := range b.edges {
		_, srcIn := chainSet[e.Source]
		_, tgtIn := chainSet[e.Target]
		if srcIn && tgtIn {
			out = append(out, expandedEdge{
				ID:           idMap[e.Source] + "->" + idMap[e.Target],
				Source:       idMap[e.Source],
				Target:       idMap[e.Target],
				SourceHandle: e.SourceHandle,
			})
		}
	}
	return out
}

func (b *buildCtx) edgesLeavingChain(chain []string, idMap map[string]string) []expandedEdge {
	chainSet := map[string]struct{}{}
	for _, id := range chain {
		chainSet[id] = struct{}{}
	}
	last := chain[len(chain)-1]
	var out []expandedEdge
	for _, e := range b.edges {
		if e.Source == last {
			if _, tgtInChain := chainSet[e.Target]; !tgtInChain {
				out = append(out, expandedEdge{
					ID:           idMap[last] + "->" + e.Target,
					Source:       idMap[last],
					Target:       e.Target,
					SourceHandle: e.SourceHandle,
				})
			}
		}
	}
	return out
}

func (b *buildCtx) removeTemplateChain(parallelID string, chain []string) {
	chainSet := map[string]struct{}{}
	for _, id := range chain {
		chainSet[id] = struct{}{}
		delete(b.kinds, id)
		delete(b.nodeNames, id)
		delete(b.nodeConfigs, id)
	}
	var kept []expandedEdge
	for _, e := range b.edges {
		if e.Source == parallelID && e.SourceHandle == "branch-template" {
			continue
		}
		if _, in := chainSet[e.Source]; in {
			continue
		}
		if _, in := chainSet[e.Target]; in {
			continue
		}
		kept = append(kept, e)
	}
	b.edges = kept
}

// longestPathDepth assigns depth(n) = 1 + max(depth(dep)) via Kahn's
// algorithm, depth(entry) = 0, per invariant 3.
func longestPathDepth(kinds map[string]domain.NodeKind, forward, reverse map[string][]string, entry string) (map[string]int, []string, error) {
	inDegree := map[string]int{}
	for id := range kinds {
		inDegree[id] = len(reverse[id])
	}
	queue := []string{}
	for id, d := range inDegree {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	depth := map[string]int{entry: 0}
	var order []string
	remaining := map[string]int{}
	for id, d := range inDegree {
		remaining[id] = d
	}
	processed := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		order = append(order, cur)
		processed++
		for _, dep := range reverse[cur] {
			if d, ok := depth[dep]; ok {
				if nd := d + 1; nd > depth[cur] {
					depth[cur] = nd
				}
			}
		}
		for _, next := range forward[cur] {
			remaining[next]--
			if remaining[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if processed != len(kinds) {
		return nil, nil, fmt.Errorf("cycle detected after loop/parallel expansion")
	}
	return depth, order, nil
}
