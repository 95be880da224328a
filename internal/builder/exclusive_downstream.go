package builder

// computeExclusiveDownstream precomputes, for every edge, the set of nodes
// reachable ONLY through that edge — i.e. nodes every other path into them
// is also downstream of the same edge. C3 uses this to prune a branch's
// exclusive descendants in one step when a sibling handle fires instead
// (spec §4.3's branch policy).
//
// A node n is exclusive to edge (u->v) when every path from the trigger to
// n passes through v. That holds iff n is reachable from v and, separately,
// removing v from the graph makes n unreachable from the trigger.
func (b *buildCtx) computeExclusiveDownstream() {
	result := map[string]map[string]struct{}{}

	reachableFrom := func(start string, excluded string) map[string]struct{} {
		seen := map[string]struct{}{}
		if start == excluded {
			return seen
		}
		queue := []string{start}
		seen[start] = struct{}{}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for _, next := range b.result.Forward[cur] {
				if next == excluded {
					continue
				}
				if _, ok := seen[next]; ok {
					continue
				}
				seen[next] = struct{}{}
				queue = append(queue, next)
			}
		}
		return seen
	}

	trigger := b.result.TriggerNodeID
	for _, e := range b.result.Edges {
		downstreamOfV := reachableFrom(e.Target, "")
		reachableWithoutV := reachableFrom(trigger, e.Target)

		exclusive := map[string]struct{}{}
		for n := range downstreamOfV {
			if _, stillReachable := reachableWithoutV[n]; !stillReachable {
				exclusive[n] = struct{}{}
			}
		}
		result[e.ID] = exclusive
	}

	b.result.ExclusiveDownstream = result
}
