package builder

import (
	"fmt"

	"github.com/flowforge/workflow-core/internal/domain"
)

// expandedEdge is the builder's working edge representation; it starts as
// a 1:1 copy of the definition's edges and is rewritten by stages 2 and 3
// as sentinels and parallel branches are introduced.
type expandedEdge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
}

// stage2Loops inserts a start/end sentinel pair around every loop node,
// per spec §4.1 Stage 2. Sentinel insertion is the only point where an
// apparent cycle becomes legal; after insertion the graph is acyclic.
func (b *buildCtx) stage2Loops() {
	b.nodeConfigs = map[string]map[string]any{}
	b.nodeNames = map[string]string{}
	for id, n := range b.def.Nodes {
		b.nodeConfigs[id] = n.Config
		b.nodeNames[id] = n.Name
	}

	b.edges = make([]expandedEdge, 0, len(b.def.Edges))
	for _, e := range b.def.Edges {
		b.edges = append(b.edges, expandedEdge{ID: e.ID, Source: e.Source, Target: e.Target, SourceHandle: e.SourceHandle})
	}

	b.loopContexts = map[string]*LoopContext{}

	for id, kind := range b.kinds {
		if kind != domain.NodeKindLoop {
			continue
		}
		startID := id + "__LOOP_START"
		endID := id + "__LOOP_END"

		b.kinds[startID] = domain.NodeKindLoopStart
		b.kinds[endID] = domain.NodeKindLoopEnd
		b.nodeNames[startID] = b.nodeNames[id] + " (start)"
		b.nodeNames[endID] = b.nodeNames[id] + " (end)"
		b.nodeConfigs[startID] = map[string]any{}
		b.nodeConfigs[endID] = map[string]any{}

		loopKind, _ := b.nodeConfigs[id]["kind"].(string)
		if loopKind == "" {
			loopKind = string(domain.LoopForEach)
		}
		arrayPath, _ := b.nodeConfigs[id]["arrayPath"].(string)

		bodyEntries := []string{}
		for i := range b.edges {
			e := &b.edges[i]
			switch {
			case e.Target == id:
				// Both back edges from the loop body and plain external
				// incoming edges now enter via the start sentinel.
				e.Target = startID
			case e.Source == id && e.SourceHandle == string(domain.HandleLoopExit):
				// Exit edge: now leaves from the end sentinel.
				e.Source = endID
			case e.Source == id && e.SourceHandle == string(domain.HandleLoopBody):
				bodyEntries = append(bodyEntries, e.Target)
			}
		}

		b.edges = append(b.edges,
			expandedEdge{ID: fmt.Sprintf("%s__sentinel_in", id), Source: startID, Target: id, SourceHandle: ""},
			expandedEdge{ID: fmt.Sprintf("%s__sentinel_out", id), Source: id, Target: endID, SourceHandle: ""},
		)

		bodyNodes := b.bodySubgraph(bodyEntries, id)
		// The loop node itself re-decides continue/exit every iteration,
		// so its own re-admission is part of the body's reset, not a
		// one-time decision the sentinels make for it.
		bodyNodes[id] = struct{}{}

		b.loopContexts[id] = &LoopContext{
			Kind:          domain.LoopKind(loopKind),
			ArrayPath:     arrayPath,
			BodyNodes:     bodyNodes,
			StartSentinel: startID,
			EndSentinel:   endID,
		}
	}
}

// bodySubgraph returns every node reachable forward from entries without
// crossing back into loopID or its start sentinel (the back edge was
// already retargeted to the start sentinel, so stopping there keeps this a
// plain DAG walk and leaves the sentinel out of the body).
func (b *buildCtx) bodySubgraph(entries []string, loopID string) map[string]struct{} {
	body := map[string]struct{}{}
	queue := append([]string{}, entries...)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == loopID || cur == loopID+"__LOOP_START" {
			continue
		}
		if _, seen := body[cur]; seen {
			continue
		}
		body[cur] = struct{}{}
		for _, e := range b.edges {
			if e.Source == cur {
				queue = append(queue, e.Target)
			}
		}
	}
	return body
}
