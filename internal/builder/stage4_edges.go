package builder

import (
	"fmt"

	"github.com/flowforge/workflow-core/internal/domain"
)

// stage4Edges classifies every expanded edge's handle into a domain.HandleType,
// rejects unknown handles and duplicate switch cases, and populates the
// BuiltWorkflow's edge indices, per spec §4.1 Stage 4.
func (b *buildCtx) stage4Edges() {
	edges := map[string]*TypedEdge{}
	byPair := map[string]*TypedEdge{}
	caseSeen := map[string]map[string]string{} // nodeID -> case value -> edgeID

	for _, e := range b.edges {
		ht, err := classifyHandle(e.SourceHandle)
		if err != nil {
			b.fail(domain.ErrCodeUnknownHandle, "", e.ID, "%s", err.Error())
			continue
		}

		if v, isCase := ht.IsCase(); isCase {
			if caseSeen[e.Source] == nil {
				caseSeen[e.Source] = map[string]string{}
			}
			if prior, dup := caseSeen[e.Source][v]; dup {
				b.fail(domain.ErrCodeDuplicateCase, e.Source, e.ID,
					"node %q has two outgoing edges for case %q (%q and %q)", e.Source, v, prior, e.ID)
				continue
			}
			caseSeen[e.Source][v] = e.ID
		}

		te := &TypedEdge{
			ID:           e.ID,
			Source:       e.Source,
			Target:       e.Target,
			SourceHandle: e.SourceHandle,
			HandleType:   ht,
		}
		edges[e.ID] = te
		byPair[edgeKey(e.Source, e.Target)] = te
	}
	if len(b.errors) > 0 {
		return
	}

	b.result.Edges = edges
	b.result.EdgeByPair = byPair
}

// classifyHandle maps a raw SourceHandle string to its domain.HandleType.
func classifyHandle(raw string) (domain.HandleType, error) {
	switch raw {
	case "", "output":
		return domain.HandleDefault, nil
	case string(domain.HandleTrue):
		return domain.HandleTrue, nil
	case string(domain.HandleFalse):
		return domain.HandleFalse, nil
	case string(domain.HandleError):
		return domain.HandleError, nil
	case string(domain.HandleLoopBody):
		return domain.HandleLoopBody, nil
	case string(domain.HandleLoopExit):
		return domain.HandleLoopExit, nil
	}
	if ht := domain.HandleType(raw); func() bool { _, ok := ht.IsCase(); return ok }() {
		return ht, nil
	}
	return "", fmt.Errorf("unrecognized handle %q", raw)
}
