package queue

import (
	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/domain"
)

// Initialize partitions every node into pending, seeds the entry point
// into ready, and registers every join node found in wf (a node with more
// than one incoming edge that is not a loop sentinel or parallel fan
// target is treated as a fan-in join under domain.JoinWaitAll unless its
// config names a different strategy).
func Initialize(wf *builder.BuiltWorkflow) *State {
	s := &State{
		wf:            wf,
		pending:       map[string]struct{}{},
		ready:         map[string]struct{}{},
		executing:     map[string]struct{}{},
		completed:     map[string]struct{}{},
		failed:        map[string]struct{}{},
		skipped:       map[string]struct{}{},
		activeHandles: map[string][]domain.HandleType{},
		joins:         map[string]*joinState{},
		loopIteration: map[string]int{},
	}

	for id := range wf.Nodes {
		s.pending[id] = struct{}{}
	}
	delete(s.pending, wf.TriggerNodeID)
	s.ready[wf.TriggerNodeID] = struct{}{}
	s.readyOrder = append(s.readyOrder, wf.TriggerNodeID)

	for id, incoming := range wf.Reverse {
		if len(incoming) < 2 {
			continue
		}
		node := wf.Nodes[id]
		if node == nil {
			continue
		}
		strategy := domain.JoinWaitAll
		minRequired := len(incoming)
		if node.Config != nil {
			if raw, ok := node.Config["joinStrategy"].(string); ok && raw != "" {
				strategy = domain.JoinStrategy(raw)
			}
			if raw, ok := node.Config["joinMinRequired"].(float64); ok {
				minRequired = int(raw)
			}
		}
		switch strategy {
		case domain.JoinWaitAny, domain.JoinWaitFirst:
			minRequired = 1
		case domain.JoinWaitN:
			if minRequired <= 0 {
				minRequired = 1
			}
		default:
			minRequired = len(incoming)
		}
		s.joins[id] = &joinState{
			strategy:    strategy,
			minRequired: minRequired,
			completed:   map[string]struct{}{},
			skipped:     map[string]struct{}{},
			incoming:    append([]string{}, incoming...),
		}
	}

	return s
}

// GetReady returns every currently ready node id, ordered by ascending
// depth and then insertion order — the tie-break spec §4.3 requires so
// scheduling is deterministic across runs of the same workflow.
func (s *State) GetReady() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := append([]string{}, s.readyOrder...)
	sortByDepthThenOrder(out, s.wf)
	return out
}

func sortByDepthThenOrder(ids []string, wf *builder.BuiltWorkflow) {
	depthOf := func(id string) int {
		if n := wf.Nodes[id]; n != nil {
			return n.Depth
		}
		return 0
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && depthOf(ids[j]) < depthOf(ids[j-1]); j-- {
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

// MarkExecuting moves a node from ready to executing.
func (s *State) MarkExecuting(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ready, nodeID)
	s.removeFromReadyOrder(nodeID)
	s.executing[nodeID] = struct{}{}
}

func (s *State) removeFromReadyOrder(nodeID string) {
	for i, id := range s.readyOrder {
		if id == nodeID {
			s.readyOrder = append(s.readyOrder[:i], s.readyOrder[i+1:]...)
			return
		}
	}
}

// MarkCompleted moves a node from executing to completed and admits its
// dependents per the branch policy: for a conditional/switch node, only
// the edges whose HandleType is in firedHandles are active, and every
// node exclusively downstream of an inactive edge is pruned to Skipped
// (P5, computed once at build time via wf.ExclusiveDownstream). For a
// plain node firedHandles should be nil, meaning every non-branching
// outgoing edge is active.
func (s *State) MarkCompleted(nodeID string, firedHandles []domain.HandleType) (skipped []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.executing, nodeID)
	s.completed[nodeID] = struct{}{}
	s.activeHandles[nodeID] = firedHandles

	return s.advance(nodeID, firedHandles, false)
}

// MarkFailed moves a node from executing to failed. Its error-handle edge
// (if any) becomes active; every other outgoing edge is pruned.
func (s *State) MarkFailed(nodeID string) (skipped []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.executing, nodeID)
	s.failed[nodeID] = struct{}{}

	return s.advance(nodeID, []domain.HandleType{domain.HandleError}, true)
}

// advance activates the outgoing edges selected by firedHandles (or, when
// firedHandles is nil, every default/structural edge) and prunes the rest.
func (s *State) advance(nodeID string, firedHandles []domain.HandleType, failure bool) []string {
	var prunedIDs []string
	fired := map[domain.HandleType]struct{}{}
	for _, h := range firedHandles {
		fired[h] = struct{}{}
	}

	// A switch node whose reported case has no matching outgoing edge
	// falls back to the default edge, so exactly one edge still fires.
	if !failure && len(fired) > 0 {
		matched := false
		for _, edge := range s.wf.Edges {
			if edge.Source == nodeID {
				if _, ok := fired[edge.HandleType]; ok {
					matched = true
					break
				}
			}
		}
		if !matched {
			fired = map[domain.HandleType]struct{}{domain.HandleDefault: {}}
		}
	}

	for _, edge := range s.wf.Edges {
		if edge.Source != nodeID {
			continue
		}
		active := isEdgeActive(edge.HandleType, fired, firedHandles != nil, failure)
		if active {
			s.completeBranchInto(edge.Target, nodeID)
			continue
		}
		// A loop node that fires its body leaves its exit path pending for
		// the pass that finally exits, so nothing is pruned here.
		if _, isLoop := s.wf.LoopContexts[nodeID]; isLoop && !failure {
			if _, continuing := fired[domain.HandleLoopBody]; continuing {
				continue
			}
		}
		for id := range s.wf.ExclusiveDownstream[edge.ID] {
			if s.skipNode(id) {
				prunedIDs = append(prunedIDs, id)
			}
		}
	}
	return prunedIDs
}

func isEdgeActive(ht domain.HandleType, fired map[domain.HandleType]struct{}, explicit, failure bool) bool {
	if ht == domain.HandleError {
		return failure
	}
	if failure {
		return false
	}
	if !explicit {
		// Plain node: every structural/default edge fires.
		return true
	}
	_, ok := fired[ht]
	return ok
}

// skipNode marks a still-pending node as Skipped. Returns false if the
// node was already resolved (completed/failed/skipped) by another path.
func (s *State) skipNode(nodeID string) bool {
	if _, ok := s.pending[nodeID]; !ok {
		if _, ok := s.ready[nodeID]; !ok {
			return false
		}
		delete(s.ready, nodeID)
		s.removeFromReadyOrder(nodeID)
	} else {
		delete(s.pending, nodeID)
	}
	s.skipped[nodeID] = struct{}{}

	for joinID, js := range s.joins {
		for _, inc := range js.incoming {
			if inc == nodeID {
				js.skipped[nodeID] = struct{}{}
				s.evaluateJoin(joinID)
			}
		}
	}

	// A skipped node never executes, so nothing exclusively downstream of
	// its own outgoing edges will run either; cascade the prune.
	for _, edge := range s.wf.Edges {
		if edge.Source != nodeID {
			continue
		}
		for id := range s.wf.ExclusiveDownstream[edge.ID] {
			s.skipNode(id)
		}
	}
	return true
}

// MarkSkipped marks a pending node skipped directly (e.g. an unreachable
// warning resolved into a no-op at execution time).
func (s *State) MarkSkipped(nodeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipNode(nodeID)
}

func (s *State) admit(target string) {
	if _, ok := s.pending[target]; !ok {
		return
	}
	delete(s.pending, target)
	s.ready[target] = struct{}{}
	s.readyOrder = append(s.readyOrder, target)
}

// completeBranchInto is called by advance/admitOrJoin's caller when an
// edge into a join node fires; it records the branch and evaluates the
// join's strategy.
func (s *State) completeBranchInto(joinID, fromNode string) {
	js, ok := s.joins[joinID]
	if !ok {
		s.admit(joinID)
		return
	}
	js.completed[fromNode] = struct{}{}
	s.evaluateJoin(joinID)
}

func (s *State) evaluateJoin(joinID string) {
	js := s.joins[joinID]
	if js == nil {
		return
	}
	resolved := len(js.completed) + len(js.skipped)
	switch js.strategy {
	case domain.JoinWaitAny, domain.JoinWaitFirst:
		if len(js.completed) >= 1 {
			s.admit(joinID)
		} else if resolved == len(js.incoming) {
			// every branch skipped: nothing to join on, admit anyway so
			// the workflow doesn't stall.
			s.admit(joinID)
		}
	case domain.JoinWaitN:
		if len(js.completed) >= js.minRequired {
			s.admit(joinID)
		} else if resolved == len(js.incoming) {
			s.admit(joinID)
		}
	default: // JoinWaitAll
		if resolved == len(js.incoming) {
			s.admit(joinID)
		}
	}
}

// IsComplete reports whether every node has reached a terminal state.
func (s *State) IsComplete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending) == 0 && len(s.ready) == 0 && len(s.executing) == 0
}

// Snapshot returns copies of the six disjoint sets, for diagnostics/events.
func (s *State) Snapshot() (pending, ready, executing, completed, failed, skipped []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.pending), sortedKeys(s.ready), sortedKeys(s.executing),
		sortedKeys(s.completed), sortedKeys(s.failed), sortedKeys(s.skipped)
}

// ReenterLoop resets every body node of loopID back to pending and
// re-admits the loop's start sentinel, for the next iteration, unless
// maxIterations has been reached (LOOP_LIMIT_EXCEEDED, default 10,000
// per spec Open Question F).
func (s *State) ReenterLoop(loopID string, lc *builder.LoopContext, maxIterations int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxIterations <= 0 {
		maxIterations = defaultMaxLoopIterations
	}
	s.loopIteration[loopID]++
	if s.loopIteration[loopID] > maxIterations {
		return domain.NewNodeError(domain.ErrCodeLoopLimitExceeded, loopID,
			"loop exceeded the maximum iteration count", nil)
	}

	// Only a body node that has already reached a terminal state this pass
	// is reset to pending. A node still in ready/executing belongs to the
	// pass that was just admitted (e.g. the body entry fired by this same
	// loop decision) and must run before it can be reset again — resetting
	// it now would plant it in both pending and ready simultaneously,
	// breaking the six-disjoint-set invariant.
	for id := range lc.BodyNodes {
		_, wasCompleted := s.completed[id]
		_, wasFailed := s.failed[id]
		_, wasSkipped := s.skipped[id]
		if !wasCompleted && !wasFailed && !wasSkipped {
			continue
		}
		delete(s.completed, id)
		delete(s.failed, id)
		delete(s.skipped, id)
		s.pending[id] = struct{}{}
	}

	// The start sentinel drives the next pass but isn't itself a member of
	// BodyNodes, so it needs the same terminal-state reset before it can be
	// admitted again.
	_, startCompleted := s.completed[lc.StartSentinel]
	_, startFailed := s.failed[lc.StartSentinel]
	_, startSkipped := s.skipped[lc.StartSentinel]
	if startCompleted || startFailed || startSkipped {
		delete(s.completed, lc.StartSentinel)
		delete(s.failed, lc.StartSentinel)
		delete(s.skipped, lc.StartSentinel)
		s.pending[lc.StartSentinel] = struct{}{}
	}
	s.admit(lc.StartSentinel)
	return nil
}
