package ctxstore

import (
	"bytes"
	"encoding/json"

	"github.com/flowforge/workflow-core/internal/domain"
)

// New creates an empty Snapshot.
func New() *Snapshot {
	return &Snapshot{
		outputs:   map[string]*NodeOutput{},
		variables: map[string]any{},
		inputs:    map[string]any{},
	}
}

// CreateContext seeds the snapshot with a submission's inputs, exposed to
// templates as {{input.<key>}}.
func CreateContext(inputs map[string]any) *Snapshot {
	s := New()
	for k, v := range inputs {
		s.inputs[k] = v
	}
	return s
}

// canonicalize produces the deterministic JSON encoding used for both
// persistence and byte accounting. encoding/json already sorts map[string]any
// keys, which is the only determinism guarantee this needs; no library in
// the example pack offers a canonical-JSON encoder, so this stays stdlib.
func canonicalize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// byteLen reports the UTF-8 byte length of a canonical encoding — the
// size unit every cap in spec §4.5/§5 is expressed in, not rune count.
// len() on a []byte of UTF-8 text already counts bytes.
func byteLen(canon []byte) int {
	return len(canon)
}

// MeasureOutput canonicalizes value and reports its would-be NodeOutput
// (byte size included) without recording anything in a snapshot, so a
// caller can size-check a candidate output before deciding whether to
// commit it. The governor (C5) probes with this before ever calling
// StoreNodeOutput, so a node that fails the per-node cap is never stored.
func MeasureOutput(nodeID string, value any) (*NodeOutput, error) {
	canon, err := canonicalize(value)
	if err != nil {
		return nil, domain.NewNodeError(domain.ErrCodeInterpolationFailed, nodeID, "failed to canonicalize node output", err)
	}
	return &NodeOutput{NodeID: nodeID, Value: value, Canon: canon, Bytes: byteLen(canon)}, nil
}

// StoreNodeOutput canonicalizes and records a node's output, returning its
// byte size. It does not enforce caps; the governor (C5) calls Bytes/
// TotalBytes and decides whether to reject or evict before calling this.
func (s *Snapshot) StoreNodeOutput(nodeID string, value any) (*NodeOutput, error) {
	n, err := MeasureOutput(nodeID, value)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.outputs[nodeID]; ok {
		s.totalBytes -= existing.Bytes
	} else {
		s.order = append(s.order, nodeID)
	}
	s.outputs[nodeID] = n
	s.totalBytes += n.Bytes
	return n, nil
}

// GetNodeOutput returns a node's stored output and whether it is present
// (and not yet evicted).
func (s *Snapshot) GetNodeOutput(nodeID string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.outputs[nodeID]
	if !ok || n.Evicted {
		return nil, false
	}
	return n.Value, true
}

// EvictOldest marks the oldest not-yet-evicted output (by insertion order)
// as evicted, skipping any id in keep, and returns the bytes reclaimed.
// Used by the governor's oldest-first eviction policy (spec C5).
func (s *Snapshot) EvictOldest(keep map[string]struct{}) (string, int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.order {
		if _, skip := keep[id]; skip {
			continue
		}
		n := s.outputs[id]
		if n == nil || n.Evicted {
			continue
		}
		n.Evicted = true
		n.Value = nil
		freed := n.Bytes
		s.totalBytes -= freed
		n.Bytes = 0
		return id, freed, true
	}
	return "", 0, false
}

// TotalBytes returns the current sum of all non-evicted node output sizes.
func (s *Snapshot) TotalBytes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalBytes
}

// SetVariable sets a workflow-scoped variable, resolved by templates as
// {{vars.<key>}}.
func (s *Snapshot) SetVariable(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.variables[key] = value
}

// GetVariable retrieves a workflow-scoped variable.
func (s *Snapshot) GetVariable(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variables[key]
	return v, ok
}

// PushLoopFrame enters a loop iteration, scoping {{loop.item}}/{{loop.index}}.
func (s *Snapshot) PushLoopFrame(loopNodeID string, index int, item any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loopFrames = append(s.loopFrames, LoopFrame{LoopNodeID: loopNodeID, Index: index, Item: item})
}

// PopLoopFrame leaves the current loop iteration. A pop against an empty
// stack is a push/pop mismatch in the caller, not something to swallow:
// it would otherwise leave a stale (or absent) frame scoping {{loop.*}}
// for whatever runs next, silently.
func (s *Snapshot) PopLoopFrame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.loopFrames)
	if n == 0 {
		return domain.NewError(domain.ErrCodeStackUnderflow, "PopLoopFrame called with no active loop frame", nil)
	}
	s.loopFrames = s.loopFrames[:n-1]
	return nil
}

// PushParallelFrame enters a parallel branch, scoping {{branch.name}}.
func (s *Snapshot) PushParallelFrame(parallelNodeID, branch string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parallelFrames = append(s.parallelFrames, ParallelFrame{ParallelNodeID: parallelNodeID, Branch: branch})
}

// PopParallelFrame leaves the current parallel branch. Like PopLoopFrame,
// this fails hard on an empty stack rather than no-op, so a stack
// discipline bug surfaces immediately instead of corrupting {{branch.*}}
// scoping for a later node.
func (s *Snapshot) PopParallelFrame() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.parallelFrames)
	if n == 0 {
		return domain.NewError(domain.ErrCodeStackUnderflow, "PopParallelFrame called with no active parallel frame", nil)
	}
	s.parallelFrames = s.parallelFrames[:n-1]
	return nil
}

// BuildFinalOutputs collects the stored outputs of every node in
// outputNodeIDs into the execution's final result map, keyed by node id.
func (s *Snapshot) BuildFinalOutputs(outputNodeIDs map[string]struct{}) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[string]any, len(outputNodeIDs))
	for id := range outputNodeIDs {
		if n, ok := s.outputs[id]; ok && !n.Evicted {
			result[id] = n.Value
		}
	}
	return result
}
