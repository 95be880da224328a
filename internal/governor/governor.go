// Package governor implements the Size Governor (C5): per-node and total
// context byte caps, with oldest-first eviction that never reclaims an
// output a pending dependent still needs (invariant P6).
package governor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

const (
	// DefaultMaxNodeOutputBytes is the per-node output cap (1 MiB).
	DefaultMaxNodeOutputBytes = 1 << 20
	// DefaultMaxContextBytes is the total-context cap (50 MiB).
	DefaultMaxContextBytes = 50 << 20
)

// Governor enforces the size caps of spec §4.5 against a ctxstore.Snapshot.
type Governor struct {
	maxNodeBytes    int
	maxContextBytes int

	contextBytes   prometheus.Gauge
	evictionsTotal prometheus.Counter
	prunedTotal    prometheus.Counter
}

// Option configures non-default caps.
type Option func(*Governor)

// WithMaxNodeOutputBytes overrides the per-node output cap.
func WithMaxNodeOutputBytes(n int) Option {
	return func(g *Governor) {
		if n > 0 {
			g.maxNodeBytes = n
		}
	}
}

// WithMaxContextBytes overrides the total context cap.
func WithMaxContextBytes(n int) Option {
	return func(g *Governor) {
		if n > 0 {
			g.maxContextBytes = n
		}
	}
}

// New constructs a Governor and registers its collectors against reg; a
// nil reg leaves them unregistered.
func New(reg prometheus.Registerer, opts ...Option) *Governor {
	g := &Governor{
		maxNodeBytes:    DefaultMaxNodeOutputBytes,
		maxContextBytes: DefaultMaxContextBytes,
		contextBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "workflow_core",
			Subsystem: "governor",
			Name:      "context_bytes",
			Help:      "Current total size in bytes of all stored node outputs for the active execution.",
		}),
		evictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow_core",
			Subsystem: "governor",
			Name:      "evictions_total",
			Help:      "Number of node outputs evicted to stay under the total context cap.",
		}),
		prunedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "workflow_core",
			Subsystem: "governor",
			Name:      "outputs_rejected_total",
			Help:      "Number of node outputs rejected for exceeding the per-node cap.",
		}),
	}
	if reg != nil {
		reg.MustRegister(g.contextBytes, g.evictionsTotal, g.prunedTotal)
	}
	return g
}

// Admit validates a node's output against the per-node cap, stores it, and
// then evicts the oldest evictable outputs (never nodeID itself, nor any
// id in stillNeeded) until the total context fits under the cap.
//
// Returns the ids evicted, if any (for an OUTPUT_PRUNED event per spec
// §7), and an error when the output is rejected or the total cannot be
// brought under the cap.
func (g *Governor) Admit(snap *ctxstore.Snapshot, nodeID string, output any, stillNeeded map[string]struct{}) (evicted []string, err error) {
	probe, perr := ctxstore.MeasureOutput(nodeID, output)
	if perr != nil {
		return nil, perr
	}
	if probe.Bytes > g.maxNodeBytes {
		g.prunedTotal.Inc()
		return nil, domain.NewNodeError(domain.ErrCodeOutputTooLarge, nodeID,
			"node output exceeds the per-node size cap", nil)
	}

	if _, err := snap.StoreNodeOutput(nodeID, output); err != nil {
		return nil, err
	}

	keep := map[string]struct{}{nodeID: {}}
	for k := range stillNeeded {
		keep[k] = struct{}{}
	}
	for snap.TotalBytes() > g.maxContextBytes {
		id, _, ok := snap.EvictOldest(keep)
		if !ok {
			g.contextBytes.Set(float64(snap.TotalBytes()))
			return evicted, domain.NewError(domain.ErrCodeContextOverflow,
				"total context size exceeds the cap and nothing further can be evicted", nil)
		}
		g.evictionsTotal.Inc()
		evicted = append(evicted, id)
	}

	g.contextBytes.Set(float64(snap.TotalBytes()))
	return evicted, nil
}
