// Package workflow is the public submission surface: the exact
// WorkflowDefinition shape of spec §3, plus a fluent builder for
// composing one programmatically.
package workflow

// Position is the two numeric editor coordinates a node carries; the
// builder validates their presence but never interprets them.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// NodeDef is one entry of a WorkflowDefinition's node map. Config is a
// free-form nested value tree whose leaves may contain `{{ref}}` templates.
type NodeDef struct {
	Type     string         `json:"type" yaml:"type" validate:"required"`
	Name     string         `json:"name" yaml:"name" validate:"required"`
	Config   map[string]any `json:"config" yaml:"config"`
	Position Position       `json:"position" yaml:"position"`
}

// EdgeDef is one entry of a WorkflowDefinition's edge sequence.
// SourceHandle selects which named socket on Source the edge leaves from;
// empty means the node's default output.
type EdgeDef struct {
	ID           string `json:"id" yaml:"id" validate:"required"`
	Source       string `json:"source" yaml:"source" validate:"required"`
	Target       string `json:"target" yaml:"target" validate:"required"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// Definition is the WorkflowDefinition input artifact of spec §3.
type Definition struct {
	Name       string             `json:"name" yaml:"name" validate:"required"`
	Version    string             `json:"version" yaml:"version"`
	EntryPoint string             `json:"entryPoint" yaml:"entryPoint" validate:"required"`
	Nodes      map[string]NodeDef `json:"nodes" yaml:"nodes"`
	Edges      []EdgeDef          `json:"edges" yaml:"edges"`
}

// RetryPolicyOptions mirrors the retryPolicy object accepted in
// ExecutionOptions (spec §6, §4.4 defaults).
type RetryPolicyOptions struct {
	MaxRetries int     `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	BaseDelay  int     `json:"baseDelayMs,omitempty" yaml:"baseDelayMs,omitempty"`
	MaxDelay   int     `json:"maxDelayMs,omitempty" yaml:"maxDelayMs,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// ExecutionOptions is the `options` field of a workflow submission.
type ExecutionOptions struct {
	MaxConcurrentNodes int                 `json:"maxConcurrentNodes,omitempty" yaml:"maxConcurrentNodes,omitempty" validate:"omitempty,min=1,max=64"`
	SkipCreditCheck    bool                `json:"skipCreditCheck,omitempty" yaml:"skipCreditCheck,omitempty"`
	MaxNodeOutputBytes int                 `json:"maxNodeOutputBytes,omitempty" yaml:"maxNodeOutputBytes,omitempty"`
	MaxContextBytes    int                 `json:"maxContextBytes,omitempty" yaml:"maxContextBytes,omitempty"`
	ExecutionTimeoutMs int                 `json:"executionTimeoutMs,omitempty" yaml:"executionTimeoutMs,omitempty"`
	RetryPolicy        *RetryPolicyOptions `json:"retryPolicy,omitempty" yaml:"retryPolicy,omitempty"`
}

// Submission is the orchestrator entry point payload.
type Submission struct {
	ExecutionID string           `json:"executionId" yaml:"executionId" validate:"required"`
	Definition  Definition       `json:"definition" yaml:"definition" validate:"required"`
	Inputs      map[string]any   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Options     ExecutionOptions `json:"options,omitempty" yaml:"options,omitempty"`
}
