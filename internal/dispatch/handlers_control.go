package dispatch

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// conditionalHandler evaluates config["expression"] with expr-lang against
// every upstream node's output and fires exactly one of {true, false}.
func conditionalHandler(_ context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
	expression, _ := resolved["expression"].(string)
	if expression == "" {
		return Result{}, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "conditional node has no expression", nil)
	}

	env := conditionEnv(node, snap)
	program, err := expr.Compile(expression, expr.Env(env), expr.AsBool())
	if err != nil {
		return Result{}, domain.NewNodeError(domain.ErrCodeInvalidVariableRef, node.ID,
			fmt.Sprintf("conditional expression does not compile: %s", err), err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Result{}, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "conditional expression failed to evaluate", err)
	}
	result, _ := out.(bool)

	handle := domain.HandleFalse
	if result {
		handle = domain.HandleTrue
	}
	return Result{Output: map[string]any{"result": result}, FiredHandles: []domain.HandleType{handle}}, nil
}

// switchHandler evaluates config["expression"] to a string and fires the
// matching case-<value> handle, or default when no case edge matches.
func switchHandler(_ context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
	expression, _ := resolved["expression"].(string)
	if expression == "" {
		return Result{}, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "switch node has no expression", nil)
	}

	env := conditionEnv(node, snap)
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return Result{}, domain.NewNodeError(domain.ErrCodeInvalidVariableRef, node.ID,
			fmt.Sprintf("switch expression does not compile: %s", err), err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return Result{}, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "switch expression failed to evaluate", err)
	}

	value := fmt.Sprint(out)
	handle := domain.CaseHandle(value)
	// The queue falls back to the default edge itself when no case-<value>
	// edge matches, so only the matched case needs to be reported here.
	return Result{Output: map[string]any{"result": value}, FiredHandles: []domain.HandleType{handle}}, nil
}

// conditionEnv exposes every upstream node's output, keyed by node id, to
// a conditional/switch expression.
func conditionEnv(node *builder.ExecutableNode, snap *ctxstore.Snapshot) map[string]any {
	env := map[string]any{}
	for _, dep := range node.Dependencies {
		if v, ok := snap.GetNodeOutput(dep); ok {
			env[dep] = v
		}
	}
	return env
}
