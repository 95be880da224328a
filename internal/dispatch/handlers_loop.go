package dispatch

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// newLoopHandler evaluates a loop node's continuation test once per
// iteration and fires HandleLoopBody to re-enter the body or HandleDefault
// (the sentinel_out edge into the end sentinel) to exit, per spec's
// `{continue, iteration, item}` loop contract. The iteration counter and
// the in-flight forEach item live in the context store so they survive
// across the separate dispatch calls each iteration makes to this node.
func newLoopHandler() Handler {
	return HandlerFunc(func(_ context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
		idxKey := "__loop_index:" + node.ID

		idx := 0
		if v, ok := snap.GetVariable(idxKey); ok {
			if n, ok := v.(int); ok {
				idx = n
			}
		}

		// A frame from the previous iteration (if any) is replaced before
		// this iteration's decision is made, so loop.item/loop.index never
		// reflect a stale iteration while this node itself runs.
		if idx > 0 {
			if err := snap.PopLoopFrame(); err != nil {
				return Result{}, err
			}
		}

		kind, _ := resolved["kind"].(string)
		if kind == "" {
			kind = string(domain.LoopForEach)
		}

		var cont bool
		var item any

		switch domain.LoopKind(kind) {
		case domain.LoopWhile:
			result, err := evalLoopExpr(node, resolved, snap, "condition")
			if err != nil {
				return Result{}, err
			}
			cont, _ = result.(bool)
		case domain.LoopCount:
			count, err := loopCount(node, resolved, snap)
			if err != nil {
				return Result{}, err
			}
			cont = idx < count
			item = idx
		default:
			items, err := loopArray(node, resolved)
			if err != nil {
				return Result{}, err
			}
			cont = idx < len(items)
			if cont {
				item = items[idx]
			}
		}

		if cont {
			snap.PushLoopFrame(node.ID, idx, item)
			snap.SetVariable(idxKey, idx+1)
			return Result{
				Output:       map[string]any{"continue": true, "iteration": idx, "item": item},
				FiredHandles: []domain.HandleType{domain.HandleLoopBody},
			}, nil
		}

		snap.SetVariable(idxKey, 0)
		return Result{
			Output:       map[string]any{"continue": false, "iteration": idx, "completed": true},
			FiredHandles: []domain.HandleType{domain.HandleDefault},
		}, nil
	})
}

func loopArray(node *builder.ExecutableNode, resolved map[string]any) ([]any, error) {
	raw, ok := resolved["arrayPath"]
	if !ok || raw == nil {
		return nil, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "forEach loop has no arrayPath", nil)
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "forEach loop's arrayPath did not resolve to an array", nil)
	}
	return items, nil
}

func loopCount(node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (int, error) {
	switch v := resolved["count"].(type) {
	case int:
		return v, nil
	case float64:
		return int(v), nil
	case string:
		result, err := evalLoopExprValue(node, v, snap)
		if err != nil {
			return 0, err
		}
		n, _ := result.(int)
		return n, nil
	default:
		return 0, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "count loop has no usable count", nil)
	}
}

func evalLoopExpr(node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot, field string) (any, error) {
	expression, _ := resolved[field].(string)
	if expression == "" {
		return false, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "while loop has no "+field, nil)
	}
	return evalLoopExprValue(node, expression, snap)
}

func evalLoopExprValue(node *builder.ExecutableNode, expression string, snap *ctxstore.Snapshot) (any, error) {
	env := conditionEnv(node, snap)
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return nil, domain.NewNodeError(domain.ErrCodeInvalidVariableRef, node.ID,
			fmt.Sprintf("loop expression does not compile: %s", err), err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "loop expression failed to evaluate", err)
	}
	return out, nil
}
