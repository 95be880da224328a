package dispatch

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	"github.com/flowforge/workflow-core/internal/builder"
	"github.com/flowforge/workflow-core/internal/ctxstore"
	"github.com/flowforge/workflow-core/internal/domain"
)

// scriptHandlerFor returns a transform-node Handler that runs the script
// named by configKey in a fresh goja runtime per invocation, with `input`
// bound to the node's upstream outputs and the value of the script's last
// expression becoming the node's result.
func scriptHandlerFor(configKey string) HandlerFunc {
	return func(_ context.Context, node *builder.ExecutableNode, resolved map[string]any, snap *ctxstore.Snapshot) (Result, error) {
		script, _ := resolved[configKey].(string)
		if script == "" {
			return Result{}, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "transform node has no script", nil)
		}

		vm := goja.New()
		input := map[string]any{}
		for _, dep := range node.Dependencies {
			if v, ok := snap.GetNodeOutput(dep); ok {
				input[dep] = v
			}
		}
		if err := vm.Set("input", input); err != nil {
			return Result{}, domain.NewNodeError(domain.ErrCodeInterpolationFailed, node.ID, "failed to bind script input", err)
		}

		v, err := vm.RunString(script)
		if err != nil {
			return Result{}, &domain.NodeError{
				Type:    domain.NodeErrValidation,
				Message: fmt.Sprintf("script execution failed: %s", err),
			}
		}
		return Result{Output: v.Export()}, nil
	}
}
