package builder

import (
	"regexp"
	"strings"

	"github.com/flowforge/workflow-core/internal/domain"
)

// templateRefPattern extracts the node-id portion of a {{...}} reference:
// {{nodeId.path.to.field}}, {{nodeId["key"]}}, {{nodeId[0].x}}. The
// identifiers "input", "vars" and "loop" are reserved for submission
// inputs, workflow-scoped variables and the active loop frame, and are
// never node ids.
var templateRefPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_-]*)`)

var reservedRefRoots = map[string]struct{}{
	"input": {},
	"vars":  {},
	"loop":  {},
}

// validateVariableRefs enforces P7: every {{nodeId...}} reference resolved
// out of a node's config must name a node whose depth is strictly less
// than the referencing node's depth. Grounded on expr-lang/expr's template
// syntax for the {{...}} delimiter convention; the id extraction itself is
// a plain regexp scan since only the leading identifier is load-bearing.
func (b *buildCtx) validateVariableRefs() {
	for id, node := range b.result.Nodes {
		refs := collectRefs(node.Config)
		for _, ref := range refs {
			if _, reserved := reservedRefRoots[ref]; reserved {
				continue
			}
			target, ok := b.result.Nodes[ref]
			if !ok {
				b.fail(domain.ErrCodeInvalidVariableRef, id, "",
					"node %q references unknown node %q in a {{...}} template", id, ref)
				continue
			}
			if target.Depth >= node.Depth {
				b.fail(domain.ErrCodeInvalidVariableRef, id, "",
					"node %q references node %q (depth %d), which does not precede it (depth %d)",
					id, ref, target.Depth, node.Depth)
			}
		}
	}
}

func collectRefs(config map[string]any) []string {
	var refs []string
	var walk func(v any)
	walk = func(v any) {
		switch val := v.(type) {
		case string:
			if !strings.Contains(val, "{{") {
				return
			}
			for _, m := range templateRefPattern.FindAllStringSubmatch(val, -1) {
				refs = append(refs, m[1])
			}
		case map[string]any:
			for _, vv := range val {
				walk(vv)
			}
		case []any:
			for _, vv := range val {
				walk(vv)
			}
		}
	}
	for _, v := range config {
		walk(v)
	}
	return refs
}
