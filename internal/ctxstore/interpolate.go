package ctxstore

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/itchyny/gojq"

	"github.com/flowforge/workflow-core/internal/domain"
)

const compiledCacheSize = 512

// compiledCache holds compiled gojq queries and expr programs keyed by
// their source token, bounded so a pathological workflow with thousands of
// distinct templates cannot grow it unboundedly.
type compiledCache struct {
	jq   *lru.Cache[string, *gojq.Code]
	expr *lru.Cache[string, *vm.Program]
}

func newCompiledCache() *compiledCache {
	jq, _ := lru.New[string, *gojq.Code](compiledCacheSize)
	ex, _ := lru.New[string, *vm.Program](compiledCacheSize)
	return &compiledCache{jq: jq, expr: ex}
}

var sharedCache = newCompiledCache()

// templateToken matches one {{...}} occurrence anywhere in a string.
var templateToken = regexp.MustCompile(`\{\{([^{}]+)\}\}`)

// Interpolate resolves every {{...}} reference in a string value against
// the snapshot's current node outputs, variables, inputs, and active
// loop/parallel frames.
//
// When the whole (trimmed) string is exactly one {{...}} token, the
// resolved value's original type is preserved (a number stays a number,
// an object stays an object) instead of being string-coerced — this is
// the whole-string template case of spec §4.2, which a naive
// fmt.Sprint-based substitution gets wrong.
func (s *Snapshot) Interpolate(template string) (any, error) {
	if !strings.Contains(template, "{{") {
		return template, nil
	}

	trimmed := strings.TrimSpace(template)
	if isSingleToken(trimmed) {
		inner := strings.TrimSpace(trimmed[2 : len(trimmed)-2])
		return s.resolveToken(inner)
	}

	env := s.templateEnv()
	var result strings.Builder
	matches := templateToken.FindAllStringSubmatchIndex(template, -1)
	last := 0
	for _, m := range matches {
		result.WriteString(template[last:m[0]])
		inner := strings.TrimSpace(template[m[2]:m[3]])
		val, err := s.resolveTokenWithEnv(inner, env)
		if err != nil {
			return nil, err
		}
		result.WriteString(stringify(val))
		last = m[1]
	}
	result.WriteString(template[last:])
	return result.String(), nil
}

func isSingleToken(trimmed string) bool {
	if !strings.HasPrefix(trimmed, "{{") || !strings.HasSuffix(trimmed, "}}") {
		return false
	}
	inner := trimmed[2 : len(trimmed)-2]
	return !strings.Contains(inner, "{{")
}

func (s *Snapshot) resolveToken(inner string) (any, error) {
	return s.resolveTokenWithEnv(inner, s.templateEnv())
}

// reservedTemplateRoots are the template namespaces that always exist,
// distinct from a reference to a node id. literalKeywords are expr/gojq
// literals that can appear as a bare identifier-shaped token without
// naming anything in the context store.
var reservedTemplateRoots = map[string]struct{}{
	"input": {}, "vars": {}, "loop": {}, "branch": {},
}

var literalKeywords = map[string]struct{}{
	"true": {}, "false": {}, "nil": {}, "null": {},
}

// bareIdentifier matches a token that is nothing but a single identifier,
// e.g. "{{fetchUser}}" referencing a whole node output.
var bareIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// dottedRootRef captures the leading identifier of a dotted/indexed path
// segment ("fetchUser.age", "items[0]"), excluding identifiers that
// themselves follow a "." (nested field names, not roots).
var dottedRootRef = regexp.MustCompile(`(?:^|[^\w.])([A-Za-z_][A-Za-z0-9_]*)(?:\.|\[)`)

// extractRootIdentifiers returns the distinct root identifiers referenced
// by token, in the order first seen.
func extractRootIdentifiers(token string) []string {
	seen := map[string]struct{}{}
	var roots []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			roots = append(roots, id)
		}
	}
	if bareIdentifier.MatchString(token) {
		add(token)
	}
	for _, m := range dottedRootRef.FindAllStringSubmatch(token, -1) {
		add(m[1])
	}
	return roots
}

// checkNodeReferences fails closed on any root identifier in token that
// names a node id rather than a reserved namespace: VARIABLE_NOT_FOUND if
// the node never produced an output, OUTPUT_PRUNED if its output was
// evicted by the governor. Left unchecked, gojq resolves both cases to a
// silent null (a missing top-level map key yields (nil, true), not an
// error), so this must run before a token is handed to gojq or expr.
func (s *Snapshot) checkNodeReferences(token string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, root := range extractRootIdentifiers(token) {
		if _, reserved := reservedTemplateRoots[root]; reserved {
			continue
		}
		if _, literal := literalKeywords[root]; literal {
			continue
		}
		n, ok := s.outputs[root]
		if !ok {
			return domain.NewError(domain.ErrCodeVariableNotFound,
				fmt.Sprintf("template %q references unknown node %q", token, root), nil)
		}
		if n.Evicted {
			return domain.NewError(domain.ErrCodeOutputPruned,
				fmt.Sprintf("template %q references pruned output of node %q", token, root), nil)
		}
	}
	return nil
}

// templateEnv builds the lookup environment a template token is resolved
// against: every node's stored output keyed by node id, plus the
// reserved input/vars/loop/branch roots.
func (s *Snapshot) templateEnv() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env := make(map[string]any, len(s.outputs)+4)
	for id, n := range s.outputs {
		if !n.Evicted {
			env[id] = n.Value
		}
	}
	env["input"] = s.inputs
	env["vars"] = s.variables

	loop := map[string]any{}
	if n := len(s.loopFrames); n > 0 {
		f := s.loopFrames[n-1]
		loop["item"] = f.Item
		loop["index"] = f.Index
		loop["nodeId"] = f.LoopNodeID
	}
	env["loop"] = loop

	branch := map[string]any{}
	if n := len(s.parallelFrames); n > 0 {
		f := s.parallelFrames[n-1]
		branch["name"] = f.Branch
		branch["nodeId"] = f.ParallelNodeID
	}
	env["branch"] = branch

	return env
}

// resolveTokenWithEnv resolves one template token (the part between {{ }})
// against env. Plain dotted/indexed paths ("nodeA.items[0].name") are
// resolved with gojq; anything gojq can't parse as a path falls back to a
// full expr-lang expression (comparisons, ternaries, arithmetic).
func (s *Snapshot) resolveTokenWithEnv(token string, env map[string]any) (any, error) {
	if err := s.checkNodeReferences(token); err != nil {
		return nil, err
	}
	if v, err := resolveJQPath(token, env); err == nil {
		return v, nil
	}
	v, err := resolveExprExpression(token, env)
	if err != nil {
		return nil, domain.NewError(domain.ErrCodeInterpolationFailed,
			fmt.Sprintf("failed to resolve template %q", token), err)
	}
	return v, nil
}

func resolveJQPath(token string, env map[string]any) (any, error) {
	query := token
	if !strings.HasPrefix(query, ".") {
		query = "." + query
	}

	code, ok := sharedCache.jq.Get(query)
	if !ok {
		parsed, err := gojq.Parse(query)
		if err != nil {
			return nil, err
		}
		compiled, err := gojq.Compile(parsed)
		if err != nil {
			return nil, err
		}
		code = compiled
		sharedCache.jq.Add(query, code)
	}

	iter := code.Run(env)
	v, ok := iter.Next()
	if !ok {
		return nil, domain.NewError(domain.ErrCodeVariableNotFound, fmt.Sprintf("template %q resolved to nothing", token), nil)
	}
	if err, isErr := v.(error); isErr {
		return nil, err
	}
	return v, nil
}

func resolveExprExpression(token string, env map[string]any) (any, error) {
	program, ok := sharedCache.expr.Get(token)
	if !ok {
		compiled, err := expr.Compile(token, expr.Env(env), expr.AllowUndefinedVariables())
		if err != nil {
			return nil, err
		}
		program = compiled
		sharedCache.expr.Add(token, program)
	}
	return expr.Run(program, env)
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}
