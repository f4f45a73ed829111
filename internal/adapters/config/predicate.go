package config

import (
	"maps"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"go.trai.ch/kiln/internal/core/domain"
	"go.trai.ch/zerr"
)

var _ domain.Predicate = (*Predicate)(nil)

// Scope lists the names a predicate may reference.
type Scope struct {
	// Axes are setting and option names. Dots are written as underscores,
	// so compiler.libcxx is referenced as compiler_libcxx.
	Axes []string
	// Values are enumerated axis values that may appear as bare identifiers,
	// e.g. os == Windows.
	Values []string
}

// Predicate is a compiled HCL boolean expression over axis values.
//
// Axis values "true" and "false" bind as booleans, every other value as a
// string, and an axis missing from the evaluated values binds as null.
type Predicate struct {
	src    string
	expr   hcl.Expression
	consts map[string]cty.Value
}

// CompilePredicate parses src and checks that it references only names in scope.
func CompilePredicate(src string, scope Scope) (*Predicate, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "predicate", hcl.InitialPos)
	if diags.HasErrors() {
		return nil, predicateError(src, diags.Error())
	}

	if diags := hclsyntax.VisitAll(expr, rejectFunctionCalls); diags.HasErrors() {
		return nil, predicateError(src, diags.Error())
	}

	axes := make(map[string]struct{}, len(scope.Axes))
	for _, name := range scope.Axes {
		axes[variableName(name)] = struct{}{}
	}

	consts := make(map[string]cty.Value)
	for _, v := range scope.Values {
		if _, isAxis := axes[v]; isAxis || !hclsyntax.ValidIdentifier(v) {
			continue
		}
		switch v {
		case "true", "false", "null":
			continue
		}
		consts[v] = cty.StringVal(v)
	}

	for _, traversal := range expr.Variables() {
		root := traversal.RootName()
		_, isAxis := axes[root]
		_, isConst := consts[root]
		if !isAxis && !isConst {
			return nil, zerr.With(predicateError(src, "unknown identifier"), "identifier", root)
		}
	}

	return &Predicate{src: src, expr: expr, consts: consts}, nil
}

// Eval reports whether the expression holds for the given axis values.
func (p *Predicate) Eval(values map[string]string) (bool, error) {
	vars := maps.Clone(p.consts)
	if vars == nil {
		vars = make(map[string]cty.Value)
	}
	for _, traversal := range p.expr.Variables() {
		root := traversal.RootName()
		if _, isConst := p.consts[root]; !isConst {
			vars[root] = cty.NullVal(cty.String)
		}
	}
	for name, v := range values {
		vars[variableName(name)] = bindValue(v)
	}

	val, diags := p.expr.Value(&hcl.EvalContext{Variables: vars})
	if diags.HasErrors() {
		return false, predicateError(p.src, diags.Error())
	}
	if !val.IsKnown() || val.IsNull() || !val.Type().Equals(cty.Bool) {
		return false, zerr.With(predicateError(p.src, "expression is not a boolean"), "type", val.Type().FriendlyName())
	}
	return val.True(), nil
}

func (p *Predicate) String() string {
	return p.src
}

// rejectFunctionCalls reports function calls; predicates are evaluated without functions.
func rejectFunctionCalls(node hclsyntax.Node) hcl.Diagnostics {
	call, ok := node.(*hclsyntax.FunctionCallExpr)
	if !ok {
		return nil
	}
	return hcl.Diagnostics{{
		Severity: hcl.DiagError,
		Summary:  "Functions are not supported",
		Detail:   "Call to " + call.Name + " is not allowed in a predicate.",
		Subject:  call.Range().Ptr(),
	}}
}

func variableName(axis string) string {
	return strings.ReplaceAll(axis, ".", "_")
}

func bindValue(v string) cty.Value {
	switch v {
	case "true":
		return cty.True
	case "false":
		return cty.False
	default:
		return cty.StringVal(v)
	}
}

func predicateError(src, reason string) error {
	return zerr.With(zerr.Wrap(domain.ErrInvalidPredicate, reason), "expression", src)
}
