package node

import (
	"sort"

	"github.com/fingraph-lang/fingraph/internal/formula"
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// FormulaNode evaluates a parsed arithmetic expression, substituting each
// variable with the value of a bound input node.
type FormulaNode struct {
	name      string
	source    string
	expr      formula.Expr
	variables map[string]Node
}

var _ Node = (*FormulaNode)(nil)
var _ Rebinder = (*FormulaNode)(nil)
var _ Exporter = (*FormulaNode)(nil)

// NewFormula parses source and binds its variables to nodes. It fails with a
// validation error if source is outside the supported grammar or if a
// variable referenced by the formula has no binding.
func NewFormula(name, source string, variables map[string]Node) (*FormulaNode, error) {
	expr, err := formula.Parse(source)
	if err != nil {
		return nil, err
	}

	bound := make(map[string]Node, len(variables))
	for varName, input := range variables {
		bound[varName] = input
	}
	for _, varName := range formula.Variables(expr) {
		if _, ok := bound[varName]; !ok {
			return nil, ferrors.New(ferrors.CodeBadDefinition,
				"formula %q references unbound variable %q", source, varName).WithNode(name)
		}
	}

	return &FormulaNode{
		name:      name,
		source:    source,
		expr:      expr,
		variables: bound,
	}, nil
}

// Name returns the node name
func (n *FormulaNode) Name() string { return n.name }

// Formula returns the original formula source string
func (n *FormulaNode) Formula() string { return n.source }

// Calculate evaluates the expression for period
func (n *FormulaNode) Calculate(period string) (float64, error) {
	return formula.Eval(n.expr, func(varName string) (float64, error) {
		input, ok := n.variables[varName]
		if !ok {
			return 0, ferrors.New(ferrors.CodeNodeNotFound,
				"variable %q is not bound to a node", varName).WithNode(n.name).WithPeriod(period)
		}
		return input.Calculate(period)
	})
}

// HasCalculation always reports true for formula nodes
func (n *FormulaNode) HasCalculation() bool { return true }

// Dependencies returns the distinct bound node names, sorted for determinism
func (n *FormulaNode) Dependencies() []string {
	seen := make(map[string]struct{}, len(n.variables))
	names := make([]string, 0, len(n.variables))
	for _, input := range n.variables {
		if _, ok := seen[input.Name()]; !ok {
			seen[input.Name()] = struct{}{}
			names = append(names, input.Name())
		}
	}
	sort.Strings(names)
	return names
}

// CloneNode returns a copy sharing the immutable parsed expression; variable
// bindings still point at the source graph until rebound.
func (n *FormulaNode) CloneNode() Node {
	variables := make(map[string]Node, len(n.variables))
	for varName, input := range n.variables {
		variables[varName] = input
	}
	return &FormulaNode{
		name:      n.name,
		source:    n.source,
		expr:      n.expr,
		variables: variables,
	}
}

// Rebind re-resolves every variable binding through the graph registry
func (n *FormulaNode) Rebind(resolve func(name string) (Node, bool)) {
	for varName, input := range n.variables {
		if current, ok := resolve(input.Name()); ok {
			n.variables[varName] = current
		}
	}
}

// Export serializes the formula source and its variable bindings
func (n *FormulaNode) Export() map[string]any {
	bindings := make(map[string]any, len(n.variables))
	for varName, input := range n.variables {
		bindings[varName] = input.Name()
	}
	return map[string]any{
		"kind":      KindFormula,
		"formula":   n.source,
		"variables": bindings,
	}
}
