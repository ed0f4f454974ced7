package node

import (
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// CalculationNode computes its value from an ordered list of input nodes via
// a calculation strategy. Input references are shared, not owned; the graph's
// registry governs their lifetime and rebinds them after replacements.
type CalculationNode struct {
	name        string
	inputs      []Node
	strategy    Strategy
	description string
}

var _ Node = (*CalculationNode)(nil)
var _ Rebinder = (*CalculationNode)(nil)
var _ Exporter = (*CalculationNode)(nil)

// NewCalculation creates a calculation node over the given inputs.
func NewCalculation(name string, inputs []Node, strategy Strategy) *CalculationNode {
	return &CalculationNode{
		name:     name,
		inputs:   append([]Node(nil), inputs...),
		strategy: strategy,
	}
}

// Name returns the node name
func (n *CalculationNode) Name() string { return n.name }

// Calculate evaluates every input for period and combines the results with
// the node's strategy.
func (n *CalculationNode) Calculate(period string) (float64, error) {
	values := make([]float64, len(n.inputs))
	names := make([]string, len(n.inputs))
	for i, input := range n.inputs {
		value, err := input.Calculate(period)
		if err != nil {
			return 0, err
		}
		values[i] = value
		names[i] = input.Name()
	}
	return n.strategy.Compute(values, names)
}

// HasCalculation always reports true for calculation nodes
func (n *CalculationNode) HasCalculation() bool { return true }

// Dependencies returns the input node names in order
func (n *CalculationNode) Dependencies() []string {
	names := make([]string, len(n.inputs))
	for i, input := range n.inputs {
		names[i] = input.Name()
	}
	return names
}

// Strategy returns the node's current calculation strategy
func (n *CalculationNode) Strategy() Strategy { return n.strategy }

// SetStrategy swaps the calculation strategy in place
func (n *CalculationNode) SetStrategy(strategy Strategy) {
	n.strategy = strategy
}

// Inputs returns the input nodes in order (shared references)
func (n *CalculationNode) Inputs() []Node {
	return append([]Node(nil), n.inputs...)
}

// Description returns the node's optional description
func (n *CalculationNode) Description() string { return n.description }

// SetDescription sets the node's description
func (n *CalculationNode) SetDescription(description string) {
	n.description = description
}

// CloneNode returns a copy sharing the (stateless) strategy; input references
// still point at the source graph until rebound.
func (n *CalculationNode) CloneNode() Node {
	clone := NewCalculation(n.name, n.inputs, n.strategy)
	clone.description = n.description
	return clone
}

// Rebind re-resolves every input reference through the graph registry
func (n *CalculationNode) Rebind(resolve func(name string) (Node, bool)) {
	for i, input := range n.inputs {
		if current, ok := resolve(input.Name()); ok {
			n.inputs[i] = current
		}
	}
}

// Export serializes the node's configuration. Nodes backed by a caller
// callable cannot round-trip through JSON and are marked unrestorable.
func (n *CalculationNode) Export() map[string]any {
	out := map[string]any{
		"kind":      KindCalculation,
		"operation": n.strategy.Key(),
		"inputs":    toAnySlice(n.Dependencies()),
	}
	if n.description != "" {
		out["description"] = n.description
	}
	switch s := n.strategy.(type) {
	case *weightedAverageStrategy:
		if len(s.weights) > 0 {
			weights := make([]any, len(s.weights))
			for i, w := range s.weights {
				weights[i] = w
			}
			out["weights"] = weights
		}
	case *customFormulaStrategy:
		out["restorable"] = false
	}
	return out
}

// unrestorableNode stands in for a node whose callable configuration could
// not be rehydrated from a bundle. Calculate fails explicitly at first use.
type unrestorableNode struct {
	name   string
	kind   string
	inputs []string
}

var _ Node = (*unrestorableNode)(nil)
var _ Exporter = (*unrestorableNode)(nil)

// NewUnrestorable creates a stub for a callable-backed node rebuilt from a
// bundle. Its dependencies are preserved so structural diffs still work.
func NewUnrestorable(name, kind string, inputs []string) Node {
	return &unrestorableNode{name: name, kind: kind, inputs: append([]string(nil), inputs...)}
}

func (n *unrestorableNode) Name() string { return n.name }

func (n *unrestorableNode) Calculate(period string) (float64, error) {
	return 0, ferrors.New(ferrors.CodeBadDefinition,
		"node %q uses a custom function that cannot be restored from a template", n.name).
		WithNode(n.name).WithPeriod(period)
}

func (n *unrestorableNode) HasCalculation() bool { return true }

func (n *unrestorableNode) Dependencies() []string {
	return append([]string(nil), n.inputs...)
}

func (n *unrestorableNode) CloneNode() Node {
	return NewUnrestorable(n.name, n.kind, n.inputs)
}

func (n *unrestorableNode) Export() map[string]any {
	return map[string]any{
		"kind":       n.kind,
		"inputs":     toAnySlice(n.inputs),
		"restorable": false,
	}
}

func toAnySlice(names []string) []any {
	out := make([]any, len(names))
	for i, name := range names {
		out[i] = name
	}
	return out
}
