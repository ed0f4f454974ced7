package node

// MetricNode is a formula node constructed from a registered metric
// definition. It keeps the metric's name and description for introspection.
type MetricNode struct {
	inner       *FormulaNode
	metricName  string
	description string
}

var _ Node = (*MetricNode)(nil)
var _ Rebinder = (*MetricNode)(nil)
var _ Exporter = (*MetricNode)(nil)

// NewMetric builds a metric node from the definition's formula and the
// resolved input bindings (variable name -> node).
func NewMetric(name, metricName, description, formulaSource string, variables map[string]Node) (*MetricNode, error) {
	inner, err := NewFormula(name, formulaSource, variables)
	if err != nil {
		return nil, err
	}
	return &MetricNode{
		inner:       inner,
		metricName:  metricName,
		description: description,
	}, nil
}

// Name returns the node name
func (n *MetricNode) Name() string { return n.inner.Name() }

// MetricName returns the registered metric's name
func (n *MetricNode) MetricName() string { return n.metricName }

// MetricDescription returns the registered metric's description
func (n *MetricNode) MetricDescription() string { return n.description }

// Formula returns the metric's formula source string
func (n *MetricNode) Formula() string { return n.inner.Formula() }

// Calculate evaluates the metric's formula for period
func (n *MetricNode) Calculate(period string) (float64, error) {
	return n.inner.Calculate(period)
}

// HasCalculation always reports true for metric nodes
func (n *MetricNode) HasCalculation() bool { return true }

// Dependencies returns the bound input node names
func (n *MetricNode) Dependencies() []string { return n.inner.Dependencies() }

// CloneNode returns a copy with a cloned underlying formula node
func (n *MetricNode) CloneNode() Node {
	return &MetricNode{
		inner:       n.inner.CloneNode().(*FormulaNode),
		metricName:  n.metricName,
		description: n.description,
	}
}

// Rebind re-resolves the underlying formula bindings
func (n *MetricNode) Rebind(resolve func(name string) (Node, bool)) {
	n.inner.Rebind(resolve)
}

// Export serializes the metric configuration and its variable bindings
func (n *MetricNode) Export() map[string]any {
	out := n.inner.Export()
	out["kind"] = KindMetric
	out["metric"] = n.metricName
	out["description"] = n.description
	return out
}
