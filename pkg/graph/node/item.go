package node

// ItemNode holds raw period-keyed data (historical line items). Missing
// periods evaluate to 0.0 rather than erroring.
type ItemNode struct {
	name   string
	values map[string]float64
}

var _ Node = (*ItemNode)(nil)
var _ Exporter = (*ItemNode)(nil)

// NewItem creates an item node with a copy of values. A nil map is allowed.
func NewItem(name string, values map[string]float64) *ItemNode {
	copied := make(map[string]float64, len(values))
	for period, value := range values {
		copied[period] = value
	}
	return &ItemNode{name: name, values: copied}
}

// Name returns the node name
func (n *ItemNode) Name() string { return n.name }

// Calculate returns the stored value for period, or 0.0 if absent
func (n *ItemNode) Calculate(period string) (float64, error) {
	return n.values[period], nil
}

// HasCalculation always reports false for item nodes
func (n *ItemNode) HasCalculation() bool { return false }

// Dependencies always returns an empty slice for item nodes
func (n *ItemNode) Dependencies() []string { return []string{} }

// SetValue stores value for period, overwriting any existing value
func (n *ItemNode) SetValue(period string, value float64) {
	n.values[period] = value
}

// Value returns the stored value for period and whether one exists
func (n *ItemNode) Value(period string) (float64, bool) {
	value, ok := n.values[period]
	return value, ok
}

// Values returns a copy of the stored period-to-value map
func (n *ItemNode) Values() map[string]float64 {
	copied := make(map[string]float64, len(n.values))
	for period, value := range n.values {
		copied[period] = value
	}
	return copied
}

// CloneNode returns a deep copy of the item node
func (n *ItemNode) CloneNode() Node {
	return NewItem(n.name, n.values)
}

// Export serializes the node's configuration and values
func (n *ItemNode) Export() map[string]any {
	values := make(map[string]any, len(n.values))
	for period, value := range n.values {
		values[period] = value
	}
	return map[string]any{
		"kind":   KindItem,
		"values": values,
	}
}
