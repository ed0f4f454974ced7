// Package node defines the node hierarchy of the calculation graph: raw item
// nodes, strategy-driven calculation nodes, formula nodes, metric nodes, and
// forecast nodes. The variant set is closed; the graph and engine dispatch on
// these kinds exhaustively.
package node

// Node is the uniform evaluation contract every graph node implements.
type Node interface {
	// Name returns the node's unique name within its graph.
	Name() string
	// Calculate returns the node's value for the given period.
	Calculate(period string) (float64, error)
	// HasCalculation reports whether the node derives its value from other
	// nodes (false only for item nodes).
	HasCalculation() bool
	// Dependencies returns the names of directly referenced input nodes.
	Dependencies() []string
}

// CacheClearer is implemented by nodes that keep an internal value cache.
type CacheClearer interface {
	ClearCache()
}

// Rebinder is implemented by nodes holding direct references to other nodes.
// The graph invokes Rebind after a node is replaced so dependents point at the
// current registry entries.
type Rebinder interface {
	Rebind(resolve func(name string) (Node, bool))
}

// Cloner is implemented by nodes that can duplicate themselves. Cloned input
// references still point at the original registry's nodes; the cloning graph
// rebinds them afterwards.
type Cloner interface {
	CloneNode() Node
}

// Exporter is implemented by nodes that can serialize their configuration and
// stored values into a plain-data map, the payload persisted inside template
// bundles.
type Exporter interface {
	Export() map[string]any
}

// Kind labels used in exported node maps.
const (
	KindItem        = "item"
	KindCalculation = "calculation"
	KindFormula     = "formula"
	KindMetric      = "metric"
	KindForecast    = "forecast"
)
