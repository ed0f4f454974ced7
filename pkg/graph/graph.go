// Package graph implements the calculation graph core: a registry of named
// nodes evaluated lazily per period, with two-level result caching,
// topological validation, cloning, and a plain-data serialization boundary
// used by the template registry.
package graph

import (
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
	"github.com/fingraph-lang/fingraph/pkg/graph/node"
	"github.com/fingraph-lang/fingraph/pkg/metrics"
)

// Graph owns the node registry and the set of valid periods. It is the sole
// owner of all nodes; node-to-node references are rebound through the
// registry whenever an entry is replaced.
//
// Thread Safety: Graph instances are NOT thread-safe. Callers must not
// mutate or evaluate the same Graph concurrently.
type Graph struct {
	nodes   map[string]node.Node
	order   []string // insertion order, for deterministic iteration
	periods []string // sorted, unique
	engine  *Engine
	logger  *zap.Logger
	metrics *metrics.Registry
}

// Option configures a Graph at construction
type Option func(*Graph)

// WithLogger sets the graph's logger (defaults to a no-op logger)
func WithLogger(logger *zap.Logger) Option {
	return func(g *Graph) { g.logger = logger }
}

// WithMetricRegistry sets the metric-definition registry the engine consults
// (defaults to the built-in registry)
func WithMetricRegistry(registry *metrics.Registry) Option {
	return func(g *Graph) { g.metrics = registry }
}

// New creates an empty graph over the given periods. Periods are sorted and
// de-duplicated.
func New(periods []string, opts ...Option) *Graph {
	g := &Graph{
		nodes:   make(map[string]node.Node),
		periods: sortUnique(periods),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.logger == nil {
		g.logger = zap.NewNop()
	}
	if g.metrics == nil {
		g.metrics = metrics.NewRegistry()
	}
	g.engine = newEngine(g)
	return g
}

// Periods returns the graph's valid periods, sorted
func (g *Graph) Periods() []string {
	return append([]string(nil), g.periods...)
}

// AddPeriods extends the graph's period set
func (g *Graph) AddPeriods(periods ...string) {
	g.periods = sortUnique(append(g.periods, periods...))
}

// HasPeriod reports whether period is among the graph's declared periods
func (g *Graph) HasPeriod(period string) bool {
	i := sort.SearchStrings(g.periods, period)
	return i < len(g.periods) && g.periods[i] == period
}

// NodeNames returns every node name in insertion order
func (g *Graph) NodeNames() []string {
	return append([]string(nil), g.order...)
}

// GetNode returns the node registered under name, or nil
func (g *Graph) GetNode(name string) node.Node {
	return g.nodes[name]
}

// HasNode reports whether a node is registered under name
func (g *Graph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// AddNode inserts or replaces a node by its name. Either way it triggers a
// registry-wide rebind pass so every dependent's stored input references
// point at the current entry (an insert can resolve a dangling reference
// left by an earlier removal), and invalidates cached values for the name
// and everything downstream of it.
func (g *Graph) AddNode(n node.Node) {
	name := n.Name()
	_, replacing := g.nodes[name]
	g.nodes[name] = n
	if !replacing {
		g.order = append(g.order, name)
	}
	g.rebindAll()
	g.engine.invalidate(name)
}

// ReplaceNode replaces the node registered under name. It fails with a node
// error if name is absent or if the replacement carries a different name.
func (g *Graph) ReplaceNode(name string, replacement node.Node) error {
	if _, ok := g.nodes[name]; !ok {
		return ferrors.New(ferrors.CodeNodeNotFound, "node %q not found", name).WithNode(name)
	}
	if replacement.Name() != name {
		return ferrors.New(ferrors.CodeInvalidPayload,
			"replacement node is named %q, expected %q", replacement.Name(), name).WithNode(name)
	}
	g.AddNode(replacement)
	return nil
}

// RemoveNode deletes the node registered under name. It fails with a node
// error if name is absent. Dependents keep their dangling reference; Validate
// reports it.
func (g *Graph) RemoveNode(name string) error {
	if _, ok := g.nodes[name]; !ok {
		return ferrors.New(ferrors.CodeNodeNotFound, "node %q not found", name).WithNode(name)
	}
	g.engine.invalidate(name)
	delete(g.nodes, name)
	for i, existing := range g.order {
		if existing == name {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return nil
}

// AddItem creates (or replaces) an item node with the given values
func (g *Graph) AddItem(name string, values map[string]float64) *node.ItemNode {
	item := node.NewItem(name, values)
	g.AddNode(item)
	return item
}

// SetValue sets a stored value on an item node. It fails with a node error
// if the node is absent or not an item node, and with a period error if
// period is not among the graph's declared periods.
func (g *Graph) SetValue(name, period string, value float64) error {
	n, ok := g.nodes[name]
	if !ok {
		return ferrors.New(ferrors.CodeNodeNotFound, "node %q not found", name).WithNode(name)
	}
	item, ok := n.(*node.ItemNode)
	if !ok {
		return ferrors.New(ferrors.CodeNodeWrongKind,
			"node %q is not an item node", name).WithNode(name)
	}
	if !g.HasPeriod(period) {
		return ferrors.New(ferrors.CodeUnknownPeriod,
			"period %q is not declared on the graph", period).WithNode(name).WithPeriod(period)
	}
	item.SetValue(period, value)
	g.engine.invalidate(name)
	return nil
}

// ImportData loads a mapping of item name -> {period: value}, creating item
// nodes as needed. It fails with a period error if a period is not declared
// and with a validation error if a value is not a finite number.
func (g *Graph) ImportData(data map[string]map[string]float64) error {
	for name, series := range data {
		for period, value := range series {
			if !g.HasPeriod(period) {
				return ferrors.New(ferrors.CodeUnknownPeriod,
					"period %q for item %q is not declared on the graph", period, name).
					WithNode(name).WithPeriod(period)
			}
			if math.IsNaN(value) || math.IsInf(value, 0) {
				return ferrors.New(ferrors.CodeInvalidPayload,
					"item %q has a non-finite value for period %q", name, period).
					WithNode(name).WithPeriod(period)
			}
		}
	}

	names := make([]string, 0, len(data))
	for name := range data {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if existing, ok := g.nodes[name].(*node.ItemNode); ok {
			for period, value := range data[name] {
				existing.SetValue(period, value)
			}
			g.engine.invalidate(name)
			continue
		}
		g.AddItem(name, data[name])
	}
	return nil
}

// Calculate evaluates the named node for period through the engine's cache
func (g *Graph) Calculate(name, period string) (float64, error) {
	return g.engine.Calculate(name, period)
}

// RecalculateAll delegates a bulk recalculation sweep to the engine
func (g *Graph) RecalculateAll(opts RecalcOptions) {
	g.engine.RecalculateAll(opts)
}

// ClearAllCaches drops the engine cache and every node-internal cache
func (g *Graph) ClearAllCaches() {
	g.engine.ClearCache()
	for _, name := range g.order {
		if clearer, ok := g.nodes[name].(node.CacheClearer); ok {
			clearer.ClearCache()
		}
	}
}

// Engine returns the graph's calculation engine
func (g *Graph) Engine() *Engine {
	return g.engine
}

// Clone returns a copy of the graph. A deep clone duplicates every node and
// its stored values so mutations to the clone never affect the original; a
// shallow clone shares node instances.
func (g *Graph) Clone(deep bool) *Graph {
	clone := New(g.periods, WithLogger(g.logger), WithMetricRegistry(g.metrics))
	clone.order = append([]string(nil), g.order...)

	if !deep {
		for name, n := range g.nodes {
			clone.nodes[name] = n
		}
		return clone
	}

	for name, n := range g.nodes {
		if cloner, ok := n.(node.Cloner); ok {
			clone.nodes[name] = cloner.CloneNode()
		} else {
			clone.nodes[name] = n
		}
	}
	// Re-point every cloned node's references at its cloned inputs.
	clone.rebindAll()
	return clone
}

// rebindAll re-resolves every node's stored input references against the
// current registry entries.
func (g *Graph) rebindAll() {
	resolve := func(name string) (node.Node, bool) {
		n, ok := g.nodes[name]
		return n, ok
	}
	for _, name := range g.order {
		if rebinder, ok := g.nodes[name].(node.Rebinder); ok {
			rebinder.Rebind(resolve)
		}
	}
}

func sortUnique(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}
