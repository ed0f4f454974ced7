package graph

import (
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
	"github.com/fingraph-lang/fingraph/pkg/graph/node"
	"github.com/fingraph-lang/fingraph/pkg/metrics"
)

// Engine is the sole authority for cross-node evaluation caching and for
// mutating the graph's registry on behalf of builder operations. Every
// low-level evaluation failure (arithmetic, missing input, user callable) is
// re-raised as a single calculation-error kind carrying the node name,
// period, and original cause.
type Engine struct {
	g     *Graph
	cache map[string]map[string]float64
}

func newEngine(g *Graph) *Engine {
	return &Engine{
		g:     g,
		cache: make(map[string]map[string]float64),
	}
}

// Calculate evaluates the named node for period. Cache hits return without
// touching the node.
func (e *Engine) Calculate(name, period string) (float64, error) {
	if byPeriod, ok := e.cache[name]; ok {
		if value, ok := byPeriod[period]; ok {
			return value, nil
		}
	}

	n, ok := e.g.nodes[name]
	if !ok {
		return 0, ferrors.New(ferrors.CodeNodeNotFound, "node %q not found", name).
			WithNode(name).WithPeriod(period)
	}

	value, err := e.evaluate(n, period)
	if err != nil {
		var fe *ferrors.Error
		if errors.As(err, &fe) && fe.Category == ferrors.CategoryCalculation {
			if fe.NodeID == "" {
				fe.NodeID = name
			}
			if fe.Period == "" {
				fe.Period = period
			}
			return 0, fe
		}
		return 0, ferrors.Wrap(err, ferrors.CodeCalculationFailed,
			"calculation failed").WithNode(name).WithPeriod(period)
	}

	byPeriod, ok := e.cache[name]
	if !ok {
		byPeriod = make(map[string]float64)
		e.cache[name] = byPeriod
	}
	byPeriod[period] = value
	return value, nil
}

// evaluate invokes the node, converting panics from user-supplied callables
// into calculation errors.
func (e *Engine) evaluate(n node.Node, period string) (value float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ferrors.New(ferrors.CodeCalculationFailed,
				"calculation panicked: %v", r).WithNode(n.Name()).WithPeriod(period)
		}
	}()
	return n.Calculate(period)
}

// RecalcOptions controls a bulk recalculation sweep.
type RecalcOptions struct {
	// Periods limits the sweep; nil means every declared period.
	Periods []string
	// CopyForward carries each item node's last known value into requested
	// periods that lack explicit data, before the sweep runs.
	CopyForward bool
}

// RecalculateAll clears the entire cache, engine-level and node-internal,
// then evaluates every node for every target period. The sweep is
// best-effort: per-node-per-period failures are logged and skipped.
func (e *Engine) RecalculateAll(opts RecalcOptions) {
	e.g.ClearAllCaches()

	periods := opts.Periods
	if periods == nil {
		periods = e.g.Periods()
	}

	if opts.CopyForward {
		e.copyForward(periods)
	}

	for _, name := range e.g.NodeNames() {
		for _, period := range periods {
			if _, err := e.Calculate(name, period); err != nil {
				e.g.logger.Warn("recalculation skipped a cell",
					zap.String("node", name), zap.String("period", period), zap.Error(err))
			}
		}
	}
}

// copyForward fills requested periods lacking explicit item data with the
// item's most recent earlier value.
func (e *Engine) copyForward(periods []string) {
	for _, name := range e.g.NodeNames() {
		item, ok := e.g.nodes[name].(*node.ItemNode)
		if !ok {
			continue
		}

		known := make([]string, 0)
		for period := range item.Values() {
			known = append(known, period)
		}
		sort.Strings(known)
		if len(known) == 0 {
			continue
		}

		for _, period := range periods {
			if _, ok := item.Value(period); ok {
				continue
			}
			// Latest known period strictly before the gap.
			idx := sort.SearchStrings(known, period)
			if idx == 0 {
				continue
			}
			value, _ := item.Value(known[idx-1])
			item.SetValue(period, value)
		}
	}
}

// ClearCache drops every cached value
func (e *Engine) ClearCache() {
	e.cache = make(map[string]map[string]float64)
}

// invalidate drops cached values for name and everything downstream of it,
// and clears node-internal caches on the affected nodes.
func (e *Engine) invalidate(name string) {
	affected := map[string]struct{}{name: {}}

	dependents := make(map[string][]string)
	for dependent, inputs := range e.g.DependencyGraph() {
		for _, input := range inputs {
			dependents[input] = append(dependents[input], dependent)
		}
	}

	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dependent := range dependents[current] {
			if _, seen := affected[dependent]; !seen {
				affected[dependent] = struct{}{}
				queue = append(queue, dependent)
			}
		}
	}

	for affectedName := range affected {
		delete(e.cache, affectedName)
		if clearer, ok := e.g.nodes[affectedName].(node.CacheClearer); ok {
			clearer.ClearCache()
		}
	}
}

// invalidateOne drops cached values for a single node only
func (e *Engine) invalidateOne(name string) {
	delete(e.cache, name)
	if clearer, ok := e.g.nodes[name].(node.CacheClearer); ok {
		clearer.ClearCache()
	}
}

// CalcOptions carries the optional parameters of AddCalculation.
type CalcOptions struct {
	// Formula is the expression source for the "formula" operation type.
	Formula string
	// FormulaVariables aliases the positional inputs inside the formula;
	// defaults to the input names themselves.
	FormulaVariables []string
	// Weights configures the weighted_average strategy.
	Weights []float64
	// Custom is the callable for the custom_formula strategy.
	Custom node.CustomFunc
}

// AddCalculation resolves inputNames to live nodes, builds the requested
// calculation or formula node, and registers it. It fails with a node error
// if an input or the name itself clashes with registry state.
func (e *Engine) AddCalculation(name string, inputNames []string, operation string, opts CalcOptions) (node.Node, error) {
	if e.g.HasNode(name) {
		return nil, ferrors.New(ferrors.CodeNodeExists, "node %q already exists", name).WithNode(name)
	}

	inputs := make([]node.Node, len(inputNames))
	for i, inputName := range inputNames {
		input := e.g.GetNode(inputName)
		if input == nil {
			return nil, ferrors.New(ferrors.CodeNodeNotFound,
				"input node %q not found", inputName).WithNode(name)
		}
		inputs[i] = input
	}

	var built node.Node
	if operation == "formula" {
		varNames := opts.FormulaVariables
		if varNames == nil {
			varNames = inputNames
		}
		if len(varNames) != len(inputs) {
			return nil, ferrors.New(ferrors.CodeBadDefinition,
				"%d formula variable names for %d inputs", len(varNames), len(inputs)).WithNode(name)
		}
		variables := make(map[string]node.Node, len(inputs))
		for i, varName := range varNames {
			variables[varName] = inputs[i]
		}
		formulaNode, err := node.NewFormula(name, opts.Formula, variables)
		if err != nil {
			return nil, err
		}
		built = formulaNode
	} else {
		strategy, err := node.NewStrategy(operation, node.StrategyOptions{
			Weights: opts.Weights,
			Custom:  opts.Custom,
		})
		if err != nil {
			return nil, err
		}
		built = node.NewCalculation(name, inputs, strategy)
	}

	e.g.AddNode(built)
	return built, nil
}

// MetricOptions carries the optional parameters of AddMetric.
type MetricOptions struct {
	// NodeName overrides the registered node's name (defaults to the metric
	// name).
	NodeName string
	// InputMap renames required metric inputs to existing node names.
	InputMap map[string]string
}

// AddMetric looks up the metric definition and builds a formula-backed node
// over the graph nodes matching its required inputs, either directly by name
// or through opts.InputMap. It fails with a configuration error for unknown
// metrics and with a node error listing every missing input.
func (e *Engine) AddMetric(metricName string, opts MetricOptions) (node.Node, error) {
	def, ok := e.g.metrics.Lookup(metricName)
	if !ok {
		return nil, ferrors.New(ferrors.CodeUnknownMetric,
			"unknown metric %q", metricName).WithMetric(metricName)
	}

	nodeName := opts.NodeName
	if nodeName == "" {
		nodeName = metricName
	}
	if e.g.HasNode(nodeName) {
		return nil, ferrors.New(ferrors.CodeNodeExists,
			"node %q already exists", nodeName).WithNode(nodeName)
	}

	variables := make(map[string]node.Node, len(def.Inputs))
	var missing []string
	for _, input := range def.Inputs {
		resolved := input
		if mapped, ok := opts.InputMap[input]; ok {
			resolved = mapped
		}
		n := e.g.GetNode(resolved)
		if n == nil {
			missing = append(missing, input)
			continue
		}
		variables[input] = n
	}
	if len(missing) > 0 {
		return nil, ferrors.New(ferrors.CodeMetricInputMissing,
			"metric %q is missing input nodes: %v", metricName, missing).
			WithMetric(metricName).WithNode(nodeName)
	}

	metricNode, err := node.NewMetric(nodeName, def.Name, def.Description, def.Formula, variables)
	if err != nil {
		return nil, err
	}
	e.g.AddNode(metricNode)
	return metricNode, nil
}

// AddCustomCalculation wraps an arbitrary callable as a calculation node.
// inputs, if given, must name existing nodes.
func (e *Engine) AddCustomCalculation(name string, fn node.CustomFunc, inputs []string, description string) (node.Node, error) {
	if fn == nil {
		return nil, ferrors.New(ferrors.CodeBadDefinition,
			"custom calculation %q requires a function", name).WithNode(name)
	}
	built, err := e.AddCalculation(name, inputs, node.StrategyCustomFormula, CalcOptions{Custom: fn})
	if err != nil {
		return nil, err
	}
	if description != "" {
		built.(*node.CalculationNode).SetDescription(description)
	}
	return built, nil
}

// AddForecast wraps the named input node in a forecast node, extending the
// graph's periods with the forecast periods.
func (e *Engine) AddForecast(name, inputName, basePeriod string, forecastPeriods []string, policy node.GrowthPolicy) (node.Node, error) {
	if e.g.HasNode(name) {
		return nil, ferrors.New(ferrors.CodeNodeExists, "node %q already exists", name).WithNode(name)
	}
	input := e.g.GetNode(inputName)
	if input == nil {
		return nil, ferrors.New(ferrors.CodeNodeNotFound,
			"input node %q not found", inputName).WithNode(name)
	}

	forecast, err := node.NewForecast(name, input, basePeriod, forecastPeriods, policy)
	if err != nil {
		return nil, err
	}
	e.g.AddNode(forecast)
	e.g.AddPeriods(forecastPeriods...)
	return forecast, nil
}

// AddValueForecast wraps the named input node in a forecast node whose
// forecast periods all evaluate to the value policy's constant.
func (e *Engine) AddValueForecast(name, inputName, basePeriod string, forecastPeriods []string, value node.ValuePolicy) (node.Node, error) {
	if e.g.HasNode(name) {
		return nil, ferrors.New(ferrors.CodeNodeExists, "node %q already exists", name).WithNode(name)
	}
	input := e.g.GetNode(inputName)
	if input == nil {
		return nil, ferrors.New(ferrors.CodeNodeNotFound,
			"input node %q not found", inputName).WithNode(name)
	}

	forecast := node.NewValueForecast(name, input, basePeriod, forecastPeriods, value)
	e.g.AddNode(forecast)
	e.g.AddPeriods(forecastPeriods...)
	return forecast, nil
}

// EnsureSignedNodes idempotently creates a "-1 * base" companion node for
// each base id, named base+suffix. It fails if a base id does not exist.
func (e *Engine) EnsureSignedNodes(baseIDs []string, suffix string) ([]string, error) {
	if suffix == "" {
		suffix = "_signed"
	}

	created := make([]string, 0, len(baseIDs))
	for _, baseID := range baseIDs {
		signedName := baseID + suffix
		if e.g.HasNode(signedName) {
			created = append(created, signedName)
			continue
		}
		base := e.g.GetNode(baseID)
		if base == nil {
			return nil, ferrors.New(ferrors.CodeNodeNotFound,
				"base node %q not found", baseID).WithNode(baseID)
		}

		signed, err := node.NewFormula(signedName, "-1 * base", map[string]node.Node{"base": base})
		if err != nil {
			return nil, err
		}
		e.g.AddNode(signed)
		created = append(created, signedName)
	}
	return created, nil
}

// ChangeCalculationMethod swaps the calculation strategy on an existing
// calculation node in place and invalidates that node's cache entries only.
func (e *Engine) ChangeCalculationMethod(nodeName, methodKey string, opts node.StrategyOptions) error {
	n := e.g.GetNode(nodeName)
	if n == nil {
		return ferrors.New(ferrors.CodeNodeNotFound, "node %q not found", nodeName).WithNode(nodeName)
	}
	calc, ok := n.(*node.CalculationNode)
	if !ok {
		return ferrors.New(ferrors.CodeNodeWrongKind,
			"node %q is not a calculation node", nodeName).WithNode(nodeName)
	}

	strategy, err := node.NewStrategy(methodKey, opts)
	if err != nil {
		return err
	}
	calc.SetStrategy(strategy)
	e.invalidateOne(nodeName)
	return nil
}

// Metric returns the metric node registered under nodeName. It fails with a
// node error if the name is absent or not a metric node.
func (e *Engine) Metric(nodeName string) (*node.MetricNode, error) {
	n := e.g.GetNode(nodeName)
	if n == nil {
		return nil, ferrors.New(ferrors.CodeNodeNotFound, "node %q not found", nodeName).WithNode(nodeName)
	}
	metricNode, ok := n.(*node.MetricNode)
	if !ok {
		return nil, ferrors.New(ferrors.CodeNodeWrongKind,
			"node %q is not a metric node", nodeName).WithNode(nodeName)
	}
	return metricNode, nil
}

// AvailableMetrics returns every metric name the registry can build
func (e *Engine) AvailableMetrics() []string {
	return e.g.metrics.Names()
}

// MetricInfo returns the registered definition for metricName
func (e *Engine) MetricInfo(metricName string) (metrics.Definition, bool) {
	return e.g.metrics.Lookup(metricName)
}

// CachedValue returns the cached value for (name, period), if any. Intended
// for tests and introspection.
func (e *Engine) CachedValue(name, period string) (float64, bool) {
	byPeriod, ok := e.cache[name]
	if !ok {
		return 0, false
	}
	value, ok := byPeriod[period]
	return value, ok
}
