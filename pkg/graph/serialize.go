package graph

import (
	"sort"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
	"github.com/fingraph-lang/fingraph/pkg/graph/node"
)

// Export serializes the graph into a plain-data dict sufficient to
// reconstruct an equivalent graph: periods, node configurations with stored
// values, and insertion order. This is the exact payload checksummed and
// persisted inside template bundles.
func (g *Graph) Export() map[string]any {
	nodes := make(map[string]any, len(g.order))
	for _, name := range g.order {
		if exporter, ok := g.nodes[name].(node.Exporter); ok {
			nodes[name] = exporter.Export()
		} else {
			nodes[name] = map[string]any{"kind": "opaque"}
		}
	}

	periods := make([]any, len(g.periods))
	for i, period := range g.periods {
		periods[i] = period
	}
	order := make([]any, len(g.order))
	for i, name := range g.order {
		order[i] = name
	}

	return map[string]any{
		"periods": periods,
		"nodes":   nodes,
		"order":   order,
	}
}

// FromDict reconstructs a graph from an exported dict. Nodes are rebuilt in
// dependency order; entries whose dependencies never resolve (cycles or
// references outside the dict) fail with a validation error. Callable-backed
// nodes marked unrestorable come back as stubs that error at first
// evaluation.
func FromDict(dict map[string]any, opts ...Option) (*Graph, error) {
	periods, err := stringSlice(dict["periods"])
	if err != nil {
		return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload, "graph dict: bad periods")
	}

	rawNodes, ok := dict["nodes"].(map[string]any)
	if !ok {
		return nil, ferrors.New(ferrors.CodeInvalidPayload, "graph dict: missing nodes map")
	}

	order, err := stringSlice(dict["order"])
	if err != nil || len(order) != len(rawNodes) {
		order = make([]string, 0, len(rawNodes))
		for name := range rawNodes {
			order = append(order, name)
		}
		sort.Strings(order)
	}

	g := New(periods, opts...)

	pending := make(map[string]map[string]any, len(rawNodes))
	for name, raw := range rawNodes {
		cfg, ok := raw.(map[string]any)
		if !ok {
			return nil, ferrors.New(ferrors.CodeInvalidPayload,
				"graph dict: node %q is not an object", name).WithNode(name)
		}
		pending[name] = cfg
	}

	// Fixpoint pass: build every node whose dependencies already exist.
	for len(pending) > 0 {
		progress := false
		for _, name := range order {
			cfg, waiting := pending[name]
			if !waiting {
				continue
			}
			deps := dictDependencies(cfg)
			ready := true
			for _, dep := range deps {
				if !g.HasNode(dep) {
					ready = false
					break
				}
			}
			if !ready {
				continue
			}

			built, err := buildNode(g, name, cfg)
			if err != nil {
				return nil, err
			}
			g.AddNode(built)
			delete(pending, name)
			progress = true
		}
		if !progress {
			remaining := make([]string, 0, len(pending))
			for name := range pending {
				remaining = append(remaining, name)
			}
			sort.Strings(remaining)
			return nil, ferrors.New(ferrors.CodeInvalidPayload,
				"graph dict: unresolvable node dependencies (cycle or dangling reference): %v",
				remaining)
		}
	}

	// Preserve the recorded insertion order for deterministic re-export.
	g.order = append([]string(nil), order...)
	return g, nil
}

// dictDependencies extracts the dependency names a serialized node needs
// before it can be rebuilt.
func dictDependencies(cfg map[string]any) []string {
	switch cfg["kind"] {
	case node.KindCalculation:
		if restorable, ok := cfg["restorable"].(bool); ok && !restorable {
			return nil // rebuilt as a stub, no live references needed
		}
		deps, _ := stringSlice(cfg["inputs"])
		return deps
	case node.KindFormula, node.KindMetric:
		variables, _ := cfg["variables"].(map[string]any)
		seen := make(map[string]struct{}, len(variables))
		var deps []string
		for _, bound := range variables {
			name, _ := bound.(string)
			if _, dup := seen[name]; !dup && name != "" {
				seen[name] = struct{}{}
				deps = append(deps, name)
			}
		}
		return deps
	case node.KindForecast:
		if restorable, ok := cfg["restorable"].(bool); ok && !restorable {
			return nil
		}
		if input, ok := cfg["input"].(string); ok {
			return []string{input}
		}
	}
	return nil
}

func buildNode(g *Graph, name string, cfg map[string]any) (node.Node, error) {
	kind, _ := cfg["kind"].(string)
	switch kind {
	case node.KindItem:
		values, err := floatMap(cfg["values"])
		if err != nil {
			return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload,
				"item %q: bad values", name).WithNode(name)
		}
		return node.NewItem(name, values), nil

	case node.KindCalculation:
		inputs, _ := stringSlice(cfg["inputs"])
		if restorable, ok := cfg["restorable"].(bool); ok && !restorable {
			return node.NewUnrestorable(name, kind, inputs), nil
		}
		operation, _ := cfg["operation"].(string)
		weights, _ := floatSlice(cfg["weights"])
		strategy, err := node.NewStrategy(operation, node.StrategyOptions{Weights: weights})
		if err != nil {
			return nil, err
		}
		resolved := make([]node.Node, len(inputs))
		for i, input := range inputs {
			resolved[i] = g.GetNode(input)
		}
		calc := node.NewCalculation(name, resolved, strategy)
		if description, ok := cfg["description"].(string); ok {
			calc.SetDescription(description)
		}
		return calc, nil

	case node.KindFormula, node.KindMetric:
		source, _ := cfg["formula"].(string)
		rawVars, _ := cfg["variables"].(map[string]any)
		variables := make(map[string]node.Node, len(rawVars))
		for varName, bound := range rawVars {
			boundName, _ := bound.(string)
			variables[varName] = g.GetNode(boundName)
		}
		if kind == node.KindMetric {
			metricName, _ := cfg["metric"].(string)
			description, _ := cfg["description"].(string)
			return node.NewMetric(name, metricName, description, source, variables)
		}
		return node.NewFormula(name, source, variables)

	case node.KindForecast:
		input, _ := cfg["input"].(string)
		if restorable, ok := cfg["restorable"].(bool); ok && !restorable {
			return node.NewUnrestorable(name, kind, []string{input}), nil
		}
		basePeriod, _ := cfg["base_period"].(string)
		forecastPeriods, _ := stringSlice(cfg["periods"])
		method, _ := cfg["method"].(string)

		switch method {
		case node.GrowthAverageValue:
			value, _ := cfg["value"].(float64)
			return node.NewValueForecast(name, g.GetNode(input), basePeriod,
				forecastPeriods, &node.AverageValue{Average: value}), nil
		case node.GrowthFixed:
			rate, _ := cfg["rate"].(float64)
			return node.NewForecast(name, g.GetNode(input), basePeriod,
				forecastPeriods, node.NewFixedGrowth(rate))
		case node.GrowthHistoricalAverage:
			rate, _ := cfg["rate"].(float64)
			return node.NewForecast(name, g.GetNode(input), basePeriod,
				forecastPeriods, node.NewHistoricalAverageRate(rate))
		case node.GrowthCurve:
			rates, err := floatSlice(cfg["curve"])
			if err != nil {
				return nil, ferrors.Wrap(err, ferrors.CodeInvalidPayload,
					"forecast %q: bad curve", name).WithNode(name)
			}
			return node.NewForecast(name, g.GetNode(input), basePeriod,
				forecastPeriods, node.NewCurveGrowth(rates))
		default:
			return nil, ferrors.New(ferrors.CodeInvalidPayload,
				"forecast %q: unknown growth method %q", name, method).WithNode(name)
		}

	default:
		return nil, ferrors.New(ferrors.CodeInvalidPayload,
			"node %q has unknown kind %q", name, kind).WithNode(name)
	}
}

func stringSlice(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, ferrors.New(ferrors.CodeInvalidPayload, "missing list")
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, ferrors.New(ferrors.CodeInvalidPayload, "list element %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, ferrors.New(ferrors.CodeInvalidPayload, "not a list")
	}
}

func floatSlice(raw any) ([]float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []float64:
		return append([]float64(nil), v...), nil
	case []any:
		out := make([]float64, len(v))
		for i, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil, ferrors.New(ferrors.CodeInvalidPayload, "list element %d is not a number", i)
			}
			out[i] = f
		}
		return out, nil
	default:
		return nil, ferrors.New(ferrors.CodeInvalidPayload, "not a list")
	}
}

func floatMap(raw any) (map[string]float64, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case map[string]float64:
		return v, nil
	case map[string]any:
		out := make(map[string]float64, len(v))
		for key, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil, ferrors.New(ferrors.CodeInvalidPayload, "value for %q is not a number", key)
			}
			out[key] = f
		}
		return out, nil
	default:
		return nil, ferrors.New(ferrors.CodeInvalidPayload, "not a map")
	}
}
