package node

import (
	"sort"

	"go.uber.org/zap"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Growth policy method keys used in exported forecast configurations.
const (
	GrowthFixed             = "fixed"
	GrowthCurve             = "curve"
	GrowthStatistical       = "statistical"
	GrowthCustom            = "custom"
	GrowthHistoricalAverage = "historical_average"
	GrowthAverageValue      = "average_value"
)

// GrowthPolicy produces the growth rate applied to the previous period's
// value for each forecast period.
type GrowthPolicy interface {
	// Key returns the policy's method key.
	Key() string
	// Rate returns the growth rate for forecast period index i. period and
	// prevPeriod name the current and preceding periods; prevValue is the
	// already-resolved preceding value.
	Rate(i int, period, prevPeriod string, prevValue float64) (float64, error)
}

// ValuePolicy replaces growth entirely: every forecast period evaluates to
// the policy's constant. Implemented by the average-value policy.
type ValuePolicy interface {
	Key() string
	Value() float64
}

// FixedGrowth applies a constant rate every forecast period (compounding).
type FixedGrowth struct {
	GrowthRate float64
	key        string
}

// NewFixedGrowth creates a fixed-rate growth policy
func NewFixedGrowth(rate float64) *FixedGrowth {
	return &FixedGrowth{GrowthRate: rate, key: GrowthFixed}
}

// NewHistoricalAverageRate rebuilds a historical-average policy from an
// already-computed rate, as stored in exported forecast configurations.
func NewHistoricalAverageRate(rate float64) *FixedGrowth {
	return &FixedGrowth{GrowthRate: rate, key: GrowthHistoricalAverage}
}

func (g *FixedGrowth) Key() string {
	if g.key == "" {
		return GrowthFixed
	}
	return g.key
}

func (g *FixedGrowth) Rate(int, string, string, float64) (float64, error) {
	return g.GrowthRate, nil
}

// CurveGrowth applies an explicit per-period rate, positionally.
type CurveGrowth struct {
	Rates []float64
}

// NewCurveGrowth creates a growth-curve policy
func NewCurveGrowth(rates []float64) *CurveGrowth {
	return &CurveGrowth{Rates: append([]float64(nil), rates...)}
}

func (g *CurveGrowth) Key() string { return GrowthCurve }

func (g *CurveGrowth) Rate(i int, period, _ string, _ float64) (float64, error) {
	if i < 0 || i >= len(g.Rates) {
		return 0, ferrors.New(ferrors.CodeBadStrategyConfig,
			"growth curve has no rate for period %q (index %d)", period, i)
	}
	return g.Rates[i], nil
}

// StatisticalGrowth samples a zero-argument callable fresh for every period.
// Two calls for the same period may differ; the forecast node's own value
// cache suppresses recomputation once a period has been resolved.
type StatisticalGrowth struct {
	Sample func() float64
}

// NewStatisticalGrowth creates a distribution-sampling growth policy
func NewStatisticalGrowth(sample func() float64) *StatisticalGrowth {
	return &StatisticalGrowth{Sample: sample}
}

func (g *StatisticalGrowth) Key() string { return GrowthStatistical }

func (g *StatisticalGrowth) Rate(int, string, string, float64) (float64, error) {
	return g.Sample(), nil
}

// CustomGrowth delegates to a caller-supplied rate function.
type CustomGrowth struct {
	Fn func(period, prevPeriod string, prevValue float64) (float64, error)
}

// NewCustomGrowth creates a custom growth policy
func NewCustomGrowth(fn func(period, prevPeriod string, prevValue float64) (float64, error)) *CustomGrowth {
	return &CustomGrowth{Fn: fn}
}

func (g *CustomGrowth) Key() string { return GrowthCustom }

func (g *CustomGrowth) Rate(_ int, period, prevPeriod string, prevValue float64) (float64, error) {
	return g.Fn(period, prevPeriod, prevValue)
}

// NewHistoricalAverageGrowth computes the mean period-over-period growth rate
// across the historical values up to and including basePeriod, skipping any
// transition whose prior value is exactly zero. With fewer than two usable
// periods, or all transitions skipped, the rate is 0.0 (logged, not raised).
func NewHistoricalAverageGrowth(values map[string]float64, basePeriod string, logger *zap.Logger) *FixedGrowth {
	if logger == nil {
		logger = zap.NewNop()
	}

	periods := make([]string, 0, len(values))
	for period := range values {
		if period <= basePeriod {
			periods = append(periods, period)
		}
	}
	sort.Strings(periods)

	if len(periods) < 2 {
		logger.Warn("historical average growth defaulting to 0.0: fewer than two historical periods",
			zap.String("base_period", basePeriod), zap.Int("periods", len(periods)))
		return &FixedGrowth{GrowthRate: 0, key: GrowthHistoricalAverage}
	}

	var sum float64
	var count int
	for i := 1; i < len(periods); i++ {
		prev := values[periods[i-1]]
		if prev == 0 {
			continue
		}
		sum += (values[periods[i]] - prev) / prev
		count++
	}

	if count == 0 {
		logger.Warn("historical average growth defaulting to 0.0: every transition had a zero base",
			zap.String("base_period", basePeriod))
		return &FixedGrowth{GrowthRate: 0, key: GrowthHistoricalAverage}
	}

	return &FixedGrowth{GrowthRate: sum / float64(count), key: GrowthHistoricalAverage}
}

// AverageValue returns a precomputed constant for every forecast period.
type AverageValue struct {
	Average float64
}

// NewAverageValue computes the mean of the historical values up to and
// including basePeriod. An empty history yields 0.0.
func NewAverageValue(values map[string]float64, basePeriod string) *AverageValue {
	var sum float64
	var count int
	for period, value := range values {
		if period <= basePeriod {
			sum += value
			count++
		}
	}
	if count == 0 {
		return &AverageValue{}
	}
	return &AverageValue{Average: sum / float64(count)}
}

func (g *AverageValue) Key() string { return GrowthAverageValue }

// Value returns the precomputed average
func (g *AverageValue) Value() float64 { return g.Average }

// ForecastNode projects future periods from an input node. Periods at or
// before the base period delegate to the input; each forecast period is the
// previous period's value times (1 + growth rate), resolved recursively.
type ForecastNode struct {
	name            string
	input           Node
	basePeriod      string
	forecastPeriods []string
	policy          GrowthPolicy
	value           ValuePolicy
	cache           map[string]float64
}

var _ Node = (*ForecastNode)(nil)
var _ CacheClearer = (*ForecastNode)(nil)
var _ Rebinder = (*ForecastNode)(nil)
var _ Exporter = (*ForecastNode)(nil)

// NewForecast creates a forecast node with a growth policy. A curve policy
// whose rate count differs from the forecast period count fails at
// construction.
func NewForecast(name string, input Node, basePeriod string, forecastPeriods []string, policy GrowthPolicy) (*ForecastNode, error) {
	if curve, ok := policy.(*CurveGrowth); ok {
		if len(curve.Rates) != len(forecastPeriods) {
			return nil, ferrors.New(ferrors.CodeBadStrategyConfig,
				"growth curve has %d rates for %d forecast periods",
				len(curve.Rates), len(forecastPeriods)).WithNode(name)
		}
	}
	return &ForecastNode{
		name:            name,
		input:           input,
		basePeriod:      basePeriod,
		forecastPeriods: append([]string(nil), forecastPeriods...),
		policy:          policy,
		cache:           make(map[string]float64),
	}, nil
}

// NewValueForecast creates a forecast node whose forecast periods all
// evaluate to the value policy's constant.
func NewValueForecast(name string, input Node, basePeriod string, forecastPeriods []string, value ValuePolicy) *ForecastNode {
	return &ForecastNode{
		name:            name,
		input:           input,
		basePeriod:      basePeriod,
		forecastPeriods: append([]string(nil), forecastPeriods...),
		value:           value,
		cache:           make(map[string]float64),
	}
}

// Name returns the node name
func (n *ForecastNode) Name() string { return n.name }

// BasePeriod returns the last historical period
func (n *ForecastNode) BasePeriod() string { return n.basePeriod }

// ForecastPeriods returns the projected periods in order
func (n *ForecastNode) ForecastPeriods() []string {
	return append([]string(nil), n.forecastPeriods...)
}

// Calculate resolves period against the forecast schedule. Non-forecast
// periods (including everything at or before the base period) delegate to
// the input node.
func (n *ForecastNode) Calculate(period string) (float64, error) {
	idx := n.periodIndex(period)
	if idx < 0 {
		return n.input.Calculate(period)
	}
	return n.forecastValue(idx)
}

func (n *ForecastNode) forecastValue(idx int) (float64, error) {
	period := n.forecastPeriods[idx]
	if value, ok := n.cache[period]; ok {
		return value, nil
	}

	if n.value != nil {
		value := n.value.Value()
		n.cache[period] = value
		return value, nil
	}

	prevPeriod := n.basePeriod
	var prevValue float64
	var err error
	if idx == 0 {
		prevValue, err = n.input.Calculate(n.basePeriod)
	} else {
		prevPeriod = n.forecastPeriods[idx-1]
		prevValue, err = n.forecastValue(idx - 1)
	}
	if err != nil {
		return 0, err
	}

	rate, err := n.policy.Rate(idx, period, prevPeriod, prevValue)
	if err != nil {
		return 0, err
	}

	value := prevValue * (1 + rate)
	n.cache[period] = value
	return value, nil
}

func (n *ForecastNode) periodIndex(period string) int {
	for i, p := range n.forecastPeriods {
		if p == period {
			return i
		}
	}
	return -1
}

// HasCalculation always reports true for forecast nodes
func (n *ForecastNode) HasCalculation() bool { return true }

// Dependencies returns the wrapped input node's name
func (n *ForecastNode) Dependencies() []string { return []string{n.input.Name()} }

// ClearCache drops every cached forecast value
func (n *ForecastNode) ClearCache() {
	n.cache = make(map[string]float64)
}

// CloneNode returns a copy with a fresh value cache, sharing the policy; the
// input reference still points at the source graph until rebound.
func (n *ForecastNode) CloneNode() Node {
	return &ForecastNode{
		name:            n.name,
		input:           n.input,
		basePeriod:      n.basePeriod,
		forecastPeriods: append([]string(nil), n.forecastPeriods...),
		policy:          n.policy,
		value:           n.value,
		cache:           make(map[string]float64),
	}
}

// Rebind re-resolves the wrapped input through the graph registry
func (n *ForecastNode) Rebind(resolve func(name string) (Node, bool)) {
	if current, ok := resolve(n.input.Name()); ok {
		n.input = current
	}
}

// Export serializes the forecast configuration. Statistical and custom
// policies carry callables and are marked unrestorable.
func (n *ForecastNode) Export() map[string]any {
	out := map[string]any{
		"kind":        KindForecast,
		"input":       n.input.Name(),
		"base_period": n.basePeriod,
		"periods":     toAnySlice(n.forecastPeriods),
	}
	if n.value != nil {
		out["method"] = n.value.Key()
		out["value"] = n.value.Value()
		return out
	}

	out["method"] = n.policy.Key()
	switch p := n.policy.(type) {
	case *FixedGrowth:
		out["rate"] = p.GrowthRate
	case *CurveGrowth:
		rates := make([]any, len(p.Rates))
		for i, r := range p.Rates {
			rates[i] = r
		}
		out["curve"] = rates
	default:
		out["restorable"] = false
	}
	return out
}
