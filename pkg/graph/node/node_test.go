package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

func TestItemNode(t *testing.T) {
	item := NewItem("revenue", map[string]float64{"2023": 100.0})

	value, err := item.Calculate("2023")
	require.NoError(t, err)
	assert.Equal(t, 100.0, value)

	// Missing data is zero, not an error
	value, err = item.Calculate("2024")
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)

	assert.False(t, item.HasCalculation())
	assert.Empty(t, item.Dependencies())

	item.SetValue("2024", 120.0)
	value, err = item.Calculate("2024")
	require.NoError(t, err)
	assert.Equal(t, 120.0, value)
}

func TestCalculationStrategies(t *testing.T) {
	a := NewItem("a", map[string]float64{"p": 100.0})
	b := NewItem("b", map[string]float64{"p": 20.0})
	c := NewItem("c", map[string]float64{"p": 5.0})

	tests := []struct {
		key  string
		opts StrategyOptions
		want float64
	}{
		{StrategyAddition, StrategyOptions{}, 125.0},
		{StrategySubtraction, StrategyOptions{}, 75.0},
		{StrategyMultiplication, StrategyOptions{}, 10000.0},
		{StrategyDivision, StrategyOptions{}, 1.0},
		{StrategyWeightedAverage, StrategyOptions{}, 125.0 / 3},
		{StrategyWeightedAverage, StrategyOptions{Weights: []float64{0.5, 0.25, 0.25}}, 56.25},
	}

	for _, tt := range tests {
		strategy, err := NewStrategy(tt.key, tt.opts)
		require.NoError(t, err)

		n := NewCalculation("calc", []Node{a, b, c}, strategy)
		value, err := n.Calculate("p")
		require.NoError(t, err, "strategy %s", tt.key)
		assert.InDelta(t, tt.want, value, 1e-9, "strategy %s", tt.key)
	}
}

func TestDivisionByZeroFails(t *testing.T) {
	a := NewItem("a", map[string]float64{"p": 100.0})
	zero := NewItem("zero", nil)

	strategy, err := NewStrategy(StrategyDivision, StrategyOptions{})
	require.NoError(t, err)

	n := NewCalculation("ratio", []Node{a, zero}, strategy)
	_, err = n.Calculate("p")
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeDivisionByZero))
}

func TestWeightedAverageLengthMismatch(t *testing.T) {
	a := NewItem("a", map[string]float64{"p": 1.0})
	b := NewItem("b", map[string]float64{"p": 2.0})

	strategy, err := NewStrategy(StrategyWeightedAverage, StrategyOptions{Weights: []float64{1.0}})
	require.NoError(t, err)

	n := NewCalculation("avg", []Node{a, b}, strategy)
	_, err = n.Calculate("p")
	require.Error(t, err)
	assert.True(t, ferrors.IsCategory(err, ferrors.CategoryStrategy))
}

func TestCustomFormulaStrategy(t *testing.T) {
	a := NewItem("a", map[string]float64{"p": 10.0})
	b := NewItem("b", map[string]float64{"p": 4.0})

	strategy, err := NewStrategy(StrategyCustomFormula, StrategyOptions{
		Custom: func(inputs map[string]float64) (float64, error) {
			return inputs["a"]*2 - inputs["b"], nil
		},
	})
	require.NoError(t, err)

	n := NewCalculation("custom", []Node{a, b}, strategy)
	value, err := n.Calculate("p")
	require.NoError(t, err)
	assert.Equal(t, 16.0, value)
}

func TestUnknownStrategyKey(t *testing.T) {
	_, err := NewStrategy("modulo", StrategyOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeUnknownStrategy))
}

func TestFormulaNode(t *testing.T) {
	revenue := NewItem("revenue", map[string]float64{"2023": 100.0})
	cogs := NewItem("cogs", map[string]float64{"2023": 60.0})

	n, err := NewFormula("gross_profit", "revenue - cogs", map[string]Node{
		"revenue": revenue,
		"cogs":    cogs,
	})
	require.NoError(t, err)

	value, err := n.Calculate("2023")
	require.NoError(t, err)
	assert.Equal(t, 40.0, value)

	assert.True(t, n.HasCalculation())
	assert.Equal(t, []string{"cogs", "revenue"}, n.Dependencies())
}

func TestFormulaNodeUnboundVariable(t *testing.T) {
	revenue := NewItem("revenue", map[string]float64{"2023": 100.0})

	_, err := NewFormula("margin", "profit / revenue", map[string]Node{
		"revenue": revenue,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "profit")
}

func TestMetricNodeIntrospection(t *testing.T) {
	ni := NewItem("net_income", map[string]float64{"2023": 20.0})
	rev := NewItem("revenue", map[string]float64{"2023": 80.0})

	n, err := NewMetric("npm", "net_profit_margin", "Net income as a share of revenue",
		"net_income / revenue", map[string]Node{"net_income": ni, "revenue": rev})
	require.NoError(t, err)

	assert.Equal(t, "net_profit_margin", n.MetricName())
	assert.Equal(t, "Net income as a share of revenue", n.MetricDescription())

	value, err := n.Calculate("2023")
	require.NoError(t, err)
	assert.Equal(t, 0.25, value)
}

func TestFixedGrowthForecastCompounds(t *testing.T) {
	base := NewItem("revenue", map[string]float64{"2023": 120.0})

	n, err := NewForecast("revenue_fc", base, "2023", []string{"p1", "p2"}, NewFixedGrowth(0.05))
	require.NoError(t, err)

	v1, err := n.Calculate("p1")
	require.NoError(t, err)
	assert.InDelta(t, 126.0, v1, 1e-9)

	v2, err := n.Calculate("p2")
	require.NoError(t, err)
	assert.InDelta(t, 132.3, v2, 1e-9)

	// Historical periods delegate to the input
	v0, err := n.Calculate("2023")
	require.NoError(t, err)
	assert.Equal(t, 120.0, v0)
}

func TestCurveGrowthLengthMismatch(t *testing.T) {
	base := NewItem("revenue", map[string]float64{"2023": 100.0})

	_, err := NewForecast("fc", base, "2023", []string{"p1", "p2"}, NewCurveGrowth([]float64{0.1}))
	require.Error(t, err)
	assert.True(t, ferrors.IsCategory(err, ferrors.CategoryStrategy))
}

func TestCurveGrowthForecast(t *testing.T) {
	base := NewItem("revenue", map[string]float64{"2023": 100.0})

	n, err := NewForecast("fc", base, "2023", []string{"p1", "p2"}, NewCurveGrowth([]float64{0.10, 0.20}))
	require.NoError(t, err)

	v1, err := n.Calculate("p1")
	require.NoError(t, err)
	assert.InDelta(t, 110.0, v1, 1e-9)

	v2, err := n.Calculate("p2")
	require.NoError(t, err)
	assert.InDelta(t, 132.0, v2, 1e-9)
}

func TestStatisticalGrowthCachedPerPeriod(t *testing.T) {
	base := NewItem("revenue", map[string]float64{"2023": 100.0})

	calls := 0
	n, err := NewForecast("fc", base, "2023", []string{"p1"}, NewStatisticalGrowth(func() float64 {
		calls++
		return 0.1
	}))
	require.NoError(t, err)

	v1, err := n.Calculate("p1")
	require.NoError(t, err)
	v2, err := n.Calculate("p1")
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.Equal(t, 1, calls, "value cache must suppress resampling for a resolved period")

	n.ClearCache()
	_, err = n.Calculate("p1")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestHistoricalAverageGrowth(t *testing.T) {
	values := map[string]float64{"2020": 100.0, "2021": 110.0, "2022": 121.0}
	policy := NewHistoricalAverageGrowth(values, "2022", nil)
	assert.InDelta(t, 0.10, policy.GrowthRate, 1e-9)

	// Zero-base transitions are skipped
	values = map[string]float64{"2020": 0.0, "2021": 50.0, "2022": 55.0}
	policy = NewHistoricalAverageGrowth(values, "2022", nil)
	assert.InDelta(t, 0.10, policy.GrowthRate, 1e-9)

	// Fewer than two periods defaults to zero
	policy = NewHistoricalAverageGrowth(map[string]float64{"2022": 10.0}, "2022", nil)
	assert.Equal(t, 0.0, policy.GrowthRate)
}

func TestAverageValueForecast(t *testing.T) {
	base := NewItem("opex", map[string]float64{"2021": 10.0, "2022": 20.0, "2023": 30.0})

	n := NewValueForecast("opex_fc", base, "2023", []string{"p1", "p2"},
		NewAverageValue(base.Values(), "2023"))

	v1, err := n.Calculate("p1")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, v1, 1e-9)

	v2, err := n.Calculate("p2")
	require.NoError(t, err)
	assert.InDelta(t, 20.0, v2, 1e-9)
}

func TestCalculationNodeRebind(t *testing.T) {
	a := NewItem("a", map[string]float64{"p": 1.0})
	b := NewItem("b", map[string]float64{"p": 2.0})

	strategy, err := NewStrategy(StrategyAddition, StrategyOptions{})
	require.NoError(t, err)
	n := NewCalculation("sum", []Node{a, b}, strategy)

	replacement := NewItem("a", map[string]float64{"p": 10.0})
	n.Rebind(func(name string) (Node, bool) {
		if name == "a" {
			return replacement, true
		}
		return nil, false
	})

	value, err := n.Calculate("p")
	require.NoError(t, err)
	assert.Equal(t, 12.0, value)
}
