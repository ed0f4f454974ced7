package graph

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
	"github.com/fingraph-lang/fingraph/pkg/graph/node"
)

func TestCalculateIsDeterministicAndCached(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Engine().AddCalculation("gross_profit", []string{"revenue", "cogs"},
		node.StrategySubtraction, CalcOptions{})
	require.NoError(t, err)

	first, err := g.Calculate("gross_profit", "2023")
	require.NoError(t, err)
	assert.Equal(t, 40.0, first)

	cached, ok := g.Engine().CachedValue("gross_profit", "2023")
	require.True(t, ok)
	assert.Equal(t, first, cached)

	for i := 0; i < 5; i++ {
		again, err := g.Calculate("gross_profit", "2023")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRecalculateAllClearsNodeCaches(t *testing.T) {
	g := New([]string{"2023"})
	g.AddItem("revenue", map[string]float64{"2023": 100.0})

	calls := 0
	_, err := g.Engine().AddForecast("revenue_fc", "revenue", "2023", []string{"2024"},
		node.NewStatisticalGrowth(func() float64 {
			calls++
			return 0.1
		}))
	require.NoError(t, err)

	value, err := g.Calculate("revenue_fc", "2024")
	require.NoError(t, err)
	assert.InDelta(t, 110.0, value, 1e-9)
	assert.Equal(t, 1, calls)

	// The sweep must drop the forecast node's internal period cache along
	// with the engine cache, so the policy is sampled again.
	g.RecalculateAll(RecalcOptions{})
	assert.Equal(t, 2, calls)
}

func TestCalculateUnknownNode(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Calculate("ebitda", "2023")
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeNodeNotFound))
}

func TestCalculationErrorCarriesContext(t *testing.T) {
	g := newTestGraph(t)
	g.AddItem("zero", map[string]float64{"2023": 0.0})
	_, err := g.Engine().AddCalculation("ratio", []string{"revenue", "zero"},
		node.StrategyDivision, CalcOptions{})
	require.NoError(t, err)

	_, err = g.Calculate("ratio", "2023")
	require.Error(t, err)
	assert.True(t, ferrors.IsCategory(err, ferrors.CategoryCalculation))

	var fe *ferrors.Error
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, "ratio", fe.NodeID)
	assert.Equal(t, "2023", fe.Period)
}

func TestUserCallableFailuresWrappedAsCalculationErrors(t *testing.T) {
	g := newTestGraph(t)

	_, err := g.Engine().AddCustomCalculation("erroring",
		func(map[string]float64) (float64, error) {
			return 0, fmt.Errorf("bad data upstream")
		}, []string{"revenue"}, "")
	require.NoError(t, err)

	_, err = g.Calculate("erroring", "2023")
	require.Error(t, err)
	assert.True(t, ferrors.IsCategory(err, ferrors.CategoryCalculation))

	_, err = g.Engine().AddCustomCalculation("panicking",
		func(map[string]float64) (float64, error) {
			panic("boom")
		}, []string{"revenue"}, "")
	require.NoError(t, err)

	_, err = g.Calculate("panicking", "2023")
	require.Error(t, err)
	assert.True(t, ferrors.IsCategory(err, ferrors.CategoryCalculation))
}

func TestRecalculateAllIsBestEffort(t *testing.T) {
	g := newTestGraph(t)
	g.AddItem("zero", map[string]float64{"2022": 0.0, "2023": 0.0})
	_, err := g.Engine().AddCalculation("broken", []string{"revenue", "zero"},
		node.StrategyDivision, CalcOptions{})
	require.NoError(t, err)

	// The broken node must not abort the sweep.
	g.RecalculateAll(RecalcOptions{})

	value, ok := g.Engine().CachedValue("revenue", "2023")
	require.True(t, ok)
	assert.Equal(t, 100.0, value)

	_, ok = g.Engine().CachedValue("broken", "2023")
	assert.False(t, ok)
}

func TestRecalculateAllCopyForward(t *testing.T) {
	g := New([]string{"2022", "2023", "2024"})
	g.AddItem("revenue", map[string]float64{"2022": 90.0, "2023": 100.0})

	// Off by default: the gap period stays zero.
	g.RecalculateAll(RecalcOptions{})
	value, err := g.Calculate("revenue", "2024")
	require.NoError(t, err)
	assert.Equal(t, 0.0, value)

	g.RecalculateAll(RecalcOptions{CopyForward: true})
	value, err = g.Calculate("revenue", "2024")
	require.NoError(t, err)
	assert.Equal(t, 100.0, value)
}

func TestAddCalculationFormulaDefaultsVariableNames(t *testing.T) {
	g := newTestGraph(t)

	_, err := g.Engine().AddCalculation("gross_profit", []string{"revenue", "cogs"},
		"formula", CalcOptions{Formula: "revenue - cogs"})
	require.NoError(t, err)

	value, err := g.Calculate("gross_profit", "2023")
	require.NoError(t, err)
	assert.Equal(t, 40.0, value)
}

func TestAddCalculationNameClash(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Engine().AddCalculation("revenue", []string{"cogs"},
		node.StrategyAddition, CalcOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeNodeExists))
}

func TestAddMetricDependencyResolution(t *testing.T) {
	g := newTestGraph(t)

	// net_income is missing: the error must name it.
	_, err := g.Engine().AddMetric("net_profit_margin", MetricOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeMetricInputMissing))
	assert.Contains(t, err.Error(), "net_income")

	g.AddItem("net_income", map[string]float64{"2023": 20.0})

	built, err := g.Engine().AddMetric("net_profit_margin", MetricOptions{})
	require.NoError(t, err)

	value, err := g.Calculate(built.Name(), "2023")
	require.NoError(t, err)
	assert.InDelta(t, 0.2, value, 1e-9)

	metricNode, err := g.Engine().Metric("net_profit_margin")
	require.NoError(t, err)
	assert.Equal(t, "net_profit_margin", metricNode.MetricName())
	assert.NotEmpty(t, metricNode.MetricDescription())
}

func TestAddMetricWithInputMap(t *testing.T) {
	g := New([]string{"2023"})
	g.AddItem("sales", map[string]float64{"2023": 100.0})
	g.AddItem("profit", map[string]float64{"2023": 25.0})

	_, err := g.Engine().AddMetric("net_profit_margin", MetricOptions{
		NodeName: "npm",
		InputMap: map[string]string{"revenue": "sales", "net_income": "profit"},
	})
	require.NoError(t, err)

	value, err := g.Calculate("npm", "2023")
	require.NoError(t, err)
	assert.InDelta(t, 0.25, value, 1e-9)
}

func TestAddMetricUnknown(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Engine().AddMetric("no_such_metric", MetricOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeUnknownMetric))
}

func TestEnsureSignedNodesIdempotent(t *testing.T) {
	g := newTestGraph(t)

	created, err := g.Engine().EnsureSignedNodes([]string{"cogs"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cogs_signed"}, created)

	value, err := g.Calculate("cogs_signed", "2023")
	require.NoError(t, err)
	assert.Equal(t, -60.0, value)

	// Second call is a no-op.
	again, err := g.Engine().EnsureSignedNodes([]string{"cogs"}, "")
	require.NoError(t, err)
	assert.Equal(t, created, again)

	_, err = g.Engine().EnsureSignedNodes([]string{"missing"}, "")
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeNodeNotFound))
}

func TestChangeCalculationMethodInvalidatesCache(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Engine().AddCalculation("combined", []string{"revenue", "cogs"},
		node.StrategyAddition, CalcOptions{})
	require.NoError(t, err)

	before, err := g.Calculate("combined", "2023")
	require.NoError(t, err)
	assert.Equal(t, 160.0, before)

	require.NoError(t, g.Engine().ChangeCalculationMethod("combined",
		node.StrategySubtraction, node.StrategyOptions{}))

	after, err := g.Calculate("combined", "2023")
	require.NoError(t, err)
	assert.Equal(t, 40.0, after, "stale cached value must not survive a method change")
}

func TestChangeCalculationMethodValidation(t *testing.T) {
	g := newTestGraph(t)

	err := g.Engine().ChangeCalculationMethod("missing", node.StrategyAddition, node.StrategyOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeNodeNotFound))

	err = g.Engine().ChangeCalculationMethod("revenue", node.StrategyAddition, node.StrategyOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeNodeWrongKind))

	_, err2 := g.Engine().AddCalculation("combined", []string{"revenue", "cogs"},
		node.StrategyAddition, CalcOptions{})
	require.NoError(t, err2)
	err = g.Engine().ChangeCalculationMethod("combined", "exponent", node.StrategyOptions{})
	require.Error(t, err)
	assert.True(t, ferrors.IsCode(err, ferrors.CodeUnknownStrategy))
}

func TestReplaceNodeInvalidatesDownstreamCache(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Engine().AddCalculation("gross_profit", []string{"revenue", "cogs"},
		node.StrategySubtraction, CalcOptions{})
	require.NoError(t, err)

	before, err := g.Calculate("gross_profit", "2023")
	require.NoError(t, err)
	assert.Equal(t, 40.0, before)

	require.NoError(t, g.ReplaceNode("cogs", node.NewItem("cogs", map[string]float64{"2023": 10.0})))

	after, err := g.Calculate("gross_profit", "2023")
	require.NoError(t, err)
	assert.Equal(t, 90.0, after)
}

func TestAddForecastExtendsPeriods(t *testing.T) {
	g := newTestGraph(t)

	_, err := g.Engine().AddForecast("revenue_fc", "revenue", "2023",
		[]string{"2024", "2025"}, node.NewFixedGrowth(0.10))
	require.NoError(t, err)

	assert.True(t, g.HasPeriod("2024"))
	assert.True(t, g.HasPeriod("2025"))

	value, err := g.Calculate("revenue_fc", "2025")
	require.NoError(t, err)
	assert.InDelta(t, 121.0, value, 1e-9)
}
