package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fingraph-lang/fingraph/pkg/graph/node"
)

func buildExportGraph(t *testing.T) *Graph {
	t.Helper()
	g := newTestGraph(t)

	_, err := g.Engine().AddCalculation("gross_profit", []string{"revenue", "cogs"},
		node.StrategySubtraction, CalcOptions{})
	require.NoError(t, err)
	_, err = g.Engine().AddCalculation("gross_margin", []string{"gross_profit", "revenue"},
		"formula", CalcOptions{Formula: "gross_profit / revenue"})
	require.NoError(t, err)

	g.AddItem("net_income", map[string]float64{"2023": 20.0})
	_, err = g.Engine().AddMetric("net_profit_margin", MetricOptions{})
	require.NoError(t, err)

	_, err = g.Engine().AddForecast("revenue_fc", "revenue", "2023",
		[]string{"2024", "2025"}, node.NewFixedGrowth(0.05))
	require.NoError(t, err)

	return g
}

func TestExportRoundTrip(t *testing.T) {
	g := buildExportGraph(t)

	restored, err := FromDict(g.Export())
	require.NoError(t, err)

	assert.Equal(t, g.Periods(), restored.Periods())
	assert.Equal(t, g.NodeNames(), restored.NodeNames())

	for _, name := range g.NodeNames() {
		for _, period := range []string{"2022", "2023"} {
			want, errA := g.Calculate(name, period)
			got, errB := restored.Calculate(name, period)
			require.NoError(t, errA, "%s/%s", name, period)
			require.NoError(t, errB, "%s/%s", name, period)
			assert.InDelta(t, want, got, 1e-9, "%s/%s", name, period)
		}
	}

	// Forecast values survive too
	want, err := g.Calculate("revenue_fc", "2025")
	require.NoError(t, err)
	got, err := restored.Calculate("revenue_fc", "2025")
	require.NoError(t, err)
	assert.InDelta(t, want, got, 1e-9)
}

func TestExportRoundTripThroughJSON(t *testing.T) {
	g := buildExportGraph(t)

	payload, err := json.Marshal(g.Export())
	require.NoError(t, err)

	var dict map[string]any
	require.NoError(t, json.Unmarshal(payload, &dict))

	restored, err := FromDict(dict)
	require.NoError(t, err)

	value, err := restored.Calculate("gross_profit", "2023")
	require.NoError(t, err)
	assert.Equal(t, 40.0, value)

	// Exporting the restored graph must produce the identical canonical JSON.
	again, err := json.Marshal(restored.Export())
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(again))
}

func TestFromDictRejectsMalformedPayloads(t *testing.T) {
	_, err := FromDict(map[string]any{"periods": []any{"p"}})
	require.Error(t, err)

	_, err = FromDict(map[string]any{
		"periods": []any{"p"},
		"nodes": map[string]any{
			"x": map[string]any{"kind": "mystery"},
		},
	})
	require.Error(t, err)

	// Dangling reference inside the dict
	_, err = FromDict(map[string]any{
		"periods": []any{"p"},
		"nodes": map[string]any{
			"f": map[string]any{
				"kind":      "formula",
				"formula":   "ghost",
				"variables": map[string]any{"ghost": "ghost"},
			},
		},
	})
	require.Error(t, err)
}

func TestUnrestorableNodesFailExplicitly(t *testing.T) {
	g := newTestGraph(t)
	_, err := g.Engine().AddCustomCalculation("custom",
		func(inputs map[string]float64) (float64, error) {
			return inputs["revenue"] * 2, nil
		}, []string{"revenue"}, "doubled revenue")
	require.NoError(t, err)

	restored, err := FromDict(g.Export())
	require.NoError(t, err)

	// The stub preserves structure but refuses to evaluate.
	assert.Equal(t, []string{"revenue"}, restored.GetNode("custom").Dependencies())
	_, err = restored.Calculate("custom", "2023")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "custom")
}
