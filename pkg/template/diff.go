package template

import (
	"encoding/json"
	"math"
	"sort"

	"go.uber.org/zap"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
	"github.com/fingraph-lang/fingraph/pkg/graph"
)

// StructureDiff reports node-level differences between two graphs. Changed
// maps node names to a short reason string describing what differs.
type StructureDiff struct {
	Added   []string          `json:"added,omitempty"`
	Removed []string          `json:"removed,omitempty"`
	Changed map[string]string `json:"changed,omitempty"`
}

// Empty reports whether the structures match.
func (d StructureDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ValueDelta is one differing cell.
type ValueDelta struct {
	Node   string  `json:"node"`
	Period string  `json:"period"`
	Left   float64 `json:"left"`
	Right  float64 `json:"right"`
}

// Delta returns right minus left.
func (d ValueDelta) Delta() float64 { return d.Right - d.Left }

// ValuesDiff reports cell-level value differences over the node and period
// intersection of two graphs.
type ValuesDiff struct {
	Deltas   []ValueDelta `json:"deltas,omitempty"`
	MaxDelta float64      `json:"max_delta"`
}

// Empty reports whether every compared cell matched within tolerance.
func (d ValuesDiff) Empty() bool { return len(d.Deltas) == 0 }

// DiffResult combines structural and value comparison.
type DiffResult struct {
	Structure StructureDiff `json:"structure"`
	Values    ValuesDiff    `json:"values"`
}

// HasDifferences reports whether anything differs.
func (r DiffResult) HasDifferences() bool {
	return !r.Structure.Empty() || !r.Values.Empty()
}

// DiffOptions configures Diff.
type DiffOptions struct {
	// Atol is the absolute tolerance for value comparison; cells whose
	// difference is at or below it are equal. Defaults to 1e-9.
	Atol float64
	// Periods restricts value comparison; empty means the period
	// intersection of both graphs.
	Periods []string
	// SkipValues compares structure only.
	SkipValues bool
	// Logger reports cells that failed to evaluate on either side.
	Logger *zap.Logger
}

// Diff compares two graphs, structurally and by calculated values.
func Diff(left, right *graph.Graph, opts DiffOptions) (DiffResult, error) {
	result := DiffResult{Structure: CompareStructure(left, right)}
	if !opts.SkipValues {
		values, err := CompareValues(left, right, opts)
		if err != nil {
			return DiffResult{}, err
		}
		result.Values = values
	}
	return result, nil
}

// CompareStructure compares the two graphs' node sets and definitions. Two
// nodes with the same name compare equal when their export signatures match;
// the signature is the node's export dict minus its stored values, so item
// data never registers as a structural change.
func CompareStructure(left, right *graph.Graph) StructureDiff {
	diff := StructureDiff{Changed: make(map[string]string)}

	leftNames := left.NodeNames()
	rightSet := make(map[string]bool)
	for _, name := range right.NodeNames() {
		rightSet[name] = true
	}
	leftSet := make(map[string]bool, len(leftNames))
	for _, name := range leftNames {
		leftSet[name] = true
	}

	for _, name := range right.NodeNames() {
		if !leftSet[name] {
			diff.Added = append(diff.Added, name)
		}
	}
	for _, name := range leftNames {
		if !rightSet[name] {
			diff.Removed = append(diff.Removed, name)
		}
	}
	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)

	leftSigs := nodeSignatures(left)
	rightSigs := nodeSignatures(right)
	for _, name := range leftNames {
		if !rightSet[name] {
			continue
		}
		if leftSigs[name] != rightSigs[name] {
			diff.Changed[name] = "definition changed"
		}
	}
	if len(diff.Changed) == 0 {
		diff.Changed = nil
	}
	return diff
}

// nodeSignatures maps each node name to the canonical JSON of its export
// dict with the "values" key stripped.
func nodeSignatures(g *graph.Graph) map[string]string {
	nodes, _ := g.Export()["nodes"].(map[string]any)
	sigs := make(map[string]string, len(nodes))
	for name, raw := range nodes {
		cfg, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		sig := make(map[string]any, len(cfg))
		for key, value := range cfg {
			if key == "values" {
				continue
			}
			sig[key] = value
		}
		canonical, err := json.Marshal(sig)
		if err != nil {
			continue
		}
		sigs[name] = string(canonical)
	}
	return sigs
}

// CompareValues calculates every shared node over the compared periods on
// both sides and records cells whose absolute difference exceeds the
// tolerance. Cells that fail to evaluate on either side are skipped and
// logged. It fails only when no explicit periods were supplied and the two
// graphs share none.
func CompareValues(left, right *graph.Graph, opts DiffOptions) (ValuesDiff, error) {
	atol := opts.Atol
	if atol == 0 {
		atol = 1e-9
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	periods := opts.Periods
	if len(periods) == 0 {
		periods = intersect(left.Periods(), right.Periods())
		if len(periods) == 0 {
			return ValuesDiff{}, ferrors.New(ferrors.CodeUnknownPeriod,
				"graphs share no periods to compare")
		}
	}

	var diff ValuesDiff
	for _, name := range intersect(left.NodeNames(), right.NodeNames()) {
		for _, period := range periods {
			lv, lerr := left.Calculate(name, period)
			rv, rerr := right.Calculate(name, period)
			if lerr != nil || rerr != nil {
				logger.Warn("skipping cell in value diff",
					zap.String("node", name),
					zap.String("period", period),
					zap.NamedError("left_error", lerr),
					zap.NamedError("right_error", rerr))
				continue
			}
			delta := math.Abs(rv - lv)
			if delta > atol {
				diff.Deltas = append(diff.Deltas, ValueDelta{
					Node:   name,
					Period: period,
					Left:   lv,
					Right:  rv,
				})
				if delta > diff.MaxDelta {
					diff.MaxDelta = delta
				}
			}
		}
	}
	return diff, nil
}

// intersect returns the sorted intersection of two string slices.
func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, s := range b {
		inB[s] = true
	}
	var out []string
	for _, s := range a {
		if inB[s] {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
