package formula

import (
	"math"
	"testing"
)

// Helper to parse and evaluate with a fixed variable map
func evalSource(t *testing.T, source string, vars map[string]float64) (float64, error) {
	t.Helper()

	expr, err := Parse(source)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", source, err)
	}

	return Eval(expr, func(name string) (float64, error) {
		return vars[name], nil
	})
}

func TestParseAndEvalArithmetic(t *testing.T) {
	tests := []struct {
		source string
		vars   map[string]float64
		want   float64
	}{
		{"1 + 2", nil, 3},
		{"2 + 3 * 4", nil, 14},
		{"(2 + 3) * 4", nil, 20},
		{"10 - 4 - 3", nil, 3},          // left-associative
		{"100 / 10 / 2", nil, 5},        // left-associative
		{"-2 * 3", nil, -6},             // unary binds tighter than *
		{"--5", nil, 5},                 // right-associative unary
		{"-(2 + 3)", nil, -5},
		{"revenue - cogs", map[string]float64{"revenue": 100, "cogs": 60}, 40},
		{"net_income / revenue", map[string]float64{"net_income": 20, "revenue": 80}, 0.25},
		{"a * 1.5 + b", map[string]float64{"a": 2, "b": 1}, 4},
		{"0.5 * (a + b)", map[string]float64{"a": 3, "b": 5}, 4},
	}

	for _, tt := range tests {
		got, err := evalSource(t, tt.source, tt.vars)
		if err != nil {
			t.Errorf("Eval(%q) failed: %v", tt.source, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Eval(%q) = %v, want %v", tt.source, got, tt.want)
		}
	}
}

func TestParseRejectsInvalidSyntax(t *testing.T) {
	invalid := []string{
		"",
		"1 +",
		"* 2",
		"(1 + 2",
		"1 + 2)",
		"a ^ b",
		"a % b",
		"a ** b",
		"1 2",
		"a == b",
		"foo(1)",
		"a & b",
	}

	for _, source := range invalid {
		if _, err := Parse(source); err == nil {
			t.Errorf("Parse(%q) succeeded, want error", source)
		}
	}
}

func TestEvalDivisionByZero(t *testing.T) {
	expr, err := Parse("a / b")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	_, err = Eval(expr, func(name string) (float64, error) {
		if name == "a" {
			return 1, nil
		}
		return 0, nil
	})
	if err == nil {
		t.Fatal("expected division-by-zero error, got nil")
	}
}

func TestVariablesCollectsDistinctNames(t *testing.T) {
	expr, err := Parse("a + b * a - c")
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	names := Variables(expr)
	want := []string{"a", "b", "c"}
	if len(names) != len(want) {
		t.Fatalf("Variables = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Variables[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
