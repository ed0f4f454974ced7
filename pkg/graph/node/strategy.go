package node

import (
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Strategy method keys accepted by NewStrategy and the engine's
// change-calculation-method operation.
const (
	StrategyAddition        = "addition"
	StrategySubtraction     = "subtraction"
	StrategyMultiplication  = "multiplication"
	StrategyDivision        = "division"
	StrategyWeightedAverage = "weighted_average"
	StrategyCustomFormula   = "custom_formula"
)

// CustomFunc is a caller-supplied calculation over a name-to-value map of the
// node's evaluated inputs.
type CustomFunc func(inputs map[string]float64) (float64, error)

// Strategy combines the evaluated input values of a calculation node into a
// single result.
type Strategy interface {
	// Key returns the strategy's method key.
	Key() string
	// Compute combines the input values. names is positionally aligned with
	// values and carries the input node names.
	Compute(values []float64, names []string) (float64, error)
}

// StrategyOptions carries the parameters some strategies need.
type StrategyOptions struct {
	// Weights for weighted_average; defaults to uniform when empty.
	Weights []float64
	// Custom is the callable for custom_formula.
	Custom CustomFunc
}

// NewStrategy builds the strategy for a method key. Unrecognized keys fail
// with a strategy error; custom_formula without a callable fails with a
// strategy-configuration error.
func NewStrategy(key string, opts StrategyOptions) (Strategy, error) {
	switch key {
	case StrategyAddition:
		return additionStrategy{}, nil
	case StrategySubtraction:
		return subtractionStrategy{}, nil
	case StrategyMultiplication:
		return multiplicationStrategy{}, nil
	case StrategyDivision:
		return divisionStrategy{}, nil
	case StrategyWeightedAverage:
		return &weightedAverageStrategy{weights: opts.Weights}, nil
	case StrategyCustomFormula:
		if opts.Custom == nil {
			return nil, ferrors.New(ferrors.CodeBadStrategyConfig,
				"custom_formula strategy requires a calculation function")
		}
		return &customFormulaStrategy{fn: opts.Custom}, nil
	default:
		return nil, ferrors.New(ferrors.CodeUnknownStrategy,
			"unknown calculation method %q", key)
	}
}

type additionStrategy struct{}

func (additionStrategy) Key() string { return StrategyAddition }

func (additionStrategy) Compute(values []float64, _ []string) (float64, error) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum, nil
}

type subtractionStrategy struct{}

func (subtractionStrategy) Key() string { return StrategySubtraction }

// Compute returns the first input minus the sum of the remaining inputs.
func (subtractionStrategy) Compute(values []float64, _ []string) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	result := values[0]
	for _, v := range values[1:] {
		result -= v
	}
	return result, nil
}

type multiplicationStrategy struct{}

func (multiplicationStrategy) Key() string { return StrategyMultiplication }

func (multiplicationStrategy) Compute(values []float64, _ []string) (float64, error) {
	product := 1.0
	for _, v := range values {
		product *= v
	}
	return product, nil
}

type divisionStrategy struct{}

func (divisionStrategy) Key() string { return StrategyDivision }

// Compute divides the first input sequentially by each remaining input.
func (divisionStrategy) Compute(values []float64, names []string) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	result := values[0]
	for i, v := range values[1:] {
		if v == 0 {
			return 0, ferrors.New(ferrors.CodeDivisionByZero,
				"division by zero: input %q is 0", names[i+1])
		}
		result /= v
	}
	return result, nil
}

type weightedAverageStrategy struct {
	weights []float64
}

func (s *weightedAverageStrategy) Key() string { return StrategyWeightedAverage }

// Compute returns the weighted mean of the inputs. Weights default to uniform
// 1/N when none were supplied.
func (s *weightedAverageStrategy) Compute(values []float64, _ []string) (float64, error) {
	if len(values) == 0 {
		return 0, nil
	}

	weights := s.weights
	if len(weights) == 0 {
		uniform := 1.0 / float64(len(values))
		weights = make([]float64, len(values))
		for i := range weights {
			weights[i] = uniform
		}
	}
	if len(weights) != len(values) {
		return 0, ferrors.New(ferrors.CodeBadStrategyConfig,
			"weighted_average: %d weights for %d inputs", len(weights), len(values))
	}

	var sum float64
	for i, v := range values {
		sum += v * weights[i]
	}
	return sum, nil
}

// Weights returns the configured weights (nil when uniform).
func (s *weightedAverageStrategy) Weights() []float64 { return s.weights }

type customFormulaStrategy struct {
	fn CustomFunc
}

func (s *customFormulaStrategy) Key() string { return StrategyCustomFormula }

func (s *customFormulaStrategy) Compute(values []float64, names []string) (float64, error) {
	byName := make(map[string]float64, len(values))
	for i, name := range names {
		byName[name] = values[i]
	}
	return s.fn(byName)
}
