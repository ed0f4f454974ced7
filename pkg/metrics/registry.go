// Package metrics provides the registry of named financial metric
// definitions used to build metric nodes. The registry is constructed
// explicitly and injected into the calculation engine; registration is only
// permitted before the first lookup, after which the registry is read-only.
package metrics

import (
	"sort"

	"github.com/fingraph-lang/fingraph/internal/formula"
	"github.com/fingraph-lang/fingraph/pkg/ferrors"
)

// Definition describes a named metric: the node names its formula requires
// and the formula itself, in the restricted arithmetic grammar.
type Definition struct {
	Name        string   `json:"name"`
	Inputs      []string `json:"inputs"`
	Formula     string   `json:"formula"`
	Description string   `json:"description"`
}

// Registry maps metric names to definitions. Not safe for concurrent
// mutation; freeze-on-first-lookup makes post-setup reads safe to share.
type Registry struct {
	defs   map[string]Definition
	frozen bool
}

// NewRegistry creates a registry pre-populated with the built-in metric set.
func NewRegistry() *Registry {
	r := &Registry{defs: make(map[string]Definition, len(builtins))}
	for _, def := range builtins {
		r.defs[def.Name] = def
	}
	return r
}

// NewEmptyRegistry creates a registry with no definitions.
func NewEmptyRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition. It fails once the registry has served a lookup,
// if the name is already taken, or if the formula does not parse or
// references inputs outside the declared list.
func (r *Registry) Register(def Definition) error {
	if r.frozen {
		return ferrors.New(ferrors.CodeBadDefinition,
			"metric registry is read-only after first lookup").WithMetric(def.Name)
	}
	if _, exists := r.defs[def.Name]; exists {
		return ferrors.New(ferrors.CodeBadDefinition,
			"metric %q is already registered", def.Name).WithMetric(def.Name)
	}

	expr, err := formula.Parse(def.Formula)
	if err != nil {
		return ferrors.Wrap(err, ferrors.CodeBadDefinition,
			"metric %q has an invalid formula", def.Name).WithMetric(def.Name)
	}
	declared := make(map[string]struct{}, len(def.Inputs))
	for _, input := range def.Inputs {
		declared[input] = struct{}{}
	}
	for _, varName := range formula.Variables(expr) {
		if _, ok := declared[varName]; !ok {
			return ferrors.New(ferrors.CodeBadDefinition,
				"metric %q formula references %q, which is not a declared input",
				def.Name, varName).WithMetric(def.Name)
		}
	}

	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition for name. Not-found is reported through the
// boolean, not an error. The first lookup freezes the registry.
func (r *Registry) Lookup(name string) (Definition, bool) {
	r.frozen = true
	def, ok := r.defs[name]
	return def, ok
}

// Names returns every registered metric name, sorted.
func (r *Registry) Names() []string {
	r.frozen = true
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builtins = []Definition{
	{
		Name:        "gross_profit",
		Inputs:      []string{"revenue", "cost_of_goods_sold"},
		Formula:     "revenue - cost_of_goods_sold",
		Description: "Revenue remaining after direct production costs",
	},
	{
		Name:        "gross_profit_margin",
		Inputs:      []string{"revenue", "cost_of_goods_sold"},
		Formula:     "(revenue - cost_of_goods_sold) / revenue",
		Description: "Gross profit as a share of revenue",
	},
	{
		Name:        "operating_margin",
		Inputs:      []string{"operating_income", "revenue"},
		Formula:     "operating_income / revenue",
		Description: "Operating income as a share of revenue",
	},
	{
		Name:        "net_profit_margin",
		Inputs:      []string{"net_income", "revenue"},
		Formula:     "net_income / revenue",
		Description: "Net income as a share of revenue",
	},
	{
		Name:        "current_ratio",
		Inputs:      []string{"current_assets", "current_liabilities"},
		Formula:     "current_assets / current_liabilities",
		Description: "Short-term liquidity: current assets over current liabilities",
	},
	{
		Name:        "quick_ratio",
		Inputs:      []string{"current_assets", "inventory", "current_liabilities"},
		Formula:     "(current_assets - inventory) / current_liabilities",
		Description: "Liquidity excluding inventory",
	},
	{
		Name:        "working_capital",
		Inputs:      []string{"current_assets", "current_liabilities"},
		Formula:     "current_assets - current_liabilities",
		Description: "Capital available for day-to-day operations",
	},
	{
		Name:        "debt_to_equity",
		Inputs:      []string{"total_liabilities", "shareholders_equity"},
		Formula:     "total_liabilities / shareholders_equity",
		Description: "Leverage: total liabilities over shareholders' equity",
	},
	{
		Name:        "debt_ratio",
		Inputs:      []string{"total_liabilities", "total_assets"},
		Formula:     "total_liabilities / total_assets",
		Description: "Share of assets financed by debt",
	},
	{
		Name:        "return_on_assets",
		Inputs:      []string{"net_income", "total_assets"},
		Formula:     "net_income / total_assets",
		Description: "Profitability relative to total assets",
	},
	{
		Name:        "return_on_equity",
		Inputs:      []string{"net_income", "shareholders_equity"},
		Formula:     "net_income / shareholders_equity",
		Description: "Profitability relative to shareholders' equity",
	},
	{
		Name:        "asset_turnover",
		Inputs:      []string{"revenue", "total_assets"},
		Formula:     "revenue / total_assets",
		Description: "Revenue generated per unit of assets",
	},
	{
		Name:        "interest_coverage",
		Inputs:      []string{"operating_income", "interest_expense"},
		Formula:     "operating_income / interest_expense",
		Description: "Ability to service interest from operating income",
	},
	{
		Name:        "free_cash_flow",
		Inputs:      []string{"operating_cash_flow", "capital_expenditures"},
		Formula:     "operating_cash_flow - capital_expenditures",
		Description: "Cash generated after capital spending",
	},
}
