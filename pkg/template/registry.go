package template

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fingraph-lang/fingraph/pkg/ferrors"
	"github.com/fingraph-lang/fingraph/pkg/graph"
	"github.com/fingraph-lang/fingraph/pkg/graph/node"
	"github.com/fingraph-lang/fingraph/pkg/template/store"
)

// Registry persists graph snapshots as checksummed bundles through a
// pluggable storage backend. Template ids follow "<name>_<version>"; a
// registered id is immutable, so callers register a new version instead of
// updating in place.
type Registry struct {
	store  store.Store
	logger *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the registry's logger (defaults to a no-op logger)
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// NewRegistry creates a registry over the given backend.
func NewRegistry(s store.Store, opts ...Option) *Registry {
	r := &Registry{store: s}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	return r
}

// RegisterOptions carries the optional parameters of Register.
type RegisterOptions struct {
	// Version overrides automatic "v<N>" numbering.
	Version string
	// Category, Description, and Tags annotate the bundle's metadata.
	Category    string
	Description string
	Tags        []string
	// Forecast and Preprocessing recipes are stored in the bundle and
	// applied at instantiation.
	Forecast      *ForecastSpec
	Preprocessing *PreprocessingSpec
}

// Register serializes g, checksums the snapshot, and persists it under
// "<name>_<version>". With no explicit version it scans existing ids with
// prefix "<name>_v" and takes max+1. Registering an existing id fails.
func (r *Registry) Register(g *graph.Graph, name string, opts RegisterOptions) (string, error) {
	version := opts.Version
	if version == "" {
		next, err := r.nextVersion(name)
		if err != nil {
			return "", err
		}
		version = next
	}

	bundle, err := NewBundle(Meta{
		Name:        name,
		Version:     version,
		Category:    opts.Category,
		Description: opts.Description,
		CreatedAt:   time.Now().UTC(),
		Tags:        opts.Tags,
	}, g.Export())
	if err != nil {
		return "", err
	}
	bundle.Forecast = opts.Forecast
	bundle.Preprocessing = opts.Preprocessing

	payload, err := bundle.Encode()
	if err != nil {
		return "", err
	}
	if err := r.store.Save(bundle.ID(), payload); err != nil {
		return "", err
	}

	r.logger.Info("registered template",
		zap.String("template_id", bundle.ID()),
		zap.String("checksum", bundle.Checksum))
	return bundle.ID(), nil
}

func (r *Registry) nextVersion(name string) (string, error) {
	ids, err := r.store.List()
	if err != nil {
		return "", err
	}

	prefix := name + "_v"
	max := 0
	for _, id := range ids {
		if !strings.HasPrefix(id, prefix) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(id, prefix))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return "v" + strconv.Itoa(max+1), nil
}

// Get loads the bundle stored under templateID and re-validates its
// checksum. Unknown ids fail with a not-found error; checksum mismatches
// fail with a validation error.
func (r *Registry) Get(templateID string) (*Bundle, error) {
	payload, err := r.store.Load(templateID)
	if err != nil {
		return nil, err
	}
	return DecodeBundle(payload)
}

// List returns every stored template id, sorted.
func (r *Registry) List() ([]string, error) {
	ids, err := r.store.List()
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes templateID. Best-effort: deleting an absent id is not an
// error.
func (r *Registry) Delete(templateID string) error {
	return r.store.Delete(templateID)
}

// InstantiateOptions carries the optional parameters of Instantiate.
type InstantiateOptions struct {
	// Periods extends the rehydrated graph's period list.
	Periods []string
	// RenameMap renames nodes (old name -> new name), rewriting every
	// dependency reference.
	RenameMap map[string]string
	// SkipRecipes suppresses the bundle's forecast/preprocessing recipes.
	SkipRecipes bool
	// GraphOptions are forwarded to the rehydrated graph.
	GraphOptions []graph.Option
}

// Instantiate rehydrates a live graph from the bundle's snapshot, optionally
// extending periods, renaming nodes, and applying the bundle's recorded
// preprocessing and forecast recipes.
func (r *Registry) Instantiate(templateID string, opts InstantiateOptions) (*graph.Graph, error) {
	bundle, err := r.Get(templateID)
	if err != nil {
		return nil, err
	}

	dict := bundle.GraphDict
	if len(opts.RenameMap) > 0 {
		dict = renameDict(dict, opts.RenameMap)
	}

	g, err := graph.FromDict(dict, opts.GraphOptions...)
	if err != nil {
		return nil, err
	}
	if len(opts.Periods) > 0 {
		g.AddPeriods(opts.Periods...)
	}

	if !opts.SkipRecipes {
		if bundle.Preprocessing != nil {
			if err := applyPreprocessing(g, bundle.Preprocessing); err != nil {
				return nil, err
			}
		}
		if bundle.Forecast != nil {
			if err := applyForecast(g, bundle.Forecast); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

// applyPreprocessing runs the bundle's ordered preprocessing pipeline.
func applyPreprocessing(g *graph.Graph, spec *PreprocessingSpec) error {
	for _, op := range spec.Ops {
		switch op.Op {
		case "copy_forward":
			g.RecalculateAll(graph.RecalcOptions{Periods: op.Periods, CopyForward: true})
		case "ensure_signed":
			if _, err := g.Engine().EnsureSignedNodes(op.Nodes, op.Suffix); err != nil {
				return err
			}
		default:
			return ferrors.New(ferrors.CodeBadDefinition,
				"unknown preprocessing op %q", op.Op)
		}
	}
	return nil
}

// applyForecast wraps each target item node in a forecast node per the
// bundle's declarative recipe.
func applyForecast(g *graph.Graph, spec *ForecastSpec) error {
	suffix := spec.Suffix
	if suffix == "" {
		suffix = "_fc"
	}

	targets := spec.Nodes
	if len(targets) == 0 {
		for _, name := range g.NodeNames() {
			if n := g.GetNode(name); n != nil && !n.HasCalculation() {
				targets = append(targets, name)
			}
		}
	}

	for _, target := range targets {
		item, ok := g.GetNode(target).(*node.ItemNode)
		if !ok {
			return ferrors.New(ferrors.CodeNodeWrongKind,
				"forecast recipe target %q is not an item node", target).WithNode(target)
		}

		var policy node.GrowthPolicy
		switch spec.Method {
		case node.GrowthFixed:
			policy = node.NewFixedGrowth(spec.Rate)
		case node.GrowthCurve:
			policy = node.NewCurveGrowth(spec.Curve)
		case node.GrowthHistoricalAverage:
			policy = node.NewHistoricalAverageGrowth(item.Values(), spec.BasePeriod, nil)
		case node.GrowthAverageValue:
			value := node.NewAverageValue(item.Values(), spec.BasePeriod)
			if _, err := g.Engine().AddValueForecast(target+suffix, target, spec.BasePeriod,
				spec.Periods, value); err != nil {
				return err
			}
			continue
		default:
			return ferrors.New(ferrors.CodeBadDefinition,
				"unknown forecast method %q", spec.Method)
		}

		if _, err := g.Engine().AddForecast(target+suffix, target, spec.BasePeriod,
			spec.Periods, policy); err != nil {
			return err
		}
	}
	return nil
}

// renameDict rewrites node names and every reference to them inside an
// exported graph dict, without touching the original.
func renameDict(dict map[string]any, renames map[string]string) map[string]any {
	mapped := func(name string) string {
		if renamed, ok := renames[name]; ok {
			return renamed
		}
		return name
	}

	out := make(map[string]any, len(dict))
	out["periods"] = dict["periods"]

	if rawOrder, ok := dict["order"].([]any); ok {
		order := make([]any, len(rawOrder))
		for i, name := range rawOrder {
			if s, ok := name.(string); ok {
				order[i] = mapped(s)
			} else {
				order[i] = name
			}
		}
		out["order"] = order
	}

	rawNodes, _ := dict["nodes"].(map[string]any)
	nodes := make(map[string]any, len(rawNodes))
	for name, raw := range rawNodes {
		cfg, ok := raw.(map[string]any)
		if !ok {
			nodes[mapped(name)] = raw
			continue
		}
		renamed := make(map[string]any, len(cfg))
		for key, value := range cfg {
			switch key {
			case "inputs":
				if inputs, ok := value.([]any); ok {
					mappedInputs := make([]any, len(inputs))
					for i, input := range inputs {
						if s, ok := input.(string); ok {
							mappedInputs[i] = mapped(s)
						} else {
							mappedInputs[i] = input
						}
					}
					renamed[key] = mappedInputs
					continue
				}
				renamed[key] = value
			case "variables":
				if variables, ok := value.(map[string]any); ok {
					mappedVars := make(map[string]any, len(variables))
					for varName, bound := range variables {
						if s, ok := bound.(string); ok {
							mappedVars[varName] = mapped(s)
						} else {
							mappedVars[varName] = bound
						}
					}
					renamed[key] = mappedVars
					continue
				}
				renamed[key] = value
			case "input":
				if s, ok := value.(string); ok {
					renamed[key] = mapped(s)
					continue
				}
				renamed[key] = value
			default:
				renamed[key] = value
			}
		}
		nodes[mapped(name)] = renamed
	}
	out["nodes"] = nodes
	return out
}
