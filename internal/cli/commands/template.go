package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fingraph-lang/fingraph/internal/cli/config"
	"github.com/fingraph-lang/fingraph/pkg/graph"
	"github.com/fingraph-lang/fingraph/pkg/template"
	"github.com/fingraph-lang/fingraph/pkg/template/store"
)

// ErrTemplatesDiffer is returned by "template diff" when the compared
// models differ, so the process exits non-zero.
var ErrTemplatesDiffer = errors.New("templates differ")

var (
	applyPeriods     []string
	applyRenames     []string
	applyOutput      string
	applyRecalc      bool
	applySkipRecipes bool

	diffAtol    float64
	diffPeriods []string
	diffValues  bool
	diffSummary bool
)

// NewTemplateCommand creates the template command
func NewTemplateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "template",
		Short: "Manage statement templates",
		Long: `Manage stored financial statement templates.

Templates are checksummed graph snapshots, versioned as <name>_v<N>.

Examples:
  fingraph template list
  fingraph template apply income_statement_v2 --periods 2025,2026
  fingraph template diff income_statement_v1 income_statement_v2 --values`,
	}

	cmd.AddCommand(NewTemplateListCommand())
	cmd.AddCommand(NewTemplateApplyCommand())
	cmd.AddCommand(NewTemplateDiffCommand())

	return cmd
}

// NewTemplateListCommand creates the template list command
func NewTemplateListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored templates",
		Long:  `Display every stored template with its version and description.`,
		RunE:  runTemplateList,
	}
}

// NewTemplateApplyCommand creates the template apply command
func NewTemplateApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <template-id>",
		Short: "Instantiate a template and emit the resulting model",
		Long: `Rehydrate a stored template into a live graph and write the resulting
model as JSON, optionally extending periods and renaming nodes.`,
		Args: cobra.ExactArgs(1),
		RunE: runTemplateApply,
	}

	cmd.Flags().StringSliceVar(&applyPeriods, "periods", nil, "additional periods to declare")
	cmd.Flags().StringSliceVar(&applyRenames, "rename", nil, "node renames as old=new pairs")
	cmd.Flags().StringVarP(&applyOutput, "output", "o", "", "write the model JSON to a file instead of stdout")
	cmd.Flags().BoolVar(&applyRecalc, "recalc", false, "recalculate every node before emitting")
	cmd.Flags().BoolVar(&applySkipRecipes, "skip-recipes", false, "skip the template's forecast and preprocessing recipes")

	return cmd
}

// NewTemplateDiffCommand creates the template diff command
func NewTemplateDiffCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "diff <template-id> <template-id>",
		Short: "Compare two stored templates",
		Long: `Instantiate two stored templates and compare them, structurally and by
calculated values. Exits non-zero when the models differ.`,
		Args: cobra.ExactArgs(2),
		RunE: runTemplateDiff,
	}

	cmd.Flags().Float64Var(&diffAtol, "atol", 1e-9, "absolute tolerance for value comparison")
	cmd.Flags().StringSliceVar(&diffPeriods, "periods", nil, "restrict value comparison to these periods")
	cmd.Flags().BoolVar(&diffValues, "values", false, "print every differing cell")
	cmd.Flags().BoolVar(&diffSummary, "summary", false, "compare structure only, skipping values")

	return cmd
}

// openRegistry builds the template registry from the CLI configuration.
func openRegistry() (*template.Registry, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	backend, err := store.New(cfg.StoreConfig())
	if err != nil {
		return nil, err
	}
	logger, err := cfg.Logger()
	if err != nil {
		return nil, err
	}
	return template.NewRegistry(backend, template.WithLogger(logger)), nil
}

func runTemplateList(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}

	ids, err := registry.List()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Println("No templates stored")
		return nil
	}

	successColor := color.New(color.FgGreen, color.Bold)

	fmt.Println()
	successColor.Println("Stored Templates:")
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tVERSION\tCATEGORY\tDESCRIPTION")
	fmt.Fprintln(w, "--\t----\t-------\t--------\t-----------")

	for _, id := range ids {
		bundle, err := registry.Get(id)
		if err != nil {
			fmt.Fprintf(w, "%s\t\t\t\t(unreadable: %v)\n", id, err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			id, bundle.Meta.Name, bundle.Meta.Version, bundle.Meta.Category, bundle.Meta.Description)
	}
	w.Flush()
	fmt.Println()

	return nil
}

func runTemplateApply(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}

	renames, err := parseRenames(applyRenames)
	if err != nil {
		return err
	}

	g, err := registry.Instantiate(args[0], template.InstantiateOptions{
		Periods:     applyPeriods,
		RenameMap:   renames,
		SkipRecipes: applySkipRecipes,
	})
	if err != nil {
		return err
	}

	if applyRecalc {
		g.RecalculateAll(graph.RecalcOptions{})
	}

	payload, err := json.MarshalIndent(g.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}
	payload = append(payload, '\n')

	if applyOutput == "" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(applyOutput, payload, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	color.New(color.FgGreen).Printf("Wrote %s\n", applyOutput)
	return nil
}

func runTemplateDiff(cmd *cobra.Command, args []string) error {
	registry, err := openRegistry()
	if err != nil {
		return err
	}

	left, err := registry.Instantiate(args[0], template.InstantiateOptions{})
	if err != nil {
		return err
	}
	right, err := registry.Instantiate(args[1], template.InstantiateOptions{})
	if err != nil {
		return err
	}

	result, err := template.Diff(left, right, template.DiffOptions{
		Atol:       diffAtol,
		Periods:    diffPeriods,
		SkipValues: diffSummary,
	})
	if err != nil {
		return err
	}

	if !result.HasDifferences() {
		color.New(color.FgGreen).Printf("%s and %s are identical\n", args[0], args[1])
		return nil
	}

	printDiff(os.Stdout, args[0], args[1], result, diffValues)
	return ErrTemplatesDiffer
}

// printDiff renders a diff result for terminal consumption.
func printDiff(out *os.File, leftID, rightID string, result template.DiffResult, showValues bool) {
	headerColor := color.New(color.FgCyan, color.Bold)
	addColor := color.New(color.FgGreen)
	removeColor := color.New(color.FgRed)
	changeColor := color.New(color.FgYellow)

	headerColor.Fprintf(out, "Differences between %s and %s:\n\n", leftID, rightID)

	for _, name := range result.Structure.Added {
		addColor.Fprintf(out, "  + %s\n", name)
	}
	for _, name := range result.Structure.Removed {
		removeColor.Fprintf(out, "  - %s\n", name)
	}
	for name, reason := range result.Structure.Changed {
		changeColor.Fprintf(out, "  ~ %s (%s)\n", name, reason)
	}

	if result.Values.Empty() {
		return
	}

	fmt.Fprintf(out, "\n%d differing cells, max delta %g\n",
		len(result.Values.Deltas), result.Values.MaxDelta)

	if !showValues {
		return
	}
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NODE\tPERIOD\tLEFT\tRIGHT\tDELTA")
	for _, delta := range result.Values.Deltas {
		fmt.Fprintf(w, "%s\t%s\t%g\t%g\t%+g\n",
			delta.Node, delta.Period, delta.Left, delta.Right, delta.Delta())
	}
	w.Flush()
}

// parseRenames turns old=new pairs into a rename map.
func parseRenames(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	renames := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		old, renamed, ok := strings.Cut(pair, "=")
		if !ok || old == "" || renamed == "" {
			return nil, fmt.Errorf("invalid rename %q (want old=new)", pair)
		}
		renames[old] = renamed
	}
	return renames, nil
}
