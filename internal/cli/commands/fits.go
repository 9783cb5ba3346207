package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapfit/internal/cli/output"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// FitRow is the structured form of a cached fit.
type FitRow struct {
	Name      string    `json:"name" yaml:"name"`
	Source    string    `json:"source" yaml:"source"`
	Draws     int       `json:"draws" yaml:"draws"`
	Chains    int       `json:"chains" yaml:"chains"`
	Params    int       `json:"params" yaml:"params"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

func fitRow(info core.FitInfo) FitRow {
	return FitRow{
		Name:      info.Name,
		Source:    info.Source,
		Draws:     info.NumDraws,
		Chains:    info.NumChains,
		Params:    info.NumParams,
		CreatedAt: info.CreatedAt,
	}
}

// NewImportCommand creates the import command.
func NewImportCommand() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "import <files...>",
		Short: "Load a fit from files into the cache",
		Long: `Read CmdStan CSV files (one per chain) or a JSON fit file and store the
fit in the local cache, replacing any fit with the same name.`,
		Example: `  # Cache four chains under one name
  leapfit import output-*.csv --name eight_schools

  # Cache a JSON fit
  leapfit import eight_schools.json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			fit, err := cmdCtx.Loader.Load(cmd.Context(), name, args...)
			if err != nil {
				return err
			}
			if _, err := cmdCtx.Store.SaveFit(cmd.Context(), fit); err != nil {
				return fmt.Errorf("failed to cache fit: %w", err)
			}

			r := cmdCtx.Renderer
			if ok, err := r.Structured(fitRow(fit.Info())); ok {
				return err
			}
			r.Success(fmt.Sprintf("Imported %s: %d draws x %d chains x %d parameters",
				fit.Name, fit.NumDraws, fit.NumChains, fit.NumParams()))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Fit name (default: first file name)")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cached fits",
		Long: `List the fits stored in the local cache, newest first.

Output adapts to environment:
  - Terminal: Styled table
  - Piped/Scripted: Markdown table (agent-friendly)

Use --output to override: auto, text, markdown, json, yaml`,
		Example: `  # List fits
  leapfit list

  # List fits as JSON
  leapfit list --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			infos, err := cmdCtx.Store.ListFits(cmd.Context())
			if err != nil {
				return err
			}
			return renderFitList(cmdCtx.Renderer, infos)
		},
	}
}

func renderFitList(r *output.Renderer, infos []core.FitInfo) error {
	rows := make([]FitRow, len(infos))
	for i, info := range infos {
		rows[i] = fitRow(info)
	}
	if ok, err := r.Structured(rows); ok {
		return err
	}

	r.Header(1, fmt.Sprintf("Fits (%d total)", len(rows)))
	if len(rows) == 0 {
		r.Muted("No cached fits. Use 'leapfit import' to add one.")
		return nil
	}
	table := make([][]string, len(rows))
	for i, row := range rows {
		table[i] = []string{
			row.Name,
			strconv.Itoa(row.Draws),
			strconv.Itoa(row.Chains),
			strconv.Itoa(row.Params),
			row.CreatedAt.Local().Format(time.DateTime),
			row.Source,
		}
	}
	r.Table([]string{"Name", "Draws", "Chains", "Params", "Cached", "Source"}, table, 1, 2, 3)
	return nil
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "delete <fit>",
		Aliases: []string{"rm"},
		Short:   "Remove a fit from the cache",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := cmdCtx.Store.DeleteFit(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to delete %q: %w", args[0], err)
			}
			cmdCtx.Renderer.Success("Deleted " + args[0])
			return nil
		},
	}
}
