package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapfit/internal/figure"
	"github.com/leapstack-labs/leapfit/internal/stanfit"
)

// NewExportCommand creates the export command.
func NewExportCommand() *cobra.Command {
	var (
		kind   string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "export <fit> <out>",
		Short: "Write a cached fit as JSON or one of its figures as an image",
		Long: `Export a cached fit. A .json output holds the fit's draws; any other
supported extension renders a figure without starting the viewer.

Figure formats: ` + strings.Join(figure.Formats(), ", "),
		Example: `  # Share a fit
  leapfit export eight_schools eight_schools.json

  # Render the trace plot of two parameters
  leapfit export eight_schools traces.svg --kind trace --param mu --param tau`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			fit, err := cmdCtx.Store.GetFit(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("failed to load %q: %w", args[0], err)
			}

			out := args[1]
			ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(out)), ".")
			var data []byte
			if ext == "json" {
				var buf bytes.Buffer
				if err := stanfit.WriteJSON(&buf, fit); err != nil {
					return err
				}
				data = buf.Bytes()
			} else {
				plotCfg := cmdCtx.Cfg.GetPlotConfig()
				k := plotCfg.DefaultKind
				if kind != "" {
					k = kind
				}
				parsed, err := figure.ParseKind(k)
				if err != nil {
					return err
				}
				if len(params) == 0 {
					params = []string{fit.Parameters[0]}
				}
				data, err = figure.Render(fit, figure.Spec{
					Kind:   parsed,
					Params: params,
					Width:  plotCfg.Width,
					Height: plotCfg.Height,
					MaxLag: plotCfg.MaxLag,
					Bins:   plotCfg.Bins,
				}, ext)
				if err != nil {
					return err
				}
			}

			if err := os.WriteFile(out, data, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", out, err)
			}
			cmdCtx.Renderer.Success(fmt.Sprintf("Wrote %s (%d bytes)", out, len(data)))
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "Figure kind (acf|hist|trace)")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Parameter to plot (repeatable)")
	return cmd
}
