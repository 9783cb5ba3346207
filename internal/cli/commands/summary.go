package commands

import (
	"math"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapfit/internal/cli/output"
	"github.com/leapstack-labs/leapfit/internal/diag"
	"github.com/leapstack-labs/leapfit/pkg/core"
)

// NewSummaryCommand creates the summary command.
func NewSummaryCommand() *cobra.Command {
	var (
		name   string
		params []string
	)

	cmd := &cobra.Command{
		Use:   "summary <fit | files...>",
		Short: "Print posterior summaries and convergence diagnostics",
		Long: `Print mean, standard error, standard deviation, quantiles, effective
sample size and split R-hat for every parameter of a fit.`,
		Example: `  # Summarize a cached fit
  leapfit summary eight_schools

  # Summarize two parameters straight from CmdStan output
  leapfit summary output-1.csv output-2.csv --param mu --param tau

  # Summary as JSON
  leapfit summary eight_schools -o json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			fit, _, err := cmdCtx.resolveFit(cmd.Context(), args, name)
			if err != nil {
				return err
			}
			summary, err := summarize(fit, params)
			if err != nil {
				return err
			}
			return renderSummary(cmdCtx.Renderer, summary)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Fit name when reading files")
	cmd.Flags().StringArrayVar(&params, "param", nil, "Only summarize this parameter (repeatable)")
	return cmd
}

func summarize(fit *core.Fit, params []string) (*diag.Summary, error) {
	summary := diag.Summarize(fit)
	if len(params) == 0 {
		return summary, nil
	}
	idx, err := fit.Resolve(params)
	if err != nil {
		return nil, err
	}
	selected := make([]diag.ParamSummary, len(idx))
	for i, p := range idx {
		selected[i] = summary.Params[p]
	}
	summary.Params = selected
	return summary, nil
}

func renderSummary(r *output.Renderer, s *diag.Summary) error {
	if ok, err := r.Structured(s); ok {
		return err
	}

	r.Header(1, "Summary of "+s.Fit)
	r.KeyValue("Draws", strconv.Itoa(s.Draws))
	r.KeyValue("Chains", strconv.Itoa(s.Chains))
	r.Println("")

	header := []string{"Parameter", "Mean", "SE Mean", "SD"}
	for _, p := range s.Probs {
		header = append(header, strconv.FormatFloat(p*100, 'f', -1, 64)+"%")
	}
	header = append(header, "N_Eff", "R_hat")

	rows := make([][]string, len(s.Params))
	for i, p := range s.Params {
		row := []string{p.Name, stat(p.Mean, 2), stat(p.SEMean, 2), stat(p.SD, 2)}
		for _, q := range p.Quantiles {
			row = append(row, stat(q, 2))
		}
		row = append(row, stat(p.NEff, 0), stat(p.RHat, 2))
		rows[i] = row
	}

	numeric := make([]int, len(header)-1)
	for i := range numeric {
		numeric[i] = i + 1
	}
	r.Table(header, rows, numeric...)

	r.Println("")
	r.Muted("N_Eff is a crude measure of effective sample size; R_hat is the potential scale reduction on split chains (1 at convergence).")
	return nil
}

func stat(v float64, prec int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "-"
	}
	return strconv.FormatFloat(v, 'f', prec, 64)
}
