package associate

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/seisnet-go/internal/analysis"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/output"
)

// Command creates the associate command, which regroups the triggers of a
// stored run with the current association settings.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "associate [run-id]",
		Short: "Associate the triggers of a stored run again",
		Long:  "Load the triggers of a stored run, associate them with the current settings and store the result as a new run.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return reassociate(cmd, ctx, args[0])
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().IntP("stations", "s", 0, "Minimum distinct stations per detection")
	cmd.Flags().Duration("buffer", 0, "Grouping span for subspace triggers")
	cmd.Flags().StringP("reference", "r", "", "CSV or YAML file of reference event times")
	cmd.Flags().StringP("format", "f", "", "Output format: table, csv, json or yaml")

	return conf.BindFlags(cmd, map[string]string{
		"stations":  "associate.requiredstations",
		"buffer":    "associate.subspacebuffer",
		"reference": "associate.referencefile",
		"format":    "output.export.format",
	})
}

func reassociate(cmd *cobra.Command, ctx *conf.Context, runID string) error {
	p, err := analysis.Open(ctx.Settings, ctx.Log("analysis"), nil)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Reassociate(cmd.Context(), runID)
	if report == nil {
		return err
	}
	if werr := output.Write(cmd.OutOrStdout(), ctx.Settings.Output.Export.Format, report.RunID, report.Catalog); werr != nil {
		return werr
	}
	if werr := report.WriteSummary(cmd.ErrOrStderr()); werr != nil {
		return werr
	}
	return err
}
