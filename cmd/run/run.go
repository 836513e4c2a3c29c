package run

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/seisnet-go/internal/analysis"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/keys"
	"github.com/tphakala/seisnet-go/internal/output"
)

// Command creates the run command, which executes every stage from template
// retrieval to catalog delivery.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the whole detection pipeline",
		Long:  "Fetch templates, cluster them, build detectors, scan the configured span, associate the triggers and deliver the catalog.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(cmd, ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("key", "k", "", "Path to the template key")
	cmd.Flags().String("start", "", "Start of the scanned span (RFC3339)")
	cmd.Flags().String("end", "", "End of the scanned span (RFC3339)")
	cmd.Flags().IntP("workers", "w", 0, "Concurrent tasks, 0 uses the CPU count")
	cmd.Flags().StringP("format", "f", "", "Output format: table, csv, json or yaml")
	cmd.Flags().StringP("output", "o", "", "Directory to export the catalog to")

	return conf.BindFlags(cmd, map[string]string{
		"key":     "templates.keyfile",
		"start":   "scan.start",
		"end":     "scan.end",
		"workers": "scan.workers",
		"format":  "output.export.format",
		"output":  "output.export.path",
	})
}

func runPipeline(cmd *cobra.Command, ctx *conf.Context) error {
	key, err := keys.Load(ctx.Settings.Templates.KeyFile)
	if err != nil {
		return err
	}

	p, err := analysis.Open(ctx.Settings, ctx.Log("analysis"), nil)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Run(cmd.Context(), key)
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
