package detect

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/seisnet-go/internal/analysis"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/keys"
	"github.com/tphakala/seisnet-go/internal/output"
)

// Command creates the detect command, which scans continuous data with the
// stored detectors and associates the triggers into a catalog.
func Command(ctx *conf.Context) *cobra.Command {
	var stations []string

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Scan continuous data with stored detectors",
		Long:  "Scan the configured span with the detectors stored by the build command, then associate and deliver the detections.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return detect(cmd, ctx, stations)
		},
	}

	cmd.Flags().StringSliceVar(&stations, "stations", nil, "Limit scanning to these stations")
	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("key", "k", "", "Path to the template key")
	cmd.Flags().String("start", "", "Start of the scanned span (RFC3339)")
	cmd.Flags().String("end", "", "End of the scanned span (RFC3339)")
	cmd.Flags().Duration("chunk", 0, "Length of data fetched per scan task")
	cmd.Flags().IntP("workers", "w", 0, "Concurrent scan tasks, 0 uses the CPU count")
	cmd.Flags().StringP("format", "f", "", "Output format: table, csv, json or yaml")

	return conf.BindFlags(cmd, map[string]string{
		"key":     "templates.keyfile",
		"start":   "scan.start",
		"end":     "scan.end",
		"chunk":   "scan.chunk",
		"workers": "scan.workers",
		"format":  "output.export.format",
	})
}

func detect(cmd *cobra.Command, ctx *conf.Context, stations []string) error {
	settings := ctx.Settings
	key, err := keys.Load(settings.Templates.KeyFile)
	if err != nil {
		return err
	}
	start, end, err := settings.ScanRange()
	if err != nil {
		return errors.NewConfigError("main", "%v", err)
	}

	p, err := analysis.Open(settings, ctx.Log("analysis"), nil)
	if err != nil {
		return err
	}
	defer p.Close()

	detectors, err := p.LoadDetectors(stations...)
	if err != nil {
		return err
	}
	scanned, err := p.Scan(cmd.Context(), detectors, analysis.Channels(key), start, end)
	if err != nil {
		return err
	}
	catalog, err := p.AssociateTriggers(scanned.Triggers)
	if err != nil {
		return err
	}

	report := &analysis.Report{
		Start:      start,
		End:        end,
		Bases:      len(detectors.Bases),
		Singletons: len(detectors.Singletons),
		Windows:    scanned.Windows,
		Triggers:   len(scanned.Triggers),
		Catalog:    catalog,
		Exclusions: scanned.Exclusions,
	}
	deliverErr := p.Deliver(cmd.Context(), report)

	if err := output.Write(cmd.OutOrStdout(), settings.Output.Export.Format, report.RunID, catalog); err != nil {
		return err
	}
	if err := report.WriteSummary(cmd.ErrOrStderr()); err != nil {
		return err
	}
	return deliverErr
}
