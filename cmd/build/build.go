package build

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/seisnet-go/internal/analysis"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/keys"
	"github.com/tphakala/seisnet-go/internal/logger"
)

// Command creates the build command, which constructs and stores the
// calibrated detectors of every cluster and ungrouped template.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build subspace detectors",
		Long:  "Cluster the templates of the key, build a calibrated subspace basis per cluster and store the detectors.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return buildDetectors(cmd, ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("key", "k", "", "Path to the template key")
	cmd.Flags().String("calibration", "", "Threshold calibration mode: fixed or far")
	cmd.Flags().Float64("far", 0, "Target false alarm rate for far calibration")
	cmd.Flags().Int("noisewindows", 0, "Noise windows sampled per station")
	cmd.Flags().Bool("singles", false, "Build correlation detectors for ungrouped templates")

	return conf.BindFlags(cmd, map[string]string{
		"key":          "templates.keyfile",
		"calibration":  "subspace.calibration.mode",
		"far":          "subspace.calibration.falsealarmrate",
		"noisewindows": "subspace.calibration.noisewindows",
		"singles":      "subspace.usesingles",
	})
}

func buildDetectors(cmd *cobra.Command, ctx *conf.Context) error {
	key, err := keys.Load(ctx.Settings.Templates.KeyFile)
	if err != nil {
		return err
	}
	p, err := analysis.Open(ctx.Settings, ctx.Log("analysis"), nil)
	if err != nil {
		return err
	}
	defer p.Close()

	if p.Store() == nil {
		ctx.Log("main").Warn("no datastore enabled, detectors will not be stored")
	}

	templates, excluded, err := p.LoadTemplates(cmd.Context(), key)
	if err != nil {
		return err
	}
	partitions, more, err := p.BuildClusters(cmd.Context(), templates)
	if err != nil {
		return err
	}
	excluded = append(excluded, more...)
	detectors, more, err := p.BuildBases(cmd.Context(), partitions, templates)
	if err != nil {
		return err
	}
	excluded = append(excluded, more...)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DETECTOR\tSTATION\tKIND\tRANK\tMEMBERS\tTHRESHOLD")
	for _, b := range detectors.Bases {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%.4f\n", b.ClusterID, b.Station, b.SourceKind(), b.Rank, len(b.Members), b.Calibration.Threshold)
	}
	for _, s := range detectors.Singletons {
		fmt.Fprintf(w, "%s\t%s\t%s\t-\t1\t%.4f\n", s.TemplateID, s.Station, s.SourceKind(), s.Calibration.Threshold)
	}
	for _, e := range excluded {
		fmt.Fprintf(w, "excluded\t%s\n", e)
	}

	ctx.Log("main").Info("detectors built",
		logger.Int("bases", len(detectors.Bases)),
		logger.Int("singletons", len(detectors.Singletons)))
	return w.Flush()
}
