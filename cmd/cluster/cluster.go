package cluster

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tphakala/seisnet-go/internal/analysis"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/keys"
)

// Command creates the cluster command, which groups the templates of every
// station by waveform similarity.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cluster",
		Short: "Group templates into clusters",
		Long:  "Fetch the template waveforms of the key and group similar templates per station.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return clusterTemplates(cmd, ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("key", "k", "", "Path to the template key")
	cmd.Flags().Float64P("threshold", "t", 0, "Similarity threshold for grouping templates")
	cmd.Flags().Duration("maxlag", 0, "Maximum alignment lag between templates")

	return conf.BindFlags(cmd, map[string]string{
		"key":       "templates.keyfile",
		"threshold": "cluster.threshold",
		"maxlag":    "cluster.maxlag",
	})
}

func clusterTemplates(cmd *cobra.Command, ctx *conf.Context) error {
	key, err := keys.Load(ctx.Settings.Templates.KeyFile)
	if err != nil {
		return err
	}
	p, err := analysis.Open(ctx.Settings, ctx.Log("analysis"), nil)
	if err != nil {
		return err
	}
	defer p.Close()

	templates, excluded, err := p.LoadTemplates(cmd.Context(), key)
	if err != nil {
		return err
	}
	partitions, stationExcluded, err := p.BuildClusters(cmd.Context(), templates)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STATION\tCLUSTER\tMEMBERS\tTEMPLATES")
	for _, part := range partitions {
		for _, c := range part.Clusters {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", part.Station, c.ID, c.Size(), strings.Join(c.Members, ","))
		}
		for _, id := range part.Singletons {
			fmt.Fprintf(w, "%s\t-\t1\t%s\n", part.Station, id)
		}
	}
	for _, e := range append(excluded, stationExcluded...) {
		fmt.Fprintf(w, "excluded\t%s\n", e)
	}
	return w.Flush()
}
