package serve

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/seisnet-go/internal/api"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/datastore"
	"github.com/tphakala/seisnet-go/internal/errors"
	"github.com/tphakala/seisnet-go/internal/observability"
)

// Command creates the serve command, which exposes stored runs, detections
// and detectors over a read-only HTTP API.
func Command(ctx *conf.Context) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve stored results over HTTP",
		Long:  "Start the read-only HTTP API over the configured datastore, with Prometheus metrics on /metrics.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, ctx)
		},
	}

	if err := setupFlags(cmd); err != nil {
		panic(err)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command) error {
	cmd.Flags().StringP("listen", "l", "", "Listen address and port")
	cmd.Flags().Bool("metrics", false, "Expose Prometheus metrics")

	return conf.BindFlags(cmd, map[string]string{
		"listen":  "server.listen",
		"metrics": "server.metrics",
	})
}

func serve(cmd *cobra.Command, ctx *conf.Context) error {
	store := datastore.New(ctx.Settings, ctx.Log("datastore"))
	if store == nil {
		return errors.NewConfigError("main", "serving requires output.sqlite or output.mysql to be enabled")
	}
	if err := store.Open(); err != nil {
		return err
	}
	defer store.Close()

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}

	server, err := api.New(ctx.Settings,
		api.WithDataStore(store),
		api.WithMetrics(m),
		api.WithLogger(ctx.Log("api")),
	)
	if err != nil {
		return err
	}
	return server.Run(cmd.Context())
}
