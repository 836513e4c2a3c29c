package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/seisnet-go/cmd/associate"
	"github.com/tphakala/seisnet-go/cmd/build"
	"github.com/tphakala/seisnet-go/cmd/cluster"
	"github.com/tphakala/seisnet-go/cmd/detect"
	"github.com/tphakala/seisnet-go/cmd/run"
	"github.com/tphakala/seisnet-go/cmd/serve"
	"github.com/tphakala/seisnet-go/internal/buildinfo"
	"github.com/tphakala/seisnet-go/internal/conf"
	"github.com/tphakala/seisnet-go/internal/logger"
)

// RootCommand creates and returns the root command
func RootCommand(ctx *conf.Context) *cobra.Command {
	var configFile string

	rootCmd := &cobra.Command{
		Use:           "seisnet",
		Short:         "Seismic template clustering and subspace detection",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to the configuration file")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug output")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		panic(fmt.Sprintf("error binding flag debug: %v", err))
	}

	rootCmd.AddCommand(
		cluster.Command(ctx),
		build.Command(ctx),
		detect.Command(ctx),
		associate.Command(ctx),
		run.Command(ctx),
		serve.Command(ctx),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return initialize(ctx, configFile)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return ctx.Close()
	}

	return rootCmd
}

// initialize loads the configuration, with bound flags taking precedence,
// and sets up logging before any subcommand runs.
func initialize(ctx *conf.Context, configFile string) error {
	settings, err := conf.Load(configFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}
	settings.Version = buildinfo.Version
	ctx.Settings = settings

	logging := settings.Logging
	if settings.Debug {
		logging.DefaultLevel = "debug"
		if logging.Console != nil {
			console := *logging.Console
			console.Level = "debug"
			logging.Console = &console
		}
	}
	central, err := logger.NewCentralLogger(&logging)
	if err != nil {
		return fmt.Errorf("error setting up logging: %w", err)
	}
	ctx.Logger = central

	ctx.Log("main").Debug("configuration loaded",
		logger.String("version", settings.Version),
		logger.Bool("debug", settings.Debug))
	return nil
}
