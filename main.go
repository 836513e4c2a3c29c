package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tphakala/seisnet-go/cmd"
	"github.com/tphakala/seisnet-go/internal/buildinfo"
	"github.com/tphakala/seisnet-go/internal/conf"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliCtx := &conf.Context{}
	rootCmd := cmd.RootCommand(cliCtx)
	rootCmd.Version = buildinfo.Get().String()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		_ = cliCtx.Close()
		stop()
		os.Exit(1)
	}
}
