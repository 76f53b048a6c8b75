package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/enroller/config"
	srv "github.com/mohammad-safakhou/enroller/internal/server"
)

var version = "dev"

func main() {
	if err := rootCMD().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCMD() *cobra.Command {
	var cfgPath string
	var root = &cobra.Command{
		Use:          "enroller",
		Short:        "Trigger automation runs and correlate their callbacks",
		Version:      version,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")
	loader := func() (*config.Config, error) { return config.LoadConfig(cfgPath) }

	root.AddCommand(
		serveCMD(loader),
		migrateCMD(loader),
		sweepCMD(loader),
		chainsCMD(loader),
		parseCMD(),
		eventsCMD(loader),
	)
	return root
}

type configLoader func() (*config.Config, error)

// buildApp loads config and wires the service against postgres unless memory is set.
func buildApp(ctx context.Context, load configLoader, opts srv.Options) (*srv.App, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	opts.Version = version
	return srv.Build(ctx, cfg, opts)
}
