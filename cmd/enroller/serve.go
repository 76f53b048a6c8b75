package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/enroller/internal/server"
)

func serveCMD(load configLoader) *cobra.Command {
	var serveAddr string
	var memory bool
	var migrations string
	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Run HTTP API server and the retention scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, err := load()
			if err != nil {
				return err
			}
			if serveAddr != "" {
				cfg.Server.Address = serveAddr
			}
			app, err := srv.Build(ctx, cfg, srv.Options{Memory: memory, Migrations: migrations, Version: version})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())
			return app.Serve(ctx)
		},
	}
	serve.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.address)")
	serve.Flags().BoolVar(&memory, "memory", false, "keep records in memory instead of postgres")
	serve.Flags().StringVar(&migrations, "migrations", "", "apply migrations from this source before serving (e.g. file://migrations)")

	return serve
}
