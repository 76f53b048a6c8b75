package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	srv "github.com/mohammad-safakhou/enroller/internal/server"
)

func sweepCMD(load configLoader) *cobra.Command {
	var health bool
	var sweep = &cobra.Command{
		Use:   "sweep",
		Short: "Run one retention cycle and print the report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			app, err := buildApp(ctx, load, srv.Options{})
			if err != nil {
				return err
			}
			defer app.Close(context.Background())

			if health {
				rep, err := app.Sweeper.HealthCheck(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd, rep)
			}
			rep := app.Sweeper.RunCycle(ctx)
			if err := printJSON(cmd, rep); err != nil {
				return err
			}
			if !rep.OK() {
				return fmt.Errorf("retention cycle finished with %d failed target(s)", len(rep.Failures))
			}
			return nil
		},
	}
	sweep.Flags().BoolVar(&health, "health", false, "run the ledger health check instead of purging")
	return sweep
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
