package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/enroller/internal/automation"
	"github.com/mohammad-safakhou/enroller/internal/ledger"
	"github.com/mohammad-safakhou/enroller/internal/store"
)

func chainsCMD(load configLoader) *cobra.Command {
	var chains = &cobra.Command{
		Use:   "chains",
		Short: "Manage named chain presets",
	}

	withPresets := func(ctx context.Context, fn func(ledger.PresetStore) error) error {
		cfg, err := load()
		if err != nil {
			return err
		}
		dsn, err := cfg.Storage.Postgres.DSN()
		if err != nil {
			return err
		}
		st, err := store.NewWithDSN(ctx, dsn)
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(st)
	}

	chains.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(cmd.Context(), func(ps ledger.PresetStore) error {
				return listPresets(cmd.Context(), ps, cmd.OutOrStdout())
			})
		},
	})
	chains.AddCommand(&cobra.Command{
		Use:   "add <name> <chain>",
		Short: "Register a preset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(cmd.Context(), func(ps ledger.PresetStore) error {
				p, err := ps.AddPreset(cmd.Context(), ledger.ChainPreset{Name: args[0], ChainName: args[1]})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "added %s -> %s\n", p.Name, p.ChainName)
				return nil
			})
		},
	})
	chains.AddCommand(&cobra.Command{
		Use:   "remove <name>",
		Short: "Remove a preset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withPresets(cmd.Context(), func(ps ledger.PresetStore) error {
				return ps.RemovePreset(cmd.Context(), args[0])
			})
		},
	})
	chains.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Register every preset listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return withPresets(cmd.Context(), func(ps ledger.PresetStore) error {
				n, err := importPresets(cmd.Context(), ps, f)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d preset(s)\n", n)
				return nil
			})
		},
	})
	return chains
}

func listPresets(ctx context.Context, ps ledger.PresetStore, w io.Writer) error {
	presets, err := ps.ListPresets(ctx)
	if err != nil {
		return err
	}
	for _, p := range presets {
		fmt.Fprintf(w, "%s\t%s\n", p.Name, p.ChainName)
	}
	return nil
}

// importPresets loads the YAML document and adds each preset. It stops at the
// first store error.
func importPresets(ctx context.Context, ps ledger.PresetStore, r io.Reader) (int, error) {
	presets, err := automation.LoadPresetsYAML(r)
	if err != nil {
		return 0, err
	}
	for i, p := range presets {
		if _, err := ps.AddPreset(ctx, p); err != nil {
			return i, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return len(presets), nil
}
