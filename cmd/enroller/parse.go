package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/enroller/internal/decision"
)

func parseCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "parse [file]",
		Short: "Parse decision text from a file or stdin and print the structured record",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			text, err := io.ReadAll(r)
			if err != nil {
				return err
			}
			return printJSON(cmd, decision.Parse(string(text)))
		},
	}
}
