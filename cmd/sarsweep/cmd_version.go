package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sarsweep version %s\n", version.String())
		},
	}
}
