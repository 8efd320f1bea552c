package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/monitoring"
)

func main() {
	// Interrupts cancel the running sweep; runs already stored are kept.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sarsweep",
		Short: "Plane-wave exposure sweeps and SAR aggregation",
		Long: `sarsweep builds one simulation run per plane-wave incidence direction,
solves them on an EM engine, extracts a whole-body SAR metric from each
and appends the results to a CSV store.

The engine is either "memory" (a deterministic in-process engine) or the
http(s) URL of an engine bridge.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if quiet, _ := cmd.Flags().GetBool("quiet"); quiet {
				monitoring.SetLogger(nil)
			}
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Sweep configuration file (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().String("engine", engineMemory, `Engine: "memory" or the http(s) URL of an engine bridge`)
	rootCmd.PersistentFlags().Bool("quiet", false, "Suppress diagnostic logging")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSweepCmd(),
		newSingleCmd(),
		newCardinalCmd(),
		newAnalyseCmd(),
		newReportCmd(),
		newHistoryCmd(),
		newMigrateCmd(),
		newEngineCmd(),
	)
	return rootCmd
}
