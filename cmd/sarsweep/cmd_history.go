package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/store"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

// ledgerPath returns --ledger, falling back to the configured ledger.
func ledgerPath(cmd *cobra.Command) (string, error) {
	if p, _ := cmd.Flags().GetString("ledger"); p != "" {
		return p, nil
	}
	cfg, err := loadConfig(cmd, fsutil.OSFileSystem{})
	if err != nil {
		return "", err
	}
	if cfg.Ledger.Path == "" {
		return "", fmt.Errorf("no ledger: set ledger.path in the configuration or pass --ledger")
	}
	return cfg.Ledger.Path, nil
}

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [sweep-id]",
		Short: "List recorded sweeps, or the runs of one sweep",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := ledgerPath(cmd)
			if err != nil {
				return err
			}
			l, err := store.OpenLedger(path, timeutil.RealClock{})
			if err != nil {
				return err
			}
			defer l.Close()

			ctx := cmd.Context()
			jsonOut, _ := cmd.Flags().GetBool("json")
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				sw, err := l.GetSweep(ctx, args[0])
				if err != nil {
					return err
				}
				runs, err := l.ListRuns(ctx, sw.SweepID)
				if err != nil {
					return err
				}
				if jsonOut {
					return json.NewEncoder(out).Encode(map[string]any{"sweep": sw, "runs": runs})
				}
				fmt.Fprintf(out, "sweep %s: %s on %q, %s, %d run(s), %d failed, %d record(s)\n",
					sw.SweepID, sw.Status, sw.ModelName, sw.Mode, sw.RunsTotal, sw.RunsFailed, sw.Records)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RUN\tSTATUS\tKERNEL\tMETRIC\tERROR")
				for _, r := range runs {
					metric := "-"
					if r.Metric != nil {
						metric = strconv.FormatFloat(*r.Metric, 'g', -1, 64)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunName, r.Status, r.Kernel, metric, r.Error)
				}
				return tw.Flush()
			}

			limit, _ := cmd.Flags().GetInt("limit")
			sweeps, err := l.ListSweeps(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(out).Encode(sweeps)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SWEEP\tSTARTED\tMODEL\tVARIANT\tSTATUS\tRUNS\tFAILED\tRECORDS")
			for _, s := range sweeps {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
					s.SweepID, s.StartedAt.Format("2006-01-02 15:04:05"), s.ModelName, s.Variant,
					s.Status, s.RunsTotal, s.RunsFailed, s.Records)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().String("ledger", "", "Ledger database path (default from config)")
	cmd.Flags().Int("limit", 20, "Maximum number of sweeps to list")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}
