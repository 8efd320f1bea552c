package main

import (
	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/config"
)

func newAnalyseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyse [run-name...]",
		Short: "Extract metrics from runs already in the engine document",
		Long: `Extract the SAR metric of existing runs without building or submitting
anything, and append the results to the CSV store. With no names every run
in the document is analysed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, func(cfg *config.SweepConfig) error {
				if v, _ := cmd.Flags().GetString("model"); v != "" {
					cfg.Model = v
				}
				if v, _ := cmd.Flags().GetString("output"); v != "" {
					cfg.Output.ResultsPath = v
				}
				return nil
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			model, err := a.modelName(ctx)
			if err != nil {
				return err
			}
			coord, err := a.coordinator(model)
			if err != nil {
				return err
			}
			sum, err := coord.AnalyseExisting(ctx, args)
			a.printSummary(sum)
			if err != nil {
				return err
			}
			return a.finish(ctx, model, sum)
		},
	}

	cmd.Flags().String("model", "", "Model name written to the results (default from the engine document)")
	cmd.Flags().String("output", "", "Results CSV path (default from config)")

	return cmd
}
