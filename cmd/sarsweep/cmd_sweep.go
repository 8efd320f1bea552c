package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/config"
	"github.com/banshee-data/sarsweep/internal/sweep"
)

// addRunFlags registers the flags every sweep workflow shares.
func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("mode", "", "Submission mode: blocking or nonblocking (default from config)")
	cmd.Flags().String("variant", "", "Model variant (default from config)")
	cmd.Flags().String("model", "", "Model name written to the results (default from the engine document)")
	cmd.Flags().String("output", "", "Results CSV path (default from config)")
	cmd.Flags().Bool("keep-runs", false, "Keep existing runs instead of deleting them first")
}

// runOverrides overlays the shared flags onto cfg.
func runOverrides(cmd *cobra.Command, cfg *config.SweepConfig) {
	if v, _ := cmd.Flags().GetString("mode"); v != "" {
		cfg.Mode = v
	}
	if v, _ := cmd.Flags().GetString("variant"); v != "" {
		cfg.Variant = v
	}
	if v, _ := cmd.Flags().GetString("model"); v != "" {
		cfg.Model = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output.ResultsPath = v
	}
	if keep, _ := cmd.Flags().GetBool("keep-runs"); keep {
		cfg.ResetRuns = false
	}
}

func newSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the azimuth sweep",
		Long: `Run one simulation per incidence azimuth and polarization.

By default phi covers [0, 360) in --step increments. --phis and --phi-range
select explicit azimuths instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, func(cfg *config.SweepConfig) error {
				runOverrides(cmd, cfg)
				if cmd.Flags().Changed("step") {
					cfg.AngleStep, _ = cmd.Flags().GetFloat64("step")
				}
				if cmd.Flags().Changed("theta") {
					cfg.Theta, _ = cmd.Flags().GetFloat64("theta")
				}
				if v, _ := cmd.Flags().GetString("polarization"); v != "" {
					cfg.Polarization = v
				}
				return nil
			})
			if err != nil {
				return err
			}

			pol, err := sweep.ParsePolarizationMode(a.cfg.Polarization)
			if err != nil {
				return err
			}
			phis, err := phisFromFlags(cmd)
			if err != nil {
				return err
			}

			var configs []sweep.Configuration
			if phis != nil {
				configs = sweep.ConfigurationsForPhis(phis, pol, a.cfg.Theta)
			} else {
				theta := a.cfg.Theta
				configs = sweep.GenerateConfigurations(sweep.GeneratorParams{
					AngleStep:    a.cfg.AngleStep,
					Polarization: pol,
					Theta:        &theta,
				})
			}
			return a.runSweep(cmd.Context(), configs)
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Float64("step", sweep.DefaultAngleStep, "Azimuth step in degrees")
	cmd.Flags().Float64("theta", sweep.DefaultTheta, "Polar angle in degrees")
	cmd.Flags().String("polarization", "", "both, vertical or horizontal (default from config)")
	cmd.Flags().String("phis", "", "Comma-separated azimuths, e.g. 0,90,180")
	cmd.Flags().String("phi-range", "", "Azimuth range start:end:step, end exclusive")

	return cmd
}

// phisFromFlags returns nil when neither --phis nor --phi-range is set.
func phisFromFlags(cmd *cobra.Command) ([]float64, error) {
	list, _ := cmd.Flags().GetString("phis")
	rng, _ := cmd.Flags().GetString("phi-range")
	switch {
	case list != "" && rng != "":
		return nil, errors.New("--phis and --phi-range are mutually exclusive")
	case list != "":
		return sweep.ParsePhiList(list)
	case rng != "":
		return sweep.ParsePhiRange(rng)
	}
	return nil, nil
}

func newSingleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "single",
		Short: "Run one arbitrary incidence direction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, func(cfg *config.SweepConfig) error {
				runOverrides(cmd, cfg)
				return nil
			})
			if err != nil {
				return err
			}
			theta, _ := cmd.Flags().GetFloat64("theta")
			phi, _ := cmd.Flags().GetFloat64("phi")
			psi, _ := cmd.Flags().GetFloat64("psi")
			return a.runSweep(cmd.Context(), []sweep.Configuration{sweep.SingleConfiguration(theta, phi, psi)})
		},
	}

	addRunFlags(cmd)
	cmd.Flags().Float64("theta", sweep.DefaultTheta, "Polar angle in degrees")
	cmd.Flags().Float64("phi", 0, "Azimuth in degrees")
	cmd.Flags().Float64("psi", sweep.Vertical.Psi, "Polarization angle in degrees (90 vertical, 0 horizontal)")

	return cmd
}

func newCardinalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cardinal",
		Short: "Run the front, back, left and right directions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, func(cfg *config.SweepConfig) error {
				runOverrides(cmd, cfg)
				if v, _ := cmd.Flags().GetString("polarization"); v != "" {
					cfg.Polarization = v
				}
				return nil
			})
			if err != nil {
				return err
			}
			pol, err := sweep.ParsePolarizationMode(a.cfg.Polarization)
			if err != nil {
				return err
			}
			return a.runSweep(cmd.Context(), sweep.CardinalConfigurations(pol))
		},
	}

	addRunFlags(cmd)
	cmd.Flags().String("polarization", "", "both, vertical or horizontal (default from config)")

	return cmd
}
