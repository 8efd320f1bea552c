package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/report"
	"github.com/banshee-data/sarsweep/internal/security"
	"github.com/banshee-data/sarsweep/internal/store"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render summary CSV, PNG and HTML charts from a results CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys := fsutil.OSFileSystem{}
			cfg, err := loadConfig(cmd, fsys)
			if err != nil {
				return err
			}

			input, _ := cmd.Flags().GetString("input")
			if input == "" {
				input = cfg.Output.ResultsPath
			}
			outDir, _ := cmd.Flags().GetString("out-dir")
			title, _ := cmd.Flags().GetString("title")
			assets, _ := cmd.Flags().GetString("assets-host")
			base, _ := cmd.Flags().GetString("name")
			if base == "" {
				base = strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			}
			base = security.SanitizeName(base)

			records, err := store.NewResultStore(fsys, input, cfg.Output.MetricColumn).ReadRecords()
			if err != nil {
				return err
			}
			artifacts, err := report.Render(records, report.Options{
				BaseName:   base,
				Title:      title,
				Metric:     cfg.Output.MetricColumn,
				AssetsHost: assets,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := fsys.MkdirAll(outDir, 0o755); err != nil {
				return fmt.Errorf("creating %s: %w", outDir, err)
			}
			for _, a := range artifacts {
				p, err := security.JoinWithin(outDir, a.Name)
				if err != nil {
					return err
				}
				if err := fsys.WriteFile(p, a.Data, 0o644); err != nil {
					return fmt.Errorf("writing %s: %w", p, err)
				}
				fmt.Fprintf(out, "wrote %s\n", p)
			}

			if doPublish, _ := cmd.Flags().GetBool("publish"); doPublish {
				if cfg.Publish.Driver == "" {
					return fmt.Errorf("--publish needs publish.driver in the configuration")
				}
				return publish(cmd.Context(), cfg, fsys, timeutil.RealClock{}, out, artifacts)
			}
			return nil
		},
	}

	cmd.Flags().String("input", "", "Results CSV (default from config)")
	cmd.Flags().String("out-dir", ".", "Directory for the rendered files")
	cmd.Flags().String("name", "", "Base name of the rendered files (default from the input file)")
	cmd.Flags().String("title", "", "Chart title")
	cmd.Flags().String("assets-host", "", "Host serving the echarts scripts (default public CDN)")
	cmd.Flags().Bool("publish", false, "Also publish the files with the configured blob driver")

	return cmd
}
