package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/banshee-data/sarsweep/internal/blob"
	"github.com/banshee-data/sarsweep/internal/builder"
	"github.com/banshee-data/sarsweep/internal/config"
	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/engine/bridge"
	"github.com/banshee-data/sarsweep/internal/engine/memory"
	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/material"
	"github.com/banshee-data/sarsweep/internal/monitoring"
	"github.com/banshee-data/sarsweep/internal/report"
	"github.com/banshee-data/sarsweep/internal/results"
	"github.com/banshee-data/sarsweep/internal/security"
	"github.com/banshee-data/sarsweep/internal/store"
	"github.com/banshee-data/sarsweep/internal/sweep"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

const engineMemory = "memory"

var logf = monitoring.Component("sarsweep")

// app is the wiring shared by the commands that talk to an engine.
type app struct {
	cfg     *config.SweepConfig
	fsys    fsutil.FileSystem
	clock   timeutil.Clock
	variant builder.Variant
	session engine.Session
	metrics *monitoring.Metrics
	out     io.Writer
}

// loadConfig reads --config over the defaults and SARSWEEP_* overrides.
func loadConfig(cmd *cobra.Command, fsys fsutil.FileSystem) (*config.SweepConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(fsys, path, nil)
}

// newApp loads the configuration, selects the variant and connects to the
// engine named by --engine. apply runs on the loaded configuration before
// it is used, so commands can overlay their own flags.
func newApp(cmd *cobra.Command, apply func(*config.SweepConfig) error) (*app, error) {
	fsys := fsutil.OSFileSystem{}
	cfg, err := loadConfig(cmd, fsys)
	if err != nil {
		return nil, err
	}
	if apply != nil {
		if err := apply(cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}

	v, err := builder.Select(cfg.Variant, cfg.Variants)
	if err != nil {
		return nil, err
	}

	target, _ := cmd.Flags().GetString("engine")
	session, err := openSession(target, v)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:     cfg,
		fsys:    fsys,
		clock:   timeutil.RealClock{},
		variant: v,
		session: session,
		metrics: monitoring.NewMetrics(),
		out:     cmd.OutOrStdout(),
	}, nil
}

// openSession returns an in-process engine seeded with the variant's
// regions, or a bridge client for an http(s) URL.
func openSession(target string, v builder.Variant) (engine.Session, error) {
	switch {
	case target == "" || target == engineMemory:
		return memory.NewSession(memory.Options{Regions: seedRegions(v)}), nil
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return bridge.NewSession(target, nil), nil
	default:
		return nil, fmt.Errorf("invalid --engine %q: expected %q or an http(s) URL", target, engineMemory)
	}
}

// seedRegions lists the regions a memory engine starts with. Static
// geometry is left out; the sweep creates it.
func seedRegions(v builder.Variant) []string {
	static := make(map[string]bool, len(v.StaticGeometry))
	for _, b := range v.StaticGeometry {
		static[b.Name] = true
	}
	var names []string
	for _, n := range v.RegionNames() {
		if !static[n] {
			names = append(names, n)
		}
	}
	return names
}

// resolver opens the material catalogue when one is configured.
func (a *app) resolver() (*material.Resolver, error) {
	var db material.Database
	if p := a.cfg.Materials.CatalogPath; p != "" {
		c, err := material.LoadCatalog(a.fsys, p)
		if err != nil {
			return nil, err
		}
		db = c
	}
	r := material.NewResolver(db, a.cfg.Materials.Profile)
	r.Metrics = a.metrics
	return r, nil
}

func (a *app) extractor() *results.Extractor {
	x := a.cfg.Extraction
	e := results.NewExtractor(x.Method)
	e.Statistic = x.Statistic
	e.Table = results.TableSpec{Column: x.Column, Row: x.Row, HeaderContains: x.HeaderContains}
	if x.Sensor != "" {
		e.Sensor = x.Sensor
	}
	if x.Input != "" {
		e.Input = x.Input
	}
	e.Metrics = a.metrics
	return e
}

func (a *app) resultStore() *store.ResultStore {
	s := store.NewResultStore(a.fsys, a.cfg.Output.ResultsPath, a.cfg.Output.MetricColumn)
	s.Metrics = a.metrics
	return s
}

// modelName prefers the configured name over the engine document's.
func (a *app) modelName(ctx context.Context) (string, error) {
	if a.cfg.Model != "" {
		return a.cfg.Model, nil
	}
	return sweep.ResolveModelName(ctx, a.session)
}

// coordinator assembles the sweep pipeline for model.
func (a *app) coordinator(model string) (*sweep.Coordinator, error) {
	mode, err := sweep.ParseMode(a.cfg.Mode)
	if err != nil {
		return nil, err
	}
	r, err := a.resolver()
	if err != nil {
		return nil, err
	}
	b := builder.New(r, a.variant)
	b.Metrics = a.metrics
	return &sweep.Coordinator{
		Session:   a.session,
		Builder:   b,
		Extractor: a.extractor(),
		Store:     a.resultStore(),
		Metrics:   a.metrics,
		Mode:      mode,
		Model:     model,
	}, nil
}

// runSweep prepares the document, runs configs and reports the outcome.
func (a *app) runSweep(ctx context.Context, configs []sweep.Configuration) error {
	if a.cfg.ResetRuns {
		n, err := sweep.DeleteAllRuns(ctx, a.session)
		if err != nil {
			return err
		}
		logf("deleted %d existing run(s)", n)
	}
	if err := sweep.EnsureStaticGeometry(ctx, a.session, a.variant.StaticGeometry); err != nil {
		return err
	}
	model, err := a.modelName(ctx)
	if err != nil {
		return err
	}
	coord, err := a.coordinator(model)
	if err != nil {
		return err
	}

	if p := a.cfg.Ledger.Path; p != "" {
		l, err := store.OpenLedger(p, a.clock)
		if err != nil {
			return err
		}
		defer l.Close()
		coord.Observer = &sweep.LedgerObserver{Ledger: l, Sweep: store.SweepRecord{
			ModelName:    model,
			Variant:      a.variant.Name,
			Mode:         string(coord.Mode),
			AngleStep:    a.cfg.AngleStep,
			Theta:        a.cfg.Theta,
			Polarization: a.cfg.Polarization,
		}}
	}

	sum, runErr := coord.Run(ctx, configs)
	a.printSummary(sum)
	if err := a.finish(ctx, model, sum); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func (a *app) printSummary(sum sweep.Summary) {
	completed, failed, omitted := sum.Counts()
	fmt.Fprintf(a.out, "%s: %d run(s), %d completed, %d failed, %d without metric\n",
		sum.Status, len(sum.Runs), completed, failed, omitted)
	fmt.Fprintf(a.out, "%d record(s) written to %s\n", len(sum.Records), a.cfg.Output.ResultsPath)
	if len(sum.Records) > 0 {
		mean, stddev := sum.MetricStats()
		fmt.Fprintf(a.out, "%s mean %.6g, stddev %.6g\n", a.cfg.Output.MetricColumn, mean, stddev)
	}
}

// finish exports the counters and publishes the sweep's report.
func (a *app) finish(ctx context.Context, model string, sum sweep.Summary) error {
	if p := a.cfg.Output.MetricsPath; p != "" {
		if err := a.metrics.WriteTextfile(p); err != nil {
			return err
		}
	}
	if a.cfg.Publish.Driver == "" || len(sum.Records) == 0 {
		return nil
	}
	artifacts, err := report.Render(sum.Records, report.Options{BaseName: security.SanitizeName(model), Metric: a.cfg.Output.MetricColumn})
	if err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	return a.publish(ctx, artifacts)
}

func (a *app) publish(ctx context.Context, artifacts []report.Artifact) error {
	return publish(ctx, a.cfg, a.fsys, a.clock, a.out, artifacts)
}

// publish stores artifacts under <prefix>/<UTC timestamp> with the
// configured blob driver.
func publish(ctx context.Context, cfg *config.SweepConfig, fsys fsutil.FileSystem, clock timeutil.Clock, out io.Writer, artifacts []report.Artifact) error {
	bs, err := blob.Open(ctx, cfg.Publish, fsys, clock)
	if err != nil {
		return fmt.Errorf("opening %s publisher: %w", cfg.Publish.Driver, err)
	}
	if bs == nil {
		return nil
	}
	prefix := blob.Key(cfg.Publish.Prefix, clock.Now().UTC().Format("20060102T150405Z"))
	infos, err := report.Publish(ctx, bs, prefix, artifacts)
	if err != nil {
		return err
	}
	for _, info := range infos {
		fmt.Fprintf(out, "published %s (%d bytes)\n", info.Key, info.Size)
	}
	return nil
}
