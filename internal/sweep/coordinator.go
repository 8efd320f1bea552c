package sweep

import (
	"context"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sarsweep/internal/builder"
	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/monitoring"
	"github.com/banshee-data/sarsweep/internal/results"
	"github.com/banshee-data/sarsweep/internal/store"
)

var logf = monitoring.Component("sweep")

// Mode selects how runs are submitted.
type Mode string

const (
	// ModeBlocking solves each run before building the next.
	ModeBlocking Mode = "blocking"

	// ModeNonBlocking creates and submits every run first, then analyses
	// them all. Runs are not polled for completion before analysis.
	ModeNonBlocking Mode = "nonblocking"
)

// ParseMode accepts "blocking" and "nonblocking".
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeBlocking, ModeNonBlocking:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q: expected %s or %s", s, ModeBlocking, ModeNonBlocking)
}

// Observer is notified of sweep progress. Errors are fatal to the sweep.
type Observer interface {
	SweepStarted(ctx context.Context, total int) error
	RunChanged(ctx context.Context, rec RunRecord) error
	SweepFinished(ctx context.Context, status SweepStatus, errMsg string, s Summary) error
}

// Summary is the outcome of a sweep.
type Summary struct {
	Status  SweepStatus
	Runs    []RunRecord
	Records []store.Record
}

// Counts returns completed, failed and omitted run counts. A run is omitted
// when it completed without a usable metric.
func (s Summary) Counts() (completed, failed, omitted int) {
	for _, r := range s.Runs {
		switch r.Status {
		case StatusCompleted:
			completed++
			if r.Metric == nil {
				omitted++
			}
		case StatusFailed:
			failed++
		}
	}
	return completed, failed, omitted
}

// MetricStats returns the mean and sample standard deviation of the
// written metrics.
func (s Summary) MetricStats() (mean, stddev float64) {
	if len(s.Records) == 0 {
		return 0, 0
	}
	xs := make([]float64, len(s.Records))
	for i, r := range s.Records {
		xs[i] = r.Metric
	}
	if len(xs) == 1 {
		return xs[0], 0
	}
	return stat.MeanStdDev(xs, nil)
}

// Coordinator drives configurations through the engine. It is not safe for
// concurrent use; one coordinator runs one sweep at a time.
type Coordinator struct {
	Session   engine.Session
	Builder   *builder.Builder
	Extractor *results.Extractor
	Store     *store.ResultStore
	Observer  Observer
	Metrics   *monitoring.Metrics

	Mode  Mode
	Model string
}

type tracked struct {
	rec RunRecord
	run engine.Run
}

// Run executes the sweep. Per-run failures are logged and the sweep goes
// on; persistence failures and cancellation stop it and are returned.
func (c *Coordinator) Run(ctx context.Context, configs []Configuration) (Summary, error) {
	if c.Observer != nil {
		if err := c.Observer.SweepStarted(ctx, len(configs)); err != nil {
			return Summary{Status: SweepStatusError}, fmt.Errorf("recording sweep start: %w", err)
		}
	}
	logf("starting %s sweep of %d configuration(s) on %q", c.mode(), len(configs), c.Model)

	var sum Summary
	var err error
	switch c.mode() {
	case ModeBlocking:
		sum, err = c.runBlocking(ctx, configs)
	default:
		sum, err = c.runNonBlocking(ctx, configs)
	}
	return c.finish(ctx, sum, err)
}

func (c *Coordinator) mode() Mode {
	if c.Mode == "" {
		return ModeNonBlocking
	}
	return c.Mode
}

func (c *Coordinator) finish(ctx context.Context, sum Summary, runErr error) (Summary, error) {
	sum.Status = SweepStatusComplete
	errMsg := ""
	if runErr != nil {
		sum.Status = SweepStatusError
		errMsg = runErr.Error()
	}
	completed, failed, omitted := sum.Counts()
	logf("sweep %s: %d completed, %d failed, %d without metric, %d record(s) written",
		sum.Status, completed, failed, omitted, len(sum.Records))

	if c.Observer != nil {
		// Record the outcome even when ctx was cancelled.
		if err := c.Observer.SweepFinished(context.WithoutCancel(ctx), sum.Status, errMsg, sum); err != nil {
			return sum, errors.Join(runErr, fmt.Errorf("recording sweep end: %w", err))
		}
	}
	return sum, runErr
}

// advance moves a run forward and notifies the observer.
func (c *Coordinator) advance(ctx context.Context, t *tracked, next RunStatus, cause error) error {
	if err := t.rec.Advance(next); err != nil {
		return err
	}
	if cause != nil {
		t.rec.Err = cause.Error()
	}
	if next.Terminal() {
		c.Metrics.RunFinished(string(next))
	}
	return c.notify(ctx, t)
}

func (c *Coordinator) notify(ctx context.Context, t *tracked) error {
	if c.Observer == nil {
		return nil
	}
	if err := c.Observer.RunChanged(context.WithoutCancel(ctx), t.rec); err != nil {
		return fmt.Errorf("recording run %q: %w", t.rec.Name, err)
	}
	return nil
}

// create builds and prepares one run and submits it. A per-run failure is
// logged and leaves the record failed; only observer errors are returned.
func (c *Coordinator) create(ctx context.Context, cfg Configuration, wait bool) (*tracked, error) {
	t := &tracked{rec: RunRecord{
		Name:          cfg.RunName(c.Model),
		Configuration: cfg,
		Status:        StatusCreated,
	}}
	if c.Observer != nil {
		if err := c.Observer.RunChanged(ctx, t.rec); err != nil {
			return nil, fmt.Errorf("recording run %q: %w", t.rec.Name, err)
		}
	}

	built, err := c.Builder.Build(ctx, c.Session, builder.Request{
		RunName: t.rec.Name,
		Theta:   cfg.Theta,
		Phi:     cfg.Phi,
		Psi:     cfg.Psi,
	})
	if err != nil {
		monitoring.Warnf("sweep", "building %q failed: %v", t.rec.Name, err)
		return t, c.advance(ctx, t, StatusFailed, err)
	}
	t.run = built.Run
	t.rec.Kernel = string(built.Kernel.Kind)

	if err := t.run.Prepare(ctx); err != nil {
		monitoring.Warnf("sweep", "preparing %q failed: %v", t.rec.Name, err)
		return t, c.advance(ctx, t, StatusFailed, err)
	}
	if err := c.advance(ctx, t, StatusSubmitted, nil); err != nil {
		return t, err
	}
	if err := t.run.Submit(ctx, wait); err != nil {
		monitoring.Warnf("sweep", "submitting %q failed: %v", t.rec.Name, err)
		return t, c.advance(ctx, t, StatusFailed, err)
	}
	logf("submitted %q (wait=%t)", t.rec.Name, wait)
	return t, nil
}

// analyse extracts the metric of a run. It returns the record to persist,
// if any.
func (c *Coordinator) analyse(ctx context.Context, t *tracked) (*store.Record, bool) {
	v, ok := c.Extractor.Extract(ctx, c.Session, t.run)
	if !ok {
		logf("no metric for %q; omitted from results", t.rec.Name)
		return nil, false
	}
	t.rec.Metric = &v
	return &store.Record{
		ModelName:      c.Model,
		SimulationName: t.rec.Name,
		Direction:      DirectionFromRunName(t.rec.Name),
		Metric:         v,
	}, true
}

func (c *Coordinator) runBlocking(ctx context.Context, configs []Configuration) (Summary, error) {
	var sum Summary
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		t, err := c.create(ctx, cfg, true)
		if err == nil && t.rec.Status == StatusSubmitted {
			err = c.completeAndStore(ctx, t, &sum)
		}
		if t != nil {
			sum.Runs = append(sum.Runs, t.rec)
		}
		if err != nil {
			return sum, err
		}
	}
	return sum, nil
}

// completeAndStore marks a solved run completed, extracts its metric and
// appends the record right away.
func (c *Coordinator) completeAndStore(ctx context.Context, t *tracked, sum *Summary) error {
	if err := c.advance(ctx, t, StatusCompleted, nil); err != nil {
		return err
	}
	rec, ok := c.analyse(ctx, t)
	if !ok {
		return nil
	}
	if err := c.notify(ctx, t); err != nil {
		return err
	}
	if err := c.Store.Append([]store.Record{*rec}); err != nil {
		return err
	}
	sum.Records = append(sum.Records, *rec)
	return nil
}

func (c *Coordinator) runNonBlocking(ctx context.Context, configs []Configuration) (Summary, error) {
	var all []*tracked
	summary := func() Summary {
		var sum Summary
		for _, t := range all {
			sum.Runs = append(sum.Runs, t.rec)
		}
		return sum
	}

	// Create phase.
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return summary(), err
		}
		t, err := c.create(ctx, cfg, false)
		if t != nil {
			all = append(all, t)
		}
		if err != nil {
			return summary(), err
		}
	}

	// The session is the source of truth for which runs exist now.
	runs, err := c.Session.Runs(ctx)
	if err != nil {
		return summary(), fmt.Errorf("listing runs: %w", err)
	}
	byName := make(map[string]engine.Run, len(runs))
	for _, r := range runs {
		byName[r.Name()] = r
	}

	// Analysis phase.
	var records []store.Record
	for _, t := range all {
		if t.rec.Status != StatusSubmitted {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary(), err
		}
		run, ok := byName[t.rec.Name]
		if !ok {
			monitoring.Warnf("sweep", "run %q not found in session; skipping analysis", t.rec.Name)
			if err := c.advance(ctx, t, StatusFailed, errors.New("run missing from session")); err != nil {
				return summary(), err
			}
			continue
		}
		t.run = run
		rec, ok := c.analyse(ctx, t)
		if err := c.advance(ctx, t, StatusCompleted, nil); err != nil {
			return summary(), err
		}
		if ok {
			records = append(records, *rec)
		}
	}

	sum := summary()
	if err := c.Store.Append(records); err != nil {
		return sum, err
	}
	sum.Records = records
	return sum, nil
}

// AnalyseExisting extracts metrics from runs already in the session, without
// building or submitting anything, and appends them to the store. An empty
// names list analyses every run.
func (c *Coordinator) AnalyseExisting(ctx context.Context, names []string) (Summary, error) {
	runs, err := c.Session.Runs(ctx)
	if err != nil {
		return Summary{Status: SweepStatusError}, fmt.Errorf("listing runs: %w", err)
	}
	byName := make(map[string]engine.Run, len(runs))
	for _, r := range runs {
		byName[r.Name()] = r
	}
	if len(names) == 0 {
		for _, r := range runs {
			names = append(names, r.Name())
		}
	}

	var sum Summary
	var records []store.Record
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		run, ok := byName[name]
		if !ok {
			monitoring.Warnf("sweep", "run %q not found in session; skipping", name)
			continue
		}
		t := &tracked{run: run, rec: RunRecord{Name: name, Status: StatusCompleted}}
		if rec, ok := c.analyse(ctx, t); ok {
			records = append(records, *rec)
		}
		sum.Runs = append(sum.Runs, t.rec)
	}
	if err := c.Store.Append(records); err != nil {
		sum.Status = SweepStatusError
		return sum, err
	}
	sum.Records = records
	sum.Status = SweepStatusComplete
	return sum, nil
}
