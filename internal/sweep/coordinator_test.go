package sweep

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sarsweep/internal/builder"
	"github.com/banshee-data/sarsweep/internal/engine/memory"
	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/results"
	"github.com/banshee-data/sarsweep/internal/store"
	"github.com/banshee-data/sarsweep/internal/timeutil"
)

type harness struct {
	coord   *Coordinator
	session *memory.Session
	fsys    *fsutil.MemoryFileSystem
}

func newHarness(t *testing.T, mode Mode, opts memory.Options) *harness {
	t.Helper()
	silenceLogs(t)
	opts.Regions = append(opts.Regions, "Muscle Block", "Plane Wave Source")
	s := memory.NewSession(opts)
	fsys := fsutil.NewMemoryFileSystem()
	return &harness{
		session: s,
		fsys:    fsys,
		coord: &Coordinator{
			Session:   s,
			Builder:   builder.New(nil, builder.Tutorial()),
			Extractor: results.NewExtractor(results.MethodJSON),
			Store:     store.NewResultStore(fsys, "sar.csv", store.ColumnVWASAR),
			Mode:      mode,
			Model:     "Box",
		},
	}
}

func (h *harness) csvLines(t *testing.T) []string {
	t.Helper()
	data, err := h.fsys.ReadFile("sar.csv")
	require.NoError(t, err)
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func callsWithPrefix(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

func TestCoordinator_Blocking(t *testing.T) {
	h := newHarness(t, ModeBlocking, memory.Options{})
	configs := CardinalConfigurations(VerticalOnly)

	sum, err := h.coord.Run(context.Background(), configs)
	require.NoError(t, err)
	assert.Equal(t, SweepStatusComplete, sum.Status)
	require.Len(t, sum.Records, 4)
	completed, failed, omitted := sum.Counts()
	assert.Equal(t, 4, completed)
	assert.Zero(t, failed)
	assert.Zero(t, omitted)

	lines := h.csvLines(t)
	assert.Equal(t, []string{
		"ModelName,SimulationName,Direction,VWA_SAR",
		"Box,Box - Front(Y-)_VPol,Front(Y-)_VPol,0.014673",
		"Box,Box - Back(Y+)_VPol,Back(Y+)_VPol,0.014673",
		"Box,Box - Left(X-)_VPol,Left(X-)_VPol,0.004891",
		"Box,Box - Right(X+)_VPol,Right(X+)_VPol,0.024455",
	}, lines)

	submits := callsWithPrefix(h.session.Calls(), "Submit ")
	assert.Equal(t, "Submit Box - Front(Y-)_VPol wait=true", submits[0])
	assert.Len(t, submits, 4)

	// Each run is built, solved and analysed before the next is created.
	calls := h.session.Calls()
	evalFirst, createSecond := -1, -1
	for i, c := range calls {
		if c == "CreateStatisticsEvaluator SAR Statistics for Box - Front(Y-)_VPol" {
			evalFirst = i
		}
		if c == "CreateRun Box - Back(Y+)_VPol" {
			createSecond = i
		}
	}
	assert.Less(t, evalFirst, createSecond)
}

func TestCoordinator_NonBlockingPhases(t *testing.T) {
	h := newHarness(t, ModeNonBlocking, memory.Options{})
	configs := CardinalConfigurations(Both)

	sum, err := h.coord.Run(context.Background(), configs)
	require.NoError(t, err)
	assert.Len(t, sum.Records, 8)

	calls := h.session.Calls()
	lastSubmit, firstEval := -1, len(calls)
	for i, c := range calls {
		if strings.HasPrefix(c, "Submit ") {
			lastSubmit = i
			assert.True(t, strings.HasSuffix(c, "wait=false"), c)
		}
		if strings.HasPrefix(c, "CreateStatisticsEvaluator ") && i < firstEval {
			firstEval = i
		}
	}
	assert.Less(t, lastSubmit, firstEval, "every run is submitted before analysis starts")

	lines := h.csvLines(t)
	require.Len(t, lines, 9)
	assert.True(t, strings.HasPrefix(lines[1], "Box,Box - Front(Y-)_VPol,"))
	assert.True(t, strings.HasPrefix(lines[8], "Box,Box - Right(X+)_HPol,"))
}

func TestCoordinator_NonBlockingWithoutReadiness(t *testing.T) {
	h := newHarness(t, ModeNonBlocking, memory.Options{DeferCompletion: true})

	sum, err := h.coord.Run(context.Background(), CardinalConfigurations(VerticalOnly))
	require.NoError(t, err)

	// Runs are analysed while still solving, so no metric is available.
	assert.Empty(t, sum.Records)
	_, _, omitted := sum.Counts()
	assert.Equal(t, 4, omitted)
	assert.Equal(t, []string{"ModelName,SimulationName,Direction,VWA_SAR"}, h.csvLines(t))
}

func TestCoordinator_PerRunFailuresContinue(t *testing.T) {
	for _, mode := range []Mode{ModeBlocking, ModeNonBlocking} {
		t.Run(string(mode), func(t *testing.T) {
			h := newHarness(t, mode, memory.Options{})
			h.session.SetFault("Box - Front(Y-)_VPol", memory.FaultPrepare)
			h.session.SetFault("Box - Back(Y+)_VPol", memory.FaultSolve)
			h.session.SetFault("Box - Left(X-)_VPol", memory.FaultStatistics)

			sum, err := h.coord.Run(context.Background(), CardinalConfigurations(VerticalOnly))
			require.NoError(t, err)

			require.Len(t, sum.Runs, 4)
			assert.Equal(t, StatusFailed, sum.Runs[0].Status)
			assert.Contains(t, sum.Runs[0].Err, "injected failure")
			assert.Equal(t, StatusFailed, sum.Runs[1].Status)
			assert.Equal(t, StatusCompleted, sum.Runs[2].Status)
			assert.Nil(t, sum.Runs[2].Metric)
			assert.Equal(t, StatusCompleted, sum.Runs[3].Status)
			require.NotNil(t, sum.Runs[3].Metric)

			require.Len(t, sum.Records, 1)
			assert.Equal(t, "Right(X+)_VPol", sum.Records[0].Direction)
		})
	}
}

func TestCoordinator_HiddenRunIsSkipped(t *testing.T) {
	h := newHarness(t, ModeNonBlocking, memory.Options{})
	h.session.SetFault("Box - Back(Y+)_VPol", memory.FaultHidden)

	sum, err := h.coord.Run(context.Background(), CardinalConfigurations(VerticalOnly))
	require.NoError(t, err)
	assert.Len(t, sum.Records, 3)
	assert.Equal(t, StatusFailed, sum.Runs[1].Status)
	assert.Equal(t, "run missing from session", sum.Runs[1].Err)
}

func TestCoordinator_MissingSourceFailsEveryRun(t *testing.T) {
	silenceLogs(t)
	s := memory.NewSession(memory.Options{Regions: []string{"Muscle Block"}})
	c := &Coordinator{
		Session:   s,
		Builder:   builder.New(nil, builder.Tutorial()),
		Extractor: results.NewExtractor(results.MethodJSON),
		Store:     store.NewResultStore(fsutil.NewMemoryFileSystem(), "sar.csv", ""),
		Mode:      ModeBlocking,
		Model:     "Box",
	}
	sum, err := c.Run(context.Background(), CardinalConfigurations(VerticalOnly))
	require.NoError(t, err)
	_, failed, _ := sum.Counts()
	assert.Equal(t, 4, failed)
	assert.Empty(t, s.RunNames())
	assert.Contains(t, sum.Runs[0].Err, builder.ErrSourceUnresolved.Error())
}

type brokenFS struct{ fsutil.FileSystem }

var errReadOnly = errors.New("read-only filesystem")

func (brokenFS) Exists(string) bool                        { return false }
func (brokenFS) Create(string) (io.WriteCloser, error)     { return nil, errReadOnly }
func (brokenFS) OpenAppend(string) (io.WriteCloser, error) { return nil, errReadOnly }

func TestCoordinator_PersistenceFailureIsFatal(t *testing.T) {
	h := newHarness(t, ModeBlocking, memory.Options{})
	h.coord.Store = store.NewResultStore(brokenFS{}, "/ro/sar.csv", "")

	sum, err := h.coord.Run(context.Background(), CardinalConfigurations(VerticalOnly))
	require.Error(t, err)
	assert.ErrorIs(t, err, errReadOnly)
	assert.Equal(t, SweepStatusError, sum.Status)
	assert.Len(t, sum.Runs, 1, "sweep stops at the first failed append")
	assert.Len(t, h.session.RunNames(), 1)
}

func TestCoordinator_Cancellation(t *testing.T) {
	h := newHarness(t, ModeBlocking, memory.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := h.coord.Run(ctx, CardinalConfigurations(VerticalOnly))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sum.Runs)
	assert.Empty(t, h.session.Calls())
}

func TestCoordinator_LedgerObserver(t *testing.T) {
	h := newHarness(t, ModeNonBlocking, memory.Options{})
	h.session.SetFault("Box - Left(X-)_VPol", memory.FaultSolve)

	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC))
	ledger, err := store.OpenLedger(filepath.Join(t.TempDir(), "ledger.db"), clock)
	require.NoError(t, err)
	defer ledger.Close()

	obs := &LedgerObserver{Ledger: ledger, Sweep: store.SweepRecord{
		ModelName: "Box", Variant: "tutorial", Mode: string(ModeNonBlocking), Theta: 90, Polarization: "vertical",
	}}
	h.coord.Observer = obs

	ctx := context.Background()
	_, err = h.coord.Run(ctx, CardinalConfigurations(VerticalOnly))
	require.NoError(t, err)

	rec, err := ledger.GetSweep(ctx, obs.Sweep.SweepID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "complete", rec.Status)
	assert.Equal(t, 4, rec.RunsTotal)
	assert.Equal(t, 1, rec.RunsFailed)
	assert.Equal(t, 3, rec.Records)

	runs, err := ledger.ListRuns(ctx, obs.Sweep.SweepID)
	require.NoError(t, err)
	require.Len(t, runs, 4)
	assert.Equal(t, "failed", runs[2].Status)
	assert.Equal(t, "completed", runs[3].Status)
	assert.Equal(t, "Software", runs[3].Kernel)
	require.NotNil(t, runs[3].Metric)
	assert.InDelta(t, 0.024455, *runs[3].Metric, 1e-9)
}

func TestCoordinator_AnalyseExisting(t *testing.T) {
	h := newHarness(t, ModeNonBlocking, memory.Options{})
	ctx := context.Background()
	_, err := h.coord.Run(ctx, CardinalConfigurations(VerticalOnly))
	require.NoError(t, err)

	h.coord.Store = store.NewResultStore(h.fsys, "debug.csv", store.ColumnMassAveragedSAR)
	sum, err := h.coord.AnalyseExisting(ctx, []string{"Box - Right(X+)_VPol", "Box - Nowhere"})
	require.NoError(t, err)
	require.Len(t, sum.Records, 1)
	assert.Equal(t, "Right(X+)_VPol", sum.Records[0].Direction)

	data, err := h.fsys.ReadFile("debug.csv")
	require.NoError(t, err)
	assert.Equal(t, "ModelName,SimulationName,Direction,MassAveragedSAR\nBox,Box - Right(X+)_VPol,Right(X+)_VPol,0.024455\n", string(data))

	all, err := h.coord.AnalyseExisting(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all.Records, 4)
}

func TestSummaryMetricStats(t *testing.T) {
	s := Summary{Records: []store.Record{{Metric: 1}, {Metric: 2}, {Metric: 3}}}
	mean, sd := s.MetricStats()
	assert.InDelta(t, 2.0, mean, 1e-12)
	assert.InDelta(t, 1.0, sd, 1e-12)

	mean, sd = Summary{}.MetricStats()
	assert.Zero(t, mean)
	assert.Zero(t, sd)
}

func TestDeleteAllRuns(t *testing.T) {
	silenceLogs(t)
	ctx := context.Background()
	s := memory.NewSession(memory.Options{})

	n, err := DeleteAllRuns(ctx, s)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.Calls())

	for _, name := range []string{"a", "b"} {
		_, err := s.CreateRun(ctx, name)
		require.NoError(t, err)
	}
	n, err = DeleteAllRuns(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Empty(t, s.RunNames())
}

func TestEnsureStaticGeometry(t *testing.T) {
	silenceLogs(t)
	ctx := context.Background()
	s := memory.NewSession(memory.Options{Regions: []string{"Tissue_0"}})
	blocks := builder.Anatomical().StaticGeometry

	require.NoError(t, EnsureStaticGeometry(ctx, s, blocks))
	require.NoError(t, EnsureStaticGeometry(ctx, s, blocks))

	assert.Equal(t, []string{"CreateWireBlock Wire Block 1"}, s.Calls())
	entities, err := s.Entities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Tissue_0", "Wire Block 1"}, []string{entities[0].Name, entities[1].Name})
}

func TestModelNameFromDocument(t *testing.T) {
	tests := map[string]string{
		"":                            DefaultModelName,
		"/projects/Taro.smash":        "Taro",
		"C:/work/Duke v3.smash":       "Duke v3",
		"relative/phantom":            "phantom",
		"/projects/archive.tar.smash": "archive.tar",
	}
	for in, want := range tests {
		if got := ModelNameFromDocument(in); got != want {
			t.Errorf("ModelNameFromDocument(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestResolveModelName(t *testing.T) {
	s := memory.NewSession(memory.Options{DocumentPath: "/data/Taro.smash"})
	name, err := ResolveModelName(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "Taro", name)
}

func TestDirectionFromRunName(t *testing.T) {
	tests := map[string]string{
		"Taro - Phi_030_VPol":    "Phi_030_VPol",
		"A - B - Front(Y-)_HPol": "Front(Y-)_HPol",
		"standalone":             NoDirection,
		"Taro-Phi_030_VPol":      NoDirection,
	}
	for in, want := range tests {
		if got := DirectionFromRunName(in); got != want {
			t.Errorf("DirectionFromRunName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("blocking")
	require.NoError(t, err)
	assert.Equal(t, ModeBlocking, m)
	_, err = ParseMode("async")
	assert.Error(t, err)
}
