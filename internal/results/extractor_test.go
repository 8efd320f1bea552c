package results

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/engine/memory"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// muscleSAR is the memory engine's value for one Muscle region at phi 0,
// vertical polarization.
const muscleSAR = 0.024455

func completedRun(t *testing.T, s *memory.Session, name string, fault memory.Fault) engine.Run {
	t.Helper()
	ctx := context.Background()
	if fault != 0 {
		s.SetFault(name, fault)
	}
	regions, err := s.Entities(ctx)
	require.NoError(t, err)

	r, err := s.CreateRun(ctx, name)
	require.NoError(t, err)
	require.NoError(t, r.BindMaterial(ctx, regions[:1], engine.MaterialProperties{
		Name: "Muscle", MassDensity: 1090.4, Conductivity: 0.9782042083052804, RelativePermittivity: 54.81107626413944,
	}))
	require.NoError(t, r.SetSource(ctx, regions[1], engine.SourceSettings{Theta: 90, Phi: 0, Psi: 90}))
	require.NoError(t, r.SetGrid(ctx, regions))
	require.NoError(t, r.Prepare(ctx))
	if err := r.Submit(ctx, true); err != nil && fault&memory.FaultSolve == 0 {
		t.Fatalf("Submit: %v", err)
	}
	return r
}

func newSession() *memory.Session {
	return memory.NewSession(memory.Options{Regions: []string{"Muscle Block", "Plane Wave Source"}})
}

func quiet(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, format)
	})
	t.Cleanup(func() { monitoring.SetLogger(nil) })
	return &lines
}

func TestExtract_JSON(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := newSession()
	r := completedRun(t, s, "Box - Phi_000_VPol", 0)

	v, ok := NewExtractor(MethodJSON).Extract(ctx, s, r)
	require.True(t, ok)
	assert.InDelta(t, muscleSAR, v, 1e-9)

	info, _ := s.Inspect("Box - Phi_000_VPol")
	assert.Equal(t, AllFrequencies, info.Frequency)

	ev, err := s.Evaluator(ctx, "SAR Statistics for Box - Phi_000_VPol")
	require.NoError(t, err)
	assert.Equal(t, engine.OutputRef{Run: "Box - Phi_000_VPol", Sensor: DefaultSensor, Output: DefaultInput}, ev.Input())
}

func TestExtract_Table(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := newSession()
	r := completedRun(t, s, "Box - Front(Y-)_VPol", 0)

	e := NewExtractor(MethodTable)
	e.Table.HeaderContains = "Mass-Averaged"
	v, ok := e.Extract(ctx, s, r)
	require.True(t, ok)
	assert.InDelta(t, muscleSAR, v, 1e-9)
}

func TestExtract_ReusesEvaluator(t *testing.T) {
	quiet(t)
	ctx := context.Background()
	s := newSession()
	r := completedRun(t, s, "r1", 0)
	e := NewExtractor(MethodJSON)

	_, ok := e.Extract(ctx, s, r)
	require.True(t, ok)
	_, ok = e.Extract(ctx, s, r)
	require.True(t, ok)

	var creates int
	for _, c := range s.Calls() {
		if c == "CreateStatisticsEvaluator SAR Statistics for r1" {
			creates++
		}
	}
	assert.Equal(t, 1, creates)
}

func TestExtract_SoftFailures(t *testing.T) {
	testCases := []struct {
		name   string
		fault  memory.Fault
		method string
		stage  string
	}{
		{"missing_sensor", memory.FaultMissingSensor, MethodJSON, "sensor"},
		{"no_data", memory.FaultNoData, MethodJSON, "output"},
		{"failed_solve", memory.FaultSolve, MethodJSON, "output"},
		{"statistics_update", memory.FaultStatistics, MethodJSON, "update"},
		{"malformed_json", memory.FaultMalformedPayload, MethodJSON, "parse"},
		{"malformed_table", memory.FaultMalformedPayload, MethodTable, "parse"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			lines := quiet(t)
			ctx := context.Background()
			s := newSession()
			r := completedRun(t, s, "run", tc.fault)

			m := monitoring.NewMetrics()
			e := NewExtractor(tc.method)
			e.Metrics = m

			v, ok := e.Extract(ctx, s, r)
			assert.False(t, ok)
			assert.Zero(t, v)
			assert.Len(t, *lines, 1)
			want := fmt.Sprintf(`# HELP sarsweep_extraction_failures_total Runs whose metric could not be extracted, by stage.
# TYPE sarsweep_extraction_failures_total counter
sarsweep_extraction_failures_total{stage=%q} 1
`, tc.stage)
			assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(want), "sarsweep_extraction_failures_total"))
		})
	}
}
