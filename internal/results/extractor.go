// Package results reads the scalar SAR metric of a finished run. Every
// failure is soft: it is logged and counted, and the caller gets ok=false.
package results

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/sarsweep/internal/engine"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// Engine names used during extraction.
const (
	DefaultSensor  = "Overall Field"
	DefaultInput   = "EM E(x,y,z,f0)"
	StatsOutput    = "SAR Statistics"
	AllFrequencies = "All"

	evaluatorPrefix = "SAR Statistics for "
)

// Extraction methods.
const (
	MethodJSON  = "json"
	MethodTable = "table"
)

// EvaluatorName is the statistics evaluator attached to a run.
func EvaluatorName(run string) string { return evaluatorPrefix + run }

// Extractor reads one metric per run.
type Extractor struct {
	// Method is MethodJSON or MethodTable.
	Method    string
	Statistic string
	Table     TableSpec

	Sensor string
	Input  string

	Metrics *monitoring.Metrics
}

// NewExtractor returns an extractor with the default sensor and input.
func NewExtractor(method string) *Extractor {
	return &Extractor{
		Method:    method,
		Statistic: DefaultStatistic,
		Table:     DefaultTableSpec,
		Sensor:    DefaultSensor,
		Input:     DefaultInput,
	}
}

func (e *Extractor) fail(stage, run string, format string, v ...any) (float64, bool) {
	monitoring.Warnf("results", "%s: %s", run, fmt.Sprintf(format, v...))
	e.Metrics.ExtractionFailed(stage)
	return 0, false
}

// Extract returns the run's metric. It reuses the run's statistics
// evaluator when one exists in the session and creates it otherwise.
func (e *Extractor) Extract(ctx context.Context, session engine.Session, run engine.Run) (float64, bool) {
	name := run.Name()
	sensor := e.Sensor
	if sensor == "" {
		sensor = DefaultSensor
	}
	input := e.Input
	if input == "" {
		input = DefaultInput
	}

	rs, err := run.Results(ctx)
	if err != nil {
		return e.fail("results", name, "reading results: %v", err)
	}
	s, ok := rs.Sensor(sensor)
	if !ok {
		return e.fail("sensor", name, "sensor %q not found", sensor)
	}
	if err := run.SetExtractedFrequency(ctx, sensor, AllFrequencies); err != nil {
		return e.fail("sensor", name, "setting extracted frequency on %q: %v", sensor, err)
	}
	out, ok := s.Output(input)
	if !ok {
		return e.fail("output", name, "output %q not found on %q", input, sensor)
	}
	if !out.HasData {
		return e.fail("output", name, "output %q has no data", input)
	}

	ev, err := e.evaluator(ctx, session, engine.OutputRef{Run: name, Sensor: sensor, Output: input})
	if err != nil {
		return e.fail("evaluator", name, "%v", err)
	}
	if !ev.Update(ctx) {
		return e.fail("update", name, "evaluator %q failed to update", ev.Name())
	}

	payload, err := ev.Output(ctx, StatsOutput)
	if err != nil {
		return e.fail("payload", name, "reading %q: %v", StatsOutput, err)
	}

	var v float64
	switch e.Method {
	case MethodTable:
		v, err = TableValue(payload.Table, e.Table)
	default:
		stat := e.Statistic
		if stat == "" {
			stat = DefaultStatistic
		}
		v, err = StatisticValue(payload.JSON, stat)
	}
	if err != nil {
		return e.fail("parse", name, "%v", err)
	}
	return v, true
}

func (e *Extractor) evaluator(ctx context.Context, session engine.Session, in engine.OutputRef) (engine.Evaluator, error) {
	evName := EvaluatorName(in.Run)
	ev, err := session.Evaluator(ctx, evName)
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, engine.ErrNotFound) {
		return nil, fmt.Errorf("looking up evaluator %q: %w", evName, err)
	}
	ev, err = session.CreateStatisticsEvaluator(ctx, evName, in)
	if err != nil {
		return nil, fmt.Errorf("creating evaluator %q: %w", evName, err)
	}
	return ev, nil
}
