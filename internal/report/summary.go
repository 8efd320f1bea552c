// Package report renders a results file as a per-polarization summary, a
// SAR-versus-azimuth PNG and an interactive HTML chart.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/sarsweep/internal/monitoring"
	"github.com/banshee-data/sarsweep/internal/store"
	"github.com/banshee-data/sarsweep/internal/sweep"
)

var logf = monitoring.Component("report")

// OtherGroup collects records whose direction is not an azimuth label.
const OtherGroup = "other"

// Point is one metric at one azimuth.
type Point struct {
	Phi       float64
	Value     float64
	Direction string
}

// Series holds the points of one polarization, ordered by azimuth.
type Series struct {
	Polarization string
	Points       []Point
}

// Summary describes the metric across one polarization.
type Summary struct {
	Polarization string
	Count        int
	Mean         float64
	StdDev       float64
	Min          float64
	Max          float64
	MaxDirection string
}

// Group splits records by polarization. Records whose direction cannot be
// parsed land in OtherGroup with phi 0 and are not plotted.
func Group(records []store.Record) (series []Series, other []store.Record) {
	byPol := map[string][]Point{}
	for _, r := range records {
		phi, pol, ok := sweep.ParseDirection(r.Direction)
		if !ok {
			other = append(other, r)
			continue
		}
		byPol[pol] = append(byPol[pol], Point{Phi: phi, Value: r.Metric, Direction: r.Direction})
	}
	for pol, pts := range byPol {
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].Phi < pts[j].Phi })
		series = append(series, Series{Polarization: pol, Points: pts})
	}
	// VPol before HPol, matching sweep order.
	sort.Slice(series, func(i, j int) bool { return series[i].Polarization > series[j].Polarization })
	return series, other
}

// Summarize computes count, mean, sample standard deviation and extremes per
// polarization, plus one OtherGroup row when needed.
func Summarize(records []store.Record) []Summary {
	series, other := Group(records)
	var out []Summary
	for _, s := range series {
		vals := make([]float64, len(s.Points))
		dirs := make([]string, len(s.Points))
		for i, p := range s.Points {
			vals[i] = p.Value
			dirs[i] = p.Direction
		}
		out = append(out, summarize(s.Polarization, vals, dirs))
	}
	if len(other) > 0 {
		vals := make([]float64, len(other))
		dirs := make([]string, len(other))
		for i, r := range other {
			vals[i] = r.Metric
			dirs[i] = r.Direction
		}
		out = append(out, summarize(OtherGroup, vals, dirs))
	}
	return out
}

func summarize(pol string, vals []float64, dirs []string) Summary {
	s := Summary{Polarization: pol, Count: len(vals)}
	if len(vals) == 0 {
		return s
	}
	if len(vals) == 1 {
		s.Mean = vals[0]
	} else {
		s.Mean, s.StdDev = stat.MeanStdDev(vals, nil)
	}
	s.Min = floats.Min(vals)
	s.Max = floats.Max(vals)
	s.MaxDirection = dirs[floats.MaxIdx(vals)]
	return s
}

// SummaryHeader is the column set of the summary CSV.
var SummaryHeader = []string{"Polarization", "Count", "Mean", "StdDev", "Min", "Max", "MaxDirection"}

// WriteSummaryCSV writes one row per summary under SummaryHeader.
func WriteSummaryCSV(w io.Writer, summaries []Summary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader); err != nil {
		return fmt.Errorf("writing summary header: %w", err)
	}
	for _, s := range summaries {
		row := []string{
			s.Polarization,
			strconv.Itoa(s.Count),
			formatFloat(s.Mean),
			formatFloat(s.StdDev),
			formatFloat(s.Min),
			formatFloat(s.Max),
			s.MaxDirection,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("writing summary row %s: %w", s.Polarization, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// formatFloat rounds to nine significant digits so that accumulated
// floating point noise stays out of the file.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 9, 64)
}
