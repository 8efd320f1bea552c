// Package store persists sweep results: an append-only CSV of per-run
// metrics and a sqlite ledger of sweeps and their runs.
package store

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/banshee-data/sarsweep/internal/fsutil"
	"github.com/banshee-data/sarsweep/internal/monitoring"
)

// Metric column names used by the sweep workflows.
const (
	ColumnVWASAR          = "VWA_SAR"
	ColumnMassAveragedSAR = "MassAveragedSAR"
)

// Record is one persisted result row.
type Record struct {
	ModelName      string
	SimulationName string
	Direction      string
	Metric         float64
}

// ResultStore appends records to a CSV file. The header is written only when
// the file does not exist yet.
type ResultStore struct {
	fs           fsutil.FileSystem
	path         string
	metricColumn string

	Metrics *monitoring.Metrics
}

// NewResultStore creates a store for path. An empty metricColumn uses
// ColumnVWASAR.
func NewResultStore(fsys fsutil.FileSystem, path, metricColumn string) *ResultStore {
	if metricColumn == "" {
		metricColumn = ColumnVWASAR
	}
	return &ResultStore{fs: fsys, path: path, metricColumn: metricColumn}
}

func (s *ResultStore) Path() string { return s.path }

// Header returns the fixed column order.
func (s *ResultStore) Header() []string {
	return []string{"ModelName", "SimulationName", "Direction", s.metricColumn}
}

// Append writes records in order. A missing file is created with a header
// first, even when records is empty.
func (s *ResultStore) Append(records []Record) error {
	exists := s.fs.Exists(s.path)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if !exists {
		if err := w.Write(s.Header()); err != nil {
			return fmt.Errorf("appending results to %s: %w", s.path, err)
		}
	}
	for _, r := range records {
		row := []string{r.ModelName, r.SimulationName, r.Direction, formatMetric(r.Metric)}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("appending results to %s: %w", s.path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("appending results to %s: %w", s.path, err)
	}

	open := s.fs.OpenAppend
	if !exists {
		open = s.fs.Create
	}
	f, err := open(s.path)
	if err != nil {
		return fmt.Errorf("appending results to %s: %w", s.path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		f.Close()
		return fmt.Errorf("appending results to %s: %w", s.path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("appending results to %s: %w", s.path, err)
	}

	s.Metrics.RecordsWritten(len(records))
	monitoring.Logf("[store] wrote %d result(s) to %s", len(records), s.path)
	return nil
}

// ReadRecords parses the file back. The metric column is taken by position,
// whatever its title.
func (s *ResultStore) ReadRecords() ([]Record, error) {
	data, err := s.fs.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading results %s: %w", s.path, err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing results %s: %w", s.path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 4 {
			return nil, fmt.Errorf("parsing results %s: line %d has %d fields, want 4", s.path, i+2, len(row))
		}
		v, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			return nil, fmt.Errorf("parsing results %s: line %d: %w", s.path, i+2, err)
		}
		out = append(out, Record{ModelName: row[0], SimulationName: row[1], Direction: row[2], Metric: v})
	}
	return out, nil
}

func formatMetric(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
