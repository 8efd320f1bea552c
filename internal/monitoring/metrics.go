package monitoring

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the sweep counters. A nil *Metrics is valid and records
// nothing, so components can take one optionally.
type Metrics struct {
	registry *prometheus.Registry

	runs               *prometheus.CounterVec
	materialFallbacks  *prometheus.CounterVec
	kernelFallbacks    prometheus.Counter
	extractionFailures *prometheus.CounterVec
	recordsWritten     prometheus.Counter
}

// NewMetrics registers the sweep counters on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarsweep",
			Name:      "runs_total",
			Help:      "Simulation runs by terminal status.",
		}, []string{"status"}),
		materialFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarsweep",
			Name:      "material_fallbacks_total",
			Help:      "Material bindings synthesized from fallback literals.",
		}, []string{"material"}),
		kernelFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sarsweep",
			Name:      "kernel_fallbacks_total",
			Help:      "Runs that fell back from the preferred solver kernel.",
		}),
		extractionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sarsweep",
			Name:      "extraction_failures_total",
			Help:      "Runs whose metric could not be extracted, by stage.",
		}, []string{"stage"}),
		recordsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sarsweep",
			Name:      "records_written_total",
			Help:      "Result rows appended to the results store.",
		}),
	}
	m.registry.MustRegister(m.runs, m.materialFallbacks, m.kernelFallbacks, m.extractionFailures, m.recordsWritten)
	return m
}

// Registry exposes the underlying registry for gathering.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) RunFinished(status string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
}

func (m *Metrics) MaterialFellBack(material string) {
	if m == nil {
		return
	}
	m.materialFallbacks.WithLabelValues(material).Inc()
}

func (m *Metrics) KernelFellBack() {
	if m == nil {
		return
	}
	m.kernelFallbacks.Inc()
}

func (m *Metrics) ExtractionFailed(stage string) {
	if m == nil {
		return
	}
	m.extractionFailures.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordsWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.recordsWritten.Add(float64(n))
}

// WriteTextfile writes the current counters in the node_exporter textfile
// format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
