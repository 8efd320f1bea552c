package monitoring

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()
	m.RunFinished("completed")
	m.RunFinished("completed")
	m.RunFinished("failed")
	m.MaterialFellBack("Muscle")
	m.KernelFellBack()
	m.ExtractionFailed("statistics")
	m.RecordsWritten(2)
	m.RecordsWritten(0)

	assert.Equal(t, 2.0, promtest.ToFloat64(m.runs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.runs.WithLabelValues("failed")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.materialFallbacks.WithLabelValues("Muscle")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.kernelFallbacks))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.extractionFailures.WithLabelValues("statistics")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.recordsWritten))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.RunFinished("completed")
	m.MaterialFellBack("Fat")
	m.KernelFellBack()
	m.ExtractionFailed("sensor")
	m.RecordsWritten(3)
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.RecordsWritten(5)

	path := filepath.Join(t.TempDir(), "sarsweep.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "sarsweep_records_written_total 5"))
}
