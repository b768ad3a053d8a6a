package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	if m.Counter != nil {
		return m.Counter.GetValue()
	}
	return m.Gauge.GetValue()
}

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("reorder_sweep").End(nil))
	err := errors.New("boom")
	require.ErrorIs(t, m.Track("reorder_sweep").End(err), err)

	require.Equal(t, 1.0, value(t, m.runs.WithLabelValues("reorder_sweep", "success")))
	require.Equal(t, 1.0, value(t, m.runs.WithLabelValues("reorder_sweep", "failure")))
	require.Equal(t, 1.0, value(t, m.failures.WithLabelValues("reorder_sweep")))
}

func TestSetLowStock(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetLowStock(4, 2)
	m.AddReorders("", 1)

	require.Equal(t, 4.0, value(t, m.lowStock))
	require.Equal(t, 2.0, value(t, m.reorders.WithLabelValues("sweep")))
	require.Equal(t, 1.0, value(t, m.reorders.WithLabelValues("receipt")))

	var nilMetrics *Metrics
	nilMetrics.SetLowStock(1, 1)
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
