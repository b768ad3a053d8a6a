package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs     *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration *prometheus.HistogramVec
	lowStock prometheus.Gauge
	reorders *prometheus.CounterVec
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// SetLowStock records how many catalog items the last sweep found at or below
// their minimum, and how many replenishment orders it created.
func (m *Metrics) SetLowStock(items, ordersCreated int) {
	if m == nil {
		return
	}
	m.lowStock.Set(float64(items))
	if ordersCreated > 0 {
		m.reorders.WithLabelValues(sweepSource).Add(float64(ordersCreated))
	}
}

// AddReorders counts replenishment orders created outside the sweep.
func (m *Metrics) AddReorders(source string, count int) {
	if m == nil || count <= 0 {
		return
	}
	if source == "" {
		source = "receipt"
	}
	m.reorders.WithLabelValues(source).Add(float64(count))
}

const sweepSource = "sweep"

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicstock_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicstock_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinicstock_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	lowStock := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clinicstock_low_stock_items",
		Help: "Catalog items at or below their minimum during the last sweep.",
	})
	reorders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clinicstock_reorders_created_total",
		Help: "Replenishment purchase orders created, by trigger.",
	}, []string{"source"})
	registerer.MustRegister(runs, failures, duration, lowStock, reorders)
	return &Metrics{runs: runs, failures: failures, duration: duration, lowStock: lowStock, reorders: reorders}
}
