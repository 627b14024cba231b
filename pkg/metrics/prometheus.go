package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the global metrics container for a binary embedding the
// simulator. simcore's BuildGraph/Simulate/ComputeSavings record
// directly into the default container via Get(); a binary that wants a
// differently-named registry should call InitMetrics before its first
// simcore call.
type Metrics struct {
	SimulationsTotal    *prometheus.CounterVec
	SimulationDuration  *prometheus.HistogramVec
	SchedulerIterations *prometheus.HistogramVec
	ReadySetPeak        *prometheus.HistogramVec
	GraphNodesTotal     *prometheus.HistogramVec
	GraphEdgesTotal     *prometheus.HistogramVec
	MetricValueMs       *prometheus.GaugeVec
	SavingsWastedMs     *prometheus.HistogramVec

	SimulationsInFlight prometheus.Gauge

	MemoryUsage *prometheus.GaugeVec
	Goroutines  prometheus.Gauge

	ServiceInfo *prometheus.GaugeVec

	runTracker *RunTracker
	scheduler  *SchedulerCollector
}

var defaultMetrics *Metrics

// InitMetrics builds and registers the metrics container under the
// given namespace/subsystem.
func InitMetrics(namespace, subsystem string) *Metrics {
	m := &Metrics{
		SimulationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulations_total",
				Help:      "Total number of simulate() runs",
			},
			[]string{"status"},
		),

		SimulationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulation_duration_seconds",
				Help:      "Wall-clock duration of simulate() runs",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{},
		),

		SchedulerIterations: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scheduler_iterations",
				Help:      "Number of scheduler step() iterations per simulate() run",
				Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
			},
			[]string{},
		),

		ReadySetPeak: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "scheduler_ready_set_peak",
				Help:      "Peak size of the scheduler's ready set during a run",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
			[]string{},
		),

		GraphNodesTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "graph_nodes_total",
				Help:      "Number of nodes in built request graphs",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{},
		),

		GraphEdgesTotal: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "graph_edges_total",
				Help:      "Number of edges in built request graphs",
				Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{},
		),

		MetricValueMs: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "metric_value_ms",
				Help:      "Last computed value of a performance metric, in milliseconds",
			},
			[]string{"metric"}, // fcp, lcp, tti
		),

		SavingsWastedMs: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "savings_wasted_ms",
				Help:      "Estimated wasted milliseconds from computeSavings() calls",
				Buckets:   []float64{0, 10, 50, 100, 250, 500, 1000, 2500, 5000},
			},
			[]string{"metric"},
		),

		MemoryUsage: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "memory_usage_bytes",
				Help:      "Current memory usage",
			},
			[]string{"type"},
		),

		Goroutines: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "goroutines",
				Help:      "Current number of goroutines",
			},
		),

		ServiceInfo: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "service_info",
				Help:      "Service information",
			},
			[]string{"version", "environment"},
		),

		SimulationsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: subsystem,
				Name:      "simulations_in_flight",
				Help:      "Number of simulate() calls currently in flight",
			},
		),
	}

	m.runTracker = NewRunTracker(m.SimulationsInFlight)
	m.scheduler = NewSchedulerCollector(namespace, subsystem)
	prometheus.MustRegister(NewRuntimeCollector(namespace, subsystem))
	prometheus.MustRegister(m.scheduler)

	defaultMetrics = m
	return m
}

// Get returns the global metrics container, initializing a default one
// on first use.
func Get() *Metrics {
	if defaultMetrics == nil {
		return InitMetrics("loadsim", "")
	}
	return defaultMetrics
}

// RecordSimulation records one simulate() run.
func (m *Metrics) RecordSimulation(success bool, duration time.Duration, iterations, readySetPeak int) {
	status := "ok"
	if !success {
		status = "error"
	}
	m.SimulationsTotal.WithLabelValues(status).Inc()
	m.SimulationDuration.WithLabelValues().Observe(duration.Seconds())
	m.SchedulerIterations.WithLabelValues().Observe(float64(iterations))
	m.ReadySetPeak.WithLabelValues().Observe(float64(readySetPeak))
	if success {
		m.scheduler.RecordRun(iterations, readySetPeak)
	}
}

// TrackRun marks the start of a simulate() call as in flight (via
// RunTracker, reported through SimulationsInFlight) and as active on
// the scheduler collector. The returned function must be called once
// the run completes.
func (m *Metrics) TrackRun() func() {
	m.runTracker.Start("simulate")
	m.scheduler.TrackStart()
	return func() {
		m.runTracker.End("simulate")
		m.scheduler.TrackEnd()
	}
}

// RecordGraphSize records the size of a built request graph.
func (m *Metrics) RecordGraphSize(nodes, edges int) {
	m.GraphNodesTotal.WithLabelValues().Observe(float64(nodes))
	m.GraphEdgesTotal.WithLabelValues().Observe(float64(edges))
}

// RecordMetricValue records the latest FCP/LCP/TTI value.
func (m *Metrics) RecordMetricValue(metric string, valueMs float64) {
	m.MetricValueMs.WithLabelValues(metric).Set(valueMs)
}

// RecordSavings records one computeSavings() result.
func (m *Metrics) RecordSavings(metric string, wastedMs float64) {
	m.SavingsWastedMs.WithLabelValues(metric).Observe(wastedMs)
}

// SetServiceInfo sets the service_info gauge.
func (m *Metrics) SetServiceInfo(version, environment string) {
	m.ServiceInfo.WithLabelValues(version, environment).Set(1)
}

// Handler returns the HTTP handler serving /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartMetricsServer starts an HTTP server exposing /metrics and
// /health on the given port.
func StartMetricsServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK")) //nolint:errcheck // health endpoint, write failure is not actionable
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return server.ListenAndServe()
}
