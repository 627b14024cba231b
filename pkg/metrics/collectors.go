package metrics

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RuntimeCollector reports Go runtime stats (goroutines, memory, GC).
type RuntimeCollector struct {
	goroutines *prometheus.Desc
	memAlloc   *prometheus.Desc
	memTotal   *prometheus.Desc
	memSys     *prometheus.Desc
	gcPause    *prometheus.Desc
	gcRuns     *prometheus.Desc
}

// NewRuntimeCollector creates a runtime metrics collector.
func NewRuntimeCollector(namespace, subsystem string) *RuntimeCollector {
	return &RuntimeCollector{
		goroutines: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "runtime_goroutines"),
			"Number of goroutines",
			nil, nil,
		),
		memAlloc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "runtime_memory_alloc_bytes"),
			"Bytes allocated and still in use",
			nil, nil,
		),
		memTotal: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "runtime_memory_total_alloc_bytes"),
			"Total bytes allocated (even if freed)",
			nil, nil,
		),
		memSys: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "runtime_memory_sys_bytes"),
			"Bytes obtained from system",
			nil, nil,
		),
		gcPause: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "runtime_gc_pause_seconds"),
			"GC pause duration",
			nil, nil,
		),
		gcRuns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "runtime_gc_runs_total"),
			"Total number of completed GC cycles",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *RuntimeCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.goroutines
	ch <- c.memAlloc
	ch <- c.memTotal
	ch <- c.memSys
	ch <- c.gcPause
	ch <- c.gcRuns
}

// Collect implements prometheus.Collector.
func (c *RuntimeCollector) Collect(ch chan<- prometheus.Metric) {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)

	ch <- prometheus.MustNewConstMetric(c.goroutines, prometheus.GaugeValue, float64(runtime.NumGoroutine()))
	ch <- prometheus.MustNewConstMetric(c.memAlloc, prometheus.GaugeValue, float64(stats.Alloc))
	ch <- prometheus.MustNewConstMetric(c.memTotal, prometheus.CounterValue, float64(stats.TotalAlloc))
	ch <- prometheus.MustNewConstMetric(c.memSys, prometheus.GaugeValue, float64(stats.Sys))
	ch <- prometheus.MustNewConstMetric(c.gcRuns, prometheus.CounterValue, float64(stats.NumGC))

	if stats.NumGC > 0 {
		ch <- prometheus.MustNewConstMetric(c.gcPause, prometheus.GaugeValue, float64(stats.PauseNs[(stats.NumGC-1)%256])/1e9)
	}
}

// RunTracker tracks concurrently in-flight simulate() calls, keyed by
// an arbitrary label (e.g. the caller-supplied run ID prefix).
type RunTracker struct {
	mu       sync.Mutex
	active   map[string]int
	inFlight prometheus.Gauge
}

// NewRunTracker creates a RunTracker backed by the given gauge.
func NewRunTracker(inFlight prometheus.Gauge) *RunTracker {
	return &RunTracker{
		active:   make(map[string]int),
		inFlight: inFlight,
	}
}

// Start marks the beginning of a run under label.
func (t *RunTracker) Start(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.active[label]++
	t.inFlight.Inc()
}

// End marks the end of a run under label.
func (t *RunTracker) End(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.active[label] > 0 {
		t.active[label]--
		t.inFlight.Dec()
	}
}

// SchedulerCollector reports live scheduler state that a point-in-time
// Vec observation can't: how many simulate() calls are in flight right
// now, and the shape of the most recently completed run. Follows the
// same Desc+Collect pattern as RuntimeCollector.
type SchedulerCollector struct {
	activeRuns       int64
	lastIterations   int64
	lastReadySetPeak int64

	activeDesc     *prometheus.Desc
	iterationsDesc *prometheus.Desc
	readySetDesc   *prometheus.Desc
}

// NewSchedulerCollector creates a scheduler metrics collector.
func NewSchedulerCollector(namespace, subsystem string) *SchedulerCollector {
	return &SchedulerCollector{
		activeDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "scheduler_active_runs"),
			"Number of simulate() calls currently in flight",
			nil, nil,
		),
		iterationsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "scheduler_last_iterations"),
			"Iteration count of the most recently completed simulate() run",
			nil, nil,
		),
		readySetDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, subsystem, "scheduler_last_ready_set_peak"),
			"Ready-set peak of the most recently completed simulate() run",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *SchedulerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDesc
	ch <- c.iterationsDesc
	ch <- c.readySetDesc
}

// Collect implements prometheus.Collector.
func (c *SchedulerCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.activeRuns)))
	ch <- prometheus.MustNewConstMetric(c.iterationsDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.lastIterations)))
	ch <- prometheus.MustNewConstMetric(c.readySetDesc, prometheus.GaugeValue, float64(atomic.LoadInt64(&c.lastReadySetPeak)))
}

// TrackStart marks the beginning of a simulate() call.
func (c *SchedulerCollector) TrackStart() { atomic.AddInt64(&c.activeRuns, 1) }

// TrackEnd marks the end of a simulate() call.
func (c *SchedulerCollector) TrackEnd() { atomic.AddInt64(&c.activeRuns, -1) }

// RecordRun stores the shape of the most recently completed run.
func (c *SchedulerCollector) RecordRun(iterations, readySetPeak int) {
	atomic.StoreInt64(&c.lastIterations, int64(iterations))
	atomic.StoreInt64(&c.lastReadySetPeak, int64(readySetPeak))
}

// Timer measures elapsed time and records it into a histogram on
// ObserveDuration.
type Timer struct {
	start    time.Time
	observer prometheus.Observer
}

// NewTimer starts a timer that will record into histogram under labels.
func NewTimer(histogram *prometheus.HistogramVec, labels ...string) *Timer {
	return &Timer{
		start:    time.Now(),
		observer: histogram.WithLabelValues(labels...),
	}
}

// ObserveDuration records the elapsed time and returns it.
func (t *Timer) ObserveDuration() time.Duration {
	duration := time.Since(t.start)
	t.observer.Observe(duration.Seconds())
	return duration
}
