package simcore

import (
	"context"
	"time"

	"github.com/arkado/loadsim/internal/analyzer"
	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/graph"
	"github.com/arkado/loadsim/internal/perf"
	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/internal/scheduler"
	"github.com/arkado/loadsim/pkg/metrics"
	"github.com/arkado/loadsim/pkg/telemetry"
)

// Graph is the request graph produced by BuildGraph and consumed by
// Simulate, ComputeSavings, and CriticalChain.
type Graph = graph.Graph

// NodeID identifies a node within a Graph.
type NodeID = graph.NodeID

// NodeTiming is a node's simulated start/end time, in milliseconds from
// the graph's shared time origin.
type NodeTiming = scheduler.NodeTiming

// Metric names a simulated timing ComputeSavings prices an opportunity
// against.
type Metric = perf.Metric

const (
	MetricFCP = perf.MetricFCP
	MetricLCP = perf.MetricLCP
	MetricTTI = perf.MetricTTI
)

// SimulateResult is the output of one Simulate call.
type SimulateResult struct {
	NodeTimings  map[NodeID]NodeTiming
	TimeInMs     float64
	FCPMs        float64
	LCPMs        float64
	TTIMs        float64
	Iterations   int
	ReadySetPeak int
	RunID        string
}

// SavingsResult is the output of one ComputeSavings call.
type SavingsResult = perf.Savings

// BuildGraph takes request records the caller has already parsed from a
// network log (see internal/record.Parse), links them with the
// main-thread task trace into a request graph, and labels the
// critical rendering path. rootURL identifies the main document; if
// empty, the first root-frame Document record is used.
func BuildGraph(ctx context.Context, records []*record.Record, tasks []*record.Task, rootURL string) (*Graph, error) {
	ctx, span := telemetry.StartSpan(ctx, "simcore.BuildGraph")
	defer span.End()

	g, err := graph.Build(records, tasks, rootURL)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.GraphAttributes(g.NodeCount(), g.EdgeCount(), len(distinctOrigins(records)), rootURL)...)
	metrics.Get().RecordGraphSize(g.NodeCount(), g.EdgeCount())
	return g, nil
}

// Simulate walks g to completion under settings and returns every
// node's simulated start/end time along with the page's FCP/LCP/TTI.
// lcpNodeID identifies the node the caller has picked as the
// largest-contentful-paint candidate; pass 0 if unknown (LCPMs will
// then read the zero-value node's timing, which callers that don't
// need LCP can ignore).
func Simulate(ctx context.Context, g *Graph, settings Settings, lcpNodeID NodeID) (*SimulateResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "simcore.Simulate")
	defer span.End()

	settings = settings.normalized()
	timer := time.Now()

	analysis, pool := newAnalysisAndPool(ctx, g, settings)

	endRun := metrics.Get().TrackRun()
	result, err := scheduler.Simulate(g, analysis, pool, settings.schedulerSettings())
	endRun()
	duration := time.Since(timer)
	if err != nil {
		telemetry.SetError(ctx, err)
		metrics.Get().RecordSimulation(false, duration, 0, 0)
		return nil, err
	}

	fcp := perf.ComputeFCP(g, result)
	lcp := perf.ComputeLCP(result, lcpNodeID)
	tti := perf.ComputeTTI(g, result, fcp)

	telemetry.SetAttributes(ctx, telemetry.SimulationAttributes(result.TimeInMs, result.Iterations, result.ReadySetPeak)...)
	telemetry.SetAttributes(ctx, telemetry.MetricAttributes(fcp, lcp, tti)...)

	m := metrics.Get()
	m.RecordSimulation(true, duration, result.Iterations, result.ReadySetPeak)
	m.RecordMetricValue("fcp", fcp)
	m.RecordMetricValue("lcp", lcp)
	m.RecordMetricValue("tti", tti)

	return &SimulateResult{
		NodeTimings:  result.NodeTimings,
		TimeInMs:     result.TimeInMs,
		FCPMs:        fcp,
		LCPMs:        lcp,
		TTIMs:        tti,
		Iterations:   result.Iterations,
		ReadySetPeak: result.ReadySetPeak,
		RunID:        result.RunID,
	}, nil
}

// ComputeSavings prices the given per-URL wasted-byte reductions
// against metric, leaving g bit-identical to its pre-call state. Two
// resimulations are run internally (before and after the hypothetical
// byte reduction) against fresh connection pools, so the result is
// unaffected by any connection warmth left over from a prior Simulate
// call against the same graph.
func ComputeSavings(ctx context.Context, g *Graph, settings Settings, wastedBytesByURL map[string]int64, metric Metric, lcpNodeID NodeID) (*SavingsResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "simcore.ComputeSavings")
	defer span.End()

	settings = settings.normalized()

	analysis, _ := newAnalysisAndPool(ctx, g, settings)
	newPool := func() *connpool.Pool {
		return connpool.New(settings.poolSettings(), analysis.RTTByOrigin)
	}

	savings, err := perf.ComputeSavings(g, analysis, newPool, settings.schedulerSettings(), wastedBytesByURL, metric, lcpNodeID)
	if err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	telemetry.SetAttributes(ctx, telemetry.SavingsAttributes(string(metric), savings.BeforeMs, savings.AfterMs, savings.WastedMs)...)
	metrics.Get().RecordSavings(string(metric), savings.WastedMs)

	return savings, nil
}

// CriticalChain returns the node IDs on g's critical rendering path, in
// dependency order from the root document outward.
func CriticalChain(g *Graph) []NodeID {
	return g.CriticalChain()
}

// Diagnostics is a purely informational summary of a simulated run's
// connection-pool pressure, useful for explaining why a page's timing
// looks the way it does without feeding into any metric computer.
type Diagnostics = perf.Statistics

// Diagnose runs a simulation under settings purely to observe how
// saturated each origin's connection pool got, and reports how many
// origins reached their concurrency cap. It does not return the
// simulated timings themselves; callers that need both should call
// Simulate directly and accept that Diagnose duplicates that work.
func Diagnose(ctx context.Context, g *Graph, settings Settings) (*Diagnostics, error) {
	ctx, span := telemetry.StartSpan(ctx, "simcore.Diagnose")
	defer span.End()

	settings = settings.normalized()
	analysis, pool := newAnalysisAndPool(ctx, g, settings)

	if _, err := scheduler.Simulate(g, analysis, pool, settings.schedulerSettings()); err != nil {
		telemetry.SetError(ctx, err)
		return nil, err
	}

	stats := perf.ComputeStatistics(g, pool)
	return &stats, nil
}

// newAnalysisAndPool runs the statistical analyzer over every network
// record in g and builds a fresh connection pool from the
// result. Analyzer warnings (e.g. an origin with no fresh-connect RTT
// sample) are recorded on the span but never fail the call.
func newAnalysisAndPool(ctx context.Context, g *Graph, settings Settings) (*analyzer.Analysis, *connpool.Pool) {
	records := networkRecords(g)
	analysis, warnings := analyzer.Analyze(records, settings.DefaultRTTMs)
	for _, w := range warnings.Warnings {
		telemetry.RecordWarning(ctx, w)
	}

	pool := connpool.New(settings.poolSettings(), analysis.RTTByOrigin)
	return analysis, pool
}

func networkRecords(g *Graph) []*record.Record {
	nodes := g.Nodes()
	out := make([]*record.Record, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == graph.KindNetwork && n.Record != nil {
			out = append(out, n.Record)
		}
	}
	return out
}

func distinctOrigins(records []*record.Record) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, r := range records {
		if r.Origin == "" || seen[r.Origin] {
			continue
		}
		seen[r.Origin] = true
		out = append(out, r.Origin)
	}
	return out
}
