// Package perf layers the page-load metrics (FCP, LCP, TTI) and
// byte-savings opportunity pricing on top of a scheduler.Result, and
// exposes the snapshot/mutate/resimulate/restore cycle used by "what if
// this resource were N bytes smaller" audits.
package perf

import (
	"math"
	"sort"

	"github.com/arkado/loadsim/internal/analyzer"
	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/graph"
	"github.com/arkado/loadsim/internal/scheduler"
)

// quietWindowMs is the window after FCP that must contain no long task
// and no more than two in-flight critical requests for TTI to settle.
const quietWindowMs = 5000

// longTaskThresholdMs is the minimum CPU node duration that counts
// against a TTI quiet window.
const longTaskThresholdMs = 50

// maxCriticalInFlightForQuiet is the maximum number of simultaneously
// in-flight critical network requests tolerated during a quiet window.
const maxCriticalInFlightForQuiet = 2

// ComputeFCP returns the first-contentful-paint estimate: the latest
// simulated finish time among the nodes on the critical rendering
// chain (the document plus every render-blocking resource that gates
// it).
func ComputeFCP(g *graph.Graph, result *scheduler.Result) float64 {
	var fcp float64
	for _, id := range g.CriticalChain() {
		if t, ok := result.NodeTimings[id]; ok && t.End > fcp {
			fcp = t.End
		}
	}
	return fcp
}

// ComputeLCP returns the simulated finish time of the node the caller
// has identified as the largest-contentful-paint candidate (an image
// record, or the document node itself for text-only LCP).
func ComputeLCP(result *scheduler.Result, lcpNodeID graph.NodeID) float64 {
	return result.NodeTimings[lcpNodeID].End
}

type interval struct {
	start, end float64
}

// ComputeTTI returns the earliest time at or after fcp such that no CPU
// node of duration >= 50ms starts within the following 5 seconds of
// simulated time, and at most two critical network requests are
// in-flight throughout that window. Falls back to the simulation's
// total time if no such window exists before the graph finishes.
func ComputeTTI(g *graph.Graph, result *scheduler.Result, fcp float64) float64 {
	var longTasks, criticalNet []interval
	for _, n := range g.Nodes() {
		t, ok := result.NodeTimings[n.ID]
		if !ok {
			continue
		}
		switch {
		case n.Kind == graph.KindCPU && (t.End-t.Start) >= longTaskThresholdMs:
			longTasks = append(longTasks, interval{t.Start, t.End})
		case n.Kind == graph.KindNetwork && n.Critical:
			criticalNet = append(criticalNet, interval{t.Start, t.End})
		}
	}

	candidates := []float64{fcp, result.TimeInMs}
	for _, iv := range longTasks {
		candidates = append(candidates, iv.end)
	}
	for _, iv := range criticalNet {
		candidates = append(candidates, iv.end)
	}
	sort.Float64s(candidates)

	for _, candidate := range candidates {
		if candidate < fcp {
			continue
		}
		if isQuietWindow(candidate, longTasks, criticalNet) {
			return candidate
		}
	}
	return result.TimeInMs
}

func isQuietWindow(candidate float64, longTasks, criticalNet []interval) bool {
	windowEnd := candidate + quietWindowMs
	for _, lt := range longTasks {
		if lt.start >= candidate && lt.start < windowEnd {
			return false
		}
	}

	type edge struct {
		t     float64
		delta int
	}
	var edges []edge
	for _, iv := range criticalNet {
		if iv.start < windowEnd && iv.end > candidate {
			edges = append(edges, edge{math.Max(iv.start, candidate), 1})
			edges = append(edges, edge{math.Min(iv.end, windowEnd), -1})
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].t < edges[j].t })

	running := 0
	for _, e := range edges {
		running += e.delta
		if running > maxCriticalInFlightForQuiet {
			return false
		}
	}
	return true
}

// Metric names a simulated timing to price an opportunity against.
type Metric string

const (
	MetricFCP Metric = "fcp"
	MetricLCP Metric = "lcp"
	MetricTTI Metric = "tti"
)

// Savings is the result of pricing a set of byte reductions against a
// single metric.
type Savings struct {
	WastedMs float64
	BeforeMs float64
	AfterMs  float64
}

// ComputeSavings snapshots the transfer size of every node named in
// wastedBytesByURL, shrinks each by its wasted-byte amount, resimulates,
// diffs the named metric, and restores the graph to its original sizes
// before returning. The graph is left bit-identical on return: pricing
// is deterministic and idempotent, matching repeated calls with the
// same inputs.
func ComputeSavings(
	g *graph.Graph,
	analysis *analyzer.Analysis,
	newPool func() *connpool.Pool,
	settings scheduler.Settings,
	wastedBytesByURL map[string]int64,
	metric Metric,
	lcpNodeID graph.NodeID,
) (*Savings, error) {
	before, err := evaluate(g, analysis, newPool(), settings, metric, lcpNodeID)
	if err != nil {
		return nil, err
	}

	snapshot := snapshotTransferSizes(g, wastedBytesByURL)
	mutateTransferSizes(g, wastedBytesByURL)

	after, err := evaluate(g, analysis, newPool(), settings, metric, lcpNodeID)
	restoreTransferSizes(snapshot)
	if err != nil {
		return nil, err
	}

	wasted := before - after
	if wasted < 0 {
		wasted = 0
	}
	wasted = roundToNearest(wasted, 10)

	return &Savings{WastedMs: wasted, BeforeMs: before, AfterMs: after}, nil
}

func evaluate(g *graph.Graph, analysis *analyzer.Analysis, pool *connpool.Pool, settings scheduler.Settings, metric Metric, lcpNodeID graph.NodeID) (float64, error) {
	result, err := scheduler.Simulate(g, analysis, pool, settings)
	if err != nil {
		return 0, err
	}
	switch metric {
	case MetricLCP:
		return ComputeLCP(result, lcpNodeID), nil
	case MetricTTI:
		return ComputeTTI(g, result, ComputeFCP(g, result)), nil
	default:
		return ComputeFCP(g, result), nil
	}
}

func snapshotTransferSizes(g *graph.Graph, wastedBytesByURL map[string]int64) map[*graph.Node]int64 {
	snapshot := make(map[*graph.Node]int64, len(wastedBytesByURL))
	for _, n := range g.Nodes() {
		if n.Kind != graph.KindNetwork || n.Record == nil {
			continue
		}
		if _, ok := wastedBytesByURL[n.Record.URL]; ok {
			snapshot[n] = n.Record.TransferSize
		}
	}
	return snapshot
}

func mutateTransferSizes(g *graph.Graph, wastedBytesByURL map[string]int64) {
	for _, n := range g.Nodes() {
		if n.Kind != graph.KindNetwork || n.Record == nil {
			continue
		}
		saved, ok := wastedBytesByURL[n.Record.URL]
		if !ok {
			continue
		}
		newSize := n.Record.TransferSize - saved
		if newSize < 0 {
			newSize = 0
		}
		n.Record.TransferSize = newSize
	}
}

// restoreTransferSizes resets every snapshotted node's transfer size,
// leaving the graph bit-identical to its pre-mutation state.
func restoreTransferSizes(snapshot map[*graph.Node]int64) {
	for n, size := range snapshot {
		n.Record.TransferSize = size
	}
}

func roundToNearest(value float64, step float64) float64 {
	return math.Round(value/step) * step
}
