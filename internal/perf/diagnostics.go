package perf

import (
	"sort"

	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/graph"
)

// Statistics summarizes a simulated run's shape: how saturated each
// origin's connection pool ran, as a purely diagnostic signal (it never
// feeds into a score or a metric computer).
type Statistics struct {
	NodeCount      int
	EdgeCount      int
	CriticalCount  int
	SaturatedCount int
	AverageUtil    float64
}

// ComputeStatistics reports g's shape alongside each origin's peak
// connection-pool utilization, following the same "saturated edge"
// pattern used elsewhere in this codebase for flow-network diagnostics:
// an origin is saturated when its peak concurrent connection count
// reached the HTTP/1.1 cap.
func ComputeStatistics(g *graph.Graph, pool *connpool.Pool) Statistics {
	stats := Statistics{NodeCount: g.NodeCount(), EdgeCount: g.EdgeCount()}

	origins := distinctNetworkOrigins(g)
	var totalUtil float64
	for _, origin := range origins {
		util := float64(pool.PeakInFlight(origin)) / float64(connpool.MaxH1ConnectionsPerOrigin)
		totalUtil += util
		if util >= 1.0 {
			stats.SaturatedCount++
		}
	}
	if len(origins) > 0 {
		stats.AverageUtil = totalUtil / float64(len(origins))
	}

	for _, n := range g.Nodes() {
		if n.Critical {
			stats.CriticalCount++
		}
	}

	return stats
}

// SaturatedOrigins returns the origins whose peak concurrent connection
// count reached the HTTP/1.1 cap during a run, sorted for determinism.
func SaturatedOrigins(g *graph.Graph, pool *connpool.Pool) []string {
	var out []string
	for _, origin := range distinctNetworkOrigins(g) {
		if pool.PeakInFlight(origin) >= connpool.MaxH1ConnectionsPerOrigin {
			out = append(out, origin)
		}
	}
	sort.Strings(out)
	return out
}

func distinctNetworkOrigins(g *graph.Graph) []string {
	seen := make(map[string]bool)
	var out []string
	for _, n := range g.Nodes() {
		if n.Kind != graph.KindNetwork || n.Record == nil || n.Record.Origin == "" {
			continue
		}
		if seen[n.Record.Origin] {
			continue
		}
		seen[n.Record.Origin] = true
		out = append(out, n.Record.Origin)
	}
	sort.Strings(out)
	return out
}
