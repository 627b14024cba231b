// Package simcore is the public facade over the page-load simulator:
// buildGraph, simulate, computeSavings, and criticalChain. The first
// three are each wrapped in a tracing span and emit the metrics a caller
// running many audits back to back needs for per-call latency
// breakdowns; criticalChain is a plain read of the graph with neither.
package simcore

import (
	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/scheduler"
)

// Settings is the full set of tunable simulation parameters, unifying
// what the scheduler and the connection pool each consult. The engine
// never reads process-wide state; every call takes a Settings value
// explicitly.
type Settings struct {
	// CPUSlowdownMultiplier scales every CPU task's recorded duration.
	CPUSlowdownMultiplier float64
	// ThroughputDownKbps caps the simulated download rate; zero disables
	// the cap. ThroughputUpKbps is passed through to the scheduler, which
	// applies no upload cap.
	ThroughputDownKbps float64
	ThroughputUpKbps   float64
	// DefaultRTTMs is the fallback RTT used when no origin in the graph
	// has a fresh-connect sample (origins without a sample otherwise get
	// the site-wide median of the sampled ones).
	DefaultRTTMs float64
	// TLSHandshakeRTTs is 1 (TLS 1.3) or 2 (TLS 1.2) extra round trips
	// charged on a cold connection's handshake.
	TLSHandshakeRTTs int
	// InitialCongestionWindow is the slow-start starting point, in MSS
	// segments.
	InitialCongestionWindow int
	// H2CoalescingEnabled lets origins sharing a registrable domain
	// share one simulated HTTP/2 connection.
	H2CoalescingEnabled bool
	// MaxIterations bounds the scheduler's step loop; zero uses the
	// package default.
	MaxIterations int
}

// DefaultSettings returns the well-known defaults this simulator uses
// when a caller passes a zero-value Settings: 100ms RTT, no CPU
// slowdown, an initial congestion window of 10 segments, two RTTs for a
// TLS 1.2 handshake, and throughput caps disabled.
func DefaultSettings() Settings {
	return Settings{
		CPUSlowdownMultiplier:   1.0,
		DefaultRTTMs:            100,
		TLSHandshakeRTTs:        2,
		InitialCongestionWindow: 10,
		H2CoalescingEnabled:     true,
	}
}

func (s Settings) normalized() Settings {
	out := s
	if out.CPUSlowdownMultiplier <= 0 {
		out.CPUSlowdownMultiplier = 1
	}
	if out.DefaultRTTMs <= 0 {
		out.DefaultRTTMs = 100
	}
	if out.TLSHandshakeRTTs != 1 && out.TLSHandshakeRTTs != 2 {
		out.TLSHandshakeRTTs = 2
	}
	if out.InitialCongestionWindow <= 0 {
		out.InitialCongestionWindow = 10
	}
	return out
}

func (s Settings) schedulerSettings() scheduler.Settings {
	return scheduler.Settings{
		CPUSlowdownMultiplier: s.CPUSlowdownMultiplier,
		ThroughputDownKbps:    s.ThroughputDownKbps,
		ThroughputUpKbps:      s.ThroughputUpKbps,
		MaxIterations:         s.MaxIterations,
	}
}

func (s Settings) poolSettings() connpool.Settings {
	return connpool.Settings{
		DefaultRTTMs:            s.DefaultRTTMs,
		TLSHandshakeRTTs:        s.TLSHandshakeRTTs,
		InitialCongestionWindow: s.InitialCongestionWindow,
		H2CoalescingEnabled:     s.H2CoalescingEnabled,
	}
}
