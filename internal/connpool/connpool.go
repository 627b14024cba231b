// Package connpool simulates the population of TCP/TLS connections a
// browser would hold open against a page's origins: HTTP/1.1
// concurrency limits, HTTP/2 certificate coalescing, slow-start
// congestion windows, and warm-versus-cold handshake costs.
package connpool

import (
	"errors"
	"math"

	"github.com/arkado/loadsim/internal/analyzer"
)

// MSS is the assumed maximum segment size, in bytes of payload, used to
// convert a congestion window (in segments) into a byte budget per RTT.
const MSS = 1460.0

// MaxH1ConnectionsPerOrigin is the number of concurrent HTTP/1.1
// connections a single origin may hold open.
const MaxH1ConnectionsPerOrigin = 6

// congestionWindowCeiling caps slow-start growth; chosen generously
// (≈1.4 MB per RTT) so it only bites on very large same-origin transfers.
const congestionWindowCeiling = 1000

// ErrNoConnectionAvailable is returned by Acquire when an origin is
// already at its HTTP/1.1 concurrency cap and has no idle connection;
// this is not a failure, it tells the scheduler to retry the request
// once some in-flight request on that origin releases.
var ErrNoConnectionAvailable = errors.New("connpool: no connection available for origin")

// Connection is one simulated TCP (+ optionally TLS, + optionally H2
// multiplexed) connection to an origin.
type Connection struct {
	Origin           string
	IsH2             bool
	CongestionWindow int
	handshakeCharged bool
	Busy             bool
	LastUsed         float64
	// Multiplexed tracks request IDs currently bound to an H2
	// connection; H1 connections carry at most one entry.
	Multiplexed map[string]bool
}

// Warm reports whether this connection has already paid its handshake
// cost (DNS + TCP + TLS) and can be reused without it.
func (c *Connection) Warm() bool {
	return c.handshakeCharged
}

// Request is the subset of a network node's attributes the pool needs
// to decide which connection it should run over.
type Request struct {
	ID     string
	Origin string
	IsH2   bool
}

// Settings carries the subset of simcore.Settings the pool consults.
type Settings struct {
	DefaultRTTMs            float64
	TLSHandshakeRTTs        int // 1 or 2
	InitialCongestionWindow int
	H2CoalescingEnabled     bool
}

// Pool is a stateful collection of simulated connections, scoped to a
// single simulation run. It is never shared across concurrent runs.
type Pool struct {
	settings    Settings
	rttByOrigin map[string]float64

	h1 map[string][]*Connection // origin -> open H1 connections (≤ MaxH1ConnectionsPerOrigin)
	h2 map[string]*Connection   // coalescing key -> the one open H2 connection for that group

	peakInFlight map[string]int // origin -> highest InFlight count observed
}

// New creates a Pool parameterised by per-origin RTT estimates (as
// produced by analyzer.Analyze) and simulation settings.
func New(settings Settings, rttByOrigin map[string]float64) *Pool {
	return &Pool{
		settings:     settings,
		rttByOrigin:  rttByOrigin,
		h1:           make(map[string][]*Connection),
		h2:           make(map[string]*Connection),
		peakInFlight: make(map[string]int),
	}
}

// Acquire binds req to a connection, creating one if needed, and
// reports the earliest simulated time at which that connection is
// ready to start sending bytes. Returns ErrNoConnectionAvailable if
// req.Origin is an HTTP/1.1 origin already at its concurrency cap with
// no idle connection; the caller should leave req in the ready set and
// retry on the next step.
func (p *Pool) Acquire(req Request, now float64) (*Connection, float64, error) {
	if req.IsH2 {
		c := p.acquireH2(req, now)
		p.recordPeak(req.Origin)
		return c, p.readyTime(c, now), nil
	}
	c, ready, err := p.acquireH1(req, now)
	if err == nil {
		p.recordPeak(req.Origin)
	}
	return c, ready, err
}

// recordPeak updates the high-water mark of concurrently in-flight
// connections/streams for origin, used by saturated-origin diagnostics.
func (p *Pool) recordPeak(origin string) {
	if n := p.InFlight(origin); n > p.peakInFlight[origin] {
		p.peakInFlight[origin] = n
	}
}

// PeakInFlight returns the highest number of concurrently in-flight
// connections (H1) or multiplexed streams (H2) ever observed for
// origin during this pool's lifetime.
func (p *Pool) PeakInFlight(origin string) int {
	return p.peakInFlight[origin]
}

func (p *Pool) acquireH1(req Request, now float64) (*Connection, float64, error) {
	conns := p.h1[req.Origin]
	for _, c := range conns {
		if !c.Busy {
			c.Busy = true
			c.Multiplexed = map[string]bool{req.ID: true}
			return c, now, nil // warm reuse: already paid handshake
		}
	}
	if len(conns) >= MaxH1ConnectionsPerOrigin {
		return nil, 0, ErrNoConnectionAvailable
	}

	c := &Connection{
		Origin:           req.Origin,
		CongestionWindow: p.initialCwnd(),
		Busy:             true,
		Multiplexed:      map[string]bool{req.ID: true},
	}
	p.h1[req.Origin] = append(conns, c)
	ready := now + p.handshakeCost(req.Origin)
	c.handshakeCharged = true
	return c, ready, nil
}

func (p *Pool) acquireH2(req Request, now float64) *Connection {
	key := p.coalesceKey(req.Origin)
	if c, ok := p.h2[key]; ok {
		c.Multiplexed[req.ID] = true
		return c
	}
	c := &Connection{
		Origin:           req.Origin,
		IsH2:             true,
		CongestionWindow: p.initialCwnd(),
		Multiplexed:      map[string]bool{req.ID: true},
	}
	p.h2[key] = c
	return c
}

func (p *Pool) readyTime(c *Connection, now float64) float64 {
	if c.handshakeCharged {
		return now
	}
	ready := now + p.handshakeCost(c.Origin)
	c.handshakeCharged = true
	return ready
}

// coalesceKey groups origins presumed to share a TLS certificate. In
// the absence of real certificate SANs, same-registrable-domain origins
// are treated as coalescable when the setting is enabled.
func (p *Pool) coalesceKey(origin string) string {
	if !p.settings.H2CoalescingEnabled {
		return origin
	}
	return analyzer.EffectiveTLDPlusOne(origin)
}

func (p *Pool) initialCwnd() int {
	if p.settings.InitialCongestionWindow > 0 {
		return p.settings.InitialCongestionWindow
	}
	return 10
}

func (p *Pool) rtt(origin string) float64 {
	if v, ok := p.rttByOrigin[origin]; ok {
		return v
	}
	if p.settings.DefaultRTTMs > 0 {
		return p.settings.DefaultRTTMs
	}
	return 100
}

func (p *Pool) handshakeCost(origin string) float64 {
	rtt := p.rtt(origin)
	tlsRTTs := p.settings.TLSHandshakeRTTs
	if tlsRTTs != 1 && tlsRTTs != 2 {
		tlsRTTs = 2
	}
	// 1 RTT DNS + 1 RTT TCP + (1 or 2) RTT TLS.
	return rtt * float64(1+1+tlsRTTs)
}

// Advance charges bytes of transfer against c, applying the slow-start
// congestion window model, and returns the simulated time at which the
// transfer completes. Never returns a time earlier than now.
func (p *Pool) Advance(c *Connection, bytes int64, now float64) float64 {
	if bytes <= 0 {
		return now
	}
	rtt := p.rtt(c.Origin)
	remaining := float64(bytes)
	cwnd := c.CongestionWindow
	if cwnd <= 0 {
		cwnd = p.initialCwnd()
	}
	elapsed := 0.0
	for remaining > 0 {
		capacity := float64(cwnd) * MSS
		sent := math.Min(remaining, capacity)
		remaining -= sent
		elapsed += rtt
		if cwnd < congestionWindowCeiling {
			cwnd *= 2
			if cwnd > congestionWindowCeiling {
				cwnd = congestionWindowCeiling
			}
		}
	}
	c.CongestionWindow = cwnd
	finish := now + elapsed
	c.LastUsed = finish
	return finish
}

// Release marks c idle at now (H1) or removes req.ID from its
// multiplexed set (H2); the underlying connection is never closed, so a
// later Acquire on the same origin can reuse it warm.
func (p *Pool) Release(c *Connection, requestID string, now float64) {
	c.LastUsed = now
	delete(c.Multiplexed, requestID)
	if !c.IsH2 {
		c.Busy = false
	}
}

// InFlight reports the number of connections (H1) or multiplexed
// requests (H2) currently active for origin, used by callers enforcing
// the concurrency-cap testable property. An H2 connection is counted
// under the origin that opened it, including streams coalesced onto it
// from other origins.
func (p *Pool) InFlight(origin string) int {
	n := 0
	for _, c := range p.h1[origin] {
		if c.Busy {
			n++
		}
	}
	for _, c := range p.h2 {
		if c.Origin == origin {
			n += len(c.Multiplexed)
		}
	}
	return n
}
