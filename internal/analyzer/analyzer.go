// Package analyzer provides pure statistical functions over a list of
// request records: RTT and server-response-time estimation per origin,
// redirect resolution, and main-resource lookup.
package analyzer

import (
	"net/url"
	"sort"

	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/apperror"
	"golang.org/x/net/publicsuffix"
)

// DefaultRTTFloorMs is the minimum RTT estimate the analyzer will ever
// report for an origin with a fresh-connect sample.
const DefaultRTTFloorMs = 10.0

// Analysis holds the per-origin estimates the connection pool and
// scheduler consume when the caller does not pass explicit settings.
type Analysis struct {
	RTTByOrigin        map[string]float64
	ServerTimeByOrigin map[string]float64
	siteMedianRTT      float64
}

// Analyze computes RTT and server-response-time estimates for every
// origin present in records, falling back to a site-wide median RTT for
// origins with no fresh-connect sample and recording a CodeUnknownOrigin
// warning for each such origin (never a hard failure).
func Analyze(records []*record.Record, defaultRTT float64) (*Analysis, *apperror.ValidationErrors) {
	warnings := apperror.NewValidationErrors()

	rttSamples := make(map[string][]float64)
	for _, r := range records {
		if r.IsDataLike() || r.Origin == "" {
			continue
		}
		if !r.Timing.HasFreshConnect() {
			continue
		}
		connectMs := r.Timing.ConnectEnd - r.Timing.ConnectStart
		if r.Timing.HasTLS() {
			connectMs -= r.Timing.TLSEnd - r.Timing.TLSStart
		}
		if connectMs < 0 {
			connectMs = 0
		}
		rttSamples[r.Origin] = append(rttSamples[r.Origin], connectMs)
	}

	rttByOrigin := make(map[string]float64, len(rttSamples))
	allSamples := make([]float64, 0)
	for origin, samples := range rttSamples {
		m := minOf(samples)
		if m < DefaultRTTFloorMs {
			m = DefaultRTTFloorMs
		}
		rttByOrigin[origin] = m
		allSamples = append(allSamples, samples...)
	}

	siteMedian := defaultRTT
	if len(allSamples) > 0 {
		siteMedian = median(allSamples)
		if siteMedian < DefaultRTTFloorMs {
			siteMedian = DefaultRTTFloorMs
		}
	}

	origins := distinctOrigins(records)
	for _, origin := range origins {
		if _, ok := rttByOrigin[origin]; !ok {
			rttByOrigin[origin] = siteMedian
			warnings.Add(apperror.NewWarning(apperror.CodeUnknownOrigin, "no fresh-connect RTT sample for origin").
				WithDetails("origin", origin))
		}
	}

	serverTimeSamples := make(map[string][]float64)
	for _, r := range records {
		if r.IsDataLike() || r.Origin == "" {
			continue
		}
		rtt := rttByOrigin[r.Origin]
		st := r.Timing.ResponseHeaders - r.Timing.RequestSent - rtt
		if st < 0 {
			st = 0
		}
		serverTimeSamples[r.Origin] = append(serverTimeSamples[r.Origin], st)
	}

	serverTimeByOrigin := make(map[string]float64, len(serverTimeSamples))
	for origin, samples := range serverTimeSamples {
		serverTimeByOrigin[origin] = median(samples)
	}

	return &Analysis{
		RTTByOrigin:        rttByOrigin,
		ServerTimeByOrigin: serverTimeByOrigin,
		siteMedianRTT:      siteMedian,
	}, warnings
}

// RTT returns the origin's estimated round-trip time, or the site
// median if origin is unknown (should not happen after Analyze, since
// every origin seen is already in the map, but callers may query an
// origin never observed in the input).
func (a *Analysis) RTT(origin string) float64 {
	if v, ok := a.RTTByOrigin[origin]; ok {
		return v
	}
	return a.siteMedianRTT
}

// ServerTime returns the origin's estimated server response time,
// defaulting to zero for an origin with no samples.
func (a *Analysis) ServerTime(origin string) float64 {
	return a.ServerTimeByOrigin[origin]
}

// ResolveRedirects follows redirect-destination links from r to its
// terminal record. recordsByID must map every record's ID to itself.
func ResolveRedirects(r *record.Record, recordsByID map[string]*record.Record) *record.Record {
	cur := r
	seen := make(map[string]bool)
	for cur.IsRedirected {
		if seen[cur.ID] {
			break // defensive: malformed chain should have been rejected by the reader
		}
		seen[cur.ID] = true
		next := findRedirectTarget(cur, recordsByID)
		if next == nil {
			break
		}
		cur = next
	}
	return cur
}

func findRedirectTarget(src *record.Record, recordsByID map[string]*record.Record) *record.Record {
	for _, r := range recordsByID {
		if r.RedirectSourceID == src.ID {
			return r
		}
	}
	return nil
}

// FindResourceForURL returns the first record whose URL exactly matches
// url; if none exists, falls back to the first Document record (the
// landing page's error document, for a failed main navigation).
func FindResourceForURL(records []*record.Record, url string) *record.Record {
	for _, r := range records {
		if r.URL == url {
			return r
		}
	}
	for _, r := range records {
		if r.ResourceType == record.ResourceDocument {
			return r
		}
	}
	return nil
}

// EffectiveTLDPlusOne returns the registrable domain (eTLD+1) of an
// origin string ("https://host[:port]"), or the bare host if public
// suffix resolution fails (IP literals, single-label hosts). Used by
// the connection pool to decide whether two origins plausibly share a
// certificate for HTTP/2 coalescing purposes (§4.4).
func EffectiveTLDPlusOne(origin string) string {
	host := origin
	if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return etld1
}

// SameSite reports whether two origins share a registrable domain, the
// proxy this analyzer uses for "shares an IP certificate" when no
// explicit certificate metadata is available.
func SameSite(originA, originB string) bool {
	return EffectiveTLDPlusOne(originA) == EffectiveTLDPlusOne(originB)
}

func distinctOrigins(records []*record.Record) []string {
	seen := make(map[string]bool)
	out := make([]string, 0)
	for _, r := range records {
		if r.Origin == "" || r.IsDataLike() || seen[r.Origin] {
			continue
		}
		seen[r.Origin] = true
		out = append(out, r.Origin)
	}
	sort.Strings(out)
	return out
}

func minOf(vals []float64) float64 {
	m := vals[0]
	for _, v := range vals[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func median(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
