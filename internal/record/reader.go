package record

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/arkado/loadsim/pkg/apperror"
	"github.com/arkado/loadsim/pkg/logger"
	"github.com/google/uuid"
	"golang.org/x/net/idna"
)

// Reader turns a raw event stream into an ordered list of Records.
//
// # Thread Safety
//
// A Reader is not safe for concurrent use; create one per Parse call.
type Reader struct {
	records map[string]*Record
	order   []string
	// runID tags log lines emitted while parsing this batch, so
	// warnings from repeated Parse calls (e.g. one per opportunity
	// variant) can be correlated in aggregated logs.
	runID string
}

// NewReader creates an empty Reader.
func NewReader() *Reader {
	return &Reader{records: make(map[string]*Record), runID: uuid.NewString()}
}

// Parse consumes an ordered event stream and returns request records in
// first-seen order of their identifiers. Returns an *apperror.Error with
// CodeMalformedLog (carrying details) if an event references an unknown identifier
// without a preceding will-be-sent, or if a record's timings are not
// monotonic.
func Parse(events []Event) ([]*Record, error) {
	r := NewReader()
	for i, ev := range events {
		if err := r.apply(ev); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeMalformedLog, "failed to apply event").
				WithDetails("index", i).
				WithDetails("method", ev.Method)
		}
	}

	out := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		rec := r.records[id]
		if err := validateMonotonic(rec); err != nil {
			return nil, apperror.Wrap(err, apperror.CodeMalformedLog, "non-monotonic timing").
				WithDetails("requestId", rec.ID)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Reader) apply(ev Event) error {
	switch ev.Method {
	case MethodRequestWillBeSent:
		return r.applyRequestWillBeSent(ev.Params)
	case MethodResponseReceived:
		return r.applyResponseReceived(ev.Params)
	case MethodDataReceived:
		return nil // byte-level progress is not modelled; only loadingFinished totals matter
	case MethodLoadingFinished:
		return r.applyLoadingFinished(ev.Params)
	case MethodLoadingFailed:
		return r.applyLoadingFailed(ev.Params)
	case MethodRequestServedFromCache:
		return r.applyServedFromCache(ev.Params)
	default:
		return nil
	}
}

func (r *Reader) applyRequestWillBeSent(raw json.RawMessage) error {
	var p requestWillBeSentParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", err.Error())
	}

	if existing, ok := r.records[p.RequestID]; ok && p.RedirectStatus != nil {
		// This requestId was redirected: close out the existing record
		// as the redirect source and start a fresh record sharing the
		// id, chained via RedirectSourceID.
		existing.IsRedirected = true
		existing.RedirectStatus = *p.RedirectStatus
		existing.Timing.Finished = p.Timestamp

		next := r.newRecordFromWillBeSent(p)
		next.RedirectSourceID = existing.ID
		syntheticID := p.RequestID + "#" + strconv.Itoa(len(r.order))
		next.ID = syntheticID
		r.records[syntheticID] = next
		r.order = append(r.order, syntheticID)
		// Track the synthetic id under the shared requestId so later
		// events addressed by requestId land on the live leaf record.
		r.records[p.RequestID] = next
		return nil
	}

	if _, ok := r.records[p.RequestID]; ok {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "duplicate requestWillBeSent without redirect").
			WithDetails("requestId", p.RequestID)
	}

	rec := r.newRecordFromWillBeSent(p)
	rec.ID = p.RequestID
	r.records[p.RequestID] = rec
	r.order = append(r.order, p.RequestID)
	return nil
}

func (r *Reader) newRecordFromWillBeSent(p requestWillBeSentParams) *Record {
	origin, err := originOf(p.Request.URL)
	if err != nil {
		logger.WithRun(r.runID).Warn("unparseable request URL, origin left empty", "url", p.Request.URL)
	}

	initiator := Initiator{Type: parseInitiatorType(p.Initiator.Type), URL: p.Initiator.URL}
	if p.Initiator.Stack != nil {
		for _, f := range p.Initiator.Stack.CallFrames {
			initiator.Stack = append(initiator.Stack, f.URL)
		}
	}

	return &Record{
		URL:          p.Request.URL,
		Origin:       origin,
		ResourceType: parseResourceType(p.Type),
		Protocol:     ProtocolH1,
		Initiator:    initiator,
		Priority:     parsePriority(p.Request.Priority),
		Timing:       Timing{RequestSent: p.Timestamp},
		FrameID:      p.FrameID,
		IsRootFrame:  p.IsRootFrame,
	}
}

func (r *Reader) applyResponseReceived(raw json.RawMessage) error {
	var p responseReceivedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", err.Error())
	}

	rec, ok := r.records[p.RequestID]
	if !ok {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "responseReceived for unknown requestId").
			WithDetails("requestId", p.RequestID)
	}

	rec.Protocol = parseProtocol(p.Response.Protocol)
	rec.Timing.DNSStart = p.Response.DNSStart
	rec.Timing.DNSEnd = p.Response.DNSEnd
	rec.Timing.ConnectStart = p.Response.ConnectStart
	rec.Timing.ConnectEnd = p.Response.ConnectEnd
	rec.Timing.TLSStart = p.Response.SSLStart
	rec.Timing.TLSEnd = p.Response.SSLEnd
	rec.Timing.SendEnd = p.Response.SendEnd
	rec.Timing.ResponseHeaders = p.Response.HeadersTimestamp
	if rec.Timing.ResponseHeaders == 0 {
		rec.Timing.ResponseHeaders = p.Timestamp
	}
	if p.Response.FromDiskCache {
		rec.Cache = CacheDisk
	} else if p.Response.FromPrefetch {
		rec.Cache = CachePrefetch
	}
	return nil
}

func (r *Reader) applyLoadingFinished(raw json.RawMessage) error {
	var p loadingFinishedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", err.Error())
	}

	rec, ok := r.records[p.RequestID]
	if !ok {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "loadingFinished for unknown requestId").
			WithDetails("requestId", p.RequestID)
	}

	rec.Timing.Finished = p.Timestamp
	rec.TransferSize = p.EncodedDataLen
	rec.DecodedBodySize = p.DecodedBodySize
	return nil
}

func (r *Reader) applyLoadingFailed(raw json.RawMessage) error {
	var p loadingFailedParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", err.Error())
	}

	rec, ok := r.records[p.RequestID]
	if !ok {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "loadingFailed for unknown requestId").
			WithDetails("requestId", p.RequestID)
	}

	rec.Failed = true
	rec.FailureReason = p.ErrorText
	rec.Timing.Finished = p.Timestamp
	return nil
}

func (r *Reader) applyServedFromCache(raw json.RawMessage) error {
	var p requestServedFromCacheParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", err.Error())
	}

	rec, ok := r.records[p.RequestID]
	if !ok {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "requestServedFromCache for unknown requestId").
			WithDetails("requestId", p.RequestID)
	}

	rec.Cache = CacheMemory
	return nil
}

func validateMonotonic(r *Record) error {
	if r.IsDataLike() {
		return nil
	}
	t := r.Timing
	if t.Finished == 0 {
		return nil // still in flight / never finished (e.g. failed before headers)
	}
	if t.RequestSent > t.ResponseHeaders && t.ResponseHeaders != 0 {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "requestSent after responseHeaders")
	}
	if t.ResponseHeaders > t.Finished && t.ResponseHeaders != 0 {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "responseHeaders after finished")
	}
	if t.RequestSent > t.Finished {
		return apperror.New(apperror.CodeMalformedLog, "network log is malformed").WithDetails("reason", "requestSent after finished")
	}
	return nil
}

func originOf(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", nil
	}
	return u.Scheme + "://" + normalizeHost(u.Host), nil
}

// normalizeHost converts an internationalized hostname to its ASCII
// (punycode) form so that two requests differing only in unicode
// normalization of the same host are grouped under one origin. Falls
// back to the original host on any conversion error (already-ASCII
// hosts pass through unchanged).
func normalizeHost(host string) string {
	hostname, port := host, ""
	if i := strings.LastIndex(host, ":"); i != -1 && !strings.Contains(host[i+1:], "]") {
		hostname, port = host[:i], host[i:]
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(hostname))
	if err != nil {
		return host
	}
	return ascii + port
}

// SortByFirstSeen is a defensive helper kept for callers that
// accumulate records out of order before sorting; Parse itself already
// returns records in first-seen order.
func SortByFirstSeen(recs []*Record) {
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].Timing.RequestSent < recs[j].Timing.RequestSent
	})
}
