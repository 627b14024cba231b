// Package record parses a recorded protocol event stream into request
// records and exposes the plain data types the rest of the engine
// builds on.
package record

import "fmt"

// ResourceType classifies what a request fetched.
type ResourceType int

const (
	ResourceOther ResourceType = iota
	ResourceDocument
	ResourceStylesheet
	ResourceScript
	ResourceImage
	ResourceFont
	ResourceXHR
	ResourceMedia
)

func (r ResourceType) String() string {
	switch r {
	case ResourceDocument:
		return "document"
	case ResourceStylesheet:
		return "stylesheet"
	case ResourceScript:
		return "script"
	case ResourceImage:
		return "image"
	case ResourceFont:
		return "font"
	case ResourceXHR:
		return "xhr"
	case ResourceMedia:
		return "media"
	default:
		return "other"
	}
}

// Protocol names the transport a request used.
type Protocol string

const (
	ProtocolH1   Protocol = "h1"
	ProtocolH2   Protocol = "h2"
	ProtocolH3   Protocol = "h3"
	ProtocolData Protocol = "data"
	ProtocolBlob Protocol = "blob"
	ProtocolWS   Protocol = "ws"
)

// Priority is the scheduling priority the browser assigned a request.
type Priority int

const (
	PriorityVeryLow Priority = iota
	PriorityLow
	PriorityMedium
	PriorityHigh
	PriorityVeryHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityVeryLow:
		return "very_low"
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityVeryHigh:
		return "very_high"
	default:
		return "unknown"
	}
}

// InitiatorType names what caused a request to be issued.
type InitiatorType int

const (
	InitiatorOther InitiatorType = iota
	InitiatorParser
	InitiatorScript
	InitiatorPreload
	InitiatorRedirect
)

func (i InitiatorType) String() string {
	switch i {
	case InitiatorParser:
		return "parser"
	case InitiatorScript:
		return "script"
	case InitiatorPreload:
		return "preload"
	case InitiatorRedirect:
		return "redirect"
	default:
		return "other"
	}
}

// Initiator describes the cause of a request.
type Initiator struct {
	Type InitiatorType
	// URL is the script URL for InitiatorScript, or the parser document
	// URL for InitiatorParser. Empty when Type is InitiatorOther.
	URL string
	// Stack carries the calling script URLs when the browser reports a
	// full call stack instead of a single initiating URL.
	Stack []string
}

// CacheProvenance records where a response body came from.
type CacheProvenance int

const (
	CacheNone CacheProvenance = iota
	CacheMemory
	CacheDisk
	CachePrefetch
)

// Timing holds the timing marks for one record, all in milliseconds
// from an arbitrary but shared origin.
type Timing struct {
	RequestSent     float64
	DNSStart        float64
	DNSEnd          float64
	ConnectStart    float64
	ConnectEnd      float64
	TLSStart        float64
	TLSEnd          float64
	SendEnd         float64
	ResponseHeaders float64
	Finished        float64
}

// HasFreshConnect reports whether this record paid for a new TCP
// connection (as opposed to reusing a warm one).
func (t Timing) HasFreshConnect() bool {
	return t.ConnectEnd > t.ConnectStart
}

// HasTLS reports whether a TLS handshake portion was recorded.
func (t Timing) HasTLS() bool {
	return t.TLSEnd > t.TLSStart
}

// Record is one request's lifecycle as reconstructed from the log.
type Record struct {
	ID              string
	URL             string
	Origin          string
	ResourceType    ResourceType
	Protocol        Protocol
	Initiator       Initiator
	Priority        Priority
	Timing          Timing
	TransferSize    int64
	DecodedBodySize int64
	Failed          bool
	FailureReason   string
	Cache           CacheProvenance
	FrameID         string
	IsRootFrame     bool

	// RedirectSourceID is the ID of the record this one redirected
	// from, if any. Forms a chain; the first record in a chain has
	// RedirectSourceID == "", and every later hop (including the
	// terminal one) points at its predecessor.
	RedirectSourceID string
	// RedirectStatus is the HTTP status of the redirect response that
	// closed out the source record, set on the source record itself.
	RedirectStatus int
	// IsRedirected marks a record that was itself closed out by a
	// subsequent redirect (i.e. it is a source, not a terminal leaf).
	IsRedirected bool
}

// IsDataLike reports whether the record represents an instantaneous
// resource with no network cost: a data/blob URI, or a cache hit.
func (r *Record) IsDataLike() bool {
	return r.Protocol == ProtocolData || r.Protocol == ProtocolBlob || r.Cache != CacheNone
}

// MimeIsDocumentLike reports whether this record's resource type
// participates in HTML/CSS parsing (used by initiator resolution).
func (r *Record) MimeIsDocumentLike() bool {
	return r.ResourceType == ResourceDocument || r.ResourceType == ResourceStylesheet
}

func (r *Record) String() string {
	return fmt.Sprintf("Record{id=%s url=%s type=%s}", r.ID, r.URL, r.ResourceType)
}

// Task is one aggregated main-thread task from the trace.
type Task struct {
	StartTime            float64
	Duration             float64
	InitiatingScriptURLs []string
	EventName            string
}

func (t Task) EndTime() float64 {
	return t.StartTime + t.Duration
}
