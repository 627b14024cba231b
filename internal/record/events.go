package record

import "encoding/json"

// Event method names the reader recognises. Anything else is ignored.
const (
	MethodRequestWillBeSent       = "Network.requestWillBeSent"
	MethodResponseReceived        = "Network.responseReceived"
	MethodDataReceived            = "Network.dataReceived"
	MethodLoadingFinished         = "Network.loadingFinished"
	MethodLoadingFailed           = "Network.loadingFailed"
	MethodRequestServedFromCache  = "Network.requestServedFromCache"
)

// Event is one entry in the recorded protocol log: a method name plus
// its raw parameters, matching the `{ method, params }` shape of a
// devtools-style protocol trace.
type Event struct {
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

// requestWillBeSentParams is the subset of Network.requestWillBeSent
// this reader consumes.
type requestWillBeSentParams struct {
	RequestID string `json:"requestId"`
	FrameID   string `json:"frameId"`
	Request   struct {
		URL      string `json:"url"`
		Priority string `json:"initialPriority"`
	} `json:"request"`
	Initiator struct {
		Type  string `json:"type"`
		URL   string `json:"url"`
		Stack *struct {
			CallFrames []struct {
				URL string `json:"url"`
			} `json:"callFrames"`
		} `json:"stack"`
	} `json:"initiator"`
	Type           string   `json:"type"`
	Timestamp      float64  `json:"timestamp"`
	RedirectStatus *int     `json:"redirectStatus,omitempty"`
	IsRootFrame    bool     `json:"isRootFrame"`
}

type responseReceivedParams struct {
	RequestID string `json:"requestId"`
	Response  struct {
		Protocol         string  `json:"protocol"`
		ConnectStart     float64 `json:"connectStart"`
		ConnectEnd       float64 `json:"connectEnd"`
		SSLStart         float64 `json:"sslStart"`
		SSLEnd           float64 `json:"sslEnd"`
		DNSStart         float64 `json:"dnsStart"`
		DNSEnd           float64 `json:"dnsEnd"`
		SendEnd          float64 `json:"sendEnd"`
		HeadersTimestamp float64 `json:"headersTimestamp"`
		FromDiskCache    bool    `json:"fromDiskCache"`
		FromPrefetch     bool    `json:"fromPrefetchCache"`
	} `json:"response"`
	Timestamp float64 `json:"timestamp"`
}

type loadingFinishedParams struct {
	RequestID       string  `json:"requestId"`
	Timestamp       float64 `json:"timestamp"`
	EncodedDataLen  int64   `json:"encodedDataLength"`
	DecodedBodySize int64   `json:"decodedBodySize"`
}

type loadingFailedParams struct {
	RequestID    string  `json:"requestId"`
	Timestamp    float64 `json:"timestamp"`
	ErrorText    string  `json:"errorText"`
}

type requestServedFromCacheParams struct {
	RequestID string `json:"requestId"`
}

func parsePriority(s string) Priority {
	switch s {
	case "VeryLow":
		return PriorityVeryLow
	case "Low":
		return PriorityLow
	case "Medium":
		return PriorityMedium
	case "High":
		return PriorityHigh
	case "VeryHigh":
		return PriorityVeryHigh
	default:
		return PriorityMedium
	}
}

func parseResourceType(s string) ResourceType {
	switch s {
	case "Document":
		return ResourceDocument
	case "Stylesheet":
		return ResourceStylesheet
	case "Script":
		return ResourceScript
	case "Image":
		return ResourceImage
	case "Font":
		return ResourceFont
	case "XHR", "Fetch":
		return ResourceXHR
	case "Media":
		return ResourceMedia
	default:
		return ResourceOther
	}
}

func parseInitiatorType(s string) InitiatorType {
	switch s {
	case "parser":
		return InitiatorParser
	case "script":
		return InitiatorScript
	case "preload":
		return InitiatorPreload
	case "redirect":
		return InitiatorRedirect
	default:
		return InitiatorOther
	}
}

func parseProtocol(s string) Protocol {
	switch s {
	case "h2", "http/2", "http/2+quic":
		return ProtocolH2
	case "h3", "http/3":
		return ProtocolH3
	case "data":
		return ProtocolData
	case "blob":
		return ProtocolBlob
	case "ws", "websocket":
		return ProtocolWS
	default:
		return ProtocolH1
	}
}
