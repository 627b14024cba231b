package record

import (
	"encoding/json"
	"testing"

	"github.com/arkado/loadsim/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(method string, params any) Event {
	raw, err := json.Marshal(params)
	if err != nil {
		panic(err)
	}
	return Event{Method: method, Params: raw}
}

func TestParseSingleDocument(t *testing.T) {
	events := []Event{
		ev(MethodRequestWillBeSent, map[string]any{
			"requestId": "1",
			"frameId":   "f1",
			"request":   map[string]any{"url": "https://example.com/", "initialPriority": "VeryHigh"},
			"initiator": map[string]any{"type": "other"},
			"type":      "Document",
			"timestamp": 0.0,
			"isRootFrame": true,
		}),
		ev(MethodResponseReceived, map[string]any{
			"requestId": "1",
			"response":  map[string]any{"protocol": "h1", "connectStart": 0.0, "connectEnd": 50.0, "headersTimestamp": 200.0},
			"timestamp": 200.0,
		}),
		ev(MethodLoadingFinished, map[string]any{
			"requestId":         "1",
			"timestamp":         250.0,
			"encodedDataLength": 10000,
			"decodedBodySize":   10000,
		}),
	}

	recs, err := Parse(events)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "https://example.com/", recs[0].URL)
	assert.Equal(t, ResourceDocument, recs[0].ResourceType)
	assert.Equal(t, float64(250), recs[0].Timing.Finished)
	assert.True(t, recs[0].IsRootFrame)
}

func TestParseUnknownRequestIDFails(t *testing.T) {
	events := []Event{
		ev(MethodResponseReceived, map[string]any{
			"requestId": "ghost",
			"response":  map[string]any{},
			"timestamp": 10.0,
		}),
	}

	_, err := Parse(events)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeMalformedLog, apperror.Code(err))
}

func TestParseNonMonotonicTimingFails(t *testing.T) {
	events := []Event{
		ev(MethodRequestWillBeSent, map[string]any{
			"requestId": "1",
			"request":   map[string]any{"url": "https://example.com/a", "initialPriority": "Medium"},
			"initiator": map[string]any{"type": "other"},
			"type":      "Script",
			"timestamp": 500.0,
		}),
		ev(MethodLoadingFinished, map[string]any{
			"requestId":         "1",
			"timestamp":         100.0, // before requestSent: non-monotonic
			"encodedDataLength": 10,
			"decodedBodySize":   10,
		}),
	}

	_, err := Parse(events)
	require.Error(t, err)
	assert.Equal(t, apperror.CodeMalformedLog, apperror.Code(err))
}

func TestParseRedirectChainProducesTwoRecords(t *testing.T) {
	status := 302
	events := []Event{
		ev(MethodRequestWillBeSent, map[string]any{
			"requestId": "1",
			"request":   map[string]any{"url": "https://example.com/old", "initialPriority": "VeryHigh"},
			"initiator": map[string]any{"type": "other"},
			"type":      "Document",
			"timestamp": 0.0,
		}),
		ev(MethodRequestWillBeSent, map[string]any{
			"requestId":      "1",
			"request":        map[string]any{"url": "https://example.com/new", "initialPriority": "VeryHigh"},
			"initiator":      map[string]any{"type": "redirect"},
			"type":           "Document",
			"timestamp":      40.0,
			"redirectStatus": &status,
		}),
		ev(MethodLoadingFinished, map[string]any{
			"requestId":         "1",
			"timestamp":         200.0,
			"encodedDataLength": 500,
			"decodedBodySize":   500,
		}),
	}

	recs, err := Parse(events)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.True(t, recs[0].IsRedirected)
	assert.Equal(t, 302, recs[0].RedirectStatus)
	assert.Equal(t, recs[0].ID, recs[1].RedirectSourceID)
	assert.Equal(t, "https://example.com/new", recs[1].URL)
}

func TestParseCacheHit(t *testing.T) {
	events := []Event{
		ev(MethodRequestWillBeSent, map[string]any{
			"requestId": "1",
			"request":   map[string]any{"url": "https://example.com/img.png", "initialPriority": "Low"},
			"initiator": map[string]any{"type": "parser"},
			"type":      "Image",
			"timestamp": 10.0,
		}),
		ev(MethodRequestServedFromCache, map[string]any{"requestId": "1"}),
		ev(MethodLoadingFinished, map[string]any{
			"requestId":         "1",
			"timestamp":         10.0,
			"encodedDataLength": 0,
			"decodedBodySize":   2000,
		}),
	}

	recs, err := Parse(events)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, CacheMemory, recs[0].Cache)
	assert.True(t, recs[0].IsDataLike())
}
