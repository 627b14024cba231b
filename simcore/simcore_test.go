package simcore

import (
	"context"
	"testing"

	"github.com/arkado/loadsim/internal/record"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func samplePage() []*record.Record {
	doc := &record.Record{
		ID: "1", URL: "https://a.com/", Origin: "https://a.com",
		ResourceType: record.ResourceDocument, IsRootFrame: true, FrameID: "f1",
		TransferSize: 5000,
		Timing:       record.Timing{RequestSent: 0, ConnectStart: 0, ConnectEnd: 50, Finished: 100},
	}
	css := &record.Record{
		ID: "2", URL: "https://a.com/s.css", Origin: "https://a.com",
		ResourceType: record.ResourceStylesheet, FrameID: "f1",
		Initiator:    record.Initiator{Type: record.InitiatorParser},
		TransferSize: 40000,
		Timing:       record.Timing{RequestSent: 100, Finished: 200},
	}
	img := &record.Record{
		ID: "3", URL: "https://a.com/hero.png", Origin: "https://a.com",
		ResourceType: record.ResourceImage, FrameID: "f1",
		Initiator:    record.Initiator{Type: record.InitiatorParser},
		TransferSize: 200000,
		Timing:       record.Timing{RequestSent: 150, Finished: 400},
	}
	return []*record.Record{doc, css, img}
}

func TestBuildGraphSimulateAndCriticalChainEndToEnd(t *testing.T) {
	ctx := context.Background()
	records := samplePage()

	g, err := BuildGraph(ctx, records, nil, "https://a.com/")
	require.NoError(t, err)
	assert.Equal(t, 3, g.NodeCount())

	chain := CriticalChain(g)
	assert.NotEmpty(t, chain)
	assert.Equal(t, g.RootID, chain[0])

	result, err := Simulate(ctx, g, DefaultSettings(), NodeID(2))
	require.NoError(t, err)
	assert.Greater(t, result.TimeInMs, 0.0)
	assert.GreaterOrEqual(t, result.LCPMs, result.FCPMs)
	assert.NotEmpty(t, result.RunID)
	assert.Len(t, result.NodeTimings, 3)
}

func TestComputeSavingsShrinkingHeroImageReducesLCP(t *testing.T) {
	ctx := context.Background()
	g, err := BuildGraph(ctx, samplePage(), nil, "https://a.com/")
	require.NoError(t, err)

	savings, err := ComputeSavings(ctx, g, DefaultSettings(), map[string]int64{
		"https://a.com/hero.png": 150000,
	}, MetricLCP, NodeID(2))
	require.NoError(t, err)

	assert.GreaterOrEqual(t, savings.WastedMs, 0.0)
	assert.Equal(t, int64(200000), g.Node(NodeID(2)).Record.TransferSize)
}

func TestDiagnoseReportsGraphShape(t *testing.T) {
	ctx := context.Background()
	g, err := BuildGraph(ctx, samplePage(), nil, "https://a.com/")
	require.NoError(t, err)

	stats, err := Diagnose(ctx, g, DefaultSettings())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.NodeCount)
	assert.GreaterOrEqual(t, stats.CriticalCount, 1)
}

func TestDefaultSettingsMatchesDocumentedDefaults(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, 1.0, s.CPUSlowdownMultiplier)
	assert.Equal(t, 100.0, s.DefaultRTTMs)
	assert.Equal(t, 2, s.TLSHandshakeRTTs)
	assert.Equal(t, 10, s.InitialCongestionWindow)
	assert.True(t, s.H2CoalescingEnabled)
}
