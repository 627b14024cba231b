package scheduler

import (
	"testing"

	"github.com/arkado/loadsim/internal/analyzer"
	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/graph"
	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPool(recs []*record.Record) (*analyzer.Analysis, *connpool.Pool) {
	a, _ := analyzer.Analyze(recs, 50)
	p := connpool.New(connpool.Settings{
		DefaultRTTMs: 50, TLSHandshakeRTTs: 1, InitialCongestionWindow: 10, H2CoalescingEnabled: true,
	}, a.RTTByOrigin)
	return a, p
}

func TestSimulateSingleDocumentCostModel(t *testing.T) {
	rec := &record.Record{
		ID: "1", URL: "https://a.com/", Origin: "https://a.com",
		ResourceType: record.ResourceDocument, Protocol: record.ProtocolH1,
		TransferSize: 10000,
	}
	g := graph.New()
	id := g.AddNetworkNode(rec)
	g.RootID = id

	analysis, pool := testPool([]*record.Record{rec})
	result, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	// Handshake: (DNS+TCP+1 TLS RTT) * 50ms = 150ms; server time 0 (no
	// observed headers timing); transfer fits in a single RTT (10000 <
	// 10*1460) = 50ms. Total 200ms.
	timing := result.NodeTimings[id]
	assert.InDelta(t, 150, timing.Start, 0.001)
	assert.InDelta(t, 200, timing.End, 0.001)
	assert.InDelta(t, 200, result.TimeInMs, 0.001)
}

func TestSimulateCSSStartsAfterDocumentDependency(t *testing.T) {
	doc := &record.Record{ID: "1", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument, TransferSize: 5000}
	css := &record.Record{ID: "2", URL: "https://a.com/s.css", Origin: "https://a.com", ResourceType: record.ResourceStylesheet, TransferSize: 1000}

	g := graph.New()
	docID := g.AddNetworkNode(doc)
	cssID := g.AddNetworkNode(css)
	g.RootID = docID
	g.AddEdge(docID, cssID)
	g.LabelCritical()

	analysis, pool := testPool([]*record.Record{doc, css})
	result, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, result.NodeTimings[cssID].Start, result.NodeTimings[docID].End)
}

func TestSimulateCPUNodesRunSequentially(t *testing.T) {
	g := graph.New()
	root := g.AddNetworkNode(&record.Record{ID: "doc", ResourceType: record.ResourceDocument, Origin: "https://a.com"})
	g.RootID = root

	t1 := g.AddCPUNode(record.Task{StartTime: 0, Duration: 100})
	t2 := g.AddCPUNode(record.Task{StartTime: 0, Duration: 50})
	g.AddEdge(root, t1)
	g.AddEdge(root, t2)

	analysis, pool := testPool(nil)
	result, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	// The main thread has exactly one slot: the two tasks cannot overlap.
	t1Timing, t2Timing := result.NodeTimings[t1], result.NodeTimings[t2]
	overlap := t1Timing.Start < t2Timing.End && t2Timing.Start < t1Timing.End
	assert.False(t, overlap, "CPU tasks must not overlap: %+v / %+v", t1Timing, t2Timing)
}

func TestSimulateCPUSlowdownMultiplierScalesDuration(t *testing.T) {
	g := graph.New()
	root := g.AddNetworkNode(&record.Record{ID: "doc", ResourceType: record.ResourceDocument, Origin: "https://a.com"})
	g.RootID = root
	task := g.AddCPUNode(record.Task{StartTime: 0, Duration: 100})
	g.AddEdge(root, task)

	analysis, pool := testPool(nil)
	result, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 4})
	require.NoError(t, err)

	timing := result.NodeTimings[task]
	assert.InDelta(t, 400, timing.End-timing.Start, 0.001)
}

func TestSimulateCacheHitIsInstantaneous(t *testing.T) {
	doc := &record.Record{ID: "1", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument, TransferSize: 5000}
	img := &record.Record{ID: "2", URL: "https://a.com/x.png", Origin: "https://a.com", ResourceType: record.ResourceImage, Cache: record.CacheMemory}

	g := graph.New()
	docID := g.AddNetworkNode(doc)
	imgID := g.AddNetworkNode(img)
	g.RootID = docID
	g.AddEdge(docID, imgID)

	analysis, pool := testPool([]*record.Record{doc, img})
	result, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	imgTiming := result.NodeTimings[imgID]
	assert.Equal(t, result.NodeTimings[docID].End, imgTiming.Start)
	assert.Equal(t, imgTiming.Start, imgTiming.End, "cache hit must have zero wall-clock cost")
}

func TestSimulateH1ConcurrencyCapStaggersTheSeventhRequest(t *testing.T) {
	g := graph.New()
	doc := &record.Record{ID: "doc", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument}
	docID := g.AddNetworkNode(doc)
	g.RootID = docID

	recs := []*record.Record{doc}
	var childIDs []graph.NodeID
	for i := 0; i < 7; i++ {
		rec := &record.Record{
			ID: "img" + string(rune('a'+i)), URL: "https://a.com/img.png", Origin: "https://a.com",
			ResourceType: record.ResourceImage, TransferSize: 200000,
			Initiator: record.Initiator{Type: record.InitiatorParser},
		}
		recs = append(recs, rec)
		id := g.AddNetworkNode(rec)
		g.AddEdge(docID, id)
		childIDs = append(childIDs, id)
	}

	analysis, pool := testPool(recs)
	result, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	starts := make(map[float64]int)
	for _, id := range childIDs {
		starts[result.NodeTimings[id].Start]++
	}
	assert.Less(t, len(starts), 7, "seven same-origin H1 requests should not all start simultaneously")
}

func TestSimulateNonPositiveMaxIterationsFallsBackToPackageDefault(t *testing.T) {
	g := graph.New()
	root := g.AddNetworkNode(&record.Record{ID: "doc", ResourceType: record.ResourceDocument, Origin: "https://a.com"})
	g.RootID = root

	analysis, pool := testPool(nil)
	_, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1, MaxIterations: -1})
	require.NoError(t, err)
}

func TestSimulateIsDeterministic(t *testing.T) {
	doc := &record.Record{ID: "1", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument, TransferSize: 5000}
	css := &record.Record{ID: "2", URL: "https://a.com/s.css", Origin: "https://a.com", ResourceType: record.ResourceStylesheet, TransferSize: 1000}

	build := func() (*graph.Graph, graph.NodeID, graph.NodeID) {
		g := graph.New()
		docID := g.AddNetworkNode(doc)
		cssID := g.AddNetworkNode(css)
		g.RootID = docID
		g.AddEdge(docID, cssID)
		return g, docID, cssID
	}

	g1, doc1, css1 := build()
	analysis, _ := analyzer.Analyze([]*record.Record{doc, css}, 50)
	pool1 := connpool.New(connpool.Settings{DefaultRTTMs: 50, TLSHandshakeRTTs: 1, InitialCongestionWindow: 10}, analysis.RTTByOrigin)
	result1, err := Simulate(g1, analysis, pool1, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	g2, doc2, css2 := build()
	pool2 := connpool.New(connpool.Settings{DefaultRTTMs: 50, TLSHandshakeRTTs: 1, InitialCongestionWindow: 10}, analysis.RTTByOrigin)
	result2, err := Simulate(g2, analysis, pool2, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	assert.Equal(t, result1.NodeTimings[doc1], result2.NodeTimings[doc2])
	assert.Equal(t, result1.NodeTimings[css1], result2.NodeTimings[css2])
	assert.Equal(t, result1.TimeInMs, result2.TimeInMs)
}

func TestSimulateThrottleCapInflatesTransferTime(t *testing.T) {
	rec := &record.Record{ID: "1", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument, TransferSize: 1000000}
	g := graph.New()
	id := g.AddNetworkNode(rec)
	g.RootID = id

	analysis, pool := testPool([]*record.Record{rec})
	uncapped, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1})
	require.NoError(t, err)

	g2 := graph.New()
	id2 := g2.AddNetworkNode(&record.Record{ID: "1", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument, TransferSize: 1000000})
	g2.RootID = id2
	_, pool2 := testPool([]*record.Record{rec})
	capped, err := Simulate(g2, analysis, pool2, Settings{CPUSlowdownMultiplier: 1, ThroughputDownKbps: 100})
	require.NoError(t, err)

	assert.Greater(t, capped.NodeTimings[id2].End, uncapped.NodeTimings[id].End)
}

func TestSimulateReturnsBudgetExceededCodeWhenIterationCapIsHit(t *testing.T) {
	// A chain of 51 CPU tasks behind the root needs one iteration per
	// node; MaxIterations is pinned far below that node count.
	g := graph.New()
	root := g.AddNetworkNode(&record.Record{ID: "doc", ResourceType: record.ResourceDocument, Origin: "https://a.com"})
	g.RootID = root
	prev := g.AddCPUNode(record.Task{StartTime: 0, Duration: 1})
	g.AddEdge(root, prev)
	for i := 0; i < 50; i++ {
		next := g.AddCPUNode(record.Task{StartTime: float64(i + 1), Duration: 1})
		g.AddEdge(prev, next)
		prev = next
	}

	analysis, pool := testPool(nil)
	_, err := Simulate(g, analysis, pool, Settings{CPUSlowdownMultiplier: 1, MaxIterations: 5})
	require.Error(t, err)
	assert.Equal(t, apperror.CodeSimulationBudgetExceeded, apperror.Code(err))
}
