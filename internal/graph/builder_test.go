package graph

import (
	"testing"

	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFailsWithoutDocument(t *testing.T) {
	recs := []*record.Record{
		{ID: "1", URL: "https://a.com/x.js", ResourceType: record.ResourceScript},
	}
	_, err := Build(recs, nil, "https://a.com/")
	require.Error(t, err)
	assert.Equal(t, apperror.CodeMissingMainDocument, apperror.Code(err))
}

func TestBuildDocumentPlusStylesheet(t *testing.T) {
	doc := &record.Record{
		ID: "1", URL: "https://a.com/", Origin: "https://a.com", ResourceType: record.ResourceDocument,
		FrameID: "f", IsRootFrame: true, Priority: record.PriorityVeryHigh,
		Timing: record.Timing{RequestSent: 0, Finished: 200},
	}
	css := &record.Record{
		ID: "2", URL: "https://a.com/style.css", Origin: "https://a.com", ResourceType: record.ResourceStylesheet,
		FrameID: "f", Priority: record.PriorityVeryHigh,
		Initiator: record.Initiator{Type: record.InitiatorParser},
		Timing:    record.Timing{RequestSent: 210, Finished: 310},
	}

	g, err := Build([]*record.Record{doc, css}, nil, "https://a.com/")
	require.NoError(t, err)

	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, 1, g.EdgeCount())

	cssNode := findNodeByURL(g, "https://a.com/style.css")
	require.NotNil(t, cssNode)
	assert.Contains(t, cssNode.Dependencies(), g.RootID)

	chain := g.CriticalChain()
	assert.Len(t, chain, 2)
}

func TestBuildRedirectChainLinksHops(t *testing.T) {
	hop1 := &record.Record{ID: "1", URL: "https://a.com/old", ResourceType: record.ResourceDocument, IsRootFrame: true, IsRedirected: true}
	hop2 := &record.Record{ID: "1#1", URL: "https://a.com/new", ResourceType: record.ResourceDocument, IsRootFrame: true, RedirectSourceID: "1"}

	g, err := Build([]*record.Record{hop1, hop2}, nil, "https://a.com/new")
	require.NoError(t, err)

	newNode := findNodeByURL(g, "https://a.com/new")
	require.NotNil(t, newNode)
	oldNode := findNodeByURL(g, "https://a.com/old")
	require.NotNil(t, oldNode)
	assert.Contains(t, newNode.Dependencies(), oldNode.ID)
}

func TestBuildProducesAcyclicGraph(t *testing.T) {
	doc := &record.Record{ID: "1", URL: "https://a.com/", ResourceType: record.ResourceDocument, IsRootFrame: true}
	script := &record.Record{
		ID: "2", URL: "https://a.com/a.js", ResourceType: record.ResourceScript,
		Initiator: record.Initiator{Type: record.InitiatorParser},
	}
	g, err := Build([]*record.Record{doc, script}, nil, "https://a.com/")
	require.NoError(t, err)
	assert.NoError(t, g.Validate())
}

func findNodeByURL(g *Graph, url string) *Node {
	for _, n := range g.Nodes() {
		if n.Record != nil && n.Record.URL == url {
			return n
		}
	}
	return nil
}
