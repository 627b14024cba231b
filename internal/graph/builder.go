package graph

import (
	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/apperror"
	"github.com/arkado/loadsim/pkg/logger"
)

// minCPUTaskDurationMs is the minimum main-thread task duration that
// earns its own CPU node; shorter tasks are dropped and contribute no
// cost to the graph.
const minCPUTaskDurationMs = 1.0

// Build reconstructs the request graph from a parsed record list and a
// main-thread task trace. rootURL identifies the main document; if
// empty, the first root-frame Document record is used.
//
// Returns apperror.ErrMissingMainDocument if no Document record can
// serve as the root.
func Build(records []*record.Record, tasks []*record.Task, rootURL string) (*Graph, error) {
	g := New()

	byRecordIndex := make(map[*record.Record]NodeID, len(records))
	for _, rec := range records {
		id := g.AddNetworkNode(rec)
		byRecordIndex[rec] = id
	}

	rootID, ok := findRoot(records, byRecordIndex, rootURL)
	if !ok {
		return nil, apperror.ErrMissingMainDocument
	}
	g.RootID = rootID

	linkRedirectChains(g, records, byRecordIndex)

	cpuNodes := make([]NodeID, 0, len(tasks))
	for _, task := range tasks {
		if task.Duration < minCPUTaskDurationMs {
			continue
		}
		cpuNodes = append(cpuNodes, g.AddCPUNode(*task))
	}

	linkInitiatorEdges(g, records, byRecordIndex, rootID)
	linkCPUEdges(g, records, byRecordIndex, cpuNodes, rootID)

	g.LabelCritical()

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

func findRoot(records []*record.Record, index map[*record.Record]NodeID, rootURL string) (NodeID, bool) {
	for _, rec := range records {
		if rec.ResourceType != record.ResourceDocument {
			continue
		}
		if rootURL != "" && rec.URL == rootURL {
			return index[rec], true
		}
	}
	for _, rec := range records {
		if rec.ResourceType == record.ResourceDocument && rec.IsRootFrame {
			return index[rec], true
		}
	}
	for _, rec := range records {
		if rec.ResourceType == record.ResourceDocument {
			return index[rec], true
		}
	}
	return 0, false
}

func linkRedirectChains(g *Graph, records []*record.Record, index map[*record.Record]NodeID) {
	byID := make(map[string]*record.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}
	for _, rec := range records {
		if rec.RedirectSourceID == "" {
			continue
		}
		src, ok := byID[rec.RedirectSourceID]
		if !ok {
			continue
		}
		g.AddEdge(index[src], index[rec])
	}
}

// linkInitiatorEdges resolves each network node's initiator to a
// predecessor, per the builder's initiator-chaining contract.
func linkInitiatorEdges(g *Graph, records []*record.Record, index map[*record.Record]NodeID, rootID NodeID) {
	for _, rec := range records {
		nodeID := index[rec]
		if nodeID == rootID {
			continue
		}
		if rec.RedirectSourceID != "" {
			continue // already chained to its redirect predecessor
		}

		predecessor, ok := resolveInitiator(records, index, rec)
		if !ok {
			predecessor = rootID
		}
		g.AddEdge(predecessor, nodeID)
	}
}

func resolveInitiator(records []*record.Record, index map[*record.Record]NodeID, rec *record.Record) (NodeID, bool) {
	switch rec.Initiator.Type {
	case record.InitiatorScript:
		if id, ok := findOwningScriptRecord(records, index, rec); ok {
			return id, true
		}
		return findParserPredecessor(records, index, rec)
	case record.InitiatorParser, record.InitiatorPreload, record.InitiatorRedirect:
		return findParserPredecessor(records, index, rec)
	default:
		return findParserPredecessor(records, index, rec)
	}
}

func findOwningScriptRecord(records []*record.Record, index map[*record.Record]NodeID, rec *record.Record) (NodeID, bool) {
	if rec.Initiator.URL == "" {
		return 0, false
	}
	for _, candidate := range records {
		if candidate.URL == rec.Initiator.URL && candidate.ResourceType == record.ResourceScript {
			return index[candidate], true
		}
	}
	return 0, false
}

// findParserPredecessor finds the most recent network node in the same
// frame whose resource type is HTML/CSS-like and whose finish time
// precedes rec's send time.
func findParserPredecessor(records []*record.Record, index map[*record.Record]NodeID, rec *record.Record) (NodeID, bool) {
	var best *record.Record
	for _, candidate := range records {
		if candidate == rec {
			continue
		}
		if candidate.FrameID != rec.FrameID {
			continue
		}
		if !candidate.MimeIsDocumentLike() {
			continue
		}
		if candidate.Timing.Finished > rec.Timing.RequestSent {
			continue
		}
		if best == nil || candidate.Timing.Finished > best.Timing.Finished {
			best = candidate
		}
	}
	if best == nil {
		return 0, false
	}
	return index[best], true
}

// linkCPUEdges wires CPU nodes to the network nodes they gate and the
// network nodes that gate them, per the builder's CPU-edge contract.
func linkCPUEdges(g *Graph, records []*record.Record, index map[*record.Record]NodeID, cpuNodes []NodeID, rootID NodeID) {
	for _, cpuID := range cpuNodes {
		cpuNode := g.Node(cpuID)
		task := cpuNode.Task

		initiated := make([]NodeID, 0)
		for _, rec := range records {
			if rec.Initiator.Type != record.InitiatorScript {
				continue
			}
			if !containsURL(task.InitiatingScriptURLs, rec.Initiator.URL) {
				continue
			}
			if rec.Timing.RequestSent < task.StartTime {
				continue
			}
			initiated = append(initiated, index[rec])
		}

		if len(initiated) == 0 {
			if task.StartTime > 0 {
				g.AddEdge(rootID, cpuID)
			}
			continue
		}

		for _, rec := range records {
			if rec.Timing.Finished > 0 && rec.Timing.Finished <= task.StartTime {
				g.AddEdge(index[rec], cpuID)
			}
		}
		for _, netID := range initiated {
			g.AddEdge(cpuID, netID)
		}
	}
}

func containsURL(urls []string, u string) bool {
	if u == "" {
		return false
	}
	for _, candidate := range urls {
		if candidate == u {
			return true
		}
	}
	return false
}

// Traverse visits every node reachable from the root depth-first along
// dependant edges, each node once, calling visit with the node and the
// path of node IDs first taken to reach it (the path starts with the
// root and ends with the node itself).
func (g *Graph) Traverse(visit func(n *Node, path []NodeID)) {
	var path []NodeID
	visited := make(map[NodeID]bool)

	var walk func(id NodeID)
	walk = func(id NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		n := g.Node(id)
		if n == nil {
			return
		}
		path = append(path, id)
		visit(n, append([]NodeID(nil), path...))
		for _, dep := range n.Dependants() {
			walk(dep)
		}
		path = path[:len(path)-1]
	}

	walk(g.RootID)

	// Cover nodes unreachable from root defensively (should not occur
	// in a well-formed graph, but Traverse should still be total).
	for _, n := range g.Nodes() {
		if !visited[n.ID] {
			logger.Debug("traverse: node unreachable from root", "node_id", n.ID)
			visit(n, nil)
		}
	}
}
