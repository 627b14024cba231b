package graph

import "github.com/arkado/loadsim/internal/record"

// LabelCritical walks the graph in topological order and sets Critical
// on every node on the critical rendering chain: the root document, any
// High/VeryHigh priority request, or a render-blocking resource type
// (stylesheet, script, font) — but only when the node is the root or
// inherits criticality through at least one critical predecessor.
func (g *Graph) LabelCritical() {
	order := g.TopoOrder()
	for _, id := range order {
		n := g.Node(id)
		if n == nil {
			continue
		}
		n.Critical = g.computeCritical(n)
	}
}

func (g *Graph) computeCritical(n *Node) bool {
	if !isCriticalCandidate(n, n.ID == g.RootID) {
		return false
	}
	if n.ID == g.RootID {
		return true
	}
	for dep := range n.deps {
		pred := g.nodes[dep]
		if pred != nil && pred.Critical {
			return true
		}
	}
	return false
}

func isCriticalCandidate(n *Node, isRoot bool) bool {
	if isRoot {
		return true
	}
	if n.Kind != KindNetwork || n.Record == nil {
		return false
	}
	if n.Record.Priority == record.PriorityHigh || n.Record.Priority == record.PriorityVeryHigh {
		return true
	}
	switch n.Record.ResourceType {
	case record.ResourceStylesheet, record.ResourceScript, record.ResourceFont:
		return true
	default:
		return false
	}
}

// CriticalChain returns the IDs of every critical node, in topological
// order, as required by the simcore.criticalChain() interface.
func (g *Graph) CriticalChain() []NodeID {
	order := g.TopoOrder()
	out := make([]NodeID, 0, len(order))
	for _, id := range order {
		if n := g.Node(id); n != nil && n.Critical {
			out = append(out, id)
		}
	}
	return out
}
