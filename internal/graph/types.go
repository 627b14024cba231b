// Package graph builds and represents the request graph: a rooted DAG
// of network and CPU nodes with typed dependency edges, as consumed by
// the scheduler.
package graph

import (
	"fmt"

	"github.com/arkado/loadsim/internal/record"
)

// NodeID identifies a node within a single Graph instance. IDs are
// assigned sequentially at build time and are never reused, so a map
// keyed by NodeID is a cheap and deterministic way to reference nodes.
type NodeID int64

// NodeKind tags which variant of the Node union is populated. Replaces
// dynamic dispatch on node type with an exhaustive switch at every call
// site that cares.
type NodeKind int

const (
	KindNetwork NodeKind = iota
	KindCPU
)

func (k NodeKind) String() string {
	if k == KindCPU {
		return "cpu"
	}
	return "network"
}

// Node is a vertex in the request graph: either a network request or an
// aggregated main-thread task. Nodes are owned by a single Graph for
// their entire life; dependency/dependant sets are mutated only by the
// Graph that owns the node.
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Record is populated when Kind == KindNetwork, nil otherwise.
	Record *record.Record
	// Task is populated when Kind == KindCPU, nil otherwise.
	Task *record.Task

	// Critical marks a node on the critical rendering chain (see
	// Graph.LabelCritical).
	Critical bool

	deps       map[NodeID]struct{} // incoming: must complete before this node
	dependants map[NodeID]struct{} // outgoing: depend on this node
}

func newNode(id NodeID, kind NodeKind) *Node {
	return &Node{
		ID:         id,
		Kind:       kind,
		deps:       make(map[NodeID]struct{}),
		dependants: make(map[NodeID]struct{}),
	}
}

// Dependencies returns the IDs of nodes that must finish before n can
// start, in no particular order.
func (n *Node) Dependencies() []NodeID {
	return keys(n.deps)
}

// Dependants returns the IDs of nodes that depend on n, in no
// particular order.
func (n *Node) Dependants() []NodeID {
	return keys(n.dependants)
}

// IsInstantaneous reports whether n has zero network cost: a cache hit
// or a data/blob URI network node.
func (n *Node) IsInstantaneous() bool {
	return n.Kind == KindNetwork && n.Record != nil && n.Record.IsDataLike()
}

func (n *Node) String() string {
	if n.Kind == KindCPU {
		return fmt.Sprintf("Node{id=%d kind=cpu dur=%.0fms}", n.ID, n.Task.Duration)
	}
	url := ""
	if n.Record != nil {
		url = n.Record.URL
	}
	return fmt.Sprintf("Node{id=%d kind=network url=%s}", n.ID, url)
}

func keys(m map[NodeID]struct{}) []NodeID {
	out := make([]NodeID, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
