package graph

import (
	"sync"

	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/apperror"
)

// Graph is a rooted DAG of network and CPU nodes. The root is always
// the main-document network node.
//
// # Thread Safety
//
// Graph is safe for concurrent reads from multiple simulation runs.
// Mutation (AddNetworkNode, AddCPUNode, AddEdge, or reaching through a Node's Record to
// change its transfer size for opportunity pricing) must be confined to
// a single goroutine holding exclusive access; the simulator never
// mutates a graph it is running against.
type Graph struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*Node
	nextID NodeID
	RootID NodeID
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[NodeID]*Node)}
}

// addNode allocates a new node of the given kind and inserts it.
func (g *Graph) addNode(kind NodeKind) *Node {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := g.nextID
	g.nextID++
	n := newNode(id, kind)
	g.nodes[id] = n
	return n
}

// AddNetworkNode allocates and adds a network node wrapping rec,
// returning its assigned ID.
func (g *Graph) AddNetworkNode(rec *record.Record) NodeID {
	n := g.addNode(KindNetwork)
	n.Record = rec
	return n.ID
}

// AddCPUNode allocates and adds a CPU node wrapping task, returning its
// assigned ID.
func (g *Graph) AddCPUNode(task record.Task) NodeID {
	n := g.addNode(KindCPU)
	t := task
	n.Task = &t
	return n.ID
}

// Node returns the node with the given ID, or nil if absent.
func (g *Graph) Node(id NodeID) *Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Nodes returns every node in the graph, in ID order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*Node, 0, len(g.nodes))
	for id := NodeID(0); id < g.nextID; id++ {
		if n, ok := g.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// NodeCount returns the number of nodes in the graph.
func (g *Graph) NodeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// EdgeCount returns the number of dependency edges in the graph.
func (g *Graph) EdgeCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	total := 0
	for _, n := range g.nodes {
		total += len(n.deps)
	}
	return total
}

// AddEdge makes to depend on from (from must finish before to starts).
// If the edge would close a cycle, it is silently redirected to depend
// on root instead, per the builder's cycle-prevention policy (or dropped
// when depending on root would close a cycle too) — this method never
// returns an error for that case; callers that need to know whether a
// redirect happened should check TryAddEdge.
func (g *Graph) AddEdge(from, to NodeID) {
	g.TryAddEdge(from, to)
}

// TryAddEdge adds an edge from->to (to depends on from) and reports
// whether it was added as requested (true) or redirected to depend on
// root because it would have closed a cycle (false). When root itself
// depends on to, no edge is added at all (also reported as false).
// Self-edges and edges to/from unknown nodes are no-ops reported as
// true (nothing to redirect).
func (g *Graph) TryAddEdge(from, to NodeID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if from == to {
		return true
	}
	_, ok := g.nodes[to]
	_, ok2 := g.nodes[from]
	if !ok || !ok2 {
		return true
	}

	if g.reachableLocked(to, from) {
		// Adding from->to would create a path to->...->from->to, a cycle.
		if to != g.RootID && !g.reachableLocked(to, g.RootID) {
			g.linkLocked(g.RootID, to)
		}
		return false
	}

	g.linkLocked(from, to)
	return true
}

func (g *Graph) linkLocked(from, to NodeID) {
	fromNode := g.nodes[from]
	toNode := g.nodes[to]
	if fromNode == nil || toNode == nil || from == to {
		return
	}
	fromNode.dependants[to] = struct{}{}
	toNode.deps[from] = struct{}{}
}

func (g *Graph) reachableLocked(start, target NodeID) bool {
	if start == target {
		return true
	}
	visited := make(map[NodeID]bool)
	stack := []NodeID{start}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		n := g.nodes[cur]
		if n == nil {
			continue
		}
		for dep := range n.dependants {
			if dep == target {
				return true
			}
			stack = append(stack, dep)
		}
	}
	return false
}

// Validate reports structural problems: a missing root, or a cycle.
// BuildGraph is expected to never produce either (cycle prevention runs
// during construction), so this is primarily a defensive check for
// callers who construct a Graph by hand (as tests do).
func (g *Graph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if _, ok := g.nodes[g.RootID]; !ok && len(g.nodes) > 0 {
		return apperror.New(apperror.CodeMissingMainDocument, "graph has no root node")
	}

	res := NewResources()
	defer res.Release()

	indeg := res.IntMap()
	for id, n := range g.nodes {
		indeg[id] = len(n.deps)
	}
	queueSlice := res.IDSlice()
	queue := (*queueSlice)[:0]
	for id, d := range indeg {
		if d == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for dep := range g.nodes[cur].dependants {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(g.nodes) {
		return apperror.New(apperror.CodeGraphCycle, "graph contains a cycle")
	}
	return nil
}

// TopoOrder returns node IDs in a deterministic topological order
// (Kahn's algorithm, ties broken by ID).
func (g *Graph) TopoOrder() []NodeID {
	g.mu.RLock()
	defer g.mu.RUnlock()

	res := NewResources()
	defer res.Release()

	indeg := res.IntMap()
	for id, n := range g.nodes {
		indeg[id] = len(n.deps)
	}

	readySlice := res.IDSlice()
	ready := (*readySlice)[:0]
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	// next is reused across every iteration of the loop below; only
	// ready itself is replaced each round, since mergeSorted always
	// returns a freshly allocated slice.
	nextSlice := res.IDSlice()

	out := make([]NodeID, 0, len(g.nodes))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		out = append(out, cur)

		next := (*nextSlice)[:0]
		for dep := range g.nodes[cur].dependants {
			indeg[dep]--
			if indeg[dep] == 0 {
				next = append(next, dep)
			}
		}
		sortIDs(next)
		ready = mergeSorted(ready, next)
	}
	return out
}

func sortIDs(ids []NodeID) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

func mergeSorted(a, b []NodeID) []NodeID {
	out := make([]NodeID, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
