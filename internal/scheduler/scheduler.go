// Package scheduler walks a request graph as a discrete-event simulation:
// a single logical clock, a min-heap of finish events, and a step
// function that assigns ready nodes to connections or the CPU slot
// until every node has a timing.
package scheduler

import (
	"container/heap"
	"sort"
	"strconv"

	"github.com/arkado/loadsim/internal/analyzer"
	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/graph"
	"github.com/arkado/loadsim/internal/record"
	"github.com/arkado/loadsim/pkg/apperror"
	"github.com/arkado/loadsim/pkg/logger"
	"github.com/google/uuid"
)

// NodeTiming is a node's simulated start/end time, in milliseconds from
// the graph's shared time origin.
type NodeTiming struct {
	Start float64
	End   float64
}

// Result is the full output of one Simulate call.
type Result struct {
	NodeTimings  map[graph.NodeID]NodeTiming
	TimeInMs     float64
	Iterations   int
	ReadySetPeak int
	// RunID tags every log line this run emitted, so repeated runs
	// against the same graph (a baseline plus N opportunity variants)
	// can be told apart in aggregated logs.
	RunID string
}

// Settings carries the subset of simcore.Settings the step function
// consults directly (connection behaviour lives in the connpool.Pool
// passed alongside).
type Settings struct {
	CPUSlowdownMultiplier float64
	ThroughputDownKbps    float64 // 0 disables the cap
	ThroughputUpKbps      float64
	MaxIterations         int
}

// defaultMaxIterations bounds the step loop when the caller leaves
// MaxIterations at zero; generous relative to any realistic page graph.
const defaultMaxIterations = 200000

type event struct {
	finishTime float64
	node       graph.NodeID
	index      int
}

// eventQueue is a min-heap keyed by (finishTime, nodeID), grounded on
// the same container/heap priority-queue shape used elsewhere in this
// codebase for deterministic tie-breaking.
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].finishTime != q[j].finishTime {
		return q[i].finishTime < q[j].finishTime
	}
	return q[i].node < q[j].node
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *eventQueue) Push(x any) {
	item := x.(*event)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}

// Simulate walks g to completion and returns every node's simulated
// start/end time. analysis supplies per-origin RTT/server-time
// estimates; pool is a fresh connection pool scoped to this run.
//
// Returns an *apperror.Error with CodeSimulationBudgetExceeded if the
// step loop exceeds settings.MaxIterations (or the package default, if
// unset), and one with CodeGraphCycle if some nodes can never become
// ready.
func Simulate(g *graph.Graph, analysis *analyzer.Analysis, pool *connpool.Pool, settings Settings) (*Result, error) {
	if settings.CPUSlowdownMultiplier <= 0 {
		settings.CPUSlowdownMultiplier = 1
	}
	maxIter := settings.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	runID := uuid.NewString()
	runLog := logger.WithRun(runID)

	nodes := g.Nodes()
	total := len(nodes)

	scratch := acquireScratch()
	defer releaseScratch(scratch)

	inDegree := scratch.inDegree
	completed := scratch.completed
	boundConn := scratch.boundConn

	readySlice := graph.GetPool().AcquireIDSlice()
	defer graph.GetPool().ReleaseIDSlice(readySlice)
	ready := (*readySlice)[:0]
	for _, n := range nodes {
		d := len(n.Dependencies())
		inDegree[n.ID] = d
		if d == 0 {
			ready = append(ready, n.ID)
		}
	}

	timings := make(map[graph.NodeID]NodeTiming, total)

	evq := &eventQueue{}
	heap.Init(evq)

	cpuBusy := false
	now := 0.0
	iterations := 0
	readySetPeak := 0

	for len(completed) < total {
		iterations++
		if iterations > maxIter {
			return nil, apperror.New(apperror.CodeSimulationBudgetExceeded, "scheduler exceeded its iteration budget").
				WithDetails("max_iterations", maxIter).
				WithDetails("completed", len(completed)).
				WithDetails("total", total)
		}

		if len(ready) > readySetPeak {
			readySetPeak = len(ready)
		}
		sortReady(g, ready)

		stillBlocked := ready[:0:0]
		for _, id := range ready {
			n := g.Node(id)
			if !admit(n, now, analysis, pool, settings, &cpuBusy, boundConn, timings, evq) {
				stillBlocked = append(stillBlocked, id)
			}
		}
		ready = stillBlocked

		if evq.Len() == 0 {
			if len(ready) == 0 {
				if len(completed) < total {
					for _, n := range nodes {
						if !completed[n.ID] {
							return nil, apperror.New(apperror.CodeGraphCycle, "scheduler found nodes that can never become ready: graph contains a cycle").
								WithDetails("node_id", n.ID)
						}
					}
				}
				break
			}
			// Every remaining ready node is blocked on a connection slot
			// with nothing in flight to eventually release it: a
			// well-formed graph with a nonzero concurrency cap cannot
			// reach this state.
			return nil, apperror.New(apperror.CodeInternal, "scheduler deadlocked: ready nodes but no in-flight work").
				WithDetails("blocked", len(ready))
		}

		ev := heap.Pop(evq).(*event)
		now = ev.finishTime
		completed[ev.node] = true

		n := g.Node(ev.node)
		switch n.Kind {
		case graph.KindCPU:
			cpuBusy = false
		case graph.KindNetwork:
			if conn, ok := boundConn[ev.node]; ok {
				pool.Release(conn, nodeKey(ev.node), now)
				delete(boundConn, ev.node)
			}
		}

		for _, depID := range n.Dependants() {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				ready = append(ready, depID)
			}
		}

		runLog.Debug("scheduler: node finished", "node_id", ev.node, "finish_ms", now)
	}

	timeInMs := 0.0
	for _, t := range timings {
		if t.End > timeInMs {
			timeInMs = t.End
		}
	}

	return &Result{
		NodeTimings:  timings,
		TimeInMs:     timeInMs,
		Iterations:   iterations,
		ReadySetPeak: readySetPeak,
		RunID:        runID,
	}, nil
}

// admit tries to start node n at or after now, recording its timing and
// pushing a finish event on success. Returns false if n's scheduling
// precondition (a free CPU slot or an available connection) is not
// currently met, leaving n in the ready set for the next pass.
func admit(
	n *graph.Node,
	now float64,
	analysis *analyzer.Analysis,
	pool *connpool.Pool,
	settings Settings,
	cpuBusy *bool,
	boundConn map[graph.NodeID]*connpool.Connection,
	timings map[graph.NodeID]NodeTiming,
	evq *eventQueue,
) bool {
	switch n.Kind {
	case graph.KindCPU:
		if *cpuBusy {
			return false
		}
		start := now
		finish := start + n.Task.Duration*settings.CPUSlowdownMultiplier
		timings[n.ID] = NodeTiming{Start: start, End: finish}
		heap.Push(evq, &event{finishTime: finish, node: n.ID})
		*cpuBusy = true
		return true

	case graph.KindNetwork:
		rec := n.Record
		if rec.IsDataLike() {
			timings[n.ID] = NodeTiming{Start: now, End: now}
			heap.Push(evq, &event{finishTime: now, node: n.ID})
			return true
		}

		isH2 := rec.Protocol == record.ProtocolH2 || rec.Protocol == record.ProtocolH3
		req := connpool.Request{ID: nodeKey(n.ID), Origin: rec.Origin, IsH2: isH2}
		conn, readyAt, err := pool.Acquire(req, now)
		if err != nil {
			return false
		}

		start := readyAt
		serverTime := analysis.ServerTime(rec.Origin)
		bodyStart := start + serverTime
		finish := bodyStart
		if rec.TransferSize > 0 {
			finish = pool.Advance(conn, rec.TransferSize, bodyStart)
			finish = applyThroughputCap(rec.TransferSize, bodyStart, finish, settings.ThroughputDownKbps)
		}

		boundConn[n.ID] = conn
		timings[n.ID] = NodeTiming{Start: start, End: finish}
		heap.Push(evq, &event{finishTime: finish, node: n.ID})
		return true

	default:
		return false
	}
}

// applyThroughputCap inflates a connection-model finish time when a
// global downstream throughput cap would be the binding constraint.
func applyThroughputCap(bytes int64, start, connFinish, downKbps float64) float64 {
	if downKbps <= 0 {
		return connFinish
	}
	capMs := float64(bytes) * 8.0 / downKbps
	capped := start + capMs
	if capped > connFinish {
		return capped
	}
	return connFinish
}

func originalStartTime(n *graph.Node) float64 {
	if n.Kind == graph.KindCPU {
		return n.Task.StartTime
	}
	return n.Record.Timing.RequestSent
}

// sortReady orders the ready set per the scheduler's tie-break rules:
// critical nodes first, then by recorded original start time, then by
// node ID for determinism.
func sortReady(g *graph.Graph, ready []graph.NodeID) {
	sort.SliceStable(ready, func(i, j int) bool {
		ni, nj := g.Node(ready[i]), g.Node(ready[j])
		if ni.Critical != nj.Critical {
			return ni.Critical
		}
		ti, tj := originalStartTime(ni), originalStartTime(nj)
		if ti != tj {
			return ti < tj
		}
		return ready[i] < ready[j]
	})
}

func nodeKey(id graph.NodeID) string {
	return strconv.FormatInt(int64(id), 10)
}
