package scheduler

import (
	"sync"

	"github.com/arkado/loadsim/internal/connpool"
	"github.com/arkado/loadsim/internal/graph"
)

// scratch holds the per-run bookkeeping maps Simulate needs, sized by
// node ID. Pooling these avoids a fresh set of allocations on every
// call when a caller runs many simulations back to back against graphs
// of similar size — a baseline plus one opportunity-pricing variant per
// audited resource is the common case (see internal/perf.ComputeSavings).
type scratch struct {
	inDegree  map[graph.NodeID]int
	completed map[graph.NodeID]bool
	boundConn map[graph.NodeID]*connpool.Connection
}

var scratchPool = sync.Pool{
	New: func() any {
		return &scratch{
			inDegree:  make(map[graph.NodeID]int, 64),
			completed: make(map[graph.NodeID]bool, 64),
			boundConn: make(map[graph.NodeID]*connpool.Connection, 64),
		}
	},
}

// acquireScratch obtains a cleared scratch value from the pool.
func acquireScratch() *scratch {
	return scratchPool.Get().(*scratch)
}

// releaseScratch clears and returns s to the pool. Safe to call on a
// value whose maps were populated during a run; everything is cleared
// before reuse.
func releaseScratch(s *scratch) {
	clear(s.inDegree)
	clear(s.completed)
	clear(s.boundConn)
	scratchPool.Put(s)
}
