package graph

import "sync"

// Pool provides memory pooling for the scratch maps and slices the
// graph's own traversals (Validate, TopoOrder) and the scheduler's
// ready-queue allocate on every simulate() call. Opportunity pricing
// re-simulates a page dozens of times per audit run, so reusing these
// meaningfully cuts GC pressure.
//
// # Thread Safety
//
// Pool is safe for concurrent use from multiple goroutines; each
// Acquire/Release pair should stay within one goroutine.
type Pool struct {
	intMaps  sync.Pool
	idSlices sync.Pool
}

var globalPool = &Pool{
	intMaps:  sync.Pool{New: func() any { return make(map[NodeID]int, 64) }},
	idSlices: sync.Pool{New: func() any { s := make([]NodeID, 0, 64); return &s }},
}

// GetPool returns the global scratch-structure pool.
func GetPool() *Pool { return globalPool }

func (p *Pool) AcquireIntMap() map[NodeID]int { return p.intMaps.Get().(map[NodeID]int) }

func (p *Pool) ReleaseIntMap(m map[NodeID]int) {
	if m == nil {
		return
	}
	clear(m)
	p.intMaps.Put(m)
}

func (p *Pool) AcquireIDSlice() *[]NodeID { return p.idSlices.Get().(*[]NodeID) }

func (p *Pool) ReleaseIDSlice(s *[]NodeID) {
	if s == nil {
		return
	}
	*s = (*s)[:0]
	p.idSlices.Put(s)
}

// Resources tracks a set of pooled scratch structures acquired for a
// single traversal, releasing them all with one deferred call.
//
//	res := graph.NewResources()
//	defer res.Release()
//	indeg := res.IntMap()
type Resources struct {
	pool     *Pool
	intMaps  []map[NodeID]int
	idSlices []*[]NodeID
}

// NewResources creates a Resources container backed by the global pool.
func NewResources() *Resources {
	return &Resources{pool: globalPool}
}

func (r *Resources) IntMap() map[NodeID]int {
	m := r.pool.AcquireIntMap()
	r.intMaps = append(r.intMaps, m)
	return m
}

func (r *Resources) IDSlice() *[]NodeID {
	s := r.pool.AcquireIDSlice()
	r.idSlices = append(r.idSlices, s)
	return s
}

// Release returns every tracked resource to the pool. Safe to call more
// than once.
func (r *Resources) Release() {
	for _, m := range r.intMaps {
		r.pool.ReleaseIntMap(m)
	}
	for _, s := range r.idSlices {
		r.pool.ReleaseIDSlice(s)
	}
	r.intMaps = r.intMaps[:0]
	r.idSlices = r.idSlices[:0]
}
