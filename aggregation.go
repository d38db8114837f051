package scales

import (
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
)

// A SumAggregate reports the arithmetic sum of the current values of all
// live same-named leaves below it. Child updates adjust the total by their
// delta; there is no rescan.
type SumAggregate struct {
	leafNode
	bits atomic.Uint64 // float64 bits
}

// Value returns the aggregate's current total.
func (s *SumAggregate) Value() float64 {
	return math.Float64frombits(s.bits.Load())
}

func (s *SumAggregate) add(delta float64) {
	for {
		old := s.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if s.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// A HistogramAggregate maintains a mapping from observed value to the
// number of live same-named child gauges currently holding that value.
type HistogramAggregate struct {
	leafNode
	mu     sync.Mutex
	counts map[string]int64
}

// Counts returns a copy of the current value-to-count mapping.
func (h *HistogramAggregate) Counts() map[string]int64 {
	h.mu.Lock()
	out := make(map[string]int64, len(h.counts))
	for k, v := range h.counts {
		out[k] = v
	}
	h.mu.Unlock()
	return out
}

// transition moves one child's contribution from old to next. Entries
// that reach zero are removed.
func (h *HistogramAggregate) transition(old string, hadOld bool, next string, hasNext bool) {
	h.mu.Lock()
	if hadOld {
		h.counts[old]--
		if h.counts[old] <= 0 {
			delete(h.counts, old)
		}
	}
	if hasNext {
		h.counts[next]++
	}
	h.mu.Unlock()
}

// An edge subscribes one child leaf to an ancestor aggregate. It tracks
// the child's last contribution so updates and removal are O(1). Exactly
// one of sum and hist is set.
type edge struct {
	sum  *SumAggregate
	hist *HistogramAggregate

	mu      sync.Mutex
	removed bool
	total   float64 // contribution applied to sum so far
	key     string  // current histogram key
	hasKey  bool
}

func (e *edge) aggPath() string {
	if e.sum != nil {
		return e.sum.path
	}
	return e.hist.path
}

func (e *edge) addDelta(d float64) {
	e.mu.Lock()
	if !e.removed && e.sum != nil {
		e.total += d
		e.sum.add(d)
	}
	e.mu.Unlock()
}

func (e *edge) setValue(v any) {
	e.mu.Lock()
	if e.removed {
		e.mu.Unlock()
		return
	}
	switch {
	case e.sum != nil:
		if f, ok := toFloat64(v); ok {
			e.sum.add(f - e.total)
			e.total = f
		}
	case e.hist != nil:
		old, had := e.key, e.hasKey
		key, ok := histogramKey(v)
		e.key, e.hasKey = key, ok
		e.hist.transition(old, had, key, ok)
	}
	e.mu.Unlock()
}

// detach permanently removes the edge's contribution. Updates arriving
// after detach are dropped rather than resurrecting the edge.
func (e *edge) detach() {
	e.mu.Lock()
	if !e.removed {
		e.removed = true
		if e.sum != nil && e.total != 0 {
			e.sum.add(-e.total)
		}
		if e.hist != nil && e.hasKey {
			e.hist.transition(e.key, true, "", false)
		}
	}
	e.mu.Unlock()
}

// bindLeaf links a freshly registered leaf to the nearest same-named
// ancestor aggregate, if any. The walk stops at the first ancestor that
// has any leaf with the name; a non-aggregate shadows aggregates above it.
func (r *Registry) bindLeaf(parent *Container, name string, slot *atomic.Pointer[edge]) {
	for p := parent.parent; p != nil; p = p.parent {
		n := p.child(name)
		if n == nil {
			continue
		}
		var e *edge
		switch agg := n.(type) {
		case *SumAggregate:
			e = &edge{sum: agg}
		case *HistogramAggregate:
			e = &edge{hist: agg}
		default:
			return
		}
		slot.Store(e)
		r.edgeMu.Lock()
		r.edges[e.aggPath()] = append(r.edges[e.aggPath()], e)
		r.edgeMu.Unlock()
		return
	}
}

// unwind detaches aggregation edges for every leaf in the removed subtree
// and drops edge index entries for removed aggregates.
func (r *Registry) unwind(n Node) {
	switch n := n.(type) {
	case *Counter:
		r.dropEdge(n.edge.Swap(nil))
	case *Gauge:
		r.dropEdge(n.edge.Swap(nil))
	case *SumAggregate:
		r.removeAggregate(n.path)
	case *HistogramAggregate:
		r.removeAggregate(n.path)
	case *Container:
		n.mu.Lock()
		children := make([]Node, 0, len(n.children))
		for _, child := range n.children {
			children = append(children, child)
		}
		n.mu.Unlock()
		for _, child := range children {
			r.unwind(child)
		}
	}
}

func (r *Registry) dropEdge(e *edge) {
	if e == nil {
		return
	}
	e.detach()
	path := e.aggPath()
	r.edgeMu.Lock()
	live := r.edges[path][:0]
	for _, other := range r.edges[path] {
		if other != e {
			live = append(live, other)
		}
	}
	if len(live) == 0 {
		delete(r.edges, path)
	} else {
		r.edges[path] = live
	}
	r.edgeMu.Unlock()
}

// removeAggregate severs all edges targeting a removed aggregate so that
// late child updates become no-ops.
func (r *Registry) removeAggregate(path string) {
	r.edgeMu.Lock()
	edges := r.edges[path]
	delete(r.edges, path)
	r.edgeMu.Unlock()
	for _, e := range edges {
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
}

func toFloat64(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

// histogramKey maps a child value to its histogram bucket. Nil means the
// child holds no value.
func histogramKey(v any) (string, bool) {
	switch v := v.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return fmt.Sprint(v), true
	}
}
