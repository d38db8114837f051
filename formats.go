package scales

import (
	"encoding/json"
	"io"
)

// Tree returns the subtree rooted at path as nested maps suitable for JSON
// serialization: containers become objects, leaves become their current
// values. Callable gauge sources are evaluated at call time.
func (r *Registry) Tree(path string) (any, error) {
	n, err := r.Lookup(path)
	if err != nil {
		return nil, err
	}
	return jsonValue(n), nil
}

// WriteJSON writes the subtree rooted at path to w as JSON.
func (r *Registry) WriteJSON(w io.Writer, path string) error {
	tree, err := r.Tree(path)
	if err != nil {
		return err
	}
	return json.NewEncoder(w).Encode(tree)
}

// WriteJSON writes a subtree of the default registry to w as JSON.
func WriteJSON(w io.Writer, path string) error {
	return DefaultRegistry().WriteJSON(w, path)
}

func jsonValue(n Node) any {
	switch n := n.(type) {
	case *Container:
		m := make(map[string]any)
		for _, name := range n.childNames() {
			if child := n.child(name); child != nil {
				m[name] = jsonValue(child)
			}
		}
		return m
	case *Counter:
		return n.Value()
	case *Gauge:
		return n.Value()
	case *SumAggregate:
		e := numericEntry(n.path, n.Value())
		return e.Value()
	case *HistogramAggregate:
		return n.Counts()
	case *Distribution:
		s := n.Snapshot()
		m := map[string]any{"count": s.Count}
		if s.Count > 0 {
			m["min"] = s.Min
			m["max"] = s.Max
			m["mean"] = s.Mean
			m["stddev"] = s.StdDev
			m["median"] = s.Median
			m["75percentile"] = s.P75
			m["95percentile"] = s.P95
			m["98percentile"] = s.P98
			m["99percentile"] = s.P99
			m["999percentile"] = s.P999
		}
		return m
	default:
		return nil
	}
}
