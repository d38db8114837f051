package scales

import (
	"math"
	"strconv"
)

// A Kind identifies the value variant carried by an Entry.
type Kind uint32

const (
	KindInt = Kind(iota + 1)
	KindFloat
	KindString
	KindHistogram
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "Int"
	case KindFloat:
		return "Float"
	case KindString:
		return "String"
	case KindHistogram:
		return "Histogram"
	default:
		return "Kind(" + strconv.FormatUint(uint64(k), 10) + ")"
	}
}

// An Entry is one leaf value produced by enumeration. Exactly one of Int,
// Float, Str and Histogram is meaningful, selected by Kind.
type Entry struct {
	Path string
	Kind Kind

	Int       int64
	Float     float64
	Str       string
	Histogram map[string]int64
}

// Value returns the entry's value as an any.
func (e Entry) Value() any {
	switch e.Kind {
	case KindInt:
		return e.Int
	case KindFloat:
		return e.Float
	case KindString:
		return e.Str
	case KindHistogram:
		return e.Histogram
	default:
		return nil
	}
}

// Numeric returns the entry's value as a float64 if it carries one.
func (e Entry) Numeric() (float64, bool) {
	switch e.Kind {
	case KindInt:
		return float64(e.Int), true
	case KindFloat:
		return e.Float, true
	default:
		return 0, false
	}
}

// Each walks the subtree rooted at path depth-first, calling fn for every
// leaf value until fn returns false. The walk is lazy and restartable:
// each call re-reads the current tree. There is no global freeze, so
// concurrent writers may be observed mid-pass on other branches, but every
// individual entry is internally consistent. Fails with a *NotFoundError
// if path does not resolve.
func (r *Registry) Each(path string, fn func(Entry) bool) error {
	n, err := r.Lookup(path)
	if err != nil {
		return err
	}
	walk(n, fn)
	return nil
}

// Entries returns a depth-first snapshot of the subtree rooted at path.
func (r *Registry) Entries(path string) ([]Entry, error) {
	var out []Entry
	err := r.Each(path, func(e Entry) bool {
		out = append(out, e)
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func walk(n Node, fn func(Entry) bool) bool {
	switch n := n.(type) {
	case *Container:
		for _, name := range n.childNames() {
			if child := n.child(name); child != nil {
				if !walk(child, fn) {
					return false
				}
			}
		}
	case *Counter:
		return fn(Entry{Path: n.path, Kind: KindInt, Int: n.Value()})
	case *Gauge:
		return fn(valueEntry(n.path, n.Value()))
	case *SumAggregate:
		return fn(numericEntry(n.path, n.Value()))
	case *HistogramAggregate:
		return fn(Entry{Path: n.path, Kind: KindHistogram, Histogram: n.Counts()})
	case *Distribution:
		return walkDistribution(n, fn)
	}
	return true
}

// walkDistribution expands a distribution into scalar sub-entries so that
// flat consumers (the Graphite pusher in particular) see plain numeric
// leaves. An empty distribution reports only its count.
func walkDistribution(d *Distribution, fn func(Entry) bool) bool {
	s := d.Snapshot()
	if !fn(Entry{Path: d.path + "/count", Kind: KindInt, Int: s.Count}) {
		return false
	}
	if s.Count == 0 {
		return true
	}
	for _, sub := range []struct {
		name  string
		value float64
	}{
		{"min", s.Min},
		{"max", s.Max},
		{"mean", s.Mean},
		{"stddev", s.StdDev},
		{"median", s.Median},
		{"75percentile", s.P75},
		{"95percentile", s.P95},
		{"98percentile", s.P98},
		{"99percentile", s.P99},
		{"999percentile", s.P999},
	} {
		if !fn(Entry{Path: d.path + "/" + sub.name, Kind: KindFloat, Float: sub.value}) {
			return false
		}
	}
	return true
}

// valueEntry classifies an arbitrary gauge value.
func valueEntry(path string, v any) Entry {
	switch v := v.(type) {
	case nil:
		return Entry{Path: path, Kind: KindString, Str: ""}
	case string:
		return Entry{Path: path, Kind: KindString, Str: v}
	default:
		if f, ok := toFloat64(v); ok {
			return numericEntry(path, f)
		}
		key, _ := histogramKey(v)
		return Entry{Path: path, Kind: KindString, Str: key}
	}
}

// numericEntry reports integral values as ints. Formatting and collector
// behavior both prefer integers for whole values.
func numericEntry(path string, f float64) Entry {
	const maxExact = 1 << 53
	if math.Trunc(f) == f && math.Abs(f) <= maxExact {
		return Entry{Path: path, Kind: KindInt, Int: int64(f)}
	}
	return Entry{Path: path, Kind: KindFloat, Float: f}
}
