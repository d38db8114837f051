package scales

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/goscales/goscales/internal/sample"
)

type leafNode struct {
	name string
	path string
}

func (l *leafNode) Path() string { return l.path }

func (l *leafNode) isNode() {}

// A Counter is an integer stat updated by deltas. Increments are atomic
// and commute: the final value is the sum of all applied deltas regardless
// of interleaving.
type Counter struct {
	leafNode
	value int64
	edge  atomic.Pointer[edge]
}

// Add increments the counter by delta.
func (c *Counter) Add(delta int64) {
	atomic.AddInt64(&c.value, delta)
	if e := c.edge.Load(); e != nil {
		e.addDelta(float64(delta))
	}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() { c.Add(1) }

// Value returns the counter's current value.
func (c *Counter) Value() int64 { return atomic.LoadInt64(&c.value) }

func (c *Counter) String() string { return strconv.FormatInt(c.Value(), 10) }

// A ValueSource supplies a Gauge's current value.
type ValueSource interface {
	Value() any
}

type constantValue struct{ v any }

func (c constantValue) Value() any { return c.v }

// ConstantValue returns a ValueSource that always reads v.
func ConstantValue(v any) ValueSource { return constantValue{v: v} }

// A CallableValue is a ValueSource computed on every read.
type CallableValue func() any

// Value calls the function.
func (f CallableValue) Value() any { return f() }

// sourceVal wraps a ValueSource so atomic.Value always stores one concrete
// type.
type sourceVal struct{ src ValueSource }

// A Gauge reports a current value supplied by a pluggable source. It holds
// no state beyond the source reference.
type Gauge struct {
	leafNode
	src  atomic.Value // sourceVal
	edge atomic.Pointer[edge]
}

// Value reads the gauge's current value from its source.
func (g *Gauge) Value() any {
	return g.src.Load().(sourceVal).src.Value()
}

// Set replaces the gauge's source with the constant v and propagates the
// transition to any bound ancestor aggregate.
func (g *Gauge) Set(v any) {
	g.src.Store(sourceVal{constantValue{v: v}})
	if e := g.edge.Load(); e != nil {
		e.setValue(v)
	}
}

// SetSource replaces the gauge's source. Unlike Set this does not feed
// aggregates: a swapped source has no discrete old-to-new transition to
// propagate.
func (g *Gauge) SetSource(src ValueSource) {
	if src == nil {
		src = ConstantValue(nil)
	}
	g.src.Store(sourceVal{src})
}

// A Distribution records a stream of observations and reports count, mean,
// standard deviation and percentiles in bounded memory. Mean and standard
// deviation are exact over the full stream; percentiles come from a
// uniform reservoir.
type Distribution struct {
	leafNode
	est *sample.Estimator
}

func newDistribution(name, path string) *Distribution {
	return &Distribution{
		leafNode: leafNode{name: name, path: path},
		est:      sample.New(),
	}
}

// Observe records one observation.
func (d *Distribution) Observe(v float64) { d.est.Observe(v) }

// AddDuration records a duration in milliseconds.
func (d *Distribution) AddDuration(dur time.Duration) {
	d.Observe(float64(dur) / float64(time.Millisecond))
}

// Count returns the number of observations.
func (d *Distribution) Count() int64 { return d.est.Count() }

// Mean returns the exact mean, or sample.ErrNoData if empty.
func (d *Distribution) Mean() (float64, error) { return d.est.Mean() }

// StdDev returns the exact population standard deviation, or
// sample.ErrNoData if empty.
func (d *Distribution) StdDev() (float64, error) { return d.est.StdDev() }

// Percentile returns the p-th percentile of the retained sample. p must be
// in [0, 100].
func (d *Distribution) Percentile(p float64) (float64, error) {
	return d.est.Percentile(p)
}

// Snapshot returns a consistent point-in-time summary.
func (d *Distribution) Snapshot() sample.Snapshot { return d.est.Snapshot() }

// Start begins a timing span that records its elapsed wall time into the
// distribution, in milliseconds, when completed. Use with defer so the
// sample is recorded however the guarded block exits:
//
//	defer d.Start().Complete()
func (d *Distribution) Start() *Span {
	return &Span{dist: d, start: time.Now()}
}

// Time measures fn's elapsed wall time into the distribution. The duration
// is recorded even if fn panics.
func (d *Distribution) Time(fn func()) {
	defer d.Start().Complete()
	fn()
}

// A Span measures a span of wall time into a Distribution.
type Span struct {
	dist  *Distribution
	start time.Time
}

// Complete ends the span, records the elapsed time and returns it.
func (s *Span) Complete() time.Duration {
	d := time.Since(s.start)
	s.dist.AddDuration(d)
	return d
}

// CompleteWithDuration ends the span recording the given duration instead
// of the measured one.
func (s *Span) CompleteWithDuration(d time.Duration) {
	s.dist.AddDuration(d)
}
