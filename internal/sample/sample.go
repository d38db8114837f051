// Package sample implements a bounded-memory estimator for streams of
// numeric observations. Moments (count, mean, standard deviation) are exact
// over the full stream; percentiles are approximated from a fixed-size
// uniform reservoir.
package sample

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// DefaultReservoirSize is the number of observations retained for
// percentile queries. Each observation survives with probability
// size/n regardless of stream length.
const DefaultReservoirSize = 1000

// ErrNoData is returned by queries on an estimator that has seen no
// observations.
var ErrNoData = errors.New("sample: no observations")

// An InvalidPercentileError is returned when a percentile query is made
// with an argument outside [0, 100].
type InvalidPercentileError struct {
	Percentile float64
}

func (e *InvalidPercentileError) Error() string {
	return fmt.Sprintf("sample: percentile out of range [0, 100]: %g", e.Percentile)
}

// An Estimator accumulates a stream of float64 observations in bounded
// memory. All methods are safe for concurrent use.
type Estimator struct {
	mu    sync.Mutex
	count int64
	mean  float64
	m2    float64 // running sum of squared deviations (Welford)
	min   float64
	max   float64
	slots []float64
	rnd   *rand.Rand
}

// New returns an Estimator with the default reservoir size.
func New() *Estimator {
	return NewSize(DefaultReservoirSize)
}

// NewSize returns an Estimator retaining at most size observations for
// percentile queries.
func NewSize(size int) *Estimator {
	if size <= 0 {
		size = DefaultReservoirSize
	}
	return &Estimator{
		slots: make([]float64, 0, size),
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Observe records a single observation.
func (e *Estimator) Observe(v float64) {
	e.mu.Lock()
	e.count++
	if e.count == 1 {
		e.min = v
		e.max = v
	} else {
		if v < e.min {
			e.min = v
		}
		if v > e.max {
			e.max = v
		}
	}

	delta := v - e.mean
	e.mean += delta / float64(e.count)
	e.m2 += delta * (v - e.mean)

	if len(e.slots) < cap(e.slots) {
		e.slots = append(e.slots, v)
	} else if j := e.rnd.Int63n(e.count); j < int64(len(e.slots)) {
		e.slots[j] = v
	}
	e.mu.Unlock()
}

// Count returns the number of observations seen so far.
func (e *Estimator) Count() int64 {
	e.mu.Lock()
	n := e.count
	e.mu.Unlock()
	return n
}

// Mean returns the exact arithmetic mean of all observations, or ErrNoData
// if there have been none.
func (e *Estimator) Mean() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count == 0 {
		return 0, ErrNoData
	}
	return e.mean, nil
}

// StdDev returns the exact population standard deviation of all
// observations, or ErrNoData if there have been none.
func (e *Estimator) StdDev() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count == 0 {
		return 0, ErrNoData
	}
	return math.Sqrt(e.m2 / float64(e.count)), nil
}

// Min returns the smallest observation, or ErrNoData.
func (e *Estimator) Min() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count == 0 {
		return 0, ErrNoData
	}
	return e.min, nil
}

// Max returns the largest observation, or ErrNoData.
func (e *Estimator) Max() (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.count == 0 {
		return 0, ErrNoData
	}
	return e.max, nil
}

// Percentile returns the p-th percentile (p in [0, 100]) of the retained
// reservoir. Below the reservoir size this is exact; beyond it, the
// reservoir is a uniform sample of the stream. Returns ErrNoData when
// empty and *InvalidPercentileError when p is out of range.
func (e *Estimator) Percentile(p float64) (float64, error) {
	if p < 0 || p > 100 {
		return 0, &InvalidPercentileError{Percentile: p}
	}
	e.mu.Lock()
	if e.count == 0 {
		e.mu.Unlock()
		return 0, ErrNoData
	}
	vals := make([]float64, len(e.slots))
	copy(vals, e.slots)
	e.mu.Unlock()

	sort.Float64s(vals)
	return indexPercentile(vals, p), nil
}

// indexPercentile selects ceil(p/100 * k) from sorted vals, 1-based and
// clamped to [1, k].
func indexPercentile(vals []float64, p float64) float64 {
	k := len(vals)
	idx := int(math.Ceil(p / 100 * float64(k)))
	if idx < 1 {
		idx = 1
	}
	if idx > k {
		idx = k
	}
	return vals[idx-1]
}

// A Snapshot is a point-in-time summary of an Estimator. All fields are
// derived under a single lock acquisition so they are mutually consistent.
type Snapshot struct {
	Count  int64
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64

	// Percentiles of the current reservoir.
	Median float64
	P75    float64
	P95    float64
	P98    float64
	P99    float64
	P999   float64
}

// Snapshot summarizes the estimator's current state. The zero Snapshot is
// returned when no observations have been made; check Count before using
// the derived fields.
func (e *Estimator) Snapshot() Snapshot {
	e.mu.Lock()
	if e.count == 0 {
		e.mu.Unlock()
		return Snapshot{}
	}
	s := Snapshot{
		Count:  e.count,
		Min:    e.min,
		Max:    e.max,
		Mean:   e.mean,
		StdDev: math.Sqrt(e.m2 / float64(e.count)),
	}
	vals := make([]float64, len(e.slots))
	copy(vals, e.slots)
	e.mu.Unlock()

	sort.Float64s(vals)
	s.Median = indexPercentile(vals, 50)
	s.P75 = indexPercentile(vals, 75)
	s.P95 = indexPercentile(vals, 95)
	s.P98 = indexPercentile(vals, 98)
	s.P99 = indexPercentile(vals, 99)
	s.P999 = indexPercentile(vals, 99.9)
	return s
}
