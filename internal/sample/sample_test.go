package sample

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBasicStats(t *testing.T) {
	e := New()
	for _, v := range []float64{1, 2, 3, 4, 5} {
		e.Observe(v)
	}

	require.EqualValues(t, 5, e.Count())

	mean, err := e.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 3.0, mean, 1e-12)

	stddev, err := e.StdDev()
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt(2), stddev, 1e-12)

	median, err := e.Percentile(50)
	require.NoError(t, err)
	assert.Equal(t, 3.0, median)

	min, err := e.Min()
	require.NoError(t, err)
	assert.Equal(t, 1.0, min)

	max, err := e.Max()
	require.NoError(t, err)
	assert.Equal(t, 5.0, max)
}

func TestNoData(t *testing.T) {
	e := New()

	if _, err := e.Mean(); !errors.Is(err, ErrNoData) {
		t.Errorf("Mean on empty estimator: got %v, want ErrNoData", err)
	}
	if _, err := e.StdDev(); !errors.Is(err, ErrNoData) {
		t.Errorf("StdDev on empty estimator: got %v, want ErrNoData", err)
	}
	if _, err := e.Percentile(50); !errors.Is(err, ErrNoData) {
		t.Errorf("Percentile on empty estimator: got %v, want ErrNoData", err)
	}
	assert.EqualValues(t, 0, e.Count())
	assert.Equal(t, Snapshot{}, e.Snapshot())
}

func TestInvalidPercentile(t *testing.T) {
	e := New()
	e.Observe(1)

	for _, p := range []float64{-0.001, -5, 100.001, 200} {
		_, err := e.Percentile(p)
		var inv *InvalidPercentileError
		require.ErrorAs(t, err, &inv, "percentile %v", p)
		assert.Equal(t, p, inv.Percentile)
	}
}

// Below the reservoir capacity percentiles are exact: every observation is
// retained.
func TestExactPercentilesBelowCapacity(t *testing.T) {
	e := New()
	perm := rand.Perm(101)
	for _, v := range perm {
		e.Observe(float64(v + 1)) // 1..101
	}

	for _, tc := range []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{50, 51},
		{75, 76},
		{100, 101},
	} {
		got, err := e.Percentile(tc.p)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "percentile %v", tc.p)
	}
}

// Moments are exact regardless of reservoir capacity; only percentiles are
// sampled.
func TestExactMomentsBeyondCapacity(t *testing.T) {
	e := NewSize(100)
	const n = 10000
	for i := 1; i <= n; i++ {
		e.Observe(float64(i))
	}

	require.EqualValues(t, n, e.Count())
	require.Len(t, e.slots, 100)

	mean, err := e.Mean()
	require.NoError(t, err)
	assert.InDelta(t, float64(n+1)/2, mean, 1e-6)

	// Population stddev of 1..n is sqrt((n^2-1)/12).
	stddev, err := e.StdDev()
	require.NoError(t, err)
	assert.InDelta(t, math.Sqrt((float64(n)*float64(n)-1)/12), stddev, 1e-6)

	min, err := e.Min()
	require.NoError(t, err)
	assert.Equal(t, 1.0, min)
	max, err := e.Max()
	require.NoError(t, err)
	assert.Equal(t, float64(n), max)

	// The reservoir is a uniform sample, so the median estimate should be
	// in the right neighborhood even though it is not exact.
	median, err := e.Percentile(50)
	require.NoError(t, err)
	assert.InDelta(t, float64(n)/2, median, float64(n)/4)
}

func TestSnapshot(t *testing.T) {
	e := New()
	for i := 1; i <= 100; i++ {
		e.Observe(float64(i))
	}
	s := e.Snapshot()

	assert.EqualValues(t, 100, s.Count)
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 100.0, s.Max)
	assert.InDelta(t, 50.5, s.Mean, 1e-9)
	assert.Equal(t, 50.0, s.Median)
	assert.Equal(t, 75.0, s.P75)
	assert.Equal(t, 95.0, s.P95)
	assert.Equal(t, 98.0, s.P98)
	assert.Equal(t, 99.0, s.P99)
	assert.Equal(t, 100.0, s.P999)
}

func TestConcurrentObserve(t *testing.T) {
	e := NewSize(64)
	const (
		workers = 8
		perW    = 1000
	)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perW; j++ {
				e.Observe(2.5)
			}
		}()
	}
	wg.Wait()

	require.EqualValues(t, workers*perW, e.Count())
	mean, err := e.Mean()
	require.NoError(t, err)
	assert.InDelta(t, 2.5, mean, 1e-9)
	stddev, err := e.StdDev()
	require.NoError(t, err)
	assert.InDelta(t, 0, stddev, 1e-6)
}

func BenchmarkObserve(b *testing.B) {
	e := New()
	for i := 0; i < b.N; i++ {
		e.Observe(float64(i))
	}
}
