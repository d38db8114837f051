package scales

import (
	"runtime"
	"sync"
	"time"
)

// memStatsTTL bounds how often ReadMemStats runs; it stops the world.
const memStatsTTL = time.Second

type runtimeStats struct {
	mu   sync.Mutex
	read time.Time
	mem  runtime.MemStats
}

func (r *runtimeStats) snapshot() runtime.MemStats {
	r.mu.Lock()
	if time.Since(r.read) > memStatsTTL {
		runtime.ReadMemStats(&r.mem)
		r.read = time.Now()
	}
	m := r.mem
	r.mu.Unlock()
	return m
}

// NewRuntimeStats registers common Go runtime stats like memory allocated,
// total mallocs, total frees, etc. as callable gauges under the given
// container. The underlying MemStats read is cached for a second and
// shared by all of the gauges.
func NewRuntimeStats(c *Container) error {
	rs := &runtimeStats{}
	mem := func(f func(m runtime.MemStats) any) ValueSource {
		return CallableValue(func() any { return f(rs.snapshot()) })
	}

	gauges := []struct {
		name string
		src  ValueSource
	}{
		{"alloc", mem(func(m runtime.MemStats) any { return m.Alloc })},
		{"totalAlloc", mem(func(m runtime.MemStats) any { return m.TotalAlloc })},
		{"sys", mem(func(m runtime.MemStats) any { return m.Sys })},
		{"lookups", mem(func(m runtime.MemStats) any { return m.Lookups })},
		{"mallocs", mem(func(m runtime.MemStats) any { return m.Mallocs })},
		{"frees", mem(func(m runtime.MemStats) any { return m.Frees })},

		// Main allocation heap statistics
		{"heapAlloc", mem(func(m runtime.MemStats) any { return m.HeapAlloc })},
		{"heapSys", mem(func(m runtime.MemStats) any { return m.HeapSys })},
		{"heapIdle", mem(func(m runtime.MemStats) any { return m.HeapIdle })},
		{"heapInuse", mem(func(m runtime.MemStats) any { return m.HeapInuse })},
		{"heapReleased", mem(func(m runtime.MemStats) any { return m.HeapReleased })},
		{"heapObjects", mem(func(m runtime.MemStats) any { return m.HeapObjects })},

		// Garbage collector statistics
		{"nextGC", mem(func(m runtime.MemStats) any { return m.NextGC })},
		{"lastGC", mem(func(m runtime.MemStats) any { return m.LastGC })},
		{"pauseTotalNs", mem(func(m runtime.MemStats) any { return m.PauseTotalNs })},
		{"numGC", mem(func(m runtime.MemStats) any { return m.NumGC })},
		{"gcCPUPercent", mem(func(m runtime.MemStats) any { return m.GCCPUFraction * 100 })},

		{"numGoroutine", CallableValue(func() any { return runtime.NumGoroutine() })},
	}
	for _, g := range gauges {
		if _, err := c.NewGauge(g.name, g.src); err != nil {
			return err
		}
	}
	return nil
}
