package scales

import (
	"strings"

	metrics "github.com/rcrowley/go-metrics"
)

// SyncToGoMetrics mirrors the current values of a registry subtree into a
// go-metrics Registry, for processes whose reporting pipeline is built on
// rcrowley/go-metrics. Numeric leaves become gauges named by their dotted
// path; histogram aggregate buckets become one gauge each. Call it from
// whatever cadence drives the go-metrics reporters.
func SyncToGoMetrics(registry *Registry, dst metrics.Registry, path string) error {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return registry.Each(path, func(e Entry) bool {
		switch e.Kind {
		case KindInt:
			metrics.GetOrRegisterGauge(dottedName(e.Path), dst).Update(e.Int)
		case KindFloat:
			metrics.GetOrRegisterGaugeFloat64(dottedName(e.Path), dst).Update(e.Float)
		case KindHistogram:
			for bucket, count := range e.Histogram {
				name := dottedName(e.Path) + "." + sanitizeSegment(bucket)
				metrics.GetOrRegisterGauge(name, dst).Update(count)
			}
		}
		return true
	})
}

func dottedName(statPath string) string {
	return strings.ReplaceAll(strings.TrimPrefix(statPath, "/"), "/", ".")
}
