package scales

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// A PrometheusBridge exposes a registry's leaves as an unchecked
// prometheus.Collector. Paths become underscore-separated metric names;
// histogram aggregates become one metric per bucket with a "value" label.
//
// Every metric is reported as a Prometheus gauge: the registry holds
// current values, and whether a leaf is monotonic is not visible in a
// snapshot.
//
//	prometheus.MustRegister(scales.NewPrometheusBridge(nil))
type PrometheusBridge struct {
	registry *Registry
	root     string
}

// NewPrometheusBridge returns a bridge collecting from the given registry
// (nil means the default registry).
func NewPrometheusBridge(registry *Registry) *PrometheusBridge {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &PrometheusBridge{registry: registry, root: "/"}
}

// Describe implements prometheus.Collector. The metric set follows the
// live registry, so the bridge is an unchecked collector and sends no
// descriptors.
func (b *PrometheusBridge) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (b *PrometheusBridge) Collect(ch chan<- prometheus.Metric) {
	b.registry.Each(b.root, func(e Entry) bool {
		switch e.Kind {
		case KindInt, KindFloat:
			v, _ := e.Numeric()
			desc := prometheus.NewDesc(promName(e.Path), "scales stat "+e.Path, nil, nil)
			if m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, v); err == nil {
				ch <- m
			}
		case KindHistogram:
			desc := prometheus.NewDesc(promName(e.Path), "scales stat "+e.Path, []string{"value"}, nil)
			for bucket, count := range e.Histogram {
				if m, err := prometheus.NewConstMetric(desc, prometheus.GaugeValue, float64(count), bucket); err == nil {
					ch <- m
				}
			}
		}
		return true
	})
}

// promName converts a stat path to a valid Prometheus metric name.
func promName(statPath string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, strings.TrimPrefix(statPath, "/"))
	if name == "" || name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}
