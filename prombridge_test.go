package scales

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func gatherBridge(t *testing.T, r *Registry) map[string]float64 {
	t.Helper()
	preg := prometheus.NewPedanticRegistry()
	if err := preg.Register(NewPrometheusBridge(r)); err != nil {
		t.Fatal(err)
	}
	families, err := preg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			name := mf.GetName()
			for _, lp := range m.GetLabel() {
				name += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			out[name] = m.GetGauge().GetValue()
		}
	}
	return out
}

func TestPrometheusBridge(t *testing.T) {
	r := NewRegistry()
	web, err := r.Collection("/web",
		CounterSpec("errors"),
		GaugeSpec("load", ConstantValue(1.5)))
	if err != nil {
		t.Fatal(err)
	}
	web.Counter("errors").Add(7)

	got := gatherBridge(t, r)
	if got["web_errors"] != 7 {
		t.Errorf("web_errors = %v", got["web_errors"])
	}
	if got["web_load"] != 1.5 {
		t.Errorf("web_load = %v", got["web_load"])
	}
}

func TestPrometheusBridgeHistogram(t *testing.T) {
	r := NewRegistry()
	root, err := r.Init("/")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := root.NewHistogramAggregate("state"); err != nil {
		t.Fatal(err)
	}
	a, err := r.Init("/a")
	if err != nil {
		t.Fatal(err)
	}
	g, err := a.NewGauge("state", nil)
	if err != nil {
		t.Fatal(err)
	}
	g.Set("running")

	got := gatherBridge(t, r)
	if got[`state{value=running}`] != 1 {
		t.Errorf("histogram bucket: %v", got)
	}
}

func TestPromName(t *testing.T) {
	for path, want := range map[string]string{
		"/web/errors":    "web_errors",
		"/web/v1.2/hits": "web_v1_2_hits",
		"/2xx":           "_2xx",
	} {
		if got := promName(path); got != want {
			t.Errorf("promName(%q) = %q, want %q", path, got, want)
		}
	}
}
