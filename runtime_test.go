package scales

import (
	"testing"
)

func TestRuntimeStats(t *testing.T) {
	r := NewRegistry()
	c, err := r.Init("/runtime")
	if err != nil {
		t.Fatal(err)
	}
	if err := NewRuntimeStats(c); err != nil {
		t.Fatal(err)
	}

	entries, err := r.Entries("/runtime")
	if err != nil {
		t.Fatal(err)
	}
	byPath := map[string]Entry{}
	for _, e := range entries {
		byPath[e.Path] = e
	}

	for _, name := range []string{
		"alloc", "totalAlloc", "sys", "mallocs", "frees",
		"heapAlloc", "heapSys", "numGC", "numGoroutine",
	} {
		if _, ok := byPath["/runtime/"+name]; !ok {
			t.Errorf("missing runtime gauge %q", name)
		}
	}

	if v, _ := byPath["/runtime/alloc"].Numeric(); v <= 0 {
		t.Errorf("alloc = %v", v)
	}
	if v, _ := byPath["/runtime/numGoroutine"].Numeric(); v < 1 {
		t.Errorf("numGoroutine = %v", v)
	}
}

func TestRuntimeStatsDuplicate(t *testing.T) {
	r := NewRegistry()
	c, err := r.Init("/runtime")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.NewCounter("alloc"); err != nil {
		t.Fatal(err)
	}
	if err := NewRuntimeStats(c); !IsDuplicateName(err) {
		t.Errorf("got %v, want DuplicateNameError", err)
	}
}
