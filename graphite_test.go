package scales

import (
	"bufio"
	"context"
	"net"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// testCollector is a minimal in-process Graphite plaintext receiver.
type testCollector struct {
	ln net.Listener

	mu    sync.Mutex
	lines []string
}

func newTestCollector(t *testing.T) *testCollector {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	c := &testCollector{ln: ln}
	t.Cleanup(func() { ln.Close() })
	go c.accept()
	return c
}

func (c *testCollector) accept() {
	for {
		conn, err := c.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			scanner := bufio.NewScanner(conn)
			for scanner.Scan() {
				c.mu.Lock()
				c.lines = append(c.lines, scanner.Text())
				c.mu.Unlock()
			}
		}()
	}
}

func (c *testCollector) port() int {
	return c.ln.Addr().(*net.TCPAddr).Port
}

// waitLines waits until at least n lines arrived and returns them sorted.
func (c *testCollector) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		if len(c.lines) >= n {
			lines := append([]string(nil), c.lines...)
			c.mu.Unlock()
			sort.Strings(lines)
			return lines
		}
		c.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d lines", n)
	return nil
}

func TestGraphitePush(t *testing.T) {
	collector := newTestCollector(t)

	r := NewRegistry()
	web, err := r.Collection("/web", CounterSpec("errors"), GaugeSpec("load", ConstantValue(1.25)))
	if err != nil {
		t.Fatal(err)
	}
	web.Counter("errors").Add(5)

	p := NewGraphitePusher(r,
		WithGraphiteHost("127.0.0.1"),
		WithGraphitePort(collector.port()),
		WithPrefix("svc"))
	p.now = func() time.Time { return time.Unix(1700000000, 0) }
	defer p.Close()

	if err := p.Push(); err != nil {
		t.Fatal(err)
	}

	lines := collector.waitLines(t, 2)
	want := []string{
		"svc.web.errors 5 1700000000",
		"svc.web.load 1.250000 1700000000",
	}
	for i, line := range lines {
		if line != want[i] {
			t.Errorf("line %d: got %q, want %q", i, line, want[i])
		}
	}
}

func TestGraphitePushSkipsNonNumeric(t *testing.T) {
	collector := newTestCollector(t)

	r := NewRegistry()
	c, err := r.Collection("/app",
		GaugeSpec("state", ConstantValue("up")),
		CounterSpec("hits"))
	if err != nil {
		t.Fatal(err)
	}
	c.Counter("hits").Inc()

	p := NewGraphitePusher(r, WithGraphiteHost("127.0.0.1"), WithGraphitePort(collector.port()))
	defer p.Close()
	if err := p.Push(); err != nil {
		t.Fatal(err)
	}

	lines := collector.waitLines(t, 1)
	for _, line := range lines {
		if strings.Contains(line, "state") {
			t.Errorf("non-numeric gauge was pushed: %q", line)
		}
	}
}

func TestGraphiteExclusionRules(t *testing.T) {
	p := NewGraphitePusher(NewRegistry())

	if p.IsExcluded("/web/errors") {
		t.Error("paths are included by default")
	}

	p.Forbid("/web/*")
	if !p.IsExcluded("/web/errors") {
		t.Error("forbid glob did not match")
	}
	if p.IsExcluded("/db/queries") {
		t.Error("forbid glob matched unrelated path")
	}

	// Newer rules win.
	p.Allow("/web/errors")
	if p.IsExcluded("/web/errors") {
		t.Error("newer allow rule did not override forbid")
	}

	// Prefix rules cover whole subtrees.
	p.Forbid("/internal")
	if !p.IsExcluded("/internal/deep/leaf") {
		t.Error("prefix rule did not cover subtree")
	}
}

func TestGraphitePushHonorsExclusion(t *testing.T) {
	collector := newTestCollector(t)

	r := NewRegistry()
	c, err := r.Collection("/web", CounterSpec("errors"), CounterSpec("hits"))
	if err != nil {
		t.Fatal(err)
	}
	c.Counter("errors").Add(2)
	c.Counter("hits").Add(9)

	p := NewGraphitePusher(r, WithGraphiteHost("127.0.0.1"), WithGraphitePort(collector.port()))
	defer p.Close()
	p.Forbid("/web/hits")

	if err := p.Push(); err != nil {
		t.Fatal(err)
	}
	lines := collector.waitLines(t, 1)
	for _, line := range lines {
		if strings.Contains(line, "hits") {
			t.Errorf("excluded stat was pushed: %q", line)
		}
	}
	if !strings.HasPrefix(lines[0], "web.errors 2 ") {
		t.Errorf("unexpected line: %q", lines[0])
	}
}

func TestGraphitePushConnectionError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing is listening anymore

	r := NewRegistry()
	if _, err := r.Collection("/web", CounterSpec("errors")); err != nil {
		t.Fatal(err)
	}
	p := NewGraphitePusher(r, WithGraphiteHost("127.0.0.1"), WithGraphitePort(port))
	if err := p.Push(); err == nil {
		t.Fatal("expected connection error")
	}
	// Core state is untouched and a later push against a live collector
	// succeeds.
	collector := newTestCollector(t)
	p2 := NewGraphitePusher(r, WithGraphiteHost("127.0.0.1"), WithGraphitePort(collector.port()))
	defer p2.Close()
	if err := p2.Push(); err != nil {
		t.Fatal(err)
	}
	collector.waitLines(t, 1)
}

func TestGraphiteName(t *testing.T) {
	for _, tc := range []struct {
		prefix string
		path   string
		want   string
	}{
		{"", "/web/errors", "web.errors"},
		{"svc", "/web/errors", "svc.web.errors"},
		{"svc.", "/web/errors", "svc.web.errors"},
		{"", "/some stat/v1.2", "some-stat.v1-2"},
	} {
		if got := graphiteName(tc.prefix, tc.path); got != tc.want {
			t.Errorf("graphiteName(%q, %q) = %q, want %q", tc.prefix, tc.path, got, tc.want)
		}
	}
}

func TestGraphiteStartContext(t *testing.T) {
	collector := newTestCollector(t)

	r := NewRegistry()
	c, err := r.Collection("/web", CounterSpec("errors"))
	if err != nil {
		t.Fatal(err)
	}
	c.Counter("errors").Inc()

	p := NewGraphitePusher(r, WithGraphiteHost("127.0.0.1"), WithGraphitePort(collector.port()))

	ctx, cancel := context.WithCancel(context.Background())
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	done := make(chan struct{})
	go func() {
		p.StartContext(ctx, ticker)
		close(done)
	}()

	collector.waitLines(t, 1)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("StartContext did not exit on cancel")
	}
}

func TestPusherSettingsFromEnv(t *testing.T) {
	t.Setenv("GRAPHITE_HOST", "stats.internal")
	t.Setenv("GRAPHITE_PORT", "2004")
	t.Setenv("GRAPHITE_PREFIX", "edge")

	p := NewGraphitePusher(NewRegistry())
	if p.conf.GraphiteHost != "stats.internal" || p.conf.GraphitePort != 2004 || p.conf.GraphitePrefix != "edge" {
		t.Errorf("settings not read from env: %+v", p.conf)
	}
	if got := strconv.Itoa(p.conf.GraphitePort); got != "2004" {
		t.Errorf("port = %s", got)
	}
}
