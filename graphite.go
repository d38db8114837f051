package scales

import (
	"context"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"
	"time"

	logrus "github.com/sirupsen/logrus"
)

// Logger is used to log errors and other important operational
// information while pushing stats.
//
// For convenience of transitioning between logrus and zap, this interface
// conforms BOTH to logrus.Logger as well as Zap's Sugared logger.
type Logger interface {
	Errorf(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
}

const (
	defaultDialTimeout  = time.Second * 3 / 2
	defaultWriteTimeout = time.Second

	// Graphite silently drops oversized metric names; don't bother
	// sending them.
	maxNameLen = 500
)

// A Pusher periodically exports a snapshot of the registry somewhere.
type Pusher interface {
	// Push exports one snapshot.
	Push() error

	// Start pushes on every tick. This is a blocking call and should be
	// called in a goroutine.
	Start(*time.Ticker)
}

// A PusherOption configures a GraphitePusher.
type PusherOption interface {
	apply(*GraphitePusher)
}

// pusherOptionFunc wraps a func so it satisfies the PusherOption interface.
type pusherOptionFunc func(*GraphitePusher)

func (f pusherOptionFunc) apply(p *GraphitePusher) {
	f(p)
}

// WithGraphiteHost sets the host of the Graphite collector otherwise the
// host is read from the environment variable "GRAPHITE_HOST".
func WithGraphiteHost(host string) PusherOption {
	return pusherOptionFunc(func(p *GraphitePusher) {
		p.conf.GraphiteHost = host
	})
}

// WithGraphitePort sets the port of the Graphite collector otherwise the
// port is read from the environment variable "GRAPHITE_PORT".
func WithGraphitePort(port int) PusherOption {
	return pusherOptionFunc(func(p *GraphitePusher) {
		p.conf.GraphitePort = port
	})
}

// WithPrefix sets the prefix prepended to every pushed name otherwise the
// prefix is read from the environment variable "GRAPHITE_PREFIX".
func WithPrefix(prefix string) PusherOption {
	return pusherOptionFunc(func(p *GraphitePusher) {
		p.conf.GraphitePrefix = prefix
	})
}

// WithSubtree restricts the pusher to the subtree rooted at the given
// path. By default the whole registry is pushed.
func WithSubtree(path string) PusherOption {
	return pusherOptionFunc(func(p *GraphitePusher) {
		p.root = path
	})
}

// WithPusherLogger configures the pusher to use the provided logger
// otherwise the logrus standard logger is used.
func WithPusherLogger(log Logger) PusherOption {
	return pusherOptionFunc(func(p *GraphitePusher) {
		p.log = log
	})
}

// A GraphitePusher periodically writes every numeric leaf of a registry to
// a Graphite plaintext receiver as "name value timestamp" lines over a
// single TCP connection.
//
// A dropped connection never affects registry state: the failed batch is
// skipped and the pusher reconnects on the next interval.
type GraphitePusher struct {
	registry *Registry
	root     string
	conf     Settings
	log      Logger
	now      func() time.Time

	mu    sync.Mutex
	rules []pushRule
	conn  net.Conn
}

// A pushRule is one allow/forbid entry consulted by IsExcluded.
type pushRule struct {
	allow   bool
	pattern string
}

// NewGraphitePusher returns a pusher for the given registry (nil means the
// default registry). By default settings are taken from the environment,
// but can be overridden via PusherOptions.
func NewGraphitePusher(registry *Registry, opts ...PusherOption) *GraphitePusher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	p := &GraphitePusher{
		registry: registry,
		root:     "/",
		conf:     GetSettings(),
		log:      logrus.StandardLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt.apply(p)
	}
	return p
}

// Forbid excludes paths matching pattern from pushes. The pattern is a
// path.Match glob or a plain path prefix. Newer rules take precedence
// over older ones.
func (p *GraphitePusher) Forbid(pattern string) {
	p.addRule(pushRule{allow: false, pattern: pattern})
}

// Allow re-includes paths matching pattern, overriding older Forbid rules.
func (p *GraphitePusher) Allow(pattern string) {
	p.addRule(pushRule{allow: true, pattern: pattern})
}

func (p *GraphitePusher) addRule(r pushRule) {
	p.mu.Lock()
	p.rules = append(p.rules, r)
	p.mu.Unlock()
}

// IsExcluded reports whether the leaf at the given path would be skipped
// by the next push. Paths are included unless a Forbid rule matches. The
// predicate is evaluated against the rule set at call time.
func (p *GraphitePusher) IsExcluded(statPath string) bool {
	statPath = strings.TrimPrefix(statPath, "/")
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := len(p.rules) - 1; i >= 0; i-- {
		r := p.rules[i]
		if matchRule(r.pattern, statPath) {
			return !r.allow
		}
	}
	return false
}

func matchRule(pattern, statPath string) bool {
	pattern = strings.TrimPrefix(pattern, "/")
	if ok, err := path.Match(pattern, statPath); err == nil && ok {
		return true
	}
	return statPath == pattern || strings.HasPrefix(statPath, pattern+"/")
}

// Push writes one batch of the registry's current numeric leaves. On a
// connection error the batch is abandoned and the connection re-dialed at
// the next call.
func (p *GraphitePusher) Push() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		addr := net.JoinHostPort(p.conf.GraphiteHost, strconv.Itoa(p.conf.GraphitePort))
		conn, err := net.DialTimeout("tcp", addr, defaultDialTimeout)
		if err != nil {
			p.log.Warnf("graphite connection error: %s", err)
			return err
		}
		p.conn = conn
	}

	timestamp := p.now().Unix()
	scratch := make([]byte, 0, 128)
	var writeErr error

	err := p.registry.Each(p.root, func(e Entry) bool {
		v, ok := e.Numeric()
		if !ok || p.isExcludedLocked(e.Path) {
			return true
		}
		name := graphiteName(p.conf.GraphitePrefix, e.Path)
		if len(name) > maxNameLen {
			return true
		}

		scratch = scratch[:0]
		scratch = append(scratch, name...)
		scratch = append(scratch, ' ')
		if e.Kind == KindInt {
			scratch = strconv.AppendInt(scratch, e.Int, 10)
		} else {
			scratch = strconv.AppendFloat(scratch, v, 'f', 6, 64)
		}
		scratch = append(scratch, ' ')
		scratch = strconv.AppendInt(scratch, timestamp, 10)
		scratch = append(scratch, '\n')

		p.conn.SetWriteDeadline(time.Now().Add(defaultWriteTimeout))
		if _, err := p.conn.Write(scratch); err != nil {
			writeErr = err
			return false
		}
		return true
	})
	p.conn.SetWriteDeadline(time.Time{}) // clear

	if err != nil {
		return err
	}
	if writeErr != nil {
		p.log.Errorf("graphite write error, dropping batch: %s", writeErr)
		_ = p.conn.Close()
		p.conn = nil
		return writeErr
	}
	return nil
}

// isExcludedLocked is IsExcluded for callers already holding p.mu.
func (p *GraphitePusher) isExcludedLocked(statPath string) bool {
	statPath = strings.TrimPrefix(statPath, "/")
	for i := len(p.rules) - 1; i >= 0; i-- {
		r := p.rules[i]
		if matchRule(r.pattern, statPath) {
			return !r.allow
		}
	}
	return false
}

// Start pushes a batch on every tick. This is a blocking call and should
// be called in a goroutine.
func (p *GraphitePusher) Start(ticker *time.Ticker) {
	p.StartContext(context.Background(), ticker)
}

// StartContext pushes a batch on every tick until the passed-in context is
// cancelled. This is a blocking call and should be called in a goroutine.
func (p *GraphitePusher) StartContext(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			p.Close()
			return
		case <-ticker.C:
			if err := p.Push(); err != nil {
				p.log.Warnf("graphite push failed, will retry next interval: %s", err)
			}
		}
	}
}

// Close drops the pusher's connection, if any.
func (p *GraphitePusher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

// graphiteName converts a stat path to a dotted Graphite name, cleaning
// each segment the way Graphite expects (spaces and dots become dashes).
func graphiteName(prefix, statPath string) string {
	segs := splitPath(statPath)
	var b strings.Builder
	if prefix != "" {
		b.WriteString(strings.TrimSuffix(prefix, "."))
	}
	for _, seg := range segs {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(sanitizeSegment(seg))
	}
	return b.String()
}

func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, " ", "-")
	return strings.ReplaceAll(s, ".", "-")
}

// NewDefaultPusher returns a Pusher for the default registry with a
// running push timer. With USE_GRAPHITE unset or true it pushes to
// Graphite at the configured interval; otherwise stats are written to the
// logging pusher (or dropped entirely when the logging pusher is
// disabled).
func NewDefaultPusher() Pusher {
	settings := GetSettings()
	if !settings.UseGraphite {
		var p Pusher
		if settings.LoggingPusherDisabled {
			p = nullPusher{}
		} else {
			p = NewLoggingPusher(nil)
		}
		go p.Start(time.NewTicker(10 * time.Second))
		return p
	}
	p := NewGraphitePusher(nil)
	go p.Start(time.NewTicker(settings.PushInterval()))
	return p
}

// nullPusher drops everything.
type nullPusher struct{}

func (nullPusher) Push() error { return nil }

func (nullPusher) Start(t *time.Ticker) {
	for range t.C {
	}
}
