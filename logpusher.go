package scales

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"
)

// A LoggingPusher writes every entry of a registry snapshot to a writer as
// JSON lines. It is not fast, or flexible, it doesn't buffer, it exists
// merely to be convenient to use by default when no Graphite collector is
// configured.
//
// The format of these lines is similar to Zap, but without explicitly
// importing Zap to avoid the dependency. The format is as if you used a
// zap.NewProduction-generated logger with a log.With(zap.Namespace("json")).
type LoggingPusher struct {
	registry *Registry
	writer   io.Writer
	now      func() time.Time
}

type logLine struct {
	Level     string                `json:"level"`
	Timestamp sixDecimalPlacesFloat `json:"ts"`
	Logger    string                `json:"logger"`
	Message   string                `json:"msg"`
	JSON      map[string]string     `json:"json"`
}

type sixDecimalPlacesFloat float64

func (f sixDecimalPlacesFloat) MarshalJSON() ([]byte, error) {
	var ret []byte
	ret = strconv.AppendFloat(ret, float64(f), 'f', 6, 64)
	return ret, nil
}

// NewLoggingPusher returns a "default" pusher that writes the given
// registry's stats (nil means the default registry) to os.Stderr.
func NewLoggingPusher(registry *Registry) *LoggingPusher {
	if registry == nil {
		registry = DefaultRegistry()
	}
	return &LoggingPusher{registry: registry, writer: os.Stderr, now: time.Now}
}

// Push writes one snapshot of the registry, a line per leaf.
func (p *LoggingPusher) Push() error {
	return p.registry.Each("/", func(e Entry) bool {
		nanos := p.now().UnixNano()
		sec := sixDecimalPlacesFloat(float64(nanos) / float64(time.Second))
		enc := json.NewEncoder(p.writer)
		enc.Encode(logLine{
			Message:   "pushing stat",
			Level:     "debug",
			Timestamp: sec,
			Logger:    "goscales.loggingpusher",
			JSON: map[string]string{
				"path":  e.Path,
				"kind":  e.Kind.String(),
				"value": fmt.Sprint(e.Value()),
			},
		})
		return true
	})
}

// Start pushes a snapshot on every tick. This is a blocking call and
// should be called in a goroutine.
func (p *LoggingPusher) Start(ticker *time.Ticker) {
	p.StartContext(context.Background(), ticker)
}

// StartContext pushes a snapshot on every tick until the passed-in context
// is cancelled.
func (p *LoggingPusher) StartContext(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Push()
		}
	}
}
