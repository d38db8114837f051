package scales

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	// DefaultUseGraphite pushes stats to a Graphite collector, default is true.
	DefaultUseGraphite = true
	// DefaultGraphiteHost is the default address where Graphite is running at.
	DefaultGraphiteHost = "localhost"
	// DefaultGraphitePort is the default port where Graphite's plaintext
	// receiver is listening at.
	DefaultGraphitePort = 2003
	// DefaultPushIntervalS is the default push interval in seconds.
	DefaultPushIntervalS = 60
	// DefaultLoggingPusherDisabled is the default behavior of logging pusher
	// suppression, default is false.
	DefaultLoggingPusherDisabled = false
)

// The Settings type is used to configure goscales. goscales uses
// environment variables to setup its settings.
type Settings struct {
	// Push stats to a Graphite collector.
	UseGraphite bool `envconfig:"USE_GRAPHITE" default:"true"`
	// Address where Graphite is running at.
	GraphiteHost string `envconfig:"GRAPHITE_HOST" default:"localhost"`
	// Port where Graphite's plaintext receiver is listening at.
	GraphitePort int `envconfig:"GRAPHITE_PORT" default:"2003"`
	// Prefix prepended to every pushed stat name.
	GraphitePrefix string `envconfig:"GRAPHITE_PREFIX" default:""`
	// Push interval.
	PushIntervalS int `envconfig:"GOSCALES_PUSH_INTERVAL_SECONDS" default:"60"`
	// Disable the logging pusher when USE_GRAPHITE is false and drop all
	// stats silently instead.
	LoggingPusherDisabled bool `envconfig:"GOSCALES_LOGGING_PUSHER_DISABLED" default:"false"`
}

// An envError is an error that occurred parsing an environment variable
type envError struct {
	Key   string
	Value string
	Err   error
}

func (e *envError) Error() string {
	return fmt.Sprintf("parsing environment variable: %q with value: %q: %s",
		e.Key, e.Value, e.Err)
}

func envOr(key, def string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return def
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def, &envError{Key: key, Value: s, Err: err}
	}
	return i, nil
}

func envBool(key string, def bool) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def, &envError{Key: key, Value: s, Err: err}
	}
	return b, nil
}

// GetSettings returns the Settings goscales will run with.
func GetSettings() Settings {
	useGraphite, err := envBool("USE_GRAPHITE", DefaultUseGraphite)
	if err != nil {
		panic(err)
	}
	graphitePort, err := envInt("GRAPHITE_PORT", DefaultGraphitePort)
	if err != nil {
		panic(err)
	}
	pushIntervalS, err := envInt("GOSCALES_PUSH_INTERVAL_SECONDS", DefaultPushIntervalS)
	if err != nil {
		panic(err)
	}
	loggingPusherDisabled, err := envBool("GOSCALES_LOGGING_PUSHER_DISABLED", DefaultLoggingPusherDisabled)
	if err != nil {
		panic(err)
	}
	return Settings{
		UseGraphite:           useGraphite,
		GraphiteHost:          envOr("GRAPHITE_HOST", DefaultGraphiteHost),
		GraphitePort:          graphitePort,
		GraphitePrefix:        os.Getenv("GRAPHITE_PREFIX"),
		PushIntervalS:         pushIntervalS,
		LoggingPusherDisabled: loggingPusherDisabled,
	}
}

// PushInterval returns the push interval duration.
func (s *Settings) PushInterval() time.Duration {
	return time.Duration(s.PushIntervalS) * time.Second
}
