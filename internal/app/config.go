package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix namespaces every environment variable the app reads.
const EnvPrefix = "ZERO_"

// DefaultRequestTimeout bounds client-mode requests when nothing else is
// configured.
const DefaultRequestTimeout = time.Second

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Addr           string `env:"ADDR" envDefault:":3000"`
	DescriptorPath string `env:"DESCRIPTOR_PATH"` // hcl files

	LogFormat       string        `env:"LOG_FORMAT" envDefault:"json"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	HealthcheckPort int           `env:"HEALTHCHECK_PORT"`
	SessionDB       string        `env:"SESSION_DB"` // empty keeps sessions in memory
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"1s"`
	OTelEndpoint    string        `env:"OTEL_ENDPOINT"`

	// Snapshot names a file the effective component descriptors are written
	// to instead of serving.
	Snapshot string

	// Call switches the binary to client mode: connect to URL and run one
	// of the client operations.
	Call CallConfig
}

// CallMode reports whether the config describes a client-mode run.
func (c *Config) CallMode() bool { return c.Call.operations() > 0 }

// CallConfig describes one client-mode run. Exactly one operation is set.
type CallConfig struct {
	URL string
	// Event sends one request and prints the response.
	Event string
	Data  string // JSON
	// Discover prints the peer's remote capabilities.
	Discover bool
	// Capability and Action invoke one remote action through a stub, with
	// Data as its arguments.
	Capability string
	Action     string
	// Watch prints connection broadcasts until cancelled, redialling when
	// the connection drops.
	Watch bool
}

func (c CallConfig) operations() int {
	n := 0
	for _, set := range []bool{c.Event != "", c.Discover, c.Capability != "", c.Watch} {
		if set {
			n++
		}
	}
	return n
}

// LoadConfigFromEnv reads ZERO_* variables over the defaults.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

func NewConfig(cfg Config) (*Config, error) {
	if !cfg.CallMode() && cfg.Addr == "" {
		return nil, errors.New("Addr is a required configuration field and cannot be empty")
	}
	if cfg.CallMode() && cfg.Call.URL == "" {
		return nil, errors.New("call mode needs a server URL")
	}
	if cfg.Call.operations() > 1 {
		return nil, errors.New("call mode runs one operation: pick one of -call, -discover, -capability and -watch")
	}
	if cfg.Call.Capability != "" && cfg.Call.Action == "" {
		return nil, errors.New("-capability needs an -action")
	}
	if cfg.CallMode() && cfg.Snapshot != "" {
		return nil, errors.New("-snapshot cannot be combined with call mode")
	}
	if cfg.RequestTimeout <= 0 {
		return nil, fmt.Errorf("RequestTimeout must be positive, got %s", cfg.RequestTimeout)
	}
	if cfg.HealthcheckPort < 0 {
		return nil, fmt.Errorf("HealthcheckPort cannot be negative, got %d", cfg.HealthcheckPort)
	}
	return &cfg, nil
}
