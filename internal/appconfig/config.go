// Package appconfig loads the configuration of the imgpool binaries.
//
// Sources are applied in order, later ones winning:
//
//  1. built-in defaults
//  2. a .env file in the working directory (only fills unset variables)
//  3. the YAML file given with --config
//  4. IMGPOOL_* environment variables
//
// Command-line flags are applied by the binaries after Load returns.
package appconfig

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/arloliu/imgpool"
	"github.com/arloliu/imgpool/backend"
	"github.com/arloliu/imgpool/backend/cache"
	"github.com/arloliu/imgpool/backend/openai"
	"github.com/arloliu/imgpool/backend/pattern"
	"github.com/arloliu/imgpool/gateway"
	"github.com/arloliu/imgpool/internal/bus"
	"github.com/arloliu/imgpool/internal/logging"
)

// DefaultNATSURL is the bus address used when none is configured.
const DefaultNATSURL = "nats://localhost:4223"

// Backend kinds.
const (
	KindPattern = "pattern"
	KindOpenAI  = "openai"
)

// NATSConfig locates and tunes the bus connection.
type NATSConfig struct {
	URL            string        `yaml:"url" env:"IMGPOOL_NATS_URL"`
	Name           string        `yaml:"name" env:"IMGPOOL_NATS_NAME"`
	ConnectTimeout time.Duration `yaml:"connectTimeout" env:"IMGPOOL_NATS_CONNECT_TIMEOUT"`
	MaxReconnects  int           `yaml:"maxReconnects" env:"IMGPOOL_NATS_MAX_RECONNECTS"`
	ReconnectWait  time.Duration `yaml:"reconnectWait" env:"IMGPOOL_NATS_RECONNECT_WAIT"`
}

// DialOptions converts c for bus.Dial. drainTimeout bounds the connection drain.
func (c NATSConfig) DialOptions(drainTimeout time.Duration) bus.DialOptions {
	return bus.DialOptions{
		Name:           c.Name,
		ConnectTimeout: c.ConnectTimeout,
		MaxReconnects:  c.MaxReconnects,
		ReconnectWait:  c.ReconnectWait,
		DrainTimeout:   drainTimeout,
	}
}

// BackendConfig selects and configures the generation backend.
type BackendConfig struct {
	// Kind is "pattern" (default) or "openai".
	Kind string `yaml:"kind" env:"IMGPOOL_BACKEND"`

	// Lifetime is "shared" (default) or "per_job".
	Lifetime string `yaml:"lifetime" env:"IMGPOOL_BACKEND_LIFETIME"`

	// Warm creates the shared instance at startup instead of on the first job.
	Warm bool `yaml:"warm" env:"IMGPOOL_BACKEND_WARM"`

	Pattern pattern.Config `yaml:"pattern"`
	OpenAI  openai.Config  `yaml:"openai"`
	Cache   cache.Config   `yaml:"cache"`
}

// MetricsConfig configures the worker's metrics listener.
type MetricsConfig struct {
	// Addr serves /metrics and /healthz when set, e.g. ":9090".
	Addr string `yaml:"addr" env:"IMGPOOL_METRICS_ADDR"`
}

// Config is the full configuration of a binary. Each binary uses the parts it needs.
type Config struct {
	NATS    NATSConfig     `yaml:"nats"`
	Worker  imgpool.Config `yaml:"worker"`
	Gateway gateway.Config `yaml:"gateway"`
	Backend BackendConfig  `yaml:"backend"`
	Log     logging.Config `yaml:"log"`
	Metrics MetricsConfig  `yaml:"metrics"`
}

// Load reads the configuration from the .env file, path (optional) and the
// environment, then applies defaults and validates.
//
// Parameters:
//   - path: YAML file; empty means none
//
// Returns:
//   - *Config: The loaded configuration
//   - error: Unreadable or invalid configuration
func Load(path string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if path != "" {
		if err := readYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}

	return nil
}

func readYAML(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	return nil
}

// SetDefaults fills every unset value.
func (c *Config) SetDefaults() {
	if c.NATS.URL == "" {
		c.NATS.URL = DefaultNATSURL
	}
	imgpool.SetDefaults(&c.Worker)
	gateway.SetDefaults(&c.Gateway)
	if c.Backend.Kind == "" {
		c.Backend.Kind = KindPattern
	}
	if c.Backend.Lifetime == "" {
		c.Backend.Lifetime = string(backend.LifetimeShared)
	}
	if c.Backend.Cache.TTL == 0 {
		c.Backend.Cache.TTL = cache.DefaultTTL
	}
	if c.Backend.Cache.KeyPrefix == "" {
		c.Backend.Cache.KeyPrefix = cache.DefaultKeyPrefix
	}
	c.Log.SetDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.Worker.Validate(); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	if err := c.Gateway.Validate(); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}
	if _, err := backend.ParseLifetime(c.Backend.Lifetime); err != nil {
		return fmt.Errorf("backend: %w", err)
	}
	switch c.Backend.Kind {
	case KindPattern:
		if _, err := c.Backend.Pattern.Options(); err != nil {
			return fmt.Errorf("backend: %w", err)
		}
	case KindOpenAI:
		if c.Backend.OpenAI.APIKey == "" {
			return fmt.Errorf("backend: %w", openai.ErrAPIKeyRequired)
		}
	default:
		return fmt.Errorf("backend: unknown kind %q", c.Backend.Kind)
	}
	if c.Backend.Cache.TTL < 0 {
		return fmt.Errorf("backend: cache TTL must not be negative, got %v", c.Backend.Cache.TTL)
	}

	return nil
}
