package gateway

import (
	"fmt"
	"time"

	"github.com/arloliu/imgpool/job"
)

// RateLimitConfig configures request throttling. RPS 0 disables it.
type RateLimitConfig struct {
	// RPS is the sustained request rate allowed per bucket.
	RPS float64 `yaml:"rps" env:"IMGPOOL_GATEWAY_RATE_RPS"`

	// Burst is the bucket capacity. Default: 1 when RPS is set.
	Burst int `yaml:"burst" env:"IMGPOOL_GATEWAY_RATE_BURST"`

	// PerClient keys buckets by client address instead of one global bucket.
	PerClient bool `yaml:"perClient" env:"IMGPOOL_GATEWAY_RATE_PER_CLIENT"`
}

// Config is the configuration of the HTTP gateway.
type Config struct {
	// Addr is the listen address. Default: ":3000".
	Addr string `yaml:"addr" env:"IMGPOOL_GATEWAY_ADDR"`

	// Limits bound the request values the gateway accepts.
	Limits job.Limits `yaml:"limits"`

	// GenerateTimeout, when positive, bounds one backend call.
	GenerateTimeout time.Duration `yaml:"generateTimeout" env:"IMGPOOL_GATEWAY_GENERATE_TIMEOUT"`

	// MaxBodyBytes caps the JSON body read. Default: 64 KiB.
	MaxBodyBytes int64 `yaml:"maxBodyBytes" env:"IMGPOOL_GATEWAY_MAX_BODY_BYTES"`

	// ReadHeaderTimeout bounds reading request headers. Default: 10s.
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" env:"IMGPOOL_GATEWAY_READ_HEADER_TIMEOUT"`

	// ShutdownTimeout bounds graceful shutdown. Default: 30s.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" env:"IMGPOOL_GATEWAY_SHUTDOWN_TIMEOUT"`

	// RateLimit throttles /imagePrompt.
	RateLimit RateLimitConfig `yaml:"rateLimit"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Addr:              ":3000",
		Limits:            job.DefaultLimits(),
		MaxBodyBytes:      64 << 10,
		ReadHeaderTimeout: 10 * time.Second,
		ShutdownTimeout:   30 * time.Second,
	}
}

// SetDefaults fills zero-valued fields of cfg.
func SetDefaults(cfg *Config) {
	d := DefaultConfig()

	if cfg.Addr == "" {
		cfg.Addr = d.Addr
	}
	if cfg.Limits == (job.Limits{}) {
		cfg.Limits = d.Limits
	}
	if cfg.MaxBodyBytes == 0 {
		cfg.MaxBodyBytes = d.MaxBodyBytes
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = d.ReadHeaderTimeout
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = d.ShutdownTimeout
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst == 0 {
		cfg.RateLimit.Burst = 1
	}
}

// Validate checks cfg for values the gateway cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Addr == "" {
		return fmt.Errorf("Addr is required")
	}
	if cfg.MaxBodyBytes < 0 {
		return fmt.Errorf("MaxBodyBytes must not be negative, got %d", cfg.MaxBodyBytes)
	}
	if cfg.GenerateTimeout < 0 {
		return fmt.Errorf("GenerateTimeout must not be negative, got %v", cfg.GenerateTimeout)
	}
	if cfg.RateLimit.RPS < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("RateLimit must not be negative, got %+v", cfg.RateLimit)
	}

	return nil
}
