package imgpool

import (
	"fmt"
	"strings"
	"time"

	"github.com/arloliu/imgpool/job"
)

// PresenceConfig controls the optional live-worker registry in NATS KV.
//
// The registry needs JetStream on the server. The queue group works without it.
type PresenceConfig struct {
	// Enabled turns the registry on. Default: false.
	Enabled bool `yaml:"enabled" env:"IMGPOOL_PRESENCE_ENABLED"`

	// Bucket is the KV bucket name. Default: "imgpool-workers".
	Bucket string `yaml:"bucket" env:"IMGPOOL_PRESENCE_BUCKET"`

	// KeyPrefix prefixes every worker key ("{prefix}.{workerID}"). Default: "worker".
	KeyPrefix string `yaml:"keyPrefix" env:"IMGPOOL_PRESENCE_KEY_PREFIX"`

	// Interval is the heartbeat period. Keys expire after three missed beats.
	// Default: 5 seconds.
	Interval time.Duration `yaml:"interval" env:"IMGPOOL_PRESENCE_INTERVAL"`
}

// Config is the configuration of a Worker.
type Config struct {
	// Subject is the subject jobs are published on. Default: "img_gen".
	Subject string `yaml:"subject" env:"IMGPOOL_SUBJECT"`

	// QueueGroup is the competing-consumer group every worker joins. Default: "workers".
	QueueGroup string `yaml:"queueGroup" env:"IMGPOOL_QUEUE_GROUP"`

	// Concurrency is the number of jobs one worker handles at the same time.
	//
	// Default: 1. Values above 1 are only correct when the backend is safe for
	// concurrent use; generation backends usually own a single accelerator and
	// are not.
	Concurrency int `yaml:"concurrency" env:"IMGPOOL_CONCURRENCY"`

	// Limits bound the request values a worker accepts.
	Limits job.Limits `yaml:"limits"`

	// GenerateTimeout, when positive, is set as a deadline on the backend call.
	// Default: 0 (no deadline).
	GenerateTimeout time.Duration `yaml:"generateTimeout" env:"IMGPOOL_GENERATE_TIMEOUT"`

	// DrainTimeout bounds graceful shutdown. It must exceed the longest expected
	// generation, since in-flight jobs are never interrupted. Default: 5 minutes.
	DrainTimeout time.Duration `yaml:"drainTimeout" env:"IMGPOOL_DRAIN_TIMEOUT"`

	// StartupTimeout bounds Start (subscription and presence bucket setup).
	// Default: 30 seconds.
	StartupTimeout time.Duration `yaml:"startupTimeout" env:"IMGPOOL_STARTUP_TIMEOUT"`

	// ExposeFailureReason adds a "reason" header with a coarse failure code to
	// failed replies. Default: false.
	ExposeFailureReason bool `yaml:"exposeFailureReason" env:"IMGPOOL_EXPOSE_FAILURE_REASON"`

	// Presence configures the live-worker registry.
	Presence PresenceConfig `yaml:"presence"`
}

// DefaultConfig returns a Config with all defaults applied.
func DefaultConfig() Config {
	return Config{
		Subject:        job.DefaultSubject,
		QueueGroup:     job.DefaultQueueGroup,
		Concurrency:    1,
		Limits:         job.DefaultLimits(),
		DrainTimeout:   5 * time.Minute,
		StartupTimeout: 30 * time.Second,
		Presence: PresenceConfig{
			Bucket:    "imgpool-workers",
			KeyPrefix: "worker",
			Interval:  5 * time.Second,
		},
	}
}

// SetDefaults fills every zero-valued field of cfg with its default.
//
// Limits are only defaulted as a whole: a config that sets any limit keeps its
// other limits as given, so a zero limit can still disable a bound.
func SetDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Subject == "" {
		cfg.Subject = defaults.Subject
	}
	if cfg.QueueGroup == "" {
		cfg.QueueGroup = defaults.QueueGroup
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaults.Concurrency
	}
	if cfg.Limits == (job.Limits{}) {
		cfg.Limits = defaults.Limits
	}
	if cfg.DrainTimeout == 0 {
		cfg.DrainTimeout = defaults.DrainTimeout
	}
	if cfg.StartupTimeout == 0 {
		cfg.StartupTimeout = defaults.StartupTimeout
	}
	if cfg.Presence.Bucket == "" {
		cfg.Presence.Bucket = defaults.Presence.Bucket
	}
	if cfg.Presence.KeyPrefix == "" {
		cfg.Presence.KeyPrefix = defaults.Presence.KeyPrefix
	}
	if cfg.Presence.Interval == 0 {
		cfg.Presence.Interval = defaults.Presence.Interval
	}
}

// Validate checks the configuration for values the worker cannot run with.
func (cfg *Config) Validate() error {
	if cfg.Subject == "" || strings.ContainsAny(cfg.Subject, " \t\r\n") {
		return fmt.Errorf("Subject %q must be non-empty and contain no whitespace", cfg.Subject)
	}
	if strings.ContainsAny(cfg.Subject, "*>") {
		return fmt.Errorf("Subject %q must not contain wildcards", cfg.Subject)
	}
	if cfg.QueueGroup == "" || strings.ContainsAny(cfg.QueueGroup, " \t\r\n") {
		return fmt.Errorf("QueueGroup %q must be non-empty and contain no whitespace", cfg.QueueGroup)
	}
	if cfg.Concurrency < 1 {
		return fmt.Errorf("Concurrency must be >= 1, got %d", cfg.Concurrency)
	}
	if cfg.Limits.MaxPromptLength < 0 || cfg.Limits.MaxSteps < 0 || cfg.Limits.MaxDimension < 0 {
		return fmt.Errorf("Limits must not be negative, got %+v", cfg.Limits)
	}
	if cfg.GenerateTimeout < 0 {
		return fmt.Errorf("GenerateTimeout must not be negative, got %v", cfg.GenerateTimeout)
	}
	if cfg.DrainTimeout <= 0 {
		return fmt.Errorf("DrainTimeout must be > 0, got %v", cfg.DrainTimeout)
	}
	if cfg.StartupTimeout <= 0 {
		return fmt.Errorf("StartupTimeout must be > 0, got %v", cfg.StartupTimeout)
	}
	if cfg.Presence.Enabled {
		if cfg.Presence.Interval < 100*time.Millisecond {
			return fmt.Errorf("Presence.Interval must be >= 100ms, got %v", cfg.Presence.Interval)
		}
		if cfg.Presence.Bucket == "" || cfg.Presence.KeyPrefix == "" {
			return fmt.Errorf("Presence.Bucket and Presence.KeyPrefix are required when presence is enabled")
		}
	}

	return nil
}

// ValidateWithWarnings logs settings that are legal but likely mistakes.
func (cfg *Config) ValidateWithWarnings(logger Logger) {
	if cfg.Concurrency > 1 {
		logger.Warn("Concurrency > 1 runs several generations at once; the backend must be safe for concurrent use",
			"concurrency", cfg.Concurrency)
	}
	if cfg.GenerateTimeout > 0 && cfg.GenerateTimeout > cfg.DrainTimeout {
		logger.Warn("GenerateTimeout exceeds DrainTimeout; a job started just before shutdown may be cut off by the drain deadline",
			"generate_timeout", cfg.GenerateTimeout, "drain_timeout", cfg.DrainTimeout)
	}
}

// TestConfig returns a Config with short timeouts for tests.
func TestConfig() Config {
	cfg := DefaultConfig()
	cfg.DrainTimeout = 10 * time.Second
	cfg.StartupTimeout = 5 * time.Second
	cfg.Presence.Interval = 200 * time.Millisecond

	return cfg
}
