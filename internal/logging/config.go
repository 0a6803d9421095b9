package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/arloliu/imgpool/types"
)

// Driver names accepted by Config.Driver.
const (
	DriverSlog = "slog"
	DriverZap  = "zap"
)

// ErrUnknownDriver is returned for a Config.Driver other than "slog" or "zap".
var ErrUnknownDriver = errors.New("logging: unknown driver")

// Config selects and tunes the process logger.
type Config struct {
	// Driver is "slog" (default) or "zap".
	Driver string `yaml:"driver" env:"IMGPOOL_LOG_DRIVER"`

	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level" env:"IMGPOOL_LOG_LEVEL"`

	// Format is "text" (default) or "json".
	Format string `yaml:"format" env:"IMGPOOL_LOG_FORMAT"`

	// File, when set, also writes logs to this path with size-based rotation.
	File string `yaml:"file" env:"IMGPOOL_LOG_FILE"`

	// MaxSizeMB is the rotation threshold of File. Default: 100.
	MaxSizeMB int `yaml:"maxSizeMB" env:"IMGPOOL_LOG_MAX_SIZE_MB"`

	// MaxBackups is the number of rotated files kept. Default: 5.
	MaxBackups int `yaml:"maxBackups" env:"IMGPOOL_LOG_MAX_BACKUPS"`

	// MaxAgeDays is how long rotated files are kept. Default: 28.
	MaxAgeDays int `yaml:"maxAgeDays" env:"IMGPOOL_LOG_MAX_AGE_DAYS"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSlog
	}
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.MaxSizeMB <= 0 {
		c.MaxSizeMB = 100
	}
	if c.MaxBackups <= 0 {
		c.MaxBackups = 5
	}
	if c.MaxAgeDays <= 0 {
		c.MaxAgeDays = 28
	}
}

// New builds a logger from cfg writing to w (and to cfg.File when set).
//
// Parameters:
//   - cfg: Logger configuration; defaults are applied to a copy
//   - w: Console destination, usually os.Stderr
//
// Returns:
//   - types.Logger: The configured logger
//   - func() error: Flushes and closes outputs; call on shutdown
//   - error: Unknown driver, level or format
func New(cfg Config, w io.Writer) (types.Logger, func() error, error) {
	cfg.SetDefaults()

	var (
		file    *lumberjack.Logger
		closers []func() error
	)
	if cfg.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		closers = append(closers, file.Close)
	}
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}

		return errors.Join(errs...)
	}

	switch strings.ToLower(cfg.Driver) {
	case DriverSlog:
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			return nil, nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
		out := w
		if file != nil {
			out = io.MultiWriter(w, file)
		}
		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		switch cfg.Format {
		case "json":
			handler = slog.NewJSONHandler(out, opts)
		case "text":
			handler = slog.NewTextHandler(out, opts)
		default:
			return nil, nil, fmt.Errorf("logging: invalid format %q", cfg.Format)
		}

		return NewSlog(slog.New(handler)), closeAll, nil

	case DriverZap:
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			return nil, nil, fmt.Errorf("logging: invalid level %q: %w", cfg.Level, err)
		}
		encCfg := zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		var enc zapcore.Encoder
		switch cfg.Format {
		case "json":
			enc = zapcore.NewJSONEncoder(encCfg)
		case "text":
			enc = zapcore.NewConsoleEncoder(encCfg)
		default:
			return nil, nil, fmt.Errorf("logging: invalid format %q", cfg.Format)
		}
		sink := zapcore.AddSync(w)
		if file != nil {
			sink = zapcore.NewMultiWriteSyncer(sink, zapcore.AddSync(file))
		}
		logger := NewZap(zap.New(zapcore.NewCore(enc, sink, level), zap.AddCaller()))
		closers = append([]func() error{func() error {
			// Sync on a console writer returns EINVAL on some platforms; nothing to act on.
			_ = logger.Sync()
			return nil
		}}, closers...)

		return logger, closeAll, nil

	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
