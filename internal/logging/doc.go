// Package logging provides types.Logger implementations: a log/slog adapter, a zap
// adapter with optional rotated file output, and a no-op logger.
package logging
