// Package pattern provides a deterministic procedural image backend.
//
// The same parameters always produce the same PNG bytes. Each step adds one
// seeded translucent disc to a seeded gradient, and the prompt is stamped in the
// bottom-left corner. It needs no model or network and is the default backend
// for development and tests.
package pattern

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math/rand/v2"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/arloliu/imgpool/types"
)

// MediaType is the media type of every image this backend produces.
const MediaType = "image/png"

var (
	// ErrInvalidSize is returned for non-positive dimensions.
	ErrInvalidSize = errors.New("pattern: width and height must be positive")

	// ErrUnknownCompression is returned by Config.Options for an unknown level name.
	ErrUnknownCompression = errors.New("pattern: unknown compression level")
)

// Config is the file and environment configuration of the backend.
type Config struct {
	// NoLabel disables drawing the prompt onto the image. Default: false.
	NoLabel bool `yaml:"noLabel" env:"IMGPOOL_PATTERN_NO_LABEL"`

	// Compression is the PNG compression level: "speed" (default), "default",
	// "best" or "none".
	Compression string `yaml:"compression" env:"IMGPOOL_PATTERN_COMPRESSION"`
}

var compressionLevels = map[string]png.CompressionLevel{
	"":        png.BestSpeed,
	"speed":   png.BestSpeed,
	"default": png.DefaultCompression,
	"best":    png.BestCompression,
	"none":    png.NoCompression,
}

// Options converts cfg into constructor options.
func (cfg Config) Options() ([]Option, error) {
	level, ok := compressionLevels[cfg.Compression]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, cfg.Compression)
	}

	opts := []Option{WithCompression(level)}
	if cfg.NoLabel {
		opts = append(opts, WithoutLabel())
	}

	return opts, nil
}

// streamKey is the second PCG word; the seed is the first.
const streamKey = 0x696d67706f6f6c

// Backend renders procedural PNG images. It is safe for concurrent use.
type Backend struct {
	face        font.Face
	compression png.CompressionLevel
	label       bool
}

var _ types.Backend = (*Backend)(nil)

// Option configures a Backend.
type Option func(*Backend)

// WithoutLabel disables drawing the prompt onto the image.
func WithoutLabel() Option {
	return func(b *Backend) {
		b.label = false
	}
}

// WithCompression sets the PNG compression level. Default: png.BestSpeed.
func WithCompression(level png.CompressionLevel) Option {
	return func(b *Backend) {
		b.compression = level
	}
}

// New creates a pattern backend.
//
// Example:
//
//	b := pattern.New()
//	img, err := b.Generate(ctx, types.GenerateParams{Seed: 1, Prompt: "cat", NumSteps: 10, Height: 256, Width: 256})
func New(opts ...Option) *Backend {
	b := &Backend{
		face:        basicfont.Face7x13,
		compression: png.BestSpeed,
		label:       true,
	}
	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Generate implements types.Backend. ctx is checked before every step.
func (b *Backend) Generate(ctx context.Context, params types.GenerateParams) (types.Image, error) {
	if params.Width <= 0 || params.Height <= 0 {
		return types.Image{}, fmt.Errorf("%w: %dx%d", ErrInvalidSize, params.Width, params.Height)
	}

	rng := rand.New(rand.NewPCG(uint64(params.Seed), streamKey)) //nolint:gosec // determinism, not security
	canvas := image.NewRGBA(image.Rect(0, 0, params.Width, params.Height))

	gradient(canvas, randomColor(rng, 255), randomColor(rng, 255))

	for step := 0; step < params.NumSteps; step++ {
		if err := ctx.Err(); err != nil {
			return types.Image{}, err
		}
		disc(canvas, rng)
	}

	if b.label && params.Prompt != "" {
		b.drawLabel(canvas, params.Prompt)
	}

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: b.compression}
	if err := enc.Encode(&buf, canvas); err != nil {
		return types.Image{}, fmt.Errorf("encode png: %w", err)
	}

	return types.Image{Data: buf.Bytes(), MediaType: MediaType}, nil
}

func randomColor(rng *rand.Rand, alpha uint8) color.NRGBA {
	return color.NRGBA{
		R: uint8(rng.IntN(256)), //nolint:gosec // bounded by IntN
		G: uint8(rng.IntN(256)), //nolint:gosec // bounded by IntN
		B: uint8(rng.IntN(256)), //nolint:gosec // bounded by IntN
		A: alpha,
	}
}

// gradient fills img with a vertical blend from top to bottom.
func gradient(img *image.RGBA, top, bottom color.NRGBA) {
	bounds := img.Bounds()
	h := bounds.Dy()
	for y := 0; y < h; y++ {
		c := lerp(top, bottom, y, h)
		row := image.Rect(bounds.Min.X, y, bounds.Max.X, y+1)
		draw.Draw(img, row, image.NewUniform(c), image.Point{}, draw.Src)
	}
}

func lerp(a, b color.NRGBA, i, n int) color.NRGBA {
	if n <= 1 {
		return a
	}
	mix := func(x, y uint8) uint8 {
		return uint8((int(x)*(n-1-i) + int(y)*i) / (n - 1)) //nolint:gosec // weighted mean of two uint8
	}

	return color.NRGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: 255}
}

// disc composites one seeded translucent circle onto img.
func disc(img *image.RGBA, rng *rand.Rand) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	maxR := max(1, min(w, h)/4)

	cx, cy := rng.IntN(w), rng.IntN(h)
	r := 1 + rng.IntN(maxR)
	c := randomColor(rng, uint8(48+rng.IntN(96))) //nolint:gosec // bounded by IntN

	area := image.Rect(cx-r, cy-r, cx+r+1, cy+r+1).Intersect(bounds)
	mask := &circle{center: image.Pt(cx, cy), r: r}
	draw.DrawMask(img, area, image.NewUniform(c), image.Point{}, mask, area.Min, draw.Over)
}

type circle struct {
	center image.Point
	r      int
}

func (c *circle) ColorModel() color.Model { return color.AlphaModel }

func (c *circle) Bounds() image.Rectangle {
	return image.Rect(c.center.X-c.r, c.center.Y-c.r, c.center.X+c.r+1, c.center.Y+c.r+1)
}

func (c *circle) At(x, y int) color.Color {
	dx, dy := x-c.center.X, y-c.center.Y
	if dx*dx+dy*dy <= c.r*c.r {
		return color.Alpha{A: 255}
	}

	return color.Alpha{A: 0}
}

// drawLabel stamps the prompt, truncated to the image width, near the bottom-left corner.
func (b *Backend) drawLabel(img *image.RGBA, text string) {
	metrics := b.face.Metrics()
	lineHeight := metrics.Height.Ceil()
	bounds := img.Bounds()
	if bounds.Dy() < lineHeight+2 || bounds.Dx() < 8 {
		return
	}

	d := &font.Drawer{Dst: img, Src: image.NewUniform(color.White), Face: b.face}
	limit := fixed.I(bounds.Dx() - 4)
	runes := []rune(text)
	for len(runes) > 0 && d.MeasureString(string(runes)) > limit {
		runes = runes[:len(runes)-1]
	}

	shadow := image.Rect(0, bounds.Max.Y-lineHeight-2, d.MeasureString(string(runes)).Ceil()+4, bounds.Max.Y)
	draw.Draw(img, shadow, image.NewUniform(color.RGBA{A: 160}), image.Point{}, draw.Over)

	d.Dot = fixed.Point26_6{X: fixed.I(2), Y: fixed.I(bounds.Max.Y - 2 - metrics.Descent.Ceil())}
	d.DrawString(string(runes))
}
