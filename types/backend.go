package types

import "context"

// GenerateParams are the validated inputs of a single image generation.
type GenerateParams struct {
	Seed     int64
	Prompt   string
	NumSteps int
	Height   int
	Width    int
}

// Image is the output of a successful generation: an opaque encoded payload and
// the media type that describes it (for example "image/png").
type Image struct {
	Data      []byte
	MediaType string
}

// Backend generates images from validated parameters.
//
// Implementations are assumed heavy and not safe for concurrent use unless they
// document otherwise. The context carries cancellation from the caller; whether a
// backend honors it mid-generation is up to the backend.
type Backend interface {
	// Generate produces one image.
	//
	// Parameters:
	//   - ctx: Context for cancellation
	//   - params: Validated generation parameters
	//
	// Returns:
	//   - Image: Encoded image and its media type
	//   - error: Generation failure
	Generate(ctx context.Context, params GenerateParams) (Image, error)
}

// BackendFunc adapts a function to the Backend interface.
type BackendFunc func(ctx context.Context, params GenerateParams) (Image, error)

// Generate calls f(ctx, params).
func (f BackendFunc) Generate(ctx context.Context, params GenerateParams) (Image, error) {
	return f(ctx, params)
}
