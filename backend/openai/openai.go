// Package openai provides a backend that generates images through the OpenAI
// images API (or any API-compatible endpoint).
//
// The hosted API takes no seed or step count, so those parameters are ignored.
// The requested dimensions must be one of the sizes the model supports.
package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"github.com/arloliu/imgpool/types"
)

var (
	// ErrAPIKeyRequired is returned by New without an API key.
	ErrAPIKeyRequired = errors.New("openai: API key is required")

	// ErrUnsupportedSize is returned when width x height is not a size the model accepts.
	ErrUnsupportedSize = errors.New("openai: unsupported image size")

	// ErrEmptyResponse is returned when the API answers without image data.
	ErrEmptyResponse = errors.New("openai: response contained no image")
)

// Config configures the OpenAI backend.
type Config struct {
	// APIKey authenticates against the API. Required.
	APIKey string `yaml:"apiKey" env:"IMGPOOL_OPENAI_API_KEY"`

	// BaseURL overrides the API endpoint. Default: https://api.openai.com/v1.
	BaseURL string `yaml:"baseURL" env:"IMGPOOL_OPENAI_BASE_URL"`

	// Model is the image model. Default: "dall-e-2".
	Model string `yaml:"model" env:"IMGPOOL_OPENAI_MODEL"`

	// Timeout bounds one HTTP call. Default: 2 minutes.
	Timeout time.Duration `yaml:"timeout" env:"IMGPOOL_OPENAI_TIMEOUT"`
}

// SetDefaults fills zero-valued fields.
func (c *Config) SetDefaults() {
	if c.Model == "" {
		c.Model = oai.CreateImageModelDallE2
	}
	if c.Timeout == 0 {
		c.Timeout = 2 * time.Minute
	}
}

var supportedSizes = map[string][]string{
	oai.CreateImageModelDallE2: {
		oai.CreateImageSize256x256,
		oai.CreateImageSize512x512,
		oai.CreateImageSize1024x1024,
	},
	oai.CreateImageModelDallE3: {
		oai.CreateImageSize1024x1024,
		oai.CreateImageSize1792x1024,
		oai.CreateImageSize1024x1792,
	},
}

// Backend calls the images API. It is safe for concurrent use.
type Backend struct {
	client *oai.Client
	model  string
}

var _ types.Backend = (*Backend)(nil)

// New creates an OpenAI backend.
//
// Parameters:
//   - cfg: API key, endpoint and model
//
// Returns:
//   - *Backend: The backend
//   - error: ErrAPIKeyRequired when cfg.APIKey is empty
func New(cfg Config) (*Backend, error) {
	if cfg.APIKey == "" {
		return nil, ErrAPIKeyRequired
	}
	cfg.SetDefaults()

	clientConfig := oai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Backend{
		client: oai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// Size formats width and height the way the API expects them.
func Size(width, height int) string {
	return fmt.Sprintf("%dx%d", width, height)
}

// Supports reports whether the model accepts the size. Models outside the known
// set are passed through unchecked.
func (b *Backend) Supports(width, height int) bool {
	sizes, known := supportedSizes[b.model]
	if !known {
		return true
	}
	size := Size(width, height)
	for _, s := range sizes {
		if s == size {
			return true
		}
	}

	return false
}

// Generate implements types.Backend.
func (b *Backend) Generate(ctx context.Context, params types.GenerateParams) (types.Image, error) {
	if !b.Supports(params.Width, params.Height) {
		return types.Image{}, fmt.Errorf("%w: %s for model %s", ErrUnsupportedSize, Size(params.Width, params.Height), b.model)
	}

	resp, err := b.client.CreateImage(ctx, oai.ImageRequest{
		Prompt:         params.Prompt,
		Model:          b.model,
		N:              1,
		Size:           Size(params.Width, params.Height),
		ResponseFormat: oai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		return types.Image{}, fmt.Errorf("create image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return types.Image{}, ErrEmptyResponse
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return types.Image{}, fmt.Errorf("decode image data: %w", err)
	}

	return types.Image{Data: data, MediaType: http.DetectContentType(data)}, nil
}
