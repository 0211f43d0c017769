package ocr

import (
	"context"
	"fmt"

	"redactmail-server-go/src/core/providers"
)

// Config mirrors configs.OCRConfig for provider construction.
type Config struct {
	Type    string
	BaseURL string
	APIKey  string
	Engine  int
}

// Fragment is one recognized word with its pixel bounding box, exactly as
// reported by the OCR backend. Boxes are never recomputed downstream.
type Fragment struct {
	Text    string `json:"text"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	ImageID string `json:"image_id,omitempty"`
}

// Provider extracts positioned text from an encoded image. An image with
// no recognizable text yields an empty slice, not an error.
type Provider interface {
	providers.Provider
	Extract(ctx context.Context, imageData []byte, format string) ([]Fragment, error)
}

// BaseProvider carries the shared config for concrete providers.
type BaseProvider struct {
	config *Config
}

// Config returns the provider configuration.
func (p *BaseProvider) Config() *Config {
	return p.config
}

// NewBaseProvider creates the shared provider base.
func NewBaseProvider(config *Config) *BaseProvider {
	return &BaseProvider{
		config: config,
	}
}

// Initialize implements providers.Provider.
func (p *BaseProvider) Initialize() error {
	return nil
}

// Cleanup implements providers.Provider.
func (p *BaseProvider) Cleanup() error {
	return nil
}

// Factory builds a provider from its config.
type Factory func(config *Config) (Provider, error)

var (
	factories = make(map[string]Factory)
)

// Register registers an OCR provider factory under name.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create builds and initializes the provider registered under name.
func Create(name string, config *Config) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown OCR provider: %s", name)
	}

	provider, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create OCR provider: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize OCR provider: %v", err)
	}

	return provider, nil
}
