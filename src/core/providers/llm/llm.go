package llm

import (
	"context"
	"fmt"

	"redactmail-server-go/src/core/providers"
)

// Config mirrors configs.LLMConfig for provider construction.
type Config struct {
	Type        string
	ModelName   string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// Result is one completed chat call.
type Result struct {
	Content     string
	TotalTokens int
}

// Provider is a chat-completion backend. Chat sends a single user prompt
// at the configured temperature and returns the generated text plus the
// provider-reported token usage.
type Provider interface {
	providers.Provider
	Chat(ctx context.Context, prompt string) (*Result, error)
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

// Register registers an LLM provider factory under name.
func Register(name string, factory Factory) {
	factories[name] = factory
}

// Create builds and initializes the provider registered under name.
func Create(name string, config *Config) (Provider, error) {
	factory, ok := factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown LLM provider: %s", name)
	}

	provider, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM provider: %v", err)
	}

	if err := provider.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize LLM provider: %v", err)
	}

	return provider, nil
}
