package anthropic

import (
	"context"
	"fmt"

	"redactmail-server-go/src/core/providers/llm"
	"redactmail-server-go/src/core/types"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// Provider talks to the Anthropic Messages API.
type Provider struct {
	*llm.BaseProvider
	client    anthropic.Client
	maxTokens int
}

func init() {
	llm.Register("anthropic", NewProvider)
}

// NewProvider creates an Anthropic provider.
func NewProvider(config *llm.Config) (llm.Provider, error) {
	base := llm.NewBaseProvider(config)
	provider := &Provider{
		BaseProvider: base,
		maxTokens:    config.MaxTokens,
	}
	if provider.maxTokens <= 0 {
		provider.maxTokens = 4096
	}

	return provider, nil
}

// Initialize builds the API client.
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("missing Anthropic API key")
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	p.client = anthropic.NewClient(opts...)
	return nil
}

// Cleanup implements providers.Provider.
func (p *Provider) Cleanup() error {
	return nil
}

// Chat sends a single user message and returns the reply with token usage.
func (p *Provider) Chat(ctx context.Context, prompt string) (*llm.Result, error) {
	message, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(p.Config().ModelName),
		MaxTokens:   int64(p.maxTokens),
		Temperature: anthropic.Float(p.Config().Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return nil, types.NewTransportError("anthropic.messages", err)
	}

	usage := int(message.Usage.InputTokens + message.Usage.OutputTokens)
	for _, block := range message.Content {
		if block.Type == "text" {
			return &llm.Result{
				Content:     block.Text,
				TotalTokens: usage,
			}, nil
		}
	}
	return nil, types.NewTransportError("anthropic.messages", fmt.Errorf("no text content in response"))
}
