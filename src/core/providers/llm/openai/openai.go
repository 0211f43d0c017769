package openai

import (
	"context"
	"fmt"

	"redactmail-server-go/src/core/providers/llm"
	"redactmail-server-go/src/core/types"

	"github.com/sashabaranov/go-openai"
)

// Provider talks to any OpenAI-compatible chat-completions endpoint
// (OpenAI, Groq, and similar gateways differ only in BaseURL).
type Provider struct {
	*llm.BaseProvider
	client    *openai.Client
	maxTokens int
}

func init() {
	llm.Register("openai", NewProvider)
}

// NewProvider creates an OpenAI-compatible provider.
func NewProvider(config *llm.Config) (llm.Provider, error) {
	base := llm.NewBaseProvider(config)
	provider := &Provider{
		BaseProvider: base,
		maxTokens:    config.MaxTokens,
	}

	return provider, nil
}

// Initialize builds the API client.
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("missing OpenAI API key")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	p.client = openai.NewClientWithConfig(clientConfig)
	return nil
}

// Cleanup implements providers.Provider.
func (p *Provider) Cleanup() error {
	return nil
}

// Chat sends a single user message and returns the reply with token usage.
func (p *Provider) Chat(ctx context.Context, prompt string) (*llm.Result, error) {
	req := openai.ChatCompletionRequest{
		Model: p.Config().ModelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: float32(p.Config().Temperature),
	}
	if p.maxTokens > 0 {
		req.MaxTokens = p.maxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, types.NewTransportError("openai.chat", err)
	}

	if len(resp.Choices) == 0 {
		return nil, types.NewTransportError("openai.chat", fmt.Errorf("response contains no choices"))
	}

	return &llm.Result{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
