package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"redactmail-server-go/src/core/providers/llm"
	"redactmail-server-go/src/core/types"
)

// Provider talks to a local Ollama instance. No API key required.
type Provider struct {
	*llm.BaseProvider
	httpClient *http.Client
}

// ollamaRequest is the /api/chat request body.
type ollamaRequest struct {
	Model    string                 `json:"model"`
	Messages []ollamaMessage        `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ollamaResponse is the non-streaming /api/chat response body.
type ollamaResponse struct {
	Model   string `json:"model"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func init() {
	llm.Register("ollama", NewProvider)
}

// NewProvider creates an Ollama provider.
func NewProvider(config *llm.Config) (llm.Provider, error) {
	return &Provider{
		BaseProvider: llm.NewBaseProvider(config),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Initialize applies the default local endpoint when none is configured.
func (p *Provider) Initialize() error {
	if p.Config().BaseURL == "" {
		p.Config().BaseURL = "http://localhost:11434"
	}
	return nil
}

// Cleanup implements providers.Provider.
func (p *Provider) Cleanup() error {
	return nil
}

// Chat sends a single user message and returns the reply with token usage.
func (p *Provider) Chat(ctx context.Context, prompt string) (*llm.Result, error) {
	reqBody := ollamaRequest{
		Model: p.Config().ModelName,
		Messages: []ollamaMessage{
			{Role: "user", Content: prompt},
		},
		Stream: false,
		Options: map[string]interface{}{
			"temperature": p.Config().Temperature,
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal ollama request: %v", err)
	}

	url := p.Config().BaseURL + "/api/chat"
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to build ollama request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, types.NewTransportError("ollama.chat", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, types.NewTransportError("ollama.chat",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var ollamaResp ollamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&ollamaResp); err != nil {
		return nil, types.NewTransportError("ollama.chat", fmt.Errorf("failed to decode response: %v", err))
	}

	return &llm.Result{
		Content:     ollamaResp.Message.Content,
		TotalTokens: ollamaResp.PromptEvalCount + ollamaResp.EvalCount,
	}, nil
}
