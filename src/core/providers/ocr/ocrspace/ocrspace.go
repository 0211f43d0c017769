package ocrspace

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"redactmail-server-go/src/core/providers/ocr"
	"redactmail-server-go/src/core/types"
)

const defaultBaseURL = "https://api.ocr.space/parse/image"

// Provider talks to the OCR.space parse API with word-level overlay output.
type Provider struct {
	*ocr.BaseProvider
	httpClient *http.Client
}

// parseResponse is the OCR.space response envelope.
type parseResponse struct {
	ParsedResults []struct {
		TextOverlay struct {
			Lines []struct {
				Words []struct {
					WordText string  `json:"WordText"`
					Left     float64 `json:"Left"`
					Top      float64 `json:"Top"`
					Width    float64 `json:"Width"`
					Height   float64 `json:"Height"`
				} `json:"Words"`
			} `json:"Lines"`
		} `json:"TextOverlay"`
		ParsedText string `json:"ParsedText"`
	} `json:"ParsedResults"`
	IsErroredOnProcessing bool            `json:"IsErroredOnProcessing"`
	ErrorMessage          json.RawMessage `json:"ErrorMessage"`
}

func init() {
	ocr.Register("ocrspace", NewProvider)
}

// NewProvider creates an OCR.space provider.
func NewProvider(config *ocr.Config) (ocr.Provider, error) {
	return &Provider{
		BaseProvider: ocr.NewBaseProvider(config),
		httpClient:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Initialize validates credentials and applies endpoint defaults.
func (p *Provider) Initialize() error {
	config := p.Config()
	if config.APIKey == "" {
		return fmt.Errorf("missing OCR.space API key")
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Engine == 0 {
		// engine 2 handles structured layouts better
		config.Engine = 2
	}
	return nil
}

// Cleanup implements providers.Provider.
func (p *Provider) Cleanup() error {
	return nil
}

// Extract sends the image and flattens the nested line/word overlay into a
// single ordered fragment slice. No text found is an empty slice, nil error.
func (p *Provider) Extract(ctx context.Context, imageData []byte, format string) ([]ocr.Fragment, error) {
	if format == "" {
		format = "png"
	}
	imageB64 := base64.StdEncoding.EncodeToString(imageData)

	form := url.Values{}
	form.Set("apikey", p.Config().APIKey)
	form.Set("base64Image", fmt.Sprintf("data:image/%s;base64,%s", format, imageB64))
	form.Set("OCREngine", strconv.Itoa(p.Config().Engine))
	form.Set("isOverlayRequired", "true")
	form.Set("scale", "true")
	form.Set("isTable", "false")
	form.Set("detectOrientation", "true")

	req, err := http.NewRequestWithContext(ctx, "POST", p.Config().BaseURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build OCR request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, types.NewTransportError("ocrspace.parse", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, types.NewTransportError("ocrspace.parse",
			fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 200)))
	}

	var result parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, types.NewTransportError("ocrspace.parse", fmt.Errorf("failed to decode response: %v", err))
	}

	if result.IsErroredOnProcessing {
		return nil, types.NewTransportError("ocrspace.parse",
			fmt.Errorf("processing error: %s", decodeErrorMessage(result.ErrorMessage)))
	}

	var fragments []ocr.Fragment
	for _, parsed := range result.ParsedResults {
		for _, line := range parsed.TextOverlay.Lines {
			for _, word := range line.Words {
				text := strings.TrimSpace(word.WordText)
				if text == "" {
					continue
				}
				fragments = append(fragments, ocr.Fragment{
					Text:   text,
					X:      int(word.Left),
					Y:      int(word.Top),
					Width:  int(word.Width),
					Height: int(word.Height),
				})
			}
		}
	}

	return fragments, nil
}

// decodeErrorMessage handles the API returning ErrorMessage as either a
// string or a list of strings.
func decodeErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "unknown error"
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}
	var many []string
	if err := json.Unmarshal(raw, &many); err == nil && len(many) > 0 {
		return many[0]
	}
	return string(raw)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
