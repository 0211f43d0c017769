package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"redactmail-server-go/src/configs"
	"redactmail-server-go/src/core/types"
)

const defaultResendURL = "https://api.resend.com/emails"

// ResendTransport delivers mail through the Resend HTTP API.
type ResendTransport struct {
	config     configs.EmailTransportConfig
	BaseURL    string
	httpClient *http.Client
}

type resendRequest struct {
	From        string             `json:"from"`
	To          []string           `json:"to"`
	CC          []string           `json:"cc,omitempty"`
	Subject     string             `json:"subject"`
	Text        string             `json:"text"`
	Attachments []resendAttachment `json:"attachments,omitempty"`
}

type resendAttachment struct {
	Filename string `json:"filename"`
	Content  string `json:"content"` // base64
}

func NewResendTransport(config configs.EmailTransportConfig) *ResendTransport {
	return &ResendTransport{
		config:     config,
		BaseURL:    defaultResendURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *ResendTransport) Name() string { return "resend" }

// Send posts the message as JSON with base64 attachments.
func (t *ResendTransport) Send(ctx context.Context, msg *Message) error {
	if t.config.APIKey == "" {
		return types.NewTransportError("resend.send", fmt.Errorf("missing API key"))
	}

	from := msg.From
	if from == "" {
		from = t.config.From
	}

	body := resendRequest{
		From:    from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Text:    msg.Body,
	}
	if msg.CC != "" {
		body.CC = []string{msg.CC}
	}
	for _, att := range msg.Attachments {
		body.Attachments = append(body.Attachments, resendAttachment{
			Filename: att.Filename,
			Content:  base64.StdEncoding.EncodeToString(att.Content),
		})
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal resend request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.BaseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build resend request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return types.NewTransportError("resend.send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return types.NewTransportError("resend.send",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	return nil
}
