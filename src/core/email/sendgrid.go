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

const defaultSendGridURL = "https://api.sendgrid.com/v3/mail/send"

// SendGridTransport delivers mail through the SendGrid v3 API.
type SendGridTransport struct {
	config     configs.EmailTransportConfig
	BaseURL    string
	httpClient *http.Client
}

type sendgridAddress struct {
	Email string `json:"email"`
}

type sendgridPersonalization struct {
	To []sendgridAddress `json:"to"`
	CC []sendgridAddress `json:"cc,omitempty"`
}

type sendgridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendgridAttachment struct {
	Content     string `json:"content"` // base64
	Filename    string `json:"filename"`
	Type        string `json:"type"`
	Disposition string `json:"disposition"`
}

type sendgridRequest struct {
	Personalizations []sendgridPersonalization `json:"personalizations"`
	From             sendgridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendgridContent         `json:"content"`
	Attachments      []sendgridAttachment      `json:"attachments,omitempty"`
}

func NewSendGridTransport(config configs.EmailTransportConfig) *SendGridTransport {
	return &SendGridTransport{
		config:     config,
		BaseURL:    defaultSendGridURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *SendGridTransport) Name() string { return "sendgrid" }

// Send posts the message as JSON; SendGrid acknowledges with 202.
func (t *SendGridTransport) Send(ctx context.Context, msg *Message) error {
	if t.config.APIKey == "" {
		return types.NewTransportError("sendgrid.send", fmt.Errorf("missing API key"))
	}

	from := msg.From
	if from == "" {
		from = t.config.From
	}

	personalization := sendgridPersonalization{
		To: []sendgridAddress{{Email: msg.To}},
	}
	if msg.CC != "" {
		personalization.CC = []sendgridAddress{{Email: msg.CC}}
	}

	body := sendgridRequest{
		Personalizations: []sendgridPersonalization{personalization},
		From:             sendgridAddress{Email: from},
		Subject:          msg.Subject,
		Content: []sendgridContent{
			{Type: "text/plain", Value: msg.Body},
		},
	}
	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		body.Attachments = append(body.Attachments, sendgridAttachment{
			Content:     base64.StdEncoding.EncodeToString(att.Content),
			Filename:    att.Filename,
			Type:        contentType,
			Disposition: "attachment",
		})
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal sendgrid request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", t.BaseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to build sendgrid request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return types.NewTransportError("sendgrid.send", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return types.NewTransportError("sendgrid.send",
			fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}
	return nil
}
