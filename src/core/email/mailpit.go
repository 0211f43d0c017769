package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"net/smtp"

	"redactmail-server-go/src/configs"
	"redactmail-server-go/src/core/types"
)

// MailpitTransport delivers mail to a local mailpit SMTP relay
// (https://mailpit.axllent.org), the development stand-in for the HTTP
// providers. No authentication, nothing leaves the machine.
type MailpitTransport struct {
	config configs.EmailTransportConfig
}

func NewMailpitTransport(config configs.EmailTransportConfig) *MailpitTransport {
	return &MailpitTransport{config: config}
}

func (t *MailpitTransport) Name() string { return "mailpit" }

// Send builds a MIME message and hands it to the relay.
func (t *MailpitTransport) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	from := msg.From
	if from == "" {
		from = t.config.From
	}

	recipients := []string{msg.To}
	if msg.CC != "" {
		recipients = append(recipients, msg.CC)
	}

	data := buildMIMEMessage(from, msg)

	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)
	if err := smtp.SendMail(addr, nil, from, recipients, data); err != nil {
		return types.NewTransportError("mailpit.send", err)
	}
	return nil
}

// buildMIMEMessage assembles a multipart/mixed message with the body as
// text/plain and every attachment base64-encoded.
func buildMIMEMessage(from string, msg *Message) []byte {
	const boundary = "redactmail-boundary"

	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	if msg.CC != "" {
		fmt.Fprintf(&b, "Cc: %s\r\n", msg.CC)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", msg.Subject))
	b.WriteString("MIME-Version: 1.0\r\n")

	if len(msg.Attachments) == 0 {
		b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
		b.WriteString(msg.Body)
		return b.Bytes()
	}

	fmt.Fprintf(&b, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", boundary)

	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	for _, att := range msg.Attachments {
		contentType := att.ContentType
		if contentType == "" {
			contentType = "image/png"
		}
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)
		b.WriteString("Content-Transfer-Encoding: base64\r\n")
		fmt.Fprintf(&b, "Content-Disposition: attachment; filename=%q\r\n\r\n", att.Filename)

		encoded := base64.StdEncoding.EncodeToString(att.Content)
		for len(encoded) > 76 {
			b.WriteString(encoded[:76])
			b.WriteString("\r\n")
			encoded = encoded[76:]
		}
		b.WriteString(encoded)
		b.WriteString("\r\n")
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return b.Bytes()
}
