package email

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"redactmail-server-go/src/configs"
	"redactmail-server-go/src/core/types"
	"redactmail-server-go/src/core/utils"
)

// Attachment is one file attached to an outgoing message. Content is the
// raw bytes; transports encode as their API requires.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message is the uniform shape every transport accepts.
type Message struct {
	From        string
	To          string
	CC          string
	Subject     string
	Body        string
	Attachments []Attachment
}

// Transport delivers a message over one specific channel.
type Transport interface {
	Name() string
	Send(ctx context.Context, msg *Message) error
}

// Dispatcher tries an ordered list of transports until one succeeds.
// Development uses the local mailpit relay; production tries resend first
// and falls back to sendgrid exactly once.
type Dispatcher struct {
	transports []Transport
	logger     *utils.TaggedLogger
}

// NewDispatcher builds the transport chain from config.
func NewDispatcher(cfg configs.EmailConfig, logger *utils.Logger) *Dispatcher {
	var transports []Transport
	if cfg.UseProduction {
		transports = []Transport{
			NewResendTransport(cfg.Resend),
			NewSendGridTransport(cfg.SendGrid),
		}
	} else {
		transports = []Transport{
			NewMailpitTransport(cfg.Mailpit),
		}
	}
	return &Dispatcher{
		transports: transports,
		logger:     logger.WithTag("email"),
	}
}

// NewDispatcherWithTransports exists for callers that assemble their own
// chain (tests mostly).
func NewDispatcherWithTransports(logger *utils.Logger, transports ...Transport) *Dispatcher {
	return &Dispatcher{
		transports: transports,
		logger:     logger.WithTag("email"),
	}
}

// Send validates the message, deduplicates recipients, and walks the
// transport chain. Returns the name of the transport that delivered it.
func (d *Dispatcher) Send(ctx context.Context, msg *Message) (string, error) {
	if err := validateMessage(msg); err != nil {
		return "", err
	}

	cleaned := *msg
	cleaned.To, cleaned.CC = DeduplicateAddresses(msg.To, msg.CC)

	var lastErr error
	for _, transport := range d.transports {
		err := transport.Send(ctx, &cleaned)
		if err == nil {
			d.logger.Info(fmt.Sprintf("email sent via %s to %s", transport.Name(), cleaned.To))
			return transport.Name(), nil
		}
		d.logger.Warn(fmt.Sprintf("transport %s failed: %v", transport.Name(), err))
		lastErr = err
	}

	return "", fmt.Errorf("all email transports failed: %w", lastErr)
}

func validateMessage(msg *Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return &types.ValidationError{Field: "to", Reason: "recipient is required"}
	}
	if _, err := mail.ParseAddress(msg.To); err != nil {
		return &types.ValidationError{Field: "to", Reason: fmt.Sprintf("malformed address %q", msg.To)}
	}
	if msg.CC != "" {
		if _, err := mail.ParseAddress(msg.CC); err != nil {
			return &types.ValidationError{Field: "cc", Reason: fmt.Sprintf("malformed address %q", msg.CC)}
		}
	}
	return nil
}

// DeduplicateAddresses drops the CC when it matches the primary recipient.
// Resend and SendGrid both reject duplicate addresses across to/cc/bcc.
func DeduplicateAddresses(to, cc string) (string, string) {
	toNorm := strings.ToLower(strings.TrimSpace(to))
	ccNorm := strings.ToLower(strings.TrimSpace(cc))
	if ccNorm != "" && ccNorm == toNorm {
		return to, ""
	}
	return to, cc
}
