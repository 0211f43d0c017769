package redact

import "redactmail-server-go/src/core/redaction"

// TextPayload is the text stage of a response.
type TextPayload struct {
	Body        string `json:"body"`
	TotalTokens int    `json:"total_tokens"`
	Success     bool   `json:"success"`
	Error       string `json:"error,omitempty"`
}

// ImagePayload is one image's outcome. Redacted carries the (possibly
// unmodified) image as base64; Failed marks it as left unredacted.
type ImagePayload struct {
	ID       string `json:"id"`
	Redacted string `json:"redacted"`
	Failed   bool   `json:"failed"`
	Error    string `json:"error,omitempty"`
}

// RedactResponse is the full pipeline result returned to the UI.
type RedactResponse struct {
	Success   bool                      `json:"success"`
	RequestID string                    `json:"request_id,omitempty"`
	State     string                    `json:"state,omitempty"`
	Text      *TextPayload              `json:"text,omitempty"`
	Images    []ImagePayload            `json:"images,omitempty"`
	Events    []redaction.ProgressEvent `json:"events,omitempty"`
	Message   string                    `json:"message,omitempty"`
}

// SendRequest asks for the final (possibly hand-edited) content to be
// delivered. Images are base64.
type SendRequest struct {
	RequestID string   `json:"request_id,omitempty"`
	To        string   `json:"to"`
	CC        string   `json:"cc,omitempty"`
	Subject   string   `json:"subject"`
	Body      string   `json:"body"`
	Images    []string `json:"images,omitempty"`
}

// SendResponse reports which transport delivered the message.
type SendResponse struct {
	Success   bool   `json:"success"`
	Transport string `json:"transport,omitempty"`
	Message   string `json:"message,omitempty"`
}

// AuthRequest exchanges the shared server secret for a bearer token.
type AuthRequest struct {
	ClientID string `json:"client_id"`
	Secret   string `json:"secret"`
}

// AuthResponse carries the issued token.
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}
