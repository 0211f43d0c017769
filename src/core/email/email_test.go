package email

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"redactmail-server-go/src/configs"
	"redactmail-server-go/src/core/types"
	"redactmail-server-go/src/core/utils"
)

func newTestLogger(t *testing.T) *utils.Logger {
	t.Helper()
	config := &configs.Config{}
	config.Log.LogDir = t.TempDir()
	config.Log.LogFile = "test.log"
	logger, err := utils.NewLogger(config)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { logger.Close() })
	return logger
}

// apiRecorder captures request bodies and answers with a fixed status.
type apiRecorder struct {
	status int

	mu     sync.Mutex
	bodies [][]byte
}

func (r *apiRecorder) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		r.mu.Lock()
		r.bodies = append(r.bodies, body)
		r.mu.Unlock()
		w.WriteHeader(r.status)
	}
}

func (r *apiRecorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bodies)
}

func testMessage() *Message {
	return &Message{
		To:      "alice@example.com",
		CC:      "bob@example.com",
		Subject: "redacted report",
		Body:    "Contact [NAME] at [EMAIL]",
		Attachments: []Attachment{
			{Filename: "image.png", ContentType: "image/png", Content: []byte{0x89, 0x50}},
		},
	}
}

func newTransportPair(t *testing.T, resendStatus, sendgridStatus int) (*Dispatcher, *apiRecorder, *apiRecorder) {
	t.Helper()

	resendRec := &apiRecorder{status: resendStatus}
	resendSrv := httptest.NewServer(resendRec.handler())
	t.Cleanup(resendSrv.Close)

	sendgridRec := &apiRecorder{status: sendgridStatus}
	sendgridSrv := httptest.NewServer(sendgridRec.handler())
	t.Cleanup(sendgridSrv.Close)

	resend := NewResendTransport(configs.EmailTransportConfig{APIKey: "rk", From: "noreply@example.com"})
	resend.BaseURL = resendSrv.URL
	sendgrid := NewSendGridTransport(configs.EmailTransportConfig{APIKey: "sk", From: "noreply@example.com"})
	sendgrid.BaseURL = sendgridSrv.URL

	return NewDispatcherWithTransports(newTestLogger(t), resend, sendgrid), resendRec, sendgridRec
}

func TestDispatcherPrimarySucceeds(t *testing.T) {
	dispatcher, resendRec, sendgridRec := newTransportPair(t, http.StatusOK, http.StatusAccepted)

	transport, err := dispatcher.Send(context.Background(), testMessage())
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if transport != "resend" {
		t.Errorf("expected resend, got %s", transport)
	}
	if resendRec.calls() != 1 || sendgridRec.calls() != 0 {
		t.Errorf("expected resend only, got resend=%d sendgrid=%d", resendRec.calls(), sendgridRec.calls())
	}
}

func TestDispatcherFallsBackExactlyOnce(t *testing.T) {
	dispatcher, resendRec, sendgridRec := newTransportPair(t, http.StatusInternalServerError, http.StatusAccepted)

	msg := testMessage()
	transport, err := dispatcher.Send(context.Background(), msg)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if transport != "sendgrid" {
		t.Errorf("expected sendgrid fallback, got %s", transport)
	}
	if resendRec.calls() != 1 || sendgridRec.calls() != 1 {
		t.Errorf("each transport gets exactly one attempt, got resend=%d sendgrid=%d",
			resendRec.calls(), sendgridRec.calls())
	}

	// fallback carries the identical message content
	var payload struct {
		Personalizations []struct {
			To []struct {
				Email string `json:"email"`
			} `json:"to"`
		} `json:"personalizations"`
		Content []struct {
			Value string `json:"value"`
		} `json:"content"`
	}
	if err := json.Unmarshal(sendgridRec.bodies[0], &payload); err != nil {
		t.Fatalf("decode sendgrid payload: %v", err)
	}
	if payload.Personalizations[0].To[0].Email != msg.To {
		t.Errorf("fallback recipient %q", payload.Personalizations[0].To[0].Email)
	}
	if payload.Content[0].Value != msg.Body {
		t.Errorf("fallback body %q", payload.Content[0].Value)
	}
}

func TestDispatcherAllTransportsFail(t *testing.T) {
	dispatcher, _, _ := newTransportPair(t, http.StatusInternalServerError, http.StatusBadRequest)

	_, err := dispatcher.Send(context.Background(), testMessage())
	if err == nil {
		t.Fatal("expected error when every transport fails")
	}
	var tErr *types.TransportError
	if !errors.As(err, &tErr) {
		t.Errorf("expected wrapped TransportError, got %v", err)
	}
}

func TestDispatcherValidation(t *testing.T) {
	dispatcher, resendRec, _ := newTransportPair(t, http.StatusOK, http.StatusAccepted)

	tests := []struct {
		name string
		msg  *Message
	}{
		{"missing recipient", &Message{Subject: "s", Body: "b"}},
		{"malformed recipient", &Message{To: "not-an-address", Subject: "s"}},
		{"malformed cc", &Message{To: "a@b.com", CC: "nope", Subject: "s"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dispatcher.Send(context.Background(), tt.msg)
			var vErr *types.ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if resendRec.calls() != 0 {
		t.Errorf("invalid messages must never reach a transport, got %d calls", resendRec.calls())
	}
}

func TestDispatcherDropsDuplicateCC(t *testing.T) {
	dispatcher, resendRec, _ := newTransportPair(t, http.StatusOK, http.StatusAccepted)

	msg := testMessage()
	msg.CC = "ALICE@example.com"
	if _, err := dispatcher.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}

	var payload struct {
		CC []string `json:"cc"`
	}
	if err := json.Unmarshal(resendRec.bodies[0], &payload); err != nil {
		t.Fatalf("decode resend payload: %v", err)
	}
	if len(payload.CC) != 0 {
		t.Errorf("CC matching the recipient must be dropped, got %v", payload.CC)
	}
}

func TestDeduplicateAddresses(t *testing.T) {
	tests := []struct {
		to, cc         string
		wantTo, wantCC string
	}{
		{"a@b.com", "a@b.com", "a@b.com", ""},
		{"a@b.com", "A@B.COM", "a@b.com", ""},
		{"a@b.com", "c@d.com", "a@b.com", "c@d.com"},
		{"a@b.com", "", "a@b.com", ""},
	}
	for _, tt := range tests {
		to, cc := DeduplicateAddresses(tt.to, tt.cc)
		if to != tt.wantTo || cc != tt.wantCC {
			t.Errorf("DeduplicateAddresses(%q, %q) = %q, %q", tt.to, tt.cc, to, cc)
		}
	}
}

func TestResendMissingKeyFailsFast(t *testing.T) {
	transport := NewResendTransport(configs.EmailTransportConfig{From: "x@y.com"})

	err := transport.Send(context.Background(), testMessage())
	var tErr *types.TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}
