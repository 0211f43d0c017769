package email

import (
	"strings"
	"testing"
)

func TestBuildMIMEMessagePlain(t *testing.T) {
	msg := &Message{
		To:      "alice@example.com",
		Subject: "hello",
		Body:    "plain body",
	}
	data := string(buildMIMEMessage("noreply@localhost", msg))

	for _, want := range []string{
		"From: noreply@localhost\r\n",
		"To: alice@example.com\r\n",
		"Subject: hello\r\n",
		"Content-Type: text/plain; charset=utf-8\r\n\r\nplain body",
	} {
		if !strings.Contains(data, want) {
			t.Errorf("missing %q in:\n%s", want, data)
		}
	}
	if strings.Contains(data, "multipart/mixed") {
		t.Error("message without attachments must stay single-part")
	}
	if strings.Contains(data, "Cc:") {
		t.Error("empty CC must not emit a header")
	}
}

func TestBuildMIMEMessageWithAttachment(t *testing.T) {
	msg := testMessage()
	data := string(buildMIMEMessage("noreply@localhost", msg))

	for _, want := range []string{
		"Cc: bob@example.com\r\n",
		"Content-Type: multipart/mixed; boundary=redactmail-boundary",
		"Content-Type: image/png\r\n",
		"Content-Transfer-Encoding: base64\r\n",
		`Content-Disposition: attachment; filename="image.png"`,
		"--redactmail-boundary--\r\n",
	} {
		if !strings.Contains(data, want) {
			t.Errorf("missing %q in:\n%s", want, data)
		}
	}
}
